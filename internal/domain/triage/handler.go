package triage

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/triage/internal/domain/risk"
)

// Handler exposes queue operations over HTTP via Echo.
type Handler struct {
	service       *Service
	defaultTenant string
}

// NewHandler creates a new queue handler.
func NewHandler(service *Service, defaultTenant string) *Handler {
	return &Handler{service: service, defaultTenant: defaultTenant}
}

// RegisterRoutes registers all queue routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/queue", h.HandleGetQueue)
	g.GET("/queue/stats", h.HandleGetStats)
	g.GET("/queue/next", h.HandlePeekNext)
	g.POST("/queue/advance", h.HandleAdvanceNext)
	g.POST("/queue/:patientId/advance", h.HandleAdvance)
	g.POST("/queue/:patientId/treated", h.HandleMarkTreated)
}

func (h *Handler) tenantID(c echo.Context) string {
	if t := c.QueryParam("tenant_id"); t != "" {
		return t
	}
	if t := c.Request().Header.Get("X-Tenant-ID"); t != "" {
		return t
	}
	return h.defaultTenant
}

// HandleGetQueue handles GET /queue?status=&priority=.
func (h *Handler) HandleGetQueue(c echo.Context) error {
	filter := SnapshotFilter{
		Status:   Status(c.QueryParam("status")),
		Priority: risk.Priority(c.QueryParam("priority")),
	}
	entries := h.service.Snapshot(h.tenantID(c), filter)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       entries,
		"total":      len(entries),
		"disclaimer": risk.Disclaimer,
	})
}

// HandleGetStats handles GET /queue/stats.
func (h *Handler) HandleGetStats(c echo.Context) error {
	stats := h.service.Stats(h.tenantID(c))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"stats":      stats,
		"disclaimer": risk.Disclaimer,
	})
}

// HandlePeekNext handles GET /queue/next.
func (h *Handler) HandlePeekNext(c echo.Context) error {
	entry := h.service.PeekNext(h.tenantID(c))
	if entry == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"data":       nil,
			"disclaimer": risk.Disclaimer,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       entry,
		"disclaimer": risk.Disclaimer,
	})
}

// HandleAdvanceNext handles POST /queue/advance.
func (h *Handler) HandleAdvanceNext(c echo.Context) error {
	return h.advance(c, "")
}

// HandleAdvance handles POST /queue/:patientId/advance.
func (h *Handler) HandleAdvance(c echo.Context) error {
	return h.advance(c, c.Param("patientId"))
}

func (h *Handler) advance(c echo.Context, patientID string) error {
	entry, err := h.service.Advance(h.tenantID(c), patientID)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrNotQueued) {
			status = http.StatusNotFound
		}
		return c.JSON(status, map[string]string{"error": err.Error(), "disclaimer": risk.Disclaimer})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       entry,
		"disclaimer": risk.Disclaimer,
	})
}

// HandleMarkTreated handles POST /queue/:patientId/treated.
func (h *Handler) HandleMarkTreated(c echo.Context) error {
	entry, err := h.service.MarkTreated(h.tenantID(c), c.Param("patientId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error(), "disclaimer": risk.Disclaimer})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       entry,
		"disclaimer": risk.Disclaimer,
	})
}
