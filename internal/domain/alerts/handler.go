package alerts

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/triage/internal/domain/risk"
)

// Handler exposes the alert registry over HTTP.
type Handler struct {
	registry      *Registry
	defaultTenant string
}

// NewHandler creates the alerts handler.
func NewHandler(registry *Registry, defaultTenant string) *Handler {
	return &Handler{registry: registry, defaultTenant: defaultTenant}
}

// RegisterRoutes registers alert routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/alerts", h.HandleListActive)
	g.GET("/alerts/patient/:patientId", h.HandleForPatient)
	g.POST("/alerts", h.HandleCreate)
	g.POST("/alerts/:alertId/resolve", h.HandleResolve)
	g.POST("/sos", h.HandleSOS)
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

// HandleListActive handles GET /alerts.
func (h *Handler) HandleListActive(c echo.Context) error {
	active := h.registry.ListActive(h.tenantID(c))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       active,
		"total":      len(active),
		"disclaimer": risk.Disclaimer,
	})
}

// HandleForPatient handles GET /alerts/patient/:patientId.
func (h *Handler) HandleForPatient(c echo.Context) error {
	list := h.registry.ForPatient(h.tenantID(c), c.Param("patientId"))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       list,
		"total":      len(list),
		"disclaimer": risk.Disclaimer,
	})
}

type createRequest struct {
	PatientID string     `json:"patient_id"`
	Level     AlertLevel `json:"level"`
	Message   string     `json:"message"`
}

// HandleCreate handles POST /alerts: a staff-raised manual alert.
func (h *Handler) HandleCreate(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil || req.PatientID == "" || req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":      "patient_id and message are required",
			"disclaimer": risk.Disclaimer,
		})
	}
	if req.Level == "" {
		req.Level = LevelInfo
	}
	if !ValidLevel(req.Level) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":      "unknown alert level",
			"disclaimer": risk.Disclaimer,
		})
	}

	alert := h.registry.Raise(c.Request().Context(), Alert{
		TenantID:  h.tenantID(c),
		PatientID: req.PatientID,
		Level:     req.Level,
		Source:    SourceManual,
		Message:   req.Message,
	})
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"data":       alert,
		"disclaimer": risk.Disclaimer,
	})
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// HandleResolve handles POST /alerts/:alertId/resolve.
func (h *Handler) HandleResolve(c echo.Context) error {
	var req resolveRequest
	_ = c.Bind(&req) // body is optional

	alert, err := h.registry.Resolve(c.Param("alertId"), req.ResolvedBy)
	if err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error":      err.Error(),
				"disclaimer": risk.Disclaimer,
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":      "failed to resolve alert",
			"disclaimer": risk.Disclaimer,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":       alert,
		"disclaimer": risk.Disclaimer,
	})
}

type sosRequest struct {
	PatientID string `json:"patient_id"`
	Message   string `json:"message"`
}

// HandleSOS handles POST /sos.
func (h *Handler) HandleSOS(c echo.Context) error {
	var req sosRequest
	if err := c.Bind(&req); err != nil || req.PatientID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":      "patient_id is required",
			"disclaimer": risk.Disclaimer,
		})
	}
	alert := h.registry.TriggerSOS(c.Request().Context(), h.tenantID(c), req.PatientID, req.Message)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"data":       alert,
		"disclaimer": risk.Disclaimer,
	})
}
