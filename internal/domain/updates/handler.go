package updates

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/triage/internal/domain/risk"
	"github.com/medassist/triage/internal/platform/store"
)

// Handler exposes change-event and snapshot ingestion over HTTP.
type Handler struct {
	scheduler     *Scheduler
	snapshots     store.SnapshotWriter
	defaultTenant string
}

// NewHandler creates the ingestion handler. snapshots may be nil to disable
// the snapshot-replacement endpoint.
func NewHandler(scheduler *Scheduler, snapshots store.SnapshotWriter, defaultTenant string) *Handler {
	return &Handler{scheduler: scheduler, snapshots: snapshots, defaultTenant: defaultTenant}
}

// RegisterRoutes registers ingestion routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/updates", h.HandleQueueUpdate)
	if h.snapshots != nil {
		g.PUT("/patients/:patientId/snapshot", h.HandlePutSnapshot)
	}
}

type queueUpdateRequest struct {
	PatientID  string     `json:"patient_id"`
	TenantID   string     `json:"tenant_id"`
	ChangeType ChangeType `json:"change_type"`
	Payload    Payload    `json:"payload"`
}

// HandleQueueUpdate handles POST /updates. Accepted events return 202
// immediately; recomputation happens on the scheduler's tick, or at once for
// critical payloads.
func (h *Handler) HandleQueueUpdate(c echo.Context) error {
	var req queueUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":      "malformed request body",
			"disclaimer": risk.Disclaimer,
		})
	}

	tenantID := req.TenantID
	if tenantID == "" {
		if t := c.Request().Header.Get("X-Tenant-ID"); t != "" {
			tenantID = t
		} else {
			tenantID = h.defaultTenant
		}
	}

	updateID, err := h.scheduler.QueueRiskUpdate(c.Request().Context(), tenantID, req.PatientID, req.ChangeType, req.Payload)
	if err != nil {
		var invalid *ErrInvalidInput
		if errors.As(err, &invalid) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error":      invalid.Error(),
				"disclaimer": risk.Disclaimer,
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":      "failed to queue update",
			"disclaimer": risk.Disclaimer,
		})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"update_id":  updateID,
		"status":     "queued",
		"fast_path":  IsCritical(req.Payload),
		"disclaimer": risk.Disclaimer,
	})
}

// HandlePutSnapshot handles PUT /patients/:patientId/snapshot. Replacing a
// snapshot queues a recomputation; dangerous vitals in the new snapshot ride
// the fast path.
func (h *Handler) HandlePutSnapshot(c echo.Context) error {
	var snapshot risk.PatientSnapshot
	if err := c.Bind(&snapshot); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":      "malformed request body",
			"disclaimer": risk.Disclaimer,
		})
	}
	snapshot.PatientID = c.Param("patientId")
	if snapshot.TenantID == "" {
		if t := c.Request().Header.Get("X-Tenant-ID"); t != "" {
			snapshot.TenantID = t
		} else {
			snapshot.TenantID = h.defaultTenant
		}
	}

	ctx := c.Request().Context()
	if err := h.snapshots.PutPatientSnapshot(ctx, snapshot); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":      "failed to store snapshot",
			"disclaimer": risk.Disclaimer,
		})
	}

	updateID, err := h.scheduler.QueueRiskUpdate(ctx, snapshot.TenantID, snapshot.PatientID, ChangeHistory, Payload{
		Vitals: &snapshot.Vitals,
		Note:   "snapshot replaced",
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":      "snapshot stored but recomputation not queued",
			"disclaimer": risk.Disclaimer,
		})
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"update_id":  updateID,
		"status":     "queued",
		"disclaimer": risk.Disclaimer,
	})
}
