package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medassist/triage/internal/domain/risk"
)

// ErrAlertNotFound is returned when resolving an unknown alert.
var ErrAlertNotFound = fmt.Errorf("alert not found")

// Registry holds active and recently resolved alerts in memory, partitioned
// by tenant. It implements the scheduler's escalation sink.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Alert
	byTenant map[string][]*Alert

	notifier *Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRegistry creates an empty registry. notifier may be nil; alerts are then
// recorded without outbound notification.
func NewRegistry(notifier *Notifier, logger zerolog.Logger) *Registry {
	return &Registry{
		byID:     make(map[string]*Alert),
		byTenant: make(map[string][]*Alert),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Raise records a new alert and fans it out to the on-call channel.
func (r *Registry) Raise(ctx context.Context, alert Alert) *Alert {
	alert.ID = uuid.New().String()
	alert.CreatedAt = r.now().UTC()
	alert.Color = alert.Level.DisplayColor()
	alert.Urgency = alert.Level.UrgencyText()

	r.mu.Lock()
	stored := alert
	r.byID[stored.ID] = &stored
	r.byTenant[stored.TenantID] = append(r.byTenant[stored.TenantID], &stored)
	r.mu.Unlock()

	r.logger.Warn().
		Str("alert_id", stored.ID).
		Str("tenant_id", stored.TenantID).
		Str("patient_id", stored.PatientID).
		Str("level", string(stored.Level)).
		Str("source", string(stored.Source)).
		Msg("emergency alert raised")

	if r.notifier != nil {
		r.notifier.Notify(ctx, stored)
	}
	copied := stored
	return &copied
}

// RaiseCritical implements the scheduler's escalation sink: a risk change
// past the critical threshold becomes a CRITICAL alert.
func (r *Registry) RaiseCritical(ctx context.Context, tenantID, patientID string, score int, changes []string) {
	r.Raise(ctx, Alert{
		TenantID:  tenantID,
		PatientID: patientID,
		Level:     LevelCritical,
		Source:    SourceRiskChange,
		Message:   fmt.Sprintf("Risk score changed sharply to %d (%s)", score, risk.ScoreToLevel(score)),
		RiskScore: score,
		Changes:   changes,
	})
}

// TriggerSOS records a patient-initiated emergency. Always CRITICAL.
func (r *Registry) TriggerSOS(ctx context.Context, tenantID, patientID, message string) *Alert {
	if message == "" {
		message = "Patient triggered SOS"
	}
	return r.Raise(ctx, Alert{
		TenantID:  tenantID,
		PatientID: patientID,
		Level:     LevelCritical,
		Source:    SourceSOS,
		Message:   message,
	})
}

// Resolve marks an alert resolved.
func (r *Registry) Resolve(alertID, resolvedBy string) (*Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.byID[alertID]
	if !ok {
		return nil, ErrAlertNotFound
	}
	if !alert.Resolved {
		now := r.now().UTC()
		alert.Resolved = true
		alert.ResolvedAt = &now
		alert.ResolvedBy = resolvedBy
	}
	copied := *alert
	return &copied, nil
}

// ListActive returns a tenant's unresolved alerts, newest first.
func (r *Registry) ListActive(tenantID string) []*Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, a := range r.byTenant[tenantID] {
		if !a.Resolved {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ForPatient returns all of a patient's alerts, newest first, resolved
// included.
func (r *Registry) ForPatient(tenantID, patientID string) []*Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, a := range r.byTenant[tenantID] {
		if a.PatientID == patientID {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
