// Package updates implements the event-driven recalculation pipeline: change
// events are batched per patient, recomputed at a fixed tick, and pushed
// through the change detector, the priority queue, and the notification
// fan-out. Clinically dangerous raw inputs bypass the batch window entirely.
package updates

import (
	"fmt"
	"strings"
	"time"

	"github.com/medassist/triage/internal/domain/risk"
)

// ChangeType identifies what kind of clinical data changed.
type ChangeType string

const (
	ChangeVitals     ChangeType = "vitals"
	ChangeMedication ChangeType = "medication"
	ChangeLabResult  ChangeType = "lab_result"
	ChangeHistory    ChangeType = "history"
)

// ValidChangeType reports whether t is a known change type.
func ValidChangeType(t ChangeType) bool {
	switch t {
	case ChangeVitals, ChangeMedication, ChangeLabResult, ChangeHistory:
		return true
	}
	return false
}

// Payload carries the raw changed data. Only the fields relevant to the
// change type are set.
type Payload struct {
	Vitals     *risk.Vitals    `json:"vitals,omitempty"`
	Medication string          `json:"medication,omitempty"`
	Lab        *risk.LabResult `json:"lab,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// ChangeEvent is one raw input to the scheduler. Transient: consumed during
// processing and discarded.
type ChangeEvent struct {
	UpdateID   string     `json:"update_id"`
	PatientID  string     `json:"patient_id"`
	TenantID   string     `json:"tenant_id"`
	ChangeType ChangeType `json:"change_type"`
	Payload    Payload    `json:"payload"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Hard safety bounds for the fast path. A raw value outside these bounds
// looks dangerous on its face and triggers immediate recomputation.
const (
	MaxSafeSystolic  = 180
	MinSafeSystolic  = 90
	MinSafeSpO2      = 90
	MaxSafeHeartRate = 120
	MinSafeHeartRate = 50
)

// ErrInvalidInput rejects malformed events at the enqueue boundary.
type ErrInvalidInput struct {
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid change event: %s", e.Reason)
}

// IsCritical reports whether a raw payload warrants the fast path: vitals
// outside hard safety bounds, a high-risk medication name, or a lab result
// flagged critical.
func IsCritical(p Payload) bool {
	if v := p.Vitals; v != nil {
		if sys, _, ok := parseSystolic(v.BP); ok {
			if sys > MaxSafeSystolic || sys < MinSafeSystolic {
				return true
			}
		}
		if v.SpO2 != nil && *v.SpO2 < MinSafeSpO2 {
			return true
		}
		if v.HeartRate != nil && (*v.HeartRate > MaxSafeHeartRate || *v.HeartRate < MinSafeHeartRate) {
			return true
		}
	}
	if p.Medication != "" {
		med := strings.ToLower(p.Medication)
		for _, risky := range risk.HighRiskMedications {
			if strings.Contains(med, risky) {
				return true
			}
		}
	}
	if p.Lab != nil && strings.EqualFold(p.Lab.Flag, "critical") {
		return true
	}
	return false
}

func parseSystolic(bp string) (sys, dia int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(bp), "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &sys); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &dia); err != nil {
		return 0, 0, false
	}
	return sys, dia, sys > 0 && dia > 0
}
