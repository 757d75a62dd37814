// Package alerts maintains the emergency alert registry: escalations raised
// by the risk pipeline, patient-triggered SOS, and the on-call notification
// fan-out over email and SMS.
package alerts

import (
	"time"
)

// AlertLevel is the severity of an emergency alert.
type AlertLevel string

const (
	LevelCritical AlertLevel = "CRITICAL"
	LevelWarning  AlertLevel = "WARNING"
	LevelInfo     AlertLevel = "INFO"
	LevelNormal   AlertLevel = "NORMAL"
)

// ValidLevel reports whether l is a known alert level.
func ValidLevel(l AlertLevel) bool {
	switch l {
	case LevelCritical, LevelWarning, LevelInfo, LevelNormal:
		return true
	}
	return false
}

// Source identifies what raised an alert.
type Source string

const (
	SourceRiskChange Source = "risk_change"
	SourceSOS        Source = "sos"
	SourceManual     Source = "manual"
)

// Alert is one emergency alert record.
type Alert struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	PatientID  string     `json:"patient_id"`
	Level      AlertLevel `json:"level"`
	Source     Source     `json:"source"`
	Message    string     `json:"message"`
	RiskScore  int        `json:"risk_score,omitempty"`
	Changes    []string   `json:"changes,omitempty"`
	Color      string     `json:"color"`
	Urgency    string     `json:"urgency"`
	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// DisplayColor returns the display color associated with a level.
func (l AlertLevel) DisplayColor() string {
	switch l {
	case LevelCritical:
		return "#dc2626"
	case LevelWarning:
		return "#ea580c"
	case LevelInfo:
		return "#2563eb"
	default:
		return "#16a34a"
	}
}

// UrgencyText returns the display banner text for a level.
func (l AlertLevel) UrgencyText() string {
	switch l {
	case LevelCritical:
		return "IMMEDIATE ATTENTION REQUIRED"
	case LevelWarning:
		return "Prompt review recommended"
	case LevelInfo:
		return "For awareness"
	default:
		return "No action needed"
	}
}
