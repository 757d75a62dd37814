// Package store defines the persistence collaborators of the triage engine
// and provides Postgres, Redis-cached, and in-memory implementations. The
// engine treats patient snapshots as read-only committed state; assessments
// are written back after every recomputation so the queue can be rebuilt.
package store

import (
	"context"
	"errors"

	"github.com/medassist/triage/internal/domain/risk"
)

// ErrNotFound is returned when a patient has no stored snapshot or assessment.
var ErrNotFound = errors.New("store: not found")

// SnapshotStore serves the committed clinical state to score against.
type SnapshotStore interface {
	GetPatientSnapshot(ctx context.Context, tenantID, patientID string) (*risk.PatientSnapshot, error)
}

// SnapshotWriter accepts replacement clinical state for a patient.
type SnapshotWriter interface {
	PutPatientSnapshot(ctx context.Context, snapshot risk.PatientSnapshot) error
}

// AssessmentStore persists the last-known-good assessment per patient.
type AssessmentStore interface {
	// GetPreviousAssessment returns the stored assessment, or (nil, nil) when
	// the patient has never been assessed.
	GetPreviousAssessment(ctx context.Context, tenantID, patientID string) (*risk.Assessment, error)
	PersistAssessment(ctx context.Context, tenantID, patientID string, a risk.Assessment) error
	// ListAssessments returns every stored assessment for a tenant, keyed by
	// patient ID. Used to rebuild a queue partition.
	ListAssessments(ctx context.Context, tenantID string) (map[string]risk.Assessment, error)
}

// NotificationLog records every outward notification for audit.
type NotificationLog interface {
	LogNotification(ctx context.Context, tenantID, patientID, kind string, payload interface{}) error
}
