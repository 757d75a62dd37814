package store

import (
	"context"
	"sync"
	"time"

	"github.com/medassist/triage/internal/domain/risk"
)

// Memory is a map-backed implementation of all three store interfaces. It is
// the default in development and the workhorse of the test suites.
type Memory struct {
	mu          sync.RWMutex
	snapshots   map[string]*risk.PatientSnapshot
	assessments map[string]risk.Assessment
	logEntries  []LoggedNotification
}

// LoggedNotification is one audit record kept by the in-memory log.
type LoggedNotification struct {
	TenantID  string
	PatientID string
	Kind      string
	Payload   interface{}
	LoggedAt  time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		snapshots:   make(map[string]*risk.PatientSnapshot),
		assessments: make(map[string]risk.Assessment),
	}
}

func key(tenantID, patientID string) string {
	return tenantID + "/" + patientID
}

// PutPatientSnapshot stores or replaces a patient's committed state.
func (m *Memory) PutPatientSnapshot(_ context.Context, snapshot risk.PatientSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := snapshot
	m.snapshots[key(snapshot.TenantID, snapshot.PatientID)] = &copied
	return nil
}

// GetPatientSnapshot implements SnapshotStore.
func (m *Memory) GetPatientSnapshot(_ context.Context, tenantID, patientID string) (*risk.PatientSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[key(tenantID, patientID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

// GetPreviousAssessment implements AssessmentStore.
func (m *Memory) GetPreviousAssessment(_ context.Context, tenantID, patientID string) (*risk.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assessments[key(tenantID, patientID)]
	if !ok {
		return nil, nil
	}
	copied := a
	return &copied, nil
}

// PersistAssessment implements AssessmentStore.
func (m *Memory) PersistAssessment(_ context.Context, tenantID, patientID string, a risk.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[key(tenantID, patientID)] = a
	return nil
}

// ListAssessments implements AssessmentStore.
func (m *Memory) ListAssessments(_ context.Context, tenantID string) (map[string]risk.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]risk.Assessment)
	prefix := tenantID + "/"
	for k, a := range m.assessments {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = a
		}
	}
	return out, nil
}

// LogNotification implements NotificationLog.
func (m *Memory) LogNotification(_ context.Context, tenantID, patientID, kind string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logEntries = append(m.logEntries, LoggedNotification{
		TenantID:  tenantID,
		PatientID: patientID,
		Kind:      kind,
		Payload:   payload,
		LoggedAt:  time.Now(),
	})
	return nil
}

// Notifications returns a copy of the audit log, newest last.
func (m *Memory) Notifications() []LoggedNotification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LoggedNotification, len(m.logEntries))
	copy(out, m.logEntries)
	return out
}
