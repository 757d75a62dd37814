package triage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/medassist/triage/internal/domain/risk"
)

// AssessmentLister supplies the last-known-good assessments used to rebuild
// a corrupted partition.
type AssessmentLister interface {
	ListAssessments(ctx context.Context, tenantID string) (map[string]risk.Assessment, error)
}

// Service wraps the arena with invariant enforcement and rebuild. All queue
// mutations from the rest of the system go through it.
type Service struct {
	arena       *Arena
	assessments AssessmentLister
	logger      zerolog.Logger
}

// NewService creates the queue service.
func NewService(arena *Arena, assessments AssessmentLister, logger zerolog.Logger) *Service {
	return &Service{arena: arena, assessments: assessments, logger: logger}
}

// Arena exposes the underlying arena for wiring.
func (s *Service) Arena() *Arena { return s.arena }

// Upsert inserts the patient or reprioritizes an existing entry with the new
// assessment, returning the resulting entry.
func (s *Service) Upsert(ctx context.Context, tenantID, patientID string, assessment risk.Assessment) (*QueueEntry, error) {
	q := s.arena.Partition(tenantID)

	entry, err := q.Reprioritize(patientID, assessment)
	if errors.Is(err, ErrNotQueued) {
		entry = q.Insert(patientID, assessment)
		err = nil
	}
	if err != nil {
		return nil, err
	}
	s.enforceInvariant(ctx, tenantID, q)
	copied := *entry
	return &copied, nil
}

// Snapshot returns the ordered, filtered queue for display.
func (s *Service) Snapshot(tenantID string, filter SnapshotFilter) []*QueueEntry {
	return s.arena.Partition(tenantID).Snapshot(filter)
}

// Stats returns queue statistics for a tenant.
func (s *Service) Stats(tenantID string) Stats {
	return s.arena.Partition(tenantID).Stats()
}

// PeekNext returns the next waiting entry, or nil.
func (s *Service) PeekNext(tenantID string) *QueueEntry {
	return s.arena.Partition(tenantID).PeekNext()
}

// Advance moves a patient (or, with empty patientID, the next waiting
// patient) into treatment.
func (s *Service) Advance(tenantID, patientID string) (*QueueEntry, error) {
	return s.arena.Partition(tenantID).Advance(patientID)
}

// MarkTreated flags a patient as treated; the entry stays for the grace
// window so in-flight events still resolve against it.
func (s *Service) MarkTreated(tenantID, patientID string) (*QueueEntry, error) {
	return s.arena.Partition(tenantID).MarkTreated(patientID)
}

// Rebuild reconstructs a tenant's partition from the persisted last-known
// assessments. Used when the order invariant is found broken.
func (s *Service) Rebuild(ctx context.Context, tenantID string) error {
	assessments, err := s.assessments.ListAssessments(ctx, tenantID)
	if err != nil {
		return err
	}
	q := s.arena.Partition(tenantID)
	q.Clear()
	for patientID, a := range assessments {
		q.Insert(patientID, a)
	}
	s.logger.Warn().
		Str("tenant_id", tenantID).
		Int("entries", len(assessments)).
		Msg("queue partition rebuilt from persisted assessments")
	return nil
}

// RunSweeper periodically removes treated entries past the grace window
// until ctx is cancelled. A non-positive grace falls back to the default.
func (s *Service) RunSweeper(ctx context.Context, interval, grace time.Duration) {
	if grace <= 0 {
		grace = TreatedGracePeriod
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.arena.SweepTreated(grace); n > 0 {
				s.logger.Debug().Int("removed", n).Msg("swept treated queue entries")
			}
		}
	}
}

// enforceInvariant verifies the partition's total order and rebuilds it on
// violation. The violation itself is a programming error; the rebuild keeps
// the tenant serviceable.
func (s *Service) enforceInvariant(ctx context.Context, tenantID string, q *TenantQueue) {
	err := q.Verify()
	if err == nil {
		return
	}
	s.logger.Error().
		Err(err).
		Str("tenant_id", tenantID).
		Interface("entries", q.Snapshot(SnapshotFilter{})).
		Msg("queue order invariant violated; rebuilding partition")
	if rerr := s.Rebuild(ctx, tenantID); rerr != nil {
		s.logger.Error().Err(rerr).Str("tenant_id", tenantID).Msg("partition rebuild failed")
	}
}
