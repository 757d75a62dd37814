package updates

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medassist/triage/internal/domain/risk"
	"github.com/medassist/triage/internal/domain/triage"
	"github.com/medassist/triage/internal/platform/store"
)

// DefaultBatchWindow is how long events accumulate before a scheduled
// recomputation picks them up.
const DefaultBatchWindow = 5 * time.Second

// State is a patient's position in the recomputation lifecycle.
type State int

const (
	StateIdle State = iota
	StateQueued
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateProcessing:
		return "processing"
	default:
		return "idle"
	}
}

// Broadcaster pushes a risk-change payload to a tenant's live subscribers.
type Broadcaster interface {
	Broadcast(tenantID string, message interface{})
}

// CriticalSink receives escalations when a change crosses the critical
// threshold. Implemented by the alert registry.
type CriticalSink interface {
	RaiseCritical(ctx context.Context, tenantID, patientID string, score int, changes []string)
}

// RiskChangeAlert is the payload pushed to subscribers and written to the
// notification log when a significant change lands.
type RiskChangeAlert struct {
	Type            string        `json:"type"`
	PatientID       string        `json:"patient_id"`
	TenantID        string        `json:"tenant_id"`
	Priority        risk.Priority `json:"priority"`
	NewRiskScore    int           `json:"new_risk_score"`
	NewRiskLevel    risk.Level    `json:"new_risk_level"`
	ScoreDifference int           `json:"score_difference"`
	Changes         []string      `json:"changes,omitempty"`
	Recommendation  string        `json:"recommendation,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
	Disclaimer      string        `json:"disclaimer"`
}

// patientState tracks one patient's lifecycle. The inFlight flag is what
// keeps a scheduled tick and a fast-path trigger from recomputing the same
// patient concurrently: whichever arrives second sees the flag, leaves the
// state at Queued, and lets the running pass (or the next tick) cover it.
type patientState struct {
	tenantID  string // immutable after creation
	patientID string

	mu       sync.Mutex
	state    State
	pending  []ChangeEvent
	inFlight bool
}

// Scheduler batches change events per patient and drives recomputation.
type Scheduler struct {
	mu       sync.Mutex
	patients map[string]*patientState

	snapshots   store.SnapshotStore
	assessments store.AssessmentStore
	auditLog    store.NotificationLog
	scorer      *risk.Scorer
	queue       *triage.Service
	broadcaster Broadcaster
	critical    CriticalSink

	batchWindow time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// Options carries the scheduler's collaborators. Broadcaster, CriticalSink,
// and AuditLog may be nil; the corresponding fan-out step is then skipped.
type Options struct {
	Snapshots   store.SnapshotStore
	Assessments store.AssessmentStore
	AuditLog    store.NotificationLog
	Queue       *triage.Service
	Broadcaster Broadcaster
	Critical    CriticalSink
	BatchWindow time.Duration
	Logger      zerolog.Logger
}

// NewScheduler creates a scheduler from its collaborators.
func NewScheduler(opts Options) *Scheduler {
	if opts.BatchWindow <= 0 {
		opts.BatchWindow = DefaultBatchWindow
	}
	return &Scheduler{
		patients:    make(map[string]*patientState),
		snapshots:   opts.Snapshots,
		assessments: opts.Assessments,
		auditLog:    opts.AuditLog,
		scorer:      risk.NewScorer(),
		queue:       opts.Queue,
		broadcaster: opts.Broadcaster,
		critical:    opts.Critical,
		batchWindow: opts.BatchWindow,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// QueueRiskUpdate accepts a change event and returns its update ID. It never
// blocks on recomputation: the event is appended to the patient's pending
// batch and picked up by the next tick, or immediately in a background pass
// when the raw payload looks clinically dangerous.
func (s *Scheduler) QueueRiskUpdate(ctx context.Context, tenantID, patientID string, changeType ChangeType, payload Payload) (string, error) {
	if patientID == "" {
		return "", &ErrInvalidInput{Reason: "patient_id is required"}
	}
	if tenantID == "" {
		return "", &ErrInvalidInput{Reason: "tenant_id is required"}
	}
	if !ValidChangeType(changeType) {
		return "", &ErrInvalidInput{Reason: "unknown change_type " + string(changeType)}
	}

	ev := ChangeEvent{
		UpdateID:   uuid.New().String(),
		PatientID:  patientID,
		TenantID:   tenantID,
		ChangeType: changeType,
		Payload:    payload,
		OccurredAt: s.now(),
	}

	ps := s.patientFor(tenantID, patientID)
	ps.mu.Lock()
	ps.pending = append(ps.pending, ev)
	if ps.state == StateIdle {
		ps.state = StateQueued
	}
	ps.mu.Unlock()

	if IsCritical(payload) {
		s.logger.Warn().
			Str("tenant_id", tenantID).
			Str("patient_id", patientID).
			Str("update_id", ev.UpdateID).
			Str("change_type", string(changeType)).
			Msg("critical payload, bypassing batch window")
		go s.process(context.WithoutCancel(ctx), tenantID, patientID)
	}

	return ev.UpdateID, nil
}

// PatientState reports the patient's current lifecycle state.
func (s *Scheduler) PatientState(tenantID, patientID string) State {
	ps := s.patientFor(tenantID, patientID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.state
}

// Run drives the batch tick until ctx is cancelled. A slow recomputation for
// one patient never delays another: each queued patient is processed in its
// own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.batchWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go s.Tick(ctx)
		}
	}
}

// Tick recomputes every patient currently in the Queued state and waits for
// the batch to finish. Exported so tests and manual triggers can drive the
// scheduler without the timer.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	queued := make([]*patientState, 0, len(s.patients))
	for _, ps := range s.patients {
		ps.mu.Lock()
		if ps.state == StateQueued {
			queued = append(queued, ps)
		}
		ps.mu.Unlock()
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, ps := range queued {
		wg.Add(1)
		go func(ps *patientState) {
			defer wg.Done()
			s.process(ctx, ps.tenantID, ps.patientID)
		}(ps)
	}
	wg.Wait()
}

// process runs one recomputation pass for a patient: drain the pending batch,
// score the latest snapshot, compare, and fan out. The heavy work happens
// outside every queue lock; only the final reprioritization takes one.
func (s *Scheduler) process(ctx context.Context, tenantID, patientID string) {
	ps := s.patientFor(tenantID, patientID)

	ps.mu.Lock()
	if ps.inFlight {
		// Another pass is already running. Pending events stay put and the
		// state stays Queued, so the next tick retries.
		ps.state = StateQueued
		ps.mu.Unlock()
		return
	}
	ps.inFlight = true
	ps.state = StateProcessing
	batch := len(ps.pending)
	ps.pending = ps.pending[:0]
	ps.mu.Unlock()

	requeue := func(err error, stage string) {
		s.logger.Warn().
			Err(err).
			Str("tenant_id", tenantID).
			Str("patient_id", patientID).
			Str("stage", stage).
			Msg("recomputation failed, will retry next tick")
		ps.mu.Lock()
		ps.inFlight = false
		ps.state = StateQueued
		ps.mu.Unlock()
	}

	snapshot, err := s.snapshots.GetPatientSnapshot(ctx, tenantID, patientID)
	if err != nil {
		requeue(err, "load_snapshot")
		return
	}

	assessment := s.scorer.Compute(*snapshot)

	prev, err := s.assessments.GetPreviousAssessment(ctx, tenantID, patientID)
	if err != nil {
		requeue(err, "load_previous")
		return
	}
	delta := risk.Compare(prev, assessment)

	if err := s.assessments.PersistAssessment(ctx, tenantID, patientID, assessment); err != nil {
		requeue(err, "persist")
		return
	}

	s.logger.Debug().
		Str("tenant_id", tenantID).
		Str("patient_id", patientID).
		Int("batched_events", batch).
		Int("score", assessment.Overall.Score).
		Int("score_delta", delta.ScoreDelta).
		Bool("significant", delta.Significant).
		Msg("risk assessment recomputed")

	if delta.Significant {
		s.fanOut(ctx, tenantID, patientID, assessment, delta)
	}

	ps.mu.Lock()
	ps.inFlight = false
	if len(ps.pending) > 0 {
		ps.state = StateQueued
	} else {
		ps.state = StateIdle
	}
	ps.mu.Unlock()
}

// fanOut reprioritizes the queue and notifies subscribers after a
// significant change. Notification failures are logged, never propagated:
// the assessment is already persisted and the queue already correct.
func (s *Scheduler) fanOut(ctx context.Context, tenantID, patientID string, assessment risk.Assessment, delta risk.Delta) {
	if _, err := s.queue.Upsert(ctx, tenantID, patientID, assessment); err != nil {
		s.logger.Error().
			Err(err).
			Str("tenant_id", tenantID).
			Str("patient_id", patientID).
			Msg("queue reprioritization failed")
	}

	alert := RiskChangeAlert{
		Type:            "risk_change_alert",
		PatientID:       patientID,
		TenantID:        tenantID,
		Priority:        risk.ScoreToPriority(assessment.Overall.Score),
		NewRiskScore:    assessment.Overall.Score,
		NewRiskLevel:    assessment.Overall.Level,
		ScoreDifference: delta.ScoreDelta,
		Changes:         delta.ChangedCategories,
		Recommendation:  assessment.Overall.Recommendation,
		Timestamp:       s.now().UTC(),
		Disclaimer:      risk.Disclaimer,
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(tenantID, alert)
	}
	if s.auditLog != nil {
		if err := s.auditLog.LogNotification(ctx, tenantID, patientID, alert.Type, alert); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID).Msg("notification audit write failed")
		}
	}
	if delta.Critical && s.critical != nil {
		s.critical.RaiseCritical(ctx, tenantID, patientID, assessment.Overall.Score, delta.ChangedCategories)
	}
}

func (s *Scheduler) patientFor(tenantID, patientID string) *patientState {
	k := tenantID + "\x00" + patientID
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.patients[k]
	if !ok {
		ps = &patientState{tenantID: tenantID, patientID: patientID}
		s.patients[k] = ps
	}
	return ps
}
