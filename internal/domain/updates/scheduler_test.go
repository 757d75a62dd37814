package updates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medassist/triage/internal/domain/risk"
	"github.com/medassist/triage/internal/domain/triage"
	"github.com/medassist/triage/internal/platform/store"
)

func intPtr(v int) *int { return &v }

// unstableSnapshots fails the first failures reads, then delegates.
type unstableSnapshots struct {
	inner    store.SnapshotStore
	mu       sync.Mutex
	calls    int
	failures int
}

func (u *unstableSnapshots) GetPatientSnapshot(ctx context.Context, tenantID, patientID string) (*risk.PatientSnapshot, error) {
	u.mu.Lock()
	u.calls++
	fail := u.calls <= u.failures
	u.mu.Unlock()
	if fail {
		return nil, errors.New("transient store outage")
	}
	return u.inner.GetPatientSnapshot(ctx, tenantID, patientID)
}

func (u *unstableSnapshots) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
}

func (f *fakeBroadcaster) Broadcast(_ string, message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeBroadcaster) alerts() []RiskChangeAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RiskChangeAlert, 0, len(f.messages))
	for _, m := range f.messages {
		if a, ok := m.(RiskChangeAlert); ok {
			out = append(out, a)
		}
	}
	return out
}

type fakeCriticalSink struct {
	mu     sync.Mutex
	raised []string
}

func (f *fakeCriticalSink) RaiseCritical(_ context.Context, _, patientID string, _ int, _ []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raised = append(f.raised, patientID)
}

func (f *fakeCriticalSink) raisedPatients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.raised...)
}

type testEnv struct {
	scheduler *Scheduler
	memory    *store.Memory
	snapshots *unstableSnapshots
	broadcast *fakeBroadcaster
	critical  *fakeCriticalSink
	queue     *triage.Service
}

func newTestEnv(t *testing.T, snapshotFailures int) *testEnv {
	t.Helper()
	memory := store.NewMemory()
	snapshots := &unstableSnapshots{inner: memory, failures: snapshotFailures}
	broadcast := &fakeBroadcaster{}
	critical := &fakeCriticalSink{}
	arena := triage.NewArena(zerolog.Nop(), true)
	queue := triage.NewService(arena, memory, zerolog.Nop())

	scheduler := NewScheduler(Options{
		Snapshots:   snapshots,
		Assessments: memory,
		AuditLog:    memory,
		Queue:       queue,
		Broadcaster: broadcast,
		Critical:    critical,
		BatchWindow: time.Second,
		Logger:      zerolog.Nop(),
	})
	return &testEnv{
		scheduler: scheduler,
		memory:    memory,
		snapshots: snapshots,
		broadcast: broadcast,
		critical:  critical,
		queue:     queue,
	}
}

// highRiskSnapshot scores well above the critical-delta threshold on first
// assessment.
func highRiskSnapshot(tenantID, patientID string) risk.PatientSnapshot {
	return risk.PatientSnapshot{
		PatientID: patientID,
		TenantID:  tenantID,
		Age:       70,
		Vitals:    risk.Vitals{BP: "150/95", HeartRate: intPtr(110)},
		History:   []string{"diabetes"},
	}
}

func waitForIdle(t *testing.T, s *Scheduler, tenantID, patientID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.PatientState(tenantID, patientID) == StateIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("patient %s never returned to idle", patientID)
}

func TestQueueRiskUpdateValidation(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	var invalid *ErrInvalidInput
	if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "", ChangeVitals, Payload{}); !errors.As(err, &invalid) {
		t.Errorf("expected ErrInvalidInput for empty patient, got %v", err)
	}
	if _, err := env.scheduler.QueueRiskUpdate(ctx, "", "p1", ChangeVitals, Payload{}); !errors.As(err, &invalid) {
		t.Errorf("expected ErrInvalidInput for empty tenant, got %v", err)
	}
	if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p1", ChangeType("bogus"), Payload{}); !errors.As(err, &invalid) {
		t.Errorf("expected ErrInvalidInput for unknown change type, got %v", err)
	}

	id, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p1", ChangeVitals, Payload{})
	if err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	if id == "" {
		t.Error("expected a non-empty update id")
	}
	if env.scheduler.PatientState("t1", "p1") != StateQueued {
		t.Error("patient should be queued after accepted event")
	}
}

func TestTickProcessesQueuedPatient(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.memory.PutPatientSnapshot(context.Background(), highRiskSnapshot("t1", "p1"))

	if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p1", ChangeVitals, Payload{}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	env.scheduler.Tick(ctx)

	if env.scheduler.PatientState("t1", "p1") != StateIdle {
		t.Error("patient should be idle after tick")
	}
	persisted, err := env.memory.GetPreviousAssessment(ctx, "t1", "p1")
	if err != nil || persisted == nil {
		t.Fatalf("assessment not persisted: (%v, %v)", persisted, err)
	}
	if persisted.Overall.Score < 20 {
		t.Errorf("expected a substantial first score, got %d", persisted.Overall.Score)
	}

	// First assessment is significant: the patient must now be queued for
	// triage and a push must have gone out.
	if env.queue.PeekNext("t1") == nil {
		t.Error("patient missing from triage queue after significant change")
	}
	alerts := env.broadcast.alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(alerts))
	}
	if alerts[0].Type != "risk_change_alert" || alerts[0].Disclaimer != risk.Disclaimer {
		t.Errorf("malformed alert payload: %+v", alerts[0])
	}
	if len(env.memory.Notifications()) != 1 {
		t.Error("notification not written to audit log")
	}
}

func TestBatchCoalescesEvents(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.memory.PutPatientSnapshot(context.Background(), highRiskSnapshot("t1", "p1"))

	for i := 0; i < 4; i++ {
		if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p1", ChangeVitals, Payload{}); err != nil {
			t.Fatalf("queue %d: %v", i, err)
		}
	}
	env.scheduler.Tick(ctx)

	// One recomputation for the whole batch: exactly one snapshot read.
	if got := env.snapshots.callCount(); got != 1 {
		t.Errorf("expected 1 snapshot read for 4 batched events, got %d", got)
	}
	if env.scheduler.PatientState("t1", "p1") != StateIdle {
		t.Error("patient should be idle after batch processed")
	}
}

func TestTransientFailureRetriesNextTick(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	env.memory.PutPatientSnapshot(context.Background(), highRiskSnapshot("t1", "p1"))

	if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p1", ChangeVitals, Payload{}); err != nil {
		t.Fatalf("queue: %v", err)
	}

	env.scheduler.Tick(ctx)
	if env.scheduler.PatientState("t1", "p1") != StateQueued {
		t.Fatal("failed patient must return to queued for retry")
	}
	if a, _ := env.memory.GetPreviousAssessment(ctx, "t1", "p1"); a != nil {
		t.Fatal("nothing should be persisted after a failed pass")
	}

	env.scheduler.Tick(ctx)
	if env.scheduler.PatientState("t1", "p1") != StateIdle {
		t.Error("retry should have succeeded")
	}
	if a, _ := env.memory.GetPreviousAssessment(ctx, "t1", "p1"); a == nil {
		t.Error("assessment missing after successful retry")
	}
}

func TestFastPathBypassesBatchWindow(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.memory.PutPatientSnapshot(context.Background(), risk.PatientSnapshot{
		PatientID: "p1",
		TenantID:  "t1",
		Age:       60,
		Vitals:    risk.Vitals{BP: "195/120", HeartRate: intPtr(130)},
		Symptoms:  []string{"chest pain"},
	})

	payload := Payload{Vitals: &risk.Vitals{BP: "195/120", HeartRate: intPtr(130)}}
	if !IsCritical(payload) {
		t.Fatal("payload should trip the fast path")
	}
	if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p1", ChangeVitals, payload); err != nil {
		t.Fatalf("queue: %v", err)
	}

	// No Tick: the fast path alone must drive the recomputation.
	waitForIdle(t, env.scheduler, "t1", "p1")

	a, err := env.memory.GetPreviousAssessment(ctx, "t1", "p1")
	if err != nil || a == nil {
		t.Fatalf("fast path did not persist an assessment: (%v, %v)", a, err)
	}
	if a.Overall.Score < 80 {
		t.Errorf("hypertensive crisis with chest pain should score critical, got %d", a.Overall.Score)
	}
	if got := env.critical.raisedPatients(); len(got) != 1 || got[0] != "p1" {
		t.Errorf("critical escalation not raised: %v", got)
	}
}

func TestFastPathDoesNotBlockOtherPatients(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.memory.PutPatientSnapshot(context.Background(), highRiskSnapshot("t1", "p1"))
	env.memory.PutPatientSnapshot(context.Background(), highRiskSnapshot("t1", "p2"))

	if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p1", ChangeMedication, Payload{Medication: "warfarin"}); err != nil {
		t.Fatalf("queue fast-path: %v", err)
	}
	if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p2", ChangeVitals, Payload{}); err != nil {
		t.Fatalf("queue batched: %v", err)
	}

	// The batched patient still rides the normal tick.
	env.scheduler.Tick(ctx)
	if env.scheduler.PatientState("t1", "p2") != StateIdle {
		t.Error("batched patient should process on the tick regardless of fast path")
	}
	waitForIdle(t, env.scheduler, "t1", "p1")
}

// blockingSnapshots parks reads until released, to hold a recomputation pass
// open mid-flight.
type blockingSnapshots struct {
	inner   store.SnapshotStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSnapshots) GetPatientSnapshot(ctx context.Context, tenantID, patientID string) (*risk.PatientSnapshot, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.inner.GetPatientSnapshot(ctx, tenantID, patientID)
}

func TestInFlightGuardCoalescesConcurrentPasses(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.memory.PutPatientSnapshot(context.Background(), highRiskSnapshot("t1", "p1"))

	blocked := &blockingSnapshots{
		inner:   env.memory,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	env.scheduler.snapshots = blocked

	if _, err := env.scheduler.QueueRiskUpdate(ctx, "t1", "p1", ChangeVitals, Payload{}); err != nil {
		t.Fatalf("queue: %v", err)
	}

	go env.scheduler.process(ctx, "t1", "p1")
	<-blocked.entered // first pass now holds the in-flight flag

	// A second pass must bounce off the flag immediately, leaving the
	// patient queued rather than starting a duplicate recomputation.
	env.scheduler.process(ctx, "t1", "p1")
	if got := env.scheduler.PatientState("t1", "p1"); got != StateQueued {
		t.Errorf("bounced pass should leave patient queued, got %v", got)
	}

	close(blocked.release)
	waitForIdle(t, env.scheduler, "t1", "p1")

	if a, _ := env.memory.GetPreviousAssessment(ctx, "t1", "p1"); a == nil {
		t.Error("winning pass did not persist an assessment")
	}
}

func TestTickKeepsCompositeTenantIDIntact(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	// Tenant ids are opaque strings; one with a separator-looking character
	// must still round-trip through the tick unchanged.
	tenant := "region-1/clinic-9"
	env.memory.PutPatientSnapshot(ctx, highRiskSnapshot(tenant, "p1"))

	if _, err := env.scheduler.QueueRiskUpdate(ctx, tenant, "p1", ChangeVitals, Payload{}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	env.scheduler.Tick(ctx)

	if got := env.scheduler.PatientState(tenant, "p1"); got != StateIdle {
		t.Errorf("patient should be idle after tick, got %v", got)
	}
	if a, _ := env.memory.GetPreviousAssessment(ctx, tenant, "p1"); a == nil {
		t.Error("assessment not persisted under the full tenant id")
	}
}

func TestIsCriticalBounds(t *testing.T) {
	cases := []struct {
		name    string
		payload Payload
		want    bool
	}{
		{"normal vitals", Payload{Vitals: &risk.Vitals{BP: "120/80", HeartRate: intPtr(72), SpO2: intPtr(98)}}, false},
		{"systolic high", Payload{Vitals: &risk.Vitals{BP: "185/100"}}, true},
		{"systolic low", Payload{Vitals: &risk.Vitals{BP: "85/60"}}, true},
		{"spo2 low", Payload{Vitals: &risk.Vitals{SpO2: intPtr(88)}}, true},
		{"tachycardia", Payload{Vitals: &risk.Vitals{HeartRate: intPtr(125)}}, true},
		{"bradycardia", Payload{Vitals: &risk.Vitals{HeartRate: intPtr(45)}}, true},
		{"boundary hr 120", Payload{Vitals: &risk.Vitals{HeartRate: intPtr(120)}}, false},
		{"garbage bp", Payload{Vitals: &risk.Vitals{BP: "not-a-reading"}}, false},
		{"high risk medication", Payload{Medication: "Warfarin 5mg"}, true},
		{"ordinary medication", Payload{Medication: "loratadine"}, false},
		{"critical lab", Payload{Lab: &risk.LabResult{TestName: "potassium", Value: 6.8, Flag: "critical"}}, true},
		{"abnormal lab", Payload{Lab: &risk.LabResult{TestName: "potassium", Value: 5.4, Flag: "abnormal"}}, false},
		{"empty payload", Payload{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCritical(tc.payload); got != tc.want {
				t.Errorf("IsCritical(%+v) = %v, want %v", tc.payload, got, tc.want)
			}
		})
	}
}
