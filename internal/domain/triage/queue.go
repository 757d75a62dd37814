package triage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medassist/triage/internal/domain/risk"
)

// ErrNotQueued is returned when an operation names a patient with no active
// entry in the tenant's queue.
var ErrNotQueued = fmt.Errorf("patient not queued")

// OrderViolationError reports a broken total-order invariant. It is a
// programming error; the arena responds by rebuilding the partition rather
// than repairing in place.
type OrderViolationError struct {
	TenantID string
	Position int
}

func (e *OrderViolationError) Error() string {
	return fmt.Sprintf("queue order invariant violated for tenant %s at position %d", e.TenantID, e.Position)
}

// TenantQueue is one tenant's ordered patient queue. Entries are kept in
// total order in a slice; insertion locates the position with a binary
// search. A patient has at most one entry at any time.
type TenantQueue struct {
	mu        sync.Mutex
	tenantID  string
	entries   []*QueueEntry
	byPatient map[string]*QueueEntry
	logger    zerolog.Logger

	// debugVerify re-checks the total order after every mutation and panics
	// on violation. Development only.
	debugVerify bool

	now func() time.Time
}

func newTenantQueue(tenantID string, logger zerolog.Logger, debugVerify bool) *TenantQueue {
	return &TenantQueue{
		tenantID:    tenantID,
		byPatient:   make(map[string]*QueueEntry),
		logger:      logger.With().Str("tenant_id", tenantID).Logger(),
		debugVerify: debugVerify,
		now:         time.Now,
	}
}

// Insert adds or replaces the entry for a patient, maintaining total order.
// A replace of a still-active entry keeps the original arrival time; a
// re-triage after treatment starts a fresh entry.
func (q *TenantQueue) Insert(patientID string, assessment risk.Assessment) *QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	enqueuedAt := now
	if existing, ok := q.byPatient[patientID]; ok {
		if existing.Status != StatusTreated {
			enqueuedAt = existing.EnqueuedAt
		}
		q.removeLocked(patientID)
	}

	entry := &QueueEntry{
		PatientID:    patientID,
		TenantID:     q.tenantID,
		Assessment:   assessment,
		Priority:     risk.ScoreToPriority(assessment.Overall.Score),
		UrgencyScore: assessment.Overall.Score,
		Status:       StatusWaiting,
		EnqueuedAt:   enqueuedAt,
	}
	q.insertLocked(entry)
	return entry
}

// Reprioritize atomically removes and reinserts a patient's entry with a new
// assessment. No observer can see the intermediate state because the whole
// operation happens under the partition lock.
func (q *TenantQueue) Reprioritize(patientID string, assessment risk.Assessment) (*QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.byPatient[patientID]
	if !ok {
		return nil, ErrNotQueued
	}
	q.removeLocked(patientID)

	entry.Assessment = assessment
	entry.Priority = risk.ScoreToPriority(assessment.Overall.Score)
	entry.UrgencyScore = assessment.Overall.Score
	q.insertLocked(entry)
	return entry, nil
}

// PeekNext returns the highest-priority waiting entry without mutating it.
func (q *TenantQueue) PeekNext() *QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.Status == StatusWaiting {
			copied := *e
			return &copied
		}
	}
	return nil
}

// Advance transitions a patient to in-treatment. With an empty patientID it
// advances the next waiting entry.
func (q *TenantQueue) Advance(patientID string) (*QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var entry *QueueEntry
	if patientID == "" {
		for _, e := range q.entries {
			if e.Status == StatusWaiting {
				entry = e
				break
			}
		}
	} else {
		entry = q.byPatient[patientID]
	}
	if entry == nil {
		return nil, ErrNotQueued
	}
	if entry.Status != StatusWaiting {
		return nil, fmt.Errorf("patient %s is %s, not waiting", entry.PatientID, entry.Status)
	}
	entry.Status = StatusInTreatment
	copied := *entry
	return &copied, nil
}

// MarkTreated transitions a patient to treated. The entry is retained until
// the grace period elapses; SweepTreated performs the physical removal.
func (q *TenantQueue) MarkTreated(patientID string) (*QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.byPatient[patientID]
	if !ok {
		return nil, ErrNotQueued
	}
	now := q.now()
	entry.Status = StatusTreated
	entry.TreatedAt = &now
	copied := *entry
	return &copied, nil
}

// SweepTreated removes treated entries whose grace period has elapsed and
// returns how many were removed.
func (q *TenantQueue) SweepTreated(grace time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-grace)
	var removed int
	for _, e := range q.snapshotLocked() {
		if e.Status == StatusTreated && e.TreatedAt != nil && e.TreatedAt.Before(cutoff) {
			q.removeLocked(e.PatientID)
			removed++
		}
	}
	return removed
}

// Snapshot returns a read-only ordered copy of the queue, optionally
// filtered, with wait estimates attached.
func (q *TenantQueue) Snapshot(filter SnapshotFilter) []*QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ahead int // waiting entries already passed, all in same-or-higher band
	result := make([]*QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		copied := *e
		if e.Status == StatusWaiting {
			copied.EstimatedWaitMinutes = baseWaitMinutes(e.Priority) + 10*(ahead/5)
			ahead++
		}
		if filter.Status != "" && copied.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && copied.Priority != filter.Priority {
			continue
		}
		result = append(result, &copied)
	}
	return result
}

// Stats summarises the partition.
func (q *TenantQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		TenantID:   q.tenantID,
		Total:      len(q.entries),
		ByPriority: make(map[risk.Priority]int),
		ByStatus:   make(map[Status]int),
	}
	now := q.now()
	var waiting int
	var sumWait float64
	for _, e := range q.entries {
		s.ByPriority[e.Priority]++
		s.ByStatus[e.Status]++
		if e.Status == StatusWaiting {
			wait := now.Sub(e.EnqueuedAt).Minutes()
			if wait < 0 {
				wait = 0
			}
			sumWait += wait
			if wait > s.MaxWaitMinutes {
				s.MaxWaitMinutes = wait
			}
			waiting++
		}
	}
	if waiting > 0 {
		s.AvgWaitMinutes = sumWait / float64(waiting)
	}
	return s
}

// Len reports the number of entries, including treated ones in grace.
func (q *TenantQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear empties the partition. Used by rebuild.
func (q *TenantQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
	q.byPatient = make(map[string]*QueueEntry)
}

// Verify re-checks the total-order invariant over the whole partition.
func (q *TenantQueue) Verify() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.verifyLocked()
}

// ---------------------------------------------------------------------------
// internals (caller holds q.mu)
// ---------------------------------------------------------------------------

func (q *TenantQueue) insertLocked(entry *QueueEntry) {
	pos := sort.Search(len(q.entries), func(i int) bool {
		return entryLess(entry, q.entries[i])
	})
	q.entries = append(q.entries, nil)
	copy(q.entries[pos+1:], q.entries[pos:])
	q.entries[pos] = entry
	q.byPatient[entry.PatientID] = entry

	if q.debugVerify {
		if err := q.verifyLocked(); err != nil {
			panic(err)
		}
	}
}

func (q *TenantQueue) removeLocked(patientID string) {
	entry, ok := q.byPatient[patientID]
	if !ok {
		return
	}
	for i, e := range q.entries {
		if e == entry {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.byPatient, patientID)
}

func (q *TenantQueue) snapshotLocked() []*QueueEntry {
	out := make([]*QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *TenantQueue) verifyLocked() error {
	seen := make(map[string]struct{}, len(q.entries))
	for i, e := range q.entries {
		if _, dup := seen[e.PatientID]; dup {
			return &OrderViolationError{TenantID: q.tenantID, Position: i}
		}
		seen[e.PatientID] = struct{}{}
		if i > 0 && entryLess(e, q.entries[i-1]) {
			return &OrderViolationError{TenantID: q.tenantID, Position: i}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Arena
// ---------------------------------------------------------------------------

// Arena holds one queue partition per tenant. Partitions are created on
// demand and never share locks, so unrelated tenants never serialize each
// other.
type Arena struct {
	mu          sync.RWMutex
	partitions  map[string]*TenantQueue
	logger      zerolog.Logger
	debugVerify bool
}

// NewArena creates an empty arena.
func NewArena(logger zerolog.Logger, debugVerify bool) *Arena {
	return &Arena{
		partitions:  make(map[string]*TenantQueue),
		logger:      logger,
		debugVerify: debugVerify,
	}
}

// Partition returns the tenant's queue, creating it if needed.
func (a *Arena) Partition(tenantID string) *TenantQueue {
	a.mu.RLock()
	q, ok := a.partitions[tenantID]
	a.mu.RUnlock()
	if ok {
		return q
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if q, ok = a.partitions[tenantID]; ok {
		return q
	}
	q = newTenantQueue(tenantID, a.logger, a.debugVerify)
	a.partitions[tenantID] = q
	return q
}

// Tenants lists tenants with a live partition.
func (a *Arena) Tenants() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.partitions))
	for t := range a.partitions {
		out = append(out, t)
	}
	return out
}

// SweepTreated sweeps every partition and returns the total removed.
func (a *Arena) SweepTreated(grace time.Duration) int {
	var total int
	for _, tenant := range a.Tenants() {
		total += a.Partition(tenant).SweepTreated(grace)
	}
	return total
}
