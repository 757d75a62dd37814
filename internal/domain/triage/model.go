// Package triage owns the per-tenant priority queue: ordered patient
// entries, status transitions, wait estimation, and queue statistics. Each
// tenant's partition is guarded by its own mutex; there is no global lock.
package triage

import (
	"time"

	"github.com/medassist/triage/internal/domain/risk"
)

// Status is the treatment state of a queue entry.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusInTreatment Status = "in_treatment"
	StatusTreated     Status = "treated"
)

// TreatedGracePeriod is how long a treated entry is retained before physical
// removal, so late-arriving change events can still be attributed to it.
const TreatedGracePeriod = 5 * time.Minute

// QueueEntry is one patient's position in a tenant's queue. It is owned
// exclusively by the queue partition and mutated only through queue
// operations.
type QueueEntry struct {
	PatientID    string          `json:"patient_id"`
	TenantID     string          `json:"tenant_id"`
	Assessment   risk.Assessment `json:"risk_assessment"`
	Priority     risk.Priority   `json:"priority"`
	UrgencyScore int             `json:"urgency_score"`
	Status       Status          `json:"status"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	TreatedAt    *time.Time      `json:"treated_at,omitempty"`

	// EstimatedWaitMinutes is advisory display data derived at read time,
	// never a scheduling guarantee.
	EstimatedWaitMinutes int `json:"estimated_wait_minutes"`
}

// SnapshotFilter narrows a queue snapshot. Zero values mean no filtering.
type SnapshotFilter struct {
	Status   Status
	Priority risk.Priority
}

// Stats summarises one tenant's queue.
type Stats struct {
	TenantID       string                `json:"tenant_id"`
	Total          int                   `json:"total"`
	ByPriority     map[risk.Priority]int `json:"by_priority"`
	ByStatus       map[Status]int        `json:"by_status"`
	AvgWaitMinutes float64               `json:"avg_wait_minutes"`
	MaxWaitMinutes float64               `json:"max_wait_minutes"`
}

// Base wait minutes per priority band; plus 10 minutes for every 5 patients
// strictly ahead in the same or higher band.
func baseWaitMinutes(p risk.Priority) int {
	switch p {
	case risk.PriorityCritical:
		return 0
	case risk.PriorityHigh:
		return 15
	default:
		return 45
	}
}

// entryLess is the total order over queue entries: priority rank, then
// urgency score descending, then arrival time, then patient id as the final
// stable tiebreak.
func entryLess(a, b *QueueEntry) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() < b.Priority.Rank()
	}
	if a.UrgencyScore != b.UrgencyScore {
		return a.UrgencyScore > b.UrgencyScore
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.PatientID < b.PatientID
}
