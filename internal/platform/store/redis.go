package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/medassist/triage/internal/domain/risk"
)

// assessmentTTL bounds staleness if an invalidation is ever missed.
const assessmentTTL = 30 * time.Minute

// AssessmentCache is a Redis read-through cache in front of an
// AssessmentStore. The hot path reads the previous assessment on every
// recomputation; caching it keeps the scheduler off the database between
// changes.
type AssessmentCache struct {
	inner AssessmentStore
	rdb   *redis.Client
}

// NewAssessmentCache wraps inner with a Redis cache.
func NewAssessmentCache(inner AssessmentStore, rdb *redis.Client) *AssessmentCache {
	return &AssessmentCache{inner: inner, rdb: rdb}
}

func assessmentKey(tenantID, patientID string) string {
	return fmt.Sprintf("triage:assessment:%s:%s", tenantID, patientID)
}

// GetPreviousAssessment implements AssessmentStore. Cache errors degrade to
// the backing store; they never fail the read.
func (c *AssessmentCache) GetPreviousAssessment(ctx context.Context, tenantID, patientID string) (*risk.Assessment, error) {
	// A miss, a cache failure, or an undecodable entry all degrade to the
	// backing store.
	raw, err := c.rdb.Get(ctx, assessmentKey(tenantID, patientID)).Bytes()
	if err == nil {
		var a risk.Assessment
		if jerr := json.Unmarshal(raw, &a); jerr == nil {
			return &a, nil
		}
	}

	a, err := c.inner.GetPreviousAssessment(ctx, tenantID, patientID)
	if err != nil || a == nil {
		return a, err
	}
	if raw, jerr := json.Marshal(a); jerr == nil {
		c.rdb.Set(ctx, assessmentKey(tenantID, patientID), raw, assessmentTTL)
	}
	return a, nil
}

// PersistAssessment implements AssessmentStore with write-through caching.
func (c *AssessmentCache) PersistAssessment(ctx context.Context, tenantID, patientID string, a risk.Assessment) error {
	if err := c.inner.PersistAssessment(ctx, tenantID, patientID, a); err != nil {
		return err
	}
	if raw, jerr := json.Marshal(a); jerr == nil {
		c.rdb.Set(ctx, assessmentKey(tenantID, patientID), raw, assessmentTTL)
	}
	return nil
}

// ListAssessments implements AssessmentStore. Rebuild is rare and wants the
// authoritative view, so it always goes to the backing store.
func (c *AssessmentCache) ListAssessments(ctx context.Context, tenantID string) (map[string]risk.Assessment, error) {
	return c.inner.ListAssessments(ctx, tenantID)
}
