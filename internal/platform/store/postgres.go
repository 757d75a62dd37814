package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medassist/triage/internal/domain/risk"
)

// Postgres persists snapshots, assessments, and the notification audit trail
// in Postgres. Clinical documents are stored as JSONB; the engine only ever
// reads and writes whole documents, so no columnar decomposition is needed.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Schema creates the engine's tables when they do not exist.
func (s *Postgres) Schema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS patient_snapshot (
			tenant_id  TEXT NOT NULL,
			patient_id TEXT NOT NULL,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, patient_id)
		);
		CREATE TABLE IF NOT EXISTS risk_assessment (
			tenant_id  TEXT NOT NULL,
			patient_id TEXT NOT NULL,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, patient_id)
		);
		CREATE TABLE IF NOT EXISTS notification_log (
			id         BIGSERIAL PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			patient_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			payload    JSONB NOT NULL,
			logged_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_notification_log_patient
			ON notification_log (tenant_id, patient_id, logged_at DESC);
	`)
	return err
}

// GetPatientSnapshot implements SnapshotStore.
func (s *Postgres) GetPatientSnapshot(ctx context.Context, tenantID, patientID string) (*risk.PatientSnapshot, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM patient_snapshot WHERE tenant_id = $1 AND patient_id = $2`,
		tenantID, patientID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient snapshot: %w", err)
	}
	var snapshot risk.PatientSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode patient snapshot: %w", err)
	}
	return &snapshot, nil
}

// PutPatientSnapshot stores or replaces a patient's committed state.
func (s *Postgres) PutPatientSnapshot(ctx context.Context, snapshot risk.PatientSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode patient snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO patient_snapshot (tenant_id, patient_id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, patient_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		snapshot.TenantID, snapshot.PatientID, raw,
	)
	return err
}

// GetPreviousAssessment implements AssessmentStore.
func (s *Postgres) GetPreviousAssessment(ctx context.Context, tenantID, patientID string) (*risk.Assessment, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM risk_assessment WHERE tenant_id = $1 AND patient_id = $2`,
		tenantID, patientID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get previous assessment: %w", err)
	}
	var a risk.Assessment
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	return &a, nil
}

// PersistAssessment implements AssessmentStore.
func (s *Postgres) PersistAssessment(ctx context.Context, tenantID, patientID string, a risk.Assessment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO risk_assessment (tenant_id, patient_id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, patient_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		tenantID, patientID, raw,
	)
	return err
}

// ListAssessments implements AssessmentStore.
func (s *Postgres) ListAssessments(ctx context.Context, tenantID string) (map[string]risk.Assessment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT patient_id, data FROM risk_assessment WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]risk.Assessment)
	for rows.Next() {
		var patientID string
		var raw []byte
		if err := rows.Scan(&patientID, &raw); err != nil {
			return nil, err
		}
		var a risk.Assessment
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode assessment for %s: %w", patientID, err)
		}
		out[patientID] = a
	}
	return out, rows.Err()
}

// LogNotification implements NotificationLog.
func (s *Postgres) LogNotification(ctx context.Context, tenantID, patientID, kind string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notification_log (tenant_id, patient_id, kind, payload)
		VALUES ($1, $2, $3, $4)`,
		tenantID, patientID, kind, raw,
	)
	return err
}
