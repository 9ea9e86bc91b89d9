package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

// AuditRepository persists answer audit records consumed from the queue.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS audit_records (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	found BOOLEAN NOT NULL,
	confidence TEXT NOT NULL,
	action TEXT NOT NULL,
	chunks_used INT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_records_created_at ON audit_records(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_records_confidence ON audit_records(confidence);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Insert is idempotent on record id so queue redeliveries never produce
// duplicate rows.
func (r *AuditRepository) Insert(ctx context.Context, record domain.AuditRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_records (
	id, question, found, confidence, action, chunks_used, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING
`,
		record.ID, record.Question, record.Found, string(record.Confidence), string(record.Action),
		record.ChunksUsed, record.DurationMs, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// RecentRefusals lists the latest low-confidence refusals for review.
func (r *AuditRepository) RecentRefusals(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, question, found, confidence, action, chunks_used, duration_ms, created_at
FROM audit_records
WHERE found = FALSE
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query refusals: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var record domain.AuditRecord
		var confidence, action string
		if err := rows.Scan(
			&record.ID, &record.Question, &record.Found, &confidence, &action,
			&record.ChunksUsed, &record.DurationMs, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		record.Confidence = domain.ConfidenceTier(confidence)
		record.Action = domain.ActionTag(action)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
