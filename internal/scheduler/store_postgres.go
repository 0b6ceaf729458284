package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
)

// Schema creates the batch run history table. Applied by EnsureSchema on
// startup; the statements are idempotent.
const Schema = `
	CREATE TABLE IF NOT EXISTS batch_runs (
		id           UUID PRIMARY KEY,
		scope        TEXT NOT NULL,
		state        TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		payload      JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_batch_runs_started_at
		ON batch_runs (started_at DESC);
`

// PostgresRunStore persists batch runs in PostgreSQL. The full run rides in
// a JSONB payload; the indexed columns exist for listing and operator
// queries.
type PostgresRunStore struct {
	db *sql.DB
}

// NewPostgresRunStore constructs a PostgreSQL-backed run store.
func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// EnsureSchema applies the batch run schema.
func (p *PostgresRunStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure batch run schema: %w", err)
	}
	return nil
}

// Create inserts a new run. An existing ID is a conflict.
func (p *PostgresRunStore) Create(ctx context.Context, run BatchRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode batch run: %w", err)
	}
	query := `
		INSERT INTO batch_runs (id, scope, state, started_at, completed_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := p.db.ExecContext(ctx, query,
		run.ID.String(), run.Scope.String(), string(run.State), run.StartedAt, run.CompletedAt, payload)
	if err != nil {
		return fmt.Errorf("create batch run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create batch run: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("batch run %s: %w", run.ID, sentinel.ErrConflict)
	}
	return nil
}

// Update replaces a stored run.
func (p *PostgresRunStore) Update(ctx context.Context, run BatchRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode batch run: %w", err)
	}
	query := `
		UPDATE batch_runs
		SET scope = $2, state = $3, started_at = $4, completed_at = $5, payload = $6
		WHERE id = $1
	`
	res, err := p.db.ExecContext(ctx, query,
		run.ID.String(), run.Scope.String(), string(run.State), run.StartedAt, run.CompletedAt, payload)
	if err != nil {
		return fmt.Errorf("update batch run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch run: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("batch run %s: %w", run.ID, sentinel.ErrNotFound)
	}
	return nil
}

// Get loads one run by ID.
func (p *PostgresRunStore) Get(ctx context.Context, id domain.BatchID) (BatchRun, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM batch_runs WHERE id = $1`, id.String()).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return BatchRun{}, fmt.Errorf("batch run %s: %w", id, sentinel.ErrNotFound)
		}
		return BatchRun{}, fmt.Errorf("get batch run: %w", err)
	}
	var run BatchRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return BatchRun{}, fmt.Errorf("decode batch run: %w", err)
	}
	return run, nil
}

// List returns the most recently started runs, newest first. A limit at or
// below zero returns everything.
func (p *PostgresRunStore) List(ctx context.Context, limit int) ([]BatchRun, error) {
	query := `SELECT payload FROM batch_runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	defer rows.Close()

	var runs []BatchRun
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan batch run: %w", err)
		}
		var run BatchRun
		if err := json.Unmarshal(payload, &run); err != nil {
			return nil, fmt.Errorf("decode batch run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	return runs, nil
}
