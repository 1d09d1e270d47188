package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Ensure *PostgresRepository implements Repository at compile time.
var _ Repository = (*PostgresRepository)(nil)

// Schema creates the workflow tables if they do not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS workflow (
  id            TEXT PRIMARY KEY,
  status        TEXT NOT NULL,
  current_step  INTEGER NOT NULL,
  created_date  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS workflow_step_status (
  id                BIGSERIAL PRIMARY KEY,
  step              INTEGER NOT NULL,
  workflow_id       TEXT NOT NULL REFERENCES workflow(id),
  status_comment    TEXT NOT NULL,
  update_date_time  TIMESTAMPTZ NOT NULL,
  status            TEXT NOT NULL
);`

const (
	sqlCreate = `
INSERT INTO workflow (id, status, current_step, created_date)
VALUES ($1, $2, $3, $4);`

	sqlGet = `
SELECT id, status, current_step, created_date
FROM workflow
WHERE id = $1;`

	sqlUpdateStatus = `UPDATE workflow SET current_step = $1, status = $2 WHERE id = $3;`

	sqlLogStep = `
INSERT INTO workflow_step_status (step, workflow_id, status_comment, update_date_time, status)
VALUES ($1, $2, $3, $4, $5);`

	sqlSteps = `
SELECT workflow_id, step, status_comment, status, update_date_time
FROM workflow_step_status
WHERE workflow_id = $1
ORDER BY id;`
)

// PostgresConfig holds the connection settings for the workflow database.
type PostgresConfig struct {
	DatabaseURL    string
	ConnectTimeout time.Duration
}

// LoadPostgresConfigFromEnv reads WORKFLOW_DATABASE_URL. An empty URL means no
// database is configured.
func LoadPostgresConfigFromEnv() *PostgresConfig {
	cfg := &PostgresConfig{
		DatabaseURL:    os.Getenv("WORKFLOW_DATABASE_URL"),
		ConnectTimeout: 10 * time.Second,
	}
	if v := os.Getenv("WORKFLOW_DATABASE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ConnectTimeout = d
		}
	}
	return cfg
}

// NewPool connects a pgx pool and pings the database before returning it.
func NewPool(ctx context.Context, cfg *PostgresConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("workflow database url is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	logger.Info().Msg("Connected to workflow database.")
	return pool, nil
}

// PostgresRepository is a Repository backed by the workflow and
// workflow_step_status tables.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRepository creates a repository over an existing pool. The pool's
// lifecycle stays with the caller.
func NewPostgresRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		logger: logger.With().Str("component", "PostgresRepository").Logger(),
	}
}

// EnsureSchema applies Schema.
func (p *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply workflow schema: %w", err)
	}
	return nil
}

func (p *PostgresRepository) Create(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, sqlCreate, rec.ID, string(rec.Status), rec.CurrentStep, rec.CreatedDate.UTC())
	if err != nil {
		p.logger.Error().Err(err).Str("workflow_id", rec.ID).Msg("Failed to insert workflow record.")
		return fmt.Errorf("insert workflow %s: %w", rec.ID, err)
	}
	p.logger.Info().Str("workflow_id", rec.ID).Str("status", string(rec.Status)).Int("current_step", rec.CurrentStep).Msg("Workflow record created.")
	return nil
}

func (p *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	var status string
	err := p.pool.QueryRow(ctx, sqlGet, id).Scan(&rec.ID, &status, &rec.CurrentStep, &rec.CreatedDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return Record{}, fmt.Errorf("get workflow %s: %w", id, err)
	}
	rec.Status = Status(status)
	return rec, nil
}

func (p *PostgresRepository) UpdateStatus(ctx context.Context, id string, step int, status Status) error {
	tag, err := p.pool.Exec(ctx, sqlUpdateStatus, step, string(status), id)
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	p.logger.Info().Str("workflow_id", id).Int("current_step", step).Str("status", string(status)).Msg("Workflow status updated.")
	return nil
}

func (p *PostgresRepository) LogStep(ctx context.Context, entry StepStatus) error {
	_, err := p.pool.Exec(ctx, sqlLogStep, entry.Step, entry.WorkflowID, entry.Comment, entry.UpdatedAt.UTC(), string(entry.Status))
	if err != nil {
		return fmt.Errorf("log step %d of workflow %s: %w", entry.Step, entry.WorkflowID, err)
	}
	return nil
}

func (p *PostgresRepository) Steps(ctx context.Context, id string) ([]StepStatus, error) {
	rows, err := p.pool.Query(ctx, sqlSteps, id)
	if err != nil {
		return nil, fmt.Errorf("query steps of workflow %s: %w", id, err)
	}
	defer rows.Close()

	var out []StepStatus
	for rows.Next() {
		var s StepStatus
		var status string
		if err := rows.Scan(&s.WorkflowID, &s.Step, &s.Comment, &status, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = Status(status)
		out = append(out, s)
	}
	return out, rows.Err()
}
