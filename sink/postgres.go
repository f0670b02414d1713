package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/goldfish-inc/discoeval"
)

const pgSchema = "discoeval"

// OpenPostgres opens and pings a connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// Postgres bulk-loads splits into discoeval.examples with COPY. Every split
// is loaded in its own transaction, so concurrent splits do not block each
// other and a failed split leaves no partial rows.
type Postgres struct {
	db    *sql.DB
	runID uuid.UUID
	log   *zap.Logger
}

func NewPostgres(db *sql.DB, runID uuid.UUID, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, runID: runID, log: logger}
}

// RunID tags every row written by this loader.
func (p *Postgres) RunID() uuid.UUID { return p.runID }

// EnsureSchema creates the schema and tables if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgSchema,
		`CREATE TABLE IF NOT EXISTS ` + pgSchema + `.load_runs (
			run_id UUID NOT NULL,
			task TEXT NOT NULL,
			split TEXT NOT NULL,
			examples INTEGER NOT NULL,
			loaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, task, split)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + pgSchema + `.examples (
			run_id UUID NOT NULL,
			task TEXT NOT NULL,
			split TEXT NOT NULL,
			key INTEGER NOT NULL,
			fields JSONB NOT NULL,
			label TEXT NOT NULL,
			label_id INTEGER NOT NULL,
			PRIMARY KEY (run_id, task, split, key)
		)`,
	}
	for _, q := range queries {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, r *discoeval.Reader, split discoeval.Split) (int, error) {
	task := r.Task()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(pgSchema, "examples",
		"run_id", "task", "split", "key", "fields", "label", "label_id",
	))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	defer stmt.Close()

	n := 0
	for r.Next() {
		row, err := exampleRow(p.runID, task.Name, split, r.Example())
		if err != nil {
			return n, err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, fmt.Errorf("failed to copy example %d: %w", r.Example().Key, err)
		}
		n++
	}
	if err := r.Err(); err != nil {
		return n, err
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return n, fmt.Errorf("failed to execute bulk insert: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return n, fmt.Errorf("failed to close copy: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+pgSchema+`.load_runs (run_id, task, split, examples) VALUES ($1, $2, $3, $4)`,
		p.runID.String(), task.Name, string(split), n,
	); err != nil {
		return n, fmt.Errorf("failed to record load run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("failed to commit transaction: %w", err)
	}

	p.log.Info("split stored",
		zap.String("run_id", p.runID.String()),
		zap.String("task", task.Name),
		zap.String("split", string(split)),
		zap.Int("examples", n))
	return n, nil
}

// exampleRow builds the COPY values for one example. Text fields are stored
// as a JSON object keyed by field name.
func exampleRow(runID uuid.UUID, task string, split discoeval.Split, ex discoeval.Example) ([]any, error) {
	fields := make(map[string]any, len(ex.Fields))
	for i, f := range ex.Fields {
		fields[ex.Names[i]] = f.Value()
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields of example %d: %w", ex.Key, err)
	}
	return []any{runID.String(), task, string(split), ex.Key, string(raw), ex.Label, ex.LabelID}, nil
}
