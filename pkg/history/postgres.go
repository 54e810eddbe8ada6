package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const createTable = `
CREATE TABLE IF NOT EXISTS training_runs (
	run_id          TEXT PRIMARY KEY,
	model_id        TEXT NOT NULL,
	revision        INTEGER NOT NULL,
	mode            TEXT NOT NULL,
	artifact_path   TEXT NOT NULL,
	artifact_sha256 TEXT NOT NULL,
	artifact_bytes  BIGINT NOT NULL,
	rows            INTEGER NOT NULL,
	epochs          INTEGER NOT NULL,
	loss            DOUBLE PRECISION NOT NULL,
	accuracy        DOUBLE PRECISION NOT NULL,
	label_source    TEXT NOT NULL,
	params_version  INTEGER NOT NULL,
	vocabulary      TEXT[] NOT NULL,
	duration_ms     BIGINT NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
)`

const insertRun = `
INSERT INTO training_runs (
	run_id, model_id, revision, mode, artifact_path, artifact_sha256, artifact_bytes,
	rows, epochs, loss, accuracy, label_source, params_version, vocabulary,
	duration_ms, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (run_id) DO NOTHING`

// Postgres appends run summaries to the training_runs table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to dsn and makes sure the table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create training_runs: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Record implements Recorder.
func (p *Postgres) Record(ctx context.Context, run Run) error {
	vocabulary := run.Vocabulary
	if vocabulary == nil {
		vocabulary = []string{}
	}

	_, err := p.db.ExecContext(ctx, insertRun,
		run.RunID, run.ModelID, run.Revision, run.Mode, run.ArtifactPath, run.ArtifactSHA256, run.ArtifactBytes,
		run.Rows, run.Epochs, run.Loss, run.Accuracy, run.LabelSource, run.ParamsVersion, pq.Array(vocabulary),
		run.Duration.Milliseconds(), run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// Close implements Recorder.
func (p *Postgres) Close() error {
	return p.db.Close()
}
