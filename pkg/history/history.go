// Package history records a summary of every training run to external stores.
package history

import (
	"context"
	"errors"
	"time"
)

// Run summarizes one completed training run.
type Run struct {
	RunID          string        `json:"run_id"`
	ModelID        string        `json:"model_id"`
	Revision       int           `json:"revision"`
	Mode           string        `json:"mode"`
	ArtifactPath   string        `json:"artifact_path"`
	ArtifactSHA256 string        `json:"artifact_sha256"`
	ArtifactBytes  int64         `json:"artifact_bytes"`
	Rows           int           `json:"rows"`
	Epochs         int           `json:"epochs"`
	Loss           float64       `json:"loss"`
	Accuracy       float64       `json:"accuracy"`
	LabelSource    string        `json:"label_source"`
	ParamsVersion  int           `json:"params_version"`
	Vocabulary     []string      `json:"vocabulary"`
	Duration       time.Duration `json:"duration_ns"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Recorder stores run summaries.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Close() error
}

// Nop discards every run.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Run) error { return nil }

// Close implements Recorder.
func (Nop) Close() error { return nil }

// Multi fans a run out to several recorders. Every recorder is tried; the
// errors are joined.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, run Run) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Recorder.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds a recorder from the configured backends. Empty settings are
// skipped; with none configured the result is Nop.
func Open(ctx context.Context, redisURL, postgresDSN string) (Recorder, error) {
	var m Multi

	if redisURL != "" {
		r, err := NewRedis(ctx, redisURL)
		if err != nil {
			return nil, err
		}
		m = append(m, r)
	}
	if postgresDSN != "" {
		p, err := NewPostgres(ctx, postgresDSN)
		if err != nil {
			m.Close()
			return nil, err
		}
		m = append(m, p)
	}

	if len(m) == 0 {
		return Nop{}, nil
	}
	return m, nil
}
