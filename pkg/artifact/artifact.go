// Package artifact persists trained classifiers together with the preprocessing
// parameters they were trained with.
package artifact

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hed1ad/netanomaly/internal/atomicfile"
	"github.com/hed1ad/netanomaly/pkg/detectors/cnn"
	"github.com/hed1ad/netanomaly/pkg/events"
	"github.com/hed1ad/netanomaly/pkg/features"
)

// formatVersion is bumped whenever the Artifact layout changes incompatibly.
const formatVersion = 1

// Artifact is the unit of cross-run state: a serialized network plus everything
// needed to feed it consistently.
type Artifact struct {
	Format int
	// ModelID identifies a model lineage. It is kept across retraining.
	ModelID string
	// Revision counts saves of this lineage.
	Revision  int
	CreatedAt time.Time
	UpdatedAt time.Time
	Shape     cnn.Shape
	Params    features.Params
	Training  Training
	Model     []byte
}

// Training summarizes the run that produced the current weights.
type Training struct {
	Rows        int
	Epochs      int
	BatchSize   int
	Loss        float64
	Accuracy    float64
	LabelSource string
	Duration    time.Duration
}

// New wraps a network and its parameters in a fresh artifact with a new model ID.
func New(net *cnn.Network, params features.Params, training Training) (*Artifact, error) {
	now := time.Now().UTC()
	a := &Artifact{
		Format:    formatVersion,
		ModelID:   uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Update(net, params, training); err != nil {
		return nil, err
	}
	return a, nil
}

// Update replaces the stored network, parameters and training summary.
func (a *Artifact) Update(net *cnn.Network, params features.Params, training Training) error {
	blob, err := net.Save()
	if err != nil {
		return fmt.Errorf("serialize model: %w", err)
	}
	a.Shape = net.InputShape()
	a.Params = params
	a.Training = training
	a.Model = blob
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Network decodes the stored network.
func (a *Artifact) Network(opts ...cnn.Option) (*cnn.Network, error) {
	net, err := cnn.Load(a.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("decode model %s: %v: %w", a.ModelID, err, events.ErrIO)
	}
	return net, nil
}

// Store reads and writes a single artifact file.
type Store struct {
	path string
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the artifact file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether an artifact file is present.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %v: %w", s.path, err, events.ErrIO)
	}
}

// Load reads and decodes the artifact.
func (s *Store) Load() (*Artifact, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", s.path, err, events.ErrIO)
	}

	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", s.path, err, events.ErrIO)
	}
	if a.Format != formatVersion {
		return nil, fmt.Errorf("%s: unsupported artifact format %d: %w", s.path, a.Format, events.ErrIO)
	}

	return &a, nil
}

// Save bumps the revision and atomically replaces the artifact file. The parent
// directory is created if missing.
func (s *Store) Save(a *Artifact) (atomicfile.Result, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return atomicfile.Result{}, fmt.Errorf("create %s: %v: %w", filepath.Dir(s.path), err, events.ErrResource)
	}

	a.Revision++
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		a.Revision--
		return atomicfile.Result{}, fmt.Errorf("encode artifact: %v: %w", err, events.ErrResource)
	}

	res, err := atomicfile.WriteBytes(s.path, buf.Bytes(), 0o644)
	if err != nil {
		a.Revision--
		return atomicfile.Result{}, fmt.Errorf("save %s: %v: %w", s.path, err, events.ErrResource)
	}
	return res, nil
}
