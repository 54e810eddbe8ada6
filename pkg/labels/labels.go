// Package labels provides training-label sources for the anomaly classifier.
//
// Network events carry no ground truth, so where labels come from is an explicit
// choice: placeholder random labels, a label field present in the records, or
// pseudo labels from an unsupervised Isolation Forest.
package labels

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/hed1ad/netanomaly/pkg/detectors/iforest"
	"github.com/hed1ad/netanomaly/pkg/events"
	"github.com/hed1ad/netanomaly/pkg/features"
)

// Source produces one label in {0, 1} per frame row.
type Source interface {
	Labels(records []events.Record, frame *features.Frame) ([]float64, error)
	Name() string
}

// Names of the built-in sources.
const (
	RandomName  = "random"
	FieldName   = "field"
	IForestName = "iforest"
)

// Config selects and parameterizes a built-in source.
type Config struct {
	Source        string
	Seed          int64
	Contamination float64
}

// New returns the source named by cfg.Source.
func New(cfg Config) (Source, error) {
	switch strings.ToLower(cfg.Source) {
	case "", RandomName:
		return NewRandom(cfg.Seed), nil
	case FieldName:
		return Field{}, nil
	case IForestName:
		return NewIForest(cfg.Contamination, cfg.Seed), nil
	default:
		return nil, fmt.Errorf("unknown label source %q", cfg.Source)
	}
}

// Random draws each label independently and uniformly from {0, 1}.
// It carries no supervision signal and exists so the pipeline can run end to end.
type Random struct {
	rng *rand.Rand
}

// NewRandom creates a seeded random label source.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Labels implements Source.
func (r *Random) Labels(_ []events.Record, frame *features.Frame) ([]float64, error) {
	out := make([]float64, frame.Len())
	for i := range out {
		out[i] = float64(r.rng.Intn(2))
	}
	return out, nil
}

// Name implements Source.
func (r *Random) Name() string { return RandomName }

// Field reads the label field of each record.
type Field struct{}

// Labels implements Source. A record without a label, or with a label outside
// {0, 1}, is a schema error.
func (Field) Labels(records []events.Record, frame *features.Frame) ([]float64, error) {
	if len(records) != frame.Len() {
		return nil, fmt.Errorf("%d records for %d rows: %w", len(records), frame.Len(), events.ErrShape)
	}

	out := make([]float64, len(records))
	for i, r := range records {
		if r.Label == nil {
			return nil, fmt.Errorf("record %d: missing field \"label\": %w", i, events.ErrSchema)
		}
		if *r.Label != 0 && *r.Label != 1 {
			return nil, fmt.Errorf("record %d: label must be 0 or 1, got %g: %w", i, *r.Label, events.ErrSchema)
		}
		out[i] = *r.Label
	}
	return out, nil
}

// Name implements Source.
func (Field) Name() string { return FieldName }

// IForest labels the rows an Isolation Forest scores in the top contamination fraction.
type IForest struct {
	contamination float64
	seed          int64
}

// NewIForest creates an Isolation Forest label source. A non-positive
// contamination falls back to 0.1.
func NewIForest(contamination float64, seed int64) *IForest {
	if contamination <= 0 {
		contamination = 0.1
	}
	return &IForest{contamination: contamination, seed: seed}
}

// Labels implements Source.
func (s *IForest) Labels(_ []events.Record, frame *features.Frame) ([]float64, error) {
	data := frame.Matrix()
	forest := iforest.New(
		iforest.WithContamination(s.contamination),
		iforest.WithSeed(s.seed),
	)
	if err := forest.Fit(data); err != nil {
		return nil, fmt.Errorf("iforest labels: %w", err)
	}
	return forest.Labels(data)
}

// Name implements Source.
func (s *IForest) Name() string { return IForestName }
