// Package features turns event records into the numeric feature matrix fed to classifiers.
//
// Normalization state lives in an explicit Params value rather than in package
// globals. The same Params must be used for training and for inference, so it is
// persisted alongside the model.
package features

import (
	"fmt"
	"math"
	"slices"

	"github.com/hed1ad/netanomaly/pkg/events"
)

// Params holds the fitted preprocessing parameters.
type Params struct {
	// Version increases every time the parameters change.
	Version int
	// LengthMin and LengthMax are the min-max scaler bounds for the length column.
	LengthMin float64
	LengthMax float64
	// Vocabulary maps protocol strings to codes by position.
	Vocabulary []string
}

// Fit builds fresh parameters from records. Protocol codes follow order of first appearance.
func Fit(records []events.Record) (Params, error) {
	if err := validate(records); err != nil {
		return Params{}, err
	}

	p := Params{
		Version:   1,
		LengthMin: math.Inf(1),
		LengthMax: math.Inf(-1),
	}
	p.absorb(records)

	return p, nil
}

// Refit returns parameters widened to cover records. Existing protocol codes are
// kept and unseen protocols are appended, so a model trained on the previous
// parameters still sees the same code for the same protocol.
// The receiver is not modified. The version only increases when something changed.
func (p Params) Refit(records []events.Record) (Params, error) {
	if err := validate(records); err != nil {
		return Params{}, err
	}
	if p.IsZero() {
		return Fit(records)
	}

	next := Params{
		Version:    p.Version,
		LengthMin:  p.LengthMin,
		LengthMax:  p.LengthMax,
		Vocabulary: slices.Clone(p.Vocabulary),
	}
	next.absorb(records)
	if !next.Equal(p) {
		next.Version++
	}

	return next, nil
}

// IsZero reports whether the parameters were never fitted.
func (p Params) IsZero() bool {
	return p.Version == 0
}

// Equal reports whether two parameter sets normalize identically.
func (p Params) Equal(o Params) bool {
	return p.LengthMin == o.LengthMin &&
		p.LengthMax == o.LengthMax &&
		slices.Equal(p.Vocabulary, o.Vocabulary)
}

// Code returns the integer code of protocol.
func (p Params) Code(protocol string) (int, bool) {
	i := slices.Index(p.Vocabulary, protocol)
	return i, i >= 0
}

// ScaleLength applies the min-max scaler. A degenerate range maps everything to 0.
func (p Params) ScaleLength(v float64) float64 {
	span := p.LengthMax - p.LengthMin
	if span == 0 {
		return 0
	}
	return (v - p.LengthMin) / span
}

// String implements fmt.Stringer.
func (p Params) String() string {
	return fmt.Sprintf("v%d length=[%g,%g] protocols=%v", p.Version, p.LengthMin, p.LengthMax, p.Vocabulary)
}

func (p *Params) absorb(records []events.Record) {
	for _, r := range records {
		p.LengthMin = math.Min(p.LengthMin, *r.Length)
		p.LengthMax = math.Max(p.LengthMax, *r.Length)
		if !slices.Contains(p.Vocabulary, *r.Protocol) {
			p.Vocabulary = append(p.Vocabulary, *r.Protocol)
		}
	}
}

func validate(records []events.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records: %w", events.ErrShape)
	}
	for i, r := range records {
		if err := r.Validate(i); err != nil {
			return err
		}
	}
	return nil
}
