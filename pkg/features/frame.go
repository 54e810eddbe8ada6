package features

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hed1ad/netanomaly/pkg/events"
)

// Columns names the feature columns in matrix order.
var Columns = []string{"timestamp", "length", "protocol"}

// timestampLayouts are tried in order when parsing record timestamps.
// Layouts without a zone are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamps must fit in int64 nanoseconds since the epoch (1677-09-21 to 2262-04-11).
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// Frame is the preprocessed form of a record batch, one row per record in input order.
type Frame struct {
	// Timestamp is epoch seconds.
	Timestamp []float64
	// Length is min-max scaled.
	Length []float64
	// Protocol holds label-encoded protocol codes.
	Protocol []float64
	// Params are the parameters the frame was built with.
	Params Params
}

// Preprocess converts records into a Frame using params. It fails on the first
// record with a missing field, an unparseable timestamp or an unknown protocol.
func Preprocess(records []events.Record, params Params) (*Frame, error) {
	if err := validate(records); err != nil {
		return nil, err
	}
	if params.IsZero() {
		return nil, fmt.Errorf("preprocess: parameters not fitted: %w", events.ErrSchema)
	}

	f := &Frame{
		Timestamp: make([]float64, len(records)),
		Length:    make([]float64, len(records)),
		Protocol:  make([]float64, len(records)),
		Params:    params,
	}

	for i, r := range records {
		ts, err := ParseTimestamp(*r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		code, ok := params.Code(*r.Protocol)
		if !ok {
			return nil, fmt.Errorf("record %d: unknown protocol %q: %w", i, *r.Protocol, events.ErrSchema)
		}

		f.Timestamp[i] = EpochSeconds(ts)
		f.Length[i] = params.ScaleLength(*r.Length)
		f.Protocol[i] = float64(code)
	}

	return f, nil
}

// FitTransform fits fresh parameters on records and preprocesses them.
func FitTransform(records []events.Record) (*Frame, error) {
	params, err := Fit(records)
	if err != nil {
		return nil, err
	}
	return Preprocess(records, params)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Timestamp)
}

// Matrix returns the rows as [timestamp, length, protocol] vectors. The result is
// a fresh copy; each row doubles as a (3, 1) single-channel sequence.
func (f *Frame) Matrix() [][]float64 {
	rows := make([][]float64, f.Len())
	for i := range rows {
		rows[i] = []float64{f.Timestamp[i], f.Length[i], f.Protocol[i]}
	}
	return rows
}

// ParseTimestamp parses an ISO-8601 style timestamp. Instants outside the
// int64 nanosecond range are rejected.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Before(minTimestamp) || t.After(maxTimestamp) {
			return time.Time{}, fmt.Errorf("timestamp %q out of range: %w", s, events.ErrSchema)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", s, events.ErrSchema)
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
