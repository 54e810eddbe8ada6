// Package synth generates synthetic network event records for demos and for
// feeding the data directory without capture privileges.
package synth

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/hed1ad/netanomaly/pkg/events"
)

// Generator produces labelled records: mostly normal traffic with a fraction
// of anomalous bursts (oversized packets on unusual ports).
type Generator struct {
	rng         *rand.Rand
	anomalyRate float64
	spacing     time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed sets the random seed.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// WithAnomalyRate sets the fraction of anomalous records, clamped to [0, 1].
func WithAnomalyRate(rate float64) Option {
	return func(g *Generator) {
		g.anomalyRate = math.Max(0, math.Min(1, rate))
	}
}

// WithSpacing sets the mean gap between consecutive record timestamps.
func WithSpacing(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.spacing = d
		}
	}
}

// New creates a generator. Defaults: seed 42, 2% anomalies, 10ms spacing.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:         rand.New(rand.NewSource(42)),
		anomalyRate: 0.02,
		spacing:     10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Records returns n records with timestamps starting at start.
func (g *Generator) Records(n int, start time.Time) []events.Record {
	records := make([]events.Record, n)
	ts := start.UTC()
	for i := range records {
		if g.rng.Float64() < g.anomalyRate {
			records[i] = g.anomalous(ts)
		} else {
			records[i] = g.normal(ts)
		}
		ts = ts.Add(time.Duration(g.rng.ExpFloat64() * float64(g.spacing)))
	}
	return records
}

var wellKnownPorts = []uint16{22, 53, 80, 443, 8080}

func (g *Generator) normal(ts time.Time) events.Record {
	var protocol string
	switch p := g.rng.Float64(); {
	case p < 0.70:
		protocol = "TCP"
	case p < 0.95:
		protocol = "UDP"
	default:
		protocol = "ICMP"
	}

	length := math.Round(math.Max(60, math.Min(1500, 600+200*g.rng.NormFloat64())))
	rec := events.NewRecord(ts.Format(time.RFC3339Nano), length, protocol)
	rec.SourceIP = fmt.Sprintf("192.168.1.%d", 1+g.rng.Intn(254))
	rec.DestinationIP = fmt.Sprintf("10.0.0.%d", 1+g.rng.Intn(254))
	if protocol != "ICMP" {
		rec.SourcePort = uint16(49152 + g.rng.Intn(16384))
		rec.DestinationPort = wellKnownPorts[g.rng.Intn(len(wellKnownPorts))]
	}
	label := 0.0
	rec.Label = &label
	return rec
}

func (g *Generator) anomalous(ts time.Time) events.Record {
	protocol := "UDP"
	if g.rng.Intn(2) == 0 {
		protocol = "TCP"
	}

	length := math.Round(6000 + 3000*g.rng.Float64())
	rec := events.NewRecord(ts.Format(time.RFC3339Nano), length, protocol)
	rec.SourceIP = fmt.Sprintf("203.0.113.%d", 1+g.rng.Intn(254))
	rec.DestinationIP = fmt.Sprintf("10.0.0.%d", 1+g.rng.Intn(254))
	rec.SourcePort = uint16(1024 + g.rng.Intn(1024))
	rec.DestinationPort = uint16(30000 + g.rng.Intn(5000))
	label := 1.0
	rec.Label = &label
	return rec
}
