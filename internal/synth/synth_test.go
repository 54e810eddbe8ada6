package synth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/netanomaly/pkg/features"
)

func TestRecordsAreValidAndOrdered(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := New(WithSeed(1)).Records(500, start)
	require.Len(t, records, 500)

	var prev time.Time
	for i, r := range records {
		require.NoError(t, r.Validate(i))
		require.NotNil(t, r.Label)

		ts, err := features.ParseTimestamp(*r.Timestamp)
		require.NoError(t, err)
		assert.False(t, ts.Before(prev), "record %d goes back in time", i)
		prev = ts
	}

	frame, err := features.FitTransform(records)
	require.NoError(t, err)
	assert.Equal(t, 500, frame.Len())
}

func TestAnomalyRate(t *testing.T) {
	count := func(g *Generator) (anomalies int) {
		for _, r := range g.Records(1000, time.Now()) {
			if *r.Label == 1 {
				anomalies++
				assert.GreaterOrEqual(t, *r.Length, 6000.0)
			} else {
				assert.LessOrEqual(t, *r.Length, 1500.0)
			}
		}
		return anomalies
	}

	assert.Zero(t, count(New(WithAnomalyRate(0))))
	assert.Equal(t, 1000, count(New(WithAnomalyRate(2))))

	n := count(New(WithSeed(3), WithAnomalyRate(0.2)))
	assert.InDelta(t, 200, n, 60)
}

func TestDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := New(WithSeed(9)).Records(50, start)
	b := New(WithSeed(9)).Records(50, start)
	assert.Equal(t, a, b)
}
