package hdrhistogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAtPercentileOnEmptyHistogram(t *testing.T) {
	t.Parallel()
	h := newScenarioA(t)
	assert.EqualValues(t, 0, h.ValueAtPercentile(50))
}

func TestValueAtPercentileZeroReturnsMinNonZero(t *testing.T) {
	t.Parallel()
	h := newScenarioA(t)
	require.NoError(t, h.RecordValue(100))
	require.NoError(t, h.RecordValue(200))
	assert.EqualValues(t, h.LowestEquivalentValue(100), h.ValueAtPercentile(0))
}

func TestValueAtPercentileHundredReturnsMax(t *testing.T) {
	t.Parallel()
	h := newScenarioA(t)
	for _, v := range []int64{100, 200, 300, 400, 500} {
		require.NoError(t, h.RecordValue(v))
	}
	assert.Equal(t, h.HighestEquivalentValue(500), h.ValueAtPercentile(100))
}

func TestValueAtPercentilesMatchesPerCallResults(t *testing.T) {
	t.Parallel()
	h := newScenarioA(t)
	for i := int64(1); i <= 1000; i++ {
		require.NoError(t, h.RecordValue(i*97))
	}

	ps := []float64{0, 10, 50, 90, 99, 99.9, 100}
	batch := h.ValueAtPercentiles(ps)
	for _, p := range ps {
		assert.Equal(t, h.ValueAtPercentile(p), batch[p], "percentile %v", p)
	}
}

func TestPercentileAtOrBelowValueRoundTrips(t *testing.T) {
	t.Parallel()
	h := newScenarioA(t)
	for i := int64(1); i <= 100; i++ {
		require.NoError(t, h.RecordValue(i * 10))
	}
	pct := h.PercentileAtOrBelowValue(500)
	assert.InDelta(t, 50, pct, 5)
}

func TestCountBetweenValues(t *testing.T) {
	t.Parallel()
	h := newScenarioA(t)
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, h.RecordValue(i * 100))
	}
	count := h.CountBetweenValues(300, 700)
	assert.EqualValues(t, 5, count)
}

func TestMeanAndStdDeviationOnUniformValues(t *testing.T) {
	t.Parallel()
	h := newScenarioA(t)
	require.NoError(t, h.RecordValue(1000))
	require.NoError(t, h.RecordValue(1000))
	require.NoError(t, h.RecordValue(1000))
	assert.InDelta(t, 1000, h.Mean(), 5)
	assert.InDelta(t, 0, h.StdDeviation(), 5)
}

func TestMeanOnEmptyHistogramIsZero(t *testing.T) {
	t.Parallel()
	h := newScenarioA(t)
	assert.EqualValues(t, 0, h.Mean())
	assert.EqualValues(t, 0, h.StdDeviation())
}
