package hdrhistogram

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputPercentileDistributionPlainTable(t *testing.T) {
	t.Parallel()
	h := scenarioD(t)

	var buf bytes.Buffer
	require.NoError(t, h.OutputPercentileDistribution(&buf, 5, 1.0, false))

	out := buf.String()
	assert.Contains(t, out, "Value")
	assert.Contains(t, out, "Percentile")
	assert.Contains(t, out, "#[Mean")
	assert.Contains(t, out, "#[Buckets")
}

func TestOutputPercentileDistributionCSV(t *testing.T) {
	t.Parallel()
	h := scenarioD(t)

	var buf bytes.Buffer
	require.NoError(t, h.OutputPercentileDistribution(&buf, 5, 1.0, true))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Greater(t, len(lines), 1)
	assert.Equal(t, `"Value","Percentile","TotalCount","1/(1-Percentile)"`, lines[0])
	assert.NotContains(t, buf.String(), "#[Mean")
}

func TestOutputPercentileDistributionScalesValues(t *testing.T) {
	t.Parallel()
	h := scenarioD(t)

	var unscaled, scaled bytes.Buffer
	require.NoError(t, h.OutputPercentileDistribution(&unscaled, 5, 1.0, true))
	require.NoError(t, h.OutputPercentileDistribution(&scaled, 5, 1000.0, true))

	assert.NotEqual(t, unscaled.String(), scaled.String())
}
