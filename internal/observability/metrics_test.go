package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.RowsCollected.WithLabelValues("short_term", "new").Add(3)

	assert.InDelta(t, 3.0, testutil.ToFloat64(a.RowsCollected.WithLabelValues("short_term", "new")), 0.0001)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.RowsCollected.WithLabelValues("short_term", "new")), 0.0001)
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.JobRuns))
	require.NoError(t, reg.Register(m.ProviderRequests))

	m.JobRuns.WithLabelValues("cleanup", "success").Inc()
	count, err := testutil.GatherAndCount(reg, "weather_recommendation_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
