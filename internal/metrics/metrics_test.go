package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewradar/coffeescan/internal/fetcher/guard"
)

func newTestRegistry(t *testing.T) (*Registry, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestObserveJobIncrementsCounterAndHistogram(t *testing.T) {
	r, reg := newTestRegistry(t)
	r.ObserveJob("full_refresh", "succeeded", 2*time.Second)

	count := testutil.ToFloat64(r.JobsTotal.WithLabelValues("full_refresh", "succeeded"))
	assert.Equal(t, float64(1), count)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metricFamilies)
}

func TestObserveFetchRecordsOutcome(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.ObserveFetch("r1", "discoverProducts", "success", 100*time.Millisecond)

	count := testutil.ToFloat64(r.FetchRequests.WithLabelValues("r1", "success"))
	assert.Equal(t, float64(1), count)
}

func TestObserveLLMUsageAccumulates(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.ObserveLLMUsage("roastLevel", 120, 0.002)
	r.ObserveLLMUsage("roastLevel", 80, 0.001)

	assert.Equal(t, float64(200), testutil.ToFloat64(r.LLMTokens.WithLabelValues("roastLevel")))
	assert.InDelta(t, 0.003, testutil.ToFloat64(r.LLMCostUSD), 1e-9)
}

func TestSyncGuardTelemetryRecordsFailures(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.SyncGuardTelemetry("r1", guard.Snapshot{Requests: 5, Failures: 2, AvgLatency: 50 * time.Millisecond})

	assert.Equal(t, float64(2), testutil.ToFloat64(r.FetchRequests.WithLabelValues("r1", "failure")))
}
