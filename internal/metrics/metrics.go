// Package metrics exposes the pipeline's operational counters via
// prometheus/client_golang. The teacher pipeline wires a
// *httpmetrics.MetricsRegistry (internal/interfaces/http, not part of this
// retrieval pack's copy) into its PipelineExecutor for step timers and
// active-scan gauges; this package is the same idea rebuilt directly on
// client_golang's own registry and vector types instead of a hand-rolled
// counter store, since client_golang is already a direct dependency via
// the teacher's go.mod.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brewradar/coffeescan/internal/fetcher/guard"
)

// Registry holds every metric this pipeline exports. One Registry is
// created per process by cmd/coffeescan, which feeds it guard telemetry
// and the active-roaster gauge on a periodic tick.
type Registry struct {
	JobsTotal       *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	FetchLatency    *prometheus.HistogramVec
	FetchRequests   *prometheus.CounterVec
	WritePathErrors *prometheus.CounterVec
	LLMTokens       *prometheus.CounterVec
	LLMCostUSD      prometheus.Counter
	ImageUploads    *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	ActiveRoasters  prometheus.Gauge
}

// New registers every metric against reg (typically prometheus.DefaultRegisterer via promauto's
// default, or a caller-supplied *prometheus.Registry for test isolation).
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeescan",
			Name:      "jobs_total",
			Help:      "Completed jobs by type and terminal status.",
		}, []string{"job_type", "status"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coffeescan",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of one job attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"job_type"}),

		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coffeescan",
			Name:      "fetch_latency_seconds",
			Help:      "HTTP fetch latency per operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"roaster_id", "op"}),

		FetchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeescan",
			Name:      "fetch_requests_total",
			Help:      "HTTP fetch attempts by roaster and outcome.",
		}, []string{"roaster_id", "outcome"}),

		WritePathErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeescan",
			Name:      "write_path_errors_total",
			Help:      "Write path errors by scanerr kind.",
		}, []string{"kind"}),

		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeescan",
			Name:      "llm_tokens_total",
			Help:      "LLM fallback tokens consumed by field.",
		}, []string{"field"}),

		LLMCostUSD: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "coffeescan",
			Name:      "llm_cost_usd_total",
			Help:      "Estimated cumulative LLM fallback spend in USD.",
		}),

		ImageUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeescan",
			Name:      "image_uploads_total",
			Help:      "Image pipeline CDN uploads by outcome (uploaded, dedup_hit, error).",
		}, []string{"outcome"}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coffeescan",
			Name:      "queue_depth",
			Help:      "Current number of ready plus delayed jobs in the orchestrator queue.",
		}),

		ActiveRoasters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "coffeescan",
			Name:      "active_roasters",
			Help:      "Number of roasters not marked inactive.",
		}),
	}
}

// ObserveJob records one completed job attempt's terminal status and
// duration.
func (r *Registry) ObserveJob(jobType, status string, duration time.Duration) {
	r.JobsTotal.WithLabelValues(jobType, status).Inc()
	r.JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// ObserveFetch records one fetch attempt's latency and outcome.
func (r *Registry) ObserveFetch(roasterID, op, outcome string, latency time.Duration) {
	r.FetchLatency.WithLabelValues(roasterID, op).Observe(latency.Seconds())
	r.FetchRequests.WithLabelValues(roasterID, outcome).Inc()
}

// ObserveWritePathError increments the write-path error counter for kind
// (a scanerr.Kind string value).
func (r *Registry) ObserveWritePathError(kind string) {
	r.WritePathErrors.WithLabelValues(kind).Inc()
}

// ObserveLLMUsage records one LLM fallback call's token and cost impact.
func (r *Registry) ObserveLLMUsage(field string, tokens int, costUSD float64) {
	r.LLMTokens.WithLabelValues(field).Add(float64(tokens))
	r.LLMCostUSD.Add(costUSD)
}

// ObserveImageUpload records one image pipeline outcome: "uploaded",
// "dedup_hit", or "error".
func (r *Registry) ObserveImageUpload(outcome string) {
	r.ImageUploads.WithLabelValues(outcome).Inc()
}

// SyncGuardTelemetry exports one roaster's guard.Telemetry snapshot as
// fetch request/latency observations. Called on a periodic tick by
// cmd/coffeescan's syncGuardTelemetry loop, since guard.Telemetry itself is a
// plain atomic counter set with no exporter of its own.
func (r *Registry) SyncGuardTelemetry(roasterID string, snap guard.Snapshot) {
	if snap.Requests > 0 {
		r.FetchLatency.WithLabelValues(roasterID, "guard").Observe(snap.AvgLatency.Seconds())
	}
	r.FetchRequests.WithLabelValues(roasterID, "failure").Add(float64(snap.Failures))
}
