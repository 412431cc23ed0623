package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_recommendation"

// Metrics holds the Prometheus collectors for the ingestion and derivation pipeline.
type Metrics struct {
	// Provider client metrics.
	ProviderRequests *prometheus.CounterVec   // labels: op, outcome={success,retry,error}
	ProviderDuration *prometheus.HistogramVec // labels: op

	// Collection metrics.
	RowsCollected  *prometheus.CounterVec // labels: kind={SHORT_TERM,MEDIUM_TERM}, outcome={new,updated,skipped,dropped}
	RegionFailures *prometheus.CounterVec // labels: job

	// Derivation metrics.
	RecommendationsGenerated *prometheus.CounterVec // labels: weather_type
	CleanupRowsDeleted       *prometheus.CounterVec // labels: kind

	// Scheduler metrics.
	JobRuns     *prometheus.CounterVec   // labels: job, outcome={success,failure,skipped}
	JobDuration *prometheus.HistogramVec // labels: job
	JobInFlight *prometheus.GaugeVec     // labels: job
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProviderRequests,
		m.ProviderDuration,
		m.RowsCollected,
		m.RegionFailures,
		m.RecommendationsGenerated,
		m.CleanupRowsDeleted,
		m.JobRuns,
		m.JobDuration,
		m.JobInFlight,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Provider API attempts by operation and outcome.",
		}, []string{"op", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Provider API call duration including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		RowsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_collected_total",
			Help:      "Raw forecast rows handled by the collector.",
		}, []string{"kind", "outcome"}),
		RegionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_failures_total",
			Help:      "Per-region failures by job.",
		}, []string{"job"}),
		RecommendationsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_generated_total",
			Help:      "Daily recommendations written by weather type.",
		}, []string{"weather_type"}),
		CleanupRowsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_rows_deleted_total",
			Help:      "Rows removed by retention cleanup.",
		}, []string{"kind"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduler job executions by outcome.",
		}, []string{"job", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduler job duration.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),
		JobInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_in_flight",
			Help:      "1 while a scheduler job is running.",
		}, []string{"job"}),
	}
}
