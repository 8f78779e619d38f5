package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Dispatch metrics
	AttemptsTotal    *prometheus.CounterVec
	QuotaRejections  *prometheus.CounterVec
	WindowDuration   prometheus.Histogram
	ProviderLatency  *prometheus.HistogramVec
	JobsActive       prometheus.Gauge
	JobsTotal        *prometheus.CounterVec
	RecorderFailures prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Broker metrics
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_attempts_total",
			Help:      "Total number of dispatch attempts by channel and status",
		}, []string{"channel", "status"}),
		QuotaRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quota_rejections_total",
			Help:      "Total number of sends rejected by the quota ledger",
		}, []string{"channel"}),
		WindowDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_window_duration_seconds",
			Help:      "Time spent settling one dispatch window",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of external provider calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		JobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bulk_jobs_active",
			Help:      "Number of bulk jobs currently dispatching",
		}),
		JobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bulk_jobs_total",
			Help:      "Total number of bulk jobs by terminal status",
		}, []string{"status"}),
		RecorderFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempt_recorder_failures_total",
			Help:      "Attempt log writes that failed and were skipped",
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_events_published_total",
			Help:      "Job lifecycle events published to the broker",
		}, []string{"event_type", "status"}),
	}
}
