package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_alerts"

// Metrics holds the Prometheus collectors for polling, delivery and
// housekeeping.
type Metrics struct {
	Polls         prometheus.Counter
	PollDuration  prometheus.Histogram
	FeedErrors    prometheus.Counter
	AlertsFetched prometheus.Counter
	Inserts       *prometheus.CounterVec // labels: outcome={inserted,already_exists,rejected}
	Filtered      prometheus.Counter
	Skipped       *prometheus.CounterVec // labels: reason={invalid_bounds,render_error}
	Processed     prometheus.Counter

	Notifications *prometheus.CounterVec // labels: outcome={success,failure}

	RenderRequests *prometheus.CounterVec // labels: outcome={success,error}
	RenderDuration prometheus.Histogram

	Published     prometheus.Counter
	PublishErrors prometheus.Counter

	RecordsCleaned   prometheus.Counter
	ArtifactsCleaned prometheus.Counter
	StoredAlerts     prometheus.Gauge

	JobRuns *prometheus.CounterVec // labels: job
}

// NewMetrics creates all service metrics and registers them with the
// default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Completed poll cycles.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a poll cycle including rendering and delivery.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Poll cycles that could not retrieve or decode the feed.",
		}),
		AlertsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fetched_total",
			Help:      "Feed records seen across all polls.",
		}),
		Inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_inserts_total",
			Help:      "Store insertion attempts by outcome.",
		}, []string{"outcome"}),
		Filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_filtered_total",
			Help:      "New alerts rejected by the filter rules.",
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_skipped_total",
			Help:      "New alerts dropped before delivery, by reason.",
		}, []string{"reason"}),
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_processed_total",
			Help:      "New alerts that completed processing.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Webhook deliveries by outcome.",
		}, []string{"outcome"}),
		RenderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_requests_total",
			Help:      "Map render requests by outcome.",
		}, []string{"outcome"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Static map API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Notification events written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Notification events that could not be written to Kafka.",
		}),
		RecordsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_cleaned_total",
			Help:      "Expired records removed from the store.",
		}),
		ArtifactsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_cleaned_total",
			Help:      "Rendered images removed by retention cleanup.",
		}),
		StoredAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_alerts",
			Help:      "Records in the store after the last record cleanup.",
		}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs started, by job.",
		}, []string{"job"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Polls,
		m.PollDuration,
		m.FeedErrors,
		m.AlertsFetched,
		m.Inserts,
		m.Filtered,
		m.Skipped,
		m.Processed,
		m.Notifications,
		m.RenderRequests,
		m.RenderDuration,
		m.Published,
		m.PublishErrors,
		m.RecordsCleaned,
		m.ArtifactsCleaned,
		m.StoredAlerts,
		m.JobRuns,
	}
}
