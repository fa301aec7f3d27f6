package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus counters and histograms for the verification
// pipeline. Verification runs are short-lived batch jobs, so metrics are
// pushed to a Pushgateway at the end of a run rather than scraped.
type Metrics struct {
	RunsCompleted   prometheus.Counter
	ParamsVerified  prometheus.Counter
	ParamsSkipped   prometheus.Counter
	EventsPublished prometheus.Counter

	VerifyDuration    prometheus.Histogram
	MaskBuildDuration prometheus.Histogram
	AggregateDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates all pipeline metrics on a private registry, keeping
// repeated construction in one process (tests, multiple runs) panic-free.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_verif",
			Name:      "runs_completed_total",
			Help:      "Total verification runs completed.",
		}),
		ParamsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_verif",
			Name:      "params_verified_total",
			Help:      "Total parameters verified across runs.",
		}),
		ParamsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_verif",
			Name:      "params_skipped_total",
			Help:      "Parameters requested but absent from the truth dataset.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_verif",
			Name:      "events_published_total",
			Help:      "Run-completed events published to Kafka.",
		}),
		VerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forecast_verif",
			Name:      "verify_duration_seconds",
			Help:      "Wall-clock duration of a complete verify call.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		MaskBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forecast_verif",
			Name:      "mask_build_duration_seconds",
			Help:      "Duration of region mask construction.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}),
		AggregateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forecast_verif",
			Name:      "aggregate_duration_seconds",
			Help:      "Duration of a complete aggregation call.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RunsCompleted,
		m.ParamsVerified,
		m.ParamsSkipped,
		m.EventsPublished,
		m.VerifyDuration,
		m.MaskBuildDuration,
		m.AggregateDuration,
	)
	return m
}

// Push delivers the current metric values to a Pushgateway under the given
// job name. Callers treat failures as non-fatal: a dropped metrics push must
// not fail a completed verification run.
func (m *Metrics) Push(url, job string) error {
	return push.New(url, job).Gatherer(m.registry).Push()
}
