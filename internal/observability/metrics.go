package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blogpulse"

// Metrics holds the Prometheus collectors for ingestion and analysis.
type Metrics struct {
	FactsIngested  *prometheus.CounterVec // labels: metric
	EntriesSkipped *prometheus.CounterVec // labels: metric
	DateWrites     *prometheus.CounterVec // labels: outcome={success,error}
	AuthFailures   prometheus.Counter

	NarrativeRequests *prometheus.CounterVec // labels: outcome={success,error,empty,insufficient}
	NarrativeDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		FactsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_ingested_total",
			Help:      "Daily facts extracted from uploads, by metric.",
		}, []string{"metric"}),
		EntriesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_skipped_total",
			Help:      "Scraped entries that could not be normalized, by metric.",
		}, []string{"metric"}),
		DateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_writes_total",
			Help:      "Per-date upserts by outcome.",
		}, []string{"outcome"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Upload requests rejected for a bad or missing secret.",
		}),
		NarrativeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrative_requests_total",
			Help:      "Narrative requests by outcome.",
		}, []string{"outcome"}),
		NarrativeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "narrative_duration_seconds",
			Help:      "Duration of text-generation calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),
	}
}

// NewMetrics creates and registers all collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FactsIngested,
		m.EntriesSkipped,
		m.DateWrites,
		m.AuthFailures,
		m.NarrativeRequests,
		m.NarrativeDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build
// many instances without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
