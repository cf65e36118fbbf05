// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "casekit"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Analyses         *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	Duplicates       prometheus.Counter

	Searches       prometheus.Counter
	SearchDuration prometheus.Histogram
	SearchResults  prometheus.Histogram

	IndexOps *prometheus.CounterVec

	PatternFeedback *prometheus.CounterVec
	PatternsLearned prometheus.Counter
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Content analyses by detected content type.",
		}, []string{"content_type"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time to analyze one piece of content.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_detected_total",
			Help:      "Analyses that matched an existing record as a duplicate.",
		}),

		Searches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search queries executed.",
		}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time to rank the index for one query.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		SearchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Matching entries per query before paging.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 500},
		}),

		IndexOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_operations_total",
			Help:      "Search index operations by kind (indexed, removed, rebuilt).",
		}, []string{"op"}),

		PatternFeedback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_feedback_total",
			Help:      "Pattern feedback by outcome.",
		}, []string{"outcome"}),
		PatternsLearned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_learned_total",
			Help:      "Learn calls that created or reinforced a pattern.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAnalysis records one analysis.
func (m *Metrics) ObserveAnalysis(contentType string, took time.Duration, duplicate bool) {
	if m == nil {
		return
	}
	m.Analyses.WithLabelValues(contentType).Inc()
	m.AnalysisDuration.Observe(took.Seconds())
	if duplicate {
		m.Duplicates.Inc()
	}
}

// ObserveSearch records one executed query.
func (m *Metrics) ObserveSearch(took time.Duration, total int) {
	if m == nil {
		return
	}
	m.Searches.Inc()
	m.SearchDuration.Observe(took.Seconds())
	m.SearchResults.Observe(float64(total))
}

// IndexOp counts one index change notification.
func (m *Metrics) IndexOp(kind string) {
	if m == nil {
		return
	}
	m.IndexOps.WithLabelValues(kind).Inc()
}

// Feedback counts one piece of pattern feedback.
func (m *Metrics) Feedback(correct bool) {
	if m == nil {
		return
	}
	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	m.PatternFeedback.WithLabelValues(outcome).Inc()
}

// Learned counts one successful Learn.
func (m *Metrics) Learned() {
	if m == nil {
		return
	}
	m.PatternsLearned.Inc()
}
