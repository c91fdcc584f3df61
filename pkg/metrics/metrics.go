// Package metrics defines the Prometheus collectors used by the search
// service and the index builder, and exposes an HTTP handler for scraping.
//
// Every recording method is safe to call on a nil *Metrics, so components
// can be constructed without metrics in tests and tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scripture"

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexBuildsTotal     *prometheus.CounterVec
	IndexBuildDuration   *prometheus.HistogramVec
	IndexState           *prometheus.GaugeVec
	ChaptersSkipped      *prometheus.CounterVec
	LookupsTotal         *prometheus.CounterVec
	BreakerState         *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_queries_total",
				Help:      "Total search queries by execution path (indexed, fallback, cache, error).",
			},
			[]string{"path"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_latency_seconds",
				Help:      "Search query latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
			},
			[]string{"path"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results_count",
				Help:      "Total matching verses per search query.",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of result cache misses.",
			},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_builds_total",
				Help:      "Index load or build attempts by index, origin, and outcome.",
			},
			[]string{"index", "origin", "outcome"},
		),
		IndexBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "index_build_duration_seconds",
				Help:      "Time from starting an index attempt to its completion.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"index", "origin"},
		),
		IndexState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_state",
				Help:      "Index lifecycle state (0=none, 1=building, 2=ready).",
			},
			[]string{"index"},
		),
		ChaptersSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chapters_skipped_total",
				Help:      "Chapters skipped while building because they could not be read.",
			},
			[]string{"index"},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Concordance and cross-reference lookups by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexBuildsTotal,
		m.IndexBuildDuration,
		m.IndexState,
		m.ChaptersSkipped,
		m.LookupsTotal,
		m.BreakerState,
	)

	return m
}

func (m *Metrics) ObserveSearch(path string, elapsed time.Duration, total int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(path).Inc()
	m.SearchLatency.WithLabelValues(path).Observe(elapsed.Seconds())
	m.SearchResultsCount.Observe(float64(total))
}

func (m *Metrics) SearchFailed() {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues("error").Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// SetIndexState records state as 0, 1 or 2 for none, building and ready.
func (m *Metrics) SetIndexState(indexName string, state float64) {
	if m == nil {
		return
	}
	m.IndexState.WithLabelValues(indexName).Set(state)
}

func (m *Metrics) ObserveIndexBuild(indexName, origin, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IndexBuildsTotal.WithLabelValues(indexName, origin, outcome).Inc()
	if outcome == "ok" {
		m.IndexBuildDuration.WithLabelValues(indexName, origin).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) AddChaptersSkipped(indexName string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChaptersSkipped.WithLabelValues(indexName).Add(float64(n))
}

func (m *Metrics) ObserveLookup(kind, outcome string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetBreakerState records a circuit breaker's state as 0, 1 or 2 for
// closed, open and half-open.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g uses the
// default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
