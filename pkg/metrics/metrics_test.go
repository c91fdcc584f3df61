package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearch("indexed", time.Millisecond, 3)
		m.SearchFailed()
		m.CacheHit()
		m.CacheMiss()
		m.SetIndexState("search", 2)
		m.ObserveIndexBuild("search", "build", "ok", time.Second)
		m.AddChaptersSkipped("search", 2)
		m.ObserveLookup("concordance", "hit")
		m.SetBreakerState("redis-cache", 1)
	})
}

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSearch("fallback", 5*time.Millisecond, 7)
	m.ObserveSearch("fallback", 5*time.Millisecond, 0)
	m.SetIndexState("concordance", 1)
	m.AddChaptersSkipped("search", 3)
	m.AddChaptersSkipped("search", 0)
	m.ObserveIndexBuild("search", "snapshot", "ok", time.Second)
	m.SetBreakerState("redis-cache", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexState.WithLabelValues("concordance")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChaptersSkipped.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("search", "snapshot", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("redis-cache")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "scripture_search_queries_total")
}

func TestServerMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).CacheHit()
	mux := serverMux(reg)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "scripture_cache_hits_total 1")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/metrics", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
