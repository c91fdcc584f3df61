package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
)

func TestRecordQuery(t *testing.T) {
	a := NewAggregator()
	for i, ev := range []events.QueryEvent{
		{Type: events.EventSearch, Query: "god", Path: "indexed", TotalCount: 2, LatencyMs: 10},
		{Type: events.EventSearch, Query: "god", Path: "cache", TotalCount: 2, LatencyMs: 1, CacheHit: true},
		{Type: events.EventSearch, Query: "zebra", Path: "fallback", TotalCount: 0, LatencyMs: 40},
		{Type: events.EventConcordance, Query: "H430", TotalCount: 3, LatencyMs: 2},
	} {
		ev.Timestamp = time.Unix(int64(i), 0)
		a.RecordQuery(ev)
	}

	s := a.Stats()
	assert.Equal(t, int64(4), s.TotalQueries)
	assert.Equal(t, int64(3), s.ByType["search"])
	assert.Equal(t, int64(1), s.ByType["concordance"])
	assert.Equal(t, map[string]int64{"indexed": 1, "cache": 1, "fallback": 1}, s.ByPath)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []QueryCount{{Query: "zebra", Count: 1}}, s.ZeroResultQueries)
	assert.Equal(t, QueryCount{Query: "god", Count: 2}, s.TopQueries[0])
	assert.InDelta(t, 13.25, s.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(40), s.P99LatencyMs)
}

func TestLatencyWindowIsBounded(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < maxLatencies+5; i++ {
		a.RecordQuery(events.QueryEvent{Type: events.EventSearch, Query: "q", TotalCount: 1, LatencyMs: int64(i)})
	}
	assert.Len(t, a.latencies, maxLatencies)
	assert.Equal(t, int64(maxLatencies+5), a.Stats().TotalQueries)
}

func TestRecordIndex(t *testing.T) {
	a := NewAggregator()
	a.RecordIndex(events.IndexEvent{Index: "search", From: manager.StateNone, To: manager.StateBuilding})
	a.RecordIndex(events.IndexEvent{Index: "search", From: manager.StateBuilding, To: manager.StateNone, Error: "cancelled", Cancelled: true, ElapsedMs: 5})
	a.RecordIndex(events.IndexEvent{Index: "search", From: manager.StateNone, To: manager.StateBuilding})
	a.RecordIndex(events.IndexEvent{Index: "search", From: manager.StateBuilding, To: manager.StateNone, Error: "disk"})
	a.RecordIndex(events.IndexEvent{Index: "search", From: manager.StateNone, To: manager.StateBuilding})
	a.RecordIndex(events.IndexEvent{Index: "search", From: manager.StateBuilding, To: manager.StateReady, ElapsedMs: 900})

	s := a.Stats().Indexes["search"]
	assert.Equal(t, manager.StateReady, s.State)
	assert.Equal(t, int64(3), s.Builds)
	assert.Equal(t, int64(1), s.Cancelled)
	assert.Equal(t, int64(1), s.Failures)
	assert.Equal(t, int64(900), s.LastBuildMs)
	assert.Empty(t, s.LastError)
}

func TestKafkaHandlersDecode(t *testing.T) {
	a := NewAggregator()
	q, _ := json.Marshal(events.QueryEvent{Type: events.EventSearch, Query: "light", TotalCount: 4})
	require.NoError(t, HandleQueryEvent(a)(context.Background(), []byte("search"), q))
	require.NoError(t, HandleQueryEvent(a)(context.Background(), nil, []byte("not json")))

	ix, _ := json.Marshal(events.IndexEvent{Index: "concordance", From: manager.StateBuilding, To: manager.StateReady})
	require.NoError(t, HandleIndexEvent(a)(context.Background(), []byte("concordance"), ix))

	s := a.Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, manager.StateReady, s.Indexes["concordance"].State)
}

func TestHandler(t *testing.T) {
	a := NewAggregator()
	a.RecordIndex(events.IndexEvent{Index: "crossref", From: manager.StateBuilding, To: manager.StateReady})
	mux := http.NewServeMux()
	NewHandler(a).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/indexes", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Indexes map[string]IndexSummary `json:"indexes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, manager.StateReady, body.Indexes["crossref"].State)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_queries":0`)
}
