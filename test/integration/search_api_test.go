// Package integration runs the search service's HTTP surface end to end in
// process: a memory corpus, the real index managers, engine, lookups and
// middleware chain behind an httptest server.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/concordance"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/crossref"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/middleware"
)

type stack struct {
	server  *httptest.Server
	indexes *indexer.Indexes
}

func newStack(t *testing.T) *stack {
	t.Helper()
	dir := t.TempDir()
	tsv := filepath.Join(dir, "crossrefs.tsv")
	require.NoError(t, os.WriteFile(tsv, []byte("1:1:1\tcreation\t62:4:8\n"), 0o644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Snapshots.Dir = filepath.Join(dir, "snapshots")
	cfg.Corpus.CrossRefPath = tsv
	cfg.Indexer.ChaptersPerSecond = 0

	src := corpus.NewMemorySource().
		Add(corpus.Location{Book: 1, Chapter: 1, Verse: 1}, "In the beginning God created the heaven and the earth.",
			corpus.TaggedSpan{Identifier: "0430", Text: "God"}).
		Add(corpus.Location{Book: 1, Chapter: 1, Verse: 2}, "And the earth was without form, and void.").
		Add(corpus.Location{Book: 62, Chapter: 4, Verse: 8}, "He that loveth not knoweth not God; for God is love.",
			corpus.TaggedSpan{Identifier: "2316", Text: "God"})

	m := metrics.New(prometheus.NewRegistry())
	indexes := indexer.NewIndexes(indexer.NewBuilder(src, indexer.BuilderOptions(cfg)...), cfg, m, indexer.MetricsObserver(m))
	t.Cleanup(indexes.Cancel)

	h := handler.New(handler.Deps{
		Searcher:     engine.New(indexes.Search, src, engine.WithMetrics(m)),
		Concordance:  concordance.New(indexes.Concordance, m),
		CrossRefs:    crossref.New(indexes.CrossRef, m),
		Indexes:      []handler.IndexControl{indexes.Search, indexes.Concordance, indexes.CrossRef},
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.Timeout(5*time.Second),
	))
	t.Cleanup(srv.Close)
	return &stack{server: srv, indexes: indexes}
}

func (s *stack) get(t *testing.T, path string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(s.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp
}

type searchBody struct {
	Results    []engine.ResultEntry `json:"results"`
	TotalCount int                  `json:"totalCount"`
	HasMore    bool                 `json:"hasMore"`
}

func TestSearchFallsBackUntilIndexIsBuilt(t *testing.T) {
	s := newStack(t)

	var body searchBody
	resp := s.get(t, "/api/v1/search?q=earth", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fallback", resp.Header.Get(handler.PathHeader))
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
	assert.Equal(t, 2, body.TotalCount)

	resp, err := http.Post(s.server.URL+"/api/v1/indexes/search/build", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return s.indexes.Search.State() == manager.StateReady
	}, 5*time.Second, 10*time.Millisecond)

	body = searchBody{}
	resp = s.get(t, "/api/v1/search?q=earth&limit=1", &body)
	assert.Equal(t, "indexed", resp.Header.Get(handler.PathHeader))
	assert.Equal(t, 2, body.TotalCount)
	assert.True(t, body.HasMore)
	require.Len(t, body.Results, 1)
	assert.Equal(t, corpus.Location{Book: 1, Chapter: 1, Verse: 1}, body.Results[0].Location())
}

func TestIndexedAndFallbackAgree(t *testing.T) {
	s := newStack(t)
	queries := []string{"god", "GOD is", "arth", "loveth not", "zebra"}

	fallback := make(map[string]searchBody)
	for _, q := range queries {
		var body searchBody
		s.get(t, "/api/v1/search/all?q="+url.QueryEscape(q), &body)
		fallback[q] = body
	}

	_, err := s.indexes.Search.EnsureReady(context.Background())
	require.NoError(t, err)

	for _, q := range queries {
		var body searchBody
		resp := s.get(t, "/api/v1/search/all?q="+url.QueryEscape(q), &body)
		require.Equal(t, "indexed", resp.Header.Get(handler.PathHeader), q)
		assert.Equal(t, fallback[q], body, q)
	}
}

func TestConcordanceAndCrossRefs(t *testing.T) {
	s := newStack(t)

	var conc struct {
		Identifier string               `json:"identifier"`
		Results    []engine.ResultEntry `json:"results"`
	}
	resp := s.get(t, "/api/v1/concordance/G2316", &conc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, conc.Results, 1)
	assert.Equal(t, 62, conc.Results[0].DocumentID)

	conc.Results = nil
	s.get(t, "/api/v1/concordance/430", &conc)
	require.Len(t, conc.Results, 1)
	assert.Equal(t, 1, conc.Results[0].DocumentID)

	conc.Results = nil
	resp = s.get(t, "/api/v1/concordance/not-an-id", &conc)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, conc.Results)
	assert.Empty(t, conc.Results)

	var refs struct {
		From   string `json:"from"`
		Groups []struct {
			Topic string `json:"topic"`
		} `json:"groups"`
	}
	resp = s.get(t, "/api/v1/crossrefs/1:1:1", &refs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, refs.Groups, 1)
	assert.Equal(t, "creation", refs.Groups[0].Topic)
}

func TestStatusReportsEveryIndex(t *testing.T) {
	s := newStack(t)
	var body struct {
		Indexes []manager.Status `json:"indexes"`
	}
	s.get(t, "/api/v1/status", &body)
	require.Len(t, body.Indexes, 3)
	for _, st := range body.Indexes {
		assert.Equal(t, manager.StateNone, st.State, st.Index)
	}

	resp, err := http.Post(s.server.URL+"/api/v1/indexes/nope/build", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
