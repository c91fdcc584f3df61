package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestURLMix(t *testing.T) {
	opts := options{baseURL: "http://svc", concordance: 0.25}
	var concordance, search int
	for i := 0; i < 100; i++ {
		u := requestURL(opts, i)
		switch {
		case strings.HasPrefix(u, "http://svc/api/v1/concordance/"):
			concordance++
		case strings.HasPrefix(u, "http://svc/api/v1/search?q="):
			search++
		default:
			t.Fatalf("unexpected url %s", u)
		}
	}
	assert.Equal(t, 25, concordance)
	assert.Equal(t, 75, search)

	opts.concordance = 0
	assert.Contains(t, requestURL(opts, 0), "/api/v1/search?q=love&limit=10")
}

func TestRunAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/v1/search") {
			w.Header().Set("X-Search-Path", "indexed")
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s, err := run(context.Background(), options{
		baseURL:     srv.URL,
		concurrency: 2,
		duration:    100 * time.Millisecond,
		rps:         200,
		concordance: 0.5,
	})
	require.NoError(t, err)
	require.Positive(t, s.total)
	assert.Zero(t, s.errors)
	assert.Equal(t, s.total, s.statuses[http.StatusOK])
	assert.Positive(t, s.paths["indexed"])

	var buf bytes.Buffer
	report(&buf, s, 100*time.Millisecond)
	assert.Contains(t, buf.String(), "=== Search Paths ===")
	assert.Contains(t, buf.String(), "200:")
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Zero(t, percentile(nil, 50))
}
