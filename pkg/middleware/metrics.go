// Package middleware provides the HTTP middleware of the search service:
// request ids, Prometheus metrics, per-request deadlines, CORS and
// per-client rate limiting.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
)

// idRoutes are path prefixes whose final segment is an identifier.
var idRoutes = []string{"/api/v1/concordance/", "/api/v1/crossrefs/"}

// Metrics counts requests by method, route and status and observes their
// latency. A nil m disables recording.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			m.HTTPRequestsInFlight.Dec()
			route := routeOf(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		})
	}
}

// statusRecorder remembers the first status written. A handler that only
// calls Write has implicitly answered 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// routeOf collapses identifiers so label cardinality stays bounded:
// "/api/v1/concordance/H430" becomes "/api/v1/concordance/:id".
func routeOf(path string) string {
	for _, prefix := range idRoutes {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
			return prefix + ":id"
		}
	}
	return path
}
