package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout attaches a deadline to each request's context. Handlers observe
// it through the context; the search engine and index waits return
// promptly once it passes. A non-positive timeout disables the deadline.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
