// Package health runs registered component checks concurrently and reports
// an aggregate status for liveness and readiness probes.
//
// An index that is not ready is degraded rather than down: queries are
// still answered, by waiting for the build or by scanning the corpus.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// severity orders statuses so the report can take the worst one.
func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check probes one component. It must honour ctx cancellation.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker returns a Checker whose checks each get two seconds before
// they are reported down.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check for name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Run executes every check concurrently. The overall status is the worst
// component status; a check that overruns its timeout counts as down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	checks := make([]Check, 0, len(c.checks))
	for name, check := range c.checks {
		names = append(names, name)
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			results[i] = c.runOne(ctx, checks[i])
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, name := range names {
		res := results[i]
		report.Components[name] = res
		if res.Status.severity() > report.Status.severity() {
			report.Status = res.Status
		}
		if res.Status == StatusDown {
			c.logger.Warn("component down", "name", name, "message", res.Message)
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()

	var res ComponentHealth
	select {
	case res = <-done:
	case <-ctx.Done():
		res = ComponentHealth{Status: StatusDown, Message: "check timed out"}
	}
	res.Latency = time.Since(start).Round(time.Millisecond).String()
	return res
}

// LiveHandler answers liveness probes; it never runs checks.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes. Degraded components still report
// ready unless strict is set.
func (c *Checker) ReadyHandler(strict bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		switch report.Status {
		case StatusDown:
			code = http.StatusServiceUnavailable
		case StatusDegraded:
			if strict {
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// IndexCheck reports an index lifecycle state: "ready" is up, "building"
// and "none" are degraded.
func IndexCheck(state func() string) Check {
	return func(ctx context.Context) ComponentHealth {
		switch s := state(); s {
		case "ready":
			return ComponentHealth{Status: StatusUp}
		case "building":
			return ComponentHealth{Status: StatusDegraded, Message: "index building"}
		default:
			return ComponentHealth{Status: StatusDegraded, Message: "index " + s + ", serving by corpus scan"}
		}
	}
}

// PingCheck wraps a dependency ping; an error marks the component down.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// CountCheck is up while running reports at least want workers, degraded
// while some but not all are running and down when none are.
func CountCheck(running func() int, want int) Check {
	return func(ctx context.Context) ComponentHealth {
		n := running()
		switch {
		case n >= want:
			return ComponentHealth{Status: StatusUp}
		case n > 0:
			return ComponentHealth{Status: StatusDegraded, Message: "some workers stopped"}
		default:
			return ComponentHealth{Status: StatusDown, Message: "no workers running"}
		}
	}
}
