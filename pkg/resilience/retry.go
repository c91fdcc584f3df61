// Package resilience guards calls to dependencies that fail transiently:
// Retry backs off and tries again, CircuitBreaker stops calling a
// dependency that keeps failing.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// Retryable reports whether a failure is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

// backoff yields successive jittered delays, growing geometrically up to
// MaxDelay.
type backoff struct {
	cfg  RetryConfig
	next time.Duration
}

func newBackoff(cfg RetryConfig) *backoff {
	return &backoff{cfg: cfg, next: cfg.InitialDelay}
}

func (b *backoff) Next() time.Duration {
	d := b.next
	b.next = min(time.Duration(float64(b.next)*b.cfg.Multiplier), b.cfg.MaxDelay)
	spread := float64(d) * b.cfg.JitterFraction
	d += time.Duration(spread * (2*rand.Float64() - 1))
	return max(min(d, b.cfg.MaxDelay), 0)
}

// Retry calls fn until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is done. name labels the operation in logs and errors.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)
	delays := newBackoff(cfg)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Debug("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		wait := delays.Next()
		logger.Debug("attempt failed", "attempt", attempt, "error", err, "next_delay", wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: retry aborted after %d attempts: %w", name, attempt, ctx.Err())
		}
	}
	if cfg.MaxAttempts == 1 {
		return err
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", name, cfg.MaxAttempts, err)
}
