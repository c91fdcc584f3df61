package cache

import (
	"context"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

// BreakerStore fails fast while Redis is unreachable, so a dead cache costs
// each query one rejected call instead of a connection timeout. Key misses
// do not count as failures.
type BreakerStore struct {
	store   Store
	breaker *resilience.CircuitBreaker
}

func NewBreakerStore(store Store, cfg resilience.CircuitBreakerConfig) *BreakerStore {
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !pkgredis.IsNilError(err) }
	}
	return &BreakerStore{
		store:   store,
		breaker: resilience.NewCircuitBreaker("redis-cache", cfg),
	}
}

func (s *BreakerStore) Get(ctx context.Context, key string) (string, error) {
	return resilience.Call(s.breaker, func() (string, error) {
		return s.store.Get(ctx, key)
	})
}

func (s *BreakerStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.breaker.Execute(func() error {
		return s.store.Set(ctx, key, value, ttl)
	})
}

func (s *BreakerStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return resilience.Call(s.breaker, func() (int64, error) {
		return s.store.FlushByPattern(ctx, pattern)
	})
}

func (s *BreakerStore) State() resilience.State {
	return s.breaker.GetState()
}
