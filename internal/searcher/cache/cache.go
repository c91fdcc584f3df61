// Package cache stores search results in Redis. The corpus never changes
// while the service runs, so an entry stays correct for the life of the
// session; the TTL only bounds memory.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/redis"
)

const keyPrefix = "search:"

// computeTimeout bounds a shared computation once no caller's context does.
const computeTimeout = time.Minute

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store     Store
	ttl       time.Duration
	namespace string
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New returns a cache over store. namespace separates entries of different
// corpora sharing one Redis; the corpus fingerprint is a good choice.
func New(store Store, ttl time.Duration, namespace string, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:     store,
		ttl:       ttl,
		namespace: namespace,
		metrics:   m,
		logger:    slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, query string, limit int) (*engine.Result, bool) {
	key := c.buildKey(query, limit)
	result, ok := c.lookup(ctx, key)
	if !ok {
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", query, "key", key)
	return result, true
}

// lookup reads key without touching the hit and miss counters.
func (c *QueryCache) lookup(ctx context.Context, key string) (*engine.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result engine.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, query string, limit int, result *engine.Result) {
	key := c.buildKey(query, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// flight is what one shared computation hands to every caller joined on it.
type flight struct {
	result *engine.Result
	cached bool
}

// GetOrCompute returns the cached result or computes and stores it.
// Concurrent misses for the same key share one computation, which runs
// detached from any single caller's cancellation, bounded by
// computeTimeout; each caller stops waiting when its own ctx ends. Only
// results from a ready index are stored, since a fallback scan is a stopgap.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	limit int,
	computeFn func(ctx context.Context) (*engine.Result, error),
) (*engine.Result, bool, error) {
	if result, ok := c.Get(ctx, query, limit); ok {
		return result, true, nil
	}
	key := c.buildKey(query, limit)
	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		// An earlier flight for this key may have stored it after our miss.
		if result, ok := c.lookup(shared, key); ok {
			c.hit()
			return flight{result: result, cached: true}, nil
		}
		result, err := computeFn(shared)
		if err != nil {
			return nil, err
		}
		if result.Path == engine.PathIndexed {
			c.Set(shared, query, limit, result)
		}
		return flight{result: result}, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		f := res.Val.(flight)
		return f.result, f.cached, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+c.namespace+":*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState names the circuit position when the store is a
// BreakerStore, or returns "".
func (c *QueryCache) BreakerState() string {
	if b, ok := c.store.(*BreakerStore); ok {
		return b.State().String()
	}
	return ""
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	c.metrics.CacheHit()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

func (c *QueryCache) buildKey(query string, limit int) string {
	raw := normalizeQuery(query) + "|limit=" + strconv.Itoa(limit)
	sum := blake3.Sum256([]byte(raw))
	return keyPrefix + c.namespace + ":" + hex.EncodeToString(sum[:16])
}

// normalizeQuery folds the query the way both search paths do: case and
// surrounding or repeated whitespace never change a result.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
