// Package analytics aggregates the query and index lifecycle events the
// search service publishes, for dashboards.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
)

// maxLatencies bounds the latency window used for percentiles.
const maxLatencies = 10000

type AggregatedStats struct {
	TotalQueries      int64                   `json:"total_queries"`
	ByType            map[string]int64        `json:"by_type"`
	ByPath            map[string]int64        `json:"by_path"`
	CacheHits         int64                   `json:"cache_hits"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	AvgLatencyMs      float64                 `json:"avg_latency_ms"`
	P50LatencyMs      int64                   `json:"p50_latency_ms"`
	P95LatencyMs      int64                   `json:"p95_latency_ms"`
	P99LatencyMs      int64                   `json:"p99_latency_ms"`
	TopQueries        []QueryCount            `json:"top_queries"`
	ZeroResultQueries []QueryCount            `json:"zero_result_queries"`
	QueriesPerMinute  float64                 `json:"queries_per_minute"`
	Indexes           map[string]IndexSummary `json:"indexes"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// IndexSummary is the last known lifecycle of one index.
type IndexSummary struct {
	State       manager.State `json:"state"`
	Builds      int64         `json:"builds"`
	Failures    int64         `json:"failures"`
	Cancelled   int64         `json:"cancelled"`
	LastBuildMs int64         `json:"last_build_ms"`
	LastError   string        `json:"last_error,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type Aggregator struct {
	mu                sync.RWMutex
	totalQueries      int64
	cacheHits         int64
	zeroResults       int64
	byType            map[string]int64
	byPath            map[string]int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	indexes           map[string]IndexSummary
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byType:            make(map[string]int64),
		byPath:            make(map[string]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		indexes:           make(map[string]IndexSummary),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleQueryEvent decodes query events from the analytics topic.
// Undecodable messages are logged and committed.
func HandleQueryEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.QueryEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode query event", "error", err)
			return nil
		}
		agg.RecordQuery(event)
		return nil
	}
}

// HandleIndexEvent decodes transitions from the index events topic.
func HandleIndexEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.IndexEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode index event", "error", err)
			return nil
		}
		agg.RecordIndex(event)
		return nil
	}
}

func (a *Aggregator) RecordQuery(event events.QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalQueries++
	a.byType[string(event.Type)]++
	if event.Path != "" {
		a.byPath[event.Path]++
	}
	if event.CacheHit {
		a.cacheHits++
	}
	if len(a.latencies) < maxLatencies {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencies
	}
	a.queryCounts[event.Query]++
	if event.TotalCount == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) RecordIndex(event events.IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.indexes[event.Index]
	s.State = event.To
	s.UpdatedAt = event.Timestamp
	if event.From == manager.StateBuilding {
		s.Builds++
		s.LastBuildMs = event.ElapsedMs
		switch {
		case event.Cancelled:
			s.Cancelled++
		case event.Error != "":
			s.Failures++
			s.LastError = event.Error
		default:
			s.LastError = ""
		}
	}
	a.indexes[event.Index] = s
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:    a.totalQueries,
		ByType:          copyCounts(a.byType),
		ByPath:          copyCounts(a.byPath),
		CacheHits:       a.cacheHits,
		ZeroResultCount: a.zeroResults,
		Indexes:         make(map[string]IndexSummary, len(a.indexes)),
	}
	for name, s := range a.indexes {
		stats.Indexes[name] = s
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}

	return stats
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so ties are stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
