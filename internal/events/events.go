// Package events publishes index lifecycle and query analytics events to
// Kafka. Events are buffered and flushed in batches; publishing never
// blocks or fails a query.
package events

import (
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

type EventType string

const (
	EventIndexState  EventType = "index_state"
	EventSearch      EventType = "search"
	EventConcordance EventType = "concordance"
	EventCrossRef    EventType = "crossref"
)

// IndexEvent mirrors one manager state transition.
type IndexEvent struct {
	Type      EventType     `json:"type"`
	Index     string        `json:"index"`
	BuildID   string        `json:"build_id"`
	From      manager.State `json:"from"`
	To        manager.State `json:"to"`
	Origin    string        `json:"origin,omitempty"`
	Error     string        `json:"error,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
	ElapsedMs int64         `json:"elapsed_ms"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryEvent describes one search or lookup served.
type QueryEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Path       string    `json:"path,omitempty"`
	TotalCount int       `json:"total_count"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewIndexEvent converts a manager transition.
func NewIndexEvent(t manager.Transition) IndexEvent {
	ev := IndexEvent{
		Type:      EventIndexState,
		Index:     t.Index,
		BuildID:   t.BuildID,
		From:      t.From,
		To:        t.To,
		Origin:    string(t.Origin),
		ElapsedMs: t.Elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if t.Err != nil {
		ev.Error = t.Err.Error()
		ev.Cancelled = errors.Is(t.Err, apperrors.ErrBuildCancelled)
	}
	return ev
}
