package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    error
}

func (f *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakePublisher) published() []kafka.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kafka.Event
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func TestRecorderRoutesEvents(t *testing.T) {
	indexPub, analyticsPub := &fakePublisher{}, &fakePublisher{}
	idx := NewBatchCollector(indexPub, 10, time.Hour)
	analytics := NewBatchCollector(analyticsPub, 10, time.Hour)
	r := NewRecorder(idx, analytics)

	r.IndexTransition(manager.Transition{
		Index: "search", BuildID: "b1",
		From: manager.StateBuilding, To: manager.StateNone,
		Origin: manager.OriginBuild, Err: fmt.Errorf("search index: %w", apperrors.ErrBuildCancelled),
		Elapsed: 1500 * time.Millisecond,
	})
	r.Query(QueryEvent{Type: EventSearch, Query: "god", Path: "indexed", TotalCount: 2, Returned: 2})

	idx.Flush(context.Background())
	analytics.Flush(context.Background())

	got := indexPub.published()
	require.Len(t, got, 1)
	assert.Equal(t, "search", got[0].Key)
	ev := got[0].Value.(IndexEvent)
	assert.Equal(t, EventIndexState, ev.Type)
	assert.Equal(t, manager.StateNone, ev.To)
	assert.Equal(t, "search index: index build cancelled", ev.Error)
	assert.True(t, ev.Cancelled)
	assert.Equal(t, int64(1500), ev.ElapsedMs)

	queries := analyticsPub.published()
	require.Len(t, queries, 1)
	q := queries[0].Value.(QueryEvent)
	assert.Equal(t, "search", queries[0].Key)
	assert.False(t, q.Timestamp.IsZero())
}

func TestNilRecorderDiscards(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Query(QueryEvent{Type: EventSearch})
		r.IndexTransition(manager.Transition{})
	})
	assert.NotPanics(t, func() { NewRecorder(nil, nil).Query(QueryEvent{}) })
}

func TestFullBatchFlushesInBackground(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	bc.Track("k", 1)
	bc.Track("k", 2)
	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, time.Second, time.Millisecond)
	assert.Zero(t, bc.BufferLen())
}

func TestFailedFlushRequeuesAndBounds(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("broker down")}
	bc := NewBatchCollector(pub, 100, time.Hour)
	for i := range 350 {
		bc.mu.Lock()
		bc.buffer = append(bc.buffer, kafka.Event{Key: "k", Value: i})
		bc.mu.Unlock()
	}
	bc.Flush(context.Background())
	assert.Equal(t, 300, bc.BufferLen())
	bc.mu.Lock()
	assert.Equal(t, 50, bc.buffer[0].Value, "oldest events are dropped first")
	bc.mu.Unlock()

	pub.mu.Lock()
	pub.fail = nil
	pub.mu.Unlock()
	bc.Flush(context.Background())
	assert.Zero(t, bc.BufferLen())
	assert.Len(t, pub.published(), 300)
}

func TestStartFlushesOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	bc.Track("k", "v")
	cancel()
	bc.Close()
	assert.Len(t, pub.published(), 1)
}

func TestFullBatchWakesRunningLoop(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); bc.Close() }()
	bc.Start(ctx)

	for i := range 3 {
		bc.Track("k", i)
	}
	require.Eventually(t, func() bool { return len(pub.published()) == 3 }, time.Second, time.Millisecond)
	pub.mu.Lock()
	assert.Len(t, pub.batches, 1)
	pub.mu.Unlock()
}
