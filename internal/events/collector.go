package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
)

// Publisher writes a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// shutdownFlush bounds the final flush after the collector's context ends.
const shutdownFlush = 5 * time.Second

// BatchCollector buffers events and hands them to a Publisher in batches:
// when batchSize events are waiting, on every flushInterval tick, and once
// more on shutdown. Batches that fail to publish go back to the front of the
// buffer, which holds at most three batches.
type BatchCollector struct {
	publisher Publisher
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	buffer []kafka.Event

	// publishing serializes Flush so requeued batches keep their order.
	publishing sync.Mutex
	running    atomic.Bool
	full       chan struct{}
	done       chan struct{}
}

func NewBatchCollector(publisher Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher: publisher,
		batchSize: batchSize,
		interval:  flushInterval,
		logger:    slog.Default().With("component", "event-collector"),
		buffer:    make([]kafka.Event, 0, batchSize),
		full:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start runs the flush loop until ctx ends.
func (bc *BatchCollector) Start(ctx context.Context) {
	bc.running.Store(true)
	go bc.loop(ctx)
	bc.logger.Info("event collector started", "batch_size", bc.batchSize, "flush_interval", bc.interval)
}

func (bc *BatchCollector) loop(ctx context.Context) {
	defer close(bc.done)
	defer bc.running.Store(false)
	ticker := time.NewTicker(bc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			bc.Flush(ctx)
		case <-bc.full:
			bc.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlush)
			bc.Flush(final)
			cancel()
			return
		}
	}
}

// Track buffers an event. A full batch wakes the flush loop, or is flushed
// on its own goroutine when the loop is not running.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: key, Value: value})
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()
	if !full {
		return
	}
	if !bc.running.Load() {
		go bc.Flush(context.Background())
		return
	}
	select {
	case bc.full <- struct{}{}:
	default:
	}
}

// Close waits for the loop started by Start to make its final flush.
func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Flush publishes everything buffered.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.publishing.Lock()
	defer bc.publishing.Unlock()

	batch := bc.take()
	if len(batch) == 0 {
		return
	}
	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		bc.requeue(batch)
		return
	}
	bc.logger.Debug("batch flushed", "events", len(batch))
}

func (bc *BatchCollector) take() []kafka.Event {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	return batch
}

func (bc *BatchCollector) requeue(batch []kafka.Event) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.buffer = append(batch, bc.buffer...)
	if over := len(bc.buffer) - 3*bc.batchSize; over > 0 {
		bc.buffer = bc.buffer[over:]
		bc.logger.Warn("event buffer overflow, oldest events dropped", "dropped", over)
	}
}
