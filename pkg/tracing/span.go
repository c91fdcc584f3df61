// Package tracing records timed span trees carried through a context and
// writes them to slog when the root finishes. Index builds use it to show
// where a walk over the corpus spent its time.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Span is one timed step. Children and attributes may be added from several
// goroutines; read Children only after the tree has ended.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration
	Children []*Span

	mu    sync.Mutex
	attrs []slog.Attr
}

// StartSpan creates a root span. An empty traceID is replaced by a new one.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	s := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	return context.WithValue(ctx, ctxKey{}, s), s
}

// StartChildSpan creates a span under the one in ctx, or a detached span
// without a trace id when ctx carries none.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, Start: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, ctxKey{}, s), s
}

func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(ctxKey{}).(*Span)
	return s
}

func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.Start)
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Log writes the span and its descendants at debug level, depth first.
func (s *Span) Log(logger *slog.Logger) {
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.walk(0, func(sp *Span, dur time.Duration, depth int, attrs []slog.Attr) {
		logger.LogAttrs(ctx, slog.LevelDebug, "span", append([]slog.Attr{
			slog.String("trace_id", sp.TraceID),
			slog.String("span", sp.Name),
			slog.Int64("duration_ms", dur.Milliseconds()),
			slog.Int("depth", depth),
		}, attrs...)...)
	})
}

func (s *Span) walk(depth int, visit func(*Span, time.Duration, int, []slog.Attr)) {
	s.mu.Lock()
	dur := s.Duration
	attrs := append([]slog.Attr(nil), s.attrs...)
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	visit(s, dur, depth, attrs)
	for _, c := range children {
		c.walk(depth+1, visit)
	}
}
