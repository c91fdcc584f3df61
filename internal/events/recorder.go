package events

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
)

// Recorder routes events to the index and analytics collectors. A nil
// Recorder, or one with a nil collector, discards events.
type Recorder struct {
	index     *BatchCollector
	analytics *BatchCollector
}

func NewRecorder(index, analytics *BatchCollector) *Recorder {
	return &Recorder{index: index, analytics: analytics}
}

// IndexTransition is shaped to be passed to manager.WithObserver.
func (r *Recorder) IndexTransition(t manager.Transition) {
	if r == nil || r.index == nil {
		return
	}
	r.index.Track(t.Index, NewIndexEvent(t))
}

// Query records a served query. Events are keyed by type so one kind of
// query stays ordered within a partition.
func (r *Recorder) Query(ev QueryEvent) {
	if r == nil || r.analytics == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	r.analytics.Track(string(ev.Type), ev)
}
