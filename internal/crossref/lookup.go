package crossref

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
)

type Lookup struct {
	index   *manager.Manager[*index.CrossRefIndex]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(idx *manager.Manager[*index.CrossRefIndex], m *metrics.Metrics) *Lookup {
	return &Lookup{
		index:   idx,
		metrics: m,
		logger:  slog.Default().With("component", "crossref"),
	}
}

// Lookup returns the topic-grouped references recorded for from, sorted by
// topic. A location without references yields an empty slice.
func (l *Lookup) Lookup(ctx context.Context, from corpus.Location) ([]index.CrossRefGroup, error) {
	x, err := l.index.EnsureReady(ctx)
	if err != nil {
		l.metrics.ObserveLookup("crossref", "unavailable")
		return nil, fmt.Errorf("cross-reference index: %w: %w", apperrors.ErrIndexUnavailable, err)
	}
	groups := x.Lookup(from)
	if groups == nil {
		groups = []index.CrossRefGroup{}
	}
	outcome := "hit"
	if len(groups) == 0 {
		outcome = "miss"
	}
	l.metrics.ObserveLookup("crossref", outcome)
	l.logger.Debug("cross-references resolved", "from", from.Key(), "groups", len(groups))
	return groups, nil
}

// LookupKey parses a "book:chapter:verse" key and looks it up.
func (l *Lookup) LookupKey(ctx context.Context, key string) ([]index.CrossRefGroup, error) {
	from, err := corpus.ParseKey(key)
	if err != nil {
		l.metrics.ObserveLookup("crossref", "invalid")
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
	}
	return l.Lookup(ctx, from)
}
