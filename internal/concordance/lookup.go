// Package concordance resolves lexical identifiers to the verses they tag.
package concordance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/engine"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
)

type Lookup struct {
	index   *manager.Manager[*index.ConcordanceIndex]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(idx *manager.Manager[*index.ConcordanceIndex], m *metrics.Metrics) *Lookup {
	return &Lookup{
		index:   idx,
		metrics: m,
		logger:  slog.Default().With("component", "concordance"),
	}
}

// LookupByIdentifier returns every verse tagged with identifier, once per
// verse and in canonical order. A bare number matches both families. An
// identifier with no entries, including one that cannot name any entry,
// yields an empty slice.
func (l *Lookup) LookupByIdentifier(ctx context.Context, identifier string) ([]engine.ResultEntry, error) {
	family, number, ok := index.ParseIdentifier(identifier)
	if !ok {
		l.metrics.ObserveLookup("concordance", "invalid")
		l.logger.Debug("malformed identifier", "identifier", identifier)
		return []engine.ResultEntry{}, nil
	}
	c, err := l.index.EnsureReady(ctx)
	if err != nil {
		l.metrics.ObserveLookup("concordance", "unavailable")
		return nil, fmt.Errorf("concordance index: %w: %w", apperrors.ErrIndexUnavailable, err)
	}

	families := []string{family}
	if family == "" {
		families = index.Families
	}
	var locs []corpus.Location
	for _, f := range families {
		locs = append(locs, c.Lookup(index.IdentifierKey(f, number))...)
	}
	locs = corpus.Dedupe(locs)

	results := make([]engine.ResultEntry, 0, len(locs))
	for _, loc := range locs {
		text, _ := c.Text(loc)
		results = append(results, engine.NewResultEntry(loc, text))
	}
	outcome := "hit"
	if len(results) == 0 {
		outcome = "miss"
	}
	l.metrics.ObserveLookup("concordance", outcome)
	l.logger.Debug("identifier resolved", "identifier", identifier, "families", families, "results", len(results))
	return results, nil
}
