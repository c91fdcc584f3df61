package indexer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/crossref"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

// Index names, used in logs, metrics, events and the status endpoint.
const (
	IndexSearch      = "search"
	IndexConcordance = "concordance"
	IndexCrossRef    = "crossref"
)

// BuilderOptions translates indexer configuration into Builder options.
func BuilderOptions(cfg *config.Config) []Option {
	opts := []Option{WithFamilySplit(cfg.Corpus.FamilySplit)}
	if cfg.Indexer.RetryAttempts > 0 {
		opts = append(opts, WithRetry(resilience.RetryConfig{
			MaxAttempts:  cfg.Indexer.RetryAttempts + 1,
			InitialDelay: cfg.Indexer.RetryDelay,
		}))
	}
	if cfg.Indexer.ChaptersPerSecond > 0 {
		burst := int(cfg.Indexer.ChaptersPerSecond)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, WithLimiter(rate.NewLimiter(rate.Limit(cfg.Indexer.ChaptersPerSecond), burst)))
	}
	return opts
}

// Indexes holds one lifecycle manager per index.
type Indexes struct {
	Search      *manager.Manager[*index.WordIndex]
	Concordance *manager.Manager[*index.ConcordanceIndex]
	CrossRef    *manager.Manager[*index.CrossRefIndex]
}

// NewIndexes wires snapshot loading and corpus building into managers.
// observe receives every transition of every index and may be nil.
func NewIndexes(b *Builder, cfg *config.Config, m *metrics.Metrics, observe func(manager.Transition)) *Indexes {
	searchPath := cfg.Snapshots.SearchPath()
	concordancePath := cfg.Snapshots.ConcordancePath()
	crossRefPath := cfg.Snapshots.CrossRefPath()
	crossRefSource := cfg.Corpus.CrossRefPath

	return &Indexes{
		Search: manager.New(IndexSearch,
			func(ctx context.Context) (*index.WordIndex, error) {
				w, _, err := snapshot.LoadSearch(searchPath)
				return w, err
			},
			func(ctx context.Context) (*index.WordIndex, error) {
				w, stats, err := b.BuildSearch(ctx)
				m.AddChaptersSkipped(IndexSearch, stats.ChaptersSkipped)
				return w, err
			},
			manager.WithObserver[*index.WordIndex](observe),
		),
		Concordance: manager.New(IndexConcordance,
			func(ctx context.Context) (*index.ConcordanceIndex, error) {
				c, _, err := snapshot.LoadConcordance(concordancePath)
				return c, err
			},
			func(ctx context.Context) (*index.ConcordanceIndex, error) {
				c, stats, err := b.BuildConcordance(ctx)
				m.AddChaptersSkipped(IndexConcordance, stats.ChaptersSkipped)
				return c, err
			},
			manager.WithObserver[*index.ConcordanceIndex](observe),
		),
		CrossRef: manager.New(IndexCrossRef,
			func(ctx context.Context) (*index.CrossRefIndex, error) {
				x, _, err := snapshot.LoadCrossRef(crossRefPath)
				return x, err
			},
			func(ctx context.Context) (*index.CrossRefIndex, error) {
				if crossRefSource == "" {
					return nil, fmt.Errorf("no cross-reference source configured: %w", apperrors.ErrNotFound)
				}
				x, _, err := crossref.ParseFile(ctx, crossRefSource)
				return x, err
			},
			manager.WithObserver[*index.CrossRefIndex](observe),
		),
	}
}

// Warm starts every index in the background.
func (ix *Indexes) Warm() {
	ix.Search.Start()
	ix.Concordance.Start()
	ix.CrossRef.Start()
}

// Cancel stops every in-flight build.
func (ix *Indexes) Cancel() {
	ix.Search.Cancel()
	ix.Concordance.Cancel()
	ix.CrossRef.Cancel()
}

// Statuses reports every index without changing any of them.
func (ix *Indexes) Statuses() []manager.Status {
	return []manager.Status{ix.Search.Status(), ix.Concordance.Status(), ix.CrossRef.Status()}
}

// MetricsObserver records index transitions as Prometheus series.
func MetricsObserver(m *metrics.Metrics) func(manager.Transition) {
	return func(t manager.Transition) {
		m.SetIndexState(t.Index, StateValue(t.To))
		if t.From != manager.StateBuilding {
			return
		}
		outcome := "ok"
		switch {
		case t.Err == nil:
		case errors.Is(t.Err, apperrors.ErrBuildCancelled):
			outcome = "cancelled"
		default:
			outcome = "error"
		}
		m.ObserveIndexBuild(t.Index, string(t.Origin), outcome, t.Elapsed)
	}
}

// StateValue maps a state onto the index_state gauge.
func StateValue(s manager.State) float64 {
	switch s {
	case manager.StateBuilding:
		return 1
	case manager.StateReady:
		return 2
	default:
		return 0
	}
}

// Observers fans a transition out to every non-nil observer.
func Observers(fns ...func(manager.Transition)) func(manager.Transition) {
	return func(t manager.Transition) {
		for _, fn := range fns {
			if fn != nil {
				fn(t)
			}
		}
	}
}
