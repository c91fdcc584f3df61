// Package engine answers free-text verse queries. A ready word index is
// queried with AND semantics over substring-widened tokens; while the index
// is being built queries wait for it, and with no index at all they fall
// back to a linear scan of the corpus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
)

// Execution paths, also used as metric labels.
const (
	PathIndexed  = "indexed"
	PathFallback = "fallback"
)

// ResultEntry is one matching verse.
type ResultEntry struct {
	DocumentID int    `json:"documentId"`
	Chapter    int    `json:"chapter"`
	Verse      int    `json:"verse"`
	Text       string `json:"text"`
}

func NewResultEntry(loc corpus.Location, text string) ResultEntry {
	return ResultEntry{DocumentID: loc.Book, Chapter: loc.Chapter, Verse: loc.Verse, Text: text}
}

func (e ResultEntry) Location() corpus.Location {
	return corpus.Location{Book: e.DocumentID, Chapter: e.Chapter, Verse: e.Verse}
}

// Result is a canonically ordered page of matches. TotalCount counts every
// match, not just the returned ones.
type Result struct {
	Results    []ResultEntry `json:"results"`
	TotalCount int           `json:"totalCount"`
	HasMore    bool          `json:"hasMore"`
	Path       string        `json:"-"`
}

type Engine struct {
	index       *manager.Manager[*index.WordIndex]
	source      corpus.Source
	warmOnQuery bool
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Engine)

// WithWarmOnQuery makes a query against an index in state none start a
// background build while the query itself is answered by the fallback scan.
func WithWarmOnQuery(enabled bool) Option {
	return func(e *Engine) { e.warmOnQuery = enabled }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine over idx, falling back to src. idx may be nil, in
// which case every query is a fallback scan.
func New(idx *manager.Manager[*index.WordIndex], src corpus.Source, opts ...Option) *Engine {
	e := &Engine{
		index:  idx,
		source: src,
		logger: slog.Default().With("component", "query-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns up to maxResults matches for query; 0 means unlimited.
func (e *Engine) Search(ctx context.Context, query string, maxResults int) (*Result, error) {
	if maxResults < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "maxResults must be >= 0, got %d", maxResults)
	}
	start := time.Now()
	result, err := e.execute(ctx, query, maxResults)
	if err != nil {
		e.metrics.SearchFailed()
		return nil, err
	}
	e.metrics.ObserveSearch(result.Path, time.Since(start), result.TotalCount)
	logger.FromContext(ctx).Debug("query executed",
		"component", "query-engine",
		"query", query,
		"path", result.Path,
		"total", result.TotalCount,
		"returned", len(result.Results),
		"elapsed", time.Since(start),
	)
	return result, nil
}

// SearchAll returns every match for query.
func (e *Engine) SearchAll(ctx context.Context, query string) (*Result, error) {
	return e.Search(ctx, query, 0)
}

func (e *Engine) execute(ctx context.Context, query string, maxResults int) (*Result, error) {
	if e.index == nil {
		return e.fallbackScan(ctx, query, maxResults)
	}
	if w, ok := e.index.Ready(); ok {
		return searchIndex(w, query, maxResults), nil
	}
	switch e.index.State() {
	case manager.StateBuilding:
		w, err := e.index.EnsureReady(ctx)
		if err == nil {
			return searchIndex(w, query, maxResults), nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("waiting for search index: %w", ctx.Err())
		}
		// The build was cancelled or failed; the index is back to none.
		e.logger.Info("search index unavailable after build, scanning corpus", "reason", err)
		return e.fallbackScan(ctx, query, maxResults)
	case manager.StateReady:
		w, err := e.index.EnsureReady(ctx)
		if err != nil {
			return nil, err
		}
		return searchIndex(w, query, maxResults), nil
	default:
		if e.warmOnQuery {
			e.index.Start()
		}
		return e.fallbackScan(ctx, query, maxResults)
	}
}

// searchIndex runs query against a ready word index.
func searchIndex(w *index.WordIndex, query string, maxResults int) *Result {
	terms := tokenizer.UniqueTerms(query)
	if len(terms) == 0 {
		return page(nil, nil, maxResults, PathIndexed)
	}
	sets := make([]map[corpus.Location]struct{}, 0, len(terms))
	for _, term := range terms {
		set := matchSet(w, term)
		if len(set) == 0 {
			return page(nil, nil, maxResults, PathIndexed)
		}
		sets = append(sets, set)
	}
	candidates := intersect(sets)

	needle := strings.ToLower(strings.TrimSpace(query))
	locs := make([]corpus.Location, 0, len(candidates))
	for loc := range candidates {
		text, ok := w.Text(loc)
		if !ok || !verify(text, needle, terms) {
			continue
		}
		locs = append(locs, loc)
	}
	corpus.SortLocations(locs)
	return page(locs, w.Text, maxResults, PathIndexed)
}

// matchSet returns every location of every indexed token that contains term
// as a substring, the exact token included.
func matchSet(w *index.WordIndex, term string) map[corpus.Location]struct{} {
	set := make(map[corpus.Location]struct{})
	for _, token := range w.Vocabulary() {
		if !strings.Contains(token, term) {
			continue
		}
		for _, loc := range w.Lookup(token) {
			set[loc] = struct{}{}
		}
	}
	return set
}

// intersect keeps the locations present in every set, starting from the
// smallest.
func intersect(sets []map[corpus.Location]struct{}) map[corpus.Location]struct{} {
	slices.SortFunc(sets, func(a, b map[corpus.Location]struct{}) int { return len(a) - len(b) })
	candidates := make(map[corpus.Location]struct{}, len(sets[0]))
	for loc := range sets[0] {
		candidates[loc] = struct{}{}
	}
	for _, set := range sets[1:] {
		for loc := range candidates {
			if _, ok := set[loc]; !ok {
				delete(candidates, loc)
			}
		}
	}
	return candidates
}

// verify reports whether text contains the whole query, or every query term.
// Terms are checked against both the raw lower-cased text and its token
// stream, since tokenization removes punctuation from inside words.
func verify(text, needle string, terms []string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, needle) {
		return true
	}
	normalized := strings.Join(tokenizer.Terms(text), " ")
	for _, term := range terms {
		if !strings.Contains(lower, term) && !strings.Contains(normalized, term) {
			return false
		}
	}
	return true
}

func page(locs []corpus.Location, text func(corpus.Location) (string, bool), maxResults int, path string) *Result {
	n := len(locs)
	if maxResults > 0 && n > maxResults {
		n = maxResults
	}
	results := make([]ResultEntry, 0, n)
	for _, loc := range locs[:n] {
		t, _ := text(loc)
		results = append(results, NewResultEntry(loc, t))
	}
	return &Result{
		Results:    results,
		TotalCount: len(locs),
		HasMore:    len(locs) > len(results),
		Path:       path,
	}
}

// fallbackScan walks the corpus testing each verse for the whole query as a
// case-insensitive substring.
func (e *Engine) fallbackScan(ctx context.Context, query string, maxResults int) (*Result, error) {
	result := &Result{Results: []ResultEntry{}, Path: PathFallback}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || e.source == nil {
		return result, nil
	}
	_, err := corpus.Walk(ctx, e.source, func(ch *corpus.Chapter) error {
		for _, v := range ch.Verses {
			if !strings.Contains(strings.ToLower(v.Text), needle) {
				continue
			}
			result.TotalCount++
			if maxResults == 0 || len(result.Results) < maxResults {
				result.Results = append(result.Results, NewResultEntry(ch.Location(v), v.Text))
			}
		}
		return nil
	}, corpus.WithSkipHook(func(book, chapter int, err error) {
		e.logger.Debug("fallback scan skipped chapter", "book", book, "chapter", chapter, "error", err)
	}))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("fallback scan: %w: %v", apperrors.ErrTimeout, err)
		}
		return nil, fmt.Errorf("fallback scan: %w", err)
	}
	result.HasMore = result.TotalCount > len(result.Results)
	return result, nil
}
