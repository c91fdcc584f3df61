// Package indexer builds the search and concordance indexes by walking a
// corpus Source chapter by chapter. The same Builder serves the offline
// indexbuild command and the runtime managers' lazy rebuild.
package indexer

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"strconv"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/tracing"
)

// BuildStats describes one walk over the corpus.
type BuildStats struct {
	Books           int           `json:"books"`
	Chapters        int           `json:"chapters"`
	ChaptersSkipped int           `json:"chaptersSkipped"`
	Verses          int           `json:"verses"`
	RejectedTags    int           `json:"rejectedTags"`
	CorpusHash      string        `json:"corpusHash"`
	Duration        time.Duration `json:"duration"`
}

type Builder struct {
	src         corpus.Source
	familySplit int
	retry       *resilience.RetryConfig
	limiter     *rate.Limiter
	logger      *slog.Logger
}

type Option func(*Builder)

// WithFamilySplit sets the last book whose bare identifiers take family "H".
// Zero, the default, derives it from the corpus's book list on every walk
// (see corpus.FamilySplit).
func WithFamilySplit(book int) Option {
	return func(b *Builder) { b.familySplit = book }
}

func WithRetry(cfg resilience.RetryConfig) Option {
	return func(b *Builder) { b.retry = &cfg }
}

// WithLimiter paces chapter reads; runtime builds use it to stay out of the
// way of queries.
func WithLimiter(l *rate.Limiter) Option {
	return func(b *Builder) { b.limiter = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

func NewBuilder(src corpus.Source, opts ...Option) *Builder {
	b := &Builder{
		src:    src,
		logger:      slog.Default().With("component", "index-builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Family returns the identifier family for bare identifiers in book, given
// the last "H" book.
func Family(split, book int) string {
	if book <= split {
		return index.FamilyH
	}
	return index.FamilyG
}

// splitFor resolves the family split for one walk over books.
func (b *Builder) splitFor(books []corpus.Book) int {
	if b.familySplit > 0 {
		return b.familySplit
	}
	return corpus.FamilySplit(books)
}

// BuildSearch builds the word index only.
func (b *Builder) BuildSearch(ctx context.Context) (*index.WordIndex, BuildStats, error) {
	w := index.NewWordIndex()
	stats, err := b.walk(ctx, "search", func(loc corpus.Location, v corpus.Verse, _ string) int {
		w.AddVerse(loc, v.Text)
		return 0
	})
	if err != nil {
		return nil, stats, err
	}
	w.Finalize()
	ws := w.Stats()
	b.logger.Info("search index built",
		"verses", ws.Verses,
		"words", ws.Words,
		"unique_words", ws.UniqueWords,
		"prefixes", ws.Prefixes,
		"chapters_skipped", stats.ChaptersSkipped,
		"duration", stats.Duration,
	)
	return w, stats, nil
}

// BuildConcordance builds the concordance index only.
func (b *Builder) BuildConcordance(ctx context.Context) (*index.ConcordanceIndex, BuildStats, error) {
	c := index.NewConcordanceIndex()
	stats, err := b.walk(ctx, "concordance", func(loc corpus.Location, v corpus.Verse, family string) int {
		return len(c.AddVerse(loc, v.Text, v.Spans, family))
	})
	if err != nil {
		return nil, stats, err
	}
	c.Finalize()
	cs := c.Stats()
	b.logger.Info("concordance index built",
		"verses", cs.Verses,
		"identifiers", cs.Identifiers,
		"occurrences", cs.Occurrences,
		"rejected_tags", stats.RejectedTags,
		"chapters_skipped", stats.ChaptersSkipped,
		"duration", stats.Duration,
	)
	return c, stats, nil
}

// BuildAll fills both indexes from a single walk.
func (b *Builder) BuildAll(ctx context.Context) (*index.WordIndex, *index.ConcordanceIndex, BuildStats, error) {
	w := index.NewWordIndex()
	c := index.NewConcordanceIndex()
	stats, err := b.walk(ctx, "all", func(loc corpus.Location, v corpus.Verse, family string) int {
		w.AddVerse(loc, v.Text)
		return len(c.AddVerse(loc, v.Text, v.Spans, family))
	})
	if err != nil {
		return nil, nil, stats, err
	}
	w.Finalize()
	c.Finalize()
	b.logger.Info("indexes built",
		"verses", stats.Verses,
		"unique_words", w.Stats().UniqueWords,
		"identifiers", c.Stats().Identifiers,
		"chapters_skipped", stats.ChaptersSkipped,
		"duration", stats.Duration,
	)
	return w, c, stats, nil
}

// walk feeds every verse, with the identifier family of its book, to add and
// fingerprints the corpus as it goes. add returns the number of tagged spans
// it rejected.
func (b *Builder) walk(ctx context.Context, name string, add func(corpus.Location, corpus.Verse, string) int) (BuildStats, error) {
	start := time.Now()
	var stats BuildStats
	hasher := blake3.New()
	ctx, root := tracing.StartSpan(ctx, "build:"+name, logger.RequestID(ctx))
	var book *tracing.Span
	bookVerses := 0
	endBook := func() {
		if book != nil {
			book.SetAttr("verses", bookVerses)
			book.End()
		}
	}

	split := b.familySplit
	opts := []corpus.WalkOption{
		corpus.WithBooksHook(func(books []corpus.Book) {
			split = b.splitFor(books)
		}),
		corpus.WithSkipHook(func(book, chapter int, err error) {
			b.logger.Warn("skipping unreadable chapter",
				"index", name,
				"book", book,
				"chapter", chapter,
				"error", err,
			)
		}),
	}
	if b.retry != nil {
		opts = append(opts, corpus.WithRetry(*b.retry))
	}
	if b.limiter != nil {
		opts = append(opts, corpus.WithLimiter(b.limiter))
	}

	ws, err := corpus.Walk(ctx, b.src, func(ch *corpus.Chapter) error {
		if book == nil || book.Name != bookSpanName(ch.Book) {
			endBook()
			_, book = tracing.StartChildSpan(ctx, bookSpanName(ch.Book))
			bookVerses = 0
		}
		bookVerses += len(ch.Verses)
		for _, v := range ch.Verses {
			loc := ch.Location(v)
			fingerprint(hasher, loc, v.Text)
			stats.RejectedTags += add(loc, v, Family(split, loc.Book))
			stats.Verses++
		}
		b.logger.Debug("chapter indexed",
			"index", name,
			"book", ch.Book,
			"chapter", ch.Number,
			"verses", len(ch.Verses),
		)
		return nil
	}, opts...)

	endBook()
	root.SetAttr("chapters", ws.Chapters)
	root.SetAttr("skipped", ws.Skipped)
	root.End()
	root.Log(b.logger)

	stats.Books = ws.Books
	stats.Chapters = ws.Chapters
	stats.ChaptersSkipped = ws.Skipped
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, fmt.Errorf("building %s index: %w", name, err)
	}
	stats.CorpusHash = hex.EncodeToString(hasher.Sum(nil))
	return stats, nil
}

func bookSpanName(book int) string {
	return "book " + strconv.Itoa(book)
}

func fingerprint(h hash.Hash, loc corpus.Location, text string) {
	h.Write([]byte(loc.Key()))
	h.Write([]byte{'\t'})
	h.Write([]byte(text))
	h.Write([]byte{'\n'})
}
