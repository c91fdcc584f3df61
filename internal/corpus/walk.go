package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

// WalkFunc receives each readable chapter in canonical order. A non-nil
// error aborts the walk.
type WalkFunc func(ch *Chapter) error

// WalkStats summarises one pass over the corpus.
type WalkStats struct {
	Books    int
	Chapters int
	Skipped  int
}

type walkOptions struct {
	limiter *rate.Limiter
	retry   *resilience.RetryConfig
	onSkip  func(book, chapter int, err error)
	onBooks func(books []Book)
}

type WalkOption func(*walkOptions)

// WithLimiter paces chapter fetches. Waiting on the limiter is also where a
// long walk yields to the rest of the process.
func WithLimiter(l *rate.Limiter) WalkOption {
	return func(o *walkOptions) { o.limiter = l }
}

// WithRetry retries transient chapter failures before skipping the chapter.
// Chapters reported as unavailable are never retried.
func WithRetry(cfg resilience.RetryConfig) WalkOption {
	return func(o *walkOptions) {
		cfg.Retryable = func(err error) bool {
			return !errors.Is(err, apperrors.ErrChapterUnavailable) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}
		o.retry = &cfg
	}
}

// WithSkipHook is called for every chapter that could not be read.
func WithSkipHook(fn func(book, chapter int, err error)) WalkOption {
	return func(o *walkOptions) { o.onSkip = fn }
}

// WithBooksHook receives the book list once, before the first chapter.
func WithBooksHook(fn func(books []Book)) WalkOption {
	return func(o *walkOptions) { o.onBooks = fn }
}

// Walk visits every chapter of src in canonical order. Unreadable chapters
// are skipped. Cancellation of ctx is checked between chapters; when it
// fires Walk returns the stats so far and ctx.Err().
func Walk(ctx context.Context, src Source, fn WalkFunc, opts ...WalkOption) (WalkStats, error) {
	o := walkOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onSkip == nil {
		logger := slog.Default().With("component", "corpus-walker")
		o.onSkip = func(book, chapter int, err error) {
			logger.Warn("skipping unreadable chapter", "book", book, "chapter", chapter, "error", err)
		}
	}

	var stats WalkStats
	books, err := src.Books(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing books: %w", err)
	}
	if o.onBooks != nil {
		o.onBooks(books)
	}
	for _, book := range books {
		stats.Books++
		for n := 1; n <= book.Chapters; n++ {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if o.limiter != nil {
				if err := o.limiter.Wait(ctx); err != nil {
					if ctx.Err() != nil {
						return stats, ctx.Err()
					}
					return stats, fmt.Errorf("pacing chapter fetch: %w", err)
				}
			}
			ch, err := fetch(ctx, src, book.ID, n, o.retry)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.Skipped++
				o.onSkip(book.ID, n, err)
				continue
			}
			stats.Chapters++
			if err := fn(ch); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func fetch(ctx context.Context, src Source, book, chapter int, retry *resilience.RetryConfig) (*Chapter, error) {
	if retry == nil {
		return src.Chapter(ctx, book, chapter)
	}
	var ch *Chapter
	name := fmt.Sprintf("chapter %d:%d", book, chapter)
	err := resilience.Retry(ctx, name, *retry, func() error {
		var err error
		ch, err = src.Chapter(ctx, book, chapter)
		return err
	})
	return ch, err
}
