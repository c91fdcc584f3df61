package corpus

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// MemorySource is an in-memory Source. It backs fixtures and tests, and the
// service uses it for corpora small enough to load eagerly.
type MemorySource struct {
	mu       sync.RWMutex
	chapters map[[2]int]*Chapter
	failing  map[[2]int]error
	fetches  atomic.Int64
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		chapters: make(map[[2]int]*Chapter),
		failing:  make(map[[2]int]error),
	}
}

// Add appends a verse at loc. Verses within a chapter are kept in verse order.
func (m *MemorySource) Add(loc Location, text string, spans ...TaggedSpan) *MemorySource {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int{loc.Book, loc.Chapter}
	ch, ok := m.chapters[key]
	if !ok {
		ch = &Chapter{Book: loc.Book, Number: loc.Chapter}
		m.chapters[key] = ch
	}
	ch.Verses = append(ch.Verses, Verse{Number: loc.Verse, Text: text, Spans: spans})
	slices.SortStableFunc(ch.Verses, func(a, b Verse) int { return cmpInt(a.Number, b.Number) })
	return m
}

// Fail makes every fetch of the chapter return err.
func (m *MemorySource) Fail(book, chapter int, err error) *MemorySource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[[2]int{book, chapter}] = err
	return m
}

// Fetches reports how many Chapter calls have been served.
func (m *MemorySource) Fetches() int64 {
	return m.fetches.Load()
}

func (m *MemorySource) Books(ctx context.Context) ([]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	maxChapter := make(map[int]int)
	for key := range m.chapters {
		if key[1] > maxChapter[key[0]] {
			maxChapter[key[0]] = key[1]
		}
	}
	for key := range m.failing {
		if key[1] > maxChapter[key[0]] {
			maxChapter[key[0]] = key[1]
		}
	}
	books := make([]Book, 0, len(maxChapter))
	for id, chapters := range maxChapter {
		books = append(books, Book{ID: id, Name: BookName(id), Chapters: chapters})
	}
	slices.SortFunc(books, func(a, b Book) int { return cmpInt(a.ID, b.ID) })
	return books, nil
}

func (m *MemorySource) Chapter(ctx context.Context, book, chapter int) (*Chapter, error) {
	m.fetches.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := [2]int{book, chapter}
	if err, ok := m.failing[key]; ok {
		return nil, fmt.Errorf("book %d chapter %d: %w", book, chapter, err)
	}
	ch, ok := m.chapters[key]
	if !ok {
		return nil, fmt.Errorf("book %d chapter %d: %w", book, chapter, apperrors.ErrChapterUnavailable)
	}
	out := &Chapter{Book: ch.Book, Number: ch.Number, Verses: slices.Clone(ch.Verses)}
	return out, nil
}
