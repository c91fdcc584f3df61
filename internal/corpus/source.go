// Package corpus models the immutable scripture corpus the indexes are
// built from: verse locations in canonical order, chapters with optional
// word-tagged spans, and the Source implementations that supply them.
package corpus

import (
	"context"
)

// TaggedSpan is a run of verse text annotated with a lexical identifier.
// Identifiers arrive either bare ("0430") or already carrying a family
// letter ("H0430").
type TaggedSpan struct {
	Identifier string `json:"identifier"`
	Text       string `json:"text"`
}

// Verse is one numbered verse of a chapter.
type Verse struct {
	Number int          `json:"verse"`
	Text   string       `json:"text"`
	Spans  []TaggedSpan `json:"taggedSpans,omitempty"`
}

// Chapter is the unit a Source serves and the unit of work while building.
type Chapter struct {
	Book   int     `json:"book"`
	Number int     `json:"chapter"`
	Verses []Verse `json:"verses"`
}

// Location returns the location of v within the chapter.
func (c *Chapter) Location(v Verse) Location {
	return Location{Book: c.Book, Chapter: c.Number, Verse: v.Number}
}

// Book describes one document of the corpus.
type Book struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Chapters int    `json:"chapters"`
}

// Source supplies the corpus. Chapter may fail for an individual chapter;
// callers skip such chapters and continue. Implementations must be safe for
// concurrent readers.
type Source interface {
	Books(ctx context.Context) ([]Book, error)
	Chapter(ctx context.Context, book, chapter int) (*Chapter, error)
}
