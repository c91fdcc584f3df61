// Package snapshot defines the versioned on-disk form of the search,
// concordance, and cross-reference indexes, and converts between those
// records and the in-memory index structures.
//
// A snapshot that is missing, undecodable, of another format version, or
// internally inconsistent is reported as ErrSnapshotMissing or
// ErrSnapshotInvalid; callers treat both as "absent" and rebuild.
package snapshot

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
)

// FormatVersion is the only snapshot format this build reads and writes.
const FormatVersion = 1

// SearchStats describes a search snapshot.
type SearchStats struct {
	index.WordStats
	CorpusHash string `json:"corpusHash,omitempty"`
}

// Search is the serialized word index. Required fields are pointers or maps
// so that their absence is detectable after decoding.
type Search struct {
	FormatVersion *int                         `json:"formatVersion"`
	GeneratedAt   string                       `json:"generatedAt"`
	Stats         *SearchStats                 `json:"stats"`
	WordIndex     map[string][]corpus.Location `json:"wordIndex"`
	VerseCache    map[string]string            `json:"verseCache"`
	PrefixIndex   map[string][]string          `json:"prefixIndex,omitempty"`
}

// ConcordanceStats describes a concordance snapshot.
type ConcordanceStats struct {
	index.ConcordanceStats
	CorpusHash string `json:"corpusHash,omitempty"`
}

// Concordance is the serialized concordance index.
type Concordance struct {
	FormatVersion    *int                         `json:"formatVersion"`
	GeneratedAt      string                       `json:"generatedAt"`
	Stats            *ConcordanceStats            `json:"stats"`
	ConcordanceIndex map[string][]corpus.Location `json:"concordanceIndex"`
	VerseCache       map[string]string            `json:"verseCache"`
}

// CrossRef is the serialized cross-reference index, keyed by location key.
type CrossRef struct {
	FormatVersion *int                             `json:"formatVersion"`
	GeneratedAt   string                           `json:"generatedAt"`
	Stats         *index.CrossRefStats             `json:"stats"`
	CrossRefs     map[string][]index.CrossRefGroup `json:"crossRefs"`
}

// NewSearch converts a finalized word index into its snapshot record.
func NewSearch(w *index.WordIndex, corpusHash string, now time.Time) *Search {
	version := FormatVersion
	return &Search{
		FormatVersion: &version,
		GeneratedAt:   now.UTC().Format(time.RFC3339),
		Stats:         &SearchStats{WordStats: w.Stats(), CorpusHash: corpusHash},
		WordIndex:     w.Words(),
		VerseCache:    encodeVerses(w.Verses()),
		PrefixIndex:   w.Prefixes(),
	}
}

// NewConcordance converts a finalized concordance index into its record.
func NewConcordance(c *index.ConcordanceIndex, corpusHash string, now time.Time) *Concordance {
	version := FormatVersion
	return &Concordance{
		FormatVersion:    &version,
		GeneratedAt:      now.UTC().Format(time.RFC3339),
		Stats:            &ConcordanceStats{ConcordanceStats: c.Stats(), CorpusHash: corpusHash},
		ConcordanceIndex: c.Entries(),
		VerseCache:       encodeVerses(c.Verses()),
	}
}

// NewCrossRef converts a finalized cross-reference index into its record.
func NewCrossRef(x *index.CrossRefIndex, now time.Time) *CrossRef {
	version := FormatVersion
	stats := x.Stats()
	refs := make(map[string][]index.CrossRefGroup, len(x.Refs()))
	for loc, groups := range x.Refs() {
		refs[loc.Key()] = groups
	}
	return &CrossRef{
		FormatVersion: &version,
		GeneratedAt:   now.UTC().Format(time.RFC3339),
		Stats:         &stats,
		CrossRefs:     refs,
	}
}

func encodeVerses(verses map[corpus.Location]string) map[string]string {
	out := make(map[string]string, len(verses))
	for loc, text := range verses {
		out[loc.Key()] = text
	}
	return out
}
