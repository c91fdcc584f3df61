package index

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
)

// Identifier families. "H" tags the first part of the corpus, "G" the rest.
const (
	FamilyH = "H"
	FamilyG = "G"
)

// Families lists the recognised family letters in lookup order.
var Families = []string{FamilyH, FamilyG}

// ParseIdentifier splits a lexical identifier into its family letter (""
// when bare) and its number with leading zeros removed. "h0430", "H430" and
// "0430" all parse to number "430".
func ParseIdentifier(raw string) (family, number string, ok bool) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if id == "" {
		return "", "", false
	}
	if id[0] == 'H' || id[0] == 'G' {
		family, id = id[:1], id[1:]
	}
	if id == "" {
		return "", "", false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return "", "", false
		}
	}
	number = strings.TrimLeft(id, "0")
	if number == "" {
		number = "0"
	}
	return family, number, true
}

// IdentifierKey joins a family letter and a normalised number.
func IdentifierKey(family, number string) string {
	return family + number
}

// ConcordanceStats summarises a concordance index. Occurrences counts
// distinct identifier and verse pairs.
type ConcordanceStats struct {
	Verses      int            `json:"verses"`
	Identifiers int            `json:"identifiers"`
	Occurrences int            `json:"occurrences"`
	ByFamily    map[string]int `json:"byFamily"`
}

// ConcordanceIndex maps identifiers to the verses they tag. Each verse is
// listed at most once per identifier.
type ConcordanceIndex struct {
	entries     map[string][]corpus.Location
	verses      map[corpus.Location]string
	seen        map[string]corpus.Location
	occurrences int
}

func NewConcordanceIndex() *ConcordanceIndex {
	return &ConcordanceIndex{
		entries: make(map[string][]corpus.Location),
		verses:  make(map[corpus.Location]string),
		seen:    make(map[string]corpus.Location),
	}
}

// ConcordanceFromParts assembles a finalized index from snapshot parts.
func ConcordanceFromParts(entries map[string][]corpus.Location, verses map[corpus.Location]string) *ConcordanceIndex {
	c := &ConcordanceIndex{entries: entries, verses: verses}
	for _, locs := range entries {
		c.occurrences += len(locs)
	}
	c.Finalize()
	return c
}

// AddVerse records every tagged span of the verse at loc. Spans without a
// family letter take defaultFamily. Unparseable identifiers are ignored and
// reported back to the caller.
func (c *ConcordanceIndex) AddVerse(loc corpus.Location, text string, spans []corpus.TaggedSpan, defaultFamily string) (rejected []string) {
	if len(spans) == 0 {
		return nil
	}
	tagged := false
	for _, span := range spans {
		family, number, ok := ParseIdentifier(span.Identifier)
		if !ok {
			rejected = append(rejected, span.Identifier)
			continue
		}
		if family == "" {
			family = defaultFamily
		}
		key := IdentifierKey(family, number)
		tagged = true
		// Verses arrive in canonical order, so a repeat within one verse is
		// always the most recent entry.
		if last, ok := c.seen[key]; ok && last == loc {
			continue
		}
		c.seen[key] = loc
		c.entries[key] = append(c.entries[key], loc)
		c.occurrences++
	}
	if tagged {
		c.verses[loc] = text
	}
	return rejected
}

// Finalize sorts and deduplicates every entry and drops build-only state.
func (c *ConcordanceIndex) Finalize() {
	for key, locs := range c.entries {
		c.entries[key] = corpus.Dedupe(locs)
	}
	c.seen = nil
}

// Lookup returns the canonically sorted locations tagged with key.
func (c *ConcordanceIndex) Lookup(key string) []corpus.Location {
	return c.entries[key]
}

// Text returns the cached verse text at loc.
func (c *ConcordanceIndex) Text(loc corpus.Location) (string, bool) {
	text, ok := c.verses[loc]
	return text, ok
}

func (c *ConcordanceIndex) Entries() map[string][]corpus.Location { return c.entries }

func (c *ConcordanceIndex) Verses() map[corpus.Location]string { return c.verses }

func (c *ConcordanceIndex) Stats() ConcordanceStats {
	stats := ConcordanceStats{
		Verses:      len(c.verses),
		Identifiers: len(c.entries),
		Occurrences: c.occurrences,
		ByFamily:    make(map[string]int, len(Families)),
	}
	for key := range c.entries {
		stats.ByFamily[key[:1]]++
	}
	return stats
}
