// Package index holds the in-memory index structures: the inverted word
// index with its verse cache and derived prefix index, and the concordance
// index of lexical identifiers. Both are filled by a single goroutine and
// treated as immutable once Finalize has run, so readers need no locking.
package index

import (
	"maps"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/tokenizer"
)

// Prefix lengths recorded in the prefix index.
const (
	MinPrefixLen = 2
	MaxPrefixLen = 4
)

// WordStats summarises a word index.
type WordStats struct {
	Verses      int `json:"verses"`
	Words       int `json:"words"`
	UniqueWords int `json:"uniqueWords"`
	Prefixes    int `json:"prefixes"`
}

// WordIndex maps tokens to the locations they occur at. A location appears
// once per occurrence of the token in the verse.
type WordIndex struct {
	words       map[string][]corpus.Location
	verses      map[corpus.Location]string
	prefixes    map[string][]string
	vocabulary  []string
	occurrences int
}

func NewWordIndex() *WordIndex {
	return &WordIndex{
		words:  make(map[string][]corpus.Location),
		verses: make(map[corpus.Location]string),
	}
}

// FromParts assembles a finalized index from deserialized snapshot parts.
// A nil prefix map is derived from the word keys.
func FromParts(words map[string][]corpus.Location, verses map[corpus.Location]string, prefixes map[string][]string) *WordIndex {
	w := &WordIndex{words: words, verses: verses, prefixes: prefixes}
	for _, locs := range words {
		w.occurrences += len(locs)
	}
	w.finalize(prefixes == nil)
	return w
}

// AddVerse tokenizes text and records loc under every token.
func (w *WordIndex) AddVerse(loc corpus.Location, text string) {
	w.verses[loc] = text
	for _, term := range tokenizer.Terms(text) {
		w.words[term] = append(w.words[term], loc)
		w.occurrences++
	}
}

// Finalize derives the prefix index and the sorted vocabulary. The index
// must not be modified afterwards.
func (w *WordIndex) Finalize() {
	w.finalize(true)
}

func (w *WordIndex) finalize(derivePrefixes bool) {
	w.vocabulary = slices.Sorted(maps.Keys(w.words))
	if derivePrefixes {
		w.prefixes = DerivePrefixes(w.vocabulary)
	}
}

// DerivePrefixes maps every prefix of length 2 through min(4, len) of each
// token to the sorted set of tokens starting with it. Lengths are counted
// in runes.
func DerivePrefixes(tokens []string) map[string][]string {
	sets := make(map[string]map[string]struct{})
	for _, token := range tokens {
		runes := []rune(token)
		for n := MinPrefixLen; n <= min(MaxPrefixLen, len(runes)); n++ {
			p := string(runes[:n])
			set, ok := sets[p]
			if !ok {
				set = make(map[string]struct{})
				sets[p] = set
			}
			set[token] = struct{}{}
		}
	}
	out := make(map[string][]string, len(sets))
	for p, set := range sets {
		out[p] = slices.Sorted(maps.Keys(set))
	}
	return out
}

// Lookup returns the locations recorded for token, in insertion order.
func (w *WordIndex) Lookup(token string) []corpus.Location {
	return w.words[token]
}

// Text returns the cached verse text at loc.
func (w *WordIndex) Text(loc corpus.Location) (string, bool) {
	text, ok := w.verses[loc]
	return text, ok
}

// Vocabulary returns every indexed token in sorted order.
func (w *WordIndex) Vocabulary() []string {
	return w.vocabulary
}

// TokensWithPrefix returns the indexed tokens starting with prefix, which
// must be 2 to 4 runes long.
func (w *WordIndex) TokensWithPrefix(prefix string) []string {
	return w.prefixes[prefix]
}

func (w *WordIndex) Words() map[string][]corpus.Location { return w.words }
func (w *WordIndex) Verses() map[corpus.Location]string { return w.verses }
func (w *WordIndex) Prefixes() map[string][]string { return w.prefixes }

func (w *WordIndex) Stats() WordStats {
	return WordStats{
		Verses:      len(w.verses),
		Words:       w.occurrences,
		UniqueWords: len(w.words),
		Prefixes:    len(w.prefixes),
	}
}
