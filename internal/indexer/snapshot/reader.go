package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// Meta carries the descriptive fields of a loaded snapshot.
type Meta struct {
	Path        string
	GeneratedAt string
	CorpusHash  string
}

// decode reads a JSON snapshot, transparently decompressing ".xz" files.
func decode(path string, v any) error {
	if path == "" {
		return fmt.Errorf("no snapshot path configured: %w", apperrors.ErrSnapshotMissing)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, apperrors.ErrSnapshotMissing)
		}
		return fmt.Errorf("opening %s: %w: %v", path, apperrors.ErrSnapshotInvalid, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	if strings.HasSuffix(path, ".xz") {
		xzr, err := xz.NewReader(r)
		if err != nil {
			return fmt.Errorf("%s: xz: %w: %v", path, apperrors.ErrSnapshotInvalid, err)
		}
		r = xzr
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%s: decoding: %w: %v", path, apperrors.ErrSnapshotInvalid, err)
	}
	return nil
}

func invalid(path, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", path, apperrors.ErrSnapshotInvalid, fmt.Sprintf(format, args...))
}

func checkVersion(path string, version *int) error {
	if version == nil {
		return invalid(path, "formatVersion missing")
	}
	if *version != FormatVersion {
		return invalid(path, "formatVersion %d, want %d", *version, FormatVersion)
	}
	return nil
}

func decodeVerses(path string, raw map[string]string) (map[corpus.Location]string, error) {
	verses := make(map[corpus.Location]string, len(raw))
	for key, text := range raw {
		loc, err := corpus.ParseKey(key)
		if err != nil {
			return nil, invalid(path, "verseCache: %v", err)
		}
		verses[loc] = text
	}
	return verses, nil
}

// LoadSearch reads and validates a search snapshot.
func LoadSearch(path string) (*index.WordIndex, Meta, error) {
	var s Search
	if err := decode(path, &s); err != nil {
		return nil, Meta{}, err
	}
	if err := checkVersion(path, s.FormatVersion); err != nil {
		return nil, Meta{}, err
	}
	if s.Stats == nil || s.WordIndex == nil || s.VerseCache == nil {
		return nil, Meta{}, invalid(path, "stats, wordIndex and verseCache are required")
	}
	if s.Stats.UniqueWords != len(s.WordIndex) {
		return nil, Meta{}, invalid(path, "stats.uniqueWords %d does not match %d indexed words", s.Stats.UniqueWords, len(s.WordIndex))
	}
	verses, err := decodeVerses(path, s.VerseCache)
	if err != nil {
		return nil, Meta{}, err
	}
	for token, locs := range s.WordIndex {
		if terms := tokenizer.Terms(token); len(terms) != 1 || terms[0] != token {
			return nil, Meta{}, invalid(path, "wordIndex key %q is not a normalized token", token)
		}
		for _, loc := range locs {
			if _, ok := verses[loc]; !ok {
				return nil, Meta{}, invalid(path, "wordIndex[%q] references %s without a verseCache entry", token, loc)
			}
		}
	}
	prefixes := index.DerivePrefixes(slices.Sorted(maps.Keys(s.WordIndex)))
	if s.PrefixIndex != nil {
		if err := samePrefixes(s.PrefixIndex, prefixes); err != nil {
			return nil, Meta{}, invalid(path, "%v", err)
		}
	}
	meta := Meta{Path: path, GeneratedAt: s.GeneratedAt, CorpusHash: s.Stats.CorpusHash}
	return index.FromParts(s.WordIndex, verses, prefixes), meta, nil
}

// samePrefixes reports how a stored prefix index differs from the one the
// word keys derive. Token order within an entry is not significant.
func samePrefixes(stored, derived map[string][]string) error {
	for prefix, want := range derived {
		got, ok := stored[prefix]
		if !ok {
			return fmt.Errorf("prefixIndex is missing %q", prefix)
		}
		if !slices.Equal(slices.Sorted(slices.Values(got)), want) {
			return fmt.Errorf("prefixIndex[%q] lists %v, want %v", prefix, got, want)
		}
	}
	for prefix := range stored {
		if _, ok := derived[prefix]; !ok {
			return fmt.Errorf("prefixIndex has unexpected prefix %q", prefix)
		}
	}
	return nil
}

// LoadConcordance reads and validates a concordance snapshot. Identifier
// keys are re-normalised, so "H0430" and "H430" entries merge.
func LoadConcordance(path string) (*index.ConcordanceIndex, Meta, error) {
	var c Concordance
	if err := decode(path, &c); err != nil {
		return nil, Meta{}, err
	}
	if err := checkVersion(path, c.FormatVersion); err != nil {
		return nil, Meta{}, err
	}
	if c.Stats == nil || c.ConcordanceIndex == nil || c.VerseCache == nil {
		return nil, Meta{}, invalid(path, "stats, concordanceIndex and verseCache are required")
	}
	verses, err := decodeVerses(path, c.VerseCache)
	if err != nil {
		return nil, Meta{}, err
	}
	entries := make(map[string][]corpus.Location, len(c.ConcordanceIndex))
	for raw, locs := range c.ConcordanceIndex {
		family, number, ok := index.ParseIdentifier(raw)
		if !ok || family == "" {
			return nil, Meta{}, invalid(path, "concordanceIndex key %q is not a family-prefixed identifier", raw)
		}
		for _, loc := range locs {
			if _, ok := verses[loc]; !ok {
				return nil, Meta{}, invalid(path, "concordanceIndex[%q] references %s without a verseCache entry", raw, loc)
			}
		}
		key := index.IdentifierKey(family, number)
		entries[key] = append(entries[key], slices.Clone(locs)...)
	}
	meta := Meta{Path: path, GeneratedAt: c.GeneratedAt, CorpusHash: c.Stats.CorpusHash}
	return index.ConcordanceFromParts(entries, verses), meta, nil
}

// LoadCrossRef reads and validates a cross-reference snapshot.
func LoadCrossRef(path string) (*index.CrossRefIndex, Meta, error) {
	var x CrossRef
	if err := decode(path, &x); err != nil {
		return nil, Meta{}, err
	}
	if err := checkVersion(path, x.FormatVersion); err != nil {
		return nil, Meta{}, err
	}
	if x.Stats == nil || x.CrossRefs == nil {
		return nil, Meta{}, invalid(path, "stats and crossRefs are required")
	}
	idx := index.NewCrossRefIndex()
	for key, groups := range x.CrossRefs {
		from, err := corpus.ParseKey(key)
		if err != nil {
			return nil, Meta{}, invalid(path, "crossRefs: %v", err)
		}
		for _, g := range groups {
			idx.Add(from, g.Topic, g.Locations...)
		}
	}
	idx.Finalize()
	if got := idx.Stats().Sources; got != x.Stats.Sources {
		return nil, Meta{}, invalid(path, "stats.sources %d does not match %d entries", x.Stats.Sources, got)
	}
	return idx, Meta{Path: path, GeneratedAt: x.GeneratedAt}, nil
}
