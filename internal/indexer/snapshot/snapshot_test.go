package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

var (
	gen11 = corpus.Location{Book: 1, Chapter: 1, Verse: 1}
	jn11  = corpus.Location{Book: 43, Chapter: 1, Verse: 1}
	now   = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

func sampleWordIndex() *index.WordIndex {
	w := index.NewWordIndex()
	w.AddVerse(gen11, "In the beginning God created the heaven and the earth.")
	w.AddVerse(jn11, "In the beginning was the Word")
	w.Finalize()
	return w
}

func TestSearchRoundTrip(t *testing.T) {
	for _, name := range []string{"search.json", "search.json.xz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			w := sampleWordIndex()
			require.NoError(t, Write(path, NewSearch(w, "abc123", now)))

			_, err := os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err), "temp file is renamed away")

			loaded, meta, err := LoadSearch(path)
			require.NoError(t, err)
			assert.Equal(t, "abc123", meta.CorpusHash)
			assert.Equal(t, "2026-01-02T03:04:05Z", meta.GeneratedAt)
			assert.Equal(t, w.Stats(), loaded.Stats())
			assert.Equal(t, w.Lookup("the"), loaded.Lookup("the"))
			assert.Equal(t, w.Vocabulary(), loaded.Vocabulary())
			assert.Equal(t, w.Prefixes(), loaded.Prefixes())
			text, ok := loaded.Text(jn11)
			require.True(t, ok)
			assert.Equal(t, "In the beginning was the Word", text)
		})
	}
}

func TestLoadSearchDerivesMissingPrefixIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.json")
	w := sampleWordIndex()
	rec := NewSearch(w, "", now)
	rec.PrefixIndex = nil
	require.NoError(t, Write(path, rec))

	loaded, _, err := LoadSearch(path)
	require.NoError(t, err)
	assert.Equal(t, w.Prefixes(), loaded.Prefixes())
}

func TestLoadSearchMissing(t *testing.T) {
	_, _, err := LoadSearch(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, apperrors.ErrSnapshotMissing)

	_, _, err = LoadSearch("")
	assert.ErrorIs(t, err, apperrors.ErrSnapshotMissing)
}

func TestLoadSearchRejectsInconsistentSnapshots(t *testing.T) {
	cases := map[string]func(*Search){
		"version mismatch": func(s *Search) {
			v := FormatVersion + 1
			s.FormatVersion = &v
		},
		"version absent":        func(s *Search) { s.FormatVersion = nil },
		"stats absent":          func(s *Search) { s.Stats = nil },
		"word index absent":     func(s *Search) { s.WordIndex = nil },
		"unique words mismatch": func(s *Search) { s.Stats.UniqueWords++ },
		"missing verse":         func(s *Search) { delete(s.VerseCache, jn11.Key()) },
		"bad verse key":         func(s *Search) { s.VerseCache["x:1:1"] = "?" },
		"unnormalized token": func(s *Search) {
			s.WordIndex["God"] = s.WordIndex["god"]
			delete(s.WordIndex, "god")
		},
		"foreign prefix entry":  func(s *Search) { s.PrefixIndex["zz"] = []string{"god"} },
		"prefix entry dropped":  func(s *Search) { delete(s.PrefixIndex, "go") },
		"prefix token dropped":  func(s *Search) { s.PrefixIndex["beg"] = []string{} },
		"prefix token repeated": func(s *Search) { s.PrefixIndex["wo"] = []string{"word", "word"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "search.json")
			rec := NewSearch(sampleWordIndex(), "", now)
			mutate(rec)
			require.NoError(t, Write(path, rec))

			_, _, err := LoadSearch(path)
			assert.ErrorIs(t, err, apperrors.ErrSnapshotInvalid)
			assert.True(t, apperrors.IsSnapshotUnusable(err))
		})
	}
}

func TestLoadSearchRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "search.json")
	require.NoError(t, os.WriteFile(plain, []byte("{not json"), 0o644))
	_, _, err := LoadSearch(plain)
	assert.ErrorIs(t, err, apperrors.ErrSnapshotInvalid)

	compressed := filepath.Join(dir, "search.json.xz")
	require.NoError(t, os.WriteFile(compressed, []byte("plain bytes"), 0o644))
	_, _, err = LoadSearch(compressed)
	assert.ErrorIs(t, err, apperrors.ErrSnapshotInvalid)
}

func TestConcordanceRoundTripNormalizesKeys(t *testing.T) {
	c := index.NewConcordanceIndex()
	c.AddVerse(gen11, "In the beginning God created", []corpus.TaggedSpan{{Identifier: "0430", Text: "God"}}, index.FamilyH)
	c.AddVerse(jn11, "In the beginning was the Word", []corpus.TaggedSpan{{Identifier: "G3056", Text: "Word"}}, index.FamilyG)
	c.Finalize()

	path := filepath.Join(t.TempDir(), "concordance.json.xz")
	rec := NewConcordance(c, "hash", now)
	// A snapshot written by an older tool with zero-padded keys.
	rec.ConcordanceIndex["H0430"] = rec.ConcordanceIndex["H430"]
	delete(rec.ConcordanceIndex, "H430")
	require.NoError(t, Write(path, rec))

	loaded, meta, err := LoadConcordance(path)
	require.NoError(t, err)
	assert.Equal(t, "hash", meta.CorpusHash)
	assert.Equal(t, []corpus.Location{gen11}, loaded.Lookup("H430"))
	assert.Equal(t, []corpus.Location{jn11}, loaded.Lookup("G3056"))
	assert.Equal(t, c.Stats(), loaded.Stats())
}

func TestLoadConcordanceRejectsBareKeys(t *testing.T) {
	c := index.NewConcordanceIndex()
	c.AddVerse(gen11, "text", []corpus.TaggedSpan{{Identifier: "H1", Text: "t"}}, index.FamilyH)
	c.Finalize()
	rec := NewConcordance(c, "", now)
	rec.ConcordanceIndex["430"] = []corpus.Location{gen11}

	path := filepath.Join(t.TempDir(), "concordance.json")
	require.NoError(t, Write(path, rec))
	_, _, err := LoadConcordance(path)
	assert.ErrorIs(t, err, apperrors.ErrSnapshotInvalid)
}

func TestCrossRefRoundTrip(t *testing.T) {
	x := index.NewCrossRefIndex()
	x.Add(jn11, "creation", gen11)
	x.Finalize()

	path := filepath.Join(t.TempDir(), "crossrefs.json")
	require.NoError(t, Write(path, NewCrossRef(x, now)))
	loaded, _, err := LoadCrossRef(path)
	require.NoError(t, err)
	assert.Equal(t, x.Refs(), loaded.Refs())

	rec := NewCrossRef(x, now)
	rec.Stats.Sources = 5
	require.NoError(t, Write(path, rec))
	_, _, err = LoadCrossRef(path)
	assert.ErrorIs(t, err, apperrors.ErrSnapshotInvalid)
}
