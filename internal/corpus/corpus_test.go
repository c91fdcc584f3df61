package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

func TestLocationOrderingAndKeys(t *testing.T) {
	locs := []Location{{2, 1, 1}, {1, 2, 1}, {1, 1, 10}, {1, 1, 2}, {1, 1, 2}}
	got := Dedupe(locs)
	assert.Equal(t, []Location{{1, 1, 2}, {1, 1, 10}, {1, 2, 1}, {2, 1, 1}}, got)

	loc, err := ParseKey("43:3:16")
	require.NoError(t, err)
	assert.Equal(t, Location{43, 3, 16}, loc)
	assert.Equal(t, "43:3:16", loc.Key())

	for _, bad := range []string{"", "1:2", "a:1:1", "1:0:1", "1:1:1:1"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocationJSON(t *testing.T) {
	data, err := json.Marshal([]Location{{1, 1, 1}, {66, 22, 21}})
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,1,1],[66,22,21]]`, string(data))

	var back []Location
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []Location{{1, 1, 1}, {66, 22, 21}}, back)

	var bad Location
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &bad))
}

func TestCanon(t *testing.T) {
	books := Canon()
	require.Len(t, books, 66)
	assert.Equal(t, "Genesis", books[0].Name)
	assert.Equal(t, 150, books[18].Chapters)
	assert.Equal(t, "Matthew", BookName(OldTestamentBooks+1))
	assert.Equal(t, "", BookName(67))
}

func toyCorpus() *MemorySource {
	return NewMemorySource().
		Add(Location{1, 1, 1}, "In the beginning God created").
		Add(Location{1, 1, 2}, "And the earth was without form").
		Add(Location{2, 1, 1}, "God is love")
}

func TestMemorySourceBooksAndChapters(t *testing.T) {
	src := toyCorpus()
	books, err := src.Books(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Book{{ID: 1, Name: "Genesis", Chapters: 1}, {ID: 2, Name: "Exodus", Chapters: 1}}, books)

	ch, err := src.Chapter(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, ch.Verses, 2)
	assert.Equal(t, Location{1, 1, 2}, ch.Location(ch.Verses[1]))

	_, err = src.Chapter(context.Background(), 3, 1)
	assert.ErrorIs(t, err, apperrors.ErrChapterUnavailable)
}

func TestWalkSkipsUnreadableChapters(t *testing.T) {
	src := toyCorpus().Fail(2, 2, errors.New("disk error"))
	var seen []Location
	var skipped [][2]int
	stats, err := Walk(context.Background(), src, func(ch *Chapter) error {
		for _, v := range ch.Verses {
			seen = append(seen, ch.Location(v))
		}
		return nil
	}, WithSkipHook(func(book, chapter int, err error) {
		skipped = append(skipped, [2]int{book, chapter})
	}))
	require.NoError(t, err)
	assert.Equal(t, []Location{{1, 1, 1}, {1, 1, 2}, {2, 1, 1}}, seen)
	assert.Equal(t, [][2]int{{2, 2}}, skipped)
	assert.Equal(t, WalkStats{Books: 2, Chapters: 2, Skipped: 1}, stats)
}

type flakySource struct {
	*MemorySource
	failuresLeft int
}

func (f *flakySource) Chapter(ctx context.Context, book, chapter int) (*Chapter, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errors.New("connection reset")
	}
	return f.MemorySource.Chapter(ctx, book, chapter)
}

func TestWalkRetriesTransientFailures(t *testing.T) {
	src := &flakySource{MemorySource: toyCorpus(), failuresLeft: 1}
	stats, err := Walk(context.Background(), src, func(*Chapter) error { return nil },
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 2, stats.Chapters)
}

func TestWalkStopsOnCancellation(t *testing.T) {
	src := toyCorpus()
	ctx, cancel := context.WithCancel(context.Background())
	stats, err := Walk(ctx, src, func(*Chapter) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Chapters)
}

func TestDirSourceRoundTrip(t *testing.T) {
	root := t.TempDir()
	plain := &Chapter{Book: 1, Number: 1, Verses: []Verse{{Number: 1, Text: "In the beginning God created"}}}
	packed := &Chapter{Book: 1, Number: 3, Verses: []Verse{
		{Number: 2, Text: "second"},
		{Number: 1, Text: "first", Spans: []TaggedSpan{{Identifier: "0430", Text: "God"}}},
	}}
	require.NoError(t, WriteChapter(root, plain, false))
	require.NoError(t, WriteChapter(root, packed, true))

	src := NewDirSource(root)
	books, err := src.Books(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Book{{ID: 1, Name: "Genesis", Chapters: 3}}, books)

	ch, err := src.Chapter(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, ch.Verses, 2)
	assert.Equal(t, "first", ch.Verses[0].Text)
	assert.Equal(t, "0430", ch.Verses[0].Spans[0].Identifier)

	_, err = src.Chapter(context.Background(), 1, 2)
	assert.ErrorIs(t, err, apperrors.ErrChapterUnavailable)
}

func TestSQLSourceOnSQLite(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := NewMemorySource().
		Add(Location{1, 1, 1}, "In the beginning God created",
			TaggedSpan{Identifier: "0430", Text: "God"}, TaggedSpan{Identifier: "0853", Text: "created"}).
		Add(Location{40, 1, 1}, "The book of the generation", TaggedSpan{Identifier: "976", Text: "book"})

	loaded, err := Load(context.Background(), db, DialectSQLite, src)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	sqlSrc := NewSQLSource(db, DialectSQLite)
	books, err := sqlSrc.Books(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Book{{ID: 1, Name: "Genesis", Chapters: 1}, {ID: 40, Name: "Matthew", Chapters: 1}}, books)

	ch, err := sqlSrc.Chapter(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, ch.Verses, 1)
	assert.Equal(t, []TaggedSpan{{Identifier: "0430", Text: "God"}, {Identifier: "0853", Text: "created"}}, ch.Verses[0].Spans)

	_, err = sqlSrc.Chapter(context.Background(), 2, 1)
	assert.ErrorIs(t, err, apperrors.ErrChapterUnavailable)
}

func TestPostgresPlaceholderRewrite(t *testing.T) {
	s := NewSQLSource(nil, DialectPostgres)
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", s.query("SELECT 1 WHERE a = ? AND b = ?"))
}

func TestFamilySplit(t *testing.T) {
	assert.Equal(t, OldTestamentBooks, FamilySplit(Canon()))
	assert.Equal(t, 1, FamilySplit([]Book{{ID: 1}, {ID: 2}}))
	assert.Equal(t, 2, FamilySplit([]Book{{ID: 1}, {ID: 2}, {ID: 40}}))
	assert.Equal(t, 5, FamilySplit([]Book{{ID: 5}}))
	assert.Zero(t, FamilySplit(nil))
}
