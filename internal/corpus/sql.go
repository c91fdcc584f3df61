package corpus

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// Dialect selects the placeholder syntax of the backing database.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Schema creates the tables SQLSource reads. It is valid for both
// PostgreSQL and SQLite.
const Schema = `
CREATE TABLE IF NOT EXISTS verses (
	book_id  INTEGER NOT NULL,
	chapter  INTEGER NOT NULL,
	verse    INTEGER NOT NULL,
	text     TEXT    NOT NULL,
	PRIMARY KEY (book_id, chapter, verse)
);
CREATE TABLE IF NOT EXISTS tagged_spans (
	book_id    INTEGER NOT NULL,
	chapter    INTEGER NOT NULL,
	verse      INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	identifier TEXT    NOT NULL,
	span_text  TEXT    NOT NULL,
	PRIMARY KEY (book_id, chapter, verse, position)
);`

// SQLSource serves chapters from the verses and tagged_spans tables.
type SQLSource struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLSource(db *sql.DB, dialect Dialect) *SQLSource {
	return &SQLSource{db: db, dialect: dialect}
}

// OpenSQLite opens a bundled SQLite corpus file with the pure Go driver.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite corpus %s: %w", path, err)
	}
	// modernc serialises writers per connection; readers are fine pooled.
	db.SetMaxOpenConns(4)
	return db, nil
}

func (s *SQLSource) query(q string) string {
	if s.dialect == DialectSQLite {
		return q
	}
	// Rewrite ? placeholders to $n for lib/pq.
	out := make([]byte, 0, len(q)+8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, q[i])
	}
	return string(out)
}

func (s *SQLSource) Books(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT book_id, MAX(chapter) FROM verses GROUP BY book_id ORDER BY book_id`)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()
	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Chapters); err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		b.Name = BookName(b.ID)
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating books: %w", err)
	}
	return books, nil
}

func (s *SQLSource) Chapter(ctx context.Context, book, chapter int) (*Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		s.query(`SELECT verse, text FROM verses WHERE book_id = ? AND chapter = ? ORDER BY verse`),
		book, chapter,
	)
	if err != nil {
		return nil, fmt.Errorf("book %d chapter %d: querying verses: %w", book, chapter, err)
	}
	ch := &Chapter{Book: book, Number: chapter}
	byNumber := make(map[int]int)
	for rows.Next() {
		var v Verse
		if err := rows.Scan(&v.Number, &v.Text); err != nil {
			rows.Close()
			return nil, fmt.Errorf("book %d chapter %d: scanning verse: %w", book, chapter, err)
		}
		byNumber[v.Number] = len(ch.Verses)
		ch.Verses = append(ch.Verses, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("book %d chapter %d: iterating verses: %w", book, chapter, err)
	}
	if len(ch.Verses) == 0 {
		return nil, fmt.Errorf("book %d chapter %d: %w", book, chapter, apperrors.ErrChapterUnavailable)
	}

	spans, err := s.db.QueryContext(ctx,
		s.query(`SELECT verse, identifier, span_text FROM tagged_spans WHERE book_id = ? AND chapter = ? ORDER BY verse, position`),
		book, chapter,
	)
	if err != nil {
		return nil, fmt.Errorf("book %d chapter %d: querying spans: %w", book, chapter, err)
	}
	defer spans.Close()
	for spans.Next() {
		var verse int
		var span TaggedSpan
		if err := spans.Scan(&verse, &span.Identifier, &span.Text); err != nil {
			return nil, fmt.Errorf("book %d chapter %d: scanning span: %w", book, chapter, err)
		}
		if idx, ok := byNumber[verse]; ok {
			ch.Verses[idx].Spans = append(ch.Verses[idx].Spans, span)
		}
	}
	if err := spans.Err(); err != nil {
		return nil, fmt.Errorf("book %d chapter %d: iterating spans: %w", book, chapter, err)
	}
	return ch, nil
}

// Load inserts every chapter of src into db, creating the schema first.
// indexbuild uses it to export a corpus into a bundled SQLite file.
func Load(ctx context.Context, db *sql.DB, dialect Dialect, src Source) (int, error) {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return 0, fmt.Errorf("creating schema: %w", err)
	}
	s := &SQLSource{db: db, dialect: dialect}
	verseStmt := s.query(`INSERT INTO verses (book_id, chapter, verse, text) VALUES (?, ?, ?, ?)`)
	spanStmt := s.query(`INSERT INTO tagged_spans (book_id, chapter, verse, position, identifier, span_text) VALUES (?, ?, ?, ?, ?, ?)`)
	loaded := 0
	_, err := Walk(ctx, src, func(ch *Chapter) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		for _, v := range ch.Verses {
			if _, err := tx.ExecContext(ctx, verseStmt, ch.Book, ch.Number, v.Number, v.Text); err != nil {
				tx.Rollback()
				return fmt.Errorf("inserting verse %s: %w", ch.Location(v), err)
			}
			for pos, span := range v.Spans {
				if _, err := tx.ExecContext(ctx, spanStmt, ch.Book, ch.Number, v.Number, pos, span.Identifier, span.Text); err != nil {
					tx.Rollback()
					return fmt.Errorf("inserting span %s/%d: %w", ch.Location(v), pos, err)
				}
			}
			loaded++
		}
		return tx.Commit()
	})
	return loaded, err
}
