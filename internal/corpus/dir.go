package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// DirSource serves chapters from a directory tree laid out as
// <root>/<book>/<chapter>.json, where each file may also be stored
// xz-compressed as <chapter>.json.xz.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

type chapterFile struct {
	Verses []Verse `json:"verses"`
}

func (d *DirSource) Books(ctx context.Context) ([]Book, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory %s: %w", d.root, err)
	}
	books := make([]Book, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(entry.Name())
		if err != nil || id < 1 {
			continue
		}
		chapters, err := d.countChapters(filepath.Join(d.root, entry.Name()))
		if err != nil {
			return nil, err
		}
		if chapters == 0 {
			continue
		}
		books = append(books, Book{ID: id, Name: BookName(id), Chapters: chapters})
	}
	slices.SortFunc(books, func(a, b Book) int { return cmpInt(a.ID, b.ID) })
	return books, nil
}

// countChapters returns the highest chapter number present. Gaps are served
// as unavailable chapters.
func (d *DirSource) countChapters(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading book directory %s: %w", dir, err)
	}
	highest := 0
	for _, entry := range entries {
		name := strings.TrimSuffix(strings.TrimSuffix(entry.Name(), ".xz"), ".json")
		if name == entry.Name() {
			continue
		}
		n, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		highest = max(highest, n)
	}
	return highest, nil
}

func (d *DirSource) Chapter(ctx context.Context, book, chapter int) (*Chapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := filepath.Join(d.root, strconv.Itoa(book), strconv.Itoa(chapter)+".json")
	r, closer, err := openMaybeCompressed(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("book %d chapter %d: %w", book, chapter, apperrors.ErrChapterUnavailable)
		}
		return nil, fmt.Errorf("book %d chapter %d: %w", book, chapter, err)
	}
	defer closer.Close()

	var file chapterFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("book %d chapter %d: decoding: %w: %v", book, chapter, apperrors.ErrChapterUnavailable, err)
	}
	slices.SortStableFunc(file.Verses, func(a, b Verse) int { return cmpInt(a.Number, b.Number) })
	return &Chapter{Book: book, Number: chapter, Verses: file.Verses}, nil
}

// WriteChapter stores ch under root, compressing with xz when compress is set.
func WriteChapter(root string, ch *Chapter, compress bool) error {
	dir := filepath.Join(root, strconv.Itoa(ch.Book))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating book directory: %w", err)
	}
	path := filepath.Join(dir, strconv.Itoa(ch.Number)+".json")
	if compress {
		path += ".xz"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chapter file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var xzw *xz.Writer
	if compress {
		xzw, err = xz.NewWriter(f)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
		w = xzw
	}
	if err := json.NewEncoder(w).Encode(chapterFile{Verses: ch.Verses}); err != nil {
		return fmt.Errorf("encoding chapter: %w", err)
	}
	if xzw != nil {
		if err := xzw.Close(); err != nil {
			return fmt.Errorf("closing xz writer: %w", err)
		}
	}
	return f.Close()
}

// openMaybeCompressed opens path, falling back to path+".xz".
func openMaybeCompressed(path string) (io.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}
	f, err = os.Open(path + ".xz")
	if err != nil {
		return nil, nil, err
	}
	xzr, err := xz.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("xz reader: %w", err)
	}
	return xzr, f, nil
}
