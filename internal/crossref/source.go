// Package crossref builds the cross-reference index from its tab-separated
// source and answers lookups by verse location.
//
// Each source line reads "from<TAB>topic<TAB>to[,to...]" where locations
// use the "book:chapter:verse" key form. Blank lines and lines starting
// with '#' are ignored.
package crossref

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// ParseStats counts what Parse accepted and skipped.
type ParseStats struct {
	Lines   int
	Skipped int
}

// Parse reads a cross-reference source. Malformed lines are logged and
// skipped. ctx is checked between lines.
func Parse(ctx context.Context, r io.Reader) (*index.CrossRefIndex, ParseStats, error) {
	logger := slog.Default().With("component", "crossref-parser")
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	idx := index.NewCrossRefIndex()
	var stats ParseStats
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("reading cross-references: %w", err)
		}
		stats.Lines++
		line, _ := cr.FieldPos(0)
		if err := addRecord(idx, record); err != nil {
			stats.Skipped++
			logger.Warn("skipping malformed cross-reference", "line", line, "error", err)
		}
	}
	idx.Finalize()
	return idx, stats, nil
}

func addRecord(idx *index.CrossRefIndex, record []string) error {
	if len(record) != 3 {
		return fmt.Errorf("want 3 fields, got %d", len(record))
	}
	from, err := corpus.ParseKey(record[0])
	if err != nil {
		return err
	}
	var targets []corpus.Location
	for _, raw := range strings.Split(record[2], ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		to, err := corpus.ParseKey(raw)
		if err != nil {
			return err
		}
		targets = append(targets, to)
	}
	if len(targets) == 0 {
		return errors.New("no target locations")
	}
	idx.Add(from, record[1], targets...)
	return nil
}

// ParseFile parses the source at path, decompressing ".xz" files. A missing
// file is reported as ErrNotFound.
func ParseFile(ctx context.Context, path string) (*index.CrossRefIndex, ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ParseStats{}, fmt.Errorf("cross-reference source %s: %w", path, apperrors.ErrNotFound)
		}
		return nil, ParseStats{}, fmt.Errorf("opening cross-reference source: %w", err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, ParseStats{}, fmt.Errorf("opening xz cross-reference source: %w", err)
		}
		r = xzr
	}
	return Parse(ctx, r)
}
