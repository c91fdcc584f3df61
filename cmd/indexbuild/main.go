// Command indexbuild builds, verifies and exports the offline artifacts the
// search service starts from.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/crossref"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexbuild",
	Short: "Build and inspect scripture index snapshots",
	Long: `indexbuild walks the configured corpus once and writes the search and
concordance snapshots, plus the cross-reference snapshot when a source file
is configured. The search service loads these on startup and only rebuilds
from the corpus when one is missing or invalid.`,
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build snapshots from the corpus",
	RunE:  runBuild,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Load and validate the configured snapshots",
	RunE:  runVerify,
}

var exportCmd = &cobra.Command{
	Use:   "export-sqlite <path>",
	Short: "Copy the configured corpus into a SQLite file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/development.yaml", "path to config file")
	buildCmd.Flags().Bool("compress", false, "xz-compress snapshots (overrides indexer.compress)")
	buildCmd.Flags().String("out", "", "snapshot directory (overrides snapshots.dir)")
	buildCmd.Flags().StringSlice("only", nil, "indexes to build: search, concordance, crossref")
	rootCmd.AddCommand(buildCmd, verifyCmd, exportCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

type buildReport struct {
	Search      *artifact `json:"search,omitempty"`
	Concordance *artifact `json:"concordance,omitempty"`
	CrossRef    *artifact `json:"crossref,omitempty"`
}

type artifact struct {
	Path  string `json:"path"`
	Stats any    `json:"stats"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("compress") {
		cfg.Indexer.Compress, _ = cmd.Flags().GetBool("compress")
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.Snapshots.Dir = out
	}
	only, _ := cmd.Flags().GetStringSlice("only")
	want, err := selectIndexes(only)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	src, closeSource, err := corpus.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	// Offline builds run unpaced.
	cfg.Indexer.ChaptersPerSecond = 0
	builder := indexer.NewBuilder(src, indexer.BuilderOptions(cfg)...)
	now := time.Now()
	report := &buildReport{}

	g, gctx := errgroup.WithContext(ctx)
	if want[indexer.IndexSearch] || want[indexer.IndexConcordance] {
		g.Go(func() error {
			w, c, stats, err := builder.BuildAll(gctx)
			if err != nil {
				return err
			}
			slog.Info("corpus indexed",
				"books", stats.Books,
				"chapters", stats.Chapters,
				"chapters_skipped", stats.ChaptersSkipped,
				"verses", stats.Verses,
				"rejected_tags", stats.RejectedTags,
				"corpus_hash", stats.CorpusHash,
				"duration", stats.Duration,
			)
			if want[indexer.IndexSearch] {
				path := snapshotPath(cfg.Snapshots.SearchPath(), cfg.Indexer.Compress)
				rec := snapshot.NewSearch(w, stats.CorpusHash, now)
				if err := snapshot.Write(path, rec); err != nil {
					return fmt.Errorf("writing search snapshot: %w", err)
				}
				report.Search = &artifact{Path: path, Stats: rec.Stats}
			}
			if want[indexer.IndexConcordance] {
				path := snapshotPath(cfg.Snapshots.ConcordancePath(), cfg.Indexer.Compress)
				rec := snapshot.NewConcordance(c, stats.CorpusHash, now)
				if err := snapshot.Write(path, rec); err != nil {
					return fmt.Errorf("writing concordance snapshot: %w", err)
				}
				report.Concordance = &artifact{Path: path, Stats: rec.Stats}
			}
			return nil
		})
	}
	if want[indexer.IndexCrossRef] {
		if cfg.Corpus.CrossRefPath == "" {
			slog.Warn("no cross-reference source configured, skipping crossref snapshot")
		} else {
			g.Go(func() error {
				x, stats, err := crossref.ParseFile(gctx, cfg.Corpus.CrossRefPath)
				if err != nil {
					return err
				}
				slog.Info("cross-references parsed", "lines", stats.Lines, "skipped", stats.Skipped)
				path := snapshotPath(cfg.Snapshots.CrossRefPath(), cfg.Indexer.Compress)
				rec := snapshot.NewCrossRef(x, now)
				if err := snapshot.Write(path, rec); err != nil {
					return fmt.Errorf("writing crossref snapshot: %w", err)
				}
				report.CrossRef = &artifact{Path: path, Stats: rec.Stats}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return printJSON(cmd, report)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	report := &buildReport{}
	var failed []string

	if w, meta, err := snapshot.LoadSearch(cfg.Snapshots.SearchPath()); err != nil {
		slog.Error("search snapshot unusable", "error", err)
		failed = append(failed, indexer.IndexSearch)
	} else {
		report.Search = &artifact{Path: meta.Path, Stats: w.Stats()}
	}
	if c, meta, err := snapshot.LoadConcordance(cfg.Snapshots.ConcordancePath()); err != nil {
		slog.Error("concordance snapshot unusable", "error", err)
		failed = append(failed, indexer.IndexConcordance)
	} else {
		report.Concordance = &artifact{Path: meta.Path, Stats: c.Stats()}
	}
	if x, meta, err := snapshot.LoadCrossRef(cfg.Snapshots.CrossRefPath()); err != nil {
		slog.Warn("crossref snapshot unusable", "error", err)
	} else {
		report.CrossRef = &artifact{Path: meta.Path, Stats: x.Stats()}
	}

	if err := printJSON(cmd, report); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("unusable snapshots: %s", strings.Join(failed, ", "))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	src, closeSource, err := corpus.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	db, err := corpus.OpenSQLite(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := corpus.Load(ctx, db, corpus.DialectSQLite, src)
	if err != nil {
		return fmt.Errorf("exporting corpus: %w", err)
	}
	slog.Info("corpus exported", "path", args[0], "verses", n)
	return nil
}

func selectIndexes(only []string) (map[string]bool, error) {
	all := []string{indexer.IndexSearch, indexer.IndexConcordance, indexer.IndexCrossRef}
	want := make(map[string]bool, len(all))
	if len(only) == 0 {
		for _, name := range all {
			want[name] = true
		}
		return want, nil
	}
	for _, name := range only {
		switch name {
		case indexer.IndexSearch, indexer.IndexConcordance, indexer.IndexCrossRef:
			want[name] = true
		default:
			return nil, fmt.Errorf("unknown index %q", name)
		}
	}
	return want, nil
}

// snapshotPath adds the ".xz" suffix when compressing.
func snapshotPath(path string, compress bool) string {
	if compress && !strings.HasSuffix(path, ".xz") {
		return path + ".xz"
	}
	return path
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
