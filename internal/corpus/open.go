package corpus

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/postgres"
)

// Open returns the source selected by cfg.Corpus and a function that
// releases it.
func Open(ctx context.Context, cfg *config.Config) (Source, func() error, error) {
	switch cfg.Corpus.Kind {
	case config.CorpusDir:
		return NewDirSource(cfg.Corpus.Path), func() error { return nil }, nil
	case config.CorpusSQLite:
		db, err := OpenSQLite(cfg.Corpus.Path)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLSource(db, DialectSQLite), db.Close, nil
	case config.CorpusPostgres:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLSource(client.DB, DialectPostgres), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown corpus kind %q", cfg.Corpus.Kind)
	}
}
