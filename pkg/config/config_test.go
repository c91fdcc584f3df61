package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, CorpusDir, cfg.Corpus.Kind)
	assert.Zero(t, cfg.Corpus.FamilySplit)
	assert.Equal(t, filepath.Join("data/snapshots", "search-index.json"), cfg.Snapshots.SearchPath())
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
corpus:
  kind: sqlite
  path: /srv/corpus.db
  familySplit: 2
snapshots:
  dir: /srv/snapshots
  search: /abs/search.json.xz
indexer:
  chaptersPerSecond: 40
  retryDelay: 10ms
search:
  defaultLimit: 25
server:
  rateLimit: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("SS_LOGGING_LEVEL", "debug")
	t.Setenv("SS_REDIS_ADDR", "cache:6379")
	t.Setenv("SS_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CorpusSQLite, cfg.Corpus.Kind)
	assert.Equal(t, 2, cfg.Corpus.FamilySplit)
	assert.Equal(t, "/abs/search.json.xz", cfg.Snapshots.SearchPath())
	assert.Equal(t, filepath.Join("/srv/snapshots", "concordance-index.json"), cfg.Snapshots.ConcordancePath())
	assert.Equal(t, 40.0, cfg.Indexer.ChaptersPerSecond)
	assert.Equal(t, 10*time.Millisecond, cfg.Indexer.RetryDelay)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, 20, cfg.Server.RateLimitBurst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadRejectsUnknownCorpusKind(t *testing.T) {
	t.Setenv("SS_CORPUS_KIND", "mongo")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corpus.kind")
}

func TestDevelopmentConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.Equal(t, CorpusDir, cfg.Corpus.Kind)
	assert.Equal(t, "data/crossrefs.tsv", cfg.Corpus.CrossRefPath)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Kafka.Enabled)
}
