// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// corpus source, snapshot locations, index building, search limits, and the
// supporting services (Postgres, Redis, Kafka, logging, metrics).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// CORSOrigins enables CORS for the listed origins; "*" allows any.
	CORSOrigins []string `yaml:"corsOrigins"`
	// RateLimit is requests per second per client. Zero disables it.
	RateLimit      float64 `yaml:"rateLimit"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`
}

// Corpus source kinds.
const (
	CorpusDir      = "dir"
	CorpusPostgres = "postgres"
	CorpusSQLite   = "sqlite"
)

// CorpusConfig selects the document source the indexes are built from.
// FamilySplit is the last document id whose tagged spans belong to the
// "H" identifier family; later documents belong to "G". Zero splits the
// corpus's own book list in half (the testament boundary for the canon).
type CorpusConfig struct {
	Kind         string `yaml:"kind"`
	Path         string `yaml:"path"`
	CrossRefPath string `yaml:"crossRefPath"`
	FamilySplit  int    `yaml:"familySplit"`
}

// SnapshotsConfig locates the prebuilt snapshot artifacts.
type SnapshotsConfig struct {
	Dir         string `yaml:"dir"`
	Search      string `yaml:"search"`
	Concordance string `yaml:"concordance"`
	CrossRef    string `yaml:"crossRef"`
}

// SearchPath returns the absolute path of the search snapshot.
func (s SnapshotsConfig) SearchPath() string { return s.join(s.Search) }

// ConcordancePath returns the absolute path of the concordance snapshot.
func (s SnapshotsConfig) ConcordancePath() string { return s.join(s.Concordance) }

// CrossRefPath returns the absolute path of the cross-reference snapshot.
func (s SnapshotsConfig) CrossRefPath() string { return s.join(s.CrossRef) }

func (s SnapshotsConfig) join(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.Dir, name)
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexEvents     string `yaml:"indexEvents"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls chapter retries and pacing while an index is being
// built, and whether the service warms its indexes on startup.
type IndexerConfig struct {
	RetryAttempts     int           `yaml:"retryAttempts"`
	RetryDelay        time.Duration `yaml:"retryDelay"`
	ChaptersPerSecond float64       `yaml:"chaptersPerSecond"`
	BuildOnStartup    bool          `yaml:"buildOnStartup"`
	Compress          bool          `yaml:"compress"`
}

// SearchConfig controls query limits.
type SearchConfig struct {
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	WarmOnQuery  bool          `yaml:"warmOnQuery"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	switch c.Corpus.Kind {
	case CorpusDir, CorpusPostgres, CorpusSQLite:
	default:
		return fmt.Errorf("corpus.kind %q: must be one of %s, %s, %s", c.Corpus.Kind, CorpusDir, CorpusPostgres, CorpusSQLite)
	}
	if c.Corpus.Kind != CorpusPostgres && c.Corpus.Path == "" {
		return fmt.Errorf("corpus.path is required for kind %q", c.Corpus.Kind)
	}
	if c.Corpus.FamilySplit < 0 {
		return fmt.Errorf("corpus.familySplit must not be negative")
	}
	if c.Search.DefaultLimit < 0 || c.Search.MaxResults < 0 {
		return fmt.Errorf("search limits must not be negative")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative")
	}
	if c.Indexer.ChaptersPerSecond < 0 {
		return fmt.Errorf("indexer.chaptersPerSecond must not be negative")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitBurst:  20,
		},
		Corpus: CorpusConfig{
			Kind: CorpusDir,
			Path: "data/corpus",
		},
		Snapshots: SnapshotsConfig{
			Dir:         "data/snapshots",
			Search:      "search-index.json",
			Concordance: "concordance-index.json",
			CrossRef:    "crossref-index.json",
		},
		Indexer: IndexerConfig{
			RetryAttempts:  2,
			RetryDelay:     50 * time.Millisecond,
			BuildOnStartup: true,
		},
		Search: SearchConfig{
			MaxResults:   500,
			DefaultLimit: 50,
			QueryTimeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "scripture",
			User:            "scripture",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "scripture-analytics",
			Topics: KafkaTopics{
				IndexEvents:     "scripture.index-events",
				AnalyticsEvents: "scripture.analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SS_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_SERVER_RATE_LIMIT"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = rps
		}
	}
	if v := os.Getenv("SS_CORPUS_KIND"); v != "" {
		cfg.Corpus.Kind = v
	}
	if v := os.Getenv("SS_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("SS_CORPUS_CROSSREF_PATH"); v != "" {
		cfg.Corpus.CrossRefPath = v
	}
	if v := os.Getenv("SS_SNAPSHOTS_DIR"); v != "" {
		cfg.Snapshots.Dir = v
	}
	if v := os.Getenv("SS_INDEXER_BUILD_ON_STARTUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.BuildOnStartup = b
		}
	}
	if v := os.Getenv("SS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("SS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
