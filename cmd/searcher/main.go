package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/concordance"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/crossref"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting scripture search service",
		"port", cfg.Server.Port,
		"corpus_kind", cfg.Corpus.Kind,
		"corpus_path", cfg.Corpus.Path,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSource, err := corpus.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open corpus", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	var recorder *events.Recorder
	if cfg.Kafka.Enabled {
		indexProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		defer indexProducer.Close()
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()

		indexCollector := events.NewBatchCollector(indexProducer, 20, time.Second)
		analyticsCollector := events.NewBatchCollector(analyticsProducer, 500, 5*time.Second)
		indexCollector.Start(ctx)
		analyticsCollector.Start(ctx)
		defer indexCollector.Close()
		defer analyticsCollector.Close()
		recorder = events.NewRecorder(indexCollector, analyticsCollector)
		slog.Info("event publishing enabled",
			"index_topic", cfg.Kafka.Topics.IndexEvents,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	builder := indexer.NewBuilder(src, indexer.BuilderOptions(cfg)...)
	indexes := indexer.NewIndexes(builder, cfg, m, indexer.Observers(
		indexer.MetricsObserver(m),
		recorder.IndexTransition,
	))
	defer indexes.Cancel()

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			store := cache.NewBreakerStore(redisClient, resilience.CircuitBreakerConfig{
				ResetTimeout: 15 * time.Second,
				OnStateChange: func(name string, _, to resilience.State) {
					m.SetBreakerState(name, int(to))
				},
			})
			queryCache = cache.New(store, cfg.Redis.CacheTTL, cacheNamespace(cfg), m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Register("search_index", health.IndexCheck(func() string { return string(indexes.Search.State()) }))
	checker.Register("concordance_index", health.IndexCheck(func() string { return string(indexes.Concordance.State()) }))
	checker.Register("crossref_index", health.IndexCheck(func() string { return string(indexes.CrossRef.State()) }))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping))
	}

	eng := engine.New(indexes.Search, src,
		engine.WithWarmOnQuery(cfg.Search.WarmOnQuery),
		engine.WithMetrics(m),
	)
	h := handler.New(handler.Deps{
		Searcher:     eng,
		Concordance:  concordance.New(indexes.Concordance, m),
		CrossRefs:    crossref.New(indexes.CrossRef, m),
		Indexes:      []handler.IndexControl{indexes.Search, indexes.Concordance, indexes.CrossRef},
		Cache:        queryCache,
		Recorder:     recorder,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler(false))

	var limiter *middleware.ClientLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewClientLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitBurst)
	}
	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.Metrics(m),
		middleware.RateLimit(limiter),
		middleware.Timeout(cfg.Search.QueryTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Indexer.BuildOnStartup {
		indexes.Warm()
		slog.Info("index warm-up started")
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		indexes.Cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("scripture search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("scripture search service stopped")
}

// cacheNamespace keys cache entries by corpus location so that services over
// different corpora can share one Redis.
func cacheNamespace(cfg *config.Config) string {
	sum := blake3.Sum256([]byte(cfg.Corpus.Kind + "\x00" + cfg.Corpus.Path + "\x00" + cfg.Postgres.DSN()))
	return hex.EncodeToString(sum[:8])
}
