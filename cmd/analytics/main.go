// Command analytics consumes the search service's query and index events
// from Kafka, aggregates them in memory and serves the totals at
// GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-port 8081]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 0, "listen port (overrides server.port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port, "brokers", cfg.Kafka.Brokers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumers := []*kafka.Consumer{
		kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleQueryEvent(aggregator)),
		kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents, analytics.HandleIndexEvent(aggregator)),
	}
	var running atomic.Int32
	for _, c := range consumers {
		running.Add(1)
		go func() {
			defer running.Add(-1)
			if err := c.Start(ctx); err != nil {
				slog.Error("consumer stopped", "error", err)
			}
		}()
	}
	slog.Info("analytics consumers started",
		"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		"index_topic", cfg.Kafka.Topics.IndexEvents,
	)

	checker := health.NewChecker()
	checker.Register("kafka_consumers", health.CountCheck(func() int { return int(running.Load()) }, len(consumers)))

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler(true))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
