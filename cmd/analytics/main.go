// Command analytics runs the query-analytics service.
//
// It consumes query events published by wordfreq-api from Kafka, aggregates
// them in memory (query counts, latency percentiles, root cache hit rate,
// top and missing articles), optionally snapshots the aggregate to
// PostgreSQL, and serves GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-port 8081]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/httpserver"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	port := flag.Int("port", 8081, "HTTP port for the analytics API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", *port, "topic", cfg.Kafka.Topics.CrawlEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CrawlEvents, analytics.HandleEvent(aggregator))

	checker := health.NewChecker(0)
	checker.Register("kafka", health.FromError(consumer.Ping, health.StatusDown))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("consumer stopped", "error", err)
		}
	}()

	var snapshots analytics.SnapshotLister
	if cfg.Analytics.SnapshotEnabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		st := store.New(pg.DB)
		if err := st.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot schema", "error", err)
			os.Exit(1)
		}
		snapshots = st
		checker.Register("postgres", health.FromError(pg.Ping, health.StatusDown))

		wg.Add(1)
		go func() {
			defer wg.Done()
			analytics.RunSnapshots(ctx, aggregator, st, cfg.Analytics.SnapshotInterval)
		}()
	}

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator, snapshots).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.AccessLog(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	slog.Info("analytics service listening", "addr", server.Addr)
	exitCode := 0
	if err := httpserver.ListenAndRun(ctx, server, cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("server error", "error", err)
		exitCode = 1
		stop()
	}

	wg.Wait()
	slog.Info("analytics service stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
