// Command wordfreq-api serves the Wikipedia word-frequency API.
//
// Usage:
//
//	go run ./cmd/wordfreq-api [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/app"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/query"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/router"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/httpserver"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting wordfreq api",
		"port", cfg.Server.Port,
		"max_depth", cfg.Crawl.MaxDepth,
		"fan_out", cfg.Crawl.FanOut,
		"max_concurrent_fetches", cfg.Crawl.MaxConcurrentFetches,
		"fetch_delay", cfg.Crawl.FetchDelay,
		"depth_aware_cache", cfg.Crawl.DepthAwareCache,
		"wikipedia", cfg.Wikipedia.Endpoint(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker(0)

	var tracker query.Tracker
	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CrawlEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics.BufferSize, 0, 0)
		collector.Start(ctx)
		tracker = collector
		checker.Register("kafka", health.FromError(producer.Ping, health.StatusDegraded))
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.CrawlEvents)
	}

	pipeline := app.Build(cfg, m, tracker)
	pipeline.RegisterChecks(checker)

	opts := router.Options{
		Metrics:        m,
		Health:         checker,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = middleware.NewLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
		go opts.Limiter.Run(ctx)
		slog.Info("rate limiting enabled",
			"requests_per_window", cfg.RateLimit.RequestsPerWindow,
			"window", cfg.RateLimit.Window,
		)
	}
	h := handler.New(pipeline.Queries, pipeline.Shared.Cache)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Port); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(h, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	slog.Info("wordfreq api listening", "addr", server.Addr)
	exitCode := 0
	if err := httpserver.ListenAndRun(ctx, server, cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("server error", "error", err)
		exitCode = 1
		stop()
	}

	if collector != nil {
		collector.Wait()
		slog.Info("analytics collector drained", "dropped", collector.Dropped())
	}
	slog.Info("wordfreq api stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
