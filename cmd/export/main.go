// Command export runs every configured source once and writes the static
// JSON document tree, for deployments that serve signals from a file host
// instead of the query API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/epimap/epi-signal-etl/internal/config"
	"github.com/epimap/epi-signal-etl/internal/export"
	"github.com/epimap/epi-signal-etl/internal/feed"
	"github.com/epimap/epi-signal-etl/internal/observability"
	"github.com/epimap/epi-signal-etl/internal/pipeline"
	"github.com/epimap/epi-signal-etl/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	fetcher := feed.NewFetcher(cfg.FetchTimeout, logger)
	runner := pipeline.NewRunner(pipeline.DefaultSources(cfg), fetcher, st, logger, metrics)
	writer := export.NewWriter(cfg.ExportDir, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, reports := runner.RunAll(ctx)
	for _, report := range reports {
		if report.Err != nil {
			logger.Error("source failed", "source", report.Source, "state", report.State, "error", report.Err)
		}
	}
	if len(results) == 0 {
		logger.Error("no source produced results, nothing to export")
		os.Exit(1)
	}

	exported := make([]pipeline.Result, 0, len(results))
	for _, result := range results {
		if err := writer.WriteSource(*result); err != nil {
			logger.Error("export failed", "source", result.Source.ID, "error", err)
			continue
		}
		exported = append(exported, *result)
	}
	if len(exported) == 0 {
		logger.Error("all exports failed")
		os.Exit(1)
	}
	if err := writer.WriteIndex(exported); err != nil {
		logger.Error("index export failed", "error", err)
		os.Exit(1)
	}

	logger.Info("export complete", "dir", cfg.ExportDir, "signals", len(exported))
}
