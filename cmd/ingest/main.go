package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/epimap/epi-signal-etl/internal/adapter/geodata"
	"github.com/epimap/epi-signal-etl/internal/adapter/httpapi"
	"github.com/epimap/epi-signal-etl/internal/config"
	"github.com/epimap/epi-signal-etl/internal/domain"
	"github.com/epimap/epi-signal-etl/internal/feed"
	"github.com/epimap/epi-signal-etl/internal/observability"
	"github.com/epimap/epi-signal-etl/internal/pipeline"
	"github.com/epimap/epi-signal-etl/internal/store"
)

func main() {
	// Optional; real deployments configure via environment directly.
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
	sources := pipeline.DefaultSources(cfg)
	runner := pipeline.NewRunner(sources, fetcher, st, logger, metrics)

	boundaries := geodata.NewCachedProvider(
		geodata.NewClient(cfg.CountiesGeoJSONURL, cfg.FetchTimeout, logger),
		st, logger,
	)

	srv := httpapi.NewServer(cfg.HTTPAddr, st, runner, boundaries, signalInfos(sources), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Warm the boundary cache off the request path.
	go boundaries.Warm(ctx)

	// Start the ingest loop.
	go runner.RunEvery(ctx, cfg.IngestInterval)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func signalInfos(sources []pipeline.Source) []httpapi.SignalInfo {
	infos := make([]httpapi.SignalInfo, 0, len(sources))
	for _, src := range sources {
		infos = append(infos, httpapi.SignalInfo{
			ID:         src.ID,
			Label:      src.Label,
			Metrics:    []string{domain.MetricIncidence, domain.MetricCases, domain.MetricTrend},
			Resolution: string(src.Resolution),
		})
	}
	return infos
}
