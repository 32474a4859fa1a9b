// Package httpapi exposes the signal store over HTTP for the map frontend,
// alongside health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/epimap/epi-signal-etl/internal/store"
)

const (
	defaultMetric      = "incidence_7d"
	defaultSeriesLimit = 52
	maxSeriesLimit     = 1000
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// SignalStore is the query surface of the canonical store.
type SignalStore interface {
	Latest(ctx context.Context, signal, metric string) (store.LatestResult, error)
	Series(ctx context.Context, signal, metric, region string, limit int) ([]store.Point, error)
}

// BoundaryProvider returns county boundary geometry for the map frontend.
type BoundaryProvider interface {
	CountiesGeoJSON(ctx context.Context) (string, error)
}

// SignalInfo describes one configured signal for the index endpoint.
type SignalInfo struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Metrics    []string `json:"metrics"`
	Resolution string   `json:"resolution"`
}

// Server exposes the query API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	store      SignalStore
	boundaries BoundaryProvider
	signals    []SignalInfo
	logger     *slog.Logger
}

// NewServer creates the HTTP server. boundaries may be nil, in which case
// /api/regions reports no data.
func NewServer(addr string, st SignalStore, ready ReadinessChecker, boundaries BoundaryProvider, signals []SignalInfo, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:      st,
		boundaries: boundaries,
		signals:    signals,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/signals", s.handleSignals)
	mux.HandleFunc("GET /api/latest", s.handleLatest)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/regions", s.handleRegions)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleSignals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"signals": s.signals})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	signal := r.URL.Query().Get("signal")
	if signal == "" {
		writeError(w, http.StatusBadRequest, "signal parameter is required")
		return
	}
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = defaultMetric
	}

	result, err := s.store.Latest(r.Context(), signal, metric)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data for this signal/metric yet")
		return
	}
	if err != nil {
		s.logger.Error("latest query failed", "signal", signal, "metric", metric, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"signal": signal,
		"metric": metric,
		"time":   result.TimeKey,
		"values": result.Values,
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signal := q.Get("signal")
	region := q.Get("region")
	if signal == "" || region == "" {
		writeError(w, http.StatusBadRequest, "signal and region parameters are required")
		return
	}
	metric := q.Get("metric")
	if metric == "" {
		metric = defaultMetric
	}
	limit := defaultSeriesLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSeriesLimit {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer up to 1000")
			return
		}
		limit = n
	}

	points, err := s.store.Series(r.Context(), signal, metric, region, limit)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data for this signal/region yet")
		return
	}
	if err != nil {
		s.logger.Error("series query failed", "signal", signal, "region", region, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"signal": signal,
		"metric": metric,
		"region": region,
		"points": points,
	})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	if s.boundaries == nil {
		writeError(w, http.StatusNotFound, "boundary data not configured")
		return
	}
	text, err := s.boundaries.CountiesGeoJSON(r.Context())
	if err != nil {
		s.logger.Error("boundary fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "boundary data unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text)) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
