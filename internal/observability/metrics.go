package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	RowsParsed  *prometheus.CounterVec // labels: source
	RowsDropped *prometheus.CounterVec // labels: source, reason={malformed,region_key,time_key,age_filter,count}
	SourceRuns  *prometheus.CounterVec // labels: source, outcome={success,failure}
	Upserts     *prometheus.CounterVec // labels: source

	IngestDuration  *prometheus.HistogramVec // labels: source
	LastIngestUnix  prometheus.Gauge
	IngestRunning   prometheus.Gauge
	SourcesDegraded prometheus.Gauge // sources whose last pass used a fallback age tier
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsParsed,
		m.RowsDropped,
		m.SourceRuns,
		m.Upserts,
		m.IngestDuration,
		m.LastIngestUnix,
		m.IngestRunning,
		m.SourcesDegraded,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epi_etl",
			Name:      "rows_parsed_total",
			Help:      "Total raw feed rows parsed, per source.",
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epi_etl",
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during normalization, by source and reason.",
		}, []string{"source", "reason"}),
		SourceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epi_etl",
			Name:      "source_runs_total",
			Help:      "Completed per-source pipeline passes by outcome.",
		}, []string{"source", "outcome"}),
		Upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epi_etl",
			Name:      "store_upserts_total",
			Help:      "Signal records upserted into the store, per source.",
		}, []string{"source"}),
		IngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epi_etl",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of one complete per-source pipeline pass.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		LastIngestUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "epi_etl",
			Name:      "last_ingest_timestamp_seconds",
			Help:      "Unix time of the last completed full ingest run.",
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "epi_etl",
			Name:      "ingest_running",
			Help:      "1 while a full ingest run is in progress.",
		}),
		SourcesDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "epi_etl",
			Name:      "sources_degraded",
			Help:      "Sources whose last pass fell back to a coarser age tier.",
		}),
	}
}
