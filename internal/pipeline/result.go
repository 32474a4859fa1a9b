package pipeline

import (
	"github.com/epimap/epi-signal-etl/internal/domain"
)

// SeriesPoint is one period of a region's computed series.
type SeriesPoint struct {
	TimeKey   string   `json:"date"`
	Incidence *float64 `json:"incidence_7d"`
	Cases     *int64   `json:"cases_7d,omitempty"`
}

// RegionLatest is a region's snapshot at the latest period of a run.
type RegionLatest struct {
	Incidence *float64 `json:"incidence_7d"`
	Cases     *int64   `json:"cases_7d,omitempty"`
	TrendPct  *float64 `json:"trend_pct"`
}

// Result is the in-memory outcome of one successful source pass. It feeds
// both the store persist step and the static JSON export mode.
type Result struct {
	Source        Source
	AgeMode       domain.AgeMode
	AgeGroupsUsed []string // nil when unfiltered
	UpdatedAt     string   // latest time key observed in the feed
	TimeKeys      []string // kept window, chronological

	Series     map[string][]SeriesPoint // region key → chronological points
	Latest     map[string]RegionLatest  // region key → latest snapshot
	MetricMeta map[string]domain.MinMax // metric → presentation range

	// Records is the flat persisted form of Series plus the latest trend.
	Records []domain.SignalRecord
}

// computeMetricMeta derives per-metric min/max across the latest snapshot.
func computeMetricMeta(latest map[string]RegionLatest) map[string]domain.MinMax {
	var incidences, cases, trends []*float64
	for _, v := range latest {
		incidences = append(incidences, v.Incidence)
		trends = append(trends, v.TrendPct)
		if v.Cases != nil {
			cases = append(cases, domain.Float(float64(*v.Cases)))
		} else {
			cases = append(cases, nil)
		}
	}
	return map[string]domain.MinMax{
		domain.MetricIncidence: domain.SummaryRange(incidences),
		domain.MetricCases:     domain.SummaryRange(cases),
		domain.MetricTrend:     domain.SummaryRange(trends),
	}
}
