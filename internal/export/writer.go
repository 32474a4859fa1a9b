// Package export renders pipeline results into the static JSON documents
// a file host can serve directly, as an alternative to the query API.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/epimap/epi-signal-etl/internal/domain"
	"github.com/epimap/epi-signal-etl/internal/pipeline"
)

// latestDoc is the per-signal snapshot document. Values are keyed region
// first so a map frontend can join on region id in one lookup.
type latestDoc struct {
	UpdatedAt     string                         `json:"updated_at"`
	Notes         string                         `json:"notes,omitempty"`
	Resolution    string                         `json:"resolution"`
	AgeGroupsUsed []string                       `json:"age_groups_used,omitempty"`
	MetricMeta    map[string]domain.MinMax       `json:"metric_meta"`
	Values        map[string]map[string]*float64 `json:"values"`
}

// timeseriesDoc is the per-signal windowed history document.
type timeseriesDoc struct {
	UpdatedAt     string                            `json:"updated_at"`
	WindowDays    int                               `json:"window_days"`
	Resolution    string                            `json:"resolution"`
	AgeGroupsUsed []string                          `json:"age_groups_used,omitempty"`
	Series        map[string][]pipeline.SeriesPoint `json:"series"`
}

// indexEntry describes one exported signal in the root index.
type indexEntry struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Resolution string `json:"resolution"`
	Cadence    string `json:"cadence"`
	UpdatedAt  string `json:"updated_at"`
}

type indexDoc struct {
	UpdatedAt string       `json:"updated_at"`
	Signals   []indexEntry `json:"signals"`
}

// Writer emits the export document tree under a root directory, one
// subdirectory per signal plus a root index.json.
type Writer struct {
	dir    string
	logger *slog.Logger
}

func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// WriteSource writes latest.json and timeseries.json for one source result.
func (w *Writer) WriteSource(result pipeline.Result) error {
	src := result.Source
	dir := filepath.Join(w.dir, src.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir for %s: %w", src.ID, err)
	}

	latest := latestDoc{
		UpdatedAt:     result.UpdatedAt,
		Notes:         src.Notes,
		Resolution:    string(src.Resolution),
		AgeGroupsUsed: result.AgeGroupsUsed,
		MetricMeta:    result.MetricMeta,
		Values:        latestValues(result.Latest),
	}
	if err := writeJSON(filepath.Join(dir, "latest.json"), latest); err != nil {
		return err
	}

	series := timeseriesDoc{
		UpdatedAt:     result.UpdatedAt,
		WindowDays:    src.WindowDays(),
		Resolution:    string(src.Resolution),
		AgeGroupsUsed: result.AgeGroupsUsed,
		Series:        result.Series,
	}
	if err := writeJSON(filepath.Join(dir, "timeseries.json"), series); err != nil {
		return err
	}

	w.logger.Info("export written",
		"source", src.ID,
		"regions", len(result.Latest),
		"periods", len(result.TimeKeys),
	)
	return nil
}

// WriteIndex writes the root index.json, listing the signals that exported
// in this run. Results are listed in the order given.
func (w *Writer) WriteIndex(results []pipeline.Result) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}

	doc := indexDoc{Signals: make([]indexEntry, 0, len(results))}
	for _, result := range results {
		src := result.Source
		doc.Signals = append(doc.Signals, indexEntry{
			ID:         src.ID,
			Label:      src.Label,
			Resolution: string(src.Resolution),
			Cadence:    string(src.Cadence),
			UpdatedAt:  result.UpdatedAt,
		})
		if result.UpdatedAt > doc.UpdatedAt {
			doc.UpdatedAt = result.UpdatedAt
		}
	}
	return writeJSON(filepath.Join(w.dir, "index.json"), doc)
}

func latestValues(latest map[string]pipeline.RegionLatest) map[string]map[string]*float64 {
	values := make(map[string]map[string]*float64, len(latest))
	for region, snapshot := range latest {
		entry := map[string]*float64{
			domain.MetricIncidence: snapshot.Incidence,
			domain.MetricTrend:     snapshot.TrendPct,
		}
		if snapshot.Cases != nil {
			entry[domain.MetricCases] = domain.Float(float64(*snapshot.Cases))
		}
		values[region] = entry
	}
	return values
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
