package pipeline

import (
	"github.com/epimap/epi-signal-etl/internal/config"
	"github.com/epimap/epi-signal-etl/internal/domain"
	"github.com/epimap/epi-signal-etl/internal/feed"
)

// Resolution is the geographic granularity of a feed.
type Resolution string

const (
	ResolutionCounty Resolution = "landkreis"
	ResolutionState  Resolution = "bundesland"
)

// Source is the immutable configuration of one feed. Everything the pipeline
// needs to ingest a source lives here, so sources can be unit-tested in
// isolation and added without code changes elsewhere.
type Source struct {
	ID         string
	Label      string
	URL        string
	Format     feed.Format
	Cadence    domain.Cadence
	Resolution Resolution

	// RegionPrefix namespaces region keys in storage and output, e.g.
	// "STATE:" for state-level feeds whose 2-digit keys would otherwise
	// collide with county key prefixes.
	RegionPrefix string

	// Field specs: ordered column-name aliases per logical field. A nil
	// spec means the feed does not carry that field.
	TimeField       domain.FieldSpec
	RegionField     domain.FieldSpec
	AgeField        domain.FieldSpec
	CasesField      domain.FieldSpec
	PopulationField domain.FieldSpec
	IncidenceField  domain.FieldSpec

	// DesiredAgeGroups lists preferred age band labels, in upstream
	// spellings. Empty means no age preference (the fallback policy then
	// selects the total or keeps everything).
	DesiredAgeGroups []string

	// Window is the trailing window length in periods: days for daily
	// cadence, weeks for weekly.
	Window int

	Notes string
}

// WindowDays returns the window length in days regardless of cadence, for
// output document metadata.
func (s Source) WindowDays() int {
	if s.Cadence == domain.CadenceWeekly {
		return s.Window * 7
	}
	return s.Window
}

// NormalizeRegion canonicalizes a raw region value for this source's
// resolution, without the prefix. "" means the row must be dropped.
func (s Source) NormalizeRegion(raw string) string {
	if s.Resolution == ResolutionCounty {
		return domain.NormalizeCountyKey(raw)
	}
	return domain.NormalizeStateKey(raw)
}

// DefaultSources returns the configured production feeds: daily county-level
// COVID plus weekly state-level influenza and RSV.
func DefaultSources(cfg *config.Config) []Source {
	weeklyTime := domain.FieldSpec{"Meldewoche", "Meldwoche", "Week"}
	weeklyRegion := domain.FieldSpec{"Region_Id", "Region_ID", "RegionId"}
	weeklyAge := domain.FieldSpec{"Altersgruppe", "Altergruppe", "AgeGroup"}
	weeklyCases := domain.FieldSpec{"Fallzahl", "Faelle", "Fälle", "Cases"}
	weeklyIncidence := domain.FieldSpec{"Inzidenz", "Inzidenz_7Tage", "Incidence"}

	return []Source{
		{
			ID:              "covid",
			Label:           "COVID-19 (RKI Landkreis, 7-day)",
			URL:             cfg.CovidCSVURL,
			Format:          feed.FormatCSV,
			Cadence:         domain.CadenceDaily,
			Resolution:      ResolutionCounty,
			TimeField:       domain.FieldSpec{"Meldedatum"},
			RegionField:     domain.FieldSpec{"Landkreis_id", "IdLandkreis"},
			AgeField:        domain.FieldSpec{"Altersgruppe"},
			CasesField:      domain.FieldSpec{"Faelle_7-Tage", "Faelle_7_Tage"},
			PopulationField: domain.FieldSpec{"Bevoelkerung"},
			IncidenceField:  domain.FieldSpec{"Inzidenz_7-Tage", "Inzidenz_7_Tage"},
			Window:          cfg.DaysBack,
			Notes:           "COVID-19 at Landkreis level; incidence recomputed from summed cases and population.",
		},
		{
			ID:               "influenza",
			Label:            "Influenza (RKI IfSG, Bundesland, weekly)",
			URL:              cfg.InfluenzaTSVURL,
			Format:           feed.FormatTSV,
			Cadence:          domain.CadenceWeekly,
			Resolution:       ResolutionState,
			RegionPrefix:     "STATE:",
			TimeField:        weeklyTime,
			RegionField:      weeklyRegion,
			AgeField:         weeklyAge,
			CasesField:       weeklyCases,
			IncidenceField:   weeklyIncidence,
			DesiredAgeGroups: []string{"00-14", "0-14", "05-14", "0-4", "00-04"},
			Window:           cfg.WeeksBack,
			Notes:            "Influenza is provided weekly at Bundesland level; counties inherit their state's value.",
		},
		{
			ID:               "rsv",
			Label:            "RSV (RKI IfSG, Bundesland, weekly)",
			URL:              cfg.RSVTSVURL,
			Format:           feed.FormatTSV,
			Cadence:          domain.CadenceWeekly,
			Resolution:       ResolutionState,
			RegionPrefix:     "STATE:",
			TimeField:        weeklyTime,
			RegionField:      weeklyRegion,
			AgeField:         weeklyAge,
			CasesField:       weeklyCases,
			IncidenceField:   weeklyIncidence,
			DesiredAgeGroups: []string{"00-04", "0-4", "00-14", "0-14"},
			Window:           cfg.WeeksBack,
			Notes:            "RSV is provided weekly at Bundesland level; counties inherit their state's value.",
		},
	}
}
