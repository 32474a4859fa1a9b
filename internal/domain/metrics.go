package domain

import "math"

// Metric identifiers shared by storage, API, and export documents.
const (
	MetricIncidence = "incidence_7d"
	MetricCases     = "cases_7d"
	MetricTrend     = "trend_pct"
)

// CalcIncidence derives cases per 100 000 population. Defined only when the
// population is positive; otherwise the metric is absent, not zero.
func CalcIncidence(cases, population int64) *float64 {
	if population <= 0 {
		return nil
	}
	v := float64(cases) / float64(population) * 100000.0
	return &v
}

// TrendPct computes the percent change of the latest incidence against the
// value exactly one period earlier. Absent when either side is missing or
// the previous value is zero (division would be undefined, and a 0→x jump
// has no meaningful percentage).
func TrendPct(latest, previous *float64) *float64 {
	if latest == nil || previous == nil || *previous == 0 {
		return nil
	}
	v := (*latest - *previous) / *previous * 100.0
	return &v
}

// Round rounds to the given number of decimal places. Incidences are stored
// with 2, trends with 1, matching the published document shapes.
func Round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// RoundPtr rounds through a possibly-absent value.
func RoundPtr(v *float64, decimals int) *float64 {
	if v == nil {
		return nil
	}
	r := Round(*v, decimals)
	return &r
}

// Float is a literal-pointer helper for optional metric values.
func Float(v float64) *float64 {
	return &v
}

// MinMax is the presentation-scaling range of one metric across all regions
// at the latest period.
type MinMax struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SummaryRange computes the min and max over the finite values present.
// When no finite value exists it returns a fixed neutral {0, 1} range so
// presentation scaling never divides by an empty set.
func SummaryRange(values []*float64) MinMax {
	var (
		found    bool
		min, max float64
	)
	for _, v := range values {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		if !found {
			min, max = *v, *v
			found = true
			continue
		}
		if *v < min {
			min = *v
		}
		if *v > max {
			max = *v
		}
	}
	if !found {
		return MinMax{Min: 0.0, Max: 1.0}
	}
	return MinMax{Min: min, Max: max}
}

// SignalRecord is the persisted unit of output: one metric value for one
// region at one reporting period. The (Signal, Metric, RegionKey, TimeKey)
// quadruple is the primary key in storage; re-ingesting the same period
// overwrites rather than duplicates.
type SignalRecord struct {
	Signal    string
	Metric    string
	RegionKey string
	TimeKey   string
	Value     float64
	Source    string
}
