// Package pipeline sequences the per-source ingestion passes: fetch, parse,
// filter, aggregate, compute, persist. A failure in one source never aborts
// the others, and partial idempotent writes self-correct on the next run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/epimap/epi-signal-etl/internal/domain"
	"github.com/epimap/epi-signal-etl/internal/feed"
	"github.com/epimap/epi-signal-etl/internal/observability"
)

// ErrEmptyFeed marks a feed that yielded zero usable rows after filtering
// and row-level drops. The source's pass fails; prior persisted data stays.
var ErrEmptyFeed = errors.New("no usable rows in feed")

// State is a source pass's position in the ingestion state machine.
type State string

const (
	StateFetching    State = "fetching"
	StateParsing     State = "parsing"
	StateFiltering   State = "filtering"
	StateAggregating State = "aggregating"
	StatePersisting  State = "persisting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// TextFetcher retrieves one feed document.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// SignalSink persists computed signal records.
type SignalSink interface {
	UpsertBatch(ctx context.Context, recs []domain.SignalRecord) error
}

// Drop reasons for row-level diagnostics.
const (
	dropMalformed = "malformed"
	dropRegionKey = "region_key"
	dropTimeKey   = "time_key"
	dropAgeFilter = "age_filter"
	dropNoCount   = "count"
)

// SourceReport summarizes one source's pass for logging and metrics.
type SourceReport struct {
	Source      string
	State       State
	AgeMode     domain.AgeMode
	RowsParsed  int
	RowsSkipped int // malformed at parse time
	RowsDropped int // dropped during normalization
	RowsKept    int
	Records     int
	Err         error
}

// Runner executes the ingestion pipeline across all configured sources.
type Runner struct {
	sources []Source
	fetcher TextFetcher
	sink    SignalSink
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	ready   atomic.Bool
}

// NewRunner creates a Runner over the given sources.
func NewRunner(sources []Source, fetcher TextFetcher, sink SignalSink, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		sources: sources,
		fetcher: fetcher,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock swaps the time source for deterministic scheduler tests.
func (r *Runner) SetClock(c clockwork.Clock) {
	r.clock = c
}

// CheckReadiness returns nil once at least one source pass has succeeded.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no source has completed an ingest pass yet")
	}
	return nil
}

// RunAll executes one full ingest: every source in order, each isolated.
// Results are returned for successful sources only; the reports cover all.
func (r *Runner) RunAll(ctx context.Context) ([]*Result, []SourceReport) {
	r.metrics.IngestRunning.Set(1)
	defer r.metrics.IngestRunning.Set(0)

	var (
		results  []*Result
		reports  []SourceReport
		degraded int
	)
	for _, src := range r.sources {
		start := r.clock.Now()
		result, report := r.RunSource(ctx, src)
		r.metrics.IngestDuration.WithLabelValues(src.ID).Observe(r.clock.Now().Sub(start).Seconds())

		if report.Err != nil {
			r.logger.Error("source ingest failed",
				"source", src.ID,
				"state", string(report.State),
				"error", report.Err,
			)
			r.metrics.SourceRuns.WithLabelValues(src.ID, "failure").Inc()
			reports = append(reports, report)
			continue
		}

		r.logger.Info("source ingest complete",
			"source", src.ID,
			"rows_parsed", report.RowsParsed,
			"rows_kept", report.RowsKept,
			"rows_dropped", report.RowsDropped,
			"records", report.Records,
			"age_mode", string(report.AgeMode),
			"updated_at", result.UpdatedAt,
		)
		r.metrics.SourceRuns.WithLabelValues(src.ID, "success").Inc()
		r.metrics.Upserts.WithLabelValues(src.ID).Add(float64(report.Records))
		if len(src.DesiredAgeGroups) > 0 && report.AgeMode != domain.AgeModeFiltered {
			degraded++
		}
		r.ready.Store(true)
		results = append(results, result)
		reports = append(reports, report)
	}

	r.metrics.SourcesDegraded.Set(float64(degraded))
	r.metrics.LastIngestUnix.Set(float64(r.clock.Now().Unix()))
	return results, reports
}

// RunEvery runs a full ingest immediately and then repeats on the given
// interval until the context is cancelled. The interval trigger is the only
// scheduling mechanism; each pass is otherwise identical to RunAll.
func (r *Runner) RunEvery(ctx context.Context, interval time.Duration) {
	for {
		r.RunAll(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("ingest scheduler stopping", "reason", ctx.Err())
			return
		case <-r.clock.After(interval):
		}
	}
}

// RunSource executes the full pipeline for one source. The returned report
// carries the state reached; on failure the result is nil and report.Err is
// set. Errors never propagate to sibling sources.
func (r *Runner) RunSource(ctx context.Context, src Source) (*Result, SourceReport) {
	report := SourceReport{Source: src.ID, State: StateFetching}
	fail := func(err error) (*Result, SourceReport) {
		report.State = StateFailed
		report.Err = err
		return nil, report
	}

	text, err := r.fetcher.FetchText(ctx, src.URL)
	if err != nil {
		return fail(fmt.Errorf("fetch %s: %w", src.ID, err))
	}

	report.State = StateParsing
	parsed, err := feed.ParseTable(text, src.Format)
	if err != nil {
		return fail(fmt.Errorf("parse %s: %w", src.ID, err))
	}
	report.RowsParsed = len(parsed.Rows)
	report.RowsSkipped = parsed.Skipped
	r.metrics.RowsParsed.WithLabelValues(src.ID).Add(float64(len(parsed.Rows)))
	if parsed.Skipped > 0 {
		r.metrics.RowsDropped.WithLabelValues(src.ID, dropMalformed).Add(float64(parsed.Skipped))
	}

	report.State = StateFiltering
	selection := r.selectAges(src, parsed.Rows)
	report.AgeMode = selection.Mode
	if selection.Mode != domain.AgeModeFiltered && len(src.DesiredAgeGroups) > 0 {
		r.logger.Warn("age selection degraded",
			"source", src.ID,
			"age_mode", string(selection.Mode),
			"desired", src.DesiredAgeGroups,
		)
	}

	report.State = StateAggregating
	agg := domain.NewAggregator(src.Cadence)
	drop := func(reason string) {
		report.RowsDropped++
		r.metrics.RowsDropped.WithLabelValues(src.ID, reason).Inc()
	}

	for _, row := range parsed.Rows {
		rawRegion := src.RegionField.Pick(row)
		region := src.NormalizeRegion(rawRegion)
		if region == "" || domain.IsRegionSentinel(rawRegion) || domain.IsRegionSentinel(region) {
			drop(dropRegionKey)
			continue
		}

		if !selection.Keep(src.AgeField.Pick(row)) {
			drop(dropAgeFilter)
			continue
		}

		timeKey, ok := domain.CanonicalTimeKey(src.Cadence, src.TimeField.Pick(row))
		if !ok {
			drop(dropTimeKey)
			continue
		}

		cases, hasCases := domain.ParseCount(src.CasesField.Pick(row))
		incidence, hasIncidence := domain.ParseRate(src.IncidenceField.Pick(row))
		if !hasCases && !hasIncidence {
			// A row with neither a count nor a precomputed incidence
			// contributes nothing; its population must not inflate the
			// bucket's denominator.
			drop(dropNoCount)
			continue
		}

		bucket := agg.Bucket(timeKey, src.RegionPrefix+region)
		if hasCases {
			bucket.AddCases(cases)
			if pop, ok := domain.ParseCount(src.PopulationField.Pick(row)); ok {
				bucket.AddPopulation(pop)
			}
		}
		if hasIncidence {
			bucket.AddIncidence(incidence)
		}
		report.RowsKept++
	}

	if agg.Len() == 0 {
		return fail(fmt.Errorf("%s: %w", src.ID, ErrEmptyFeed))
	}

	kept := agg.TrimToWindow(src.Window)
	result := buildResult(src, selection, agg, kept)

	report.State = StatePersisting
	if err := r.sink.UpsertBatch(ctx, result.Records); err != nil {
		return fail(fmt.Errorf("persist %s: %w", src.ID, err))
	}
	report.Records = len(result.Records)

	report.State = StateDone
	return result, report
}

// selectAges gathers the distinct age labels observed across the feed and
// applies the three-tier fallback policy.
func (r *Runner) selectAges(src Source, rows []domain.RawRow) domain.AgeSelection {
	if src.AgeField == nil {
		return domain.SelectAgeGroups(src.DesiredAgeGroups, nil)
	}
	seen := make(map[string]struct{})
	var observed []string
	for _, row := range rows {
		label := src.AgeField.Pick(row)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			observed = append(observed, label)
		}
	}
	return domain.SelectAgeGroups(src.DesiredAgeGroups, observed)
}

// buildResult turns the windowed buckets into the per-region series, the
// latest snapshot with trends, the metric ranges, and the flat records for
// persistence.
func buildResult(src Source, selection domain.AgeSelection, agg *domain.Aggregator, kept []string) *Result {
	result := &Result{
		Source:        src,
		AgeMode:       selection.Mode,
		AgeGroupsUsed: selection.SelectedLabels(),
		TimeKeys:      kept,
		Series:        make(map[string][]SeriesPoint),
		Latest:        make(map[string]RegionLatest),
	}
	if len(kept) > 0 {
		result.UpdatedAt = kept[len(kept)-1]
	}

	// Computed incidence per bucket, for the exact-offset trend lookup.
	incidenceAt := make(map[domain.BucketKey]*float64)

	agg.Each(func(key domain.BucketKey, b *domain.Bucket) {
		var incidence *float64
		if v, ok := b.Incidence(); ok {
			// Feed supplies incidence directly; bucket combined by mean.
			incidence = domain.Float(domain.Round(v, 2))
		} else if cases, ok := b.Cases(); ok {
			if pop, ok := b.Population(); ok {
				incidence = domain.RoundPtr(domain.CalcIncidence(cases, pop), 2)
			}
		}

		var cases *int64
		if c, ok := b.Cases(); ok {
			cases = &c
		}

		incidenceAt[key] = incidence
		result.Series[key.RegionKey] = append(result.Series[key.RegionKey], SeriesPoint{
			TimeKey:   key.TimeKey,
			Incidence: incidence,
			Cases:     cases,
		})
	})

	for region := range result.Series {
		pts := result.Series[region]
		sort.Slice(pts, func(i, j int) bool {
			return domain.TimeKeyLess(src.Cadence, pts[i].TimeKey, pts[j].TimeKey)
		})
	}

	prevKey := domain.PrevTimeKey(src.Cadence, result.UpdatedAt)
	for region, pts := range result.Series {
		last := pts[len(pts)-1]
		if last.TimeKey != result.UpdatedAt {
			// Region has no value at the latest period; not part of the
			// latest snapshot.
			continue
		}
		// Trend compares against exactly one period back. A gap in the
		// series yields no trend rather than a comparison with whatever
		// older point happens to exist.
		trend := domain.RoundPtr(
			domain.TrendPct(last.Incidence, incidenceAt[domain.BucketKey{TimeKey: prevKey, RegionKey: region}]),
			1,
		)
		result.Latest[region] = RegionLatest{
			Incidence: last.Incidence,
			Cases:     last.Cases,
			TrendPct:  trend,
		}
	}

	result.MetricMeta = computeMetricMeta(result.Latest)
	result.Records = buildRecords(src, result)
	return result
}

// buildRecords flattens a result into persistable signal records: incidence
// and cases for every windowed period, trend for the latest period only.
func buildRecords(src Source, result *Result) []domain.SignalRecord {
	var records []domain.SignalRecord
	add := func(metric, region, timeKey string, value float64) {
		records = append(records, domain.SignalRecord{
			Signal:    src.ID,
			Metric:    metric,
			RegionKey: region,
			TimeKey:   timeKey,
			Value:     value,
			Source:    src.Label,
		})
	}

	for region, pts := range result.Series {
		for _, p := range pts {
			if p.Incidence != nil {
				add(domain.MetricIncidence, region, p.TimeKey, *p.Incidence)
			}
			if p.Cases != nil {
				add(domain.MetricCases, region, p.TimeKey, float64(*p.Cases))
			}
		}
	}
	for region, latest := range result.Latest {
		if latest.TrendPct != nil {
			add(domain.MetricTrend, region, result.UpdatedAt, *latest.TrendPct)
		}
	}
	return records
}
