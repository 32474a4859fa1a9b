package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epimap/epi-signal-etl/internal/domain"
	"github.com/epimap/epi-signal-etl/internal/feed"
	"github.com/epimap/epi-signal-etl/internal/observability"
)

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	errs  map[string]error
	calls atomic.Int64
}

func (f *fakeFetcher) FetchText(_ context.Context, url string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	doc, ok := f.docs[url]
	if !ok {
		return "", errors.New("no such document")
	}
	return doc, nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []domain.SignalRecord
	err     error
}

func (s *fakeSink) UpsertBatch(_ context.Context, recs []domain.SignalRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
	return nil
}

func (s *fakeSink) byKey() map[domain.BucketKey]map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.BucketKey]map[string]float64)
	for _, r := range s.records {
		k := domain.BucketKey{TimeKey: r.TimeKey, RegionKey: r.RegionKey}
		if out[k] == nil {
			out[k] = make(map[string]float64)
		}
		out[k][r.Metric] = r.Value
	}
	return out
}

func testRunner(sources []Source, fetcher TextFetcher, sink SignalSink) *Runner {
	return NewRunner(sources, fetcher, sink,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
	)
}

func dailySource(url string, window int) Source {
	return Source{
		ID:              "covid",
		Label:           "COVID-19 test feed",
		URL:             url,
		Format:          feed.FormatCSV,
		Cadence:         domain.CadenceDaily,
		Resolution:      ResolutionCounty,
		TimeField:       domain.FieldSpec{"Meldedatum"},
		RegionField:     domain.FieldSpec{"Landkreis_id", "IdLandkreis"},
		AgeField:        domain.FieldSpec{"Altersgruppe"},
		CasesField:      domain.FieldSpec{"Faelle_7-Tage", "Faelle_7_Tage"},
		PopulationField: domain.FieldSpec{"Bevoelkerung"},
		IncidenceField:  domain.FieldSpec{"Inzidenz_7-Tage"},
		Window:          window,
	}
}

func weeklySource(url string, window int) Source {
	return Source{
		ID:               "rsv",
		Label:            "RSV test feed",
		URL:              url,
		Format:           feed.FormatTSV,
		Cadence:          domain.CadenceWeekly,
		Resolution:       ResolutionState,
		RegionPrefix:     "STATE:",
		TimeField:        domain.FieldSpec{"Meldewoche", "Week"},
		RegionField:      domain.FieldSpec{"Region_Id"},
		AgeField:         domain.FieldSpec{"Altersgruppe"},
		CasesField:       domain.FieldSpec{"Fallzahl", "Faelle"},
		IncidenceField:   domain.FieldSpec{"Inzidenz"},
		DesiredAgeGroups: []string{"00-04", "05-14"},
		Window:           window,
	}
}

const dailyFeedDoc = "Meldedatum,Landkreis_id,Altersgruppe,Bevoelkerung,Faelle_7-Tage\n" +
	"2026-01-10,05315,00+,100000,10\n" +
	"2026-01-11,05315,00+,100000,12\n" +
	"2026-01-12,05315,00+,100000,9\n" +
	"2026-01-13,05315,00+,100000,15\n" +
	"2026-01-14,05315,00+,100000,11\n"

func TestRunSourceDailyEndToEnd(t *testing.T) {
	src := dailySource("http://feeds/covid.csv", 3)
	fetcher := &fakeFetcher{docs: map[string]string{src.URL: dailyFeedDoc}}
	sink := &fakeSink{}
	r := testRunner([]Source{src}, fetcher, sink)

	result, report := r.RunSource(context.Background(), src)
	require.NoError(t, report.Err)
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, domain.AgeModeFallbackTotal, report.AgeMode)
	assert.Equal(t, 5, report.RowsParsed)
	assert.Equal(t, 5, report.RowsKept)

	// Window of 3 counted back from the feed's own latest date.
	require.NotNil(t, result)
	assert.Equal(t, "2026-01-14", result.UpdatedAt)
	assert.Equal(t, []string{"2026-01-12", "2026-01-13", "2026-01-14"}, result.TimeKeys)

	pts := result.Series["05315"]
	require.Len(t, pts, 3)
	assert.Equal(t, 9.0, *pts[0].Incidence)
	assert.Equal(t, 15.0, *pts[1].Incidence)
	assert.Equal(t, 11.0, *pts[2].Incidence)

	latest := result.Latest["05315"]
	require.NotNil(t, latest.Incidence)
	assert.Equal(t, 11.0, *latest.Incidence)
	require.NotNil(t, latest.TrendPct)
	// Compared against 2026-01-13 (one day back), not 2026-01-10.
	assert.InDelta(t, domain.Round((11.0-15.0)/15.0*100, 1), *latest.TrendPct, 1e-9)

	stored := sink.byKey()
	assert.Len(t, stored, 3)
	assert.Equal(t, 11.0, stored[domain.BucketKey{TimeKey: "2026-01-14", RegionKey: "05315"}][domain.MetricIncidence])
	assert.Equal(t, 11.0, stored[domain.BucketKey{TimeKey: "2026-01-14", RegionKey: "05315"}][domain.MetricCases])
	_, hasOld := stored[domain.BucketKey{TimeKey: "2026-01-10", RegionKey: "05315"}]
	assert.False(t, hasOld)

	// Trend only at the latest period.
	_, hasTrendOld := stored[domain.BucketKey{TimeKey: "2026-01-13", RegionKey: "05315"}][domain.MetricTrend]
	assert.False(t, hasTrendOld)
	assert.InDelta(t, -26.7, stored[domain.BucketKey{TimeKey: "2026-01-14", RegionKey: "05315"}][domain.MetricTrend], 1e-9)
}

func TestRunSourcePipelineIsIdempotent(t *testing.T) {
	src := dailySource("http://feeds/covid.csv", 3)
	fetcher := &fakeFetcher{docs: map[string]string{src.URL: dailyFeedDoc}}
	sink := &fakeSink{}
	r := testRunner([]Source{src}, fetcher, sink)

	first, report := r.RunSource(context.Background(), src)
	require.NoError(t, report.Err)
	second, report := r.RunSource(context.Background(), src)
	require.NoError(t, report.Err)

	// Byte-identical input produces identical records: the sink upserts by
	// primary key, so reruns overwrite rather than accumulate.
	assert.ElementsMatch(t, first.Records, second.Records)
}

func TestRunSourceWeekly(t *testing.T) {
	doc := "Meldewoche\tRegion_Id\tAltersgruppe\tFallzahl\tInzidenz\n" +
		"2026-W01\t05\t00-04\t30\t40.0\n" +
		"2026-W01\t05\t05-14\t10\t20.0\n" +
		"2026-W02\t05\t00-04\t45\t60.0\n" +
		"2026-W02\t05\t05-14\t15\t30.0\n" +
		"2026-W02\t00\t00-04\t99\t99.0\n" + // sentinel region dropped
		"2026-W02\t11\t15-34\t70\t12.0\n" // outside desired ages

	src := weeklySource("http://feeds/rsv.tsv", 104)
	fetcher := &fakeFetcher{docs: map[string]string{src.URL: doc}}
	sink := &fakeSink{}
	r := testRunner([]Source{src}, fetcher, sink)

	result, report := r.RunSource(context.Background(), src)
	require.NoError(t, report.Err)
	assert.Equal(t, domain.AgeModeFiltered, report.AgeMode)
	assert.Equal(t, []string{"00-04", "05-14"}, result.AgeGroupsUsed)
	assert.Equal(t, 2, report.RowsDropped)

	require.Contains(t, result.Series, "STATE:05")
	assert.NotContains(t, result.Series, "STATE:00")
	assert.NotContains(t, result.Series, "STATE:11")

	pts := result.Series["STATE:05"]
	require.Len(t, pts, 2)
	// Cases summed across age bands, incidences combined by mean.
	require.NotNil(t, pts[0].Cases)
	assert.Equal(t, int64(40), *pts[0].Cases)
	assert.Equal(t, 30.0, *pts[0].Incidence)
	assert.Equal(t, int64(60), *pts[1].Cases)
	assert.Equal(t, 45.0, *pts[1].Incidence)

	latest := result.Latest["STATE:05"]
	require.NotNil(t, latest.TrendPct)
	assert.InDelta(t, 50.0, *latest.TrendPct, 1e-9)

	assert.Equal(t, "2026-W02", result.UpdatedAt)
}

func TestRunSourceWeeklyTrendSkipsGap(t *testing.T) {
	// W02 is missing: the latest week W03 must not compare against W01.
	doc := "Meldewoche\tRegion_Id\tAltersgruppe\tFallzahl\tInzidenz\n" +
		"2026-W01\t05\t00-04\t30\t40.0\n" +
		"2026-W03\t05\t00-04\t45\t60.0\n"

	src := weeklySource("http://feeds/rsv.tsv", 104)
	fetcher := &fakeFetcher{docs: map[string]string{src.URL: doc}}
	r := testRunner([]Source{src}, fetcher, &fakeSink{})

	result, report := r.RunSource(context.Background(), src)
	require.NoError(t, report.Err)
	latest := result.Latest["STATE:05"]
	require.NotNil(t, latest.Incidence)
	assert.Nil(t, latest.TrendPct)
}

func TestRunSourceEmptyFeed(t *testing.T) {
	doc := "Meldewoche\tRegion_Id\tAltersgruppe\tFallzahl\n" +
		"garbage\t00\tx\tNA\n"

	src := weeklySource("http://feeds/rsv.tsv", 104)
	fetcher := &fakeFetcher{docs: map[string]string{src.URL: doc}}
	r := testRunner([]Source{src}, fetcher, &fakeSink{})

	result, report := r.RunSource(context.Background(), src)
	assert.Nil(t, result)
	assert.Equal(t, StateFailed, report.State)
	assert.ErrorIs(t, report.Err, ErrEmptyFeed)
}

func TestRunSourceDropsMalformedRows(t *testing.T) {
	doc := "Meldedatum,Landkreis_id,Altersgruppe,Bevoelkerung,Faelle_7-Tage\n" +
		"2026-01-14,05315,00+,100000,11\n" +
		"not-a-date,05315,00+,100000,11\n" +
		"2026-01-14,,00+,100000,11\n" +
		"2026-01-14,05111,00+,100000,NA\n"

	src := dailySource("http://feeds/covid.csv", 60)
	fetcher := &fakeFetcher{docs: map[string]string{src.URL: doc}}
	r := testRunner([]Source{src}, fetcher, &fakeSink{})

	result, report := r.RunSource(context.Background(), src)
	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.RowsKept)
	assert.Equal(t, 3, report.RowsDropped)
	assert.Len(t, result.Series, 1)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	good := dailySource("http://feeds/covid.csv", 3)
	bad := weeklySource("http://feeds/rsv.tsv", 104)

	fetcher := &fakeFetcher{
		docs: map[string]string{good.URL: dailyFeedDoc},
		errs: map[string]error{bad.URL: errors.New("connection refused")},
	}
	sink := &fakeSink{}
	r := testRunner([]Source{bad, good}, fetcher, sink)

	require.Error(t, r.CheckReadiness(context.Background()))

	results, reports := r.RunAll(context.Background())
	require.Len(t, reports, 2)
	assert.Equal(t, StateFailed, reports[0].State)
	assert.Error(t, reports[0].Err)
	assert.Equal(t, StateDone, reports[1].State)
	require.Len(t, results, 1)
	assert.Equal(t, "covid", results[0].Source.ID)

	// The failed sibling wrote nothing; the good source's records landed.
	assert.NotEmpty(t, sink.records)
	assert.NoError(t, r.CheckReadiness(context.Background()))
}

func TestRunSourcePersistFailure(t *testing.T) {
	src := dailySource("http://feeds/covid.csv", 3)
	fetcher := &fakeFetcher{docs: map[string]string{src.URL: dailyFeedDoc}}
	sink := &fakeSink{err: errors.New("disk full")}
	r := testRunner([]Source{src}, fetcher, sink)

	result, report := r.RunSource(context.Background(), src)
	assert.Nil(t, result)
	assert.Equal(t, StateFailed, report.State)
	assert.ErrorContains(t, report.Err, "persist covid")
}

func TestRunEvery(t *testing.T) {
	src := dailySource("http://feeds/covid.csv", 3)
	fetcher := &fakeFetcher{errs: map[string]error{src.URL: errors.New("offline")}, docs: map[string]string{}}
	r := testRunner([]Source{src}, fetcher, &fakeSink{})

	clock := clockwork.NewFakeClock()
	r.SetClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunEvery(ctx, time.Hour)
	}()

	// First pass runs immediately, then the loop blocks on the clock.
	clock.BlockUntil(1)
	assert.Equal(t, int64(1), fetcher.calls.Load())

	clock.Advance(time.Hour)
	clock.BlockUntil(1)
	assert.Equal(t, int64(2), fetcher.calls.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunEvery did not stop on context cancellation")
	}
}
