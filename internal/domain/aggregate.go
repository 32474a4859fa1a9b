package domain

// BucketKey identifies one aggregation bucket.
type BucketKey struct {
	TimeKey   string
	RegionKey string
}

// Bucket accumulates the rows mapped to one (time, region) pair after
// filtering. Case and population counts are summed across contributing rows,
// which correctly combines multiple age-band rows for the same region and
// period. Precomputed incidence values cannot be summed; they are collected
// and combined by unweighted arithmetic mean (the feeds carry no per-band
// population to weight with).
type Bucket struct {
	cases      int64
	hasCases   bool
	population int64
	hasPop     bool
	incidences []float64
}

// AddCases adds a case count contribution.
func (b *Bucket) AddCases(n int64) {
	b.cases += n
	b.hasCases = true
}

// AddPopulation adds a population contribution.
func (b *Bucket) AddPopulation(n int64) {
	b.population += n
	b.hasPop = true
}

// AddIncidence records one observed precomputed incidence value.
func (b *Bucket) AddIncidence(v float64) {
	b.incidences = append(b.incidences, v)
}

// Cases returns the summed case count, false if no row contributed one.
func (b *Bucket) Cases() (int64, bool) {
	return b.cases, b.hasCases
}

// Population returns the summed population, false if no row contributed one.
func (b *Bucket) Population() (int64, bool) {
	return b.population, b.hasPop
}

// Incidence returns the combined incidence for the bucket: the unweighted
// mean of all observed values. False when no row contributed an incidence.
func (b *Bucket) Incidence() (float64, bool) {
	if len(b.incidences) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range b.incidences {
		sum += v
	}
	return sum / float64(len(b.incidences)), true
}

// Aggregator groups filtered rows into (time, region) buckets. It is rebuilt
// on every ingestion run; nothing in it survives a pass.
type Aggregator struct {
	cadence Cadence
	buckets map[BucketKey]*Bucket
}

// NewAggregator creates an empty Aggregator for the given cadence.
func NewAggregator(cadence Cadence) *Aggregator {
	return &Aggregator{
		cadence: cadence,
		buckets: make(map[BucketKey]*Bucket),
	}
}

// Bucket returns the bucket for a key, creating it on first use. Keys must
// already be canonical; empty keys are the caller's bug, not handled here.
func (a *Aggregator) Bucket(timeKey, regionKey string) *Bucket {
	k := BucketKey{TimeKey: timeKey, RegionKey: regionKey}
	b, ok := a.buckets[k]
	if !ok {
		b = &Bucket{}
		a.buckets[k] = b
	}
	return b
}

// Len returns the number of buckets.
func (a *Aggregator) Len() int {
	return len(a.buckets)
}

// TimeKeys returns the distinct time keys in chronological order.
func (a *Aggregator) TimeKeys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for k := range a.buckets {
		if _, ok := seen[k.TimeKey]; !ok {
			seen[k.TimeKey] = struct{}{}
			keys = append(keys, k.TimeKey)
		}
	}
	SortTimeKeys(a.cadence, keys)
	return keys
}

// LatestTimeKey returns the maximum time key observed, or "" when empty.
func (a *Aggregator) LatestTimeKey() string {
	keys := a.TimeKeys()
	if len(keys) == 0 {
		return ""
	}
	return keys[len(keys)-1]
}

// TrimToWindow restricts the buckets to a trailing window of n periods,
// counted back from the maximum time key observed in the feed, not from
// wall-clock now, so a late-publishing feed still yields a complete window
// relative to its own latest data. Returns the kept time keys in
// chronological order.
func (a *Aggregator) TrimToWindow(n int) []string {
	keys := a.TimeKeys()
	if len(keys) == 0 || n <= 0 {
		return keys
	}

	var keep map[string]struct{}
	switch a.cadence {
	case CadenceDaily:
		// Calendar window: latest date minus (n-1) days, so sparse series
		// never stretch the window beyond n calendar days.
		latest := keys[len(keys)-1]
		start := latest
		for i := 1; i < n; i++ {
			start = PrevDateKey(start)
		}
		keep = make(map[string]struct{})
		for _, k := range keys {
			if k >= start && k <= latest {
				keep[k] = struct{}{}
			}
		}
	default:
		// Weekly feeds publish irregular backfills; keep the last n
		// observed periods.
		if len(keys) > n {
			keys = keys[len(keys)-n:]
		}
		keep = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			keep[k] = struct{}{}
		}
	}

	for k := range a.buckets {
		if _, ok := keep[k.TimeKey]; !ok {
			delete(a.buckets, k)
		}
	}

	kept := make([]string, 0, len(keep))
	for k := range keep {
		kept = append(kept, k)
	}
	SortTimeKeys(a.cadence, kept)
	return kept
}

// Each calls fn for every remaining bucket.
func (a *Aggregator) Each(fn func(key BucketKey, b *Bucket)) {
	for k, b := range a.buckets {
		fn(k, b)
	}
}

// Lookup returns the bucket for a key without creating it.
func (a *Aggregator) Lookup(timeKey, regionKey string) (*Bucket, bool) {
	b, ok := a.buckets[BucketKey{TimeKey: timeKey, RegionKey: regionKey}]
	return b, ok
}
