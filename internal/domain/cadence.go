package domain

import "sort"

// Cadence is the reporting period granularity of a feed.
type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// PrevTimeKey returns the time key exactly one period earlier: one calendar
// day for daily cadence, one ISO week for weekly cadence. Trend computation
// depends on this being an exact offset, never "the next point available".
func PrevTimeKey(cadence Cadence, timeKey string) string {
	switch cadence {
	case CadenceDaily:
		return PrevDateKey(timeKey)
	case CadenceWeekly:
		return PrevWeekKey(timeKey)
	default:
		return ""
	}
}

// TimeKeyLess reports whether time key a is chronologically before b.
// Dates compare lexicographically; week keys are ordered by their
// (year, week) pair so inconsistently padded upstream keys still sort
// correctly.
func TimeKeyLess(cadence Cadence, a, b string) bool {
	if cadence != CadenceWeekly {
		return a < b
	}
	ka, aok := ParseWeekKey(a)
	kb, bok := ParseWeekKey(b)
	if !aok || !bok {
		return a < b
	}
	return ka.Before(kb)
}

// SortTimeKeys orders time keys chronologically in place.
func SortTimeKeys(cadence Cadence, keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		return TimeKeyLess(cadence, keys[i], keys[j])
	})
}

// CanonicalTimeKey validates and canonicalizes a raw time key for the given
// cadence. Returns false for malformed keys; the row is dropped, not the feed.
func CanonicalTimeKey(cadence Cadence, raw string) (string, bool) {
	switch cadence {
	case CadenceDaily:
		return ValidateDateKey(raw)
	case CadenceWeekly:
		k, ok := ParseWeekKey(raw)
		if !ok {
			return "", false
		}
		return k.String(), true
	default:
		return "", false
	}
}
