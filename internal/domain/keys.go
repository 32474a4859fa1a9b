package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	countyKeyWidth = 5
	stateKeyWidth  = 2

	// DateLayout is the ISO layout used by daily feeds.
	DateLayout = "2006-01-02"
)

// regionSentinels are upstream placeholders for "unknown region". Rows with
// these keys carry no information and are always dropped.
var regionSentinels = map[string]struct{}{
	"00": {},
	"NA": {},
}

// IsRegionSentinel reports whether a raw or normalized region key is an
// upstream "no data" placeholder.
func IsRegionSentinel(key string) bool {
	_, ok := regionSentinels[strings.TrimSpace(key)]
	return ok
}

// NormalizeCountyKey canonicalizes an AGS county key to 5 zero-padded digits.
// Non-digit characters are stripped; keys longer than 5 digits are truncated
// to the first 5 (concatenated or duplicated codes appear upstream). A key
// with no digits at all normalizes to "" and the row must be dropped.
func NormalizeCountyKey(raw string) string {
	return normalizeNumericKey(raw, countyKeyWidth)
}

// NormalizeStateKey canonicalizes a state key to 2 zero-padded digits, with
// the same digit-stripping rules as county keys. Non-numeric identifiers pass
// through trimmed, so feeds using state abbreviations still produce a key.
func NormalizeStateKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !containsDigit(trimmed) {
		return trimmed
	}
	return normalizeNumericKey(raw, stateKeyWidth)
}

// StateKeyFromCounty derives the 2-digit state key from a normalized county
// key, enabling state-level rollups when a feed has no native state id.
func StateKeyFromCounty(countyKey string) string {
	if len(countyKey) < stateKeyWidth {
		return ""
	}
	return countyKey[:stateKeyWidth]
}

func normalizeNumericKey(raw string, width int) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return ""
	}
	if len(s) > width {
		s = s[:width]
	}
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func containsDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// ValidateDateKey checks that a string is a real ISO calendar date and
// returns it in canonical form. Malformed dates drop the row, never the feed.
func ValidateDateKey(raw string) (string, bool) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return t.Format(DateLayout), true
}

// WeekKey is the sortable form of an ISO week identifier ("YYYY-Www").
// String comparison of the canonical form and numeric comparison of the
// (Year, Week) pair agree, because String zero-pads the week to 2 digits.
type WeekKey struct {
	Year int
	Week int
}

// ParseWeekKey splits a raw week key on the fixed "-W" separator. A
// non-integer year or week makes the key invalid and drops the row.
func ParseWeekKey(raw string) (WeekKey, bool) {
	year, week, found := strings.Cut(strings.TrimSpace(raw), "-W")
	if !found {
		return WeekKey{}, false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return WeekKey{}, false
	}
	w, err := strconv.Atoi(week)
	if err != nil || w < 1 || w > 53 {
		return WeekKey{}, false
	}
	return WeekKey{Year: y, Week: w}, true
}

// String renders the canonical zero-padded form, e.g. "2026-W07".
func (k WeekKey) String() string {
	return fmt.Sprintf("%04d-W%02d", k.Year, k.Week)
}

// Before reports whether k is chronologically before other.
func (k WeekKey) Before(other WeekKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Week < other.Week
}

// Prev returns the ISO week exactly one week earlier, handling year
// boundaries (week 1 of a year precedes week 52 or 53 of the prior year).
func (k WeekKey) Prev() WeekKey {
	monday := k.mondayOf()
	y, w := monday.AddDate(0, 0, -7).ISOWeek()
	return WeekKey{Year: y, Week: w}
}

// mondayOf returns the Monday of the ISO week. January 4th is always in
// week 1, which anchors the calculation.
func (k WeekKey) mondayOf() time.Time {
	jan4 := time.Date(k.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	return week1Monday.AddDate(0, 0, (k.Week-1)*7)
}

// PrevDateKey returns the ISO date exactly one day before a canonical date
// key. The empty string is returned for malformed input.
func PrevDateKey(dateKey string) string {
	t, err := time.Parse(DateLayout, dateKey)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DateLayout)
}

// PrevWeekKey returns the canonical week key exactly one ISO week before a
// canonical week key. The empty string is returned for malformed input.
func PrevWeekKey(weekKey string) string {
	k, ok := ParseWeekKey(weekKey)
	if !ok {
		return ""
	}
	return k.Prev().String()
}
