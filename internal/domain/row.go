package domain

import (
	"strconv"
	"strings"
)

// RawRow is one parsed line of a fetched feed, keyed by raw column label.
// Rows are ephemeral; they are discarded once normalized into buckets.
type RawRow map[string]string

// FieldSpec is an ordered list of acceptable raw column-name aliases for one
// logical field. Order encodes preference: the first alias present in a row
// with a non-empty value wins. Adding a new upstream spelling to the list is
// the only change needed to survive a column rename.
type FieldSpec []string

// Pick resolves the field against a row, returning the first non-empty value
// among the aliases. A missing column is not an error; Pick returns "".
func (f FieldSpec) Pick(row RawRow) string {
	for _, alias := range f {
		if v, ok := row[alias]; ok && v != "" {
			return v
		}
	}
	return ""
}

// ParseCount parses an integer case or population count. Upstream feeds
// occasionally serialize counts as floats ("12.0"); those are accepted and
// truncated. Returns false for empty, "NA", or unparsable input.
func ParseCount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(normalizeDecimal(s), 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// ParseRate parses a floating-point rate such as a precomputed incidence.
// German exports sometimes use a decimal comma. Returns false for empty,
// "NA", or unparsable input.
func ParseRate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return 0, false
	}
	f, err := strconv.ParseFloat(normalizeDecimal(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func normalizeDecimal(s string) string {
	return strings.ReplaceAll(s, ",", ".")
}
