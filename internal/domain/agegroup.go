package domain

import (
	"sort"
	"strings"
)

// AgeMode identifies which tier of the age-group fallback policy selected the
// rows for an ingestion run. It is surfaced alongside output so consumers can
// detect degraded specificity.
type AgeMode string

const (
	// AgeModeFiltered means the desired age labels intersected the labels
	// actually present in the feed and rows were filtered to that intersection.
	AgeModeFiltered AgeMode = "filtered"
	// AgeModeFallbackTotal means none of the desired labels were present and
	// selection fell back to the all-ages total rows.
	AgeModeFallbackTotal AgeMode = "fallback-total"
	// AgeModeUnfiltered means the feed exposed neither the desired labels nor
	// a total label, so every row is kept regardless of age.
	AgeModeUnfiltered AgeMode = "unfiltered"
)

// totalAgeLabel is the upstream sentinel for the all-ages population.
const totalAgeLabel = "00+"

// ageLabelReplacer folds unicode dash variants to ASCII and strips internal
// whitespace, so "00 – 04", "00—04" and "00-04" compare equal.
var ageLabelReplacer = strings.NewReplacer(
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	" ", "",
	"\t", "",
)

// NormalizeAgeLabel canonicalizes an age-group label for comparison.
func NormalizeAgeLabel(s string) string {
	return ageLabelReplacer.Replace(strings.TrimSpace(s))
}

// AgeSelection is the outcome of the three-tier age-group policy.
type AgeSelection struct {
	Mode AgeMode
	// Labels holds the normalized labels to keep. Nil when Mode is
	// AgeModeUnfiltered, meaning no age filtering at all.
	Labels map[string]struct{}
}

// Keep reports whether a row with the given raw age label passes the selection.
func (s AgeSelection) Keep(rawLabel string) bool {
	if s.Labels == nil {
		return true
	}
	_, ok := s.Labels[NormalizeAgeLabel(rawLabel)]
	return ok
}

// SelectedLabels returns the kept labels in sorted order, or nil when
// unfiltered. Used for provenance in output documents.
func (s AgeSelection) SelectedLabels() []string {
	if s.Labels == nil {
		return nil
	}
	out := make([]string, 0, len(s.Labels))
	for l := range s.Labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// SelectAgeGroups applies the fixed three-tier fallback policy:
//
//  1. If any desired label is present in the feed, filter to that
//     intersection (AgeModeFiltered).
//  2. Else, if the feed has the "00+" total label, keep only total rows
//     (AgeModeFallbackTotal).
//  3. Else, disable age filtering entirely (AgeModeUnfiltered).
//
// Labels are normalized on both sides before comparison. The tier order is
// fixed and part of the observable contract: silently returning zero rows
// because labels drifted is worse than falling back to a coarser population.
func SelectAgeGroups(desired, observed []string) AgeSelection {
	observedSet := make(map[string]struct{}, len(observed))
	for _, o := range observed {
		if n := NormalizeAgeLabel(o); n != "" {
			observedSet[n] = struct{}{}
		}
	}

	intersection := make(map[string]struct{})
	for _, d := range desired {
		n := NormalizeAgeLabel(d)
		if n == "" {
			continue
		}
		if _, ok := observedSet[n]; ok {
			intersection[n] = struct{}{}
		}
	}
	if len(intersection) > 0 {
		return AgeSelection{Mode: AgeModeFiltered, Labels: intersection}
	}

	if _, ok := observedSet[totalAgeLabel]; ok {
		return AgeSelection{
			Mode:   AgeModeFallbackTotal,
			Labels: map[string]struct{}{totalAgeLabel: {}},
		}
	}

	return AgeSelection{Mode: AgeModeUnfiltered}
}
