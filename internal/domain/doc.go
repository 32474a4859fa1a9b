// Package domain models epidemiological surveillance feeds published by the
// Robert Koch Institute (RKI) open data repositories.
//
// # Data Sources
//
// Feeds are plain UTF-8 text documents (sometimes BOM-prefixed) fetched over
// HTTP from raw.githubusercontent.com mirrors of the RKI repositories:
//
//	COVID-19 7-day incidence: daily CSV at county (Landkreis) resolution.
//	Influenza (IfSG):         weekly TSV at state (Bundesland) resolution.
//	RSV (IfSG):               weekly TSV at state (Bundesland) resolution.
//
// Column names are NOT stable across feed revisions. The same logical field
// has appeared under several spellings ("Fallzahl", "Faelle", "Fälle"), and
// new revisions rename columns without notice. [FieldSpec] holds an ordered
// alias list per logical field; the first alias present with a non-empty
// value wins, and a missing column is data rather than an error.
//
// # Region Keys
//
// Counties are identified by the AGS (Amtlicher Gemeindeschlüssel), 5 digits
// with leading zeros ("05315" = Köln). Feeds frequently drop the leading zero
// or concatenate codes. [NormalizeCountyKey] strips to digits, truncates to
// the first 5, and zero-pads. States use a 2-digit key; the state of a county
// is the county key's leading 2 digits. "00" and "NA" are upstream sentinels
// for unknown regions and such rows carry no information.
//
// # Time Keys
//
// Daily feeds use ISO dates ("2026-01-14"). Weekly feeds use ISO week keys
// ("2026-W07"). Week keys are ordered by their (year, week) integer pair, and
// week numbers are zero-padded to 2 digits so lexicographic and numeric order
// agree.
//
// # Age Groups
//
// Age band labels drift between revisions in spelling ("00 – 04", "00—04",
// "00-04") and in coverage (some revisions publish only the "00+" total).
// [SelectAgeGroups] applies a fixed three-tier fallback so label drift
// degrades specificity instead of silently producing zero rows; the tier that
// fired is reported as the [AgeMode].
//
// # Metrics
//
// Incidence is cases per 100 000 population over the reporting period.
// Weekly feeds carry a precomputed incidence column; multiple age-band rows
// falling into the same (week, state) bucket are combined by unweighted
// arithmetic mean, since the feeds do not carry per-band population to weight
// correctly. Trend is the percent change of incidence against exactly one
// period back (one day or one ISO week); a gap in the series yields no trend
// rather than a comparison against a non-adjacent period.
package domain
