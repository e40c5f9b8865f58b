// Package rules holds the value types shared by the scraper, the ledger,
// and the orchestrators: a rule's published version table, the materialized
// content of one version, and the ordering/naming rules that keep commits
// deterministic across runs.
package rules

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Version is one row of a rule's published version table.
type Version struct {
	Effective time.Time
	// Obsolete is nil for the version currently live on the source.
	Obsolete *time.Time
	URL      string
	// Suffix disambiguates archived versions sharing a base slug,
	// e.g. "3" for /ndrct/6-1-3 under base slug 6-1.
	Suffix  string
	Current bool
}

// History aggregates a rule's identity and its ordered versions, oldest
// first. Notes is the cumulative explanatory-notes blob covering every
// version combined; it is sliced per version only at commit time.
type History struct {
	RuleNumber string
	RuleTitle  string
	CurrentURL string
	Versions   []Version
	Notes      string
}

// Current returns the version with no obsolete date, if any.
func (h History) Current() (Version, bool) {
	for i := len(h.Versions) - 1; i >= 0; i-- {
		if h.Versions[i].Current {
			return h.Versions[i], true
		}
	}
	if len(h.Versions) == 0 {
		return Version{}, false
	}
	return h.Versions[len(h.Versions)-1], true
}

// VersionContent is the fetched, markdown-converted text of one version.
// It is produced by the fetcher, consumed by exactly one commit, and then
// discarded.
type VersionContent struct {
	RuleNumber string
	RuleTitle  string
	Effective  time.Time
	Obsolete   *time.Time
	Current    bool
	URL        string
	Markdown   string
	Notes      string
}

// Link is one rule entry discovered on a category index page.
type Link struct {
	URL        string
	Title      string
	RuleNumber string
}

// Filename maps a rule identifier to its tracked file in the ledger.
// Dots are normalized to hyphens so "6.1" and the site's slug "6-1" name
// the same file; the mapping must stay stable for the life of a ledger.
func Filename(ruleNumber string) string {
	return "rule-" + strings.ReplaceAll(ruleNumber, ".", "-") + ".md"
}

// RuleNumber inverts Filename, returning the normalized identifier.
func RuleNumber(filename string) string {
	name := strings.TrimSuffix(filename, ".md")
	return strings.TrimPrefix(name, "rule-")
}

// identifierKey decomposes a rule identifier for ordering. Numeric
// identifiers (including hyphenated ones like "6-1") order before
// non-numeric ones such as "appendix-a"; within numeric identifiers the
// numeric value orders first and any remaining suffix breaks ties lexically.
func identifierKey(ruleNumber string) (nonNumeric int, value float64, suffix string) {
	if v, err := strconv.ParseFloat(ruleNumber, 64); err == nil {
		return 0, v, ""
	}
	parts := strings.SplitN(ruleNumber, "-", 2)
	if v, err := strconv.ParseFloat(parts[0], 64); err == nil {
		rest := ""
		if len(parts) == 2 {
			rest = parts[1]
		}
		return 0, v, rest
	}
	return 1, 0, ruleNumber
}

// LessIdentifier reports whether rule a orders before rule b.
func LessIdentifier(a, b string) bool {
	an, av, as := identifierKey(a)
	bn, bv, bs := identifierKey(b)
	if an != bn {
		return an < bn
	}
	if av != bv {
		return av < bv
	}
	return as < bs
}

// SortVersionContents orders the global commit list by the composite key
// (effective date, numeric-before-non-numeric, numeric value, suffix).
// The sort is stable so equal keys keep their discovery order.
func SortVersionContents(contents []VersionContent) {
	sort.SliceStable(contents, func(i, j int) bool {
		a, b := contents[i], contents[j]
		if !a.Effective.Equal(b.Effective) {
			return a.Effective.Before(b.Effective)
		}
		return LessIdentifier(a.RuleNumber, b.RuleNumber)
	})
}

// SortLinks orders category-page links numeric rules first, appendices last.
func SortLinks(links []Link) {
	sort.SliceStable(links, func(i, j int) bool {
		return LessIdentifier(links[i].RuleNumber, links[j].RuleNumber)
	})
}

// DateOnly truncates a timestamp to a calendar date in UTC. Effective
// dates are compared at day granularity everywhere.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
