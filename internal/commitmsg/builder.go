// Package commitmsg builds per-version commit messages. The explanatory
// notes on a rule page are cumulative over every version; the builder
// slices out the portion that belongs to one effective date, optionally
// enriched with a summary of the committee minutes that produced it.
package commitmsg

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Meeting pairs a committee meeting date with its minutes text.
type Meeting struct {
	Date time.Time
	Text string
}

// SummaryRequest is the input handed to a Summarizer.
type SummaryRequest struct {
	RuleNumber string
	RuleTitle  string
	Effective  time.Time
	Notes      string
	Minutes    []Meeting
}

// Summarizer condenses cumulative notes and minutes into the body text
// for one version. Implementations may call an external model.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// MinutesSource resolves a meeting date to its minutes text.
type MinutesSource interface {
	MinutesText(ctx context.Context, meetingDate time.Time) (string, bool)
}

// Request describes one rule version to build a message for.
// PrevEffective, when set, bounds which committee meetings count as
// belonging to this version.
type Request struct {
	RuleNumber    string
	RuleTitle     string
	Effective     time.Time
	Notes         string
	Current       bool
	URL           string
	PrevEffective *time.Time
}

var (
	sourcesPattern    = regexp.MustCompile(`(?is)SOURCES?:(.+)`)
	linkedDatePattern = regexp.MustCompile(`(?i)\[([^\]]+)\]\(https?://[^)]*committee[^)]*\)`)
	bareDatePattern   = regexp.MustCompile(`(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:-\d{1,2})?,\s*\d{4}`)
	dateRangePattern  = regexp.MustCompile(`(\d{1,2})-\d{1,2}`)

	amendmentSummaryPattern = regexp.MustCompile(`(?i)was (?:amended|adopted|approved)`)
	sourcesPrefixPattern    = regexp.MustCompile(`(?i)^SOURCES?:`)
	effectiveDatePattern    = regexp.MustCompile(`(?i)effective\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)`)
	anyDatePattern          = regexp.MustCompile(`(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s*\d{4}`)
)

// Builder assembles commit messages. Both collaborators are optional:
// without a summarizer the deterministic paragraph filter is used,
// without a minutes source versions simply carry no minutes summary.
type Builder struct {
	summarizer Summarizer
	minutes    MinutesSource
	log        zerolog.Logger
}

func NewBuilder(summarizer Summarizer, minutes MinutesSource, log zerolog.Logger) *Builder {
	return &Builder{summarizer: summarizer, minutes: minutes, log: log}
}

// Build returns the full commit message, subject line included.
func (b *Builder) Build(ctx context.Context, req Request) string {
	subject := fmt.Sprintf("Rule %s: Update effective %s", req.RuleNumber, req.Effective.Format("January 02, 2006"))
	return subject + "\n\n" + b.body(ctx, req)
}

func (b *Builder) body(ctx context.Context, req Request) string {
	if strings.TrimSpace(req.Notes) == "" {
		return formatBody(req, "")
	}

	var meetings []Meeting
	if b.minutes != nil {
		for _, meetingDate := range relevantMeetings(parseSourcesDates(req.Notes), req.Effective, req.PrevEffective) {
			if text, ok := b.minutes.MinutesText(ctx, meetingDate); ok {
				meetings = append(meetings, Meeting{Date: meetingDate, Text: text})
			}
		}
	}

	notesBody := ""
	if b.summarizer != nil {
		summary, err := b.summarizer.Summarize(ctx, SummaryRequest{
			RuleNumber: req.RuleNumber,
			RuleTitle:  req.RuleTitle,
			Effective:  req.Effective,
			Notes:      req.Notes,
			Minutes:    meetings,
		})
		if err != nil {
			b.log.Warn().Err(err).
				Str("rule", req.RuleNumber).
				Str("effective", req.Effective.Format("2006-01-02")).
				Msg("summarizer failed, using paragraph filter")
		} else if len(strings.TrimSpace(summary)) >= 10 {
			notesBody = strings.TrimSpace(summary)
		}
	}
	if notesBody == "" {
		notesBody = filterNotes(req.Notes, req.Effective)
	}

	return formatBody(req, notesBody)
}

func formatBody(req Request, notesBody string) string {
	status := "historical"
	if req.Current {
		status = "current"
	}

	parts := []string{req.RuleTitle}
	if req.URL != "" {
		parts = append(parts, "Source: "+req.URL)
	}
	parts = append(parts, "Status: "+status)

	if strings.TrimSpace(notesBody) != "" {
		parts = append(parts, "", "Explanatory Notes:", strings.TrimSpace(notesBody))
	}
	return strings.Join(parts, "\n")
}

// parseSourcesDates extracts meeting dates from the SOURCES paragraph of
// the notes. Dates appear both as links to committee pages and as bare
// "Month D, YYYY" or "Month D-D, YYYY" references.
func parseSourcesDates(notes string) []time.Time {
	match := sourcesPattern.FindStringSubmatch(notes)
	if match == nil {
		return nil
	}
	sources := match[1]

	var dates []time.Time
	seen := make(map[string]bool)
	add := func(text string) {
		parsed, ok := parseDateText(text)
		if !ok {
			return
		}
		key := parsed.Format("2006-01-02")
		if !seen[key] {
			seen[key] = true
			dates = append(dates, parsed)
		}
	}

	for _, m := range linkedDatePattern.FindAllStringSubmatch(sources, -1) {
		add(m[1])
	}
	for _, m := range bareDatePattern.FindAllString(sources, -1) {
		add(m)
	}
	return dates
}

// parseDateText parses "September 29-30, 1994" style text, taking the
// first day of a range.
func parseDateText(text string) (time.Time, bool) {
	cleaned := dateRangePattern.ReplaceAllString(strings.TrimSpace(text), "$1")
	for _, layout := range []string{"January 2, 2006", "Jan 2, 2006", "January 2 2006"} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// relevantMeetings keeps meetings in the half-open window
// (prev, effective]. The first version of a rule has no lower bound.
func relevantMeetings(meetingDates []time.Time, effective time.Time, prev *time.Time) []time.Time {
	var relevant []time.Time
	for _, md := range meetingDates {
		if md.After(effective) {
			continue
		}
		if prev != nil && !md.After(*prev) {
			continue
		}
		relevant = append(relevant, md)
	}
	return relevant
}

// filterNotes is the deterministic fallback: keep paragraphs that name
// this effective date, drop the cumulative amendment summary and the
// SOURCES paragraph, keep undated guidance that names no other date.
func filterNotes(notes string, effective time.Time) string {
	variants := dateVariants(effective)
	paragraphs := strings.Split(notes, "\n\n")

	var kept []string
	for i, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if i == 0 && amendmentSummaryPattern.MatchString(para) && !containsAny(para, variants) {
			continue
		}
		if sourcesPrefixPattern.MatchString(para) {
			continue
		}
		if containsAny(para, variants) {
			kept = append(kept, para)
			continue
		}
		if !effectiveDatePattern.MatchString(para) && !anyDatePattern.MatchString(para) {
			kept = append(kept, para)
		}
	}
	return strings.Join(kept, "\n\n")
}

func dateVariants(d time.Time) []string {
	padded := d.Format("January 02, 2006")
	plain := d.Format("January 2, 2006")
	if padded == plain {
		return []string{padded}
	}
	return []string{padded, plain}
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
