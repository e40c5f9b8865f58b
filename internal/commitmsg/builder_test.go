package commitmsg

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSummarizer struct {
	result string
	err    error
	got    *SummaryRequest
}

func (f *fakeSummarizer) Summarize(_ context.Context, req SummaryRequest) (string, error) {
	f.got = &req
	return f.result, f.err
}

type fakeMinutes struct {
	texts map[string]string
	asked []string
}

func (f *fakeMinutes) MinutesText(_ context.Context, meetingDate time.Time) (string, bool) {
	key := meetingDate.Format("2006-01-02")
	f.asked = append(f.asked, key)
	text, ok := f.texts[key]
	return text, ok
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const sampleNotes = `Rule 6.1 was amended, effective March 1, 2010; August 1, 2015.

Rule 6.1 was adopted, effective January 1, 2003, to govern extensions of time.

The 2010 amendment, effective March 1, 2010, clarified service deadlines.

The 2015 amendment, effective August 1, 2015, rewrote subdivision (b).

Subdivision (a) sets out the general standard for extensions.

SOURCES: Joint Procedure Committee Minutes of [September 24, 2009](https://example.org/committees/minutes/2009); January 29-30, 2015, pages 2-4.`

func TestBuildWithoutNotes(t *testing.T) {
	b := NewBuilder(nil, nil, zerolog.Nop())
	msg := b.Build(context.Background(), Request{
		RuleNumber: "28",
		RuleTitle:  "RULE 28. BRIEFS",
		Effective:  date(2015, time.August, 1),
		Current:    true,
		URL:        "https://example.org/rules/28",
	})

	if !strings.HasPrefix(msg, "Rule 28: Update effective August 01, 2015\n\n") {
		t.Fatalf("subject line wrong:\n%s", msg)
	}
	for _, want := range []string{"RULE 28. BRIEFS", "Source: https://example.org/rules/28", "Status: current"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %q in:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Explanatory Notes:") {
		t.Fatalf("no-notes message should omit notes section:\n%s", msg)
	}
}

func TestBuildFilterKeepsOnlyVersionParagraphs(t *testing.T) {
	b := NewBuilder(nil, nil, zerolog.Nop())
	msg := b.Build(context.Background(), Request{
		RuleNumber: "6.1",
		RuleTitle:  "RULE 6.1. TEST",
		Effective:  date(2010, time.March, 1),
		Notes:      sampleNotes,
	})

	if !strings.Contains(msg, "clarified service deadlines") {
		t.Fatalf("missing 2010 paragraph:\n%s", msg)
	}
	if !strings.Contains(msg, "general standard for extensions") {
		t.Fatalf("missing undated guidance paragraph:\n%s", msg)
	}
	if strings.Contains(msg, "rewrote subdivision (b)") {
		t.Fatalf("2015 paragraph leaked into 2010 message:\n%s", msg)
	}
	if strings.Contains(msg, "to govern extensions of time") {
		t.Fatalf("2003 paragraph leaked into 2010 message:\n%s", msg)
	}
	if strings.Contains(msg, "SOURCES:") {
		t.Fatalf("sources paragraph leaked:\n%s", msg)
	}
	if !strings.Contains(msg, "Status: historical") {
		t.Fatalf("missing status:\n%s", msg)
	}
}

func TestFilterNotesDropsSummaryNotNamingTarget(t *testing.T) {
	notes := "Rule 12 was amended, effective August 1, 2015.\n\n" +
		"The 2010 amendment, effective March 1, 2010, changed subdivision (c).\n\n" +
		"SOURCES: Joint Procedure Committee Minutes of September 24, 2009."

	got := filterNotes(notes, date(2010, time.March, 1))
	if strings.Contains(got, "was amended, effective August 1, 2015") {
		t.Fatalf("opening summary naming only other dates kept:\n%s", got)
	}
	if !strings.Contains(got, "changed subdivision (c)") {
		t.Fatalf("target paragraph dropped:\n%s", got)
	}
}

func TestParseSourcesDates(t *testing.T) {
	dates := parseSourcesDates(sampleNotes)
	if len(dates) != 2 {
		t.Fatalf("got %d dates: %v", len(dates), dates)
	}
	if !dates[0].Equal(date(2009, time.September, 24)) {
		t.Fatalf("linked date = %v", dates[0])
	}
	if !dates[1].Equal(date(2015, time.January, 29)) {
		t.Fatalf("range date = %v, want first day of range", dates[1])
	}

	if got := parseSourcesDates("No sources paragraph here."); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRelevantMeetingsWindow(t *testing.T) {
	meetings := []time.Time{
		date(2009, time.September, 24),
		date(2010, time.March, 1),
		date(2015, time.January, 29),
	}
	prev := date(2010, time.March, 1)

	got := relevantMeetings(meetings, date(2015, time.August, 1), &prev)
	if len(got) != 1 || !got[0].Equal(date(2015, time.January, 29)) {
		t.Fatalf("window (prev, effective] broken: %v", got)
	}

	first := relevantMeetings(meetings, date(2010, time.March, 1), nil)
	if len(first) != 2 {
		t.Fatalf("first version should keep meetings up to effective date: %v", first)
	}
}

func TestBuildQueriesMinutesForWindowOnly(t *testing.T) {
	minutes := &fakeMinutes{texts: map[string]string{
		"2015-01-29": "minutes text",
	}}
	summarizer := &fakeSummarizer{result: "The 2015 amendment rewrote subdivision (b)."}
	prev := date(2010, time.March, 1)

	b := NewBuilder(summarizer, minutes, zerolog.Nop())
	b.Build(context.Background(), Request{
		RuleNumber:    "6.1",
		RuleTitle:     "RULE 6.1. TEST",
		Effective:     date(2015, time.August, 1),
		Notes:         sampleNotes,
		PrevEffective: &prev,
	})

	if len(minutes.asked) != 1 || minutes.asked[0] != "2015-01-29" {
		t.Fatalf("asked for minutes: %v", minutes.asked)
	}
	if summarizer.got == nil || len(summarizer.got.Minutes) != 1 {
		t.Fatalf("summarizer request minutes: %+v", summarizer.got)
	}
}

func TestBuildUsesSummarizerResult(t *testing.T) {
	summarizer := &fakeSummarizer{result: "The 2010 amendment clarified service deadlines."}
	b := NewBuilder(summarizer, nil, zerolog.Nop())

	msg := b.Build(context.Background(), Request{
		RuleNumber: "6.1",
		RuleTitle:  "RULE 6.1. TEST",
		Effective:  date(2010, time.March, 1),
		Notes:      sampleNotes,
	})
	if !strings.Contains(msg, "Explanatory Notes:\nThe 2010 amendment clarified service deadlines.") {
		t.Fatalf("summarizer output not used:\n%s", msg)
	}
}

func TestBuildFallsBackOnSummarizerFailure(t *testing.T) {
	cases := []struct {
		name       string
		summarizer *fakeSummarizer
	}{
		{"error", &fakeSummarizer{err: errors.New("boom")}},
		{"degenerate", &fakeSummarizer{result: "ok"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder(tc.summarizer, nil, zerolog.Nop())
			msg := b.Build(context.Background(), Request{
				RuleNumber: "6.1",
				RuleTitle:  "RULE 6.1. TEST",
				Effective:  date(2010, time.March, 1),
				Notes:      sampleNotes,
			})
			if !strings.Contains(msg, "clarified service deadlines") {
				t.Fatalf("fallback filter not applied:\n%s", msg)
			}
		})
	}
}

func TestParseDateText(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"September 24, 2009", date(2009, time.September, 24), true},
		{"February 17-18, 1983", date(1983, time.February, 17), true},
		{"Sep 5, 2001", date(2001, time.September, 5), true},
		{"sometime in 2009", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := parseDateText(tc.in)
		if ok != tc.ok || (ok && !got.Equal(tc.want)) {
			t.Fatalf("parseDateText(%q) = %v, %v", tc.in, got, ok)
		}
	}
}
