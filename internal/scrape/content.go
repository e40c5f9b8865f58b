package scrape

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rulesync/internal/rules"
)

// Fetcher downloads the archived page behind each version row and converts
// it to markdown.
type Fetcher struct {
	client *Client
	delay  time.Duration
	log    zerolog.Logger
}

func NewFetcher(client *Client, delay time.Duration, log zerolog.Logger) *Fetcher {
	return &Fetcher{client: client, delay: delay, log: log}
}

// FetchVersion retrieves one version's page and materializes it. Transport
// and status failures return a nil content with the error; a single
// unreachable historical version must not abort the caller's run.
func (f *Fetcher) FetchVersion(ctx context.Context, version rules.Version, history rules.History) (*rules.VersionContent, error) {
	body, err := f.client.Get(ctx, version.URL)
	if err != nil {
		return nil, err
	}

	doc, parseErr := parseDocument(body)
	if parseErr != nil {
		return nil, parseErr
	}

	title := history.RuleTitle
	if h1 := findFirst(doc, byTag("h1")); h1 != nil {
		if text := collapseSpace(textContent(h1)); text != "" {
			title = text
		}
	}

	return &rules.VersionContent{
		RuleNumber: history.RuleNumber,
		RuleTitle:  title,
		Effective:  version.Effective,
		Obsolete:   version.Obsolete,
		Current:    version.Current,
		URL:        version.URL,
		Markdown:   documentToMarkdown(doc, title),
		Notes:      history.Notes,
	}, nil
}

// FetchAll retrieves every version of one rule in historical order,
// spacing requests by the configured delay. The limiter belongs to this
// call, so concurrent rules never share pacing state. Failed versions are
// returned as errors alongside the successes.
func (f *Fetcher) FetchAll(ctx context.Context, history rules.History) ([]rules.VersionContent, []error) {
	limiter := rate.NewLimiter(rate.Every(f.delay), 1)

	var contents []rules.VersionContent
	var errs []error
	for i, version := range history.Versions {
		if err := limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}

		f.log.Info().
			Str("rule", history.RuleNumber).
			Int("version", i+1).
			Int("total", len(history.Versions)).
			Str("effective", version.Effective.Format("2006-01-02")).
			Msg("fetching version")

		content, err := f.FetchVersion(ctx, version, history)
		if err != nil {
			f.log.Warn().Str("url", version.URL).Err(err).Msg("version fetch failed")
			errs = append(errs, err)
			continue
		}
		contents = append(contents, *content)
	}
	return contents, errs
}
