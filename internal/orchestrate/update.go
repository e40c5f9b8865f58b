package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/time/rate"

	"rulesync/internal/rules"
	"rulesync/internal/scrape"
)

// Updater reconciles an existing ledger against the live site. Each rule
// is classified against its ledger state: unchanged, silently corrected
// (amend in place), newly amended (backfill missing versions), or
// regressed (site older than ledger, left alone).
type Updater struct {
	client    *scrape.Client
	extractor *scrape.Extractor
	fetcher   *scrape.Fetcher
	ledger    Ledger
	messages  MessageBuilder
	limiter   *rate.Limiter
	log       zerolog.Logger
}

func NewUpdater(client *scrape.Client, extractor *scrape.Extractor, fetcher *scrape.Fetcher, ledger Ledger, messages MessageBuilder, delay time.Duration, log zerolog.Logger) *Updater {
	return &Updater{
		client:    client,
		extractor: extractor,
		fetcher:   fetcher,
		ledger:    ledger,
		messages:  messages,
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
		log:       log,
	}
}

type correction struct {
	ruleNumber string
	content    string
}

type backfill struct {
	ruleNumber string
	history    rules.History
}

// Run updates one category's ledger. The ledger must already exist; run a
// full build first otherwise.
func (u *Updater) Run(ctx context.Context, categoryURL, categoryName string) (UpdateStats, error) {
	start := time.Now()
	stats := UpdateStats{Category: categoryName}

	if _, err := u.ledger.CommitCount(); err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("ledger not available, run a full build first: %w", err)
	}

	links, err := scrape.FetchLinks(ctx, u.client, categoryURL)
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("enumerate category: %w", err)
	}
	u.log.Info().Int("rules", len(links)).Str("category", categoryName).Msg("starting category update")

	corrections, backfills := u.classify(ctx, links, &stats)
	u.applyCorrections(ctx, corrections, &stats)
	u.applyBackfills(ctx, backfills, &stats)

	stats.Duration = time.Since(start)
	u.log.Info().Str("summary", stats.Summary()).Msg("update complete")
	return stats, nil
}

func (u *Updater) classify(ctx context.Context, links []rules.Link, stats *UpdateStats) ([]correction, []backfill) {
	var corrections []correction
	var backfills []backfill

	for i, link := range links {
		if ctx.Err() != nil {
			break
		}
		if err := u.limiter.Wait(ctx); err != nil {
			break
		}

		u.log.Info().
			Int("index", i+1).
			Int("total", len(links)).
			Str("rule", link.RuleNumber).
			Msg("checking rule")

		page, err := u.client.Get(ctx, link.URL)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("fetch %s: %v", link.URL, err))
			continue
		}
		history := u.extractor.Extract(page, link.URL)
		if len(history.Versions) == 0 {
			u.log.Warn().Str("url", link.URL).Msg("no versions found")
			continue
		}

		webVersion := history.Versions[len(history.Versions)-1]
		webContent, err := u.fetcher.FetchVersion(ctx, webVersion, history)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("fetch current version of %s: %v", link.URL, err))
			continue
		}

		filename := rules.Filename(history.RuleNumber)
		localContent, haveContent, err := u.ledger.CurrentContent(filename)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("read ledger content for %s: %v", filename, err))
			continue
		}
		localDate, haveDate, err := u.ledger.CurrentEffectiveDate(filename)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("read ledger date for %s: %v", filename, err))
			continue
		}

		webDate := rules.DateOnly(webVersion.Effective)
		switch {
		case !haveContent || !haveDate:
			u.log.Info().Str("rule", history.RuleNumber).Msg("new rule detected")
			backfills = append(backfills, backfill{ruleNumber: history.RuleNumber, history: history})

		case localDate.Equal(webDate) && localContent == webContent.Markdown:
			u.log.Debug().Str("rule", history.RuleNumber).Msg("no change")
			stats.Unchanged++

		case localDate.Equal(webDate):
			u.log.Info().Str("rule", history.RuleNumber).Msg("minor correction detected")
			corrections = append(corrections, correction{ruleNumber: history.RuleNumber, content: webContent.Markdown})

		case webDate.After(localDate):
			u.log.Info().
				Str("rule", history.RuleNumber).
				Str("local", localDate.Format("2006-01-02")).
				Str("web", webDate.Format("2006-01-02")).
				Msg("new amendment detected")
			backfills = append(backfills, backfill{ruleNumber: history.RuleNumber, history: history})

		default:
			u.log.Warn().
				Str("rule", history.RuleNumber).
				Str("local", localDate.Format("2006-01-02")).
				Str("web", webDate.Format("2006-01-02")).
				Msg("ledger is ahead of the site, leaving history alone")
			stats.Regressed++
		}
	}
	return corrections, backfills
}

// applyCorrections amends the latest commit of each corrected rule in
// place. The old and new text are diffed for the log before amending; a
// failed amend restores the working file from HEAD.
func (u *Updater) applyCorrections(ctx context.Context, corrections []correction, stats *UpdateStats) {
	dmp := diffmatchpatch.New()
	for _, c := range corrections {
		if ctx.Err() != nil {
			return
		}
		filename := rules.Filename(c.ruleNumber)

		old, _, err := u.ledger.CurrentContent(filename)
		if err == nil {
			diffs := dmp.DiffMain(old, c.content, false)
			u.log.Info().
				Str("rule", c.ruleNumber).
				Str("diff", dmp.DiffPrettyText(dmp.DiffCleanupSemantic(diffs))).
				Msg("amending correction")
		}

		if err := u.ledger.AmendLatest(filename, c.content); err != nil {
			if restoreErr := u.ledger.Restore(filename); restoreErr != nil {
				u.log.Error().Err(restoreErr).Str("rule", c.ruleNumber).Msg("restore after failed amend")
			}
			stats.Errors = append(stats.Errors, fmt.Sprintf("amend %s: %v, restored original", filename, err))
			continue
		}
		stats.Amended++
	}
}

// applyBackfills fetches every version missing from the ledger and
// commits them chronologically across all affected rules, exactly as the
// initial build does.
func (u *Updater) applyBackfills(ctx context.Context, backfills []backfill, stats *UpdateStats) {
	prevDates := make(map[string]time.Time)
	var work []rules.VersionContent

	for _, bf := range backfills {
		filename := rules.Filename(bf.ruleNumber)
		localDate, haveDate, err := u.ledger.CurrentEffectiveDate(filename)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("read ledger date for %s: %v", filename, err))
			continue
		}

		missing := bf.history.Versions
		if haveDate {
			prevDates[bf.ruleNumber] = localDate

			// The anchor is the scraped version whose date matches the
			// ledger's newest commit; everything after it is missing.
			anchor := -1
			for idx, v := range bf.history.Versions {
				if rules.DateOnly(v.Effective).Equal(localDate) {
					anchor = idx
					break
				}
			}
			if anchor < 0 {
				stats.Errors = append(stats.Errors, fmt.Sprintf(
					"anchor date %s not found in version history for rule %s",
					localDate.Format("2006-01-02"), bf.ruleNumber))
				continue
			}
			missing = bf.history.Versions[anchor+1:]
		}
		if len(missing) == 0 {
			continue
		}

		u.log.Info().Str("rule", bf.ruleNumber).Int("versions", len(missing)).Msg("fetching missing versions")
		for _, version := range missing {
			if ctx.Err() != nil {
				return
			}
			if err := u.limiter.Wait(ctx); err != nil {
				return
			}
			content, err := u.fetcher.FetchVersion(ctx, version, bf.history)
			if err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf(
					"fetch version %s for rule %s: %v", version.URL, bf.ruleNumber, err))
				continue
			}
			work = append(work, *content)
		}
	}

	if len(work) == 0 {
		return
	}

	rules.SortVersionContents(work)
	u.log.Info().Int("versions", len(work)).Msg("committing new versions chronologically")

	committed, errs := commitAll(ctx, u.ledger, u.messages, work, prevDates)
	stats.NewCommits = committed
	stats.Errors = append(stats.Errors, errs...)
}
