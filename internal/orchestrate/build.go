package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rulesync/internal/commitmsg"
	"rulesync/internal/rules"
	"rulesync/internal/scrape"
)

// Builder performs an initial category build: every version of every rule,
// committed oldest first across the whole category so the ledger history
// interleaves rules chronologically.
type Builder struct {
	client    *scrape.Client
	extractor *scrape.Extractor
	fetcher   *scrape.Fetcher
	ledger    Ledger
	messages  MessageBuilder
	limiter   *rate.Limiter
	log       zerolog.Logger
}

func NewBuilder(client *scrape.Client, extractor *scrape.Extractor, fetcher *scrape.Fetcher, ledger Ledger, messages MessageBuilder, delay time.Duration, log zerolog.Logger) *Builder {
	return &Builder{
		client:    client,
		extractor: extractor,
		fetcher:   fetcher,
		ledger:    ledger,
		messages:  messages,
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
		log:       log,
	}
}

// Run builds the full ledger for one category. Only a failure to
// enumerate the category index fails the whole run; everything below that
// is recorded per rule and skipped.
func (b *Builder) Run(ctx context.Context, categoryURL, categoryName string) (BuildStats, error) {
	start := time.Now()
	stats := BuildStats{Category: categoryName}

	if err := b.ledger.Init(categoryName); err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("init ledger: %w", err)
	}

	links, err := scrape.FetchLinks(ctx, b.client, categoryURL)
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("enumerate category: %w", err)
	}
	stats.RulesFound = len(links)
	b.log.Info().Int("rules", len(links)).Str("category", categoryName).Msg("starting category build")

	var work []rules.VersionContent
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		if err := b.limiter.Wait(ctx); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		b.log.Info().
			Int("index", i+1).
			Int("total", len(links)).
			Str("rule", link.RuleNumber).
			Msg("extracting version history")

		page, err := b.client.Get(ctx, link.URL)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("fetch %s: %v", link.URL, err))
			continue
		}
		history := b.extractor.Extract(page, link.URL)
		if len(history.Versions) == 0 {
			stats.Errors = append(stats.Errors, fmt.Sprintf("no versions for %s", link.URL))
			continue
		}

		contents, errs := b.fetcher.FetchAll(ctx, history)
		for _, ferr := range errs {
			stats.Errors = append(stats.Errors, ferr.Error())
		}
		work = append(work, contents...)
		stats.RulesProcessed++
	}

	rules.SortVersionContents(work)
	b.log.Info().Int("versions", len(work)).Msg("committing versions in chronological order")

	committed, errs := commitAll(ctx, b.ledger, b.messages, work, nil)
	stats.VersionsCommitted = committed
	stats.Errors = append(stats.Errors, errs...)

	stats.Duration = time.Since(start)
	b.log.Info().Str("summary", stats.Summary()).Msg("build complete")
	return stats, nil
}

// commitAll commits pre-sorted versions, threading the previous effective
// date per rule into the message builder so each message covers only its
// own amendment window. prevDates may seed dates already in the ledger.
func commitAll(ctx context.Context, ledger Ledger, messages MessageBuilder, work []rules.VersionContent, prevDates map[string]time.Time) (int, []string) {
	if prevDates == nil {
		prevDates = make(map[string]time.Time)
	}

	committed := 0
	var errs []string
	for _, content := range work {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err.Error())
			break
		}

		req := commitmsg.Request{
			RuleNumber: content.RuleNumber,
			RuleTitle:  content.RuleTitle,
			Effective:  content.Effective,
			Notes:      content.Notes,
			Current:    content.Current,
			URL:        content.URL,
		}
		if prev, ok := prevDates[content.RuleNumber]; ok {
			p := prev
			req.PrevEffective = &p
		}
		message := messages.Build(ctx, req)

		filename := rules.Filename(content.RuleNumber)
		if err := ledger.Commit(filename, content.Markdown, content.Effective, message); err != nil {
			errs = append(errs, fmt.Sprintf("commit %s effective %s: %v",
				filename, content.Effective.Format("2006-01-02"), err))
			continue
		}
		committed++
		prevDates[content.RuleNumber] = content.Effective
	}
	return committed, errs
}
