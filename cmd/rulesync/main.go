package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"rulesync/internal/commitmsg"
	"rulesync/internal/config"
	"rulesync/internal/ledger"
	"rulesync/internal/logger"
	"rulesync/internal/minutes"
	"rulesync/internal/orchestrate"
	"rulesync/internal/scrape"
)

var categoryNames = map[string]string{
	"ndrappp":           "North Dakota Rules of Appellate Procedure",
	"ndrct":             "North Dakota Rules of Court",
	"ndsupctadminr":     "North Dakota Supreme Court Administrative Rules",
	"ndsupctadminorder": "North Dakota Supreme Court Administrative Orders",
	"ndrcivp":           "North Dakota Rules of Civil Procedure",
	"ndrcrimp":          "North Dakota Rules of Criminal Procedure",
	"ndrjuvp":           "North Dakota Rules of Juvenile Procedure",
	"ndrev":             "North Dakota Rules of Evidence",
}

func main() {
	mode := flag.String("mode", "build", "build (full history) or update (incremental sync)")
	category := flag.String("category", "", "category slug, e.g. ndrappp")
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if *category == "" {
		fmt.Fprintln(os.Stderr, "usage: rulesync -mode build|update -category <slug> [-config config.yaml]")
		os.Exit(2)
	}
	if *mode != "build" && *mode != "update" {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	categoryName, ok := categoryNames[*category]
	if !ok {
		categoryName = *category
	}
	categoryURL := cfg.BaseURL + "/legal-resources/rules/" + *category

	client := scrape.NewClient(cfg.RequestTimeout, cfg.UserAgent)
	scrapeLog := log.With().Str("component", "scrape").Logger()
	extractor := scrape.NewExtractor(cfg.BaseURL, scrapeLog)
	fetcher := scrape.NewFetcher(client, cfg.RequestDelay, scrapeLog)

	ledgerDir := filepath.Join(cfg.LedgerDir, *category)
	runLock, err := ledger.AcquireRunLock(ledgerDir)
	if err != nil {
		log.Error().Err(err).Str("dir", ledgerDir).Msg("cannot acquire ledger run lock")
		os.Exit(1)
	}
	defer runLock.Release()
	led := ledger.New(ledgerDir, cfg.AuthorName, cfg.AuthorEmail)

	minutesStore := minutes.NewStore(client, cfg.MeetingIndexURL, cfg.BaseURL, cfg.MinutesCacheDir,
		log.With().Str("component", "minutes").Logger())

	var summarizer commitmsg.Summarizer
	if cfg.OpenAIKey != "" {
		log.Info().Str("model", cfg.OpenAIModel).Msg("summarizer enabled for commit messages")
		summarizer = commitmsg.NewOpenAISummarizer(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIMaxTokens)
	} else {
		log.Info().Msg("no OpenAI key configured, commit messages use deterministic note filtering")
	}
	messages := commitmsg.NewBuilder(summarizer, minutesStore, log.With().Str("component", "commitmsg").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "build":
		builder := orchestrate.NewBuilder(client, extractor, fetcher, led, messages, cfg.RequestDelay, log)
		stats, err := builder.Run(ctx, categoryURL, categoryName)
		if err != nil {
			log.Error().Err(err).Msg("build failed")
			os.Exit(1)
		}
		fmt.Println(stats.Summary())
		for _, msg := range stats.Errors {
			fmt.Fprintln(os.Stderr, "error:", msg)
		}

	case "update":
		updater := orchestrate.NewUpdater(client, extractor, fetcher, led, messages, cfg.RequestDelay, log)
		stats, err := updater.Run(ctx, categoryURL, categoryName)
		if err != nil {
			log.Error().Err(err).Msg("update failed")
			os.Exit(1)
		}
		fmt.Println(stats.Summary())
		for _, msg := range stats.Errors {
			fmt.Fprintln(os.Stderr, "error:", msg)
		}
	}
}
