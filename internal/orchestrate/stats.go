// Package orchestrate drives full category builds and incremental
// updates: scrape, classify, and commit rule versions in effective-date
// order across every rule in a category.
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"rulesync/internal/commitmsg"
)

// Ledger is the version-ledger surface the orchestrators depend on.
type Ledger interface {
	Init(categoryName string) error
	Commit(filename, content string, effective time.Time, message string) error
	AmendLatest(filename, content string) error
	CurrentContent(filename string) (string, bool, error)
	CurrentEffectiveDate(filename string) (time.Time, bool, error)
	Restore(filename string) error
	CommitCount() (int, error)
}

// MessageBuilder produces the commit message for one rule version.
type MessageBuilder interface {
	Build(ctx context.Context, req commitmsg.Request) string
}

// BuildStats summarizes an initial category build.
type BuildStats struct {
	Category          string
	RulesFound        int
	RulesProcessed    int
	VersionsCommitted int
	Errors            []string
	Duration          time.Duration
}

func (s BuildStats) Summary() string {
	return fmt.Sprintf("%s: %d/%d rules processed, %d versions committed, %d errors (%.1fs)",
		s.Category, s.RulesProcessed, s.RulesFound, s.VersionsCommitted, len(s.Errors), s.Duration.Seconds())
}

// UpdateStats summarizes an incremental update run.
type UpdateStats struct {
	Category   string
	Unchanged  int
	Amended    int
	NewCommits int
	// Regressed counts rules whose ledger date is newer than the site's,
	// which usually means the site rolled back or republished history.
	Regressed int
	Errors    []string
	Duration  time.Duration
}

func (s UpdateStats) Summary() string {
	return fmt.Sprintf("%s: %d unchanged, %d amended, %d new commits, %d regressed, %d errors (%.1fs)",
		s.Category, s.Unchanged, s.Amended, s.NewCommits, s.Regressed, len(s.Errors), s.Duration.Seconds())
}
