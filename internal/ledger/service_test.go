package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := New(t.TempDir(), "Rule Sync", "rulesync@example.org")
	if err := s.Init("Test Rules"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s
}

func TestInitIsIdempotent(t *testing.T) {
	s := newTestService(t)
	if err := s.Init("Test Rules"); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}

	count, err := s.CommitCount()
	if err != nil {
		t.Fatalf("CommitCount() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("CommitCount() = %d, want 1 readme commit", count)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "README.md")); err != nil {
		t.Fatalf("README.md missing: %v", err)
	}
}

func TestCommitPinsTimestampToEffectiveDate(t *testing.T) {
	s := newTestService(t)
	effective := time.Date(2010, time.March, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Commit("rule-6-1.md", "# RULE 6.1\n", effective, "Rule 6.1 effective March 1, 2010"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	repo, err := git.PlainOpen(s.Dir())
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	ref, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}

	want := time.Date(2010, time.March, 1, 12, 0, 0, 0, time.UTC)
	if !commit.Author.When.UTC().Equal(want) {
		t.Fatalf("author date = %v, want %v", commit.Author.When.UTC(), want)
	}
	if !commit.Committer.When.UTC().Equal(want) {
		t.Fatalf("committer date = %v, want %v", commit.Committer.When.UTC(), want)
	}

	got, ok, err := s.CurrentEffectiveDate("rule-6-1.md")
	if err != nil || !ok {
		t.Fatalf("CurrentEffectiveDate() = %v, %v, %v", got, ok, err)
	}
	if !got.Equal(effective) {
		t.Fatalf("CurrentEffectiveDate() = %v, want %v", got, effective)
	}
}

func TestCommitIdenticalContentIsNoOp(t *testing.T) {
	s := newTestService(t)
	effective := time.Date(2015, time.August, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Commit("rule-28.md", "content\n", effective, "first"); err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	before, _ := s.CommitCount()

	if err := s.Commit("rule-28.md", "content\n", effective, "second"); err != nil {
		t.Fatalf("identical Commit() error = %v", err)
	}
	after, _ := s.CommitCount()
	if after != before {
		t.Fatalf("commit count changed %d -> %d on identical content", before, after)
	}
}

func TestCurrentContent(t *testing.T) {
	s := newTestService(t)
	effective := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

	if _, ok, err := s.CurrentContent("rule-35.md"); err != nil || ok {
		t.Fatalf("absent file: ok=%v err=%v", ok, err)
	}

	if err := s.Commit("rule-35.md", "# RULE 35\n", effective, "msg"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	content, ok, err := s.CurrentContent("rule-35.md")
	if err != nil || !ok {
		t.Fatalf("CurrentContent() ok=%v err=%v", ok, err)
	}
	if content != "# RULE 35\n" {
		t.Fatalf("content = %q", content)
	}
}

func TestAmendLatestKeepsMessageAndTimestamp(t *testing.T) {
	s := newTestService(t)
	effective := time.Date(2018, time.June, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Commit("rule-9.md", "original\n", effective, "Rule 9 effective June 1, 2018"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	countBefore, _ := s.CommitCount()

	if err := s.AmendLatest("rule-9.md", "corrected\n"); err != nil {
		t.Fatalf("AmendLatest() error = %v", err)
	}

	countAfter, _ := s.CommitCount()
	if countAfter != countBefore {
		t.Fatalf("amend changed commit count %d -> %d", countBefore, countAfter)
	}

	content, ok, err := s.CurrentContent("rule-9.md")
	if err != nil || !ok || content != "corrected\n" {
		t.Fatalf("content after amend = %q, ok=%v, err=%v", content, ok, err)
	}

	repo, err := git.PlainOpen(s.Dir())
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	ref, _ := repo.Head()
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	if commit.Message != "Rule 9 effective June 1, 2018" {
		t.Fatalf("amend rewrote message: %q", commit.Message)
	}
	want := time.Date(2018, time.June, 1, 12, 0, 0, 0, time.UTC)
	if !commit.Author.When.UTC().Equal(want) {
		t.Fatalf("amend moved author date to %v", commit.Author.When.UTC())
	}
}

func TestAmendLatestRewritesCommitBehindHead(t *testing.T) {
	s := newTestService(t)
	older := time.Date(2008, time.June, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2010, time.March, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Commit("rule-28.md", "rule 28 original\n", older, "Rule 28 effective June 1, 2008"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := s.Commit("rule-6-1.md", "rule 6.1\n", newer, "Rule 6.1 effective March 1, 2010"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	countBefore, _ := s.CommitCount()

	if err := s.AmendLatest("rule-28.md", "rule 28 corrected\n"); err != nil {
		t.Fatalf("AmendLatest() error = %v", err)
	}

	countAfter, _ := s.CommitCount()
	if countAfter != countBefore {
		t.Fatalf("rewrite changed commit count %d -> %d", countBefore, countAfter)
	}

	content, ok, err := s.CurrentContent("rule-28.md")
	if err != nil || !ok || content != "rule 28 corrected\n" {
		t.Fatalf("rule-28.md after rewrite = %q, ok=%v, err=%v", content, ok, err)
	}
	if content, _, _ := s.CurrentContent("rule-6-1.md"); content != "rule 6.1\n" {
		t.Fatalf("sibling rule content changed: %q", content)
	}

	got, ok, err := s.CurrentEffectiveDate("rule-28.md")
	if err != nil || !ok {
		t.Fatalf("CurrentEffectiveDate() ok=%v err=%v", ok, err)
	}
	if !got.Equal(older) {
		t.Fatalf("rule-28.md effective moved to %v, want %v", got, older)
	}

	repo, err := git.PlainOpen(s.Dir())
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	ref, _ := repo.Head()
	head, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	if head.Message != "Rule 6.1 effective March 1, 2010" {
		t.Fatalf("HEAD message changed: %q", head.Message)
	}
	wantHead := time.Date(2010, time.March, 1, 12, 0, 0, 0, time.UTC)
	if !head.Author.When.UTC().Equal(wantHead) {
		t.Fatalf("HEAD author date moved to %v", head.Author.When.UTC())
	}

	parent, err := head.Parent(0)
	if err != nil {
		t.Fatalf("parent: %v", err)
	}
	if parent.Message != "Rule 28 effective June 1, 2008" {
		t.Fatalf("rewritten commit message changed: %q", parent.Message)
	}
	wantParent := time.Date(2008, time.June, 1, 12, 0, 0, 0, time.UTC)
	if !parent.Author.When.UTC().Equal(wantParent) {
		t.Fatalf("rewritten commit author date moved to %v", parent.Author.When.UTC())
	}
}

func TestAmendLatestRejectsUncommittedFile(t *testing.T) {
	s := newTestService(t)
	effective := time.Date(2019, time.August, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Commit("rule-3.md", "content\n", effective, "msg"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := s.AmendLatest("rule-404.md", "orphan\n"); err == nil {
		t.Fatal("expected error amending a file with no commits")
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "rule-404.md")); !os.IsNotExist(err) {
		t.Fatalf("rejected amend left a file behind: %v", err)
	}
}

func TestRestoreRevertsWorkingCopy(t *testing.T) {
	s := newTestService(t)
	effective := time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Commit("rule-12.md", "committed\n", effective, "msg"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	path := filepath.Join(s.Dir(), "rule-12.md")
	if err := os.WriteFile(path, []byte("dirty\n"), 0o644); err != nil {
		t.Fatalf("dirty write: %v", err)
	}

	if err := s.Restore("rule-12.md"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(data) != "committed\n" {
		t.Fatalf("restored content = %q", data)
	}
}

func TestRestoreRemovesUntrackedFile(t *testing.T) {
	s := newTestService(t)
	path := filepath.Join(s.Dir(), "rule-99.md")
	if err := os.WriteFile(path, []byte("never committed\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := s.Restore("rule-99.md"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("untracked file survived restore: %v", err)
	}
}

func TestCurrentEffectiveDateTracksPerFile(t *testing.T) {
	s := newTestService(t)
	first := time.Date(2003, time.January, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2010, time.March, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Commit("rule-6-1.md", "v1\n", first, "v1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := s.Commit("rule-28.md", "other\n", second, "other rule"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, ok, err := s.CurrentEffectiveDate("rule-6-1.md")
	if err != nil || !ok {
		t.Fatalf("CurrentEffectiveDate() ok=%v err=%v", ok, err)
	}
	if !got.Equal(first) {
		t.Fatalf("rule-6-1.md effective = %v, want %v", got, first)
	}

	if _, ok, err := s.CurrentEffectiveDate("rule-404.md"); err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}
}
