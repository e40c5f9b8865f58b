// Package ledger adapts a plain git repository into the append-only
// version ledger: one markdown file per rule, one commit per historical
// version, commit timestamps forced to each version's effective date.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type Service struct {
	dir         string
	authorName  string
	authorEmail string
	mu          sync.Mutex
}

func New(dir, authorName, authorEmail string) *Service {
	return &Service{
		dir:         dir,
		authorName:  authorName,
		authorEmail: authorEmail,
	}
}

// Dir returns the repository path on disk.
func (s *Service) Dir() string { return s.dir }

// Init creates the repository with a README baseline commit if it does not
// exist yet. Calling it on an existing ledger is a no-op.
func (s *Service) Init(categoryName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(filepath.Join(s.dir, ".git")); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat ledger path: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	repo, err := git.PlainInit(s.dir, false)
	if err != nil {
		return fmt.Errorf("init ledger repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	readme := fmt.Sprintf(`# %s

Each rule is stored as one markdown file. Git history tracks how each rule
changed over time, with commit dates matching the effective date of each
version.

    git log --oneline rule-28.md
    git log -p rule-28.md
    git log --before="2010-12-31" --oneline rule-28.md
`, categoryName)
	if err := os.WriteFile(filepath.Join(s.dir, "README.md"), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	if _, err := worktree.Add("README.md"); err != nil {
		return fmt.Errorf("git add readme: %w", err)
	}

	sig := s.signature(time.Now())
	hash, err := worktree.Commit("Initialize repository", &git.CommitOptions{
		Author:    &sig,
		Committer: &sig,
	})
	if err != nil {
		return fmt.Errorf("commit readme: %w", err)
	}

	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// Commit writes the file and commits it with author and committer dates
// pinned to noon UTC of the effective date. Committing byte-identical
// content is treated as success so re-running a build over identical
// source text stays idempotent.
func (s *Service) Commit(filename, content string, effective time.Time, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, worktree, err := s.open()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(s.dir, filename), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if _, err := worktree.Add(filename); err != nil {
		return fmt.Errorf("git add %s: %w", filename, err)
	}

	sig := s.signature(commitTime(effective))
	_, err = worktree.Commit(message, &git.CommitOptions{
		Author:    &sig,
		Committer: &sig,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("commit %s: %w", filename, err)
	}
	return nil
}

// AmendLatest rewrites the newest commit that touched the file with new
// content, reusing that commit's message and both signatures so a silent
// correction never moves a version's effective date. When that commit sits
// at HEAD it is amended in place; when it is buried under other rules'
// later commits, the commit itself is rewritten and its descendants
// replayed on top, so the correction never leaks into a sibling rule's
// commit.
func (s *Service) AmendLatest(filename, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, worktree, err := s.open()
	if err != nil {
		return err
	}

	ref, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}
	head, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return fmt.Errorf("load HEAD commit: %w", err)
	}

	target, err := latestCommitFor(repo, ref.Hash(), filename)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("no commits touch %s", filename)
		}
		return fmt.Errorf("find latest commit for %s: %w", filename, err)
	}
	if target.Hash != head.Hash {
		return s.rewriteCommit(repo, worktree, ref, target, filename, content)
	}

	if err := os.WriteFile(filepath.Join(s.dir, filename), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if _, err := worktree.Add(filename); err != nil {
		return fmt.Errorf("git add %s: %w", filename, err)
	}

	author := head.Author
	committer := head.Committer
	_, err = worktree.Commit(head.Message, &git.CommitOptions{
		Amend:     true,
		Author:    &author,
		Committer: &committer,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("amend %s: %w", filename, err)
	}
	return nil
}

// rewriteCommit replaces the file's blob in target and in every commit
// above it up to HEAD, then moves the branch to the replayed chain. All
// messages, signatures, and timestamps are preserved; only tree hashes
// change. Ledger history is strictly linear, which is what makes the
// replay safe.
func (s *Service) rewriteCommit(repo *git.Repository, worktree *git.Worktree, ref *plumbing.Reference, target *object.Commit, filename, content string) error {
	var chain []*object.Commit
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return fmt.Errorf("load HEAD commit: %w", err)
	}
	for {
		chain = append(chain, commit)
		if commit.Hash == target.Hash {
			break
		}
		if commit.NumParents() != 1 {
			return fmt.Errorf("non-linear history above latest commit for %s", filename)
		}
		commit, err = commit.Parent(0)
		if err != nil {
			return fmt.Errorf("walk history for %s: %w", filename, err)
		}
	}

	blob, err := storeBlob(repo, content)
	if err != nil {
		return fmt.Errorf("store blob for %s: %w", filename, err)
	}

	parents := target.ParentHashes
	var newHash plumbing.Hash
	for i := len(chain) - 1; i >= 0; i-- {
		orig := chain[i]
		tree, err := orig.Tree()
		if err != nil {
			return fmt.Errorf("load tree of %s: %w", orig.Hash, err)
		}
		treeHash, err := replaceTreeEntry(repo, tree, filename, blob)
		if err != nil {
			return fmt.Errorf("rewrite tree of %s: %w", orig.Hash, err)
		}

		rewritten := &object.Commit{
			Author:       orig.Author,
			Committer:    orig.Committer,
			Message:      orig.Message,
			TreeHash:     treeHash,
			ParentHashes: parents,
		}
		obj := repo.Storer.NewEncodedObject()
		if err := rewritten.Encode(obj); err != nil {
			return fmt.Errorf("encode rewritten commit: %w", err)
		}
		newHash, err = repo.Storer.SetEncodedObject(obj)
		if err != nil {
			return fmt.Errorf("store rewritten commit: %w", err)
		}
		parents = []plumbing.Hash{newHash}
	}

	if err := repo.Storer.SetReference(plumbing.NewHashReference(ref.Name(), newHash)); err != nil {
		return fmt.Errorf("move %s: %w", ref.Name(), err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, filename), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if _, err := worktree.Add(filename); err != nil {
		return fmt.Errorf("git add %s: %w", filename, err)
	}
	return nil
}

// latestCommitFor returns the newest commit that touched the file, or
// io.EOF when no commit does.
func latestCommitFor(repo *git.Repository, from plumbing.Hash, filename string) (*object.Commit, error) {
	iter, err := repo.Log(&git.LogOptions{From: from, FileName: &filename})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	return iter.Next()
}

func storeBlob(repo *git.Repository, content string) (plumbing.Hash, error) {
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write([]byte(content)); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return repo.Storer.SetEncodedObject(obj)
}

// replaceTreeEntry rebuilds a root tree with the file's entry pointing at
// blob. Ledger files all live at the repository root.
func replaceTreeEntry(repo *git.Repository, tree *object.Tree, filename string, blob plumbing.Hash) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, len(tree.Entries))
	copy(entries, tree.Entries)

	found := false
	for i := range entries {
		if entries[i].Name == filename {
			entries[i].Hash = blob
			found = true
		}
	}
	if !found {
		return plumbing.ZeroHash, fmt.Errorf("%s not present in tree", filename)
	}

	newTree := &object.Tree{Entries: entries}
	obj := repo.Storer.NewEncodedObject()
	if err := newTree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return repo.Storer.SetEncodedObject(obj)
}

// CurrentContent returns the file's content at HEAD. ok is false when the
// ledger has no such file yet.
func (s *Service) CurrentContent(filename string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentContentLocked(filename)
}

func (s *Service) currentContentLocked(filename string) (string, bool, error) {
	repo, _, err := s.open()
	if err != nil {
		return "", false, err
	}

	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return "", false, fmt.Errorf("load HEAD commit: %w", err)
	}
	file, err := commit.File(filename)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("load %s from HEAD: %w", filename, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", filename, err)
	}
	return content, true, nil
}

// CurrentEffectiveDate returns the author date of the newest commit that
// touched the file, truncated to a calendar date. It is derived from the
// log on every call, never cached.
func (s *Service) CurrentEffectiveDate(filename string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, _, err := s.open()
	if err != nil {
		return time.Time{}, false, err
	}

	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &filename})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read log for %s: %w", filename, err)
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("iterate log for %s: %w", filename, err)
	}

	when := commit.Author.When.UTC()
	return time.Date(when.Year(), when.Month(), when.Day(), 0, 0, 0, 0, time.UTC), true, nil
}

// Restore puts the working copy of the file back to its HEAD state. Used
// after a failed amend so the ledger directory never holds half-applied
// content.
func (s *Service) Restore(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok, err := s.currentContentLocked(filename)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, filename)
	if !ok {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filename, err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("restore %s: %w", filename, err)
	}
	return nil
}

// CommitCount reports the total number of commits, for run summaries.
func (s *Service) CommitCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, _, err := s.open()
	if err != nil {
		return 0, err
	}
	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("resolve HEAD: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return 0, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	count := 0
	err = iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate log: %w", err)
	}
	return count, nil
}

func (s *Service) open() (*git.Repository, *git.Worktree, error) {
	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("open worktree: %w", err)
	}
	return repo, worktree, nil
}

func (s *Service) signature(when time.Time) object.Signature {
	return object.Signature{
		Name:  s.authorName,
		Email: s.authorEmail,
		When:  when,
	}
}

// commitTime pins the commit timestamp to noon UTC of the effective date
// so day-granularity dates stay stable across timezones.
func commitTime(effective time.Time) time.Time {
	return time.Date(effective.Year(), effective.Month(), effective.Day(), 12, 0, 0, 0, time.UTC)
}
