package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLedgerLocked means another process holds the run lock for a ledger.
var ErrLedgerLocked = errors.New("ledger is locked by another run")

// RunLock is an advisory exclusive lock over one ledger. Interleaved
// commits from concurrent runs would break the chronological ordering of
// history, so a run must hold this for its full duration. The lock file
// lives next to the repository, not inside it, so it never shows up as an
// untracked change.
type RunLock struct {
	f *os.File
}

// AcquireRunLock takes the run lock for the ledger at dir, without
// blocking. A second acquisition fails with ErrLedgerLocked until the
// first is released or its process exits.
func AcquireRunLock(dir string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger parent dir: %w", err)
	}
	f, err := os.OpenFile(dir+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	return &RunLock{f: f}, nil
}

// Release drops the lock. Safe to call once per acquired lock.
func (l *RunLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}
