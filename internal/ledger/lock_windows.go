//go:build windows

package ledger

import "os"

// Windows has no flock(2); opening the lock file is best effort there and
// exclusion relies on the operator not starting two runs.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
