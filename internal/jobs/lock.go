package jobs

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrSweepRunning is returned when another process holds the sweep lock.
var ErrSweepRunning = errors.New("another sweep is already running")

// SweepLockPath is the lock file shared by every process sweeping the
// database at dbPath.
func SweepLockPath(dbPath string) string {
	return dbPath + ".sweep.lock"
}

// TryLockSweep takes the sweep lock of the database at dbPath without
// blocking. The returned func releases it. In-memory databases are private
// to one process and need no lock.
func TryLockSweep(dbPath string) (func(), error) {
	if dbPath == "" || dbPath == ":memory:" {
		return func() {}, nil
	}
	lock := flock.New(SweepLockPath(dbPath))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, ErrSweepRunning
	}
	return func() { lock.Unlock() }, nil
}
