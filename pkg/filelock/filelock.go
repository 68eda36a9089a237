// Package filelock provides advisory file locking to prevent two dupaudit
// processes from writing the same report at once.
package filelock

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// Suffix is appended to a report path to name its lock file.
const Suffix = ".lock"

// Lock represents an acquired advisory file lock.
type Lock struct {
	fl *flock.Flock
}

// PathFor returns the lock file path guarding target.
func PathFor(target string) string {
	return target + Suffix
}

// Acquire obtains an exclusive advisory lock on the file at path, creating it
// if needed. The call does not block: if another process already holds the
// lock, Acquire returns ErrLocked immediately.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock %s: %w", path, ErrLocked)
	}

	return &Lock{fl: fl}, nil
}

// Close releases the lock and removes the lock file.
// It is safe to call Close on a nil Lock (no-op).
func (l *Lock) Close() error {
	if l == nil || l.fl == nil {
		return nil
	}

	unlockErr := l.fl.Unlock()
	removeErr := os.Remove(l.fl.Path())

	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("remove lock file: %w", removeErr)
	}

	return nil
}
