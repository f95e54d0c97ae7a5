// Package lock guards a registry work directory against concurrent writers.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside the work directory.
const FileName = ".dedup.lock"

// ErrLocked is returned when another process holds the work directory.
var ErrLocked = errors.New("work directory is locked by another process")

// WorkDir is an exclusive cross-process lock on a work directory.
type WorkDir struct {
	flock  *flock.Flock
	locked bool
}

// Acquire takes the lock on dir without blocking.
func Acquire(dir string) (*WorkDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	l := &WorkDir{flock: flock.New(filepath.Join(dir, FileName))}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%s: %w", l.flock.Path(), ErrLocked)
	}
	l.locked = true
	return l, nil
}

// Path returns the path to the lock file.
func (l *WorkDir) Path() string { return l.flock.Path() }

// Release drops the lock. Safe to call more than once.
func (l *WorkDir) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
