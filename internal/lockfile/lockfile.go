// Package lockfile implements the per-recipe exclusive advisory lock the
// lifecycle executor takes before touching a recipe (spec §4.7): a
// non-blocking flock on <canonical-recipe-path>.lock, released RAII-style
// on Close so a lock is never leaked across a panic or an early return.
package lockfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrBusy is returned when Acquire finds the lock already held by another
// process. The caller is expected to name the lock file in its own error
// so an operator can recover from a stale lock by hand.
var ErrBusy = errors.New("lock is busy")

// Lock is a held advisory lock on one recipe file. The zero value is not
// usable; obtain one from Acquire.
type Lock struct {
	file *os.File
	path string
}

// Path returns the path of the underlying .lock file.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes a non-blocking exclusive lock on recipePath + ".lock".
// Failure due to contention returns ErrBusy; any other failure (permission,
// missing parent directory) is returned wrapped.
func Acquire(recipePath string) (*Lock, error) {
	lockPath := recipePath + ".lock"

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", lockPath, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", lockPath, ErrBusy)
		}
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}

	return &Lock{file: file, path: lockPath}, nil
}

// Close releases the lock and removes the lock file. It is safe to call
// more than once; subsequent calls are no-ops.
func (l *Lock) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	removeErr := os.Remove(l.path)

	if unlockErr != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing lock file %s: %w", l.path, closeErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("removing lock file %s: %w", l.path, removeErr)
	}
	return nil
}
