package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

// FileLock holds the storage root for one process. The lock is advisory
// (flock on unix, LockFileEx on windows) and released by the kernel if the
// process dies.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock for root. The lock file is <root>/.lock.
func NewFileLock(root string) *FileLock {
	lockPath := filepath.Join(root, LockFile)
	return &FileLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock blocks until the lock is acquired.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it's held elsewhere.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Acquire takes the lock or fails with IndexLocked when another process
// (or another Manager in this process) holds it.
func (l *FileLock) Acquire() error {
	acquired, err := l.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return mserrors.New(mserrors.ErrCodeIndexLocked,
			fmt.Sprintf("index at %s is in use by another process", filepath.Dir(l.path)), nil).
			WithDetail("lock", l.path).
			WithSuggestion("Stop the other multisearch process (watch or serve) and retry")
	}
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked FileLock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked reports whether this FileLock holds the lock.
func (l *FileLock) IsLocked() bool {
	return l.locked
}
