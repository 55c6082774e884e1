package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".sync.lock"
	lockRetryDelay = 250 * time.Millisecond
)

// SyncLock is an advisory file lock next to the SQLite database. It keeps a
// one-shot `reelwatch sync` and a running `reelwatch serve` from syncing into
// the same file at the same time.
type SyncLock struct {
	lock *flock.Flock
	path string
}

// NewSyncLock creates a new lock for the given database path.
func NewSyncLock(dbPath string) (*SyncLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute db path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &SyncLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// TryLock acquires the lock without waiting.
func (l *SyncLock) TryLock() (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return locked, nil
}

// Lock waits for the lock until ctx is done.
func (l *SyncLock) Lock(ctx context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if locked {
		return nil
	}
	Log.Infof("Another reelwatch process is syncing into %s, waiting for it to finish...", l.path)
	if _, err := l.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
	}
	return nil
}

// Unlock releases the lock.
func (l *SyncLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the database path.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "reelwatch", "reelwatch.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
