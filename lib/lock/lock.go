package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileLock serializes jobs across processes that share a lock directory.
type FileLock struct {
	dir    string
	logger *slog.Logger
}

// NewFileLock returns a lock rooted at dir. An empty dir uses the system temp directory.
func NewFileLock(dir string, logger *slog.Logger) *FileLock {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "medley-locks")
	}
	return &FileLock{dir: dir, logger: logger}
}

// TryLock attempts to acquire key until timeout elapses. It reports false when
// another holder kept the lock for the whole window.
func (fl *FileLock) TryLock(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	lockFile := fl.path(key)

	if err := os.MkdirAll(fl.dir, 0750); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		// #nosec G304 - lockFile is built from the configured directory in path
		file, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			if _, err := fmt.Fprintf(file, "%d\n%d\n", time.Now().Unix(), os.Getpid()); err != nil {
				_ = file.Close()
				_ = os.Remove(lockFile)
				return false, fmt.Errorf("failed to write lock file: %w", err)
			}
			if err := file.Close(); err != nil {
				return false, fmt.Errorf("failed to close lock file: %w", err)
			}
			fl.logger.Debug("Acquired lock", slog.String("key", key))
			return true, nil
		}
		if !os.IsExist(err) {
			return false, fmt.Errorf("failed to create lock file: %w", err)
		}

		if fl.isStale(lockFile, timeout*2) {
			fl.logger.Warn("Removing stale lock file", slog.String("file", lockFile))
			if err := os.Remove(lockFile); err != nil && !os.IsNotExist(err) {
				return false, fmt.Errorf("failed to remove stale lock: %w", err)
			}
			continue
		}

		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Unlock releases key. Releasing an unheld key is not an error.
func (fl *FileLock) Unlock(key string) error {
	if err := os.Remove(fl.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	fl.logger.Debug("Released lock", slog.String("key", key))
	return nil
}

// WithLock runs fn while holding key.
func (fl *FileLock) WithLock(ctx context.Context, key string, timeout time.Duration, fn func(context.Context) error) (bool, error) {
	ok, err := fl.TryLock(ctx, key, timeout)
	if err != nil || !ok {
		return ok, err
	}
	defer func() {
		if err := fl.Unlock(key); err != nil {
			fl.logger.Error("Failed to release lock", slog.String("key", key), slog.Any("error", err))
		}
	}()
	return true, fn(ctx)
}

func (fl *FileLock) path(key string) string {
	return filepath.Clean(filepath.Join(fl.dir, filepath.Base(key)+".lock"))
}

func (fl *FileLock) isStale(lockFile string, staleAfter time.Duration) bool {
	info, err := os.Stat(lockFile)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > staleAfter
}
