package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newLock(t *testing.T) *FileLock {
	t.Helper()
	return NewFileLock(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTryLockExclusive(t *testing.T) {
	fl := newLock(t)
	ctx := context.Background()

	ok, err := fl.TryLock(ctx, "movies-refresh", time.Second)
	if err != nil || !ok {
		t.Fatalf("first TryLock = %v, %v", ok, err)
	}

	ok, err = fl.TryLock(ctx, "movies-refresh", 150*time.Millisecond)
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if ok {
		t.Fatal("second TryLock acquired a held lock")
	}

	if err := fl.Unlock("movies-refresh"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, err = fl.TryLock(ctx, "movies-refresh", time.Second)
	if err != nil || !ok {
		t.Fatalf("TryLock after Unlock = %v, %v", ok, err)
	}
}

func TestStaleLockIsReplaced(t *testing.T) {
	fl := newLock(t)
	path := fl.path("job")
	if err := os.WriteFile(path, []byte("1\n1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	ok, err := fl.TryLock(context.Background(), "job", time.Second)
	if err != nil || !ok {
		t.Fatalf("TryLock over stale lock = %v, %v", ok, err)
	}
}

func TestWithLockReleases(t *testing.T) {
	fl := newLock(t)
	want := errors.New("boom")

	ran, err := fl.WithLock(context.Background(), "job", time.Second, func(context.Context) error { return want })
	if !ran || !errors.Is(err, want) {
		t.Fatalf("WithLock = %v, %v", ran, err)
	}
	if _, err := os.Stat(fl.path("job")); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}
}

func TestPathStaysInDir(t *testing.T) {
	fl := newLock(t)
	if got := filepath.Dir(fl.path("../../etc/passwd")); got != fl.dir {
		t.Errorf("path escaped lock dir: %s", got)
	}
}
