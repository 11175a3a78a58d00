// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/medleyhq/medley/lib/db"
	"gorm.io/gorm"
)

// Open returns a private in-memory SQLite database with every table
// migrated. It is closed when the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := db.Open("sqlite", dsn, logger)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.RunMigrations(context.Background(), gdb, logger); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}
