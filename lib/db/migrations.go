package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

// RunMigrations creates or updates the tables of every site.
func RunMigrations(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	if IsSQLite(db) {
		enableSQLiteOptimizations(ctx, db, logger)
	}

	if err := db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	createAdditionalIndexes(ctx, db, logger)
	return nil
}

// enableSQLiteOptimizations enables SQLite-specific optimizations
func enableSQLiteOptimizations(ctx context.Context, db *gorm.DB, logger *slog.Logger) {
	optimizations := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range optimizations {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			logger.WarnContext(ctx, "Failed to execute pragma", slog.String("pragma", pragma), slog.Any("error", err))
			continue
		}
		logger.DebugContext(ctx, "Executed pragma", slog.String("pragma", pragma))
	}
}

// createAdditionalIndexes creates composite indexes for the listing queries.
func createAdditionalIndexes(ctx context.Context, db *gorm.DB, logger *slog.Logger) {
	additionalIndexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_items_category_available ON items(category, available)",
		"CREATE INDEX IF NOT EXISTS idx_items_label ON items(label)",
		"CREATE INDEX IF NOT EXISTS idx_orders_user_ordered ON orders(user_id, is_ordered)",
		"CREATE INDEX IF NOT EXISTS idx_movies_popularity_release ON movies(popularity, release_date)",
		"CREATE INDEX IF NOT EXISTS idx_reviews_item_created ON reviews(item_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_user_parent ON tasks(user_id, parent_task_id)",
	}

	for _, indexSQL := range additionalIndexes {
		if err := db.WithContext(ctx).Exec(indexSQL).Error; err != nil {
			logger.WarnContext(ctx, "Failed to create index", slog.String("sql", indexSQL), slog.Any("error", err))
			continue
		}
		logger.DebugContext(ctx, "Created index", slog.String("sql", indexSQL))
	}
}
