package main

import (
	"context"
	"log/slog"

	"github.com/medleyhq/medley/lib/types"
	"github.com/medleyhq/medley/models"
	"github.com/urfave/cli/v3"
)

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Summarise what every site has stored",
		Action: withApp(runStats),
	}
}

func runStats(ctx context.Context, _ *cli.Command, app *App) error {
	logger := app.logger
	s, err := types.CollectStats(ctx, app.db)
	if err != nil {
		return err
	}

	logger.Info("Video Q&A", slog.Int64("videos", s.Videos), slog.Int64("sessions", s.VideoSessions))
	logger.Info("Shop",
		slog.Int64("items", s.Items),
		slog.Int64("reviews", s.Reviews),
		slog.Int64("open_orders", s.OpenOrders),
		slog.Int64("placed_orders", s.PlacedOrders),
		slog.Int64("pending_refunds", s.PendingRefunds),
		slog.Float64("revenue", s.Revenue))
	logger.Info("Tasks", slog.Int64("tasks", s.Tasks), slog.Int64("completed", s.CompletedTasks))
	logger.Info("Coaching", slog.Int64("requests", s.CoachingRequests))
	logger.Info("Movies", slog.Int64("movies", s.Movies), slog.Int64("favorites", s.Favorites))
	if s.LastMovieSync != nil {
		logger.Info("Last catalogue sync", slog.Time("at", *s.LastMovieSync))
	}
	for _, f := range s.TopFavorites {
		logger.Info("Favorite", slog.String("title", f.Title), slog.Int64("count", f.Count))
	}
	logger.Info("Users", slog.Int64("count", s.Users))

	checks := []struct {
		name  string
		model any
		where string
		args  []any
	}{
		{"items without slug", &models.Item{}, "slug = '' OR slug IS NULL", nil},
		{"placed orders without reference", &models.Order{}, "is_ordered = ? AND (ref_code = '' OR ref_code IS NULL)", []any{true}},
		{"movies without title", &models.Movie{}, "title = '' OR title IS NULL", nil},
	}
	problems := 0
	for _, c := range checks {
		var n int64
		q := app.db.WithContext(ctx).Model(c.model).Where(c.where, c.args...)
		if err := q.Count(&n).Error; err != nil {
			logger.Error("Failed to run check", slog.String("check", c.name), slog.Any("error", err))
			continue
		}
		if n > 0 {
			problems++
			logger.Warn("Data check failed", slog.String("check", c.name), slog.Int64("count", n))
		}
	}

	if s.Movies == 0 {
		logger.Info("The movie catalogue is empty, run `medley movies refresh`")
	}
	if problems == 0 {
		logger.Info("All data checks passed")
	}
	return nil
}
