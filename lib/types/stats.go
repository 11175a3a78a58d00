package types

import (
	"context"
	"fmt"
	"time"

	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

// StatsData summarises what every site has stored.
type StatsData struct {
	Users            int64
	Videos           int64
	VideoSessions    int64
	Items            int64
	Reviews          int64
	OpenOrders       int64
	PlacedOrders     int64
	PendingRefunds   int64
	Revenue          float64
	Tasks            int64
	CompletedTasks   int64
	CoachingRequests int64
	Movies           int64
	Favorites        int64
	// LastMovieSync is when the newest catalogue record was written.
	LastMovieSync *time.Time
	TopFavorites  []struct {
		Title string
		Count int64
	}
}

// CollectStats counts the rows behind StatsData.
func CollectStats(ctx context.Context, db *gorm.DB) (*StatsData, error) {
	tx := db.WithContext(ctx)
	s := &StatsData{}

	counts := []struct {
		name  string
		model any
		where []any
		out   *int64
	}{
		{"users", &models.User{}, nil, &s.Users},
		{"videos", &models.Video{}, nil, &s.Videos},
		{"video sessions", &models.VideoSession{}, nil, &s.VideoSessions},
		{"items", &models.Item{}, nil, &s.Items},
		{"reviews", &models.Review{}, nil, &s.Reviews},
		{"open orders", &models.Order{}, []any{"is_ordered = ?", false}, &s.OpenOrders},
		{"placed orders", &models.Order{}, []any{"is_ordered = ?", true}, &s.PlacedOrders},
		{"pending refunds", &models.Order{}, []any{"refund_requested = ?", true}, &s.PendingRefunds},
		{"tasks", &models.Task{}, nil, &s.Tasks},
		{"completed tasks", &models.Task{}, []any{"is_completed = ?", true}, &s.CompletedTasks},
		{"coaching requests", &models.CoachingRequest{}, nil, &s.CoachingRequests},
		{"movies", &models.Movie{}, nil, &s.Movies},
		{"favorites", &models.Favorite{}, nil, &s.Favorites},
	}
	for _, c := range counts {
		q := tx.Model(c.model)
		if len(c.where) > 0 {
			q = q.Where(c.where[0], c.where[1:]...)
		}
		if err := q.Count(c.out).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.name, err)
		}
	}

	if err := tx.Model(&models.Payment{}).Select("COALESCE(SUM(amount), 0)").Scan(&s.Revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}

	if s.Movies > 0 {
		var last models.Movie
		if err := tx.Order("updated_at DESC").First(&last).Error; err != nil {
			return nil, fmt.Errorf("failed to load last synced movie: %w", err)
		}
		s.LastMovieSync = &last.UpdatedAt
	}

	if err := tx.Model(&models.Favorite{}).
		Select("movies.title AS title, COUNT(*) AS count").
		Joins("JOIN movies ON movies.id = favorites.movie_id").
		Group("movies.title").
		Order("count DESC").Order("movies.title").
		Limit(5).
		Scan(&s.TopFavorites).Error; err != nil {
		return nil, fmt.Errorf("failed to rank favorites: %w", err)
	}
	return s, nil
}
