package movies

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medleyhq/medley/lib/metrics"
	"github.com/medleyhq/medley/lib/tmdb"
	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// refreshLockTimeout is how long a refresh waits for another one to finish.
const refreshLockTimeout = 2 * time.Second

var upsertColumns = []string{
	"updated_at", "deleted_at", "page", "title", "original_language", "original_title",
	"overview", "poster_path", "backdrop_path", "media_type", "popularity",
	"release_date", "video", "vote_average", "vote_count",
}

func toModel(m tmdb.Movie, page int, mediaType string) models.Movie {
	return models.Movie{
		Page:             page,
		MovieID:          m.ID,
		Title:            m.Title,
		OriginalLanguage: m.OriginalLanguage,
		OriginalTitle:    m.OriginalTitle,
		Overview:         m.Overview,
		PosterPath:       m.PosterPath,
		BackdropPath:     m.BackdropPath,
		MediaType:        mediaType,
		Popularity:       m.Popularity,
		ReleaseDate:      m.Released(),
		Video:            m.Video,
		VoteAverage:      m.VoteAverage,
		VoteCount:        m.VoteCount,
	}
}

// upsert updates or creates movie records keyed by TMDB id.
func upsert(tx *gorm.DB, list []tmdb.Movie, page int, mediaType string) error {
	if len(list) == 0 {
		return nil
	}
	rows := make([]models.Movie, len(list))
	for i, m := range list {
		rows[i] = toModel(m, page, mediaType)
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "movie_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(&rows).Error
}

// Refresh pulls the configured number of discover pages from TMDB into the
// local catalogue and returns how many records it wrote. Only one refresh
// runs at a time across processes sharing the lock directory.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	var synced int
	ok, err := s.lock.WithLock(ctx, refreshLockKey, refreshLockTimeout, func(ctx context.Context) error {
		for page := 1; page <= s.pages; page++ {
			list, err := s.catalog.Discover(ctx, page)
			if err != nil {
				return fmt.Errorf("failed to fetch discover page %d: %w", page, err)
			}
			if err := upsert(s.db.WithContext(ctx), list.Results, page, models.MediaTypeMovie); err != nil {
				return fmt.Errorf("failed to save discover page %d: %w", page, err)
			}
			synced += len(list.Results)
			metrics.MoviesSynced.Add(float64(len(list.Results)))
		}
		return nil
	})
	if err != nil {
		return synced, err
	}
	if !ok {
		return 0, ErrRefreshRunning
	}
	s.logger.Info("Refreshed movie catalogue", slog.Int("pages", s.pages), slog.Int("movies", synced))
	return synced, nil
}
