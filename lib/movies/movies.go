// Package movies keeps a local catalogue of TMDB movies and the users'
// favorites.
package movies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medleyhq/medley/lib/lock"
	"github.com/medleyhq/medley/lib/pagination"
	"github.com/medleyhq/medley/lib/tmdb"
	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

const (
	LatestCount       = 16
	PopularCount      = 8
	FeaturedCount     = 3
	LoadMoreCount     = 8
	AllPageSize       = 8
	FavoritesPageSize = 4
	SearchLimit       = 8

	// PopularThreshold is the TMDB popularity score a movie needs to be
	// listed as popular.
	PopularThreshold = 500
	LatestWindow     = 30 * 24 * time.Hour
)

const refreshLockKey = "movies-refresh"

var (
	ErrMovieNotFound  = errors.New("movie not found")
	ErrMissingQuery   = errors.New("missing search query")
	ErrRefreshRunning = errors.New("a catalogue refresh is already running")
)

// Catalog is the remote movie database.
type Catalog interface {
	Discover(ctx context.Context, page int) (*tmdb.MovieList, error)
	SearchMovie(ctx context.Context, query string) (*tmdb.MovieList, error)
}

type Service struct {
	db      *gorm.DB
	catalog Catalog
	lock    *lock.FileLock
	pages   int
	logger  *slog.Logger
	now     func() time.Time
}

// New returns the movie service. Refresh pulls discover pages 1 to pages.
func New(db *gorm.DB, catalog Catalog, fl *lock.FileLock, pages int, logger *slog.Logger) *Service {
	if pages < 1 {
		pages = 5
	}
	return &Service{db: db, catalog: catalog, lock: fl, pages: pages, logger: logger, now: time.Now}
}

// Card is a movie as shown to one viewer.
type Card struct {
	models.Movie
	IsFavorite bool
}

func (c Card) PosterURL() string   { return tmdb.ImageURL(c.PosterPath) }
func (c Card) BackdropURL() string { return tmdb.ImageURL(c.BackdropPath) }

// favorites returns the ids of the movies userID has favorited. Anonymous
// viewers (userID 0) have none.
func (s *Service) favorites(ctx context.Context, userID uint) (map[uint]bool, error) {
	set := map[uint]bool{}
	if userID == 0 {
		return set, nil
	}
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Pluck("movie_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (s *Service) cards(ctx context.Context, userID uint, list []models.Movie) ([]Card, error) {
	favs, err := s.favorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Card, len(list))
	for i, m := range list {
		out[i] = Card{Movie: m, IsFavorite: favs[m.ID]}
	}
	return out, nil
}

func (s *Service) page(ctx context.Context, userID uint, p pagination.Page[models.Movie]) (pagination.Page[Card], error) {
	favs, err := s.favorites(ctx, userID)
	if err != nil {
		return pagination.Page[Card]{}, err
	}
	return pagination.Map(p, func(m models.Movie) Card { return Card{Movie: m, IsFavorite: favs[m.ID]} }), nil
}

func byPopularity(q *gorm.DB) *gorm.DB {
	return q.Order("popularity DESC").Order("release_date DESC NULLS LAST").Order("id")
}

func (s *Service) popular(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.Movie{}).Where("popularity >= ?", PopularThreshold)
}

// Home is the front page of the movie site.
type Home struct {
	Latest   []Card
	Popular  []Card
	Featured []Card
}

// Home lists movies released within LatestWindow, newest first, and the
// first popular movies, the leading few of which are featured.
func (s *Service) Home(ctx context.Context, userID uint) (*Home, error) {
	tx := s.db.WithContext(ctx)

	var latest []models.Movie
	if err := tx.Where("release_date >= ?", s.now().UTC().Add(-LatestWindow)).
		Order("release_date DESC").Order("id").
		Limit(LatestCount).Find(&latest).Error; err != nil {
		return nil, fmt.Errorf("failed to load latest movies: %w", err)
	}
	var popular []models.Movie
	if err := s.popular(tx).Order("id").Limit(PopularCount).Find(&popular).Error; err != nil {
		return nil, fmt.Errorf("failed to load popular movies: %w", err)
	}

	home := &Home{}
	var err error
	if home.Latest, err = s.cards(ctx, userID, latest); err != nil {
		return nil, err
	}
	if home.Popular, err = s.cards(ctx, userID, popular); err != nil {
		return nil, err
	}
	home.Featured = home.Popular[:min(FeaturedCount, len(home.Popular))]
	return home, nil
}

// Movie loads one movie by its local id.
func (s *Service) Movie(ctx context.Context, id, userID uint) (*Card, error) {
	var m models.Movie
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMovieNotFound
		}
		return nil, fmt.Errorf("failed to load movie: %w", err)
	}
	cards, err := s.cards(ctx, userID, []models.Movie{m})
	if err != nil {
		return nil, err
	}
	return &cards[0], nil
}

// All lists every movie by popularity, then release date, newest first.
func (s *Service) All(ctx context.Context, userID uint, number int) (pagination.Page[Card], error) {
	p, err := pagination.Query[models.Movie](s.db.WithContext(ctx).Model(&models.Movie{}), number, AllPageSize, byPopularity)
	if err != nil {
		return pagination.Page[Card]{}, err
	}
	return s.page(ctx, userID, p)
}

// Favorites lists the movies userID has favorited.
func (s *Service) Favorites(ctx context.Context, userID uint, number int) (pagination.Page[Card], error) {
	tx := s.db.WithContext(ctx)
	base := tx.Model(&models.Movie{}).
		Where("id IN (?)", tx.Model(&models.Favorite{}).Select("movie_id").Where("user_id = ?", userID))
	p, err := pagination.Query[models.Movie](base, number, FavoritesPageSize, func(q *gorm.DB) *gorm.DB { return q.Order("id") })
	if err != nil {
		return pagination.Page[Card]{}, err
	}
	return s.page(ctx, userID, p)
}

// ToggleFavorite adds the movie to userID's favorites, or removes it when
// it is already there, and reports whether it is now a favorite.
func (s *Service) ToggleFavorite(ctx context.Context, userID, movieID uint) (bool, error) {
	var favorite bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Movie{}).Where("id = ?", movieID).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to load movie: %w", err)
		}
		if n == 0 {
			return ErrMovieNotFound
		}

		res := tx.Where("user_id = ? AND movie_id = ?", userID, movieID).Delete(&models.Favorite{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove favorite: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		if err := tx.Create(&models.Favorite{UserID: userID, MovieID: movieID}).Error; err != nil {
			return fmt.Errorf("failed to add favorite: %w", err)
		}
		favorite = true
		return nil
	})
	return favorite, err
}

// IsFavorite reports whether userID has favorited the movie.
func (s *Service) IsFavorite(ctx context.Context, userID, movieID uint) (bool, error) {
	favs, err := s.favorites(ctx, userID)
	if err != nil {
		return false, err
	}
	return favs[movieID], nil
}

func (s *Service) slice(ctx context.Context, userID uint, q *gorm.DB, start int) ([]Card, error) {
	var list []models.Movie
	if err := q.Offset(max(start, 0)).Limit(LoadMoreCount).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to load movies: %w", err)
	}
	return s.cards(ctx, userID, list)
}

// MorePopular returns the next popular movies after the first start.
func (s *Service) MorePopular(ctx context.Context, userID uint, start int) ([]Card, error) {
	return s.slice(ctx, userID, s.popular(s.db.WithContext(ctx)).Order("id"), start)
}

// MoreAll returns the next movies of the full listing after the first start.
func (s *Service) MoreAll(ctx context.Context, userID uint, start int) ([]Card, error) {
	return s.slice(ctx, userID, byPopularity(s.db.WithContext(ctx).Model(&models.Movie{})), start)
}
