package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	MediaTypeMovie  = "movie"
	MediaTypeSearch = "search"
)

// Movie is a local copy of a TMDB movie record. MovieID is the TMDB id.
type Movie struct {
	gorm.Model
	Page             int
	MovieID          int    `gorm:"uniqueIndex;not null"`
	Title            string `gorm:"size:255;index"`
	OriginalLanguage string `gorm:"size:10"`
	OriginalTitle    string `gorm:"size:255"`
	Overview         string
	PosterPath       string
	BackdropPath     string
	MediaType        string     `gorm:"size:20"`
	Popularity       float64    `gorm:"index"`
	ReleaseDate      *time.Time `gorm:"index"`
	Video            bool
	VoteAverage      float64
	VoteCount        int
}

// Favorite rows are hard deleted so a movie can be favorited again.
type Favorite struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UserID    uint `gorm:"uniqueIndex:idx_favorites_user_movie,priority:1;not null"`
	MovieID   uint `gorm:"uniqueIndex:idx_favorites_user_movie,priority:2;not null"`
	Movie     Movie
}
