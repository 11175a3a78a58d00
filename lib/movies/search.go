package movies

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/medleyhq/medley/lib/db"
	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

var termSplit = regexp.MustCompile(`[- ]+`)

// searchTerms splits a query on spaces and hyphens.
func searchTerms(q string) []string {
	var terms []string
	for _, t := range termSplit.Split(strings.TrimSpace(q), -1) {
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// titleMatches restricts tx to movies whose title contains any of terms.
func titleMatches(tx *gorm.DB, terms []string) *gorm.DB {
	var conds []string
	var args []any
	for _, t := range terms {
		cond, arg := db.ContainsCI("title", t)
		conds = append(conds, cond)
		args = append(args, arg)
	}
	return tx.Where("("+strings.Join(conds, " OR ")+")", args...)
}

// Search finds movies whose title contains any word of q. When the local
// catalogue has fewer than SearchLimit hits, TMDB is searched too, its
// results stored, and those results shown instead. TMDB failures fall back
// to the local hits.
func (s *Service) Search(ctx context.Context, userID uint, q string) ([]Card, error) {
	terms := searchTerms(q)
	if len(terms) == 0 {
		return nil, ErrMissingQuery
	}
	tx := s.db.WithContext(ctx)

	var local []models.Movie
	if err := byPopularity(titleMatches(tx.Model(&models.Movie{}), terms)).
		Limit(SearchLimit).Find(&local).Error; err != nil {
		return nil, fmt.Errorf("failed to search movies: %w", err)
	}
	if len(local) >= SearchLimit {
		return s.cards(ctx, userID, local)
	}

	remote, err := s.catalog.SearchMovie(ctx, strings.TrimSpace(q))
	if err != nil {
		s.logger.Warn("TMDB search failed, using local results",
			slog.String("query", q), slog.Any("error", err))
		return s.cards(ctx, userID, local)
	}
	if err := upsert(tx, remote.Results, 0, models.MediaTypeSearch); err != nil {
		return nil, fmt.Errorf("failed to save search results: %w", err)
	}

	ids := make([]int, 0, len(remote.Results))
	for _, m := range remote.Results {
		ids = append(ids, m.ID)
	}
	var found []models.Movie
	if len(ids) > 0 {
		if err := byPopularity(tx.Model(&models.Movie{}).Where("movie_id IN ?", ids)).
			Find(&found).Error; err != nil {
			return nil, fmt.Errorf("failed to load search results: %w", err)
		}
	}
	return s.cards(ctx, userID, found)
}

// MoreSearch returns the next local movies whose title contains q, after
// the first start.
func (s *Service) MoreSearch(ctx context.Context, userID uint, q string, start int) ([]Card, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrMissingQuery
	}
	cond, arg := db.ContainsCI("title", q)
	return s.slice(ctx, userID, byPopularity(s.db.WithContext(ctx).Model(&models.Movie{}).Where(cond, arg)), start)
}
