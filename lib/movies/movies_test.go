package movies

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/medleyhq/medley/lib/db/dbtest"
	"github.com/medleyhq/medley/lib/lock"
	"github.com/medleyhq/medley/lib/tmdb"
	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

var now = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	pages     map[int][]tmdb.Movie
	search    []tmdb.Movie
	searchErr error
	searches  int
}

func (f *fakeCatalog) Discover(_ context.Context, page int) (*tmdb.MovieList, error) {
	return &tmdb.MovieList{Page: page, Results: f.pages[page]}, nil
}

func (f *fakeCatalog) SearchMovie(_ context.Context, _ string) (*tmdb.MovieList, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &tmdb.MovieList{Results: f.search}, nil
}

func newService(t *testing.T, cat *fakeCatalog, pages int) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(dbtest.Open(t), cat, lock.NewFileLock(t.TempDir(), logger), pages, logger)
	s.now = func() time.Time { return now }
	return s
}

func daysAgo(d int) string {
	return now.AddDate(0, 0, -d).Format("2006-01-02")
}

func seed(t *testing.T, s *Service, list ...models.Movie) []models.Movie {
	t.Helper()
	if err := s.db.Create(&list).Error; err != nil {
		t.Fatal(err)
	}
	return list
}

func released(d int) *time.Time {
	t := now.AddDate(0, 0, -d).Truncate(24 * time.Hour)
	return &t
}

func createUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	u := &models.User{Username: "viewer", PasswordHash: "x"}
	if err := db.Create(u).Error; err != nil {
		t.Fatal(err)
	}
	return u
}

func TestStars(t *testing.T) {
	tests := []struct {
		vote   float64
		filled int
	}{
		{0, 0},
		{5.0, 2},
		{7.0, 4},
		{7.4, 4},
		{8.6, 4},
		{9.0, 4},
		{9.2, 5},
		{10, 5},
	}
	for _, tt := range tests {
		stars := Stars(tt.vote)
		if len(stars) != 5 {
			t.Fatalf("Stars(%v) has %d slots", tt.vote, len(stars))
		}
		n := 0
		for _, s := range stars {
			if s {
				n++
			}
		}
		if n != tt.filled {
			t.Errorf("Stars(%v) filled %d, want %d", tt.vote, n, tt.filled)
		}
	}
}

func TestSearchTerms(t *testing.T) {
	got := searchTerms(" spider-man  no way-home ")
	want := []string{"spider", "man", "no", "way", "home"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("searchTerms = %q, want %q", got, want)
	}
}

func TestRefreshUpserts(t *testing.T) {
	cat := &fakeCatalog{pages: map[int][]tmdb.Movie{
		1: {{ID: 10, Title: "Dune", Popularity: 900, ReleaseDate: daysAgo(3)}, {ID: 11, Title: "Alien", Popularity: 100}},
		2: {{ID: 12, Title: "Heat", Popularity: 50, ReleaseDate: "bad-date"}},
	}}
	s := newService(t, cat, 2)
	ctx := context.Background()

	n, err := s.Refresh(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Refresh = %d, %v", n, err)
	}

	cat.pages[1][0].Title = "Dune: Part One"
	cat.pages[1][0].Popularity = 950
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	var all []models.Movie
	if err := s.db.Order("movie_id").Find(&all).Error; err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("movies = %d", len(all))
	}
	dune := all[0]
	if dune.Title != "Dune: Part One" || dune.Popularity != 950 || dune.MediaType != models.MediaTypeMovie || dune.Page != 1 {
		t.Errorf("dune = %+v", dune)
	}
	if all[2].ReleaseDate != nil || all[2].Page != 2 {
		t.Errorf("heat = %+v", all[2])
	}
}

func TestRefreshSkipsWhileLocked(t *testing.T) {
	s := newService(t, &fakeCatalog{}, 1)
	ctx := context.Background()
	ok, err := s.lock.TryLock(ctx, refreshLockKey, time.Second)
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer s.lock.Unlock(refreshLockKey)

	if _, err := s.Refresh(ctx); !errors.Is(err, ErrRefreshRunning) {
		t.Errorf("Refresh = %v", err)
	}
}

func TestHome(t *testing.T) {
	s := newService(t, &fakeCatalog{}, 1)
	ctx := context.Background()
	var list []models.Movie
	for i := 0; i < 10; i++ {
		list = append(list, models.Movie{MovieID: 100 + i, Title: fmt.Sprintf("Hit %d", i), Popularity: 600, ReleaseDate: released(100)})
	}
	list = append(list,
		models.Movie{MovieID: 1, Title: "Fresh", Popularity: 10, ReleaseDate: released(2)},
		models.Movie{MovieID: 2, Title: "Recent", Popularity: 10, ReleaseDate: released(20)},
		models.Movie{MovieID: 3, Title: "Old", Popularity: 10, ReleaseDate: released(45)},
	)
	seed(t, s, list...)

	home, err := s.Home(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(home.Latest) != 2 || home.Latest[0].Title != "Fresh" {
		t.Errorf("latest = %+v", home.Latest)
	}
	if len(home.Popular) != PopularCount || len(home.Featured) != FeaturedCount {
		t.Errorf("popular = %d featured = %d", len(home.Popular), len(home.Featured))
	}

	more, err := s.MorePopular(ctx, 0, 8)
	if err != nil || len(more) != 2 {
		t.Errorf("more popular = %d, %v", len(more), err)
	}
}

func TestToggleFavoriteTwiceLeavesNone(t *testing.T) {
	s := newService(t, &fakeCatalog{}, 1)
	ctx := context.Background()
	user := createUser(t, s.db)
	m := seed(t, s, models.Movie{MovieID: 1, Title: "Up"})[0]

	on, err := s.ToggleFavorite(ctx, user.ID, m.ID)
	if err != nil || !on {
		t.Fatalf("first toggle = %v, %v", on, err)
	}
	favs, err := s.Favorites(ctx, user.ID, 1)
	if err != nil || len(favs.Items) != 1 || !favs.Items[0].IsFavorite {
		t.Errorf("favorites = %+v, %v", favs, err)
	}
	card, err := s.Movie(ctx, m.ID, user.ID)
	if err != nil || !card.IsFavorite {
		t.Errorf("movie card = %+v, %v", card, err)
	}

	off, err := s.ToggleFavorite(ctx, user.ID, m.ID)
	if err != nil || off {
		t.Fatalf("second toggle = %v, %v", off, err)
	}
	var n int64
	s.db.Model(&models.Favorite{}).Count(&n)
	if n != 0 {
		t.Errorf("favorites left = %d", n)
	}
	if is, _ := s.IsFavorite(ctx, user.ID, m.ID); is {
		t.Error("still a favorite")
	}

	if _, err := s.ToggleFavorite(ctx, user.ID, 9999); !errors.Is(err, ErrMovieNotFound) {
		t.Errorf("unknown movie = %v", err)
	}
}

func TestAllOrdering(t *testing.T) {
	s := newService(t, &fakeCatalog{}, 1)
	seed(t, s,
		models.Movie{MovieID: 1, Title: "B", Popularity: 50, ReleaseDate: released(10)},
		models.Movie{MovieID: 2, Title: "A", Popularity: 90},
		models.Movie{MovieID: 3, Title: "C", Popularity: 50, ReleaseDate: released(1)},
	)
	page, err := s.All(context.Background(), 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	var got string
	for _, c := range page.Items {
		got += c.Title
	}
	if got != "ACB" {
		t.Errorf("order = %s", got)
	}
	more, err := s.MoreAll(context.Background(), 0, 2)
	if err != nil || len(more) != 1 || more[0].Title != "B" {
		t.Errorf("more all = %+v, %v", more, err)
	}
}

func TestSearch(t *testing.T) {
	t.Run("local hits are enough", func(t *testing.T) {
		cat := &fakeCatalog{}
		s := newService(t, cat, 1)
		var list []models.Movie
		for i := 0; i < SearchLimit; i++ {
			list = append(list, models.Movie{MovieID: i + 1, Title: fmt.Sprintf("Star Wars %d", i)})
		}
		seed(t, s, list...)
		got, err := s.Search(context.Background(), 0, "star")
		if err != nil || len(got) != SearchLimit || cat.searches != 0 {
			t.Errorf("search = %d results, %d remote calls, %v", len(got), cat.searches, err)
		}
	})

	t.Run("falls back to TMDB", func(t *testing.T) {
		cat := &fakeCatalog{search: []tmdb.Movie{
			{ID: 7, Title: "Spider-Man", Popularity: 10, ReleaseDate: "2002-05-01"},
			{ID: 8, Title: "Spider-Man 2", Popularity: 30},
			{ID: 9, Title: "Spider-Verse", Popularity: 10, ReleaseDate: "2018-12-14"},
		}}
		s := newService(t, cat, 1)
		seed(t, s, models.Movie{MovieID: 7, Title: "Spider-Man", MediaType: models.MediaTypeMovie, Page: 3})

		got, err := s.Search(context.Background(), 0, "spider-man")
		if err != nil {
			t.Fatal(err)
		}
		var titles []string
		for _, c := range got {
			titles = append(titles, c.Title)
		}
		if fmt.Sprint(titles) != "[Spider-Man 2 Spider-Verse Spider-Man]" {
			t.Errorf("titles = %v", titles)
		}
		var stored models.Movie
		if err := s.db.Where("movie_id = ?", 7).First(&stored).Error; err != nil {
			t.Fatal(err)
		}
		if stored.MediaType != models.MediaTypeSearch || stored.Page != 0 {
			t.Errorf("stored = %+v", stored)
		}
	})

	t.Run("TMDB failure keeps local hits", func(t *testing.T) {
		cat := &fakeCatalog{searchErr: errors.New("boom")}
		s := newService(t, cat, 1)
		seed(t, s, models.Movie{MovieID: 1, Title: "Heat"}, models.Movie{MovieID: 2, Title: "Cold"})
		got, err := s.Search(context.Background(), 0, "heat")
		if err != nil || len(got) != 1 || got[0].Title != "Heat" {
			t.Errorf("search = %+v, %v", got, err)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		s := newService(t, &fakeCatalog{}, 1)
		if _, err := s.Search(context.Background(), 0, " - "); !errors.Is(err, ErrMissingQuery) {
			t.Errorf("Search = %v", err)
		}
		if _, err := s.MoreSearch(context.Background(), 0, "", 0); !errors.Is(err, ErrMissingQuery) {
			t.Errorf("MoreSearch = %v", err)
		}
	})
}
