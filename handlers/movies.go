package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/medleyhq/medley/lib/movies"
	"github.com/medleyhq/medley/lib/pagination"
	"github.com/medleyhq/medley/lib/validation"
)

const (
	siteMovies   = "movies"
	moviesHome   = "/movies/"
	moviesLogin  = "/movies/login/"
	cardsFile    = "partials.html"
	cardsBlock   = "movie_cards"
	refreshParam = "2"
)

type moviesIndexData struct {
	Home *movies.Home
}

// HandleMoviesIndex shows the front page. Visiting ?page=2 pulls fresh
// data from TMDB first.
func HandleMoviesIndex(svc *movies.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var flashes []Flash
		if r.URL.Query().Get("page") == refreshParam {
			if _, err := svc.Refresh(r.Context()); err != nil {
				if errors.Is(err, movies.ErrRefreshRunning) {
					slog.Info("Skipped catalogue refresh", slog.Any("error", err))
				} else {
					slog.Error("Failed to refresh catalogue", slog.Any("error", err))
					flashes = append(flashes, Flash{Level: flashError, Message: "Error fetching data"})
				}
			}
		}

		home, err := svc.Home(r.Context(), currentUserID(r))
		if err != nil {
			slog.Error("Failed to load movies", slog.Any("error", err))
			renderError(w, "We couldn't load the movies.", http.StatusInternalServerError)
			return
		}
		render(w, r, "movies_index.html", page{Title: "Screen Scene", Site: siteMovies, Flashes: flashes, Data: moviesIndexData{Home: home}})
	}
}

type movieDetailData struct {
	Movie *movies.Card
}

func HandleMovieDetail(svc *movies.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			renderError(w, "We couldn't find that movie.", http.StatusNotFound)
			return
		}
		movie, err := svc.Movie(r.Context(), id, currentUserID(r))
		if err != nil {
			if errors.Is(err, movies.ErrMovieNotFound) {
				renderError(w, "We couldn't find that movie.", http.StatusNotFound)
				return
			}
			slog.Error("Failed to load movie", slog.Uint64("id", uint64(id)), slog.Any("error", err))
			renderError(w, "We couldn't load that movie.", http.StatusInternalServerError)
			return
		}
		render(w, r, "movies_detail.html", page{Title: movie.Title, Site: siteMovies, Data: movieDetailData{Movie: movie}})
	}
}

func HandleToggleFavorite(svc *movies.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)
		if userID == 0 {
			validation.WriteJSON(w, map[string]bool{"not_logged_in": true, "error": true}, http.StatusUnauthorized)
			return
		}
		id, ok := idParam(r)
		if !ok {
			writeJSONError(w, "Movie not found", http.StatusNotFound)
			return
		}

		favorite, err := svc.ToggleFavorite(r.Context(), userID, id)
		if err != nil {
			if errors.Is(err, movies.ErrMovieNotFound) {
				writeJSONError(w, "Movie not found", http.StatusNotFound)
				return
			}
			slog.Error("Failed to toggle favorite", slog.Uint64("id", uint64(id)), slog.Any("error", err))
			writeJSONError(w, "Failed to update favorites", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, map[string]bool{"is_favorite": favorite}, http.StatusOK)
	}
}

type movieListData struct {
	Heading string
	Query   string
	// LoadMore is the endpoint that serves further cards, if any.
	LoadMore string
	Page     pagination.Page[movies.Card]
	Cards    []movies.Card
}

func HandleFavorites(svc *movies.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Favorites(r.Context(), currentUserID(r), pagination.Number(r.URL.Query().Get("page")))
		if err != nil {
			slog.Error("Failed to list favorites", slog.Any("error", err))
			renderError(w, "We couldn't load your favorites.", http.StatusInternalServerError)
			return
		}
		data := movieListData{Heading: "Favorites", Page: p, Cards: p.Items}
		render(w, r, "movies_list.html", page{Title: "Favorites", Site: siteMovies, Data: data})
	}
}

func HandleAllMovies(svc *movies.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.All(r.Context(), currentUserID(r), pagination.Number(r.URL.Query().Get("page")))
		if err != nil {
			slog.Error("Failed to list movies", slog.Any("error", err))
			renderError(w, "We couldn't load the movies.", http.StatusInternalServerError)
			return
		}
		data := movieListData{Heading: "All movies", LoadMore: "/movies/load_more_all_movies/", Page: p, Cards: p.Items}
		render(w, r, "movies_list.html", page{Title: "All movies", Site: siteMovies, Data: data})
	}
}

func HandleMovieSearch(svc *movies.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		cards, err := svc.Search(r.Context(), currentUserID(r), q)
		if err != nil {
			if errors.Is(err, movies.ErrMissingQuery) {
				http.Redirect(w, r, moviesHome, http.StatusFound)
				return
			}
			slog.Error("Failed to search movies", slog.String("q", q), slog.Any("error", err))
			renderError(w, "We couldn't search the movies.", http.StatusInternalServerError)
			return
		}
		data := movieListData{Heading: "Results for " + q, Query: q, LoadMore: "/movies/load-more-search-results/", Cards: cards}
		render(w, r, "movies_list.html", page{Title: "Search", Site: siteMovies, Data: data})
	}
}

type moreFunc func(r *http.Request, userID uint, start int) ([]movies.Card, error)

// handleLoadMore answers the "load more" buttons with rendered cards.
func handleLoadMore(more moreFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := strconv.Atoi(r.PostFormValue("start_from"))
		if err != nil || start < 0 {
			start = 0
		}
		cards, err := more(r, currentUserID(r), start)
		if err != nil {
			if errors.Is(err, movies.ErrMissingQuery) {
				validation.WriteJSON(w, map[string]string{"error": "Missing search query"}, http.StatusOK)
				return
			}
			slog.Error("Failed to load more movies", slog.Any("error", err))
			writeJSONError(w, "Failed to load movies", http.StatusInternalServerError)
			return
		}
		html, err := renderFragment(cardsFile, cardsBlock, cards)
		if err != nil {
			slog.Error("Failed to render movie cards", slog.Any("error", err))
			writeJSONError(w, "Failed to load movies", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, map[string]string{"html": html}, http.StatusOK)
	}
}

func HandleLoadMorePopular(svc *movies.Service) http.HandlerFunc {
	return handleLoadMore(func(r *http.Request, userID uint, start int) ([]movies.Card, error) {
		return svc.MorePopular(r.Context(), userID, start)
	})
}

func HandleLoadMoreAll(svc *movies.Service) http.HandlerFunc {
	return handleLoadMore(func(r *http.Request, userID uint, start int) ([]movies.Card, error) {
		return svc.MoreAll(r.Context(), userID, start)
	})
}

func HandleLoadMoreSearch(svc *movies.Service) http.HandlerFunc {
	return handleLoadMore(func(r *http.Request, userID uint, start int) ([]movies.Card, error) {
		return svc.MoreSearch(r.Context(), userID, r.PostFormValue("q"), start)
	})
}
