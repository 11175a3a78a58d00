package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/medleyhq/medley/lib/breaker"
	"github.com/medleyhq/medley/lib/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ImageBase prefixes poster and backdrop paths.
const ImageBase = "https://image.tmdb.org/t/p/w500"

var ErrNotConfigured = errors.New("tmdb: api key is not configured")

// StatusError is returned for non-200 responses.
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: %s returned status %d", e.Path, e.Status)
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[[]byte]
}

type Options struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Movie is a movie as returned by the discover and search endpoints.
type Movie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalLanguage string  `json:"original_language"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Popularity       float64 `json:"popularity"`
	ReleaseDate      string  `json:"release_date"`
	Video            bool    `json:"video"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
}

// Released parses ReleaseDate. Missing or malformed dates yield nil.
func (m Movie) Released() *time.Time {
	if m.ReleaseDate == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", m.ReleaseDate)
	if err != nil {
		return nil
	}
	return &t
}

type MovieList struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

func NewClient(apiKey string, opts Options, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.themoviedb.org/3"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 20
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		cb:         breaker.New[[]byte]("tmdb", logger),
	}
}

// Discover lists movies by descending popularity.
func (c *Client) Discover(ctx context.Context, page int) (*MovieList, error) {
	params := url.Values{}
	params.Set("sort_by", "popularity.desc")
	params.Set("page", fmt.Sprint(page))

	var result MovieList
	if err := c.get(ctx, "/discover/movie", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SearchMovie(ctx context.Context, query string) (*MovieList, error) {
	params := url.Values{}
	params.Set("query", query)

	var result MovieList
	if err := c.get(ctx, "/search/movie", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("tmdb: rate limiter: %w", err)
	}

	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to make request: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				c.logger.Error("failed to close response body", slog.Any("error", err))
			}
		}()

		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Status: resp.StatusCode, Path: path}
		}
		return io.ReadAll(resp.Body)
	})
	metrics.ObserveExternal("tmdb", start, err)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ImageURL returns the w500 image URL for a poster or backdrop path.
func ImageURL(path string) string {
	if path == "" {
		return ""
	}
	return ImageBase + path
}
