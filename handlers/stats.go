package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/medleyhq/medley/lib/types"
)

// StatsFunc collects the site-wide counts shown on /stats.
type StatsFunc func(ctx context.Context) (*types.StatsData, error)

func HandleStats(collect StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := collect(r.Context())
		if err != nil {
			slog.Error("Failed to collect stats", slog.Any("error", err))
			renderError(w, "Failed to load stats", http.StatusInternalServerError)
			return
		}
		render(w, r, "stats.html", page{Title: "Stats", Data: stats})
	}
}
