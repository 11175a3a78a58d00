package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/medleyhq/medley/lib/db"
	"github.com/urfave/cli/v3"
)

// smokeCheck is one request made against the router in process.
type smokeCheck struct {
	path   string
	status int
}

var smokeChecks = []smokeCheck{
	{"/", http.StatusOK},
	{"/healthz", http.StatusOK},
	{"/stats", http.StatusOK},
	{"/ytqa/", http.StatusOK},
	{"/ytqa/video-list", http.StatusOK},
	{"/shop/", http.StatusOK},
	{"/shop/all-products/", http.StatusOK},
	{"/shop/search/?q=shirt", http.StatusOK},
	{"/shop/cart/", http.StatusFound},
	{"/shop/accounts/login/", http.StatusOK},
	{"/shop/request-refund/", http.StatusOK},
	{"/tasks/tasks/", http.StatusUnauthorized},
	{"/coach/", http.StatusOK},
	{"/coach/coaching-request/", http.StatusOK},
	{"/movies/", http.StatusOK},
	{"/movies/movies/", http.StatusOK},
	{"/movies/favorites/", http.StatusFound},
	{"/movies/movie/999999999/", http.StatusNotFound},
}

func smokeCommand() *cli.Command {
	return &cli.Command{
		Name:   "smoke",
		Usage:  "Request every page in process and report failures",
		Action: withApp(runSmoke),
	}
}

func runSmoke(ctx context.Context, _ *cli.Command, app *App) error {
	if err := db.RunMigrations(ctx, app.db, app.logger); err != nil {
		return err
	}
	router := app.Router()

	failed := 0
	for _, c := range smokeChecks {
		req := httptest.NewRequest(http.MethodGet, c.path, nil).WithContext(ctx)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		body := w.Body.String()
		attrs := []any{
			slog.String("path", c.path),
			slog.Int("status", w.Code),
			slog.Int("body_length", len(body)),
		}
		switch {
		case w.Code != c.status:
			failed++
			app.logger.Error("Unexpected status", append(attrs, slog.Int("want", c.status))...)
		case strings.Contains(body, "template:") || strings.Contains(body, "error executing template"):
			failed++
			app.logger.Error("Template error detected", append(attrs, slog.String("body_preview", body[:min(500, len(body))]))...)
		default:
			app.logger.Info("Page ok", attrs...)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(smokeChecks))
	}
	app.logger.Info("All pages responded", slog.Int("checks", len(smokeChecks)))
	return nil
}
