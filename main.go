package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/medleyhq/medley/handlers"
	"github.com/medleyhq/medley/lib/assistant"
	"github.com/medleyhq/medley/lib/auth"
	"github.com/medleyhq/medley/lib/coaching"
	"github.com/medleyhq/medley/lib/config"
	"github.com/medleyhq/medley/lib/db"
	"github.com/medleyhq/medley/lib/health"
	"github.com/medleyhq/medley/lib/lock"
	"github.com/medleyhq/medley/lib/logging"
	"github.com/medleyhq/medley/lib/metrics"
	"github.com/medleyhq/medley/lib/movies"
	"github.com/medleyhq/medley/lib/payments"
	"github.com/medleyhq/medley/lib/shop"
	"github.com/medleyhq/medley/lib/storage"
	"github.com/medleyhq/medley/lib/taskchat"
	"github.com/medleyhq/medley/lib/tmdb"
	"github.com/medleyhq/medley/lib/transcribe"
	"github.com/medleyhq/medley/lib/types"
	"github.com/medleyhq/medley/lib/videoqa"
	"github.com/medleyhq/medley/models"
	"github.com/urfave/cli/v3"
	"gorm.io/gorm"
)

// App holds the configured services shared by every command.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB

	users    *auth.Users
	jwt      *auth.JWTManager
	sessions *auth.Sessions

	chat    assistant.Chatter
	store   storage.Store
	persona []models.Turn

	videoQA  *videoqa.Service
	shop     *shop.Service
	tasks    *taskchat.Service
	coaching *coaching.Service
	movies   *movies.Service
}

// NewApp loads configuration, opens the database and builds the services.
// The model client and persona are only built when withAI is set.
func NewApp(ctx context.Context, configPath string, withAI bool) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})
	slog.SetDefault(logger)

	gormDB, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}

	jwt, err := auth.NewJWTManager(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to configure tokens: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Server.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", cfg.Server.TimeZone, err)
	}

	app := &App{
		cfg:      cfg,
		logger:   logger,
		db:       gormDB,
		users:    auth.NewUsers(gormDB),
		jwt:      jwt,
		sessions: auth.NewSessions(jwt, cfg.Auth.CookieName, cfg.Auth.SecureCookie),
	}

	if withAI {
		if app.chat, err = assistant.New(ctx, cfg.AI, logger); err != nil {
			return nil, fmt.Errorf("failed to create chat client: %w", err)
		}
		if app.persona, err = assistant.Persona(cfg.AI.PersonaPath); err != nil {
			return nil, fmt.Errorf("failed to load persona: %w", err)
		}
	}

	if cfg.Storage.Enabled {
		m, err := storage.NewMinio(cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create object store: %w", err)
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare bucket: %w", err)
		}
		app.store = m
	}

	var charger payments.Charger
	if cfg.Stripe.SecretKey != "" {
		charger = payments.NewStripe(cfg.Stripe.SecretKey, logger)
	}

	catalog := tmdb.NewClient(cfg.TMDB.APIKey, tmdb.Options{
		BaseURL:           cfg.TMDB.BaseURL,
		RequestsPerSecond: cfg.TMDB.RequestsPerSecond,
		Burst:             cfg.TMDB.Burst,
		Timeout:           cfg.TMDB.Timeout,
	}, logger)

	app.videoQA = videoqa.New(gormDB, app.chat, transcribe.NewYouTube(logger),
		transcribe.NewWhisper(cfg.AI.OpenAIKey, cfg.AI.WhisperModel), logger)
	app.shop = shop.New(gormDB, charger, logger)
	app.tasks = taskchat.New(gormDB, app.chat, app.store, assistant.TaskPrompt(cfg.AI.TaskPromptPath), logger)
	app.coaching = coaching.New(gormDB, loc, logger)
	app.movies = movies.New(gormDB, catalog, lock.NewFileLock(cfg.Movies.LockDir, logger), cfg.Movies.RefreshPages, logger)

	return app, nil
}

// Close releases the database and any model client that holds connections.
func (a *App) Close() {
	if c, ok := a.chat.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("Failed to close chat client", slog.Any("error", err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.logger.Warn("Failed to close database", slog.Any("error", err))
		}
	}
}

// Router builds the HTTP handler for every site.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(a.sessions.Load)

	pingers := map[string]health.Pinger{}
	if a.store != nil {
		pingers["storage"] = a.store
	}
	r.Get("/healthz", health.Check(a.db, pingers))
	r.Handle("/metrics", metrics.Handler())

	handlers.Mount(r, handlers.Deps{
		Users:                a.users,
		JWT:                  a.jwt,
		Sessions:             a.sessions,
		VideoQA:              a.videoQA,
		Shop:                 a.shop,
		Tasks:                a.tasks,
		Coaching:             a.coaching,
		Movies:               a.movies,
		Chat:                 a.chat,
		Persona:              a.persona,
		StripePublishableKey: a.cfg.Stripe.PublishableKey,
		AllowedOrigins:       a.cfg.Server.AllowedOrigins,
		AIRequestsPerMinute:  a.cfg.Server.AIRequestsPerMinute,
		Stats: func(ctx context.Context) (*types.StatsData, error) {
			return types.CollectStats(ctx, a.db)
		},
	})
	return r
}

func serve(ctx context.Context, cmd *cli.Command) error {
	app, err := NewApp(ctx, cmd.String("config"), true)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := db.RunMigrations(ctx, app.db, app.logger); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         app.cfg.Server.Addr(),
		Handler:      app.Router(),
		ReadTimeout:  app.cfg.Server.ReadTimeout,
		WriteTimeout: app.cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		app.logger.Info("Starting server", slog.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Sources: cli.EnvVars(config.ConfigPathEnvVar),
	}
}

func main() {
	app := &cli.Command{
		Name:  "medley",
		Usage: "Video Q&A, shop, task manager, coaching and movie sites",
		Flags: []cli.Flag{configFlag()},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run migrations and serve every site",
				Action: serve,
			},
			migrateCommand(),
			moviesCommand(),
			promptCommand(),
			shopCommand(),
			coachingCommand(),
			statsCommand(),
			smokeCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("Command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
