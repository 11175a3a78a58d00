package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/medleyhq/medley/lib/assistant"
	"github.com/medleyhq/medley/lib/coaching"
	"github.com/medleyhq/medley/lib/db"
	"github.com/medleyhq/medley/lib/movies"
	"github.com/urfave/cli/v3"
)

// withApp runs fn against an App without model clients.
func withApp(fn func(ctx context.Context, cmd *cli.Command, app *App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		app, err := NewApp(ctx, cmd.String("config"), false)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(ctx, cmd, app)
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema",
		Action: withApp(func(ctx context.Context, _ *cli.Command, app *App) error {
			if err := db.RunMigrations(ctx, app.db, app.logger); err != nil {
				return err
			}
			app.logger.Info("Migrations complete")
			return nil
		}),
	}
}

func moviesCommand() *cli.Command {
	return &cli.Command{
		Name:  "movies",
		Usage: "Manage the movie catalogue",
		Commands: []*cli.Command{
			{
				Name:  "refresh",
				Usage: "Pull the popular movies from TMDB",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Give up after this long",
						Value: 5 * time.Minute,
					},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *App) error {
					ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
					defer cancel()

					n, err := app.movies.Refresh(ctx)
					if errors.Is(err, movies.ErrRefreshRunning) {
						app.logger.Warn("Another refresh is running, skipping")
						return nil
					}
					if err != nil {
						return err
					}
					app.logger.Info("Catalogue refreshed", slog.Int("movies", n))
					return nil
				}),
			},
		},
	}
}

func promptCommand() *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Work with chatbot persona files",
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Convert input:/output: lines into a JSON chat history",
				ArgsUsage: "<in> [out]",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "in"},
					&cli.StringArg{Name: "out"},
				},
				Action: convertPrompt,
			},
		},
	}
}

func convertPrompt(_ context.Context, cmd *cli.Command) error {
	in := cmd.StringArg("in")
	if in == "" {
		return fmt.Errorf("input file is required")
	}
	// #nosec G304 - path comes from the operator
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}

	turns := assistant.ReadExchange(data)
	if len(turns) == 0 {
		return fmt.Errorf("no input:/output: lines found in %s", in)
	}
	out, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}

	path := cmd.StringArg("out")
	if path == "" {
		_, err = fmt.Fprintln(os.Stdout, string(out))
		return err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	slog.Info("Wrote chat history", slog.String("path", path), slog.Int("turns", len(turns)))
	return nil
}

func shopCommand() *cli.Command {
	return &cli.Command{
		Name:  "shop",
		Usage: "Shop administration",
		Commands: []*cli.Command{
			{
				Name:      "grant-refund",
				Usage:     "Mark orders as refunded",
				ArgsUsage: "<order id>...",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *App) error {
					ids, err := parseIDs(cmd.Args().Slice())
					if err != nil {
						return err
					}
					if len(ids) == 0 {
						return fmt.Errorf("at least one order id is required")
					}
					n, err := app.shop.GrantRefunds(ctx, ids)
					if err != nil {
						return err
					}
					app.logger.Info("Refunds granted", slog.Int64("orders", n))
					return nil
				}),
			},
		},
	}
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func coachingCommand() *cli.Command {
	return &cli.Command{
		Name:  "coaching",
		Usage: "Coaching administration",
		Commands: []*cli.Command{
			{
				Name:  "add-plan",
				Usage: "Create a pricing plan",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Plan name", Required: true},
					&cli.StringFlag{Name: "description", Usage: "Plan description"},
					&cli.StringFlag{Name: "price", Usage: "Price in dollars", Required: true},
					&cli.IntFlag{Name: "sessions", Usage: "Number of sessions", Value: 1},
					&cli.BoolFlag{Name: "featured", Usage: "Highlight the plan"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *App) error {
					price, err := strconv.ParseFloat(cmd.String("price"), 64)
					if err != nil {
						return fmt.Errorf("invalid price %q", cmd.String("price"))
					}
					plan, err := app.coaching.CreatePlan(ctx, coaching.PlanInput{
						Name:        cmd.String("name"),
						Description: cmd.String("description"),
						Price:       price,
						Sessions:    int(cmd.Int("sessions")),
						Featured:    cmd.Bool("featured"),
					})
					if err != nil {
						return err
					}
					app.logger.Info("Plan created", slog.Uint64("id", uint64(plan.ID)), slog.String("name", plan.Name))
					return nil
				}),
			},
		},
	}
}
