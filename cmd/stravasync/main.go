package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"example.com/stravahub/internal/commands"
	"example.com/stravahub/internal/config"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	if err := setupLogger("info"); err != nil {
		panic(err)
	}

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "stravasync",
		Usage:     "Mirror Strava activities into a local database",
		UsageText: "stravasync [global options] command [command options]",
		Description: `stravasync imports the authenticated athlete's Strava activities into SQLite
(default) or Postgres and lists what has been stored.

Strava secrets are read from STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET and
STRAVA_REFRESH_TOKEN, optionally loaded from a .env file.`,
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("STRAVASYNC_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "dotenv file with Strava secrets",
				Value:       ".env",
				Destination: &flags.EnvFile,
			},
			&cli.StringFlag{
				Name:        "sqlite",
				Usage:       "path to the SQLite database",
				Sources:     cli.EnvVars("STRAVASYNC_SQLITE"),
				Value:       commands.DefaultSQLitePath(),
				Destination: &flags.SQLitePath,
			},
			&cli.StringFlag{
				Name:        "postgres-url",
				Usage:       "use Postgres instead of SQLite",
				Sources:     cli.EnvVars("STRAVASYNC_POSTGRES_URL"),
				Destination: &flags.PostgresURL,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := setupLogger(flags.LogLevel); err != nil {
				return ctx, err
			}

			if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return ctx, fmt.Errorf("load %s: %w", flags.EnvFile, err)
			}

			flags.Config = config.Load()
			return ctx, nil
		},
	}

	app = commands.NewSyncCmd(flags).Register(app)
	app = commands.NewLsCmd(flags).Register(app)
	app = commands.NewRunsCmd(flags).Register(app)
	app = commands.NewMigrateCmd(flags).Register(app)
	app = commands.NewTokenCmd(flags).Register(app)

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("stravasync failed")
		os.Exit(1)
	}
}

func setupLogger(level string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(parsedLevel)
	return nil
}
