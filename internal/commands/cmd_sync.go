package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/strava"
	"example.com/stravahub/internal/syncer"
)

type SyncCmd struct {
	flags    *Flags
	mode     string
	maxPages int
	pageSize int
}

// NewSyncCmd creates a new sync command
func NewSyncCmd(flags *Flags) *SyncCmd {
	return &SyncCmd{flags: flags}
}

// Register adds the sync command to the application
func (cmd *SyncCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "sync",
		Usage:     "Import activities from Strava",
		UsageText: "stravasync sync [--mode recent|full]",
		Description: `Refreshes the Strava access token and merges the athlete's activities into the store.

In recent mode the run stops at the first activity that is already stored.
In full mode every page is walked and stored activities are left untouched.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "mode",
				Aliases:     []string{"m"},
				Usage:       "sync mode (recent, full)",
				Value:       string(syncer.ModeRecent),
				Destination: &cmd.mode,
			},
			&cli.IntFlag{
				Name:        "max-pages",
				Usage:       "page ceiling for this run (defaults to SYNC_MAX_PAGES)",
				Destination: &cmd.maxPages,
			},
			&cli.IntFlag{
				Name:        "page-size",
				Usage:       "activities per page (defaults to SYNC_PAGE_SIZE)",
				Destination: &cmd.pageSize,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SyncCmd) run(ctx context.Context, c *cli.Command) error {
	mode, err := syncer.ParseMode(cmd.mode)
	if err != nil {
		return err
	}

	backend, err := OpenBackend(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer backend.Close()

	engine := cmd.engine(backend)
	res, err := engine.Run(ctx, backend.Sessions(), mode)
	printResult(c, res)
	if err != nil {
		return describeSyncError(err)
	}
	return nil
}

func (cmd *SyncCmd) engine(backend *Backend) *syncer.Engine {
	cfg := cmd.flags.Config
	logger := log.With().Str("component", "syncer").Str("store", backend.Name).Logger()

	client := strava.NewClient(
		strava.WithAuthURL(cfg.Strava.AuthURL),
		strava.WithBaseURL(cfg.Strava.APIURL),
		strava.WithHTTPClient(&http.Client{Timeout: cfg.Strava.HTTPTimeout}),
		strava.WithLogger(logger),
	)

	maxPages, pageSize := cfg.Sync.MaxPages, cfg.Sync.PageSize
	if cmd.maxPages > 0 {
		maxPages = cmd.maxPages
	}
	if cmd.pageSize > 0 {
		pageSize = cmd.pageSize
	}

	return syncer.NewEngine(client,
		syncer.WithMaxPages(maxPages),
		syncer.WithPageSize(pageSize),
		syncer.WithRunRecorder(backend.Runs),
		syncer.WithLogger(logger),
	)
}

func printResult(c *cli.Command, res syncer.Result) {
	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "mode=%s added=%d skipped=%d rejected=%d pages=%d stopped_page=%d reason=%s duration=%s\n",
		res.Mode, res.Added, res.Skipped, res.Rejected, res.PagesFetched, res.StoppedPage, res.StopReason, res.Duration().Round(time.Millisecond))
	for _, rej := range res.Rejections {
		_, _ = fmt.Fprintf(out, "  rejected: %v\n", rej)
	}
}

// describeSyncError attaches the raw Strava response to auth and API failures.
func describeSyncError(err error) error {
	var (
		authErr *domain.AuthError
		apiErr  *domain.APIError
	)
	switch {
	case errors.As(err, &authErr) && len(authErr.Payload) > 0:
		return fmt.Errorf("%w\nstrava response: %s", err, authErr.Payload)
	case errors.As(err, &apiErr) && len(apiErr.Payload) > 0:
		return fmt.Errorf("%w\nstrava response: %s", err, apiErr.Payload)
	default:
		return err
	}
}
