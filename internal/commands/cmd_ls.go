package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/persistence"
)

type LsCmd struct {
	flags  *Flags
	limit  int
	cursor string
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags) *LsCmd {
	return &LsCmd{flags: flags}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "ls",
		Usage:       "List stored activities",
		UsageText:   "stravasync ls [--limit N] [--cursor TOKEN]",
		Description: "Displays stored activities newest first. Pass the printed cursor to see the next page.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of activities to show",
				Value:       20,
				Destination: &cmd.limit,
			},
			&cli.StringFlag{
				Name:        "cursor",
				Usage:       "continue after a previous page",
				Destination: &cmd.cursor,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	cursor, err := persistence.DecodeCursor(cmd.cursor)
	if err != nil {
		return err
	}

	backend, err := OpenBackend(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer backend.Close()

	activities, next, err := domain.NewService(backend.Reader).ListActivities(ctx, cursor, cmd.limit)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}

	out := c.Root().Writer
	if len(activities) == 0 {
		_, _ = fmt.Fprintln(out, "No activities found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tTYPE\tDISTANCE\tMOVING\tNAME")
	for _, a := range activities {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.2f km\t%s\t%s\n",
			a.ExternalID, a.StartedAt.Format("2006-01-02 15:04"), a.ActivityType,
			a.DistanceMeters/1000, formatSeconds(a.MovingTimeSeconds), a.Name)
	}
	_ = w.Flush()

	if next != nil {
		_, _ = fmt.Fprintf(out, "\nnext cursor: %s\n", persistence.EncodeCursor(next))
	}
	return nil
}

func formatSeconds(total int) string {
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
}
