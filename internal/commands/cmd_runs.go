package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

type RunsCmd struct {
	flags *Flags
	limit int
}

// NewRunsCmd creates a new runs command
func NewRunsCmd(flags *Flags) *RunsCmd {
	return &RunsCmd{flags: flags}
}

// Register adds the runs command to the application
func (cmd *RunsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "runs",
		Usage:     "Show recent sync runs",
		UsageText: "stravasync runs [--limit N]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of runs to show",
				Value:       10,
				Destination: &cmd.limit,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RunsCmd) run(ctx context.Context, c *cli.Command) error {
	backend, err := OpenBackend(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer backend.Close()

	runs, err := backend.Runs.ListRuns(ctx, cmd.limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	out := c.Root().Writer
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No sync runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FINISHED\tMODE\tADDED\tSKIPPED\tREJECTED\tPAGES\tREASON\tERROR")
	for _, run := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			run.FinishedAt.Local().Format("2006-01-02 15:04:05"), run.Mode, run.Added, run.Skipped,
			run.Rejected, run.PagesFetched, run.StopReason, run.Error)
	}
	return w.Flush()
}
