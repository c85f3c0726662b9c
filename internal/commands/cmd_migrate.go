package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type MigrateCmd struct {
	flags *Flags
}

// NewMigrateCmd creates a new migrate command
func NewMigrateCmd(flags *Flags) *MigrateCmd {
	return &MigrateCmd{flags: flags}
}

// Register adds the migrate command to the application
func (cmd *MigrateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "migrate",
		Usage:       "Create or upgrade the database schema",
		UsageText:   "stravasync migrate",
		Description: "Applies pending schema migrations. Safe to run repeatedly.",
		Action:      cmd.run,
	})

	return app
}

func (cmd *MigrateCmd) run(ctx context.Context, c *cli.Command) error {
	backend, err := OpenBackend(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer backend.Close()

	applied, err := backend.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", backend.Name, err)
	}

	out := c.Root().Writer
	if len(applied) == 0 {
		_, _ = fmt.Fprintf(out, "%s schema is up to date\n", backend.Name)
		return nil
	}
	for _, name := range applied {
		_, _ = fmt.Fprintf(out, "applied %s\n", name)
	}
	return nil
}
