package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func resetCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "reset",
		Usage: "Wipe transient memory, keeping vendor preferences and resolution history",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			if err := store.Reset(ctx); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Transient memory wiped.\n")
			return nil
		},
	}
}
