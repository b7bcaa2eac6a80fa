package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	var (
		cfg    config
		vendor string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "vendor",
			Aliases:     []string{"v"},
			Usage:       "Only show entries for this vendor",
			Destination: &vendor,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "memory",
		Usage: "List learned memory entries",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			entries, err := store.List(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			count := 0
			for _, entry := range entries {
				if vendor != "" && entry.VendorName != vendor {
					continue
				}
				count++
				fmt.Fprintf(w, "%s  %-20s %-20s %s = %s (confidence %.2f, used %d, %d/%d ok)\n",
					entry.ID, entry.VendorName, entry.MemoryType, entry.Key, entry.Value.String(),
					entry.Confidence, entry.UsageCount, entry.SuccessCount, entry.FailureCount)
			}

			fmt.Fprintf(w, "%d entries\n", count)
			return nil
		},
	}
}
