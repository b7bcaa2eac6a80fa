package cli

import (
	"context"

	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/usecase/review"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func teachCommand() *cli.Command {
	var (
		cfg      config
		vendor   string
		memType  string
		key      string
		rawValue string
		failed   bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "vendor",
			Aliases:     []string{"v"},
			Usage:       "Vendor the rule applies to",
			Required:    true,
			Destination: &vendor,
		},
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Memory type (vendor-preference, correction-pattern, field-mapping, resolution-history)",
			Value:       string(model.MemoryTypeCorrectionPattern),
			Destination: &memType,
		},
		&cli.StringFlag{
			Name:        "key",
			Aliases:     []string{"k"},
			Usage:       "Rule key, e.g. 'Leistungsdatum'",
			Required:    true,
			Destination: &key,
		},
		&cli.StringFlag{
			Name:        "value",
			Usage:       "Rule value; numbers and booleans are detected automatically",
			Required:    true,
			Destination: &rawValue,
		},
		&cli.BoolFlag{
			Name:        "failed",
			Usage:       "Record the rule as a failed application instead of a successful one",
			Destination: &failed,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "teach",
		Usage: "Record a vendor rule in memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			uc := review.New(store, review.WithOutput(c.Root().Writer))
			if _, err := uc.Teach(ctx, vendor, model.MemoryType(memType), key, model.ParseMemoryValue(rawValue), !failed); err != nil {
				return goerr.Wrap(err, "failed to teach rule")
			}
			return nil
		},
	}
}
