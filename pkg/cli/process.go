package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowbit/invoice-agent/pkg/dataset"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func processCommand() *cli.Command {
	var (
		cfg   config
		bqCfg bqConfig
	)

	flags := globalFlags(&cfg)
	flags = append(flags, bigQueryFlags(&bqCfg)...)

	return &cli.Command{
		Name:      "process",
		Usage:     "Process one invoice from the dataset and print the decision",
		ArgsUsage: "<invoice-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			id := model.InvoiceID(c.Args().First())
			if id == "" {
				return goerr.New("invoice ID is required")
			}

			src, err := cfg.newSource(ctx)
			if err != nil {
				return err
			}

			invoices, err := dataset.LoadInvoices(ctx, src)
			if err != nil {
				return goerr.Wrap(err, "failed to load invoices")
			}

			var target *model.Invoice
			history := make([]*model.Invoice, 0, len(invoices))
			for _, inv := range invoices {
				if inv.ID == id {
					target = inv
					continue
				}
				history = append(history, inv)
			}
			if target == nil {
				return goerr.Wrap(model.ErrInvoiceNotFound, "unknown invoice", goerr.Value("invoiceId", id))
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			eng, err := cfg.newEngine(ctx, store, src)
			if err != nil {
				return err
			}

			result, err := eng.Process(ctx, target, history)
			if err != nil {
				return goerr.Wrap(err, "failed to process invoice", goerr.Value("invoiceId", id))
			}

			exporter, err := bqCfg.newExporter(ctx)
			if err != nil {
				return err
			}
			if exporter != nil {
				defer exporter.Close()
				if err := exporter.InsertResult(ctx, result, target.Vendor); err != nil {
					return goerr.Wrap(err, "failed to export result")
				}
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to encode result")
			}
			fmt.Fprintf(c.Root().Writer, "%s\n", out)
			return nil
		},
	}
}
