package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/flowbit/invoice-agent/pkg/dataset"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/usecase/review"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func reviewCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "review",
		Usage:     "Process the dataset and interactively resolve review-required invoices",
		ArgsUsage: "[invoice-id]",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)
			w := c.Root().Writer

			src, err := cfg.newSource(ctx)
			if err != nil {
				return err
			}

			invoices, err := dataset.LoadInvoices(ctx, src)
			if err != nil {
				return goerr.Wrap(err, "failed to load invoices")
			}

			only := model.InvoiceID(c.Args().First())
			if only != "" {
				found := false
				for _, inv := range invoices {
					if inv.ID == only {
						found = true
						break
					}
				}
				if !found {
					return goerr.Wrap(model.ErrInvoiceNotFound, "unknown invoice", goerr.Value("invoiceId", only))
				}
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			eng, err := cfg.newEngine(ctx, store, src)
			if err != nil {
				return err
			}

			rl, err := readline.New("approve/reject/skip> ")
			if err != nil {
				return goerr.Wrap(err, "failed to open terminal")
			}
			defer rl.Close()

			uc := review.New(store, review.WithOutput(w))

			for i, inv := range invoices {
				if only != "" && inv.ID != only {
					continue
				}
				history := append(append([]*model.Invoice{}, invoices[:i]...), invoices[i+1:]...)
				result, err := eng.Process(ctx, inv, history)
				if err != nil {
					return goerr.Wrap(err, "failed to process invoice", goerr.Value("invoiceId", inv.ID))
				}

				if !result.RequiresHumanReview {
					fmt.Fprintf(w, "%s (%s): auto-accepted at %.2f\n", inv.ID, inv.Vendor, result.ConfidenceScore)
					continue
				}

				fmt.Fprintf(w, "\n%s (%s) needs review (confidence %.2f)\n", inv.ID, inv.Vendor, result.ConfidenceScore)
				fmt.Fprintf(w, "  %s\n", result.Reasoning)
				for _, correction := range result.ProposedCorrections {
					fmt.Fprintf(w, "  - %s\n", correction)
				}

				verdict, err := readVerdict(rl)
				if err != nil {
					return err
				}
				if verdict == verdictSkip {
					continue
				}

				if err := uc.Resolve(ctx, inv.Vendor, result.AppliedMemoryIDs, verdict == verdictApprove); err != nil {
					return goerr.Wrap(err, "failed to record resolution", goerr.Value("invoiceId", inv.ID))
				}
			}

			return nil
		},
	}
}

type verdict int

const (
	verdictApprove verdict = iota
	verdictReject
	verdictSkip
)

func readVerdict(rl *readline.Instance) (verdict, error) {
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return verdictSkip, nil
		}
		if err != nil {
			return verdictSkip, goerr.Wrap(err, "failed to read input")
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "approve", "a", "y":
			return verdictApprove, nil
		case "reject", "r", "n":
			return verdictReject, nil
		case "skip", "s", "":
			return verdictSkip, nil
		}
	}
}
