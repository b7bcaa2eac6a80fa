package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/flowbit/invoice-agent/pkg/dataset"
	"github.com/flowbit/invoice-agent/pkg/engine"
	"github.com/flowbit/invoice-agent/pkg/memory"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// demoCommand runs a scripted walkthrough of the learning loop against the
// bundled dataset. Memory lives in-process only so repeated runs always
// start from a fresh install.
func demoCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "demo",
		Usage: "Run a scripted demo of the learning loop",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			src, err := cfg.newSource(ctx)
			if err != nil {
				return err
			}

			invoices, err := dataset.LoadInvoices(ctx, src)
			if err != nil {
				return goerr.Wrap(err, "failed to load invoices")
			}
			if len(invoices) < 5 {
				return goerr.New("demo needs at least 5 invoices in the dataset",
					goerr.Value("count", len(invoices)))
			}

			store, err := memory.New(ctx, repository.NewMemory())
			if err != nil {
				return err
			}

			cat := dataset.LoadCatalog(ctx, src)
			eng := engine.New(store, cat, engine.DefaultConfig())

			d := &demo{cmd: c, eng: eng, store: store, invoices: invoices}
			return d.run(ctx)
		},
	}
}

type demo struct {
	cmd      *cli.Command
	eng      *engine.Engine
	store    *memory.Store
	invoices []*model.Invoice
}

func (d *demo) run(ctx context.Context) error {
	d.section("STARTING DEMO: INVOICE AGENT")
	d.printf("Fresh in-process memory, simulating a first install.\n")

	d.section("SCENARIO 1: Vendor 'Supplier GmbH'")
	d.printf(">>> Processing %s (first time seeing this vendor)...\n", d.invoices[0].ID)
	result, err := d.process(ctx, 0)
	if err != nil {
		return err
	}
	d.printResult(result)

	if result.RequiresHumanReview {
		d.printf("\n[HUMAN INTERVENTION] 'Leistungsdatum' means Service Date.\n")
		d.pause(">>> Teaching memory")
		if _, err := d.store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true); err != nil {
			return err
		}
	}

	d.printf("\n>>> Processing %s (same vendor, later date)...\n", d.invoices[1].ID)
	result, err = d.process(ctx, 1)
	if err != nil {
		return err
	}
	d.printResult(result)
	d.printf("Service date extracted automatically: %s\n", result.NormalizedInvoice.Fields.ServiceDate)

	d.section("SCENARIO 2: Vendor 'Parts AG'")
	d.printf(">>> Processing %s (VAT-inclusive issue)...\n", d.invoices[2].ID)
	result, err = d.process(ctx, 2)
	if err != nil {
		return err
	}
	d.printResult(result)

	d.printf("\n[HUMAN INTERVENTION] 'MwSt. inkl' means tax must be back-calculated.\n")
	d.pause(">>> Teaching memory")
	if _, err := d.store.Learn(ctx, "Parts AG", model.MemoryTypeCorrectionPattern,
		"vat-inclusive", model.BoolValue(true), true); err != nil {
		return err
	}

	d.printf("\n>>> Processing %s...\n", d.invoices[3].ID)
	result, err = d.process(ctx, 3)
	if err != nil {
		return err
	}
	d.printResult(result)
	d.printf("Normalized net total: %.2f (derived from gross)\n", result.NormalizedInvoice.Fields.NetTotal)

	d.section("SCENARIO 3: Vendor 'Freight & Co'")
	d.pause(">>> Pre-loading memory: 'Seefracht' = SKU-FREIGHT")
	if _, err := d.store.Learn(ctx, "Freight & Co", model.MemoryTypeFieldMapping,
		"Seefracht", model.StringValue("SKU-FREIGHT"), true); err != nil {
		return err
	}

	d.printf(">>> Processing %s...\n", d.invoices[4].ID)
	result, err = d.process(ctx, 4)
	if err != nil {
		return err
	}
	if items := result.NormalizedInvoice.Fields.LineItems; len(items) > 0 {
		d.printf("Line item description: %q\n", items[0].Description)
	}

	d.section("DEMO COMPLETE")
	return nil
}

func (d *demo) process(ctx context.Context, i int) (*model.ProcessingResult, error) {
	history := append(append([]*model.Invoice{}, d.invoices[:i]...), d.invoices[i+1:]...)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(d.cmd.Root().ErrWriter))
	s.Suffix = " processing " + string(d.invoices[i].ID) + "..."
	s.Start()
	time.Sleep(800 * time.Millisecond)

	result, err := d.eng.Process(ctx, d.invoices[i], history)
	s.Stop()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to process invoice", goerr.Value("invoiceId", d.invoices[i].ID))
	}
	return result, nil
}

func (d *demo) printResult(result *model.ProcessingResult) {
	d.printf("Requires review? %v\n", result.RequiresHumanReview)
	d.printf("Reasoning: %s\n", result.Reasoning)
	d.printf("Confidence: %.2f\n", result.ConfidenceScore)
	for _, correction := range result.ProposedCorrections {
		d.printf("  - %s\n", correction)
	}
}

func (d *demo) section(title string) {
	d.printf("\n%s\n %s\n%s\n", strings.Repeat("=", 50), title, strings.Repeat("=", 50))
}

func (d *demo) pause(label string) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(d.cmd.Root().ErrWriter))
	s.Suffix = " " + label + "..."
	s.Start()
	time.Sleep(time.Second)
	s.Stop()
	d.printf("%s... done\n", label)
}

func (d *demo) printf(format string, args ...any) {
	fmt.Fprintf(d.cmd.Root().Writer, format, args...)
}
