package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowbit/invoice-agent/pkg/dataset"
	"github.com/flowbit/invoice-agent/pkg/server"
	"github.com/flowbit/invoice-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg   config
		bqCfg bqConfig
		addr  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Usage:       "Listen address",
			Value:       ":3000",
			Sources:     cli.EnvVars("INVOICE_AGENT_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, bigQueryFlags(&bqCfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)
			logger := logging.From(ctx)

			src, err := cfg.newSource(ctx)
			if err != nil {
				return err
			}

			invoices, err := dataset.LoadInvoices(ctx, src)
			if err != nil {
				return goerr.Wrap(err, "failed to load invoices")
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			eng, err := cfg.newEngine(ctx, store, src)
			if err != nil {
				return err
			}

			var opts []server.Option
			exporter, err := bqCfg.newExporter(ctx)
			if err != nil {
				return err
			}
			if exporter != nil {
				defer exporter.Close()
				opts = append(opts, server.WithExporter(exporter))
			}

			srv := &http.Server{
				Addr:    addr,
				Handler: server.New(invoices, store, eng, opts...).Router(),
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting HTTP server", "addr", addr, "invoices", len(invoices))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "server failed")
				}
			case <-ctx.Done():
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shut down server")
				}
			}

			return nil
		},
	}
}
