package cli

import (
	"context"
	"os"

	"github.com/flowbit/invoice-agent/pkg/adapter"
	"github.com/flowbit/invoice-agent/pkg/dataset"
	"github.com/flowbit/invoice-agent/pkg/engine"
	"github.com/flowbit/invoice-agent/pkg/memory"
	"github.com/flowbit/invoice-agent/pkg/repository"
	"github.com/flowbit/invoice-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel string

	// Dataset
	dataDir string
	bucket  string

	// Memory repository
	memoryPath string
	project    string
	database   string

	// Engine
	configPath string
}

// bqConfig holds the optional analytics export settings
type bqConfig struct {
	project string
	dataset string
	table   string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("INVOICE_AGENT_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "Directory holding invoices.json, purchase_order.json and delivery_notes.json",
			Value:       "data",
			Sources:     cli.EnvVars("INVOICE_AGENT_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket holding the dataset (overrides data-dir)",
			Sources:     cli.EnvVars("INVOICE_AGENT_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "memory",
			Aliases:     []string{"m"},
			Usage:       "Path to the JSON memory file",
			Value:       "memory.json",
			Sources:     cli.EnvVars("INVOICE_AGENT_MEMORY"),
			Destination: &cfg.memoryPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID (enables Firestore memory)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to engine configuration YAML",
			Sources:     cli.EnvVars("INVOICE_AGENT_CONFIG"),
			Destination: &cfg.configPath,
		},
	}
}

// bigQueryFlags returns flags for the optional result export
func bigQueryFlags(cfg *bqConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bq-project",
			Usage:       "Google Cloud project ID for BigQuery export",
			Sources:     cli.EnvVars("INVOICE_AGENT_BQ_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "bq-dataset",
			Usage:       "BigQuery dataset for result export",
			Sources:     cli.EnvVars("INVOICE_AGENT_BQ_DATASET"),
			Destination: &cfg.dataset,
		},
		&cli.StringFlag{
			Name:        "bq-table",
			Usage:       "BigQuery table for result export",
			Value:       "processing_results",
			Sources:     cli.EnvVars("INVOICE_AGENT_BQ_TABLE"),
			Destination: &cfg.table,
		},
	}
}

// setupLogging installs the process logger and returns a context carrying it
func (cfg *config) setupLogging(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newSource creates a dataset source: a bucket when configured, otherwise
// the local data directory.
func (cfg *config) newSource(ctx context.Context) (dataset.Source, error) {
	if cfg.bucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage", goerr.Value("bucket", cfg.bucket))
		}
		return dataset.NewBucket(storage), nil
	}

	if cfg.dataDir == "" {
		return nil, goerr.New("data-dir is required")
	}
	return dataset.NewDir(cfg.dataDir), nil
}

// newRepository creates the memory persistence backend: Firestore when a
// project is configured, otherwise the local JSON file.
func (cfg *config) newRepository(ctx context.Context) (repository.Store, error) {
	if cfg.project != "" {
		if cfg.database == "" {
			return nil, goerr.New("database is required")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore repository")
		}
		return repo, nil
	}

	if cfg.memoryPath == "" {
		return nil, goerr.New("memory path is required")
	}
	return repository.NewFile(cfg.memoryPath), nil
}

// newStore creates the memory store over the configured repository
func (cfg *config) newStore(ctx context.Context) (*memory.Store, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	store, err := memory.New(ctx, repo)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load memory store")
	}
	return store, nil
}

// newEngine creates the decision engine over the given store, loading the
// reference catalog from the dataset source.
func (cfg *config) newEngine(ctx context.Context, store *memory.Store, src dataset.Source) (*engine.Engine, error) {
	engCfg := engine.DefaultConfig()
	if cfg.configPath != "" {
		loaded, err := engine.LoadConfig(cfg.configPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load engine config", goerr.Value("path", cfg.configPath))
		}
		engCfg = loaded
	}

	cat := dataset.LoadCatalog(ctx, src)
	return engine.New(store, cat, engCfg), nil
}

// newExporter creates the BigQuery sink when configured, otherwise nil
func (cfg *bqConfig) newExporter(ctx context.Context) (adapter.BigQuery, error) {
	if cfg.project == "" || cfg.dataset == "" {
		return nil, nil
	}

	exporter, err := adapter.NewBigQuery(ctx, cfg.project, cfg.dataset, cfg.table)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create bigquery exporter")
	}
	return exporter, nil
}
