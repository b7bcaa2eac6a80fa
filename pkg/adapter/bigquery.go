package adapter

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// BigQuery is an optional analytics sink: one row per processing result.
type BigQuery interface {
	InsertResult(ctx context.Context, result *model.ProcessingResult, vendor string) error
	Close() error
}

type bigQueryClient struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQuery creates a new BigQuery result sink
func NewBigQuery(ctx context.Context, projectID, dataset, table string) (BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create bigquery client", goerr.Value("project", projectID))
	}

	return &bigQueryClient{
		client:  client,
		dataset: dataset,
		table:   table,
	}, nil
}

// resultRow is the export schema for one engine decision.
type resultRow struct {
	InvoiceID           string    `bigquery:"invoice_id"`
	Vendor              string    `bigquery:"vendor"`
	RequiresHumanReview bool      `bigquery:"requires_human_review"`
	IsDuplicate         bool      `bigquery:"is_duplicate"`
	ConfidenceScore     float64   `bigquery:"confidence_score"`
	Reasoning           string    `bigquery:"reasoning"`
	Corrections         string    `bigquery:"corrections"`
	AuditSteps          int       `bigquery:"audit_steps"`
	ProcessedAt         time.Time `bigquery:"processed_at"`
}

func (b *bigQueryClient) InsertResult(ctx context.Context, result *model.ProcessingResult, vendor string) error {
	row := &resultRow{
		InvoiceID:           string(result.InvoiceID),
		Vendor:              vendor,
		RequiresHumanReview: result.RequiresHumanReview,
		IsDuplicate:         result.IsDuplicate,
		ConfidenceScore:     result.ConfidenceScore,
		Reasoning:           result.Reasoning,
		Corrections:         strings.Join(result.ProposedCorrections, "\n"),
		AuditSteps:          len(result.AuditTrail),
		ProcessedAt:         time.Now(),
	}

	inserter := b.client.Dataset(b.dataset).Table(b.table).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return goerr.Wrap(err, "failed to insert result row",
			goerr.Value("invoiceId", result.InvoiceID))
	}

	return nil
}

func (b *bigQueryClient) Close() error {
	return b.client.Close()
}
