package dataset

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/flowbit/invoice-agent/pkg/adapter"
	"github.com/flowbit/invoice-agent/pkg/catalog"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Canonical object names within a dataset directory or bucket.
const (
	InvoicesFile       = "invoices.json"
	PurchaseOrdersFile = "purchase_order.json"
	DeliveryNotesFile  = "delivery_notes.json"
)

// Source opens named dataset objects. Missing objects must return an error
// satisfying os.IsNotExist semantics via errors.Is(err, os.ErrNotExist).
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Dir reads dataset files from a local directory.
type Dir struct {
	path string
}

func NewDir(path string) *Dir {
	return &Dir{path: path}
}

func (d *Dir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.path, name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Bucket reads dataset objects through the Cloud Storage adapter.
type Bucket struct {
	storage adapter.Storage
}

func NewBucket(storage adapter.Storage) *Bucket {
	return &Bucket{storage: storage}
}

func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return b.storage.Get(ctx, name)
}

// LoadInvoices reads the invoice dataset. Unlike reference data this is
// strict: a broken invoice file is a caller error, not something to paper
// over.
func LoadInvoices(ctx context.Context, src Source) ([]*model.Invoice, error) {
	var invoices []*model.Invoice
	if err := loadJSON(ctx, src, InvoicesFile, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// LoadCatalog reads purchase orders and delivery notes. Reference data is
// fail-open: missing or malformed files yield an empty catalog so the
// engine stages that depend on them simply do not fire.
func LoadCatalog(ctx context.Context, src Source) *catalog.Catalog {
	logger := logging.From(ctx)

	var pos []*model.PurchaseOrder
	if err := loadJSON(ctx, src, PurchaseOrdersFile, &pos); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("skipping purchase order data", "error", err)
		}
		pos = nil
	}

	var dns []*model.DeliveryNote
	if err := loadJSON(ctx, src, DeliveryNotesFile, &dns); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("skipping delivery note data", "error", err)
		}
		dns = nil
	}

	return catalog.New(pos, dns)
}

func loadJSON(ctx context.Context, src Source, name string, out any) error {
	r, err := src.Open(ctx, name)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return goerr.Wrap(err, "failed to open dataset object", goerr.Value("name", name))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return goerr.Wrap(err, "failed to read dataset object", goerr.Value("name", name))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return goerr.Wrap(err, "malformed dataset object", goerr.Value("name", name))
	}
	return nil
}
