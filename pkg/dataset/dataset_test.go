package dataset_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowbit/invoice-agent/pkg/dataset"
	"github.com/m-mizutani/gt"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadInvoices(t *testing.T) {
	ctx := context.Background()

	t.Run("loads a well-formed file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, dataset.InvoicesFile, `[
			{
				"invoiceId": "INV-1",
				"vendor": "Supplier GmbH",
				"fields": {
					"invoiceNumber": "2024-0101",
					"invoiceDate": "10.03.2024",
					"netTotal": 500,
					"taxRate": 0.19,
					"taxTotal": 95,
					"grossTotal": 595,
					"lineItems": [
						{"sku": "SKU-1", "description": "Widget", "qty": 10, "unitPrice": 50}
					]
				},
				"confidence": 0.85,
				"rawText": "Rechnung 2024-0101"
			}
		]`)

		invoices, err := dataset.LoadInvoices(ctx, dataset.NewDir(dir))
		gt.NoError(t, err)
		gt.A(t, invoices).Length(1)
		gt.V(t, string(invoices[0].ID)).Equal("INV-1")
		gt.V(t, invoices[0].Fields.GrossTotal).Equal(595.0)
		gt.A(t, invoices[0].Fields.LineItems).Length(1)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := dataset.LoadInvoices(ctx, dataset.NewDir(t.TempDir()))
		gt.Error(t, err)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, dataset.InvoicesFile, "{broken")

		_, err := dataset.LoadInvoices(ctx, dataset.NewDir(dir))
		gt.Error(t, err)
	})
}

func TestLoadCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("loads reference documents", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, dataset.PurchaseOrdersFile,
			`[{"poNumber": "PO-1", "vendor": "Supplier GmbH", "lineItems": [{"sku": "SKU-1", "qty": 10, "unitPrice": 50}]}]`)
		writeFile(t, dir, dataset.DeliveryNotesFile,
			`[{"dnNumber": "DN-1", "poNumber": "PO-1", "vendor": "Supplier GmbH", "lineItems": [{"sku": "SKU-1", "qtyDelivered": 10}]}]`)

		cat := dataset.LoadCatalog(ctx, dataset.NewDir(dir))
		gt.V(t, cat.FindPO("PO-1")).NotNil()
		gt.V(t, cat.FindDN("PO-1", "Supplier GmbH")).NotNil()
	})

	t.Run("missing reference files yield an empty catalog", func(t *testing.T) {
		cat := dataset.LoadCatalog(ctx, dataset.NewDir(t.TempDir()))
		gt.V(t, cat).NotNil()
		gt.V(t, cat.FindPO("PO-1")).Nil()
	})

	t.Run("malformed reference files are skipped", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, dataset.PurchaseOrdersFile, "{broken")
		writeFile(t, dir, dataset.DeliveryNotesFile,
			`[{"dnNumber": "DN-1", "poNumber": "PO-1", "vendor": "Supplier GmbH", "lineItems": []}]`)

		cat := dataset.LoadCatalog(ctx, dataset.NewDir(dir))
		gt.V(t, cat.FindPO("PO-1")).Nil()
		gt.V(t, cat.FindDN("PO-1", "Supplier GmbH")).NotNil()
	})
}
