package model

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvoiceNotFound = goerr.New("invoice not found")
)

type InvoiceID string

// LineItem is a single invoice line. SKU is empty when upstream extraction
// could not determine one.
type LineItem struct {
	SKU         string  `json:"sku,omitempty"`
	Description string  `json:"description"`
	Qty         float64 `json:"qty"`
	UnitPrice   float64 `json:"unitPrice"`
}

// InvoiceFields is the extracted field block of an invoice. Dates are kept
// in the upstream DD.MM.YYYY form; empty string means the field is absent.
type InvoiceFields struct {
	InvoiceNumber string     `json:"invoiceNumber"`
	InvoiceDate   string     `json:"invoiceDate"`
	ServiceDate   string     `json:"serviceDate,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	PONumber      string     `json:"poNumber,omitempty"`
	NetTotal      float64    `json:"netTotal"`
	TaxRate       float64    `json:"taxRate"`
	TaxTotal      float64    `json:"taxTotal"`
	GrossTotal    float64    `json:"grossTotal"`
	LineItems     []LineItem `json:"lineItems"`
}

// Invoice is the immutable engine input. Confidence is the extraction
// confidence seeded by the upstream OCR/parsing step.
type Invoice struct {
	ID         InvoiceID     `json:"invoiceId"`
	Vendor     string        `json:"vendor"`
	Fields     InvoiceFields `json:"fields"`
	Confidence float64       `json:"confidence"`
	RawText    string        `json:"rawText"`
}

// Clone returns a deep copy. The engine normalizes the copy and never
// touches the original.
func (x *Invoice) Clone() *Invoice {
	if x == nil {
		return nil
	}
	dup := *x
	dup.Fields.LineItems = make([]LineItem, len(x.Fields.LineItems))
	copy(dup.Fields.LineItems, x.Fields.LineItems)
	return &dup
}
