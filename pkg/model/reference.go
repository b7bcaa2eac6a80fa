package model

// POLineItem is an ordered line on a purchase order.
type POLineItem struct {
	SKU       string  `json:"sku"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unitPrice"`
}

// PurchaseOrder is a read-only reference record from the ordering system.
type PurchaseOrder struct {
	PONumber  string       `json:"poNumber"`
	Vendor    string       `json:"vendor"`
	LineItems []POLineItem `json:"lineItems"`
}

// DNLineItem is a delivered line on a delivery note.
type DNLineItem struct {
	SKU          string  `json:"sku"`
	QtyDelivered float64 `json:"qtyDelivered"`
}

// DeliveryNote is a read-only reference record from goods receipt.
type DeliveryNote struct {
	DNNumber  string       `json:"dnNumber"`
	PONumber  string       `json:"poNumber"`
	Vendor    string       `json:"vendor"`
	LineItems []DNLineItem `json:"lineItems"`
}
