package catalog

import (
	"github.com/flowbit/invoice-agent/pkg/model"
)

// Catalog is a read-only lookup over purchase orders and delivery notes.
// Lookups on a nil or empty catalog return nothing; reference data is
// always fail-open.
type Catalog struct {
	purchaseOrders []*model.PurchaseOrder
	deliveryNotes  []*model.DeliveryNote
}

// New builds a catalog from loaded reference records. Nil slices are fine.
func New(purchaseOrders []*model.PurchaseOrder, deliveryNotes []*model.DeliveryNote) *Catalog {
	return &Catalog{
		purchaseOrders: purchaseOrders,
		deliveryNotes:  deliveryNotes,
	}
}

// FindPO returns the purchase order with the given number, or nil.
func (c *Catalog) FindPO(poNumber string) *model.PurchaseOrder {
	if c == nil {
		return nil
	}
	for _, po := range c.purchaseOrders {
		if po.PONumber == poNumber {
			return po
		}
	}
	return nil
}

// FindDN returns the delivery note for the given PO and vendor, or nil.
func (c *Catalog) FindDN(poNumber, vendor string) *model.DeliveryNote {
	if c == nil {
		return nil
	}
	for _, dn := range c.deliveryNotes {
		if dn.PONumber == poNumber && dn.Vendor == vendor {
			return dn
		}
	}
	return nil
}

// POsByVendor returns all purchase orders issued to the vendor.
func (c *Catalog) POsByVendor(vendor string) []*model.PurchaseOrder {
	if c == nil {
		return nil
	}
	var out []*model.PurchaseOrder
	for _, po := range c.purchaseOrders {
		if po.Vendor == vendor {
			out = append(out, po)
		}
	}
	return out
}
