package engine

import (
	"github.com/flowbit/invoice-agent/pkg/model"
)

// threeWayMatch is stage 2: cross-check each invoice line against the PO
// and, on quantity mismatch, against the delivery note. Only runs when the
// invoice carries a PO number (possibly one stage 1 just recovered).
func (r *run) threeWayMatch() {
	poNumber := r.normalized().Fields.PONumber
	if poNumber == "" {
		return
	}
	po := r.engine.catalog.FindPO(poNumber)
	if po == nil {
		return
	}

	items := r.normalized().Fields.LineItems
	for i := range items {
		item := &items[i]

		poItem := findPOItem(po, item)
		if poItem == nil || item.Qty == poItem.Qty {
			continue
		}

		dn := r.engine.catalog.FindDN(po.PONumber, r.invoice.Vendor)
		if dn == nil {
			r.result.RequiresHumanReview = true
			r.appendReasoning(" Quantity mismatch vs PO, and no Delivery Note found.")
			r.audit(model.AuditDecide, "Quantity mismatch vs PO; DN missing.")
			continue
		}

		dnItem := findDNItem(dn, item.SKU, poItem.SKU)
		if dnItem == nil {
			continue
		}

		if item.Qty == dnItem.QtyDelivered {
			r.promoteReasoning("Verified data against reference documents.")
			r.appendReasoning(" Verified Qty %s against Delivery Note %s.", formatAmount(item.Qty), dn.DNNumber)
			r.audit(model.AuditDecide, "3-Way Match Success: Invoice Qty matches DN (%s).", dn.DNNumber)
			r.result.ConfidenceScore += 0.1
			continue
		}

		// The DN disagrees with the invoice. Only a strongly trusted
		// dn-priority memory may auto-correct; otherwise a human decides.
		dnPriority := r.findMemory(func(m *model.MemoryEntry) bool {
			return m.Key == "qty-mismatch-adjust" && m.Value.IsString("dn-priority") && m.Confidence > 0.7
		})
		if dnPriority != nil {
			oldQty := item.Qty
			item.Qty = dnItem.QtyDelivered
			r.promoteReasoning("Applied learned corrections.")
			r.correct("Auto-adjusted Qty from %s to %s based on DN %s (Learned Preference).",
				formatAmount(oldQty), formatAmount(dnItem.QtyDelivered), dn.DNNumber)
			r.appendReasoning(" Auto-corrected quantity based on learned DN priority.")
			r.audit(model.AuditApply, "Auto-adjusted quantity using DN priority memory.")
		} else {
			r.correct("Qty Mismatch: Invoice says %s, but DN %s says %s. Suggest Adjustment.",
				formatAmount(item.Qty), dn.DNNumber, formatAmount(dnItem.QtyDelivered))
			r.result.RequiresHumanReview = true
			r.audit(model.AuditDecide, "Quantity mismatch detected between Invoice and DN.")
		}
	}
}

// findPOItem matches by SKU first, then by exact unit price for items the
// extraction left without a SKU.
func findPOItem(po *model.PurchaseOrder, item *model.LineItem) *model.POLineItem {
	for i := range po.LineItems {
		pi := &po.LineItems[i]
		if (item.SKU != "" && pi.SKU == item.SKU) || pi.UnitPrice == item.UnitPrice {
			return pi
		}
	}
	return nil
}

func findDNItem(dn *model.DeliveryNote, skus ...string) *model.DNLineItem {
	for i := range dn.LineItems {
		di := &dn.LineItems[i]
		for _, sku := range skus {
			if sku != "" && di.SKU == sku {
				return di
			}
		}
	}
	return nil
}
