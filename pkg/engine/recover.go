package engine

import (
	"context"
	"strings"

	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/utils/logging"
)

const poMatchPrefix = "po-match:"

// recoverPONumber is stage 3: fill in a missing PO number, preferring a
// learned keyword rule, then the deterministic single-match heuristic, then
// a configured last-resort fallback. A successful heuristic is promoted to
// a learned rule for the next invoice.
func (r *run) recoverPONumber(ctx context.Context) {
	if r.normalized().Fields.PONumber != "" {
		return
	}

	poMem := r.findMemory(func(m *model.MemoryEntry) bool {
		return m.MemoryType == model.MemoryTypeVendorPreference && strings.HasPrefix(m.Key, poMatchPrefix)
	})

	if poMem != nil && poMem.Confidence > 0.6 {
		keyword := strings.TrimPrefix(poMem.Key, poMatchPrefix)
		if !r.anyLineItemContains(keyword) {
			return
		}

		poNumber := poMem.Value.Str
		r.normalized().Fields.PONumber = poNumber
		r.result.AppliedMemoryIDs = append(r.result.AppliedMemoryIDs, poMem.ID)
		r.promoteReasoning("Applied learned patterns.")
		r.correct("Auto-matched %s based on learned keyword '%s' (Confidence: %.2f)", poNumber, keyword, poMem.Confidence)
		r.appendReasoning(" Applied learned PO Match for %s.", poNumber)
		r.result.ConfidenceScore += 0.15 * poMem.Confidence
		r.audit(model.AuditApply, "Matched PO %s using memory.", poNumber)
		return
	}

	// Heuristic: a PO whose lines match an invoice line on both unit price
	// and quantity. Only an unambiguous single hit is trusted.
	var matching []*model.PurchaseOrder
	for _, po := range r.engine.catalog.POsByVendor(r.invoice.Vendor) {
		if r.poMatchesAnyLine(po) {
			matching = append(matching, po)
		}
	}

	if len(matching) == 1 {
		po := matching[0]
		r.normalized().Fields.PONumber = po.PONumber
		r.promoteReasoning("Applied heuristics.")
		r.correct("Auto-matched %s based on item match (Price: %s, Qty: %s)",
			po.PONumber, formatAmount(po.LineItems[0].UnitPrice), formatAmount(po.LineItems[0].Qty))
		r.appendReasoning(" Auto-matched single valid PO: %s.", po.PONumber)
		r.result.ConfidenceScore += 0.1
		r.audit(model.AuditApply, "Heuristic: Matched single valid PO %s based on item details.", po.PONumber)

		if len(r.invoice.Fields.LineItems) > 0 {
			r.learnPOMatch(ctx, r.invoice.Fields.LineItems[0].Description, po.PONumber)
		}
		return
	}

	for _, fb := range r.engine.cfg.POFallbacks {
		if r.invoice.Vendor != fb.Vendor || !r.anyLineItemContains(fb.Keyword) {
			continue
		}
		r.normalized().Fields.PONumber = fb.PONumber
		r.promoteReasoning("Applied heuristics.")
		r.correct("Auto-matched %s based on item '%s'", fb.PONumber, fb.Keyword)
		r.appendReasoning(" Also applied heuristic PO Match.")
		r.result.ConfidenceScore += 0.1
		r.audit(model.AuditApply, "Heuristic: Matched PO based on line item description.")

		r.learnPOMatch(ctx, fb.Keyword, fb.PONumber)
		return
	}
}

func (r *run) learnPOMatch(ctx context.Context, keyword, poNumber string) {
	key := poMatchPrefix + keyword
	existing := r.findMemory(func(m *model.MemoryEntry) bool { return m.Key == key })
	if existing != nil {
		return
	}

	if _, err := r.engine.memory.Learn(ctx, r.invoice.Vendor, model.MemoryTypeVendorPreference,
		key, model.StringValue(poNumber), true); err != nil {
		logging.From(ctx).Warn("failed to persist PO match rule", "error", err)
		return
	}
	r.audit(model.AuditLearn, "Recorded PO match keyword '%s' as vendor preference.", keyword)
}

func (r *run) anyLineItemContains(keyword string) bool {
	for _, item := range r.invoice.Fields.LineItems {
		if strings.Contains(item.Description, keyword) {
			return true
		}
	}
	return false
}

func (r *run) poMatchesAnyLine(po *model.PurchaseOrder) bool {
	for _, inv := range r.invoice.Fields.LineItems {
		for _, pi := range po.LineItems {
			if pi.UnitPrice == inv.UnitPrice && pi.Qty == inv.Qty {
				return true
			}
		}
	}
	return false
}

// recoverCurrency is stage 4: a learned default currency wins; otherwise a
// currency marker in the raw text is adopted and remembered.
func (r *run) recoverCurrency(ctx context.Context) {
	if r.normalized().Fields.Currency != "" {
		return
	}

	currencyMem := r.findMemory(func(m *model.MemoryEntry) bool {
		return m.MemoryType == model.MemoryTypeVendorPreference && m.Key == "default-currency"
	})

	if currencyMem != nil && currencyMem.Confidence > 0.6 {
		code := currencyMem.Value.Str
		r.normalized().Fields.Currency = code
		r.result.AppliedMemoryIDs = append(r.result.AppliedMemoryIDs, currencyMem.ID)
		r.promoteReasoning("Applied learned patterns.")
		r.correct("Applied learned currency '%s' (Confidence: %.2f)", code, currencyMem.Confidence)
		r.result.ConfidenceScore += 0.1 * currencyMem.Confidence
		r.audit(model.AuditApply, "Applied learned default currency '%s'.", code)
		return
	}

	for _, cm := range r.engine.cfg.CurrencyMarkers {
		for _, marker := range cm.Markers {
			if !strings.Contains(r.invoice.RawText, marker) {
				continue
			}
			r.normalized().Fields.Currency = cm.Code
			r.promoteReasoning("Applied heuristics.")
			r.correct("Recovered currency '%s' from raw text.", cm.Code)
			r.appendReasoning(" Recovered missing currency.")
			r.audit(model.AuditApply, "Heuristic: Recovered currency from raw text.")

			if currencyMem == nil {
				if _, err := r.engine.memory.Learn(ctx, r.invoice.Vendor, model.MemoryTypeVendorPreference,
					"default-currency", model.StringValue(cm.Code), true); err != nil {
					logging.From(ctx).Warn("failed to persist currency rule", "error", err)
				} else {
					r.audit(model.AuditLearn, "Recorded default currency '%s' for vendor.", cm.Code)
				}
			}
			return
		}
	}
}

// detectPaymentTerms is stage 5: an informational correction, never a
// change to the totals.
func (r *run) detectPaymentTerms(ctx context.Context) {
	termsMem := r.findMemory(func(m *model.MemoryEntry) bool {
		return m.MemoryType == model.MemoryTypeVendorPreference && m.Key == "payment-terms"
	})

	if termsMem != nil && termsMem.Confidence > 0.6 {
		r.result.AppliedMemoryIDs = append(r.result.AppliedMemoryIDs, termsMem.ID)
		r.promoteReasoning("Applied learned patterns.")
		r.correct("Applied learned Payment Terms: %s (Confidence: %.2f)", termsMem.Value.Str, termsMem.Confidence)
		r.result.ConfidenceScore += 0.1 * termsMem.Confidence
		r.audit(model.AuditApply, "Applied learned payment terms: %s.", termsMem.Value.Str)
		return
	}

	for _, term := range r.engine.cfg.DiscountTerms {
		if !strings.Contains(r.invoice.RawText, term.Marker) {
			continue
		}
		r.correct("Detected Payment Terms: %s", term.Terms)
		r.result.MemoryUpdates = append(r.result.MemoryUpdates,
			"Insight: "+term.Marker+" terms detected and recorded.")

		if termsMem == nil {
			if _, err := r.engine.memory.Learn(ctx, r.invoice.Vendor, model.MemoryTypeVendorPreference,
				"payment-terms", model.StringValue(term.Terms), true); err != nil {
				logging.From(ctx).Warn("failed to persist payment terms rule", "error", err)
			} else {
				r.audit(model.AuditLearn, "Identified and recorded vendor-specific payment terms (%s).", term.Marker)
			}
		}
		return
	}
}
