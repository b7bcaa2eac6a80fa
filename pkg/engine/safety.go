package engine

import (
	"strings"

	"github.com/flowbit/invoice-agent/pkg/model"
)

// applySafetyNets is stage 6: independent checks that only fire when the
// corresponding correction did NOT happen earlier. Each one forces review
// and rewrites the reasoning to name the unresolved risk.
func (r *run) applySafetyNets() {
	raw := r.invoice.RawText

	// Untranslated service-date marker that nothing mapped.
	if !r.hasCorrectionContaining("Service Date") {
		for _, marker := range r.engine.cfg.ServiceDateMarkers {
			if !strings.Contains(raw, marker) {
				continue
			}
			r.result.RequiresHumanReview = true
			r.result.ConfidenceScore -= 0.25
			r.result.Reasoning = "Found '" + marker + "' but don't know how to map it yet."
			r.audit(model.AuditDecide, "Escalated: Unmapped '%s' field.", marker)
			break
		}
	}

	// VAT-inclusive language without the back-calculation correction.
	if !r.hasCorrectionContaining("Recalculated") {
		for _, marker := range r.engine.cfg.VATInclusiveMarkers {
			if !strings.Contains(raw, marker) {
				continue
			}
			r.result.RequiresHumanReview = true
			r.result.ConfidenceScore -= 0.3
			r.result.Reasoning = "Detected VAT-inclusive language but math indicates Gross was treated as Net."
			r.audit(model.AuditDecide, "Escalated: Potential VAT-inclusive calculation error.")
			break
		}
	}

	// Shipping-cost marker with no SKU on any line and no memory that
	// would have covered the marker.
	for _, marker := range r.engine.cfg.ShippingMarkers {
		if !strings.Contains(raw, marker) {
			continue
		}
		if r.anySKUAssigned() || r.hasShippingMemory() {
			break
		}
		r.result.RequiresHumanReview = true
		r.result.ConfidenceScore -= 0.2
		r.result.Reasoning = "Detected '" + marker + "' service but no SKU is assigned."
		r.audit(model.AuditDecide, "Escalated: Missing SKU for freight service.")
		break
	}
}

func (r *run) anySKUAssigned() bool {
	for _, item := range r.normalized().Fields.LineItems {
		if strings.Contains(item.SKU, "SKU-") {
			return true
		}
	}
	return false
}

func (r *run) hasShippingMemory() bool {
	for _, marker := range r.engine.cfg.ShippingMarkers {
		if r.findMemory(func(m *model.MemoryEntry) bool { return m.Key == marker }) != nil {
			return true
		}
	}
	return false
}
