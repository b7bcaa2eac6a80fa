package engine

import (
	"math"

	"github.com/flowbit/invoice-agent/pkg/model"
)

// adjustVendorTrust is stage 7: resolution history sways the decision. A
// frequently rejected vendor gets reviewed regardless of score; a vendor
// with a long clean record earns a usage-scaled trust boost.
func (r *run) adjustVendorTrust() {
	rejection := r.findMemory(func(m *model.MemoryEntry) bool {
		return m.MemoryType == model.MemoryTypeResolutionHistory && m.Key == "rejection-rate"
	})
	if rejection == nil {
		return
	}

	rate := rejection.Value.Number()
	switch {
	case rate > 0.5:
		r.result.RequiresHumanReview = true
		r.appendReasoning(" Vendor has high historical rejection rate.")
		r.result.ConfidenceScore *= 0.8
		r.audit(model.AuditDecide, "Escalated: High historical rejection rate for vendor.")

	case rate < 0.1 && rejection.UsageCount >= 2:
		// Scale the boost with how often the memory was exercised, capped
		// at ten uses, and shrink it as the rejection rate approaches 0.1.
		usageMultiplier := math.Min(float64(rejection.UsageCount)/10, 1.0)
		trustBoost := (0.1 + 0.15*usageMultiplier) * (1 - rate)

		r.result.ConfidenceScore += trustBoost
		r.appendReasoning(" Applied Vendor Trust Boost (+%.2f) based on clean history.", trustBoost)
		r.audit(model.AuditDecide, "Trust Boost: Vendor has low rejection rate (%.0f%%) over %d invoices.",
			rate*100, rejection.UsageCount)
	}
}
