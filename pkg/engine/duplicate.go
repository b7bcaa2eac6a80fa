package engine

import (
	"math"
	"strings"

	"github.com/flowbit/invoice-agent/pkg/model"
)

// detectDuplicate is stage 0. A history entry counts as the original of a
// duplicate pair only when its ID sorts before the current invoice's ID,
// so exactly one side of the pair ever gets flagged. Returns true when the
// run is terminated early.
func (r *run) detectDuplicate(history []*model.Invoice) bool {
	inv := r.invoice
	current := parseInvoiceDate(inv.Fields.InvoiceDate)

	matched := false
	for _, prev := range history {
		if prev.ID == inv.ID {
			continue
		}
		if prev.Vendor != inv.Vendor {
			continue
		}
		if prev.Fields.InvoiceNumber != inv.Fields.InvoiceNumber {
			continue
		}
		if prev.ID > inv.ID {
			continue
		}

		prevDate := parseInvoiceDate(prev.Fields.InvoiceDate)
		diffDays := math.Abs(current.Sub(prevDate).Hours() / 24)
		if diffDays <= r.engine.cfg.DuplicateWindowDays {
			matched = true
			break
		}
	}

	if !matched && !strings.Contains(strings.ToLower(inv.RawText), "duplicate") {
		return false
	}

	r.result.RequiresHumanReview = true
	r.result.IsDuplicate = true
	r.result.Reasoning = "Possible Duplicate Submission Detected (Same Vendor + Invoice Number + Close Dates)."
	r.result.ConfidenceScore = 0.0
	r.result.MemoryUpdates = append(r.result.MemoryUpdates,
		"Warning: Duplicate detected. Learning disabled for this instance.")
	r.audit(model.AuditDecide, "Escalated: Duplicate invoice detected.")

	return true
}
