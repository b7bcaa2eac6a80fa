package model

import "time"

type AuditStepKind string

const (
	AuditRecall AuditStepKind = "recall"
	AuditApply  AuditStepKind = "apply"
	AuditDecide AuditStepKind = "decide"
	AuditLearn  AuditStepKind = "learn"
)

// AuditStep is one entry of the append-only pipeline log. Order always
// reflects execution order.
type AuditStep struct {
	Step      AuditStepKind `json:"step"`
	Timestamp time.Time     `json:"timestamp"`
	Details   string        `json:"details"`
}

// ProcessingResult is the engine output for one invocation. MemoryUpdates
// are informational notices only; persisted rules are managed by the store.
type ProcessingResult struct {
	InvoiceID           InvoiceID   `json:"invoiceId"`
	NormalizedInvoice   *Invoice    `json:"normalizedInvoice"`
	ProposedCorrections []string    `json:"proposedCorrections"`
	RequiresHumanReview bool        `json:"requiresHumanReview"`
	IsDuplicate         bool        `json:"isDuplicate"`
	Reasoning           string      `json:"reasoning"`
	ConfidenceScore     float64     `json:"confidenceScore"`
	MemoryUpdates       []string    `json:"memoryUpdates"`
	AppliedMemoryIDs    []MemoryID  `json:"appliedMemoryIds"`
	AuditTrail          []AuditStep `json:"auditTrail"`
}
