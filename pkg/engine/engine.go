package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/flowbit/invoice-agent/pkg/catalog"
	"github.com/flowbit/invoice-agent/pkg/memory"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Reasoning fragments that later stages replace when they manage to apply
// something after all.
const (
	reasonStarted        = "Standard processing started."
	reasonNoneApplicable = "Found memories but none were applicable to this specific invoice."
	reasonLowConfidence  = "Found memories but confidence too low to auto-apply."
)

// Engine classifies invoices as auto-acceptable or review-required using
// learned memory, reference documents and deterministic heuristics.
type Engine struct {
	memory  *memory.Store
	catalog *catalog.Catalog
	cfg     Config
	now     func() time.Time
}

// Option is a functional option for Engine
type Option func(*Engine)

// WithClock overrides the audit timestamp source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over the given memory store and reference catalog.
func New(mem *memory.Store, cat *catalog.Catalog, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		memory:  mem,
		catalog: cat,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs the full pipeline on one invoice. The input invoice is
// never mutated; all corrections land on a deep copy. History is optional
// and only feeds duplicate detection.
func (e *Engine) Process(ctx context.Context, invoice *model.Invoice, history []*model.Invoice) (*model.ProcessingResult, error) {
	if invoice == nil {
		return nil, goerr.New("invoice is nil")
	}

	r := &run{
		engine:  e,
		invoice: invoice,
		result: &model.ProcessingResult{
			InvoiceID:           invoice.ID,
			NormalizedInvoice:   invoice.Clone(),
			ProposedCorrections: []string{},
			Reasoning:           reasonStarted,
			ConfidenceScore:     invoice.Confidence,
			MemoryUpdates:       []string{},
			AppliedMemoryIDs:    []model.MemoryID{},
			AuditTrail:          []model.AuditStep{},
		},
	}

	// Stage 0: duplicate detection short-circuits everything else.
	if e.cfg.DuplicateDetection && r.detectDuplicate(history) {
		return r.result, nil
	}

	// Stage 1: recall learned rules and apply the confident ones.
	if err := r.recallAndApply(ctx); err != nil {
		return nil, err
	}

	// Stage 2: three-way match against PO and delivery note.
	if e.cfg.ThreeWayMatch {
		r.threeWayMatch()
	}

	// Stages 3-5: recover missing fields, learning new rules on the way.
	r.recoverPONumber(ctx)
	r.recoverCurrency(ctx)
	r.detectPaymentTerms(ctx)

	// Stage 6: safety nets for risks no earlier stage resolved.
	r.applySafetyNets()

	// Stage 7: vendor trust from resolution history.
	if e.cfg.TrustAdjustment {
		r.adjustVendorTrust()
	}

	// Stage 8: threshold gate.
	r.thresholdGate()

	// Stage 9: clamp and record the final decision.
	r.finalize()

	return r.result, nil
}

// run carries the per-invocation working state through the stages.
type run struct {
	engine   *Engine
	invoice  *model.Invoice
	memories []*model.MemoryEntry
	result   *model.ProcessingResult
}

func (r *run) normalized() *model.Invoice {
	return r.result.NormalizedInvoice
}

func (r *run) audit(step model.AuditStepKind, format string, args ...any) {
	r.result.AuditTrail = append(r.result.AuditTrail, model.AuditStep{
		Step:      step,
		Timestamp: r.engine.now(),
		Details:   fmt.Sprintf(format, args...),
	})
}

func (r *run) correct(format string, args ...any) {
	r.result.ProposedCorrections = append(r.result.ProposedCorrections, fmt.Sprintf(format, args...))
}

func (r *run) hasCorrectionContaining(sub string) bool {
	for _, c := range r.result.ProposedCorrections {
		if strings.Contains(c, sub) {
			return true
		}
	}
	return false
}

// promoteReasoning replaces the "nothing applied" narrative once a later
// stage does apply something; otherwise the existing narrative stands.
func (r *run) promoteReasoning(alt string) {
	if strings.Contains(r.result.Reasoning, "Found memories but none") {
		r.result.Reasoning = alt
	}
}

func (r *run) appendReasoning(format string, args ...any) {
	r.result.Reasoning += fmt.Sprintf(format, args...)
}

// findMemory returns the first recalled entry matching the predicate.
func (r *run) findMemory(match func(*model.MemoryEntry) bool) *model.MemoryEntry {
	for _, m := range r.memories {
		if match(m) {
			return m
		}
	}
	return nil
}

func (r *run) thresholdGate() {
	threshold := r.engine.cfg.ReviewThreshold
	if r.result.ConfidenceScore < threshold && !r.result.RequiresHumanReview {
		r.result.RequiresHumanReview = true
		r.appendReasoning(" Confidence score is below threshold (%.0f%%).", threshold*100)
		r.audit(model.AuditDecide, "Escalated: Confidence score %.2f below threshold.", r.result.ConfidenceScore)
	}
}

func (r *run) finalize() {
	r.result.ConfidenceScore = clamp01(r.result.ConfidenceScore)

	decision := "Auto-Accept"
	if r.result.RequiresHumanReview {
		decision = "Human Review"
	}
	r.audit(model.AuditDecide, "Final Decision: %s (Confidence: %.2f)", decision, r.result.ConfidenceScore)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// formatAmount renders a monetary value the way the corrections read best:
// no trailing zeros, full precision otherwise.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseInvoiceDate parses the upstream DD.MM.YYYY form; anything else
// yields the zero time, which no 7-day window ever matches.
func parseInvoiceDate(s string) time.Time {
	t, err := time.Parse("02.01.2006", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
