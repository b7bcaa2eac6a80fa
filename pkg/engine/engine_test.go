package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/flowbit/invoice-agent/pkg/catalog"
	"github.com/flowbit/invoice-agent/pkg/engine"
	"github.com/flowbit/invoice-agent/pkg/memory"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/repository"
	"github.com/m-mizutani/gt"
)

func newEngine(t *testing.T, cat *catalog.Catalog, seed ...*model.MemoryEntry) (*engine.Engine, *memory.Store) {
	t.Helper()
	ctx := context.Background()

	repo := repository.NewMemory()
	if len(seed) > 0 {
		gt.NoError(t, repo.Save(ctx, seed))
	}

	store, err := memory.New(ctx, repo)
	gt.NoError(t, err)

	if cat == nil {
		cat = catalog.New(nil, nil)
	}
	return engine.New(store, cat, engine.DefaultConfig()), store
}

func testInvoice(id, vendor string) *model.Invoice {
	return &model.Invoice{
		ID:     model.InvoiceID(id),
		Vendor: vendor,
		Fields: model.InvoiceFields{
			InvoiceNumber: "N-" + id,
			InvoiceDate:   "10.03.2024",
			Currency:      "EUR",
			PONumber:      "PO-1",
			NetTotal:      500,
			TaxRate:       0.19,
			TaxTotal:      95,
			GrossTotal:    595,
			LineItems: []model.LineItem{
				{SKU: "SKU-WID-01", Description: "Widget Pro", Qty: 10, UnitPrice: 50},
			},
		},
		Confidence: 0.85,
		RawText:    "Invoice N-" + id + "\nWidget Pro 10 x 50,00",
	}
}

func TestServiceDateLearning(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t, nil)

	inv := testInvoice("INV-A-001", "Supplier GmbH")
	inv.RawText = "Rechnung N-INV-A-001\nLeistungsdatum: 18.03.2024\nWidget Pro 10 x 50,00"

	t.Run("unknown marker escalates", func(t *testing.T) {
		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.True(t, result.RequiresHumanReview)
		gt.S(t, result.Reasoning).Contains("Leistungsdatum")
		gt.Number(t, result.ConfidenceScore).Less(0.61).Greater(0.59)
	})

	t.Run("taught mapping applies automatically", func(t *testing.T) {
		_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.False(t, result.RequiresHumanReview)
		gt.V(t, result.NormalizedInvoice.Fields.ServiceDate).Equal("18.03.2024")
		gt.A(t, result.AppliedMemoryIDs).Length(1)
		gt.Number(t, result.ConfidenceScore).Greater(0.9)

		found := false
		for _, c := range result.ProposedCorrections {
			if strings.Contains(c, "Extracted Service Date '18.03.2024'") {
				found = true
			}
		}
		gt.True(t, found)

		// Input must stay untouched.
		gt.V(t, inv.Fields.ServiceDate).Equal("")
	})
}

func TestVATInclusiveLearning(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t, nil)

	inv := testInvoice("INV-B-002", "Parts AG")
	inv.Fields.NetTotal = 238
	inv.Fields.TaxTotal = 0
	inv.Fields.GrossTotal = 238
	inv.Fields.LineItems = []model.LineItem{
		{SKU: "SKU-BRG-09", Description: "Bearing Set", Qty: 2, UnitPrice: 119},
	}
	inv.Confidence = 0.9
	inv.RawText = "Parts AG Rechnung\nBearing Set 2 x 119,00\nGesamtbetrag 238,00 MwSt. inkl."

	t.Run("suspicious totals escalate", func(t *testing.T) {
		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.True(t, result.RequiresHumanReview)
		gt.S(t, result.Reasoning).Contains("VAT-inclusive")
		gt.Number(t, result.ConfidenceScore).Less(0.61).Greater(0.59)
	})

	t.Run("taught pattern recalculates tax", func(t *testing.T) {
		_, err := store.Learn(ctx, "Parts AG", model.MemoryTypeCorrectionPattern,
			"vat-inclusive", model.BoolValue(true), true)
		gt.NoError(t, err)

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.False(t, result.RequiresHumanReview)
		gt.V(t, result.NormalizedInvoice.Fields.NetTotal).Equal(200.0)
		gt.V(t, result.NormalizedInvoice.Fields.TaxTotal).Equal(38.0)
		gt.V(t, inv.Fields.NetTotal).Equal(238.0)
	})
}

func TestDuplicateDetection(t *testing.T) {
	ctx := context.Background()

	first := testInvoice("INV-001", "Acme Corp")
	second := testInvoice("INV-002", "Acme Corp")
	second.Fields.InvoiceNumber = first.Fields.InvoiceNumber
	second.Fields.InvoiceDate = "12.03.2024"
	first.Confidence = 0.9
	second.Confidence = 0.9

	t.Run("later invoice of a pair is flagged", func(t *testing.T) {
		eng, _ := newEngine(t, nil)

		result, err := eng.Process(ctx, second, []*model.Invoice{first})
		gt.NoError(t, err)

		gt.True(t, result.IsDuplicate)
		gt.True(t, result.RequiresHumanReview)
		gt.V(t, result.ConfidenceScore).Equal(0.0)
		gt.A(t, result.MemoryUpdates).Longer(0)
	})

	t.Run("earlier invoice of the pair is not flagged", func(t *testing.T) {
		eng, _ := newEngine(t, nil)

		result, err := eng.Process(ctx, first, []*model.Invoice{second})
		gt.NoError(t, err)
		gt.False(t, result.IsDuplicate)
	})

	t.Run("distant dates are not duplicates", func(t *testing.T) {
		eng, _ := newEngine(t, nil)

		late := testInvoice("INV-003", "Acme Corp")
		late.Fields.InvoiceNumber = first.Fields.InvoiceNumber
		late.Fields.InvoiceDate = "10.05.2024"
		late.Confidence = 0.9

		result, err := eng.Process(ctx, late, []*model.Invoice{first})
		gt.NoError(t, err)
		gt.False(t, result.IsDuplicate)
	})

	t.Run("literal marker in raw text is flagged without history", func(t *testing.T) {
		eng, _ := newEngine(t, nil)

		marked := testInvoice("INV-004", "Acme Corp")
		marked.RawText += "\nDUPLICATE of earlier submission"

		result, err := eng.Process(ctx, marked, nil)
		gt.NoError(t, err)
		gt.True(t, result.IsDuplicate)
	})
}

func TestThreeWayMatch(t *testing.T) {
	ctx := context.Background()

	po := &model.PurchaseOrder{
		PONumber: "PO-1",
		Vendor:   "Acme Corp",
		LineItems: []model.POLineItem{
			{SKU: "SKU-WID-01", Qty: 10, UnitPrice: 50},
		},
	}

	t.Run("DN confirming the invoice raises confidence", func(t *testing.T) {
		dn := &model.DeliveryNote{
			DNNumber: "DN-1",
			PONumber: "PO-1",
			Vendor:   "Acme Corp",
			LineItems: []model.DNLineItem{
				{SKU: "SKU-WID-01", QtyDelivered: 5},
			},
		}
		eng, _ := newEngine(t, catalog.New([]*model.PurchaseOrder{po}, []*model.DeliveryNote{dn}))

		inv := testInvoice("INV-010", "Acme Corp")
		inv.Fields.LineItems[0].Qty = 5
		inv.Confidence = 0.85

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.False(t, result.RequiresHumanReview)
		gt.S(t, result.Reasoning).Contains("Verified Qty 5 against Delivery Note DN-1")
		gt.Number(t, result.ConfidenceScore).Greater(0.94)
	})

	t.Run("DN disagreeing without memory escalates", func(t *testing.T) {
		dn := &model.DeliveryNote{
			DNNumber: "DN-1",
			PONumber: "PO-1",
			Vendor:   "Acme Corp",
			LineItems: []model.DNLineItem{
				{SKU: "SKU-WID-01", QtyDelivered: 8},
			},
		}
		eng, _ := newEngine(t, catalog.New([]*model.PurchaseOrder{po}, []*model.DeliveryNote{dn}))

		inv := testInvoice("INV-011", "Acme Corp")
		inv.Fields.LineItems[0].Qty = 5

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.True(t, result.RequiresHumanReview)
		found := false
		for _, c := range result.ProposedCorrections {
			if strings.Contains(c, "Qty Mismatch") {
				found = true
			}
		}
		gt.True(t, found)
		gt.V(t, result.NormalizedInvoice.Fields.LineItems[0].Qty).Equal(5.0)
	})

	t.Run("trusted DN priority memory auto-adjusts", func(t *testing.T) {
		dn := &model.DeliveryNote{
			DNNumber: "DN-1",
			PONumber: "PO-1",
			Vendor:   "Acme Corp",
			LineItems: []model.DNLineItem{
				{SKU: "SKU-WID-01", QtyDelivered: 8},
			},
		}
		cat := catalog.New([]*model.PurchaseOrder{po}, []*model.DeliveryNote{dn})
		eng, store := newEngine(t, cat)

		// Two successful teachings push confidence past the 0.7 bar.
		for range 2 {
			_, err := store.Learn(ctx, "Acme Corp", model.MemoryTypeCorrectionPattern,
				"qty-mismatch-adjust", model.StringValue("dn-priority"), true)
			gt.NoError(t, err)
		}

		inv := testInvoice("INV-012", "Acme Corp")
		inv.Fields.LineItems[0].Qty = 5

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.False(t, result.RequiresHumanReview)
		gt.V(t, result.NormalizedInvoice.Fields.LineItems[0].Qty).Equal(8.0)
		gt.V(t, inv.Fields.LineItems[0].Qty).Equal(5.0)
	})

	t.Run("mismatch without DN escalates", func(t *testing.T) {
		eng, _ := newEngine(t, catalog.New([]*model.PurchaseOrder{po}, nil))

		inv := testInvoice("INV-013", "Acme Corp")
		inv.Fields.LineItems[0].Qty = 5

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.True(t, result.RequiresHumanReview)
		gt.S(t, result.Reasoning).Contains("no Delivery Note found")
	})
}

func TestPORecovery(t *testing.T) {
	ctx := context.Background()

	po := &model.PurchaseOrder{
		PONumber: "PO-7",
		Vendor:   "Acme Corp",
		LineItems: []model.POLineItem{
			{SKU: "SKU-WID-01", Qty: 10, UnitPrice: 50},
		},
	}
	eng, store := newEngine(t, catalog.New([]*model.PurchaseOrder{po}, nil))

	inv := testInvoice("INV-020", "Acme Corp")
	inv.Fields.PONumber = ""
	inv.Confidence = 0.9

	result, err := eng.Process(ctx, inv, nil)
	gt.NoError(t, err)

	gt.V(t, result.NormalizedInvoice.Fields.PONumber).Equal("PO-7")
	gt.V(t, inv.Fields.PONumber).Equal("")

	// The heuristic hit is promoted to a learned keyword rule.
	entries, err := store.List(ctx)
	gt.NoError(t, err)
	found := false
	for _, e := range entries {
		if e.MemoryType == model.MemoryTypeVendorPreference && strings.HasPrefix(e.Key, "po-match:") {
			found = true
			gt.True(t, e.Value.IsString("PO-7"))
		}
	}
	gt.True(t, found)
}

func TestCurrencyAndTermsRecovery(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t, nil)

	inv := testInvoice("INV-030", "Acme Corp")
	inv.Fields.Currency = ""
	inv.Confidence = 0.9
	inv.RawText = "Invoice total 595,00 EUR\nZahlbar mit 2% Skonto innerhalb 14 Tagen"

	result, err := eng.Process(ctx, inv, nil)
	gt.NoError(t, err)

	gt.V(t, result.NormalizedInvoice.Fields.Currency).Equal("EUR")

	var haveCurrency, haveTerms bool
	for _, c := range result.ProposedCorrections {
		if strings.Contains(c, "Recovered currency 'EUR'") {
			haveCurrency = true
		}
		if strings.Contains(c, "Detected Payment Terms") {
			haveTerms = true
		}
	}
	gt.True(t, haveCurrency)
	gt.True(t, haveTerms)
	gt.A(t, result.MemoryUpdates).Longer(0)

	// Both recoveries are remembered as vendor preferences.
	entries, err := store.List(ctx)
	gt.NoError(t, err)
	keys := map[string]bool{}
	for _, e := range entries {
		keys[e.Key] = true
	}
	gt.True(t, keys["default-currency"])
	gt.True(t, keys["payment-terms"])
}

func TestVendorTrust(t *testing.T) {
	ctx := context.Background()

	rejectionEntry := func(rate float64, usage int) *model.MemoryEntry {
		return &model.MemoryEntry{
			ID:         model.NewMemoryID(),
			VendorName: "Acme Corp",
			MemoryType: model.MemoryTypeResolutionHistory,
			Key:        "rejection-rate",
			Value:      model.NumberValue(rate),
			Confidence: 0.9,
			LastUsed:   time.Now(),
			UsageCount: usage,
		}
	}

	t.Run("high rejection rate forces review", func(t *testing.T) {
		eng, _ := newEngine(t, nil, rejectionEntry(0.6, 5))

		inv := testInvoice("INV-040", "Acme Corp")
		inv.Confidence = 0.95

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.True(t, result.RequiresHumanReview)
		gt.S(t, result.Reasoning).Contains("high historical rejection rate")
		gt.Number(t, result.ConfidenceScore).Less(0.77).Greater(0.75)
	})

	t.Run("clean history earns a trust boost", func(t *testing.T) {
		eng, _ := newEngine(t, nil, rejectionEntry(0.05, 5))

		inv := testInvoice("INV-041", "Acme Corp")
		inv.Confidence = 0.85

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.False(t, result.RequiresHumanReview)
		gt.S(t, result.Reasoning).Contains("Vendor Trust Boost")
		gt.V(t, result.ConfidenceScore).Equal(1.0)
	})

	t.Run("single use is not enough for a boost", func(t *testing.T) {
		eng, _ := newEngine(t, nil, rejectionEntry(0.05, 1))

		inv := testInvoice("INV-042", "Acme Corp")
		inv.Confidence = 0.85

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)
		gt.Number(t, result.ConfidenceScore).Less(0.86)
	})
}

func TestThresholdAndClamping(t *testing.T) {
	ctx := context.Background()

	t.Run("weak extraction falls below the threshold", func(t *testing.T) {
		eng, _ := newEngine(t, nil)

		inv := testInvoice("INV-050", "Nobody Ltd")
		inv.Confidence = 0.7

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.True(t, result.RequiresHumanReview)
		gt.S(t, result.Reasoning).Contains("below threshold")
		gt.Number(t, result.ConfidenceScore).Less(0.66).Greater(0.64)
	})

	t.Run("score never drops below zero", func(t *testing.T) {
		eng, _ := newEngine(t, nil)

		inv := testInvoice("INV-051", "Nobody Ltd")
		inv.Confidence = 0.2
		inv.RawText = "Gesamtbetrag 238,00 MwSt. inkl."

		result, err := eng.Process(ctx, inv, nil)
		gt.NoError(t, err)

		gt.True(t, result.RequiresHumanReview)
		gt.V(t, result.ConfidenceScore).Equal(0.0)
	})
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, nil)

	inv := testInvoice("INV-060", "Acme Corp")
	result, err := eng.Process(ctx, inv, nil)
	gt.NoError(t, err)

	gt.A(t, result.AuditTrail).Longer(1)
	last := result.AuditTrail[len(result.AuditTrail)-1]
	gt.V(t, last.Step).Equal(model.AuditDecide)
	gt.S(t, last.Details).Contains("Final Decision")
	gt.V(t, result.AuditTrail[0].Step).Equal(model.AuditRecall)
}

func TestNilInvoice(t *testing.T) {
	eng, _ := newEngine(t, nil)
	_, err := eng.Process(context.Background(), nil, nil)
	gt.Error(t, err)
}
