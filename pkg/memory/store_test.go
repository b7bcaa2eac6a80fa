package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/flowbit/invoice-agent/pkg/memory"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/repository"
	"github.com/m-mizutani/gt"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...memory.Option) *memory.Store {
	t.Helper()
	store, err := memory.New(context.Background(), repository.NewMemory(), opts...)
	gt.NoError(t, err)
	return store
}

func TestLearn(t *testing.T) {
	ctx := context.Background()

	t.Run("new entry seeds at 0.6", func(t *testing.T) {
		store := newTestStore(t)

		entry, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)
		gt.V(t, entry.Confidence).Equal(0.6)
		gt.V(t, entry.UsageCount).Equal(1)
		gt.V(t, entry.SuccessCount).Equal(1)
		gt.V(t, entry.FailureCount).Equal(0)
	})

	t.Run("repeated learn updates the same entry", func(t *testing.T) {
		store := newTestStore(t)

		first, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)

		second, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("deliveryDate"), true)
		gt.NoError(t, err)

		gt.V(t, second.ID).Equal(first.ID)
		gt.V(t, second.Confidence).Equal(0.75)
		gt.V(t, second.UsageCount).Equal(2)
		gt.True(t, second.Value.IsString("deliveryDate"))

		entries, err := store.List(ctx)
		gt.NoError(t, err)
		gt.V(t, len(entries)).Equal(1)
	})

	t.Run("different key creates a separate entry", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)
		_, err = store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Seefracht", model.StringValue("SKU-FREIGHT"), true)
		gt.NoError(t, err)

		entries, err := store.List(ctx)
		gt.NoError(t, err)
		gt.V(t, len(entries)).Equal(2)
	})

	t.Run("confidence is capped at 1.0", func(t *testing.T) {
		store := newTestStore(t)

		var entry *model.MemoryEntry
		for range 5 {
			var err error
			entry, err = store.Learn(ctx, "Parts AG", model.MemoryTypeCorrectionPattern,
				"vat-inclusive", model.BoolValue(true), true)
			gt.NoError(t, err)
		}
		gt.V(t, entry.Confidence).Equal(1.0)
	})

	t.Run("confidence is floored at 0.0", func(t *testing.T) {
		store := newTestStore(t)

		var entry *model.MemoryEntry
		for range 4 {
			var err error
			entry, err = store.Learn(ctx, "Parts AG", model.MemoryTypeCorrectionPattern,
				"vat-inclusive", model.BoolValue(true), false)
			gt.NoError(t, err)
		}
		gt.V(t, entry.Confidence).Equal(0.0)
		gt.V(t, entry.FailureCount).Equal(4)
	})

	t.Run("invalid type is rejected", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryType("gut-feeling"),
			"k", model.StringValue("v"), true)
		gt.Error(t, err)
	})
}

func TestRecall(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by vendor", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)
		_, err = store.Learn(ctx, "Parts AG", model.MemoryTypeCorrectionPattern,
			"vat-inclusive", model.BoolValue(true), true)
		gt.NoError(t, err)

		recalled, err := store.Recall(ctx, "Supplier GmbH")
		gt.NoError(t, err)
		gt.V(t, len(recalled)).Equal(1)
		gt.V(t, recalled[0].Key).Equal("Leistungsdatum")
	})

	t.Run("returns copies", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)

		recalled, err := store.Recall(ctx, "Supplier GmbH")
		gt.NoError(t, err)
		recalled[0].Confidence = 0.01
		recalled[0].Key = "mutated"

		again, err := store.Recall(ctx, "Supplier GmbH")
		gt.NoError(t, err)
		gt.V(t, again[0].Key).Equal("Leistungsdatum")
	})

	t.Run("unknown vendor yields nothing", func(t *testing.T) {
		store := newTestStore(t)

		recalled, err := store.Recall(ctx, "Nobody Ltd")
		gt.NoError(t, err)
		gt.V(t, len(recalled)).Equal(0)
	})
}

func TestDecay(t *testing.T) {
	ctx := context.Background()

	t.Run("idle entries lose confidence per day", func(t *testing.T) {
		now := baseTime
		store := newTestStore(t, memory.WithClock(func() time.Time { return now }))

		_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)

		now = baseTime.Add(10 * 24 * time.Hour)
		recalled, err := store.Recall(ctx, "Supplier GmbH")
		gt.NoError(t, err)
		gt.V(t, len(recalled)).Equal(1)
		gt.Number(t, recalled[0].Confidence).Less(0.51).Greater(0.49)
	})

	t.Run("no decay within a day", func(t *testing.T) {
		now := baseTime
		store := newTestStore(t, memory.WithClock(func() time.Time { return now }))

		_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)

		now = baseTime.Add(20 * time.Hour)
		recalled, err := store.Recall(ctx, "Supplier GmbH")
		gt.NoError(t, err)
		gt.V(t, recalled[0].Confidence).Equal(0.6)
	})

	t.Run("decay floors at 0.1 and drops out of recall", func(t *testing.T) {
		now := baseTime
		store := newTestStore(t, memory.WithClock(func() time.Time { return now }))

		_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)

		now = baseTime.Add(365 * 24 * time.Hour)
		recalled, err := store.Recall(ctx, "Supplier GmbH")
		gt.NoError(t, err)
		gt.V(t, len(recalled)).Equal(0)

		entries, err := store.List(ctx)
		gt.NoError(t, err)
		gt.V(t, entries[0].Confidence).Equal(0.1)
	})
}

func TestReinforce(t *testing.T) {
	ctx := context.Background()

	t.Run("approval raises only the named entries", func(t *testing.T) {
		store := newTestStore(t)

		a, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)
		_, err = store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Seefracht", model.StringValue("SKU-FREIGHT"), true)
		gt.NoError(t, err)

		gt.NoError(t, store.Reinforce(ctx, []model.MemoryID{a.ID}, true))

		entries, err := store.List(ctx)
		gt.NoError(t, err)
		for _, e := range entries {
			if e.ID == a.ID {
				gt.V(t, e.Confidence).Equal(0.75)
				gt.V(t, e.UsageCount).Equal(2)
			} else {
				gt.V(t, e.Confidence).Equal(0.6)
				gt.V(t, e.UsageCount).Equal(1)
			}
		}
	})

	t.Run("rejection drops confidence by 0.3", func(t *testing.T) {
		store := newTestStore(t)

		a, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
			"Leistungsdatum", model.StringValue("serviceDate"), true)
		gt.NoError(t, err)

		gt.NoError(t, store.Reinforce(ctx, []model.MemoryID{a.ID}, false))

		entries, err := store.List(ctx)
		gt.NoError(t, err)
		gt.Number(t, entries[0].Confidence).Less(0.31).Greater(0.29)
		gt.V(t, entries[0].FailureCount).Equal(1)
	})
}

func TestRecordResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("rejection raises the rate toward 1", func(t *testing.T) {
		store := newTestStore(t)

		entry, err := store.RecordResolution(ctx, "Supplier GmbH", false)
		gt.NoError(t, err)
		gt.Number(t, entry.Value.Number()).Less(0.21).Greater(0.19)

		entry, err = store.RecordResolution(ctx, "Supplier GmbH", false)
		gt.NoError(t, err)
		gt.Number(t, entry.Value.Number()).Less(0.37).Greater(0.35)
	})

	t.Run("approval shrinks the rate", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.RecordResolution(ctx, "Supplier GmbH", false)
		gt.NoError(t, err)

		entry, err := store.RecordResolution(ctx, "Supplier GmbH", true)
		gt.NoError(t, err)
		gt.Number(t, entry.Value.Number()).Less(0.19).Greater(0.17)
	})

	t.Run("rate is tracked per vendor", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.RecordResolution(ctx, "Supplier GmbH", false)
		gt.NoError(t, err)

		entry, err := store.RecordResolution(ctx, "Parts AG", true)
		gt.NoError(t, err)
		gt.V(t, entry.Value.Number()).Equal(0.0)
	})
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
		"Leistungsdatum", model.StringValue("serviceDate"), true)
	gt.NoError(t, err)
	_, err = store.Learn(ctx, "Parts AG", model.MemoryTypeCorrectionPattern,
		"vat-inclusive", model.BoolValue(true), true)
	gt.NoError(t, err)
	_, err = store.Learn(ctx, "Supplier GmbH", model.MemoryTypeVendorPreference,
		"preferred-currency", model.StringValue("EUR"), true)
	gt.NoError(t, err)
	_, err = store.RecordResolution(ctx, "Supplier GmbH", false)
	gt.NoError(t, err)

	gt.NoError(t, store.Reset(ctx))

	entries, err := store.List(ctx)
	gt.NoError(t, err)
	gt.V(t, len(entries)).Equal(2)
	for _, e := range entries {
		if e.MemoryType != model.MemoryTypeVendorPreference && e.MemoryType != model.MemoryTypeResolutionHistory {
			t.Errorf("unexpected surviving entry type %s", e.MemoryType)
		}
	}
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	store, err := memory.New(ctx, repo)
	gt.NoError(t, err)
	_, err = store.Learn(ctx, "Supplier GmbH", model.MemoryTypeFieldMapping,
		"Leistungsdatum", model.StringValue("serviceDate"), true)
	gt.NoError(t, err)

	reloaded, err := memory.New(ctx, repo)
	gt.NoError(t, err)

	recalled, err := reloaded.Recall(ctx, "Supplier GmbH")
	gt.NoError(t, err)
	gt.V(t, len(recalled)).Equal(1)
	gt.V(t, recalled[0].Confidence).Equal(0.6)
}
