package memory

import (
	"context"
	"sync"
	"time"

	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/flowbit/invoice-agent/pkg/repository"
	"github.com/flowbit/invoice-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	seedConfidence  = 0.6
	successGain     = 0.15
	failurePenalty  = 0.3
	decayRate       = 0.01
	decayFloor      = 0.1
	recallThreshold = 0.2

	rejectionRateKey = "rejection-rate"
)

// Store is the confidence-weighted memory of taught corrections. All
// operations are serialized through a single mutex and every mutation
// persists the full entry set synchronously.
type Store struct {
	mu      sync.Mutex
	repo    repository.Store
	entries []*model.MemoryEntry
	now     func() time.Time
}

// Option is a functional option for Store
type Option func(*Store)

// WithClock overrides the time source, used by tests to simulate decay.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New loads the persisted entry set. Malformed contents are a hard error:
// a partially trusted store would silently drop taught behavior.
func New(ctx context.Context, repo repository.Store, opts ...Option) (*Store, error) {
	entries, err := repo.Load(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load memory store")
	}

	s := &Store{
		repo:    repo,
		entries: entries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Recall decays every stored entry, then returns copies of the entries for
// the given vendor that remain above the recall threshold. Decay is lazy:
// it happens here, not on a timer, and is not written back until the next
// mutation persists the set.
func (s *Store) Recall(ctx context.Context, vendorName string) ([]*model.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyDecay()

	var out []*model.MemoryEntry
	for _, e := range s.entries {
		if e.VendorName == vendorName && e.Confidence > recallThreshold {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// List returns copies of all stored entries.
func (s *Store) List(ctx context.Context) ([]*model.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.MemoryEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// Learn upserts a rule keyed by (vendor, type, key). A new entry seeds at
// confidence 0.6; an existing one is reinforced (or weakened) and has its
// value replaced.
func (s *Store) Learn(ctx context.Context, vendorName string, memType model.MemoryType, key string, value model.MemoryValue, wasSuccessful bool) (*model.MemoryEntry, error) {
	if err := memType.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.learnLocked(ctx, vendorName, memType, key, value, wasSuccessful)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

func (s *Store) learnLocked(ctx context.Context, vendorName string, memType model.MemoryType, key string, value model.MemoryValue, wasSuccessful bool) (*model.MemoryEntry, error) {
	logger := logging.From(ctx)
	now := s.now()

	var entry *model.MemoryEntry
	for _, e := range s.entries {
		if e.VendorName == vendorName && e.MemoryType == memType && e.Key == key {
			entry = e
			break
		}
	}

	if entry != nil {
		reinforceEntry(entry, wasSuccessful, now)
		entry.Value = value
		logger.Info("updated memory pattern",
			"vendor", vendorName, "key", key, "value", value.String(), "confidence", entry.Confidence)
	} else {
		entry = &model.MemoryEntry{
			ID:         model.NewMemoryID(),
			VendorName: vendorName,
			MemoryType: memType,
			Key:        key,
			Value:      value,
			Confidence: seedConfidence,
			LastUsed:   now,
			UsageCount: 1,
		}
		if wasSuccessful {
			entry.SuccessCount = 1
		} else {
			entry.FailureCount = 1
		}
		s.entries = append(s.entries, entry)
		logger.Info("created memory pattern",
			"vendor", vendorName, "key", key, "value", value.String())
	}

	if err := s.repo.Save(ctx, s.entries); err != nil {
		return nil, goerr.Wrap(err, "failed to persist memory store")
	}
	return entry, nil
}

// Reinforce applies batched human feedback to the entries with the given
// IDs: approval raises confidence by 0.15, rejection drops it by 0.3.
func (s *Store) Reinforce(ctx context.Context, ids []model.MemoryID, wasSuccessful bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[model.MemoryID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	now := s.now()
	for _, e := range s.entries {
		if wanted[e.ID] {
			reinforceEntry(e, wasSuccessful, now)
		}
	}

	if err := s.repo.Save(ctx, s.entries); err != nil {
		return goerr.Wrap(err, "failed to persist memory store")
	}
	return nil
}

// RecordResolution updates the vendor's rejection-rate entry after a human
// approved or rejected a processing result.
func (s *Store) RecordResolution(ctx context.Context, vendorName string, approved bool) (*model.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 0.0
	for _, e := range s.entries {
		if e.VendorName == vendorName && e.MemoryType == model.MemoryTypeResolutionHistory && e.Key == rejectionRateKey {
			rate = e.Value.Number()
			break
		}
	}

	if approved {
		rate *= 0.9
	} else {
		rate += (1 - rate) * 0.2
	}

	entry, err := s.learnLocked(ctx, vendorName, model.MemoryTypeResolutionHistory, rejectionRateKey, model.NumberValue(rate), approved)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// Reset discards transient rules but keeps the trust signals: vendor
// preferences and resolution history survive, per-document field mappings
// and correction patterns are forgotten.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.MemoryType == model.MemoryTypeVendorPreference || e.MemoryType == model.MemoryTypeResolutionHistory {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	if err := s.repo.Save(ctx, s.entries); err != nil {
		return goerr.Wrap(err, "failed to persist memory store")
	}
	return nil
}

// applyDecay reduces confidence of every entry idle for more than a day by
// 0.01 per idle day, floored at 0.1 so stale rules stay recoverable.
func (s *Store) applyDecay() {
	now := s.now()
	for _, e := range s.entries {
		idleDays := now.Sub(e.LastUsed).Hours() / 24
		if idleDays > 1 {
			e.Confidence = max(e.Confidence-idleDays*decayRate, decayFloor)
		}
	}
}

func reinforceEntry(e *model.MemoryEntry, wasSuccessful bool, now time.Time) {
	if wasSuccessful {
		e.Confidence = min(e.Confidence+successGain, 1.0)
		e.SuccessCount++
	} else {
		e.Confidence = max(e.Confidence-failurePenalty, 0.0)
		e.FailureCount++
	}
	e.UsageCount++
	e.LastUsed = now
}
