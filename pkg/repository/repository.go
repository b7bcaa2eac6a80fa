package repository

import (
	"context"

	"github.com/flowbit/invoice-agent/pkg/model"
)

// Store persists the full memory entry set. The memory service always
// writes the whole collection back after a mutation, so the interface is a
// plain load/save pair; backends only need durable whole-set replacement.
type Store interface {
	// Load reads all persisted entries. A missing backing resource yields an
	// empty set; malformed contents are an error (the caller decides whether
	// that is fatal).
	Load(ctx context.Context) ([]*model.MemoryEntry, error)

	// Save replaces the persisted set with the given entries.
	Save(ctx context.Context, entries []*model.MemoryEntry) error
}
