package repository

import (
	"context"

	"github.com/flowbit/invoice-agent/pkg/model"
)

// Memory is an in-process store for tests and the demo command.
type Memory struct {
	entries []*model.MemoryEntry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (r *Memory) Load(ctx context.Context) ([]*model.MemoryEntry, error) {
	out := make([]*model.MemoryEntry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

func (r *Memory) Save(ctx context.Context, entries []*model.MemoryEntry) error {
	r.entries = make([]*model.MemoryEntry, len(entries))
	for i, e := range entries {
		r.entries[i] = e.Clone()
	}
	return nil
}
