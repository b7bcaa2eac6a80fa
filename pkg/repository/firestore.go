package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const memoryCollection = "memories"

// Firestore persists memory entries as one document per entry. Save
// replaces the whole collection so deleted entries do not linger.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed store.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.Value("project", projectID), goerr.Value("database", databaseID))
	}

	return &Firestore{client: client}, nil
}

// Close releases the underlying client.
func (r *Firestore) Close() error {
	return r.client.Close()
}

// memoryDoc is the Firestore document shape. The polymorphic value is
// split per kind because Firestore cannot store a tagged union directly.
type memoryDoc struct {
	ID           string    `firestore:"id"`
	VendorName   string    `firestore:"vendorName"`
	MemoryType   string    `firestore:"memoryType"`
	Key          string    `firestore:"key"`
	ValueKind    string    `firestore:"valueKind"`
	StringValue  string    `firestore:"stringValue"`
	NumberValue  float64   `firestore:"numberValue"`
	BoolValue    bool      `firestore:"boolValue"`
	Confidence   float64   `firestore:"confidence"`
	LastUsed     time.Time `firestore:"lastUsed"`
	UsageCount   int       `firestore:"usageCount"`
	SuccessCount int       `firestore:"successCount"`
	FailureCount int       `firestore:"failureCount"`
}

func toDoc(e *model.MemoryEntry) *memoryDoc {
	doc := &memoryDoc{
		ID:           string(e.ID),
		VendorName:   e.VendorName,
		MemoryType:   string(e.MemoryType),
		Key:          e.Key,
		ValueKind:    string(e.Value.Kind),
		Confidence:   e.Confidence,
		LastUsed:     e.LastUsed,
		UsageCount:   e.UsageCount,
		SuccessCount: e.SuccessCount,
		FailureCount: e.FailureCount,
	}
	switch e.Value.Kind {
	case model.ValueKindNumber:
		doc.NumberValue = e.Value.Num
	case model.ValueKindBool:
		doc.BoolValue = e.Value.Bool
	default:
		doc.StringValue = e.Value.Str
	}
	return doc
}

func (d *memoryDoc) toEntry() *model.MemoryEntry {
	var value model.MemoryValue
	switch model.ValueKind(d.ValueKind) {
	case model.ValueKindNumber:
		value = model.NumberValue(d.NumberValue)
	case model.ValueKindBool:
		value = model.BoolValue(d.BoolValue)
	default:
		value = model.StringValue(d.StringValue)
	}

	return &model.MemoryEntry{
		ID:           model.MemoryID(d.ID),
		VendorName:   d.VendorName,
		MemoryType:   model.MemoryType(d.MemoryType),
		Key:          d.Key,
		Value:        value,
		Confidence:   d.Confidence,
		LastUsed:     d.LastUsed,
		UsageCount:   d.UsageCount,
		SuccessCount: d.SuccessCount,
		FailureCount: d.FailureCount,
	}
}

func (r *Firestore) Load(ctx context.Context) ([]*model.MemoryEntry, error) {
	entries := []*model.MemoryEntry{}

	iter := r.client.Collection(memoryCollection).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory documents")
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "malformed memory document", goerr.Value("doc", snap.Ref.ID))
		}
		entries = append(entries, doc.toEntry())
	}

	return entries, nil
}

func (r *Firestore) Save(ctx context.Context, entries []*model.MemoryEntry) error {
	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[string(e.ID)] = true
	}

	// Collect stale document refs before writing the new set.
	var stale []*firestore.DocumentRef
	iter := r.client.Collection(memoryCollection).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to list memory documents")
		}
		if !keep[snap.Ref.ID] {
			stale = append(stale, snap.Ref)
		}
	}

	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob

	for _, e := range entries {
		ref := r.client.Collection(memoryCollection).Doc(string(e.ID))
		job, err := bw.Set(ref, toDoc(e))
		if err != nil {
			return goerr.Wrap(err, "failed to queue memory write", goerr.Value("id", e.ID))
		}
		jobs = append(jobs, job)
	}
	for _, ref := range stale {
		job, err := bw.Delete(ref)
		if err != nil {
			return goerr.Wrap(err, "failed to queue memory delete", goerr.Value("doc", ref.ID))
		}
		jobs = append(jobs, job)
	}

	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			// A concurrent writer may already have removed a stale doc.
			if status.Code(err) == codes.NotFound {
				continue
			}
			return goerr.Wrap(err, "failed to persist memory entries")
		}
	}

	return nil
}
