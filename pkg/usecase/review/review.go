package review

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/flowbit/invoice-agent/pkg/memory"
	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// UseCase handles out-of-band human feedback: explicit teaching and the
// approve/reject resolution of a processing result. Feedback never changes
// a result already returned; it only shapes future recalls.
type UseCase struct {
	store  *memory.Store
	output io.Writer
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithOutput sets the output writer
func WithOutput(w io.Writer) Option {
	return func(uc *UseCase) {
		uc.output = w
	}
}

// New creates a new review UseCase instance
func New(store *memory.Store, opts ...Option) *UseCase {
	uc := &UseCase{
		store:  store,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Teach records a human-provided rule for a vendor.
func (u *UseCase) Teach(ctx context.Context, vendorName string, memType model.MemoryType, key string, value model.MemoryValue, wasSuccessful bool) (*model.MemoryEntry, error) {
	if vendorName == "" {
		return nil, goerr.New("vendor name is required")
	}
	if key == "" {
		return nil, goerr.New("key is required")
	}

	entry, err := u.store.Learn(ctx, vendorName, memType, key, value, wasSuccessful)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to teach memory")
	}

	fmt.Fprintf(u.output, "Learned: %s -> %s for %s (confidence %.2f)\n",
		key, value.String(), vendorName, entry.Confidence)
	return entry, nil
}

// Resolve applies an approve/reject decision to the memory entries a
// result used, and folds the outcome into the vendor's rejection rate.
func (u *UseCase) Resolve(ctx context.Context, vendorName string, appliedIDs []model.MemoryID, approved bool) error {
	if vendorName == "" {
		return goerr.New("vendor name is required")
	}

	if err := u.store.Reinforce(ctx, appliedIDs, approved); err != nil {
		return goerr.Wrap(err, "failed to reinforce memories")
	}

	entry, err := u.store.RecordResolution(ctx, vendorName, approved)
	if err != nil {
		return goerr.Wrap(err, "failed to record resolution")
	}

	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	fmt.Fprintf(u.output, "Resolution %s for %s (rejection rate now %.2f)\n",
		verdict, vendorName, entry.Value.Number())
	return nil
}
