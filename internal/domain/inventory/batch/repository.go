package batch

import (
	"context"
	"time"

	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
)

// Store defines data access and mutation primitives for batch rows.
// Reads used for allocation must run inside the same transaction as the
// decrements they feed; ListAvailableForUpdate takes row locks so that
// concurrent allocations against the same batches serialize.
type Store interface {
	// GetByID returns a batch row, including exhausted ones.
	GetByID(ctx context.Context, batchID id.ID) (Batch, error)

	// ListAvailable returns batches with available_quantity > 0 for the
	// product at the location, in the given ordering. Read-only; safe for
	// concurrent callers on a consistent snapshot.
	ListAvailable(ctx context.Context, productID, locationID id.ID, order Ordering) ([]Batch, error)

	// ListAvailableForUpdate is ListAvailable with FOR UPDATE row locks,
	// in canonical order so concurrent allocations serialize consistently.
	// Must be called inside a transaction.
	ListAvailableForUpdate(ctx context.Context, productID, locationID id.ID, order Ordering) ([]Batch, error)

	// Decrement reduces available_quantity by qty, re-checking the balance
	// under lock (never trusts a stale read). Returns the remaining
	// quantity after the decrement. Fails with InsufficientBatchQuantity
	// when the batch no longer holds qty.
	Decrement(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error)

	// Increment raises available_quantity by qty and returns the new value.
	Increment(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error)

	// Create inserts a new batch row. Fails with DuplicateLot when a batch
	// with the same (product, location, batch_reference) exists with
	// different cost/price/expiration, and with DuplicateEntry when an
	// exact-identity row exists (the caller should top it up instead).
	Create(ctx context.Context, b *Batch) error

	// FindMatching returns the batch with exactly this provenance identity
	// at the location, or nil when none exists. Used by transfers and
	// returns to merge instead of minting a duplicate lot.
	FindMatching(ctx context.Context, productID, locationID id.ID, identity Identity) (*Batch, error)

	// TotalAvailable returns the sum of live batch quantities for the
	// product, optionally scoped to a location (nil = all locations).
	// This derived sum is the only source of product-level quantity.
	TotalAvailable(ctx context.Context, productID id.ID, locationID *id.ID) (types.Quantity, error)

	// ListExpiringBefore returns live batches at the location expiring
	// before the cutoff, soonest first.
	ListExpiringBefore(ctx context.Context, locationID id.ID, cutoff time.Time) ([]Batch, error)
}
