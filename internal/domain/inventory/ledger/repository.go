package ledger

import (
	"context"
	"time"

	"lotkeeper/internal/core/id"
)

// Repository defines operations on the movement ledger.
// Append-only: no update or delete is exposed.
type Repository interface {
	// Append inserts one entry and fills its generated id.
	// Must be called in the same transaction as the paired batch mutation.
	Append(ctx context.Context, entry *Entry) error

	// AppendAll batch-inserts entries (COPY fast path inside a transaction).
	AppendAll(ctx context.Context, entries []Entry) error

	// ListByBatch returns all entries for a batch in append order.
	ListByBatch(ctx context.Context, batchID id.ID) ([]Entry, error)

	// ListByReference returns all entries correlated with a document
	// reference, in append order.
	ListByReference(ctx context.Context, referenceNo string) ([]Entry, error)

	// History returns entries for a product with optional filters,
	// newest first.
	History(ctx context.Context, productID id.ID, filter HistoryFilter) ([]Entry, error)
}

// HistoryFilter narrows ledger history queries.
type HistoryFilter struct {
	LocationID *id.ID
	BatchID    *id.ID
	Type       *MovementType
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}
