package transfer

import (
	"context"
	"time"

	"lotkeeper/internal/core/id"
)

// Repository defines persistence for transfer headers and lines.
type Repository interface {
	// Create persists a header together with its lines.
	Create(ctx context.Context, header *Header) error

	// GetByID returns a header with its lines.
	GetByID(ctx context.Context, transferID id.ID) (*Header, error)

	// GetByReference returns a header with its lines by document reference.
	GetByReference(ctx context.Context, reference string) (*Header, error)

	// UpdateStatus transitions a header from one status to another.
	// The update is conditional on the current status; a concurrent
	// transition fails with ConcurrentModification.
	UpdateStatus(ctx context.Context, transferID id.ID, from, to Status) error

	// List returns headers matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Header, error)
}

// ListFilter narrows transfer listings.
type ListFilter struct {
	SourceLocationID      *id.ID
	DestinationLocationID *id.ID
	Status                *Status
	FromDate              *time.Time
	ToDate                *time.Time
	Limit                 int
	Offset                int
}
