package location

import (
	"context"

	"lotkeeper/internal/core/id"
)

// Repository defines location persistence.
type Repository interface {
	Create(ctx context.Context, l *Location) error
	Update(ctx context.Context, l *Location) error
	GetByID(ctx context.Context, locationID id.ID) (*Location, error)
	GetByCode(ctx context.Context, code string) (*Location, error)
	List(ctx context.Context, activeOnly bool) ([]Location, error)
}
