package product

import (
	"context"

	"lotkeeper/internal/core/id"
)

// ListFilter narrows product listings.
type ListFilter struct {
	Category *string
	Brand    *string
	Search   string
	Active   *bool
	Limit    int
	Offset   int
}

// Repository defines product persistence.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, productID id.ID) (*Product, error)
	GetByCode(ctx context.Context, code string) (*Product, error)

	// FindByBarcode retrieves a product by its scan code.
	FindByBarcode(ctx context.Context, barcode string) (*Product, error)

	List(ctx context.Context, filter ListFilter) ([]Product, error)
}
