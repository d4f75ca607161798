// Package product provides the product catalog.
// Products carry the descriptive attributes and default pricing; actual
// stock lives in inventory batches.
package product

import (
	"context"
	"time"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
)

// Product represents a sellable item.
type Product struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// Barcode is the scan code (EAN-13, etc.)
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	Category *string `db:"category" json:"category,omitempty"`
	Brand    *string `db:"brand" json:"brand,omitempty"`
	Supplier *string `db:"supplier" json:"supplier,omitempty"`

	// DefaultUnitCost and DefaultSellingPrice seed new batches when the
	// receiving document carries no pricing, and back returns whose cost
	// provenance is lost.
	DefaultUnitCost     types.Money `db:"default_unit_cost" json:"defaultUnitCost"`
	DefaultSellingPrice types.Money `db:"default_selling_price" json:"defaultSellingPrice"`

	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// New creates a Product with required fields.
func New(code, name string) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:                  id.New(),
		Code:                code,
		Name:                name,
		DefaultUnitCost:     types.ZeroMoney(),
		DefaultSellingPrice: types.ZeroMoney(),
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Validate checks invariants before persisting.
func (p *Product) Validate(ctx context.Context) error {
	if p.Name == "" {
		return apperror.NewValidation("product name is required").
			WithDetail("field", "name")
	}
	if p.DefaultUnitCost.IsNegative() {
		return apperror.NewValidation("default unit cost cannot be negative").
			WithDetail("field", "defaultUnitCost")
	}
	if p.DefaultSellingPrice.IsNegative() {
		return apperror.NewValidation("default selling price cannot be negative").
			WithDetail("field", "defaultSellingPrice")
	}
	return nil
}
