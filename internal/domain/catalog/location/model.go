// Package location provides the stock location catalog: stores, warehouses,
// and any other place batches can sit.
package location

import (
	"context"
	"time"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
)

// Kind classifies a location.
type Kind string

const (
	KindStore     Kind = "store"
	KindWarehouse Kind = "warehouse"
)

// Location is a physical place that holds stock.
type Location struct {
	ID        id.ID     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Kind      Kind      `db:"kind" json:"kind"`
	Address   *string   `db:"address" json:"address,omitempty"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// New creates a Location with required fields.
func New(code, name string, kind Kind) *Location {
	now := time.Now().UTC()
	return &Location{
		ID:        id.New(),
		Code:      code,
		Name:      name,
		Kind:      kind,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks invariants before persisting.
func (l *Location) Validate(ctx context.Context) error {
	if l.Name == "" {
		return apperror.NewValidation("location name is required").
			WithDetail("field", "name")
	}
	switch l.Kind {
	case KindStore, KindWarehouse:
	default:
		return apperror.NewValidation("invalid location kind").
			WithDetail("field", "kind").
			WithDetail("value", string(l.Kind))
	}
	return nil
}
