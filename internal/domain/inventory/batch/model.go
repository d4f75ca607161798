// Package batch provides the batch store: one row per product x location x lot,
// the unit of FIFO allocation and transfer provenance.
package batch

import (
	"context"
	"time"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
)

// Batch is a dated, priced quantity of a product received together at one
// location. Identity fields (BatchReference, UnitCost, SellingPrice,
// ExpirationDate) are immutable after creation; a price or lot change must
// create a new batch row. AvailableQuantity is the only mutable resource and
// never goes below zero. Exhausted batches are retained for audit.
type Batch struct {
	ID         id.ID `db:"id" json:"id"`
	ProductID  id.ID `db:"product_id" json:"productId"`
	LocationID id.ID `db:"location_id" json:"locationId"`

	// BatchReference is the lot identifier, unique within a receiving event.
	BatchReference string `db:"batch_reference" json:"batchReference"`

	AvailableQuantity types.Quantity `db:"available_quantity" json:"availableQuantity"`

	UnitCost       types.Money `db:"unit_cost" json:"unitCost"`
	SellingPrice   types.Money `db:"selling_price" json:"sellingPrice"`
	ExpirationDate *time.Time  `db:"expiration_date" json:"expirationDate,omitempty"`

	// EntryDate plus EntrySeq give a strict, stable FIFO ordering key.
	// EntrySeq is assigned by the database (BIGSERIAL) and breaks ties
	// between batches entered in the same instant.
	EntryDate time.Time `db:"entry_date" json:"entryDate"`
	EntrySeq  int64     `db:"entry_seq" json:"entrySeq"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// New creates a batch row for a receiving event or a transfer arrival.
func New(productID, locationID id.ID, reference string, qty types.Quantity, unitCost, sellingPrice types.Money, expiration *time.Time) *Batch {
	now := time.Now().UTC()
	return &Batch{
		ID:                id.New(),
		ProductID:         productID,
		LocationID:        locationID,
		BatchReference:    reference,
		AvailableQuantity: qty,
		UnitCost:          unitCost,
		SellingPrice:      sellingPrice,
		ExpirationDate:    expiration,
		EntryDate:         now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Identity is the full provenance key carried across locations by a transfer:
// a destination batch merges with an existing one only when every field matches.
type Identity struct {
	BatchReference string
	UnitCost       types.Money
	SellingPrice   types.Money
	ExpirationDate *time.Time
}

// Identity returns the batch's provenance key.
func (b *Batch) Identity() Identity {
	return Identity{
		BatchReference: b.BatchReference,
		UnitCost:       b.UnitCost,
		SellingPrice:   b.SellingPrice,
		ExpirationDate: b.ExpirationDate,
	}
}

// Matches reports whether two identities are the same lot with the same
// cost, price and expiration.
func (i Identity) Matches(other Identity) bool {
	if i.BatchReference != other.BatchReference {
		return false
	}
	if !i.UnitCost.Equal(other.UnitCost) || !i.SellingPrice.Equal(other.SellingPrice) {
		return false
	}
	return sameDate(i.ExpirationDate, other.ExpirationDate)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// IsExpired reports whether the batch is past its expiration date at t.
// Batches without an expiration date never expire.
func (b *Batch) IsExpired(t time.Time) bool {
	return b.ExpirationDate != nil && t.After(*b.ExpirationDate)
}

// Validate checks batch fields before creation.
func (b *Batch) Validate(ctx context.Context) error {
	if id.IsNil(b.ProductID) {
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	if id.IsNil(b.LocationID) {
		return apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	if b.BatchReference == "" {
		return apperror.NewValidation("batch reference is required").WithDetail("field", "batchReference")
	}
	if b.AvailableQuantity.IsNegative() {
		return apperror.NewValidation("quantity must not be negative").WithDetail("field", "availableQuantity")
	}
	if b.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost must not be negative").WithDetail("field", "unitCost")
	}
	if b.SellingPrice.IsNegative() {
		return apperror.NewValidation("selling price must not be negative").WithDetail("field", "sellingPrice")
	}
	return nil
}

// Ordering selects the canonical consumption order for an allocation call.
// Exactly one ordering applies per call; orderings are never mixed within
// a single plan so every plan is reproducible for audit.
type Ordering int

const (
	// OrderFIFO consumes oldest received stock first:
	// entry_date ASC, entry_seq ASC. Default for sales and adjustments.
	OrderFIFO Ordering = iota

	// OrderExpiryFirst consumes near-date stock first:
	// expiration_date ASC NULLS LAST, then entry order. Opt-in for
	// transfer picking to reduce waste.
	OrderExpiryFirst
)

// String returns the ordering name used in logs and API parameters.
func (o Ordering) String() string {
	switch o {
	case OrderExpiryFirst:
		return "expiry_first"
	default:
		return "fifo"
	}
}

// ParseOrdering maps an API parameter to an Ordering.
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "", "fifo":
		return OrderFIFO, nil
	case "expiry_first":
		return OrderExpiryFirst, nil
	default:
		return OrderFIFO, apperror.NewValidation("unknown ordering").WithDetail("ordering", s)
	}
}
