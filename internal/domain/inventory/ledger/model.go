// Package ledger provides the append-only movement ledger: one immutable
// row per quantity change, referencing the product and the specific batch.
package ledger

import (
	"time"

	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
)

// MovementType classifies a quantity change and fixes its sign.
type MovementType string

const (
	MovementIn          MovementType = "IN"
	MovementOut         MovementType = "OUT"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementAdjustment  MovementType = "ADJUSTMENT"
	MovementReturn      MovementType = "RETURN"
)

// Sign returns +1 for inbound types, -1 for outbound types and 0 for
// ADJUSTMENT, whose entries carry their own sign.
func (t MovementType) Sign() int {
	switch t {
	case MovementIn, MovementTransferIn, MovementReturn:
		return 1
	case MovementOut, MovementTransferOut:
		return -1
	default:
		return 0
	}
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementTransferOut, MovementTransferIn, MovementAdjustment, MovementReturn:
		return true
	}
	return false
}

// Entry is one immutable ledger row. Quantity is a positive magnitude for
// every type except ADJUSTMENT, which stores a signed delta. RemainingAfter
// snapshots the batch's quantity immediately after the paired mutation,
// captured in the same transaction, so audits don't need a replay.
type Entry struct {
	ID         int64 `db:"id" json:"id"`
	ProductID  id.ID `db:"product_id" json:"productId"`
	BatchID    id.ID `db:"batch_id" json:"batchId"`
	LocationID id.ID `db:"location_id" json:"locationId"`

	Type     MovementType   `db:"movement_type" json:"movementType"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// ReferenceNo correlates the entry with a sale/transfer/return document.
	ReferenceNo string `db:"reference_no" json:"referenceNo"`

	RemainingAfter types.Quantity `db:"remaining_after" json:"remainingAfter"`

	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`
}

// SignedQuantity returns the entry's contribution to the batch balance.
// Replaying entries in id order and summing signed quantities reproduces
// the batch's current available_quantity.
func (e *Entry) SignedQuantity() types.Quantity {
	if e.Type == MovementAdjustment {
		return e.Quantity
	}
	if e.Type.Sign() < 0 {
		return e.Quantity.Neg()
	}
	return e.Quantity
}

// NewEntry builds a ledger row stamped with the current time.
func NewEntry(productID, batchID, locationID id.ID, movementType MovementType, qty, remainingAfter types.Quantity, referenceNo string) Entry {
	return Entry{
		ProductID:      productID,
		BatchID:        batchID,
		LocationID:     locationID,
		Type:           movementType,
		Quantity:       qty,
		ReferenceNo:    referenceNo,
		RemainingAfter: remainingAfter,
		OccurredAt:     time.Now().UTC(),
	}
}
