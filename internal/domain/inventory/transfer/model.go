// Package transfer provides multi-location stock transfers that preserve
// batch provenance: every unit arriving at the destination carries its
// original lot reference, cost, price and expiration.
package transfer

import (
	"context"
	"time"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
)

// Status is the transfer lifecycle state.
//
//	pending -> approved -> completed
//	pending ----------------^
//
// Execution failure always rolls the stock movement back and leaves the
// header where it was.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
)

// Header groups transfer lines between a source and a destination location.
type Header struct {
	ID        id.ID  `db:"id" json:"id"`
	Reference string `db:"reference" json:"reference"`

	SourceLocationID      id.ID `db:"source_location_id" json:"sourceLocationId"`
	DestinationLocationID id.ID `db:"destination_location_id" json:"destinationLocationId"`

	Status      Status     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`

	Lines []Detail `db:"-" json:"lines"`
}

// Detail is one product line of a transfer. The quantity is satisfied by one
// or more batch-level allocations recorded as destination batch rows plus
// ledger entries.
type Detail struct {
	ID         id.ID          `db:"id" json:"id"`
	TransferID id.ID          `db:"transfer_id" json:"transferId"`
	LineNo     int            `db:"line_no" json:"lineNo"`
	ProductID  id.ID          `db:"product_id" json:"productId"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
}

// NewHeader creates a pending transfer between two locations.
func NewHeader(reference string, sourceLocationID, destinationLocationID id.ID) *Header {
	now := time.Now().UTC()
	return &Header{
		ID:                    id.New(),
		Reference:             reference,
		SourceLocationID:      sourceLocationID,
		DestinationLocationID: destinationLocationID,
		Status:                StatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// AddLine appends a product line.
func (h *Header) AddLine(productID id.ID, qty types.Quantity) {
	h.Lines = append(h.Lines, Detail{
		ID:         id.New(),
		TransferID: h.ID,
		LineNo:     len(h.Lines) + 1,
		ProductID:  productID,
		Quantity:   qty,
	})
}

// Validate checks the header before creation.
func (h *Header) Validate(ctx context.Context) error {
	if id.IsNil(h.SourceLocationID) {
		return apperror.NewValidation("source location is required").WithDetail("field", "sourceLocationId")
	}
	if id.IsNil(h.DestinationLocationID) {
		return apperror.NewValidation("destination location is required").WithDetail("field", "destinationLocationId")
	}
	if h.SourceLocationID == h.DestinationLocationID {
		return apperror.NewValidation("source and destination locations must differ")
	}
	if len(h.Lines) == 0 {
		return apperror.NewValidation("transfer requires at least one line")
	}
	for i, line := range h.Lines {
		if id.IsNil(line.ProductID) {
			return apperror.NewValidation("line product is required").WithDetail("line_no", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").WithDetail("line_no", i+1)
		}
	}
	return nil
}

// CanExecute reports whether stock may be moved from the current status.
func (h *Header) CanExecute() error {
	if h.Status != StatusPending && h.Status != StatusApproved {
		return apperror.NewBusinessRule(apperror.CodeTransferNotPending,
			"transfer is not executable in its current status").
			WithDetail("status", string(h.Status))
	}
	return nil
}
