package dto

import (
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
)

// AvailabilityResponse is the derived total quantity for a product.
type AvailabilityResponse struct {
	ProductID  id.ID          `json:"productId"`
	LocationID *id.ID         `json:"locationId,omitempty"`
	Quantity   types.Quantity `json:"quantity"`
}

// AllocationPreviewRequest asks which batches a hypothetical consumption
// would draw from. Nothing is locked or decremented.
type AllocationPreviewRequest struct {
	ProductID  id.ID          `json:"productId" binding:"required"`
	LocationID id.ID          `json:"locationId" binding:"required"`
	Quantity   types.Quantity `json:"quantity"`
	Ordering   string         `json:"ordering"`
}

// ExecuteTransferRequest controls transfer execution.
type ExecuteTransferRequest struct {
	Partial  bool   `json:"partial"`
	Ordering string `json:"ordering"`
}
