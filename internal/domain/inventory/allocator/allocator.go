// Package allocator computes consumption plans: which batches satisfy a
// requested quantity, and how much is taken from each. Planning is pure and
// deterministic; the caller supplies batches already locked and ordered by
// the batch store, and the plan never over-draws any batch.
package allocator

import (
	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/inventory/batch"
)

// Allocation is one plan line: take Quantity from the batch. Cost, price and
// expiration ride along so callers can compute COGS and carry provenance
// without re-reading the batch.
type Allocation struct {
	BatchID        id.ID          `json:"batchId"`
	BatchReference string         `json:"batchReference"`
	Quantity       types.Quantity `json:"quantity"`
	UnitCost       types.Money    `json:"unitCost"`
	SellingPrice   types.Money    `json:"sellingPrice"`

	// Identity carries the full provenance key for transfer destinations.
	Identity batch.Identity `json:"-"`
}

// Plan is an ordered consumption plan for a single product at a single
// location, produced under exactly one ordering.
type Plan struct {
	ProductID   id.ID          `json:"productId"`
	LocationID  id.ID          `json:"locationId"`
	Ordering    batch.Ordering `json:"-"`
	Requested   types.Quantity `json:"requested"`
	Allocations []Allocation   `json:"allocations"`
}

// Total returns the summed quantity across allocations. Equal to Requested
// for every successfully built plan.
func (p *Plan) Total() types.Quantity {
	var total types.Quantity
	for i := range p.Allocations {
		total += p.Allocations[i].Quantity
	}
	return total
}

// TotalCost returns the exact cost of goods for the plan
// (sum of quantity x unit cost per allocation).
func (p *Plan) TotalCost() types.Money {
	total := types.ZeroMoney()
	for i := range p.Allocations {
		a := &p.Allocations[i]
		total = total.Add(types.CostOf(a.Quantity, a.UnitCost))
	}
	return total
}

// Build greedily consumes from the head of the ordered batch list:
// min(remaining request, batch available) from each batch in turn until the
// request is exhausted. All-or-nothing: when the batches cannot cover the
// request, no partial plan is returned and the error carries the total
// available so the caller can surface "only Y available".
//
// A requested quantity of zero yields an empty plan, not an error.
// Zero-quantity batches are skipped. Repeated calls against an unchanged
// store return identical plans (ordering keys are strict).
func Build(productID, locationID id.ID, order batch.Ordering, batches []batch.Batch, requested types.Quantity) (Plan, error) {
	plan := Plan{
		ProductID:  productID,
		LocationID: locationID,
		Ordering:   order,
		Requested:  requested,
	}

	if requested.IsNegative() {
		return Plan{}, apperror.NewValidation("requested quantity must not be negative").
			WithDetail("requested", requested.String())
	}
	if requested.IsZero() {
		return plan, nil
	}

	var available types.Quantity
	for i := range batches {
		available += batches[i].AvailableQuantity
	}
	if available < requested {
		return Plan{}, apperror.NewInsufficientStock(productID.String(), locationID.String(), requested, available)
	}

	remaining := requested
	for i := range batches {
		if remaining.IsZero() {
			break
		}
		b := &batches[i]
		if !b.AvailableQuantity.IsPositive() {
			continue
		}

		take := remaining.Min(b.AvailableQuantity)
		plan.Allocations = append(plan.Allocations, Allocation{
			BatchID:        b.ID,
			BatchReference: b.BatchReference,
			Quantity:       take,
			UnitCost:       b.UnitCost,
			SellingPrice:   b.SellingPrice,
			Identity:       b.Identity(),
		})
		remaining -= take
	}

	return plan, nil
}
