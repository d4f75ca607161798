// Package returns restores previously sold or transferred stock.
// A return is tied to the consuming document's reference: quantities flow
// back into the exact batches they came from, so a sell-then-return
// round trip leaves batch state unchanged.
package returns

import (
	"context"
	"fmt"
	"time"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/tx"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/pkg/logger"
	"lotkeeper/pkg/numerator"
)

// PricingSource supplies fallback cost and price when a returned quantity
// cannot be traced back to a surviving batch.
type PricingSource interface {
	DefaultPricing(ctx context.Context, productID id.ID) (unitCost, sellingPrice types.Money, err error)
}

// Processor restores stock from returns against an original sale or
// transfer reference.
type Processor struct {
	batches   batch.Store
	ledger    *ledger.Service
	txManager tx.Manager
	numbers   *numerator.Service
	pricing   PricingSource
	cache     batch.AvailabilityCache
}

func NewProcessor(
	batches batch.Store,
	ledgerSvc *ledger.Service,
	txManager tx.Manager,
	numbers *numerator.Service,
	pricing PricingSource,
	cache batch.AvailabilityCache,
) *Processor {
	if cache == nil {
		cache = batch.NopCache{}
	}
	return &Processor{
		batches:   batches,
		ledger:    ledgerSvc,
		txManager: txManager,
		numbers:   numbers,
		pricing:   pricing,
		cache:     cache,
	}
}

// Request returns qty of a product consumed under OriginalReference.
// LocationID is where the stock physically comes back; usually the selling
// location, but a return accepted at another store lands there instead.
type Request struct {
	OriginalReference string         `json:"originalReference"`
	ProductID         id.ID          `json:"productId"`
	LocationID        id.ID          `json:"locationId"`
	Quantity          types.Quantity `json:"quantity"`
}

// Restoration reports where one slice of the returned quantity landed.
type Restoration struct {
	BatchID        id.ID          `json:"batchId"`
	BatchReference string         `json:"batchReference"`
	Quantity       types.Quantity `json:"quantity"`
	ProvenanceLost bool           `json:"provenanceLost,omitempty"`
}

// Result reports a committed return.
type Result struct {
	Reference         string         `json:"reference"`
	OriginalReference string         `json:"originalReference"`
	ProductID         id.ID          `json:"productId"`
	LocationID        id.ID          `json:"locationId"`
	Quantity          types.Quantity `json:"quantity"`
	Restorations      []Restoration  `json:"restorations"`
}

// Process restores req.Quantity against the original consumption, walking
// its ledger entries most recent first. The returnable cap is what the
// original document consumed minus what earlier returns already restored;
// exceeding it is a validation error.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	if req.OriginalReference == "" {
		return nil, apperror.NewValidation("original reference is required").WithDetail("field", "originalReference")
	}
	if id.IsNil(req.ProductID) {
		return nil, apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	if id.IsNil(req.LocationID) {
		return nil, apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation("return quantity must be positive").WithDetail("field", "quantity")
	}

	reference, err := p.numbers.Next(ctx, "RET")
	if err != nil {
		return nil, fmt.Errorf("generate return reference: %w", err)
	}

	result := &Result{
		Reference:         reference,
		OriginalReference: req.OriginalReference,
		ProductID:         req.ProductID,
		LocationID:        req.LocationID,
		Quantity:          req.Quantity,
	}

	err = p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		slices, err := p.returnableSlices(ctx, req)
		if err != nil {
			return err
		}

		remaining := req.Quantity
		for _, slice := range slices {
			if !remaining.IsPositive() {
				break
			}
			take := remaining.Min(slice.available)
			restoration, err := p.restore(ctx, req, slice.batchID, take, reference)
			if err != nil {
				return err
			}
			result.Restorations = append(result.Restorations, restoration)
			remaining -= take
		}
		if remaining.IsPositive() {
			// returnableSlices already capped the total, so this is a bug
			// guard rather than a reachable state.
			return apperror.NewInternal(fmt.Errorf("return allocation exhausted slices for %s", req.OriginalReference))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.cache.Invalidate(ctx, req.LocationID, req.ProductID)
	logger.Info(ctx, "return committed",
		"reference", reference,
		"original_reference", req.OriginalReference,
		"product_id", req.ProductID,
		"quantity", req.Quantity.String(),
	)
	return result, nil
}

// batchSlice is the still-returnable portion of one original consumption.
type batchSlice struct {
	batchID   id.ID
	available types.Quantity
}

// returnableSlices reconstructs, per source batch, how much of the original
// consumption has not yet been returned, ordered most recent consumption
// first. Errors with a validation failure when req.Quantity exceeds the
// total returnable.
func (p *Processor) returnableSlices(ctx context.Context, req Request) ([]batchSlice, error) {
	entries, err := p.ledger.ByReference(ctx, req.OriginalReference)
	if err != nil {
		return nil, fmt.Errorf("load original movements: %w", err)
	}

	consumed := make(map[id.ID]types.Quantity)
	var order []id.ID
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.ProductID != req.ProductID {
			continue
		}
		switch e.Type {
		case ledger.MovementOut, ledger.MovementTransferOut:
			if _, seen := consumed[e.BatchID]; !seen {
				order = append(order, e.BatchID)
			}
			consumed[e.BatchID] += e.Quantity
		}
	}
	if len(order) == 0 {
		return nil, apperror.NewNotFound("consumption", req.OriginalReference)
	}

	returned, err := p.alreadyReturned(ctx, req)
	if err != nil {
		return nil, err
	}

	var slices []batchSlice
	var total types.Quantity
	for _, batchID := range order {
		available := consumed[batchID] - returned[batchID]
		if !available.IsPositive() {
			continue
		}
		slices = append(slices, batchSlice{batchID: batchID, available: available})
		total += available
	}
	if req.Quantity > total {
		return nil, apperror.NewValidation("return exceeds returnable quantity").
			WithDetail("requested", req.Quantity.String()).
			WithDetail("returnable", total.String())
	}
	return slices, nil
}

// alreadyReturned sums prior RETURN entries whose reference points back at
// the original document, keyed by source batch.
func (p *Processor) alreadyReturned(ctx context.Context, req Request) (map[id.ID]types.Quantity, error) {
	entries, err := p.ledger.ByReference(ctx, returnChainReference(req.OriginalReference))
	if err != nil {
		return nil, fmt.Errorf("load prior returns: %w", err)
	}
	returned := make(map[id.ID]types.Quantity)
	for _, e := range entries {
		if e.Type == ledger.MovementReturn && e.ProductID == req.ProductID {
			returned[e.BatchID] += e.Quantity
		}
	}
	return returned, nil
}

// restore puts take units back, preferring the original batch, then a batch
// at the return location with the same identity, then a fresh batch. When
// cost provenance cannot be recovered at all, the fresh batch uses catalog
// defaults and the restoration is flagged.
func (p *Processor) restore(ctx context.Context, req Request, sourceBatchID id.ID, take types.Quantity, reference string) (Restoration, error) {
	var source *batch.Batch
	if b, err := p.batches.GetByID(ctx, sourceBatchID); err == nil {
		source = &b
	} else if !apperror.IsNotFound(err) {
		return Restoration{}, fmt.Errorf("load source batch: %w", err)
	}

	if source != nil && source.LocationID == req.LocationID {
		return p.increment(ctx, req, source, take, reference, false)
	}

	if source != nil {
		match, err := p.batches.FindMatching(ctx, req.ProductID, req.LocationID, source.Identity())
		if err != nil && !apperror.IsNotFound(err) {
			return Restoration{}, fmt.Errorf("find matching batch: %w", err)
		}
		if match != nil {
			return p.increment(ctx, req, match, take, reference, false)
		}
		created := batch.New(
			req.ProductID, req.LocationID, source.BatchReference,
			take, source.UnitCost, source.SellingPrice, source.ExpirationDate,
		)
		return p.create(ctx, req, created, take, reference, false)
	}

	// Source batch row is gone; provenance is unrecoverable.
	cost, price, err := p.pricing.DefaultPricing(ctx, req.ProductID)
	if err != nil {
		return Restoration{}, fmt.Errorf("load default pricing: %w", err)
	}
	created := batch.New(
		req.ProductID, req.LocationID, lostLotReference(reference),
		take, cost, price, nil,
	)
	return p.create(ctx, req, created, take, reference, true)
}

func (p *Processor) increment(ctx context.Context, req Request, target *batch.Batch, take types.Quantity, reference string, lost bool) (Restoration, error) {
	remaining, err := p.batches.Increment(ctx, target.ID, take)
	if err != nil {
		return Restoration{}, err
	}
	if _, err := p.ledger.Record(ctx, ledger.NewEntry(
		req.ProductID, target.ID, req.LocationID,
		ledger.MovementReturn, take, remaining, returnChainReference(req.OriginalReference),
	)); err != nil {
		return Restoration{}, err
	}
	return Restoration{
		BatchID:        target.ID,
		BatchReference: target.BatchReference,
		Quantity:       take,
		ProvenanceLost: lost,
	}, nil
}

func (p *Processor) create(ctx context.Context, req Request, created *batch.Batch, take types.Quantity, reference string, lost bool) (Restoration, error) {
	if err := p.batches.Create(ctx, created); err != nil {
		return Restoration{}, err
	}
	if _, err := p.ledger.Record(ctx, ledger.NewEntry(
		req.ProductID, created.ID, req.LocationID,
		ledger.MovementReturn, take, created.AvailableQuantity, returnChainReference(req.OriginalReference),
	)); err != nil {
		return Restoration{}, err
	}
	if lost {
		logger.Warn(ctx, "return provenance lost, restored at default pricing",
			"original_reference", req.OriginalReference,
			"product_id", req.ProductID,
			"batch_reference", created.BatchReference,
		)
	}
	return Restoration{
		BatchID:        created.ID,
		BatchReference: created.BatchReference,
		Quantity:       take,
		ProvenanceLost: lost,
	}, nil
}

// returnChainReference keys all returns against one original document, so
// the returnable cap survives multiple partial returns.
func returnChainReference(originalReference string) string {
	return "RET:" + originalReference
}

func lostLotReference(returnReference string) string {
	return "RET-" + returnReference + "-" + time.Now().UTC().Format("20060102")
}
