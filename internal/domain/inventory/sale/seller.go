// Package sale provides the POS consumption surface: checkout lines are
// allocated FIFO against the selling location's batches, producing per-batch
// cost of goods sold.
package sale

import (
	"context"
	"fmt"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/tx"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/inventory/allocator"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/pkg/logger"
	"lotkeeper/pkg/numerator"
)

// Seller executes sales against the batch store. One transaction per sale:
// a shortfall on any line aborts the whole sale.
type Seller struct {
	batches   batch.Store
	ledger    *ledger.Service
	txManager tx.Manager
	readOnly  tx.ReadOnlyManager
	numbers   *numerator.Service
	cache     batch.AvailabilityCache
}

// NewSeller creates a Seller. readOnly and cache may be nil.
func NewSeller(
	batches batch.Store,
	ledgerSvc *ledger.Service,
	txManager tx.Manager,
	readOnly tx.ReadOnlyManager,
	numbers *numerator.Service,
	cache batch.AvailabilityCache,
) *Seller {
	if cache == nil {
		cache = batch.NopCache{}
	}
	return &Seller{
		batches:   batches,
		ledger:    ledgerSvc,
		txManager: txManager,
		readOnly:  readOnly,
		numbers:   numbers,
		cache:     cache,
	}
}

// LineInput is one checkout line.
type LineInput struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
}

// Request is a sale: one or more lines consumed at a single location.
// Reference is optional; when empty a SALE number is minted.
type Request struct {
	LocationID id.ID       `json:"locationId"`
	Reference  string      `json:"reference,omitempty"`
	Lines      []LineInput `json:"lines"`
}

// LineResult reports the allocations and exact COGS for one sold line.
type LineResult struct {
	ProductID   id.ID                  `json:"productId"`
	Quantity    types.Quantity         `json:"quantity"`
	Allocations []allocator.Allocation `json:"allocations"`
	CostOfGoods types.Money            `json:"costOfGoods"`
}

// Result reports a committed sale.
type Result struct {
	Reference   string       `json:"reference"`
	LocationID  id.ID        `json:"locationId"`
	Lines       []LineResult `json:"lines"`
	CostOfGoods types.Money  `json:"costOfGoods"`
}

// Sell consumes stock for every line FIFO within one transaction and writes
// a paired OUT ledger entry per consumed batch. Zero-quantity lines are
// rejected; callers drop empty lines before checkout.
func (s *Seller) Sell(ctx context.Context, req Request) (*Result, error) {
	if id.IsNil(req.LocationID) {
		return nil, apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	if len(req.Lines) == 0 {
		return nil, apperror.NewValidation("sale requires at least one line")
	}
	for i, line := range req.Lines {
		if id.IsNil(line.ProductID) {
			return nil, apperror.NewValidation("line product is required").WithDetail("line", i+1)
		}
		if !line.Quantity.IsPositive() {
			return nil, apperror.NewValidation("line quantity must be positive").WithDetail("line", i+1)
		}
	}

	reference := req.Reference
	if reference == "" {
		var err error
		reference, err = s.numbers.Next(ctx, "SALE")
		if err != nil {
			return nil, fmt.Errorf("generate sale reference: %w", err)
		}
	}

	result := &Result{
		Reference:   reference,
		LocationID:  req.LocationID,
		CostOfGoods: types.ZeroMoney(),
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, line := range req.Lines {
			lineResult, err := s.sellLine(ctx, req.LocationID, line, reference)
			if err != nil {
				return err
			}
			result.Lines = append(result.Lines, lineResult)
			result.CostOfGoods = result.CostOfGoods.Add(lineResult.CostOfGoods)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, line := range req.Lines {
		s.cache.Invalidate(ctx, req.LocationID, line.ProductID)
	}
	logger.Info(ctx, "sale committed",
		"reference", reference,
		"location_id", req.LocationID,
		"lines", len(result.Lines),
		"cogs", result.CostOfGoods.String(),
	)
	return result, nil
}

func (s *Seller) sellLine(ctx context.Context, locationID id.ID, line LineInput, reference string) (LineResult, error) {
	candidates, err := s.batches.ListAvailableForUpdate(ctx, line.ProductID, locationID, batch.OrderFIFO)
	if err != nil {
		return LineResult{}, fmt.Errorf("list batches: %w", err)
	}

	plan, err := allocator.Build(line.ProductID, locationID, batch.OrderFIFO, candidates, line.Quantity)
	if err != nil {
		return LineResult{}, err
	}

	for _, alloc := range plan.Allocations {
		remaining, err := s.batches.Decrement(ctx, alloc.BatchID, alloc.Quantity)
		if err != nil {
			return LineResult{}, err
		}
		if _, err := s.ledger.Record(ctx, ledger.NewEntry(
			line.ProductID, alloc.BatchID, locationID,
			ledger.MovementOut, alloc.Quantity, remaining, reference,
		)); err != nil {
			return LineResult{}, err
		}
	}

	return LineResult{
		ProductID:   line.ProductID,
		Quantity:    line.Quantity,
		Allocations: plan.Allocations,
		CostOfGoods: plan.TotalCost(),
	}, nil
}

// Preview builds a consumption plan without moving stock: the allocation a
// sale or transfer would make right now, in the requested ordering. Runs in
// a read-only transaction when one is available.
func (s *Seller) Preview(ctx context.Context, productID, locationID id.ID, qty types.Quantity, order batch.Ordering) (*allocator.Plan, error) {
	var plan allocator.Plan

	build := func(ctx context.Context) error {
		candidates, err := s.batches.ListAvailable(ctx, productID, locationID, order)
		if err != nil {
			return fmt.Errorf("list batches: %w", err)
		}
		plan, err = allocator.Build(productID, locationID, order, candidates, qty)
		return err
	}

	var err error
	if s.readOnly != nil {
		err = s.readOnly.ReadOnly(ctx, build)
	} else {
		err = build(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
