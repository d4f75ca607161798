package transfer

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

// Auditor records document lifecycle changes (who/what/when) alongside the
// quantity trail the ledger already provides. Optional.
type Auditor interface {
	Record(ctx context.Context, entityType string, entityID id.ID, action string, payload any) error
}

// Coordinator orchestrates transfers: allocates against source batches,
// writes the ledger trail and creates or merges destination batches that
// carry the source batch identity forward.
type Coordinator struct {
	transfers Repository
	batches   batch.Store
	ledger    *ledger.Service
	txManager tx.Manager
	numbers   *numerator.Service
	cache     batch.AvailabilityCache
	audit     Auditor
}

// NewCoordinator creates a transfer coordinator. cache and audit may be nil.
func NewCoordinator(
	transfers Repository,
	batches batch.Store,
	ledgerSvc *ledger.Service,
	txManager tx.Manager,
	numbers *numerator.Service,
	cache batch.AvailabilityCache,
	audit Auditor,
) *Coordinator {
	if cache == nil {
		cache = batch.NopCache{}
	}
	return &Coordinator{
		transfers: transfers,
		batches:   batches,
		ledger:    ledgerSvc,
		txManager: txManager,
		numbers:   numbers,
		cache:     cache,
		audit:     audit,
	}
}

// CreateRequest describes a new transfer.
type CreateRequest struct {
	SourceLocationID      id.ID       `json:"sourceLocationId"`
	DestinationLocationID id.ID       `json:"destinationLocationId"`
	Lines                 []LineInput `json:"lines"`
}

// LineInput is one requested product line.
type LineInput struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
}

// Create persists a pending transfer with a minted reference.
// No stock moves until Execute.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*Header, error) {
	reference, err := c.numbers.Next(ctx, "TRF")
	if err != nil {
		return nil, fmt.Errorf("generate transfer reference: %w", err)
	}

	header := NewHeader(reference, req.SourceLocationID, req.DestinationLocationID)
	for _, line := range req.Lines {
		header.AddLine(line.ProductID, line.Quantity)
	}
	if err := header.Validate(ctx); err != nil {
		return nil, err
	}

	err = c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := c.transfers.Create(ctx, header); err != nil {
			return fmt.Errorf("create transfer: %w", err)
		}
		return c.recordAudit(ctx, header.ID, "create", header)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transfer created",
		"transfer_id", header.ID,
		"reference", header.Reference,
		"lines", len(header.Lines),
	)
	return header, nil
}

// Approve validates stock availability for every line and moves the header
// to approved. Nothing is locked or moved; quantities can still drain before
// execution, in which case Execute fails and the header falls back to its
// pre-execution state.
func (c *Coordinator) Approve(ctx context.Context, transferID id.ID) (*Header, error) {
	var header *Header
	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		header, err = c.transfers.GetByID(ctx, transferID)
		if err != nil {
			return err
		}
		if header.Status != StatusPending {
			return apperror.NewBusinessRule(apperror.CodeTransferNotPending, "only pending transfers can be approved").
				WithDetail("status", string(header.Status))
		}

		for _, line := range header.Lines {
			available, err := c.batches.TotalAvailable(ctx, line.ProductID, &header.SourceLocationID)
			if err != nil {
				return fmt.Errorf("line %d: total available: %w", line.LineNo, err)
			}
			if available < line.Quantity {
				return apperror.NewInsufficientStock(
					line.ProductID.String(), header.SourceLocationID.String(),
					line.Quantity, available,
				).WithDetail("line_no", line.LineNo)
			}
		}

		if err := c.transfers.UpdateStatus(ctx, transferID, StatusPending, StatusApproved); err != nil {
			return err
		}
		header.Status = StatusApproved
		return c.recordAudit(ctx, header.ID, "approve", header)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transfer approved", "transfer_id", transferID, "reference", header.Reference)
	return header, nil
}

// ExecuteOptions controls execution behavior.
type ExecuteOptions struct {
	// Partial commits each line in its own transaction; completed lines
	// stand when a later line fails. Default is all-lines-or-nothing.
	Partial bool

	// Ordering selects the consumption order for every line of this
	// execution (one ordering per allocation call, never mixed).
	Ordering batch.Ordering
}

// LineResult reports the batch-level allocations that satisfied one line.
type LineResult struct {
	LineNo      int                    `json:"lineNo"`
	ProductID   id.ID                  `json:"productId"`
	Quantity    types.Quantity         `json:"quantity"`
	Allocations []allocator.Allocation `json:"allocations"`
}

// Result reports a completed (or partially completed) execution.
type Result struct {
	TransferID id.ID        `json:"transferId"`
	Reference  string       `json:"reference"`
	Status     Status       `json:"status"`
	Lines      []LineResult `json:"lines"`
}

// Execute moves the stock for every line of the transfer.
//
// Default mode runs the whole header in one transaction: any line failure
// rolls back every movement and leaves the header in its prior status.
// Partial mode commits line by line; the returned error is a
// TransferPartialFailure naming the failed lines while committed lines stand.
func (c *Coordinator) Execute(ctx context.Context, transferID id.ID, opts ExecuteOptions) (*Result, error) {
	if opts.Partial {
		return c.executePartial(ctx, transferID, opts.Ordering)
	}
	return c.executeAtomic(ctx, transferID, opts.Ordering)
}

func (c *Coordinator) executeAtomic(ctx context.Context, transferID id.ID, order batch.Ordering) (*Result, error) {
	var result *Result
	var header *Header

	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		header, err = c.transfers.GetByID(ctx, transferID)
		if err != nil {
			return err
		}
		if err := header.CanExecute(); err != nil {
			return err
		}

		result = &Result{TransferID: header.ID, Reference: header.Reference}
		for _, line := range header.Lines {
			lineResult, err := c.executeLine(ctx, header, line, order)
			if err != nil {
				return wrapLineError(err, line)
			}
			result.Lines = append(result.Lines, lineResult)
		}

		if err := c.transfers.UpdateStatus(ctx, transferID, header.Status, StatusCompleted); err != nil {
			return err
		}
		result.Status = StatusCompleted
		return c.recordAudit(ctx, header.ID, "execute", result)
	})
	if err != nil {
		return nil, err
	}

	c.invalidateLines(ctx, header)
	logger.Info(ctx, "transfer completed",
		"transfer_id", transferID,
		"reference", header.Reference,
		"lines", len(result.Lines),
	)
	return result, nil
}

func (c *Coordinator) executePartial(ctx context.Context, transferID id.ID, order batch.Ordering) (*Result, error) {
	header, err := c.transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if err := header.CanExecute(); err != nil {
		return nil, err
	}

	result := &Result{TransferID: header.ID, Reference: header.Reference, Status: header.Status}
	failed := make(map[string]string)

	for _, line := range header.Lines {
		line := line
		var lineResult LineResult
		err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			lineResult, err = c.executeLine(ctx, header, line, order)
			return err
		})
		if err != nil {
			failed[fmt.Sprintf("%d", line.LineNo)] = err.Error()
			logger.Warn(ctx, "transfer line failed",
				"transfer_id", transferID,
				"line_no", line.LineNo,
				"product_id", line.ProductID,
				"error", err,
			)
			continue
		}
		result.Lines = append(result.Lines, lineResult)
		c.cache.Invalidate(ctx, header.SourceLocationID, line.ProductID)
		c.cache.Invalidate(ctx, header.DestinationLocationID, line.ProductID)
	}

	if len(failed) > 0 {
		// Header stays where it was; committed lines stand.
		return result, apperror.NewTransferPartialFailure(header.Reference, failed)
	}

	err = c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := c.transfers.UpdateStatus(ctx, transferID, header.Status, StatusCompleted); err != nil {
			return err
		}
		return c.recordAudit(ctx, header.ID, "execute", result)
	})
	if err != nil {
		return nil, err
	}
	result.Status = StatusCompleted

	logger.Info(ctx, "transfer completed",
		"transfer_id", transferID,
		"reference", header.Reference,
		"lines", len(result.Lines),
	)
	return result, nil
}

// executeLine allocates one line against the source location and carries
// each consumed batch's identity to the destination. Must run inside a
// transaction: the availability read takes row locks that the decrements
// rely on.
func (c *Coordinator) executeLine(ctx context.Context, header *Header, line Detail, order batch.Ordering) (LineResult, error) {
	candidates, err := c.batches.ListAvailableForUpdate(ctx, line.ProductID, header.SourceLocationID, order)
	if err != nil {
		return LineResult{}, fmt.Errorf("list source batches: %w", err)
	}

	plan, err := allocator.Build(line.ProductID, header.SourceLocationID, order, candidates, line.Quantity)
	if err != nil {
		return LineResult{}, err
	}

	for _, alloc := range plan.Allocations {
		remaining, err := c.batches.Decrement(ctx, alloc.BatchID, alloc.Quantity)
		if err != nil {
			return LineResult{}, err
		}
		if _, err := c.ledger.Record(ctx, ledger.NewEntry(
			line.ProductID, alloc.BatchID, header.SourceLocationID,
			ledger.MovementTransferOut, alloc.Quantity, remaining, header.Reference,
		)); err != nil {
			return LineResult{}, err
		}

		destBatchID, destRemaining, err := c.arriveAtDestination(ctx, header, line.ProductID, alloc)
		if err != nil {
			return LineResult{}, err
		}
		if _, err := c.ledger.Record(ctx, ledger.NewEntry(
			line.ProductID, destBatchID, header.DestinationLocationID,
			ledger.MovementTransferIn, alloc.Quantity, destRemaining, header.Reference,
		)); err != nil {
			return LineResult{}, err
		}
	}

	return LineResult{
		LineNo:      line.LineNo,
		ProductID:   line.ProductID,
		Quantity:    line.Quantity,
		Allocations: plan.Allocations,
	}, nil
}

// arriveAtDestination merges qtyTaken into the destination batch with the
// exact same identity, or creates one carrying the identity over. The new
// batch's entry date is its arrival time: FIFO ranks by receipt order at
// each location.
func (c *Coordinator) arriveAtDestination(ctx context.Context, header *Header, productID id.ID, alloc allocator.Allocation) (id.ID, types.Quantity, error) {
	existing, err := c.batches.FindMatching(ctx, productID, header.DestinationLocationID, alloc.Identity)
	if err != nil && !apperror.IsNotFound(err) {
		return id.Nil(), 0, fmt.Errorf("find destination batch: %w", err)
	}

	if existing != nil {
		remaining, err := c.batches.Increment(ctx, existing.ID, alloc.Quantity)
		if err != nil {
			return id.Nil(), 0, err
		}
		return existing.ID, remaining, nil
	}

	arrived := batch.New(
		productID, header.DestinationLocationID,
		alloc.Identity.BatchReference, alloc.Quantity,
		alloc.Identity.UnitCost, alloc.Identity.SellingPrice, alloc.Identity.ExpirationDate,
	)
	if err := c.batches.Create(ctx, arrived); err != nil {
		return id.Nil(), 0, err
	}
	return arrived.ID, arrived.AvailableQuantity, nil
}

// Get returns a transfer with its lines.
func (c *Coordinator) Get(ctx context.Context, transferID id.ID) (*Header, error) {
	return c.transfers.GetByID(ctx, transferID)
}

// List returns transfers matching the filter.
func (c *Coordinator) List(ctx context.Context, filter ListFilter) ([]Header, error) {
	return c.transfers.List(ctx, filter)
}

func (c *Coordinator) invalidateLines(ctx context.Context, header *Header) {
	for _, line := range header.Lines {
		c.cache.Invalidate(ctx, header.SourceLocationID, line.ProductID)
		c.cache.Invalidate(ctx, header.DestinationLocationID, line.ProductID)
	}
}

func (c *Coordinator) recordAudit(ctx context.Context, transferID id.ID, action string, payload any) error {
	if c.audit == nil {
		return nil
	}
	if err := c.audit.Record(ctx, "Transfer", transferID, action, payload); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func wrapLineError(err error, line Detail) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.WithDetail("line_no", line.LineNo).WithDetail("product_id", line.ProductID.String())
	}
	return fmt.Errorf("line %d (product %s): %w", line.LineNo, line.ProductID, err)
}
