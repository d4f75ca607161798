package batch

import (
	"context"
	"fmt"
	"time"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/tx"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/pkg/logger"
)

// AvailabilityCache holds advisory availability snapshots per location,
// invalidated after every batch mutation. The cache is advisory: allocation
// always reads the database under lock, so cache failures are logged, never
// fatal.
type AvailabilityCache interface {
	GetTotal(ctx context.Context, locationID, productID id.ID) (types.Quantity, bool)
	SetTotal(ctx context.Context, locationID, productID id.ID, total types.Quantity)
	Invalidate(ctx context.Context, locationID, productID id.ID)
}

// NopCache is an AvailabilityCache that never hits.
type NopCache struct{}

func (NopCache) GetTotal(context.Context, id.ID, id.ID) (types.Quantity, bool) { return 0, false }
func (NopCache) SetTotal(context.Context, id.ID, id.ID, types.Quantity)        {}
func (NopCache) Invalidate(context.Context, id.ID, id.ID)                      {}

// Service provides receiving and adjustment operations on the batch store,
// plus availability queries for POS and reporting callers.
type Service struct {
	store     Store
	ledger    *ledger.Service
	txManager tx.Manager
	cache     AvailabilityCache
}

// NewService creates a new batch service.
func NewService(store Store, ledgerSvc *ledger.Service, txManager tx.Manager, cache AvailabilityCache) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		store:     store,
		ledger:    ledgerSvc,
		txManager: txManager,
		cache:     cache,
	}
}

// ReceiveRequest describes one lot arriving from a receiving document.
type ReceiveRequest struct {
	ProductID      id.ID          `json:"productId"`
	LocationID     id.ID          `json:"locationId"`
	BatchReference string         `json:"batchReference"`
	Quantity       types.Quantity `json:"quantity"`
	UnitCost       types.Money    `json:"unitCost"`
	SellingPrice   types.Money    `json:"sellingPrice"`
	ExpirationDate *time.Time     `json:"expirationDate,omitempty"`

	// ReferenceNo is the receiving document number for the ledger trail.
	ReferenceNo string `json:"referenceNo"`
}

// Receive records arriving stock: tops up the batch with the exact same
// identity when one exists, otherwise creates a new batch row. Writes the
// paired IN ledger entry in the same transaction.
func (s *Service) Receive(ctx context.Context, req ReceiveRequest) (*Batch, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation("received quantity must be positive").
			WithDetail("quantity", req.Quantity.String())
	}

	candidate := New(req.ProductID, req.LocationID, req.BatchReference, req.Quantity, req.UnitCost, req.SellingPrice, req.ExpirationDate)
	if err := candidate.Validate(ctx); err != nil {
		return nil, err
	}

	var received *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.store.FindMatching(ctx, req.ProductID, req.LocationID, candidate.Identity())
		if err != nil && !apperror.IsNotFound(err) {
			return fmt.Errorf("find matching batch: %w", err)
		}

		var remaining types.Quantity
		if existing != nil {
			remaining, err = s.store.Increment(ctx, existing.ID, req.Quantity)
			if err != nil {
				return fmt.Errorf("increment batch: %w", err)
			}
			existing.AvailableQuantity = remaining
			received = existing
		} else {
			if err := s.store.Create(ctx, candidate); err != nil {
				return err
			}
			remaining = candidate.AvailableQuantity
			received = candidate
		}

		_, err = s.ledger.Record(ctx, ledger.NewEntry(
			req.ProductID, received.ID, req.LocationID,
			ledger.MovementIn, req.Quantity, remaining, req.ReferenceNo,
		))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, req.LocationID, req.ProductID)
	logger.Info(ctx, "stock received",
		"product_id", req.ProductID,
		"location_id", req.LocationID,
		"batch_id", received.ID,
		"batch_reference", received.BatchReference,
		"quantity", req.Quantity.String(),
	)
	return received, nil
}

// AdjustRequest corrects a single batch's quantity after a stock take.
// Quantity is a signed delta.
type AdjustRequest struct {
	BatchID     id.ID          `json:"batchId"`
	Quantity    types.Quantity `json:"quantity"`
	ReferenceNo string         `json:"referenceNo"`
	Reason      string         `json:"reason"`
}

// Adjust applies a signed correction to one batch and records the paired
// ADJUSTMENT ledger entry. Negative deltas fail with
// InsufficientBatchQuantity rather than driving the batch below zero.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (ledger.Entry, error) {
	if req.Quantity.IsZero() {
		return ledger.Entry{}, apperror.NewValidation("adjustment quantity must not be zero")
	}

	var entry ledger.Entry
	var b Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.store.GetByID(ctx, req.BatchID)
		if err != nil {
			return err
		}

		var remaining types.Quantity
		if req.Quantity.IsPositive() {
			remaining, err = s.store.Increment(ctx, req.BatchID, req.Quantity)
		} else {
			remaining, err = s.store.Decrement(ctx, req.BatchID, req.Quantity.Abs())
		}
		if err != nil {
			return err
		}

		entry, err = s.ledger.Record(ctx, ledger.NewEntry(
			b.ProductID, b.ID, b.LocationID,
			ledger.MovementAdjustment, req.Quantity, remaining, req.ReferenceNo,
		))
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	s.cache.Invalidate(ctx, b.LocationID, b.ProductID)
	logger.Info(ctx, "batch adjusted",
		"batch_id", req.BatchID,
		"delta", req.Quantity.String(),
		"reference_no", req.ReferenceNo,
		"reason", req.Reason,
	)
	return entry, nil
}

// Availability returns the derived total quantity for a product, optionally
// scoped to a location. Product quantity is never stored independently.
// Location-scoped reads go through the cache; unscoped totals span locations
// and always hit the store.
func (s *Service) Availability(ctx context.Context, productID id.ID, locationID *id.ID) (types.Quantity, error) {
	if locationID == nil {
		return s.store.TotalAvailable(ctx, productID, nil)
	}
	if total, ok := s.cache.GetTotal(ctx, *locationID, productID); ok {
		return total, nil
	}
	total, err := s.store.TotalAvailable(ctx, productID, locationID)
	if err != nil {
		return 0, err
	}
	s.cache.SetTotal(ctx, *locationID, productID, total)
	return total, nil
}

// ListAvailable exposes live batches in the requested ordering
// (transfer-eligibility lists for order pickers).
func (s *Service) ListAvailable(ctx context.Context, productID, locationID id.ID, order Ordering) ([]Batch, error) {
	return s.store.ListAvailable(ctx, productID, locationID, order)
}

// ListExpiring returns live batches at the location expiring within the
// window, soonest first.
func (s *Service) ListExpiring(ctx context.Context, locationID id.ID, window time.Duration) ([]Batch, error) {
	return s.store.ListExpiringBefore(ctx, locationID, time.Now().Add(window))
}

// Reconcile replays a batch's ledger against its current quantity.
func (s *Service) Reconcile(ctx context.Context, batchID id.ID) (ledger.Reconciliation, error) {
	b, err := s.store.GetByID(ctx, batchID)
	if err != nil {
		return ledger.Reconciliation{}, err
	}
	return s.ledger.ReplayBatch(ctx, batchID, b.AvailableQuantity)
}
