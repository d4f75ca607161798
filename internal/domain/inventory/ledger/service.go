package ledger

import (
	"context"
	"fmt"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
	"lotkeeper/pkg/logger"
)

// Service provides business operations for the movement ledger.
// Recording runs inside the caller's transaction so ledger and batch
// state can never diverge.
type Service struct {
	repo Repository
}

// NewService creates a new ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record validates and appends one entry. remainingAfter must come from the
// result of the paired batch mutation executed in the same transaction.
func (s *Service) Record(ctx context.Context, entry Entry) (Entry, error) {
	if !entry.Type.Valid() {
		return Entry{}, apperror.NewValidation(fmt.Sprintf("unknown movement type %q", entry.Type))
	}
	if entry.Quantity.IsZero() {
		return Entry{}, apperror.NewValidation("movement quantity must not be zero")
	}
	if entry.Type != MovementAdjustment && !entry.Quantity.IsPositive() {
		return Entry{}, apperror.NewValidation(fmt.Sprintf("%s movement quantity must be positive", entry.Type))
	}
	if entry.RemainingAfter.IsNegative() {
		return Entry{}, apperror.NewValidation("remaining_after must not be negative")
	}
	if id.IsNil(entry.BatchID) {
		return Entry{}, apperror.NewValidation("batch_id is required")
	}
	if entry.ReferenceNo == "" {
		return Entry{}, apperror.NewValidation("reference_no is required")
	}

	if err := s.repo.Append(ctx, &entry); err != nil {
		return Entry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// RecordAll appends a set of pre-built entries in one round trip.
func (s *Service) RecordAll(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		e := &entries[i]
		if !e.Type.Valid() {
			return apperror.NewValidation(fmt.Sprintf("entry %d: unknown movement type %q", i, e.Type))
		}
		if e.Type != MovementAdjustment && !e.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("entry %d: quantity must be positive", i))
		}
	}
	if err := s.repo.AppendAll(ctx, entries); err != nil {
		return fmt.Errorf("append ledger entries: %w", err)
	}
	return nil
}

// Reconciliation is the result of replaying a batch's ledger.
type Reconciliation struct {
	BatchID    id.ID          `json:"batchId"`
	Entries    int            `json:"entries"`
	ReplaySum  types.Quantity `json:"replaySum"`
	Current    types.Quantity `json:"current"`
	Consistent bool           `json:"consistent"`
}

// ReplayBatch sums signed quantities for a batch in entry order and compares
// against the batch's current available quantity (supplied by the caller from
// the batch store, ideally in the same read transaction).
func (s *Service) ReplayBatch(ctx context.Context, batchID id.ID, current types.Quantity) (Reconciliation, error) {
	entries, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("list entries: %w", err)
	}

	var sum types.Quantity
	for i := range entries {
		sum += entries[i].SignedQuantity()
	}

	rec := Reconciliation{
		BatchID:    batchID,
		Entries:    len(entries),
		ReplaySum:  sum,
		Current:    current,
		Consistent: sum == current,
	}

	if !rec.Consistent {
		logger.Warn(ctx, "ledger replay mismatch",
			"batch_id", batchID,
			"replay_sum", sum.String(),
			"current", current.String(),
		)
	}

	return rec, nil
}

// History returns ledger entries for a product, newest first.
func (s *Service) History(ctx context.Context, productID id.ID, filter HistoryFilter) ([]Entry, error) {
	return s.repo.History(ctx, productID, filter)
}

// ByReference returns all entries for a document reference in append order.
func (s *Service) ByReference(ctx context.Context, referenceNo string) ([]Entry, error) {
	return s.repo.ListByReference(ctx, referenceNo)
}
