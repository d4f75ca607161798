// Package inventory_repo provides PostgreSQL implementations for the
// inventory repositories: batches, the movement ledger, and transfers.
package inventory_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/infrastructure/storage/postgres"
)

const batchesTable = "inv_batches"

var batchColumns = []string{
	"id", "product_id", "location_id", "batch_reference",
	"available_quantity", "unit_cost", "selling_price", "expiration_date",
	"entry_date", "entry_seq", "created_at", "updated_at",
}

// BatchRepo implements batch.Store.
type BatchRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ batch.Store = (*BatchRepo)(nil)

// NewBatchRepo creates a new batch repository.
func NewBatchRepo(txManager *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (batch.Batch, error) {
	var b batch.Batch

	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"id": batchID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return b, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return b, apperror.NewNotFound("batch", batchID)
		}
		return b, fmt.Errorf("get batch: %w", err)
	}

	return b, nil
}

func (r *BatchRepo) ListAvailable(ctx context.Context, productID, locationID id.ID, order batch.Ordering) ([]batch.Batch, error) {
	return r.listAvailable(ctx, productID, locationID, order, false)
}

func (r *BatchRepo) ListAvailableForUpdate(ctx context.Context, productID, locationID id.ID, order batch.Ordering) ([]batch.Batch, error) {
	if !r.txManager.InTx(ctx) {
		return nil, fmt.Errorf("ListAvailableForUpdate requires transaction context")
	}
	return r.listAvailable(ctx, productID, locationID, order, true)
}

func (r *BatchRepo) listAvailable(ctx context.Context, productID, locationID id.ID, order batch.Ordering, forUpdate bool) ([]batch.Batch, error) {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"product_id":  productID,
			"location_id": locationID,
		}).
		Where(squirrel.Gt{"available_quantity": int64(0)}).
		OrderBy(orderClauses(order)...)

	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []batch.Batch
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}

	return batches, nil
}

// orderClauses maps an allocation ordering to SQL. FIFO ranks strictly by
// entry; expiry-first puts nearest expiration ahead with entry order as the
// tiebreak (batches without expiration sort last).
func orderClauses(order batch.Ordering) []string {
	if order == batch.OrderExpiryFirst {
		return []string{"expiration_date ASC NULLS LAST", "entry_date ASC", "entry_seq ASC"}
	}
	return []string{"entry_date ASC", "entry_seq ASC"}
}

// Decrement re-checks the balance in the UPDATE predicate, so a stale read
// can never drive a batch negative.
func (r *BatchRepo) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	const sql = `
		UPDATE inv_batches
		SET available_quantity = available_quantity - $2,
		    updated_at = now()
		WHERE id = $1 AND available_quantity >= $2
		RETURNING available_quantity
	`

	querier := r.txManager.GetQuerier(ctx)

	var remainingScaled int64
	err := querier.QueryRow(ctx, sql, batchID, qty.Int64Scaled()).Scan(&remainingScaled)
	if err == nil {
		return types.NewQuantityFromInt64Scaled(remainingScaled), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("decrement batch: %w", err)
	}

	// No row matched: missing batch or not enough left. Distinguish for
	// the caller.
	b, getErr := r.GetByID(ctx, batchID)
	if getErr != nil {
		return 0, getErr
	}
	return 0, apperror.NewInsufficientBatchQuantity(batchID.String(), qty, b.AvailableQuantity)
}

func (r *BatchRepo) Increment(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	const sql = `
		UPDATE inv_batches
		SET available_quantity = available_quantity + $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING available_quantity
	`

	querier := r.txManager.GetQuerier(ctx)

	var remainingScaled int64
	err := querier.QueryRow(ctx, sql, batchID, qty.Int64Scaled()).Scan(&remainingScaled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewNotFound("batch", batchID)
		}
		return 0, fmt.Errorf("increment batch: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(remainingScaled), nil
}

// Create inserts a batch; entry_seq comes from the table's sequence so
// same-instant entries still get a strict FIFO order.
func (r *BatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	const sql = `
		INSERT INTO inv_batches (
			id, product_id, location_id, batch_reference,
			available_quantity, unit_cost, selling_price, expiration_date,
			entry_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING entry_seq
	`

	querier := r.txManager.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql,
		b.ID, b.ProductID, b.LocationID, b.BatchReference,
		b.AvailableQuantity.Int64Scaled(), b.UnitCost, b.SellingPrice, b.ExpirationDate,
		b.EntryDate, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.EntrySeq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return r.classifyDuplicate(ctx, b)
		}
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

// classifyDuplicate tells a re-received lot apart from a genuine conflict:
// the same reference with different cost, price, or expiration is a
// conflicting lot; an exact identity match means the caller should top up
// the existing row instead of inserting.
func (r *BatchRepo) classifyDuplicate(ctx context.Context, b *batch.Batch) error {
	existing, err := r.getByReference(ctx, b.ProductID, b.LocationID, b.BatchReference)
	if err != nil {
		return err
	}
	if existing.Identity().Matches(b.Identity()) {
		return apperror.NewDuplicate("batch", "identity", b.BatchReference)
	}
	return apperror.NewDuplicateLot(b.ProductID.String(), b.LocationID.String(), b.BatchReference)
}

func (r *BatchRepo) getByReference(ctx context.Context, productID, locationID id.ID, reference string) (batch.Batch, error) {
	var b batch.Batch

	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"product_id":      productID,
			"location_id":     locationID,
			"batch_reference": reference,
		}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return b, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return b, apperror.NewNotFound("batch", reference)
		}
		return b, fmt.Errorf("get batch by reference: %w", err)
	}

	return b, nil
}

func (r *BatchRepo) FindMatching(ctx context.Context, productID, locationID id.ID, identity batch.Identity) (*batch.Batch, error) {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"product_id":      productID,
			"location_id":     locationID,
			"batch_reference": identity.BatchReference,
		}).
		Where(squirrel.Expr("unit_cost = ?", identity.UnitCost)).
		Where(squirrel.Expr("selling_price = ?", identity.SellingPrice)).
		Where(squirrel.Expr("expiration_date IS NOT DISTINCT FROM ?", identity.ExpirationDate)).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b batch.Batch
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &b, sql, args...); err != nil {
		// No match is a normal outcome here: the caller mints a new
		// batch. Nil, not NotFound, per the Store contract.
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find matching batch: %w", err)
	}

	return &b, nil
}

func (r *BatchRepo) TotalAvailable(ctx context.Context, productID id.ID, locationID *id.ID) (types.Quantity, error) {
	q := r.builder.Select("COALESCE(SUM(available_quantity), 0)").
		From(batchesTable).
		Where(squirrel.Eq{"product_id": productID})

	if locationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *locationID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var totalScaled int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&totalScaled); err != nil {
		return 0, fmt.Errorf("sum availability: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(totalScaled), nil
}

func (r *BatchRepo) ListExpiringBefore(ctx context.Context, locationID id.ID, cutoff time.Time) ([]batch.Batch, error) {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"location_id": locationID}).
		Where(squirrel.Gt{"available_quantity": int64(0)}).
		Where(squirrel.NotEq{"expiration_date": nil}).
		Where(squirrel.Lt{"expiration_date": cutoff}).
		OrderBy("expiration_date ASC", "entry_date ASC", "entry_seq ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []batch.Batch
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select expiring batches: %w", err)
	}

	return batches, nil
}
