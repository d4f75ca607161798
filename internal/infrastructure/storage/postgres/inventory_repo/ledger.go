package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotkeeper/internal/core/id"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/internal/infrastructure/storage/postgres"
)

const movementsTable = "inv_stock_movements"

var movementColumns = []string{
	"id", "product_id", "batch_id", "location_id", "movement_type",
	"quantity", "reference_no", "remaining_after", "occurred_at",
}

// LedgerRepo implements ledger.Repository. Append-only: inv_stock_movements
// has no UPDATE or DELETE path in this codebase.
type LedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a new movement ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LedgerRepo) Append(ctx context.Context, entry *ledger.Entry) error {
	const sql = `
		INSERT INTO inv_stock_movements (
			product_id, batch_id, location_id, movement_type,
			quantity, reference_no, remaining_after, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	querier := r.txManager.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql,
		entry.ProductID, entry.BatchID, entry.LocationID, entry.Type,
		entry.Quantity.Int64Scaled(), entry.ReferenceNo,
		entry.RemainingAfter.Int64Scaled(), entry.OccurredAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append movement: %w", err)
	}

	return nil
}

// AppendAll uses COPY when inside a transaction, falling back to a
// multi-row INSERT otherwise. Generated ids are not filled on this path.
func (r *LedgerRepo) AppendAll(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	columns := []string{
		"product_id", "batch_id", "location_id", "movement_type",
		"quantity", "reference_no", "remaining_after", "occurred_at",
	}

	if r.txManager.InTx(ctx) {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []any{
				e.ProductID, e.BatchID, e.LocationID, string(e.Type),
				e.Quantity.Int64Scaled(), e.ReferenceNo,
				e.RemainingAfter.Int64Scaled(), e.OccurredAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, movementsTable, columns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(movementsTable).Columns(columns...)
	for _, e := range entries {
		q = q.Values(
			e.ProductID, e.BatchID, e.LocationID, e.Type,
			e.Quantity.Int64Scaled(), e.ReferenceNo,
			e.RemainingAfter.Int64Scaled(), e.OccurredAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}

	return nil
}

func (r *LedgerRepo) ListByBatch(ctx context.Context, batchID id.ID) ([]ledger.Entry, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"batch_id": batchID}).
		OrderBy("id ASC")

	return r.selectEntries(ctx, q)
}

func (r *LedgerRepo) ListByReference(ctx context.Context, referenceNo string) ([]ledger.Entry, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"reference_no": referenceNo}).
		OrderBy("id ASC")

	return r.selectEntries(ctx, q)
}

func (r *LedgerRepo) History(ctx context.Context, productID id.ID, filter ledger.HistoryFilter) ([]ledger.Entry, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productID})

	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.BatchID != nil {
		q = q.Where(squirrel.Eq{"batch_id": *filter.BatchID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.Type})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"occurred_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"occurred_at": *filter.ToDate})
	}

	q = q.OrderBy("occurred_at DESC", "id DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	return r.selectEntries(ctx, q)
}

func (r *LedgerRepo) selectEntries(ctx context.Context, q squirrel.SelectBuilder) ([]ledger.Entry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []ledger.Entry
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}

	return entries, nil
}
