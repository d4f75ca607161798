package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/domain/inventory/transfer"
	"lotkeeper/internal/infrastructure/storage/postgres"
)

const (
	transfersTable     = "inv_transfers"
	transferLinesTable = "inv_transfer_lines"
)

var transferColumns = []string{
	"id", "reference", "source_location_id", "destination_location_id",
	"status", "created_at", "updated_at", "completed_at",
}

// TransferRepo implements transfer.Repository.
type TransferRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ transfer.Repository = (*TransferRepo)(nil)

// NewTransferRepo creates a new transfer repository.
func NewTransferRepo(txManager *postgres.TxManager) *TransferRepo {
	return &TransferRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create persists the header and its lines. Callers wrap this in a
// transaction; the insert itself does not open one.
func (r *TransferRepo) Create(ctx context.Context, header *transfer.Header) error {
	querier := r.txManager.GetQuerier(ctx)

	headerSQL, headerArgs, err := r.builder.Insert(transfersTable).
		Columns("id", "reference", "source_location_id", "destination_location_id",
			"status", "created_at", "updated_at").
		Values(header.ID, header.Reference, header.SourceLocationID, header.DestinationLocationID,
			header.Status, header.CreatedAt, header.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build header insert: %w", err)
	}
	if _, err := querier.Exec(ctx, headerSQL, headerArgs...); err != nil {
		return fmt.Errorf("insert transfer header: %w", err)
	}

	linesQuery := r.builder.Insert(transferLinesTable).
		Columns("id", "transfer_id", "line_no", "product_id", "quantity")
	for _, line := range header.Lines {
		linesQuery = linesQuery.Values(
			line.ID, line.TransferID, line.LineNo, line.ProductID,
			line.Quantity.Int64Scaled(),
		)
	}

	linesSQL, linesArgs, err := linesQuery.ToSql()
	if err != nil {
		return fmt.Errorf("build lines insert: %w", err)
	}
	if _, err := querier.Exec(ctx, linesSQL, linesArgs...); err != nil {
		return fmt.Errorf("insert transfer lines: %w", err)
	}

	return nil
}

func (r *TransferRepo) GetByID(ctx context.Context, transferID id.ID) (*transfer.Header, error) {
	return r.getOne(ctx, squirrel.Eq{"id": transferID}, transferID)
}

func (r *TransferRepo) GetByReference(ctx context.Context, reference string) (*transfer.Header, error) {
	return r.getOne(ctx, squirrel.Eq{"reference": reference}, reference)
}

func (r *TransferRepo) getOne(ctx context.Context, where squirrel.Eq, key any) (*transfer.Header, error) {
	sql, args, err := r.builder.Select(transferColumns...).
		From(transfersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var header transfer.Header
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &header, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transfer", key)
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}

	if err := r.loadLines(ctx, &header); err != nil {
		return nil, err
	}
	return &header, nil
}

func (r *TransferRepo) loadLines(ctx context.Context, header *transfer.Header) error {
	sql, args, err := r.builder.Select("id", "transfer_id", "line_no", "product_id", "quantity").
		From(transferLinesTable).
		Where(squirrel.Eq{"transfer_id": header.ID}).
		OrderBy("line_no ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &header.Lines, sql, args...); err != nil {
		return fmt.Errorf("select transfer lines: %w", err)
	}
	return nil
}

// UpdateStatus is conditional on the current status, so two workers racing
// to execute the same transfer cannot both win.
func (r *TransferRepo) UpdateStatus(ctx context.Context, transferID id.ID, from, to transfer.Status) error {
	q := r.builder.Update(transfersTable).
		Set("status", to).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": transferID, "status": from})

	if to == transfer.StatusCompleted {
		q = q.Set("completed_at", squirrel.Expr("now()"))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("transfer", transferID)
	}

	return nil
}

func (r *TransferRepo) List(ctx context.Context, filter transfer.ListFilter) ([]transfer.Header, error) {
	q := r.builder.Select(transferColumns...).
		From(transfersTable)

	if filter.SourceLocationID != nil {
		q = q.Where(squirrel.Eq{"source_location_id": *filter.SourceLocationID})
	}
	if filter.DestinationLocationID != nil {
		q = q.Where(squirrel.Eq{"destination_location_id": *filter.DestinationLocationID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("created_at DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var headers []transfer.Header
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &headers, sql, args...); err != nil {
		return nil, fmt.Errorf("select transfers: %w", err)
	}

	return headers, nil
}
