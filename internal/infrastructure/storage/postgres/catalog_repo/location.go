package catalog_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/domain/catalog/location"
	"lotkeeper/internal/infrastructure/storage/postgres"
)

const locationsTable = "cat_locations"

var locationColumns = []string{
	"id", "code", "name", "kind", "address", "is_active", "created_at", "updated_at",
}

// LocationRepo implements location.Repository.
type LocationRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ location.Repository = (*LocationRepo)(nil)

// NewLocationRepo creates a new location repository.
func NewLocationRepo(txManager *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LocationRepo) Create(ctx context.Context, l *location.Location) error {
	sql, args, err := r.builder.Insert(locationsTable).
		Columns(locationColumns...).
		Values(l.ID, l.Code, l.Name, l.Kind, l.Address, l.IsActive, l.CreatedAt, l.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewDuplicate("location", "code", l.Code)
		}
		return fmt.Errorf("insert location: %w", err)
	}

	return nil
}

func (r *LocationRepo) Update(ctx context.Context, l *location.Location) error {
	sql, args, err := r.builder.Update(locationsTable).
		Set("name", l.Name).
		Set("kind", l.Kind).
		Set("address", l.Address).
		Set("is_active", l.IsActive).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": l.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("location", l.ID)
	}

	return nil
}

func (r *LocationRepo) GetByID(ctx context.Context, locationID id.ID) (*location.Location, error) {
	return r.getOne(ctx, squirrel.Eq{"id": locationID}, locationID)
}

func (r *LocationRepo) GetByCode(ctx context.Context, code string) (*location.Location, error) {
	return r.getOne(ctx, squirrel.Eq{"code": code}, code)
}

func (r *LocationRepo) getOne(ctx context.Context, where squirrel.Eq, key any) (*location.Location, error) {
	sql, args, err := r.builder.Select(locationColumns...).
		From(locationsTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var l location.Location
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &l, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("location", key)
		}
		return nil, fmt.Errorf("get location: %w", err)
	}

	return &l, nil
}

func (r *LocationRepo) List(ctx context.Context, activeOnly bool) ([]location.Location, error) {
	q := r.builder.Select(locationColumns...).
		From(locationsTable).
		OrderBy("code ASC")

	if activeOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var locations []location.Location
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &locations, sql, args...); err != nil {
		return nil, fmt.Errorf("select locations: %w", err)
	}

	return locations, nil
}
