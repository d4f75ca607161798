// Package catalog_repo provides PostgreSQL implementations for the catalog
// repositories.
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
	"lotkeeper/internal/domain/catalog/product"
	"lotkeeper/internal/infrastructure/storage/postgres"
)

const productsTable = "cat_products"

var productColumns = []string{
	"id", "code", "name", "barcode", "category", "brand", "supplier",
	"default_unit_cost", "default_selling_price",
	"is_active", "created_at", "updated_at",
}

// ProductRepo implements product.Repository.
type ProductRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	sql, args, err := r.builder.Insert(productsTable).
		Columns(productColumns...).
		Values(p.ID, p.Code, p.Name, p.Barcode, p.Category, p.Brand, p.Supplier,
			p.DefaultUnitCost, p.DefaultSellingPrice,
			p.IsActive, p.CreatedAt, p.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewDuplicate("product", "code", p.Code)
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r *ProductRepo) Update(ctx context.Context, p *product.Product) error {
	sql, args, err := r.builder.Update(productsTable).
		Set("name", p.Name).
		Set("barcode", p.Barcode).
		Set("category", p.Category).
		Set("brand", p.Brand).
		Set("supplier", p.Supplier).
		Set("default_unit_cost", p.DefaultUnitCost).
		Set("default_selling_price", p.DefaultSellingPrice).
		Set("is_active", p.IsActive).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", p.ID)
	}

	return nil
}

func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.getOne(ctx, squirrel.Eq{"id": productID}, productID)
}

func (r *ProductRepo) GetByCode(ctx context.Context, code string) (*product.Product, error) {
	return r.getOne(ctx, squirrel.Eq{"code": code}, code)
}

func (r *ProductRepo) FindByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	return r.getOne(ctx, squirrel.Eq{"barcode": barcode}, barcode)
}

func (r *ProductRepo) getOne(ctx context.Context, where squirrel.Eq, key any) (*product.Product, error) {
	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", key)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

func (r *ProductRepo) List(ctx context.Context, filter product.ListFilter) ([]product.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable)

	if filter.Category != nil {
		q = q.Where(squirrel.Eq{"category": *filter.Category})
	}
	if filter.Brand != nil {
		q = q.Where(squirrel.Eq{"brand": *filter.Brand})
	}
	if filter.Active != nil {
		q = q.Where(squirrel.Eq{"is_active": *filter.Active})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"code": pattern},
			squirrel.Eq{"barcode": filter.Search},
		})
	}

	q = q.OrderBy("name ASC")

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

	var products []product.Product
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}

	return products, nil
}
