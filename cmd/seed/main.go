// Package main provides a CLI tool for seeding the database with demo data:
// a couple of locations, a small product catalog and opening stock.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"lotkeeper/internal/config"
	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/catalog/location"
	"lotkeeper/internal/domain/catalog/product"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/internal/infrastructure/storage/postgres"
	"lotkeeper/internal/infrastructure/storage/postgres/catalog_repo"
	"lotkeeper/internal/infrastructure/storage/postgres/inventory_repo"
	"lotkeeper/pkg/logger"
	"lotkeeper/pkg/numerator"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.ConnectionString()))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)
	numbers := numerator.New(pool)

	ledgerSvc := ledger.NewService(inventory_repo.NewLedgerRepo(txManager))
	batchSvc := batch.NewService(inventory_repo.NewBatchRepo(txManager), ledgerSvc, txManager, nil)
	productSvc := product.NewService(catalog_repo.NewProductRepo(txManager), numbers)
	locationSvc := location.NewService(catalog_repo.NewLocationRepo(txManager), numbers)

	warehouse, store, err := seedLocations(ctx, locationSvc)
	if err != nil {
		log.Fatalw("failed to seed locations", "error", err)
	}

	products, err := seedProducts(ctx, productSvc)
	if err != nil {
		log.Fatalw("failed to seed products", "error", err)
	}

	if err := seedStock(ctx, batchSvc, warehouse, store, products); err != nil {
		log.Fatalw("failed to seed stock", "error", err)
	}

	log.Infow("seed complete", "locations", 2, "products", len(products))
}

func seedLocations(ctx context.Context, svc *location.Service) (*location.Location, *location.Location, error) {
	warehouse, err := upsertLocation(ctx, svc, "WH-MAIN", "Main Warehouse", location.KindWarehouse)
	if err != nil {
		return nil, nil, err
	}
	store, err := upsertLocation(ctx, svc, "ST-001", "Downtown Store", location.KindStore)
	if err != nil {
		return nil, nil, err
	}
	return warehouse, store, nil
}

func upsertLocation(ctx context.Context, svc *location.Service, code, name string, kind location.Kind) (*location.Location, error) {
	existing, err := svc.GetByCode(ctx, code)
	if err == nil {
		return existing, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	l := location.New(code, name, kind)
	if err := svc.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

type seedProduct struct {
	code    string
	name    string
	barcode string
	cost    float64
	price   float64
}

func seedProducts(ctx context.Context, svc *product.Service) ([]*product.Product, error) {
	items := []seedProduct{
		{"PRD-MILK", "Whole Milk 1L", "4800000000011", 0.85, 1.49},
		{"PRD-BREAD", "Sourdough Loaf", "4800000000028", 1.20, 2.99},
		{"PRD-COFFEE", "Ground Coffee 250g", "4800000000035", 3.40, 6.95},
		{"PRD-YOGURT", "Greek Yogurt 500g", "4800000000042", 1.10, 2.25},
	}

	products := make([]*product.Product, 0, len(items))
	for _, item := range items {
		existing, err := svc.GetByCode(ctx, item.code)
		if err == nil {
			products = append(products, existing)
			continue
		}
		if !apperror.IsNotFound(err) {
			return nil, err
		}

		p := product.New(item.code, item.name)
		barcode := item.barcode
		p.Barcode = &barcode
		p.DefaultUnitCost = types.NewMoney(item.cost)
		p.DefaultSellingPrice = types.NewMoney(item.price)
		if err := svc.Create(ctx, p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func seedStock(ctx context.Context, svc *batch.Service, warehouse, store *location.Location, products []*product.Product) error {
	expiry := time.Now().AddDate(0, 0, 21)

	for i, p := range products {
		// Two lots per product at the warehouse so FIFO has something
		// to choose between, one lot at the store.
		receipts := []batch.ReceiveRequest{
			{
				ProductID:      p.ID,
				LocationID:     warehouse.ID,
				BatchReference: fmt.Sprintf("LOT-%s-A", p.Code),
				Quantity:       types.NewQuantityFromInt(100),
				UnitCost:       p.DefaultUnitCost,
				SellingPrice:   p.DefaultSellingPrice,
				ExpirationDate: &expiry,
				ReferenceNo:    fmt.Sprintf("SEED-%03d-A", i+1),
			},
			{
				ProductID:      p.ID,
				LocationID:     warehouse.ID,
				BatchReference: fmt.Sprintf("LOT-%s-B", p.Code),
				Quantity:       types.NewQuantityFromInt(60),
				UnitCost:       p.DefaultUnitCost,
				SellingPrice:   p.DefaultSellingPrice,
				ReferenceNo:    fmt.Sprintf("SEED-%03d-B", i+1),
			},
			{
				ProductID:      p.ID,
				LocationID:     store.ID,
				BatchReference: fmt.Sprintf("LOT-%s-A", p.Code),
				Quantity:       types.NewQuantityFromInt(25),
				UnitCost:       p.DefaultUnitCost,
				SellingPrice:   p.DefaultSellingPrice,
				ExpirationDate: &expiry,
				ReferenceNo:    fmt.Sprintf("SEED-%03d-S", i+1),
			},
		}

		for _, req := range receipts {
			if _, err := svc.Receive(ctx, req); err != nil {
				return err
			}
		}
	}
	return nil
}
