// Package main is the entry point for the lotkeeper API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"lotkeeper/internal/config"
	"lotkeeper/internal/domain/catalog/location"
	"lotkeeper/internal/domain/catalog/product"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/internal/domain/inventory/returns"
	"lotkeeper/internal/domain/inventory/sale"
	"lotkeeper/internal/domain/inventory/transfer"
	"lotkeeper/internal/infrastructure/cache"
	v1 "lotkeeper/internal/infrastructure/http/v1"
	"lotkeeper/internal/infrastructure/storage/postgres"
	"lotkeeper/internal/infrastructure/storage/postgres/catalog_repo"
	"lotkeeper/internal/infrastructure/storage/postgres/inventory_repo"
	"lotkeeper/pkg/logger"
	"lotkeeper/pkg/numerator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.Env == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting lotkeeper server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.ConnectionString())
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Redis availability cache (optional) ---
	var redisClient *redis.Client
	var availability batch.AvailabilityCache = batch.NopCache{}
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewClient(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		availability = cache.NewAvailabilityCache(redisClient, cfg.Redis.CacheTTL)
		log.Infow("redis availability cache enabled", "addr", cfg.Redis.Addr())
	}

	// --- Reference numbering ---
	numbers := numerator.New(pool)
	if size := cfg.Engine.NumeratorCacheSize; size > 1 {
		numbers.SetDefaultOptions(&numerator.Options{
			Strategy:  numerator.StrategyCached,
			RangeSize: int64(size),
		})
	}

	// --- Repositories ---
	batchRepo := inventory_repo.NewBatchRepo(txManager)
	ledgerRepo := inventory_repo.NewLedgerRepo(txManager)
	transferRepo := inventory_repo.NewTransferRepo(txManager)
	productRepo := catalog_repo.NewProductRepo(txManager)
	locationRepo := catalog_repo.NewLocationRepo(txManager)

	// --- Services ---
	ledgerSvc := ledger.NewService(ledgerRepo)
	batchSvc := batch.NewService(batchRepo, ledgerSvc, txManager, availability)
	productSvc := product.NewService(productRepo, numbers)
	locationSvc := location.NewService(locationRepo, numbers)

	auditSvc, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	seller := sale.NewSeller(batchRepo, ledgerSvc, txManager, txManager, numbers, availability)
	processor := returns.NewProcessor(batchRepo, ledgerSvc, txManager, numbers, productSvc, availability)
	coordinator := transfer.NewCoordinator(transferRepo, batchRepo, ledgerSvc, txManager, numbers, availability, auditSvc)

	idempotencyStore := postgres.NewIdempotencyStore(txManager, cfg.Engine.IdempotencyTTL)

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go runIdempotencyCleanup(cleanupCtx, idempotencyStore, log)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:           log,
		Pool:             pool,
		RedisClient:      redisClient,
		Products:         productSvc,
		Locations:        locationSvc,
		Batches:          batchSvc,
		Ledger:           ledgerSvc,
		Seller:           seller,
		Returns:          processor,
		Coordinator:      coordinator,
		IdempotencyStore: idempotencyStore,
		Audit:            auditSvc,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// runIdempotencyCleanup sweeps expired idempotency records hourly.
func runIdempotencyCleanup(ctx context.Context, store *postgres.IdempotencyStore, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupExpired(ctx)
			if err != nil {
				log.Warnw("idempotency cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Infow("idempotency records cleaned", "removed", removed)
			}
		}
	}
}
