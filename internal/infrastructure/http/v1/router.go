// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"lotkeeper/internal/domain/catalog/location"
	"lotkeeper/internal/domain/catalog/product"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/internal/domain/inventory/returns"
	"lotkeeper/internal/domain/inventory/sale"
	"lotkeeper/internal/domain/inventory/transfer"
	"lotkeeper/internal/infrastructure/http/v1/handlers"
	"lotkeeper/internal/infrastructure/http/v1/middleware"
	"lotkeeper/internal/infrastructure/storage/postgres"
	"lotkeeper/pkg/logger"
)

// RouterConfig holds the wired services the router exposes.
type RouterConfig struct {
	Logger *logger.Logger

	// Pool backs the health endpoints; RedisClient may be nil.
	Pool        *postgres.Pool
	RedisClient *redis.Client

	Products  *product.Service
	Locations *location.Service

	Batches     *batch.Service
	Ledger      *ledger.Service
	Seller      *sale.Seller
	Returns     *returns.Processor
	Coordinator *transfer.Coordinator

	// IdempotencyStore enables Idempotency-Key replay on mutating
	// endpoints when non-nil.
	IdempotencyStore *postgres.IdempotencyStore

	// Audit backs the transfer history endpoint; may be nil.
	Audit *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.RedisClient)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()

	v1 := router.Group("/api/v1")

	// Mutating endpoints honor Idempotency-Key; reads skip the lookup.
	mutating := v1.Group("")
	if cfg.IdempotencyStore != nil {
		mutating.Use(middleware.Idempotency(cfg.IdempotencyStore))
	}

	// --- CATALOG ---
	{
		handler := handlers.NewProductHandler(base, cfg.Products)
		v1.GET("/products", handler.List)
		v1.GET("/products/:id", handler.Get)
		v1.GET("/products/by-barcode/:barcode", handler.GetByBarcode)
		mutating.POST("/products", handler.Create)
		mutating.PUT("/products/:id", handler.Update)
	}
	{
		handler := handlers.NewLocationHandler(base, cfg.Locations)
		v1.GET("/locations", handler.List)
		v1.GET("/locations/:id", handler.Get)
		mutating.POST("/locations", handler.Create)
		mutating.PUT("/locations/:id", handler.Update)
	}

	// --- INVENTORY ---
	{
		handler := handlers.NewInventoryHandler(base, cfg.Batches, cfg.Ledger, cfg.Seller)
		v1.GET("/inventory/availability/:productId", handler.Availability)
		v1.GET("/inventory/batches", handler.ListBatches)
		v1.GET("/inventory/expiring", handler.ListExpiring)
		v1.GET("/inventory/movements/product/:productId", handler.Movements)
		v1.GET("/inventory/movements/reference/:reference", handler.MovementsByReference)
		v1.GET("/inventory/reconcile/:batchId", handler.Reconcile)
		v1.POST("/inventory/allocation-preview", handler.PreviewAllocation)
		mutating.POST("/inventory/receive", handler.Receive)
		mutating.POST("/inventory/adjust", handler.Adjust)
	}

	// --- SALES AND RETURNS ---
	{
		handler := handlers.NewSaleHandler(base, cfg.Seller)
		mutating.POST("/sales", handler.Sell)
	}
	{
		handler := handlers.NewReturnHandler(base, cfg.Returns)
		mutating.POST("/returns", handler.Process)
	}

	// --- TRANSFERS ---
	{
		handler := handlers.NewTransferHandler(base, cfg.Coordinator, cfg.Audit)
		v1.GET("/transfers", handler.List)
		v1.GET("/transfers/:id", handler.Get)
		v1.GET("/transfers/:id/audit", handler.History)
		mutating.POST("/transfers", handler.Create)
		mutating.POST("/transfers/:id/approve", handler.Approve)
		mutating.POST("/transfers/:id/execute", handler.Execute)
	}

	return router
}
