// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"lotkeeper/internal/infrastructure/storage/postgres"
)

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	pool  *postgres.Pool
	redis *redis.Client // optional
}

// NewHealthHandler creates a new health handler. redisClient may be nil.
func NewHealthHandler(pool *postgres.Pool, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{pool: pool, redis: redisClient}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := map[string]string{}
	healthy := true

	if err := h.pool.Ping(c.Request.Context()); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "healthy"
	}

	// Redis is advisory; report it but do not fail readiness on it.
	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := http.StatusOK
	body := gin.H{"status": "ok", "checks": checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "error"
	}
	c.JSON(status, body)
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	stats := postgres.GetPoolStats(h.pool.Unwrap())

	c.JSON(http.StatusOK, gin.H{
		"app":     "lotkeeper",
		"version": "0.1.0",
		"database": map[string]any{
			"total_conns":    stats.TotalConns,
			"acquired_conns": stats.AcquiredConns,
			"idle_conns":     stats.IdleConns,
			"max_conns":      stats.MaxConns,
		},
	})
}
