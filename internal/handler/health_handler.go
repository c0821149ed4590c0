package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/pricewatch/internal/crawler"
	"github.com/GTDGit/pricewatch/internal/utils"
)

var startTime = time.Now()

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler provides health endpoint.
type HealthHandler struct {
	db       Pinger
	cache    Pinger
	registry *crawler.Registry
	limiter  *crawler.Limiter
}

// NewHealthHandler creates a new HealthHandler. cache and limiter may be
// nil; a nil cache is reported as disabled.
func NewHealthHandler(db, cache Pinger, registry *crawler.Registry, limiter *crawler.Limiter) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, registry: registry, limiter: limiter}
}

// GetHealth responds with service, database and crawler status.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "connected"
	status := "healthy"
	code := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "disconnected"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	// a cache outage degrades the status but keeps 200
	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "connected"
		if err := h.cache.PingContext(ctx); err != nil {
			cacheStatus = "disconnected"
			status = "degraded"
		}
	}

	crawlers := gin.H{"sites": h.registry.Sites()}
	if h.limiter != nil {
		crawlers["inFlight"] = h.limiter.InFlight()
	}

	utils.Success(c, code, "Service is "+status, gin.H{
		"status":   status,
		"version":  "1.0.0",
		"uptime":   int(time.Since(startTime).Seconds()),
		"database": gin.H{"status": dbStatus},
		"cache":    gin.H{"status": cacheStatus},
		"crawlers": crawlers,
	})
}
