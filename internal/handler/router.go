package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Search *SearchHandler
	Jobs   *JobHandler
	SSE    *SSEHandler
	Health *HealthHandler
}

// SetupRoutes registers all routes. crawlLimit guards POST /v1/crawl and may be nil.
func SetupRoutes(router *gin.Engine, handlers *Handlers, crawlLimit gin.HandlerFunc) {
	router.GET("/v1/health", handlers.Health.GetHealth)

	v1 := router.Group("/v1")
	{
		v1.POST("/search", handlers.Search.Search)
		if crawlLimit != nil {
			v1.POST("/crawl", crawlLimit, handlers.Search.Crawl)
		} else {
			v1.POST("/crawl", handlers.Search.Crawl)
		}

		v1.GET("/jobs", handlers.Jobs.ListJobs)
		v1.GET("/jobs/:id", handlers.Jobs.GetJob)

		v1.GET("/alerts", handlers.Jobs.ListAlerts)
		v1.GET("/alerts/stream", handlers.SSE.Stream)

		v1.GET("/analytics", handlers.Jobs.Analytics)
	}
}
