package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/pricewatch/internal/service"
	"github.com/GTDGit/pricewatch/internal/utils"
)

// SearchHandler serves live searches and crawl jobs.
type SearchHandler struct {
	monitor *service.MonitorService
	timeout time.Duration
}

// NewSearchHandler constructs a SearchHandler. A positive timeout bounds
// every search and crawl.
func NewSearchHandler(monitor *service.MonitorService, timeout time.Duration) *SearchHandler {
	return &SearchHandler{monitor: monitor, timeout: timeout}
}

func (h *SearchHandler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.timeout)
	}
	return context.WithCancel(c.Request.Context())
}

// Search handles POST /v1/search.
func (h *SearchHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, utils.ErrInvalidArgument.Error(), "Invalid request body: "+err.Error())
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	res, err := h.monitor.RunSearch(ctx, req)
	if err != nil {
		utils.ErrorFrom(c, err, nil)
		return
	}
	utils.Success(c, http.StatusOK, "Search completed", res)
}

// Crawl handles POST /v1/crawl. The crawl runs within the request; a failed
// job is still returned in the error payload.
func (h *SearchHandler) Crawl(c *gin.Context) {
	var target service.Target
	if err := c.ShouldBindJSON(&target); err != nil {
		utils.Error(c, http.StatusBadRequest, utils.ErrInvalidArgument.Error(), "Invalid request body: "+err.Error())
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	res, err := h.monitor.RunCrawl(ctx, target)
	if err != nil {
		var data any
		if res != nil {
			data = res
		}
		utils.ErrorFrom(c, err, data)
		return
	}
	utils.Success(c, http.StatusOK, "Crawl completed", res)
}
