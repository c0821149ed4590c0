package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/service"
	"github.com/GTDGit/pricewatch/internal/utils"
)

// JobHandler exposes crawl jobs, alerts and stored analytics.
type JobHandler struct {
	monitor *service.MonitorService
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(monitor *service.MonitorService) *JobHandler {
	return &JobHandler{monitor: monitor}
}

// ListJobs handles GET /v1/jobs?page=&limit=
func (h *JobHandler) ListJobs(c *gin.Context) {
	page := queryPage(c)
	jobs, total, err := h.monitor.ListJobs(c.Request.Context(), page)
	if err != nil {
		utils.ErrorFrom(c, err, nil)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Jobs retrieved successfully", gin.H{"jobs": jobs}, page.Page, page.Limit, total)
}

// GetJob handles GET /v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.monitor.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.ErrorFrom(c, err, nil)
		return
	}
	utils.Success(c, http.StatusOK, "Job retrieved successfully", job)
}

// ListAlerts handles GET /v1/alerts?page=&limit=&kind=
func (h *JobHandler) ListAlerts(c *gin.Context) {
	page := queryPage(c)
	kind := models.AlertKind(c.Query("kind"))
	alerts, total, err := h.monitor.ListAlerts(c.Request.Context(), page, kind)
	if err != nil {
		utils.ErrorFrom(c, err, nil)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Alerts retrieved successfully", gin.H{"alerts": alerts}, page.Page, page.Limit, total)
}

// Analytics handles GET /v1/analytics?query=&mode=&sites=a,b
func (h *JobHandler) Analytics(c *gin.Context) {
	target := service.Target{
		Query: c.Query("query"),
		Mode:  models.CrawlMode(c.Query("mode")),
		Sites: c.QueryArray("sites"),
	}
	if len(target.Sites) == 1 {
		target.Sites = splitComma(target.Sites[0])
	}

	report, err := h.monitor.Analytics(c.Request.Context(), target)
	if err != nil {
		utils.ErrorFrom(c, err, nil)
		return
	}
	utils.Success(c, http.StatusOK, "Analytics retrieved successfully", report)
}

// queryPage reads ?page and ?limit; invalid values fall back to the defaults.
func queryPage(c *gin.Context) service.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return service.Page{Page: page, Limit: limit}.Normalize()
}
