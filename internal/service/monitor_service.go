package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pricewatch/internal/analytics"
	"github.com/GTDGit/pricewatch/internal/crawler"
	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/sse"
	"github.com/GTDGit/pricewatch/internal/utils"
)

// JobStore persists crawl jobs.
type JobStore interface {
	Create(ctx context.Context, job *models.CrawlJob) error
	GetByID(ctx context.Context, id string) (*models.CrawlJob, error)
	ListRecent(ctx context.Context, limit, offset int) ([]models.CrawlJob, error)
	Count(ctx context.Context) (int, error)
}

// SnapshotStore persists product snapshots per source set.
type SnapshotStore interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	// Latest returns up to n snapshots of sourceSet, newest first.
	Latest(ctx context.Context, sourceSet string, n int) ([]models.Snapshot, error)
	PricePoints(ctx context.Context, sourceSet string, from, to time.Time) ([]models.PricePoint, error)
}

// AlertStore persists price alerts.
type AlertStore interface {
	Save(ctx context.Context, alerts []models.PriceAlert) error
	Recent(ctx context.Context, since time.Time) ([]models.PriceAlert, error)
	List(ctx context.Context, limit, offset int, kind models.AlertKind) ([]models.PriceAlert, error)
	Count(ctx context.Context, kind models.AlertKind) (int, error)
}

// ResultCache stores search results. A miss is (false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Page selects one page of a listing. Page numbers start at 1.
type Page struct {
	Page  int
	Limit int
}

// Normalize applies the default page and clamps the limit to 1..200.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit <= 0:
		p.Limit = 20
	case p.Limit > 200:
		p.Limit = 200
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.Limit
}

// MonitorConfig holds the analytics settings of MonitorService.
type MonitorConfig struct {
	Thresholds       analytics.Thresholds
	Alerts           analytics.AlertOptions
	TopDiscountCount int
}

// SearchRequest asks for a live keyword search.
type SearchRequest struct {
	Keyword   string           `json:"keyword"`
	Sites     []string         `json:"sites,omitempty"`
	DateRange models.DateRange `json:"dateRange"`
}

// SearchResult is a live search with its analytics.
type SearchResult struct {
	Products     []models.Product       `json:"products"`
	Analysis     models.PriceAnalysis   `json:"analysis"`
	Spread       models.PriceSpread     `json:"spread"`
	TopDiscounts []models.DiscountEntry `json:"topDiscounts"`
	Sites        models.SiteComparison  `json:"sites"`
	Categories   []models.CategoryShare `json:"categories"`
	History      []models.DailyPrice    `json:"history,omitempty"`
	Outcomes     []SiteOutcome          `json:"outcomes"`
	Cached       bool                   `json:"cached"`
}

// CrawlResult is the outcome of RunCrawl.
type CrawlResult struct {
	JobID         string              `json:"jobId"`
	Status        models.JobStatus    `json:"status"`
	ProductsFound int                 `json:"productsFound"`
	Products      []models.Product    `json:"products"`
	Alerts        []models.PriceAlert `json:"alerts"`
	Outcomes      []SiteOutcome       `json:"outcomes"`
}

// AnalyticsReport summarizes the latest snapshot of a source set against
// the one before it.
type AnalyticsReport struct {
	SourceSet    string                  `json:"sourceSet"`
	ObservedAt   time.Time               `json:"observedAt"`
	Analysis     models.PriceAnalysis    `json:"analysis"`
	Spread       models.PriceSpread      `json:"spread"`
	TopDiscounts []models.DiscountEntry  `json:"topDiscounts"`
	Sites        models.SiteComparison   `json:"sites"`
	Categories   []models.CategoryShare  `json:"categories"`
	Overview     models.SnapshotOverview `json:"overview"`
}

// MonitorService is the entry point for searches, crawls and analytics.
type MonitorService struct {
	coordinator *Coordinator
	jobs        JobStore
	snapshots   SnapshotStore
	alerts      AlertStore
	cache       ResultCache
	notifier    sse.AlertNotifier
	cfg         MonitorConfig
}

// NewMonitorService wires the service. cache and notifier may be nil.
func NewMonitorService(
	coordinator *Coordinator,
	jobs JobStore,
	snapshots SnapshotStore,
	alerts AlertStore,
	cache ResultCache,
	notifier sse.AlertNotifier,
	cfg MonitorConfig,
) *MonitorService {
	if notifier == nil {
		notifier = &sse.NopNotifier{}
	}
	return &MonitorService{
		coordinator: coordinator,
		jobs:        jobs,
		snapshots:   snapshots,
		alerts:      alerts,
		cache:       cache,
		notifier:    notifier,
		cfg:         cfg,
	}
}

// SourceSetID returns the stable key of a target: mode, resolved site codes
// and the normalised query. Snapshots and cached searches are keyed by it.
func (s *MonitorService) SourceSetID(target Target) (string, error) {
	t, crawlers, err := s.coordinator.Resolve(target)
	if err != nil {
		return "", err
	}
	return sourceSetID(t, crawlers), nil
}

func sourceSetID(t Target, crawlers []crawler.SiteCrawler) string {
	codes := make([]string, len(crawlers))
	for i, c := range crawlers {
		codes[i] = c.Site()
	}
	sort.Strings(codes)
	query := t.Query
	if t.Mode != models.ModeDetail {
		query = strings.ToLower(strings.Join(strings.Fields(query), " "))
	}
	return fmt.Sprintf("%s:%s:%s", t.Mode, strings.Join(codes, ","), query)
}

// RunSearch runs a keyword search across the selected sites and analyses
// the results. Results without a date range are cached.
func (s *MonitorService) RunSearch(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	target := Target{Query: req.Keyword, Mode: models.ModeSearch, Sites: req.Sites}
	setID, err := s.SourceSetID(target)
	if err != nil {
		return nil, err
	}

	cacheKey := searchCacheKey(setID)
	useCache := s.cache != nil && req.DateRange.IsZero()
	if useCache {
		var cached SearchResult
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			log.Warn().Err(err).Str("key", cacheKey).Msg("Search cache read failed")
		} else if hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	res, err := s.coordinator.StartJob(ctx, target)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Products:     res.Products,
		Analysis:     analytics.ComputeDistribution(res.Products, s.cfg.Thresholds),
		Spread:       analytics.ComputeSpread(res.Products),
		TopDiscounts: analytics.RankDiscounts(res.Products, s.cfg.TopDiscountCount),
		Sites:        analytics.CompareSites(res.Products),
		Categories:   analytics.CategoryBreakdown(res.Products),
		Outcomes:     res.Outcomes,
	}

	if !req.DateRange.IsZero() {
		points, err := s.snapshots.PricePoints(ctx, setID, req.DateRange.From, req.DateRange.To)
		if err != nil {
			return nil, fmt.Errorf("failed to load price history: %w", err)
		}
		result.History = analytics.DailyHistory(points)
	}

	// a partial failure is not cached so the failed site is retried next time
	if useCache && allSucceeded(res.Outcomes) {
		if err := s.cache.Set(ctx, cacheKey, result); err != nil {
			log.Warn().Err(err).Str("key", cacheKey).Msg("Search cache write failed")
		}
	}
	return result, nil
}

// RunCrawl runs a crawl job, persists it and, when it completes, stores the
// snapshot and raises alerts against the previous snapshot of the same
// source set. The job is persisted in every terminal state; for a failed
// job the result is returned together with the job error.
func (s *MonitorService) RunCrawl(ctx context.Context, target Target) (*CrawlResult, error) {
	t, crawlers, err := s.coordinator.Resolve(target)
	if err != nil {
		return nil, err
	}
	setID := sourceSetID(t, crawlers)

	res, jobErr := s.coordinator.StartJob(ctx, t)
	if res == nil {
		return nil, jobErr
	}

	// the job outlives a cancelled request
	storeCtx := context.WithoutCancel(ctx)
	job := res.Job
	result := &CrawlResult{
		JobID:         job.ID,
		Status:        job.Status,
		ProductsFound: job.ProductsFound,
		Products:      res.Products,
		Alerts:        []models.PriceAlert{},
		Outcomes:      res.Outcomes,
	}

	if err := s.jobs.Create(storeCtx, job); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to persist job: %w", err), jobErr)
	}
	defer s.notifier.NotifyJobFinished(job)

	if jobErr != nil {
		return result, jobErr
	}

	prior, err := s.snapshots.Latest(storeCtx, setID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior snapshot: %w", err)
	}

	observedAt := *job.CompletedAt
	snap := &models.Snapshot{
		ID:         uuid.New().String(),
		SourceSet:  setID,
		JobID:      job.ID,
		ObservedAt: observedAt,
		Products:   res.Products,
	}
	if err := s.snapshots.Save(storeCtx, snap); err != nil {
		return nil, fmt.Errorf("failed to persist products: %w", err)
	}

	if s.cache != nil && t.Mode == models.ModeSearch {
		if err := s.cache.Delete(storeCtx, searchCacheKey(setID)); err != nil {
			log.Warn().Err(err).Str("source_set", setID).Msg("Search cache invalidation failed")
		}
	}

	// the first snapshot of a source set is the baseline and raises nothing
	alerts := []models.PriceAlert{}
	if len(prior) > 0 {
		recent, err := s.alerts.Recent(storeCtx, observedAt.Add(-s.cfg.Alerts.Cooldown))
		if err != nil {
			return nil, fmt.Errorf("failed to load recent alerts: %w", err)
		}
		alerts = analytics.DetectAlerts(prior[0].Products, res.Products, s.cfg.Alerts, recent, observedAt)
		for i := range alerts {
			alerts[i].ID = uuid.New().String()
		}
	}
	if len(alerts) > 0 {
		if err := s.alerts.Save(storeCtx, alerts); err != nil {
			return nil, fmt.Errorf("failed to persist alerts: %w", err)
		}
		s.notifier.NotifyAlerts(alerts)
	}
	result.Alerts = alerts

	log.Info().
		Str("job_id", job.ID).
		Str("source_set", setID).
		Int("products", len(res.Products)).
		Int("alerts", len(alerts)).
		Msg("Crawl snapshot stored")

	return result, nil
}

// GetJob returns a persisted job or utils.ErrJobNotFound.
func (s *MonitorService) GetJob(ctx context.Context, id string) (*models.CrawlJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty job id", utils.ErrInvalidArgument)
	}
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns one page of jobs, newest first, and the total count.
func (s *MonitorService) ListJobs(ctx context.Context, page Page) ([]models.CrawlJob, int, error) {
	page = page.Normalize()
	total, err := s.jobs.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	jobs, err := s.jobs.ListRecent(ctx, page.Limit, page.offset())
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ListAlerts returns one page of alerts, optionally of one kind, and the
// total count.
func (s *MonitorService) ListAlerts(ctx context.Context, page Page, kind models.AlertKind) ([]models.PriceAlert, int, error) {
	if kind != "" && !kind.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown alert kind %q", utils.ErrInvalidArgument, kind)
	}
	page = page.Normalize()
	total, err := s.alerts.Count(ctx, kind)
	if err != nil {
		return nil, 0, err
	}
	alerts, err := s.alerts.List(ctx, page.Limit, page.offset(), kind)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// Analytics reports on the latest stored snapshot of target's source set,
// compared against the snapshot before it.
func (s *MonitorService) Analytics(ctx context.Context, target Target) (*AnalyticsReport, error) {
	setID, err := s.SourceSetID(target)
	if err != nil {
		return nil, err
	}
	snaps, err := s.snapshots.Latest(ctx, setID, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: %s", utils.ErrSnapshotNotFound, setID)
	}

	curr := snaps[0]
	var prev []models.Product
	if len(snaps) > 1 {
		prev = snaps[1].Products
	}
	// recomputed without cooldown so the overview reflects the raw diff
	diff := analytics.DetectAlerts(prev, curr.Products, analytics.AlertOptions{
		MagnitudeThresholdPct: s.cfg.Alerts.MagnitudeThresholdPct,
		ReviewRatingDelta:     s.cfg.Alerts.ReviewRatingDelta,
	}, nil, curr.ObservedAt)

	return &AnalyticsReport{
		SourceSet:    setID,
		ObservedAt:   curr.ObservedAt,
		Analysis:     analytics.ComputeDistribution(curr.Products, s.cfg.Thresholds),
		Spread:       analytics.ComputeSpread(curr.Products),
		TopDiscounts: analytics.RankDiscounts(curr.Products, s.cfg.TopDiscountCount),
		Sites:        analytics.CompareSites(curr.Products),
		Categories:   analytics.CategoryBreakdown(curr.Products),
		Overview:     analytics.Overview(prev, curr.Products, diff),
	}, nil
}

func searchCacheKey(setID string) string {
	return "search:" + setID
}

func allSucceeded(outcomes []SiteOutcome) bool {
	for _, o := range outcomes {
		if o.Err != nil {
			return false
		}
	}
	return true
}
