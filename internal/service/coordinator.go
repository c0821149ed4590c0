package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/GTDGit/pricewatch/internal/crawler"
	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/utils"
	"github.com/GTDGit/pricewatch/pkg/fetcher"
)

// Target is what a crawl job runs against.
type Target struct {
	Query string           `json:"query"`
	Mode  models.CrawlMode `json:"mode,omitempty"`
	Sites []string         `json:"sites,omitempty"`
}

// SiteOutcome records what one site crawler contributed to a job.
type SiteOutcome struct {
	Site     string `json:"site"`
	Products int    `json:"products"`
	Attempts int    `json:"attempts"`
	Err      error  `json:"-"`
	Error    string `json:"error,omitempty"`
}

// JobResult is the outcome of StartJob. Products is empty unless the job
// completed.
type JobResult struct {
	Job      *models.CrawlJob
	Products []models.Product
	Outcomes []SiteOutcome
}

// CoordinatorConfig tunes concurrency and retries.
type CoordinatorConfig struct {
	Concurrency    int
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Coordinator runs crawl jobs: it validates the target, fans the work out
// to the selected site crawlers and merges their output.
type Coordinator struct {
	registry *crawler.Registry
	cfg      CoordinatorConfig
	now      func() time.Time
}

// NewCoordinator creates a Coordinator over registry.
func NewCoordinator(registry *crawler.Registry, cfg CoordinatorConfig) *Coordinator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Coordinator{registry: registry, cfg: cfg, now: time.Now}
}

// Normalize trims the target and infers the mode when it is empty: a URL
// means detail, anything else search.
func (t Target) Normalize() Target {
	t.Query = strings.TrimSpace(t.Query)
	if t.Mode == "" {
		t.Mode = models.ModeSearch
		if strings.HasPrefix(t.Query, "http://") || strings.HasPrefix(t.Query, "https://") {
			t.Mode = models.ModeDetail
		}
	}
	sites := make([]string, 0, len(t.Sites))
	for _, s := range t.Sites {
		if s = strings.TrimSpace(s); s != "" {
			sites = append(sites, s)
		}
	}
	t.Sites = sites
	return t
}

// Resolve validates target and selects its crawlers without touching the
// network. Every failure wraps utils.ErrInvalidArgument.
func (c *Coordinator) Resolve(target Target) (Target, []crawler.SiteCrawler, error) {
	t := target.Normalize()
	if t.Query == "" {
		return t, nil, fmt.Errorf("%w: empty query", utils.ErrInvalidArgument)
	}
	if !t.Mode.Valid() {
		return t, nil, fmt.Errorf("%w: unknown mode %q", utils.ErrInvalidArgument, t.Mode)
	}

	if t.Mode == models.ModeDetail {
		if _, err := fetcher.ValidateURL(t.Query); err != nil {
			return t, nil, fmt.Errorf("%w: %v", utils.ErrInvalidArgument, err)
		}
		if len(t.Sites) == 0 {
			found := c.registry.FindByURL(t.Query)
			if len(found) == 0 {
				return t, nil, fmt.Errorf("%w: %w: %s", utils.ErrInvalidArgument, utils.ErrNoCrawlerForURL, t.Query)
			}
			return t, found, nil
		}
	}

	selected, err := c.registry.Select(t.Sites)
	if err != nil {
		return t, nil, fmt.Errorf("%w: %w", utils.ErrInvalidArgument, err)
	}
	if len(selected) == 0 {
		return t, nil, fmt.Errorf("%w: no site crawlers registered", utils.ErrInvalidArgument)
	}
	return t, selected, nil
}

// StartJob runs one crawl job to a terminal state.
//
// Invalid targets fail before a job exists. Otherwise the returned result
// always carries the job: completed with the merged products, or failed
// with ALL_CRAWLERS_FAILED (utils.ErrAllCrawlersFailed) or CANCELLED
// (utils.ErrJobCancelled). Products gathered before a cancellation are
// discarded.
func (c *Coordinator) StartJob(ctx context.Context, target Target) (*JobResult, error) {
	t, crawlers, err := c.Resolve(target)
	if err != nil {
		return nil, err
	}

	codes := make([]string, len(crawlers))
	for i, sc := range crawlers {
		codes[i] = sc.Site()
	}
	job := models.NewCrawlJob(t.Query, t.Mode, strings.Join(codes, ","), c.now())
	if err := job.Start(); err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID).
		Str("mode", string(t.Mode)).
		Str("query", t.Query).
		Strs("sites", codes).
		Msg("Crawl job started")

	batches := make([][]models.Product, len(crawlers))
	outcomes := make([]SiteOutcome, len(crawlers))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, sc := range crawlers {
		i, sc := i, sc
		g.Go(func() error {
			products, attempts, err := c.crawlSite(ctx, sc, t)
			batches[i] = products
			outcomes[i] = SiteOutcome{Site: sc.Site(), Products: len(products), Attempts: attempts, Err: err}
			if err != nil {
				outcomes[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &JobResult{Job: job, Products: []models.Product{}, Outcomes: outcomes}

	if ctx.Err() != nil {
		_ = job.Fail(models.FailureCancelled, ctx.Err(), c.now())
		log.Warn().Str("job_id", job.ID).Msg("Crawl job cancelled")
		return result, fmt.Errorf("%w: %v", utils.ErrJobCancelled, ctx.Err())
	}

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Site, o.Err))
		}
	}
	if len(errs) == len(outcomes) {
		cause := errors.Join(errs...)
		_ = job.Fail(models.FailureAllCrawlersFailed, cause, c.now())
		log.Error().Str("job_id", job.ID).Err(cause).Msg("Crawl job failed")
		return result, fmt.Errorf("%w: %v", utils.ErrAllCrawlersFailed, cause)
	}

	for _, b := range batches {
		result.Products = append(result.Products, b...)
	}
	_ = job.Complete(len(result.Products), c.now())

	log.Info().
		Str("job_id", job.ID).
		Int("products", len(result.Products)).
		Int("failed_sites", len(errs)).
		Msg("Crawl job completed")

	return result, nil
}

// crawlSite invokes one crawler, retrying retryable fetch failures with
// exponential backoff.
func (c *Coordinator) crawlSite(ctx context.Context, sc crawler.SiteCrawler, t Target) ([]models.Product, int, error) {
	attempts := 0
	for {
		attempts++
		products, err := invoke(ctx, sc, t)
		if err == nil {
			return products, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		if attempts > c.cfg.MaxRetries || !fetcher.IsRetryable(err) {
			log.Warn().
				Str("site", sc.Site()).
				Int("attempts", attempts).
				Err(err).
				Msg("Site crawl failed")
			return nil, attempts, err
		}

		delay := c.cfg.RetryBaseDelay << (attempts - 1)
		log.Debug().
			Str("site", sc.Site()).
			Int("attempt", attempts).
			Dur("backoff", delay).
			Err(err).
			Msg("Retrying site crawl")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, attempts, ctx.Err()
		}
	}
}

func invoke(ctx context.Context, sc crawler.SiteCrawler, t Target) ([]models.Product, error) {
	switch t.Mode {
	case models.ModeCategory:
		return sc.CrawlProductList(ctx, t.Query)
	case models.ModeDetail:
		p, err := sc.CrawlProductDetail(ctx, t.Query)
		if err != nil {
			return nil, err
		}
		return []models.Product{*p}, nil
	default:
		return sc.SearchProducts(ctx, t.Query)
	}
}
