// Package crawlertest provides a deterministic in-memory SiteCrawler for
// tests of code that drives crawlers.
package crawlertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/utils"
)

// Crawler serves fixture products. Errors queued with FailNext are
// returned first, one per call, before fixtures are served.
type Crawler struct {
	SiteCode string
	Host     string

	// Search maps keywords to results. Unknown keywords yield an empty slice.
	Search map[string][]models.Product
	// Lists maps category references to results.
	Lists map[string][]models.Product
	// Details maps product urls to results.
	Details map[string]models.Product

	// Delay is applied before every call and honours cancellation.
	Delay time.Duration
	// Err, when set, is returned by every call after queued errors run out.
	Err error

	mu     sync.Mutex
	queued []error
	calls  int
}

// New creates a Crawler for site whose CanHandle accepts host.
func New(site, host string) *Crawler {
	return &Crawler{
		SiteCode: site,
		Host:     host,
		Search:   make(map[string][]models.Product),
		Lists:    make(map[string][]models.Product),
		Details:  make(map[string]models.Product),
	}
}

// Product builds a valid fixture product on the crawler's host.
func (c *Crawler) Product(slug string, price int64) models.Product {
	return models.NewProduct(models.ProductInput{
		Site:         c.SiteCode,
		Name:         strings.ToUpper(slug[:1]) + slug[1:],
		SourceURL:    fmt.Sprintf("https://%s/p/%s", c.Host, slug),
		CurrentPrice: price,
		StockStatus:  models.StockInStock,
	})
}

// FailNext queues errors returned by the following calls in order.
func (c *Crawler) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = append(c.queued, errs...)
}

// Calls returns how many crawler operations were invoked.
func (c *Crawler) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *Crawler) Site() string { return c.SiteCode }

func (c *Crawler) CanHandle(rawURL string) bool {
	return strings.Contains(rawURL, "://"+c.Host+"/")
}

func (c *Crawler) SearchProducts(ctx context.Context, keyword string) ([]models.Product, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, fmt.Errorf("%w: empty keyword", utils.ErrInvalidArgument)
	}
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	return clone(c.Search[strings.TrimSpace(keyword)]), nil
}

func (c *Crawler) CrawlProductList(ctx context.Context, categoryRef string) ([]models.Product, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	return clone(c.Lists[categoryRef]), nil
}

func (c *Crawler) CrawlProductDetail(ctx context.Context, productURL string) (*models.Product, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	p, ok := c.Details[productURL]
	if !ok {
		return nil, fmt.Errorf("%w: no fixture for %s", utils.ErrMalformedListing, productURL)
	}
	return &p, nil
}

func (c *Crawler) begin(ctx context.Context) error {
	c.mu.Lock()
	c.calls++
	var err error
	if len(c.queued) > 0 {
		err, c.queued = c.queued[0], c.queued[1:]
	} else {
		err = c.Err
	}
	delay := c.Delay
	c.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func clone(in []models.Product) []models.Product {
	out := make([]models.Product, len(in))
	copy(out, in)
	return out
}
