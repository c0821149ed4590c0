// Package crawler defines the per-site crawling contract and its shared
// infrastructure: the site registry, the fetch limiter and the markup and
// JSON-LD crawler implementations.
package crawler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/utils"
	"github.com/GTDGit/pricewatch/pkg/fetcher"
)

// Fetcher retrieves raw pages. *fetcher.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error)
}

// SiteCrawler is implemented once per target site.
//
// Every returned Product has a non-empty name, a non-negative price and an
// absolute source URL. Malformed listings are skipped, never failing the
// page. SearchProducts fails with utils.ErrInvalidArgument for an empty
// keyword and returns an empty slice when nothing matches.
type SiteCrawler interface {
	// Site returns the registry key of the crawler.
	Site() string

	// CanHandle reports whether rawURL belongs to this site.
	CanHandle(rawURL string) bool

	// CrawlProductList lists the products of a category page.
	CrawlProductList(ctx context.Context, categoryRef string) ([]models.Product, error)

	// CrawlProductDetail fetches a single product page.
	CrawlProductDetail(ctx context.Context, productURL string) (*models.Product, error)

	// SearchProducts runs a keyword search.
	SearchProducts(ctx context.Context, keyword string) ([]models.Product, error)
}

// Registry maps site codes to crawlers.
type Registry struct {
	mu       sync.RWMutex
	crawlers map[string]SiteCrawler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{crawlers: make(map[string]SiteCrawler)}
}

// Register adds or replaces the crawler for its site code.
func (r *Registry) Register(c SiteCrawler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.crawlers[c.Site()]; exists {
		log.Warn().Str("site", c.Site()).Msg("Replacing registered crawler")
	}
	r.crawlers[c.Site()] = c
}

// Get returns the crawler for code, or nil if none is registered.
func (r *Registry) Get(code string) SiteCrawler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.crawlers[code]
}

// Sites returns the registered site codes in sorted order.
func (r *Registry) Sites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.crawlers))
	for code := range r.crawlers {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Select returns the crawlers for codes in the given order. An empty list
// selects every registered crawler.
func (r *Registry) Select(codes []string) ([]SiteCrawler, error) {
	if len(codes) == 0 {
		codes = r.Sites()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := make([]SiteCrawler, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		c, ok := r.crawlers[code]
		if !ok {
			return nil, fmt.Errorf("%w: %s", utils.ErrUnknownSite, code)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

// FindByURL returns the crawlers that can handle rawURL, sorted by site code.
func (r *Registry) FindByURL(rawURL string) []SiteCrawler {
	var matches []SiteCrawler
	for _, code := range r.Sites() {
		if c := r.Get(code); c != nil && c.CanHandle(rawURL) {
			matches = append(matches, c)
		}
	}
	return matches
}
