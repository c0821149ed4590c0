package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/pricing"
	"github.com/GTDGit/pricewatch/internal/utils"
	"github.com/GTDGit/pricewatch/pkg/fetcher"
)

// Selectors locate product fields inside a listing or detail page.
//
// Each field holds one or more CSS selectors separated by " | ", tried in
// order until one yields a non-empty value. A selector ending in "@attr"
// reads that attribute instead of the element text.
type Selectors struct {
	Item          string // listing container; optional root on detail pages
	Name          string
	Link          string
	Price         string
	OriginalPrice string
	Image         string
	Stock         string
	Rating        string
	ReviewCount   string
	Brand         string
	Category      string
}

// Profile describes the markup of one site.
type Profile struct {
	Site      string
	BaseURL   string   // resolves relative category references
	Hosts     []string // host suffixes accepted by CanHandle
	SearchURL string   // fmt template, %s is the query-escaped keyword
	List      Selectors
	Detail    Selectors
}

// MarkupCrawler parses HTML pages with goquery according to a Profile.
type MarkupCrawler struct {
	profile Profile
	fetcher Fetcher
}

// NewMarkupCrawler creates a crawler for profile that fetches through f.
func NewMarkupCrawler(profile Profile, f Fetcher) *MarkupCrawler {
	return &MarkupCrawler{profile: profile, fetcher: f}
}

// Site returns the profile's site code.
func (m *MarkupCrawler) Site() string {
	return m.profile.Site
}

// CanHandle reports whether rawURL's host belongs to the profile.
func (m *MarkupCrawler) CanHandle(rawURL string) bool {
	return hostMatches(rawURL, m.profile.Hosts)
}

// CrawlProductList fetches a category page. categoryRef may be absolute or
// relative to the profile's BaseURL.
func (m *MarkupCrawler) CrawlProductList(ctx context.Context, categoryRef string) ([]models.Product, error) {
	target, err := resolveRef(m.profile.BaseURL, categoryRef)
	if err != nil {
		return nil, err
	}
	page, err := m.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return m.parseList(page)
}

// SearchProducts fetches the search results page for keyword.
func (m *MarkupCrawler) SearchProducts(ctx context.Context, keyword string) ([]models.Product, error) {
	target, err := searchURL(m.profile.SearchURL, keyword)
	if err != nil {
		return nil, err
	}
	page, err := m.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return m.parseList(page)
}

// CrawlProductDetail fetches and parses a single product page. When the
// selectors miss the name or price, the page's JSON-LD is used instead.
func (m *MarkupCrawler) CrawlProductDetail(ctx context.Context, productURL string) (*models.Product, error) {
	if _, err := fetcher.ValidateURL(productURL); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidArgument, err)
	}
	page, err := m.fetcher.Fetch(ctx, productURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrMalformedListing, err)
	}

	root := doc.Selection
	if m.profile.Detail.Item != "" {
		if sel := findAny(doc.Selection, m.profile.Detail.Item).First(); sel.Length() > 0 {
			root = sel
		}
	}
	in := m.extract(root, m.profile.Detail, page.URL)
	in.SourceURL = productURL

	if in.Name == "" || in.CurrentPrice == 0 {
		if found := productsFromJSONLD(doc, m.profile.Site, page.URL); len(found) > 0 {
			p := found[0]
			p.SourceURL = productURL
			if err := p.Validate(); err == nil {
				return &p, nil
			}
		}
	}

	p := models.NewProduct(in)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", utils.ErrMalformedListing, productURL, err)
	}
	return &p, nil
}

func (m *MarkupCrawler) parseList(page *fetcher.Page) ([]models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrMalformedListing, err)
	}

	products := make([]models.Product, 0)
	findAny(doc.Selection, m.profile.List.Item).Each(func(i int, item *goquery.Selection) {
		in := m.extract(item, m.profile.List, page.URL)
		p := models.NewProduct(in)
		if err := p.Validate(); err != nil {
			log.Warn().
				Str("site", m.profile.Site).
				Str("page", page.URL).
				Int("index", i).
				Err(err).
				Msg("Skipping malformed listing")
			return
		}
		products = append(products, p)
	})
	return products, nil
}

func (m *MarkupCrawler) extract(root *goquery.Selection, s Selectors, pageURL string) models.ProductInput {
	in := models.ProductInput{
		Site:          m.profile.Site,
		Name:          collapseSpace(pick(root, s.Name)),
		CurrentPrice:  pricing.ParsePrice(pick(root, s.Price)),
		OriginalPrice: pricing.ParsePrice(pick(root, s.OriginalPrice)),
		StockStatus:   ParseStockStatus(pick(root, s.Stock)),
		Brand:         collapseSpace(pick(root, s.Brand)),
		Category:      collapseSpace(pick(root, s.Category)),
		ReviewCount:   pricing.ParseCount(pick(root, s.ReviewCount)),
	}
	if link := pick(root, s.Link); link != "" {
		in.SourceURL = resolveAgainst(pageURL, link)
	}
	if img := pick(root, s.Image); img != "" {
		in.ImageURL = resolveAgainst(pageURL, img)
	}
	if r, ok := pricing.ParseRating(pick(root, s.Rating)); ok {
		in.ReviewRating = &r
	}
	return in
}

// pick returns the first non-empty value of the " | " separated selectors.
func pick(root *goquery.Selection, selectors string) string {
	if selectors == "" {
		return ""
	}
	for _, alt := range strings.Split(selectors, " | ") {
		sel, attr, hasAttr := strings.Cut(strings.TrimSpace(alt), "@")
		var found *goquery.Selection
		if sel == "" {
			found = root
		} else {
			found = root.Find(sel).First()
		}
		if found.Length() == 0 {
			continue
		}
		var v string
		if hasAttr {
			v, _ = found.Attr(attr)
		} else {
			v = found.Text()
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// findAny returns the matches of the first " | " alternative that matches
// anything.
func findAny(root *goquery.Selection, selectors string) *goquery.Selection {
	var found *goquery.Selection
	for _, alt := range strings.Split(selectors, " | ") {
		found = root.Find(strings.TrimSpace(alt))
		if found.Length() > 0 {
			return found
		}
	}
	return found
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// searchURL renders template for keyword, rejecting empty keywords.
func searchURL(template, keyword string) (string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", fmt.Errorf("%w: empty keyword", utils.ErrInvalidArgument)
	}
	if !strings.Contains(template, "%s") {
		return "", fmt.Errorf("search is not supported: no search url template")
	}
	return fmt.Sprintf(template, url.QueryEscape(keyword)), nil
}

// resolveRef resolves a category reference against base.
func resolveRef(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty category reference", utils.ErrInvalidArgument)
	}
	if u, err := fetcher.ValidateURL(ref); err == nil {
		return u.String(), nil
	}
	b, err := fetcher.ValidateURL(base)
	if err != nil {
		return "", fmt.Errorf("%w: relative category %q without base url", utils.ErrInvalidArgument, ref)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q", utils.ErrInvalidArgument, ref)
	}
	return b.ResolveReference(r).String(), nil
}

// resolveAgainst makes href absolute relative to pageURL, returning href
// unchanged when either side does not parse.
func resolveAgainst(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// hostMatches reports whether rawURL's host equals or is a subdomain of
// one of hosts.
func hostMatches(rawURL string, hosts []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
