package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/pricing"
	"github.com/GTDGit/pricewatch/internal/utils"
	"github.com/GTDGit/pricewatch/pkg/fetcher"
)

// JSONLDCrawler reads schema.org Product data embedded as
// <script type="application/ld+json">. It serves any site that publishes
// structured data, so it only needs a site code and a search url template.
type JSONLDCrawler struct {
	site      string
	searchURL string
	hosts     []string
	fetcher   Fetcher
}

// NewJSONLDCrawler creates a crawler for site. searchURL must be an
// absolute url containing %s for the escaped keyword; its host is what
// CanHandle accepts.
func NewJSONLDCrawler(site, searchURL string, f Fetcher) (*JSONLDCrawler, error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return nil, fmt.Errorf("%w: empty site code", utils.ErrInvalidArgument)
	}
	if !strings.Contains(searchURL, "%s") {
		return nil, fmt.Errorf("%w: search url for %s must contain %%s", utils.ErrInvalidArgument, site)
	}
	u, err := fetcher.ValidateURL(strings.Replace(searchURL, "%s", "x", 1))
	if err != nil {
		return nil, fmt.Errorf("%w: search url for %s: %v", utils.ErrInvalidArgument, site, err)
	}
	return &JSONLDCrawler{
		site:      site,
		searchURL: searchURL,
		hosts:     []string{strings.TrimPrefix(u.Hostname(), "www.")},
		fetcher:   f,
	}, nil
}

func (j *JSONLDCrawler) Site() string { return j.site }

func (j *JSONLDCrawler) CanHandle(rawURL string) bool {
	return hostMatches(rawURL, j.hosts)
}

func (j *JSONLDCrawler) CrawlProductList(ctx context.Context, categoryRef string) ([]models.Product, error) {
	target, err := resolveRef(j.searchURL, categoryRef)
	if err != nil {
		return nil, err
	}
	return j.list(ctx, target)
}

func (j *JSONLDCrawler) SearchProducts(ctx context.Context, keyword string) ([]models.Product, error) {
	target, err := searchURL(j.searchURL, keyword)
	if err != nil {
		return nil, err
	}
	return j.list(ctx, target)
}

func (j *JSONLDCrawler) CrawlProductDetail(ctx context.Context, productURL string) (*models.Product, error) {
	if _, err := fetcher.ValidateURL(productURL); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidArgument, err)
	}
	page, err := j.fetcher.Fetch(ctx, productURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrMalformedListing, err)
	}
	for _, p := range productsFromJSONLD(doc, j.site, page.URL) {
		p.SourceURL = productURL
		if p.Validate() == nil {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: no product data on %s", utils.ErrMalformedListing, productURL)
}

func (j *JSONLDCrawler) list(ctx context.Context, target string) ([]models.Product, error) {
	page, err := j.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrMalformedListing, err)
	}

	products := make([]models.Product, 0)
	for _, p := range productsFromJSONLD(doc, j.site, page.URL) {
		if err := p.Validate(); err != nil {
			log.Warn().Str("site", j.site).Str("page", page.URL).Err(err).Msg("Skipping malformed listing")
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// productsFromJSONLD collects every schema.org Product found in the
// document's ld+json scripts, including those nested in ItemList and
// @graph containers. Scripts that fail to decode are skipped.
func productsFromJSONLD(doc *goquery.Document, site, pageURL string) []models.Product {
	var nodes []ldNode
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		found, err := decodeLD([]byte(raw))
		if err != nil {
			log.Debug().Str("site", site).Err(err).Msg("Ignoring undecodable ld+json block")
			return
		}
		nodes = append(nodes, found...)
	})

	products := make([]models.Product, 0, len(nodes))
	for _, n := range nodes {
		products = append(products, n.toProduct(site, pageURL))
	}
	return products
}

type ldNode struct {
	Type            ldStrings `json:"@type"`
	Name            ldText    `json:"name"`
	URL             ldText    `json:"url"`
	Image           ldStrings `json:"image"`
	Brand           ldText    `json:"brand"`
	Category        ldText    `json:"category"`
	Offers          ldOffers  `json:"offers"`
	AggregateRating *ldRating `json:"aggregateRating"`
	Graph           []ldRaw   `json:"@graph"`
	ItemListElement []ldRaw   `json:"itemListElement"`
	Item            *ldRaw    `json:"item"`
}

type ldRaw = json.RawMessage

type ldOffer struct {
	Price        ldText `json:"price"`
	LowPrice     ldText `json:"lowPrice"`
	Availability ldText `json:"availability"`
	RawSpec      ldRaw  `json:"priceSpecification"`
}

type ldPriceSpec struct {
	Price     ldText `json:"price"`
	PriceType ldText `json:"priceType"`
}

type ldRating struct {
	RatingValue ldText `json:"ratingValue"`
	ReviewCount ldText `json:"reviewCount"`
	RatingCount ldText `json:"ratingCount"`
}

func (n ldNode) isType(t string) bool {
	for _, v := range n.Type {
		if strings.EqualFold(v, t) || strings.HasSuffix(strings.ToLower(v), "/"+strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// decodeLD decodes one ld+json payload (an object or an array of objects)
// and returns the Product nodes it contains.
func decodeLD(data []byte) ([]ldNode, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []ldRaw
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		var out []ldNode
		for _, item := range items {
			found, err := decodeLD(item)
			if err != nil {
				continue
			}
			out = append(out, found...)
		}
		return out, nil
	}

	var n ldNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}

	var out []ldNode
	if n.isType("Product") {
		out = append(out, n)
	}
	children := append([]ldRaw{}, n.Graph...)
	children = append(children, n.ItemListElement...)
	if n.Item != nil {
		children = append(children, *n.Item)
	}
	for _, c := range children {
		found, err := decodeLD(c)
		if err != nil {
			continue
		}
		out = append(out, found...)
	}
	return out, nil
}

func (n ldNode) toProduct(site, pageURL string) models.Product {
	in := models.ProductInput{
		Site:        site,
		Name:        collapseSpace(string(n.Name)),
		Brand:       string(n.Brand),
		Category:    string(n.Category),
		StockStatus: models.StockInStock,
	}
	if n.URL != "" {
		in.SourceURL = resolveAgainst(pageURL, string(n.URL))
	} else {
		in.SourceURL = pageURL
	}
	if len(n.Image) > 0 {
		in.ImageURL = resolveAgainst(pageURL, n.Image[0])
	}

	if len(n.Offers) > 0 {
		o := n.Offers[0]
		in.CurrentPrice = pricing.ParseAmount(string(o.Price))
		if in.CurrentPrice == 0 {
			in.CurrentPrice = pricing.ParseAmount(string(o.LowPrice))
		}
		for _, ps := range o.specs() {
			if strings.Contains(strings.ToLower(string(ps.PriceType)), "listprice") ||
				strings.Contains(strings.ToLower(string(ps.PriceType)), "strikethroughprice") {
				in.OriginalPrice = pricing.ParseAmount(string(ps.Price))
			}
		}
		if o.Availability != "" {
			in.StockStatus = ParseStockStatus(string(o.Availability))
		}
	}

	if r := n.AggregateRating; r != nil {
		if v, ok := pricing.ParseRating(string(r.RatingValue)); ok {
			in.ReviewRating = &v
		}
		in.ReviewCount = pricing.ParseCount(string(r.ReviewCount))
		if in.ReviewCount == 0 {
			in.ReviewCount = pricing.ParseCount(string(r.RatingCount))
		}
	}
	return models.NewProduct(in)
}

// specs decodes priceSpecification, which may be an object or an array.
func (o ldOffer) specs() []ldPriceSpec {
	data := bytes.TrimSpace(o.RawSpec)
	if len(data) == 0 {
		return nil
	}
	if data[0] == '[' {
		var out []ldPriceSpec
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	}
	var one ldPriceSpec
	if err := json.Unmarshal(data, &one); err != nil {
		return nil
	}
	return []ldPriceSpec{one}
}

// ldText accepts a JSON string, number or an object with a "name" or
// "@id" field, which covers how sites encode brand, price and
// availability.
type ldText string

func (t *ldText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = ldText(strings.TrimSpace(s))
	case '{':
		var obj struct {
			Name ldText `json:"name"`
			ID   ldText `json:"@id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Name != "" {
			*t = obj.Name
		} else {
			*t = obj.ID
		}
	case '[':
		var arr []ldText
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		if len(arr) > 0 {
			*t = arr[0]
		}
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			return nil
		}
		*t = ldText(data)
	}
	return nil
}

// ldStrings accepts a single string, an array of strings, or objects with
// a "url" field (ImageObject).
type ldStrings []string

func (s *ldStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] != '[' {
		data = append(append([]byte{'['}, data...), ']')
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	for _, item := range items {
		var str string
		if json.Unmarshal(item, &str) == nil {
			if str = strings.TrimSpace(str); str != "" {
				*s = append(*s, str)
			}
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if json.Unmarshal(item, &obj) == nil && obj.URL != "" {
			*s = append(*s, obj.URL)
		}
	}
	return nil
}

// ldOffers accepts a single Offer, an array of offers, or an
// AggregateOffer carrying nested offers.
type ldOffers []ldOffer

func (o *ldOffers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '[' {
		var arr []ldOffer
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*o = arr
		return nil
	}
	var agg struct {
		ldOffer
		Offers []ldOffer `json:"offers"`
	}
	if err := json.Unmarshal(data, &agg); err != nil {
		return err
	}
	if agg.Price == "" && agg.LowPrice == "" && len(agg.Offers) > 0 {
		*o = agg.Offers
		return nil
	}
	*o = []ldOffer{agg.ldOffer}
	return nil
}
