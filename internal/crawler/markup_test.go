package crawler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/utils"
	"github.com/GTDGit/pricewatch/pkg/fetcher"
)

// pageFetcher serves canned bodies keyed by url.
type pageFetcher struct {
	pages map[string]string
	calls atomic.Int32
}

func (f *pageFetcher) Fetch(_ context.Context, rawURL string) (*fetcher.Page, error) {
	f.calls.Add(1)
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, &fetcher.FetchError{Kind: fetcher.KindHTTPStatus, URL: rawURL, StatusCode: 404}
	}
	return &fetcher.Page{URL: rawURL, StatusCode: 200, Body: []byte(body), FetchedAt: time.Now()}, nil
}

const listingHTML = `<html><body><ul>
<li class="item">
  <a class="title" href="/p/1">  Galaxy   Buds  </a>
  <span class="price">₩89,000</span>
  <del class="was">₩129,000</del>
  <img src="/img/1.jpg">
  <span class="stock">품절임박</span>
  <span class="rating">4.6</span>
  <span class="reviews">(1,204)</span>
</li>
<li class="item">
  <a class="title" href="https://shop.example.com/p/2">AirPods</a>
  <span class="price">문의</span>
</li>
<li class="item">
  <a class="title" href="/p/3"></a>
  <span class="price">10,000</span>
</li>
</ul></body></html>`

func testProfile() Profile {
	return Profile{
		Site:      "shop",
		BaseURL:   "https://shop.example.com/",
		Hosts:     []string{"shop.example.com"},
		SearchURL: "https://shop.example.com/search?q=%s",
		List: Selectors{
			Item:          "li.item",
			Name:          "a.title",
			Link:          "a.title@href",
			Price:         ".price",
			OriginalPrice: ".was",
			Image:         "img@data-src | img@src",
			Stock:         ".stock",
			Rating:        ".rating",
			ReviewCount:   ".reviews",
		},
		Detail: Selectors{
			Name:  "h1",
			Price: ".sale | .price",
		},
	}
}

func TestMarkupCrawlerSearchProducts(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		"https://shop.example.com/search?q=wireless+earbuds": listingHTML,
	}}
	c := NewMarkupCrawler(testProfile(), f)

	products, err := c.SearchProducts(context.Background(), " wireless earbuds ")
	require.NoError(t, err)
	// the unnamed listing is skipped, the one priced "문의" is kept at 0
	require.Len(t, products, 2)

	first := products[0]
	assert.Equal(t, "shop", first.Site)
	assert.Equal(t, "Galaxy Buds", first.Name)
	assert.Equal(t, "https://shop.example.com/p/1", first.SourceURL)
	assert.Equal(t, int64(89000), first.CurrentPrice)
	require.NotNil(t, first.OriginalPrice)
	assert.Equal(t, int64(129000), *first.OriginalPrice)
	assert.Equal(t, 31, first.DiscountRate)
	assert.Equal(t, "https://shop.example.com/img/1.jpg", first.ImageURL)
	assert.Equal(t, models.StockLowStock, first.StockStatus)
	require.NotNil(t, first.ReviewRating)
	assert.InDelta(t, 4.6, *first.ReviewRating, 1e-9)
	assert.Equal(t, 1204, first.ReviewCount)

	second := products[1]
	assert.Equal(t, "AirPods", second.Name)
	assert.Equal(t, int64(0), second.CurrentPrice)
	assert.Nil(t, second.OriginalPrice)
	assert.Equal(t, models.StockInStock, second.StockStatus)
}

func TestMarkupCrawlerEmptyKeywordFailsBeforeFetch(t *testing.T) {
	f := &pageFetcher{}
	c := NewMarkupCrawler(testProfile(), f)

	_, err := c.SearchProducts(context.Background(), "   ")
	assert.ErrorIs(t, err, utils.ErrInvalidArgument)
	assert.Zero(t, f.calls.Load())
}

func TestMarkupCrawlerNoMatchesReturnsEmptySlice(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		"https://shop.example.com/search?q=nothing": "<html><body><p>검색 결과가 없습니다</p></body></html>",
	}}
	c := NewMarkupCrawler(testProfile(), f)

	products, err := c.SearchProducts(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestMarkupCrawlerProductListResolvesRelativeCategory(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		"https://shop.example.com/c/audio": listingHTML,
	}}
	c := NewMarkupCrawler(testProfile(), f)

	products, err := c.CrawlProductList(context.Background(), "/c/audio")
	require.NoError(t, err)
	assert.Len(t, products, 2)

	_, err = c.CrawlProductList(context.Background(), "")
	assert.ErrorIs(t, err, utils.ErrInvalidArgument)
}

func TestMarkupCrawlerFetchErrorPropagates(t *testing.T) {
	c := NewMarkupCrawler(testProfile(), &pageFetcher{})

	_, err := c.CrawlProductList(context.Background(), "https://shop.example.com/c/missing")
	var fe *fetcher.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 404, fe.StatusCode)
}

func TestMarkupCrawlerProductDetail(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		"https://shop.example.com/p/1": `<html><body><h1>Galaxy Buds</h1><span class="sale">79,000원</span></body></html>`,
		"https://shop.example.com/p/ld": `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"Pixel Buds","offers":{"@type":"Offer","price":"149000","availability":"https://schema.org/OutOfStock"}}
</script></head><body><h1></h1></body></html>`,
		"https://shop.example.com/p/broken": `<html><body><div>nothing here</div></body></html>`,
	}}
	c := NewMarkupCrawler(testProfile(), f)
	ctx := context.Background()

	p, err := c.CrawlProductDetail(ctx, "https://shop.example.com/p/1")
	require.NoError(t, err)
	assert.Equal(t, "Galaxy Buds", p.Name)
	assert.Equal(t, int64(79000), p.CurrentPrice)
	assert.Equal(t, "https://shop.example.com/p/1", p.SourceURL)

	p, err = c.CrawlProductDetail(ctx, "https://shop.example.com/p/ld")
	require.NoError(t, err)
	assert.Equal(t, "Pixel Buds", p.Name)
	assert.Equal(t, int64(149000), p.CurrentPrice)
	assert.Equal(t, models.StockOutOfStock, p.StockStatus)

	_, err = c.CrawlProductDetail(ctx, "https://shop.example.com/p/broken")
	assert.ErrorIs(t, err, utils.ErrMalformedListing)

	_, err = c.CrawlProductDetail(ctx, "not a url")
	assert.ErrorIs(t, err, utils.ErrInvalidArgument)
}

func TestMarkupCrawlerCanHandle(t *testing.T) {
	c := NewMarkupCrawler(MercadoLivreProfile(), &pageFetcher{})

	assert.True(t, c.CanHandle("https://produto.mercadolivre.com.br/MLB-123"))
	assert.True(t, c.CanHandle("https://www.mercadolivre.com.br/p/MLB1"))
	assert.False(t, c.CanHandle("https://notmercadolivre.com.br/x"))
	assert.False(t, c.CanHandle("::"))
}

func TestMercadoLivreProfileParsesPolyCards(t *testing.T) {
	html := `<html><body><ol>
<li class="ui-search-layout__item"><div class="poly-card">
  <a class="poly-component__title" href="https://produto.mercadolivre.com.br/MLB-1">Fone Bluetooth</a>
  <s class="andes-money-amount andes-money-amount--previous"><span class="andes-money-amount__fraction">249</span></s>
  <div class="poly-price__current"><span class="andes-money-amount__fraction">199</span></div>
  <img data-src="https://http2.mlstatic.com/1.webp" src="data:image/gif;base64,R0l">
</div></li>
</ol></body></html>`
	f := &pageFetcher{pages: map[string]string{"https://lista.mercadolivre.com.br/fone": html}}
	c := NewMarkupCrawler(MercadoLivreProfile(), f)

	products, err := c.SearchProducts(context.Background(), "fone")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Fone Bluetooth", products[0].Name)
	assert.Equal(t, int64(199), products[0].CurrentPrice)
	require.NotNil(t, products[0].OriginalPrice)
	assert.Equal(t, int64(249), *products[0].OriginalPrice)
	assert.Equal(t, 20, products[0].DiscountRate)
	assert.Equal(t, "https://http2.mlstatic.com/1.webp", products[0].ImageURL)
}

func TestParseJSONLDSites(t *testing.T) {
	sites, err := ParseJSONLDSites("acme=https://acme.example/search?q=%s, beta=https://beta.example/s/%s ,")
	require.NoError(t, err)
	assert.Equal(t, []JSONLDSite{
		{Code: "acme", SearchURL: "https://acme.example/search?q=%s"},
		{Code: "beta", SearchURL: "https://beta.example/s/%s"},
	}, sites)

	sites, err = ParseJSONLDSites("")
	require.NoError(t, err)
	assert.Empty(t, sites)

	_, err = ParseJSONLDSites("acme")
	assert.Error(t, err)
}
