package analytics

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/pricewatch/internal/models"
)

func product(url string, price int64) models.Product {
	return models.NewProduct(models.ProductInput{
		Site:         "shop",
		Name:         url,
		SourceURL:    "https://shop.example.com/" + url,
		CurrentPrice: price,
		StockStatus:  models.StockInStock,
	})
}

func discounted(url string, original, price int64) models.Product {
	return models.NewProduct(models.ProductInput{
		Site:          "shop",
		Name:          url,
		SourceURL:     "https://shop.example.com/" + url,
		CurrentPrice:  price,
		OriginalPrice: original,
	})
}

func TestComputeDistribution(t *testing.T) {
	products := []models.Product{
		product("a", 50000),
		product("b", 99999),
		product("c", 100000),
		product("d", 199999),
		product("e", 200000),
		product("f", 350000),
	}

	a := ComputeDistribution(products, DefaultThresholds())

	assert.Equal(t, 6, a.TotalCount)
	assert.Equal(t, int64(50000), a.MinPrice)
	assert.Equal(t, int64(350000), a.MaxPrice)
	assert.Equal(t, int64(300000), a.PriceRange)
	assert.InDelta(t, 166666.33, a.AveragePrice, 0.01)
	assert.Equal(t, models.PriceDistribution{Budget: 2, MidRange: 2, Luxury: 2}, a.Distribution)
}

func TestComputeDistributionEmpty(t *testing.T) {
	assert.Equal(t, models.PriceAnalysis{}, ComputeDistribution(nil, DefaultThresholds()))
}

func TestComputeDistributionInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(40)
		products := make([]models.Product, n)
		for i := range products {
			products[i] = product(fmt.Sprintf("p%d", i), rng.Int63n(500000))
		}

		a := ComputeDistribution(products, DefaultThresholds())
		d := a.Distribution
		assert.Equal(t, a.TotalCount, d.Budget+d.MidRange+d.Luxury)
		assert.LessOrEqual(t, float64(a.MinPrice), a.AveragePrice)
		assert.LessOrEqual(t, a.AveragePrice, float64(a.MaxPrice))
	}
}

func TestComputeSpread(t *testing.T) {
	products := make([]models.Product, 0, 10)
	for i := int64(1); i <= 10; i++ {
		products = append(products, product(fmt.Sprintf("p%d", i), i*1000))
	}

	s := ComputeSpread(products)
	assert.InDelta(t, 5500, s.Median, 1e-9)
	assert.InDelta(t, 2872.28, s.StdDev, 0.01)
	assert.InDelta(t, 9000, s.P90, 1e-9)

	single := ComputeSpread([]models.Product{product("only", 4200)})
	assert.Equal(t, models.PriceSpread{Median: 4200, StdDev: 0, P90: 4200}, single)

	assert.Equal(t, models.PriceSpread{}, ComputeSpread(nil))
}

func TestRankDiscounts(t *testing.T) {
	products := []models.Product{
		discounted("a", 10000, 9000),  // 10%
		discounted("b", 20000, 10000), // 50%
		discounted("c", 10000, 5000),  // 50%, cheaper than b
		product("d", 1000),            // 0%
		discounted("e", 40000, 30000), // 25%
	}

	ranked := RankDiscounts(products, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, "c", ranked[0].Product.Name)
	assert.Equal(t, "b", ranked[1].Product.Name)
	assert.Equal(t, "e", ranked[2].Product.Name)

	all := RankDiscounts(products, 10)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		assert.GreaterOrEqual(t, prev.DiscountRate, cur.DiscountRate)
		if prev.DiscountRate == cur.DiscountRate {
			assert.LessOrEqual(t, prev.Product.CurrentPrice, cur.Product.CurrentPrice)
		}
	}
	assert.Equal(t, "d", all[4].Product.Name)

	assert.Empty(t, RankDiscounts(products, 0))
	assert.Empty(t, RankDiscounts(products, -1))
	assert.NotNil(t, RankDiscounts(nil, 5))
}

func TestCompareSites(t *testing.T) {
	a := product("a", 10000)
	b := product("b", 30000)
	c := product("c", 5000)
	c.Site = "other"

	cmp := CompareSites([]models.Product{a, b, c})
	require.Len(t, cmp.Sites, 2)
	assert.Equal(t, "other", cmp.Cheapest)
	assert.Equal(t, "shop", cmp.MostExpensive)
	assert.Equal(t, models.SiteSummary{Site: "shop", AveragePrice: 20000, MinPrice: 10000, MaxPrice: 30000, Products: 2}, cmp.Sites[1])

	assert.Empty(t, CompareSites(nil).Sites)
}

func TestCategoryBreakdown(t *testing.T) {
	a, b, c := product("a", 1), product("b", 1), product("c", 1)
	a.Category, b.Category = "Audio", "Audio"

	shares := CategoryBreakdown([]models.Product{a, b, c})
	require.Len(t, shares, 2)
	assert.Equal(t, models.CategoryShare{Category: "Audio", Count: 2, Percent: 66.67}, shares[0])
	assert.Equal(t, models.CategoryShare{Category: Uncategorized, Count: 1, Percent: 33.33}, shares[1])
}

func TestOverview(t *testing.T) {
	prev := []models.Product{product("p1", 10000), product("p2", 20000)}
	curr := []models.Product{product("p1", 9000), product("p2", 22000), product("p3", 5000)}
	alerts := []models.PriceAlert{
		{Kind: models.AlertPriceDrop},
		{Kind: models.AlertNewProduct},
	}

	o := Overview(prev, curr, alerts)
	assert.Equal(t, 3, o.TotalProducts)
	assert.Equal(t, 1, o.NewProducts)
	assert.Equal(t, 1, o.PriceAlerts)
	assert.InDelta(t, 0, o.AvgPriceChangePct, 1e-9) // (-10 + 10) / 2
}

func TestDailyHistory(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	points := []models.PricePoint{
		{SourceURL: "a", Price: 300, ObservedAt: day2},
		{SourceURL: "a", Price: 100, ObservedAt: day1},
		{SourceURL: "b", Price: 200, ObservedAt: day1.Add(time.Hour)},
	}

	history := DailyHistory(points)
	require.Len(t, history, 2)
	assert.Equal(t, models.DailyPrice{Date: "2026-03-01", AvgPrice: 150, MinPrice: 100, MaxPrice: 200}, history[0])
	assert.Equal(t, models.DailyPrice{Date: "2026-03-02", AvgPrice: 300, MinPrice: 300, MaxPrice: 300}, history[1])
	assert.Empty(t, DailyHistory(nil))
}
