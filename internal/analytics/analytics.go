// Package analytics turns product batches into price summaries, discount
// rankings and snapshot alerts. Everything here is pure: no I/O, no clocks
// and no shared state, so callers pass "now" and prior alerts explicitly.
package analytics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/GTDGit/pricewatch/internal/models"
)

// Thresholds split prices into buckets. Prices below BudgetMax are budget,
// prices at or above LuxuryMin are luxury, the rest are mid-range.
type Thresholds struct {
	BudgetMax int64
	LuxuryMin int64
}

// DefaultThresholds returns the 100,000 / 200,000 breakpoints.
func DefaultThresholds() Thresholds {
	return Thresholds{BudgetMax: 100000, LuxuryMin: 200000}
}

// ComputeDistribution aggregates min, max, mean and bucket counts in one
// pass. An empty batch yields the zero PriceAnalysis.
func ComputeDistribution(products []models.Product, t Thresholds) models.PriceAnalysis {
	var a models.PriceAnalysis
	if len(products) == 0 {
		return a
	}

	var sum float64
	a.MinPrice = math.MaxInt64
	for _, p := range products {
		price := p.CurrentPrice
		sum += float64(price)
		if price < a.MinPrice {
			a.MinPrice = price
		}
		if price > a.MaxPrice {
			a.MaxPrice = price
		}
		switch {
		case price < t.BudgetMax:
			a.Distribution.Budget++
		case price >= t.LuxuryMin:
			a.Distribution.Luxury++
		default:
			a.Distribution.MidRange++
		}
	}

	a.TotalCount = len(products)
	a.AveragePrice = sum / float64(a.TotalCount)
	// float rounding must not push the mean outside [min, max]
	a.AveragePrice = math.Max(float64(a.MinPrice), math.Min(float64(a.MaxPrice), a.AveragePrice))
	a.PriceRange = a.MaxPrice - a.MinPrice
	return a
}

// ComputeSpread returns the median, population standard deviation and 90th
// percentile of current prices.
func ComputeSpread(products []models.Product) models.PriceSpread {
	var spread models.PriceSpread
	if len(products) == 0 {
		return spread
	}
	data := make(stats.Float64Data, len(products))
	for i, p := range products {
		data[i] = float64(p.CurrentPrice)
	}
	spread.Median, _ = stats.Median(data)
	spread.StdDev, _ = stats.StandardDeviationPopulation(data)
	p90, err := stats.Percentile(data, 90)
	if err != nil || math.IsNaN(p90) {
		// too few samples to interpolate
		p90, _ = stats.Max(data)
	}
	spread.P90 = p90
	spread.StdDev = round2(spread.StdDev)
	return spread
}

// RankDiscounts orders products by discount rate descending, breaking ties
// by lower current price and then by input order. At most topN entries are
// returned; topN <= 0 yields an empty ranking.
func RankDiscounts(products []models.Product, topN int) []models.DiscountEntry {
	if topN <= 0 || len(products) == 0 {
		return []models.DiscountEntry{}
	}
	entries := make([]models.DiscountEntry, len(products))
	for i, p := range products {
		entries[i] = models.DiscountEntry{Product: p, DiscountRate: p.DiscountRate}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DiscountRate != entries[j].DiscountRate {
			return entries[i].DiscountRate > entries[j].DiscountRate
		}
		return entries[i].Product.CurrentPrice < entries[j].Product.CurrentPrice
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}

func round2(v float64) float64 {
	r, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return r
}
