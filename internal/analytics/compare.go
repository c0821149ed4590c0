package analytics

import (
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/GTDGit/pricewatch/internal/models"
)

// Uncategorized labels products without a category in CategoryBreakdown.
const Uncategorized = "uncategorized"

// CompareSites summarizes each site in the batch, ordered by average price
// ascending with the site code as tie-break.
func CompareSites(products []models.Product) models.SiteComparison {
	bySite := make(map[string][]models.Product)
	for _, p := range products {
		bySite[p.Site] = append(bySite[p.Site], p)
	}

	summaries := make([]models.SiteSummary, 0, len(bySite))
	for site, items := range bySite {
		a := ComputeDistribution(items, DefaultThresholds())
		summaries = append(summaries, models.SiteSummary{
			Site:         site,
			AveragePrice: round2(a.AveragePrice),
			MinPrice:     a.MinPrice,
			MaxPrice:     a.MaxPrice,
			Products:     a.TotalCount,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].AveragePrice != summaries[j].AveragePrice {
			return summaries[i].AveragePrice < summaries[j].AveragePrice
		}
		return summaries[i].Site < summaries[j].Site
	})

	cmp := models.SiteComparison{Sites: summaries}
	if len(summaries) > 0 {
		cmp.Cheapest = summaries[0].Site
		cmp.MostExpensive = summaries[len(summaries)-1].Site
	}
	return cmp
}

// CategoryBreakdown returns the share of each category, largest first.
func CategoryBreakdown(products []models.Product) []models.CategoryShare {
	counts := make(map[string]int)
	for _, p := range products {
		c := strings.TrimSpace(p.Category)
		if c == "" {
			c = Uncategorized
		}
		counts[c]++
	}

	shares := make([]models.CategoryShare, 0, len(counts))
	for c, n := range counts {
		shares = append(shares, models.CategoryShare{
			Category: c,
			Count:    n,
			Percent:  round2(float64(n) / float64(len(products)) * 100),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].Category < shares[j].Category
	})
	return shares
}

// Overview compares the latest snapshot against the previous one.
// AvgPriceChangePct averages the change of products present in both with a
// positive previous price; PriceAlerts counts price_drop and price_rise
// alerts.
func Overview(prev, curr []models.Product, alerts []models.PriceAlert) models.SnapshotOverview {
	before := make(map[string]int64, len(prev))
	for _, p := range prev {
		before[p.SourceURL] = p.CurrentPrice
	}

	o := models.SnapshotOverview{TotalProducts: len(curr)}
	var changes stats.Float64Data
	for _, p := range curr {
		old, ok := before[p.SourceURL]
		if !ok {
			o.NewProducts++
			continue
		}
		if pct, ok := PriceChangePct(old, p.CurrentPrice); ok {
			changes = append(changes, pct)
		}
	}
	if len(changes) > 0 {
		mean, _ := stats.Mean(changes)
		o.AvgPriceChangePct = round2(mean)
	}
	for _, a := range alerts {
		if a.Kind == models.AlertPriceDrop || a.Kind == models.AlertPriceRise {
			o.PriceAlerts++
		}
	}
	return o
}

// DailyHistory groups price points by UTC day in ascending date order.
func DailyHistory(points []models.PricePoint) []models.DailyPrice {
	byDay := make(map[string][]int64)
	for _, pt := range points {
		day := pt.ObservedAt.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], pt.Price)
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	history := make([]models.DailyPrice, 0, len(days))
	for _, d := range days {
		prices := byDay[d]
		dp := models.DailyPrice{Date: d, MinPrice: prices[0], MaxPrice: prices[0]}
		var sum float64
		for _, p := range prices {
			sum += float64(p)
			if p < dp.MinPrice {
				dp.MinPrice = p
			}
			if p > dp.MaxPrice {
				dp.MaxPrice = p
			}
		}
		dp.AvgPrice = round2(sum / float64(len(prices)))
		history = append(history, dp)
	}
	return history
}
