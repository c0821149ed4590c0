package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/GTDGit/pricewatch/internal/models"
)

// AlertOptions configures DetectAlerts.
type AlertOptions struct {
	// MagnitudeThresholdPct is the minimum absolute price change, in
	// percent, that raises price_drop or price_rise.
	MagnitudeThresholdPct float64
	// Cooldown suppresses an alert when one of the same kind was raised for
	// the same product within this window.
	Cooldown time.Duration
	// ReviewRatingDelta is the minimum absolute rating change that raises
	// review_alert. Zero disables review alerts.
	ReviewRatingDelta float64
}

// DefaultAlertOptions returns a 10% threshold, a one hour cooldown and a
// 0.5 star review delta.
func DefaultAlertOptions() AlertOptions {
	return AlertOptions{
		MagnitudeThresholdPct: 10,
		Cooldown:              time.Hour,
		ReviewRatingDelta:     0.5,
	}
}

// DetectAlerts diffs two snapshots matched by SourceURL.
//
// Products only in curr raise new_product. Products in both raise
// price_drop or price_rise when the change reaches the threshold,
// stock_change when the stock status differs and review_alert when the
// rating moved by at least ReviewRatingDelta. Products only in prev raise
// nothing. recent holds alerts already issued; any product and kind pair
// alerted after now-Cooldown is skipped, as are repeats within curr.
//
// Returned alerts carry no ID; the caller assigns one when persisting.
func DetectAlerts(prev, curr []models.Product, opts AlertOptions, recent []models.PriceAlert, now time.Time) []models.PriceAlert {
	before := make(map[string]models.Product, len(prev))
	for _, p := range prev {
		before[p.SourceURL] = p
	}

	type key struct {
		ref  string
		kind models.AlertKind
	}
	suppressed := make(map[key]bool)
	if opts.Cooldown > 0 {
		since := now.Add(-opts.Cooldown)
		for _, a := range recent {
			if a.ObservedAt.After(since) {
				suppressed[key{a.ProductRef, a.Kind}] = true
			}
		}
	}

	alerts := make([]models.PriceAlert, 0)
	emit := func(p models.Product, kind models.AlertKind, magnitude float64, msg string) {
		k := key{p.SourceURL, kind}
		if suppressed[k] {
			return
		}
		suppressed[k] = true
		alerts = append(alerts, models.PriceAlert{
			Kind:        kind,
			ProductRef:  p.SourceURL,
			ProductName: p.Name,
			Site:        p.Site,
			Message:     msg,
			ObservedAt:  now,
			Magnitude:   round2(magnitude),
		})
	}

	seen := make(map[string]bool, len(curr))
	for _, p := range curr {
		if seen[p.SourceURL] {
			continue
		}
		seen[p.SourceURL] = true

		old, ok := before[p.SourceURL]
		if !ok {
			emit(p, models.AlertNewProduct, 0, fmt.Sprintf("New product %q listed at %d", p.Name, p.CurrentPrice))
			continue
		}

		if change, ok := PriceChangePct(old.CurrentPrice, p.CurrentPrice); ok &&
			math.Abs(change) >= opts.MagnitudeThresholdPct && change != 0 {
			kind := models.AlertPriceRise
			verb := "rose"
			if change < 0 {
				kind = models.AlertPriceDrop
				verb = "dropped"
			}
			emit(p, kind, change, fmt.Sprintf("Price of %q %s from %d to %d (%.2f%%)",
				p.Name, verb, old.CurrentPrice, p.CurrentPrice, change))
		}

		if old.StockStatus != p.StockStatus {
			emit(p, models.AlertStockChange, 0, fmt.Sprintf("Stock of %q changed from %s to %s",
				p.Name, old.StockStatus, p.StockStatus))
		}

		if opts.ReviewRatingDelta > 0 && old.ReviewRating != nil && p.ReviewRating != nil {
			delta := *p.ReviewRating - *old.ReviewRating
			if math.Abs(delta) >= opts.ReviewRatingDelta {
				var pct float64
				if *old.ReviewRating > 0 {
					pct = delta / *old.ReviewRating * 100
				}
				emit(p, models.AlertReview, pct, fmt.Sprintf("Rating of %q moved from %.1f to %.1f",
					p.Name, *old.ReviewRating, *p.ReviewRating))
			}
		}
	}
	return alerts
}

// PriceChangePct returns (curr-prev)/prev*100. ok is false when prev is not
// positive and the change is undefined.
func PriceChangePct(prev, curr int64) (pct float64, ok bool) {
	if prev <= 0 {
		return 0, false
	}
	return float64(curr-prev) / float64(prev) * 100, true
}
