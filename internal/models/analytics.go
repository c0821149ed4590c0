package models

import "time"

// PriceDistribution counts products per price bucket.
type PriceDistribution struct {
	Budget   int `json:"budget"`
	MidRange int `json:"midRange"`
	Luxury   int `json:"luxury"`
}

// PriceAnalysis summarizes the prices of one batch.
// Budget + MidRange + Luxury always equals TotalCount.
type PriceAnalysis struct {
	AveragePrice float64           `json:"averagePrice"`
	MinPrice     int64             `json:"minPrice"`
	MaxPrice     int64             `json:"maxPrice"`
	PriceRange   int64             `json:"priceRange"`
	TotalCount   int               `json:"totalCount"`
	Distribution PriceDistribution `json:"distribution"`
}

// PriceSpread holds order statistics of a batch.
type PriceSpread struct {
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
	P90    float64 `json:"p90"`
}

// SiteSummary compares one competitor site within a batch.
type SiteSummary struct {
	Site         string  `json:"site"`
	AveragePrice float64 `json:"averagePrice"`
	MinPrice     int64   `json:"minPrice"`
	MaxPrice     int64   `json:"maxPrice"`
	Products     int     `json:"products"`
}

// SiteComparison ranks sites by average price.
type SiteComparison struct {
	Sites         []SiteSummary `json:"sites"`
	Cheapest      string        `json:"cheapest,omitempty"`
	MostExpensive string        `json:"mostExpensive,omitempty"`
}

// CategoryShare is the share of a category in a batch.
type CategoryShare struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Percent  float64 `json:"percent"`
}

// SnapshotOverview compares two snapshots of the same source set.
type SnapshotOverview struct {
	TotalProducts     int     `json:"totalProducts"`
	AvgPriceChangePct float64 `json:"avgPriceChangePct"`
	NewProducts       int     `json:"newProducts"`
	PriceAlerts       int     `json:"priceAlerts"`
}

// PricePoint is one observed price of a product.
type PricePoint struct {
	SourceURL  string    `db:"source_url" json:"sourceUrl"`
	Price      int64     `db:"current_price" json:"price"`
	ObservedAt time.Time `db:"observed_at" json:"observedAt"`
}

// DailyPrice aggregates the price points observed on one day.
type DailyPrice struct {
	Date     string  `json:"date"`
	AvgPrice float64 `json:"avgPrice"`
	MinPrice int64   `json:"minPrice"`
	MaxPrice int64   `json:"maxPrice"`
}

// DateRange bounds a history query. Zero values leave the side open.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}
