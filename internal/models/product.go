package models

import (
	"net/url"
	"strings"

	"github.com/GTDGit/pricewatch/internal/pricing"
)

// StockStatus enumerates the normalized stock states of a listing.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
	StockPreorder   StockStatus = "preorder"
)

// Valid reports whether s is one of the known stock states.
func (s StockStatus) Valid() bool {
	switch s {
	case StockInStock, StockLowStock, StockOutOfStock, StockPreorder:
		return true
	}
	return false
}

// Product is one listed item at one source. Values are built with
// NewProduct and never mutated afterwards.
type Product struct {
	Site          string      `db:"site" json:"site"`
	Name          string      `db:"name" json:"name"`
	SourceURL     string      `db:"source_url" json:"sourceUrl"`
	CurrentPrice  int64       `db:"current_price" json:"currentPrice"`
	OriginalPrice *int64      `db:"original_price" json:"originalPrice,omitempty"`
	DiscountRate  int         `db:"discount_rate" json:"discountRate"`
	StockStatus   StockStatus `db:"stock_status" json:"stockStatus"`
	ImageURL      string      `db:"image_url" json:"imageUrl,omitempty"`
	Category      string      `db:"category" json:"category,omitempty"`
	Brand         string      `db:"brand" json:"brand,omitempty"`
	ReviewCount   int         `db:"review_count" json:"reviewCount"`
	ReviewRating  *float64    `db:"review_rating" json:"reviewRating,omitempty"`
}

// ProductInput carries raw parsed fields into NewProduct.
type ProductInput struct {
	Site          string
	Name          string
	SourceURL     string
	CurrentPrice  int64
	OriginalPrice int64 // 0 when the listing shows no list price
	StockStatus   StockStatus
	ImageURL      string
	Category      string
	Brand         string
	ReviewCount   int
	ReviewRating  *float64
}

// NewProduct builds a Product and derives DiscountRate. An original price
// below the current price is dropped so that OriginalPrice >= CurrentPrice
// always holds when present.
func NewProduct(in ProductInput) Product {
	p := Product{
		Site:         in.Site,
		Name:         strings.TrimSpace(in.Name),
		SourceURL:    strings.TrimSpace(in.SourceURL),
		CurrentPrice: in.CurrentPrice,
		StockStatus:  in.StockStatus,
		ImageURL:     strings.TrimSpace(in.ImageURL),
		Category:     strings.TrimSpace(in.Category),
		Brand:        strings.TrimSpace(in.Brand),
		ReviewCount:  in.ReviewCount,
	}
	if p.CurrentPrice < 0 {
		p.CurrentPrice = 0
	}
	if p.ReviewCount < 0 {
		p.ReviewCount = 0
	}
	if !p.StockStatus.Valid() {
		p.StockStatus = StockInStock
	}
	if in.ReviewRating != nil {
		r := *in.ReviewRating
		if r < 0 {
			r = 0
		}
		if r > 5 {
			r = 5
		}
		p.ReviewRating = &r
	}
	if in.OriginalPrice > 0 && in.OriginalPrice >= p.CurrentPrice {
		op := in.OriginalPrice
		p.OriginalPrice = &op
		p.DiscountRate = pricing.DiscountRate(op, p.CurrentPrice)
	}
	return p
}

// Validate checks the crawler output contract: a non-empty name, a
// non-negative price and an absolute http(s) source URL.
func (p Product) Validate() error {
	if p.Name == "" {
		return &ListingError{Field: "name", Reason: "empty"}
	}
	if p.CurrentPrice < 0 {
		return &ListingError{Field: "currentPrice", Reason: "negative"}
	}
	u, err := url.Parse(p.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ListingError{Field: "sourceUrl", Reason: "not an absolute http(s) url"}
	}
	return nil
}

// ListingError describes why a parsed listing violates the product contract.
type ListingError struct {
	Field  string
	Reason string
}

func (e *ListingError) Error() string {
	return e.Field + ": " + e.Reason
}

// DiscountEntry is one row of a discount ranking.
type DiscountEntry struct {
	Product      Product `json:"product"`
	DiscountRate int     `json:"discountRate"`
}
