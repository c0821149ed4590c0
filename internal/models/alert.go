package models

import "time"

// AlertKind enumerates the alert types emitted by snapshot comparison.
type AlertKind string

const (
	AlertPriceDrop   AlertKind = "price_drop"
	AlertPriceRise   AlertKind = "price_rise"
	AlertNewProduct  AlertKind = "new_product"
	AlertStockChange AlertKind = "stock_change"
	AlertReview      AlertKind = "review_alert"
)

// Valid reports whether k is a known alert kind.
func (k AlertKind) Valid() bool {
	switch k {
	case AlertPriceDrop, AlertPriceRise, AlertNewProduct, AlertStockChange, AlertReview:
		return true
	}
	return false
}

// PriceAlert is an event raised when a product changed between snapshots.
// Magnitude is a signed percentage (negative for drops).
type PriceAlert struct {
	ID          string    `db:"id" json:"id"`
	Kind        AlertKind `db:"kind" json:"kind"`
	ProductRef  string    `db:"product_ref" json:"productRef"`
	ProductName string    `db:"product_name" json:"productName"`
	Site        string    `db:"site" json:"site"`
	Message     string    `db:"message" json:"message"`
	ObservedAt  time.Time `db:"observed_at" json:"observedAt"`
	Magnitude   float64   `db:"magnitude" json:"magnitude"`
}
