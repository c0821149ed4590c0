package crawler

import (
	"strings"

	"github.com/GTDGit/pricewatch/internal/models"
)

// stockMarkers are checked in order; the first match wins, so narrower
// phrases precede the ones they contain (품절임박 before 품절).
var stockMarkers = []struct {
	marker string
	status models.StockStatus
}{
	{"품절임박", models.StockLowStock},
	{"재고 부족", models.StockLowStock},
	{"limitedavailability", models.StockLowStock},
	{"low stock", models.StockLowStock},
	{"only a few left", models.StockLowStock},
	{"예약판매", models.StockPreorder},
	{"예약 판매", models.StockPreorder},
	{"preorder", models.StockPreorder},
	{"pre-order", models.StockPreorder},
	{"presale", models.StockPreorder},
	{"품절", models.StockOutOfStock},
	{"outofstock", models.StockOutOfStock},
	{"out of stock", models.StockOutOfStock},
	{"soldout", models.StockOutOfStock},
	{"sold out", models.StockOutOfStock},
	{"discontinued", models.StockOutOfStock},
	{"esgotado", models.StockOutOfStock},
	{"재고있음", models.StockInStock},
	{"instock", models.StockInStock},
	{"in stock", models.StockInStock},
}

// ParseStockStatus maps free text or schema.org availability URLs to a
// StockStatus. Unrecognized or empty text is treated as in stock, since
// listings normally only annotate the exceptions.
func ParseStockStatus(text string) models.StockStatus {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return models.StockInStock
	}
	for _, m := range stockMarkers {
		if strings.Contains(t, m.marker) {
			return m.status
		}
	}
	return models.StockInStock
}
