package crawler

import (
	"fmt"
	"strings"
)

// MercadoLivreProfile returns the selector profile for mercadolivre.com.br
// search, category and product pages.
func MercadoLivreProfile() Profile {
	return Profile{
		Site:      "mercadolivre",
		BaseURL:   "https://lista.mercadolivre.com.br/",
		Hosts:     []string{"mercadolivre.com.br", "mercadolibre.com"},
		SearchURL: "https://lista.mercadolivre.com.br/%s",
		List: Selectors{
			Item:          "li.ui-search-layout__item | div.poly-card | div.ui-search-result__wrapper",
			Name:          ".poly-component__title | .ui-search-item__title | h2",
			Link:          "a.poly-component__title@href | a.ui-search-link@href | a@href",
			Price:         ".poly-price__current .andes-money-amount__fraction | .ui-search-price__second-line .andes-money-amount__fraction | .andes-money-amount__fraction",
			OriginalPrice: ".andes-money-amount--previous .andes-money-amount__fraction | s.andes-money-amount .andes-money-amount__fraction",
			Image:         "img@data-src | img@src",
			Stock:         ".poly-component__stock | .ui-search-item__stock",
			Rating:        ".poly-reviews__rating | .ui-search-reviews__rating-number",
			ReviewCount:   ".poly-reviews__total | .ui-search-reviews__amount",
			Brand:         ".poly-component__brand | .ui-search-item__brand-discoverability",
		},
		Detail: Selectors{
			Name:          "h1.ui-pdp-title | h1[data-testid='title'] | .ui-pdp-title",
			Price:         ".ui-pdp-price__second-line .andes-money-amount__fraction | .ui-pdp-price--size-large .andes-money-amount__fraction | [data-testid='price'] .andes-money-amount__fraction",
			OriginalPrice: ".andes-money-amount--previous-price .andes-money-amount__fraction | .ui-pdp-price__original .andes-money-amount__fraction",
			Image:         "figure.ui-pdp-gallery__figure img@data-zoom | figure.ui-pdp-gallery__figure img@src",
			Stock:         ".ui-pdp-stock-information__title | .ui-pdp-buybox__quantity__available",
			Rating:        ".ui-pdp-review__rating",
			ReviewCount:   ".ui-pdp-review__amount",
			Brand:         ".ui-pdp-header__subtitle a | [data-testid='brand']",
			Category:      ".andes-breadcrumb__item:last-child a | .andes-breadcrumb__item:last-child",
		},
	}
}

// Builtin returns the markup profiles shipped with the service keyed by
// site code.
func Builtin() map[string]Profile {
	ml := MercadoLivreProfile()
	return map[string]Profile{
		ml.Site: ml,
	}
}

// JSONLDSite is a structured-data site configured at runtime.
type JSONLDSite struct {
	Code      string
	SearchURL string
}

// ParseJSONLDSites parses "code=https://host/search?q=%s,code2=..." into
// site definitions. Empty input yields no sites.
func ParseJSONLDSites(raw string) ([]JSONLDSite, error) {
	var sites []JSONLDSite
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, tmpl, ok := strings.Cut(entry, "=")
		code, tmpl = strings.TrimSpace(code), strings.TrimSpace(tmpl)
		if !ok || code == "" || tmpl == "" {
			return nil, fmt.Errorf("invalid jsonld site entry %q, expected code=url", entry)
		}
		sites = append(sites, JSONLDSite{Code: code, SearchURL: tmpl})
	}
	return sites, nil
}
