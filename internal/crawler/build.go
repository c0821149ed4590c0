package crawler

import (
	"fmt"
)

// BuildRegistry registers the enabled builtin markup crawlers and the
// configured JSON-LD crawlers. Every crawler fetches through limiter so the
// in-flight bound and per-site pacing are shared process wide.
func BuildRegistry(enabled []string, jsonld []JSONLDSite, f Fetcher, limiter *Limiter) (*Registry, error) {
	builtin := Builtin()
	r := NewRegistry()

	for _, code := range enabled {
		profile, ok := builtin[code]
		if !ok {
			return nil, fmt.Errorf("unknown builtin site %q", code)
		}
		r.Register(NewMarkupCrawler(profile, limiter.Wrap(code, f)))
	}

	for _, site := range jsonld {
		if r.Get(site.Code) != nil {
			return nil, fmt.Errorf("site code %q is configured twice", site.Code)
		}
		c, err := NewJSONLDCrawler(site.Code, site.SearchURL, limiter.Wrap(site.Code, f))
		if err != nil {
			return nil, fmt.Errorf("jsonld site %s: %w", site.Code, err)
		}
		r.Register(c)
	}

	if len(r.Sites()) == 0 {
		return nil, fmt.Errorf("no crawlers enabled: set ENABLED_SITES or JSONLD_SITES")
	}
	return r, nil
}
