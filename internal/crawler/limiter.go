package crawler

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/GTDGit/pricewatch/pkg/fetcher"
)

// Limiter bounds in-flight fetches across every job that shares it and
// paces requests per site. Construct one per process (or per tenant) and
// pass it explicitly.
type Limiter struct {
	sem      *semaphore.Weighted
	inFlight atomic.Int64

	mu      sync.Mutex
	perSite map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewLimiter creates a Limiter allowing maxInFlight concurrent fetches and
// siteRPS requests per second per site. siteRPS <= 0 disables pacing.
func NewLimiter(maxInFlight int, siteRPS float64, burst int) *Limiter {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if burst < 1 {
		burst = 1
	}
	rps := rate.Inf
	if siteRPS > 0 {
		rps = rate.Limit(siteRPS)
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
		perSite: make(map[string]*rate.Limiter),
		rps:     rps,
		burst:   burst,
	}
}

// Acquire waits for the site's rate budget and a free fetch slot. The
// returned release must be called once the fetch finishes.
func (l *Limiter) Acquire(ctx context.Context, site string) (release func(), err error) {
	if err := l.siteLimiter(site).Wait(ctx); err != nil {
		return nil, err
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	l.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

// InFlight returns the number of fetches currently holding a slot.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

// Wrap returns a Fetcher that acquires a slot for site around every fetch.
func (l *Limiter) Wrap(site string, next Fetcher) Fetcher {
	return &limitedFetcher{limiter: l, site: site, next: next}
}

func (l *Limiter) siteLimiter(site string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl, ok := l.perSite[site]
	if !ok {
		rl = rate.NewLimiter(l.rps, l.burst)
		l.perSite[site] = rl
	}
	return rl
}

type limitedFetcher struct {
	limiter *Limiter
	site    string
	next    Fetcher
}

func (f *limitedFetcher) Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error) {
	release, err := f.limiter.Acquire(ctx, f.site)
	if err != nil {
		return nil, err
	}
	defer release()
	return f.next.Fetch(ctx, rawURL)
}
