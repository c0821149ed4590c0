// Package fetcher retrieves remote product pages. It performs exactly one
// GET per call and classifies failures; retry policy belongs to callers.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds a single fetch including body read.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxRedirects is the number of redirects followed before failing.
	DefaultMaxRedirects = 3
	// DefaultUserAgent mimics a desktop Chrome browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// DefaultAcceptLanguage prefers Korean, then English.
	DefaultAcceptLanguage = "ko-KR,ko;q=0.9,en;q=0.8"

	maxBodyBytes = 8 << 20
)

// Config configures a Client. Zero values fall back to the defaults.
type Config struct {
	Timeout        time.Duration
	MaxRedirects   int
	UserAgent      string
	AcceptLanguage string
}

// Page is the raw markup of a fetched URL.
type Page struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Client is an HTTP page fetcher with browser-like headers.
type Client struct {
	httpClient *http.Client
	headers    http.Header
	debug      bool
}

// NewClient constructs a Client with sane defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}

	maxRedirects := cfg.MaxRedirects
	headers := http.Header{}
	headers.Set("User-Agent", cfg.UserAgent)
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	headers.Set("Accept-Language", cfg.AcceptLanguage)
	headers.Set("Upgrade-Insecure-Requests", "1")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		headers: headers,
		debug:   os.Getenv("ENV") == "development",
	}
}

// ValidateURL parses raw and requires an absolute http or https URL.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// Fetch issues a single GET for rawURL. Failures are *FetchError, except
// invalid URLs (ErrInvalidURL) and caller cancellation (ctx.Err()).
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.classify(ctx, rawURL, err)
	}

	if c.debug {
		log.Debug().
			Str("url", rawURL).
			Int("status_code", resp.StatusCode).
			Int("bytes", len(body)).
			Dur("duration", time.Since(start)).
			Msg("[FETCHER] Page fetched")
	}

	if resp.StatusCode >= 400 {
		return nil, &FetchError{Kind: KindHTTPStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &FetchError{Kind: KindEmptyBody, URL: rawURL, StatusCode: resp.StatusCode}
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now(),
	}, nil
}

// classify maps a transport error to a FetchError. Cancellation by the
// caller is passed through unchanged so jobs can tell it apart.
func (c *Client) classify(ctx context.Context, rawURL string, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: KindConnectionFailure, URL: rawURL, Err: err}
}
