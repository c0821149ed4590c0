package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidURL is returned before any network activity for URLs that
	// are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrTooManyRedirects is wrapped in a CONNECTION_FAILURE FetchError.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "TIMEOUT"
	KindConnectionFailure ErrorKind = "CONNECTION_FAILURE"
	KindHTTPStatus        ErrorKind = "HTTP_STATUS"
	KindEmptyBody         ErrorKind = "EMPTY_BODY"
)

// FetchError is returned for every failed fetch except caller cancellation.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int // set for KindHTTPStatus
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: %s %d", e.URL, e.Kind, e.StatusCode)
	case KindEmptyBody:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed: timeouts,
// connection failures, 5xx and 429 responses.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindConnectionFailure:
		return !errors.Is(e.Err, ErrTooManyRedirects)
	case KindHTTPStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsRetryable reports whether err carries a retryable FetchError.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}
