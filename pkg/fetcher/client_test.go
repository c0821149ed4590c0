package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body><p id=\"ua\">%s</p><p id=\"lang\">%s</p></body></html>",
			r.Header.Get("User-Agent"), r.Header.Get("Accept-Language"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/unavailable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  \n "))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/loop/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/loop/"))
		http.Redirect(w, r, fmt.Sprintf("/loop/%d", n+1), http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func requireFetchError(t *testing.T, err error, kind ErrorKind) *FetchError {
	t.Helper()
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, kind, fe.Kind)
	return fe
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{})

	page, err := c.Fetch(context.Background(), ts.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), DefaultUserAgent)
	assert.Contains(t, string(page.Body), DefaultAcceptLanguage)
	assert.Contains(t, page.ContentType, "text/html")
	assert.False(t, page.FetchedAt.IsZero())
}

func TestFetchFollowsShortRedirects(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{MaxRedirects: 2})

	page, err := c.Fetch(context.Background(), ts.URL+"/hop")
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/ok", page.URL)
}

func TestFetchErrors(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{Timeout: 100 * time.Millisecond, MaxRedirects: 2})

	t.Run("not found", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), ts.URL+"/missing")
		fe := requireFetchError(t, err, KindHTTPStatus)
		assert.Equal(t, http.StatusNotFound, fe.StatusCode)
		assert.False(t, fe.Retryable())
	})

	t.Run("server error is retryable", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), ts.URL+"/unavailable")
		fe := requireFetchError(t, err, KindHTTPStatus)
		assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
		assert.True(t, IsRetryable(err))
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), ts.URL+"/empty")
		fe := requireFetchError(t, err, KindEmptyBody)
		assert.False(t, fe.Retryable())
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), ts.URL+"/slow")
		fe := requireFetchError(t, err, KindTimeout)
		assert.True(t, fe.Retryable())
	})

	t.Run("redirect loop", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), ts.URL+"/loop/0")
		fe := requireFetchError(t, err, KindConnectionFailure)
		assert.ErrorIs(t, err, ErrTooManyRedirects)
		assert.False(t, fe.Retryable())
	})
}

func TestFetchConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	_, err := NewClient(Config{Timeout: time.Second}).Fetch(context.Background(), addr+"/")
	fe := requireFetchError(t, err, KindConnectionFailure)
	assert.True(t, fe.Retryable())
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	c := NewClient(Config{})
	for _, raw := range []string{"", "/relative/path", "ftp://example.com/file", "http://", "://bad"} {
		t.Run(raw, func(t *testing.T) {
			_, err := c.Fetch(context.Background(), raw)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestFetchReturnsCancellation(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(Config{Timeout: 5 * time.Second}).Fetch(ctx, ts.URL+"/slow")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	var fe *FetchError
	assert.False(t, errors.As(err, &fe))
}
