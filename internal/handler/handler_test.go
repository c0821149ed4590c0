package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/pricewatch/internal/analytics"
	"github.com/GTDGit/pricewatch/internal/crawler"
	"github.com/GTDGit/pricewatch/internal/crawler/crawlertest"
	"github.com/GTDGit/pricewatch/internal/database"
	"github.com/GTDGit/pricewatch/internal/models"
	"github.com/GTDGit/pricewatch/internal/repository"
	"github.com/GTDGit/pricewatch/internal/service"
	"github.com/GTDGit/pricewatch/internal/sse"
	"github.com/GTDGit/pricewatch/internal/utils"
	"github.com/GTDGit/pricewatch/pkg/fetcher"
)

type envelope struct {
	Success bool             `json:"success"`
	Code    int              `json:"code"`
	Data    json.RawMessage  `json:"data"`
	Error   *utils.ErrorInfo `json:"error"`
	Meta    utils.Meta       `json:"meta"`
}

type testServer struct {
	router *gin.Engine
	shop   *crawlertest.Crawler
	hub    *sse.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db.DB, database.DriverSQLite))

	shop := crawlertest.New("shop", "shop.example")
	shop.Search["earbuds"] = []models.Product{shop.Product("p1", 10000), shop.Product("p2", 250000)}
	registry := crawler.NewRegistry()
	registry.Register(shop)

	hub := sse.NewHub()
	svc := service.NewMonitorService(
		service.NewCoordinator(registry, service.CoordinatorConfig{Concurrency: 2}),
		repository.NewJobRepository(db),
		repository.NewSnapshotRepository(db),
		repository.NewAlertRepository(db),
		nil,
		sse.NewHubNotifier(hub),
		service.MonitorConfig{
			Thresholds:       analytics.DefaultThresholds(),
			Alerts:           analytics.DefaultAlertOptions(),
			TopDiscountCount: 5,
		},
	)

	router := gin.New()
	SetupRoutes(router, &Handlers{
		Search: NewSearchHandler(svc, 5*time.Second),
		Jobs:   NewJobHandler(svc),
		SSE:    NewSSEHandler(hub),
		Health: NewHealthHandler(db, nil, registry, nil),
	}, nil)
	return &testServer{router: router, shop: shop, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestCrawlThenQueryJobsAlertsAndAnalytics(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/v1/analytics?query=earbuds&sites=shop", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "SNAPSHOT_NOT_FOUND", env.Error.Code)

	code, env = s.do(t, http.MethodPost, "/v1/crawl", map[string]any{"query": "earbuds", "sites": []string{"shop"}})
	require.Equal(t, http.StatusOK, code)
	var crawl service.CrawlResult
	require.NoError(t, json.Unmarshal(env.Data, &crawl))
	assert.Equal(t, models.JobCompleted, crawl.Status)
	assert.Equal(t, 2, crawl.ProductsFound)
	assert.Empty(t, crawl.Alerts, "the first crawl is the baseline")

	s.shop.Search["earbuds"] = append(s.shop.Search["earbuds"], s.shop.Product("p3", 5000))
	code, env = s.do(t, http.MethodPost, "/v1/crawl", map[string]any{"query": "earbuds", "sites": []string{"shop"}})
	require.Equal(t, http.StatusOK, code)
	var second service.CrawlResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	require.Len(t, second.Alerts, 1)
	assert.Equal(t, models.AlertNewProduct, second.Alerts[0].Kind)

	code, env = s.do(t, http.MethodGet, "/v1/jobs/"+crawl.JobID, nil)
	require.Equal(t, http.StatusOK, code)
	var job models.CrawlJob
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "earbuds", job.Target)
	assert.Equal(t, 2, job.ProductsFound)

	code, env = s.do(t, http.MethodGet, "/v1/jobs?page=2&limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	var jobs struct {
		Jobs []models.CrawlJob `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &jobs))
	require.Len(t, jobs.Jobs, 1)
	require.NotNil(t, env.Meta.Pagination)
	assert.Equal(t, utils.Pagination{Page: 2, Limit: 1, TotalItems: 2, TotalPages: 2}, *env.Meta.Pagination)

	code, env = s.do(t, http.MethodGet, "/v1/alerts?kind=new_product", nil)
	require.Equal(t, http.StatusOK, code)
	var alerts struct {
		Alerts []models.PriceAlert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &alerts))
	assert.Len(t, alerts.Alerts, 1)
	require.NotNil(t, env.Meta.Pagination)
	assert.Equal(t, 1, env.Meta.Pagination.TotalItems)

	code, env = s.do(t, http.MethodGet, "/v1/analytics?query=earbuds&sites=shop", nil)
	require.Equal(t, http.StatusOK, code)
	var report service.AnalyticsReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 3, report.Analysis.TotalCount)
	assert.Equal(t, 2, report.Analysis.Distribution.Budget)
	assert.Equal(t, 1, report.Analysis.Distribution.Luxury)
	assert.Equal(t, 1, report.Overview.NewProducts)
	assert.Equal(t, "search:shop:earbuds", report.SourceSet)
}

func TestCrawlFailureReturnsJobInErrorPayload(t *testing.T) {
	s := newTestServer(t)
	s.shop.Err = &fetcher.FetchError{Kind: fetcher.KindHTTPStatus, URL: "https://shop.example", StatusCode: 500}

	code, env := s.do(t, http.MethodPost, "/v1/crawl", map[string]any{"query": "earbuds"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.False(t, env.Success)
	assert.Equal(t, "CRAWL_FAILED", env.Error.Code)

	var crawl service.CrawlResult
	require.NoError(t, json.Unmarshal(env.Data, &crawl))
	assert.Equal(t, models.JobFailed, crawl.Status)

	code, env = s.do(t, http.MethodGet, "/v1/jobs/"+crawl.JobID, nil)
	require.Equal(t, http.StatusOK, code)
	var job models.CrawlJob
	require.NoError(t, json.Unmarshal(env.Data, &job))
	require.NotNil(t, job.FailureReason)
	assert.Equal(t, models.FailureAllCrawlersFailed, *job.FailureReason)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
		errKey string
	}{
		{"malformed json", http.MethodPost, "/v1/search", "{", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"empty keyword", http.MethodPost, "/v1/search", map[string]any{"keyword": "  "}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown site", http.MethodPost, "/v1/crawl", map[string]any{"query": "earbuds", "sites": []string{"gamma"}}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown alert kind", http.MethodGet, "/v1/alerts?kind=bogus", nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing job", http.MethodGet, "/v1/jobs/nope", nil, http.StatusNotFound, "JOB_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.errKey, env.Error.Code)
		})
	}
	assert.Zero(t, s.shop.Calls())
}

func TestSearchReturnsAnalytics(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/v1/search", map[string]any{"keyword": "earbuds"})
	require.Equal(t, http.StatusOK, code)
	var res service.SearchResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Len(t, res.Products, 2)
	assert.Equal(t, int64(10000), res.Analysis.MinPrice)
	assert.False(t, res.Cached)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, code)
	var health struct {
		Status   string `json:"status"`
		Crawlers struct {
			Sites []string `json:"sites"`
		} `json:"crawlers"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, []string{"shop"}, health.Crawlers.Sites)
}

func TestAlertStreamDeliversEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/alerts/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream closed before %q", prefix)
				if strings.HasPrefix(l, prefix) {
					return l
				}
			case <-timeout:
				t.Fatalf("no %q line received", prefix)
			}
		}
	}

	waitFor("event:connected")
	require.Equal(t, 1, s.hub.ClientCount())

	sse.NewHubNotifier(s.hub).NotifyAlerts([]models.PriceAlert{{ID: "a1", Kind: models.AlertPriceDrop}})
	waitFor("event:alert.created")
	assert.Contains(t, waitFor("data:"), `"id":"a1"`)
}

func TestShutdownDrainsCrawlAndEndsStreams(t *testing.T) {
	s := newTestServer(t)
	s.shop.Delay = 200 * time.Millisecond

	ts := httptest.NewUnstartedServer(s.router)
	ts.Config.RegisterOnShutdown(s.hub.Close)
	ts.Start()
	t.Cleanup(ts.Close)

	stream, err := http.Get(ts.URL + "/v1/alerts/stream")
	require.NoError(t, err)
	defer stream.Body.Close()
	streamDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, stream.Body)
		close(streamDone)
	}()
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	type reply struct {
		code int
		env  envelope
		err  error
	}
	crawlDone := make(chan reply, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/v1/crawl", "application/json",
			strings.NewReader(`{"query":"earbuds","sites":["shop"]}`))
		if err != nil {
			crawlDone <- reply{err: err}
			return
		}
		defer resp.Body.Close()
		var env envelope
		err = json.NewDecoder(resp.Body).Decode(&env)
		crawlDone <- reply{code: resp.StatusCode, env: env, err: err}
	}()
	require.Eventually(t, func() bool { return s.shop.Calls() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.Config.Shutdown(ctx))

	select {
	case <-streamDone:
	case <-time.After(time.Second):
		t.Fatal("alert stream still open after shutdown")
	}

	r := <-crawlDone
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.code)
	var crawl service.CrawlResult
	require.NoError(t, json.Unmarshal(r.env.Data, &crawl))
	assert.Equal(t, models.JobCompleted, crawl.Status)
	assert.Equal(t, 2, crawl.ProductsFound)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthReportsCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		db     Pinger
		cache  Pinger
		code   int
		status string
		cached string
	}{
		{"no cache", ok, nil, http.StatusOK, "healthy", "disabled"},
		{"cache up", ok, ok, http.StatusOK, "healthy", "connected"},
		{"cache down", ok, down, http.StatusOK, "degraded", "disconnected"},
		{"database down", down, ok, http.StatusServiceUnavailable, "degraded", "connected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", NewHealthHandler(tt.db, tt.cache, crawler.NewRegistry(), nil).GetHealth)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, w.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			var health struct {
				Status string `json:"status"`
				Cache  struct {
					Status string `json:"status"`
				} `json:"cache"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &health))
			assert.Equal(t, tt.status, health.Status)
			assert.Equal(t, tt.cached, health.Cache.Status)
		})
	}
}
