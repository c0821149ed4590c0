package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pricewatch/internal/analytics"
	"github.com/GTDGit/pricewatch/internal/cache"
	"github.com/GTDGit/pricewatch/internal/config"
	"github.com/GTDGit/pricewatch/internal/crawler"
	"github.com/GTDGit/pricewatch/internal/database"
	"github.com/GTDGit/pricewatch/internal/handler"
	"github.com/GTDGit/pricewatch/internal/middleware"
	"github.com/GTDGit/pricewatch/internal/notifier"
	"github.com/GTDGit/pricewatch/internal/repository"
	"github.com/GTDGit/pricewatch/internal/service"
	"github.com/GTDGit/pricewatch/internal/sse"
	"github.com/GTDGit/pricewatch/internal/worker"
	"github.com/GTDGit/pricewatch/pkg/fetcher"
)

// main is the application entrypoint for the price monitor API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Str("db_driver", cfg.DB.Driver).Msg("starting pricewatch api")

	// 3. Connect database
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := database.Migrate(db.DB, cfg.DB.Driver); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis (optional search cache)
	var resultCache service.ResultCache
	var cachePinger handler.Pinger
	if cfg.Redis.Host != "" {
		redisClient, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Error().Err(err).Msg("redis connection failed")
			fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		resultCache = cache.NewSearchCache(redisClient, cfg.Crawl.SearchCacheTTL)
		cachePinger = redisClient
		log.Info().Dur("ttl", cfg.Crawl.SearchCacheTTL).Msg("redis search cache enabled")
	}

	// 4. Build crawlers behind a shared fetch limiter
	client := fetcher.NewClient(fetcher.Config{
		Timeout:        cfg.Fetch.Timeout,
		MaxRedirects:   cfg.Fetch.MaxRedirects,
		UserAgent:      cfg.Fetch.UserAgent,
		AcceptLanguage: cfg.Fetch.AcceptLanguage,
	})
	limiter := crawler.NewLimiter(cfg.Crawl.ConcurrencyLimit, cfg.Crawl.SiteRateRPS, cfg.Crawl.SiteRateBurst)
	jsonldSites, err := crawler.ParseJSONLDSites(cfg.Crawl.JSONLDSites)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid JSONLD_SITES: %v\n", err)
		os.Exit(1)
	}
	registry, err := crawler.BuildRegistry(cfg.Crawl.EnabledSites, jsonldSites, client, limiter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawler setup failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Strs("sites", registry.Sites()).Msg("crawlers registered")

	coordinator := service.NewCoordinator(registry, service.CoordinatorConfig{
		Concurrency:    cfg.Crawl.ConcurrencyLimit,
		MaxRetries:     cfg.Crawl.MaxRetries,
		RetryBaseDelay: cfg.Crawl.RetryBaseDelay,
	})

	// 5. Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	// 6. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. Alert sinks
	hub := sse.NewHub()
	notifiers := sse.Multi{sse.NewHubNotifier(hub)}
	if cfg.Telegram.BotToken != "" {
		tg, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Error().Err(err).Msg("telegram notifier disabled")
		} else {
			go tg.Run(ctx)
			notifiers = append(notifiers, tg)
		}
	}

	// 8. Initialize service
	monitor := service.NewMonitorService(
		coordinator, jobRepo, snapshotRepo, alertRepo, resultCache, notifiers,
		service.MonitorConfig{
			Thresholds: analytics.Thresholds{
				BudgetMax: cfg.Analytics.BudgetMax,
				LuxuryMin: cfg.Analytics.LuxuryMin,
			},
			Alerts: analytics.AlertOptions{
				MagnitudeThresholdPct: cfg.Analytics.AlertThresholdPct,
				Cooldown:              cfg.Analytics.AlertCooldown,
				ReviewRatingDelta:     cfg.Analytics.ReviewAlertDelta,
			},
			TopDiscountCount: cfg.Analytics.TopDiscountCount,
		},
	)

	// 9. Handlers and router
	handlers := &handler.Handlers{
		Search: handler.NewSearchHandler(monitor, cfg.HTTP.RequestTimeout),
		Jobs:   handler.NewJobHandler(monitor),
		SSE:    handler.NewSSEHandler(hub),
		Health: handler.NewHealthHandler(db, cachePinger, registry, limiter),
	}

	crawlLimiter := middleware.NewIPRateLimiter(cfg.HTTP.CrawlRatePerMin, cfg.HTTP.CrawlRateBurst)
	go crawlLimiter.Run(ctx)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.HTTP.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware())
	handler.SetupRoutes(router, handlers, crawlLimiter.Middleware())

	// 10. Start workers
	if targets := worker.ParseWatchTargets(cfg.Worker.WatchTargets); len(targets) > 0 {
		go worker.NewWatchWorker(monitor, targets, cfg.Worker.WatchInterval).Start(ctx)
	}

	// 11. Start HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// alert streams never go idle, so they are ended when shutdown starts
	srv.RegisterOnShutdown(hub.Close)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 12. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 13. Shutdown HTTP server, letting in-flight crawls finish within their deadline
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.RequestTimeout+10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// 14. Cancel context to stop workers
	cancel()
	log.Info().Msg("Server exited")
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
