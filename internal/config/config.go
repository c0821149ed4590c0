package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port string
	Env  string

	DB        DatabaseConfig
	Redis     RedisConfig
	Fetch     FetchConfig
	Crawl     CrawlConfig
	Analytics AnalyticsConfig
	Telegram  TelegramConfig
	Worker    WorkerConfig
	HTTP      HTTPConfig
}

// DatabaseConfig contains connection parameters. Driver is "postgres" or
// "sqlite3"; Path is only used by sqlite3.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string
}

// RedisConfig contains Redis connection parameters. An empty Host disables
// the search cache.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	Timeout        time.Duration
	MaxRedirects   int
	UserAgent      string
	AcceptLanguage string
}

// CrawlConfig configures crawl jobs and the registered sites.
type CrawlConfig struct {
	ConcurrencyLimit int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	SiteRateRPS      float64
	SiteRateBurst    int
	EnabledSites     []string
	JSONLDSites      string
	SearchCacheTTL   time.Duration
}

// AnalyticsConfig holds price buckets and alert settings.
type AnalyticsConfig struct {
	BudgetMax         int64
	LuxuryMin         int64
	AlertThresholdPct float64
	AlertCooldown     time.Duration
	TopDiscountCount  int
	ReviewAlertDelta  float64
}

// TelegramConfig enables the Telegram notifier when both fields are set.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// WorkerConfig configures the watch worker. No targets disables it.
type WorkerConfig struct {
	WatchTargets  []string
	WatchInterval time.Duration
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	AllowedOrigins  []string
	CrawlRatePerMin int
	CrawlRateBurst  int
	RequestTimeout  time.Duration
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Load .env if present; ignore error if file is missing so that production
	// environments relying solely on real environment variables keep working.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")

	// Database
	cfg.DB = DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "postgres"),
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		Path:     getEnv("DB_PATH", "pricewatch.db"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", ""),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Telegram
	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if raw := getEnv("TELEGRAM_CHAT_ID", ""); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}

	var err error

	// Fetcher
	timeoutMs, err := parseIntEnv("FETCH_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}
	cfg.Fetch = FetchConfig{
		Timeout:        time.Duration(timeoutMs) * time.Millisecond,
		UserAgent:      getEnv("USER_AGENT", ""),
		AcceptLanguage: getEnv("ACCEPT_LANGUAGE", ""),
	}
	if cfg.Fetch.MaxRedirects, err = parseIntEnv("MAX_REDIRECTS", 3); err != nil {
		return nil, err
	}

	// Crawl
	if cfg.Crawl.ConcurrencyLimit, err = parseIntEnv("CONCURRENCY_LIMIT", 6); err != nil {
		return nil, err
	}
	if cfg.Crawl.MaxRetries, err = parseIntEnv("CRAWL_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.Crawl.RetryBaseDelay, err = parseDurationEnv("CRAWL_RETRY_BASE_DELAY", "500ms"); err != nil {
		return nil, fmt.Errorf("invalid CRAWL_RETRY_BASE_DELAY: %w", err)
	}
	if cfg.Crawl.SiteRateRPS, err = parseFloatEnv("SITE_RATE_LIMIT_RPS", 2); err != nil {
		return nil, err
	}
	if cfg.Crawl.SiteRateBurst, err = parseIntEnv("SITE_RATE_BURST", 2); err != nil {
		return nil, err
	}
	if cfg.Crawl.SearchCacheTTL, err = parseDurationEnv("SEARCH_CACHE_TTL", "5m"); err != nil {
		return nil, fmt.Errorf("invalid SEARCH_CACHE_TTL: %w", err)
	}
	cfg.Crawl.EnabledSites = splitList(getEnv("ENABLED_SITES", "mercadolivre"))
	cfg.Crawl.JSONLDSites = getEnv("JSONLD_SITES", "")

	// Analytics
	if cfg.Analytics.BudgetMax, cfg.Analytics.LuxuryMin, err = parseBuckets(getEnv("PRICE_BUCKETS", "100000,200000")); err != nil {
		return nil, fmt.Errorf("invalid PRICE_BUCKETS: %w", err)
	}
	if cfg.Analytics.AlertThresholdPct, err = parseFloatEnv("ALERT_MAGNITUDE_THRESHOLD_PCT", 10); err != nil {
		return nil, err
	}
	cooldownSec, err := parseIntEnv("ALERT_COOLDOWN_SEC", 3600)
	if err != nil {
		return nil, err
	}
	cfg.Analytics.AlertCooldown = time.Duration(cooldownSec) * time.Second
	if cfg.Analytics.TopDiscountCount, err = parseIntEnv("TOP_DISCOUNT_COUNT", 5); err != nil {
		return nil, err
	}
	if cfg.Analytics.ReviewAlertDelta, err = parseFloatEnv("REVIEW_ALERT_DELTA", 0.5); err != nil {
		return nil, err
	}

	// Workers (durations)
	cfg.Worker.WatchTargets = splitList(getEnv("WATCH_TARGETS", ""))
	if cfg.Worker.WatchInterval, err = parseDurationEnv("WATCH_INTERVAL", "1h"); err != nil {
		return nil, fmt.Errorf("invalid WATCH_INTERVAL: %w", err)
	}

	// HTTP
	cfg.HTTP.AllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"))
	if cfg.HTTP.CrawlRatePerMin, err = parseIntEnv("CRAWL_RATE_LIMIT_PER_MIN", 20); err != nil {
		return nil, err
	}
	if cfg.HTTP.CrawlRateBurst, err = parseIntEnv("CRAWL_RATE_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.HTTP.RequestTimeout, err = parseDurationEnv("CRAWL_REQUEST_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid CRAWL_REQUEST_TIMEOUT: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres":
		// Basic validation for DB parameters
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			return errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
		}
	case "sqlite3":
		if c.DB.Path == "" {
			return errors.New("DB_PATH must be set when DB_DRIVER=sqlite3")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q: use postgres or sqlite3", c.DB.Driver)
	}
	if c.Crawl.ConcurrencyLimit < 1 {
		return errors.New("CONCURRENCY_LIMIT must be >= 1")
	}
	if c.Crawl.MaxRetries < 0 {
		return errors.New("CRAWL_MAX_RETRIES must be >= 0")
	}
	if c.Analytics.AlertThresholdPct < 0 {
		return errors.New("ALERT_MAGNITUDE_THRESHOLD_PCT must be >= 0")
	}
	if c.Analytics.AlertCooldown < 0 {
		return errors.New("ALERT_COOLDOWN_SEC must be >= 0")
	}
	if c.Fetch.MaxRedirects < 1 {
		return errors.New("MAX_REDIRECTS must be >= 1")
	}
	if len(c.Worker.WatchTargets) > 0 && c.Worker.WatchInterval <= 0 {
		return errors.New("WATCH_INTERVAL must be > 0 when WATCH_TARGETS is set")
	}
	if c.HTTP.CrawlRatePerMin < 1 || c.HTTP.CrawlRateBurst < 1 {
		return errors.New("CRAWL_RATE_LIMIT_PER_MIN and CRAWL_RATE_BURST must be >= 1")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == 0) {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// parseIntEnv is the strict variant of getEnvInt: an invalid value is an error.
func parseIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}

// parseBuckets parses "budgetMax,luxuryMin".
func parseBuckets(raw string) (budgetMax, luxuryMin int64, err error) {
	parts := splitList(raw)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two comma separated breakpoints, got %q", raw)
	}
	if budgetMax, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, 0, err
	}
	if luxuryMin, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, 0, err
	}
	if budgetMax <= 0 || luxuryMin < budgetMax {
		return 0, 0, fmt.Errorf("breakpoints must be positive and ascending, got %d,%d", budgetMax, luxuryMin)
	}
	return budgetMax, luxuryMin, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
