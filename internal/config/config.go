package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	// Redis backing for the per-shop rate limiter; empty means the
	// in-memory limiter is used (single-process deployments only).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Shopify integration
	ShopifyAPIVersion  string
	ShopifyAPISecret   string // shared webhook HMAC secret; empty disables verification (dev only)
	ShopifyRatePerSec  int
	RateLimitMaxWaitMS int

	// Worker loops
	PollInterval        int // seconds
	SyncIntervalMinutes int // minimum gap between scheduled syncs of one shop
	SyncLookbackDays    int // default since-window when no cursor exists
	SyncMaxOrders       int // per-run ceiling
	MetricsWindowDays   int // trailing window rebuilt by the scheduled recompute

	// Retry queue
	RetryDrainInterval int // seconds
	RetryBatchSize     int
	RetryMaxAttempts   int
	RetryBaseDelaySec  int
	RetryBackoffCap    int // exponent cap on 2^attempts
	AccountingSyncURL  string

	// Spend sheet sync (optional)
	SpendSheetID          string
	GoogleCredentialsJSON string

	Port            string
	ShutdownTimeout int // seconds
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	apiSecret := os.Getenv("SHOPIFY_API_SECRET")
	if apiSecret == "" {
		fmt.Println("Warning: SHOPIFY_API_SECRET not set, webhook signature verification is DISABLED (unsafe outside local development)")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		fmt.Println("Warning: REDIS_ADDR not set, using in-memory rate limiter (single process only)")
	}

	spendSheetID := os.Getenv("SPEND_SHEET_ID")
	googleCreds := os.Getenv("GOOGLE_CREDENTIALS_JSON")
	if spendSheetID != "" && googleCreds == "" {
		fmt.Println("Warning: SPEND_SHEET_ID set without GOOGLE_CREDENTIALS_JSON, spend sheet sync will not work")
	}

	apiVersion := os.Getenv("SHOPIFY_API_VERSION")
	if apiVersion == "" {
		apiVersion = "2024-01"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		DatabaseURL:           dbURL,
		RedisAddr:             redisAddr,
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               envInt("REDIS_DB", 0),
		ShopifyAPIVersion:     apiVersion,
		ShopifyAPISecret:      apiSecret,
		ShopifyRatePerSec:     envInt("SHOPIFY_RATE_PER_SEC", 2),
		RateLimitMaxWaitMS:    envInt("RATE_LIMIT_MAX_WAIT_MS", 10000),
		PollInterval:          envInt("POLL_INTERVAL_SEC", 10),
		SyncIntervalMinutes:   envInt("SYNC_INTERVAL_MINUTES", 30),
		SyncLookbackDays:      envInt("SYNC_LOOKBACK_DAYS", 30),
		SyncMaxOrders:         envInt("SYNC_MAX_ORDERS", 1000),
		MetricsWindowDays:     envInt("METRICS_WINDOW_DAYS", 3),
		RetryDrainInterval:    envInt("RETRY_DRAIN_INTERVAL_SEC", 60),
		RetryBatchSize:        envInt("RETRY_BATCH_SIZE", 10),
		RetryMaxAttempts:      envInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelaySec:     envInt("RETRY_BASE_DELAY_SEC", 60),
		RetryBackoffCap:       envInt("RETRY_BACKOFF_CAP", 6),
		AccountingSyncURL:     os.Getenv("ACCOUNTING_SYNC_URL"),
		SpendSheetID:          spendSheetID,
		GoogleCredentialsJSON: googleCreds,
		Port:                  port,
		ShutdownTimeout:       30,
	}, nil
}

// envInt reads an integer environment variable with a fallback default
func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Printf("Warning: invalid %s=%q, using default %d\n", key, raw, def)
		return def
	}
	return v
}
