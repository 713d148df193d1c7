package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/accounting"
	"github.com/shoptrail/shoptrail-worker/internal/config"
	"github.com/shoptrail/shoptrail-worker/internal/database"
	"github.com/shoptrail/shoptrail-worker/internal/ratelimit"
	"github.com/shoptrail/shoptrail-worker/internal/repository"
	"github.com/shoptrail/shoptrail-worker/internal/service"
	"github.com/shoptrail/shoptrail-worker/internal/shopify"
	"github.com/shoptrail/shoptrail-worker/internal/spendsheet"
	"github.com/shoptrail/shoptrail-worker/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	shopRepo := repository.NewShopRepository(db)
	cursorRepo := repository.NewSyncCursorRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	dimensionRepo := repository.NewDimensionRepository(db)
	eventRepo := repository.NewAttributionEventRepository(db)
	metricRepo := repository.NewDailyMetricRepository(db)
	spendRepo := repository.NewCampaignSpendRepository(db)
	taskRepo := repository.NewRetryTaskRepository(db)

	// Initialize rate limiter (shared across workers via Redis when
	// configured, per-process otherwise)
	var backend ratelimit.Backend
	if cfg.RedisAddr != "" {
		backend, err = ratelimit.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
	} else {
		backend = ratelimit.NewMemoryBackend()
	}
	limiter := ratelimit.NewLimiter(backend, "shopify", cfg.ShopifyRatePerSec,
		time.Duration(cfg.RateLimitMaxWaitMS)*time.Millisecond)

	// Initialize upstream API client
	shopifyClient := shopify.NewClient(cfg.ShopifyAPIVersion, limiter)

	// Initialize services
	syncEngine := service.NewSyncEngine(shopRepo, cursorRepo, orderRepo, dimensionRepo,
		shopifyClient, cfg.SyncMaxOrders, cfg.SyncLookbackDays)
	recomputer := service.NewMetricsRecomputer(shopRepo, eventRepo, orderRepo, metricRepo, spendRepo)

	accountingClient := accounting.NewClient(cfg.AccountingSyncURL)
	retryQueue := service.NewRetryQueue(taskRepo, accountingClient, cfg.RetryMaxAttempts,
		time.Duration(cfg.RetryBaseDelaySec)*time.Second, cfg.RetryBackoffCap)

	// Initialize spend sheet client (optional)
	var spendFetch watcher.SpendFetcher
	if cfg.SpendSheetID != "" && cfg.GoogleCredentialsJSON != "" {
		spendFetch = spendsheet.NewClient(cfg.GoogleCredentialsJSON)
	}

	// Initialize watcher
	w := watcher.New(cfg, shopRepo, spendRepo, syncEngine, retryQueue, recomputer, spendFetch)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watcher in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutdown signal received")
		cancel()

		// Wait for graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		select {
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && err != context.Canceled {
				log.Printf("Watcher error: %v", err)
			}
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
