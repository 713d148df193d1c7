package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/shoptrail/shoptrail-worker/internal/config"
	"github.com/shoptrail/shoptrail-worker/internal/database"
	"github.com/shoptrail/shoptrail-worker/internal/ratelimit"
	"github.com/shoptrail/shoptrail-worker/internal/repository"
	"github.com/shoptrail/shoptrail-worker/internal/server"
	"github.com/shoptrail/shoptrail-worker/internal/service"
	"github.com/shoptrail/shoptrail-worker/internal/shopify"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// dbPinger adapts gorm to the health check
type dbPinger struct {
	db *gorm.DB
}

func (p *dbPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
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
	receiptRepo := repository.NewWebhookReceiptRepository(db)
	metricRepo := repository.NewDailyMetricRepository(db)
	spendRepo := repository.NewCampaignSpendRepository(db)

	// Initialize rate limiter
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

	// Initialize upstream API client and services
	shopifyClient := shopify.NewClient(cfg.ShopifyAPIVersion, limiter)
	syncEngine := service.NewSyncEngine(shopRepo, cursorRepo, orderRepo, dimensionRepo,
		shopifyClient, cfg.SyncMaxOrders, cfg.SyncLookbackDays)
	ingestor := service.NewWebhookIngestor(shopRepo, orderRepo, eventRepo, receiptRepo, cfg.ShopifyAPISecret)
	recomputer := service.NewMetricsRecomputer(shopRepo, eventRepo, orderRepo, metricRepo, spendRepo)

	// Build HTTP server
	srv := server.New(ingestor, syncEngine, recomputer, &dbPinger{db: db})
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	select {
	case <-sigChan:
		log.Println("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
