package watcher

import (
	"context"
	"log"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/config"
	"github.com/shoptrail/shoptrail-worker/internal/models"
	"github.com/shoptrail/shoptrail-worker/internal/repository"
	"github.com/shoptrail/shoptrail-worker/internal/service"
	"github.com/shoptrail/shoptrail-worker/internal/spendsheet"
)

// SpendFetcher reads the operator spend sheet
type SpendFetcher interface {
	FetchRows(ctx context.Context, sheetID string) ([]spendsheet.Row, error)
}

type Watcher struct {
	cfg        *config.Config
	shopRepo   *repository.ShopRepository
	spendRepo  *repository.CampaignSpendRepository
	syncEngine *service.SyncEngine
	retryQueue *service.RetryQueue
	recomputer *service.MetricsRecomputer
	spendFetch SpendFetcher

	lastSyncSweep    time.Time
	lastRecompute    time.Time
	lastSpendRefresh time.Time
}

func New(
	cfg *config.Config,
	shopRepo *repository.ShopRepository,
	spendRepo *repository.CampaignSpendRepository,
	syncEngine *service.SyncEngine,
	retryQueue *service.RetryQueue,
	recomputer *service.MetricsRecomputer,
	spendFetch SpendFetcher,
) *Watcher {
	return &Watcher{
		cfg:        cfg,
		shopRepo:   shopRepo,
		spendRepo:  spendRepo,
		syncEngine: syncEngine,
		retryQueue: retryQueue,
		recomputer: recomputer,
		spendFetch: spendFetch,
	}
}

// Start begins the poll loop for all background work
func (w *Watcher) Start(ctx context.Context) error {
	log.Println("Starting watcher for order sync, retry drain, metrics recompute and spend refresh...")

	// Run one full pass up front so restarts catch up immediately
	w.tick(ctx)

	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Watcher shutting down...")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	now := time.Now()

	if now.Sub(w.lastSyncSweep) >= time.Duration(w.cfg.SyncIntervalMinutes)*time.Minute {
		w.lastSyncSweep = now
		if err := w.syncDueShops(ctx); err != nil {
			log.Printf("Error running shop sync sweep: %v", err)
		}
	}

	if err := w.drainRetries(ctx); err != nil {
		log.Printf("Error draining retry queue: %v", err)
	}

	if now.Sub(w.lastRecompute) >= time.Duration(w.cfg.SyncIntervalMinutes)*time.Minute {
		w.lastRecompute = now
		if err := w.recomputeMetrics(ctx); err != nil {
			log.Printf("Error recomputing metrics: %v", err)
		}
	}

	if w.spendFetch != nil && w.cfg.SpendSheetID != "" && now.Sub(w.lastSpendRefresh) >= 24*time.Hour {
		w.lastSpendRefresh = now
		if err := w.refreshSpend(ctx); err != nil {
			log.Printf("Error refreshing campaign spend: %v", err)
		}
	}
}

// syncDueShops runs an incremental order sync for every shop due again.
// Shops are processed one at a time; one failing shop never blocks the
// rest of the sweep.
func (w *Watcher) syncDueShops(ctx context.Context) error {
	olderThan := time.Now().Add(-time.Duration(w.cfg.SyncIntervalMinutes) * time.Minute)
	shops, err := w.shopRepo.ListDueForSync(ctx, olderThan, 50)
	if err != nil {
		return err
	}
	if len(shops) == 0 {
		return nil
	}

	log.Printf("Found %d shop(s) due for order sync", len(shops))
	for _, shop := range shops {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary, err := w.syncEngine.SyncOrders(ctx, shop.Domain, service.SyncOptions{})
		if err != nil {
			log.Printf("Failed to sync shop %s: %v", shop.Domain, err)
			continue
		}
		if summary.UsedMinimal {
			log.Printf("Shop %s synced with the minimal order query (journey fields unavailable)", shop.Domain)
		}
	}
	return nil
}

func (w *Watcher) drainRetries(ctx context.Context) error {
	processed, err := w.retryQueue.Drain(ctx, w.cfg.RetryBatchSize)
	if err != nil {
		return err
	}
	if processed > 0 {
		log.Printf("Drained %d retry task(s)", processed)
	}
	return nil
}

// recomputeMetrics rebuilds the trailing metrics window for every active
// shop. The window is short; historical backfills go through the admin
// endpoint.
func (w *Watcher) recomputeMetrics(ctx context.Context) error {
	shops, err := w.shopRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -w.cfg.MetricsWindowDays)
	for _, shop := range shops {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := w.recomputer.Recompute(ctx, shop.Domain, from, to); err != nil {
			log.Printf("Failed to recompute metrics for shop %s: %v", shop.Domain, err)
		}
	}
	return nil
}

// refreshSpend pulls the operator spend sheet and last-write-wins upserts
// every row onto its shop
func (w *Watcher) refreshSpend(ctx context.Context) error {
	rows, err := w.spendFetch.FetchRows(ctx, w.cfg.SpendSheetID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	applied := 0
	for _, row := range rows {
		shop, err := w.shopRepo.GetByDomain(ctx, row.ShopDomain)
		if err != nil {
			log.Printf("Failed to look up shop %s for spend row: %v", row.ShopDomain, err)
			continue
		}
		if shop == nil {
			log.Printf("Skipping spend row for unknown shop %s", row.ShopDomain)
			continue
		}
		source := "sheet"
		spend := models.CampaignSpend{
			ShopID:   shop.ID,
			Date:     row.Date,
			Campaign: row.Campaign,
			Amount:   row.Amount,
			Currency: row.Currency,
			Source:   &source,
		}
		if err := w.spendRepo.Upsert(ctx, spend); err != nil {
			log.Printf("Failed to upsert spend for shop %s campaign %s: %v", row.ShopDomain, row.Campaign, err)
			continue
		}
		applied++
	}
	log.Printf("Applied %d of %d spend sheet row(s)", applied, len(rows))
	return nil
}
