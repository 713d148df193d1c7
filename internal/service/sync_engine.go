package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/models"
	"github.com/shoptrail/shoptrail-worker/internal/shopify"
)

// ShopStore is the shop registry surface the sync engine needs.
// GetByDomain returns nil with no error when no active shop matches.
type ShopStore interface {
	GetByDomain(ctx context.Context, domain string) (*models.Shop, error)
	MarkSynced(ctx context.Context, shopID string, at time.Time) error
}

// CursorStore persists per-(shop, entity) resumption points
type CursorStore interface {
	Get(ctx context.Context, shopID, entity string) (*models.SyncCursor, error)
	Upsert(ctx context.Context, shopID, entity string, watermark time.Time, token *string) error
}

// OrderStore is the order persistence surface shared by the sync engine
// and the webhook ingestor
type OrderStore interface {
	Upsert(ctx context.Context, order models.Order, lines []models.OrderLine) error
	UpdateCustomerEmail(ctx context.Context, shopID, customerRef, email string) (int64, error)
}

// DimensionStore maintains the traffic source and campaign dimensions
type DimensionStore interface {
	UpsertTrafficSource(ctx context.Context, shopID, utmSource, utmMedium, channel string, seenAt time.Time) error
	UpsertCampaign(ctx context.Context, shopID, utmCampaign, utmSource, utmMedium, utmContent string, seenAt time.Time) error
}

// OrdersAPI is the upstream API surface the sync engine pulls from
type OrdersAPI interface {
	OrdersPage(ctx context.Context, shopDomain, accessToken, search, cursor string, pageSize int) (*shopify.OrdersPage, error)
}

// SyncOptions tune a single sync run
type SyncOptions struct {
	// Since overrides the persisted watermark when set
	Since *time.Time
	// MaxOrders caps how many orders one run processes; 0 uses the default
	MaxOrders int
}

// SyncSummary reports what one sync run did
type SyncSummary struct {
	ShopDomain  string     `json:"shop_domain"`
	Since       time.Time  `json:"since"`
	Processed   int        `json:"processed"`
	LatestDate  *time.Time `json:"latest_date,omitempty"`
	MaxOrders   int        `json:"max_orders"`
	UsedMinimal bool       `json:"used_minimal"`
}

// SyncEngine pulls orders from the upstream API for one shop at a time,
// normalizes them and upserts them. Runs are resumable: the persisted
// date watermark only advances after the pages that produced it were
// stored, so an aborted run re-reads rather than skips.
type SyncEngine struct {
	shops      ShopStore
	cursors    CursorStore
	orders     OrderStore
	dimensions DimensionStore
	api        OrdersAPI

	pageSize     int
	maxOrders    int
	lookbackDays int
	now          func() time.Time
}

func NewSyncEngine(shops ShopStore, cursors CursorStore, orders OrderStore, dimensions DimensionStore, api OrdersAPI, maxOrders, lookbackDays int) *SyncEngine {
	return &SyncEngine{
		shops:        shops,
		cursors:      cursors,
		orders:       orders,
		dimensions:   dimensions,
		api:          api,
		pageSize:     50,
		maxOrders:    maxOrders,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// SyncOrders runs one incremental order pull for the shop. The starting
// point is, in priority order: the explicit option, the persisted
// watermark, or now minus the configured lookback window.
func (e *SyncEngine) SyncOrders(ctx context.Context, shopDomain string, opts SyncOptions) (*SyncSummary, error) {
	shop, err := e.shops.GetByDomain(ctx, shopDomain)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, fmt.Errorf("no active shop for domain %s", shopDomain)
	}
	if shop.AccessToken == nil || *shop.AccessToken == "" {
		return nil, fmt.Errorf("shop %s has no access token", shopDomain)
	}

	since, err := e.resolveSince(ctx, shop.ID, opts)
	if err != nil {
		return nil, err
	}
	maxOrders := e.maxOrders
	if opts.MaxOrders > 0 {
		maxOrders = opts.MaxOrders
	}

	summary := &SyncSummary{
		ShopDomain: shopDomain,
		Since:      since,
		MaxOrders:  maxOrders,
	}

	search := fmt.Sprintf("processed_at:>='%s' status:any", since.UTC().Format(time.RFC3339))
	log.Printf("starting order sync for shop %s since %s", shopDomain, since.UTC().Format(time.RFC3339))

	// seen dimension keys for this run, to avoid re-upserting the same
	// source/campaign once per order
	seenSources := make(map[string]bool)
	seenCampaigns := make(map[string]bool)

	var latest time.Time
	var lastToken string
	cursor := ""
	for summary.Processed < maxOrders {
		page, err := e.api.OrdersPage(ctx, shopDomain, *shop.AccessToken, search, cursor, e.pageSize)
		if err != nil {
			// abort without advancing the watermark; the next run
			// re-reads from the same starting point
			return summary, fmt.Errorf("order sync aborted for shop %s after %d orders: %w", shopDomain, summary.Processed, err)
		}
		if page.UsedMinimal {
			summary.UsedMinimal = true
		}

		for _, record := range page.Orders {
			if summary.Processed >= maxOrders {
				break
			}
			order, lines := normalizeAPIOrder(shop.ID, record)
			if err := e.orders.Upsert(ctx, order, lines); err != nil {
				return summary, fmt.Errorf("order sync aborted for shop %s after %d orders: %w", shopDomain, summary.Processed, err)
			}
			e.touchDimensions(ctx, shop.ID, order, seenSources, seenCampaigns)
			summary.Processed++

			if t := effectiveDate(order); t != nil && t.After(latest) {
				latest = *t
			}
		}

		if !page.HasMore || page.NextCursor == "" || len(page.Orders) == 0 {
			break
		}
		cursor = page.NextCursor
		lastToken = page.NextCursor
	}

	if !latest.IsZero() {
		summary.LatestDate = &latest
		var token *string
		if lastToken != "" {
			token = &lastToken
		}
		if err := e.cursors.Upsert(ctx, shop.ID, models.SyncEntityOrders, latest, token); err != nil {
			return summary, fmt.Errorf("failed to advance sync cursor for shop %s: %w", shopDomain, err)
		}
	}
	if err := e.shops.MarkSynced(ctx, shop.ID, e.now()); err != nil {
		return summary, err
	}

	log.Printf("order sync finished for shop %s: %d orders processed", shopDomain, summary.Processed)
	return summary, nil
}

func (e *SyncEngine) resolveSince(ctx context.Context, shopID string, opts SyncOptions) (time.Time, error) {
	if opts.Since != nil {
		return *opts.Since, nil
	}
	cursor, err := e.cursors.Get(ctx, shopID, models.SyncEntityOrders)
	if err != nil {
		return time.Time{}, err
	}
	if cursor != nil && cursor.Watermark != nil {
		return *cursor.Watermark, nil
	}
	return e.now().AddDate(0, 0, -e.lookbackDays), nil
}

// touchDimensions refreshes the traffic source and campaign dimension
// rows for the order. Dimension upsert failures are logged, not fatal:
// the order itself was already stored.
func (e *SyncEngine) touchDimensions(ctx context.Context, shopID string, order models.Order, seenSources, seenCampaigns map[string]bool) {
	seenAt := e.now()
	source := deref(order.UTMSource)
	medium := deref(order.UTMMedium)
	campaign := deref(order.UTMCampaign)
	channel := deref(order.Channel)

	if source != "" || medium != "" {
		key := source + "|" + medium
		if !seenSources[key] {
			seenSources[key] = true
			if err := e.dimensions.UpsertTrafficSource(ctx, shopID, source, medium, channel, seenAt); err != nil {
				log.Printf("failed to upsert traffic source %q/%q for shop %s: %v", source, medium, shopID, err)
			}
		}
	}
	if campaign != "" {
		key := campaign + "|" + source + "|" + medium + "|" + deref(order.UTMContent)
		if !seenCampaigns[key] {
			seenCampaigns[key] = true
			if err := e.dimensions.UpsertCampaign(ctx, shopID, campaign, source, medium, deref(order.UTMContent), seenAt); err != nil {
				log.Printf("failed to upsert campaign %q for shop %s: %v", campaign, shopID, err)
			}
		}
	}
}

// effectiveDate is the order's watermark contribution: processed time
// when present, upstream creation time otherwise
func effectiveDate(order models.Order) *time.Time {
	if order.ProcessedAt != nil {
		return order.ProcessedAt
	}
	return order.ExternalCreatedAt
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
