package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shoptrail/shoptrail-worker/internal/models"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// upsertOrderSQL merges an incoming order into the existing row. Every
// nullable column keeps its existing value when the incoming one is NULL
// (or empty, for currency); raw_payload always takes the latest delivery.
const upsertOrderSQL = `
INSERT INTO shop_order (
	id, shop_id, external_id, order_number, external_created_at, processed_at,
	financial_status, total_amount, currency, customer_ref, customer_email,
	tags, discount_codes, landing_page, referrer,
	utm_source, utm_medium, utm_campaign, utm_content, channel, raw_payload,
	created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (shop_id, external_id) DO UPDATE SET
	order_number        = COALESCE(EXCLUDED.order_number, shop_order.order_number),
	external_created_at = COALESCE(EXCLUDED.external_created_at, shop_order.external_created_at),
	processed_at        = COALESCE(EXCLUDED.processed_at, shop_order.processed_at),
	financial_status    = COALESCE(EXCLUDED.financial_status, shop_order.financial_status),
	total_amount        = EXCLUDED.total_amount,
	currency            = COALESCE(NULLIF(EXCLUDED.currency, ''), shop_order.currency),
	customer_ref        = COALESCE(EXCLUDED.customer_ref, shop_order.customer_ref),
	customer_email      = COALESCE(EXCLUDED.customer_email, shop_order.customer_email),
	tags                = COALESCE(EXCLUDED.tags, shop_order.tags),
	discount_codes      = COALESCE(EXCLUDED.discount_codes, shop_order.discount_codes),
	landing_page        = COALESCE(EXCLUDED.landing_page, shop_order.landing_page),
	referrer            = COALESCE(EXCLUDED.referrer, shop_order.referrer),
	utm_source          = COALESCE(EXCLUDED.utm_source, shop_order.utm_source),
	utm_medium          = COALESCE(EXCLUDED.utm_medium, shop_order.utm_medium),
	utm_campaign        = COALESCE(EXCLUDED.utm_campaign, shop_order.utm_campaign),
	utm_content         = COALESCE(EXCLUDED.utm_content, shop_order.utm_content),
	channel             = COALESCE(EXCLUDED.channel, shop_order.channel),
	raw_payload         = EXCLUDED.raw_payload,
	updated_at          = EXCLUDED.updated_at
RETURNING id`

// Upsert merges the order with null-preserving semantics and replaces its
// line items wholesale. Applying the same input twice leaves the row and
// its lines in the same final state as applying it once.
func (r *OrderRepository) Upsert(ctx context.Context, order models.Order, lines []models.OrderLine) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orderID string
		err := tx.Raw(upsertOrderSQL,
			order.ID, order.ShopID, order.ExternalID, order.OrderNumber,
			order.ExternalCreatedAt, order.ProcessedAt, order.FinancialStatus,
			order.TotalAmount, order.Currency, order.CustomerRef, order.CustomerEmail,
			order.Tags, order.DiscountCodes, order.LandingPage, order.Referrer,
			order.UTMSource, order.UTMMedium, order.UTMCampaign, order.UTMContent,
			order.Channel, order.RawPayload, now, now,
		).Scan(&orderID).Error
		if err != nil {
			return fmt.Errorf("failed to upsert order: %w", err)
		}

		// Lines are never partially merged: delete all, reinsert.
		if err := tx.Where("order_id = ?", orderID).Delete(&models.OrderLine{}).Error; err != nil {
			return fmt.Errorf("failed to delete order lines: %w", err)
		}
		if len(lines) == 0 {
			return nil
		}
		for i := range lines {
			lines[i].ID = uuid.New().String()
			lines[i].OrderID = orderID
			lines[i].CreatedAt = now
		}
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("failed to insert order lines: %w", err)
		}
		return nil
	})
}

// GetByExternalID retrieves one order by its upstream id
func (r *OrderRepository) GetByExternalID(ctx context.Context, shopID, externalID string) (*models.Order, error) {
	var order models.Order
	result := r.db.WithContext(ctx).First(&order, "shop_id = ? AND external_id = ?", shopID, externalID)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get order: %w", result.Error)
	}
	return &order, nil
}

// PaidInRange retrieves orders with a paid-equivalent financial status
// whose effective date falls inside [from, to)
func (r *OrderRepository) PaidInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.Order, error) {
	var orders []models.Order
	result := r.db.WithContext(ctx).
		Where("shop_id = ? AND financial_status IN ? AND COALESCE(processed_at, external_created_at) >= ? AND COALESCE(processed_at, external_created_at) < ?",
			shopID, models.PaidEquivalentStatuses, from, to).
		Order("processed_at ASC").
		Find(&orders)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query paid orders: %w", result.Error)
	}
	return orders, nil
}

// FirstPaidOrderDates returns each customer's globally-first paid order
// date for the shop, keyed by customer reference. Global, not per
// channel: customer lifecycle state is not attributable to one channel.
func (r *OrderRepository) FirstPaidOrderDates(ctx context.Context, shopID string) (map[string]time.Time, error) {
	type row struct {
		CustomerRef string    `gorm:"column:customer_ref"`
		FirstPaidAt time.Time `gorm:"column:first_paid_at"`
	}

	var rows []row
	err := r.db.WithContext(ctx).Raw(`
		SELECT customer_ref, MIN(COALESCE(processed_at, external_created_at)) AS first_paid_at
		FROM shop_order
		WHERE shop_id = ? AND customer_ref IS NOT NULL AND financial_status IN ?
		GROUP BY customer_ref`,
		shopID, models.PaidEquivalentStatuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query first paid order dates: %w", err)
	}

	dates := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		dates[r.CustomerRef] = r.FirstPaidAt
	}
	return dates, nil
}

// UpdateCustomerEmail backfills the customer email on all of the
// customer's orders. Used by the customer webhook path, which has no
// order to upsert.
func (r *OrderRepository) UpdateCustomerEmail(ctx context.Context, shopID, customerRef, email string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("shop_id = ? AND customer_ref = ?", shopID, customerRef).
		Update("customer_email", email)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update customer email: %w", result.Error)
	}
	return result.RowsAffected, nil
}
