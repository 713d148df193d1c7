package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shoptrail/shoptrail-worker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookReceiptRepository struct {
	db *gorm.DB
}

func NewWebhookReceiptRepository(db *gorm.DB) *WebhookReceiptRepository {
	return &WebhookReceiptRepository{db: db}
}

// InsertIfAbsent attempts to record a delivery. It returns false when a
// receipt for (shop, delivery id) already exists, which is the dedup
// gate: zero rows affected means duplicate, and the caller must
// short-circuit before any side effect.
func (r *WebhookReceiptRepository) InsertIfAbsent(ctx context.Context, shopID, deliveryID, topic, contentHash string) (bool, error) {
	receipt := models.WebhookReceipt{
		ID:          uuid.New().String(),
		ShopID:      shopID,
		DeliveryID:  deliveryID,
		Topic:       topic,
		ContentHash: contentHash,
		CreatedAt:   time.Now(),
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop_id"}, {Name: "delivery_id"}},
			DoNothing: true,
		}).
		Create(&receipt)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert webhook receipt: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkProcessed stamps the receipt after its handler completed. A receipt
// without a processed timestamp marks a delivery whose handler failed.
func (r *WebhookReceiptRepository) MarkProcessed(ctx context.Context, shopID, deliveryID string) error {
	result := r.db.WithContext(ctx).Model(&models.WebhookReceipt{}).
		Where("shop_id = ? AND delivery_id = ?", shopID, deliveryID).
		Update("processed_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to mark receipt processed: %w", result.Error)
	}
	return nil
}
