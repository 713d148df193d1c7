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

type AttributionEventRepository struct {
	db *gorm.DB
}

func NewAttributionEventRepository(db *gorm.DB) *AttributionEventRepository {
	return &AttributionEventRepository{db: db}
}

// Append inserts an event if no row with the same (shop, event_type,
// dedup_key) exists. Events are immutable: a conflicting append is a
// no-op, never an update.
func (r *AttributionEventRepository) Append(ctx context.Context, event models.AttributionEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&event)
	if result.Error != nil {
		return fmt.Errorf("failed to append attribution event: %w", result.Error)
	}
	return nil
}

// ListInRange retrieves events with occurred_at inside [from, to)
func (r *AttributionEventRepository) ListInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.AttributionEvent, error) {
	var events []models.AttributionEvent
	result := r.db.WithContext(ctx).
		Where("shop_id = ? AND occurred_at >= ? AND occurred_at < ?", shopID, from, to).
		Order("occurred_at ASC").
		Find(&events)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query attribution events: %w", result.Error)
	}
	return events, nil
}
