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

type DailyMetricRepository struct {
	db *gorm.DB
}

func NewDailyMetricRepository(db *gorm.DB) *DailyMetricRepository {
	return &DailyMetricRepository{db: db}
}

// DeleteRange removes all metric rows for the shop with date in [from, to]
func (r *DailyMetricRepository) DeleteRange(ctx context.Context, shopID string, from, to time.Time) error {
	result := r.db.WithContext(ctx).
		Where("shop_id = ? AND date >= ? AND date <= ?", shopID, from.Format("2006-01-02"), to.Format("2006-01-02")).
		Delete(&models.DailyMetric{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete metric range: %w", result.Error)
	}
	return nil
}

// UpsertAll writes the rebuilt rows. Upsert-on-conflict rather than plain
// insert: the preceding delete and this rebuild are separate statements,
// so a concurrent recompute of an overlapping range must not violate the
// unique key.
func (r *DailyMetricRepository) UpsertAll(ctx context.Context, metrics []models.DailyMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	now := time.Now()
	for i := range metrics {
		if metrics[i].ID == "" {
			metrics[i].ID = uuid.New().String()
		}
		if metrics[i].CreatedAt.IsZero() {
			metrics[i].CreatedAt = now
		}
		metrics[i].UpdatedAt = now
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "shop_id"}, {Name: "date"}, {Name: "channel"}, {Name: "campaign"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"sessions", "add_to_carts", "checkouts", "paid_orders",
				"revenue", "spend", "new_customers", "repeat_customers",
				"aov", "roas", "cpa", "cac", "updated_at",
			}),
		}).
		Create(&metrics)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert daily metrics: %w", result.Error)
	}
	return nil
}

// ListRange retrieves metric rows for the shop ordered by (date, channel,
// campaign)
func (r *DailyMetricRepository) ListRange(ctx context.Context, shopID string, from, to time.Time) ([]models.DailyMetric, error) {
	var metrics []models.DailyMetric
	result := r.db.WithContext(ctx).
		Where("shop_id = ? AND date >= ? AND date <= ?", shopID, from.Format("2006-01-02"), to.Format("2006-01-02")).
		Order("date ASC, channel ASC, campaign ASC").
		Find(&metrics)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list daily metrics: %w", result.Error)
	}
	return metrics, nil
}
