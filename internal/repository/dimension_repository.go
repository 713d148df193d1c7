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

// DimensionRepository maintains the last-write-wins TrafficSource and
// Campaign dimension tables.
type DimensionRepository struct {
	db *gorm.DB
}

func NewDimensionRepository(db *gorm.DB) *DimensionRepository {
	return &DimensionRepository{db: db}
}

// UpsertTrafficSource records the latest inferred channel for a
// (utm_source, utm_medium) pair
func (r *DimensionRepository) UpsertTrafficSource(ctx context.Context, shopID, utmSource, utmMedium, channel string, seenAt time.Time) error {
	now := time.Now()
	row := models.TrafficSource{
		ID:         uuid.New().String(),
		ShopID:     shopID,
		UTMSource:  utmSource,
		UTMMedium:  utmMedium,
		Channel:    channel,
		LastSeenAt: seenAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shop_id"}, {Name: "utm_source"}, {Name: "utm_medium"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"channel", "last_seen_at", "updated_at",
			}),
		}).
		Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert traffic source: %w", result.Error)
	}
	return nil
}

// UpsertCampaign records a campaign combination with its display name
func (r *DimensionRepository) UpsertCampaign(ctx context.Context, shopID, utmCampaign, utmSource, utmMedium, utmContent string, seenAt time.Time) error {
	now := time.Now()
	row := models.Campaign{
		ID:          uuid.New().String(),
		ShopID:      shopID,
		UTMCampaign: utmCampaign,
		UTMSource:   utmSource,
		UTMMedium:   utmMedium,
		UTMContent:  utmContent,
		Name:        utmCampaign,
		LastSeenAt:  seenAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "shop_id"}, {Name: "utm_campaign"},
				{Name: "utm_source"}, {Name: "utm_medium"}, {Name: "utm_content"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_seen_at", "updated_at",
			}),
		}).
		Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert campaign: %w", result.Error)
	}
	return nil
}
