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

type CampaignSpendRepository struct {
	db *gorm.DB
}

func NewCampaignSpendRepository(db *gorm.DB) *CampaignSpendRepository {
	return &CampaignSpendRepository{db: db}
}

// Upsert writes one spend row, last write wins on (shop, date, campaign)
func (r *CampaignSpendRepository) Upsert(ctx context.Context, spend models.CampaignSpend) error {
	if spend.ID == "" {
		spend.ID = uuid.New().String()
	}
	now := time.Now()
	if spend.CreatedAt.IsZero() {
		spend.CreatedAt = now
	}
	spend.UpdatedAt = now

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shop_id"}, {Name: "date"}, {Name: "campaign"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"amount", "currency", "source", "updated_at",
			}),
		}).
		Create(&spend)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert campaign spend: %w", result.Error)
	}
	return nil
}

// ListInRange retrieves spend rows with date in [from, to]
func (r *CampaignSpendRepository) ListInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.CampaignSpend, error) {
	var rows []models.CampaignSpend
	result := r.db.WithContext(ctx).
		Where("shop_id = ? AND date >= ? AND date <= ?", shopID, from.Format("2006-01-02"), to.Format("2006-01-02")).
		Order("date ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list campaign spend: %w", result.Error)
	}
	return rows, nil
}
