package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shoptrail/shoptrail-worker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SyncCursorRepository struct {
	db *gorm.DB
}

func NewSyncCursorRepository(db *gorm.DB) *SyncCursorRepository {
	return &SyncCursorRepository{db: db}
}

// Get retrieves the cursor for (shop, entity), or nil if none exists yet
func (r *SyncCursorRepository) Get(ctx context.Context, shopID, entity string) (*models.SyncCursor, error) {
	var cursor models.SyncCursor
	result := r.db.WithContext(ctx).First(&cursor, "shop_id = ? AND entity = ?", shopID, entity)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync cursor: %w", result.Error)
	}
	return &cursor, nil
}

// Upsert advances the cursor for (shop, entity). The watermark only moves
// forward from the caller's perspective; the stored token is diagnostic.
func (r *SyncCursorRepository) Upsert(ctx context.Context, shopID, entity string, watermark time.Time, token *string) error {
	now := time.Now()
	cursor := models.SyncCursor{
		ID:        uuid.New().String(),
		ShopID:    shopID,
		Entity:    entity,
		Token:     token,
		Watermark: &watermark,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shop_id"}, {Name: "entity"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"token", "watermark", "updated_at",
			}),
		}).
		Create(&cursor)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert sync cursor: %w", result.Error)
	}
	return nil
}
