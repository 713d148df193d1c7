package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/models"
	"gorm.io/gorm"
)

type ShopRepository struct {
	db *gorm.DB
}

func NewShopRepository(db *gorm.DB) *ShopRepository {
	return &ShopRepository{db: db}
}

// GetByDomain retrieves an active shop by its storefront domain. Returns
// nil with no error when no active shop matches, so callers can tell an
// unregistered shop from a lookup failure.
func (r *ShopRepository) GetByDomain(ctx context.Context, domain string) (*models.Shop, error) {
	var shop models.Shop
	result := r.db.WithContext(ctx).First(&shop, "domain = ? AND active = ?", domain, true)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get shop: %w", result.Error)
	}
	return &shop, nil
}

// ListDueForSync retrieves active shops whose last sync is older than the
// given interval (or that never synced), oldest first
func (r *ShopRepository) ListDueForSync(ctx context.Context, olderThan time.Time, limit int) ([]models.Shop, error) {
	var shops []models.Shop
	result := r.db.WithContext(ctx).
		Where("active = ? AND (last_synced_at IS NULL OR last_synced_at < ?)", true, olderThan).
		Order("last_synced_at ASC NULLS FIRST").
		Limit(limit).
		Find(&shops)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list due shops: %w", result.Error)
	}
	return shops, nil
}

// ListActive retrieves all active shops
func (r *ShopRepository) ListActive(ctx context.Context) ([]models.Shop, error) {
	var shops []models.Shop
	result := r.db.WithContext(ctx).Where("active = ?", true).Find(&shops)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list active shops: %w", result.Error)
	}
	return shops, nil
}

// MarkSynced records the completion time of a sync run
func (r *ShopRepository) MarkSynced(ctx context.Context, shopID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Shop{}).
		Where("id = ?", shopID).
		Updates(map[string]interface{}{
			"last_synced_at": at,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark shop synced: %w", result.Error)
	}
	return nil
}
