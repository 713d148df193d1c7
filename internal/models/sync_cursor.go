package models

import "time"

// Sync entity constants
const (
	SyncEntityOrders = "orders"
)

// SyncCursor persists a per-(shop, entity) resumption point. The date
// watermark, not the upstream pagination token, is what sync runs resume
// from; the token is kept only for diagnostics since upstream cursors are
// not reusable across runs.
type SyncCursor struct {
	ID        string     `gorm:"column:id;primaryKey"`
	ShopID    string     `gorm:"column:shop_id;uniqueIndex:idx_sync_cursor_key"`
	Entity    string     `gorm:"column:entity;uniqueIndex:idx_sync_cursor_key"`
	Token     *string    `gorm:"column:token"`
	Watermark *time.Time `gorm:"column:watermark"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SyncCursor) TableName() string {
	return "sync_cursor"
}
