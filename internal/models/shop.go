package models

import "time"

// Shop represents a connected storefront integration
type Shop struct {
	ID           string     `gorm:"column:id;primaryKey"`
	TenantID     string     `gorm:"column:tenant_id;index"`
	Domain       string     `gorm:"column:domain;uniqueIndex"`
	AccessToken  *string    `gorm:"column:access_token"`
	Active       bool       `gorm:"column:active"`
	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Shop) TableName() string {
	return "shop"
}
