package models

import "time"

// WebhookReceipt records one webhook delivery per (shop, delivery id).
// Insertion uses insert-if-absent semantics: a conflicting insert affects
// zero rows, which marks the delivery as a duplicate before any handler
// side effect runs.
type WebhookReceipt struct {
	ID          string     `gorm:"column:id;primaryKey"`
	ShopID      string     `gorm:"column:shop_id;uniqueIndex:idx_receipt_delivery"`
	DeliveryID  string     `gorm:"column:delivery_id;uniqueIndex:idx_receipt_delivery"`
	Topic       string     `gorm:"column:topic"`
	ContentHash string     `gorm:"column:content_hash"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (WebhookReceipt) TableName() string {
	return "webhook_receipt"
}
