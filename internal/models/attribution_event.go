package models

import "time"

// Attribution event type constants
const (
	EventTypeSession   = "session"
	EventTypeAddToCart = "add_to_cart"
	EventTypeCheckout  = "checkout"
	EventTypeOrderPaid = "order_paid"
)

// AttributionEvent is an append-only funnel signal with the UTM/channel
// snapshot taken at the time of occurrence. Rows are immutable once
// written; the channel is never recomputed retroactively.
type AttributionEvent struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ShopID      string    `gorm:"column:shop_id;uniqueIndex:idx_event_dedup"`
	EventType   string    `gorm:"column:event_type;uniqueIndex:idx_event_dedup"`
	DedupKey    string    `gorm:"column:dedup_key;uniqueIndex:idx_event_dedup"`
	OccurredAt  time.Time `gorm:"column:occurred_at;index"`
	UTMSource   *string   `gorm:"column:utm_source"`
	UTMMedium   *string   `gorm:"column:utm_medium"`
	UTMCampaign *string   `gorm:"column:utm_campaign"`
	UTMContent  *string   `gorm:"column:utm_content"`
	Referrer    *string   `gorm:"column:referrer"`
	Channel     string    `gorm:"column:channel"`
	CustomerRef *string   `gorm:"column:customer_ref"`
	Revenue     *float64  `gorm:"column:revenue"`
	Currency    *string   `gorm:"column:currency"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (AttributionEvent) TableName() string {
	return "attribution_event"
}
