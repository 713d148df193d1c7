package models

import "time"

// TrafficSource is a last-write-wins dimension row for a distinct
// (utm_source, utm_medium) pair seen for a shop. Keys are stored as empty
// strings rather than NULLs so the unique index holds.
type TrafficSource struct {
	ID         string    `gorm:"column:id;primaryKey"`
	ShopID     string    `gorm:"column:shop_id;uniqueIndex:idx_traffic_source_key"`
	UTMSource  string    `gorm:"column:utm_source;uniqueIndex:idx_traffic_source_key"`
	UTMMedium  string    `gorm:"column:utm_medium;uniqueIndex:idx_traffic_source_key"`
	Channel    string    `gorm:"column:channel"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (TrafficSource) TableName() string {
	return "traffic_source"
}

// Campaign is a last-write-wins dimension row for a distinct
// (utm_campaign, utm_source, utm_medium, utm_content) combination.
type Campaign struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ShopID      string    `gorm:"column:shop_id;uniqueIndex:idx_campaign_key"`
	UTMCampaign string    `gorm:"column:utm_campaign;uniqueIndex:idx_campaign_key"`
	UTMSource   string    `gorm:"column:utm_source;uniqueIndex:idx_campaign_key"`
	UTMMedium   string    `gorm:"column:utm_medium;uniqueIndex:idx_campaign_key"`
	UTMContent  string    `gorm:"column:utm_content;uniqueIndex:idx_campaign_key"`
	Name        string    `gorm:"column:name"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Campaign) TableName() string {
	return "campaign"
}
