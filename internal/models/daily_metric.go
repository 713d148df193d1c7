package models

import "time"

// ChannelUnknown is the bucket used for metrics that cannot be attributed
// to a specific channel (e.g. new/repeat customer counts).
const ChannelUnknown = "unknown"

// DailyMetric holds one aggregate row per (shop, date, channel, campaign).
// Rows for a date range are deleted and rebuilt on every recomputation;
// derived ratios are NULL when their divisor is zero, never 0 or +Inf.
type DailyMetric struct {
	ID              string    `gorm:"column:id;primaryKey"`
	ShopID          string    `gorm:"column:shop_id;uniqueIndex:idx_daily_metric_key"`
	Date            time.Time `gorm:"column:date;type:date;uniqueIndex:idx_daily_metric_key"`
	Channel         string    `gorm:"column:channel;uniqueIndex:idx_daily_metric_key"`
	Campaign        string    `gorm:"column:campaign;uniqueIndex:idx_daily_metric_key"`
	Sessions        int       `gorm:"column:sessions"`
	AddToCarts      int       `gorm:"column:add_to_carts"`
	Checkouts       int       `gorm:"column:checkouts"`
	PaidOrders      int       `gorm:"column:paid_orders"`
	Revenue         float64   `gorm:"column:revenue"`
	Spend           float64   `gorm:"column:spend"`
	NewCustomers    int       `gorm:"column:new_customers"`
	RepeatCustomers int       `gorm:"column:repeat_customers"`
	AOV             *float64  `gorm:"column:aov"`
	ROAS            *float64  `gorm:"column:roas"`
	CPA             *float64  `gorm:"column:cpa"`
	CAC             *float64  `gorm:"column:cac"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (DailyMetric) TableName() string {
	return "daily_metric"
}

// CampaignSpend is a last-write-wins spend row per (shop, date, campaign),
// fed by manual entry or the spend sheet sync.
type CampaignSpend struct {
	ID        string    `gorm:"column:id;primaryKey"`
	ShopID    string    `gorm:"column:shop_id;uniqueIndex:idx_campaign_spend_key"`
	Date      time.Time `gorm:"column:date;type:date;uniqueIndex:idx_campaign_spend_key"`
	Campaign  string    `gorm:"column:campaign;uniqueIndex:idx_campaign_spend_key"`
	Amount    float64   `gorm:"column:amount"`
	Currency  string    `gorm:"column:currency"`
	Source    *string   `gorm:"column:source"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (CampaignSpend) TableName() string {
	return "campaign_spend"
}
