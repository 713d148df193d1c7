package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Order financial status constants (mirrors the upstream platform values)
const (
	FinancialStatusPending           = "pending"
	FinancialStatusAuthorized        = "authorized"
	FinancialStatusPaid              = "paid"
	FinancialStatusPartiallyPaid     = "partially_paid"
	FinancialStatusPartiallyRefunded = "partially_refunded"
	FinancialStatusRefunded          = "refunded"
	FinancialStatusVoided            = "voided"
)

// PaidEquivalentStatuses are the financial statuses counted as revenue
// in daily metric recomputation.
var PaidEquivalentStatuses = []string{
	FinancialStatusPaid,
	FinancialStatusPartiallyPaid,
	FinancialStatusPartiallyRefunded,
}

// JSONB type for GORM to handle PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements driver.Valuer for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Order represents a normalized storefront order. Upserts use
// null-preserving merge semantics: an incoming NULL never overwrites an
// existing non-NULL column, except raw_payload which always takes the
// latest delivery.
type Order struct {
	ID                string     `gorm:"column:id;primaryKey"`
	ShopID            string     `gorm:"column:shop_id;uniqueIndex:idx_order_shop_external"`
	ExternalID        string     `gorm:"column:external_id;uniqueIndex:idx_order_shop_external"`
	OrderNumber       *string    `gorm:"column:order_number"`
	ExternalCreatedAt *time.Time `gorm:"column:external_created_at"`
	ProcessedAt       *time.Time `gorm:"column:processed_at;index"`
	FinancialStatus   *string    `gorm:"column:financial_status;index"`
	TotalAmount       float64    `gorm:"column:total_amount"`
	Currency          string     `gorm:"column:currency"`
	CustomerRef       *string    `gorm:"column:customer_ref;index"`
	CustomerEmail     *string    `gorm:"column:customer_email"`
	Tags              *string    `gorm:"column:tags"`
	DiscountCodes     *string    `gorm:"column:discount_codes"`
	LandingPage       *string    `gorm:"column:landing_page"`
	Referrer          *string    `gorm:"column:referrer"`
	UTMSource         *string    `gorm:"column:utm_source"`
	UTMMedium         *string    `gorm:"column:utm_medium"`
	UTMCampaign       *string    `gorm:"column:utm_campaign"`
	UTMContent        *string    `gorm:"column:utm_content"`
	Channel           *string    `gorm:"column:channel"`
	RawPayload        JSONB      `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM ("order" is a reserved word)
func (Order) TableName() string {
	return "shop_order"
}

// OrderLine belongs to exactly one Order and is replaced wholesale
// (delete-all-then-reinsert) on every update of its parent.
type OrderLine struct {
	ID         string    `gorm:"column:id;primaryKey"`
	OrderID    string    `gorm:"column:order_id;index"`
	ExternalID *string   `gorm:"column:external_id"`
	Title      string    `gorm:"column:title"`
	Quantity   int       `gorm:"column:quantity"`
	Price      float64   `gorm:"column:price"`
	SKU        *string   `gorm:"column:sku"`
	ProductRef *string   `gorm:"column:product_ref"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (OrderLine) TableName() string {
	return "shop_order_line"
}
