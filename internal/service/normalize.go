package service

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/attribution"
	"github.com/shoptrail/shoptrail-worker/internal/models"
	"github.com/shoptrail/shoptrail-worker/internal/shopify"
)

// normalizeAPIOrder converts one upstream API order record into the
// stored shape. Both ingestion paths (sync pull and webhook push) go
// through a normalization boundary like this one, so they converge on
// identical stored state regardless of order of arrival.
func normalizeAPIOrder(shopID string, record shopify.Order) (models.Order, []models.OrderLine) {
	channel := attribution.InferChannel(record.UTMSource, record.UTMMedium, record.ReferrerURL, record.SourceName)

	order := models.Order{
		ShopID:            shopID,
		ExternalID:        record.ID,
		OrderNumber:       strPtr(record.Name),
		ExternalCreatedAt: record.CreatedAt,
		ProcessedAt:       record.ProcessedAt,
		FinancialStatus:   strPtr(record.FinancialStatus),
		TotalAmount:       record.TotalAmount,
		Currency:          record.Currency,
		CustomerRef:       strPtr(record.CustomerID),
		CustomerEmail:     strPtr(record.CustomerEmail),
		Tags:              strPtr(strings.Join(record.Tags, ",")),
		DiscountCodes:     strPtr(strings.Join(record.DiscountCodes, ",")),
		LandingPage:       strPtr(record.LandingPage),
		Referrer:          strPtr(record.ReferrerURL),
		UTMSource:         strPtr(record.UTMSource),
		UTMMedium:         strPtr(record.UTMMedium),
		UTMCampaign:       strPtr(record.UTMCampaign),
		UTMContent:        strPtr(record.UTMContent),
		Channel:           strPtr(channel),
		RawPayload:        models.JSONB(record.Raw),
	}

	lines := make([]models.OrderLine, 0, len(record.LineItems))
	for _, item := range record.LineItems {
		lines = append(lines, models.OrderLine{
			ExternalID: strPtr(item.ID),
			Title:      item.Title,
			Quantity:   item.Quantity,
			Price:      item.Price,
			SKU:        strPtr(item.SKU),
			ProductRef: strPtr(item.ProductID),
		})
	}

	return order, lines
}

// orderPayload is the webhook (REST) shape of an order
type orderPayload struct {
	ID              json.Number `json:"id"`
	Name            string      `json:"name"`
	CreatedAt       string      `json:"created_at"`
	ProcessedAt     string      `json:"processed_at"`
	FinancialStatus string      `json:"financial_status"`
	TotalPrice      string      `json:"total_price"`
	Currency        string      `json:"currency"`
	Email           string      `json:"email"`
	Tags            string      `json:"tags"`
	LandingSite     string      `json:"landing_site"`
	ReferringSite   string      `json:"referring_site"`
	SourceName      string      `json:"source_name"`
	Customer        *struct {
		ID    json.Number `json:"id"`
		Email string      `json:"email"`
	} `json:"customer"`
	DiscountCodes []struct {
		Code string `json:"code"`
	} `json:"discount_codes"`
	NoteAttributes []struct {
		Name  string      `json:"name"`
		Value interface{} `json:"value"`
	} `json:"note_attributes"`
	LineItems []struct {
		ID        json.Number `json:"id"`
		Title     string      `json:"title"`
		Quantity  int         `json:"quantity"`
		Price     string      `json:"price"`
		SKU       string      `json:"sku"`
		ProductID json.Number `json:"product_id"`
	} `json:"line_items"`
}

func parseOrderPayload(raw []byte) (*orderPayload, error) {
	var payload orderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse order payload: %w", err)
	}
	if payload.ID.String() == "" {
		return nil, fmt.Errorf("order payload missing id")
	}
	return &payload, nil
}

// toOrder normalizes the webhook shape. UTM fields come from the landing
// site query string when present; webhook payloads carry no customer
// journey detail.
func (p *orderPayload) toOrder(shopID string, raw []byte) (models.Order, []models.OrderLine) {
	utm := utmFromURL(p.LandingSite)
	// some storefront setups stash UTM values in note attributes instead
	// of the landing URL
	for _, attr := range p.NoteAttributes {
		value, ok := attr.Value.(string)
		if !ok || value == "" {
			continue
		}
		switch attr.Name {
		case "utm_source":
			if utm["source"] == "" {
				utm["source"] = value
			}
		case "utm_medium":
			if utm["medium"] == "" {
				utm["medium"] = value
			}
		case "utm_campaign":
			if utm["campaign"] == "" {
				utm["campaign"] = value
			}
		case "utm_content":
			if utm["content"] == "" {
				utm["content"] = value
			}
		}
	}
	channel := attribution.InferChannel(utm["source"], utm["medium"], p.ReferringSite, p.SourceName)

	var rawPayload models.JSONB
	_ = json.Unmarshal(raw, &rawPayload)

	codes := make([]string, 0, len(p.DiscountCodes))
	for _, dc := range p.DiscountCodes {
		codes = append(codes, dc.Code)
	}

	email := p.Email
	var customerRef string
	if p.Customer != nil {
		customerRef = p.Customer.ID.String()
		if email == "" {
			email = p.Customer.Email
		}
	}

	order := models.Order{
		ShopID:            shopID,
		ExternalID:        p.ID.String(),
		OrderNumber:       strPtr(p.Name),
		ExternalCreatedAt: parseWebhookTime(p.CreatedAt),
		ProcessedAt:       parseWebhookTime(p.ProcessedAt),
		FinancialStatus:   strPtr(strings.ToLower(p.FinancialStatus)),
		TotalAmount:       parseMoney(p.TotalPrice),
		Currency:          p.Currency,
		CustomerRef:       strPtr(customerRef),
		CustomerEmail:     strPtr(email),
		Tags:              strPtr(p.Tags),
		DiscountCodes:     strPtr(strings.Join(codes, ",")),
		LandingPage:       strPtr(p.LandingSite),
		Referrer:          strPtr(p.ReferringSite),
		UTMSource:         strPtr(utm["source"]),
		UTMMedium:         strPtr(utm["medium"]),
		UTMCampaign:       strPtr(utm["campaign"]),
		UTMContent:        strPtr(utm["content"]),
		Channel:           strPtr(channel),
		RawPayload:        rawPayload,
	}

	lines := make([]models.OrderLine, 0, len(p.LineItems))
	for _, item := range p.LineItems {
		lines = append(lines, models.OrderLine{
			ExternalID: strPtr(item.ID.String()),
			Title:      item.Title,
			Quantity:   item.Quantity,
			Price:      parseMoney(item.Price),
			SKU:        strPtr(item.SKU),
			ProductRef: strPtr(item.ProductID.String()),
		})
	}

	return order, lines
}

// checkoutPayload is the webhook shape of a checkout or cart event
type checkoutPayload struct {
	ID            json.Number `json:"id"`
	Token         string      `json:"token"`
	CartToken     string      `json:"cart_token"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
	LandingSite   string      `json:"landing_site"`
	ReferringSite string      `json:"referring_site"`
	SourceName    string      `json:"source_name"`
	Customer      *struct {
		ID json.Number `json:"id"`
	} `json:"customer"`
}

func parseCheckoutPayload(raw []byte) (*checkoutPayload, error) {
	var payload checkoutPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse checkout payload: %w", err)
	}
	if payload.Token == "" && payload.ID.String() == "" {
		return nil, fmt.Errorf("checkout payload missing token and id")
	}
	return &payload, nil
}

// toEvent snapshots the checkout/cart as an append-only attribution
// event. The dedup key is the upstream token so redeliveries and
// successive updates of the same cart/checkout collapse to one event.
func (p *checkoutPayload) toEvent(shopID, eventType string) models.AttributionEvent {
	utm := utmFromURL(p.LandingSite)
	channel := attribution.InferChannel(utm["source"], utm["medium"], p.ReferringSite, p.SourceName)

	dedupKey := p.Token
	if dedupKey == "" {
		dedupKey = p.ID.String()
	}

	occurredAt := time.Now()
	if t := parseWebhookTime(p.CreatedAt); t != nil {
		occurredAt = *t
	}

	event := models.AttributionEvent{
		ShopID:      shopID,
		EventType:   eventType,
		DedupKey:    dedupKey,
		OccurredAt:  occurredAt,
		UTMSource:   strPtr(utm["source"]),
		UTMMedium:   strPtr(utm["medium"]),
		UTMCampaign: strPtr(utm["campaign"]),
		UTMContent:  strPtr(utm["content"]),
		Referrer:    strPtr(p.ReferringSite),
		Channel:     channel,
	}
	if p.Customer != nil {
		event.CustomerRef = strPtr(p.Customer.ID.String())
	}
	return event
}

// utmFromURL extracts utm_* query parameters from a landing URL
func utmFromURL(landing string) map[string]string {
	utm := map[string]string{"source": "", "medium": "", "campaign": "", "content": ""}
	if landing == "" {
		return utm
	}
	parsed, err := url.Parse(landing)
	if err != nil {
		return utm
	}
	query := parsed.Query()
	utm["source"] = query.Get("utm_source")
	utm["medium"] = query.Get("utm_medium")
	utm["campaign"] = query.Get("utm_campaign")
	utm["content"] = query.Get("utm_content")
	return utm
}

func parseWebhookTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

func parseMoney(value string) float64 {
	if value == "" {
		return 0
	}
	var amount float64
	if _, err := fmt.Sscanf(value, "%f", &amount); err != nil {
		return 0
	}
	return amount
}

// strPtr converts a string to a nullable column value: empty means NULL,
// which the merge upsert treats as "keep existing"
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
