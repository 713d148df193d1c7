package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/models"
)

var (
	// ErrInvalidSignature means the HMAC header did not match the body
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	// ErrUnknownShop means the delivery names a shop domain not registered here
	ErrUnknownShop = errors.New("unknown shop domain")
	// ErrMalformedPayload means the body could not be parsed for its topic
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// EventStore appends attribution events
type EventStore interface {
	Append(ctx context.Context, event models.AttributionEvent) error
}

// ReceiptStore is the webhook dedup ledger
type ReceiptStore interface {
	InsertIfAbsent(ctx context.Context, shopID, deliveryID, topic, contentHash string) (bool, error)
	MarkProcessed(ctx context.Context, shopID, deliveryID string) error
}

// Delivery is one incoming webhook delivery, verbatim
type Delivery struct {
	Topic      string
	ShopDomain string
	DeliveryID string
	Signature  string
	RawBody    []byte
}

// IngestResult reports the outcome of one accepted delivery
type IngestResult struct {
	Deduped bool
}

// WebhookIngestor verifies, deduplicates and applies webhook deliveries.
// The receipt is recorded before any side effect, so a redelivered
// webhook is a no-op even if the first processing attempt died midway.
type WebhookIngestor struct {
	shops    ShopStore
	orders   OrderStore
	events   EventStore
	receipts ReceiptStore

	secret string
	now    func() time.Time
}

func NewWebhookIngestor(shops ShopStore, orders OrderStore, events EventStore, receipts ReceiptStore, secret string) *WebhookIngestor {
	return &WebhookIngestor{
		shops:    shops,
		orders:   orders,
		events:   events,
		receipts: receipts,
		secret:   secret,
		now:      time.Now,
	}
}

// Ingest processes one delivery end to end. Signature verification runs
// before anything else; when no secret is configured it is skipped and a
// warning was already logged at startup.
func (w *WebhookIngestor) Ingest(ctx context.Context, delivery Delivery) (*IngestResult, error) {
	if err := w.verifySignature(delivery); err != nil {
		return nil, err
	}

	// only an affirmative "no such shop" maps to ErrUnknownShop; a failed
	// lookup surfaces as a server error so the upstream redelivers
	shop, err := w.shops.GetByDomain(ctx, delivery.ShopDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to look up shop %s: %w", delivery.ShopDomain, err)
	}
	if shop == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownShop, delivery.ShopDomain)
	}

	contentHash := sha256Hex(delivery.RawBody)
	inserted, err := w.receipts.InsertIfAbsent(ctx, shop.ID, delivery.DeliveryID, delivery.Topic, contentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to record webhook receipt: %w", err)
	}
	if !inserted {
		log.Printf("duplicate webhook delivery %s for shop %s, topic %s", delivery.DeliveryID, delivery.ShopDomain, delivery.Topic)
		return &IngestResult{Deduped: true}, nil
	}

	if err := w.apply(ctx, shop, delivery); err != nil {
		return nil, err
	}

	if err := w.receipts.MarkProcessed(ctx, shop.ID, delivery.DeliveryID); err != nil {
		log.Printf("failed to mark webhook receipt processed for delivery %s: %v", delivery.DeliveryID, err)
	}
	return &IngestResult{}, nil
}

func (w *WebhookIngestor) verifySignature(delivery Delivery) error {
	if w.secret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(delivery.RawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(delivery.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func (w *WebhookIngestor) apply(ctx context.Context, shop *models.Shop, delivery Delivery) error {
	switch delivery.Topic {
	case "orders/create", "orders/updated":
		return w.applyOrder(ctx, shop, delivery, false)
	case "orders/paid":
		return w.applyOrder(ctx, shop, delivery, true)
	case "checkouts/create", "checkouts/update":
		return w.applyCheckout(ctx, shop, delivery, models.EventTypeCheckout)
	case "carts/create", "carts/update":
		return w.applyCheckout(ctx, shop, delivery, models.EventTypeAddToCart)
	case "customers/create", "customers/update":
		return w.applyCustomer(ctx, shop, delivery)
	default:
		// unknown topics are accepted and recorded so upstream stops
		// redelivering them
		log.Printf("ignoring webhook topic %s for shop %s", delivery.Topic, delivery.ShopDomain)
		return nil
	}
}

func (w *WebhookIngestor) applyOrder(ctx context.Context, shop *models.Shop, delivery Delivery, paid bool) error {
	payload, err := parseOrderPayload(delivery.RawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	order, lines := payload.toOrder(shop.ID, delivery.RawBody)
	if err := w.orders.Upsert(ctx, order, lines); err != nil {
		return fmt.Errorf("failed to upsert order %s from webhook: %w", order.ExternalID, err)
	}

	if paid {
		event := models.AttributionEvent{
			ShopID:      shop.ID,
			EventType:   models.EventTypeOrderPaid,
			DedupKey:    order.ExternalID,
			OccurredAt:  w.now(),
			UTMSource:   order.UTMSource,
			UTMMedium:   order.UTMMedium,
			UTMCampaign: order.UTMCampaign,
			UTMContent:  order.UTMContent,
			Referrer:    order.Referrer,
			Channel:     deref(order.Channel),
			CustomerRef: order.CustomerRef,
			Revenue:     &order.TotalAmount,
			Currency:    &order.Currency,
		}
		if order.ProcessedAt != nil {
			event.OccurredAt = *order.ProcessedAt
		}
		if err := w.events.Append(ctx, event); err != nil {
			return fmt.Errorf("failed to append order_paid event for order %s: %w", order.ExternalID, err)
		}
	}
	return nil
}

func (w *WebhookIngestor) applyCheckout(ctx context.Context, shop *models.Shop, delivery Delivery, eventType string) error {
	payload, err := parseCheckoutPayload(delivery.RawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	event := payload.toEvent(shop.ID, eventType)
	if err := w.events.Append(ctx, event); err != nil {
		return fmt.Errorf("failed to append %s event: %w", eventType, err)
	}
	return nil
}

// applyCustomer backfills the customer email onto already-stored orders.
// There is no customer table; orders are the only place the email lives.
func (w *WebhookIngestor) applyCustomer(ctx context.Context, shop *models.Shop, delivery Delivery) error {
	var payload struct {
		ID    json.Number `json:"id"`
		Email string      `json:"email"`
	}
	if err := json.Unmarshal(delivery.RawBody, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.ID.String() == "" || payload.Email == "" {
		return nil
	}
	updated, err := w.orders.UpdateCustomerEmail(ctx, shop.ID, payload.ID.String(), payload.Email)
	if err != nil {
		return err
	}
	if updated > 0 {
		log.Printf("backfilled customer email onto %d orders for shop %s", updated, shop.Domain)
	}
	return nil
}

func sha256Hex(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
