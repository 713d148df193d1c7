package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shoptrail/shoptrail-worker/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubIngestor struct {
	result   *service.IngestResult
	err      error
	received service.Delivery
}

func (s *stubIngestor) Ingest(ctx context.Context, delivery service.Delivery) (*service.IngestResult, error) {
	s.received = delivery
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &service.IngestResult{}, nil
}

type stubSyncer struct {
	summary *service.SyncSummary
	err     error
	opts    service.SyncOptions
}

func (s *stubSyncer) SyncOrders(ctx context.Context, shopDomain string, opts service.SyncOptions) (*service.SyncSummary, error) {
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

type stubRecomputer struct {
	rows int
	err  error
	from time.Time
	to   time.Time
}

func (s *stubRecomputer) Recompute(ctx context.Context, shopDomain string, from, to time.Time) (int, error) {
	s.from, s.to = from, to
	return s.rows, s.err
}

func webhookRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewBufferString(body))
	req.Header.Set("X-Shopify-Topic", "orders/create")
	req.Header.Set("X-Shopify-Shop-Domain", "demo.myshopify.com")
	req.Header.Set("X-Shopify-Webhook-Id", "delivery-1")
	req.Header.Set("X-Shopify-Hmac-Sha256", "sig")
	return req
}

func TestHandleWebhook_OK(t *testing.T) {
	ingestor := &stubIngestor{}
	router := New(ingestor, &stubSyncer{}, &stubRecomputer{}, nil).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, webhookRequest(`{"id": 1}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ingestor.received.Topic != "orders/create" || ingestor.received.DeliveryID != "delivery-1" {
		t.Errorf("unexpected delivery passed through: %+v", ingestor.received)
	}
	if string(ingestor.received.RawBody) != `{"id": 1}` {
		t.Errorf("expected raw body passed verbatim, got %s", ingestor.received.RawBody)
	}
}

func TestHandleWebhook_MissingHeaders(t *testing.T) {
	router := New(&stubIngestor{}, &stubSyncer{}, &stubRecomputer{}, nil).Router()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid signature", service.ErrInvalidSignature, http.StatusUnauthorized},
		{"unknown shop", service.ErrUnknownShop, http.StatusGone},
		{"malformed payload", service.ErrMalformedPayload, http.StatusBadRequest},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := New(&stubIngestor{err: tt.err}, &stubSyncer{}, &stubRecomputer{}, nil).Router()
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, webhookRequest(`{}`))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHandleSync(t *testing.T) {
	syncer := &stubSyncer{summary: &service.SyncSummary{ShopDomain: "demo.myshopify.com", Processed: 7}}
	router := New(&stubIngestor{}, syncer, &stubRecomputer{}, nil).Router()

	body := `{"shop_domain": "demo.myshopify.com", "max_orders": 100}`
	req := httptest.NewRequest(http.MethodPost, "/admin/sync", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if syncer.opts.MaxOrders != 100 {
		t.Errorf("expected max orders 100 passed through, got %d", syncer.opts.MaxOrders)
	}
	var summary service.SyncSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if summary.Processed != 7 {
		t.Errorf("expected 7 processed in response, got %d", summary.Processed)
	}
}

func TestHandleSync_MissingDomain(t *testing.T) {
	router := New(&stubIngestor{}, &stubSyncer{}, &stubRecomputer{}, nil).Router()

	req := httptest.NewRequest(http.MethodPost, "/admin/sync", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRecompute(t *testing.T) {
	recomputer := &stubRecomputer{rows: 12}
	router := New(&stubIngestor{}, &stubSyncer{}, recomputer, nil).Router()

	body := `{"shop_domain": "demo.myshopify.com", "from": "2026-08-18", "to": "2026-08-20"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/recompute", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if recomputer.from.Format("2006-01-02") != "2026-08-18" {
		t.Errorf("unexpected from date %v", recomputer.from)
	}
	var resp struct {
		ShopDomain string `json:"shop_domain"`
		Rows       int    `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ShopDomain != "demo.myshopify.com" || resp.Rows != 12 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleRecompute_InvalidDates(t *testing.T) {
	router := New(&stubIngestor{}, &stubSyncer{}, &stubRecomputer{}, nil).Router()

	tests := []string{
		`{"shop_domain": "demo.myshopify.com", "from": "bad", "to": "2026-08-20"}`,
		`{"shop_domain": "demo.myshopify.com", "from": "2026-08-20", "to": "bad"}`,
		`{"shop_domain": "demo.myshopify.com", "from": "2026-08-20", "to": "2026-08-18"}`,
	}
	for _, body := range tests {
		req := httptest.NewRequest(http.MethodPost, "/admin/recompute", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %d", body, rec.Code)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	router := New(&stubIngestor{}, &stubSyncer{}, &stubRecomputer{}, nil).Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
