package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type noopLimiter struct {
	calls int
	err   error
}

func (l *noopLimiter) Acquire(ctx context.Context, key string) error {
	l.calls++
	return l.err
}

func testClient(serverURL string, limiter RateLimiter) *Client {
	client := NewClient("2024-01", limiter)
	client.SetEndpoint(func(string) string { return serverURL })
	return client
}

const ordersPageJSON = `{
  "data": {
    "orders": {
      "pageInfo": {"hasNextPage": true, "endCursor": "cursor-2"},
      "edges": [
        {"node": {
          "id": "gid://shopify/Order/1001",
          "legacyResourceId": "1001",
          "name": "#1001",
          "createdAt": "2024-05-01T10:00:00Z",
          "processedAt": "2024-05-01T10:05:00Z",
          "displayFinancialStatus": "PAID",
          "sourceName": "web",
          "tags": ["vip"],
          "discountCodes": ["SUMMER10"],
          "totalPriceSet": {"shopMoney": {"amount": "100.00", "currencyCode": "USD"}},
          "customer": {"legacyResourceId": "501", "email": "buyer@example.com"},
          "customerJourneySummary": {
            "lastVisit": {
              "landingPage": "https://shop.example.com/?utm_source=google",
              "referrerUrl": "https://www.google.com/",
              "utmParameters": {"source": "google", "medium": "cpc", "campaign": "summer", "content": ""}
            }
          },
          "lineItems": {"edges": [
            {"node": {
              "id": "gid://shopify/LineItem/1",
              "title": "Socks",
              "sku": "SOCK-1",
              "quantity": 2,
              "product": {"legacyResourceId": "9001"},
              "originalUnitPriceSet": {"shopMoney": {"amount": "50.00"}}
            }}
          ]}
        }}
      ]
    }
  }
}`

func TestOrdersPage_Success(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(ordersPageJSON))
	}))
	defer server.Close()

	limiter := &noopLimiter{}
	client := testClient(server.URL, limiter)

	page, err := client.OrdersPage(context.Background(), "test.myshopify.com", "token-1", "processed_at:>=2024-05-01", "", 50)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotToken != "token-1" {
		t.Errorf("expected access token header, got %q", gotToken)
	}
	if limiter.calls != 1 {
		t.Errorf("expected 1 limiter acquire, got %d", limiter.calls)
	}
	if page.UsedMinimal {
		t.Error("expected rich query to succeed without fallback")
	}
	if !page.HasMore || page.NextCursor != "cursor-2" {
		t.Errorf("unexpected pagination: hasMore=%v cursor=%s", page.HasMore, page.NextCursor)
	}
	if len(page.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(page.Orders))
	}

	order := page.Orders[0]
	if order.ID != "1001" {
		t.Errorf("expected order ID 1001, got %s", order.ID)
	}
	if order.FinancialStatus != "paid" {
		t.Errorf("expected financial status to be lowercased, got %s", order.FinancialStatus)
	}
	if order.TotalAmount != 100.0 || order.Currency != "USD" {
		t.Errorf("unexpected amount: %f %s", order.TotalAmount, order.Currency)
	}
	if order.UTMSource != "google" || order.UTMMedium != "cpc" || order.UTMCampaign != "summer" {
		t.Errorf("unexpected UTM fields: %s/%s/%s", order.UTMSource, order.UTMMedium, order.UTMCampaign)
	}
	if len(order.LineItems) != 1 || order.LineItems[0].Quantity != 2 || order.LineItems[0].Price != 50.0 {
		t.Errorf("unexpected line items: %+v", order.LineItems)
	}
	if order.Raw == nil {
		t.Error("expected raw payload to be retained")
	}
}

func TestOrdersPage_MinimalFallback(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(req.Query, "customerJourneySummary") {
			w.Write([]byte(`{"errors": [{"message": "field not available"}]}`))
			return
		}
		w.Write([]byte(`{"data": {"orders": {"pageInfo": {"hasNextPage": false, "endCursor": ""}, "edges": []}}}`))
	}))
	defer server.Close()

	client := testClient(server.URL, &noopLimiter{})

	page, err := client.OrdersPage(context.Background(), "test.myshopify.com", "token-1", "", "", 50)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if requests != 2 {
		t.Errorf("expected rich then minimal request, got %d requests", requests)
	}
	if !page.UsedMinimal {
		t.Error("expected page to be flagged UsedMinimal")
	}
}

func TestOrdersPage_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors": "invalid token"}`))
	}))
	defer server.Close()

	client := testClient(server.URL, &noopLimiter{})

	_, err := client.OrdersPage(context.Background(), "test.myshopify.com", "bad-token", "", "", 50)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", upstream.Status)
	}
	if !upstream.Permanent() {
		t.Error("expected 401 to be permanent")
	}
}

func TestOrdersPage_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	client := testClient(server.URL, &noopLimiter{})

	_, err := client.OrdersPage(context.Background(), "test.myshopify.com", "token", "", "", 50)
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestOrdersPage_RateLimited(t *testing.T) {
	limitErr := errors.New("rate limited: max wait elapsed")
	client := testClient("http://unused", &noopLimiter{err: limitErr})

	_, err := client.OrdersPage(context.Background(), "test.myshopify.com", "token", "", "", 50)
	if !errors.Is(err, limitErr) {
		t.Fatalf("expected limiter error to surface, got %v", err)
	}
}

func TestUpstreamError_Permanent(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{400, true},
		{401, true},
		{404, true},
		{429, false},
		{500, false},
		{502, false},
	}

	for _, tt := range tests {
		err := &UpstreamError{Status: tt.status}
		if err.Permanent() != tt.permanent {
			t.Errorf("status %d: expected permanent=%v", tt.status, tt.permanent)
		}
	}
}
