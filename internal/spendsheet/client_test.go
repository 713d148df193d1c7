package spendsheet

import (
	"testing"
	"time"
)

func TestParseRows(t *testing.T) {
	values := [][]interface{}{
		{"demo.myshopify.com", "2026-08-20", "summer_sale", "150.50", "usd"},
		{"demo.myshopify.com", "2026-08-21", "summer_sale", "99"},
		{"", "2026-08-20", "no_domain", "10", "USD"},
		{"demo.myshopify.com", "not-a-date", "bad_date", "10", "USD"},
		{"demo.myshopify.com", "2026-08-20", "", "10", "USD"},
		{"demo.myshopify.com", "2026-08-20", "bad_amount", "ten", "USD"},
		{"demo.myshopify.com"},
	}

	rows := ParseRows(values)
	if len(rows) != 2 {
		t.Fatalf("expected 2 valid rows, got %d", len(rows))
	}

	first := rows[0]
	if first.ShopDomain != "demo.myshopify.com" {
		t.Errorf("unexpected domain %s", first.ShopDomain)
	}
	if !first.Date.Equal(time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", first.Date)
	}
	if first.Campaign != "summer_sale" {
		t.Errorf("unexpected campaign %s", first.Campaign)
	}
	if first.Amount != 150.50 {
		t.Errorf("unexpected amount %f", first.Amount)
	}
	if first.Currency != "USD" {
		t.Errorf("expected currency uppercased to USD, got %s", first.Currency)
	}

	// currency column absent defaults to USD
	if rows[1].Currency != "USD" {
		t.Errorf("expected default currency USD, got %s", rows[1].Currency)
	}
}
