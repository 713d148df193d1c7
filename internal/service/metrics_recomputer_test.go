package service

import (
	"context"
	"testing"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/models"
)

func paidOrder(id string, processedAt time.Time, channel, campaign, customerRef string, total float64) models.Order {
	status := models.FinancialStatusPaid
	order := models.Order{
		ShopID:          "shop-1",
		ExternalID:      id,
		ProcessedAt:     &processedAt,
		FinancialStatus: &status,
		TotalAmount:     total,
		Currency:        "USD",
	}
	if channel != "" {
		order.Channel = &channel
	}
	if campaign != "" {
		order.UTMCampaign = &campaign
	}
	if customerRef != "" {
		order.CustomerRef = &customerRef
	}
	return order
}

func funnelEvent(eventType string, occurredAt time.Time, channel, campaign string) models.AttributionEvent {
	event := models.AttributionEvent{
		ShopID:     "shop-1",
		EventType:  eventType,
		DedupKey:   eventType + occurredAt.String(),
		OccurredAt: occurredAt,
		Channel:    channel,
	}
	if campaign != "" {
		event.UTMCampaign = &campaign
	}
	return event
}

func findMetric(metrics []models.DailyMetric, date time.Time, channel, campaign string) *models.DailyMetric {
	for i := range metrics {
		if metrics[i].Date.Equal(date) && metrics[i].Channel == channel && metrics[i].Campaign == campaign {
			return &metrics[i]
		}
	}
	return nil
}

func TestRecompute_FunnelAndOrders(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	morning := day.Add(9 * time.Hour)

	events := &mockEventReader{events: []models.AttributionEvent{
		funnelEvent(models.EventTypeSession, morning, "paid", "summer"),
		funnelEvent(models.EventTypeSession, morning.Add(time.Minute), "paid", "summer"),
		funnelEvent(models.EventTypeAddToCart, morning.Add(2*time.Minute), "paid", "summer"),
		funnelEvent(models.EventTypeCheckout, morning.Add(3*time.Minute), "paid", "summer"),
		// order_paid events never count toward funnel or order totals
		funnelEvent(models.EventTypeOrderPaid, morning.Add(4*time.Minute), "paid", "summer"),
	}}
	orders := &mockPaidOrderReader{
		orders: []models.Order{
			paidOrder("1", morning.Add(time.Hour), "paid", "summer", "cust-1", 100),
			paidOrder("2", morning.Add(2*time.Hour), "paid", "summer", "cust-2", 60),
		},
		firstPaid: map[string]time.Time{
			"cust-1": morning.Add(time.Hour),
			"cust-2": day.AddDate(0, -1, 0),
		},
	}
	metrics := &mockMetricStore{}

	recomputer := NewMetricsRecomputer(newMockShopStore(testShop()), events, orders, metrics, &mockSpendReader{})
	count, err := recomputer.Recompute(context.Background(), "demo.myshopify.com", day, day)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != len(metrics.written) {
		t.Errorf("expected returned count %d to match written rows %d", count, len(metrics.written))
	}
	if metrics.deleted != 1 {
		t.Errorf("expected one delete pass, got %d", metrics.deleted)
	}

	row := findMetric(metrics.written, day, "paid", "summer")
	if row == nil {
		t.Fatal("expected metric row for (paid, summer)")
	}
	if row.Sessions != 2 || row.AddToCarts != 1 || row.Checkouts != 1 {
		t.Errorf("unexpected funnel counts: %+v", row)
	}
	if row.PaidOrders != 2 || row.Revenue != 160 {
		t.Errorf("expected 2 paid orders with revenue 160, got %d/%f", row.PaidOrders, row.Revenue)
	}
	if row.AOV == nil || *row.AOV != 80 {
		t.Errorf("expected AOV 80, got %v", row.AOV)
	}
	// zero spend divides ROAS, so it stays NULL; CPA's divisor is paid
	// orders, so zero spend is a defined CPA of 0
	if row.ROAS != nil {
		t.Errorf("expected ROAS NULL without spend, got %v", row.ROAS)
	}
	if row.CPA == nil || *row.CPA != 0 {
		t.Errorf("expected CPA 0 with zero spend over 2 orders, got %v", row.CPA)
	}
	if row.CAC != nil {
		t.Errorf("expected CAC NULL with no new customers on the row, got %v", row.CAC)
	}

	lifecycle := findMetric(metrics.written, day, models.ChannelUnknown, "")
	if lifecycle == nil {
		t.Fatal("expected unknown-channel lifecycle row")
	}
	if lifecycle.NewCustomers != 1 || lifecycle.RepeatCustomers != 1 {
		t.Errorf("expected 1 new and 1 repeat customer, got %d/%d", lifecycle.NewCustomers, lifecycle.RepeatCustomers)
	}
	if lifecycle.CAC == nil || *lifecycle.CAC != 0 {
		t.Errorf("expected CAC 0 with zero spend over 1 new customer, got %v", lifecycle.CAC)
	}
}

func TestRecompute_SpendJoin(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	orders := &mockPaidOrderReader{
		orders: []models.Order{
			paidOrder("1", day.Add(10*time.Hour), "paid", "summer", "", 200),
		},
	}
	spend := &mockSpendReader{spends: []models.CampaignSpend{
		{ShopID: "shop-1", Date: day, Campaign: "summer", Amount: 50, Currency: "USD"},
		{ShopID: "shop-1", Date: day, Campaign: "orphan", Amount: 30, Currency: "USD"},
	}}
	metrics := &mockMetricStore{}

	recomputer := NewMetricsRecomputer(newMockShopStore(testShop()), &mockEventReader{}, orders, metrics, spend)
	if _, err := recomputer.Recompute(context.Background(), "demo.myshopify.com", day, day); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	matched := findMetric(metrics.written, day, "paid", "summer")
	if matched == nil || matched.Spend != 50 {
		t.Fatalf("expected spend 50 joined onto the summer row, got %+v", matched)
	}
	if matched.ROAS == nil || *matched.ROAS != 4 {
		t.Errorf("expected ROAS 4, got %v", matched.ROAS)
	}
	if matched.CPA == nil || *matched.CPA != 50 {
		t.Errorf("expected CPA 50, got %v", matched.CPA)
	}

	orphan := findMetric(metrics.written, day, models.ChannelUnknown, "orphan")
	if orphan == nil || orphan.Spend != 30 {
		t.Fatalf("expected orphan spend on a fresh unknown-channel row, got %+v", orphan)
	}
	// no orders on the orphan row: ratios with zero divisors stay NULL
	if orphan.AOV != nil || orphan.CPA != nil || orphan.CAC != nil {
		t.Errorf("expected NULL ratios on the orphan row, got %+v", orphan)
	}
}

func TestRecompute_WindowBoundsStayInclusive(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	nextDay := day.AddDate(0, 0, 1)
	spend := &mockSpendReader{spends: []models.CampaignSpend{
		{ShopID: "shop-1", Date: day, Campaign: "summer", Amount: 50, Currency: "USD"},
		// dated one day past the requested window; must not be pulled in
		{ShopID: "shop-1", Date: nextDay, Campaign: "summer", Amount: 30, Currency: "USD"},
	}}
	metrics := &mockMetricStore{}

	recomputer := NewMetricsRecomputer(newMockShopStore(testShop()), &mockEventReader{}, &mockPaidOrderReader{}, metrics, spend)
	if _, err := recomputer.Recompute(context.Background(), "demo.myshopify.com", day, day); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// the delete covers exactly the requested dates, never the day after
	if !metrics.deletedFrom.Equal(day) || !metrics.deletedTo.Equal(day) {
		t.Errorf("expected delete bounds [%v, %v], got [%v, %v]", day, day, metrics.deletedFrom, metrics.deletedTo)
	}
	for _, written := range metrics.written {
		if written.Date.After(day) {
			t.Errorf("wrote row dated %v outside the requested window ending %v", written.Date, day)
		}
	}
	inWindow := findMetric(metrics.written, day, models.ChannelUnknown, "summer")
	if inWindow == nil || inWindow.Spend != 50 {
		t.Fatalf("expected only the in-window spend of 50, got %+v", inWindow)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	orders := &mockPaidOrderReader{
		orders: []models.Order{
			paidOrder("1", day.Add(10*time.Hour), "paid", "summer", "cust-1", 100),
		},
		firstPaid: map[string]time.Time{"cust-1": day.Add(10 * time.Hour)},
	}
	metrics := &mockMetricStore{}
	recomputer := NewMetricsRecomputer(newMockShopStore(testShop()), &mockEventReader{}, orders, metrics, &mockSpendReader{})

	first, err := recomputer.Recompute(context.Background(), "demo.myshopify.com", day, day)
	if err != nil {
		t.Fatalf("first recompute failed: %v", err)
	}
	firstRows := metrics.written

	second, err := recomputer.Recompute(context.Background(), "demo.myshopify.com", day, day)
	if err != nil {
		t.Fatalf("second recompute failed: %v", err)
	}
	if first != second {
		t.Errorf("expected identical row counts, got %d then %d", first, second)
	}
	for i := range firstRows {
		got := metrics.written[i]
		want := firstRows[i]
		if got.Channel != want.Channel || got.Campaign != want.Campaign || got.Revenue != want.Revenue {
			t.Errorf("row %d differs across runs: %+v vs %+v", i, got, want)
		}
	}
}

func TestRecompute_InvalidWindow(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	recomputer := NewMetricsRecomputer(newMockShopStore(testShop()), &mockEventReader{}, &mockPaidOrderReader{}, &mockMetricStore{}, &mockSpendReader{})

	if _, err := recomputer.Recompute(context.Background(), "demo.myshopify.com", day, day.AddDate(0, 0, -2)); err == nil {
		t.Fatal("expected error for inverted window")
	}
}

func TestRecompute_EmptyWindowClearsRows(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	metrics := &mockMetricStore{}
	recomputer := NewMetricsRecomputer(newMockShopStore(testShop()), &mockEventReader{}, &mockPaidOrderReader{}, metrics, &mockSpendReader{})

	count, err := recomputer.Recompute(context.Background(), "demo.myshopify.com", day, day)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 rows, got %d", count)
	}
	if metrics.deleted != 1 {
		t.Error("expected stale rows still cleared for the window")
	}
}
