package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/models"
)

// EventReader lists attribution events for aggregation
type EventReader interface {
	ListInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.AttributionEvent, error)
}

// PaidOrderReader exposes the order-side aggregation inputs
type PaidOrderReader interface {
	PaidInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.Order, error)
	FirstPaidOrderDates(ctx context.Context, shopID string) (map[string]time.Time, error)
}

// MetricStore persists daily metric rows. DeleteRange bounds are
// calendar dates, both inclusive.
type MetricStore interface {
	DeleteRange(ctx context.Context, shopID string, from, to time.Time) error
	UpsertAll(ctx context.Context, metrics []models.DailyMetric) error
}

// SpendReader lists campaign spend for the recompute window. Bounds are
// calendar dates, both inclusive.
type SpendReader interface {
	ListInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.CampaignSpend, error)
}

// metricKey identifies one daily metric row
type metricKey struct {
	date     string
	channel  string
	campaign string
}

// MetricsRecomputer rebuilds the daily_metric rows for a date window by
// deleting and re-aggregating from source tables. Recomputation is
// idempotent: re-running over the same window with the same source data
// yields identical rows.
type MetricsRecomputer struct {
	shops   ShopStore
	events  EventReader
	orders  PaidOrderReader
	metrics MetricStore
	spend   SpendReader
}

func NewMetricsRecomputer(shops ShopStore, events EventReader, orders PaidOrderReader, metrics MetricStore, spend SpendReader) *MetricsRecomputer {
	return &MetricsRecomputer{
		shops:   shops,
		events:  events,
		orders:  orders,
		metrics: metrics,
		spend:   spend,
	}
}

// Recompute rebuilds metrics for [from, to] (dates, inclusive) and
// returns the number of rows written. Dates are interpreted in UTC.
func (m *MetricsRecomputer) Recompute(ctx context.Context, shopDomain string, from, to time.Time) (int, error) {
	shop, err := m.shops.GetByDomain(ctx, shopDomain)
	if err != nil {
		return 0, err
	}
	if shop == nil {
		return 0, fmt.Errorf("no active shop for domain %s", shopDomain)
	}

	// Date-keyed stores (metrics, spend) take [fromDay, lastDay]
	// inclusive; timestamp-keyed readers (events, orders) take
	// [fromDay, toDay) with an exclusive upper instant.
	fromDay := truncateDay(from)
	lastDay := truncateDay(to)
	toDay := lastDay.AddDate(0, 0, 1)
	if lastDay.Before(fromDay) {
		return 0, fmt.Errorf("invalid recompute window: %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	rows := make(map[metricKey]*models.DailyMetric)
	row := func(date time.Time, channel, campaign string) *models.DailyMetric {
		key := metricKey{date.Format("2006-01-02"), channel, campaign}
		if existing, ok := rows[key]; ok {
			return existing
		}
		metric := &models.DailyMetric{
			ShopID:   shop.ID,
			Date:     date,
			Channel:  channel,
			Campaign: campaign,
		}
		rows[key] = metric
		return metric
	}

	if err := m.aggregateEvents(ctx, shop.ID, fromDay, toDay, row); err != nil {
		return 0, err
	}
	if err := m.aggregateOrders(ctx, shop.ID, fromDay, toDay, row); err != nil {
		return 0, err
	}
	if err := m.joinSpend(ctx, shop.ID, fromDay, lastDay, rows, row); err != nil {
		return 0, err
	}

	metrics := make([]models.DailyMetric, 0, len(rows))
	for _, metric := range rows {
		deriveRatios(metric)
		metrics = append(metrics, *metric)
	}
	sort.Slice(metrics, func(i, j int) bool {
		if !metrics[i].Date.Equal(metrics[j].Date) {
			return metrics[i].Date.Before(metrics[j].Date)
		}
		if metrics[i].Channel != metrics[j].Channel {
			return metrics[i].Channel < metrics[j].Channel
		}
		return metrics[i].Campaign < metrics[j].Campaign
	})

	if err := m.metrics.DeleteRange(ctx, shop.ID, fromDay, lastDay); err != nil {
		return 0, fmt.Errorf("failed to clear metric window: %w", err)
	}
	if len(metrics) > 0 {
		if err := m.metrics.UpsertAll(ctx, metrics); err != nil {
			return 0, fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	log.Printf("recomputed %d metric rows for shop %s (%s to %s)",
		len(metrics), shopDomain, fromDay.Format("2006-01-02"), to.Format("2006-01-02"))
	return len(metrics), nil
}

// aggregateEvents counts funnel events per (date, channel, campaign).
// order_paid events are skipped here: paid orders and revenue come from
// the order table, and counting both would double-count.
func (m *MetricsRecomputer) aggregateEvents(ctx context.Context, shopID string, from, to time.Time, row func(time.Time, string, string) *models.DailyMetric) error {
	events, err := m.events.ListInRange(ctx, shopID, from, to)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	for _, event := range events {
		if event.EventType == models.EventTypeOrderPaid {
			continue
		}
		channel := event.Channel
		if channel == "" {
			channel = models.ChannelUnknown
		}
		metric := row(truncateDay(event.OccurredAt), channel, deref(event.UTMCampaign))
		switch event.EventType {
		case models.EventTypeSession:
			metric.Sessions++
		case models.EventTypeAddToCart:
			metric.AddToCarts++
		case models.EventTypeCheckout:
			metric.Checkouts++
		}
	}
	return nil
}

// aggregateOrders fills paid order counts, revenue, and new/repeat
// customer counts. New vs repeat is decided against the customer's
// globally-first paid order date, so backfilled history reclassifies
// correctly on the next recompute.
func (m *MetricsRecomputer) aggregateOrders(ctx context.Context, shopID string, from, to time.Time, row func(time.Time, string, string) *models.DailyMetric) error {
	orders, err := m.orders.PaidInRange(ctx, shopID, from, to)
	if err != nil {
		return err
	}
	firstPaid, err := m.orders.FirstPaidOrderDates(ctx, shopID)
	if err != nil {
		return err
	}

	// customers counted once per day, regardless of order count
	type customerDay struct {
		day      string
		customer string
	}
	counted := make(map[customerDay]bool)

	for _, order := range orders {
		effective := effectiveDate(order)
		if effective == nil {
			continue
		}
		day := truncateDay(*effective)
		channel := deref(order.Channel)
		if channel == "" {
			channel = models.ChannelUnknown
		}
		metric := row(day, channel, deref(order.UTMCampaign))
		metric.PaidOrders++
		metric.Revenue += order.TotalAmount

		if order.CustomerRef == nil {
			continue
		}
		key := customerDay{day.Format("2006-01-02"), *order.CustomerRef}
		if counted[key] {
			continue
		}
		counted[key] = true

		// lifecycle counts are not attributable to one channel, so they
		// land on the day's unknown-channel row
		lifecycle := row(day, models.ChannelUnknown, "")
		first, ok := firstPaid[*order.CustomerRef]
		if ok && truncateDay(first).Before(day) {
			lifecycle.RepeatCustomers++
		} else {
			lifecycle.NewCustomers++
		}
	}
	return nil
}

// joinSpend distributes campaign spend onto metric rows by (date,
// campaign). Spend with no matching attributed row lands on a fresh
// unknown-channel row so totals still reconcile.
func (m *MetricsRecomputer) joinSpend(ctx context.Context, shopID string, from, to time.Time, rows map[metricKey]*models.DailyMetric, row func(time.Time, string, string) *models.DailyMetric) error {
	spends, err := m.spend.ListInRange(ctx, shopID, from, to)
	if err != nil {
		return fmt.Errorf("failed to list campaign spend: %w", err)
	}

	for _, spend := range spends {
		day := truncateDay(spend.Date)
		dayKey := day.Format("2006-01-02")

		var targets []*models.DailyMetric
		for key, metric := range rows {
			if key.date == dayKey && key.campaign == spend.Campaign {
				targets = append(targets, metric)
			}
		}
		if len(targets) == 0 {
			targets = []*models.DailyMetric{row(day, models.ChannelUnknown, spend.Campaign)}
		}
		// spend applies to every channel row of the campaign that day;
		// attribution cannot split it further
		for _, target := range targets {
			target.Spend += spend.Amount
		}
	}
	return nil
}

// deriveRatios fills the derived measures. A ratio is NULL exactly when
// its divisor is zero; zero spend over a non-zero divisor is a defined
// value of 0, not NULL.
func deriveRatios(metric *models.DailyMetric) {
	if metric.PaidOrders > 0 {
		aov := metric.Revenue / float64(metric.PaidOrders)
		metric.AOV = &aov
		cpa := metric.Spend / float64(metric.PaidOrders)
		metric.CPA = &cpa
	}
	if metric.Spend > 0 {
		roas := metric.Revenue / metric.Spend
		metric.ROAS = &roas
	}
	if metric.NewCustomers > 0 {
		cac := metric.Spend / float64(metric.NewCustomers)
		metric.CAC = &cac
	}
}

func truncateDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
