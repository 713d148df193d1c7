package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/models"
	"github.com/shoptrail/shoptrail-worker/internal/shopify"
)

type mockShopStore struct {
	shops    map[string]*models.Shop
	syncedAt map[string]time.Time
	getErr   error
	markErr  error
}

func newMockShopStore(shops ...*models.Shop) *mockShopStore {
	store := &mockShopStore{
		shops:    make(map[string]*models.Shop),
		syncedAt: make(map[string]time.Time),
	}
	for _, shop := range shops {
		store.shops[shop.Domain] = shop
	}
	return store
}

func (m *mockShopStore) GetByDomain(ctx context.Context, domain string) (*models.Shop, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	// nil with no error when absent, matching the repository contract
	return m.shops[domain], nil
}

func (m *mockShopStore) MarkSynced(ctx context.Context, shopID string, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.syncedAt[shopID] = at
	return nil
}

type mockCursorStore struct {
	cursors   map[string]*models.SyncCursor
	upserts   int
	upsertErr error
}

func newMockCursorStore() *mockCursorStore {
	return &mockCursorStore{cursors: make(map[string]*models.SyncCursor)}
}

func (m *mockCursorStore) Get(ctx context.Context, shopID, entity string) (*models.SyncCursor, error) {
	return m.cursors[shopID+"/"+entity], nil
}

func (m *mockCursorStore) Upsert(ctx context.Context, shopID, entity string, watermark time.Time, token *string) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	m.cursors[shopID+"/"+entity] = &models.SyncCursor{
		ShopID:    shopID,
		Entity:    entity,
		Watermark: &watermark,
		Token:     token,
	}
	return nil
}

type mockOrderStore struct {
	upserted     []models.Order
	lines        map[string][]models.OrderLine
	upsertErr    error
	emailUpdates map[string]string
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		lines:        make(map[string][]models.OrderLine),
		emailUpdates: make(map[string]string),
	}
}

func (m *mockOrderStore) Upsert(ctx context.Context, order models.Order, lines []models.OrderLine) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, order)
	m.lines[order.ExternalID] = lines
	return nil
}

func (m *mockOrderStore) UpdateCustomerEmail(ctx context.Context, shopID, customerRef, email string) (int64, error) {
	m.emailUpdates[customerRef] = email
	return 1, nil
}

type mockDimensionStore struct {
	sources   []string
	campaigns []string
}

func (m *mockDimensionStore) UpsertTrafficSource(ctx context.Context, shopID, utmSource, utmMedium, channel string, seenAt time.Time) error {
	m.sources = append(m.sources, utmSource+"|"+utmMedium)
	return nil
}

func (m *mockDimensionStore) UpsertCampaign(ctx context.Context, shopID, utmCampaign, utmSource, utmMedium, utmContent string, seenAt time.Time) error {
	m.campaigns = append(m.campaigns, utmCampaign)
	return nil
}

type mockOrdersAPI struct {
	pages    []*shopify.OrdersPage
	searches []string
	err      error
	calls    int
}

func (m *mockOrdersAPI) OrdersPage(ctx context.Context, shopDomain, accessToken, search, cursor string, pageSize int) (*shopify.OrdersPage, error) {
	m.searches = append(m.searches, search)
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.pages) {
		return &shopify.OrdersPage{}, nil
	}
	page := m.pages[m.calls]
	m.calls++
	return page, nil
}

type mockEventStore struct {
	events    []models.AttributionEvent
	appendErr error
}

func (m *mockEventStore) Append(ctx context.Context, event models.AttributionEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, event)
	return nil
}

type mockReceiptStore struct {
	seen      map[string]bool
	processed map[string]bool
	insertErr error
}

func newMockReceiptStore() *mockReceiptStore {
	return &mockReceiptStore{
		seen:      make(map[string]bool),
		processed: make(map[string]bool),
	}
}

func (m *mockReceiptStore) InsertIfAbsent(ctx context.Context, shopID, deliveryID, topic, contentHash string) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if m.seen[deliveryID] {
		return false, nil
	}
	m.seen[deliveryID] = true
	return true, nil
}

func (m *mockReceiptStore) MarkProcessed(ctx context.Context, shopID, deliveryID string) error {
	m.processed[deliveryID] = true
	return nil
}

type mockTaskStore struct {
	created     []models.RetryTask
	failures    []models.SyncFailure
	due         []models.RetryTask
	resolved    map[string]models.RetryTaskStatus
	rescheduled map[string]time.Time
	attempts    map[string]int
	retryBumps  map[string]int
	claimErr    error
}

func newMockTaskStore(due ...models.RetryTask) *mockTaskStore {
	return &mockTaskStore{
		due:         due,
		resolved:    make(map[string]models.RetryTaskStatus),
		rescheduled: make(map[string]time.Time),
		attempts:    make(map[string]int),
		retryBumps:  make(map[string]int),
	}
}

func (m *mockTaskStore) Create(ctx context.Context, task models.RetryTask) error {
	m.created = append(m.created, task)
	return nil
}

func (m *mockTaskStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]models.RetryTask, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	if len(m.due) > limit {
		return m.due[:limit], nil
	}
	return m.due, nil
}

func (m *mockTaskStore) Resolve(ctx context.Context, taskID string, status models.RetryTaskStatus, lastError *string) error {
	m.resolved[taskID] = status
	return nil
}

func (m *mockTaskStore) Reschedule(ctx context.Context, taskID string, attempts int, nextAttemptAt time.Time, lastError *string) error {
	m.rescheduled[taskID] = nextAttemptAt
	m.attempts[taskID] = attempts
	return nil
}

func (m *mockTaskStore) CreateFailure(ctx context.Context, failure models.SyncFailure) (string, error) {
	m.failures = append(m.failures, failure)
	return fmt.Sprintf("failure-%d", len(m.failures)), nil
}

func (m *mockTaskStore) IncrementFailureRetryCount(ctx context.Context, failureID string) error {
	m.retryBumps[failureID]++
	return nil
}

type mockEventReader struct {
	events []models.AttributionEvent
}

func (m *mockEventReader) ListInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.AttributionEvent, error) {
	var out []models.AttributionEvent
	for _, event := range m.events {
		if !event.OccurredAt.Before(from) && event.OccurredAt.Before(to) {
			out = append(out, event)
		}
	}
	return out, nil
}

type mockPaidOrderReader struct {
	orders    []models.Order
	firstPaid map[string]time.Time
}

func (m *mockPaidOrderReader) PaidInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.Order, error) {
	var out []models.Order
	for _, order := range m.orders {
		effective := effectiveDate(order)
		if effective == nil {
			continue
		}
		if !effective.Before(from) && effective.Before(to) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (m *mockPaidOrderReader) FirstPaidOrderDates(ctx context.Context, shopID string) (map[string]time.Time, error) {
	if m.firstPaid == nil {
		return map[string]time.Time{}, nil
	}
	return m.firstPaid, nil
}

type mockMetricStore struct {
	deleted     int
	deletedFrom time.Time
	deletedTo   time.Time
	written     []models.DailyMetric
	writeErr    error
}

func (m *mockMetricStore) DeleteRange(ctx context.Context, shopID string, from, to time.Time) error {
	m.deleted++
	m.deletedFrom = from
	m.deletedTo = to
	return nil
}

func (m *mockMetricStore) UpsertAll(ctx context.Context, metrics []models.DailyMetric) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = metrics
	return nil
}

type mockSpendReader struct {
	spends []models.CampaignSpend
}

// ListInRange filters by calendar date with both bounds inclusive, the
// same way the campaign spend repository queries
func (m *mockSpendReader) ListInRange(ctx context.Context, shopID string, from, to time.Time) ([]models.CampaignSpend, error) {
	var out []models.CampaignSpend
	for _, spend := range m.spends {
		if !spend.Date.Before(from) && !spend.Date.After(to) {
			out = append(out, spend)
		}
	}
	return out, nil
}
