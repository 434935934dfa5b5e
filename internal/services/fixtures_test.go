package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories/memory"
)

var fixtureNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Type)
	}
	return out
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (c *captureNotifier) Notify(_ context.Context, notification Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, notification)
	return c.err
}

func (c *captureNotifier) kinds() []NotificationKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]NotificationKind, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Kind)
	}
	return out
}

type stubVerifier struct {
	verifyFn func(providerOrderID, providerPaymentID, signature string) error
}

func (s stubVerifier) Verify(providerOrderID, providerPaymentID, signature string) error {
	if s.verifyFn != nil {
		return s.verifyFn(providerOrderID, providerPaymentID, signature)
	}
	return nil
}

type captureLogger struct {
	mu     sync.Mutex
	events []string
	fields []map[string]any
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	c.fields = append(c.fields, fields)
}

func (c *captureLogger) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

type countingMetrics struct {
	noopMetrics
	mu          sync.Mutex
	transitions []string
	repaired    int
	notifyFails int
}

func (m *countingMetrics) OrderTransition(from, to OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, string(from)+"->"+string(to))
}

func (m *countingMetrics) DanglingProductsRepaired(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repaired += count
}

func (m *countingMetrics) NotificationFailed(NotificationKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyFails++
}

// fixture wires every service against one memory store.
type fixture struct {
	store     *memory.Store
	now       time.Time
	events    *captureOrderEvents
	notifier  *captureNotifier
	logger    *captureLogger
	metrics   *countingMetrics
	orders    OrderService
	stock     StockManager
	coins     CoinAccountService
	referrals ReferralEngine
	returns   ReturnService
	reviews   ReviewService
	alerts    InventoryAlertService
}

type fixtureOption func(*OrderServiceDeps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		now:      fixtureNow,
		events:   &captureOrderEvents{},
		notifier: &captureNotifier{},
		logger:   &captureLogger{},
		metrics:  &countingMetrics{},
	}
	clock := func() time.Time { return f.now }
	f.store = memory.NewStore(memory.WithClock(clock))
	ids := &sequence{}

	var err error
	f.alerts, err = NewInventoryAlertService(InventoryAlertServiceDeps{
		Alerts:      f.store.InventoryAlerts(),
		Products:    f.store.Products(),
		UnitOfWork:  f.store,
		Clock:       clock,
		IDGenerator: ids.next,
		Logger:      f.logger.log,
	})
	mustNoErr(t, err)
	f.stock, err = NewStockManager(StockManagerDeps{Products: f.store.Products(), Alerts: f.alerts, Metrics: f.metrics, Logger: f.logger.log})
	mustNoErr(t, err)
	f.coins, err = NewCoinAccountService(CoinAccountServiceDeps{
		Users:   f.store.Users(),
		Ledger:  f.store.Ledger(),
		Clock:   clock,
		Metrics: f.metrics,
		Logger:  f.logger.log,
	})
	mustNoErr(t, err)
	f.referrals, err = NewReferralEngine(ReferralEngineDeps{
		Users:       f.store.Users(),
		Referrals:   f.store.Referrals(),
		Coins:       f.coins,
		UnitOfWork:  f.store,
		OrderReward: 2_500,
		Clock:       clock,
		IDGenerator: ids.next,
		Logger:      f.logger.log,
	})
	mustNoErr(t, err)

	deps := OrderServiceDeps{
		Orders:      f.store.Orders(),
		Products:    f.store.Products(),
		Stock:       f.stock,
		Coins:       f.coins,
		Referrals:   f.referrals,
		Alerts:      f.alerts,
		Payments:    stubVerifier{},
		Notifier:    f.notifier,
		Events:      f.events,
		Metrics:     f.metrics,
		UnitOfWork:  f.store,
		Clock:       clock,
		IDGenerator: ids.next,
		Logger:      f.logger.log,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.orders, err = NewOrderService(deps)
	mustNoErr(t, err)

	f.returns, err = NewReturnService(ReturnServiceDeps{
		Orders:      f.store.Orders(),
		Returns:     f.store.Returns(),
		Coins:       f.coins,
		UnitOfWork:  f.store,
		Clock:       clock,
		IDGenerator: ids.next,
		Events:      f.events,
		Logger:      f.logger.log,
	})
	mustNoErr(t, err)
	f.reviews, err = NewReviewService(ReviewServiceDeps{
		Products:   f.store.Products(),
		Orders:     f.store.Orders(),
		Users:      f.store.Users(),
		Coins:      f.coins,
		UnitOfWork: f.store,
		Clock:      clock,
		Logger:     f.logger.log,
	})
	mustNoErr(t, err)
	return f
}

func (f *fixture) addProduct(t *testing.T, id, sellerID string, price int64, stock int) {
	t.Helper()
	err := f.store.Products().Insert(context.Background(), domain.Product{
		ID:                id,
		SellerID:          sellerID,
		Name:              "Product " + id,
		Price:             price,
		Stock:             stock,
		LowStockThreshold: 2,
		CreatedAt:         f.now,
		UpdatedAt:         f.now,
	})
	mustNoErr(t, err)
}

func (f *fixture) addUser(t *testing.T, id string, coins int64) {
	t.Helper()
	ctx := context.Background()
	mustNoErr(t, f.store.Users().Insert(ctx, domain.User{ID: id, Name: "User " + id, Role: domain.RoleCustomer, ReferralCode: "CODE" + id}))
	if coins > 0 {
		_, err := f.coins.Credit(ctx, CoinEntryCommand{
			UserID:    id,
			Type:      domain.CoinTransactionBonus,
			Amount:    coins,
			Source:    domain.CoinSourceAdminAdjustment,
			Reference: domain.UserRef(id),
		})
		mustNoErr(t, err)
	}
}

func (f *fixture) stockOf(t *testing.T, productID string) int {
	t.Helper()
	product, err := f.store.Products().FindByID(context.Background(), productID)
	mustNoErr(t, err)
	return product.Stock
}

func (f *fixture) coinsOf(t *testing.T, userID string) int64 {
	t.Helper()
	user, err := f.store.Users().FindByID(context.Background(), userID)
	mustNoErr(t, err)
	return user.Coins
}

// placeOrder places a COD order of one product for the user.
func (f *fixture) placeOrder(t *testing.T, userID, productID string, qty int) Order {
	t.Helper()
	order, err := f.orders.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          userID,
		Items:           []PlaceOrderItem{{ProductID: productID, Quantity: qty}},
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	mustNoErr(t, err)
	return order
}

// deliver walks the order through confirmed, processing, shipped and delivered as an admin.
func (f *fixture) deliver(t *testing.T, orderID string) Order {
	t.Helper()
	admin := Actor{ID: "admin_1", Role: domain.RoleAdmin}
	var (
		order Order
		err   error
	)
	for _, status := range []OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		order, err = f.orders.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
			OrderID:        orderID,
			Status:         status,
			TrackingNumber: "TRK-1",
			Actor:          admin,
		})
		mustNoErr(t, err)
	}
	return order
}

func testAddress() Address {
	return Address{Recipient: "Asha", Line1: "12 MG Road", City: "Bengaluru", PostalCode: "560001", Country: "IN"}
}

type sequence struct {
	mu sync.Mutex
	n  int
}

func (s *sequence) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return time.Unix(int64(s.n), 0).UTC().Format("20060102150405")
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func timeStep(i int) time.Duration {
	return time.Duration(i) * time.Minute
}
