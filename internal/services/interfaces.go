package services

import (
	"context"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Actor           = domain.Actor
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderStatus     = domain.OrderStatus
	Address         = domain.Address
	Product         = domain.Product
	Review          = domain.Review
	SellerReview    = domain.SellerReview
	User            = domain.User
	Referral        = domain.Referral
	Return          = domain.Return
	ReturnItem      = domain.ReturnItem
	ReturnStatus    = domain.ReturnStatus
	InventoryAlert  = domain.InventoryAlert
	CoinTransaction = domain.CoinTransaction
	DiscountQuote   = domain.DiscountQuote
)

// OrderService drives the order lifecycle from checkout to delivery or cancellation.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	ReconcileDeliveryBonuses(ctx context.Context, limit int) (ReconcileResult, error)
}

// StockManager reserves and restores product stock with conditional updates. Calls join the
// unit of work carried by ctx.
type StockManager interface {
	Reserve(ctx context.Context, productID string, qty int) (Product, error)
	Restore(ctx context.Context, productID string, qty int) (Product, error)
	SetStock(ctx context.Context, cmd SetStockCommand) (Product, error)
}

// CoinAccountService owns coin balances and the append-only ledger.
type CoinAccountService interface {
	Balance(ctx context.Context, userID string) (CoinBalance, error)
	History(ctx context.Context, query CoinHistoryQuery) (domain.CursorPage[CoinTransaction], error)
	CalculateDiscount(ctx context.Context, userID string, requested int64) (DiscountQuote, error)
	Credit(ctx context.Context, cmd CoinEntryCommand) (CoinEntryResult, error)
	Debit(ctx context.Context, cmd CoinEntryCommand) (CoinEntryResult, error)
	Reconcile(ctx context.Context, userID string) (LedgerAudit, error)
}

// ReferralEngine registers users with referral codes and issues referral rewards once.
type ReferralEngine interface {
	RegisterWithReferral(ctx context.Context, cmd RegisterUserCommand) (User, error)
	ValidateReferralCode(ctx context.Context, code string) (ReferralCodeInfo, error)
	Stats(ctx context.Context, userID string) (ReferralSummary, error)
	CompleteFirstOrder(ctx context.Context, referredUserID, orderID string) error
}

// ReturnService manages return requests of delivered orders.
type ReturnService interface {
	RequestReturn(ctx context.Context, cmd RequestReturnCommand) (Return, error)
	UpdateReturnStatus(ctx context.Context, cmd UpdateReturnStatusCommand) (Return, error)
	GetReturn(ctx context.Context, query GetReturnQuery) (Return, error)
	ListReturns(ctx context.Context, userID string) ([]Return, error)
}

// ReviewService accepts product reviews from buyers and customer reviews from sellers.
type ReviewService interface {
	SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Product, error)
	SubmitSellerReview(ctx context.Context, cmd SubmitSellerReviewCommand) (Product, error)
}

// InventoryAlertService keeps at most one open stock alert per product.
type InventoryAlertService interface {
	Evaluate(ctx context.Context, product Product) error
	Create(ctx context.Context, cmd CreateAlertCommand) (InventoryAlert, error)
	Resolve(ctx context.Context, alertID string, actor Actor) (InventoryAlert, error)
	MarkRead(ctx context.Context, alertID string, actor Actor) (InventoryAlert, error)
	List(ctx context.Context, query ListAlertsQuery) ([]InventoryAlert, error)
}

// Notifier dispatches customer notifications. Failures never affect committed state.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// PaymentVerifier checks a gateway signature for a provider order and payment pair.
type PaymentVerifier interface {
	Verify(providerOrderID, providerPaymentID, signature string) error
}

// OrderEventPublisher publishes order and return domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// Metrics records domain counters.
type Metrics interface {
	OrderTransition(from, to OrderStatus)
	StockReservationFailed(reason string)
	CoinsMoved(source domain.CoinSource, txType domain.CoinTransactionType, amount int64)
	DanglingProductsRepaired(count int)
	NotificationFailed(kind NotificationKind)
}

// OrderEvent captures metadata for emitted domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// NotificationKind names a notification template.
type NotificationKind string

const (
	NotificationOrderConfirmation  NotificationKind = "order_confirmation"
	NotificationOrderStatusChanged NotificationKind = "order_status_changed"
)

// Notification is a request to message a user about an order.
type Notification struct {
	Kind    NotificationKind
	UserID  string
	OrderID string
	Data    map[string]any
}

// Command and DTO definitions ------------------------------------------------

type PlaceOrderCommand struct {
	UserID          string
	Items           []PlaceOrderItem
	ShippingAddress Address
	PaymentMethod   domain.PaymentMethod
	CoinsToRedeem   int64
	IdempotencyKey  string
	// ProviderOrderID is the gateway order created for this checkout; required for online payment.
	ProviderOrderID string
}

type PlaceOrderItem struct {
	ProductID string
	Quantity  int
}

type GetOrderQuery struct {
	OrderID string
	Actor   Actor
}

type ListOrdersQuery struct {
	UserID    string
	Status    *OrderStatus
	PageSize  int
	PageToken string
}

type UpdateOrderStatusCommand struct {
	OrderID        string
	Status         OrderStatus
	Note           string
	TrackingNumber string
	Carrier        string
	Actor          Actor
}

type CancelOrderCommand struct {
	OrderID string
	Reason  string
	Actor   Actor
}

type VerifyPaymentCommand struct {
	OrderID           string
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
	Actor             Actor
}

// ReconcileResult summarises a delivery bonus resolution pass.
type ReconcileResult struct {
	Scanned  int
	Credited int
	Failed   int
}

type SetStockCommand struct {
	ProductID string
	Stock     int
	Actor     Actor
}

// CoinBalance is the coin summary shown to a user.
type CoinBalance struct {
	Coins         int64
	TotalEarned   int64
	TotalRedeemed int64
	MaxDiscount   int64
}

type CoinHistoryQuery struct {
	UserID    string
	PageSize  int
	PageToken string
}

type CoinEntryCommand struct {
	UserID    string
	Type      domain.CoinTransactionType
	Amount    int64
	Source    domain.CoinSource
	Reference domain.LedgerReference
	Metadata  map[string]any
}

// CoinEntryResult reports the ledger row; Duplicate is set when the entry already existed.
type CoinEntryResult struct {
	Transaction CoinTransaction
	Duplicate   bool
}

// LedgerAudit compares a stored balance with the sum of its ledger rows.
type LedgerAudit struct {
	UserID    string
	Coins     int64
	LedgerSum int64
	Drift     int64
}

type RegisterUserCommand struct {
	UserID       string
	Name         string
	Email        string
	Role         domain.Role
	ReferralCode string
}

type ReferralCodeInfo struct {
	Valid        bool
	ReferrerName string
}

type ReferralSummary struct {
	Code      string
	Stats     domain.ReferralStats
	Referrals []Referral
}

type RequestReturnCommand struct {
	OrderID string
	UserID  string
	Items   []RequestReturnItem
	Reason  string
	Type    domain.ReturnType
}

type RequestReturnItem struct {
	ProductID string
	Quantity  int
	Reason    string
	Condition string
}

type UpdateReturnStatusCommand struct {
	ReturnID     string
	Status       ReturnStatus
	AdminNotes   string
	RefundAmount *int64
	Actor        Actor
}

type GetReturnQuery struct {
	ReturnID string
	Actor    Actor
}

type SubmitReviewCommand struct {
	ProductID string
	UserID    string
	Name      string
	Rating    int
	Comment   string
}

type SubmitSellerReviewCommand struct {
	ProductID  string
	SellerID   string
	CustomerID string
	OrderID    string
	Rating     int
	Comment    string
}

type CreateAlertCommand struct {
	ProductID string
	Message   string
	Actor     Actor
}

type ListAlertsQuery struct {
	SellerID   string
	Unresolved bool
	Limit      int
}
