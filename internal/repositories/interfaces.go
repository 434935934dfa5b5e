package repositories

import (
	"context"

	domain "github.com/voltmart/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Users() UserRepository
	Ledger() CoinLedgerRepository
	Referrals() ReferralRepository
	Returns() ReturnRepository
	InventoryAlerts() InventoryAlertRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transactional boundary. Repository calls made
// with the callback context join the transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates. Orders are never deleted.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// FindDeliveredPurchase returns a paid and delivered order of the user containing the product.
	FindDeliveredPurchase(ctx context.Context, userID, productID string) (domain.Order, error)
	// ListDeliveredWithoutBonus returns delivered orders that have not recorded earned coins yet and
	// have fewer than maxAttempts failed credits, least attempted first and then oldest delivery first.
	ListDeliveredWithoutBonus(ctx context.Context, maxAttempts, limit int) ([]domain.Order, error)
	// ClaimPaymentReference binds a gateway reference to one order. Claiming a reference held by
	// another order fails with a conflict; claiming it again for the same order is a no-op.
	ClaimPaymentReference(ctx context.Context, ref, orderID string) error
}

// OrderListFilter narrows order listings for a user.
type OrderListFilter struct {
	UserID     string
	Status     *domain.OrderStatus
	Pagination domain.Pagination
}

// ProductRepository owns product stock and embedded reviews.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// FindExisting returns the subset of ids that still resolve to products.
	FindExisting(ctx context.Context, productIDs []string) (map[string]bool, error)
	// AdjustStock applies delta to the stock level as one conditional update and fails with a
	// StockError when the result would be negative.
	AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error)
	SetStock(ctx context.Context, productID string, stock int) (domain.Product, error)
	// AppendReview adds the review and recomputes the rating aggregate atomically. A second review
	// by the same user fails with a conflict.
	AppendReview(ctx context.Context, productID string, review domain.Review) (domain.Product, error)
	AppendSellerReview(ctx context.Context, productID string, review domain.SellerReview) (domain.Product, error)
}

// UserRepository persists storefront accounts. Coin balances are mutated only through the ledger.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByReferralCode(ctx context.Context, code string) (domain.User, error)
	IncrementReferralStats(ctx context.Context, userID string, delta domain.ReferralStats) error
}

// CoinLedgerRepository is the append-only coin ledger. Apply changes the user balance and appends
// the ledger row in one atomic unit.
type CoinLedgerRepository interface {
	Apply(ctx context.Context, entry domain.CoinTransaction) (LedgerApplyResult, error)
	FindByKey(ctx context.Context, userID string, source domain.CoinSource, ref domain.LedgerReference) (domain.CoinTransaction, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.CoinTransaction], error)
	SumByUser(ctx context.Context, userID string) (int64, error)
}

// LedgerApplyResult reports the stored ledger row. Duplicate is true when a row with the same
// (user, source, reference) already existed and nothing was changed.
type LedgerApplyResult struct {
	Transaction domain.CoinTransaction
	Duplicate   bool
}

// ReferralRepository persists referral records; one per referred user.
type ReferralRepository interface {
	Insert(ctx context.Context, referral domain.Referral) error
	Update(ctx context.Context, referral domain.Referral) error
	FindByReferred(ctx context.Context, referredID string) (domain.Referral, error)
	ListByReferrer(ctx context.Context, referrerID string) ([]domain.Referral, error)
}

// ReturnRepository persists return requests.
type ReturnRepository interface {
	Insert(ctx context.Context, ret domain.Return) error
	Update(ctx context.Context, ret domain.Return) error
	FindByID(ctx context.Context, returnID string) (domain.Return, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Return, error)
}

// InventoryAlertRepository persists inventory alerts. FindOpenByProduct returns the single
// unresolved alert for a product or a not-found error.
type InventoryAlertRepository interface {
	Insert(ctx context.Context, alert domain.InventoryAlert) error
	Update(ctx context.Context, alert domain.InventoryAlert) error
	FindByID(ctx context.Context, alertID string) (domain.InventoryAlert, error)
	FindOpenByProduct(ctx context.Context, productID string) (domain.InventoryAlert, error)
	List(ctx context.Context, filter InventoryAlertFilter) ([]domain.InventoryAlert, error)
}

// InventoryAlertFilter narrows alert listings.
type InventoryAlertFilter struct {
	SellerID       string
	UnresolvedOnly bool
	Limit          int
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
