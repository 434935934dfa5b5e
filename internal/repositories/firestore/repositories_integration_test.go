//go:build integration

package firestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/firestore/firestoretest"
	"github.com/voltmart/storefront/internal/repositories"
)

func newTestRegistry(t *testing.T, project string) *Registry {
	t.Helper()
	provider := firestoretest.NewProvider(t, project)
	reg, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func TestProductStockIntegration(t *testing.T) {
	reg := newTestRegistry(t, "stock-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := reg.Products().Insert(ctx, domain.Product{ID: "prod_last", SellerID: "seller_1", Name: "Laptop", Price: 60000, Stock: 1, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	const workers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := reg.Products().AdjustStock(ctx, "prod_last", -1)
			mu.Lock()
			defer mu.Unlock()
			var stockErr *repositories.StockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient:
				rejected++
			default:
				t.Errorf("unexpected adjust error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || rejected != workers-1 {
		t.Fatalf("expected exactly one reservation, got %d succeeded %d rejected", succeeded, rejected)
	}
	product, err := reg.Products().FindByID(ctx, "prod_last")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", product.Stock)
	}

	_, err = reg.Products().AdjustStock(ctx, "prod_missing", -1)
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorProductNotFound {
		t.Fatalf("expected product not found stock error, got %v", err)
	}
}

func TestLedgerIntegration(t *testing.T) {
	reg := newTestRegistry(t, "ledger-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := reg.Users().Insert(ctx, domain.User{ID: "user_1", Name: "Asha", ReferralCode: "ASHA1234", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := reg.Users().Insert(ctx, domain.User{ID: "user_2", Name: "Dup", ReferralCode: "ASHA1234", CreatedAt: now}); err == nil {
		t.Fatalf("expected referral code conflict")
	}

	credit := domain.CoinTransaction{UserID: "user_1", Type: domain.CoinTransactionBonus, Amount: 500, Source: domain.CoinSourceOrderDelivery, Reference: domain.OrderRef("ord_1"), CreatedAt: now}
	first, err := reg.Ledger().Apply(ctx, credit)
	if err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if first.Duplicate || first.Transaction.BalanceAfter != 500 {
		t.Fatalf("unexpected first apply: %+v", first)
	}
	again, err := reg.Ledger().Apply(ctx, credit)
	if err != nil {
		t.Fatalf("apply credit again: %v", err)
	}
	if !again.Duplicate || again.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected duplicate apply, got %+v", again)
	}

	debit := domain.CoinTransaction{UserID: "user_1", Type: domain.CoinTransactionRedeemed, Amount: 900, Source: domain.CoinSourceOrderRedemption, Reference: domain.OrderRef("ord_2"), CreatedAt: now.Add(time.Minute)}
	_, err = reg.Ledger().Apply(ctx, debit)
	var ledgerErr *repositories.LedgerError
	if !errors.As(err, &ledgerErr) || ledgerErr.Code != repositories.LedgerErrorInsufficientCoins {
		t.Fatalf("expected insufficient coins, got %v", err)
	}

	debit.Amount = 200
	if _, err := reg.Ledger().Apply(ctx, debit); err != nil {
		t.Fatalf("apply debit: %v", err)
	}

	user, err := reg.Users().FindByID(ctx, "user_1")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.Coins != 300 || user.TotalEarned != 500 || user.TotalRedeemed != 200 {
		t.Fatalf("unexpected balances: %+v", user)
	}
	sum, err := reg.Ledger().SumByUser(ctx, "user_1")
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != user.Coins {
		t.Fatalf("ledger sum %d differs from balance %d", sum, user.Coins)
	}

	page, err := reg.Ledger().ListByUser(ctx, "user_1", domain.Pagination{PageSize: 1})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Source != domain.CoinSourceOrderRedemption || page.NextPageToken == "" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	page, err = reg.Ledger().ListByUser(ctx, "user_1", domain.Pagination{PageSize: 1, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Source != domain.CoinSourceOrderDelivery || page.NextPageToken != "" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestUnitOfWorkIntegration(t *testing.T) {
	reg := newTestRegistry(t, "uow-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := reg.Products().Insert(ctx, domain.Product{ID: "prod_1", SellerID: "seller_1", Name: "Mouse", Price: 900, Stock: 3, CreatedAt: now}); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if err := reg.Users().Insert(ctx, domain.User{ID: "buyer", ReferralCode: "BUYER001", Coins: 0, CreatedAt: now}); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	productID := "prod_1"
	order := domain.Order{
		ID:     "ord_uow",
		UserID: "buyer",
		Items:  []domain.OrderItem{{ProductID: &productID, SellerID: "seller_1", Name: "Mouse", Quantity: 2, UnitPrice: 900}},
		Status: domain.OrderStatusPlaced,
		StatusHistory: []domain.OrderStatusEntry{
			{Status: domain.OrderStatusPlaced, Note: "Order placed", At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	// A failing ledger debit rolls back the stock reservation and the order insert.
	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := reg.Products().AdjustStock(ctx, productID, -2); err != nil {
			return err
		}
		if err := reg.Orders().Insert(ctx, order); err != nil {
			return err
		}
		_, err := reg.Ledger().Apply(ctx, domain.CoinTransaction{UserID: "buyer", Type: domain.CoinTransactionRedeemed, Amount: 100, Source: domain.CoinSourceOrderRedemption, Reference: domain.OrderRef(order.ID)})
		return err
	})
	var ledgerErr *repositories.LedgerError
	if !errors.As(err, &ledgerErr) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	product, err := reg.Products().FindByID(ctx, productID)
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Stock != 3 {
		t.Fatalf("expected stock untouched, got %d", product.Stock)
	}
	if _, err := reg.Orders().FindByID(ctx, order.ID); !isNotFound(err) {
		t.Fatalf("expected order to be absent, got %v", err)
	}

	err = reg.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := reg.Products().AdjustStock(ctx, productID, -2); err != nil {
			return err
		}
		return reg.Orders().Insert(ctx, order)
	})
	if err != nil {
		t.Fatalf("commit order: %v", err)
	}

	order.IsDelivered = true
	order.IsPaid = true
	order.DeliveredAt = &now
	order.Status = domain.OrderStatusDelivered
	if err := reg.Orders().Update(ctx, order); err != nil {
		t.Fatalf("update order: %v", err)
	}

	found, err := reg.Orders().FindDeliveredPurchase(ctx, "buyer", productID)
	if err != nil {
		t.Fatalf("find delivered purchase: %v", err)
	}
	if found.ID != order.ID || !found.Items[0].HasProduct() {
		t.Fatalf("unexpected purchase: %+v", found)
	}
	pending, err := reg.Orders().ListDeliveredWithoutBonus(ctx, 5, 10)
	if err != nil {
		t.Fatalf("list delivered without bonus: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one order without bonus, got %d", len(pending))
	}

	if err := reg.Orders().ClaimPaymentReference(ctx, "payment:pay_1", order.ID); err != nil {
		t.Fatalf("claim payment: %v", err)
	}
	if err := reg.Orders().ClaimPaymentReference(ctx, "payment:pay_1", order.ID); err != nil {
		t.Fatalf("reclaim payment for same order: %v", err)
	}
	var repoErr repositories.RepositoryError
	if err := reg.Orders().ClaimPaymentReference(ctx, "payment:pay_1", "other-order"); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict for second order, got %v", err)
	}

	report, err := reg.Health().Collect(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected healthy firestore, got %+v", report)
	}
}
