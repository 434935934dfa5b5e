package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

type stubProductRepo struct {
	repositories.ProductRepository
	findFn   func(context.Context, string) (domain.Product, error)
	adjustFn func(context.Context, string, int) (domain.Product, error)
	setFn    func(context.Context, string, int) (domain.Product, error)
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepo) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, productID, delta)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepo) SetStock(ctx context.Context, productID string, stock int) (domain.Product, error) {
	if s.setFn != nil {
		return s.setFn(ctx, productID, stock)
	}
	return domain.Product{}, errors.New("not implemented")
}

type reasonMetrics struct {
	noopMetrics
	reasons []string
}

func (m *reasonMetrics) StockReservationFailed(reason string) {
	m.reasons = append(m.reasons, reason)
}

func TestStockManagerReservePassesNegativeDelta(t *testing.T) {
	var gotDelta int
	repo := &stubProductRepo{adjustFn: func(_ context.Context, id string, delta int) (domain.Product, error) {
		gotDelta = delta
		return domain.Product{ID: id, Stock: 3}, nil
	}}
	manager, err := NewStockManager(StockManagerDeps{Products: repo})
	if err != nil {
		t.Fatalf("NewStockManager: %v", err)
	}

	product, err := manager.Reserve(context.Background(), "prod_1", 2)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if gotDelta != -2 || product.Stock != 3 {
		t.Fatalf("unexpected delta %d or product %+v", gotDelta, product)
	}

	if _, err := manager.Restore(context.Background(), "prod_1", 2); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if gotDelta != 2 {
		t.Fatalf("expected positive delta on restore, got %d", gotDelta)
	}
}

func TestStockManagerMapsStockErrors(t *testing.T) {
	metrics := &reasonMetrics{}
	repo := &stubProductRepo{adjustFn: func(_ context.Context, id string, delta int) (domain.Product, error) {
		if id == "missing" {
			return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, id, "")
		}
		return domain.Product{}, repositories.InsufficientStock(id, 1, -delta)
	}}
	manager, err := NewStockManager(StockManagerDeps{Products: repo, Metrics: metrics})
	if err != nil {
		t.Fatalf("NewStockManager: %v", err)
	}

	_, err = manager.Reserve(context.Background(), "prod_1", 2)
	expectErr(t, err, ErrInsufficientStock)
	_, err = manager.Reserve(context.Background(), "missing", 1)
	expectErr(t, err, ErrNotFound)
	_, err = manager.Reserve(context.Background(), "prod_1", 0)
	expectErr(t, err, ErrInvalidInput)

	if len(metrics.reasons) != 2 || metrics.reasons[0] != "insufficient" || metrics.reasons[1] != "not_found" {
		t.Fatalf("unexpected metrics %v", metrics.reasons)
	}
}

func TestStockManagerSetStockChecksOwnership(t *testing.T) {
	repo := &stubProductRepo{
		findFn: func(_ context.Context, id string) (domain.Product, error) {
			return domain.Product{ID: id, SellerID: "seller_1"}, nil
		},
		setFn: func(_ context.Context, id string, stock int) (domain.Product, error) {
			return domain.Product{ID: id, SellerID: "seller_1", Stock: stock}, nil
		},
	}
	manager, err := NewStockManager(StockManagerDeps{Products: repo})
	if err != nil {
		t.Fatalf("NewStockManager: %v", err)
	}

	_, err = manager.SetStock(context.Background(), SetStockCommand{ProductID: "prod_1", Stock: 5, Actor: Actor{ID: "seller_2", Role: domain.RoleSeller}})
	expectErr(t, err, ErrForbidden)
	_, err = manager.SetStock(context.Background(), SetStockCommand{ProductID: "prod_1", Stock: -1, Actor: adminActor})
	expectErr(t, err, ErrInvalidInput)
	product, err := manager.SetStock(context.Background(), SetStockCommand{ProductID: "prod_1", Stock: 5, Actor: adminActor})
	if err != nil || product.Stock != 5 {
		t.Fatalf("expected admin restock, got %+v %v", product, err)
	}
}

func TestNewStockManagerRequiresRepository(t *testing.T) {
	if _, err := NewStockManager(StockManagerDeps{}); err == nil {
		t.Fatal("expected error without product repository")
	}
}
