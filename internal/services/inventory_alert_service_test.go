package services

import (
	"context"
	"testing"

	domain "github.com/voltmart/storefront/internal/domain"
)

func TestEvaluateKeepsSingleOpenAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := Product{ID: "prod_1", SellerID: "seller_1", Name: "Laptop", LowStockThreshold: 3}

	steps := []struct {
		stock    int
		wantOpen bool
		wantType domain.InventoryAlertType
	}{
		{stock: 3, wantOpen: true, wantType: domain.InventoryAlertLowStock},
		{stock: 0, wantOpen: true, wantType: domain.InventoryAlertOutOfStock},
		{stock: 2, wantOpen: true, wantType: domain.InventoryAlertLowStock},
		{stock: 4, wantOpen: false},
	}
	for _, step := range steps {
		product.Stock = step.stock
		mustNoErr(t, f.alerts.Evaluate(ctx, product))

		open, err := f.alerts.List(ctx, ListAlertsQuery{SellerID: "seller_1", Unresolved: true})
		mustNoErr(t, err)
		if !step.wantOpen {
			if len(open) != 0 {
				t.Fatalf("stock %d: expected alert resolved, got %+v", step.stock, open)
			}
			continue
		}
		if len(open) != 1 || open[0].Type != step.wantType || open[0].CurrentStock != step.stock {
			t.Fatalf("stock %d: unexpected open alerts %+v", step.stock, open)
		}
	}

	all, err := f.alerts.List(ctx, ListAlertsQuery{SellerID: "seller_1"})
	mustNoErr(t, err)
	if len(all) != 1 || !all[0].IsResolved || all[0].ResolvedAt == nil {
		t.Fatalf("expected the one alert to be updated in place and resolved, got %+v", all)
	}
}

func TestEvaluateUsesDefaultThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustNoErr(t, f.alerts.Evaluate(ctx, Product{ID: "prod_1", SellerID: "seller_1", Stock: defaultLowStockThreshold + 1}))
	open, err := f.alerts.List(ctx, ListAlertsQuery{SellerID: "seller_1", Unresolved: true})
	mustNoErr(t, err)
	if len(open) != 0 {
		t.Fatalf("expected no alert above default threshold, got %+v", open)
	}
	mustNoErr(t, f.alerts.Evaluate(ctx, Product{ID: "prod_1", SellerID: "seller_1", Stock: defaultLowStockThreshold}))
	open, err = f.alerts.List(ctx, ListAlertsQuery{SellerID: "seller_1", Unresolved: true})
	mustNoErr(t, err)
	if len(open) != 1 || open[0].Threshold != defaultLowStockThreshold {
		t.Fatalf("expected low stock alert, got %+v", open)
	}
}

func TestManualAlertLifecycle(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "prod_1", "seller_1", 1_000, 50)
	ctx := context.Background()
	seller := Actor{ID: "seller_1", Role: domain.RoleSeller}
	other := Actor{ID: "seller_2", Role: domain.RoleSeller}

	_, err := f.alerts.Create(ctx, CreateAlertCommand{ProductID: "prod_1", Actor: other})
	expectErr(t, err, ErrForbidden)

	alert, err := f.alerts.Create(ctx, CreateAlertCommand{ProductID: "prod_1", Message: "Festival sale coming", Actor: seller})
	mustNoErr(t, err)
	if alert.Type != domain.InventoryAlertRestockNeeded || alert.Message != "Festival sale coming" {
		t.Fatalf("unexpected alert %+v", alert)
	}

	// Stock above the threshold leaves manual alerts open.
	product, err := f.store.Products().FindByID(ctx, "prod_1")
	mustNoErr(t, err)
	mustNoErr(t, f.alerts.Evaluate(ctx, product))

	again, err := f.alerts.Create(ctx, CreateAlertCommand{ProductID: "prod_1", Actor: seller})
	mustNoErr(t, err)
	if again.ID != alert.ID {
		t.Fatalf("expected existing open alert to be reused, got %s and %s", alert.ID, again.ID)
	}

	_, err = f.alerts.MarkRead(ctx, alert.ID, other)
	expectErr(t, err, ErrForbidden)
	read, err := f.alerts.MarkRead(ctx, alert.ID, seller)
	mustNoErr(t, err)
	if !read.IsRead {
		t.Fatal("expected alert marked read")
	}
	resolved, err := f.alerts.Resolve(ctx, alert.ID, adminActor)
	mustNoErr(t, err)
	if !resolved.IsResolved || resolved.ResolvedAt == nil {
		t.Fatalf("expected resolved alert, got %+v", resolved)
	}
	_, err = f.alerts.Resolve(ctx, "alr_missing", seller)
	expectErr(t, err, ErrNotFound)
}

func TestSetStockEvaluatesAlerts(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "prod_1", "seller_1", 1_000, 1)
	ctx := context.Background()
	seller := Actor{ID: "seller_1", Role: domain.RoleSeller}

	_, err := f.stock.SetStock(ctx, SetStockCommand{ProductID: "prod_1", Stock: 0, Actor: seller})
	mustNoErr(t, err)
	open, err := f.alerts.List(ctx, ListAlertsQuery{SellerID: "seller_1", Unresolved: true})
	mustNoErr(t, err)
	if len(open) != 1 || open[0].Type != domain.InventoryAlertOutOfStock {
		t.Fatalf("expected out of stock alert, got %+v", open)
	}

	product, err := f.stock.SetStock(ctx, SetStockCommand{ProductID: "prod_1", Stock: 25, Actor: seller})
	mustNoErr(t, err)
	if product.Stock != 25 {
		t.Fatalf("expected stock 25, got %d", product.Stock)
	}
	open, err = f.alerts.List(ctx, ListAlertsQuery{SellerID: "seller_1", Unresolved: true})
	mustNoErr(t, err)
	if len(open) != 0 {
		t.Fatalf("expected restock to resolve alert, got %+v", open)
	}
}
