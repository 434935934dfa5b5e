package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
)

func deliveredOrder(t *testing.T, f *fixture) Order {
	t.Helper()
	f.addProduct(t, "prod_1", "seller_1", 2_000, 10)
	f.addUser(t, "user_1", 0)
	order, err := f.orders.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user_1",
		Items:           []PlaceOrderItem{{ProductID: "prod_1", Quantity: 3}},
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	mustNoErr(t, err)
	return f.deliver(t, order.ID)
}

func TestRequestReturnComputesRefund(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(t, f)

	ret, err := f.returns.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID: order.ID,
		UserID:  "user_1",
		Items:   []RequestReturnItem{{ProductID: "prod_1", Quantity: 2, Reason: "damaged"}},
		Reason:  "Screen cracked",
	})
	mustNoErr(t, err)
	if ret.Status != domain.ReturnStatusRequested || ret.RefundAmount != 4_000 || ret.Type != domain.ReturnTypeRefund {
		t.Fatalf("unexpected return %+v", ret)
	}
	if len(ret.StatusHistory) != 1 || ret.Items[0].Price != 2_000 {
		t.Fatalf("unexpected history or price %+v", ret)
	}
	if got := f.events.types(); got[len(got)-1] != returnEventRequested {
		t.Fatalf("expected return event, got %v", got)
	}

	_, err = f.returns.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID: order.ID,
		UserID:  "user_1",
		Items:   []RequestReturnItem{{ProductID: "prod_1", Quantity: 2}},
		Reason:  "Second attempt",
	})
	expectErr(t, err, ErrInvalidInput)
}

func TestRequestReturnEligibility(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "prod_1", "seller_1", 2_000, 10)
	undelivered := f.placeOrder(t, "user_1", "prod_1", 1)
	order := deliveredOrderFor(t, f, "user_2")
	ctx := context.Background()
	items := []RequestReturnItem{{ProductID: "prod_1", Quantity: 1}}

	_, err := f.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_missing", UserID: "user_2", Items: items, Reason: "x"})
	expectErr(t, err, ErrNotFound)
	_, err = f.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: order.ID, UserID: "user_1", Items: items, Reason: "x"})
	expectErr(t, err, ErrForbidden)
	_, err = f.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: undelivered.ID, UserID: "user_1", Items: items, Reason: "x"})
	expectErr(t, err, ErrNotEligible)
	_, err = f.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: order.ID, UserID: "user_2", Items: []RequestReturnItem{{ProductID: "prod_9", Quantity: 1}}, Reason: "x"})
	expectErr(t, err, ErrInvalidInput)
	_, err = f.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: order.ID, UserID: "user_2", Items: []RequestReturnItem{{ProductID: "prod_1", Quantity: 2}}, Reason: "x"})
	expectErr(t, err, ErrInvalidInput)

	f.now = fixtureNow.Add(31 * 24 * time.Hour)
	_, err = f.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: order.ID, UserID: "user_2", Items: items, Reason: "late"})
	expectErr(t, err, ErrNotEligible)

	f.now = fixtureNow.Add(30 * 24 * time.Hour)
	_, err = f.returns.RequestReturn(ctx, RequestReturnCommand{OrderID: order.ID, UserID: "user_2", Items: items, Reason: "just in time"})
	mustNoErr(t, err)
}

func deliveredOrderFor(t *testing.T, f *fixture, userID string) Order {
	t.Helper()
	order := f.placeOrder(t, userID, "prod_1", 1)
	return f.deliver(t, order.ID)
}

func TestUpdateReturnStatusMachine(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(t, f)
	ctx := context.Background()

	ret, err := f.returns.RequestReturn(ctx, RequestReturnCommand{
		OrderID: order.ID, UserID: "user_1", Items: []RequestReturnItem{{ProductID: "prod_1", Quantity: 1}}, Reason: "wrong colour",
	})
	mustNoErr(t, err)

	_, err = f.returns.UpdateReturnStatus(ctx, UpdateReturnStatusCommand{ReturnID: ret.ID, Status: domain.ReturnStatusApproved, Actor: Actor{ID: "user_1", Role: domain.RoleCustomer}})
	expectErr(t, err, ErrForbidden)
	_, err = f.returns.UpdateReturnStatus(ctx, UpdateReturnStatusCommand{ReturnID: ret.ID, Status: domain.ReturnStatusCompleted, Actor: adminActor})
	expectErr(t, err, ErrInvalidTransition)

	override := int64(1_500)
	for _, status := range []ReturnStatus{domain.ReturnStatusApproved, domain.ReturnStatusProcessing, domain.ReturnStatusCompleted} {
		ret, err = f.returns.UpdateReturnStatus(ctx, UpdateReturnStatusCommand{
			ReturnID: ret.ID, Status: status, AdminNotes: "ok", RefundAmount: &override, Actor: adminActor,
		})
		mustNoErr(t, err)
	}
	if ret.Status != domain.ReturnStatusCompleted || len(ret.StatusHistory) != 4 || ret.RefundAmount != 1_500 {
		t.Fatalf("unexpected return %+v", ret)
	}

	stored, err := f.store.Orders().FindByID(ctx, order.ID)
	mustNoErr(t, err)
	if stored.Status != domain.OrderStatusDelivered || len(stored.StatusHistory) != len(order.StatusHistory) {
		t.Fatal("return workflow must not touch the order")
	}
}

func TestStoreCreditReturnCreditsCoinsOnce(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(t, f)
	ctx := context.Background()
	before, err := f.coins.Balance(ctx, "user_1")
	mustNoErr(t, err)

	ret, err := f.returns.RequestReturn(ctx, RequestReturnCommand{
		OrderID: order.ID, UserID: "user_1", Items: []RequestReturnItem{{ProductID: "prod_1", Quantity: 2}},
		Reason: "changed mind", Type: domain.ReturnTypeStoreCredit,
	})
	mustNoErr(t, err)
	for _, status := range []ReturnStatus{domain.ReturnStatusApproved, domain.ReturnStatusProcessing} {
		_, err = f.returns.UpdateReturnStatus(ctx, UpdateReturnStatusCommand{ReturnID: ret.ID, Status: status, Actor: adminActor})
		mustNoErr(t, err)
	}
	mid, err := f.coins.Balance(ctx, "user_1")
	mustNoErr(t, err)
	if mid.Coins != before.Coins {
		t.Fatalf("expected no credit before completion, got %d -> %d", before.Coins, mid.Coins)
	}

	_, err = f.returns.UpdateReturnStatus(ctx, UpdateReturnStatusCommand{ReturnID: ret.ID, Status: domain.ReturnStatusCompleted, Actor: adminActor})
	mustNoErr(t, err)
	_, err = f.returns.UpdateReturnStatus(ctx, UpdateReturnStatusCommand{ReturnID: ret.ID, Status: domain.ReturnStatusCompleted, Actor: adminActor})
	expectErr(t, err, ErrInvalidTransition)

	after, err := f.coins.Balance(ctx, "user_1")
	mustNoErr(t, err)
	if after.Coins-before.Coins != 400_000 || after.TotalEarned-before.TotalEarned != 400_000 {
		t.Fatalf("expected 400000 coins of store credit, got %+v -> %+v", before, after)
	}
	if after.MaxDiscount-before.MaxDiscount != 4_000 {
		t.Fatalf("expected credit worth the refund, got discount %d -> %d", before.MaxDiscount, after.MaxDiscount)
	}
	entry, err := f.store.Ledger().FindByKey(ctx, "user_1", domain.CoinSourceReturnStoreCredit, domain.ReturnRef(ret.ID))
	mustNoErr(t, err)
	if entry.Type != domain.CoinTransactionEarned || entry.Amount != 400_000 {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
}

func TestRefundReturnLeavesCoinsAlone(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(t, f)
	ctx := context.Background()
	before, err := f.coins.Balance(ctx, "user_1")
	mustNoErr(t, err)

	ret, err := f.returns.RequestReturn(ctx, RequestReturnCommand{
		OrderID: order.ID, UserID: "user_1", Items: []RequestReturnItem{{ProductID: "prod_1", Quantity: 1}}, Reason: "faulty",
	})
	mustNoErr(t, err)
	for _, status := range []ReturnStatus{domain.ReturnStatusApproved, domain.ReturnStatusProcessing, domain.ReturnStatusCompleted} {
		_, err = f.returns.UpdateReturnStatus(ctx, UpdateReturnStatusCommand{ReturnID: ret.ID, Status: status, Actor: adminActor})
		mustNoErr(t, err)
	}
	after, err := f.coins.Balance(ctx, "user_1")
	mustNoErr(t, err)
	if after.Coins != before.Coins {
		t.Fatalf("refund returns settle outside the coin ledger, got %d -> %d", before.Coins, after.Coins)
	}
}

func TestGetAndListReturns(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(t, f)
	ctx := context.Background()

	ret, err := f.returns.RequestReturn(ctx, RequestReturnCommand{
		OrderID: order.ID, UserID: "user_1", Items: []RequestReturnItem{{ProductID: "prod_1", Quantity: 1}}, Reason: "too big",
	})
	mustNoErr(t, err)

	if _, err := f.returns.GetReturn(ctx, GetReturnQuery{ReturnID: ret.ID, Actor: Actor{ID: "user_1"}}); err != nil {
		t.Fatalf("owner should read return: %v", err)
	}
	_, err = f.returns.GetReturn(ctx, GetReturnQuery{ReturnID: ret.ID, Actor: Actor{ID: "user_2"}})
	expectErr(t, err, ErrForbidden)

	list, err := f.returns.ListReturns(ctx, "user_1")
	mustNoErr(t, err)
	if len(list) != 1 || list[0].ID != ret.ID {
		t.Fatalf("unexpected list %+v", list)
	}
}
