package services

import (
	"context"
	"testing"

	domain "github.com/voltmart/storefront/internal/domain"
)

func TestCoinAccountCalculateDiscount(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "user_1", 250_000)

	quote, err := f.coins.CalculateDiscount(context.Background(), "user_1", 3_000)
	mustNoErr(t, err)
	want := DiscountQuote{MaxDiscount: 2_000, RequestedDiscount: 2_000, CoinsRequired: 200_000, CanApply: true}
	if quote != want {
		t.Fatalf("expected %+v, got %+v", want, quote)
	}

	_, err = f.coins.CalculateDiscount(context.Background(), "user_1", -1)
	expectErr(t, err, ErrInvalidInput)
	_, err = f.coins.CalculateDiscount(context.Background(), "ghost", 1_000)
	expectErr(t, err, ErrNotFound)
}

func TestCoinAccountCreditAndDebit(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "user_1", 0)
	ctx := context.Background()

	credit, err := f.coins.Credit(ctx, CoinEntryCommand{
		UserID:    "user_1",
		Type:      domain.CoinTransactionBonus,
		Amount:    500,
		Source:    domain.CoinSourceOrderDelivery,
		Reference: domain.OrderRef("ord_1"),
	})
	mustNoErr(t, err)
	if credit.Duplicate || credit.Transaction.BalanceAfter != 500 {
		t.Fatalf("unexpected credit result %+v", credit)
	}

	repeat, err := f.coins.Credit(ctx, CoinEntryCommand{
		UserID:    "user_1",
		Type:      domain.CoinTransactionBonus,
		Amount:    500,
		Source:    domain.CoinSourceOrderDelivery,
		Reference: domain.OrderRef("ord_1"),
	})
	mustNoErr(t, err)
	if !repeat.Duplicate || repeat.Transaction.ID != credit.Transaction.ID {
		t.Fatalf("expected duplicate of %s, got %+v", credit.Transaction.ID, repeat)
	}

	_, err = f.coins.Debit(ctx, CoinEntryCommand{
		UserID:    "user_1",
		Amount:    600,
		Source:    domain.CoinSourceOrderRedemption,
		Reference: domain.OrderRef("ord_2"),
	})
	expectErr(t, err, ErrInsufficientCoins)

	debit, err := f.coins.Debit(ctx, CoinEntryCommand{
		UserID:    "user_1",
		Amount:    200,
		Source:    domain.CoinSourceOrderRedemption,
		Reference: domain.OrderRef("ord_2"),
	})
	mustNoErr(t, err)
	if debit.Transaction.Type != domain.CoinTransactionRedeemed || debit.Transaction.BalanceAfter != 300 {
		t.Fatalf("unexpected debit %+v", debit.Transaction)
	}

	balance, err := f.coins.Balance(ctx, "user_1")
	mustNoErr(t, err)
	if balance.Coins != 300 || balance.TotalEarned != 500 || balance.TotalRedeemed != 200 || balance.MaxDiscount != 0 {
		t.Fatalf("unexpected balance %+v", balance)
	}
}

func TestCoinAccountRejectsMalformedEntries(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "user_1", 0)
	ctx := context.Background()

	cases := map[string]CoinEntryCommand{
		"zero amount":     {UserID: "user_1", Amount: 0, Source: domain.CoinSourceReview, Reference: domain.ProductRef("p")},
		"no reference":    {UserID: "user_1", Amount: 10, Source: domain.CoinSourceReview},
		"no source":       {UserID: "user_1", Amount: 10, Reference: domain.ProductRef("p")},
		"debit as credit": {UserID: "user_1", Type: domain.CoinTransactionRedeemed, Amount: 10, Source: domain.CoinSourceReview, Reference: domain.ProductRef("p")},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.coins.Credit(ctx, cmd)
			expectErr(t, err, ErrInvalidInput)
		})
	}
	_, err := f.coins.Debit(ctx, CoinEntryCommand{UserID: "user_1", Type: domain.CoinTransactionBonus, Amount: 10, Source: domain.CoinSourceReview, Reference: domain.ProductRef("p")})
	expectErr(t, err, ErrInvalidInput)
}

func TestCoinAccountReconcileDetectsDrift(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "user_1", 1_000)
	ctx := context.Background()

	audit, err := f.coins.Reconcile(ctx, "user_1")
	mustNoErr(t, err)
	if audit.Coins != 1_000 || audit.LedgerSum != 1_000 || audit.Drift != 0 {
		t.Fatalf("unexpected audit %+v", audit)
	}

	mustNoErr(t, f.store.SetBalance(ctx, "user_1", 1_250))
	audit, err = f.coins.Reconcile(ctx, "user_1")
	mustNoErr(t, err)
	if audit.Drift != 250 || !f.logger.has("coins.ledger.drift") {
		t.Fatalf("expected drift of 250, got %+v", audit)
	}
}

func TestCoinAccountHistoryIsNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "user_1", 0)
	ctx := context.Background()

	for i, ref := range []string{"ord_1", "ord_2", "ord_3"} {
		f.now = fixtureNow.Add(timeStep(i))
		_, err := f.coins.Credit(ctx, CoinEntryCommand{
			UserID:    "user_1",
			Type:      domain.CoinTransactionBonus,
			Amount:    100,
			Source:    domain.CoinSourceOrderDelivery,
			Reference: domain.OrderRef(ref),
		})
		mustNoErr(t, err)
	}

	page, err := f.coins.History(ctx, CoinHistoryQuery{UserID: "user_1", PageSize: 2})
	mustNoErr(t, err)
	if len(page.Items) != 2 || page.Items[0].Reference.ID() != "ord_3" || page.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	next, err := f.coins.History(ctx, CoinHistoryQuery{UserID: "user_1", PageSize: 2, PageToken: page.NextPageToken})
	mustNoErr(t, err)
	if len(next.Items) != 1 || next.Items[0].Reference.ID() != "ord_1" {
		t.Fatalf("unexpected second page %+v", next)
	}
}
