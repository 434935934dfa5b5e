package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		name      string
		coins     int64
		requested int64
		want      DiscountQuote
	}{
		{
			name:      "caps request at balance",
			coins:     250_000,
			requested: 3_000,
			want:      DiscountQuote{MaxDiscount: 2_000, RequestedDiscount: 2_000, CoinsRequired: 200_000, CanApply: true},
		},
		{
			name:      "partial unit rounds coins up",
			coins:     250_000,
			requested: 1_500,
			want:      DiscountQuote{MaxDiscount: 2_000, RequestedDiscount: 1_500, CoinsRequired: 200_000, CanApply: true},
		},
		{
			name:      "balance below one unit",
			coins:     99_999,
			requested: 1_000,
			want:      DiscountQuote{},
		},
		{
			name:      "negative request",
			coins:     500_000,
			requested: -10,
			want:      DiscountQuote{MaxDiscount: 5_000},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateDiscount(tc.coins, tc.requested))
		})
	}
}

func TestMaxDiscountFloorsToUnits(t *testing.T) {
	assert.Equal(t, int64(0), MaxDiscount(0))
	assert.Equal(t, int64(1_000), MaxDiscount(199_999))
	assert.Equal(t, int64(2_000), MaxDiscount(200_000))
}

func TestStoreCreditCoinsRedeemsBackToRefund(t *testing.T) {
	coins := StoreCreditCoins(4_000)
	assert.Equal(t, int64(400_000), coins)
	assert.Equal(t, int64(4_000), MaxDiscount(coins))
	assert.Zero(t, StoreCreditCoins(0))
}

func TestLedgerReferenceRoundTrip(t *testing.T) {
	ref := OrderRef("ord_123")
	require.False(t, ref.IsZero())
	assert.Equal(t, "Order:ord_123", ref.String())

	parsed, err := ParseLedgerReference(ref.String())
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)

	parsed, err = ParseLedgerReference("Return:ret_9")
	require.NoError(t, err)
	assert.Equal(t, ReturnRef("ret_9"), parsed)

	_, err = ParseLedgerReference("Coupon:abc")
	require.Error(t, err)

	var zero LedgerReference
	assert.True(t, zero.IsZero())
}

func TestCoinTransactionSignedAmount(t *testing.T) {
	credit := CoinTransaction{Type: CoinTransactionBonus, Amount: 500}
	debit := CoinTransaction{Type: CoinTransactionRedeemed, Amount: 200_000}
	assert.Equal(t, int64(500), credit.SignedAmount())
	assert.Equal(t, int64(-200_000), debit.SignedAmount())
}

func TestProductRecomputeRating(t *testing.T) {
	product := Product{Reviews: []Review{{Rating: 5}, {Rating: 4}, {Rating: 3}}}
	product.RecomputeRating()
	assert.Equal(t, 3, product.NumReviews)
	assert.InDelta(t, 4.0, product.Rating, 0.0001)
}

func TestLedgerEntryIDIsDeterministic(t *testing.T) {
	a := LedgerEntryID("user_1", CoinSourceOrderDelivery, OrderRef("ord_1"))
	assert.Equal(t, a, LedgerEntryID("user_1", CoinSourceOrderDelivery, OrderRef("ord_1")))
	assert.NotEqual(t, a, LedgerEntryID("user_1", CoinSourceOrderCancellation, OrderRef("ord_1")))
	assert.NotEqual(t, a, LedgerEntryID("user_1", CoinSourceOrderDelivery, ReferralRef("ord_1")))
}
