package domain

const (
	// CoinsPerRedemptionUnit is the number of coins that redeem one discount unit.
	CoinsPerRedemptionUnit int64 = 100_000
	// DiscountPerRedemptionUnit is the rupee discount granted per redemption unit.
	DiscountPerRedemptionUnit int64 = 1_000
)

// StoreCreditCoins converts a rupee refund into coins at the redemption rate, so the credit
// redeems back to the same discount.
func StoreCreditCoins(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount * CoinsPerRedemptionUnit / DiscountPerRedemptionUnit
}

// DiscountQuote describes how much of a requested discount a coin balance can cover.
type DiscountQuote struct {
	MaxDiscount       int64
	RequestedDiscount int64
	CoinsRequired     int64
	CanApply          bool
}

// MaxDiscount returns the largest discount redeemable with the given balance.
func MaxDiscount(coins int64) int64 {
	if coins <= 0 {
		return 0
	}
	return (coins / CoinsPerRedemptionUnit) * DiscountPerRedemptionUnit
}

// CoinsRequired returns the coins consumed to grant discount, rounded up to whole units.
func CoinsRequired(discount int64) int64 {
	if discount <= 0 {
		return 0
	}
	units := (discount + DiscountPerRedemptionUnit - 1) / DiscountPerRedemptionUnit
	return units * CoinsPerRedemptionUnit
}

// CalculateDiscount caps the requested discount at what the balance allows.
func CalculateDiscount(coins, requested int64) DiscountQuote {
	quote := DiscountQuote{MaxDiscount: MaxDiscount(coins)}
	if requested < 0 {
		requested = 0
	}
	quote.RequestedDiscount = min(requested, quote.MaxDiscount)
	quote.CoinsRequired = CoinsRequired(quote.RequestedDiscount)
	quote.CanApply = quote.RequestedDiscount > 0 && coins >= quote.CoinsRequired
	return quote
}
