package memory

import (
	"maps"
	"slices"

	domain "github.com/voltmart/storefront/internal/domain"
)

// Stored values never share slices or pointers with callers.

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	for i, item := range o.Items {
		if item.ProductID != nil {
			id := *item.ProductID
			o.Items[i].ProductID = &id
		}
	}
	o.StatusHistory = slices.Clone(o.StatusHistory)
	if o.PaymentResult != nil {
		payment := *o.PaymentResult
		o.PaymentResult = &payment
	}
	o.PaidAt = cloneTime(o.PaidAt)
	o.DeliveredAt = cloneTime(o.DeliveredAt)
	return o
}

func cloneProduct(p domain.Product) domain.Product {
	p.Reviews = slices.Clone(p.Reviews)
	p.SellerReviews = slices.Clone(p.SellerReviews)
	return p
}

func cloneUser(u domain.User) domain.User {
	if u.ReferredBy != nil {
		ref := *u.ReferredBy
		u.ReferredBy = &ref
	}
	u.Wishlist = slices.Clone(u.Wishlist)
	return u
}

func cloneTransaction(t domain.CoinTransaction) domain.CoinTransaction {
	t.Metadata = maps.Clone(t.Metadata)
	return t
}

func cloneReturn(r domain.Return) domain.Return {
	r.Items = slices.Clone(r.Items)
	r.StatusHistory = slices.Clone(r.StatusHistory)
	return r
}

func cloneAlert(a domain.InventoryAlert) domain.InventoryAlert {
	a.ResolvedAt = cloneTime(a.ResolvedAt)
	return a
}

func cloneReferral(r domain.Referral) domain.Referral {
	r.CompletedAt = cloneTime(r.CompletedAt)
	return r
}

func cloneTime[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
