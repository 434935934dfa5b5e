package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

type orderRepo struct{ s *Store }

func (r orderRepo) Insert(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		return errors.New("memory: order id is required")
	}
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return conflict("orders.insert", "order %s already exists", order.ID)
		}
		st.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func (r orderRepo) Update(ctx context.Context, order domain.Order) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.orders[order.ID]; !exists {
			return notFound("orders.update", "order %s not found", order.ID)
		}
		st.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func (r orderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := r.s.do(ctx, func(st *state) error {
		stored, ok := st.orders[orderID]
		if !ok {
			return notFound("orders.get", "order %s not found", orderID)
		}
		order = cloneOrder(stored)
		return nil
	})
	return order, err
}

func (r orderRepo) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	var matched []domain.Order
	err := r.s.do(ctx, func(st *state) error {
		for _, order := range st.orders {
			if order.UserID != filter.UserID {
				continue
			}
			if filter.Status != nil && order.Status != *filter.Status {
				continue
			}
			matched = append(matched, cloneOrder(order))
		}
		return nil
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	return newestFirst(matched, filter.Pagination, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID })
}

func (r orderRepo) FindDeliveredPurchase(ctx context.Context, userID, productID string) (domain.Order, error) {
	var found domain.Order
	err := r.s.do(ctx, func(st *state) error {
		for _, order := range st.orders {
			if order.UserID == userID && order.IsDelivered && order.IsPaid && order.ContainsProduct(productID) {
				found = cloneOrder(order)
				return nil
			}
		}
		return notFound("orders.findDeliveredPurchase", "no delivered purchase of product %s", productID)
	})
	return found, err
}

func (r orderRepo) ListDeliveredWithoutBonus(ctx context.Context, maxAttempts, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []domain.Order
	err := r.s.do(ctx, func(st *state) error {
		for _, order := range st.orders {
			if order.IsDelivered && order.CoinsEarned == 0 && (maxAttempts <= 0 || order.BonusAttempts < maxAttempts) {
				orders = append(orders, cloneOrder(order))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := cmp.Compare(a.BonusAttempts, b.BonusAttempts); c != 0 {
			return c
		}
		if c := deliveredAt(a).Compare(deliveredAt(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func deliveredAt(order domain.Order) time.Time {
	if order.DeliveredAt != nil {
		return *order.DeliveredAt
	}
	return order.CreatedAt
}

func (r orderRepo) ClaimPaymentReference(ctx context.Context, ref, orderID string) error {
	if ref == "" || orderID == "" {
		return errors.New("memory: payment reference and order id are required")
	}
	return r.s.do(ctx, func(st *state) error {
		if owner, taken := st.payments[ref]; taken {
			if owner == orderID {
				return nil
			}
			return conflict("orders.claimPayment", "payment reference %s is bound to another order", ref)
		}
		st.payments[ref] = orderID
		return nil
	})
}
