package memory

import (
	"context"
	"errors"
	"slices"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

type referralRepo struct{ s *Store }

func (r referralRepo) Insert(ctx context.Context, referral domain.Referral) error {
	if referral.ReferredID == "" {
		return errors.New("memory: referred user id is required")
	}
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.referrals[referral.ReferredID]; exists {
			return conflict("referrals.insert", "user %s was already referred", referral.ReferredID)
		}
		st.referrals[referral.ReferredID] = cloneReferral(referral)
		return nil
	})
}

func (r referralRepo) Update(ctx context.Context, referral domain.Referral) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.referrals[referral.ReferredID]; !exists {
			return notFound("referrals.update", "no referral for user %s", referral.ReferredID)
		}
		st.referrals[referral.ReferredID] = cloneReferral(referral)
		return nil
	})
}

func (r referralRepo) FindByReferred(ctx context.Context, referredID string) (domain.Referral, error) {
	var referral domain.Referral
	err := r.s.do(ctx, func(st *state) error {
		stored, ok := st.referrals[referredID]
		if !ok {
			return notFound("referrals.findByReferred", "no referral for user %s", referredID)
		}
		referral = cloneReferral(stored)
		return nil
	})
	return referral, err
}

func (r referralRepo) ListByReferrer(ctx context.Context, referrerID string) ([]domain.Referral, error) {
	var referrals []domain.Referral
	err := r.s.do(ctx, func(st *state) error {
		for _, referral := range st.referrals {
			if referral.ReferrerID == referrerID {
				referrals = append(referrals, cloneReferral(referral))
			}
		}
		return nil
	})
	slices.SortFunc(referrals, func(a, b domain.Referral) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return referrals, err
}

type returnRepo struct{ s *Store }

func (r returnRepo) Insert(ctx context.Context, ret domain.Return) error {
	if ret.ID == "" {
		return errors.New("memory: return id is required")
	}
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.returns[ret.ID]; exists {
			return conflict("returns.insert", "return %s already exists", ret.ID)
		}
		st.returns[ret.ID] = cloneReturn(ret)
		return nil
	})
}

func (r returnRepo) Update(ctx context.Context, ret domain.Return) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.returns[ret.ID]; !exists {
			return notFound("returns.update", "return %s not found", ret.ID)
		}
		st.returns[ret.ID] = cloneReturn(ret)
		return nil
	})
}

func (r returnRepo) FindByID(ctx context.Context, returnID string) (domain.Return, error) {
	var ret domain.Return
	err := r.s.do(ctx, func(st *state) error {
		stored, ok := st.returns[returnID]
		if !ok {
			return notFound("returns.get", "return %s not found", returnID)
		}
		ret = cloneReturn(stored)
		return nil
	})
	return ret, err
}

func (r returnRepo) ListByUser(ctx context.Context, userID string) ([]domain.Return, error) {
	var returns []domain.Return
	err := r.s.do(ctx, func(st *state) error {
		for _, ret := range st.returns {
			if ret.UserID == userID {
				returns = append(returns, cloneReturn(ret))
			}
		}
		return nil
	})
	slices.SortFunc(returns, func(a, b domain.Return) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return returns, err
}

type alertRepo struct{ s *Store }

func (r alertRepo) Insert(ctx context.Context, alert domain.InventoryAlert) error {
	if alert.ID == "" {
		return errors.New("memory: alert id is required")
	}
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.alerts[alert.ID]; exists {
			return conflict("inventoryAlerts.insert", "alert %s already exists", alert.ID)
		}
		st.alerts[alert.ID] = cloneAlert(alert)
		return nil
	})
}

func (r alertRepo) Update(ctx context.Context, alert domain.InventoryAlert) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.alerts[alert.ID]; !exists {
			return notFound("inventoryAlerts.update", "alert %s not found", alert.ID)
		}
		st.alerts[alert.ID] = cloneAlert(alert)
		return nil
	})
}

func (r alertRepo) FindByID(ctx context.Context, alertID string) (domain.InventoryAlert, error) {
	var alert domain.InventoryAlert
	err := r.s.do(ctx, func(st *state) error {
		stored, ok := st.alerts[alertID]
		if !ok {
			return notFound("inventoryAlerts.get", "alert %s not found", alertID)
		}
		alert = cloneAlert(stored)
		return nil
	})
	return alert, err
}

func (r alertRepo) FindOpenByProduct(ctx context.Context, productID string) (domain.InventoryAlert, error) {
	var alert domain.InventoryAlert
	err := r.s.do(ctx, func(st *state) error {
		for _, stored := range st.alerts {
			if stored.ProductID == productID && !stored.IsResolved {
				alert = cloneAlert(stored)
				return nil
			}
		}
		return notFound("inventoryAlerts.findOpen", "no open alert for product %s", productID)
	})
	return alert, err
}

func (r alertRepo) List(ctx context.Context, filter repositories.InventoryAlertFilter) ([]domain.InventoryAlert, error) {
	var alerts []domain.InventoryAlert
	err := r.s.do(ctx, func(st *state) error {
		for _, alert := range st.alerts {
			if filter.SellerID != "" && alert.SellerID != filter.SellerID {
				continue
			}
			if filter.UnresolvedOnly && alert.IsResolved {
				continue
			}
			alerts = append(alerts, cloneAlert(alert))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	page, err := newestFirst(alerts, domain.Pagination{PageSize: limit}, func(a domain.InventoryAlert) (time.Time, string) { return a.CreatedAt, a.ID })
	return page.Items, err
}
