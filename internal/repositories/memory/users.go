package memory

import (
	"context"
	"errors"

	domain "github.com/voltmart/storefront/internal/domain"
)

type userRepo struct{ s *Store }

func (r userRepo) Insert(ctx context.Context, user domain.User) error {
	if user.ID == "" || user.ReferralCode == "" {
		return errors.New("memory: user id and referral code are required")
	}
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.users[user.ID]; exists {
			return conflict("users.insert", "user %s already exists", user.ID)
		}
		if owner, taken := st.codes[user.ReferralCode]; taken {
			return conflict("users.insert", "referral code %s is held by %s", user.ReferralCode, owner)
		}
		st.users[user.ID] = cloneUser(user)
		st.codes[user.ReferralCode] = user.ID
		return nil
	})
}

func (r userRepo) FindByID(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	err := r.s.do(ctx, func(st *state) error {
		stored, ok := st.users[userID]
		if !ok {
			return notFound("users.get", "user %s not found", userID)
		}
		user = cloneUser(stored)
		return nil
	})
	return user, err
}

func (r userRepo) FindByReferralCode(ctx context.Context, code string) (domain.User, error) {
	var user domain.User
	err := r.s.do(ctx, func(st *state) error {
		id, ok := st.codes[code]
		if !ok {
			return notFound("users.findByReferralCode", "referral code %s not found", code)
		}
		user = cloneUser(st.users[id])
		return nil
	})
	return user, err
}

func (r userRepo) IncrementReferralStats(ctx context.Context, userID string, delta domain.ReferralStats) error {
	return r.s.do(ctx, func(st *state) error {
		user, ok := st.users[userID]
		if !ok {
			return notFound("users.incrementReferralStats", "user %s not found", userID)
		}
		user = cloneUser(user)
		user.ReferralStats.TotalReferrals += delta.TotalReferrals
		user.ReferralStats.SuccessfulReferrals += delta.SuccessfulReferrals
		user.ReferralStats.TotalEarned += delta.TotalEarned
		user.UpdatedAt = r.s.now()
		st.users[userID] = user
		return nil
	})
}
