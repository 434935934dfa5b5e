package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/voltmart/storefront/internal/domain"
	pfirestore "github.com/voltmart/storefront/internal/platform/firestore"
	"github.com/voltmart/storefront/internal/repositories"
)

const (
	usersCollection         = "users"
	referralCodesCollection = "referralCodes"
)

// UserRepository persists storefront accounts. Referral codes are reserved in their own
// collection keyed by code so that uniqueness is enforced by document creation.
type UserRepository struct {
	users *pfirestore.Collection[userDocument]
	codes *pfirestore.Collection[referralCodeDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		users: pfirestore.NewCollection[userDocument](provider, usersCollection),
		codes: pfirestore.NewCollection[referralCodeDocument](provider, referralCodesCollection),
	}, nil
}

func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user repository: id is required")
	}
	code := strings.TrimSpace(user.ReferralCode)
	if code == "" {
		return errors.New("user repository: referral code is required")
	}
	return r.users.InTx(ctx, func(ctx context.Context) error {
		if err := r.codes.Create(ctx, code, referralCodeDocument{UserID: user.ID, CreatedAt: user.CreatedAt.UTC()}); err != nil {
			return err
		}
		return r.users.Create(ctx, user.ID, newUserDocument(user))
	})
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.users.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (domain.User, error) {
	ref, err := r.codes.Get(ctx, strings.TrimSpace(code))
	if err != nil {
		return domain.User{}, err
	}
	return r.FindByID(ctx, ref.Data.UserID)
}

func (r *UserRepository) IncrementReferralStats(ctx context.Context, userID string, delta domain.ReferralStats) error {
	updates := []firestore.Update{{Path: "updatedAt", Value: time.Now().UTC()}}
	if delta.TotalReferrals != 0 {
		updates = append(updates, firestore.Update{Path: "referralStats.totalReferrals", Value: firestore.Increment(delta.TotalReferrals)})
	}
	if delta.SuccessfulReferrals != 0 {
		updates = append(updates, firestore.Update{Path: "referralStats.successfulReferrals", Value: firestore.Increment(delta.SuccessfulReferrals)})
	}
	if delta.TotalEarned != 0 {
		updates = append(updates, firestore.Update{Path: "referralStats.totalEarned", Value: firestore.Increment(delta.TotalEarned)})
	}
	return r.users.Update(ctx, strings.TrimSpace(userID), updates)
}

type userDocument struct {
	Name          string                `firestore:"name"`
	Email         string                `firestore:"email"`
	Role          string                `firestore:"role"`
	Coins         int64                 `firestore:"coins"`
	TotalEarned   int64                 `firestore:"totalEarned"`
	TotalRedeemed int64                 `firestore:"totalRedeemed"`
	ReferralCode  string                `firestore:"referralCode"`
	ReferredBy    *string               `firestore:"referredBy"`
	ReferralStats referralStatsDocument `firestore:"referralStats"`
	Wishlist      []string              `firestore:"wishlist"`
	CreatedAt     time.Time             `firestore:"createdAt"`
	UpdatedAt     time.Time             `firestore:"updatedAt"`
}

type referralStatsDocument struct {
	TotalReferrals      int   `firestore:"totalReferrals"`
	SuccessfulReferrals int   `firestore:"successfulReferrals"`
	TotalEarned         int64 `firestore:"totalEarned"`
}

type referralCodeDocument struct {
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newUserDocument(u domain.User) userDocument {
	return userDocument{
		Name:          u.Name,
		Email:         u.Email,
		Role:          string(u.Role),
		Coins:         u.Coins,
		TotalEarned:   u.TotalEarned,
		TotalRedeemed: u.TotalRedeemed,
		ReferralCode:  u.ReferralCode,
		ReferredBy:    u.ReferredBy,
		ReferralStats: referralStatsDocument{
			TotalReferrals:      u.ReferralStats.TotalReferrals,
			SuccessfulReferrals: u.ReferralStats.SuccessfulReferrals,
			TotalEarned:         u.ReferralStats.TotalEarned,
		},
		Wishlist:  trimmedOrEmpty(u.Wishlist),
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.User {
	return domain.User{
		ID:            id,
		Name:          d.Name,
		Email:         d.Email,
		Role:          domain.Role(d.Role),
		Coins:         d.Coins,
		TotalEarned:   d.TotalEarned,
		TotalRedeemed: d.TotalRedeemed,
		ReferralCode:  d.ReferralCode,
		ReferredBy:    d.ReferredBy,
		ReferralStats: domain.ReferralStats{
			TotalReferrals:      d.ReferralStats.TotalReferrals,
			SuccessfulReferrals: d.ReferralStats.SuccessfulReferrals,
			TotalEarned:         d.ReferralStats.TotalEarned,
		},
		Wishlist:  d.Wishlist,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
