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

const referralsCollection = "referrals"

// ReferralRepository stores one referral document per referred user, keyed by the referred user
// ID so a second referral for the same user fails on create.
type ReferralRepository struct {
	referrals *pfirestore.Collection[referralDocument]
}

var _ repositories.ReferralRepository = (*ReferralRepository)(nil)

// NewReferralRepository constructs a Firestore-backed referral repository.
func NewReferralRepository(provider *pfirestore.Provider) (*ReferralRepository, error) {
	if provider == nil {
		return nil, errors.New("referral repository requires firestore provider")
	}
	return &ReferralRepository{referrals: pfirestore.NewCollection[referralDocument](provider, referralsCollection)}, nil
}

func (r *ReferralRepository) Insert(ctx context.Context, referral domain.Referral) error {
	if strings.TrimSpace(referral.ReferredID) == "" {
		return errors.New("referral repository: referred user id is required")
	}
	return r.referrals.Create(ctx, referral.ReferredID, newReferralDocument(referral))
}

func (r *ReferralRepository) Update(ctx context.Context, referral domain.Referral) error {
	if strings.TrimSpace(referral.ReferredID) == "" {
		return errors.New("referral repository: referred user id is required")
	}
	return r.referrals.Set(ctx, referral.ReferredID, newReferralDocument(referral))
}

func (r *ReferralRepository) FindByReferred(ctx context.Context, referredID string) (domain.Referral, error) {
	doc, err := r.referrals.Get(ctx, strings.TrimSpace(referredID))
	if err != nil {
		return domain.Referral{}, err
	}
	return doc.Data.toDomain(), nil
}

func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID string) ([]domain.Referral, error) {
	docs, err := r.referrals.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("referrerId", "==", strings.TrimSpace(referrerID)).OrderBy(createdAtField, firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	referrals := make([]domain.Referral, 0, len(docs))
	for _, doc := range docs {
		referrals = append(referrals, doc.Data.toDomain())
	}
	return referrals, nil
}

type referralDocument struct {
	ID                  string     `firestore:"id"`
	ReferrerID          string     `firestore:"referrerId"`
	ReferredID          string     `firestore:"referredId"`
	ReferralCode        string     `firestore:"referralCode"`
	Status              string     `firestore:"status"`
	SignupReward        int64      `firestore:"signupReward"`
	OrderReward         int64      `firestore:"orderReward"`
	FirstOrderCompleted bool       `firestore:"firstOrderCompleted"`
	TotalRewards        int64      `firestore:"totalRewards"`
	CreatedAt           time.Time  `firestore:"createdAt"`
	CompletedAt         *time.Time `firestore:"completedAt,omitempty"`
}

func newReferralDocument(r domain.Referral) referralDocument {
	return referralDocument{
		ID:                  r.ID,
		ReferrerID:          r.ReferrerID,
		ReferredID:          r.ReferredID,
		ReferralCode:        r.ReferralCode,
		Status:              string(r.Status),
		SignupReward:        r.SignupReward,
		OrderReward:         r.OrderReward,
		FirstOrderCompleted: r.FirstOrderCompleted,
		TotalRewards:        r.TotalRewards,
		CreatedAt:           r.CreatedAt.UTC(),
		CompletedAt:         r.CompletedAt,
	}
}

func (d referralDocument) toDomain() domain.Referral {
	return domain.Referral{
		ID:                  d.ID,
		ReferrerID:          d.ReferrerID,
		ReferredID:          d.ReferredID,
		ReferralCode:        d.ReferralCode,
		Status:              domain.ReferralStatus(d.Status),
		SignupReward:        d.SignupReward,
		OrderReward:         d.OrderReward,
		FirstOrderCompleted: d.FirstOrderCompleted,
		TotalRewards:        d.TotalRewards,
		CreatedAt:           d.CreatedAt,
		CompletedAt:         d.CompletedAt,
	}
}
