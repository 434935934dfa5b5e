package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

const (
	referralIDPrefix = "ref_"

	defaultSignupReward     int64 = 10_000
	maxReferralCodeAttempts       = 5
	referralCodePrefixLen         = 4
	referralCodeSuffixLen         = 6
	fallbackReferralPrefix        = "VM"
)

var (
	errReferralCodeTaken = errors.New("referral code taken")
	referralCaser        = cases.Upper(language.Und)
)

// ReferralEngineDeps bundles collaborators for the referral engine.
type ReferralEngineDeps struct {
	Users         repositories.UserRepository
	Referrals     repositories.ReferralRepository
	Coins         CoinAccountService
	UnitOfWork    repositories.UnitOfWork
	SignupReward  int64
	OrderReward   int64
	Clock         func() time.Time
	IDGenerator   func() string
	CodeGenerator func(name string) string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type referralEngine struct {
	users        repositories.UserRepository
	referrals    repositories.ReferralRepository
	coins        CoinAccountService
	unitOfWork   repositories.UnitOfWork
	signupReward int64
	orderReward  int64
	clock        func() time.Time
	newID        func() string
	newCode      func(name string) string
	logger       serviceLogger
}

// NewReferralEngine constructs the referral engine. A zero order reward disables first-order rewards.
func NewReferralEngine(deps ReferralEngineDeps) (ReferralEngine, error) {
	if deps.Users == nil {
		return nil, errors.New("referral engine: user repository is required")
	}
	if deps.Referrals == nil {
		return nil, errors.New("referral engine: referral repository is required")
	}
	if deps.Coins == nil {
		return nil, errors.New("referral engine: coin account service is required")
	}
	if deps.SignupReward < 0 || deps.OrderReward < 0 {
		return nil, errors.New("referral engine: rewards must not be negative")
	}

	signup := deps.SignupReward
	if signup == 0 {
		signup = defaultSignupReward
	}
	codeGen := deps.CodeGenerator
	if codeGen == nil {
		codeGen = generateReferralCode
	}

	return &referralEngine{
		users:        deps.Users,
		referrals:    deps.Referrals,
		coins:        deps.Coins,
		unitOfWork:   orNoopUnit(deps.UnitOfWork),
		signupReward: signup,
		orderReward:  deps.OrderReward,
		clock:        utcClock(deps.Clock),
		newID:        ulidGenerator(deps.IDGenerator),
		newCode:      codeGen,
		logger:       orNoopLogger(deps.Logger),
	}, nil
}

func (e *referralEngine) RegisterWithReferral(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	user, err := e.buildUser(cmd)
	if err != nil {
		return User{}, err
	}
	if _, err := e.users.FindByID(ctx, user.ID); err == nil {
		return User{}, fmt.Errorf("%w: user %s already registered", ErrConflict, user.ID)
	} else if !isNotFound(err) {
		return User{}, mapRepositoryError(err)
	}

	var referrer *User
	if code := normalizeReferralCode(cmd.ReferralCode); code != "" {
		found, err := e.resolveReferrer(ctx, code, user.ID)
		if err != nil {
			return User{}, err
		}
		referrer = &found
	}

	for attempt := 0; attempt < maxReferralCodeAttempts; attempt++ {
		user.ReferralCode = normalizeReferralCode(e.newCode(user.Name))

		if referrer != nil {
			created, err := e.registerReferred(ctx, user, *referrer)
			if err == nil {
				return created, nil
			}
			if errors.Is(err, errReferralCodeTaken) {
				continue
			}
			if errors.Is(err, ErrConflict) {
				return User{}, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return User{}, ctxErr
			}
			e.logger(ctx, "referral.signup.failed", map[string]any{
				"userId":     user.ID,
				"referrerId": referrer.ID,
				"error":      err.Error(),
			})
			referrer = nil
		}

		if err := e.users.Insert(ctx, user); err != nil {
			if isConflict(err) {
				continue
			}
			return User{}, mapRepositoryError(err)
		}
		return user, nil
	}
	return User{}, fmt.Errorf("%w: could not allocate a unique referral code", ErrConflict)
}

func (e *referralEngine) ValidateReferralCode(ctx context.Context, code string) (ReferralCodeInfo, error) {
	normalized := normalizeReferralCode(code)
	if normalized == "" {
		return ReferralCodeInfo{}, fmt.Errorf("%w: referral code is required", ErrInvalidInput)
	}
	referrer, err := e.users.FindByReferralCode(ctx, normalized)
	if err != nil {
		if isNotFound(err) {
			return ReferralCodeInfo{Valid: false}, nil
		}
		return ReferralCodeInfo{}, mapRepositoryError(err)
	}
	return ReferralCodeInfo{Valid: true, ReferrerName: referrer.Name}, nil
}

func (e *referralEngine) Stats(ctx context.Context, userID string) (ReferralSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ReferralSummary{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return ReferralSummary{}, mapRepositoryError(err)
	}
	referrals, err := e.referrals.ListByReferrer(ctx, userID)
	if err != nil {
		return ReferralSummary{}, mapRepositoryError(err)
	}
	return ReferralSummary{Code: user.ReferralCode, Stats: user.ReferralStats, Referrals: referrals}, nil
}

func (e *referralEngine) CompleteFirstOrder(ctx context.Context, referredUserID, orderID string) error {
	referredUserID = strings.TrimSpace(referredUserID)
	if referredUserID == "" {
		return fmt.Errorf("%w: referred user id is required", ErrInvalidInput)
	}

	return mapError(e.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		referral, err := e.referrals.FindByReferred(txCtx, referredUserID)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if referral.FirstOrderCompleted || referral.Status == domain.ReferralStatusCancelled {
			return nil
		}

		var credited int64
		if e.orderReward > 0 {
			result, err := e.coins.Credit(txCtx, CoinEntryCommand{
				UserID:    referral.ReferrerID,
				Type:      domain.CoinTransactionBonus,
				Amount:    e.orderReward,
				Source:    domain.CoinSourceReferralOrder,
				Reference: domain.ReferralRef(referral.ID),
				Metadata:  map[string]any{"orderId": orderID, "referredUserId": referredUserID},
			})
			if err != nil {
				return err
			}
			if !result.Duplicate {
				credited = e.orderReward
			}
		}

		referral.FirstOrderCompleted = true
		referral.OrderReward = e.orderReward
		referral.TotalRewards += credited
		if err := e.referrals.Update(txCtx, referral); err != nil {
			return err
		}
		if credited > 0 {
			if err := e.users.IncrementReferralStats(txCtx, referral.ReferrerID, domain.ReferralStats{TotalEarned: credited}); err != nil {
				return err
			}
		}
		e.logger(txCtx, "referral.first_order.completed", map[string]any{
			"referralId": referral.ID,
			"orderId":    orderID,
			"credited":   credited,
		})
		return nil
	}))
}

// registerReferred creates the user, the referral record and the referrer reward in one unit of work.
func (e *referralEngine) registerReferred(ctx context.Context, user User, referrer User) (User, error) {
	now := e.clock()
	referrerID := referrer.ID
	user.ReferredBy = &referrerID

	referral := Referral{
		ID:           referralIDPrefix + e.newID(),
		ReferrerID:   referrer.ID,
		ReferredID:   user.ID,
		ReferralCode: referrer.ReferralCode,
		Status:       domain.ReferralStatusCompleted,
		SignupReward: e.signupReward,
		TotalRewards: e.signupReward,
		CreatedAt:    now,
		CompletedAt:  &now,
	}

	applied := false
	err := e.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		applied = false
		if err := e.users.Insert(txCtx, user); err != nil {
			if isConflict(err) {
				return fmt.Errorf("%w: %v", errReferralCodeTaken, err)
			}
			return err
		}
		if err := e.referrals.Insert(txCtx, referral); err != nil {
			return err
		}
		if _, err := e.coins.Credit(txCtx, CoinEntryCommand{
			UserID:    referrer.ID,
			Type:      domain.CoinTransactionBonus,
			Amount:    e.signupReward,
			Source:    domain.CoinSourceReferralSignup,
			Reference: domain.ReferralRef(referral.ID),
			Metadata:  map[string]any{"referredUserId": user.ID},
		}); err != nil {
			return err
		}
		if err := e.users.IncrementReferralStats(txCtx, referrer.ID, domain.ReferralStats{
			TotalReferrals:      1,
			SuccessfulReferrals: 1,
			TotalEarned:         e.signupReward,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil && applied && isConflict(err) {
		// Queued creates are checked at commit, so a code claimed in the meantime shows up here.
		return User{}, e.commitConflict(ctx, user.ID, err)
	}
	if err != nil {
		return User{}, err
	}

	e.logger(ctx, "referral.signup.completed", map[string]any{
		"referralId": referral.ID,
		"referrerId": referrer.ID,
		"userId":     user.ID,
	})
	return user, nil
}

func (e *referralEngine) commitConflict(ctx context.Context, userID string, cause error) error {
	_, err := e.users.FindByID(ctx, userID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: user %s already registered", ErrConflict, userID)
	case isNotFound(err):
		return fmt.Errorf("%w: %v", errReferralCodeTaken, cause)
	default:
		return mapRepositoryError(err)
	}
}

func (e *referralEngine) resolveReferrer(ctx context.Context, code, userID string) (User, error) {
	referrer, err := e.users.FindByReferralCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return User{}, fmt.Errorf("%w: %s", ErrInvalidReferralCode, code)
		}
		return User{}, mapRepositoryError(err)
	}
	if referrer.ID == userID {
		return User{}, fmt.Errorf("%w: self referral", ErrInvalidReferralCode)
	}
	return referrer, nil
}

func (e *referralEngine) buildUser(cmd RegisterUserCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	name := strings.TrimSpace(cmd.Name)
	email := strings.TrimSpace(cmd.Email)
	if userID == "" || name == "" {
		return User{}, fmt.Errorf("%w: user id and name are required", ErrInvalidInput)
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return User{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
	}
	role := cmd.Role
	switch role {
	case "":
		role = domain.RoleCustomer
	case domain.RoleCustomer, domain.RoleSeller, domain.RoleAdmin:
	default:
		return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	now := e.clock()
	return User{
		ID:        userID,
		Name:      name,
		Email:     strings.ToLower(email),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func normalizeReferralCode(code string) string {
	return referralCaser.String(strings.TrimSpace(code))
}

// generateReferralCode builds a code from up to four letters of the name and random ULID characters.
func generateReferralCode(name string) string {
	var prefix strings.Builder
	for _, r := range referralCaser.String(name) {
		if r >= 'A' && r <= 'Z' {
			prefix.WriteRune(r)
			if prefix.Len() == referralCodePrefixLen {
				break
			}
		}
	}
	head := prefix.String()
	if len(head) < 2 {
		head = fallbackReferralPrefix
	}
	id := ulid.Make().String()
	return head + id[len(id)-referralCodeSuffixLen:]
}
