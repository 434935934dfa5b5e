package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

// CoinAccountServiceDeps bundles collaborators for the coin account service.
type CoinAccountServiceDeps struct {
	Users   repositories.UserRepository
	Ledger  repositories.CoinLedgerRepository
	Clock   func() time.Time
	Metrics Metrics
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type coinAccountService struct {
	users   repositories.UserRepository
	ledger  repositories.CoinLedgerRepository
	clock   func() time.Time
	metrics Metrics
	logger  serviceLogger
}

// NewCoinAccountService constructs the coin account service.
func NewCoinAccountService(deps CoinAccountServiceDeps) (CoinAccountService, error) {
	if deps.Users == nil {
		return nil, errors.New("coin account service: user repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("coin account service: ledger repository is required")
	}
	return &coinAccountService{
		users:   deps.Users,
		ledger:  deps.Ledger,
		clock:   utcClock(deps.Clock),
		metrics: orNoopMetrics(deps.Metrics),
		logger:  orNoopLogger(deps.Logger),
	}, nil
}

func (s *coinAccountService) Balance(ctx context.Context, userID string) (CoinBalance, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return CoinBalance{}, err
	}
	return CoinBalance{
		Coins:         user.Coins,
		TotalEarned:   user.TotalEarned,
		TotalRedeemed: user.TotalRedeemed,
		MaxDiscount:   domain.MaxDiscount(user.Coins),
	}, nil
}

func (s *coinAccountService) History(ctx context.Context, query CoinHistoryQuery) (domain.CursorPage[CoinTransaction], error) {
	userID := strings.TrimSpace(query.UserID)
	if userID == "" {
		return domain.CursorPage[CoinTransaction]{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	page, err := s.ledger.ListByUser(ctx, userID, Pagination{PageSize: query.PageSize, PageToken: query.PageToken})
	if err != nil {
		return domain.CursorPage[CoinTransaction]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *coinAccountService) CalculateDiscount(ctx context.Context, userID string, requested int64) (DiscountQuote, error) {
	if requested < 0 {
		return DiscountQuote{}, fmt.Errorf("%w: requested discount must not be negative", ErrInvalidInput)
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return DiscountQuote{}, err
	}
	return domain.CalculateDiscount(user.Coins, requested), nil
}

func (s *coinAccountService) Credit(ctx context.Context, cmd CoinEntryCommand) (CoinEntryResult, error) {
	if cmd.Type == "" {
		cmd.Type = domain.CoinTransactionEarned
	}
	if !cmd.Type.Valid() || cmd.Type.IsDebit() {
		return CoinEntryResult{}, fmt.Errorf("%w: %q is not a credit type", ErrInvalidInput, cmd.Type)
	}
	return s.apply(ctx, cmd)
}

func (s *coinAccountService) Debit(ctx context.Context, cmd CoinEntryCommand) (CoinEntryResult, error) {
	if cmd.Type == "" {
		cmd.Type = domain.CoinTransactionRedeemed
	}
	if !cmd.Type.IsDebit() {
		return CoinEntryResult{}, fmt.Errorf("%w: %q is not a debit type", ErrInvalidInput, cmd.Type)
	}
	return s.apply(ctx, cmd)
}

func (s *coinAccountService) Reconcile(ctx context.Context, userID string) (LedgerAudit, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return LedgerAudit{}, err
	}
	sum, err := s.ledger.SumByUser(ctx, user.ID)
	if err != nil {
		return LedgerAudit{}, mapRepositoryError(err)
	}
	audit := LedgerAudit{
		UserID:    user.ID,
		Coins:     user.Coins,
		LedgerSum: sum,
		Drift:     user.Coins - sum,
	}
	if audit.Drift != 0 {
		s.logger(ctx, "coins.ledger.drift", map[string]any{
			"userId":    user.ID,
			"coins":     audit.Coins,
			"ledgerSum": audit.LedgerSum,
			"drift":     audit.Drift,
		})
	}
	return audit, nil
}

func (s *coinAccountService) apply(ctx context.Context, cmd CoinEntryCommand) (CoinEntryResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	switch {
	case userID == "":
		return CoinEntryResult{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case cmd.Amount <= 0:
		return CoinEntryResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	case cmd.Source == "":
		return CoinEntryResult{}, fmt.Errorf("%w: source is required", ErrInvalidInput)
	case cmd.Reference.IsZero():
		return CoinEntryResult{}, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}

	entry := CoinTransaction{
		ID:        domain.LedgerEntryID(userID, cmd.Source, cmd.Reference),
		UserID:    userID,
		Type:      cmd.Type,
		Amount:    cmd.Amount,
		Source:    cmd.Source,
		Reference: cmd.Reference,
		Metadata:  cloneMetadata(cmd.Metadata),
		CreatedAt: s.clock(),
	}
	result, err := s.ledger.Apply(ctx, entry)
	if err != nil {
		return CoinEntryResult{}, mapRepositoryError(err)
	}
	if !result.Duplicate {
		s.metrics.CoinsMoved(entry.Source, entry.Type, entry.Amount)
	}
	s.logger(ctx, "coins.ledger.applied", map[string]any{
		"userId":       userID,
		"type":         string(entry.Type),
		"source":       string(entry.Source),
		"reference":    entry.Reference.String(),
		"amount":       entry.Amount,
		"balanceAfter": result.Transaction.BalanceAfter,
		"duplicate":    result.Duplicate,
	})
	return CoinEntryResult{Transaction: result.Transaction, Duplicate: result.Duplicate}, nil
}

func (s *coinAccountService) loadUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, mapRepositoryError(err)
	}
	return user, nil
}
