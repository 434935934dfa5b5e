package memory

import (
	"context"
	"fmt"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Apply(ctx context.Context, entry domain.CoinTransaction) (repositories.LedgerApplyResult, error) {
	if err := validateEntry(entry); err != nil {
		return repositories.LedgerApplyResult{}, err
	}
	id := domain.LedgerEntryID(entry.UserID, entry.Source, entry.Reference)

	var result repositories.LedgerApplyResult
	err := r.s.do(ctx, func(st *state) error {
		if existing, ok := st.ledger[id]; ok {
			result = repositories.LedgerApplyResult{Transaction: cloneTransaction(existing), Duplicate: true}
			return nil
		}
		user, ok := st.users[entry.UserID]
		if !ok {
			err := repositories.NewLedgerError(repositories.LedgerErrorAccountNotFound, entry.UserID, fmt.Sprintf("user %s not found", entry.UserID))
			err.Op = "ledger.apply"
			return err
		}
		if entry.Type.IsDebit() && user.Coins < entry.Amount {
			err := repositories.NewLedgerError(repositories.LedgerErrorInsufficientCoins, entry.UserID,
				fmt.Sprintf("balance %d is below debit %d", user.Coins, entry.Amount))
			err.Op = "ledger.apply"
			err.Balance = user.Coins
			return err
		}

		now := r.s.now()
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		user = cloneUser(user)
		user.Coins += entry.SignedAmount()
		switch entry.Type {
		case domain.CoinTransactionEarned, domain.CoinTransactionBonus:
			user.TotalEarned += entry.Amount
		case domain.CoinTransactionRedeemed:
			user.TotalRedeemed += entry.Amount
		case domain.CoinTransactionRefund:
			user.TotalRedeemed = max(user.TotalRedeemed-entry.Amount, 0)
		}
		user.UpdatedAt = now

		entry.ID = id
		entry.BalanceAfter = user.Coins
		st.users[user.ID] = user
		st.ledger[id] = cloneTransaction(entry)
		result = repositories.LedgerApplyResult{Transaction: entry}
		return nil
	})
	return result, err
}

func (r ledgerRepo) FindByKey(ctx context.Context, userID string, source domain.CoinSource, ref domain.LedgerReference) (domain.CoinTransaction, error) {
	id := domain.LedgerEntryID(userID, source, ref)
	var tx domain.CoinTransaction
	err := r.s.do(ctx, func(st *state) error {
		stored, ok := st.ledger[id]
		if !ok {
			return notFound("ledger.findByKey", "no ledger entry for %s", domain.LedgerKey(userID, source, ref))
		}
		tx = cloneTransaction(stored)
		return nil
	})
	return tx, err
}

func (r ledgerRepo) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.CoinTransaction], error) {
	var items []domain.CoinTransaction
	err := r.s.do(ctx, func(st *state) error {
		for _, tx := range st.ledger {
			if tx.UserID == userID {
				items = append(items, cloneTransaction(tx))
			}
		}
		return nil
	})
	if err != nil {
		return domain.CursorPage[domain.CoinTransaction]{}, err
	}
	return newestFirst(items, pager, func(t domain.CoinTransaction) (time.Time, string) { return t.CreatedAt, t.ID })
}

func (r ledgerRepo) SumByUser(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.s.do(ctx, func(st *state) error {
		for _, tx := range st.ledger {
			if tx.UserID == userID {
				sum += tx.SignedAmount()
			}
		}
		return nil
	})
	return sum, err
}

// SetBalance overwrites a user's coin balance without a ledger row, producing ledger drift.
// Seeding and audit tests use it.
func (s *Store) SetBalance(ctx context.Context, userID string, coins int64) error {
	return s.do(ctx, func(st *state) error {
		user, ok := st.users[userID]
		if !ok {
			return notFound("users.setBalance", "user %s not found", userID)
		}
		user.Coins = coins
		st.users[userID] = user
		return nil
	})
}

func validateEntry(entry domain.CoinTransaction) error {
	var reason string
	switch {
	case entry.UserID == "":
		reason = "user id is required"
	case !entry.Type.Valid():
		reason = fmt.Sprintf("unknown transaction type %q", entry.Type)
	case entry.Amount <= 0:
		reason = "amount must be positive"
	case entry.Source == "":
		reason = "source is required"
	case entry.Reference.IsZero():
		reason = "reference is required"
	default:
		return nil
	}
	err := repositories.NewLedgerError(repositories.LedgerErrorInvalidEntry, entry.UserID, reason)
	err.Op = "ledger.apply"
	return err
}
