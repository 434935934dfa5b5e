package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/voltmart/storefront/internal/domain"
	pfirestore "github.com/voltmart/storefront/internal/platform/firestore"
	"github.com/voltmart/storefront/internal/repositories"
)

const coinTransactionsCollection = "coinTransactions"

// CoinLedgerRepository appends ledger rows and moves user balances in the same transaction.
type CoinLedgerRepository struct {
	entries *pfirestore.Collection[coinTransactionDocument]
	users   *pfirestore.Collection[userDocument]
}

var _ repositories.CoinLedgerRepository = (*CoinLedgerRepository)(nil)

// NewCoinLedgerRepository constructs a Firestore-backed coin ledger.
func NewCoinLedgerRepository(provider *pfirestore.Provider) (*CoinLedgerRepository, error) {
	if provider == nil {
		return nil, errors.New("coin ledger repository requires firestore provider")
	}
	return &CoinLedgerRepository{
		entries: pfirestore.NewCollection[coinTransactionDocument](provider, coinTransactionsCollection),
		users:   pfirestore.NewCollection[userDocument](provider, usersCollection),
	}, nil
}

func (r *CoinLedgerRepository) Apply(ctx context.Context, entry domain.CoinTransaction) (repositories.LedgerApplyResult, error) {
	if err := validateEntry(entry); err != nil {
		return repositories.LedgerApplyResult{}, err
	}

	id := domain.LedgerEntryID(entry.UserID, entry.Source, entry.Reference)
	var result repositories.LedgerApplyResult
	err := r.entries.InTx(ctx, func(ctx context.Context) error {
		existing, err := r.entries.Get(ctx, id)
		switch {
		case err == nil:
			tx, err := existing.Data.toDomain(existing.ID)
			if err != nil {
				return err
			}
			result = repositories.LedgerApplyResult{Transaction: tx, Duplicate: true}
			return nil
		case !isNotFound(err):
			return err
		}

		userDoc, err := r.users.Get(ctx, entry.UserID)
		if err != nil {
			if isNotFound(err) {
				ledgerErr := repositories.NewLedgerError(repositories.LedgerErrorAccountNotFound, entry.UserID, fmt.Sprintf("user %s not found", entry.UserID))
				ledgerErr.Op = "ledger.apply"
				ledgerErr.Err = err
				return ledgerErr
			}
			return err
		}
		user := userDoc.Data
		if entry.Type.IsDebit() && user.Coins < entry.Amount {
			ledgerErr := repositories.NewLedgerError(repositories.LedgerErrorInsufficientCoins, entry.UserID,
				fmt.Sprintf("balance %d is below debit %d", user.Coins, entry.Amount))
			ledgerErr.Op = "ledger.apply"
			ledgerErr.Balance = user.Coins
			return ledgerErr
		}

		now := entry.CreatedAt.UTC()
		if now.IsZero() {
			now = time.Now().UTC()
		}
		entry.ID = id
		entry.CreatedAt = now
		entry.BalanceAfter = user.Coins + entry.SignedAmount()

		updates := []firestore.Update{
			{Path: "coins", Value: entry.BalanceAfter},
			{Path: "updatedAt", Value: now},
		}
		switch entry.Type {
		case domain.CoinTransactionEarned, domain.CoinTransactionBonus:
			updates = append(updates, firestore.Update{Path: "totalEarned", Value: user.TotalEarned + entry.Amount})
		case domain.CoinTransactionRedeemed:
			updates = append(updates, firestore.Update{Path: "totalRedeemed", Value: user.TotalRedeemed + entry.Amount})
		case domain.CoinTransactionRefund:
			updates = append(updates, firestore.Update{Path: "totalRedeemed", Value: max(user.TotalRedeemed-entry.Amount, 0)})
		}
		if err := r.users.Update(ctx, entry.UserID, updates); err != nil {
			return err
		}
		if err := r.entries.Create(ctx, id, newCoinTransactionDocument(entry)); err != nil {
			return err
		}
		result = repositories.LedgerApplyResult{Transaction: entry}
		return nil
	})
	if err != nil {
		return repositories.LedgerApplyResult{}, err
	}
	return result, nil
}

func (r *CoinLedgerRepository) FindByKey(ctx context.Context, userID string, source domain.CoinSource, ref domain.LedgerReference) (domain.CoinTransaction, error) {
	doc, err := r.entries.Get(ctx, domain.LedgerEntryID(userID, source, ref))
	if err != nil {
		return domain.CoinTransaction{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

func (r *CoinLedgerRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.CoinTransaction], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.CoinTransaction]{}, errors.New("coin ledger repository: user id is required")
	}
	page, err := decodePage(pager)
	if err != nil {
		return domain.CursorPage[domain.CoinTransaction]{}, err
	}
	docs, err := r.entries.Query(ctx, func(q firestore.Query) firestore.Query {
		return page.apply(q.Where("userId", "==", userID))
	})
	if err != nil {
		return domain.CursorPage[domain.CoinTransaction]{}, err
	}
	items := make([]domain.CoinTransaction, 0, len(docs))
	for _, doc := range docs {
		tx, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return domain.CursorPage[domain.CoinTransaction]{}, err
		}
		items = append(items, tx)
	}
	return trimPage(items, page.size, func(t domain.CoinTransaction) (time.Time, string) { return t.CreatedAt, t.ID })
}

func (r *CoinLedgerRepository) SumByUser(ctx context.Context, userID string) (int64, error) {
	docs, err := r.entries.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).Select("type", "amount")
	})
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, doc := range docs {
		tx := domain.CoinTransaction{Type: domain.CoinTransactionType(doc.Data.Type), Amount: doc.Data.Amount}
		sum += tx.SignedAmount()
	}
	return sum, nil
}

func validateEntry(entry domain.CoinTransaction) error {
	var reason string
	switch {
	case strings.TrimSpace(entry.UserID) == "":
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

type coinTransactionDocument struct {
	UserID         string         `firestore:"userId"`
	Type           string         `firestore:"type"`
	Amount         int64          `firestore:"amount"`
	Source         string         `firestore:"source"`
	ReferenceModel string         `firestore:"referenceModel"`
	ReferenceID    string         `firestore:"referenceId"`
	BalanceAfter   int64          `firestore:"balanceAfter"`
	Metadata       map[string]any `firestore:"metadata,omitempty"`
	CreatedAt      time.Time      `firestore:"createdAt"`
}

func newCoinTransactionDocument(tx domain.CoinTransaction) coinTransactionDocument {
	return coinTransactionDocument{
		UserID:         tx.UserID,
		Type:           string(tx.Type),
		Amount:         tx.Amount,
		Source:         string(tx.Source),
		ReferenceModel: tx.Reference.Kind().String(),
		ReferenceID:    tx.Reference.ID(),
		BalanceAfter:   tx.BalanceAfter,
		Metadata:       tx.Metadata,
		CreatedAt:      tx.CreatedAt.UTC(),
	}
}

func (d coinTransactionDocument) toDomain(id string) (domain.CoinTransaction, error) {
	ref, err := domain.NewLedgerReference(d.ReferenceModel, d.ReferenceID)
	if err != nil {
		return domain.CoinTransaction{}, fmt.Errorf("decode coin transaction %s: %w", id, err)
	}
	return domain.CoinTransaction{
		ID:           id,
		UserID:       d.UserID,
		Type:         domain.CoinTransactionType(d.Type),
		Amount:       d.Amount,
		Source:       domain.CoinSource(d.Source),
		Reference:    ref,
		BalanceAfter: d.BalanceAfter,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
	}, nil
}
