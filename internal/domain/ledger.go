package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CoinTransactionType classifies a ledger row.
type CoinTransactionType string

const (
	CoinTransactionEarned   CoinTransactionType = "earned"
	CoinTransactionRedeemed CoinTransactionType = "redeemed"
	CoinTransactionBonus    CoinTransactionType = "bonus"
	CoinTransactionRefund   CoinTransactionType = "refund"
)

// IsDebit reports whether the transaction type decreases the balance.
func (t CoinTransactionType) IsDebit() bool {
	return t == CoinTransactionRedeemed
}

// Valid reports whether t is a known transaction type.
func (t CoinTransactionType) Valid() bool {
	switch t {
	case CoinTransactionEarned, CoinTransactionRedeemed, CoinTransactionBonus, CoinTransactionRefund:
		return true
	default:
		return false
	}
}

// CoinSource is the business reason behind a ledger row.
type CoinSource string

const (
	CoinSourceOrderDelivery     CoinSource = "order_delivery"
	CoinSourceOrderRedemption   CoinSource = "order_redemption"
	CoinSourceOrderCancellation CoinSource = "order_cancellation"
	CoinSourceReview            CoinSource = "review"
	CoinSourceReferralSignup    CoinSource = "referral_signup"
	CoinSourceReferralOrder     CoinSource = "referral_order"
	CoinSourceAdminAdjustment   CoinSource = "admin_adjustment"
	CoinSourceReturnStoreCredit CoinSource = "return_store_credit"
)

// ReferenceKind discriminates the entity a ledger row points at.
type ReferenceKind uint8

const (
	referenceUnknown ReferenceKind = iota
	ReferenceOrder
	ReferenceReferral
	ReferenceProduct
	ReferenceUser
	ReferenceReturn
)

var referenceKindNames = map[ReferenceKind]string{
	ReferenceOrder:    "Order",
	ReferenceReferral: "Referral",
	ReferenceProduct:  "Product",
	ReferenceUser:     "User",
	ReferenceReturn:   "Return",
}

// String returns the model name of the referenced entity.
func (k ReferenceKind) String() string {
	if name, ok := referenceKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// LedgerReference points a ledger row at the entity that triggered it. Values are built with
// the *Ref constructors; the zero value is invalid.
type LedgerReference struct {
	kind ReferenceKind
	id   string
}

// OrderRef references an order.
func OrderRef(id string) LedgerReference { return LedgerReference{kind: ReferenceOrder, id: id} }

// ReferralRef references a referral record.
func ReferralRef(id string) LedgerReference {
	return LedgerReference{kind: ReferenceReferral, id: id}
}

// ProductRef references a product.
func ProductRef(id string) LedgerReference { return LedgerReference{kind: ReferenceProduct, id: id} }

// UserRef references a user.
func UserRef(id string) LedgerReference { return LedgerReference{kind: ReferenceUser, id: id} }

// ReturnRef references a return request.
func ReturnRef(id string) LedgerReference { return LedgerReference{kind: ReferenceReturn, id: id} }

// Kind returns the referenced entity kind.
func (r LedgerReference) Kind() ReferenceKind { return r.kind }

// ID returns the referenced entity identifier.
func (r LedgerReference) ID() string { return r.id }

// IsZero reports whether the reference was never set.
func (r LedgerReference) IsZero() bool {
	return r.kind == referenceUnknown || strings.TrimSpace(r.id) == ""
}

// String renders the reference as "Kind:id".
func (r LedgerReference) String() string {
	return r.kind.String() + ":" + r.id
}

// ParseLedgerReference parses the "Kind:id" form produced by String.
func ParseLedgerReference(value string) (LedgerReference, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || strings.TrimSpace(id) == "" {
		return LedgerReference{}, fmt.Errorf("domain: malformed ledger reference %q", value)
	}
	return NewLedgerReference(kind, id)
}

// NewLedgerReference builds a reference from a stored model name and id.
func NewLedgerReference(model, id string) (LedgerReference, error) {
	for kind, name := range referenceKindNames {
		if strings.EqualFold(name, strings.TrimSpace(model)) {
			return LedgerReference{kind: kind, id: strings.TrimSpace(id)}, nil
		}
	}
	return LedgerReference{}, fmt.Errorf("domain: unknown ledger reference model %q", model)
}

// CoinTransaction is an immutable ledger row.
type CoinTransaction struct {
	ID           string
	UserID       string
	Type         CoinTransactionType
	Amount       int64
	Source       CoinSource
	Reference    LedgerReference
	BalanceAfter int64
	Metadata     map[string]any
	CreatedAt    time.Time
}

// SignedAmount returns the balance delta the transaction applied.
func (t CoinTransaction) SignedAmount() int64 {
	if t.Type.IsDebit() {
		return -t.Amount
	}
	return t.Amount
}

// LedgerKey returns the idempotency key of the transaction: (user, source, reference).
func LedgerKey(userID string, source CoinSource, ref LedgerReference) string {
	return userID + "|" + string(source) + "|" + ref.String()
}

// ledgerNamespace scopes the name-based UUIDs used as ledger entry IDs.
var ledgerNamespace = uuid.MustParse("8f0c6b3e-2f7a-5d1e-9c4b-6a2e1d7f3b90")

// LedgerEntryID returns the deterministic ID of the ledger row for (user, source, ref). Storing
// rows under this ID makes the idempotency key unique.
func LedgerEntryID(userID string, source CoinSource, ref LedgerReference) string {
	return uuid.NewSHA1(ledgerNamespace, []byte(LedgerKey(userID, source, ref))).String()
}
