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

const returnsCollection = "returns"

// ReturnRepository persists return requests.
type ReturnRepository struct {
	returns *pfirestore.Collection[returnDocument]
}

var _ repositories.ReturnRepository = (*ReturnRepository)(nil)

// NewReturnRepository constructs a Firestore-backed return repository.
func NewReturnRepository(provider *pfirestore.Provider) (*ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository requires firestore provider")
	}
	return &ReturnRepository{returns: pfirestore.NewCollection[returnDocument](provider, returnsCollection)}, nil
}

func (r *ReturnRepository) Insert(ctx context.Context, ret domain.Return) error {
	if strings.TrimSpace(ret.ID) == "" {
		return errors.New("return repository: id is required")
	}
	return r.returns.Create(ctx, ret.ID, newReturnDocument(ret))
}

func (r *ReturnRepository) Update(ctx context.Context, ret domain.Return) error {
	if strings.TrimSpace(ret.ID) == "" {
		return errors.New("return repository: id is required")
	}
	return r.returns.Set(ctx, ret.ID, newReturnDocument(ret))
}

func (r *ReturnRepository) FindByID(ctx context.Context, returnID string) (domain.Return, error) {
	doc, err := r.returns.Get(ctx, strings.TrimSpace(returnID))
	if err != nil {
		return domain.Return{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ReturnRepository) ListByUser(ctx context.Context, userID string) ([]domain.Return, error) {
	docs, err := r.returns.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).OrderBy(createdAtField, firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	returns := make([]domain.Return, 0, len(docs))
	for _, doc := range docs {
		returns = append(returns, doc.Data.toDomain(doc.ID))
	}
	return returns, nil
}

type returnDocument struct {
	OrderID       string                `firestore:"orderId"`
	UserID        string                `firestore:"userId"`
	Items         []returnItemDocument  `firestore:"items"`
	Reason        string                `firestore:"reason"`
	Type          string                `firestore:"type"`
	Status        string                `firestore:"status"`
	RefundAmount  int64                 `firestore:"refundAmount"`
	AdminNotes    string                `firestore:"adminNotes,omitempty"`
	StatusHistory []statusEntryDocument `firestore:"statusHistory"`
	CreatedAt     time.Time             `firestore:"createdAt"`
	UpdatedAt     time.Time             `firestore:"updatedAt"`
}

type returnItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"qty"`
	Price     int64  `firestore:"price"`
	Reason    string `firestore:"reason,omitempty"`
	Condition string `firestore:"condition,omitempty"`
}

func newReturnDocument(ret domain.Return) returnDocument {
	items := make([]returnItemDocument, len(ret.Items))
	for i, item := range ret.Items {
		items[i] = returnItemDocument{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price, Reason: item.Reason, Condition: item.Condition}
	}
	history := make([]statusEntryDocument, len(ret.StatusHistory))
	for i, entry := range ret.StatusHistory {
		history[i] = statusEntryDocument{Status: string(entry.Status), Note: entry.Note, ActorID: entry.ActorID, At: entry.At.UTC()}
	}
	return returnDocument{
		OrderID:       ret.OrderID,
		UserID:        ret.UserID,
		Items:         items,
		Reason:        ret.Reason,
		Type:          string(ret.Type),
		Status:        string(ret.Status),
		RefundAmount:  ret.RefundAmount,
		AdminNotes:    ret.AdminNotes,
		StatusHistory: history,
		CreatedAt:     ret.CreatedAt.UTC(),
		UpdatedAt:     ret.UpdatedAt.UTC(),
	}
}

func (d returnDocument) toDomain(id string) domain.Return {
	items := make([]domain.ReturnItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.ReturnItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price, Reason: item.Reason, Condition: item.Condition}
	}
	history := make([]domain.ReturnStatusEntry, len(d.StatusHistory))
	for i, entry := range d.StatusHistory {
		history[i] = domain.ReturnStatusEntry{Status: domain.ReturnStatus(entry.Status), Note: entry.Note, ActorID: entry.ActorID, At: entry.At}
	}
	return domain.Return{
		ID:            id,
		OrderID:       d.OrderID,
		UserID:        d.UserID,
		Items:         items,
		Reason:        d.Reason,
		Type:          domain.ReturnType(d.Type),
		Status:        domain.ReturnStatus(d.Status),
		RefundAmount:  d.RefundAmount,
		AdminNotes:    d.AdminNotes,
		StatusHistory: history,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
