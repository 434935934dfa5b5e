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

const inventoryAlertsCollection = "inventoryAlerts"

// InventoryAlertRepository persists seller inventory alerts.
type InventoryAlertRepository struct {
	alerts *pfirestore.Collection[inventoryAlertDocument]
}

var _ repositories.InventoryAlertRepository = (*InventoryAlertRepository)(nil)

// NewInventoryAlertRepository constructs a Firestore-backed alert repository.
func NewInventoryAlertRepository(provider *pfirestore.Provider) (*InventoryAlertRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory alert repository requires firestore provider")
	}
	return &InventoryAlertRepository{alerts: pfirestore.NewCollection[inventoryAlertDocument](provider, inventoryAlertsCollection)}, nil
}

func (r *InventoryAlertRepository) Insert(ctx context.Context, alert domain.InventoryAlert) error {
	if strings.TrimSpace(alert.ID) == "" {
		return errors.New("inventory alert repository: id is required")
	}
	return r.alerts.Create(ctx, alert.ID, newInventoryAlertDocument(alert))
}

func (r *InventoryAlertRepository) Update(ctx context.Context, alert domain.InventoryAlert) error {
	if strings.TrimSpace(alert.ID) == "" {
		return errors.New("inventory alert repository: id is required")
	}
	return r.alerts.Set(ctx, alert.ID, newInventoryAlertDocument(alert))
}

func (r *InventoryAlertRepository) FindByID(ctx context.Context, alertID string) (domain.InventoryAlert, error) {
	doc, err := r.alerts.Get(ctx, strings.TrimSpace(alertID))
	if err != nil {
		return domain.InventoryAlert{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *InventoryAlertRepository) FindOpenByProduct(ctx context.Context, productID string) (domain.InventoryAlert, error) {
	docs, err := r.alerts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", strings.TrimSpace(productID)).Where("isResolved", "==", false).Limit(1)
	})
	if err != nil {
		return domain.InventoryAlert{}, err
	}
	if len(docs) == 0 {
		return domain.InventoryAlert{}, pfirestore.NotFound("inventoryAlerts.findOpen", "no open alert for product "+productID)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *InventoryAlertRepository) List(ctx context.Context, filter repositories.InventoryAlertFilter) ([]domain.InventoryAlert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	docs, err := r.alerts.Query(ctx, func(q firestore.Query) firestore.Query {
		if sellerID := strings.TrimSpace(filter.SellerID); sellerID != "" {
			q = q.Where("sellerId", "==", sellerID)
		}
		if filter.UnresolvedOnly {
			q = q.Where("isResolved", "==", false)
		}
		return q.OrderBy(createdAtField, firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	alerts := make([]domain.InventoryAlert, 0, len(docs))
	for _, doc := range docs {
		alerts = append(alerts, doc.Data.toDomain(doc.ID))
	}
	return alerts, nil
}

type inventoryAlertDocument struct {
	ProductID    string     `firestore:"productId"`
	SellerID     string     `firestore:"sellerId"`
	Type         string     `firestore:"type"`
	CurrentStock int        `firestore:"currentStock"`
	Threshold    int        `firestore:"threshold"`
	Message      string     `firestore:"message,omitempty"`
	IsRead       bool       `firestore:"isRead"`
	IsResolved   bool       `firestore:"isResolved"`
	ResolvedAt   *time.Time `firestore:"resolvedAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

func newInventoryAlertDocument(a domain.InventoryAlert) inventoryAlertDocument {
	return inventoryAlertDocument{
		ProductID:    a.ProductID,
		SellerID:     a.SellerID,
		Type:         string(a.Type),
		CurrentStock: a.CurrentStock,
		Threshold:    a.Threshold,
		Message:      a.Message,
		IsRead:       a.IsRead,
		IsResolved:   a.IsResolved,
		ResolvedAt:   a.ResolvedAt,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (d inventoryAlertDocument) toDomain(id string) domain.InventoryAlert {
	return domain.InventoryAlert{
		ID:           id,
		ProductID:    d.ProductID,
		SellerID:     d.SellerID,
		Type:         domain.InventoryAlertType(d.Type),
		CurrentStock: d.CurrentStock,
		Threshold:    d.Threshold,
		Message:      d.Message,
		IsRead:       d.IsRead,
		IsResolved:   d.IsResolved,
		ResolvedAt:   d.ResolvedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
