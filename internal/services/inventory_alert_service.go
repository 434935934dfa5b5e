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

const (
	alertIDPrefix = "alr_"

	defaultLowStockThreshold = 5
	defaultAlertListLimit    = 100
	maxAlertMessageLength    = 500
)

// InventoryAlertServiceDeps bundles collaborators for inventory alerts.
type InventoryAlertServiceDeps struct {
	Alerts      repositories.InventoryAlertRepository
	Products    repositories.ProductRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)

	// DefaultThreshold applies to products without their own low-stock threshold.
	DefaultThreshold int
}

type inventoryAlertService struct {
	alerts     repositories.InventoryAlertRepository
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     serviceLogger
	threshold  int
}

// NewInventoryAlertService constructs the inventory alert service.
func NewInventoryAlertService(deps InventoryAlertServiceDeps) (InventoryAlertService, error) {
	if deps.Alerts == nil {
		return nil, errors.New("inventory alert service: alert repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("inventory alert service: product repository is required")
	}
	threshold := deps.DefaultThreshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	return &inventoryAlertService{
		threshold:  threshold,
		alerts:     deps.Alerts,
		products:   deps.Products,
		unitOfWork: orNoopUnit(deps.UnitOfWork),
		clock:      utcClock(deps.Clock),
		newID:      ulidGenerator(deps.IDGenerator),
		logger:     orNoopLogger(deps.Logger),
	}, nil
}

func (s *inventoryAlertService) Evaluate(ctx context.Context, product Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	threshold := s.lowStockThreshold(product)
	alertType, open := classifyStock(product.Stock, threshold)

	return mapError(s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.alerts.FindOpenByProduct(txCtx, product.ID)
		found := err == nil
		if err != nil && !isNotFound(err) {
			return err
		}
		now := s.clock()

		if !open {
			if !found || existing.Type == domain.InventoryAlertRestockNeeded {
				return nil
			}
			existing.IsResolved = true
			existing.ResolvedAt = &now
			existing.CurrentStock = product.Stock
			existing.UpdatedAt = now
			if err := s.alerts.Update(txCtx, existing); err != nil {
				return err
			}
			s.logger(txCtx, "inventory.alert.resolved", map[string]any{"alertId": existing.ID, "productId": product.ID})
			return nil
		}

		message := stockAlertMessage(product, alertType)
		if found {
			if existing.Type != alertType {
				existing.IsRead = false
			}
			existing.Type = alertType
			existing.CurrentStock = product.Stock
			existing.Threshold = threshold
			existing.Message = message
			existing.UpdatedAt = now
			return s.alerts.Update(txCtx, existing)
		}

		alert := InventoryAlert{
			ID:           alertIDPrefix + s.newID(),
			ProductID:    product.ID,
			SellerID:     product.SellerID,
			Type:         alertType,
			CurrentStock: product.Stock,
			Threshold:    threshold,
			Message:      message,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.alerts.Insert(txCtx, alert); err != nil {
			return err
		}
		s.logger(txCtx, "inventory.alert.created", map[string]any{
			"alertId":   alert.ID,
			"productId": product.ID,
			"type":      string(alertType),
			"stock":     product.Stock,
		})
		return nil
	}))
}

func (s *inventoryAlertService) Create(ctx context.Context, cmd CreateAlertCommand) (InventoryAlert, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return InventoryAlert{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	message := strings.TrimSpace(cmd.Message)
	if len(message) > maxAlertMessageLength {
		return InventoryAlert{}, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, maxAlertMessageLength)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return InventoryAlert{}, mapRepositoryError(err)
	}
	if !cmd.Actor.IsAdmin() && product.SellerID != cmd.Actor.ID {
		return InventoryAlert{}, fmt.Errorf("%w: product belongs to another seller", ErrForbidden)
	}
	if message == "" {
		message = stockAlertMessage(product, domain.InventoryAlertRestockNeeded)
	}

	var result InventoryAlert
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		now := s.clock()
		existing, err := s.alerts.FindOpenByProduct(txCtx, productID)
		switch {
		case err == nil:
			existing.Type = domain.InventoryAlertRestockNeeded
			existing.CurrentStock = product.Stock
			existing.Message = message
			existing.IsRead = false
			existing.UpdatedAt = now
			result = existing
			return s.alerts.Update(txCtx, existing)
		case !isNotFound(err):
			return err
		}

		result = InventoryAlert{
			ID:           alertIDPrefix + s.newID(),
			ProductID:    product.ID,
			SellerID:     product.SellerID,
			Type:         domain.InventoryAlertRestockNeeded,
			CurrentStock: product.Stock,
			Threshold:    s.lowStockThreshold(product),
			Message:      message,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return s.alerts.Insert(txCtx, result)
	})
	if err != nil {
		return InventoryAlert{}, mapError(err)
	}
	return result, nil
}

func (s *inventoryAlertService) Resolve(ctx context.Context, alertID string, actor Actor) (InventoryAlert, error) {
	return s.mutate(ctx, alertID, actor, func(alert *InventoryAlert, now time.Time) bool {
		if alert.IsResolved {
			return false
		}
		alert.IsResolved = true
		alert.ResolvedAt = &now
		return true
	})
}

func (s *inventoryAlertService) MarkRead(ctx context.Context, alertID string, actor Actor) (InventoryAlert, error) {
	return s.mutate(ctx, alertID, actor, func(alert *InventoryAlert, _ time.Time) bool {
		if alert.IsRead {
			return false
		}
		alert.IsRead = true
		return true
	})
}

func (s *inventoryAlertService) List(ctx context.Context, query ListAlertsQuery) ([]InventoryAlert, error) {
	limit := query.Limit
	if limit <= 0 || limit > defaultAlertListLimit {
		limit = defaultAlertListLimit
	}
	alerts, err := s.alerts.List(ctx, repositories.InventoryAlertFilter{
		SellerID:       strings.TrimSpace(query.SellerID),
		UnresolvedOnly: query.Unresolved,
		Limit:          limit,
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return alerts, nil
}

func (s *inventoryAlertService) mutate(ctx context.Context, alertID string, actor Actor, apply func(*InventoryAlert, time.Time) bool) (InventoryAlert, error) {
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return InventoryAlert{}, fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	var result InventoryAlert
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		alert, err := s.alerts.FindByID(txCtx, alertID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && alert.SellerID != actor.ID {
			return fmt.Errorf("%w: alert belongs to another seller", ErrForbidden)
		}
		now := s.clock()
		if !apply(&alert, now) {
			result = alert
			return nil
		}
		alert.UpdatedAt = now
		result = alert
		return s.alerts.Update(txCtx, alert)
	})
	if err != nil {
		return InventoryAlert{}, mapError(err)
	}
	return result, nil
}

func (s *inventoryAlertService) lowStockThreshold(product Product) int {
	if product.LowStockThreshold > 0 {
		return product.LowStockThreshold
	}
	return s.threshold
}

// classifyStock returns the alert type for a stock level and whether an alert should be open.
func classifyStock(stock, threshold int) (domain.InventoryAlertType, bool) {
	switch {
	case stock <= 0:
		return domain.InventoryAlertOutOfStock, true
	case stock <= threshold:
		return domain.InventoryAlertLowStock, true
	default:
		return "", false
	}
}

func stockAlertMessage(product Product, alertType domain.InventoryAlertType) string {
	name := product.Name
	if name == "" {
		name = product.ID
	}
	switch alertType {
	case domain.InventoryAlertOutOfStock:
		return fmt.Sprintf("%s is out of stock", name)
	case domain.InventoryAlertLowStock:
		return fmt.Sprintf("%s is running low: %d left", name, product.Stock)
	default:
		return fmt.Sprintf("%s needs restocking", name)
	}
}
