package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voltmart/storefront/internal/repositories"
)

// StockManagerDeps bundles collaborators for the stock manager.
type StockManagerDeps struct {
	Products repositories.ProductRepository
	Alerts   InventoryAlertService
	Metrics  Metrics
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type stockManager struct {
	products repositories.ProductRepository
	alerts   InventoryAlertService
	metrics  Metrics
	logger   serviceLogger
}

// NewStockManager constructs a StockManager backed by conditional product updates.
func NewStockManager(deps StockManagerDeps) (StockManager, error) {
	if deps.Products == nil {
		return nil, errors.New("stock manager: product repository is required")
	}
	return &stockManager{
		products: deps.Products,
		alerts:   deps.Alerts,
		metrics:  orNoopMetrics(deps.Metrics),
		logger:   orNoopLogger(deps.Logger),
	}, nil
}

func (s *stockManager) Reserve(ctx context.Context, productID string, qty int) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || qty <= 0 {
		return Product{}, fmt.Errorf("%w: product id and positive quantity are required", ErrInvalidInput)
	}
	product, err := s.products.AdjustStock(ctx, productID, -qty)
	if err != nil {
		mapped := mapRepositoryError(err)
		switch {
		case errors.Is(mapped, ErrInsufficientStock):
			s.metrics.StockReservationFailed("insufficient")
		case errors.Is(mapped, ErrNotFound):
			s.metrics.StockReservationFailed("not_found")
		}
		return Product{}, mapped
	}
	return product, nil
}

func (s *stockManager) Restore(ctx context.Context, productID string, qty int) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || qty <= 0 {
		return Product{}, fmt.Errorf("%w: product id and positive quantity are required", ErrInvalidInput)
	}
	product, err := s.products.AdjustStock(ctx, productID, qty)
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}
	return product, nil
}

func (s *stockManager) SetStock(ctx context.Context, cmd SetStockCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}

	current, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}
	if !cmd.Actor.IsAdmin() && current.SellerID != cmd.Actor.ID {
		return Product{}, fmt.Errorf("%w: product belongs to another seller", ErrForbidden)
	}

	product, err := s.products.SetStock(ctx, productID, cmd.Stock)
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}

	if s.alerts != nil {
		if err := s.alerts.Evaluate(ctx, product); err != nil {
			s.logger(ctx, "inventory.alert.evaluate.failed", map[string]any{
				"productId": product.ID,
				"error":     err.Error(),
			})
		}
	}
	return product, nil
}
