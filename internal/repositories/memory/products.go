package memory

import (
	"context"
	"errors"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

type productRepo struct{ s *Store }

func (r productRepo) Insert(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return errors.New("memory: product id is required")
	}
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.products[product.ID]; exists {
			return conflict("products.insert", "product %s already exists", product.ID)
		}
		st.products[product.ID] = cloneProduct(product)
		return nil
	})
}

func (r productRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var product domain.Product
	err := r.s.do(ctx, func(st *state) error {
		stored, ok := st.products[productID]
		if !ok {
			return notFound("products.get", "product %s not found", productID)
		}
		product = cloneProduct(stored)
		return nil
	})
	return product, err
}

func (r productRepo) FindExisting(ctx context.Context, productIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(productIDs))
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range productIDs {
			if id == "" {
				continue
			}
			_, ok := st.products[id]
			existing[id] = ok
		}
		return nil
	})
	return existing, err
}

func (r productRepo) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	return r.mutate(ctx, "products.adjustStock", productID, func(p *domain.Product) error {
		if p.Stock+delta < 0 {
			err := repositories.InsufficientStock(p.ID, p.Stock, -delta)
			err.Op = "products.adjustStock"
			return err
		}
		p.Stock += delta
		return nil
	})
}

func (r productRepo) SetStock(ctx context.Context, productID string, stock int) (domain.Product, error) {
	if stock < 0 {
		err := repositories.NewStockError(repositories.StockErrorInvalidQuantity, productID, "stock must be >= 0")
		err.Op = "products.setStock"
		return domain.Product{}, err
	}
	return r.mutate(ctx, "products.setStock", productID, func(p *domain.Product) error {
		p.Stock = stock
		return nil
	})
}

func (r productRepo) AppendReview(ctx context.Context, productID string, review domain.Review) (domain.Product, error) {
	return r.mutate(ctx, "products.appendReview", productID, func(p *domain.Product) error {
		for _, existing := range p.Reviews {
			if existing.UserID == review.UserID {
				return conflict("products.appendReview", "user %s already reviewed product %s", review.UserID, p.ID)
			}
		}
		p.Reviews = append(p.Reviews, review)
		p.RecomputeRating()
		return nil
	})
}

func (r productRepo) AppendSellerReview(ctx context.Context, productID string, review domain.SellerReview) (domain.Product, error) {
	return r.mutate(ctx, "products.appendSellerReview", productID, func(p *domain.Product) error {
		for _, existing := range p.SellerReviews {
			if existing.SellerID == review.SellerID && existing.CustomerID == review.CustomerID && existing.OrderID == review.OrderID {
				return conflict("products.appendSellerReview", "customer %s already reviewed for order %s", review.CustomerID, review.OrderID)
			}
		}
		p.SellerReviews = append(p.SellerReviews, review)
		return nil
	})
}

func (r productRepo) mutate(ctx context.Context, op, productID string, fn func(p *domain.Product) error) (domain.Product, error) {
	var updated domain.Product
	err := r.s.do(ctx, func(st *state) error {
		stored, ok := st.products[productID]
		if !ok {
			stockErr := repositories.NewStockError(repositories.StockErrorProductNotFound, productID, "product "+productID+" not found")
			stockErr.Op = op
			stockErr.Err = notFound(op, "product %s not found", productID)
			return stockErr
		}
		product := cloneProduct(stored)
		if err := fn(&product); err != nil {
			return err
		}
		product.UpdatedAt = r.s.now()
		st.products[productID] = product
		updated = cloneProduct(product)
		return nil
	})
	return updated, err
}
