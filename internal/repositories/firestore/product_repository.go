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

const productsCollection = "products"

// ProductRepository persists catalog products. Stock and review mutations read the document
// inside a transaction and write only the fields they own.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: id is required")
	}
	return r.products.Create(ctx, product.ID, newProductDocument(product))
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) FindExisting(ctx context.Context, productIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, seen := existing[id]; seen {
			continue
		}
		_, err := r.products.Get(ctx, id)
		switch {
		case err == nil:
			existing[id] = true
		case isNotFound(err):
			existing[id] = false
		default:
			return nil, err
		}
	}
	return existing, nil
}

func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	var updated domain.Product
	err := r.products.InTx(ctx, func(ctx context.Context) error {
		product, err := r.load(ctx, productID, "products.adjustStock")
		if err != nil {
			return err
		}
		next := product.Stock + delta
		if next < 0 {
			err := repositories.InsufficientStock(product.ID, product.Stock, -delta)
			err.Op = "products.adjustStock"
			return err
		}
		product.Stock = next
		product.UpdatedAt = r.now()
		updated = product
		return r.products.Update(ctx, product.ID, []firestore.Update{
			{Path: "stock", Value: product.Stock},
			{Path: "updatedAt", Value: product.UpdatedAt},
		})
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

func (r *ProductRepository) SetStock(ctx context.Context, productID string, stock int) (domain.Product, error) {
	if stock < 0 {
		err := repositories.NewStockError(repositories.StockErrorInvalidQuantity, productID, "stock must be >= 0")
		err.Op = "products.setStock"
		return domain.Product{}, err
	}
	var updated domain.Product
	err := r.products.InTx(ctx, func(ctx context.Context) error {
		product, err := r.load(ctx, productID, "products.setStock")
		if err != nil {
			return err
		}
		product.Stock = stock
		product.UpdatedAt = r.now()
		updated = product
		return r.products.Update(ctx, product.ID, []firestore.Update{
			{Path: "stock", Value: stock},
			{Path: "updatedAt", Value: product.UpdatedAt},
		})
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

func (r *ProductRepository) AppendReview(ctx context.Context, productID string, review domain.Review) (domain.Product, error) {
	var updated domain.Product
	err := r.products.InTx(ctx, func(ctx context.Context) error {
		doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
		if err != nil {
			return err
		}
		product := doc.Data.toDomain(doc.ID)
		for _, existing := range product.Reviews {
			if existing.UserID == review.UserID {
				return pfirestore.Conflict("products.appendReview", fmt.Sprintf("user %s already reviewed product %s", review.UserID, product.ID))
			}
		}
		product.Reviews = append(product.Reviews, review)
		product.RecomputeRating()
		product.UpdatedAt = r.now()
		updated = product

		reviews := newProductDocument(product).Reviews
		return r.products.Update(ctx, product.ID, []firestore.Update{
			{Path: "reviews", Value: reviews},
			{Path: "rating", Value: product.Rating},
			{Path: "numReviews", Value: product.NumReviews},
			{Path: "updatedAt", Value: product.UpdatedAt},
		})
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

func (r *ProductRepository) AppendSellerReview(ctx context.Context, productID string, review domain.SellerReview) (domain.Product, error) {
	var updated domain.Product
	err := r.products.InTx(ctx, func(ctx context.Context) error {
		doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
		if err != nil {
			return err
		}
		product := doc.Data.toDomain(doc.ID)
		for _, existing := range product.SellerReviews {
			if existing.SellerID == review.SellerID && existing.CustomerID == review.CustomerID && existing.OrderID == review.OrderID {
				return pfirestore.Conflict("products.appendSellerReview", fmt.Sprintf("customer %s already reviewed for order %s", review.CustomerID, review.OrderID))
			}
		}
		product.SellerReviews = append(product.SellerReviews, review)
		product.UpdatedAt = r.now()
		updated = product

		return r.products.Update(ctx, product.ID, []firestore.Update{
			{Path: "sellerReviews", Value: newProductDocument(product).SellerReviews},
			{Path: "updatedAt", Value: product.UpdatedAt},
		})
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

func (r *ProductRepository) load(ctx context.Context, productID, op string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			stockErr := repositories.NewStockError(repositories.StockErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID))
			stockErr.Op = op
			stockErr.Err = err
			return domain.Product{}, stockErr
		}
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type productDocument struct {
	SellerID          string                 `firestore:"sellerId"`
	Name              string                 `firestore:"name"`
	Image             string                 `firestore:"image,omitempty"`
	Category          string                 `firestore:"category"`
	Subcategory       string                 `firestore:"subcategory,omitempty"`
	Price             int64                  `firestore:"price"`
	Stock             int                    `firestore:"stock"`
	LowStockThreshold int                    `firestore:"lowStockThreshold"`
	Rating            float64                `firestore:"rating"`
	NumReviews        int                    `firestore:"numReviews"`
	Reviews           []reviewDocument       `firestore:"reviews"`
	SellerReviews     []sellerReviewDocument `firestore:"sellerReviews"`
	CreatedAt         time.Time              `firestore:"createdAt"`
	UpdatedAt         time.Time              `firestore:"updatedAt"`
}

type reviewDocument struct {
	UserID    string    `firestore:"userId"`
	Name      string    `firestore:"name"`
	Rating    int       `firestore:"rating"`
	Comment   string    `firestore:"comment"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type sellerReviewDocument struct {
	SellerID   string    `firestore:"sellerId"`
	CustomerID string    `firestore:"customerId"`
	OrderID    string    `firestore:"orderId"`
	Rating     int       `firestore:"rating"`
	Comment    string    `firestore:"comment"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func newProductDocument(p domain.Product) productDocument {
	reviews := make([]reviewDocument, len(p.Reviews))
	for i, review := range p.Reviews {
		reviews[i] = reviewDocument{UserID: review.UserID, Name: review.Name, Rating: review.Rating, Comment: review.Comment, CreatedAt: review.CreatedAt.UTC()}
	}
	sellerReviews := make([]sellerReviewDocument, len(p.SellerReviews))
	for i, review := range p.SellerReviews {
		sellerReviews[i] = sellerReviewDocument{
			SellerID:   review.SellerID,
			CustomerID: review.CustomerID,
			OrderID:    review.OrderID,
			Rating:     review.Rating,
			Comment:    review.Comment,
			CreatedAt:  review.CreatedAt.UTC(),
		}
	}
	return productDocument{
		SellerID:          p.SellerID,
		Name:              p.Name,
		Image:             p.Image,
		Category:          p.Category,
		Subcategory:       p.Subcategory,
		Price:             p.Price,
		Stock:             p.Stock,
		LowStockThreshold: p.LowStockThreshold,
		Rating:            p.Rating,
		NumReviews:        p.NumReviews,
		Reviews:           reviews,
		SellerReviews:     sellerReviews,
		CreatedAt:         p.CreatedAt.UTC(),
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	reviews := make([]domain.Review, len(d.Reviews))
	for i, review := range d.Reviews {
		reviews[i] = domain.Review{UserID: review.UserID, Name: review.Name, Rating: review.Rating, Comment: review.Comment, CreatedAt: review.CreatedAt}
	}
	sellerReviews := make([]domain.SellerReview, len(d.SellerReviews))
	for i, review := range d.SellerReviews {
		sellerReviews[i] = domain.SellerReview{
			SellerID:   review.SellerID,
			CustomerID: review.CustomerID,
			OrderID:    review.OrderID,
			Rating:     review.Rating,
			Comment:    review.Comment,
			CreatedAt:  review.CreatedAt,
		}
	}
	return domain.Product{
		ID:                id,
		SellerID:          d.SellerID,
		Name:              d.Name,
		Image:             d.Image,
		Category:          d.Category,
		Subcategory:       d.Subcategory,
		Price:             d.Price,
		Stock:             d.Stock,
		LowStockThreshold: d.LowStockThreshold,
		Rating:            d.Rating,
		NumReviews:        d.NumReviews,
		Reviews:           reviews,
		SellerReviews:     sellerReviews,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
