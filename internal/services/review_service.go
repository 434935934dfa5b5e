package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

const (
	defaultReviewBonus     int64 = 100
	maxReviewCommentLength       = 2000
	maxReviewerNameLength        = 80
)

// ReviewServiceDeps bundles collaborators for review submission.
type ReviewServiceDeps struct {
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Users       repositories.UserRepository
	Coins       CoinAccountService
	UnitOfWork  repositories.UnitOfWork
	ReviewBonus int64
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	products   repositories.ProductRepository
	orders     repositories.OrderRepository
	users      repositories.UserRepository
	coins      CoinAccountService
	unitOfWork repositories.UnitOfWork
	bonus      int64
	clock      func() time.Time
	logger     serviceLogger
	policy     *bluemonday.Policy
}

// NewReviewService constructs the review service.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.Coins == nil {
		return nil, errors.New("review service: coin account service is required")
	}
	bonus := deps.ReviewBonus
	if bonus < 0 {
		return nil, errors.New("review service: review bonus must not be negative")
	}
	if bonus == 0 {
		bonus = defaultReviewBonus
	}
	return &reviewService{
		products:   deps.Products,
		orders:     deps.Orders,
		users:      deps.Users,
		coins:      deps.Coins,
		unitOfWork: orNoopUnit(deps.UnitOfWork),
		bonus:      bonus,
		clock:      utcClock(deps.Clock),
		logger:     orNoopLogger(deps.Logger),
		policy:     bluemonday.StrictPolicy(),
	}, nil
}

func (s *reviewService) SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	userID := strings.TrimSpace(cmd.UserID)
	if productID == "" || userID == "" {
		return Product{}, fmt.Errorf("%w: product id and user id are required", ErrInvalidInput)
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Product{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	comment, err := s.sanitizeComment(cmd.Comment)
	if err != nil {
		return Product{}, err
	}
	name := s.sanitizeLine(cmd.Name)
	if name == "" && s.users != nil {
		if user, err := s.users.FindByID(ctx, userID); err == nil {
			name = user.Name
		}
	}
	if utf8.RuneCountInString(name) > maxReviewerNameLength {
		name = string([]rune(name)[:maxReviewerNameLength])
	}

	if _, err := s.orders.FindDeliveredPurchase(ctx, userID, productID); err != nil {
		if isNotFound(err) {
			return Product{}, fmt.Errorf("%w: no delivered order contains product %s", ErrNotPurchased, productID)
		}
		return Product{}, mapRepositoryError(err)
	}

	review := Review{
		UserID:    userID,
		Name:      name,
		Rating:    cmd.Rating,
		Comment:   comment,
		CreatedAt: s.clock(),
	}

	var product Product
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.products.AppendReview(txCtx, productID, review)
		if err != nil {
			return mapReviewError(err)
		}
		product = updated
		_, err = s.coins.Credit(txCtx, CoinEntryCommand{
			UserID:    userID,
			Type:      domain.CoinTransactionBonus,
			Amount:    s.bonus,
			Source:    domain.CoinSourceReview,
			Reference: domain.ProductRef(productID),
			Metadata:  map[string]any{"rating": cmd.Rating},
		})
		return err
	})
	if err != nil {
		return Product{}, mapError(err)
	}

	s.logger(ctx, "review.submitted", map[string]any{
		"productId": productID,
		"userId":    userID,
		"rating":    cmd.Rating,
	})
	return product, nil
}

func (s *reviewService) SubmitSellerReview(ctx context.Context, cmd SubmitSellerReviewCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	sellerID := strings.TrimSpace(cmd.SellerID)
	customerID := strings.TrimSpace(cmd.CustomerID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if productID == "" || sellerID == "" || customerID == "" || orderID == "" {
		return Product{}, fmt.Errorf("%w: product, seller, customer and order ids are required", ErrInvalidInput)
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Product{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	comment, err := s.sanitizeComment(cmd.Comment)
	if err != nil {
		return Product{}, err
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}
	if product.SellerID != sellerID {
		return Product{}, fmt.Errorf("%w: product belongs to another seller", ErrForbidden)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return Product{}, fmt.Errorf("%w: order %s not found", ErrNotPurchased, orderID)
		}
		return Product{}, mapRepositoryError(err)
	}
	if order.UserID != customerID || !order.IsDelivered || !order.ContainsProduct(productID) {
		return Product{}, fmt.Errorf("%w: customer has no delivered order with the product", ErrNotPurchased)
	}

	updated, err := s.products.AppendSellerReview(ctx, productID, SellerReview{
		SellerID:   sellerID,
		CustomerID: customerID,
		OrderID:    orderID,
		Rating:     cmd.Rating,
		Comment:    comment,
		CreatedAt:  s.clock(),
	})
	if err != nil {
		return Product{}, mapReviewError(err)
	}
	return updated, nil
}

// sanitizeComment strips markup, normalizes to NFC and collapses whitespace.
func (s *reviewService) sanitizeComment(input string) (string, error) {
	cleaned := html.UnescapeString(s.policy.Sanitize(input))
	cleaned = norm.NFC.String(cleaned)
	cleaned = strings.ReplaceAll(strings.ReplaceAll(cleaned, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	cleaned = strings.TrimSpace(strings.Join(lines, "\n"))
	if cleaned == "" {
		return "", fmt.Errorf("%w: comment is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(cleaned) > maxReviewCommentLength {
		return "", fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidInput, maxReviewCommentLength)
	}
	return cleaned, nil
}

func (s *reviewService) sanitizeLine(input string) string {
	return strings.Join(strings.Fields(norm.NFC.String(html.UnescapeString(s.policy.Sanitize(input)))), " ")
}

func mapReviewError(err error) error {
	if isConflict(err) {
		return fmt.Errorf("%w: %w", ErrDuplicateReview, err)
	}
	return mapRepositoryError(err)
}
