package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/services"
)

const maxReviewBodySize = 8 * 1024

// ReviewHandlers accepts product reviews and seller reviews of customers.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs ReviewHandlers.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{authn: authn, reviews: reviews}
}

// Routes registers the review endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authn.RequireFirebaseAuth())
		r.Post("/products/{productID}/reviews", h.submitReview)
		r.With(auth.RequireRole(domain.RoleSeller, domain.RoleAdmin)).
			Post("/seller/products/{productID}/customer-reviews", h.submitSellerReview)
	})
}

type submitReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type submitSellerReviewRequest struct {
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req submitReviewRequest
	if err := decodeJSONBody(r, maxReviewBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.reviews.SubmitReview(ctx, services.SubmitReviewCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		UserID:    identity.UID,
		Name:      identity.Name,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *ReviewHandlers) submitSellerReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req submitSellerReviewRequest
	if err := decodeJSONBody(r, maxReviewBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.reviews.SubmitSellerReview(ctx, services.SubmitSellerReviewCommand{
		ProductID:  strings.TrimSpace(chi.URLParam(r, "productID")),
		SellerID:   identity.UID,
		CustomerID: strings.TrimSpace(req.CustomerID),
		OrderID:    strings.TrimSpace(req.OrderID),
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}
