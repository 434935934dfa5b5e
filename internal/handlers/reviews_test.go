package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/voltmart/storefront/internal/services"
)

func TestReviewHandlersSubmitReview(t *testing.T) {
	var captured services.SubmitReviewCommand
	svc := &stubReviewService{
		reviewFn: func(_ context.Context, cmd services.SubmitReviewCommand) (services.Product, error) {
			captured = cmd
			return services.Product{ID: cmd.ProductID, Rating: 4.5, NumReviews: 2}, nil
		},
	}
	router := newTestRouter(NewReviewHandlers(newTestAuthenticator(), svc).Routes)

	rr := doRequest(t, router, http.MethodPost, "/products/prod-earbuds/reviews", customerToken, map[string]any{
		"rating": 5, "comment": "crisp sound",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.Name != "Asha Rao" || captured.Rating != 5 {
		t.Fatalf("unexpected command %+v", captured)
	}
	product := decodeBody(t, rr)["product"].(map[string]any)
	if product["num_reviews"].(float64) != 2 {
		t.Fatalf("unexpected product payload %v", product)
	}
}

func TestReviewHandlersSubmitReviewErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "duplicate", err: services.ErrDuplicateReview, status: http.StatusConflict, code: "duplicate_review"},
		{name: "not purchased", err: services.ErrNotPurchased, status: http.StatusForbidden, code: "not_purchased"},
		{name: "bad rating", err: services.ErrInvalidInput, status: http.StatusBadRequest, code: "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubReviewService{
				reviewFn: func(context.Context, services.SubmitReviewCommand) (services.Product, error) {
					return services.Product{}, tc.err
				},
			}
			router := newTestRouter(NewReviewHandlers(newTestAuthenticator(), svc).Routes)
			rr := doRequest(t, router, http.MethodPost, "/products/prod-earbuds/reviews", customerToken, map[string]any{"rating": 4})
			assertError(t, rr, tc.status, tc.code)
		})
	}
}

func TestReviewHandlersSellerReviewRequiresSeller(t *testing.T) {
	var captured services.SubmitSellerReviewCommand
	svc := &stubReviewService{
		sellerReviewFn: func(_ context.Context, cmd services.SubmitSellerReviewCommand) (services.Product, error) {
			captured = cmd
			return services.Product{ID: cmd.ProductID}, nil
		},
	}
	router := newTestRouter(NewReviewHandlers(newTestAuthenticator(), svc).Routes)
	body := map[string]any{"customer_id": "user-1", "order_id": "ord-1", "rating": 5, "comment": "prompt payment"}

	assertError(t, doRequest(t, router, http.MethodPost, "/seller/products/prod-earbuds/customer-reviews", customerToken, body),
		http.StatusForbidden, "forbidden")

	rr := doRequest(t, router, http.MethodPost, "/seller/products/prod-earbuds/customer-reviews", sellerToken, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SellerID != "seller-1" || captured.CustomerID != "user-1" || captured.OrderID != "ord-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}
