package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pfirestore "github.com/voltmart/storefront/internal/platform/firestore"
	"github.com/voltmart/storefront/internal/repositories/memory"
	"github.com/voltmart/storefront/internal/services"
)

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrNotFound, http.StatusNotFound, "not_found"},
		{services.ErrUnauthorized, http.StatusUnauthorized, "unauthenticated"},
		{services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("quantity: %w", services.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{services.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{services.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{services.ErrInsufficientCoins, http.StatusConflict, "insufficient_coins"},
		{services.ErrInvalidCoinUsage, http.StatusBadRequest, "invalid_coin_usage"},
		{services.ErrInvalidReferralCode, http.StatusBadRequest, "invalid_referral_code"},
		{services.ErrDuplicateReview, http.StatusConflict, "duplicate_review"},
		{services.ErrNotPurchased, http.StatusForbidden, "not_purchased"},
		{services.ErrNotEligible, http.StatusUnprocessableEntity, "not_eligible"},
		{services.ErrSignatureMismatch, http.StatusBadRequest, "signature_mismatch"},
		{services.ErrConflict, http.StatusConflict, "conflict"},
		{services.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
		{fmt.Errorf("list: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_server_error"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(context.Background(), rr, tc.err)
			assertError(t, rr, tc.status, tc.code)
		})
	}
}

func TestWriteServiceErrorHidesDependencyDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(context.Background(), rr, fmt.Errorf("redis 10.0.0.7:6379 refused: %w", services.ErrUnavailable))

	if strings.Contains(rr.Body.String(), "10.0.0.7") {
		t.Fatalf("expected dependency address hidden, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	writeServiceError(context.Background(), rr, errors.New("firestore: internal pointer 0xc000"))
	if strings.Contains(rr.Body.String(), "0xc000") {
		t.Fatalf("expected internal error hidden, got %s", rr.Body.String())
	}
}

func TestWriteServiceErrorKeepsStorageDetailsPrivate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	coins, err := services.NewCoinAccountService(services.CoinAccountServiceDeps{Users: store.Users(), Ledger: store.Ledger()})
	if err != nil {
		t.Fatalf("coin service: %v", err)
	}
	_, err = coins.Balance(ctx, "usr_internal_42")

	rr := httptest.NewRecorder()
	writeServiceError(ctx, rr, err)
	assertError(t, rr, http.StatusNotFound, "not_found")
	for _, leak := range []string{"usr_internal_42", "users.get"} {
		if strings.Contains(rr.Body.String(), leak) {
			t.Fatalf("expected %q hidden, got %s", leak, rr.Body.String())
		}
	}

	rr = httptest.NewRecorder()
	docPath := "projects/vm-prod/databases/(default)/documents/paymentClaims/gateway_payment:pay_1"
	writeServiceError(ctx, rr, fmt.Errorf("%w: %w", services.ErrConflict, pfirestore.Conflict("orders.claimPayment", docPath)))
	assertError(t, rr, http.StatusConflict, "conflict")
	if strings.Contains(rr.Body.String(), "vm-prod") {
		t.Fatalf("expected document path hidden, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	writeServiceError(ctx, rr, fmt.Errorf("%w: quantity must be at least 1", services.ErrInvalidInput))
	if !strings.Contains(rr.Body.String(), "quantity must be at least 1") {
		t.Fatalf("expected validation message kept, got %s", rr.Body.String())
	}
}

func TestDecodeJSONBodyLimits(t *testing.T) {
	var dst map[string]any
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	if err := decodeJSONBody(req, 16, &dst); !errors.Is(err, errBodyTooLarge) {
		t.Fatalf("expected body too large, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("   "))
	if err := decodeJSONBody(req, 0, &dst); !errors.Is(err, errEmptyBody) {
		t.Fatalf("expected empty body, got %v", err)
	}

	rr := httptest.NewRecorder()
	writeBodyError(context.Background(), rr, errBodyTooLarge)
	assertError(t, rr, http.StatusRequestEntityTooLarge, "payload_too_large")
}
