package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/voltmart/storefront/internal/platform/httpx"
	"github.com/voltmart/storefront/internal/platform/requestctx"
	"github.com/voltmart/storefront/internal/repositories"
	"github.com/voltmart/storefront/internal/services"
)

type errorMapping struct {
	target  error
	code    string
	status  int
	message string
}

// Checked in order; the first sentinel matched by errors.Is wins. message replaces the error text
// when the failure came out of the persistence layer.
var serviceErrorMappings = []errorMapping{
	{services.ErrNotFound, "not_found", http.StatusNotFound, "resource not found"},
	{services.ErrUnauthorized, "unauthenticated", http.StatusUnauthorized, "authentication required"},
	{services.ErrForbidden, "forbidden", http.StatusForbidden, "access denied"},
	{services.ErrInvalidInput, "invalid_input", http.StatusBadRequest, "invalid request"},
	{services.ErrInvalidTransition, "invalid_transition", http.StatusConflict, "status change not allowed"},
	{services.ErrInsufficientStock, "insufficient_stock", http.StatusConflict, "insufficient stock for one or more items"},
	{services.ErrInsufficientCoins, "insufficient_coins", http.StatusConflict, "insufficient coin balance"},
	{services.ErrInvalidCoinUsage, "invalid_coin_usage", http.StatusBadRequest, "invalid coin usage"},
	{services.ErrInvalidReferralCode, "invalid_referral_code", http.StatusBadRequest, "invalid referral code"},
	{services.ErrDuplicateReview, "duplicate_review", http.StatusConflict, "product already reviewed"},
	{services.ErrNotPurchased, "not_purchased", http.StatusForbidden, "product not purchased"},
	{services.ErrNotEligible, "not_eligible", http.StatusUnprocessableEntity, "not eligible"},
	{services.ErrSignatureMismatch, "signature_mismatch", http.StatusBadRequest, "payment signature mismatch"},
	{services.ErrConflict, "conflict", http.StatusConflict, "request conflicts with current state"},
	{services.ErrUnavailable, "unavailable", http.StatusServiceUnavailable, "dependency temporarily unavailable"},
}

// writeServiceError translates service sentinels into the JSON error envelope. Messages written
// by the services are passed through; persistence failures and 5xx answers get the fixed text of
// their mapping. Unclassified errors are logged and reported as internal_server_error.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range serviceErrorMappings {
		if errors.Is(err, m.target) {
			message := err.Error()
			if m.status >= http.StatusInternalServerError || fromStorage(err) {
				message = m.message
			}
			httpx.WriteError(ctx, w, httpx.NewError(m.code, message, m.status))
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusServiceUnavailable))
		return
	}
	requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
}

// fromStorage reports whether err carries a repository error, whose text names collections,
// document paths and stored ids.
func fromStorage(err error) bool {
	var (
		repoErr   repositories.RepositoryError
		stockErr  *repositories.StockError
		ledgerErr *repositories.LedgerError
	)
	return errors.As(err, &repoErr) || errors.As(err, &stockErr) || errors.As(err, &ledgerErr)
}
