package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/platform/pagination"
	"github.com/voltmart/storefront/internal/services"
)

var coinHistoryOptions = pagination.Options{DefaultPageSize: 20, MaxPageSize: 100}

// CoinHandlers exposes coin balances, ledger history and discount quotes.
type CoinHandlers struct {
	authn *auth.Authenticator
	coins services.CoinAccountService
}

// NewCoinHandlers constructs CoinHandlers.
func NewCoinHandlers(authn *auth.Authenticator, coins services.CoinAccountService) *CoinHandlers {
	return &CoinHandlers{authn: authn, coins: coins}
}

// Routes registers /coins and the admin ledger audit.
func (h *CoinHandlers) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authn.RequireFirebaseAuth())
		r.Get("/coins", h.balance)
		r.Get("/coins/transactions", h.history)
		r.Post("/coins:calculateDiscount", h.calculateDiscount)
		r.With(auth.RequireRole(domain.RoleAdmin)).Get("/admin/users/{userID}/coins:audit", h.audit)
	})
}

type coinBalanceResponse struct {
	Coins         int64 `json:"coins"`
	TotalEarned   int64 `json:"total_earned"`
	TotalRedeemed int64 `json:"total_redeemed"`
	MaxDiscount   int64 `json:"max_discount"`
}

type coinHistoryResponse struct {
	Items         []coinTransactionPayload `json:"items"`
	NextPageToken string                   `json:"next_page_token,omitempty"`
}

type calculateDiscountRequest struct {
	RequestedDiscount int64 `json:"requested_discount"`
}

type discountQuoteResponse struct {
	MaxDiscount       int64 `json:"max_discount"`
	RequestedDiscount int64 `json:"requested_discount"`
	CoinsRequired     int64 `json:"coins_required"`
	CanApply          bool  `json:"can_apply"`
}

type ledgerAuditResponse struct {
	UserID    string `json:"user_id"`
	Coins     int64  `json:"coins"`
	LedgerSum int64  `json:"ledger_sum"`
	Drift     int64  `json:"drift"`
}

func (h *CoinHandlers) balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coins == nil {
		serviceUnavailable(ctx, w, "coin")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	balance, err := h.coins.Balance(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, coinBalanceResponse(balance))
}

func (h *CoinHandlers) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coins == nil {
		serviceUnavailable(ctx, w, "coin")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	params, ok := parsePaging(ctx, w, r, coinHistoryOptions)
	if !ok {
		return
	}

	page, err := h.coins.History(ctx, services.CoinHistoryQuery{
		UserID:    identity.UID,
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := coinHistoryResponse{Items: make([]coinTransactionPayload, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, tx := range page.Items {
		resp.Items = append(resp.Items, buildCoinTransactionPayload(tx))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CoinHandlers) calculateDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coins == nil {
		serviceUnavailable(ctx, w, "coin")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req calculateDiscountRequest
	if err := decodeJSONBody(r, 0, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	quote, err := h.coins.CalculateDiscount(ctx, identity.UID, req.RequestedDiscount)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, discountQuoteResponse(quote))
}

func (h *CoinHandlers) audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coins == nil {
		serviceUnavailable(ctx, w, "coin")
		return
	}
	audit, err := h.coins.Reconcile(ctx, strings.TrimSpace(chi.URLParam(r, "userID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, ledgerAuditResponse(audit))
}
