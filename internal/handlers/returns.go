package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/services"
)

const maxReturnBodySize = 16 * 1024

// ReturnHandlers exposes customer return requests and the admin review of them.
type ReturnHandlers struct {
	authn   *auth.Authenticator
	returns services.ReturnService
}

// NewReturnHandlers constructs ReturnHandlers.
func NewReturnHandlers(authn *auth.Authenticator, returns services.ReturnService) *ReturnHandlers {
	return &ReturnHandlers{authn: authn, returns: returns}
}

// Routes registers /returns and /admin/returns.
func (h *ReturnHandlers) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authn.RequireFirebaseAuth())
		r.Post("/returns", h.requestReturn)
		r.Get("/returns", h.listReturns)
		r.Get("/returns/{returnID}", h.getReturn)
		r.With(auth.RequireRole(domain.RoleAdmin)).Put("/admin/returns/{returnID}/status", h.updateStatus)
	})
}

type requestReturnRequest struct {
	OrderID string `json:"order_id"`
	Items   []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
		Reason    string `json:"reason"`
		Condition string `json:"condition"`
	} `json:"items"`
	Reason string `json:"reason"`
	Type   string `json:"type"`
}

type returnResponse struct {
	Return returnPayload `json:"return"`
}

func (h *ReturnHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		serviceUnavailable(ctx, w, "return")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req requestReturnRequest
	if err := decodeJSONBody(r, maxReturnBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.RequestReturnCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		UserID:  identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
		Type:    domain.ReturnType(strings.ToLower(strings.TrimSpace(req.Type))),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.RequestReturnItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			Reason:    strings.TrimSpace(item.Reason),
			Condition: strings.TrimSpace(item.Condition),
		})
	}

	ret, err := h.returns.RequestReturn(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, returnResponse{Return: buildReturnPayload(ret)})
}

func (h *ReturnHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		serviceUnavailable(ctx, w, "return")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	returns, err := h.returns.ListReturns(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]returnPayload, 0, len(returns))
	for _, ret := range returns {
		items = append(items, buildReturnPayload(ret))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ReturnHandlers) getReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		serviceUnavailable(ctx, w, "return")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	ret, err := h.returns.GetReturn(ctx, services.GetReturnQuery{
		ReturnID: strings.TrimSpace(chi.URLParam(r, "returnID")),
		Actor:    identity.Actor(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, returnResponse{Return: buildReturnPayload(ret)})
}

type updateReturnStatusRequest struct {
	Status       string `json:"status"`
	AdminNotes   string `json:"admin_notes"`
	RefundAmount *int64 `json:"refund_amount"`
}

func (h *ReturnHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		serviceUnavailable(ctx, w, "return")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req updateReturnStatusRequest
	if err := decodeJSONBody(r, maxReturnBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	ret, err := h.returns.UpdateReturnStatus(ctx, services.UpdateReturnStatusCommand{
		ReturnID:     strings.TrimSpace(chi.URLParam(r, "returnID")),
		Status:       domain.ReturnStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		AdminNotes:   strings.TrimSpace(req.AdminNotes),
		RefundAmount: req.RefundAmount,
		Actor:        identity.Actor(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, returnResponse{Return: buildReturnPayload(ret)})
}
