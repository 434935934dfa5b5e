package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/platform/httpx"
	"github.com/voltmart/storefront/internal/services"
)

const maxAlertListLimit = 200

// InventoryHandlers exposes seller stock management and inventory alerts.
type InventoryHandlers struct {
	authn  *auth.Authenticator
	stock  services.StockManager
	alerts services.InventoryAlertService
}

// NewInventoryHandlers constructs InventoryHandlers.
func NewInventoryHandlers(authn *auth.Authenticator, stock services.StockManager, alerts services.InventoryAlertService) *InventoryHandlers {
	return &InventoryHandlers{authn: authn, stock: stock, alerts: alerts}
}

// Routes registers the /seller stock and alert endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authn.RequireFirebaseAuth(domain.RoleSeller, domain.RoleAdmin))
		r.Put("/seller/products/{productID}/stock", h.setStock)
		r.Get("/seller/inventory-alerts", h.listAlerts)
		r.Post("/seller/inventory-alerts", h.createAlert)
		r.Post("/seller/inventory-alerts/{alertID}:resolve", h.resolveAlert)
		r.Post("/seller/inventory-alerts/{alertID}:read", h.markRead)
	})
}

type setStockRequest struct {
	Stock *int `json:"stock"`
}

type createAlertRequest struct {
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
}

type alertResponse struct {
	Alert inventoryAlertPayload `json:"alert"`
}

func (h *InventoryHandlers) setStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		serviceUnavailable(ctx, w, "stock")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req setStockRequest
	if err := decodeJSONBody(r, 0, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "stock is required", http.StatusBadRequest))
		return
	}

	product, err := h.stock.SetStock(ctx, services.SetStockCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		Stock:     *req.Stock,
		Actor:     identity.Actor(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *InventoryHandlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.alerts == nil {
		serviceUnavailable(ctx, w, "inventory alert")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := services.ListAlertsQuery{SellerID: identity.UID}
	values := r.URL.Query()
	if raw := strings.TrimSpace(values.Get("unresolved")); raw != "" {
		unresolved, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "unresolved must be a boolean", http.StatusBadRequest))
			return
		}
		query.Unresolved = unresolved
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		query.Limit = min(limit, maxAlertListLimit)
	}
	// Admins may inspect another seller's alerts.
	if seller := strings.TrimSpace(values.Get("seller_id")); seller != "" && identity.Actor().IsAdmin() {
		query.SellerID = seller
	}

	alerts, err := h.alerts.List(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]inventoryAlertPayload, 0, len(alerts))
	for _, alert := range alerts {
		items = append(items, buildInventoryAlertPayload(alert))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *InventoryHandlers) createAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.alerts == nil {
		serviceUnavailable(ctx, w, "inventory alert")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createAlertRequest
	if err := decodeJSONBody(r, 0, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	alert, err := h.alerts.Create(ctx, services.CreateAlertCommand{
		ProductID: strings.TrimSpace(req.ProductID),
		Message:   strings.TrimSpace(req.Message),
		Actor:     identity.Actor(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, alertResponse{Alert: buildInventoryAlertPayload(alert)})
}

func (h *InventoryHandlers) resolveAlert(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		serviceUnavailable(r.Context(), w, "inventory alert")
		return
	}
	h.alertAction(w, r, h.alerts.Resolve)
}

func (h *InventoryHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		serviceUnavailable(r.Context(), w, "inventory alert")
		return
	}
	h.alertAction(w, r, h.alerts.MarkRead)
}

func (h *InventoryHandlers) alertAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, alertID string, actor services.Actor) (services.InventoryAlert, error)) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	alert, err := action(ctx, strings.TrimSpace(chi.URLParam(r, "alertID")), identity.Actor())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, alertResponse{Alert: buildInventoryAlertPayload(alert)})
}
