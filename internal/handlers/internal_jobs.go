package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/platform/httpx"
	"github.com/voltmart/storefront/internal/platform/requestctx"
	"github.com/voltmart/storefront/internal/services"
)

const (
	defaultReconcileBatch = 100
	maxReconcileBatch     = 500
)

// InternalJobHandlers exposes scheduler-triggered maintenance jobs. Routes are expected to sit
// behind OIDC service authentication.
type InternalJobHandlers struct {
	orders       services.OrderService
	defaultBatch int
}

// NewInternalJobHandlers constructs InternalJobHandlers. batch <= 0 falls back to the default.
func NewInternalJobHandlers(orders services.OrderService, batch int) *InternalJobHandlers {
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &InternalJobHandlers{orders: orders, defaultBatch: min(batch, maxReconcileBatch)}
}

// Routes registers the /jobs endpoints relative to the internal mount point.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	r.Post("/jobs/delivery-bonuses:reconcile", h.reconcileDeliveryBonuses)
}

type reconcileResponse struct {
	Scanned  int `json:"scanned"`
	Credited int `json:"credited"`
	Failed   int `json:"failed"`
}

func (h *InternalJobHandlers) reconcileDeliveryBonuses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}

	limit := h.defaultBatch
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(parsed, maxReconcileBatch)
	}

	result, err := h.orders.ReconcileDeliveryBonuses(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	fields := []zap.Field{
		zap.Int("scanned", result.Scanned),
		zap.Int("credited", result.Credited),
		zap.Int("failed", result.Failed),
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok {
		fields = append(fields, zap.String("caller", svc.Email))
	}
	requestctx.Logger(ctx).Info("delivery bonus reconcile finished", fields...)

	writeJSONResponse(w, http.StatusOK, reconcileResponse(result))
}
