package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/services"
)

func TestRecorderCountsDomainEvents(t *testing.T) {
	r, err := NewRecorder()
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	r.OrderTransition(domain.OrderStatusShipped, domain.OrderStatusDelivered)
	r.OrderTransition(domain.OrderStatusShipped, domain.OrderStatusDelivered)
	r.StockReservationFailed("insufficient")
	r.CoinsMoved(domain.CoinSourceOrderDelivery, domain.CoinTransactionBonus, 500)
	r.CoinsMoved(domain.CoinSourceOrderRedemption, domain.CoinTransactionRedeemed, -100_000)
	r.DanglingProductsRepaired(2)
	r.DanglingProductsRepaired(0)
	r.NotificationFailed(services.NotificationOrderConfirmation)

	if got := testutil.ToFloat64(r.orderTransitions.WithLabelValues("shipped", "delivered")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(r.stockFailures.WithLabelValues("insufficient")); got != 1 {
		t.Fatalf("expected 1 stock failure, got %v", got)
	}
	if got := testutil.ToFloat64(r.coinsMoved.WithLabelValues(string(domain.CoinSourceOrderRedemption), string(domain.CoinTransactionRedeemed))); got != 100_000 {
		t.Fatalf("expected redeemed coins counted as magnitude, got %v", got)
	}
	if got := testutil.ToFloat64(r.danglingRepairs); got != 2 {
		t.Fatalf("expected 2 repairs, got %v", got)
	}
	if got := testutil.ToFloat64(r.notificationErrors.WithLabelValues("order_confirmation")); got != 1 {
		t.Fatalf("expected 1 notification failure, got %v", got)
	}
}

func TestRecorderHandlerServesMetrics(t *testing.T) {
	r, err := NewRecorder()
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r.StockReservationFailed("not_found")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `storefront_stock_reservation_failures_total{reason="not_found"} 1`) {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}

func TestRecorderObservesVerifications(t *testing.T) {
	r, err := NewRecorder()
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r.RecordVerification("oidc", true, "ok", 20*time.Millisecond)
	r.RecordVerification("oidc", false, "token_invalid", time.Millisecond)

	if got := testutil.CollectAndCount(r.verifications); got != 2 {
		t.Fatalf("expected 2 series, got %d", got)
	}
}
