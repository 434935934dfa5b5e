package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/services"
)

const namespace = "storefront"

// Recorder exports order, stock and coin metrics to Prometheus.
type Recorder struct {
	registry *prometheus.Registry

	orderTransitions   *prometheus.CounterVec
	stockFailures      *prometheus.CounterVec
	coinsMoved         *prometheus.CounterVec
	coinEntries        *prometheus.CounterVec
	danglingRepairs    prometheus.Counter
	notificationErrors *prometheus.CounterVec
	verifications      *prometheus.HistogramVec
}

var _ services.Metrics = (*Recorder)(nil)

// NewRecorder registers the collectors on a dedicated registry together with the Go runtime
// and process collectors.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions by source and target status.",
		}, []string{"from", "to"}),
		stockFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "reservation_failures_total",
			Help:      "Failed stock reservations by reason.",
		}, []string{"reason"}),
		coinsMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coins",
			Name:      "moved_total",
			Help:      "Coins written to the ledger by source and transaction type.",
		}, []string{"source", "type"}),
		coinEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coins",
			Name:      "ledger_entries_total",
			Help:      "Ledger entries applied by source and transaction type.",
		}, []string{"source", "type"}),
		danglingRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "dangling_products_repaired_total",
			Help:      "Order lines whose product reference was cleared because the product no longer exists.",
		}),
		notificationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "failures_total",
			Help:      "Notification dispatch failures by kind.",
		}, []string{"kind"}),
		verifications: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "verification_duration_seconds",
			Help:      "Token verification latency by kind and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "outcome", "reason"}),
	}

	for _, c := range []prometheus.Collector{
		r.orderTransitions,
		r.stockFailures,
		r.coinsMoved,
		r.coinEntries,
		r.danglingRepairs,
		r.notificationErrors,
		r.verifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := r.registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}
	return r, nil
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) OrderTransition(from, to services.OrderStatus) {
	r.orderTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (r *Recorder) StockReservationFailed(reason string) {
	r.stockFailures.WithLabelValues(reason).Inc()
}

func (r *Recorder) CoinsMoved(source domain.CoinSource, txType domain.CoinTransactionType, amount int64) {
	if amount < 0 {
		amount = -amount
	}
	r.coinsMoved.WithLabelValues(string(source), string(txType)).Add(float64(amount))
	r.coinEntries.WithLabelValues(string(source), string(txType)).Inc()
}

func (r *Recorder) DanglingProductsRepaired(count int) {
	if count > 0 {
		r.danglingRepairs.Add(float64(count))
	}
}

func (r *Recorder) NotificationFailed(kind services.NotificationKind) {
	r.notificationErrors.WithLabelValues(string(kind)).Inc()
}

// RecordVerification observes a token verification attempt.
func (r *Recorder) RecordVerification(kind string, success bool, reason string, duration time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.verifications.WithLabelValues(kind, outcome, reason).Observe(duration.Seconds())
}
