package services

import (
	"context"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

type serviceLogger = func(ctx context.Context, event string, fields map[string]any)

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type noopMetrics struct{}

func (noopMetrics) OrderTransition(OrderStatus, OrderStatus) {}
func (noopMetrics) StockReservationFailed(string) {}
func (noopMetrics) CoinsMoved(domain.CoinSource, domain.CoinTransactionType, int64) {}
func (noopMetrics) DanglingProductsRepaired(int) {}
func (noopMetrics) NotificationFailed(NotificationKind) {}

func orNoopUnit(unit repositories.UnitOfWork) repositories.UnitOfWork {
	if unit == nil {
		return noopUnitOfWork{}
	}
	return unit
}

func orNoopMetrics(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

func orNoopLogger(logger serviceLogger) serviceLogger {
	if logger == nil {
		return func(context.Context, string, map[string]any) {}
	}
	return logger
}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time {
		return clock().UTC()
	}
}

func ulidGenerator(idGen func() string) func() string {
	if idGen != nil {
		return idGen
	}
	return func() string {
		return ulid.Make().String()
	}
}

func cloneMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func valuePtr[T any](v T) *T {
	return &v
}
