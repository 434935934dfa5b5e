package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voltmart/storefront/internal/notifications"
	"github.com/voltmart/storefront/internal/payments"
	"github.com/voltmart/storefront/internal/platform/config"
	"github.com/voltmart/storefront/internal/platform/observability"
	"github.com/voltmart/storefront/internal/repositories"
	"github.com/voltmart/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders    services.OrderService
	Returns   services.ReturnService
	Reviews   services.ReviewService
	Coins     services.CoinAccountService
	Referrals services.ReferralEngine
	Stock     services.StockManager
	Alerts    services.InventoryAlertService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	closers []func(context.Context) error
}

// Option overrides collaborators that would otherwise be derived from configuration.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	clock    func() time.Time
	events   services.OrderEventPublisher
	notifier services.Notifier
	payments services.PaymentVerifier
	metrics  services.Metrics
	closers  []func(context.Context) error
}

// WithLogger sets the base logger; each service logs under its own name.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source for every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithEventPublisher publishes order and return events. Without it events are dropped.
func WithEventPublisher(events services.OrderEventPublisher) Option {
	return func(o *options) {
		o.events = events
	}
}

// WithNotifier replaces the default log-only notifier.
func WithNotifier(notifier services.Notifier) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

// WithPaymentVerifier replaces the verifier built from the configured signing secret.
func WithPaymentVerifier(verifier services.PaymentVerifier) Option {
	return func(o *options) {
		o.payments = verifier
	}
}

// WithMetrics records domain counters.
func WithMetrics(metrics services.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithCloser registers a cleanup hook run by Close after the repositories are closed.
func WithCloser(fn func(context.Context) error) Option {
	return func(o *options) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore registry,
// tests and local runs can supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.payments == nil {
		verifier, err := payments.NewSignatureVerifier(cfg.Payments.SigningSecret)
		if err != nil {
			return nil, fmt.Errorf("build payment verifier: %w", err)
		}
		o.payments = verifier
	}
	if o.notifier == nil {
		o.notifier = notifications.NewLogNotifier(o.logger.Named("notifications"))
	}

	svc, err := buildServices(ctx, reg, cfg, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		closers:      o.closers,
	}, nil
}

// Close releases the repository clients and any registered publishers.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fn := range c.closers {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, o options) (Services, error) {
	var svc Services
	logFor := func(name string) observability.EventLogger {
		return observability.ServiceLogger(o.logger.Named(name))
	}

	coins, err := services.NewCoinAccountService(services.CoinAccountServiceDeps{
		Users:   reg.Users(),
		Ledger:  reg.Ledger(),
		Clock:   o.clock,
		Metrics: o.metrics,
		Logger:  logFor("coins"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coin account service: %w", err)
	}
	svc.Coins = coins

	alerts, err := services.NewInventoryAlertService(services.InventoryAlertServiceDeps{
		Alerts:           reg.InventoryAlerts(),
		Products:         reg.Products(),
		UnitOfWork:       reg,
		Clock:            o.clock,
		Logger:           logFor("inventory_alerts"),
		DefaultThreshold: cfg.Orders.LowStockThreshold,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory alert service: %w", err)
	}
	svc.Alerts = alerts

	stock, err := services.NewStockManager(services.StockManagerDeps{
		Products: reg.Products(),
		Alerts:   alerts,
		Metrics:  o.metrics,
		Logger:   logFor("stock"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock manager: %w", err)
	}
	svc.Stock = stock

	referrals, err := services.NewReferralEngine(services.ReferralEngineDeps{
		Users:        reg.Users(),
		Referrals:    reg.Referrals(),
		Coins:        coins,
		UnitOfWork:   reg,
		SignupReward: cfg.Coins.SignupReward,
		OrderReward:  cfg.Coins.OrderReward,
		Clock:        o.clock,
		Logger:       logFor("referrals"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build referral engine: %w", err)
	}
	svc.Referrals = referrals

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Stock:      stock,
		Coins:      coins,
		Referrals:  referrals,
		Alerts:     alerts,
		Payments:   o.payments,
		Notifier:   o.notifier,
		Events:     o.events,
		Metrics:    o.metrics,
		UnitOfWork: reg,
		Pricing: services.PricingConfig{
			TaxRateBps:            cfg.Orders.TaxRateBps,
			FreeShippingThreshold: cfg.Orders.FreeShippingThreshold,
			ShippingFee:           cfg.Orders.ShippingFee,
		},
		DeliveryBonus: cfg.Coins.DeliveryBonus,
		Clock:         o.clock,
		Logger:        logFor("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	returns, err := services.NewReturnService(services.ReturnServiceDeps{
		Orders:       reg.Orders(),
		Returns:      reg.Returns(),
		Coins:        coins,
		UnitOfWork:   reg,
		ReturnWindow: cfg.Orders.ReturnWindow,
		Clock:        o.clock,
		Events:       o.events,
		Logger:       logFor("returns"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}
	svc.Returns = returns

	reviews, err := services.NewReviewService(services.ReviewServiceDeps{
		Products:    reg.Products(),
		Orders:      reg.Orders(),
		Users:       reg.Users(),
		Coins:       coins,
		UnitOfWork:  reg,
		ReviewBonus: cfg.Coins.ReviewBonus,
		Clock:       o.clock,
		Logger:      logFor("reviews"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviews

	return svc, nil
}
