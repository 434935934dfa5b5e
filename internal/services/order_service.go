package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

const (
	orderEventPlaced        = "order.placed"
	orderEventStatusChanged = "order.status_changed"
	orderEventCancelled     = "order.cancelled"
	orderEventPaid          = "order.paid"

	orderIDPrefix = "ord_"

	defaultTaxRateBps            int64 = 1800
	defaultFreeShippingThreshold int64 = 50_000
	defaultShippingFee           int64 = 99
	defaultDeliveryBonus         int64 = 500
	defaultReconcileLimit              = 100
	maxDeliveryBonusAttempts           = 5

	paymentStatusCreated  = "created"
	paymentStatusCaptured = "captured"

	gatewayOrderRefPrefix   = "gateway_order:"
	gatewayPaymentRefPrefix = "gateway_payment:"
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPlaced:     {domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

var orderIdempotencyNamespace = uuid.MustParse("3c1d9a52-7e0b-5f4a-8d26-b4e9c0f17a83")

// PricingConfig configures the checkout price breakdown.
type PricingConfig struct {
	TaxRateBps            int64
	FreeShippingThreshold int64
	ShippingFee           int64
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Products      repositories.ProductRepository
	Stock         StockManager
	Coins         CoinAccountService
	Referrals     ReferralEngine
	Alerts        InventoryAlertService
	Payments      PaymentVerifier
	Notifier      Notifier
	Events        OrderEventPublisher
	Metrics       Metrics
	UnitOfWork    repositories.UnitOfWork
	Pricing       PricingConfig
	DeliveryBonus int64
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	stock         StockManager
	coins         CoinAccountService
	referrals     ReferralEngine
	alerts        InventoryAlertService
	payments      PaymentVerifier
	notifier      Notifier
	events        OrderEventPublisher
	metrics       Metrics
	unitOfWork    repositories.UnitOfWork
	pricing       PricingConfig
	deliveryBonus int64
	clock         func() time.Time
	newID         func() string
	logger        serviceLogger
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock manager is required")
	}
	if deps.Coins == nil {
		return nil, errors.New("order service: coin account service is required")
	}
	if deps.DeliveryBonus < 0 {
		return nil, errors.New("order service: delivery bonus must not be negative")
	}

	pricing := deps.Pricing
	if pricing.TaxRateBps <= 0 {
		pricing.TaxRateBps = defaultTaxRateBps
	}
	if pricing.FreeShippingThreshold <= 0 {
		pricing.FreeShippingThreshold = defaultFreeShippingThreshold
	}
	if pricing.ShippingFee < 0 {
		pricing.ShippingFee = 0
	} else if pricing.ShippingFee == 0 {
		pricing.ShippingFee = defaultShippingFee
	}
	bonus := deps.DeliveryBonus
	if bonus == 0 {
		bonus = defaultDeliveryBonus
	}

	return &orderService{
		orders:        deps.Orders,
		products:      deps.Products,
		stock:         deps.Stock,
		coins:         deps.Coins,
		referrals:     deps.Referrals,
		alerts:        deps.Alerts,
		payments:      deps.Payments,
		notifier:      deps.Notifier,
		events:        deps.Events,
		metrics:       orNoopMetrics(deps.Metrics),
		unitOfWork:    orNoopUnit(deps.UnitOfWork),
		pricing:       pricing,
		deliveryBonus: bonus,
		clock:         utcClock(deps.Clock),
		newID:         ulidGenerator(deps.IDGenerator),
		logger:        orNoopLogger(deps.Logger),
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	lines, err := mergeOrderLines(cmd.Items)
	if err != nil {
		return Order{}, err
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodRazorpay, domain.PaymentMethodCOD:
	default:
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, cmd.PaymentMethod)
	}
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	if cmd.PaymentMethod == domain.PaymentMethodRazorpay && providerOrderID == "" {
		return Order{}, fmt.Errorf("%w: gateway order id is required for online payment", ErrInvalidInput)
	}
	address, err := normalizeAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, err
	}
	var requestedDiscount int64
	switch {
	case cmd.CoinsToRedeem < 0:
		return Order{}, fmt.Errorf("%w: coins to redeem must not be negative", ErrInvalidCoinUsage)
	case cmd.CoinsToRedeem%domain.CoinsPerRedemptionUnit != 0:
		return Order{}, fmt.Errorf("%w: coins are redeemed in units of %d", ErrInvalidCoinUsage, domain.CoinsPerRedemptionUnit)
	default:
		requestedDiscount = cmd.CoinsToRedeem / domain.CoinsPerRedemptionUnit * domain.DiscountPerRedemptionUnit
	}

	orderID := s.nextOrderID(userID, cmd.IdempotencyKey)
	var (
		order    Order
		reserved []Product
		replayed bool
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		reserved = reserved[:0]
		if cmd.IdempotencyKey != "" {
			existing, err := s.orders.FindByID(txCtx, orderID)
			if err == nil {
				if existing.UserID != userID {
					return fmt.Errorf("%w: idempotency key reused", ErrConflict)
				}
				order, replayed = existing, true
				return nil
			}
			if !isNotFound(err) {
				return err
			}
		}

		now := s.now()
		items := make([]OrderItem, 0, len(lines))
		for _, line := range lines {
			product, err := s.stock.Reserve(txCtx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			reserved = append(reserved, product)
			items = append(items, OrderItem{
				ProductID: valuePtr(product.ID),
				SellerID:  product.SellerID,
				Name:      product.Name,
				Image:     product.Image,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
			})
		}

		pricing := s.priceItems(items)
		order = Order{
			ID:              orderID,
			UserID:          userID,
			Items:           items,
			ShippingAddress: address,
			PaymentMethod:   cmd.PaymentMethod,
			Pricing:         pricing,
			FinalAmount:     pricing.Total,
			Status:          domain.OrderStatusPlaced,
			StatusHistory: []domain.OrderStatusEntry{{
				Status:  domain.OrderStatusPlaced,
				Note:    "Order placed",
				ActorID: userID,
				At:      now,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if cmd.PaymentMethod == domain.PaymentMethodRazorpay {
			if err := s.orders.ClaimPaymentReference(txCtx, gatewayOrderRefPrefix+providerOrderID, orderID); err != nil {
				if isConflict(err) {
					return fmt.Errorf("%w: gateway order is already bound to another order", ErrConflict)
				}
				return err
			}
			order.PaymentResult = &domain.PaymentResult{
				ProviderOrderID: providerOrderID,
				Status:          paymentStatusCreated,
				UpdatedAt:       now,
			}
		}

		if requestedDiscount > 0 {
			if requestedDiscount > pricing.Total {
				return fmt.Errorf("%w: discount %d exceeds order total %d", ErrInvalidCoinUsage, requestedDiscount, pricing.Total)
			}
			quote, err := s.coins.CalculateDiscount(txCtx, userID, requestedDiscount)
			if err != nil {
				return err
			}
			if !quote.CanApply || quote.RequestedDiscount < requestedDiscount {
				return fmt.Errorf("%w: discount %d exceeds redeemable maximum %d", ErrInvalidCoinUsage, requestedDiscount, quote.MaxDiscount)
			}
			if _, err := s.coins.Debit(txCtx, CoinEntryCommand{
				UserID:    userID,
				Type:      domain.CoinTransactionRedeemed,
				Amount:    quote.CoinsRequired,
				Source:    domain.CoinSourceOrderRedemption,
				Reference: domain.OrderRef(orderID),
				Metadata:  map[string]any{"discount": quote.RequestedDiscount},
			}); err != nil {
				return err
			}
			order.CoinDiscount = quote.RequestedDiscount
			order.CoinsUsed = quote.CoinsRequired
			order.FinalAmount = pricing.Total - quote.RequestedDiscount
		}

		return s.orders.Insert(txCtx, order)
	})
	if err != nil {
		return Order{}, mapError(err)
	}
	if replayed {
		return order, nil
	}

	s.evaluateAlerts(ctx, reserved)
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":     order.ID,
		"userId":      order.UserID,
		"items":       len(order.Items),
		"finalAmount": order.FinalAmount,
		"coinsUsed":   order.CoinsUsed,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    order.CreatedAt,
		Metadata: map[string]any{
			"finalAmount":   order.FinalAmount,
			"paymentMethod": string(order.PaymentMethod),
		},
	})
	if order.PaymentMethod == domain.PaymentMethodCOD {
		s.notify(ctx, NotificationOrderConfirmation, order)
	}
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	if !canViewOrder(order, query.Actor) {
		return Order{}, fmt.Errorf("%w: order %s is not accessible", ErrForbidden, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(query.UserID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if query.Status != nil && !isKnownOrderStatus(*query.Status) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *query.Status)
	}
	page, err := s.orders.ListByUser(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Status:     query.Status,
		Pagination: Pagination{PageSize: query.PageSize, PageToken: query.PageToken},
	})
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if !isKnownOrderStatus(cmd.Status) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, cmd.Status)
	}
	if cmd.Status == domain.OrderStatusCancelled {
		return s.Cancel(ctx, CancelOrderCommand{OrderID: orderID, Reason: cmd.Note, Actor: cmd.Actor})
	}

	var (
		order    Order
		previous OrderStatus
		converge bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if err := s.repairDanglingProducts(txCtx, &current); err != nil {
			return err
		}
		if !canFulfil(current, cmd.Actor) {
			return fmt.Errorf("%w: only the seller of an item or an admin may update the order", ErrForbidden)
		}
		previous = current.Status
		if !canTransition(current.Status, cmd.Status) {
			converge = current.Status == domain.OrderStatusDelivered && cmd.Status == domain.OrderStatusDelivered
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, cmd.Status)
		}

		tracking := strings.TrimSpace(cmd.TrackingNumber)
		if cmd.Status == domain.OrderStatusShipped && tracking == "" && current.TrackingNumber == "" {
			return fmt.Errorf("%w: tracking number is required to ship", ErrInvalidInput)
		}
		if tracking != "" {
			current.TrackingNumber = tracking
		}
		if carrier := strings.TrimSpace(cmd.Carrier); carrier != "" {
			current.Carrier = carrier
		}

		now := s.now()
		s.applyStatus(&current, cmd.Status, statusNote(cmd.Note, cmd.Status), cmd.Actor.ID, now)
		if cmd.Status == domain.OrderStatusDelivered {
			current.IsDelivered = true
			current.DeliveredAt = &now
			if current.PaymentMethod == domain.PaymentMethodCOD && !current.IsPaid {
				current.IsPaid = true
				current.PaidAt = &now
			}
		}
		order = current
		return s.orders.Update(txCtx, current)
	})
	if err != nil {
		if converge {
			if existing, findErr := s.orders.FindByID(ctx, orderID); findErr == nil && existing.CoinsEarned == 0 {
				_, _ = s.creditDeliveryBonus(ctx, existing)
			}
		}
		return Order{}, mapError(err)
	}

	s.metrics.OrderTransition(previous, order.Status)
	if order.Status == domain.OrderStatusDelivered {
		if credited, err := s.creditDeliveryBonus(ctx, order); err == nil {
			order = credited
		}
		if s.referrals != nil {
			if err := s.referrals.CompleteFirstOrder(ctx, order.UserID, order.ID); err != nil {
				s.logger(ctx, "order.referral.first_order.failed", map[string]any{
					"orderId": order.ID,
					"error":   err.Error(),
				})
			}
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     order.UpdatedAt,
		Metadata:       map[string]any{"trackingNumber": order.TrackingNumber},
	})
	s.notify(ctx, NotificationOrderStatusChanged, order)
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)

	var (
		order    Order
		previous OrderStatus
		restored []Product
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		restored = restored[:0]
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if !cmd.Actor.IsAdmin() && current.UserID != cmd.Actor.ID {
			return fmt.Errorf("%w: only the customer or an admin may cancel the order", ErrForbidden)
		}
		previous = current.Status
		if !canTransition(current.Status, domain.OrderStatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, domain.OrderStatusCancelled)
		}
		if err := s.repairDanglingProducts(txCtx, &current); err != nil {
			return err
		}

		quantities := make(map[string]int)
		for _, item := range current.Items {
			if item.HasProduct() {
				quantities[*item.ProductID] += item.Quantity
			}
		}
		for _, productID := range slices.Sorted(maps.Keys(quantities)) {
			product, err := s.stock.Restore(txCtx, productID, quantities[productID])
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					s.logger(txCtx, "order.cancel.restore.skipped", map[string]any{
						"orderId":   current.ID,
						"productId": productID,
					})
					continue
				}
				return err
			}
			restored = append(restored, product)
		}

		if current.CoinsUsed > 0 {
			if _, err := s.coins.Credit(txCtx, CoinEntryCommand{
				UserID:    current.UserID,
				Type:      domain.CoinTransactionRefund,
				Amount:    current.CoinsUsed,
				Source:    domain.CoinSourceOrderCancellation,
				Reference: domain.OrderRef(current.ID),
				Metadata:  map[string]any{"reason": reason},
			}); err != nil {
				return err
			}
		}

		note := "Order cancelled"
		if reason != "" {
			note += ": " + reason
		}
		current.CancelReason = reason
		s.applyStatus(&current, domain.OrderStatusCancelled, note, cmd.Actor.ID, s.now())
		order = current
		return s.orders.Update(txCtx, current)
	})
	if err != nil {
		return Order{}, mapError(err)
	}

	s.metrics.OrderTransition(previous, order.Status)
	s.evaluateAlerts(ctx, restored)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     order.UpdatedAt,
		Metadata:       map[string]any{"reason": reason, "coinsRefunded": order.CoinsUsed},
	})
	s.notify(ctx, NotificationOrderStatusChanged, order)
	return order, nil
}

func (s *orderService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	providerPaymentID := strings.TrimSpace(cmd.ProviderPaymentID)
	if orderID == "" || providerOrderID == "" || providerPaymentID == "" || strings.TrimSpace(cmd.Signature) == "" {
		return Order{}, fmt.Errorf("%w: order id, provider ids and signature are required", ErrInvalidInput)
	}
	if s.payments == nil {
		return Order{}, fmt.Errorf("%w: payment verifier not configured", ErrUnavailable)
	}
	if err := s.payments.Verify(providerOrderID, providerPaymentID, strings.TrimSpace(cmd.Signature)); err != nil {
		s.logger(ctx, "order.payment.signature_mismatch", map[string]any{
			"orderId":         orderID,
			"providerOrderId": providerOrderID,
		})
		if errors.Is(err, ErrSignatureMismatch) {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}

	var (
		order       Order
		previous    OrderStatus
		alreadyPaid bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if !cmd.Actor.IsAdmin() && current.UserID != cmd.Actor.ID {
			return fmt.Errorf("%w: order belongs to another user", ErrForbidden)
		}
		if current.PaymentMethod != domain.PaymentMethodRazorpay {
			return fmt.Errorf("%w: order is not paid online", ErrInvalidInput)
		}
		if current.PaymentResult == nil || current.PaymentResult.ProviderOrderID != providerOrderID {
			return fmt.Errorf("%w: gateway order does not belong to this order", ErrSignatureMismatch)
		}
		if current.IsPaid {
			if current.PaymentResult.ProviderPaymentID != providerPaymentID {
				return fmt.Errorf("%w: order was paid with another payment", ErrConflict)
			}
			order, alreadyPaid = current, true
			return nil
		}
		if current.Status != domain.OrderStatusPlaced && current.Status != domain.OrderStatusConfirmed {
			return fmt.Errorf("%w: cannot verify payment for %s order", ErrInvalidTransition, current.Status)
		}
		if err := s.orders.ClaimPaymentReference(txCtx, gatewayPaymentRefPrefix+providerPaymentID, current.ID); err != nil {
			if isConflict(err) {
				return fmt.Errorf("%w: payment is already applied to another order", ErrConflict)
			}
			return err
		}
		if err := s.repairDanglingProducts(txCtx, &current); err != nil {
			return err
		}

		now := s.now()
		previous = current.Status
		current.IsPaid = true
		current.PaidAt = &now
		current.PaymentResult = &domain.PaymentResult{
			ProviderOrderID:   providerOrderID,
			ProviderPaymentID: providerPaymentID,
			Status:            paymentStatusCaptured,
			UpdatedAt:         now,
		}
		s.applyStatus(&current, domain.OrderStatusProcessing, "Payment verified", cmd.Actor.ID, now)
		order = current
		return s.orders.Update(txCtx, current)
	})
	if err != nil {
		if errors.Is(err, ErrSignatureMismatch) || errors.Is(err, ErrConflict) {
			s.logger(ctx, "order.payment.rejected", map[string]any{
				"orderId":         orderID,
				"providerOrderId": providerOrderID,
				"error":           err.Error(),
			})
		}
		return Order{}, mapError(err)
	}
	if alreadyPaid {
		return order, nil
	}

	s.metrics.OrderTransition(previous, order.Status)
	s.notify(ctx, NotificationOrderConfirmation, order)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaid,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     order.UpdatedAt,
		Metadata:       map[string]any{"providerPaymentId": providerPaymentID},
	})
	return order, nil
}

func (s *orderService) ReconcileDeliveryBonuses(ctx context.Context, limit int) (ReconcileResult, error) {
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	orders, err := s.orders.ListDeliveredWithoutBonus(ctx, maxDeliveryBonusAttempts, limit)
	if err != nil {
		return ReconcileResult{}, mapRepositoryError(err)
	}

	result := ReconcileResult{Scanned: len(orders)}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.creditDeliveryBonus(ctx, order); err != nil {
			result.Failed++
			continue
		}
		result.Credited++
	}
	s.logger(ctx, "order.delivery_bonus.reconciled", map[string]any{
		"scanned":  result.Scanned,
		"credited": result.Credited,
		"failed":   result.Failed,
	})
	return result, nil
}

// creditDeliveryBonus credits the delivery bonus and records it on the order in one unit of work.
// The ledger key makes retries converge on a single credit.
func (s *orderService) creditDeliveryBonus(ctx context.Context, order Order) (Order, error) {
	var updated Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, order.ID)
		if err != nil {
			return err
		}
		if !current.IsDelivered {
			return fmt.Errorf("%w: order %s is not delivered", ErrInvalidTransition, current.ID)
		}
		result, err := s.coins.Credit(txCtx, CoinEntryCommand{
			UserID:    current.UserID,
			Type:      domain.CoinTransactionBonus,
			Amount:    s.deliveryBonus,
			Source:    domain.CoinSourceOrderDelivery,
			Reference: domain.OrderRef(current.ID),
		})
		if err != nil {
			return err
		}
		updated = current
		if current.CoinsEarned == result.Transaction.Amount {
			return nil
		}
		updated.CoinsEarned = result.Transaction.Amount
		updated.UpdatedAt = s.now()
		return s.orders.Update(txCtx, updated)
	})
	if err != nil {
		s.logger(ctx, "order.delivery_bonus.failed", map[string]any{
			"orderId": order.ID,
			"userId":  order.UserID,
			"error":   err.Error(),
		})
		if ctx.Err() == nil {
			s.recordBonusFailure(ctx, order.ID)
		}
		return order, mapError(err)
	}
	return updated, nil
}

// recordBonusFailure counts a failed delivery bonus credit on the order. Orders that reach
// maxDeliveryBonusAttempts drop out of reconciliation.
func (s *orderService) recordBonusFailure(ctx context.Context, orderID string) {
	var attempts int
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if current.CoinsEarned > 0 {
			return nil
		}
		current.BonusAttempts++
		attempts = current.BonusAttempts
		return s.orders.Update(txCtx, current)
	})
	if err != nil {
		s.logger(ctx, "order.delivery_bonus.attempt_not_recorded", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return
	}
	if attempts >= maxDeliveryBonusAttempts {
		s.logger(ctx, "order.delivery_bonus.abandoned", map[string]any{
			"orderId":  orderID,
			"attempts": attempts,
		})
	}
}

// repairDanglingProducts clears product references that no longer resolve so the order stays
// consistent with the catalog. Items are kept for display.
func (s *orderService) repairDanglingProducts(ctx context.Context, order *Order) error {
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if item.HasProduct() && !slices.Contains(ids, *item.ProductID) {
			ids = append(ids, *item.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	existing, err := s.products.FindExisting(ctx, ids)
	if err != nil {
		return err
	}

	var cleared []string
	for i := range order.Items {
		item := &order.Items[i]
		if item.HasProduct() && !existing[*item.ProductID] {
			cleared = append(cleared, *item.ProductID)
			item.ProductID = nil
		}
	}
	if len(cleared) > 0 {
		s.metrics.DanglingProductsRepaired(len(cleared))
		s.logger(ctx, "order.repair.dangling_products", map[string]any{
			"orderId":    order.ID,
			"productIds": cleared,
		})
	}
	return nil
}

func (s *orderService) applyStatus(order *Order, status OrderStatus, note, actorID string, now time.Time) {
	order.Status = status
	order.StatusHistory = append(order.StatusHistory, domain.OrderStatusEntry{
		Status:  status,
		Note:    note,
		ActorID: actorID,
		At:      now,
	})
	order.UpdatedAt = now
}

func (s *orderService) priceItems(items []OrderItem) domain.OrderPricing {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	pricing := domain.OrderPricing{
		ItemsTotal: total,
		Tax:        (total*s.pricing.TaxRateBps + 5_000) / 10_000,
	}
	if total < s.pricing.FreeShippingThreshold {
		pricing.Shipping = s.pricing.ShippingFee
	}
	pricing.Total = pricing.ItemsTotal + pricing.Tax + pricing.Shipping
	return pricing
}

func (s *orderService) evaluateAlerts(ctx context.Context, products []Product) {
	if s.alerts == nil {
		return
	}
	for _, product := range products {
		if err := s.alerts.Evaluate(ctx, product); err != nil {
			s.logger(ctx, "inventory.alert.evaluate.failed", map[string]any{
				"productId": product.ID,
				"error":     err.Error(),
			})
		}
	}
}

func (s *orderService) notify(ctx context.Context, kind NotificationKind, order Order) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, Notification{
		Kind:    kind,
		UserID:  order.UserID,
		OrderID: order.ID,
		Data: map[string]any{
			"status":         string(order.Status),
			"finalAmount":    order.FinalAmount,
			"paymentMethod":  string(order.PaymentMethod),
			"trackingNumber": order.TrackingNumber,
		},
	})
	if err != nil {
		s.metrics.NotificationFailed(kind)
		s.logger(ctx, "order.notification.failed", map[string]any{
			"orderId": order.ID,
			"kind":    string(kind),
			"error":   err.Error(),
		})
	}
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

// nextOrderID derives the order ID from the idempotency key when one is supplied so a replayed
// checkout resolves to the same order.
func (s *orderService) nextOrderID(userID, idempotencyKey string) string {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return orderIDPrefix + s.newID()
	}
	return orderIDPrefix + uuid.NewSHA1(orderIdempotencyNamespace, []byte(userID+"|"+key)).String()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	event.Metadata = cloneMetadata(event.Metadata)
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type orderLine struct {
	ProductID string
	Quantity  int
}

// mergeOrderLines validates requested items and merges repeated products, keeping first-seen order.
func mergeOrderLines(items []PlaceOrderItem) ([]orderLine, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	lines := make([]orderLine, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
		}
		if pos, ok := index[productID]; ok {
			lines[pos].Quantity += item.Quantity
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, orderLine{ProductID: productID, Quantity: item.Quantity})
	}
	return lines, nil
}

func normalizeAddress(addr Address) (Address, error) {
	addr = Address{
		Recipient:  strings.TrimSpace(addr.Recipient),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
		Phone:      strings.TrimSpace(addr.Phone),
	}
	if addr.Line1 == "" || addr.City == "" || addr.PostalCode == "" || addr.Country == "" {
		return Address{}, fmt.Errorf("%w: shipping address requires line1, city, postal code and country", ErrInvalidInput)
	}
	return addr, nil
}

func statusNote(note string, status OrderStatus) string {
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		return trimmed
	}
	return "Order " + string(status)
}

func canViewOrder(order Order, actor Actor) bool {
	return actor.IsAdmin() || (actor.ID != "" && order.UserID == actor.ID) ||
		(actor.Role == domain.RoleSeller && order.HasSeller(actor.ID))
}

func canFulfil(order Order, actor Actor) bool {
	return actor.IsAdmin() || (actor.Role == domain.RoleSeller && order.HasSeller(actor.ID))
}

func isKnownOrderStatus(status OrderStatus) bool {
	switch status {
	case domain.OrderStatusPlaced, domain.OrderStatusConfirmed, domain.OrderStatusProcessing,
		domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return true
	}
	return false
}

func canTransition(current, target OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}
