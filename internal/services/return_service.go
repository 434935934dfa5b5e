package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/repositories"
)

const (
	returnIDPrefix = "ret_"

	returnEventRequested     = "return.requested"
	returnEventStatusChanged = "return.status_changed"

	defaultReturnWindow   = 30 * 24 * time.Hour
	maxReturnReasonLength = 1000
)

var returnStateTransitions = map[ReturnStatus][]ReturnStatus{
	domain.ReturnStatusRequested:  {domain.ReturnStatusApproved, domain.ReturnStatusRejected},
	domain.ReturnStatusApproved:   {domain.ReturnStatusProcessing},
	domain.ReturnStatusProcessing: {domain.ReturnStatusCompleted},
}

// ReturnServiceDeps bundles collaborators for the return workflow.
type ReturnServiceDeps struct {
	Orders       repositories.OrderRepository
	Returns      repositories.ReturnRepository
	Coins        CoinAccountService
	UnitOfWork   repositories.UnitOfWork
	ReturnWindow time.Duration
	Clock        func() time.Time
	IDGenerator  func() string
	Events       OrderEventPublisher
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type returnService struct {
	orders     repositories.OrderRepository
	returns    repositories.ReturnRepository
	coins      CoinAccountService
	unitOfWork repositories.UnitOfWork
	window     time.Duration
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     serviceLogger
}

// NewReturnService constructs the return workflow service.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
	}
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
	}
	window := deps.ReturnWindow
	if window <= 0 {
		window = defaultReturnWindow
	}
	return &returnService{
		orders:     deps.Orders,
		returns:    deps.Returns,
		coins:      deps.Coins,
		unitOfWork: orNoopUnit(deps.UnitOfWork),
		window:     window,
		clock:      utcClock(deps.Clock),
		newID:      ulidGenerator(deps.IDGenerator),
		events:     deps.Events,
		logger:     orNoopLogger(deps.Logger),
	}, nil
}

func (s *returnService) RequestReturn(ctx context.Context, cmd RequestReturnCommand) (Return, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	reason := strings.TrimSpace(cmd.Reason)
	if orderID == "" || userID == "" {
		return Return{}, fmt.Errorf("%w: order id and user id are required", ErrInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Return{}, fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	if reason == "" || len(reason) > maxReturnReasonLength {
		return Return{}, fmt.Errorf("%w: reason is required and must not exceed %d characters", ErrInvalidInput, maxReturnReasonLength)
	}
	returnType := cmd.Type
	switch returnType {
	case "":
		returnType = domain.ReturnTypeRefund
	case domain.ReturnTypeRefund, domain.ReturnTypeExchange, domain.ReturnTypeStoreCredit:
	default:
		return Return{}, fmt.Errorf("%w: unknown return type %q", ErrInvalidInput, returnType)
	}

	var created Return
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order belongs to another user", ErrForbidden)
		}
		now := s.clock()
		if !order.IsDelivered || order.DeliveredAt == nil {
			return fmt.Errorf("%w: order has not been delivered", ErrNotEligible)
		}
		if now.Sub(*order.DeliveredAt) > s.window {
			return fmt.Errorf("%w: return window of %d days has passed", ErrNotEligible, int(s.window.Hours()/24))
		}

		existing, err := s.returns.ListByUser(txCtx, userID)
		if err != nil {
			return err
		}
		items, refund, err := buildReturnItems(order, cmd.Items, returnedQuantities(existing, order.ID))
		if err != nil {
			return err
		}

		created = Return{
			ID:           returnIDPrefix + s.newID(),
			OrderID:      order.ID,
			UserID:       userID,
			Items:        items,
			Reason:       reason,
			Type:         returnType,
			Status:       domain.ReturnStatusRequested,
			RefundAmount: refund,
			StatusHistory: []domain.ReturnStatusEntry{{
				Status:  domain.ReturnStatusRequested,
				Note:    "Return requested",
				ActorID: userID,
				At:      now,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.returns.Insert(txCtx, created)
	})
	if err != nil {
		return Return{}, mapError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          returnEventRequested,
		OrderID:       created.OrderID,
		UserID:        created.UserID,
		CurrentStatus: string(created.Status),
		ActorID:       userID,
		OccurredAt:    created.CreatedAt,
		Metadata:      map[string]any{"returnId": created.ID, "refundAmount": created.RefundAmount},
	})
	return created, nil
}

func (s *returnService) UpdateReturnStatus(ctx context.Context, cmd UpdateReturnStatusCommand) (Return, error) {
	if !cmd.Actor.IsAdmin() {
		return Return{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	returnID := strings.TrimSpace(cmd.ReturnID)
	if returnID == "" || cmd.Status == "" {
		return Return{}, fmt.Errorf("%w: return id and status are required", ErrInvalidInput)
	}
	if cmd.RefundAmount != nil && *cmd.RefundAmount < 0 {
		return Return{}, fmt.Errorf("%w: refund amount must not be negative", ErrInvalidInput)
	}

	var (
		updated  Return
		previous ReturnStatus
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		ret, err := s.returns.FindByID(txCtx, returnID)
		if err != nil {
			return err
		}
		previous = ret.Status
		if !slices.Contains(returnStateTransitions[ret.Status], cmd.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ret.Status, cmd.Status)
		}

		now := s.clock()
		notes := strings.TrimSpace(cmd.AdminNotes)
		ret.Status = cmd.Status
		if notes != "" {
			ret.AdminNotes = notes
		}
		if cmd.RefundAmount != nil {
			ret.RefundAmount = *cmd.RefundAmount
		}
		ret.StatusHistory = append(ret.StatusHistory, domain.ReturnStatusEntry{
			Status:  cmd.Status,
			Note:    notes,
			ActorID: cmd.Actor.ID,
			At:      now,
		})
		ret.UpdatedAt = now
		updated = ret
		if err := s.returns.Update(txCtx, ret); err != nil {
			return err
		}
		return s.issueStoreCredit(txCtx, ret)
	})
	if err != nil {
		return Return{}, mapError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           returnEventStatusChanged,
		OrderID:        updated.OrderID,
		UserID:         updated.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     updated.UpdatedAt,
		Metadata:       map[string]any{"returnId": updated.ID, "refundAmount": updated.RefundAmount},
	})
	return updated, nil
}

// issueStoreCredit pays a completed store-credit return in coins worth its refund amount. The
// ledger key (user, source, return) keeps it to one credit per return.
func (s *returnService) issueStoreCredit(ctx context.Context, ret Return) error {
	if ret.Status != domain.ReturnStatusCompleted || ret.Type != domain.ReturnTypeStoreCredit {
		return nil
	}
	coins := domain.StoreCreditCoins(ret.RefundAmount)
	if coins == 0 {
		return nil
	}
	if s.coins == nil {
		return fmt.Errorf("%w: store credit needs the coin ledger", ErrUnavailable)
	}
	_, err := s.coins.Credit(ctx, CoinEntryCommand{
		UserID:    ret.UserID,
		Type:      domain.CoinTransactionEarned,
		Amount:    coins,
		Source:    domain.CoinSourceReturnStoreCredit,
		Reference: domain.ReturnRef(ret.ID),
		Metadata:  map[string]any{"orderId": ret.OrderID, "refundAmount": ret.RefundAmount},
	})
	return err
}

func (s *returnService) GetReturn(ctx context.Context, query GetReturnQuery) (Return, error) {
	returnID := strings.TrimSpace(query.ReturnID)
	if returnID == "" {
		return Return{}, fmt.Errorf("%w: return id is required", ErrInvalidInput)
	}
	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return Return{}, mapRepositoryError(err)
	}
	if !query.Actor.IsAdmin() && ret.UserID != query.Actor.ID {
		return Return{}, fmt.Errorf("%w: return belongs to another user", ErrForbidden)
	}
	return ret, nil
}

func (s *returnService) ListReturns(ctx context.Context, userID string) ([]Return, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	returns, err := s.returns.ListByUser(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return returns, nil
}

func (s *returnService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "return.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

// returnedQuantities sums quantities per product already claimed by non-rejected returns of the order.
func returnedQuantities(returns []Return, orderID string) map[string]int {
	claimed := make(map[string]int)
	for _, ret := range returns {
		if ret.OrderID != orderID || ret.Status == domain.ReturnStatusRejected {
			continue
		}
		for _, item := range ret.Items {
			claimed[item.ProductID] += item.Quantity
		}
	}
	return claimed
}

func buildReturnItems(order Order, requested []RequestReturnItem, claimed map[string]int) ([]ReturnItem, int64, error) {
	ordered := make(map[string]int)
	prices := make(map[string]int64)
	for _, line := range order.Items {
		if !line.HasProduct() {
			continue
		}
		ordered[*line.ProductID] += line.Quantity
		prices[*line.ProductID] = line.UnitPrice
	}

	wanted := make(map[string]int)
	items := make([]ReturnItem, 0, len(requested))
	var refund int64
	for _, item := range requested {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: return items need a product and positive quantity", ErrInvalidInput)
		}
		limit, ok := ordered[productID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: product %s is not part of the order", ErrInvalidInput, productID)
		}
		wanted[productID] += item.Quantity
		if wanted[productID]+claimed[productID] > limit {
			return nil, 0, fmt.Errorf("%w: return quantity for %s exceeds ordered quantity", ErrInvalidInput, productID)
		}
		price := prices[productID]
		refund += price * int64(item.Quantity)
		items = append(items, ReturnItem{
			ProductID: productID,
			Quantity:  item.Quantity,
			Price:     price,
			Reason:    strings.TrimSpace(item.Reason),
			Condition: strings.TrimSpace(item.Condition),
		})
	}
	return items, refund, nil
}
