package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/services"
)

const (
	customerToken = "customer-token"
	sellerToken   = "seller-token"
	adminToken    = "admin-token"
)

var errStubNotImplemented = errors.New("not implemented")

type stubVerifier struct {
	tokens map[string]*firebaseauth.Token
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, token string) (*firebaseauth.Token, error) {
	if decoded, ok := s.tokens[token]; ok {
		return decoded, nil
	}
	return nil, auth.ErrTokenInvalid
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(&stubVerifier{tokens: map[string]*firebaseauth.Token{
		customerToken: {UID: "user-1", Claims: map[string]any{"role": "customer", "name": "Asha Rao", "email": "asha@example.com"}},
		sellerToken:   {UID: "seller-1", Claims: map[string]any{"role": "seller", "name": "Gadget Hub"}},
		adminToken:    {UID: "admin-1", Claims: map[string]any{"role": "admin"}},
	}})
}

// newTestRouter mounts the registrar under a bare chi router.
func newTestRouter(registrar RouteRegistrar) http.Handler {
	r := chi.NewRouter()
	registrar(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr)["error"]; got != code {
		t.Fatalf("expected error %q, got %v", code, got)
	}
}

type stubOrderService struct {
	placeFn     func(context.Context, services.PlaceOrderCommand) (services.Order, error)
	getFn       func(context.Context, services.GetOrderQuery) (services.Order, error)
	listFn      func(context.Context, services.ListOrdersQuery) (domain.CursorPage[services.Order], error)
	updateFn    func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	cancelFn    func(context.Context, services.CancelOrderCommand) (services.Order, error)
	verifyFn    func(context.Context, services.VerifyPaymentCommand) (services.Order, error)
	reconcileFn func(context.Context, int) (services.ReconcileResult, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) ReconcileDeliveryBonuses(ctx context.Context, limit int) (services.ReconcileResult, error) {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, limit)
	}
	return services.ReconcileResult{}, errStubNotImplemented
}

type stubCoinService struct {
	balanceFn   func(context.Context, string) (services.CoinBalance, error)
	historyFn   func(context.Context, services.CoinHistoryQuery) (domain.CursorPage[services.CoinTransaction], error)
	discountFn  func(context.Context, string, int64) (services.DiscountQuote, error)
	reconcileFn func(context.Context, string) (services.LedgerAudit, error)
}

func (s *stubCoinService) Balance(ctx context.Context, userID string) (services.CoinBalance, error) {
	if s.balanceFn != nil {
		return s.balanceFn(ctx, userID)
	}
	return services.CoinBalance{}, errStubNotImplemented
}

func (s *stubCoinService) History(ctx context.Context, query services.CoinHistoryQuery) (domain.CursorPage[services.CoinTransaction], error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, query)
	}
	return domain.CursorPage[services.CoinTransaction]{}, nil
}

func (s *stubCoinService) CalculateDiscount(ctx context.Context, userID string, requested int64) (services.DiscountQuote, error) {
	if s.discountFn != nil {
		return s.discountFn(ctx, userID, requested)
	}
	return services.DiscountQuote{}, errStubNotImplemented
}

func (s *stubCoinService) Credit(context.Context, services.CoinEntryCommand) (services.CoinEntryResult, error) {
	return services.CoinEntryResult{}, errStubNotImplemented
}

func (s *stubCoinService) Debit(context.Context, services.CoinEntryCommand) (services.CoinEntryResult, error) {
	return services.CoinEntryResult{}, errStubNotImplemented
}

func (s *stubCoinService) Reconcile(ctx context.Context, userID string) (services.LedgerAudit, error) {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, userID)
	}
	return services.LedgerAudit{}, errStubNotImplemented
}

type stubReferralEngine struct {
	registerFn func(context.Context, services.RegisterUserCommand) (services.User, error)
	validateFn func(context.Context, string) (services.ReferralCodeInfo, error)
	statsFn    func(context.Context, string) (services.ReferralSummary, error)
}

func (s *stubReferralEngine) RegisterWithReferral(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, cmd)
	}
	return services.User{}, errStubNotImplemented
}

func (s *stubReferralEngine) ValidateReferralCode(ctx context.Context, code string) (services.ReferralCodeInfo, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, code)
	}
	return services.ReferralCodeInfo{}, nil
}

func (s *stubReferralEngine) Stats(ctx context.Context, userID string) (services.ReferralSummary, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, userID)
	}
	return services.ReferralSummary{}, errStubNotImplemented
}

func (s *stubReferralEngine) CompleteFirstOrder(context.Context, string, string) error {
	return errStubNotImplemented
}

type stubReturnService struct {
	requestFn func(context.Context, services.RequestReturnCommand) (services.Return, error)
	updateFn  func(context.Context, services.UpdateReturnStatusCommand) (services.Return, error)
	getFn     func(context.Context, services.GetReturnQuery) (services.Return, error)
	listFn    func(context.Context, string) ([]services.Return, error)
}

func (s *stubReturnService) RequestReturn(ctx context.Context, cmd services.RequestReturnCommand) (services.Return, error) {
	if s.requestFn != nil {
		return s.requestFn(ctx, cmd)
	}
	return services.Return{}, errStubNotImplemented
}

func (s *stubReturnService) UpdateReturnStatus(ctx context.Context, cmd services.UpdateReturnStatusCommand) (services.Return, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Return{}, errStubNotImplemented
}

func (s *stubReturnService) GetReturn(ctx context.Context, query services.GetReturnQuery) (services.Return, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Return{}, errStubNotImplemented
}

func (s *stubReturnService) ListReturns(ctx context.Context, userID string) ([]services.Return, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID)
	}
	return nil, nil
}

type stubReviewService struct {
	reviewFn       func(context.Context, services.SubmitReviewCommand) (services.Product, error)
	sellerReviewFn func(context.Context, services.SubmitSellerReviewCommand) (services.Product, error)
}

func (s *stubReviewService) SubmitReview(ctx context.Context, cmd services.SubmitReviewCommand) (services.Product, error) {
	if s.reviewFn != nil {
		return s.reviewFn(ctx, cmd)
	}
	return services.Product{}, errStubNotImplemented
}

func (s *stubReviewService) SubmitSellerReview(ctx context.Context, cmd services.SubmitSellerReviewCommand) (services.Product, error) {
	if s.sellerReviewFn != nil {
		return s.sellerReviewFn(ctx, cmd)
	}
	return services.Product{}, errStubNotImplemented
}

type stubStockManager struct {
	setFn func(context.Context, services.SetStockCommand) (services.Product, error)
}

func (s *stubStockManager) Reserve(context.Context, string, int) (services.Product, error) {
	return services.Product{}, errStubNotImplemented
}

func (s *stubStockManager) Restore(context.Context, string, int) (services.Product, error) {
	return services.Product{}, errStubNotImplemented
}

func (s *stubStockManager) SetStock(ctx context.Context, cmd services.SetStockCommand) (services.Product, error) {
	if s.setFn != nil {
		return s.setFn(ctx, cmd)
	}
	return services.Product{}, errStubNotImplemented
}

type stubAlertService struct {
	createFn  func(context.Context, services.CreateAlertCommand) (services.InventoryAlert, error)
	resolveFn func(context.Context, string, services.Actor) (services.InventoryAlert, error)
	readFn    func(context.Context, string, services.Actor) (services.InventoryAlert, error)
	listFn    func(context.Context, services.ListAlertsQuery) ([]services.InventoryAlert, error)
}

func (s *stubAlertService) Evaluate(context.Context, services.Product) error {
	return nil
}

func (s *stubAlertService) Create(ctx context.Context, cmd services.CreateAlertCommand) (services.InventoryAlert, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.InventoryAlert{}, errStubNotImplemented
}

func (s *stubAlertService) Resolve(ctx context.Context, alertID string, actor services.Actor) (services.InventoryAlert, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, alertID, actor)
	}
	return services.InventoryAlert{}, errStubNotImplemented
}

func (s *stubAlertService) MarkRead(ctx context.Context, alertID string, actor services.Actor) (services.InventoryAlert, error) {
	if s.readFn != nil {
		return s.readFn(ctx, alertID, actor)
	}
	return services.InventoryAlert{}, errStubNotImplemented
}

func (s *stubAlertService) List(ctx context.Context, query services.ListAlertsQuery) ([]services.InventoryAlert, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return nil, nil
}
