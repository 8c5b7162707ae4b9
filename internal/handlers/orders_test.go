package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/platform/auth"
	"github.com/rarewear/storefront-api/internal/services"
)

type stubOrderService struct {
	checkoutFn func(ctx context.Context, cmd services.CheckoutCommand) (domain.Order, error)
	getFn      func(ctx context.Context, orderID string, scope services.OrderReadScope) (domain.Order, error)
	listFn     func(ctx context.Context, query services.OrderQuery) (domain.Page[domain.Order], error)
	transFn    func(ctx context.Context, cmd services.TransitionCommand) (domain.Order, error)
	cancelFn   func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	trackFn    func(ctx context.Context, cmd services.RecordTrackingCommand) (domain.Order, error)
	paymentFn  func(ctx context.Context, cmd services.MarkPaymentCommand) (domain.Order, error)
}

func (s *stubOrderService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (domain.Order, error) {
	if s.checkoutFn == nil {
		return domain.Order{}, errors.New("checkout not implemented")
	}
	return s.checkoutFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, scope services.OrderReadScope) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, errors.New("get not implemented")
	}
	return s.getFn(ctx, orderID, scope)
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.OrderQuery) (domain.Page[domain.Order], error) {
	if s.listFn == nil {
		return domain.Page[domain.Order]{}, errors.New("list not implemented")
	}
	return s.listFn(ctx, query)
}

func (s *stubOrderService) Transition(ctx context.Context, cmd services.TransitionCommand) (domain.Order, error) {
	if s.transFn == nil {
		return domain.Order{}, errors.New("transition not implemented")
	}
	return s.transFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn == nil {
		return domain.Order{}, errors.New("cancel not implemented")
	}
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) RecordTracking(ctx context.Context, cmd services.RecordTrackingCommand) (domain.Order, error) {
	if s.trackFn == nil {
		return domain.Order{}, errors.New("tracking not implemented")
	}
	return s.trackFn(ctx, cmd)
}

func (s *stubOrderService) MarkPayment(ctx context.Context, cmd services.MarkPaymentCommand) (domain.Order, error) {
	if s.paymentFn == nil {
		return domain.Order{}, errors.New("payment not implemented")
	}
	return s.paymentFn(ctx, cmd)
}

func withTestIdentity(req *http.Request, uid string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func newOrderRouter(orders services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(orders).Routes(r)
	return r
}

func TestGetOrderRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
	rec := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}

func TestGetOrderScopesToOwner(t *testing.T) {
	var captured services.OrderReadScope
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string, scope services.OrderReadScope) (domain.Order, error) {
			captured = scope
			return domain.Order{ID: orderID, UserID: scope.UserID}, nil
		},
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/ord_1", nil), "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(orders).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected scope user-1, got %q", captured.UserID)
	}
}

func TestGetOrderAdminIsUnscoped(t *testing.T) {
	var captured services.OrderReadScope
	orders := &stubOrderService{
		getFn: func(_ context.Context, orderID string, scope services.OrderReadScope) (domain.Order, error) {
			captured = scope
			return domain.Order{ID: orderID}, nil
		},
	}

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/ord_1", nil), "admin-1", auth.RoleAdmin)
	rec := httptest.NewRecorder()
	newOrderRouter(orders).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.UserID != "" {
		t.Fatalf("admin reads must be unscoped, got %q", captured.UserID)
	}
}

func TestCancelOrderPassesReasonAndScope(t *testing.T) {
	var captured services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			captured = cmd
			reason := cmd.Reason
			return domain.Order{
				ID:           cmd.OrderID,
				OrderStatus:  domain.OrderStatusCancelled,
				CancelReason: &reason,
			}, nil
		},
	}

	body := strings.NewReader(`{"reason":"ordered wrong size"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/ord_1/cancel", body), "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(orders).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Reason != "ordered wrong size" {
		t.Fatalf("expected reason forwarded, got %q", captured.Reason)
	}
	if captured.Scope.UserID != "user-1" {
		t.Fatalf("expected owner scope, got %q", captured.Scope.UserID)
	}

	var payload struct {
		Order struct {
			OrderStatus  string `json:"orderStatus"`
			CancelReason string `json:"cancelReason"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Order.OrderStatus != "cancelled" || payload.Order.CancelReason != "ordered wrong size" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCancelOrderInvalidTransitionConflicts(t *testing.T) {
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, _ services.CancelOrderCommand) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: shipped to cancelled", services.ErrOrderInvalidTransition)
		},
	}

	body := strings.NewReader(`{"reason":"too late"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/ord_1/cancel", body), "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(orders).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestListMyOrdersUsesIdentity(t *testing.T) {
	var captured services.OrderQuery
	orders := &stubOrderService{
		listFn: func(_ context.Context, query services.OrderQuery) (domain.Page[domain.Order], error) {
			captured = query
			return domain.Page[domain.Order]{Page: 1, Limit: 20}, nil
		},
	}

	r := chi.NewRouter()
	NewOrderHandlers(orders).MeRoutes(r)
	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders?status=pending", nil), "user-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected listing scoped to user-1, got %q", captured.UserID)
	}
	if captured.Status != domain.OrderStatusPending {
		t.Fatalf("expected status filter forwarded, got %q", captured.Status)
	}
}

func TestCheckoutHandlerBuildsCommandFromIdentity(t *testing.T) {
	var captured services.CheckoutCommand
	orders := &stubOrderService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: "ord_1", OrderNumber: "ORD-20260301-ABCDEFGH"}, nil
		},
	}

	r := chi.NewRouter()
	NewCheckoutHandlers(orders).Routes(r)

	body := strings.NewReader(`{
		"items": [{"productId": "prd_tee", "quantity": 2, "size": "L"}],
		"shippingAddress": {
			"name": "Asha Rao", "email": "asha@example.com", "phone": "9876543210",
			"address": "12 MG Road", "city": "Bengaluru", "state": "Karnataka", "pincode": "560001"
		},
		"paymentMethod": "cod"
	}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/", body), "user-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" || captured.UserEmail != "user-1@example.com" {
		t.Fatalf("expected identity on command, got %q/%q", captured.UserID, captured.UserEmail)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prd_tee" || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}
	if captured.ShippingAddress.Pincode != "560001" {
		t.Fatalf("unexpected address: %+v", captured.ShippingAddress)
	}
}

func TestCheckoutHandlerInsufficientStockConflicts(t *testing.T) {
	orders := &stubOrderService{
		checkoutFn: func(_ context.Context, _ services.CheckoutCommand) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: product prd_tee", services.ErrInsufficientStock)
		},
	}

	r := chi.NewRouter()
	NewCheckoutHandlers(orders).Routes(r)

	body := strings.NewReader(`{"items":[{"productId":"prd_tee","quantity":99}],"shippingAddress":{"name":"a","email":"a@b.c","phone":"1","address":"x","city":"y","state":"z","pincode":"1"},"paymentMethod":"cod"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/", body), "user-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	var payload struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error != "insufficient_stock" {
		t.Fatalf("unexpected error code %q", payload.Error)
	}
}

func TestCancelOrderEmptyBodyRejected(t *testing.T) {
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/ord_1/cancel", strings.NewReader("")), "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rec.Code)
	}
}

func TestCancelOrderRejectsUnknownFields(t *testing.T) {
	body := strings.NewReader(`{"reason":"changed my mind","priority":"high"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/ord_1/cancel", body), "user-1")
	rec := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
