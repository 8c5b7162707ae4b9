package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/repositories"
)

type stubOrderRepository struct {
	insertFn func(ctx context.Context, order domain.Order) (domain.Order, error)
	findFn   func(ctx context.Context, orderID string) (domain.Order, error)
	listFn   func(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error)
	applyFn  func(ctx context.Context, orderID string, apply repositories.ApplyOrderFunc) (domain.Order, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.insertFn == nil {
		return domain.Order{}, errors.New("insert not implemented")
	}
	return s.insertFn(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn == nil {
		return domain.Order{}, errors.New("find not implemented")
	}
	return s.findFn(ctx, orderID)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if s.listFn == nil {
		return domain.Page[domain.Order]{}, errors.New("list not implemented")
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderRepository) ApplyTransition(ctx context.Context, orderID string, apply repositories.ApplyOrderFunc) (domain.Order, error) {
	if s.applyFn == nil {
		return domain.Order{}, errors.New("apply not implemented")
	}
	return s.applyFn(ctx, orderID, apply)
}

type stubProductRepository struct {
	insertFn func(ctx context.Context, product domain.Product) error
	updateFn func(ctx context.Context, product domain.Product) error
	deleteFn func(ctx context.Context, productID string) error
	findFn   func(ctx context.Context, productID string) (domain.Product, error)
	listFn   func(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error)
}

func (s *stubProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn == nil {
		return errors.New("insert not implemented")
	}
	return s.insertFn(ctx, product)
}

func (s *stubProductRepository) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn == nil {
		return errors.New("update not implemented")
	}
	return s.updateFn(ctx, product)
}

func (s *stubProductRepository) Delete(ctx context.Context, productID string) error {
	if s.deleteFn == nil {
		return errors.New("delete not implemented")
	}
	return s.deleteFn(ctx, productID)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn == nil {
		return domain.Product{}, errors.New("find not implemented")
	}
	return s.findFn(ctx, productID)
}

func (s *stubProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	if s.listFn == nil {
		return domain.Page[domain.Product]{}, errors.New("list not implemented")
	}
	return s.listFn(ctx, filter)
}

type stubNotFoundError struct{}

func (stubNotFoundError) Error() string       { return "not found" }
func (stubNotFoundError) IsNotFound() bool    { return true }
func (stubNotFoundError) IsConflict() bool    { return false }
func (stubNotFoundError) IsUnavailable() bool { return false }

type capturedOrderEvents struct {
	events []OrderEvent
	err    error
}

func (c *capturedOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testCatalog(products map[string]domain.Product) *stubProductRepository {
	return &stubProductRepository{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			product, ok := products[productID]
			if !ok {
				return domain.Product{}, stubNotFoundError{}
			}
			return product, nil
		},
	}
}

func validCheckoutAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		Name:    "Asha Rao",
		Email:   "asha@example.com",
		Phone:   "9876543210",
		Address: "12 MG Road",
		City:    "Bengaluru",
		State:   "Karnataka",
		Pincode: "560001",
	}
}

func TestCheckoutComputesTotalsAndSnapshotsItems(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	products := map[string]domain.Product{
		"prd_tee": {
			ID:            "prd_tee",
			Name:          "Heavyweight Tee",
			Price:         4399,
			MRP:           5499,
			Images:        []string{"https://img.example.com/tee.jpg"},
			StockQuantity: 10,
			InStock:       true,
		},
		"prd_cap": {
			ID:            "prd_cap",
			Name:          "Logo Cap",
			Price:         1000,
			MRP:           1000,
			StockQuantity: 4,
			InStock:       true,
		},
	}

	var inserted domain.Order
	orders := &stubOrderRepository{
		insertFn: func(_ context.Context, order domain.Order) (domain.Order, error) {
			inserted = order
			return order, nil
		},
	}

	events := &capturedOrderEvents{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:             orders,
		Products:           testCatalog(products),
		Clock:              fixedClock(now),
		IDGenerator:        func() string { return "01HTESTULID0000000ABCDEFGH" },
		TaxRateBasisPoints: 500,
		Events:             events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.Checkout(context.Background(), CheckoutCommand{
		UserID:    "user-1",
		UserEmail: "asha@example.com",
		Items: []CheckoutItem{
			{ProductID: "prd_tee", Quantity: 2, Size: "L", Color: "black"},
			{ProductID: "prd_cap", Quantity: 1},
		},
		ShippingAddress: validCheckoutAddress(),
		PaymentMethod:   "cod",
	})
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}

	if order.Subtotal != 9798 {
		t.Fatalf("expected subtotal 9798, got %d", order.Subtotal)
	}
	if order.Tax != 490 {
		t.Fatalf("expected tax 490, got %d", order.Tax)
	}
	if order.Total != 10288 {
		t.Fatalf("expected total 10288, got %d", order.Total)
	}
	if order.OrderStatus != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.OrderStatus)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", order.PaymentStatus)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("expected ord_ id prefix, got %s", order.ID)
	}
	if want := "ORD-20260301-ABCDEFGH"; order.OrderNumber != want {
		t.Fatalf("expected order number %s, got %s", want, order.OrderNumber)
	}

	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	tee := order.Items[0]
	if tee.Name != "Heavyweight Tee" || tee.Price != 4399 || tee.Quantity != 2 {
		t.Fatalf("unexpected snapshot for first item: %+v", tee)
	}
	if tee.Image != "https://img.example.com/tee.jpg" {
		t.Fatalf("expected first image snapshot, got %q", tee.Image)
	}
	if inserted.OrderNumber != order.OrderNumber {
		t.Fatalf("stored order number mismatch: %s vs %s", inserted.OrderNumber, order.OrderNumber)
	}

	if len(events.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(events.events))
	}
	if events.events[0].Type != "order.created" {
		t.Fatalf("expected order.created event, got %s", events.events[0].Type)
	}
}

func TestCheckoutRejectsIncompleteAddress(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   &stubOrderRepository{},
		Products: testCatalog(nil),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	addr := validCheckoutAddress()
	addr.Pincode = "  "
	_, err = svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "user-1",
		UserEmail:       "asha@example.com",
		Items:           []CheckoutItem{{ProductID: "prd_tee", Quantity: 1}},
		ShippingAddress: addr,
		PaymentMethod:   "cod",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestCheckoutUnknownProduct(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   &stubOrderRepository{},
		Products: testCatalog(nil),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "user-1",
		UserEmail:       "asha@example.com",
		Items:           []CheckoutItem{{ProductID: "prd_missing", Quantity: 1}},
		ShippingAddress: validCheckoutAddress(),
		PaymentMethod:   "cod",
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCheckoutNeverTrustsClientQuantities(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   &stubOrderRepository{},
		Products: testCatalog(nil),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "user-1",
		UserEmail:       "asha@example.com",
		Items:           []CheckoutItem{{ProductID: "prd_tee", Quantity: 0}},
		ShippingAddress: validCheckoutAddress(),
		PaymentMethod:   "cod",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for zero quantity, got %v", err)
	}
}

func TestCheckoutRetriesOrderNumberCollisions(t *testing.T) {
	products := map[string]domain.Product{
		"prd_tee": {ID: "prd_tee", Name: "Heavyweight Tee", Price: 4399, StockQuantity: 10},
	}

	attempts := 0
	orders := &stubOrderRepository{
		insertFn: func(_ context.Context, order domain.Order) (domain.Order, error) {
			attempts++
			if attempts < 3 {
				return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNumberTaken, "number exists", nil)
			}
			return order, nil
		},
	}

	ids := 0
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   orders,
		Products: testCatalog(products),
		IDGenerator: func() string {
			ids++
			return fmt.Sprintf("01HTESTULID00000000SUFFIX%d", ids)
		},
		OrderNumberAttempts: 3,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "user-1",
		UserEmail:       "asha@example.com",
		Items:           []CheckoutItem{{ProductID: "prd_tee", Quantity: 1}},
		ShippingAddress: validCheckoutAddress(),
		PaymentMethod:   "cod",
	})
	if err != nil {
		t.Fatalf("Checkout returned error after retries: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", attempts)
	}
	if order.OrderNumber == "" {
		t.Fatalf("expected allocated order number")
	}
}

func TestCheckoutOrderNumberExhaustion(t *testing.T) {
	products := map[string]domain.Product{
		"prd_tee": {ID: "prd_tee", Name: "Heavyweight Tee", Price: 4399, StockQuantity: 10},
	}
	orders := &stubOrderRepository{
		insertFn: func(_ context.Context, _ domain.Order) (domain.Order, error) {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNumberTaken, "number exists", nil)
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:              orders,
		Products:            testCatalog(products),
		OrderNumberAttempts: 2,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "user-1",
		UserEmail:       "asha@example.com",
		Items:           []CheckoutItem{{ProductID: "prd_tee", Quantity: 1}},
		ShippingAddress: validCheckoutAddress(),
		PaymentMethod:   "cod",
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}

func transitionRepo(current domain.Order, captured *repositories.OrderMutation) *stubOrderRepository {
	return &stubOrderRepository{
		applyFn: func(_ context.Context, _ string, apply repositories.ApplyOrderFunc) (domain.Order, error) {
			mutation, err := apply(current)
			if err != nil {
				return domain.Order{}, err
			}
			if captured != nil {
				*captured = mutation
			}
			updated := current
			updated.OrderStatus = mutation.OrderStatus
			updated.PaymentStatus = mutation.PaymentStatus
			if mutation.TrackingNumber != nil {
				updated.TrackingNumber = mutation.TrackingNumber
			}
			if mutation.CancelReason != nil {
				updated.CancelReason = mutation.CancelReason
			}
			return updated, nil
		},
	}
}

func newTransitionService(t *testing.T, orders repositories.OrderRepository) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   orders,
		Products: testCatalog(nil),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func TestTransitionConfirmDecrementsStock(t *testing.T) {
	current := domain.Order{ID: "ord_1", OrderStatus: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending}
	var mutation repositories.OrderMutation
	svc := newTransitionService(t, transitionRepo(current, &mutation))

	updated, err := svc.Transition(context.Background(), TransitionCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusConfirmed,
	})
	if err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if updated.OrderStatus != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.OrderStatus)
	}
	if mutation.StockEffect != domain.StockEffectDecrement {
		t.Fatalf("expected decrement effect, got %q", mutation.StockEffect)
	}
}

func TestTransitionShippedCannotCancel(t *testing.T) {
	current := domain.Order{ID: "ord_1", OrderStatus: domain.OrderStatusShipped}
	svc := newTransitionService(t, transitionRepo(current, nil))

	_, err := svc.Transition(context.Background(), TransitionCommand{
		OrderID:      "ord_1",
		Target:       domain.OrderStatusCancelled,
		CancelReason: "changed my mind",
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestTransitionCancelRequiresReason(t *testing.T) {
	svc := newTransitionService(t, &stubOrderRepository{})

	_, err := svc.Transition(context.Background(), TransitionCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusCancelled,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestTransitionDeliveredIsTerminal(t *testing.T) {
	current := domain.Order{ID: "ord_1", OrderStatus: domain.OrderStatusDelivered}
	svc := newTransitionService(t, transitionRepo(current, nil))

	_, err := svc.Transition(context.Background(), TransitionCommand{
		OrderID: "ord_1",
		Target:  domain.OrderStatusShipped,
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestCancelSetsRestoreEffectAndReason(t *testing.T) {
	current := domain.Order{ID: "ord_1", UserID: "user-1", OrderStatus: domain.OrderStatusConfirmed}
	var mutation repositories.OrderMutation
	svc := newTransitionService(t, transitionRepo(current, &mutation))

	updated, err := svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord_1",
		Reason:  "ordered wrong size",
		ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if updated.OrderStatus != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.OrderStatus)
	}
	if mutation.StockEffect != domain.StockEffectRestore {
		t.Fatalf("expected restore effect, got %q", mutation.StockEffect)
	}
	if mutation.CancelReason == nil || *mutation.CancelReason != "ordered wrong size" {
		t.Fatalf("expected cancel reason on mutation, got %v", mutation.CancelReason)
	}
}

func TestCancelScopedToOwner(t *testing.T) {
	current := domain.Order{ID: "ord_1", UserID: "user-1", OrderStatus: domain.OrderStatusPending}
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, _ string) (domain.Order, error) {
			return current, nil
		},
		applyFn: func(_ context.Context, _ string, _ repositories.ApplyOrderFunc) (domain.Order, error) {
			t.Fatal("apply must not run for a foreign order")
			return domain.Order{}, nil
		},
	}
	svc := newTransitionService(t, orders)

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord_1",
		Reason:  "not mine",
		Scope:   OrderReadScope{UserID: "user-2"},
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	orders := &stubOrderRepository{
		findFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", UserID: "user-1"}, nil
		},
	}
	svc := newTransitionService(t, orders)

	_, err := svc.GetOrder(context.Background(), "ord_1", OrderReadScope{UserID: "user-2"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}

	order, err := svc.GetOrder(context.Background(), "ord_1", OrderReadScope{UserID: "user-1"})
	if err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if order.ID != "ord_1" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestMarkPaymentFollowsPaymentGraph(t *testing.T) {
	current := domain.Order{ID: "ord_1", OrderStatus: domain.OrderStatusConfirmed, PaymentStatus: domain.PaymentStatusPending}
	var mutation repositories.OrderMutation
	svc := newTransitionService(t, transitionRepo(current, &mutation))

	updated, err := svc.MarkPayment(context.Background(), MarkPaymentCommand{
		OrderID: "ord_1",
		Target:  domain.PaymentStatusPaid,
	})
	if err != nil {
		t.Fatalf("MarkPayment returned error: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus)
	}
	if updated.OrderStatus != domain.OrderStatusConfirmed {
		t.Fatalf("payment change must not move the lifecycle, got %s", updated.OrderStatus)
	}
	if mutation.StockEffect != domain.StockEffectNone {
		t.Fatalf("payment change must not touch stock, got %q", mutation.StockEffect)
	}
}

func TestMarkPaymentRejectsBackwardsMove(t *testing.T) {
	current := domain.Order{ID: "ord_1", PaymentStatus: domain.PaymentStatusPaid}
	svc := newTransitionService(t, transitionRepo(current, nil))

	_, err := svc.MarkPayment(context.Background(), MarkPaymentCommand{
		OrderID: "ord_1",
		Target:  domain.PaymentStatusPending,
	})
	if !errors.Is(err, ErrOrderInvalidInput) && !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestRecordTrackingRejectsCancelledOrders(t *testing.T) {
	current := domain.Order{ID: "ord_1", OrderStatus: domain.OrderStatusCancelled}
	svc := newTransitionService(t, transitionRepo(current, nil))

	_, err := svc.RecordTracking(context.Background(), RecordTrackingCommand{
		OrderID:        "ord_1",
		TrackingNumber: "TRK123",
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestRecordTrackingStoresNumber(t *testing.T) {
	current := domain.Order{ID: "ord_1", OrderStatus: domain.OrderStatusShipped}
	var mutation repositories.OrderMutation
	svc := newTransitionService(t, transitionRepo(current, &mutation))

	updated, err := svc.RecordTracking(context.Background(), RecordTrackingCommand{
		OrderID:        "ord_1",
		TrackingNumber: "TRK123",
	})
	if err != nil {
		t.Fatalf("RecordTracking returned error: %v", err)
	}
	if updated.TrackingNumber == nil || *updated.TrackingNumber != "TRK123" {
		t.Fatalf("expected tracking number stored, got %v", updated.TrackingNumber)
	}
	if mutation.OrderStatus != domain.OrderStatusShipped {
		t.Fatalf("tracking must not change status, got %s", mutation.OrderStatus)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	svc := newTransitionService(t, &stubOrderRepository{})

	_, err := svc.ListOrders(context.Background(), OrderQuery{Status: "shipped_maybe"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestTaxForRoundsHalfUp(t *testing.T) {
	cases := []struct {
		subtotal int64
		bp       int64
		want     int64
	}{
		{9798, 500, 490},
		{100, 500, 5},
		{99, 500, 5},   // 4.95 rounds up
		{89, 500, 4},   // 4.45 rounds down
		{0, 500, 0},
		{1000, 0, 0},
	}
	for _, tc := range cases {
		if got := taxFor(tc.subtotal, tc.bp); got != tc.want {
			t.Fatalf("taxFor(%d, %d) = %d, want %d", tc.subtotal, tc.bp, got, tc.want)
		}
	}
}

func TestMapRepositoryErrorInventoryCodes(t *testing.T) {
	svc := &orderService{}

	insufficient := &repositories.InventoryError{Code: repositories.InventoryErrorInsufficientStock, ProductID: "prd_tee"}
	if err := svc.mapRepositoryError(insufficient); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	missing := &repositories.InventoryError{Code: repositories.InventoryErrorProductNotFound, ProductID: "prd_tee"}
	if err := svc.mapRepositoryError(missing); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
