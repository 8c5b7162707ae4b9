package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventPaymentChanged = "order.payment.changed"

	orderIDPrefix = "ord_"

	defaultOrderNumberAttempts = 3
	orderNumberSuffixLength    = 8
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the requested lifecycle move is not allowed.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrInsufficientStock indicates a line cannot be satisfied from stock.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderConflict indicates duplicates or concurrent write conflicts.
	ErrOrderConflict = errors.New("order: conflict")
)

// orderStateTransitions is the lifecycle graph. Cancelled is reachable from
// pending, confirmed and processing only; delivered and cancelled are terminal.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

// paymentTransitions is the payment graph, independent of the order lifecycle.
var paymentTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending: {domain.PaymentStatusPaid, domain.PaymentStatusFailed},
	domain.PaymentStatusPaid:    {domain.PaymentStatusRefunded},
}

// stockEffectForStatus names the inventory side effect of entering a status.
// The per-order ledger in the repository keeps each effect idempotent, so a
// cancel after pending (never decremented) restores nothing.
var stockEffectForStatus = map[domain.OrderStatus]domain.StockEffect{
	domain.OrderStatusConfirmed: domain.StockEffectDecrement,
	domain.OrderStatusCancelled: domain.StockEffectRestore,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders              repositories.OrderRepository
	Products            repositories.ProductRepository
	Clock               func() time.Time
	IDGenerator         func() string
	TaxRateBasisPoints  int64
	OrderNumberAttempts int
	Events              OrderEventPublisher
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	products       repositories.ProductRepository
	clock          func() time.Time
	newID          func() string
	taxRateBP      int64
	numberAttempts int
	events         OrderEventPublisher
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.TaxRateBasisPoints < 0 {
		return nil, errors.New("order service: tax rate cannot be negative")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	attempts := deps.OrderNumberAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberAttempts
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:          idGen,
		taxRateBP:      deps.TaxRateBasisPoints,
		numberAttempts: attempts,
		events:         deps.Events,
		logger:         logger,
	}, nil
}

func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	userEmail := strings.TrimSpace(cmd.UserEmail)
	if userEmail == "" {
		return domain.Order{}, fmt.Errorf("%w: user email is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return domain.Order{}, err
	}
	paymentMethod := strings.TrimSpace(cmd.PaymentMethod)
	if paymentMethod == "" {
		return domain.Order{}, fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}

	items, subtotal, err := s.buildOrderItems(ctx, cmd.Items)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	tax := taxFor(subtotal, s.taxRateBP)

	order := domain.Order{
		ID:              orderIDPrefix + s.newID(),
		UserID:          userID,
		UserEmail:       userEmail,
		Items:           items,
		ShippingAddress: cmd.ShippingAddress,
		PaymentMethod:   paymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		OrderStatus:     domain.OrderStatusPending,
		Subtotal:        subtotal,
		Tax:             tax,
		Total:           subtotal + tax,
	}

	var stored domain.Order
	for attempt := 0; attempt < s.numberAttempts; attempt++ {
		order.OrderNumber = s.generateOrderNumber(now)
		stored, err = s.orders.Insert(ctx, order)
		if err == nil {
			break
		}
		if isOrderNumberTaken(err) {
			s.logger(ctx, "order.number.collision", map[string]any{
				"orderNumber": order.OrderNumber,
				"attempt":     attempt + 1,
			})
			continue
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: order number allocation exhausted: %v", ErrOrderConflict, err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCreated,
		OrderID:        stored.ID,
		OrderNumber:    stored.OrderNumber,
		UserID:         stored.UserID,
		CurrentStatus:  string(stored.OrderStatus),
		CurrentPayment: string(stored.PaymentStatus),
		ActorID:        userID,
		OccurredAt:     now,
	})

	return stored, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, scope OrderReadScope) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	// Scoped reads never reveal whether a foreign order exists.
	if scoped := strings.TrimSpace(scope.UserID); scoped != "" && order.UserID != scoped {
		return domain.Order{}, fmt.Errorf("%w: order %s not found", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query OrderQuery) (domain.Page[domain.Order], error) {
	if query.Status != "" && !isKnownOrderStatus(query.Status) {
		return domain.Page[domain.Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, query.Status)
	}
	if query.PaymentStatus != "" && !isKnownPaymentStatus(query.PaymentStatus) {
		return domain.Page[domain.Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, query.PaymentStatus)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:        strings.TrimSpace(query.UserID),
		Status:        query.Status,
		PaymentStatus: query.PaymentStatus,
		Search:        strings.TrimSpace(query.Search),
		Page:          query.Page,
		Limit:         query.Limit,
	})
	if err != nil {
		return domain.Page[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) Transition(ctx context.Context, cmd TransitionCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !isKnownOrderStatus(cmd.Target) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Target)
	}

	reason := strings.TrimSpace(cmd.CancelReason)
	if cmd.Target == domain.OrderStatusCancelled && reason == "" {
		return domain.Order{}, fmt.Errorf("%w: cancel reason is required", ErrOrderInvalidInput)
	}

	var prevStatus domain.OrderStatus
	updated, err := s.orders.ApplyTransition(ctx, orderID, func(current domain.Order) (repositories.OrderMutation, error) {
		if !canTransition(current.OrderStatus, cmd.Target) {
			return repositories.OrderMutation{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, current.OrderStatus, cmd.Target)
		}
		prevStatus = current.OrderStatus

		mutation := repositories.OrderMutation{
			OrderStatus:   cmd.Target,
			PaymentStatus: current.PaymentStatus,
			StockEffect:   stockEffectForStatus[cmd.Target],
		}
		if cmd.Target == domain.OrderStatusCancelled {
			mutation.CancelReason = &reason
		}
		return mutation, nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.OrderStatus),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     s.clock(),
		Metadata:       transitionMetadata(reason),
	})

	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return domain.Order{}, fmt.Errorf("%w: cancel reason is required", ErrOrderInvalidInput)
	}

	if scoped := strings.TrimSpace(cmd.Scope.UserID); scoped != "" {
		// Ownership check before mutation; the transition re-reads in-tx.
		if _, err := s.GetOrder(ctx, orderID, cmd.Scope); err != nil {
			return domain.Order{}, err
		}
	}

	return s.Transition(ctx, TransitionCommand{
		OrderID:      orderID,
		Target:       domain.OrderStatusCancelled,
		CancelReason: reason,
		ActorID:      cmd.ActorID,
	})
}

func (s *orderService) RecordTracking(ctx context.Context, cmd RecordTrackingCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	if tracking == "" {
		return domain.Order{}, fmt.Errorf("%w: tracking number is required", ErrOrderInvalidInput)
	}

	updated, err := s.orders.ApplyTransition(ctx, orderID, func(current domain.Order) (repositories.OrderMutation, error) {
		if current.OrderStatus == domain.OrderStatusCancelled {
			return repositories.OrderMutation{}, fmt.Errorf("%w: cancelled orders cannot receive tracking", ErrOrderInvalidTransition)
		}
		return repositories.OrderMutation{
			OrderStatus:    current.OrderStatus,
			PaymentStatus:  current.PaymentStatus,
			TrackingNumber: &tracking,
		}, nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *orderService) MarkPayment(ctx context.Context, cmd MarkPaymentCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !isKnownPaymentStatus(cmd.Target) {
		return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Target)
	}

	var prevPayment domain.PaymentStatus
	updated, err := s.orders.ApplyTransition(ctx, orderID, func(current domain.Order) (repositories.OrderMutation, error) {
		if !canTransitionPayment(current.PaymentStatus, cmd.Target) {
			return repositories.OrderMutation{}, fmt.Errorf("%w: payment %s to %s", ErrOrderInvalidTransition, current.PaymentStatus, cmd.Target)
		}
		prevPayment = current.PaymentStatus
		return repositories.OrderMutation{
			OrderStatus:   current.OrderStatus,
			PaymentStatus: cmd.Target,
		}, nil
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:            orderEventPaymentChanged,
		OrderID:         updated.ID,
		OrderNumber:     updated.OrderNumber,
		UserID:          updated.UserID,
		PreviousPayment: string(prevPayment),
		CurrentPayment:  string(updated.PaymentStatus),
		CurrentStatus:   string(updated.OrderStatus),
		ActorID:         strings.TrimSpace(cmd.ActorID),
		OccurredAt:      s.clock(),
	})

	return updated, nil
}

// buildOrderItems resolves every requested line against the catalog and
// snapshots the fields that must stay frozen on the order.
func (s *orderService) buildOrderItems(ctx context.Context, requested []CheckoutItem) ([]domain.OrderItem, int64, error) {
	items := make([]domain.OrderItem, 0, len(requested))
	var subtotal int64

	for _, line := range requested {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, 0, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: item quantity must be positive", ErrOrderInvalidInput)
		}

		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, 0, fmt.Errorf("%w: product %s", ErrProductNotFound, productID)
			}
			return nil, 0, s.mapRepositoryError(err)
		}

		item := domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  line.Quantity,
			Size:      strings.TrimSpace(line.Size),
			Color:     strings.TrimSpace(line.Color),
		}
		if len(product.Images) > 0 {
			item.Image = product.Images[0]
		}
		items = append(items, item)
		subtotal += product.Price * int64(line.Quantity)
	}
	return items, subtotal, nil
}

func (s *orderService) generateOrderNumber(now time.Time) string {
	suffix := s.newID()
	if len(suffix) > orderNumberSuffixLength {
		suffix = suffix[len(suffix)-orderNumberSuffixLength:]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(suffix))
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	// Domain errors raised inside transaction callbacks pass through untouched.
	if errors.Is(err, ErrOrderInvalidTransition) || errors.Is(err, ErrOrderInvalidInput) || errors.Is(err, ErrOrderNotFound) {
		return err
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, invErr.ProductID)
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: product %s", ErrProductNotFound, invErr.ProductID)
		}
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repositories.OrderErrorNumberTaken:
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repositories.OrderErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return err
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	for _, allowed := range orderStateTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

func canTransitionPayment(current, target domain.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

func isKnownOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusProcessing,
		domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return true
	}
	return false
}

func isKnownPaymentStatus(status domain.PaymentStatus) bool {
	switch status {
	case domain.PaymentStatusPending, domain.PaymentStatusPaid,
		domain.PaymentStatusFailed, domain.PaymentStatusRefunded:
		return true
	}
	return false
}

func isOrderNumberTaken(err error) bool {
	var orderErr *repositories.OrderError
	return errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorNumberTaken
}

func validateShippingAddress(addr domain.ShippingAddress) error {
	fields := map[string]string{
		"name":    addr.Name,
		"email":   addr.Email,
		"phone":   addr.Phone,
		"address": addr.Address,
		"city":    addr.City,
		"state":   addr.State,
		"pincode": addr.Pincode,
	}
	for field, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: shipping address %s is required", ErrOrderInvalidInput, field)
		}
	}
	return nil
}

// taxFor applies the basis-point rate with half-up integer rounding.
func taxFor(subtotal, basisPoints int64) int64 {
	if subtotal <= 0 || basisPoints <= 0 {
		return 0
	}
	return (subtotal*basisPoints + 5000) / 10000
}

func transitionMetadata(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}
