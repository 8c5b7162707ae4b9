package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/text/cases"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rarewear/storefront-api/internal/domain"
	pfirestore "github.com/rarewear/storefront-api/internal/platform/firestore"
	"github.com/rarewear/storefront-api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
	stockEffectsCollection = "stockEffects"
)

// OrderRepository persists orders in Firestore. Stock checks, stock effects
// and order-number reservations run in the same transaction as the order
// write, so no interleaving can oversell or duplicate a number.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	numbers  *pfirestore.BaseRepository[orderNumberDocument]
	effects  *pfirestore.BaseRepository[stockEffectDocument]
	products *pfirestore.BaseRepository[productDocument]
	now      func() time.Time
}

// OrderRepositoryOption customises OrderRepository construction.
type OrderRepositoryOption func(*OrderRepository)

// WithOrderClock injects a custom clock, primarily for tests.
func WithOrderClock(clock func() time.Time) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewOrderRepository constructs a Firestore backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, opts ...OrderRepositoryOption) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	repo := &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		numbers:  pfirestore.NewBaseRepository[orderNumberDocument](provider, orderNumbersCollection, nil, nil),
		effects:  pfirestore.NewBaseRepository[stockEffectDocument](provider, stockEffectsCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Insert stores a new order after verifying stock availability for every line
// and claiming the order number. Stock is not decremented here; that happens
// when the order is confirmed.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order insert: id is required", nil)
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order insert: order number is required", nil)
	}
	if len(order.Items) == 0 {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order insert: at least one item is required", nil)
	}

	now := r.now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	doc := newOrderDocument(order)

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, line := range aggregateStockLines(order.Items) {
			productRef, err := r.products.DocumentRef(ctx, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return &repositories.InventoryError{
						Code:      repositories.InventoryErrorProductNotFound,
						Message:   fmt.Sprintf("product %s not found", line.ProductID),
						ProductID: line.ProductID,
						Err:       err,
					}
				}
				return err
			}
			productDoc, err := decodeProduct(snap)
			if err != nil {
				return err
			}
			if productDoc.StockQuantity < line.Quantity {
				return &repositories.InventoryError{
					Code:      repositories.InventoryErrorInsufficientStock,
					Message:   fmt.Sprintf("insufficient stock for product %s", line.ProductID),
					ProductID: line.ProductID,
				}
			}
		}

		numberRef, err := r.numbers.DocumentRef(ctx, order.OrderNumber)
		if err != nil {
			return err
		}
		if err := tx.Create(numberRef, orderNumberDocument{OrderID: order.ID, CreatedAt: now}); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewOrderError(repositories.OrderErrorNumberTaken, fmt.Sprintf("order number %s already exists", order.OrderNumber), err)
			}
			return err
		}

		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.insert", err)
	}
	return doc.toDomain(order.ID), nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order get: id is required", nil)
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, wrapOrderError("orders.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders newest first. Status, payment status, user filters and
// offset pagination run server side. The free-text search matches order
// numbers and customer emails in memory over at most the newest
// searchWindowLimit orders passing the other filters.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	build := func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if filter.Status != "" {
			q = q.Where("orderStatus", "==", string(filter.Status))
		}
		if filter.PaymentStatus != "" {
			q = q.Where("paymentStatus", "==", string(filter.PaymentStatus))
		}
		return q.OrderBy("createdAt", firestore.Desc)
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
			return build(q).Limit(searchWindowLimit)
		})
		if err != nil {
			return domain.Page[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		orders := make([]domain.Order, 0, len(docs))
		for _, doc := range docs {
			orders = append(orders, doc.Data.toDomain(doc.ID))
		}
		return pageOf(filterOrdersBySearch(orders, search), filter.Page, filter.Limit), nil
	}

	docs, total, err := queryPage(ctx, r.orders, build, filter.Page, filter.Limit)
	if err != nil {
		return domain.Page[domain.Order]{}, wrapOrderError("orders.list", err)
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return pagedResult(orders, total, filter.Page, filter.Limit), nil
}

// ApplyTransition re-reads the order inside a transaction, asks apply for the
// mutation, and applies the stock effect exactly once per effect type using
// the per-order effect ledger.
func (r *OrderRepository) ApplyTransition(ctx context.Context, orderID string, apply repositories.ApplyOrderFunc) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order transition: id is required", nil)
	}
	if apply == nil {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidInput, "order transition: apply function is required", nil)
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		current := orderDoc.toDomain(orderID)

		mutation, err := apply(current)
		if err != nil {
			return err
		}

		now := r.now().UTC()

		// Firestore requires all reads before any write, so the effect plan is
		// fully resolved before mutating documents.
		var pendingWrites []pendingProductWrite
		var effectDoc stockEffectDocument
		var effectRef *firestore.DocumentRef
		writeEffect := false

		if mutation.StockEffect != domain.StockEffectNone {
			effectRef, err = r.effects.DocumentRef(ctx, orderID)
			if err != nil {
				return err
			}
			effectSnap, err := tx.Get(effectRef)
			switch {
			case err == nil:
				if err := effectSnap.DataTo(&effectDoc); err != nil {
					return fmt.Errorf("decode stock effect %s: %w", orderID, err)
				}
			case status.Code(err) == codes.NotFound:
				effectDoc = stockEffectDocument{Lines: newStockLineDocuments(aggregateStockLines(current.Items))}
			default:
				return err
			}

			sign, applies := resolveStockEffect(mutation.StockEffect, effectDoc)
			if applies {
				pendingWrites, err = r.planStockChange(ctx, tx, effectDoc.Lines, sign, now)
				if err != nil {
					return err
				}
				if sign < 0 {
					effectDoc.DecrementedAt = &now
				} else {
					effectDoc.RestoredAt = &now
				}
				writeEffect = true
			}
		}

		orderDoc.OrderStatus = string(mutation.OrderStatus)
		orderDoc.PaymentStatus = string(mutation.PaymentStatus)
		if mutation.TrackingNumber != nil {
			orderDoc.TrackingNumber = mutation.TrackingNumber
		}
		if mutation.CancelReason != nil {
			orderDoc.CancelReason = mutation.CancelReason
		}
		orderDoc.UpdatedAt = now

		for _, write := range pendingWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		if writeEffect {
			effectDoc.UpdatedAt = now
			if err := tx.Set(effectRef, effectDoc); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}

		updated = orderDoc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.transition", err)
	}
	return updated, nil
}

type pendingProductWrite struct {
	ref *firestore.DocumentRef
	doc productDocument
}

// resolveStockEffect decides whether the requested effect still applies given
// the ledger recorded for the order, and in which direction stock moves.
// Decrements apply at most once. Restores apply at most once and only after a
// decrement, so cancelling an order that never reached confirmed leaves stock
// untouched.
func resolveStockEffect(effect domain.StockEffect, ledger stockEffectDocument) (sign int, applies bool) {
	switch effect {
	case domain.StockEffectDecrement:
		if ledger.DecrementedAt == nil {
			return -1, true
		}
	case domain.StockEffectRestore:
		if ledger.DecrementedAt != nil && ledger.RestoredAt == nil {
			return 1, true
		}
	}
	return 0, false
}

// applyStockDelta computes the post-change product document for one stock
// line. sign is -1 for decrement, +1 for restore; the quantity never goes
// negative, which is the commit-time re-check backing the pre-check done at
// order creation.
func applyStockDelta(doc productDocument, line stockLineDocument, sign int, now time.Time) (productDocument, error) {
	next := doc.StockQuantity + sign*line.Quantity
	if next < 0 {
		return productDocument{}, &repositories.InventoryError{
			Code:      repositories.InventoryErrorInsufficientStock,
			Message:   fmt.Sprintf("insufficient stock for product %s", line.ProductID),
			ProductID: line.ProductID,
		}
	}
	doc.StockQuantity = next
	doc.UpdatedAt = now
	doc.recalculate()
	return doc, nil
}

// planStockChange reads every affected product and computes the post-change
// documents. sign is -1 for decrement, +1 for restore. Missing products fail
// decrements but are skipped on restores, since the catalog entry may have
// been deleted after the order shipped out of pending.
func (r *OrderRepository) planStockChange(ctx context.Context, tx *firestore.Transaction, lines []stockLineDocument, sign int, now time.Time) ([]pendingProductWrite, error) {
	writes := make([]pendingProductWrite, 0, len(lines))
	for _, line := range lines {
		productRef, err := r.products.DocumentRef(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		snap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				if sign > 0 {
					continue
				}
				return nil, &repositories.InventoryError{
					Code:      repositories.InventoryErrorProductNotFound,
					Message:   fmt.Sprintf("product %s not found", line.ProductID),
					ProductID: line.ProductID,
					Err:       err,
				}
			}
			return nil, err
		}
		productDoc, err := decodeProduct(snap)
		if err != nil {
			return nil, err
		}

		changed, err := applyStockDelta(productDoc, line, sign, now)
		if err != nil {
			return nil, err
		}
		writes = append(writes, pendingProductWrite{ref: productRef, doc: changed})
	}
	return writes, nil
}

func filterOrdersBySearch(orders []domain.Order, search string) []domain.Order {
	folder := cases.Fold()
	needle := folder.String(search)

	matched := orders[:0]
	for _, order := range orders {
		haystack := folder.String(order.OrderNumber + " " + order.UserEmail)
		if strings.Contains(haystack, needle) {
			matched = append(matched, order)
		}
	}
	return matched
}

// aggregateStockLines merges order items into per-product quantities; the same
// product can appear on multiple lines with different sizes or colors.
func aggregateStockLines(items []domain.OrderItem) []domain.StockLine {
	index := make(map[string]int, len(items))
	lines := make([]domain.StockLine, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity <= 0 {
			continue
		}
		if i, ok := index[productID]; ok {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, domain.StockLine{ProductID: productID, Quantity: item.Quantity})
	}
	return lines
}

// Document structures --------------------------------------------------------

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	UserEmail       string              `firestore:"userEmail"`
	Items           []orderItemDocument `firestore:"items"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	PaymentStatus   string              `firestore:"paymentStatus"`
	OrderStatus     string              `firestore:"orderStatus"`
	Subtotal        int64               `firestore:"subtotal"`
	Tax             int64               `firestore:"tax"`
	Total           int64               `firestore:"total"`
	TrackingNumber  *string             `firestore:"trackingNumber,omitempty"`
	CancelReason    *string             `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Price     int64  `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
	Size      string `firestore:"size,omitempty"`
	Color     string `firestore:"color,omitempty"`
	Image     string `firestore:"image,omitempty"`
}

type addressDocument struct {
	Name    string `firestore:"name"`
	Email   string `firestore:"email"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Pincode string `firestore:"pincode"`
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type stockEffectDocument struct {
	Lines         []stockLineDocument `firestore:"lines"`
	DecrementedAt *time.Time          `firestore:"decrementedAt,omitempty"`
	RestoredAt    *time.Time          `firestore:"restoredAt,omitempty"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

type stockLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"qty"`
}

func newStockLineDocuments(lines []domain.StockLine) []stockLineDocument {
	out := make([]stockLineDocument, len(lines))
	for i, line := range lines {
		out[i] = stockLineDocument{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return out
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Price:     item.Price,
			Quantity:  item.Quantity,
			Size:      strings.TrimSpace(item.Size),
			Color:     strings.TrimSpace(item.Color),
			Image:     strings.TrimSpace(item.Image),
		}
	}
	return orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		UserEmail:   strings.TrimSpace(order.UserEmail),
		Items:       items,
		ShippingAddress: addressDocument{
			Name:    strings.TrimSpace(order.ShippingAddress.Name),
			Email:   strings.TrimSpace(order.ShippingAddress.Email),
			Phone:   strings.TrimSpace(order.ShippingAddress.Phone),
			Address: strings.TrimSpace(order.ShippingAddress.Address),
			City:    strings.TrimSpace(order.ShippingAddress.City),
			State:   strings.TrimSpace(order.ShippingAddress.State),
			Pincode: strings.TrimSpace(order.ShippingAddress.Pincode),
		},
		PaymentMethod:  strings.TrimSpace(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		OrderStatus:    string(order.OrderStatus),
		Subtotal:       order.Subtotal,
		Tax:            order.Tax,
		Total:          order.Total,
		TrackingNumber: order.TrackingNumber,
		CancelReason:   order.CancelReason,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Image:     item.Image,
		}
	}
	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		UserEmail:   d.UserEmail,
		Items:       items,
		ShippingAddress: domain.ShippingAddress{
			Name:    d.ShippingAddress.Name,
			Email:   d.ShippingAddress.Email,
			Phone:   d.ShippingAddress.Phone,
			Address: d.ShippingAddress.Address,
			City:    d.ShippingAddress.City,
			State:   d.ShippingAddress.State,
			Pincode: d.ShippingAddress.Pincode,
		},
		PaymentMethod:  d.PaymentMethod,
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		OrderStatus:    domain.OrderStatus(d.OrderStatus),
		Subtotal:       d.Subtotal,
		Tax:            d.Tax,
		Total:          d.Total,
		TrackingNumber: d.TrackingNumber,
		CancelReason:   d.CancelReason,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
