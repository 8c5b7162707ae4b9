package services

import (
	"context"
	"errors"
	"time"

	"github.com/rarewear/storefront-api/internal/domain"
)

// ErrStoreUnavailable indicates a transient backing-store outage. Callers may
// retry the operation unchanged.
var ErrStoreUnavailable = errors.New("services: store unavailable")

// CatalogService owns product CRUD and catalog queries.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error)
	UpdateProduct(ctx context.Context, productID string, cmd UpsertProductCommand) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	QueryProducts(ctx context.Context, query ProductQuery) (domain.Page[domain.Product], error)
}

// UpsertProductCommand carries the writable product fields. Discount and
// InStock are derived server side and never accepted from callers.
type UpsertProductCommand struct {
	Name            string
	Subtitle        string
	Description     string
	LongDescription string
	MRP             int64
	Price           int64
	Images          []string
	Colors          []string
	Sizes           []string
	Category        string
	Gender          string
	Features        []string
	FabricCare      []string
	Rating          float64
	Reviews         int
	StockQuantity   int
	SKU             string
}

// ProductQuery narrows catalog listings.
type ProductQuery struct {
	Category    string
	Gender      string
	Search      string
	InStockOnly bool
	Page        int
	Limit       int
}

// OrderService owns checkout and the order lifecycle state machine.
type OrderService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string, scope OrderReadScope) (domain.Order, error)
	ListOrders(ctx context.Context, query OrderQuery) (domain.Page[domain.Order], error)
	Transition(ctx context.Context, cmd TransitionCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	RecordTracking(ctx context.Context, cmd RecordTrackingCommand) (domain.Order, error)
	MarkPayment(ctx context.Context, cmd MarkPaymentCommand) (domain.Order, error)
}

// CheckoutCommand captures a checkout request. Item prices are resolved from
// the catalog, never trusted from the caller.
type CheckoutCommand struct {
	UserID          string
	UserEmail       string
	Items           []CheckoutItem
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
}

// CheckoutItem is one requested cart line.
type CheckoutItem struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

// OrderReadScope restricts reads to an owning user. Empty UserID means
// unrestricted (admin) access.
type OrderReadScope struct {
	UserID string
}

// OrderQuery narrows order listings. UserID is empty for admin-wide queries.
type OrderQuery struct {
	UserID        string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Search        string
	Page          int
	Limit         int
}

// TransitionCommand moves an order to a target lifecycle status. Cancelling
// through Transition requires CancelReason.
type TransitionCommand struct {
	OrderID      string
	Target       domain.OrderStatus
	CancelReason string
	ActorID      string
}

// CancelOrderCommand cancels an order with a mandatory reason. Scope limits
// cancellation to the owning user when set.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
	Scope   OrderReadScope
}

// RecordTrackingCommand attaches a shipment tracking number.
type RecordTrackingCommand struct {
	OrderID        string
	TrackingNumber string
	ActorID        string
}

// MarkPaymentCommand moves an order's payment status along the payment graph.
type MarkPaymentCommand struct {
	OrderID string
	Target  domain.PaymentStatus
	ActorID string
}

// InventoryService owns stock operations outside the order lifecycle.
type InventoryService interface {
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (domain.StockLevel, error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.Page[domain.StockLevel], error)
	GetEffect(ctx context.Context, orderID string) (domain.StockEffectRecord, error)
}

// AdjustStockCommand changes a product's stock either by a relative delta or
// to an absolute quantity. Exactly one of Delta/Absolute must be set.
type AdjustStockCommand struct {
	ProductID string
	Delta     *int
	Absolute  *int
	ActorID   string
}

// LowStockQuery selects products at or below a threshold.
type LowStockQuery struct {
	Threshold int
	Page      int
	Limit     int
}

// AdminService answers dashboard aggregates.
type AdminService interface {
	DashboardStats(ctx context.Context) (domain.DashboardStats, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type            string
	OrderID         string
	OrderNumber     string
	UserID          string
	PreviousStatus  string
	CurrentStatus   string
	PreviousPayment string
	CurrentPayment  string
	ActorID         string
	OccurredAt      time.Time
	Metadata        map[string]any
}

// StockEventPublisher publishes inventory domain events.
type StockEventPublisher interface {
	PublishStockEvent(ctx context.Context, event StockEvent) error
}

// StockEvent captures metadata for emitted inventory events.
type StockEvent struct {
	Type          string
	ProductID     string
	StockQuantity int
	InStock       bool
	ActorID       string
	OccurredAt    time.Time
}
