package repositories

import (
	"context"

	"github.com/rarewear/storefront-api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	Category    string
	Gender      string
	Search      string
	InStockOnly bool
	Page        int
	Limit       int
}

// OrderListFilter narrows order listings. UserID is empty for admin-wide listings.
type OrderListFilter struct {
	UserID        string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Search        string
	Page          int
	Limit         int
}

// LowStockQuery selects products at or below a stock threshold.
type LowStockQuery struct {
	Threshold int
	Page      int
	Limit     int
}

// OrderMutation describes the fields an order transition writes, including the
// stock effect to apply atomically alongside the status change.
type OrderMutation struct {
	OrderStatus    domain.OrderStatus
	PaymentStatus  domain.PaymentStatus
	TrackingNumber *string
	CancelReason   *string
	StockEffect    domain.StockEffect
}

// ApplyOrderFunc inspects the current order inside the transaction and decides
// the mutation. Returning an error aborts the transaction unchanged.
type ApplyOrderFunc func(current domain.Order) (OrderMutation, error)

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.Page[domain.Product], error)
}

// OrderRepository persists orders with transactional stock and order-number guarantees.
type OrderRepository interface {
	// Insert stores a new order after verifying, in the same transaction, that
	// every line has sufficient stock and that the order number is unused.
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// ApplyTransition re-reads the order inside a transaction, lets apply decide
	// the mutation, and applies any stock effect exactly once per effect type.
	ApplyTransition(ctx context.Context, orderID string, apply ApplyOrderFunc) (domain.Order, error)
}

// InventoryRepository manages stock levels outside the order lifecycle.
type InventoryRepository interface {
	AdjustStock(ctx context.Context, productID string, delta int) (domain.StockLevel, error)
	SetStock(ctx context.Context, productID string, quantity int) (domain.StockLevel, error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.Page[domain.StockLevel], error)
	GetEffect(ctx context.Context, orderID string) (domain.StockEffectRecord, error)
}

// StatsRepository answers aggregate questions for the admin dashboard.
type StatsRepository interface {
	CountProducts(ctx context.Context) (int64, error)
	OrderStats(ctx context.Context, excludeCancelledRevenue bool) (domain.DashboardStats, error)
}

// HealthRepository verifies backing store connectivity for readiness probes.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
