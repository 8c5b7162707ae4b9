package domain

import (
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed but not yet confirmed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order was accepted and stock committed.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared for dispatch.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates valid payment states, evolving independently of OrderStatus.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not completed yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the payment succeeded.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the payment attempt failed. Terminal.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates a completed payment was refunded. Terminal.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Product is the catalog entity owned by the catalog store. Monetary fields
// are kept in the smallest currency unit. Discount and InStock are derived:
// Discount from MRP/Price, InStock from StockQuantity.
type Product struct {
	ID              string
	Name            string
	Subtitle        string
	Description     string
	LongDescription string
	MRP             int64
	Price           int64
	Discount        int
	Images          []string
	Colors          []string
	Sizes           []string
	Category        string
	Gender          string
	Features        []string
	FabricCare      []string
	Rating          float64
	Reviews         int
	InStock         bool
	StockQuantity   int
	SKU             string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is an immutable snapshot of one product line captured at order
// creation. It is never resynchronised with later catalog edits.
type OrderItem struct {
	ProductID string
	Name      string
	Price     int64
	Quantity  int
	Size      string
	Color     string
	Image     string
}

// ShippingAddress is the structured, fully required delivery address.
type ShippingAddress struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	State   string
	Pincode string
}

// Order captures an order header with its frozen line items and totals.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	UserEmail       string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   string
	PaymentStatus   PaymentStatus
	OrderStatus     OrderStatus
	Subtotal        int64
	Tax             int64
	Total           int64
	TrackingNumber  *string
	CancelReason    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StockEffect names the inventory side effect of a lifecycle transition.
type StockEffect string

const (
	// StockEffectNone applies no inventory change.
	StockEffectNone StockEffect = ""
	// StockEffectDecrement subtracts the order's quantities from stock.
	StockEffectDecrement StockEffect = "decrement"
	// StockEffectRestore adds the order's quantities back to stock.
	StockEffectRestore StockEffect = "restore"
)

// StockLine is a per-product quantity affected by an inventory operation.
type StockLine struct {
	ProductID string
	Quantity  int
}

// StockEffectRecord is the per-order ledger entry making inventory effects
// idempotent: an effect already recorded is never applied twice.
type StockEffectRecord struct {
	OrderID       string
	Lines         []StockLine
	DecrementedAt *time.Time
	RestoredAt    *time.Time
	UpdatedAt     time.Time
}

// StockLevel reports the current stock metrics for one product.
type StockLevel struct {
	ProductID     string
	Name          string
	SKU           string
	StockQuantity int
	InStock       bool
	UpdatedAt     time.Time
}

// Page packages offset-paginated list results. Page numbering is 1-indexed
// and Pages equals ceil(Total/Limit).
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Limit int
	Pages int
}

// DashboardStats aggregates read-only rollups for the admin dashboard.
type DashboardStats struct {
	TotalProducts   int64
	TotalOrders     int64
	PendingOrders   int64
	CancelledOrders int64
	DeliveredOrders int64
	Revenue         int64
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)
