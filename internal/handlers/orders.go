package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/platform/auth"
	"github.com/rarewear/storefront-api/internal/platform/httpx"
	"github.com/rarewear/storefront-api/internal/platform/pagination"
	"github.com/rarewear/storefront-api/internal/services"
)

const maxOrderBodyBytes = 64 * 1024

// OrderHandlers exposes customer facing order endpoints. Every read and
// mutation is scoped to the authenticated user's own orders.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

// MeRoutes registers the user scoped /me endpoints.
func (h *OrderHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listMyOrders)
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := pagination.Parse(query)

	page, err := h.orders.ListOrders(ctx, services.OrderQuery{
		UserID:        identity.UID,
		Status:        domain.OrderStatus(strings.TrimSpace(query.Get("status"))),
		PaymentStatus: domain.PaymentStatus(strings.TrimSpace(query.Get("paymentStatus"))),
		Page:          params.Page,
		Limit:         params.Limit,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildOrderPayload))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	scope := services.OrderReadScope{UserID: identity.UID}
	if identity.IsAdmin() {
		scope = services.OrderReadScope{}
	}

	order, err := h.orders.GetOrder(ctx, orderID, scope)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req cancelOrderRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: identity.UID,
		Scope:   services.OrderReadScope{UserID: identity.UID},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	UserID          string             `json:"userId"`
	UserEmail       string             `json:"userEmail"`
	Items           []orderItemPayload `json:"items"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	PaymentStatus   string             `json:"paymentStatus"`
	OrderStatus     string             `json:"orderStatus"`
	Subtotal        int64              `json:"subtotal"`
	Tax             int64              `json:"tax"`
	Total           int64              `json:"total"`
	TrackingNumber  *string            `json:"trackingNumber,omitempty"`
	CancelReason    *string            `json:"cancelReason,omitempty"`
	CreatedAt       string             `json:"createdAt,omitempty"`
	UpdatedAt       string             `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Image     string `json:"image,omitempty"`
}

type addressPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Image:     item.Image,
		})
	}
	return orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		UserEmail:   order.UserEmail,
		Items:       items,
		ShippingAddress: addressPayload{
			Name:    order.ShippingAddress.Name,
			Email:   order.ShippingAddress.Email,
			Phone:   order.ShippingAddress.Phone,
			Address: order.ShippingAddress.Address,
			City:    order.ShippingAddress.City,
			State:   order.ShippingAddress.State,
			Pincode: order.ShippingAddress.Pincode,
		},
		PaymentMethod:  order.PaymentMethod,
		PaymentStatus:  string(order.PaymentStatus),
		OrderStatus:    string(order.OrderStatus),
		Subtotal:       order.Subtotal,
		Tax:            order.Tax,
		Total:          order.Total,
		TrackingNumber: order.TrackingNumber,
		CancelReason:   order.CancelReason,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStoreUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "order store temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
