package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/platform/httpx"
	"github.com/rarewear/storefront-api/internal/services"
)

// CheckoutHandlers exposes the checkout endpoint.
type CheckoutHandlers struct {
	orders services.OrderService
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(orders services.OrderService) *CheckoutHandlers {
	return &CheckoutHandlers{orders: orders}
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.checkout)
}

type checkoutRequest struct {
	Items           []checkoutItemRequest `json:"items"`
	ShippingAddress addressPayload        `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
}

type checkoutItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

func (h *CheckoutHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req checkoutRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	items := make([]services.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CheckoutItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			Size:      strings.TrimSpace(item.Size),
			Color:     strings.TrimSpace(item.Color),
		})
	}

	order, err := h.orders.Checkout(ctx, services.CheckoutCommand{
		UserID:    identity.UID,
		UserEmail: identity.Email,
		Items:     items,
		ShippingAddress: domain.ShippingAddress{
			Name:    strings.TrimSpace(req.ShippingAddress.Name),
			Email:   strings.TrimSpace(req.ShippingAddress.Email),
			Phone:   strings.TrimSpace(req.ShippingAddress.Phone),
			Address: strings.TrimSpace(req.ShippingAddress.Address),
			City:    strings.TrimSpace(req.ShippingAddress.City),
			State:   strings.TrimSpace(req.ShippingAddress.State),
			Pincode: strings.TrimSpace(req.ShippingAddress.Pincode),
		},
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}
