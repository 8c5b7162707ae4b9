package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/platform/httpx"
	"github.com/rarewear/storefront-api/internal/platform/pagination"
	"github.com/rarewear/storefront-api/internal/services"
)

// AdminOrderHandlers exposes the back office order management endpoints.
type AdminOrderHandlers struct {
	orders    services.OrderService
	inventory services.InventoryService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(orders services.OrderService, inventory services.InventoryService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders, inventory: inventory}
}

// Routes registers the admin order endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}/transition", h.transitionOrder)
	r.Post("/orders/{orderID}/cancel", h.cancelOrder)
	r.Put("/orders/{orderID}/tracking", h.recordTracking)
	r.Post("/orders/{orderID}/payment", h.markPayment)
	r.Get("/orders/{orderID}/stock-effect", h.getStockEffect)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	params := pagination.Parse(query)

	page, err := h.orders.ListOrders(ctx, services.OrderQuery{
		UserID:        strings.TrimSpace(query.Get("userId")),
		Status:        domain.OrderStatus(strings.TrimSpace(query.Get("status"))),
		PaymentStatus: domain.PaymentStatus(strings.TrimSpace(query.Get("paymentStatus"))),
		Search:        strings.TrimSpace(query.Get("search")),
		Page:          params.Page,
		Limit:         params.Limit,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildOrderPayload))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadScope{})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type transitionOrderRequest struct {
	Status       string `json:"status"`
	CancelReason string `json:"cancelReason"`
}

func (h *AdminOrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
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

	var req transitionOrderRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.Transition(ctx, services.TransitionCommand{
		OrderID:      orderID,
		Target:       domain.OrderStatus(strings.TrimSpace(req.Status)),
		CancelReason: strings.TrimSpace(req.CancelReason),
		ActorID:      identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type recordTrackingRequest struct {
	TrackingNumber string `json:"trackingNumber"`
}

func (h *AdminOrderHandlers) recordTracking(w http.ResponseWriter, r *http.Request) {
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

	var req recordTrackingRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.RecordTracking(ctx, services.RecordTrackingCommand{
		OrderID:        orderID,
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
		ActorID:        identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type markPaymentRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandlers) markPayment(w http.ResponseWriter, r *http.Request) {
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

	var req markPaymentRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.MarkPayment(ctx, services.MarkPaymentCommand{
		OrderID: orderID,
		Target:  domain.PaymentStatus(strings.TrimSpace(req.Status)),
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) getStockEffect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	effect, err := h.inventory.GetEffect(ctx, orderID)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, stockEffectResponse{Effect: buildStockEffectPayload(effect)})
}

type stockEffectResponse struct {
	Effect stockEffectPayload `json:"effect"`
}

type stockEffectPayload struct {
	OrderID       string             `json:"orderId"`
	Lines         []stockLinePayload `json:"lines"`
	DecrementedAt string             `json:"decrementedAt,omitempty"`
	RestoredAt    string             `json:"restoredAt,omitempty"`
	UpdatedAt     string             `json:"updatedAt,omitempty"`
}

type stockLinePayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func buildStockEffectPayload(effect domain.StockEffectRecord) stockEffectPayload {
	lines := make([]stockLinePayload, 0, len(effect.Lines))
	for _, line := range effect.Lines {
		lines = append(lines, stockLinePayload{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	payload := stockEffectPayload{
		OrderID:   effect.OrderID,
		Lines:     lines,
		UpdatedAt: formatTime(effect.UpdatedAt),
	}
	if effect.DecrementedAt != nil {
		payload.DecrementedAt = formatTime(*effect.DecrementedAt)
	}
	if effect.RestoredAt != nil {
		payload.RestoredAt = formatTime(*effect.RestoredAt)
	}
	return payload
}
