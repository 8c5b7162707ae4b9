package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rarewear/storefront-api/internal/payments"
	"github.com/rarewear/storefront-api/internal/platform/httpx"
	"github.com/rarewear/storefront-api/internal/services"
)

const maxWebhookBodyBytes = 256 * 1024

// stripeActorID attributes payment transitions driven by webhook deliveries.
const stripeActorID = "stripe-webhook"

// WebhookHandlers consumes payment provider callbacks.
type WebhookHandlers struct {
	stripe *payments.StripeWebhook
	orders services.OrderService
	logger *zap.Logger
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(stripe *payments.StripeWebhook, orders services.OrderService, logger *zap.Logger) *WebhookHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandlers{stripe: stripe, orders: orders, logger: logger}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.stripe == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "stripe webhook not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	signal, consumed, err := h.stripe.ParseSignal(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		if errors.Is(err, payments.ErrMissingOrderRef) {
			h.logger.Warn("stripe event missing order reference", zap.Error(err))
			writeJSONResponse(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		return
	}
	if !consumed {
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	}

	_, err = h.orders.MarkPayment(ctx, services.MarkPaymentCommand{
		OrderID: signal.OrderID,
		Target:  signal.Target,
		ActorID: stripeActorID,
	})
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
	case errors.Is(err, services.ErrOrderInvalidTransition):
		// Replayed deliveries land here once the order already advanced.
		h.logger.Info("stripe event ignored, payment already settled",
			zap.String("orderId", signal.OrderID),
			zap.String("eventId", signal.EventID),
			zap.String("eventType", signal.EventType))
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to apply payment update", http.StatusInternalServerError))
	}
}
