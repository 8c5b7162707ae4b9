package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/rarewear/storefront-api/internal/domain"
)

var (
	// ErrInvalidSignature indicates the webhook payload failed signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrMissingOrderRef indicates the Stripe object carries no order reference.
	ErrMissingOrderRef = errors.New("payments: stripe event missing order reference")
)

// PaymentSignal is the distilled outcome of a Stripe webhook event: which
// order it concerns and which payment status it drives.
type PaymentSignal struct {
	OrderID   string
	Target    domain.PaymentStatus
	EventID   string
	EventType string
}

// StripeWebhook verifies and translates Stripe webhook deliveries. Only the
// payment signal is consumed; no money movement happens here.
type StripeWebhook struct {
	secret string
}

// NewStripeWebhook constructs a webhook translator with the signing secret.
func NewStripeWebhook(secret string) (*StripeWebhook, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: stripe webhook secret is required")
	}
	return &StripeWebhook{secret: secret}, nil
}

// ParseSignal verifies the signature and maps the event to a payment signal.
// The boolean is false for event types this service does not consume.
func (w *StripeWebhook) ParseSignal(payload []byte, signature string) (PaymentSignal, bool, error) {
	if w == nil || w.secret == "" {
		return PaymentSignal{}, false, errors.New("payments: stripe webhook not initialised")
	}

	// Accounts can pin a different API version than the SDK; the signature
	// check is what matters here.
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return PaymentSignal{}, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var target domain.PaymentStatus
	switch event.Type {
	case "payment_intent.succeeded":
		target = domain.PaymentStatusPaid
	case "payment_intent.payment_failed":
		target = domain.PaymentStatusFailed
	case "charge.refunded":
		target = domain.PaymentStatusRefunded
	default:
		return PaymentSignal{}, false, nil
	}

	orderID, err := orderRefFromEvent(event)
	if err != nil {
		return PaymentSignal{}, false, err
	}

	return PaymentSignal{
		OrderID:   orderID,
		Target:    target,
		EventID:   event.ID,
		EventType: string(event.Type),
	}, true, nil
}

func orderRefFromEvent(event stripe.Event) (string, error) {
	var object struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return "", fmt.Errorf("payments: decode stripe event object: %w", err)
	}
	orderID := strings.TrimSpace(object.Metadata["orderId"])
	if orderID == "" {
		return "", fmt.Errorf("%w: event %s", ErrMissingOrderRef, event.ID)
	}
	return orderID, nil
}
