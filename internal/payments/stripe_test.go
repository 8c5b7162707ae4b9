package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rarewear/storefront-api/internal/domain"
)

const testSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(eventType, orderID string) []byte {
	object := `{"id":"pi_123","metadata":{}}`
	if orderID != "" {
		object = fmt.Sprintf(`{"id":"pi_123","metadata":{"orderId":%q}}`, orderID)
	}
	return []byte(fmt.Sprintf(`{"id":"evt_123","type":%q,"data":{"object":%s}}`, eventType, object))
}

func TestParseSignalMapsPaymentEvents(t *testing.T) {
	hook, err := NewStripeWebhook(testSecret)
	if err != nil {
		t.Fatalf("NewStripeWebhook: %v", err)
	}

	cases := []struct {
		eventType string
		want      domain.PaymentStatus
	}{
		{"payment_intent.succeeded", domain.PaymentStatusPaid},
		{"payment_intent.payment_failed", domain.PaymentStatusFailed},
		{"charge.refunded", domain.PaymentStatusRefunded},
	}

	for _, tc := range cases {
		payload := eventPayload(tc.eventType, "ord_1")
		signal, ok, err := hook.ParseSignal(payload, signPayload(t, payload))
		if err != nil {
			t.Fatalf("%s: ParseSignal error: %v", tc.eventType, err)
		}
		if !ok {
			t.Fatalf("%s: expected consumable signal", tc.eventType)
		}
		if signal.Target != tc.want {
			t.Fatalf("%s: expected target %s, got %s", tc.eventType, tc.want, signal.Target)
		}
		if signal.OrderID != "ord_1" {
			t.Fatalf("%s: expected order ord_1, got %s", tc.eventType, signal.OrderID)
		}
	}
}

func TestParseSignalIgnoresOtherEventTypes(t *testing.T) {
	hook, err := NewStripeWebhook(testSecret)
	if err != nil {
		t.Fatalf("NewStripeWebhook: %v", err)
	}

	payload := eventPayload("customer.created", "")
	_, ok, err := hook.ParseSignal(payload, signPayload(t, payload))
	if err != nil {
		t.Fatalf("ParseSignal error: %v", err)
	}
	if ok {
		t.Fatalf("unrelated event types must not be consumed")
	}
}

func TestParseSignalRejectsBadSignature(t *testing.T) {
	hook, err := NewStripeWebhook(testSecret)
	if err != nil {
		t.Fatalf("NewStripeWebhook: %v", err)
	}

	payload := eventPayload("payment_intent.succeeded", "ord_1")
	_, _, err = hook.ParseSignal(payload, "t=1234,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseSignalRequiresOrderReference(t *testing.T) {
	hook, err := NewStripeWebhook(testSecret)
	if err != nil {
		t.Fatalf("NewStripeWebhook: %v", err)
	}

	payload := eventPayload("payment_intent.succeeded", "")
	_, _, err = hook.ParseSignal(payload, signPayload(t, payload))
	if !errors.Is(err, ErrMissingOrderRef) {
		t.Fatalf("expected ErrMissingOrderRef, got %v", err)
	}
}
