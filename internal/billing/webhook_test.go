package billing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testWebhookSecret = "whsec_test123"

// signedPayload returns payload and a valid Stripe-Signature header for it
func signedPayload(t *testing.T, payload []byte) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Run("accepts valid signature", func(t *testing.T) {
		payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":"customer.subscription.updated","api_version":%q,"data":{"object":{"id":"sub_1","object":"subscription"}}}`, stripe.APIVersion))

		event, err := VerifyWebhookSignature(payload, signedPayload(t, payload), testWebhookSecret)
		if err != nil {
			t.Fatalf("Expected valid signature, got %v", err)
		}
		if event.Type != EventSubscriptionUpdated {
			t.Errorf("Expected event type %s, got %s", EventSubscriptionUpdated, event.Type)
		}
	})

	t.Run("returns error for invalid signature", func(t *testing.T) {
		payload := []byte(`{"type":"test"}`)

		_, err := VerifyWebhookSignature(payload, "invalid_signature", testWebhookSecret)
		if err == nil {
			t.Error("Expected error for invalid signature")
		}
	})

	t.Run("returns error for wrong secret", func(t *testing.T) {
		payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":"test","api_version":%q}`, stripe.APIVersion))

		_, err := VerifyWebhookSignature(payload, signedPayload(t, payload), "whsec_other")
		if err == nil {
			t.Error("Expected error for signature made with another secret")
		}
	})

	t.Run("returns error for empty signature", func(t *testing.T) {
		_, err := VerifyWebhookSignature([]byte(`{"type":"test"}`), "", testWebhookSecret)
		if err == nil {
			t.Error("Expected error for empty signature")
		}
	})
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	t.Run("extracts user, customer and subscription IDs", func(t *testing.T) {
		session := &stripe.CheckoutSession{
			ID:                "cs_123",
			ClientReferenceID: "uid-1",
			Customer:          &stripe.Customer{ID: "cus_456"},
			Subscription:      &stripe.Subscription{ID: "sub_789"},
			Mode:              stripe.CheckoutSessionModeSubscription,
		}

		uid, customerID, subscriptionID := ParseCheckoutSessionCompleted(session)

		if uid != "uid-1" {
			t.Errorf("Expected uid 'uid-1', got %s", uid)
		}
		if customerID != "cus_456" {
			t.Errorf("Expected customer ID 'cus_456', got %s", customerID)
		}
		if subscriptionID != "sub_789" {
			t.Errorf("Expected subscription ID 'sub_789', got %s", subscriptionID)
		}
	})

	t.Run("handles nil customer and subscription", func(t *testing.T) {
		uid, customerID, subscriptionID := ParseCheckoutSessionCompleted(&stripe.CheckoutSession{ID: "cs_123"})

		if uid != "" || customerID != "" || subscriptionID != "" {
			t.Errorf("Expected empty IDs, got %q %q %q", uid, customerID, subscriptionID)
		}
	})
}

func TestNewClient(t *testing.T) {
	original := stripe.Key
	t.Cleanup(func() { stripe.Key = original })

	NewClient("sk_test_abc")

	if stripe.Key != "sk_test_abc" {
		t.Errorf("Expected global stripe key to be set, got %q", stripe.Key)
	}
}
