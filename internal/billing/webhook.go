package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Webhook event type constants
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

// SignatureHeader is the header carrying the Stripe webhook signature
const SignatureHeader = "Stripe-Signature"

// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event
//
// Parameters:
//   - payload: Raw request body
//   - signature: Stripe-Signature header value
//   - secret: Webhook signing secret
//
// Returns:
//   - Stripe event if signature is valid
//   - Error if verification fails
func VerifyWebhookSignature(payload []byte, signature, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	return event, nil
}

// ParseCheckoutSessionCompleted extracts the user, customer and subscription
// IDs from a checkout.session.completed event. The user ID is the session's
// client reference ID.
func ParseCheckoutSessionCompleted(session *stripe.CheckoutSession) (uid, customerID, subscriptionID string) {
	uid = session.ClientReferenceID
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	return uid, customerID, subscriptionID
}
