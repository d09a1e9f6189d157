// Package billing mirrors Stripe subscription state into the subscription
// store and keeps cached user records consistent with it.
package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/subscription"
)

// Client wraps Stripe API operations
type Client struct {
	secretKey string
}

// NewClient creates a new Stripe billing client
//
// Parameters:
//   - secretKey: Stripe API secret key (sk_test_xxx or sk_live_xxx)
//
// Returns:
//   - Client instance configured with the secret key
func NewClient(secretKey string) *Client {
	// Set the global API key for the stripe-go library
	stripe.Key = secretKey

	return &Client{
		secretKey: secretKey,
	}
}

// GetSubscription retrieves a subscription by ID
//
// Parameters:
//   - ctx: Context for cancellation control
//   - subscriptionID: Stripe subscription ID
//
// Returns:
//   - Stripe subscription
//   - Error if Stripe API call fails or subscription not found
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}
