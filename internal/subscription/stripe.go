package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v78"
	stripesub "github.com/stripe/stripe-go/v78/subscription"
)

// metadataPlanKey is the metadata key carrying the plan name on Stripe
// subscriptions and prices
const metadataPlanKey = "plan"

// getSubscriptionFunc matches stripe-go's subscription.Get
type getSubscriptionFunc func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)

// StripeRepository reads subscriptions directly from the Stripe API
type StripeRepository struct {
	get           getSubscriptionFunc
	premiumPrices map[string]struct{}
}

// Ensure StripeRepository implements Repository
var _ Repository = (*StripeRepository)(nil)

// NewStripeRepository creates a repository backed by the Stripe API.
// The global stripe.Key must be configured (see billing.NewClient).
// premiumPriceIDs lists price IDs that grant the premium plan in addition to
// prices or subscriptions carrying plan metadata.
func NewStripeRepository(premiumPriceIDs []string) *StripeRepository {
	prices := make(map[string]struct{}, len(premiumPriceIDs))
	for _, id := range premiumPriceIDs {
		prices[id] = struct{}{}
	}
	return &StripeRepository{
		get:           stripesub.Get,
		premiumPrices: prices,
	}
}

// Get retrieves a subscription by Stripe subscription ID
func (r *StripeRepository) Get(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	raw, err := r.get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub := FromStripe(raw, r.premiumPrices)
	return &sub, nil
}

// FromStripe converts a Stripe subscription into a Subscription.
// The plan is taken from subscription metadata, then from price metadata,
// then from the configured premium price IDs or a "premium" lookup key.
func FromStripe(raw *stripe.Subscription, premiumPrices map[string]struct{}) Subscription {
	sub := Subscription{
		ID:                raw.ID,
		Status:            MapStripeStatus(raw.Status),
		CancelAtPeriodEnd: raw.CancelAtPeriodEnd,
		UpdatedAt:         time.Now().UTC(),
	}
	if raw.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(raw.CurrentPeriodEnd, 0).UTC()
	}
	if raw.Customer != nil {
		sub.CustomerID = raw.Customer.ID
	}
	if uid := raw.Metadata["uid"]; uid != "" {
		sub.UserID = uid
	}

	sub.Plan = raw.Metadata[metadataPlanKey]
	if raw.Items != nil {
		for _, item := range raw.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			if sub.PriceID == "" {
				sub.PriceID = item.Price.ID
			}
			if sub.Plan != "" {
				continue
			}
			if plan := item.Price.Metadata[metadataPlanKey]; plan != "" {
				sub.Plan = plan
				sub.PriceID = item.Price.ID
				continue
			}
			if _, ok := premiumPrices[item.Price.ID]; ok || item.Price.LookupKey == PlanPremium {
				sub.Plan = PlanPremium
				sub.PriceID = item.Price.ID
			}
		}
	}

	return sub
}

// MapStripeStatus maps Stripe subscription status to our internal status string
func MapStripeStatus(s stripe.SubscriptionStatus) string {
	switch s {
	case stripe.SubscriptionStatusActive:
		return StatusActive
	case stripe.SubscriptionStatusCanceled:
		return StatusCanceled
	case stripe.SubscriptionStatusPastDue:
		return StatusPastDue
	case stripe.SubscriptionStatusTrialing:
		return StatusTrialing
	case stripe.SubscriptionStatusIncomplete:
		return StatusIncomplete
	case stripe.SubscriptionStatusIncompleteExpired:
		return StatusIncompleteExpired
	case stripe.SubscriptionStatusUnpaid:
		return StatusUnpaid
	case stripe.SubscriptionStatusPaused:
		return StatusPaused
	default:
		return string(s)
	}
}
