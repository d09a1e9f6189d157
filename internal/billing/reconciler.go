package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/logging"
	"github.com/otiai10/jobtrack/internal/metrics"
	"github.com/otiai10/jobtrack/internal/subscription"
	"github.com/otiai10/jobtrack/internal/user"
)

// Users is the part of the user repository the reconciler writes to
type Users interface {
	GetByStripeCustomerID(ctx context.Context, customerID string) (*user.User, error)
	UpdateSubscription(ctx context.Context, uid string, subscriptionID string) error
}

// Invalidator drops cached user records
type Invalidator interface {
	Invalidate(uid string)
}

// SubscriptionFetcher loads a subscription from Stripe
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// Ensure Client implements SubscriptionFetcher
var _ SubscriptionFetcher = (*Client)(nil)

// Reconciler applies Stripe subscription events to the subscription store and
// the linked user, then invalidates the user's cached record so the next
// request resolves the new tier
type Reconciler struct {
	users         Users
	subscriptions subscription.Writer
	cache         Invalidator
	fetcher       SubscriptionFetcher
	premiumPrices map[string]struct{}
	logger        *zap.Logger
}

// ReconcilerConfig holds the collaborators of a Reconciler
type ReconcilerConfig struct {
	Users           Users
	Subscriptions   subscription.Writer
	Cache           Invalidator
	Fetcher         SubscriptionFetcher // required for checkout.session.completed
	PremiumPriceIDs []string
	Logger          *zap.Logger
}

// NewReconciler creates a Reconciler
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	prices := make(map[string]struct{}, len(cfg.PremiumPriceIDs))
	for _, id := range cfg.PremiumPriceIDs {
		prices[id] = struct{}{}
	}
	return &Reconciler{
		users:         cfg.Users,
		subscriptions: cfg.Subscriptions,
		cache:         cfg.Cache,
		fetcher:       cfg.Fetcher,
		premiumPrices: prices,
		logger:        logging.OrNop(cfg.Logger),
	}
}

// Outcome describes what HandleEvent did with an event
type Outcome struct {
	Handled        bool
	UID            string
	SubscriptionID string
	Status         string
}

// HandleEvent applies a verified Stripe event. Event types that do not affect
// subscriptions are acknowledged without changes.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) (Outcome, error) {
	eventType := string(event.Type)

	out, err := r.handle(ctx, event)
	switch {
	case err != nil:
		metrics.BillingEvents.WithLabelValues(eventType, "error").Inc()
	case out.Handled:
		metrics.BillingEvents.WithLabelValues(eventType, "applied").Inc()
	default:
		metrics.BillingEvents.WithLabelValues(eventType, "ignored").Inc()
	}
	return out, err
}

func (r *Reconciler) handle(ctx context.Context, event stripe.Event) (Outcome, error) {
	if event.Data == nil {
		return Outcome{}, fmt.Errorf("event %s has no data", event.ID)
	}

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var raw stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &raw); err != nil {
			return Outcome{}, fmt.Errorf("failed to parse subscription event: %w", err)
		}
		return r.apply(ctx, &raw, "", event.Type == EventSubscriptionDeleted)

	case EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return Outcome{}, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		if session.Mode != stripe.CheckoutSessionModeSubscription {
			return Outcome{}, nil
		}
		uid, _, subscriptionID := ParseCheckoutSessionCompleted(&session)
		if subscriptionID == "" {
			return Outcome{}, nil
		}
		if r.fetcher == nil {
			return Outcome{}, errors.New("no subscription fetcher configured")
		}
		raw, err := r.fetcher.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return Outcome{}, err
		}
		return r.apply(ctx, raw, uid, false)

	default:
		return Outcome{}, nil
	}
}

// apply upserts the subscription and relinks its user. uidHint takes
// precedence over the subscription metadata and the customer lookup.
func (r *Reconciler) apply(ctx context.Context, raw *stripe.Subscription, uidHint string, deleted bool) (Outcome, error) {
	sub := subscription.FromStripe(raw, r.premiumPrices)
	if deleted && sub.Status == "" {
		sub.Status = subscription.StatusCanceled
	}

	uid, err := r.resolveUID(ctx, sub, uidHint)
	if err != nil {
		return Outcome{}, err
	}
	sub.UserID = uid

	if err := r.subscriptions.Upsert(ctx, sub); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Handled: true, UID: uid, SubscriptionID: sub.ID, Status: sub.Status}
	if uid == "" {
		r.logger.Warn("subscription has no linked user",
			zap.String("subscription_id", sub.ID),
			zap.String("customer_id", sub.CustomerID),
		)
		return out, nil
	}

	link := sub.ID
	if deleted {
		link = ""
	}
	if err := r.users.UpdateSubscription(ctx, uid, link); err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return out, err
		}
		r.logger.Warn("subscription references unknown user",
			zap.String("uid", uid),
			zap.String("subscription_id", sub.ID),
		)
	}

	if r.cache != nil {
		r.cache.Invalidate(uid)
	}
	r.logger.Info("subscription reconciled",
		zap.String("uid", uid),
		zap.String("subscription_id", sub.ID),
		zap.String("status", sub.Status),
		zap.String("plan", sub.Plan),
	)
	return out, nil
}

func (r *Reconciler) resolveUID(ctx context.Context, sub subscription.Subscription, uidHint string) (string, error) {
	if uidHint != "" {
		return uidHint, nil
	}
	if sub.UserID != "" {
		return sub.UserID, nil
	}
	if sub.CustomerID == "" {
		return "", nil
	}
	u, err := r.users.GetByStripeCustomerID(ctx, sub.CustomerID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	return u.UID, nil
}
