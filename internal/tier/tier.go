// Package tier derives a user's plan tier from the cached user record and,
// when the record links one, its subscription document.
package tier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/logging"
	"github.com/otiai10/jobtrack/internal/metrics"
	"github.com/otiai10/jobtrack/internal/subscription"
	"github.com/otiai10/jobtrack/internal/user"
)

// Tier is a user's subscription level
type Tier string

// Tier values
const (
	Free    Tier = "free"
	Premium Tier = "premium"
	Admin   Tier = "admin"
)

// Parse converts a stored tier string, reporting false for unknown values
func Parse(s string) (Tier, bool) {
	switch t := Tier(s); t {
	case Free, Premium, Admin:
		return t, true
	default:
		return "", false
	}
}

// DefaultLookupTimeout bounds a single subscription lookup
const DefaultLookupTimeout = 4 * time.Second

// Users is the part of user.CachedRepository the resolver needs
type Users interface {
	Lookup(ctx context.Context, uid string) (user.Snapshot, error)
	CachedTier(uid string) (string, bool)
	StoreTier(uid string, version uint64, tier string)
}

// Ensure user.CachedRepository satisfies Users
var _ Users = (*user.CachedRepository)(nil)

// Resolver resolves tiers with the priority chain admin > active premium
// subscription > premium plan field > free
type Resolver struct {
	users         Users
	subscriptions subscription.Repository
	timeout       time.Duration
	logger        *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLookupTimeout sets the timeout applied to subscription lookups
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logging.OrNop(logger)
	}
}

// NewResolver creates a Resolver
func NewResolver(users Users, subscriptions subscription.Repository, opts ...Option) *Resolver {
	r := &Resolver{
		users:         users,
		subscriptions: subscriptions,
		timeout:       DefaultLookupTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveTier returns the tier of uid.
//
// A tier merged into a fresh cache entry is returned without any lookup.
// Otherwise the chain is evaluated and the result is merged back into the
// cache entry it was computed from; if that entry was invalidated or reloaded
// meanwhile the result is dropped. Any lookup failure yields Free, which is
// not cached.
func (r *Resolver) ResolveTier(ctx context.Context, uid string) Tier {
	if cached, ok := r.users.CachedTier(uid); ok {
		if t, ok := Parse(cached); ok {
			metrics.TierResolutions.WithLabelValues(string(t), "cache").Inc()
			return t
		}
	}

	snap, err := r.users.Lookup(ctx, uid)
	if err != nil {
		r.logger.Warn("tier resolution failed to load user", zap.String("uid", uid), zap.Error(err))
		metrics.TierResolutions.WithLabelValues(string(Free), "error").Inc()
		return Free
	}

	t, err := r.resolve(ctx, snap.User)
	if err != nil {
		r.logger.Warn("tier resolution failed to load subscription", zap.String("uid", uid), zap.Error(err))
		metrics.TierResolutions.WithLabelValues(string(Free), "error").Inc()
		return Free
	}

	r.users.StoreTier(uid, snap.Version, string(t))
	metrics.TierResolutions.WithLabelValues(string(t), "resolved").Inc()
	return t
}

// ForUser evaluates the chain for an already loaded record without touching
// the cache. A nil record is Free.
func (r *Resolver) ForUser(ctx context.Context, u *user.User) (Tier, error) {
	return r.resolve(ctx, u)
}

func (r *Resolver) resolve(ctx context.Context, u *user.User) (Tier, error) {
	if u == nil {
		return Free, nil
	}
	if u.IsAdmin {
		return Admin, nil
	}

	if u.SubscriptionID != "" && r.subscriptions != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		sub, err := r.subscriptions.Get(lookupCtx, u.SubscriptionID)
		if err != nil {
			return Free, err
		}
		if sub != nil && sub.IsActivePremium() {
			return Premium, nil
		}
	}

	if u.Plan == user.PlanPremium {
		return Premium, nil
	}
	return Free, nil
}
