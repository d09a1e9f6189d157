package user

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otiai10/jobtrack/internal/config"
)

// StaticRepository is an in-memory user repository seeded from config
// fixtures. Used when the service runs without Firestore.
type StaticRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// Ensure StaticRepository implements Repository interface
var _ Repository = (*StaticRepository)(nil)

// NewStaticRepository creates a StaticRepository from config fixtures.
// A nil fixtures config yields an empty repository.
func NewStaticRepository(fixtures *config.FixturesConfig) *StaticRepository {
	r := &StaticRepository{users: make(map[string]User)}
	if fixtures == nil {
		return r
	}

	now := time.Now().UTC()
	for _, f := range fixtures.Users {
		plan := f.Plan
		if plan == "" {
			plan = PlanFree
		}
		r.users[f.UID] = User{
			UID:            f.UID,
			Email:          f.Email,
			Plan:           plan,
			IsAdmin:        f.IsAdmin,
			SubscriptionID: f.SubscriptionID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	return r
}

// Get returns the user for uid, or nil if unknown
func (r *StaticRepository) Get(ctx context.Context, uid string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[uid]
	if !ok {
		return nil, nil
	}
	copied := u.Copy()
	return &copied, nil
}

// Create stores a new user, failing if the UID already exists
func (r *StaticRepository) Create(ctx context.Context, u User) error {
	if u.UID == "" {
		return fmt.Errorf("uid is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.UID]; ok {
		return ErrDuplicateUID
	}
	r.users[u.UID] = u.Copy()
	return nil
}

// GetByStripeCustomerID returns the first user linked to customerID
func (r *StaticRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	if customerID == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.StripeCustomerID == customerID {
			copied := u.Copy()
			return &copied, nil
		}
	}
	return nil, nil
}

// UpdateSubscription sets or clears the subscription ID of a user
func (r *StaticRepository) UpdateSubscription(ctx context.Context, uid string, subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[uid]
	if !ok {
		return ErrNotFound
	}
	u.SubscriptionID = subscriptionID
	u.UpdatedAt = time.Now().UTC()
	r.users[uid] = u
	return nil
}
