package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otiai10/jobtrack/internal/config"
)

// StaticRepository is an in-memory repository seeded from config fixtures.
// Used when the service runs without Firestore (test mode, local development).
type StaticRepository struct {
	mu            sync.RWMutex
	subscriptions map[string]Subscription
}

// Ensure StaticRepository implements Repository and Writer
var (
	_ Repository = (*StaticRepository)(nil)
	_ Writer     = (*StaticRepository)(nil)
)

// NewStaticRepository creates a new StaticRepository from config fixtures.
// A nil fixtures config yields an empty repository.
//
// Parameters:
//   - fixtures: Fixture records from configuration (may be nil)
//
// Returns:
//   - StaticRepository instance with subscriptions loaded from fixtures
func NewStaticRepository(fixtures *config.FixturesConfig) *StaticRepository {
	r := &StaticRepository{subscriptions: make(map[string]Subscription)}
	if fixtures == nil {
		return r
	}
	for _, f := range fixtures.Subscriptions {
		r.subscriptions[f.ID] = Subscription{
			ID:     f.ID,
			UserID: f.UserID,
			Status: f.Status,
			Plan:   f.Plan,
		}
	}
	return r
}

// Get returns the subscription with the given ID, or nil if unknown
func (r *StaticRepository) Get(ctx context.Context, id string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// Upsert stores sub, replacing any previous subscription with the same ID
func (r *StaticRepository) Upsert(ctx context.Context, sub Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("subscription id is required")
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[sub.ID] = sub
	return nil
}
