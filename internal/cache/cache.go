// Package cache provides a TTL key/value store with capacity-bounded eviction.
//
// The store is process local. Running several server instances yields
// independent caches, each of which may serve a value for up to its TTL after
// the underlying document changed.
package cache

import (
	"sort"
	"sync"
	"time"
)

// DefaultTTL is used when Set is called with a non-positive ttl
const DefaultTTL = 60 * time.Second

// cleanupThreshold is the utilization (in percent of MaxSize) above which
// MaybeCleanup runs a cleanup pass
const cleanupThreshold = 90

// Clock returns the current time
type Clock func() time.Time

// Stats describes the current occupancy of a Store
type Stats struct {
	Size    int `json:"size"`
	MaxSize int `json:"maxSize"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a TTL cache safe for concurrent use.
// Concurrent Set calls for the same key are last-write-wins.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	maxSize int
	now     Clock
}

// Option configures a Store
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock overrides the time source, mostly for tests
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// New creates a Store with the given default ttl and capacity.
// A non-positive ttl falls back to DefaultTTL; a non-positive maxSize means 1.
func New[V any](ttl time.Duration, maxSize int, opts ...Option) *Store[V] {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = 1
	}

	return &Store[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		maxSize: maxSize,
		now:     o.clock,
	}
}

// TTL returns the default time-to-live of the store
func (s *Store[V]) TTL() time.Duration {
	return s.ttl
}

// Get returns the value for key if it has not expired yet
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(s.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Peek returns the value for key regardless of expiry, along with its
// expiration time. Expired entries are only visible until the next Cleanup.
func (s *Store[V]) Peek(key string) (V, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	return e.value, e.expiresAt, ok
}

// Set stores value under key, overwriting any previous entry and resetting
// its expiration to now+ttl. A non-positive ttl uses the store default.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, expiresAt: s.now().Add(ttl)}
}

// Delete removes key from the store
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Cleanup removes expired entries, then evicts the entries with the soonest
// expiration until the store holds at most MaxSize entries.
// It returns the number of removed entries.
func (s *Store[V]) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked()
}

// MaybeCleanup runs Cleanup only when utilization is above 90% of capacity.
func (s *Store[V]) MaybeCleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries)*100 <= s.maxSize*cleanupThreshold {
		return 0
	}
	return s.cleanupLocked()
}

func (s *Store[V]) cleanupLocked() int {
	now := s.now()
	removed := 0

	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
			removed++
		}
	}

	overflow := len(s.entries) - s.maxSize
	if overflow <= 0 {
		return removed
	}

	type keyed struct {
		key       string
		expiresAt time.Time
	}
	ordered := make([]keyed, 0, len(s.entries))
	for key, e := range s.entries {
		ordered = append(ordered, keyed{key: key, expiresAt: e.expiresAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].expiresAt.Before(ordered[j].expiresAt)
	})

	for _, k := range ordered[:overflow] {
		delete(s.entries, k.key)
		removed++
	}

	return removed
}

// Stats reports the current size and capacity
func (s *Store[V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Size: len(s.entries), MaxSize: s.maxSize}
}
