package user

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/otiai10/jobtrack/internal/cache"
	"github.com/otiai10/jobtrack/internal/logging"
	"github.com/otiai10/jobtrack/internal/metrics"
)

// DefaultFetchTimeout bounds a single user document fetch
const DefaultFetchTimeout = 4 * time.Second

// Record is the cached view of a user document.
// User is nil when the store had no document for the UID.
type Record struct {
	User *User
	Tier string
	// Version is assigned when the document is (re)loaded into the cache.
	// Tier merges only apply to the version they were computed from.
	Version uint64
}

// Snapshot is the result of a cached read
type Snapshot struct {
	User *User
	// Version of the fresh cache entry User was read from, 0 when the read
	// was not served by a fresh entry
	Version uint64
	// Degraded reports that the store could not be read. User is then the
	// last cached value, or nil when nothing was cached; nil does not mean
	// the user does not exist.
	Degraded bool
}

// CachedRepository serves user documents from a TTL cache, fetching from the
// underlying Repository on a miss. Fetch failures degrade to the last cached
// value, or to "no record" when nothing was cached.
type CachedRepository struct {
	repo     Repository
	store    *cache.Store[Record]
	group    singleflight.Group
	versions atomic.Uint64
	timeout  time.Duration
	logger   *zap.Logger
}

// CacheOption configures a CachedRepository
type CacheOption func(*CachedRepository)

// WithFetchTimeout sets the timeout applied to each store fetch
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *CachedRepository) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *CachedRepository) {
		c.logger = logging.OrNop(logger)
	}
}

// NewCachedRepository wraps repo with store
func NewCachedRepository(repo Repository, store *cache.Store[Record], opts ...CacheOption) *CachedRepository {
	c := &CachedRepository{
		repo:    repo,
		store:   store,
		timeout: DefaultFetchTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the user for uid from cache, or fetches it on a miss.
// It is Lookup without the snapshot metadata.
func (c *CachedRepository) Get(ctx context.Context, uid string) (*User, error) {
	snap, err := c.Lookup(ctx, uid)
	return snap.User, err
}

// Lookup returns the user for uid from cache, or fetches it on a miss.
//
// A failed fetch is not an error for the caller: the snapshot is marked
// Degraded and carries the expired cache entry when one is still present,
// otherwise no user. The only errors returned are an empty uid and the
// caller's own context ending while the fetch is in flight. The fetch itself
// keeps running in that case so the cache is still warmed.
func (c *CachedRepository) Lookup(ctx context.Context, uid string) (Snapshot, error) {
	if uid == "" {
		return Snapshot{}, fmt.Errorf("uid is required")
	}

	if rec, ok := c.store.Get(uid); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return Snapshot{User: copyUser(rec.User), Version: rec.Version}, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	rec, err := c.load(ctx, uid)
	if err == nil {
		return Snapshot{User: copyUser(rec.User), Version: rec.Version}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return Snapshot{}, err
	}

	if stale, expiresAt, ok := c.store.Peek(uid); ok {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		c.logger.Warn("user fetch failed, serving stale record",
			zap.String("uid", uid),
			zap.Time("expired_at", expiresAt),
			zap.Error(err),
		)
		return Snapshot{User: copyUser(stale.User), Degraded: true}, nil
	}

	metrics.CacheLookups.WithLabelValues("error").Inc()
	c.logger.Warn("user fetch failed, no record available",
		zap.String("uid", uid),
		zap.Error(err),
	)
	return Snapshot{Degraded: true}, nil
}

// Refresh fetches the user from the store, bypassing any cached value, and
// updates the cache. Unlike Get it reports fetch failures to the caller.
func (c *CachedRepository) Refresh(ctx context.Context, uid string) (*User, error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}

	rec, err := c.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	return copyUser(rec.User), nil
}

// CachedTier returns the tier stored on a fresh cache entry
func (c *CachedRepository) CachedTier(uid string) (string, bool) {
	rec, ok := c.store.Get(uid)
	if !ok || rec.Tier == "" {
		return "", false
	}
	return rec.Tier, true
}

// StoreTier merges tier into the fresh cache entry for uid, extending its TTL.
// version is the Snapshot.Version the tier was computed from. Nothing is
// written when the entry is missing, expired, or was reloaded since, so a
// stale record is never revived and a reloaded one never gets an old tier.
func (c *CachedRepository) StoreTier(uid string, version uint64, tier string) {
	if version == 0 {
		return
	}
	rec, ok := c.store.Get(uid)
	if !ok || rec.Version != version {
		return
	}
	rec.Tier = tier
	c.put(uid, rec)
}

// Invalidate drops the cached entry for uid
func (c *CachedRepository) Invalidate(uid string) {
	c.store.Delete(uid)
	metrics.CacheSize.Set(float64(c.store.Stats().Size))
}

// Stats reports cache occupancy
func (c *CachedRepository) Stats() cache.Stats {
	return c.store.Stats()
}

// Create stores a new user and caches it
func (c *CachedRepository) Create(ctx context.Context, u User) error {
	if err := c.repo.Create(ctx, u); err != nil {
		return err
	}
	stored := u.Copy()
	c.put(u.UID, Record{User: &stored, Version: c.versions.Add(1)})
	return nil
}

// load fetches uid once per in-flight key. The fetch runs detached from the
// caller's cancellation but bounded by the fetch timeout.
func (c *CachedRepository) load(ctx context.Context, uid string) (Record, error) {
	ch := c.group.DoChan(uid, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		start := time.Now()
		u, err := c.repo.Get(fetchCtx, uid)
		metrics.StoreFetchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return Record{}, err
		}

		rec := Record{User: copyUser(u), Version: c.versions.Add(1)}
		c.put(uid, rec)
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return Record{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Record{}, res.Err
		}
		return res.Val.(Record), nil
	}
}

func (c *CachedRepository) put(uid string, rec Record) {
	c.store.Set(uid, rec, 0)
	if evicted := c.store.MaybeCleanup(); evicted > 0 {
		metrics.CacheEvictions.Add(float64(evicted))
		c.logger.Debug("user cache cleanup", zap.Int("evicted", evicted))
	}
	metrics.CacheSize.Set(float64(c.store.Stats().Size))
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	copied := u.Copy()
	return &copied
}
