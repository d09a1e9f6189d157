package user

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otiai10/jobtrack/internal/cache"
)

// mockRepository implements Repository for testing
type mockRepository struct {
	mu      sync.Mutex
	users   map[string]*User
	err     error
	calls   int
	release chan struct{}
	created []User
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[string]*User)}
}

func (m *mockRepository) Get(ctx context.Context, uid string) (*User, error) {
	m.mu.Lock()
	m.calls++
	release := m.release
	m.mu.Unlock()

	if release != nil {
		<-release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[uid]
	if !ok {
		return nil, nil
	}
	copied := u.Copy()
	return &copied, nil
}

func (m *mockRepository) Create(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.UID]; ok {
		return ErrDuplicateUID
	}
	copied := u.Copy()
	m.users[u.UID] = &copied
	m.created = append(m.created, copied)
	return nil
}

func (m *mockRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	return nil, nil
}

func (m *mockRepository) UpdateSubscription(ctx context.Context, uid string, subscriptionID string) error {
	return nil
}

func (m *mockRepository) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockRepository) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCachedForTest(repo Repository) (*CachedRepository, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.New[Record](time.Minute, 100, cache.WithClock(clock.Now))
	return NewCachedRepository(repo, store, WithFetchTimeout(time.Second)), clock
}

func TestCachedRepository_GetCachesFetchedUser(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1", Plan: PlanFree}
	c, _ := newCachedForTest(repo)

	u, err := c.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "uid-1", u.UID)

	_, err = c.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.callCount(), "second Get should be served from cache")
	assert.Equal(t, 1, c.Stats().Size)
}

func TestCachedRepository_GetReturnsCopies(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1", IsAdmin: false}
	c, _ := newCachedForTest(repo)

	u, err := c.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	u.IsAdmin = true

	again, err := c.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.False(t, again.IsAdmin, "mutating a returned user must not change the cache")
}

func TestCachedRepository_GetRefetchesAfterExpiry(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1", Plan: PlanFree}
	c, clock := newCachedForTest(repo)

	_, err := c.Get(context.Background(), "uid-1")
	require.NoError(t, err)

	repo.mu.Lock()
	repo.users["uid-1"].Plan = PlanPremium
	repo.mu.Unlock()
	clock.Advance(time.Minute)

	u, err := c.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, PlanPremium, u.Plan)
	assert.Equal(t, 2, repo.callCount())
}

func TestCachedRepository_GetMissingUser(t *testing.T) {
	repo := newMockRepository()
	c, _ := newCachedForTest(repo)

	u, err := c.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)

	_, err = c.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.callCount(), "absent records are cached too")
}

func TestCachedRepository_GetServesStaleOnFetchError(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1", Plan: PlanPremium}
	c, clock := newCachedForTest(repo)

	_, err := c.Get(context.Background(), "uid-1")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	repo.setErr(errors.New("firestore unavailable"))

	u, err := c.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, PlanPremium, u.Plan)
}

func TestCachedRepository_GetFetchErrorWithoutCache(t *testing.T) {
	repo := newMockRepository()
	repo.setErr(errors.New("firestore unavailable"))
	c, _ := newCachedForTest(repo)

	u, err := c.Get(context.Background(), "uid-1")
	assert.NoError(t, err)
	assert.Nil(t, u)
	assert.Equal(t, 0, c.Stats().Size, "failures must not be cached")
}

func TestCachedRepository_GetEmptyUID(t *testing.T) {
	c, _ := newCachedForTest(newMockRepository())

	_, err := c.Get(context.Background(), "")
	assert.Error(t, err)
}

func TestCachedRepository_GetCallerGoneStillWarmsCache(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1"}
	repo.release = make(chan struct{})
	c, _ := newCachedForTest(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u, err := c.Get(ctx, "uid-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, u)

	close(repo.release)
	require.Eventually(t, func() bool {
		return c.Stats().Size == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCachedRepository_Refresh(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1", IsAdmin: true}
	c, _ := newCachedForTest(repo)

	t.Run("bypasses fresh cache", func(t *testing.T) {
		_, err := c.Get(context.Background(), "uid-1")
		require.NoError(t, err)

		repo.mu.Lock()
		repo.users["uid-1"].IsAdmin = false
		repo.mu.Unlock()

		u, err := c.Refresh(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.False(t, u.IsAdmin)

		cached, err := c.Get(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.False(t, cached.IsAdmin, "refresh should update the cache")
	})

	t.Run("reports fetch errors", func(t *testing.T) {
		repo.setErr(errors.New("boom"))
		defer repo.setErr(nil)

		_, err := c.Refresh(context.Background(), "uid-1")
		assert.Error(t, err)
	})
}

func TestCachedRepository_Tier(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1"}
	c, clock := newCachedForTest(repo)

	t.Run("no entry ignores StoreTier", func(t *testing.T) {
		c.StoreTier("uid-1", 1, "premium")
		_, ok := c.CachedTier("uid-1")
		assert.False(t, ok)
	})

	t.Run("merges into fresh entry and extends TTL", func(t *testing.T) {
		snap, err := c.Lookup(context.Background(), "uid-1")
		require.NoError(t, err)
		require.NotZero(t, snap.Version)

		clock.Advance(50 * time.Second)
		c.StoreTier("uid-1", snap.Version, "premium")
		clock.Advance(50 * time.Second)

		tier, ok := c.CachedTier("uid-1")
		require.True(t, ok)
		assert.Equal(t, "premium", tier)
	})

	t.Run("expired entry has no tier", func(t *testing.T) {
		clock.Advance(time.Minute)
		_, ok := c.CachedTier("uid-1")
		assert.False(t, ok)
	})
}

func TestCachedRepository_StoreTierVersion(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1"}
	c, _ := newCachedForTest(repo)
	ctx := context.Background()

	before, err := c.Lookup(ctx, "uid-1")
	require.NoError(t, err)

	c.Invalidate("uid-1")
	after, err := c.Lookup(ctx, "uid-1")
	require.NoError(t, err)
	require.NotEqual(t, before.Version, after.Version, "reload should assign a new version")

	tests := []struct {
		name    string
		version uint64
		merged  bool
	}{
		{name: "version of an invalidated entry", version: before.Version, merged: false},
		{name: "zero version", version: 0, merged: false},
		{name: "current version", version: after.Version, merged: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.StoreTier("uid-1", tt.version, "premium")
			_, ok := c.CachedTier("uid-1")
			assert.Equal(t, tt.merged, ok)
		})
	}

	t.Run("merge keeps the version", func(t *testing.T) {
		snap, err := c.Lookup(ctx, "uid-1")
		require.NoError(t, err)
		assert.Equal(t, after.Version, snap.Version)
	})
}

func TestCachedRepository_LookupDegraded(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1"}
	c, clock := newCachedForTest(repo)
	ctx := context.Background()

	fresh, err := c.Lookup(ctx, "uid-1")
	require.NoError(t, err)
	assert.False(t, fresh.Degraded)

	repo.setErr(errors.New("unavailable"))
	clock.Advance(2 * time.Minute)

	stale, err := c.Lookup(ctx, "uid-1")
	require.NoError(t, err)
	assert.True(t, stale.Degraded)
	require.NotNil(t, stale.User)
	assert.Zero(t, stale.Version, "stale entries cannot take tier merges")

	missing, err := c.Lookup(ctx, "uid-2")
	require.NoError(t, err)
	assert.True(t, missing.Degraded)
	assert.Nil(t, missing.User)

	repo.setErr(nil)
	absent, err := c.Lookup(ctx, "uid-2")
	require.NoError(t, err)
	assert.False(t, absent.Degraded, "a record that does not exist is not degraded")
	assert.Nil(t, absent.User)
}

func TestCachedRepository_InvalidateAndCreate(t *testing.T) {
	repo := newMockRepository()
	c, _ := newCachedForTest(repo)

	require.NoError(t, c.Create(context.Background(), User{UID: "new", Plan: PlanFree}))
	u, err := c.Get(context.Background(), "new")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, 0, repo.callCount(), "created user should be cached")

	c.Invalidate("new")
	assert.Equal(t, 0, c.Stats().Size)

	assert.ErrorIs(t, c.Create(context.Background(), User{UID: "new"}), ErrDuplicateUID)
}

func TestCachedRepository_ConcurrentMissesShareOneFetch(t *testing.T) {
	repo := newMockRepository()
	repo.users["uid-1"] = &User{UID: "uid-1", Email: "a@example.com"}
	repo.release = make(chan struct{})
	c, _ := newCachedForTest(repo)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan *User, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := c.Get(context.Background(), "uid-1")
			assert.NoError(t, err)
			results <- u
		}()
	}

	require.Eventually(t, func() bool { return repo.callCount() == 1 }, time.Second, 5*time.Millisecond)
	// Let the remaining callers join the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()
	close(results)

	assert.Equal(t, 1, repo.callCount())
	for u := range results {
		require.NotNil(t, u)
		assert.Equal(t, "a@example.com", u.Email)
	}
}
