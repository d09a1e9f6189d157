package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otiai10/jobtrack/internal/config"
)

func TestStaticRepository_Fixtures(t *testing.T) {
	repo := NewStaticRepository(&config.FixturesConfig{
		Users: []config.UserFixture{
			{UID: "admin-1", Email: "admin@example.com", IsAdmin: true},
			{UID: "premium-1", Plan: PlanPremium, SubscriptionID: "sub_1"},
		},
	})
	ctx := context.Background()

	admin, err := repo.Get(ctx, "admin-1")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, PlanFree, admin.Plan, "plan defaults to free")

	premium, err := repo.Get(ctx, "premium-1")
	require.NoError(t, err)
	require.NotNil(t, premium)
	assert.Equal(t, "sub_1", premium.SubscriptionID)

	missing, err := repo.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStaticRepository_NilFixtures(t *testing.T) {
	repo := NewStaticRepository(nil)

	u, err := repo.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestStaticRepository_Create(t *testing.T) {
	repo := NewStaticRepository(nil)
	ctx := context.Background()

	assert.Error(t, repo.Create(ctx, User{}))
	require.NoError(t, repo.Create(ctx, User{UID: "uid-1", Plan: PlanFree}))
	assert.ErrorIs(t, repo.Create(ctx, User{UID: "uid-1"}), ErrDuplicateUID)

	u, err := repo.Get(ctx, "uid-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, PlanFree, u.Plan)
}

func TestStaticRepository_Subscriptions(t *testing.T) {
	repo := NewStaticRepository(nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, User{UID: "uid-1", StripeCustomerID: "cus_1"}))

	byCustomer, err := repo.GetByStripeCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	require.NotNil(t, byCustomer)
	assert.Equal(t, "uid-1", byCustomer.UID)

	none, err := repo.GetByStripeCustomerID(ctx, "cus_unknown")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, repo.UpdateSubscription(ctx, "uid-1", "sub_9"))
	u, _ := repo.Get(ctx, "uid-1")
	assert.Equal(t, "sub_9", u.SubscriptionID)

	require.NoError(t, repo.UpdateSubscription(ctx, "uid-1", ""))
	u, _ = repo.Get(ctx, "uid-1")
	assert.Empty(t, u.SubscriptionID)

	assert.ErrorIs(t, repo.UpdateSubscription(ctx, "nobody", "sub_1"), ErrNotFound)
}
