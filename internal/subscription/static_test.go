package subscription

import (
	"context"
	"testing"

	"github.com/otiai10/jobtrack/internal/config"
)

func TestNewStaticRepository(t *testing.T) {
	t.Run("nil fixtures yields empty repository", func(t *testing.T) {
		repo := NewStaticRepository(nil)

		got, err := repo.Get(context.Background(), "sub_1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() = %+v, want nil", got)
		}
	})

	t.Run("loads fixtures", func(t *testing.T) {
		repo := NewStaticRepository(&config.FixturesConfig{
			Subscriptions: []config.SubscriptionFixture{
				{ID: "sub_1", UserID: "u1", Status: StatusActive, Plan: PlanPremium},
				{ID: "sub_2", UserID: "u2", Status: StatusCanceled, Plan: PlanPremium},
			},
		})

		got, err := repo.Get(context.Background(), "sub_1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got == nil {
			t.Fatal("Get() = nil, want subscription")
		}
		if got.UserID != "u1" || !got.IsActivePremium() {
			t.Errorf("Get() = %+v, want active premium for u1", got)
		}

		got, _ = repo.Get(context.Background(), "sub_2")
		if got == nil || got.IsActivePremium() {
			t.Errorf("Get(sub_2) = %+v, want canceled subscription", got)
		}
	})
}

func TestStaticRepository_Upsert(t *testing.T) {
	repo := NewStaticRepository(nil)
	ctx := context.Background()

	if err := repo.Upsert(ctx, Subscription{}); err == nil {
		t.Error("Upsert() without ID should fail")
	}

	if err := repo.Upsert(ctx, Subscription{ID: "sub_1", Status: StatusActive, Plan: PlanPremium}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, Subscription{ID: "sub_1", Status: StatusCanceled, Plan: PlanPremium}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.Get(ctx, "sub_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusCanceled {
		t.Errorf("Status = %q, want %q", got.Status, StatusCanceled)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be filled on upsert")
	}
}

func TestStaticRepository_GetReturnsCopy(t *testing.T) {
	repo := NewStaticRepository(&config.FixturesConfig{
		Subscriptions: []config.SubscriptionFixture{{ID: "sub_1", Status: StatusActive, Plan: PlanPremium}},
	})

	got, _ := repo.Get(context.Background(), "sub_1")
	got.Status = StatusCanceled

	again, _ := repo.Get(context.Background(), "sub_1")
	if again.Status != StatusActive {
		t.Errorf("stored subscription was mutated through Get result: %q", again.Status)
	}
}

func TestSubscription_IsActivePremium(t *testing.T) {
	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"active premium", Subscription{Status: StatusActive, Plan: PlanPremium}, true},
		{"trialing premium", Subscription{Status: StatusTrialing, Plan: PlanPremium}, false},
		{"past due premium", Subscription{Status: StatusPastDue, Plan: PlanPremium}, false},
		{"canceled premium", Subscription{Status: StatusCanceled, Plan: PlanPremium}, false},
		{"active free", Subscription{Status: StatusActive, Plan: "free"}, false},
		{"empty", Subscription{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.IsActivePremium(); got != tt.want {
				t.Errorf("IsActivePremium() = %v, want %v", got, tt.want)
			}
		})
	}
}
