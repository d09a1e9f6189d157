package subscription

import (
	"context"
	"testing"
	"time"
)

func TestNewFirestoreRepository(t *testing.T) {
	t.Run("creates repository with nil client", func(t *testing.T) {
		repo := NewFirestoreRepository(nil)

		if repo == nil {
			t.Fatal("NewFirestoreRepository returned nil")
		}
		if repo.client != nil {
			t.Error("Expected client to be nil")
		}
	})
}

func TestFirestoreRepository_UpsertRequiresID(t *testing.T) {
	repo := NewFirestoreRepository(nil)

	if err := repo.Upsert(context.Background(), Subscription{Status: StatusActive}); err == nil {
		t.Error("Expected error for empty subscription ID")
	}
}

func TestSubscriptionToMap(t *testing.T) {
	periodEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("converts full subscription", func(t *testing.T) {
		sub := Subscription{
			ID:                "sub_1",
			UserID:            "u1",
			CustomerID:        "cus_1",
			Status:            StatusActive,
			Plan:              PlanPremium,
			PriceID:           "price_1",
			CurrentPeriodEnd:  periodEnd,
			CancelAtPeriodEnd: true,
			UpdatedAt:         updated,
		}

		data := subscriptionToMap(sub)

		if _, ok := data["id"]; ok {
			t.Error("ID should be the document ID, not a field")
		}
		if data["userId"] != "u1" {
			t.Errorf("Expected userId 'u1', got %v", data["userId"])
		}
		if data["customerId"] != "cus_1" {
			t.Errorf("Expected customerId 'cus_1', got %v", data["customerId"])
		}
		if data["status"] != StatusActive {
			t.Errorf("Expected status 'active', got %v", data["status"])
		}
		if data["plan"] != PlanPremium {
			t.Errorf("Expected plan 'premium', got %v", data["plan"])
		}
		if data["priceId"] != "price_1" {
			t.Errorf("Expected priceId 'price_1', got %v", data["priceId"])
		}
		if data["currentPeriodEnd"] != periodEnd {
			t.Errorf("Expected currentPeriodEnd %v, got %v", periodEnd, data["currentPeriodEnd"])
		}
		if data["cancelAtPeriodEnd"] != true {
			t.Errorf("Expected cancelAtPeriodEnd true, got %v", data["cancelAtPeriodEnd"])
		}
	})

	t.Run("omits empty optional fields", func(t *testing.T) {
		data := subscriptionToMap(Subscription{ID: "sub_1", Status: StatusCanceled})

		if _, ok := data["priceId"]; ok {
			t.Error("Expected priceId to be omitted")
		}
		if _, ok := data["currentPeriodEnd"]; ok {
			t.Error("Expected currentPeriodEnd to be omitted")
		}
	})
}

func TestDocumentToSubscription(t *testing.T) {
	periodEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	t.Run("converts full document", func(t *testing.T) {
		data := map[string]any{
			"userId":            "u1",
			"customerId":        "cus_1",
			"status":            StatusActive,
			"plan":              PlanPremium,
			"priceId":           "price_1",
			"currentPeriodEnd":  periodEnd,
			"cancelAtPeriodEnd": false,
		}

		sub := documentToSubscription("sub_1", data)

		if sub.ID != "sub_1" {
			t.Errorf("Expected ID 'sub_1', got %s", sub.ID)
		}
		if sub.UserID != "u1" || sub.CustomerID != "cus_1" {
			t.Errorf("Unexpected owner fields: %+v", sub)
		}
		if !sub.IsActivePremium() {
			t.Errorf("Expected active premium subscription, got %+v", sub)
		}
		if !sub.CurrentPeriodEnd.Equal(periodEnd) {
			t.Errorf("Expected currentPeriodEnd %v, got %v", periodEnd, sub.CurrentPeriodEnd)
		}
	})

	t.Run("ignores malformed fields", func(t *testing.T) {
		data := map[string]any{
			"status": 42,
			"plan":   true,
		}

		sub := documentToSubscription("sub_1", data)

		if sub.Status != "" || sub.Plan != "" {
			t.Errorf("Expected malformed fields to be dropped, got %+v", sub)
		}
		if sub.IsActivePremium() {
			t.Error("Malformed subscription must not grant premium")
		}
	})
}

func TestCollectionName(t *testing.T) {
	if collectionName != "subscriptions" {
		t.Errorf("Expected collectionName 'subscriptions', got %s", collectionName)
	}
}
