package subscription

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// collectionName is the Firestore collection for subscriptions
	collectionName = "subscriptions"
)

// FirestoreRepository implements Repository and Writer using Firestore
type FirestoreRepository struct {
	client *firestore.Client
}

// Ensure FirestoreRepository implements Repository and Writer
var (
	_ Repository = (*FirestoreRepository)(nil)
	_ Writer     = (*FirestoreRepository)(nil)
)

// NewFirestoreRepository creates a new FirestoreRepository
//
// Parameters:
//   - client: Firestore client instance
//
// Returns:
//   - FirestoreRepository instance
func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{
		client: client,
	}
}

// Get retrieves a subscription by ID
//
// Parameters:
//   - ctx: Context for cancellation control
//   - id: Subscription ID to retrieve
//
// Returns:
//   - Pointer to the subscription (nil if not found)
//   - Error if Firestore operation fails (nil for not found)
func (r *FirestoreRepository) Get(ctx context.Context, id string) (*Subscription, error) {
	doc, err := r.client.Collection(collectionName).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub := documentToSubscription(doc.Ref.ID, doc.Data())
	return &sub, nil
}

// Upsert writes the subscription document, replacing any previous content
//
// Parameters:
//   - ctx: Context for cancellation control
//   - sub: Subscription to store, sub.ID is the document ID
//
// Returns:
//   - Error if the ID is empty or Firestore operation fails
func (r *FirestoreRepository) Upsert(ctx context.Context, sub Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("subscription id is required")
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}

	_, err := r.client.Collection(collectionName).Doc(sub.ID).Set(ctx, subscriptionToMap(sub))
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}

// subscriptionToMap converts a Subscription to a map for Firestore storage
func subscriptionToMap(sub Subscription) map[string]any {
	data := map[string]any{
		"userId":            sub.UserID,
		"customerId":        sub.CustomerID,
		"status":            sub.Status,
		"plan":              sub.Plan,
		"cancelAtPeriodEnd": sub.CancelAtPeriodEnd,
		"updatedAt":         sub.UpdatedAt,
	}

	if sub.PriceID != "" {
		data["priceId"] = sub.PriceID
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		data["currentPeriodEnd"] = sub.CurrentPeriodEnd
	}

	return data
}

// documentToSubscription converts Firestore document data to a Subscription
func documentToSubscription(id string, data map[string]any) Subscription {
	sub := Subscription{
		ID: id,
	}

	if userID, ok := data["userId"].(string); ok {
		sub.UserID = userID
	}
	if customerID, ok := data["customerId"].(string); ok {
		sub.CustomerID = customerID
	}
	if s, ok := data["status"].(string); ok {
		sub.Status = s
	}
	if plan, ok := data["plan"].(string); ok {
		sub.Plan = plan
	}
	if priceID, ok := data["priceId"].(string); ok {
		sub.PriceID = priceID
	}
	if periodEnd, ok := data["currentPeriodEnd"].(time.Time); ok {
		sub.CurrentPeriodEnd = periodEnd
	}
	if cancel, ok := data["cancelAtPeriodEnd"].(bool); ok {
		sub.CancelAtPeriodEnd = cancel
	}
	if updatedAt, ok := data["updatedAt"].(time.Time); ok {
		sub.UpdatedAt = updatedAt
	}

	return sub
}
