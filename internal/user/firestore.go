package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// collectionName is the Firestore collection for users
	collectionName = "users"
)

// Error definitions
var (
	// ErrNotFound is returned when a user is not found
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateUID is returned when trying to create a user with an existing UID
	ErrDuplicateUID = errors.New("user with this UID already exists")
)

// FirestoreRepository implements Repository interface using Firestore
type FirestoreRepository struct {
	client *firestore.Client
}

// Ensure FirestoreRepository implements Repository interface
var _ Repository = (*FirestoreRepository)(nil)

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

// Get retrieves a user by UID. Users are stored with the UID as document ID.
func (r *FirestoreRepository) Get(ctx context.Context, uid string) (*User, error) {
	doc, err := r.client.Collection(collectionName).Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u := documentToUser(doc.Ref.ID, doc.Data())
	return &u, nil
}

// Create creates the user document, failing if one already exists for the UID
func (r *FirestoreRepository) Create(ctx context.Context, u User) error {
	if u.UID == "" {
		return fmt.Errorf("uid is required")
	}

	_, err := r.client.Collection(collectionName).Doc(u.UID).Create(ctx, userToMap(u))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrDuplicateUID
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByStripeCustomerID retrieves a user by Stripe customer ID
func (r *FirestoreRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	docs, err := r.client.Collection(collectionName).
		Where("stripeCustomerId", "==", customerID).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query user by Stripe customer ID: %w", err)
	}

	if len(docs) == 0 {
		return nil, nil
	}

	u := documentToUser(docs[0].Ref.ID, docs[0].Data())
	return &u, nil
}

// UpdateSubscription sets or clears the subscriptionId field
func (r *FirestoreRepository) UpdateSubscription(ctx context.Context, uid string, subscriptionID string) error {
	var value any = subscriptionID
	if subscriptionID == "" {
		value = firestore.Delete
	}

	_, err := r.client.Collection(collectionName).Doc(uid).Update(ctx, []firestore.Update{
		{Path: "subscriptionId", Value: value},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return nil
}

// userToMap converts a User to a map for Firestore storage
func userToMap(u User) map[string]any {
	data := map[string]any{
		"email":       u.Email,
		"displayName": u.DisplayName,
		"plan":        u.Plan,
		"isAdmin":     u.IsAdmin,
		"createdAt":   u.CreatedAt,
		"updatedAt":   u.UpdatedAt,
	}

	if u.SubscriptionID != "" {
		data["subscriptionId"] = u.SubscriptionID
	}
	if u.StripeCustomerID != "" {
		data["stripeCustomerId"] = u.StripeCustomerID
	}

	return data
}

// documentToUser converts Firestore document data to a User.
// Fields with unexpected types are left at their zero value, so a malformed
// isAdmin never grants admin.
func documentToUser(id string, data map[string]any) User {
	u := User{
		UID: id,
	}

	if email, ok := data["email"].(string); ok {
		u.Email = email
	}
	if displayName, ok := data["displayName"].(string); ok {
		u.DisplayName = displayName
	}
	if plan, ok := data["plan"].(string); ok {
		u.Plan = plan
	}
	if isAdmin, ok := data["isAdmin"].(bool); ok {
		u.IsAdmin = isAdmin
	}
	if subscriptionID, ok := data["subscriptionId"].(string); ok {
		u.SubscriptionID = subscriptionID
	}
	if stripeCustomerID, ok := data["stripeCustomerId"].(string); ok {
		u.StripeCustomerID = stripeCustomerID
	}
	if createdAt, ok := data["createdAt"].(time.Time); ok {
		u.CreatedAt = createdAt
	}
	if updatedAt, ok := data["updatedAt"].(time.Time); ok {
		u.UpdatedAt = updatedAt
	}

	return u
}
