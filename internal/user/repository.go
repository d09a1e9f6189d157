package user

import (
	"context"
)

// Repository defines the interface for user storage operations
type Repository interface {
	// Get retrieves a user by Identity Platform UID
	//
	// Parameters:
	//   - ctx: Context for cancellation control
	//   - uid: Identity Platform UID (document ID)
	//
	// Returns:
	//   - Pointer to the user (nil if not found)
	//   - Error if Firestore operation fails (nil for not found)
	Get(ctx context.Context, uid string) (*User, error)

	// Create stores a new user document on first sign-in
	//
	// Parameters:
	//   - ctx: Context for cancellation control
	//   - user: User to create, UID is used as document ID
	//
	// Returns:
	//   - ErrDuplicateUID if a document already exists for the UID
	//   - Error if Firestore operation fails
	Create(ctx context.Context, user User) error

	// GetByStripeCustomerID retrieves a user by Stripe customer ID
	//
	// Parameters:
	//   - ctx: Context for cancellation control
	//   - customerID: Stripe customer ID to search for
	//
	// Returns:
	//   - Pointer to the user (nil if not found)
	//   - Error if Firestore operation fails (nil for not found)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*User, error)

	// UpdateSubscription links a subscription document to the user
	//
	// Parameters:
	//   - ctx: Context for cancellation control
	//   - uid: Identity Platform UID
	//   - subscriptionID: Subscription ID, empty to unlink
	//
	// Returns:
	//   - ErrNotFound if the user does not exist
	//   - Error if Firestore operation fails
	UpdateSubscription(ctx context.Context, uid string, subscriptionID string) error
}
