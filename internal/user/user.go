package user

import (
	"time"
)

// User is the persisted account document of a job seeker, keyed by the
// Identity Platform UID
type User struct {
	UID              string    `firestore:"-" json:"uid"`
	Email            string    `firestore:"email" json:"email"`
	DisplayName      string    `firestore:"displayName" json:"displayName"`
	Plan             string    `firestore:"plan" json:"plan"` // "free" | "premium"
	IsAdmin          bool      `firestore:"isAdmin" json:"isAdmin"`
	SubscriptionID   string    `firestore:"subscriptionId,omitempty" json:"subscriptionId,omitempty"`
	StripeCustomerID string    `firestore:"stripeCustomerId,omitempty" json:"-"`
	CreatedAt        time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// PlanType constants for the plan field stored on the user document
const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

// Copy returns a copy of the User so cached values cannot be mutated by callers
func (u User) Copy() User {
	return User{
		UID:              u.UID,
		Email:            u.Email,
		DisplayName:      u.DisplayName,
		Plan:             u.Plan,
		IsAdmin:          u.IsAdmin,
		SubscriptionID:   u.SubscriptionID,
		StripeCustomerID: u.StripeCustomerID,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}
