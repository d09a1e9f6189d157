package subscription

import (
	"context"
	"time"
)

// Subscription mirrors a billing subscription of a user
type Subscription struct {
	ID                string    `json:"id,omitempty"`
	UserID            string    `json:"userId,omitempty"`
	CustomerID        string    `json:"customerId,omitempty"`
	Status            string    `json:"status"` // "active" | "trialing" | "past_due" | "canceled" | ...
	Plan              string    `json:"plan"`   // "free" | "premium"
	PriceID           string    `json:"priceId,omitempty"`
	CurrentPeriodEnd  time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool      `json:"cancelAtPeriodEnd"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

// Status constants
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusUnpaid            = "unpaid"
	StatusPaused            = "paused"
)

// PlanPremium is the plan name granting the premium tier
const PlanPremium = "premium"

// IsActivePremium reports whether the subscription currently grants premium
func (s Subscription) IsActivePremium() bool {
	return s.Status == StatusActive && s.Plan == PlanPremium
}

// Repository defines the interface for subscription lookups
type Repository interface {
	// Get retrieves a subscription by ID
	// Returns nil and no error if not found
	Get(ctx context.Context, id string) (*Subscription, error)
}

// Writer persists subscription documents
type Writer interface {
	// Upsert creates or replaces the subscription document with sub.ID
	Upsert(ctx context.Context, sub Subscription) error
}
