// Package auth authenticates requests from a session cookie or a bearer ID
// token and gates handlers on the result.
package auth

import (
	"context"
	"errors"
	"time"
)

// Claims represents the decoded identity assertions of a verified credential
type Claims struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name,omitempty"`
	Picture       string    `json:"picture,omitempty"`
	ProviderID    string    `json:"provider_id,omitempty"`
	Admin         bool      `json:"admin"`
	ExpiresAt     time.Time `json:"exp"`
}

// TokenVerifier verifies ID tokens presented as bearer credentials
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Claims, error)
}

// SessionCookieVerifier verifies session cookies
type SessionCookieVerifier interface {
	VerifySessionCookie(ctx context.Context, cookie string) (*Claims, error)
}

// ErrNoCredential is returned by a Strategy when the request does not carry
// the credential it handles
var ErrNoCredential = errors.New("no credential presented")
