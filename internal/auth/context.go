package auth

import (
	"context"
)

// contextKey type for context value keys
type contextKey string

const authContextKey contextKey = "auth"

// WithContext adds the authentication result to ctx
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext retrieves the authentication result from ctx
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(authContextKey).(*Context)
	return ac, ok
}

// GetClaims retrieves the verified claims from ctx.
// It reports false when the request is unauthenticated.
func GetClaims(ctx context.Context) (*Claims, bool) {
	ac, ok := FromContext(ctx)
	if !ok || ac.Claims == nil {
		return nil, false
	}
	return ac.Claims, true
}

// MustGetClaims retrieves claims or panics (for use after WithAuth)
func MustGetClaims(ctx context.Context) *Claims {
	claims, ok := GetClaims(ctx)
	if !ok {
		panic("auth: claims not found in context")
	}
	return claims
}
