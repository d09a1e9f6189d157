package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseAuth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// ErrSessionCookiesUnsupported is returned when session cookies are verified
// against a tenant-scoped client
var ErrSessionCookiesUnsupported = errors.New("session cookies are not supported for tenant auth")

// idTokenVerifier is an interface for verifying ID tokens
// Both firebaseAuth.Client and firebaseAuth.TenantClient implement this
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
}

// sessionCookieVerifier is implemented by firebaseAuth.Client only
type sessionCookieVerifier interface {
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*firebaseAuth.Token, error)
}

// FirebaseTokenVerifier implements TokenVerifier and SessionCookieVerifier
// using the Firebase Admin SDK
type FirebaseTokenVerifier struct {
	idTokens idTokenVerifier
	sessions sessionCookieVerifier
	tenantID string
}

// Ensure FirebaseTokenVerifier implements both verifier interfaces
var (
	_ TokenVerifier         = (*FirebaseTokenVerifier)(nil)
	_ SessionCookieVerifier = (*FirebaseTokenVerifier)(nil)
)

// FirebaseTokenVerifierConfig holds configuration for FirebaseTokenVerifier
type FirebaseTokenVerifierConfig struct {
	ProjectID       string
	CredentialsPath string
	TenantID        string // Optional: for multi-tenant Identity Platform
}

// NewFirebaseTokenVerifier creates a new Firebase token verifier
func NewFirebaseTokenVerifier(ctx context.Context, cfg FirebaseTokenVerifierConfig) (*FirebaseTokenVerifier, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID: cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	if cfg.TenantID != "" {
		// Multi-tenant mode: ID tokens only
		tenantClient, err := authClient.TenantManager.AuthForTenant(cfg.TenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tenant auth client for %s: %w", cfg.TenantID, err)
		}
		return &FirebaseTokenVerifier{idTokens: tenantClient, tenantID: cfg.TenantID}, nil
	}

	return &FirebaseTokenVerifier{
		idTokens: authClient,
		sessions: authClient,
	}, nil
}

// VerifyIDToken verifies a Firebase ID token and returns the decoded claims
func (v *FirebaseTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Claims, error) {
	token, err := v.idTokens.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	return claimsFromToken(token), nil
}

// VerifySessionCookie verifies a Firebase session cookie and returns the
// decoded claims
func (v *FirebaseTokenVerifier) VerifySessionCookie(ctx context.Context, cookie string) (*Claims, error) {
	if v.sessions == nil {
		return nil, fmt.Errorf("%w (tenant %s)", ErrSessionCookiesUnsupported, v.tenantID)
	}
	token, err := v.sessions.VerifySessionCookie(ctx, cookie)
	if err != nil {
		return nil, fmt.Errorf("failed to verify session cookie: %w", err)
	}
	return claimsFromToken(token), nil
}

// claimsFromToken converts a verified Firebase token into Claims
func claimsFromToken(token *firebaseAuth.Token) *Claims {
	claims := &Claims{
		UID:           token.UID,
		Email:         getStringClaim(token.Claims, "email"),
		EmailVerified: getBoolClaim(token.Claims, "email_verified"),
		Name:          getStringClaim(token.Claims, "name"),
		Picture:       getStringClaim(token.Claims, "picture"),
		Admin:         getBoolClaim(token.Claims, "admin"),
	}
	if token.Expires > 0 {
		claims.ExpiresAt = time.Unix(token.Expires, 0).UTC()
	}

	// Set provider ID from Firebase token
	if token.Firebase.SignInProvider != "" {
		claims.ProviderID = token.Firebase.SignInProvider
	}

	return claims
}

// getStringClaim safely extracts a string claim from the claims map
func getStringClaim(claims map[string]any, key string) string {
	val, ok := claims[key]
	if !ok {
		return ""
	}
	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// getBoolClaim safely extracts a boolean claim from the claims map
func getBoolClaim(claims map[string]any, key string) bool {
	val, ok := claims[key]
	if !ok {
		return false
	}
	b, ok := val.(bool)
	if !ok {
		return false
	}
	return b
}
