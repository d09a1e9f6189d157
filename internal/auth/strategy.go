package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Strategy extracts and verifies one kind of credential.
// Authenticate returns ErrNoCredential when the request does not carry the
// credential, and any other error when the credential is present but invalid.
type Strategy interface {
	Name() string
	Authenticate(r *http.Request) (*Claims, error)
}

// CookieStrategy verifies the session cookie
type CookieStrategy struct {
	CookieName string
	Verifier   SessionCookieVerifier
}

// Name implements Strategy
func (s *CookieStrategy) Name() string { return "cookie" }

// Authenticate implements Strategy
func (s *CookieStrategy) Authenticate(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(s.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoCredential
	}
	return verified(s.Verifier.VerifySessionCookie(r.Context(), cookie.Value))
}

// BearerStrategy verifies an ID token from the Authorization header
type BearerStrategy struct {
	Verifier TokenVerifier
}

// Name implements Strategy
func (s *BearerStrategy) Name() string { return "bearer" }

// Authenticate implements Strategy
func (s *BearerStrategy) Authenticate(r *http.Request) (*Claims, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, ErrNoCredential
	}
	return verified(s.Verifier.VerifyIDToken(r.Context(), token))
}

// StaticStrategy authenticates every request as a fixed identity.
// It is enabled only by the auth.test_mode configuration flag and never
// inspects the request.
type StaticStrategy struct {
	Claims Claims
}

// NewStaticStrategy returns a StaticStrategy for uid
func NewStaticStrategy(uid string) *StaticStrategy {
	return &StaticStrategy{Claims: Claims{UID: uid, EmailVerified: true, ProviderID: "test"}}
}

// Name implements Strategy
func (s *StaticStrategy) Name() string { return "static" }

// Authenticate implements Strategy
func (s *StaticStrategy) Authenticate(r *http.Request) (*Claims, error) {
	claims := s.Claims
	return &claims, nil
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-sensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func verified(claims *Claims, err error) (*Claims, error) {
	if err != nil {
		return nil, err
	}
	if claims == nil || claims.UID == "" {
		return nil, fmt.Errorf("verified credential has no uid")
	}
	return claims, nil
}
