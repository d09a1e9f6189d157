// Package csrf implements the double-submit cookie scheme protecting
// mutating requests.
//
// The token cookie is readable by page script, which echoes it back in the
// X-CSRF-Token header (X-XSRF-Token and the _csrf query parameter are also
// accepted). A cross-site page cannot read the cookie, so it cannot forge the
// echo.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/otiai10/jobtrack/internal/metrics"
	"github.com/otiai10/jobtrack/internal/origin"
)

// Defaults
const (
	DefaultCookieName = "__csrf-token"
	HeaderName        = "X-CSRF-Token"
	AltHeaderName     = "X-XSRF-Token"
	QueryParam        = "_csrf"
	TokenBytes        = 32
	MaxAge            = 7200 // seconds
)

// Validation errors. Callers map both to 403.
var (
	ErrMissingToken = errors.New("Missing CSRF token")
	ErrInvalidToken = errors.New("Invalid CSRF token")
)

// Guard issues and validates CSRF tokens
type Guard struct {
	cookieName string
	secure     bool
	trusted    *origin.AllowList
}

// Option configures a Guard
type Option func(*Guard)

// WithCookieName overrides the token cookie name
func WithCookieName(name string) Option {
	return func(g *Guard) {
		if name != "" {
			g.cookieName = name
		}
	}
}

// WithSecureCookie sets the Secure attribute on issued cookies.
// Enable everywhere except local development.
func WithSecureCookie(secure bool) Option {
	return func(g *Guard) {
		g.secure = secure
	}
}

// WithTrustedOrigins exempts requests from the listed origins.
// Origins are matched exactly after normalization.
func WithTrustedOrigins(list *origin.AllowList) Option {
	return func(g *Guard) {
		g.trusted = list
	}
}

// New creates a Guard
func New(opts ...Option) *Guard {
	g := &Guard{
		cookieName: DefaultCookieName,
		secure:     true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CookieName returns the name of the token cookie
func (g *Guard) CookieName() string {
	return g.cookieName
}

// EnsureCookie sets the token cookie on w and returns its value. An existing
// token on r is reissued unchanged with a refreshed max age; otherwise a new
// random token is generated.
func (g *Guard) EnsureCookie(w http.ResponseWriter, r *http.Request) (string, error) {
	token := ""
	if c, err := r.Cookie(g.cookieName); err == nil && c.Value != "" {
		token = c.Value
	} else {
		token, err = NewToken()
		if err != nil {
			return "", err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   MaxAge,
		HttpOnly: false,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// Validate checks the double-submit pair on r.
// Safe methods, browser extension origins and trusted origins pass without a
// token. It returns ErrMissingToken or ErrInvalidToken on failure.
func (g *Guard) Validate(r *http.Request) error {
	if IsSafeMethod(r.Method) {
		return nil
	}
	if origin.IsExtension(r) {
		metrics.CSRFBypasses.WithLabelValues("extension").Inc()
		return nil
	}
	if g.trusted != nil && g.trusted.Contains(origin.FromRequest(r)) {
		metrics.CSRFBypasses.WithLabelValues(g.trusted.Name()).Inc()
		return nil
	}

	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		metrics.CSRFRejections.WithLabelValues("missing_cookie").Inc()
		return ErrMissingToken
	}
	presented := PresentedToken(r)
	if presented == "" {
		metrics.CSRFRejections.WithLabelValues("missing_token").Inc()
		return ErrMissingToken
	}

	if !Equal(cookie.Value, presented) {
		metrics.CSRFRejections.WithLabelValues("mismatch").Inc()
		return ErrInvalidToken
	}
	return nil
}

// PresentedToken returns the token echoed by the client from the CSRF
// header, the alternate header, or the query parameter, in that order
func PresentedToken(r *http.Request) string {
	if v := r.Header.Get(HeaderName); v != "" {
		return v
	}
	if v := r.Header.Get(AltHeaderName); v != "" {
		return v
	}
	return r.URL.Query().Get(QueryParam)
}

// Equal compares two tokens in constant time. Tokens of different length are
// unequal without a timed comparison; token length is not secret.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewToken returns a new random hex token
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsSafeMethod reports whether method cannot change server state
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
