package auth

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/logging"
	"github.com/otiai10/jobtrack/internal/metrics"
	"github.com/otiai10/jobtrack/internal/origin"
	"github.com/otiai10/jobtrack/internal/user"
)

// Mode selects how a request is gated
type Mode string

// Gating modes
const (
	ModeRequired Mode = "required"
	ModeAdmin    Mode = "admin"
	ModeOptional Mode = "optional"
)

// Options configures a single authentication check
type Options struct {
	Mode Mode
	// RequireAuthHeader demands an Authorization bearer header. Requests from
	// browser extensions always have to present one.
	RequireAuthHeader bool
	// LoadUser loads the persisted user record into the Context.
	// Admin mode always loads it.
	LoadUser bool
}

// Context is the per-request authentication result handed to handlers
type Context struct {
	Claims            *Claims
	User              *user.User
	IsAdmin           bool
	IsExtensionOrigin bool
	// UserUnavailable is set when the user store could not be read, so a
	// nil User does not mean the record is missing
	UserUnavailable bool
}

// Result is either a Context (OK) or a Failure
type Result struct {
	OK      bool
	Context *Context
	Failure *Failure
}

// UserLoader loads persisted user records.
// Lookup may serve cached data, Refresh must read the store.
type UserLoader interface {
	Lookup(ctx context.Context, uid string) (user.Snapshot, error)
	Refresh(ctx context.Context, uid string) (*user.User, error)
}

// Ensure user.CachedRepository satisfies UserLoader
var _ UserLoader = (*user.CachedRepository)(nil)

// OriginPolicy decides whether a request origin receives CORS headers.
// *cors.Cors from github.com/rs/cors satisfies it.
type OriginPolicy interface {
	OriginAllowed(r *http.Request) bool
}

// Middleware composes the SessionVerifier and the user store into the
// required, admin and optional gating modes
type Middleware struct {
	verifier *SessionVerifier
	users    UserLoader
	origins  OriginPolicy
	logger   *zap.Logger
}

// NewMiddleware creates a Middleware. origins may be nil, in which case
// failure responses carry no CORS headers.
func NewMiddleware(verifier *SessionVerifier, users UserLoader, origins OriginPolicy, logger *zap.Logger) *Middleware {
	return &Middleware{
		verifier: verifier,
		users:    users,
		origins:  origins,
		logger:   logging.OrNop(logger),
	}
}

// Authenticate runs the check described by opts against r.
// Panics and unexpected errors are converted into an INTERNAL_ERROR failure.
func (m *Middleware) Authenticate(r *http.Request, opts Options) (res Result) {
	if opts.Mode == "" {
		opts.Mode = ModeRequired
	}

	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("panic during authentication",
				zap.String("mode", string(opts.Mode)),
				zap.Any("panic", rec),
			)
			res = m.fail(r, opts.Mode, CodeInternalError, "")
		}
		if res.OK {
			metrics.AuthResults.WithLabelValues(string(opts.Mode), "OK").Inc()
		} else {
			metrics.AuthResults.WithLabelValues(string(opts.Mode), string(res.Failure.Code)).Inc()
		}
	}()

	ac := &Context{IsExtensionOrigin: origin.IsExtension(r)}
	requireHeader := opts.RequireAuthHeader || ac.IsExtensionOrigin

	if requireHeader {
		if _, ok := BearerToken(r); !ok {
			if opts.Mode == ModeOptional {
				return Result{OK: true, Context: ac}
			}
			return m.fail(r, opts.Mode, CodeMissingAuthHeader, "Authorization header required")
		}
	}

	claims := m.verifier.Authenticate(r)
	if claims == nil {
		if opts.Mode == ModeOptional {
			return Result{OK: true, Context: ac}
		}
		return m.fail(r, opts.Mode, CodeInvalidToken, "Invalid or expired token")
	}
	ac.Claims = claims

	if opts.Mode == ModeAdmin {
		return m.authorizeAdmin(r, ac)
	}

	if opts.LoadUser {
		snap, err := m.users.Lookup(r.Context(), claims.UID)
		if err != nil {
			if opts.Mode == ModeOptional {
				m.logger.Warn("optional auth failed to load user", zap.String("uid", claims.UID), zap.Error(err))
				return Result{OK: true, Context: ac}
			}
			m.logger.Error("failed to load user", zap.String("uid", claims.UID), zap.Error(err))
			return m.fail(r, opts.Mode, CodeInternalError, "")
		}
		ac.User = snap.User
		ac.IsAdmin = snap.User != nil && snap.User.IsAdmin
		ac.UserUnavailable = snap.Degraded
	}

	return Result{OK: true, Context: ac}
}

// authorizeAdmin grants access only when the cached record and a fresh read
// of the store both mark the user as admin. The token's admin claim is not
// consulted.
func (m *Middleware) authorizeAdmin(r *http.Request, ac *Context) Result {
	uid := ac.Claims.UID

	snap, err := m.users.Lookup(r.Context(), uid)
	if err != nil {
		m.logger.Error("failed to load user for admin check", zap.String("uid", uid), zap.Error(err))
		return m.fail(r, ModeAdmin, CodeInternalError, "")
	}
	if snap.User == nil || !snap.User.IsAdmin {
		m.logDenied(uid, ac.Claims, "record")
		return m.fail(r, ModeAdmin, CodeAdminRequired, "Admin access required")
	}

	fresh, err := m.users.Refresh(r.Context(), uid)
	if err != nil {
		m.logger.Warn("admin re-check failed, denying", zap.String("uid", uid), zap.Error(err))
		return m.fail(r, ModeAdmin, CodeAdminRequired, "Admin access required")
	}
	if fresh == nil || !fresh.IsAdmin {
		m.logDenied(uid, ac.Claims, "recheck")
		return m.fail(r, ModeAdmin, CodeAdminRequired, "Admin access required")
	}

	ac.User = fresh
	ac.IsAdmin = true
	return Result{OK: true, Context: ac}
}

func (m *Middleware) logDenied(uid string, claims *Claims, stage string) {
	m.logger.Info("admin access denied",
		zap.String("uid", uid),
		zap.String("stage", stage),
		zap.Bool("claim_admin", claims.Admin),
	)
}

func (m *Middleware) fail(r *http.Request, mode Mode, code ErrorCode, message string) Result {
	m.logger.Debug("authentication failed",
		zap.String("mode", string(mode)),
		zap.String("code", string(code)),
		zap.String("path", r.URL.Path),
	)
	return Result{Failure: newFailure(code, message, m.corsHeaders(r))}
}

// corsHeaders returns the CORS headers a failure response needs so the
// browser exposes the error to the calling page
func (m *Middleware) corsHeaders(r *http.Request) http.Header {
	h := http.Header{}
	requestOrigin := r.Header.Get("Origin")
	if m.origins == nil || requestOrigin == "" || !m.origins.OriginAllowed(r) {
		return h
	}
	h.Set("Access-Control-Allow-Origin", requestOrigin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Add("Vary", "Origin")
	return h
}

// Handler returns middleware that runs Authenticate with opts, stores the
// Context on the request and calls next, or writes the failure
func (m *Middleware) Handler(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := m.Authenticate(r, opts)
			if !res.OK {
				res.Failure.Write(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), res.Context)))
		})
	}
}

// WithAuth requires a verified credential
func (m *Middleware) WithAuth(opts Options) func(http.Handler) http.Handler {
	opts.Mode = ModeRequired
	return m.Handler(opts)
}

// WithAdminAuth requires a verified credential of an admin user
func (m *Middleware) WithAdminAuth(opts Options) func(http.Handler) http.Handler {
	opts.Mode = ModeAdmin
	opts.LoadUser = true
	return m.Handler(opts)
}

// WithOptionalAuth never rejects. Handlers branch on Context.Claims.
func (m *Middleware) WithOptionalAuth(opts Options) func(http.Handler) http.Handler {
	opts.Mode = ModeOptional
	return m.Handler(opts)
}

// String implements fmt.Stringer for logging
func (c *Context) String() string {
	if c == nil || c.Claims == nil {
		return "anonymous"
	}
	return fmt.Sprintf("uid=%s admin=%t extension=%t", c.Claims.UID, c.IsAdmin, c.IsExtensionOrigin)
}
