package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/auth"
	"github.com/otiai10/jobtrack/internal/cache"
	"github.com/otiai10/jobtrack/internal/csrf"
	"github.com/otiai10/jobtrack/internal/tier"
	"github.com/otiai10/jobtrack/internal/user"
	"github.com/otiai10/jobtrack/internal/version"
)

// Error codes produced by this package, in addition to the auth codes
const (
	CodeCSRFMissing      auth.ErrorCode = "CSRF_TOKEN_MISSING"
	CodeCSRFInvalid      auth.ErrorCode = "CSRF_TOKEN_INVALID"
	CodeRateLimited      auth.ErrorCode = "RATE_LIMITED"
	CodeBadRequest       auth.ErrorCode = "BAD_REQUEST"
	CodeNotFound         auth.ErrorCode = "NOT_FOUND"
	CodeMethodNotAllowed auth.ErrorCode = "METHOD_NOT_ALLOWED"
)

// Users is the user record service used by the handlers
type Users interface {
	Get(ctx context.Context, uid string) (*user.User, error)
	Create(ctx context.Context, u user.User) error
	Invalidate(uid string)
	Stats() cache.Stats
}

// Ensure user.CachedRepository implements Users
var _ Users = (*user.CachedRepository)(nil)

// TierResolver resolves the tier of a user
type TierResolver interface {
	ResolveTier(ctx context.Context, uid string) tier.Tier
}

// Ensure tier.Resolver implements TierResolver
var _ TierResolver = (*tier.Resolver)(nil)

// Handler handles the session, profile and admin endpoints
type Handler struct {
	users  Users
	tiers  TierResolver
	guard  *csrf.Guard
	logger *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(users Users, tiers TierResolver, guard *csrf.Guard, logger *zap.Logger) *Handler {
	return &Handler{
		users:  users,
		tiers:  tiers,
		guard:  guard,
		logger: logger,
	}
}

// ProfileResponse is returned by GET /api/me
type ProfileResponse struct {
	User              *user.User `json:"user"`
	Tier              tier.Tier  `json:"tier"`
	IsAdmin           bool       `json:"isAdmin"`
	IsExtensionOrigin bool       `json:"isExtensionOrigin"`
}

// SessionResponse is returned by GET /api/session
type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	UID           string     `json:"uid,omitempty"`
	Email         string     `json:"email,omitempty"`
	Tier          tier.Tier  `json:"tier,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// TierResponse is returned by POST /api/me/tier/refresh
type TierResponse struct {
	Tier tier.Tier `json:"tier"`
}

// CSRFTokenResponse is returned by GET /api/csrf-token
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "hash": version.CommitHash}, http.StatusOK)
}

// CSRFToken handles GET /api/csrf-token
// Issues the CSRF cookie (or refreshes the existing one) and returns its value
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.guard.EnsureCookie(w, r)
	if err != nil {
		h.logger.Error("failed to issue csrf token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, auth.CodeInternalError, "")
		return
	}
	writeJSON(w, CSRFTokenResponse{CSRFToken: token}, http.StatusOK)
}

// Session handles GET /api/session behind optional authentication
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		writeJSON(w, SessionResponse{Authenticated: false}, http.StatusOK)
		return
	}

	resp := SessionResponse{
		Authenticated: true,
		UID:           claims.UID,
		Email:         claims.Email,
		Tier:          h.tiers.ResolveTier(r.Context(), claims.UID),
	}
	if !claims.ExpiresAt.IsZero() {
		expiresAt := claims.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	writeJSON(w, resp, http.StatusOK)
}

// GetProfile handles GET /api/me
// Returns the current user's profile and tier, creating the user on first login.
// While the user store is unreachable and nothing is cached, the profile is
// served without a record at the free tier; creation waits for the store.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok || ac.Claims == nil {
		writeError(w, http.StatusUnauthorized, auth.CodeInvalidToken, "")
		return
	}

	u := ac.User
	if u == nil && ac.UserUnavailable {
		h.logger.Warn("user store unavailable, serving profile without record", zap.String("uid", ac.Claims.UID))
		writeJSON(w, ProfileResponse{
			Tier:              tier.Free,
			IsExtensionOrigin: ac.IsExtensionOrigin,
		}, http.StatusOK)
		return
	}
	if u == nil {
		created, err := h.createNewUser(r.Context(), ac.Claims)
		if err != nil {
			h.logger.Error("failed to create user", zap.String("uid", ac.Claims.UID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, auth.CodeInternalError, "")
			return
		}
		u = created
	}

	writeJSON(w, ProfileResponse{
		User:              u,
		Tier:              h.tiers.ResolveTier(r.Context(), ac.Claims.UID),
		IsAdmin:           u != nil && u.IsAdmin,
		IsExtensionOrigin: ac.IsExtensionOrigin,
	}, http.StatusOK)
}

// RefreshTier handles POST /api/me/tier/refresh
// Drops the caller's cached record and resolves the tier from the store
func (h *Handler) RefreshTier(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustGetClaims(r.Context())

	h.users.Invalidate(claims.UID)
	writeJSON(w, TierResponse{Tier: h.tiers.ResolveTier(r.Context(), claims.UID)}, http.StatusOK)
}

// CacheStats handles GET /api/admin/cache
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.users.Stats(), http.StatusOK)
}

// InvalidateCache handles DELETE /api/admin/cache/{uid}
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "uid is required")
		return
	}

	h.users.Invalidate(uid)
	h.logger.Info("user cache entry invalidated",
		zap.String("uid", uid),
		zap.String("by", auth.MustGetClaims(r.Context()).UID),
	)
	w.WriteHeader(http.StatusNoContent)
}

// createNewUser creates a user from authentication claims. A concurrent first
// login that created the document first wins.
func (h *Handler) createNewUser(ctx context.Context, claims *auth.Claims) (*user.User, error) {
	now := time.Now().UTC()
	newUser := user.User{
		UID:         claims.UID,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Plan:        user.PlanFree,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := h.users.Create(ctx, newUser)
	if errors.Is(err, user.ErrDuplicateUID) {
		h.users.Invalidate(claims.UID)
		return h.users.Get(ctx, claims.UID)
	}
	if err != nil {
		return nil, err
	}
	return &newUser, nil
}

func writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Already wrote headers, encoding errors cannot be reported
	_ = json.NewEncoder(w).Encode(data)
}

var errorTexts = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Internal Server Error",
}

func writeError(w http.ResponseWriter, status int, code auth.ErrorCode, message string) {
	text, ok := errorTexts[status]
	if !ok {
		text = http.StatusText(status)
	}
	auth.WriteError(w, status, auth.ErrorResponse{Error: text, Code: code, Message: message})
}
