package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/auth"
	"github.com/otiai10/jobtrack/internal/csrf"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Handler *Handler
	Auth    *auth.Middleware
	CSRF    *csrf.Guard
	CORS    *cors.Cors
	Webhook *WebhookHandler // nil means billing webhooks are not served

	RateLimitRPM int  // 0 disables rate limiting
	TrustProxy   bool // key clients on X-Forwarded-For, only behind a proxy that overwrites it
	Logger       *zap.Logger
}

// NewRouter creates a new router with all API routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handler

	required := cfg.Auth.WithAuth(auth.Options{LoadUser: true})
	optional := cfg.Auth.WithOptionalAuth(auth.Options{})
	admin := cfg.Auth.WithAdminAuth(auth.Options{})
	csrfCheck := CSRFMiddleware(cfg.CSRF, cfg.Logger)

	// Public routes
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/csrf-token", h.CSRFToken)
	mux.Handle("GET /api/session", optional(http.HandlerFunc(h.Session)))

	// Signed by Stripe, so neither session nor CSRF checks apply
	if cfg.Webhook != nil {
		mux.HandleFunc("POST /api/webhooks/stripe", cfg.Webhook.StripeWebhook)
	}

	// Authenticated routes
	mux.Handle("GET /api/me", required(http.HandlerFunc(h.GetProfile)))
	mux.Handle("POST /api/me/tier/refresh", Chain(csrfCheck, cfg.Auth.WithAuth(auth.Options{}))(http.HandlerFunc(h.RefreshTier)))

	// Admin routes
	mux.Handle("GET /api/admin/cache", admin(http.HandlerFunc(h.CacheStats)))
	mux.Handle("DELETE /api/admin/cache/{uid}", Chain(csrfCheck, admin)(http.HandlerFunc(h.InvalidateCache)))

	return Chain(
		RecoveryMiddleware(cfg.Logger),
		RequestIDMiddleware,
		LoggingMiddleware(cfg.Logger),
		CORSMiddleware(cfg.CORS),
		RateLimitMiddleware(cfg.RateLimitRPM, cfg.TrustProxy, cfg.Logger),
	)(mux)
}
