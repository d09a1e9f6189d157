// Package metrics defines the Prometheus collectors of the request gate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthResults counts authentication outcomes by gating mode and result code
	AuthResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrack_auth_results_total",
			Help: "Authentication outcomes by gating mode and result code",
		},
		[]string{"mode", "code"},
	)

	// CacheLookups counts user record lookups by result (hit, miss, stale, error)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrack_user_cache_lookups_total",
			Help: "User record cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheEvictions counts entries removed by cleanup passes
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobtrack_user_cache_evictions_total",
			Help: "User record cache entries removed by cleanup",
		},
	)

	// CacheSize reports the number of cached user records
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobtrack_user_cache_size",
			Help: "Number of cached user records",
		},
	)

	// StoreFetchDuration observes user document fetch latency
	StoreFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobtrack_user_store_fetch_duration_seconds",
			Help:    "User document fetch latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)

	// TierResolutions counts resolved tiers
	TierResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrack_tier_resolutions_total",
			Help: "Resolved plan tiers by tier and source",
		},
		[]string{"tier", "source"},
	)

	// CSRFRejections counts rejected mutating requests by reason
	CSRFRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrack_csrf_rejections_total",
			Help: "Mutating requests rejected by CSRF validation",
		},
		[]string{"reason"},
	)

	// CSRFBypasses counts mutating requests that skipped CSRF validation
	CSRFBypasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrack_csrf_bypasses_total",
			Help: "Mutating requests exempted from CSRF validation by rule",
		},
		[]string{"rule"},
	)

	// BillingEvents counts processed Stripe webhook events
	BillingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtrack_billing_events_total",
			Help: "Stripe webhook events by type and status",
		},
		[]string{"type", "status"},
	)

	// RateLimited counts requests rejected by the rate limiter
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobtrack_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
	)
)
