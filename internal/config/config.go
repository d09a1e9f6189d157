package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Subscription sources
const (
	SubscriptionSourceFirestore = "firestore"
	SubscriptionSourceStripe    = "stripe"
)

// Config represents the application configuration
type Config struct {
	Environment string          `yaml:"environment"`
	LogLevel    string          `yaml:"log_level"`
	API         APIConfig       `yaml:"api"`
	Auth        AuthConfig      `yaml:"auth"`
	Store       *StoreConfig    `yaml:"store,omitempty"`
	Cache       CacheConfig     `yaml:"cache"`
	CSRF        CSRFConfig      `yaml:"csrf"`
	Billing     *BillingConfig  `yaml:"billing,omitempty"`
	Fixtures    *FixturesConfig `yaml:"fixtures,omitempty"`
}

// APIConfig represents the HTTP server configuration
type APIConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	RateLimitRPM   int      `yaml:"rate_limit_rpm,omitempty"` // 0 disables rate limiting
	TrustProxy     bool     `yaml:"trust_proxy,omitempty"`    // rate limit on X-Forwarded-For, only behind a rewriting proxy
}

// AuthConfig represents the identity verification configuration
type AuthConfig struct {
	ProjectID     string `yaml:"project_id"`
	Credentials   string `yaml:"credentials,omitempty"`
	TenantID      string `yaml:"tenant_id,omitempty"`
	SessionCookie string `yaml:"session_cookie,omitempty"`

	// TestMode replaces token verification with a fixed identity (TestUID).
	// It is a deployment setting and is rejected in production.
	TestMode bool   `yaml:"test_mode,omitempty"`
	TestUID  string `yaml:"test_uid,omitempty"`
}

// StoreConfig represents the Firestore configuration
type StoreConfig struct {
	ProjectID   string        `yaml:"project_id"`
	Database    string        `yaml:"database,omitempty"`
	Credentials string        `yaml:"credentials,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// CacheConfig represents the user record cache configuration
type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// CSRFConfig represents the double-submit cookie configuration
type CSRFConfig struct {
	CookieName     string   `yaml:"cookie_name,omitempty"`
	TrustedOrigins []string `yaml:"trusted_origins,omitempty"`
}

// BillingConfig represents the Stripe configuration
type BillingConfig struct {
	SecretKey          string   `yaml:"secret_key"`
	WebhookSecret      string   `yaml:"webhook_secret"`
	SubscriptionSource string   `yaml:"subscription_source,omitempty"`
	PremiumPriceIDs    []string `yaml:"premium_price_ids,omitempty"`
}

// FixturesConfig holds in-memory records used when no store is configured
type FixturesConfig struct {
	Users         []UserFixture         `yaml:"users,omitempty"`
	Subscriptions []SubscriptionFixture `yaml:"subscriptions,omitempty"`
}

// UserFixture is a user record served without Firestore
type UserFixture struct {
	UID            string `yaml:"uid"`
	Email          string `yaml:"email,omitempty"`
	Plan           string `yaml:"plan,omitempty"`
	IsAdmin        bool   `yaml:"is_admin,omitempty"`
	SubscriptionID string `yaml:"subscription_id,omitempty"`
}

// SubscriptionFixture is a subscription record served without Firestore
type SubscriptionFixture struct {
	ID     string `yaml:"id"`
	UserID string `yaml:"user_id,omitempty"`
	Status string `yaml:"status"`
	Plan   string `yaml:"plan"`
}

// Default values
const (
	DefaultAddr          = ":8080"
	DefaultSessionCookie = "__session"
	DefaultCSRFCookie    = "__csrf-token"
	DefaultCacheTTL      = 60 * time.Second
	DefaultCacheMaxSize  = 1000
	DefaultStoreTimeout  = 4 * time.Second
	DefaultTestUID       = "test-user"
)

// Default returns a configuration populated with default values
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		API: APIConfig{
			Addr: DefaultAddr,
		},
		Auth: AuthConfig{
			SessionCookie: DefaultSessionCookie,
		},
		Cache: CacheConfig{
			TTL:     DefaultCacheTTL,
			MaxSize: DefaultCacheMaxSize,
		},
		CSRF: CSRFConfig{
			CookieName: DefaultCSRFCookie,
		},
	}
}

// Load reads configuration from the specified YAML file, then applies
// environment variable overrides (see applyEnv) and validates the result.
// An empty path loads from environment variables only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
// JOBTRACK_CONFIG may point to a YAML file loaded first.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("JOBTRACK_CONFIG"))
}

// applyEnv applies environment variable overrides:
//   - JOBTRACK_ENV, JOBTRACK_LOG_LEVEL
//   - JOBTRACK_API_ADDR (or PORT), JOBTRACK_CORS_ALLOWED_ORIGINS, JOBTRACK_RATE_LIMIT_RPM,
//     JOBTRACK_TRUST_PROXY
//   - JOBTRACK_AUTH_PROJECT_ID (or GOOGLE_CLOUD_PROJECT), GOOGLE_APPLICATION_CREDENTIALS,
//     JOBTRACK_AUTH_TENANT_ID, JOBTRACK_SESSION_COOKIE, JOBTRACK_TEST_MODE, JOBTRACK_TEST_UID
//   - JOBTRACK_STORE_PROJECT_ID, JOBTRACK_STORE_DATABASE, JOBTRACK_STORE_TIMEOUT
//   - JOBTRACK_CACHE_TTL, JOBTRACK_CACHE_MAX_SIZE
//   - JOBTRACK_CSRF_TRUSTED_ORIGINS
//   - STRIPE_SECRET_KEY, STRIPE_WEBHOOK_SECRET, JOBTRACK_SUBSCRIPTION_SOURCE, STRIPE_PREMIUM_PRICE_IDS
func (c *Config) applyEnv() error {
	if v := os.Getenv("JOBTRACK_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("JOBTRACK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv("JOBTRACK_API_ADDR"); v != "" {
		c.API.Addr = v
	} else if port := os.Getenv("PORT"); port != "" {
		c.API.Addr = ":" + port
	}
	if v := os.Getenv("JOBTRACK_CORS_ALLOWED_ORIGINS"); v != "" {
		c.API.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("JOBTRACK_RATE_LIMIT_RPM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JOBTRACK_RATE_LIMIT_RPM: %w", err)
		}
		c.API.RateLimitRPM = n
	}
	if v := os.Getenv("JOBTRACK_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("JOBTRACK_TRUST_PROXY: %w", err)
		}
		c.API.TrustProxy = b
	}

	if v := os.Getenv("JOBTRACK_AUTH_PROJECT_ID"); v != "" {
		c.Auth.ProjectID = v
	} else if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" && c.Auth.ProjectID == "" {
		c.Auth.ProjectID = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Auth.Credentials == "" {
		c.Auth.Credentials = v
	}
	if v := os.Getenv("JOBTRACK_AUTH_TENANT_ID"); v != "" {
		c.Auth.TenantID = v
	}
	if v := os.Getenv("JOBTRACK_SESSION_COOKIE"); v != "" {
		c.Auth.SessionCookie = v
	}
	if v := os.Getenv("JOBTRACK_TEST_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("JOBTRACK_TEST_MODE: %w", err)
		}
		c.Auth.TestMode = b
	}
	if v := os.Getenv("JOBTRACK_TEST_UID"); v != "" {
		c.Auth.TestUID = v
	}

	if v := os.Getenv("JOBTRACK_STORE_PROJECT_ID"); v != "" {
		c.ensureStore().ProjectID = v
	}
	if v := os.Getenv("JOBTRACK_STORE_DATABASE"); v != "" {
		c.ensureStore().Database = v
	}
	if v := os.Getenv("JOBTRACK_STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JOBTRACK_STORE_TIMEOUT: %w", err)
		}
		c.ensureStore().Timeout = d
	}

	if v := os.Getenv("JOBTRACK_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JOBTRACK_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if v := os.Getenv("JOBTRACK_CACHE_MAX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JOBTRACK_CACHE_MAX_SIZE: %w", err)
		}
		c.Cache.MaxSize = n
	}

	if v := os.Getenv("JOBTRACK_CSRF_TRUSTED_ORIGINS"); v != "" {
		c.CSRF.TrustedOrigins = splitList(v)
	}

	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		c.ensureBilling().SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		c.ensureBilling().WebhookSecret = v
	}
	if v := os.Getenv("JOBTRACK_SUBSCRIPTION_SOURCE"); v != "" {
		c.ensureBilling().SubscriptionSource = v
	}
	if v := os.Getenv("STRIPE_PREMIUM_PRICE_IDS"); v != "" {
		c.ensureBilling().PremiumPriceIDs = splitList(v)
	}

	return nil
}

func (c *Config) ensureStore() *StoreConfig {
	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	return c.Store
}

func (c *Config) ensureBilling() *BillingConfig {
	if c.Billing == nil {
		c.Billing = &BillingConfig{}
	}
	return c.Billing
}

// applyDefaults fills values left empty by the file and environment
func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.API.Addr == "" {
		c.API.Addr = DefaultAddr
	}
	if c.Auth.SessionCookie == "" {
		c.Auth.SessionCookie = DefaultSessionCookie
	}
	if c.Auth.TestMode && c.Auth.TestUID == "" {
		c.Auth.TestUID = DefaultTestUID
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = DefaultCacheMaxSize
	}
	if c.CSRF.CookieName == "" {
		c.CSRF.CookieName = DefaultCSRFCookie
	}
	if c.Store != nil {
		if c.Store.ProjectID == "" {
			c.Store.ProjectID = c.Auth.ProjectID
		}
		if c.Store.Database == "" {
			c.Store.Database = "(default)"
		}
		if c.Store.Timeout == 0 {
			c.Store.Timeout = DefaultStoreTimeout
		}
	}
	if c.Billing != nil && c.Billing.SubscriptionSource == "" {
		c.Billing.SubscriptionSource = SubscriptionSourceFirestore
	}
}

// IsDevelopment reports whether the service runs in the development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	if c.API.RateLimitRPM < 0 {
		return fmt.Errorf("api.rate_limit_rpm must not be negative")
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.Auth.TestMode && c.Environment == EnvProduction {
		return fmt.Errorf("auth.test_mode cannot be enabled in production")
	}

	if c.Store != nil {
		if err := c.Store.Validate(); err != nil {
			return err
		}
	} else if !c.Auth.TestMode {
		return fmt.Errorf("store configuration is required unless auth.test_mode is enabled")
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must not be negative")
	}

	if c.Billing != nil {
		if err := c.Billing.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks the auth configuration
func (a *AuthConfig) Validate() error {
	if a.TestMode {
		return nil
	}
	if a.ProjectID == "" {
		return fmt.Errorf("auth.project_id is required")
	}
	return nil
}

// Validate checks the store configuration
func (s *StoreConfig) Validate() error {
	if s.ProjectID == "" {
		return fmt.Errorf("store.project_id is required")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("store.timeout must not be negative")
	}
	return nil
}

// Validate checks the billing configuration
func (b *BillingConfig) Validate() error {
	switch b.SubscriptionSource {
	case "", SubscriptionSourceFirestore:
	case SubscriptionSourceStripe:
		if b.SecretKey == "" {
			return fmt.Errorf("billing.secret_key is required for subscription_source %q", b.SubscriptionSource)
		}
	default:
		return fmt.Errorf("unsupported billing.subscription_source: %q (supported: firestore, stripe)", b.SubscriptionSource)
	}
	if b.WebhookSecret != "" && b.SecretKey == "" {
		return fmt.Errorf("billing.secret_key is required when webhook_secret is set")
	}
	return nil
}

// splitList splits a comma separated list, dropping empty items
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
