package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/api"
	"github.com/otiai10/jobtrack/internal/auth"
	"github.com/otiai10/jobtrack/internal/billing"
	"github.com/otiai10/jobtrack/internal/cache"
	"github.com/otiai10/jobtrack/internal/config"
	"github.com/otiai10/jobtrack/internal/csrf"
	"github.com/otiai10/jobtrack/internal/logging"
	"github.com/otiai10/jobtrack/internal/origin"
	"github.com/otiai10/jobtrack/internal/store"
	"github.com/otiai10/jobtrack/internal/subscription"
	"github.com/otiai10/jobtrack/internal/tier"
	"github.com/otiai10/jobtrack/internal/user"
	"github.com/otiai10/jobtrack/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults to $JOBTRACK_CONFIG)")
	testMode := flag.Bool("test-mode", false, "Authenticate every request as auth.test_uid (never in production)")
	flag.Parse()

	// Load .env.localdev file if it exists (for local development)
	// Silently ignore if file doesn't exist (production uses real env vars)
	_ = godotenv.Load(".env.localdev")

	if *testMode {
		_ = os.Setenv("JOBTRACK_TEST_MODE", "true")
	}
	path := *configPath
	if path == "" {
		path = os.Getenv("JOBTRACK_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("jobtrack exited", zap.Error(err))
	}
}

// repositories are the persistence backends chosen by configuration
type repositories struct {
	users         user.Repository
	subscriptions subscription.Repository
	writer        subscription.Writer
	close         func()
}

func openRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repositories, error) {
	if cfg.Store == nil {
		logger.Warn("no store configured, serving fixture records from memory")
		subs := subscription.NewStaticRepository(cfg.Fixtures)
		return &repositories{
			users:         user.NewStaticRepository(cfg.Fixtures),
			subscriptions: subs,
			writer:        subs,
			close:         func() {},
		}, nil
	}

	client, err := store.NewFirestoreClient(ctx, store.FirestoreConfig{
		ProjectID:   cfg.Store.ProjectID,
		Database:    cfg.Store.Database,
		Credentials: cfg.Store.Credentials,
	}, logger)
	if err != nil {
		return nil, err
	}

	subs := subscription.NewFirestoreRepository(client.Client())
	return &repositories{
		users:         user.NewFirestoreRepository(client.Client()),
		subscriptions: subs,
		writer:        subs,
		close:         func() { _ = client.Close() },
	}, nil
}

func newSessionVerifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*auth.SessionVerifier, error) {
	if cfg.Auth.TestMode {
		logger.Warn("TEST MODE: every request is authenticated as a fixed user",
			zap.String("uid", cfg.Auth.TestUID),
		)
		return auth.NewSessionVerifier(logger, auth.NewStaticStrategy(cfg.Auth.TestUID)), nil
	}

	verifier, err := auth.NewFirebaseTokenVerifier(ctx, auth.FirebaseTokenVerifierConfig{
		ProjectID:       cfg.Auth.ProjectID,
		CredentialsPath: cfg.Auth.Credentials,
		TenantID:        cfg.Auth.TenantID,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("identity platform verification enabled",
		zap.String("project_id", cfg.Auth.ProjectID),
		zap.String("tenant_id", cfg.Auth.TenantID),
	)
	return auth.NewCookieThenBearer(logger, cfg.Auth.SessionCookie, verifier, verifier), nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting jobtrack",
		zap.String("hash", version.CommitHash),
		zap.String("addr", cfg.API.Addr),
	)

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open repositories: %w", err)
	}
	defer repos.close()

	var billingClient *billing.Client
	subscriptions := repos.subscriptions
	if cfg.Billing != nil && cfg.Billing.SecretKey != "" {
		billingClient = billing.NewClient(cfg.Billing.SecretKey)
		if cfg.Billing.SubscriptionSource == config.SubscriptionSourceStripe {
			subscriptions = subscription.NewStripeRepository(cfg.Billing.PremiumPriceIDs)
			logger.Info("reading subscriptions from Stripe")
		}
	}

	fetchTimeout := config.DefaultStoreTimeout
	if cfg.Store != nil {
		fetchTimeout = cfg.Store.Timeout
	}
	users := user.NewCachedRepository(repos.users,
		cache.New[user.Record](cfg.Cache.TTL, cfg.Cache.MaxSize),
		user.WithFetchTimeout(fetchTimeout),
		user.WithLogger(logger),
	)
	resolver := tier.NewResolver(users, subscriptions,
		tier.WithLookupTimeout(fetchTimeout),
		tier.WithLogger(logger),
	)

	guard := csrf.New(
		csrf.WithCookieName(cfg.CSRF.CookieName),
		csrf.WithSecureCookie(!cfg.IsDevelopment()),
		csrf.WithTrustedOrigins(origin.NewAllowList("csrf.trusted_origins", cfg.CSRF.TrustedOrigins)),
	)

	verifier, err := newSessionVerifier(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create session verifier: %w", err)
	}
	corsPolicy := api.NewCORS(cfg.API.AllowedOrigins)

	routerCfg := api.RouterConfig{
		Handler:      api.NewHandler(users, resolver, guard, logger),
		Auth:         auth.NewMiddleware(verifier, users, corsPolicy, logger),
		CSRF:         guard,
		CORS:         corsPolicy,
		RateLimitRPM: cfg.API.RateLimitRPM,
		TrustProxy:   cfg.API.TrustProxy,
		Logger:       logger,
	}
	if billingClient != nil && cfg.Billing.WebhookSecret != "" {
		reconciler := billing.NewReconciler(billing.ReconcilerConfig{
			Users:           repos.users,
			Subscriptions:   repos.writer,
			Cache:           users,
			Fetcher:         billingClient,
			PremiumPriceIDs: cfg.Billing.PremiumPriceIDs,
			Logger:          logger,
		})
		routerCfg.Webhook = api.NewWebhookHandler(reconciler, cfg.Billing.WebhookSecret, logger)
		logger.Info("stripe webhooks enabled")
	}

	server := api.NewServer(cfg.API.Addr, api.NewRouter(routerCfg))
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
