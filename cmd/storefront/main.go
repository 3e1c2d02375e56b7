package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	platformstorage "github.com/hanko-field/storefront/internal/platform/storage"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/services"
)

const meterName = "github.com/hanko-field/storefront"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["STOREFRONT_LOG_LEVEL"], strings.EqualFold(envValues["STOREFRONT_ENV"], "local"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("storefront")
	meter := otel.Meter(meterName)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Webhooks.InventorySecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()
	imageSigner, err := newImageSigner(cfg, storageClient)
	if err != nil {
		logger.Fatal("failed to initialise image signer", zap.Error(err))
	}

	analytics, analyticsTopic, closeAnalytics, err := newAnalyticsPublisher(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise analytics publisher", zap.Error(err))
	}
	defer closeAnalytics()

	healthRepo, err := newHealthRepository(firestoreProvider, fetcher, analyticsTopic)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	selectionMetrics, err := observability.NewSelectionMetrics(meter)
	if err != nil {
		logger.Fatal("failed to register selection metrics", zap.Error(err))
	}
	verificationMetrics, err := observability.NewVerificationMetrics(meter)
	if err != nil {
		logger.Fatal("failed to register verification metrics", zap.Error(err))
	}

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Infrastructure{
		Images:      imageSigner,
		Analytics:   analytics,
		Metrics:     selectionMetrics,
		Idempotency: idempotencyStore,
		Build:       buildInfoFromEnv(envValues, cfg, startedAt),
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()
	svc := container.Services

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	authLogger := logger.Named("auth")
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithLogger(authLogger),
		auth.WithMetrics(verificationMetrics),
	)

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithHealthSystemService(svc.System),
	)
	productHandlers := handlers.NewProductHandlers(authenticator, svc.Products)
	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart,
		handlers.WithAddItemRateLimit(cfg.RateLimits.CartPerMinute, cfg.RateLimits.CartBurst, time.Now),
		handlers.WithAddItemIdempotency(idempotencyMiddleware),
	)
	webhookHandlers := handlers.NewInventoryWebhookHandlers(svc.Inventory,
		handlers.WithWebhookRateLimit(cfg.RateLimits.WebhookPerMinute, cfg.RateLimits.WebhookBurst, time.Now),
	)
	maintenanceHandlers := handlers.NewMaintenanceHandlers(svc.Maintenance)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebhookMiddlewares(buildHMACMiddleware(authLogger, verificationMetrics, idempotency.NewNonceLedger(idempotencyStore), cfg)),
		handlers.WithInternalRoutes(maintenanceHandlers.Routes),
	}
	if oidc := buildOIDCMiddleware(authLogger, verificationMetrics, cfg); oidc != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidc))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening",
			zap.String("environment", cfg.Environment),
			zap.Bool("inventoryAware", cfg.Store.InventoryAware),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STOREFRONT_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["STOREFRONT_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	project := strings.TrimSpace(env["STOREFRONT_SECRET_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(env["STOREFRONT_FIREBASE_PROJECT_ID"])
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := strings.TrimSpace(env["STOREFRONT_SECRET_FALLBACK_FILE"]); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentials := strings.TrimSpace(env["STOREFRONT_FIREBASE_CREDENTIALS_FILE"]); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func newImageSigner(cfg config.Config, client *cloudstorage.Client) (*platformstorage.URLSigner, error) {
	opts := []platformstorage.URLSignerOption{
		platformstorage.WithClient(client),
		platformstorage.WithTTL(cfg.Storage.SignedURLTTL),
	}
	if key := strings.TrimSpace(cfg.Storage.SignerAccountKey); key != "" {
		signer, err := platformstorage.NewKeySigner([]byte(key))
		if err != nil {
			return nil, fmt.Errorf("parse storage signer key: %w", err)
		}
		opts = append(opts, platformstorage.WithSigner(signer))
	}
	return platformstorage.NewURLSigner(cfg.Storage.MediaBucket, opts...)
}

// newAnalyticsPublisher returns a nil publisher when no topic is configured;
// services treat a nil AnalyticsPublisher as disabled.
func newAnalyticsPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.AnalyticsPublisher, *pubsub.Topic, func(), error) {
	topicName := strings.TrimSpace(cfg.PubSub.AnalyticsTopic)
	if topicName == "" {
		logger.Warn("analytics topic not configured; storefront events are dropped")
		return nil, nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	publisher, err := jobs.NewPubSubAnalyticsPublisher(topic,
		jobs.WithAnalyticsLogger(logger.Named("analytics")),
		jobs.WithStaticAttributes(map[string]string{"environment": cfg.Environment}),
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	closeFn := func() {
		publisher.Flush()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, topic, closeFn, nil
}

func newHealthRepository(provider *pfirestore.Provider, fetcher *secrets.Fetcher, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check:   provider.Ping,
	}}
	if fetcher != nil {
		const secretHealthReference = "secret://storefront-healthz"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || errors.Is(err, secrets.ErrSecretNotFound) || status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildHMACMiddleware(logger *zap.Logger, metrics auth.MetricsRecorder, nonces auth.NonceStore, cfg config.Config) func(http.Handler) http.Handler {
	validator := auth.NewHMACValidator(cfg.Webhooks.InventorySecret, nonces,
		auth.WithHMACPreviousSecrets(cfg.Webhooks.PreviousSecrets...),
		auth.WithHMACLogger(logger),
		auth.WithHMACMetrics(metrics),
		auth.WithHMACHeaders(cfg.Webhooks.SignatureHeader, cfg.Webhooks.TimestampHeader, cfg.Webhooks.NonceHeader),
		auth.WithHMACWindow(cfg.Webhooks.ClockSkew, cfg.Webhooks.NonceTTL),
	)
	return validator.RequireHMAC("inventory")
}

func buildOIDCMiddleware(logger *zap.Logger, metrics auth.MetricsRecorder, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Internal.JWKSURL) == "" {
		return nil
	}
	if strings.TrimSpace(cfg.Internal.Audience) == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	cache := auth.NewJWKSCache(cfg.Internal.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger), auth.WithOIDCMetrics(metrics))
	return validator.RequireOIDC(auth.OIDCPolicy{
		Audience: cfg.Internal.Audience,
		Issuers:  cfg.Internal.Issuers,
		Invokers: cfg.Internal.Invokers,
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
