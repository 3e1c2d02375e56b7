package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	envPrefix = "STOREFRONT_"

	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 20 * time.Second
	defaultEnvironment         = "local"
	defaultCurrency            = "USD"
	defaultLocale              = "en-US"
	defaultSignedURLTTL        = 15 * time.Minute
	defaultIndexCacheSize      = 512
	defaultIndexCacheTTL       = 5 * time.Minute
	defaultJWKSURL             = "https://www.googleapis.com/oauth2/v3/certs"
	defaultIssuer              = "https://accounts.google.com"
	defaultSignatureHeader     = "X-Storefront-Signature"
	defaultTimestampHeader     = "X-Storefront-Timestamp"
	defaultNonceHeader         = "X-Storefront-Nonce"
	defaultClockSkew           = 5 * time.Minute
	defaultNonceTTL            = 10 * time.Minute
	defaultCartPerMinute       = 60
	defaultCartBurst           = 10
	defaultWebhookPerMinute    = 600
	defaultWebhookBurst        = 100
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = time.Hour
	defaultIdempotencyInterval = 10 * time.Minute
	defaultIdempotencyBatch    = 500
)

// Config is the full runtime configuration, one struct per concern.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Store       StoreConfig
	Catalog     CatalogConfig
	Webhooks    WebhookConfig
	Internal    InternalAuthConfig
	RateLimits  RateLimitConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig identifies the Firebase project that issues shopper tokens.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// CheckRevoked asks the Admin SDK to reject tokens revoked after issue.
	// It costs one Identity Toolkit lookup per request.
	CheckRevoked  bool
	VerifyTimeout time.Duration
}

// FirestoreConfig points at the catalog/cart database.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	TxAttempts   int
	TxTimeout    time.Duration
}

// StorageConfig locates product media and controls signed URL issuance.
type StorageConfig struct {
	MediaBucket      string
	SignedURLTTL     time.Duration
	SignerAccountKey string
}

// PubSubConfig names the analytics topic.
type PubSubConfig struct {
	ProjectID      string
	AnalyticsTopic string
}

// StoreConfig holds per-store merchandising switches.
type StoreConfig struct {
	InventoryAware  bool
	DefaultCurrency string
	Locale          string
	CheckoutBaseURL string
}

// CatalogConfig bounds the in-memory variant index cache.
type CatalogConfig struct {
	IndexCacheSize int
	IndexCacheTTL  time.Duration
}

// WebhookConfig verifies signed inventory webhooks.
type WebhookConfig struct {
	InventorySecret string
	// PreviousSecrets stay valid during a secret rotation.
	PreviousSecrets []string
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
}

// InternalAuthConfig verifies Google-signed OIDC tokens on /internal routes.
type InternalAuthConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
	// Invokers lists the service account emails allowed to call internal routes.
	Invokers []string
}

// RateLimitConfig sets token bucket sizes.
type RateLimitConfig struct {
	CartPerMinute    int
	CartBurst        int
	WebhookPerMinute int
	WebhookBurst     int
}

// IdempotencyConfig controls the add-to-cart replay guard.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// Production reports whether the service runs in the production environment.
func (c Config) Production() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// Load reads configuration from the .env file, the process environment and any
// explicit overrides (in increasing precedence), then resolves sm:// secret
// references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := newSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(src.str("ENV", defaultEnvironment)),
		LogLevel:    src.str("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            src.str("PORT", defaultPort),
			ReadTimeout:     src.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    src.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     src.duration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: src.duration("SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       src.str("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: src.str("FIREBASE_CREDENTIALS_FILE", ""),
			CheckRevoked:    src.boolean("FIREBASE_CHECK_REVOKED", false),
			VerifyTimeout:   src.duration("FIREBASE_VERIFY_TIMEOUT", 5*time.Second),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: src.str("FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   src.integer("FIRESTORE_TX_ATTEMPTS", 5),
			TxTimeout:    src.duration("FIRESTORE_TX_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			MediaBucket:      src.str("STORAGE_MEDIA_BUCKET", ""),
			SignedURLTTL:     src.duration("STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			SignerAccountKey: src.str("STORAGE_SIGNER_KEY", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:      src.str("PUBSUB_PROJECT_ID", ""),
			AnalyticsTopic: src.str("PUBSUB_ANALYTICS_TOPIC", ""),
		},
		Store: StoreConfig{
			InventoryAware:  src.boolean("STORE_INVENTORY_AWARE", true),
			DefaultCurrency: strings.ToUpper(src.str("STORE_DEFAULT_CURRENCY", defaultCurrency)),
			Locale:          src.str("STORE_LOCALE", defaultLocale),
			CheckoutBaseURL: src.str("STORE_CHECKOUT_BASE_URL", ""),
		},
		Catalog: CatalogConfig{
			IndexCacheSize: src.integer("CATALOG_INDEX_CACHE_SIZE", defaultIndexCacheSize),
			IndexCacheTTL:  src.duration("CATALOG_INDEX_CACHE_TTL", defaultIndexCacheTTL),
		},
		Webhooks: WebhookConfig{
			InventorySecret: src.str("WEBHOOK_INVENTORY_SECRET", ""),
			PreviousSecrets: src.list("WEBHOOK_PREVIOUS_SECRETS", nil),
			SignatureHeader: src.str("WEBHOOK_SIGNATURE_HEADER", defaultSignatureHeader),
			TimestampHeader: src.str("WEBHOOK_TIMESTAMP_HEADER", defaultTimestampHeader),
			NonceHeader:     src.str("WEBHOOK_NONCE_HEADER", defaultNonceHeader),
			ClockSkew:       src.duration("WEBHOOK_CLOCK_SKEW", defaultClockSkew),
			NonceTTL:        src.duration("WEBHOOK_NONCE_TTL", defaultNonceTTL),
		},
		Internal: InternalAuthConfig{
			JWKSURL:  src.str("INTERNAL_JWKS_URL", defaultJWKSURL),
			Audience: src.str("INTERNAL_OIDC_AUDIENCE", ""),
			Issuers:  src.list("INTERNAL_OIDC_ISSUERS", []string{defaultIssuer}),
			Invokers: src.list("INTERNAL_OIDC_INVOKERS", nil),
		},
		RateLimits: RateLimitConfig{
			CartPerMinute:    src.integer("RATELIMIT_CART_PER_MIN", defaultCartPerMinute),
			CartBurst:        src.integer("RATELIMIT_CART_BURST", defaultCartBurst),
			WebhookPerMinute: src.integer("RATELIMIT_WEBHOOK_PER_MIN", defaultWebhookPerMinute),
			WebhookBurst:     src.integer("RATELIMIT_WEBHOOK_BURST", defaultWebhookBurst),
		},
		Idempotency: IdempotencyConfig{
			Header:           src.str("IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              src.duration("IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  src.duration("IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: src.integer("IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
	}
	if err := src.problem(); err != nil {
		return Config{}, err
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Webhooks.InventorySecret", &cfg.Webhooks.InventorySecret},
		{"Storage.SignerAccountKey", &cfg.Storage.SignerAccountKey},
	}
	for i := range cfg.Webhooks.PreviousSecrets {
		secretFields = append(secretFields, struct {
			name  string
			field *string
		}{fmt.Sprintf("Webhooks.PreviousSecrets[%d]", i), &cfg.Webhooks.PreviousSecrets[i]})
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = value
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	require := func(ok bool, field string) {
		if !ok {
			problems = append(problems, field)
		}
	}

	require(c.Server.Port != "", "Server.Port")
	require(c.Firebase.ProjectID != "", "Firebase.ProjectID")
	require(c.Firestore.ProjectID != "", "Firestore.ProjectID")
	require(c.Storage.MediaBucket != "", "Storage.MediaBucket")
	require(c.Storage.SignedURLTTL > 0 && c.Storage.SignedURLTTL <= 7*24*time.Hour, "Storage.SignedURLTTL")
	require(len(c.Store.DefaultCurrency) == 3, "Store.DefaultCurrency")
	require(c.Catalog.IndexCacheSize > 0, "Catalog.IndexCacheSize")
	require(c.Catalog.IndexCacheTTL > 0, "Catalog.IndexCacheTTL")
	require(c.RateLimits.CartPerMinute > 0 && c.RateLimits.CartBurst > 0, "RateLimits.Cart")
	require(c.RateLimits.WebhookPerMinute > 0 && c.RateLimits.WebhookBurst > 0, "RateLimits.Webhook")
	require(strings.TrimSpace(c.Idempotency.Header) != "", "Idempotency.Header")
	require(c.Idempotency.TTL > 0, "Idempotency.TTL")
	require(c.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(c.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")
	if c.Production() {
		require(c.Store.CheckoutBaseURL != "", "Store.CheckoutBaseURL")
		require(c.Internal.Audience != "", "Internal.Audience")
		require(c.PubSub.AnalyticsTopic != "", "PubSub.AnalyticsTopic")
	}

	if len(problems) > 0 {
		return &ValidationError{fields: problems}
	}
	return nil
}

// ValidationError lists missing or out-of-range settings.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}
