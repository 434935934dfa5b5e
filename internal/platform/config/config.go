package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultMaxBodyBytes        = 1 << 20
	defaultPersistence         = "firestore"
	defaultEnvironment         = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyBackend  = "firestore"
	defaultEventsBackend       = "none"
	defaultEventsTopic         = "storefront-order-events"
	defaultNotificationTimeout = 5 * time.Second
	defaultDeliveryBonus       = 500
	defaultReviewBonus         = 100
	defaultSignupReward        = 10_000
	defaultTaxRateBps          = 1_800
	defaultFreeShippingAt      = 50_000
	defaultShippingFee         = 99
	defaultReturnWindowDays    = 30
	defaultLowStockThreshold   = 5
	defaultReconcileBatch      = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment   string
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Persistence   PersistenceConfig
	Payments      PaymentsConfig
	Coins         CoinsConfig
	Orders        OrdersConfig
	Events        EventsConfig
	Idempotency   IdempotencyConfig
	Notifications NotificationsConfig
	OIDC          OIDCConfig
	Secrets       SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	CheckRevoked    bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PersistenceConfig selects the repository backend: "firestore" or "memory".
type PersistenceConfig struct {
	Backend string
}

// PaymentsConfig holds the gateway signing secret used to verify payment callbacks.
type PaymentsConfig struct {
	SigningSecret string
}

// CoinsConfig holds the loyalty reward amounts.
type CoinsConfig struct {
	DeliveryBonus  int64
	ReviewBonus    int64
	SignupReward   int64
	OrderReward    int64
	ReconcileBatch int
}

// OrdersConfig holds checkout pricing and return policy parameters.
type OrdersConfig struct {
	TaxRateBps            int64
	FreeShippingThreshold int64
	ShippingFee           int64
	ReturnWindow          time.Duration
	LowStockThreshold     int
}

// EventsConfig selects the order event transport: "pubsub", "kafka" or "none".
type EventsConfig struct {
	Backend      string
	Topic        string
	KafkaBrokers []string
	// Ordered keys Pub/Sub messages by order id.
	Ordered      bool
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header        string
	TTL           time.Duration
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NotificationsConfig points at the email dispatch webhook. An empty endpoint logs notifications only.
type NotificationsConfig struct {
	Endpoint  string
	AuthToken string
	Timeout   time.Duration
}

// OIDCConfig validates service tokens on internal job routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// SecretsConfig configures Secret Manager resolution of secret:// references.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
	newSecret    func(ctx context.Context, cfg SecretsConfig) (SecretResolver, error)
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithSecretResolverFactory builds the resolver from the loaded SecretsConfig, and only when a
// secret reference is present. An explicit WithSecretResolver wins.
func WithSecretResolverFactory(factory func(ctx context.Context, cfg SecretsConfig) (SecretResolver, error)) Option {
	return func(o *loaderOptions) {
		o.newSecret = factory
	}
}

// Load assembles the application configuration from defaults, the .env file, environment
// variables and secret references. Precedence: env map > system env > .env.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	env := newSource(options, dotEnv)

	cfg := Config{
		Environment: env.enum("ENVIRONMENT", defaultEnvironment),
		Server: ServerConfig{
			Port:         env.str("SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			MaxBodyBytes: env.int64("SERVER_MAX_BODY_BYTES", defaultMaxBodyBytes),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("FIREBASE_CREDENTIALS_FILE", ""),
			CheckRevoked:    env.boolean("FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("FIRESTORE_EMULATOR_HOST", ""),
		},
		Persistence: PersistenceConfig{
			Backend: env.enum("PERSISTENCE_BACKEND", defaultPersistence),
		},
		Payments: PaymentsConfig{
			SigningSecret: env.str("PAYMENTS_SIGNING_SECRET", ""),
		},
		Coins: CoinsConfig{
			DeliveryBonus:  env.int64("COINS_DELIVERY_BONUS", defaultDeliveryBonus),
			ReviewBonus:    env.int64("COINS_REVIEW_BONUS", defaultReviewBonus),
			SignupReward:   env.int64("COINS_REFERRAL_SIGNUP_REWARD", defaultSignupReward),
			OrderReward:    env.int64("COINS_REFERRAL_ORDER_REWARD", 0),
			ReconcileBatch: env.integer("COINS_RECONCILE_BATCH", defaultReconcileBatch),
		},
		Orders: OrdersConfig{
			TaxRateBps:            env.int64("ORDERS_TAX_RATE_BPS", defaultTaxRateBps),
			FreeShippingThreshold: env.int64("ORDERS_FREE_SHIPPING_THRESHOLD", defaultFreeShippingAt),
			ShippingFee:           env.int64("ORDERS_SHIPPING_FEE", defaultShippingFee),
			ReturnWindow:          env.days("ORDERS_RETURN_WINDOW_DAYS", defaultReturnWindowDays),
			LowStockThreshold:     env.integer("ORDERS_LOW_STOCK_THRESHOLD", defaultLowStockThreshold),
		},
		Events: EventsConfig{
			Backend:      env.enum("EVENTS_BACKEND", defaultEventsBackend),
			Topic:        env.str("EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers: env.list("EVENTS_KAFKA_BROKERS"),
			Ordered:      env.boolean("EVENTS_ORDERED", true),
		},
		Idempotency: IdempotencyConfig{
			Header:        env.str("IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:           env.duration("IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			Backend:       env.enum("IDEMPOTENCY_BACKEND", defaultIdempotencyBackend),
			RedisAddr:     env.str("IDEMPOTENCY_REDIS_ADDR", ""),
			RedisPassword: env.str("IDEMPOTENCY_REDIS_PASSWORD", ""),
			RedisDB:       env.integer("IDEMPOTENCY_REDIS_DB", 0),
		},
		Notifications: NotificationsConfig{
			Endpoint:  env.str("NOTIFICATIONS_ENDPOINT", ""),
			AuthToken: env.str("NOTIFICATIONS_AUTH_TOKEN", ""),
			Timeout:   env.duration("NOTIFICATIONS_TIMEOUT", defaultNotificationTimeout),
		},
		OIDC: OIDCConfig{
			JWKSURL:  env.str("OIDC_JWKS_URL", defaultOIDCJWKSURL),
			Audience: env.str("OIDC_AUDIENCE", ""),
			Issuers:  env.list("OIDC_ISSUERS"),
		},
		Secrets: SecretsConfig{
			ProjectID:    env.str("SECRETS_PROJECT_ID", ""),
			FallbackFile: env.str("SECRETS_FALLBACK_FILE", ".secrets.local"),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.OIDC.Issuers) == 0 {
		cfg.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	secretFields := []*string{
		&cfg.Payments.SigningSecret,
		&cfg.Notifications.AuthToken,
		&cfg.Idempotency.RedisPassword,
	}
	resolver := options.secret
	if resolver == nil && options.newSecret != nil && hasSecretReference(secretFields) {
		built, err := options.newSecret(ctx, cfg.Secrets)
		if err != nil {
			return Config{}, fmt.Errorf("build secret resolver: %w", err)
		}
		resolver = built
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, resolver)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func hasSecretReference(fields []*string) bool {
	for _, field := range fields {
		if isSecretReference(*field) {
			return true
		}
	}
	return false
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Persistence.Backend {
	case "firestore":
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case "memory":
	default:
		missing = append(missing, "Persistence.Backend")
	}
	if strings.TrimSpace(cfg.Payments.SigningSecret) == "" {
		missing = append(missing, "Payments.SigningSecret")
	}
	if cfg.Coins.DeliveryBonus < 0 || cfg.Coins.ReviewBonus < 0 || cfg.Coins.SignupReward < 0 || cfg.Coins.OrderReward < 0 {
		missing = append(missing, "Coins")
	}
	if cfg.Orders.ReturnWindow <= 0 {
		missing = append(missing, "Orders.ReturnWindow")
	}
	switch cfg.Events.Backend {
	case "none", "pubsub":
	case "kafka":
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
	default:
		missing = append(missing, "Events.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	switch cfg.Idempotency.Backend {
	case "firestore", "memory":
	case "redis":
		if cfg.Idempotency.RedisAddr == "" {
			missing = append(missing, "Idempotency.RedisAddr")
		}
	default:
		missing = append(missing, "Idempotency.Backend")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

