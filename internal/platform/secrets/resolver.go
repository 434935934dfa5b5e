// Package secrets resolves secret:// configuration references against Google Secret Manager.
package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCacheTTL = 10 * time.Minute
	latestVersion   = "latest"
	meterName       = "github.com/voltmart/storefront/internal/platform/secrets"
)

var (
	// ErrInvalidReference is returned for references that are not secret://name[?version=N&project=P].
	ErrInvalidReference = errors.New("secrets: invalid reference")
	// ErrNotFound is returned when neither Secret Manager nor the fallback file holds the secret.
	ErrNotFound = errors.New("secrets: secret not found")
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (versionAccessor, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type versionAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver turns secret:// references into values. Values are cached for a TTL; when Secret
// Manager is unreachable or denies access the local fallback file is consulted.
type Resolver struct {
	client     versionAccessor
	ownsClient bool
	projectID  string
	logger     *zap.Logger
	ttl        time.Duration
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.Mutex
	cache map[string]cachedSecret

	latency metric.Float64Histogram
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

type resolverConfig struct {
	projectID    string
	logger       *zap.Logger
	ttl          time.Duration
	now          func() time.Time
	fallbackPath string
	meter        metric.Meter
	client       versionAccessor
	clientOpts   []option.ClientOption
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithProject sets the project used when a reference carries no project parameter.
func WithProject(projectID string) Option {
	return func(cfg *resolverConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
	}
}

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) {
		cfg.logger = logger
	}
}

// WithTTL overrides how long resolved values are cached. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *resolverConfig) {
		if ttl >= 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(cfg *resolverConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithFallbackFile points at a dotenv file consulted when Secret Manager is unreachable.
func WithFallbackFile(path string) Option {
	return func(cfg *resolverConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithMeter injects the meter used for the resolve latency histogram.
func WithMeter(m metric.Meter) Option {
	return func(cfg *resolverConfig) {
		cfg.meter = m
	}
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

func withAccessor(client versionAccessor) Option {
	return func(cfg *resolverConfig) {
		cfg.client = client
	}
}

// NewResolver constructs a Resolver. A Secret Manager client that cannot be created leaves the
// resolver in fallback-only mode.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{
		logger: zap.NewNop(),
		ttl:    defaultCacheTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	r := &Resolver{
		projectID:    cfg.projectID,
		logger:       cfg.logger,
		ttl:          cfg.ttl,
		now:          cfg.now,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cachedSecret),
	}

	latency, err := meter.Float64Histogram(
		"storefront.secrets.resolve.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret reference resolution"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: latency histogram unavailable", zap.Error(err))
	} else {
		r.latency = latency
	}

	switch {
	case cfg.client != nil:
		r.client = cfg.client
	case cfg.projectID != "":
		client, err := newSecretManagerClient(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret returns the value behind ref.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	start := r.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	if value, ok := r.cached(parsed.cacheKey()); ok {
		r.observe(ctx, start, "cache", parsed)
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = r.projectID
	}
	if project != "" && r.client != nil {
		value, err := r.access(ctx, project, parsed)
		if err == nil {
			r.store(parsed.cacheKey(), value)
			r.observe(ctx, start, "remote", parsed)
			return value, nil
		}
		if !fallbackEligible(err) {
			r.observe(ctx, start, "error", parsed)
			return "", fmt.Errorf("secrets: access %s: %w", parsed.name, err)
		}
		r.logger.Debug("secrets: secret manager unreachable, trying fallback",
			zap.String("secret", parsed.name), zap.Error(err))
	}

	value, ok := r.lookupFallback(parsed)
	if !ok {
		r.observe(ctx, start, "error", parsed)
		return "", fmt.Errorf("%w: %s", ErrNotFound, parsed.name)
	}
	r.store(parsed.cacheKey(), value)
	r.observe(ctx, start, "fallback", parsed)
	return value, nil
}

func (r *Resolver) access(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

func (r *Resolver) cached(key string) (string, bool) {
	if r.ttl == 0 {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[key]
	if !ok || !r.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (r *Resolver) store(key, value string) {
	if r.ttl == 0 {
		return
	}
	r.mu.Lock()
	r.cache[key] = cachedSecret{value: value, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Resolver) lookupFallback(ref reference) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		values, err := godotenv.Read(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.fallbackErr = err
			}
			return
		}
		r.fallback = values
	})
	if r.fallbackErr != nil {
		r.logger.Warn("secrets: fallback file unreadable", zap.String("path", r.fallbackPath), zap.Error(r.fallbackErr))
		return "", false
	}
	value, ok := r.fallback[fallbackKey(ref.name)]
	return value, ok
}

func (r *Resolver) observe(ctx context.Context, start time.Time, source string, ref reference) {
	if r.latency == nil {
		return
	}
	elapsed := r.now().Sub(start)
	r.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("secret", maskName(ref.name)),
	))
}

type reference struct {
	name    string
	version string
	project string
}

func (r reference) cacheKey() string {
	return r.project + "/" + r.name + "#" + r.version
}

func parseReference(raw string) (reference, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return reference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidReference, u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		return reference{}, fmt.Errorf("%w: bad secret name in %q", ErrInvalidReference, raw)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = latestVersion
	}
	return reference{name: name, version: version, project: strings.TrimSpace(query.Get("project"))}, nil
}

// fallbackKey maps a secret name onto its dotenv key: razorpay-key-secret becomes
// RAZORPAY_KEY_SECRET.
func fallbackKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func maskName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:6])
}

// fallbackEligible reports whether err means Secret Manager could not be reached, as opposed to
// the secret being absent.
func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
