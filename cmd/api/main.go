package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/voltmart/storefront/internal/di"
	"github.com/voltmart/storefront/internal/handlers"
	"github.com/voltmart/storefront/internal/notifications"
	"github.com/voltmart/storefront/internal/platform/auth"
	"github.com/voltmart/storefront/internal/platform/config"
	pfirestore "github.com/voltmart/storefront/internal/platform/firestore"
	"github.com/voltmart/storefront/internal/platform/idempotency"
	"github.com/voltmart/storefront/internal/platform/jobs"
	"github.com/voltmart/storefront/internal/platform/metrics"
	"github.com/voltmart/storefront/internal/platform/observability"
	"github.com/voltmart/storefront/internal/platform/secrets"
	"github.com/voltmart/storefront/internal/repositories"
	firestoreRepo "github.com/voltmart/storefront/internal/repositories/firestore"
	"github.com/voltmart/storefront/internal/repositories/memory"
	"github.com/voltmart/storefront/internal/services"
)

func main() {
	startedAt := time.Now().UTC()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	var resolver *secrets.Resolver
	cfg, err := config.Load(ctx, config.WithSecretResolverFactory(func(ctx context.Context, sc config.SecretsConfig) (config.SecretResolver, error) {
		r, err := secrets.NewResolver(ctx,
			secrets.WithProject(sc.ProjectID),
			secrets.WithFallbackFile(sc.FallbackFile),
			secrets.WithLogger(logger.Named("secrets")),
			secrets.WithMeter(otel.Meter("github.com/voltmart/storefront/secrets")),
		)
		if err != nil {
			return nil, err
		}
		resolver = r
		return r, nil
	}))
	if err != nil {
		var vErr *config.ValidationError
		if errors.As(err, &vErr) {
			logger.Fatal("invalid configuration", zap.Strings("fields", vErr.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if resolver != nil {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		logger.Fatal("failed to initialise metrics", zap.Error(err))
	}

	var (
		closers  []di.Option
		provider *pfirestore.Provider
	)

	var redisClient *redis.Client
	if cfg.Idempotency.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Idempotency.RedisAddr,
			Password: cfg.Idempotency.RedisPassword,
			DB:       cfg.Idempotency.RedisDB,
		})
		closers = append(closers, di.WithCloser(func(context.Context) error { return redisClient.Close() }))
	}

	var reg repositories.Registry
	switch cfg.Persistence.Backend {
	case "memory":
		logger.Warn("using in-memory persistence; state is lost on restart")
		reg = memory.NewStore()
	default:
		provider = pfirestore.NewProvider(cfg.Firestore)
		var checks []repositories.DependencyCheck
		if redisClient != nil {
			checks = append(checks, repositories.DependencyCheck{
				Name:     "redis",
				Timeout:  time.Second,
				Optional: true,
				Check: func(ctx context.Context) error {
					return redisClient.Ping(ctx).Err()
				},
			})
		}
		registry, err := firestoreRepo.NewRegistry(provider, checks...)
		if err != nil {
			logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
		}
		reg = registry
	}

	events, eventCloser, err := buildEventPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	if eventCloser != nil {
		closers = append(closers, di.WithCloser(eventCloser))
	}

	containerOpts := []di.Option{
		di.WithLogger(baseLogger),
		di.WithMetrics(recorder),
	}
	if events != nil {
		containerOpts = append(containerOpts, di.WithEventPublisher(events))
	}
	if endpoint := strings.TrimSpace(cfg.Notifications.Endpoint); endpoint != "" {
		notifier, err := notifications.NewHTTPNotifier(endpoint,
			notifications.WithAuthToken(cfg.Notifications.AuthToken),
			notifications.WithTimeout(cfg.Notifications.Timeout),
		)
		if err != nil {
			logger.Fatal("failed to initialise notifier", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithNotifier(notifier))
	}
	containerOpts = append(containerOpts, closers...)

	container, err := di.NewContainer(ctx, cfg, reg, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idemStore, err := buildIdempotencyStore(ctx, cfg, provider, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idem := idempotency.Middleware(idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID,
		auth.WithCredentialsFile(cfg.Firebase.CredentialsFile),
		auth.WithRevocationCheck(cfg.Firebase.CheckRevoked),
	)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, idem)
	returnHandlers := handlers.NewReturnHandlers(authenticator, svc.Returns)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	coinHandlers := handlers.NewCoinHandlers(authenticator, svc.Coins)
	referralHandlers := handlers.NewReferralHandlers(authenticator, svc.Referrals)
	inventoryHandlers := handlers.NewInventoryHandlers(authenticator, svc.Stock, svc.Alerts)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo(cfg, startedAt)),
		handlers.WithHealthReporter(reg.Health()),
	)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHandlerTimeout(cfg.Server.WriteTimeout),
		handlers.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(recorder.Handler()),
		handlers.WithAPIRoutes(
			orderHandlers.Routes,
			returnHandlers.Routes,
			reviewHandlers.Routes,
			coinHandlers.Routes,
			referralHandlers.Routes,
			inventoryHandlers.Routes,
		),
	}

	validator, err := auth.NewOIDCValidator(auth.NewJWKSCache(cfg.OIDC.JWKSURL), cfg.OIDC.Audience, cfg.OIDC.Issuers,
		auth.WithOIDCLogger(logger.Named("auth")),
		auth.WithOIDCRecorder(recorder),
	)
	if err != nil {
		logger.Warn("internal job routes disabled", zap.Error(err))
	} else {
		jobHandlers := handlers.NewInternalJobHandlers(svc.Orders, cfg.Coins.ReconcileBatch)
		opts = append(opts,
			handlers.WithInternalMiddlewares(validator.RequireOIDC()),
			handlers.WithInternalRoutes(jobHandlers.Routes),
		)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	serverErr := make(chan error, 1)
	go func() {
		serverLogger.Info("storefront api listening",
			zap.String("persistence", cfg.Persistence.Backend),
			zap.String("events", cfg.Events.Backend),
			zap.String("idempotency", cfg.Idempotency.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received; draining requests")
	case err := <-serverErr:
		if err != nil {
			serverLogger.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildEventPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, func(context.Context) error, error) {
	switch cfg.Events.Backend {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		var opts []jobs.PubSubOption
		if cfg.Events.Ordered {
			opts = append(opts, jobs.WithOrderingByOrder())
		}
		publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(cfg.Events.Topic), opts...)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return publisher, func(context.Context) error {
			publisher.Close()
			return client.Close()
		}, nil
	case "kafka":
		writer, err := jobs.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.Topic)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := jobs.NewKafkaOrderEventPublisher(writer)
		if err != nil {
			return nil, nil, err
		}
		return publisher, func(context.Context) error { return publisher.Close() }, nil
	default:
		return nil, nil, nil
	}
}

func buildIdempotencyStore(ctx context.Context, cfg config.Config, provider *pfirestore.Provider, redisClient *redis.Client) (idempotency.Store, error) {
	switch cfg.Idempotency.Backend {
	case "redis":
		return idempotency.NewRedisStore(redisClient)
	case "firestore":
		if provider == nil {
			return idempotency.NewMemoryStore(), nil
		}
		client, err := provider.Client(ctx)
		if err != nil {
			return nil, err
		}
		return idempotency.NewFirestoreStore(client)
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

func buildInfo(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
