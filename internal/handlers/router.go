package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voltmart/storefront/internal/platform/httpx"
)

const (
	defaultAPIPrefix    = "/api/v1"
	internalPrefix      = "/internal"
	defaultHandlerLimit = 60 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

// RouteRegistrar mounts a handler group on a router.
type RouteRegistrar func(r chi.Router)

type routeGroup struct {
	middlewares []func(http.Handler) http.Handler
	registrars  []RouteRegistrar
}

type routerConfig struct {
	basePath     string
	timeout      time.Duration
	maxBodyBytes int64
	middlewares  []func(http.Handler) http.Handler
	health       *HealthHandlers
	metrics      http.Handler
	api          routeGroup
	internal     routeGroup
}

// Option customises NewRouter.
type Option func(*routerConfig)

// NewRouter serves probes and /metrics at the root. The customer and seller API lives under the
// base path; scheduler callbacks live under /internal.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath:     defaultAPIPrefix,
		timeout:      defaultHandlerLimit,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.CleanPath)
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	bounded := []func(http.Handler) http.Handler{
		middleware.Timeout(cfg.timeout),
		middleware.RequestSize(cfg.maxBodyBytes),
	}
	mount(r, cfg.basePath, bounded, cfg.api)
	mount(r, internalPrefix, bounded, cfg.internal)
	return r
}

func mount(r chi.Router, prefix string, shared []func(http.Handler) http.Handler, group routeGroup) {
	if len(group.registrars) == 0 {
		return
	}
	r.Route(prefix, func(sub chi.Router) {
		for _, mw := range append(shared, group.middlewares...) {
			if mw != nil {
				sub.Use(mw)
			}
		}
		for _, register := range group.registrars {
			if register != nil {
				register(sub)
			}
		}
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("route_not_found", "no route for "+r.URL.Path, http.StatusNotFound))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("method_not_allowed", r.Method+" is not allowed on "+r.URL.Path, http.StatusMethodNotAllowed))
}

// WithMiddlewares appends global middleware, applied after request id and real IP resolution.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithHandlerTimeout bounds API and internal handlers. Probes are not bounded.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithMaxBodyBytes caps request bodies on API and internal routes.
func WithMaxBodyBytes(limit int64) Option {
	return func(cfg *routerConfig) {
		if limit > 0 {
			cfg.maxBodyBytes = limit
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMetricsHandler exposes the scrape endpoint at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = h
	}
}

// WithAPIRoutes adds registrars mounted under the API prefix.
func WithAPIRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.api.registrars = append(cfg.api.registrars, regs...)
	}
}

// WithAPIMiddlewares adds middleware scoped to the API prefix.
func WithAPIMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.api.middlewares = append(cfg.api.middlewares, mw...)
	}
}

// WithInternalRoutes adds registrars mounted under /internal.
func WithInternalRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.internal.registrars = append(cfg.internal.registrars, regs...)
	}
}

// WithInternalMiddlewares adds middleware scoped to /internal, typically OIDC verification.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internal.middlewares = append(cfg.internal.middlewares, mw...)
	}
}
