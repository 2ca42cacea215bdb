package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/storefront-field/quote-api/internal/platform/httpx"
)

const (
	apiPrefix         = "/api/v1"
	requestDeadline   = 30 * time.Second
	errorNotFoundCode = "route_not_found"
)

// RouteRegistrar registers a handler group on the router it is given.
type RouteRegistrar func(r chi.Router)

// routeGroup is one mount point under the API prefix.
type routeGroup struct {
	path      string
	registrar RouteRegistrar
}

type routerConfig struct {
	timeout     time.Duration
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	limiter     rateLimiter
	groups      map[string]RouteRegistrar
}

// Option customises NewRouter.
type Option func(*routerConfig)

// NewRouter builds the HTTP surface: liveness and readiness probes at the root and the quote,
// product and order groups under /api/v1. A group without a registrar answers 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{timeout: requestDeadline, groups: map[string]RouteRegistrar{}}
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
	if cfg.timeout > 0 {
		r.Use(middleware.Timeout(cfg.timeout))
	}
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("%s is not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		api.Use(middleware.AllowContentType("application/json"), rateLimitMiddleware(cfg.limiter))
		for _, group := range []routeGroup{
			{path: "/quotes", registrar: cfg.groups["/quotes"]},
			{path: "/products", registrar: cfg.groups["/products"]},
			{path: "/orders", registrar: cfg.groups["/orders"]},
		} {
			api.Route(group.path, mountGroup(group))
		}
	})
	return r
}

func mountGroup(group routeGroup) func(chi.Router) {
	if group.registrar != nil {
		return func(r chi.Router) { group.registrar(r) }
	}
	return func(r chi.Router) {
		notImplemented := func(w http.ResponseWriter, req *http.Request) {
			httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes are not enabled", group.path), http.StatusNotImplemented))
		}
		r.HandleFunc("/", notImplemented)
		r.HandleFunc("/*", notImplemented)
	}
}

// WithMiddlewares appends global middleware after request id, real ip, path cleaning and
// timeout handling.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithTimeout overrides the per-request deadline; zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) { cfg.timeout = d }
}

// WithHealthHandlers sets the handlers behind /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithRateLimit admits limit requests per window for each buyer session or client IP across
// every /api/v1 route. A non-positive limit disables throttling.
func WithRateLimit(limit int, window time.Duration, clock func() time.Time) Option {
	return func(cfg *routerConfig) { cfg.limiter = newWindowRateLimiter(limit, window, clock) }
}

// WithQuoteRoutes mounts the quote group.
func WithQuoteRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups["/quotes"] = reg }
}

// WithProductRoutes mounts the product group.
func WithProductRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups["/products"] = reg }
}

// WithOrderRoutes mounts the order group.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups["/orders"] = reg }
}
