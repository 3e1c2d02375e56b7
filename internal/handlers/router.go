package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type middlewareFunc = func(http.Handler) http.Handler

const (
	defaultAPIPrefix      = "/api/v1"
	defaultRequestTimeout = 30 * time.Second
	errorNotFoundCode     = "route_not_found"
)

// flatGroup registers directly on the API router. The product, catalog and cart
// handlers own paths such as /cart:validate that cannot live below a sub-router.
type flatGroup struct {
	name      string
	registrar RouteRegistrar
	fallbacks []string
}

// scopedGroup is mounted under its own prefix with group-only middleware.
type scopedGroup struct {
	prefix      string
	registrar   RouteRegistrar
	middlewares []middlewareFunc
}

type routerConfig struct {
	basePath    string
	timeout     time.Duration
	middlewares []middlewareFunc
	health      *HealthHandlers

	products flatGroup
	catalog  flatGroup
	cart     flatGroup
	webhooks scopedGroup
	internal scopedGroup
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

func defaultRouterConfig() routerConfig {
	return routerConfig{
		basePath: defaultAPIPrefix,
		timeout:  defaultRequestTimeout,
		products: flatGroup{name: "products", fallbacks: []string{"/products/*"}},
		catalog:  flatGroup{name: "catalog", fallbacks: []string{"/categories", "/categories/*", "/home/*"}},
		cart:     flatGroup{name: "cart", fallbacks: []string{"/cart", "/cart/*", "/cart:validate"}},
		webhooks: scopedGroup{prefix: "/webhooks"},
		internal: scopedGroup{prefix: "/internal"},
	}
}

// NewRouter builds the storefront HTTP surface. Groups without a registrar
// answer 501 so clients can tell a disabled feature from a wrong path.
func NewRouter(opts ...Option) chi.Router {
	cfg := defaultRouterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	if cfg.timeout > 0 {
		r.Use(middleware.Timeout(cfg.timeout))
	}
	useAll(r, cfg.middlewares)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, group := range []flatGroup{cfg.products, cfg.catalog, cfg.cart} {
			group.register(api)
		}
		for _, group := range []scopedGroup{cfg.webhooks, cfg.internal} {
			group.mount(api)
		}
	})

	return r
}

func (g flatGroup) register(api chi.Router) {
	if g.registrar != nil {
		g.registrar(api)
		return
	}
	handler := notImplementedHandler(g.name)
	for _, path := range g.fallbacks {
		api.HandleFunc(path, handler)
	}
}

func (g scopedGroup) mount(api chi.Router) {
	api.Route(g.prefix, func(group chi.Router) {
		useAll(group, g.middlewares)
		if g.registrar != nil {
			g.registrar(group)
			return
		}
		handler := notImplementedHandler(g.prefix[1:])
		group.HandleFunc("/", handler)
		group.HandleFunc("/*", handler)
		group.NotFound(handler)
		group.MethodNotAllowed(handler)
	})
}

func useAll(r chi.Router, mws []middlewareFunc) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

func notImplementedHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
}

// WithMiddlewares appends global middleware after the request id, real ip and timeout layers.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithRequestTimeout overrides the per-request deadline. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d >= 0 {
			cfg.timeout = d
		}
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

func WithProductRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.products.registrar = reg
	}
}

// WithCatalogRoutes registers category listings and home layouts.
func WithCatalogRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.catalog.registrar = reg
	}
}

func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart.registrar = reg
	}
}

func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks.registrar = reg
	}
}

// WithWebhookMiddlewares wraps only the /webhooks group, typically with HMAC verification.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks.middlewares = append(cfg.webhooks.middlewares, mw...)
	}
}

func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.internal.registrar = reg
	}
}

// WithInternalMiddlewares wraps only the /internal group, typically with OIDC verification.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internal.middlewares = append(cfg.internal.middlewares, mw...)
	}
}
