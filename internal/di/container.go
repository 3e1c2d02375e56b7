package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Products    services.ProductDetailService
	Catalog     services.CatalogService
	Cart        services.CartService
	Inventory   services.InventoryService
	System      services.SystemService
	Maintenance services.MaintenanceService
}

// Infrastructure carries the non-repository collaborators built in main.
// Every field is optional except where noted on the consuming service.
type Infrastructure struct {
	Images      services.ProductImageSigner
	Analytics   services.AnalyticsPublisher
	Metrics     services.SelectionMetrics
	Idempotency services.IdempotencyCleaner
	Build       services.BuildInfo
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	events := func(name string) observability.EventLogger {
		return observability.NewEventLogger(logger.Named(name))
	}

	prices, err := services.NewPriceFormatter(cfg.Store.Locale, cfg.Store.DefaultCurrency)
	if err != nil {
		return Services{}, fmt.Errorf("build price formatter: %w", err)
	}

	productSvc, err := services.NewProductDetailService(services.ProductDetailServiceDeps{
		Products:       reg.Products(),
		Carts:          reg.Carts(),
		Images:         infra.Images,
		Analytics:      infra.Analytics,
		Metrics:        infra.Metrics,
		Sanitizer:      services.NewDescriptionSanitizer(),
		Prices:         prices,
		InventoryAware: cfg.Store.InventoryAware,
		CacheSize:      cfg.Catalog.IndexCacheSize,
		CacheTTL:       cfg.Catalog.IndexCacheTTL,
		Clock:          clock,
		Logger:         events("products"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product detail service: %w", err)
	}
	svc.Products = productSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Layouts:    reg.Layouts(),
		Logger:     events("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Products:        reg.Products(),
		UnitOfWork:      reg,
		Analytics:       infra.Analytics,
		Metrics:         infra.Metrics,
		InventoryAware:  cfg.Store.InventoryAware,
		DefaultCurrency: cfg.Store.DefaultCurrency,
		CheckoutBaseURL: cfg.Store.CheckoutBaseURL,
		Clock:           clock,
		Logger:          events("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Products:  productSvc,
		Clock:     clock,
		Logger:    events("inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
			Logger:           events("system"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	if infra.Idempotency != nil {
		maintenanceSvc, err := services.NewMaintenanceService(services.MaintenanceServiceDeps{
			Idempotency: infra.Idempotency,
			Clock:       clock,
			Logger:      events("maintenance"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build maintenance service: %w", err)
		}
		svc.Maintenance = maintenanceSvc
	}

	return svc, nil
}
