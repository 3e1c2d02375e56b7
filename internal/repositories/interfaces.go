package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Registry exposes the repositories used by the storefront services.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Categories() CategoryRepository
	Layouts() LayoutRepository
	Carts() CartRepository
	Inventory() InventoryRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Repositories
// called with the ctx passed to fn join that transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads catalog products.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByHandle(ctx context.Context, handle string) (domain.Product, error)
	// FindByIDs returns the products that exist, in the order of ids.
	FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	ListByCategory(ctx context.Context, query ProductListQuery) (domain.CursorPage[domain.ProductSummary], error)
}

// ProductListQuery selects one page of a category listing.
type ProductListQuery struct {
	CategoryID string
	Sort       domain.ProductSort
	PageSize   int
	// After is the decoded cursor of the previous page, nil for the first page.
	After []any
}

// CategoryRepository reads browse categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]domain.Category, error)
	FindByHandle(ctx context.Context, handle string) (domain.Category, error)
}

// LayoutRepository reads the home screen blocks.
type LayoutRepository interface {
	ListHomeLayouts(ctx context.Context) ([]domain.HomeLayout, error)
}

// CartRepository persists one cart per user.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	// Save writes cart. When expectedUpdate is set the write fails with a
	// conflict if the stored cart changed since that time.
	Save(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
}

// InventoryRepository applies stock levels to product variants.
type InventoryRepository interface {
	// ApplyLevels updates variant stock and returns the ids of products that changed.
	ApplyLevels(ctx context.Context, levels []domain.InventoryLevel) ([]string, error)
}

// HealthRepository probes backing dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
