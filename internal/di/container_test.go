package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/repositories"
)

type productRepo struct{ repositories.ProductRepository }
type categoryRepo struct{ repositories.CategoryRepository }
type layoutRepo struct{ repositories.LayoutRepository }
type cartRepo struct{ repositories.CartRepository }
type inventoryRepo struct{ repositories.InventoryRepository }
type healthRepo struct{ repositories.HealthRepository }

type fakeRegistry struct {
	health repositories.HealthRepository
	closed bool
}

func (r *fakeRegistry) Close(context.Context) error {
	r.closed = true
	return nil
}
func (r *fakeRegistry) Products() repositories.ProductRepository     { return productRepo{} }
func (r *fakeRegistry) Categories() repositories.CategoryRepository { return categoryRepo{} }
func (r *fakeRegistry) Layouts() repositories.LayoutRepository       { return layoutRepo{} }
func (r *fakeRegistry) Carts() repositories.CartRepository           { return cartRepo{} }
func (r *fakeRegistry) Inventory() repositories.InventoryRepository  { return inventoryRepo{} }
func (r *fakeRegistry) Health() repositories.HealthRepository        { return r.health }
func (r *fakeRegistry) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func testConfig() config.Config {
	return config.Config{
		Environment: "test",
		Store:       config.StoreConfig{InventoryAware: true, DefaultCurrency: "JPY", Locale: "ja-JP"},
		Catalog:     config.CatalogConfig{IndexCacheSize: 16, IndexCacheTTL: time.Minute},
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	_, err := NewContainer(context.Background(), testConfig(), nil, Infrastructure{})
	require.Error(t, err)
}

func TestNewContainerBuildsServices(t *testing.T) {
	reg := &fakeRegistry{health: healthRepo{}}
	container, err := NewContainer(context.Background(), testConfig(), reg, Infrastructure{
		Idempotency: idempotency.NewMemoryStore(),
	})
	require.NoError(t, err)

	svc := container.Services
	assert.NotNil(t, svc.Products)
	assert.NotNil(t, svc.Catalog)
	assert.NotNil(t, svc.Cart)
	assert.NotNil(t, svc.Inventory)
	assert.NotNil(t, svc.System)
	assert.NotNil(t, svc.Maintenance)

	require.NoError(t, container.Close(context.Background()))
	assert.True(t, reg.closed)
}

func TestNewContainerSkipsOptionalServices(t *testing.T) {
	container, err := NewContainer(context.Background(), testConfig(), &fakeRegistry{}, Infrastructure{})
	require.NoError(t, err)
	assert.Nil(t, container.Services.System)
	assert.Nil(t, container.Services.Maintenance)
}

func TestNewContainerRejectsBadCheckoutURL(t *testing.T) {
	cfg := testConfig()
	cfg.Store.CheckoutBaseURL = "not a url"
	_, err := NewContainer(context.Background(), cfg, &fakeRegistry{}, Infrastructure{})
	require.Error(t, err)
}
