//go:build integration

package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pconfig "github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "storefront-repos-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func seedProduct(t *testing.T, ctx context.Context, provider *pfirestore.Provider, id string, doc productDocument) {
	t.Helper()
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection)
	if _, err := base.Set(ctx, id, doc); err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func teeDocument(title string, rank int, price int64, created time.Time) productDocument {
	return productDocument{
		Handle:      title,
		Title:       title,
		Currency:    "JPY",
		PriceMin:    price,
		PriceMax:    price,
		Status:      string(domain.ProductStatusActive),
		CategoryIDs: []string{"tees"},
		SalesRank:   rank,
		CreatedAt:   created,
		Options:     []optionDocument{{Name: "Size", Values: []string{"S", "M"}}},
		Variants: []variantDocument{
			{ID: title + "-s", Title: "S", Selections: map[string]string{"Size": "S"}, Price: price, QuantityAvailable: 3, AvailableForSale: true},
			{ID: title + "-m", Title: "M", Selections: map[string]string{"Size": "M"}, Price: price, QuantityAvailable: 0, AvailableForSale: true},
		},
	}
}

func TestProductListingPagesInSortOrder(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedProduct(t, ctx, provider, "p-a", teeDocument("alpha", 3, 3000, created))
	seedProduct(t, ctx, provider, "p-b", teeDocument("bravo", 1, 2000, created.Add(time.Hour)))
	seedProduct(t, ctx, provider, "p-c", teeDocument("charlie", 2, 1000, created.Add(2*time.Hour)))

	repo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}

	first, err := repo.ListByCategory(ctx, repositories.ProductListQuery{CategoryID: "tees", Sort: domain.ProductSortBestSelling, PageSize: 2})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Items) != 2 || first.Items[0].ID != "p-b" || first.Items[1].ID != "p-c" {
		t.Fatalf("unexpected first page %+v", first.Items)
	}
	if first.NextPageToken == "" {
		t.Fatalf("expected next page token")
	}

	cursor, err := pagination.DecodeToken(first.NextPageToken)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	second, err := repo.ListByCategory(ctx, repositories.ProductListQuery{CategoryID: "tees", Sort: domain.ProductSortBestSelling, PageSize: 2, After: cursor.After})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].ID != "p-a" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v token=%q", second.Items, second.NextPageToken)
	}

	product, err := repo.FindByHandle(ctx, "ALPHA")
	if err != nil {
		t.Fatalf("find by handle: %v", err)
	}
	if len(product.Variants) != 2 || product.Variants[0].Selections["Size"] != "S" {
		t.Fatalf("unexpected variants %+v", product.Variants)
	}
}

func TestInventoryApplyLevelsIsAllOrNothing(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seedProduct(t, ctx, provider, "inv-1", teeDocument("inv-one", 1, 1000, time.Now().UTC()))

	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		t.Fatalf("new inventory repository: %v", err)
	}
	products, _ := NewProductRepository(provider)

	_, err = inventory.ApplyLevels(ctx, []domain.InventoryLevel{
		{ProductID: "inv-1", VariantID: "inv-one-m", QuantityAvailable: 7},
		{ProductID: "inv-1", VariantID: "missing", QuantityAvailable: 1},
	})
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorVariantNotFound {
		t.Fatalf("expected variant not found, got %v", err)
	}
	product, err := products.FindByID(ctx, "inv-1")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Variants[1].QuantityAvailable != 0 {
		t.Fatalf("expected rejected batch to leave stock untouched, got %d", product.Variants[1].QuantityAvailable)
	}

	changed, err := inventory.ApplyLevels(ctx, []domain.InventoryLevel{{ProductID: "inv-1", VariantID: "inv-one-m", QuantityAvailable: 7}})
	if err != nil {
		t.Fatalf("apply levels: %v", err)
	}
	if len(changed) != 1 || changed[0] != "inv-1" {
		t.Fatalf("unexpected changed ids %v", changed)
	}
	product, _ = products.FindByID(ctx, "inv-1")
	if product.Variants[1].QuantityAvailable != 7 {
		t.Fatalf("expected stock 7, got %d", product.Variants[1].QuantityAvailable)
	}
}

func TestCartSaveDetectsConcurrentWrites(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	carts, err := NewCartRepository(provider)
	if err != nil {
		t.Fatalf("new cart repository: %v", err)
	}

	saved, err := carts.Save(ctx, domain.Cart{UserID: "shopper-1", Currency: "jpy"}, nil)
	if err != nil {
		t.Fatalf("save cart: %v", err)
	}
	loaded, err := carts.Get(ctx, "shopper-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if loaded.Currency != "JPY" {
		t.Fatalf("expected upper-cased currency, got %q", loaded.Currency)
	}

	stale := saved.UpdatedAt.Add(-time.Minute)
	_, err = carts.Save(ctx, loaded, &stale)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
}
