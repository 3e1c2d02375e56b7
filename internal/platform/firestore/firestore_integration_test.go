//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

type stockEntity struct {
	Name     string `firestore:"name"`
	Quantity int    `firestore:"quantity"`
}

// Run with FIRESTORE_EMULATOR_HOST pointing at a local emulator.
func TestProviderAndRepositoryIntegration(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "storefront-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo := pfirestore.NewBaseRepository[stockEntity](provider, "integration_stock")
	if _, err := repo.Set(ctx, "v1", stockEntity{Name: "red-s", Quantity: 1}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, err := repo.Set(ctx, "v2", stockEntity{Name: "blue-s", Quantity: 2}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	docs, err := repo.GetAll(ctx, []string{"v2", "missing", "v1"})
	if err != nil {
		t.Fatalf("get all failed: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "v2" || docs[1].ID != "v1" {
		t.Fatalf("unexpected docs %+v", docs)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := repo.Get(ctx, "v1")
		if err != nil {
			return err
		}
		doc.Data.Quantity += 5
		_, err = repo.Set(ctx, "v1", doc.Data)
		return err
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	doc, err := repo.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Data.Quantity != 6 {
		t.Fatalf("expected quantity 6, got %d", doc.Data.Quantity)
	}

	if _, err := repo.Get(ctx, "missing"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
