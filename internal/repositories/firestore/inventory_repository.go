package firestore

import (
	"context"
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// InventoryRepository writes stock levels into the variants embedded in product documents.
type InventoryRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
	now      func() time.Time
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		now:      time.Now,
	}, nil
}

// ApplyLevels updates every referenced variant in one transaction. The whole
// batch is rejected when any level names an unknown product or variant.
func (r *InventoryRepository) ApplyLevels(ctx context.Context, levels []domain.InventoryLevel) ([]string, error) {
	byProduct := make(map[string][]domain.InventoryLevel)
	for _, level := range levels {
		byProduct[level.ProductID] = append(byProduct[level.ProductID], level)
	}
	ids := make([]string, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var changed []string
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		changed = changed[:0]
		docs, err := r.products.GetAll(ctx, ids)
		if err != nil {
			return err
		}
		found := make(map[string]pfirestore.Document[productDocument], len(docs))
		for _, doc := range docs {
			found[doc.ID] = doc
		}

		now := r.now().UTC()
		for _, id := range ids {
			doc, ok := found[id]
			if !ok {
				return &repositories.InventoryError{Code: repositories.InventoryErrorProductNotFound, ProductID: id}
			}
			dirty := false
			for _, level := range byProduct[id] {
				idx := variantIndex(doc.Data.Variants, level.VariantID)
				if idx < 0 {
					return &repositories.InventoryError{Code: repositories.InventoryErrorVariantNotFound, ProductID: id, VariantID: level.VariantID}
				}
				variant := &doc.Data.Variants[idx]
				if variant.QuantityAvailable != level.QuantityAvailable {
					variant.QuantityAvailable = level.QuantityAvailable
					dirty = true
				}
				if level.AvailableForSale != nil && variant.AvailableForSale != *level.AvailableForSale {
					variant.AvailableForSale = *level.AvailableForSale
					dirty = true
				}
			}
			if !dirty {
				continue
			}
			if _, err := r.products.Update(ctx, id, []firestore.Update{
				{Path: "variants", Value: doc.Data.Variants},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
			changed = append(changed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func variantIndex(variants []variantDocument, id string) int {
	for i, variant := range variants {
		if variant.ID == id {
			return i
		}
	}
	return -1
}
