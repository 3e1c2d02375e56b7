package services

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/variants"
)

const (
	defaultIndexCacheSize = 512
	defaultIndexCacheTTL  = 10 * time.Minute
)

type indexEntry struct {
	updatedAt time.Time
	index     *variants.Index
}

// productIndexCache keeps built variant indexes per product. An entry is reused
// only while the product's updatedAt matches the one it was built from.
type productIndexCache struct {
	entries *expirable.LRU[string, indexEntry]
	builds  singleflight.Group
	logger  func(context.Context, string, map[string]any)
}

func newProductIndexCache(size int, ttl time.Duration, logger func(context.Context, string, map[string]any)) *productIndexCache {
	if size <= 0 {
		size = defaultIndexCacheSize
	}
	if ttl <= 0 {
		ttl = defaultIndexCacheTTL
	}
	return &productIndexCache{
		entries: expirable.NewLRU[string, indexEntry](size, nil, ttl),
		logger:  logger,
	}
}

func (c *productIndexCache) index(ctx context.Context, product Product) (*variants.Index, error) {
	if entry, ok := c.entries.Get(product.ID); ok && entry.updatedAt.Equal(product.UpdatedAt) {
		return entry.index, nil
	}

	key := product.ID + "@" + product.UpdatedAt.UTC().Format(time.RFC3339Nano)
	built, err, _ := c.builds.Do(key, func() (any, error) {
		axes, productVariants := optionsWithDefaultAxis(product)
		idx, warnings, err := variants.Build(productVariants, axes)
		for _, warning := range warnings {
			c.logger(ctx, "product.variant_index_warning", map[string]any{
				"productID": product.ID,
				"kind":      string(warning.Kind),
				"variantID": warning.VariantID,
				"detail":    warning.String(),
			})
		}
		if err != nil {
			return nil, err
		}
		c.entries.Add(product.ID, indexEntry{updatedAt: product.UpdatedAt, index: idx})
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(*variants.Index), nil
}

func (c *productIndexCache) invalidate(productIDs ...string) {
	for _, id := range productIDs {
		c.entries.Remove(id)
	}
}

// optionsWithDefaultAxis gives option-less products the synthetic Title axis.
func optionsWithDefaultAxis(product Product) ([]domain.OptionAxis, []Variant) {
	if len(product.Options) > 0 {
		return product.Options, product.Variants
	}
	axes := []domain.OptionAxis{{Name: domain.DefaultAxisName, Values: []string{domain.DefaultAxisValue}}}
	out := make([]Variant, len(product.Variants))
	for i, variant := range product.Variants {
		out[i] = variant
		if len(variant.Selections) == 0 {
			out[i].Selections = map[string]string{domain.DefaultAxisName: domain.DefaultAxisValue}
		}
	}
	return axes, out
}
