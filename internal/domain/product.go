package domain

import "time"

const (
	// DefaultAxisName is the synthetic option axis used by products without real options.
	DefaultAxisName = "Title"
	// DefaultAxisValue is the only value of the synthetic option axis.
	DefaultAxisValue = "Default Title"
)

// ProductStatus describes whether a product is visible in the storefront.
type ProductStatus string

const (
	// ProductStatusActive products are listed and purchasable.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusDraft products are hidden from the storefront.
	ProductStatusDraft ProductStatus = "draft"
	// ProductStatusArchived products are hidden and no longer sold.
	ProductStatusArchived ProductStatus = "archived"
)

// Money is an amount in the currency's minor units.
type Money struct {
	Amount   int64
	Currency string
}

// Product is a catalog entry with its option axes and concrete variants.
type Product struct {
	ID              string
	Handle          string
	Title           string
	Description     string
	DescriptionHTML string
	Vendor          string
	ProductType     string
	Tags            []string
	Options         []OptionAxis
	Variants        []Variant
	Images          []ProductImage
	PriceRange      PriceRange
	Status          ProductStatus
	CategoryIDs     []string
	SalesRank       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductImage references an image stored in the product media bucket.
type ProductImage struct {
	ObjectPath string
	AltText    string
	Width      int
	Height     int
}

// PriceRange captures the lowest and highest variant prices.
type PriceRange struct {
	Min Money
	Max Money
}

// OptionAxis is one selectable dimension of a product, e.g. Color.
type OptionAxis struct {
	Name   string
	Values []string
}

// Variant is one concrete combination of option values with its own price and stock.
type Variant struct {
	ID                string
	Title             string
	SKU               string
	Selections        map[string]string
	Price             Money
	CompareAtPrice    *Money
	QuantityAvailable int
	AvailableForSale  bool
	ImageRef          string
}

// Selection maps axis names to the chosen value. It may be partial.
type Selection map[string]string

// Clone returns an independent copy of the selection.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for axis, value := range s {
		out[axis] = value
	}
	return out
}

// CartCommitment maps variant IDs to the quantity already held in the cart.
type CartCommitment map[string]int

// ProductSummary is the listing projection of a product.
type ProductSummary struct {
	ID               string
	Handle           string
	Title            string
	Vendor           string
	FeaturedImage    *ProductImage
	PriceRange       PriceRange
	AvailableForSale bool
	SalesRank        int
	CreatedAt        time.Time
}

// Summary projects a product into its listing representation.
func (p Product) Summary() ProductSummary {
	summary := ProductSummary{
		ID:         p.ID,
		Handle:     p.Handle,
		Title:      p.Title,
		Vendor:     p.Vendor,
		PriceRange: p.PriceRange,
		SalesRank:  p.SalesRank,
		CreatedAt:  p.CreatedAt,
	}
	if len(p.Images) > 0 {
		img := p.Images[0]
		summary.FeaturedImage = &img
	}
	for _, variant := range p.Variants {
		if variant.AvailableForSale {
			summary.AvailableForSale = true
			break
		}
	}
	return summary
}

// InventoryLevel is a stock update for one variant.
type InventoryLevel struct {
	ProductID         string
	VariantID         string
	QuantityAvailable int
	AvailableForSale  *bool
	UpdatedAt         time.Time
}
