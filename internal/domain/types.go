package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps paginated results with the token for the following page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// ProductSort names the orderings supported by category listings.
type ProductSort string

const (
	// ProductSortBestSelling orders by sales rank (best first).
	ProductSortBestSelling ProductSort = "best_selling"
	// ProductSortPriceAsc orders by minimum price, cheapest first.
	ProductSortPriceAsc ProductSort = "price_asc"
	// ProductSortPriceDesc orders by minimum price, most expensive first.
	ProductSortPriceDesc ProductSort = "price_desc"
	// ProductSortCreated orders by creation time, newest first.
	ProductSortCreated ProductSort = "created"
	// ProductSortTitle orders alphabetically.
	ProductSortTitle ProductSort = "title"
)

// Category groups products for browsing.
type Category struct {
	ID         string
	Handle     string
	Title      string
	ImagePath  string
	ProductIDs []string
	Position   int
	UpdatedAt  time.Time
}

// LayoutKind identifies a block rendered on the storefront home screen.
type LayoutKind string

const (
	// LayoutKindBannerSlider renders a carousel of banners.
	LayoutKindBannerSlider LayoutKind = "banner_slider"
	// LayoutKindProductSlider renders a horizontal list of products.
	LayoutKindProductSlider LayoutKind = "product_slider"
	// LayoutKindCategoryGrid renders a grid of categories.
	LayoutKindCategoryGrid LayoutKind = "category_grid"
)

// HomeLayout is one block of the home screen.
type HomeLayout struct {
	ID         string
	Kind       LayoutKind
	Name       string
	Position   int
	Banners    []Banner
	ProductIDs []string
	Products   []ProductSummary
}

// Banner is one slide of a banner slider.
type Banner struct {
	ImagePath string
	Title     string
	Link      string
}

// Cart holds the shopper's pending line items.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is one variant line in a cart.
type CartItem struct {
	ID           string
	ProductID    string
	VariantID    string
	Title        string
	VariantTitle string
	ImageRef     string
	Quantity     int
	UnitPrice    Money
	AddedAt      time.Time
	UpdatedAt    time.Time
}

// Commitment sums cart quantities per variant.
func (c Cart) Commitment() CartCommitment {
	out := make(CartCommitment, len(c.Items))
	for _, item := range c.Items {
		out[item.VariantID] += item.Quantity
	}
	return out
}

// Subtotal returns the sum of line totals in the cart currency.
func (c Cart) Subtotal() Money {
	total := Money{Currency: c.Currency}
	for _, item := range c.Items {
		total.Amount += item.UnitPrice.Amount * int64(item.Quantity)
		if total.Currency == "" {
			total.Currency = item.UnitPrice.Currency
		}
	}
	return total
}

// CheckoutLineStatus flags stock problems on a cart line.
type CheckoutLineStatus string

const (
	// CheckoutLineOK means the line can be checked out as is.
	CheckoutLineOK CheckoutLineStatus = "ok"
	// CheckoutLineOutOfStock means the variant has no stock left.
	CheckoutLineOutOfStock CheckoutLineStatus = "out_of_stock"
	// CheckoutLineLessQuantity means the line asks for more than is available.
	CheckoutLineLessQuantity CheckoutLineStatus = "less_quantity"
	// CheckoutLineUnavailable means the variant no longer exists or is not for sale.
	CheckoutLineUnavailable CheckoutLineStatus = "unavailable"
)

// CheckoutLine reports the stock state of one cart line.
type CheckoutLine struct {
	ItemID            string
	VariantID         string
	Quantity          int
	QuantityAvailable int
	Status            CheckoutLineStatus
}

// CheckoutValidation is the result of checking a cart before handing off to checkout.
type CheckoutValidation struct {
	Cart        Cart
	Lines       []CheckoutLine
	Ready       bool
	CheckoutURL string
	Total       Money
}

// SystemHealthReport summarises dependency health checks.
type SystemHealthReport struct {
	Status      string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	Checks      map[string]SystemHealthCheck
	Generated   time.Time
}

// SystemHealthCheck is the result of probing one dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// Health statuses reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)
