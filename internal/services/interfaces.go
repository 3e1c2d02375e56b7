package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/storage"
	"github.com/hanko-field/storefront/internal/variants"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	ProductSummary     = domain.ProductSummary
	ProductImage       = domain.ProductImage
	ProductSort        = domain.ProductSort
	Variant            = domain.Variant
	Selection          = domain.Selection
	Money              = domain.Money
	Category           = domain.Category
	HomeLayout         = domain.HomeLayout
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CheckoutLine       = domain.CheckoutLine
	CheckoutValidation = domain.CheckoutValidation
	InventoryLevel     = domain.InventoryLevel
	SystemHealthReport = domain.SystemHealthReport
)

// ProductDetailService resolves variant selections for the product detail screen.
type ProductDetailService interface {
	GetProductDetail(ctx context.Context, cmd GetProductDetailCommand) (ProductDetail, error)
	SelectVariant(ctx context.Context, cmd SelectVariantCommand) (VariantSelection, error)
	// InvalidateProducts drops cached variant indexes for the given products.
	InvalidateProducts(productIDs ...string)
}

// CatalogService serves browse screens: categories, category listings and the home layout.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListCategoryProducts(ctx context.Context, query CategoryProductsQuery) (CategoryProducts, error)
	HomeLayouts(ctx context.Context) ([]HomeLayout, error)
}

// CartService manages the shopper's cart and the hand-off to hosted checkout.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (Cart, error)
	ValidateCheckout(ctx context.Context, userID string) (CheckoutValidation, error)
}

// InventoryService applies stock updates pushed by the commerce platform.
type InventoryService interface {
	ApplyInventoryUpdate(ctx context.Context, cmd InventoryUpdateCommand) (InventoryUpdateResult, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// MaintenanceService runs housekeeping tasks triggered by Cloud Scheduler.
type MaintenanceService interface {
	CleanupIdempotency(ctx context.Context, limit int) (int, error)
}

// AnalyticsPublisher forwards storefront analytics events to the analytics pipeline.
type AnalyticsPublisher interface {
	Publish(ctx context.Context, event AnalyticsEvent) error
}

// ProductImageSigner turns stored image references into URLs the app can load.
type ProductImageSigner interface {
	SignImageURL(ctx context.Context, ref string) (storage.SignedURL, error)
}

// SelectionMetrics records resolver outcomes.
type SelectionMetrics interface {
	RecordResolution(ctx context.Context, productID string, unavailable bool)
	RecordBlocked(ctx context.Context, reason string)
}

// Command and DTO definitions ------------------------------------------------

type GetProductDetailCommand struct {
	ProductID string
	Handle    string
	UserID    string
}

type SelectVariantCommand struct {
	ProductID string
	UserID    string
	Selection Selection
	// Axis and Value describe the new pick. Both empty re-evaluates Selection as is.
	Axis     string
	Value    string
	Quantity int
}

// ButtonState drives the primary call to action on the product screen.
type ButtonState string

const (
	ButtonUnavailable ButtonState = "unavailable"
	ButtonSoldOut     ButtonState = "sold_out"
	ButtonViewCart    ButtonState = "view_cart"
	ButtonAddToCart   ButtonState = "add_to_cart"
)

// ProductDetail is the initial render of the product screen.
type ProductDetail struct {
	Product         Product
	DescriptionHTML string
	PriceRange      string
	Images          []SignedImage
	Selection       VariantSelection
}

// SignedImage is a product image with a loadable URL.
type SignedImage struct {
	URL     string
	AltText string
	Width   int
	Height  int
}

// VariantSelection is the outcome of resolving one selection.
type VariantSelection struct {
	ProductID      string
	InventoryAware bool
	Resolution     variants.Resolution
	Decision       variants.Decision
	Button         ButtonState
	Quantity       int
	Price          string
	CompareAtPrice string
	ImageURL       string
	// Message is a user-facing notice, set when the cart limit is reached.
	Message string
}

type CategoryProductsQuery struct {
	Handle     string
	Sort       ProductSort
	Pagination Pagination
}

type CategoryProducts struct {
	Category Category
	Sort     ProductSort
	Page     domain.CursorPage[ProductSummary]
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	VariantID string
	Quantity  int
}

type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

type InventoryUpdateCommand struct {
	Levels []InventoryLevel
}

type InventoryUpdateResult struct {
	Applied         int
	UpdatedProducts []string
	ProcessedAt     time.Time
}
