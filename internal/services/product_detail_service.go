package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/variants"
)

// CartLimitMessage is shown when the variant's remaining stock already sits in the cart.
const CartLimitMessage = "The maximum quantity of this item is already in your cart."

var (
	// ErrProductInvalidInput signals the caller provided invalid arguments.
	ErrProductInvalidInput = errors.New("product: invalid input")
	// ErrProductNotFound indicates the product does not exist or is not published.
	ErrProductNotFound = errors.New("product: not found")
	// ErrProductUnavailable indicates the catalog could not be read.
	ErrProductUnavailable = errors.New("product: unavailable")
	// ErrProductVariantsInvalid indicates the product's variant data cannot be indexed.
	ErrProductVariantsInvalid = errors.New("product: variants invalid")
)

// ProductDetailServiceDeps bundles the collaborators required to construct a product detail service.
type ProductDetailServiceDeps struct {
	Products       repositories.ProductRepository
	Carts          repositories.CartRepository
	Images         ProductImageSigner
	Analytics      AnalyticsPublisher
	Metrics        SelectionMetrics
	Sanitizer      *DescriptionSanitizer
	Prices         *PriceFormatter
	InventoryAware bool
	CacheSize      int
	CacheTTL       time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type productDetailService struct {
	products       repositories.ProductRepository
	carts          repositories.CartRepository
	images         ProductImageSigner
	metrics        SelectionMetrics
	sanitizer      *DescriptionSanitizer
	prices         *PriceFormatter
	inventoryAware bool
	indexes        *productIndexCache
	analytics      analyticsEmitter
	logger         func(context.Context, string, map[string]any)
}

var _ ProductDetailService = (*productDetailService)(nil)

// NewProductDetailService wires dependencies into the product detail service.
func NewProductDetailService(deps ProductDetailServiceDeps) (ProductDetailService, error) {
	if deps.Products == nil {
		return nil, errors.New("product detail service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = NewDescriptionSanitizer()
	}
	prices := deps.Prices
	if prices == nil {
		var err error
		if prices, err = NewPriceFormatter("", ""); err != nil {
			return nil, err
		}
	}

	return &productDetailService{
		products:       deps.Products,
		carts:          deps.Carts,
		images:         deps.Images,
		metrics:        deps.Metrics,
		sanitizer:      sanitizer,
		prices:         prices,
		inventoryAware: deps.InventoryAware,
		indexes:        newProductIndexCache(deps.CacheSize, deps.CacheTTL, logger),
		analytics: analyticsEmitter{
			publisher: deps.Analytics,
			newID:     idGen,
			now:       func() time.Time { return clock().UTC() },
			logger:    logger,
		},
		logger: logger,
	}, nil
}

func (s *productDetailService) GetProductDetail(ctx context.Context, cmd GetProductDetailCommand) (ProductDetail, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	handle := strings.TrimSpace(cmd.Handle)
	if productID == "" && handle == "" {
		return ProductDetail{}, fmt.Errorf("%w: product id or handle is required", ErrProductInvalidInput)
	}

	var (
		product Product
		err     error
	)
	if productID != "" {
		product, err = s.products.FindByID(ctx, productID)
	} else {
		product, err = s.products.FindByHandle(ctx, handle)
	}
	if err != nil {
		return ProductDetail{}, translateProductError(err)
	}
	if product.Status != domain.ProductStatusActive {
		return ProductDetail{}, ErrProductNotFound
	}

	resolver, err := s.resolver(ctx, product)
	if err != nil {
		return ProductDetail{}, err
	}
	userID := strings.TrimSpace(cmd.UserID)
	commitment := s.commitment(ctx, userID)

	resolution := resolver.Resolve(resolver.InitialSelection())
	selection := s.present(ctx, product, resolution, commitment, 1)
	if s.metrics != nil {
		s.metrics.RecordResolution(ctx, product.ID, resolution.Unavailable)
	}

	detail := ProductDetail{
		Product:         product,
		DescriptionHTML: s.sanitizer.Sanitize(product.DescriptionHTML, product.Description),
		PriceRange:      s.prices.FormatRange(product.PriceRange),
		Images:          s.signImages(ctx, product.Images),
		Selection:       selection,
	}

	params := map[string]any{
		"product_id": product.ID,
		"currency":   product.PriceRange.Min.Currency,
		"price":      product.PriceRange.Min.Amount,
	}
	if resolution.Variant != nil {
		params["variant_id"] = resolution.Variant.ID
		params["price"] = resolution.Variant.Price.Amount
	}
	s.analytics.emit(ctx, EventViewItem, userID, params)

	return detail, nil
}

func (s *productDetailService) SelectVariant(ctx context.Context, cmd SelectVariantCommand) (VariantSelection, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return VariantSelection{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	axis := strings.TrimSpace(cmd.Axis)
	value := strings.TrimSpace(cmd.Value)
	if (axis == "") != (value == "") {
		return VariantSelection{}, fmt.Errorf("%w: axis and value must be given together", ErrProductInvalidInput)
	}
	quantity := cmd.Quantity
	if quantity < 0 {
		return VariantSelection{}, fmt.Errorf("%w: quantity must not be negative", ErrProductInvalidInput)
	}
	if quantity == 0 {
		quantity = 1
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return VariantSelection{}, translateProductError(err)
	}
	if product.Status != domain.ProductStatusActive {
		return VariantSelection{}, ErrProductNotFound
	}
	resolver, err := s.resolver(ctx, product)
	if err != nil {
		return VariantSelection{}, err
	}

	var resolution variants.Resolution
	if axis == "" {
		resolution = resolver.Resolve(cmd.Selection)
	} else {
		resolution, err = resolver.Apply(cmd.Selection, axis, value)
		if err != nil {
			return VariantSelection{}, fmt.Errorf("%w: %v", ErrProductInvalidInput, err)
		}
	}

	userID := strings.TrimSpace(cmd.UserID)
	selection := s.present(ctx, product, resolution, s.commitment(ctx, userID), quantity)
	if s.metrics != nil {
		s.metrics.RecordResolution(ctx, product.ID, resolution.Unavailable)
	}

	params := map[string]any{
		"product_id":  product.ID,
		"unavailable": resolution.Unavailable,
	}
	if axis != "" {
		params["axis"] = axis
		params["value"] = value
	}
	if resolution.Variant != nil {
		params["variant_id"] = resolution.Variant.ID
	}
	s.analytics.emit(ctx, EventSelectVariant, userID, params)

	return selection, nil
}

func (s *productDetailService) InvalidateProducts(productIDs ...string) {
	s.indexes.invalidate(productIDs...)
}

func (s *productDetailService) resolver(ctx context.Context, product Product) (*variants.Resolver, error) {
	index, err := s.indexes.index(ctx, product)
	if err != nil {
		s.logger(ctx, "product.variant_index_failed", map[string]any{
			"productID": product.ID,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrProductVariantsInvalid, err)
	}
	return variants.NewResolver(index, s.inventoryAware), nil
}

// commitment reads the shopper's cart quantities. Cart failures degrade to an
// empty commitment so the product screen still renders.
func (s *productDetailService) commitment(ctx context.Context, userID string) domain.CartCommitment {
	if userID == "" || s.carts == nil {
		return domain.CartCommitment{}
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if !isRepoNotFound(err) {
			s.logger(ctx, "product.cart_lookup_failed", map[string]any{
				"userID": userID,
				"error":  err.Error(),
			})
		}
		return domain.CartCommitment{}
	}
	return cart.Commitment()
}

func (s *productDetailService) present(ctx context.Context, product Product, resolution variants.Resolution, commitment domain.CartCommitment, quantity int) VariantSelection {
	decision := variants.EvaluateResolution(resolution, commitment, quantity, s.inventoryAware)
	out := VariantSelection{
		ProductID:      product.ID,
		InventoryAware: s.inventoryAware,
		Resolution:     resolution,
		Decision:       decision,
		Button:         buttonState(resolution, decision, s.inventoryAware),
		Quantity:       quantity,
		Price:          s.prices.FormatRange(product.PriceRange),
	}

	imageRef := ""
	if len(product.Images) > 0 {
		imageRef = product.Images[0].ObjectPath
	}
	if variant := resolution.Variant; variant != nil {
		out.Price = s.prices.Format(variant.Price)
		if variant.CompareAtPrice != nil && variant.CompareAtPrice.Amount > variant.Price.Amount {
			out.CompareAtPrice = s.prices.Format(*variant.CompareAtPrice)
		}
		if variant.ImageRef != "" {
			imageRef = variant.ImageRef
		}
	}
	out.ImageURL = s.signImage(ctx, imageRef)

	if decision.Reason == variants.ReasonCartLimitReached && decision.InCart > 0 && decision.MaxAddable == 0 {
		out.Message = CartLimitMessage
	}
	return out
}

// buttonState picks the call to action. Incomplete selections keep add_to_cart
// so pressing it surfaces the per-axis errors.
func buttonState(resolution variants.Resolution, decision variants.Decision, inventoryAware bool) ButtonState {
	switch {
	case resolution.Unavailable:
		return ButtonUnavailable
	case !resolution.Complete():
		return ButtonAddToCart
	case decision.Reason == variants.ReasonSoldOut, decision.Reason == variants.ReasonOutOfStock:
		return ButtonSoldOut
	case decision.InCart > 0 && (!inventoryAware || decision.MaxAddable == 0):
		return ButtonViewCart
	default:
		return ButtonAddToCart
	}
}

func (s *productDetailService) signImages(ctx context.Context, images []ProductImage) []SignedImage {
	out := make([]SignedImage, 0, len(images))
	for _, image := range images {
		url := s.signImage(ctx, image.ObjectPath)
		if url == "" {
			continue
		}
		out = append(out, SignedImage{URL: url, AltText: image.AltText, Width: image.Width, Height: image.Height})
	}
	return out
}

func (s *productDetailService) signImage(ctx context.Context, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if s.images == nil {
		return ref
	}
	signed, err := s.images.SignImageURL(ctx, ref)
	if err != nil {
		s.logger(ctx, "product.image_sign_failed", map[string]any{
			"ref":   ref,
			"error": err.Error(),
		})
		return ""
	}
	return signed.URL
}

func translateProductError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrProductNotFound
	}
	return fmt.Errorf("%w: %v", ErrProductUnavailable, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
