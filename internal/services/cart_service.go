package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/variants"
)

const (
	defaultCartCurrency = "JPY"
	maxCartLineQuantity = 99
)

var (
	// ErrCartInvalidInput signals the caller provided invalid arguments.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the cart has no line with the given id.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartEmpty indicates checkout was requested for a cart without lines.
	ErrCartEmpty = errors.New("cart: empty")
	// ErrCartConflict indicates the cart changed concurrently.
	ErrCartConflict = errors.New("cart: conflict")
	// ErrCartUnavailable indicates the cart store could not be reached.
	ErrCartUnavailable = errors.New("cart: unavailable")
	// ErrCartLimitReached indicates the requested quantity exceeds the remaining stock.
	ErrCartLimitReached = errors.New("cart: limit reached")
	// ErrVariantSoldOut indicates the variant cannot be sold right now.
	ErrVariantSoldOut = errors.New("cart: variant sold out")
	// ErrVariantUnavailable indicates the product or variant no longer exists.
	ErrVariantUnavailable = errors.New("cart: variant unavailable")
)

// CartLimitError reports how many more units of a variant can still be added.
type CartLimitError struct {
	VariantID  string
	InCart     int
	MaxAddable int
}

func (e *CartLimitError) Error() string {
	return fmt.Sprintf("%s: variant %s has %d in cart and %d more available", ErrCartLimitReached, e.VariantID, e.InCart, e.MaxAddable)
}

func (e *CartLimitError) Unwrap() error {
	return ErrCartLimitReached
}

// CartServiceDeps bundles the collaborators required to construct a cart service.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Products        repositories.ProductRepository
	UnitOfWork      repositories.UnitOfWork
	Analytics       AnalyticsPublisher
	Metrics         SelectionMetrics
	InventoryAware  bool
	DefaultCurrency string
	CheckoutBaseURL string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts          repositories.CartRepository
	products       repositories.ProductRepository
	uow            repositories.UnitOfWork
	metrics        SelectionMetrics
	inventoryAware bool
	currency       string
	checkoutURL    *url.URL
	newID          func() string
	now            func() time.Time
	analytics      analyticsEmitter
	logger         func(context.Context, string, map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a cart service backed by the provided repositories.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	var checkoutURL *url.URL
	if raw := strings.TrimSpace(deps.CheckoutBaseURL); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("cart service: invalid checkout base url %q", raw)
		}
		checkoutURL = parsed
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
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = defaultCartCurrency
	}
	now := func() time.Time { return clock().UTC() }

	return &cartService{
		carts:          deps.Carts,
		products:       deps.Products,
		uow:            deps.UnitOfWork,
		metrics:        deps.Metrics,
		inventoryAware: deps.InventoryAware,
		currency:       currency,
		checkoutURL:    checkoutURL,
		newID:          idGen,
		now:            now,
		analytics:      analyticsEmitter{publisher: deps.Analytics, newID: idGen, now: now, logger: logger},
		logger:         logger,
	}, nil
}

// GetCart returns the shopper's cart, or an empty one when none was saved yet.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, _, err := s.loadCart(ctx, uid)
	return cart, err
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	variantID := strings.TrimSpace(cmd.VariantID)
	switch {
	case userID == "":
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	case productID == "" || variantID == "":
		return Cart{}, fmt.Errorf("%w: product id and variant id are required", ErrCartInvalidInput)
	case cmd.Quantity <= 0 || cmd.Quantity > maxCartLineQuantity:
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartLineQuantity)
	}

	var (
		saved   Cart
		variant Variant
	)
	err := s.runInTx(ctx, func(ctx context.Context) error {
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			if isRepoNotFound(err) {
				return ErrVariantUnavailable
			}
			return s.translateRepoError(err)
		}
		found, ok := findVariant(product, variantID)
		if !ok || product.Status != domain.ProductStatusActive {
			return ErrVariantUnavailable
		}
		variant = found

		cart, exists, err := s.loadCart(ctx, userID)
		if err != nil {
			return err
		}
		if cart.Currency != "" && variant.Price.Currency != "" && !strings.EqualFold(cart.Currency, variant.Price.Currency) && len(cart.Items) > 0 {
			return fmt.Errorf("%w: cart is in %s", ErrCartInvalidInput, cart.Currency)
		}

		decision := variants.Evaluate(variant, cart.Commitment(), cmd.Quantity, s.inventoryAware)
		if !decision.Purchasable {
			if s.metrics != nil {
				s.metrics.RecordBlocked(ctx, string(decision.Reason))
			}
			return decisionError(variant.ID, decision)
		}

		now := s.now()
		expected := expectedUpdate(cart, exists)
		merged := false
		for i := range cart.Items {
			if cart.Items[i].VariantID != variant.ID {
				continue
			}
			if cart.Items[i].Quantity+cmd.Quantity > maxCartLineQuantity {
				return fmt.Errorf("%w: line quantity cannot exceed %d", ErrCartInvalidInput, maxCartLineQuantity)
			}
			cart.Items[i].Quantity += cmd.Quantity
			cart.Items[i].UnitPrice = variant.Price
			cart.Items[i].UpdatedAt = now
			merged = true
			break
		}
		if !merged {
			imageRef := variant.ImageRef
			if imageRef == "" && len(product.Images) > 0 {
				imageRef = product.Images[0].ObjectPath
			}
			cart.Items = append(cart.Items, CartItem{
				ID:           s.newID(),
				ProductID:    product.ID,
				VariantID:    variant.ID,
				Title:        product.Title,
				VariantTitle: variant.Title,
				ImageRef:     imageRef,
				Quantity:     cmd.Quantity,
				UnitPrice:    variant.Price,
				AddedAt:      now,
				UpdatedAt:    now,
			})
		}
		if variant.Price.Currency != "" {
			cart.Currency = strings.ToUpper(variant.Price.Currency)
		}
		cart.UpdatedAt = now

		saved, err = s.carts.Save(ctx, cart, expected)
		if err != nil {
			return s.translateRepoError(err)
		}
		return nil
	})
	if err != nil {
		return Cart{}, err
	}

	s.analytics.emit(ctx, EventAddToCart, userID, map[string]any{
		"product_id": productID,
		"variant_id": variant.ID,
		"quantity":   cmd.Quantity,
		"price":      variant.Price.Amount,
		"currency":   variant.Price.Currency,
	})
	return saved, nil
}

func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	switch {
	case userID == "":
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	case itemID == "":
		return Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	case cmd.Quantity < 0 || cmd.Quantity > maxCartLineQuantity:
		return Cart{}, fmt.Errorf("%w: quantity must be between 0 and %d", ErrCartInvalidInput, maxCartLineQuantity)
	}

	var (
		saved    Cart
		previous CartItem
	)
	err := s.runInTx(ctx, func(ctx context.Context) error {
		cart, exists, err := s.loadCart(ctx, userID)
		if err != nil {
			return err
		}
		pos := findItem(cart, itemID)
		if pos < 0 {
			return ErrCartItemNotFound
		}
		previous = cart.Items[pos]

		if s.inventoryAware && cmd.Quantity > previous.Quantity {
			product, err := s.products.FindByID(ctx, previous.ProductID)
			if err != nil {
				if isRepoNotFound(err) {
					return ErrVariantUnavailable
				}
				return s.translateRepoError(err)
			}
			variant, ok := findVariant(product, previous.VariantID)
			if !ok || product.Status != domain.ProductStatusActive {
				return ErrVariantUnavailable
			}
			decision := variants.Evaluate(variant, cart.Commitment(), cmd.Quantity-previous.Quantity, true)
			if !decision.Purchasable {
				if s.metrics != nil {
					s.metrics.RecordBlocked(ctx, string(decision.Reason))
				}
				return decisionError(variant.ID, decision)
			}
		}

		now := s.now()
		expected := expectedUpdate(cart, exists)
		if cmd.Quantity == 0 {
			cart.Items = append(cart.Items[:pos], cart.Items[pos+1:]...)
		} else {
			cart.Items[pos].Quantity = cmd.Quantity
			cart.Items[pos].UpdatedAt = now
		}
		cart.UpdatedAt = now

		saved, err = s.carts.Save(ctx, cart, expected)
		if err != nil {
			return s.translateRepoError(err)
		}
		return nil
	})
	if err != nil {
		return Cart{}, err
	}

	s.analytics.emit(ctx, EventUpdateCartItemQuantity, userID, map[string]any{
		"item_id":           itemID,
		"variant_id":        previous.VariantID,
		"quantity":          cmd.Quantity,
		"previous_quantity": previous.Quantity,
	})
	return saved, nil
}

// RemoveItem deletes one line; it is UpdateQuantity with quantity zero.
func (s *cartService) RemoveItem(ctx context.Context, userID, itemID string) (Cart, error) {
	return s.UpdateQuantity(ctx, UpdateCartItemCommand{UserID: userID, ItemID: itemID, Quantity: 0})
}

// ValidateCheckout checks every line against current stock and, when all lines
// pass, returns the hosted checkout URL for the cart.
func (s *cartService) ValidateCheckout(ctx context.Context, userID string) (CheckoutValidation, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutValidation{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, _, err := s.loadCart(ctx, uid)
	if err != nil {
		return CheckoutValidation{}, err
	}
	if len(cart.Items) == 0 {
		return CheckoutValidation{}, ErrCartEmpty
	}

	ids := make([]string, 0, len(cart.Items))
	seen := make(map[string]struct{}, len(cart.Items))
	for _, item := range cart.Items {
		if _, dup := seen[item.ProductID]; dup {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return CheckoutValidation{}, s.translateRepoError(err)
	}
	byID := make(map[string]Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	validation := CheckoutValidation{Cart: cart, Ready: true, Total: cart.Subtotal()}
	for _, item := range cart.Items {
		line := CheckoutLine{ItemID: item.ID, VariantID: item.VariantID, Quantity: item.Quantity}
		product, ok := byID[item.ProductID]
		var variant Variant
		if ok && product.Status == domain.ProductStatusActive {
			variant, ok = findVariant(product, item.VariantID)
		} else {
			ok = false
		}
		switch {
		case !ok || !variant.AvailableForSale:
			line.Status = domain.CheckoutLineUnavailable
		case !s.inventoryAware:
			line.Status = domain.CheckoutLineOK
		case variant.QuantityAvailable <= 0:
			line.Status = domain.CheckoutLineOutOfStock
		case item.Quantity > variant.QuantityAvailable:
			line.Status = domain.CheckoutLineLessQuantity
		default:
			line.Status = domain.CheckoutLineOK
		}
		if ok {
			line.QuantityAvailable = variant.QuantityAvailable
		}
		if line.Status != domain.CheckoutLineOK {
			validation.Ready = false
		}
		validation.Lines = append(validation.Lines, line)
	}

	if !validation.Ready {
		s.logger(ctx, "cart.checkout_blocked", map[string]any{"userID": uid, "lines": len(cart.Items)})
		return validation, nil
	}

	validation.CheckoutURL = s.checkoutLink(cart)
	s.analytics.emit(ctx, EventBeginCheckout, uid, map[string]any{
		"value":    validation.Total.Amount,
		"currency": validation.Total.Currency,
		"items":    len(cart.Items),
	})
	return validation, nil
}

// checkoutLink builds a cart permalink of the form {base}/{variant}:{qty},...
func (s *cartService) checkoutLink(cart Cart) string {
	if s.checkoutURL == nil {
		return ""
	}
	parts := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		parts = append(parts, url.PathEscape(item.VariantID)+":"+strconv.Itoa(item.Quantity))
	}
	link := *s.checkoutURL
	link.Path = strings.TrimSuffix(link.Path, "/") + "/" + strings.Join(parts, ",")
	link.RawPath = ""
	return link.String()
}

func (s *cartService) loadCart(ctx context.Context, userID string) (Cart, bool, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			now := s.now()
			return Cart{ID: userID, UserID: userID, Currency: s.currency, Items: []CartItem{}, CreatedAt: now, UpdatedAt: now}, false, nil
		}
		return Cart{}, false, s.translateRepoError(err)
	}
	if cart.UserID == "" {
		cart.UserID = userID
	}
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	if cart.Items == nil {
		cart.Items = []CartItem{}
	}
	return cart, true, nil
}

func (s *cartService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.uow == nil {
		return fn(ctx)
	}
	err := s.uow.RunInTx(ctx, fn)
	if err == nil || isCartSentinel(err) {
		return err
	}
	return s.translateRepoError(err)
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsNotFound():
			return ErrCartItemNotFound
		}
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func isCartSentinel(err error) bool {
	for _, target := range []error{
		ErrCartInvalidInput, ErrCartItemNotFound, ErrCartEmpty, ErrCartConflict,
		ErrCartUnavailable, ErrCartLimitReached, ErrVariantSoldOut, ErrVariantUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decisionError(variantID string, decision variants.Decision) error {
	switch decision.Reason {
	case variants.ReasonSoldOut:
		return ErrVariantSoldOut
	case variants.ReasonOutOfStock:
		return fmt.Errorf("%w: out of stock", ErrVariantSoldOut)
	case variants.ReasonCartLimitReached:
		return &CartLimitError{VariantID: variantID, InCart: decision.InCart, MaxAddable: decision.MaxAddable}
	default:
		return ErrVariantUnavailable
	}
}

func expectedUpdate(cart Cart, exists bool) *time.Time {
	if !exists || cart.UpdatedAt.IsZero() {
		return nil
	}
	ts := cart.UpdatedAt
	return &ts
}

func findVariant(product Product, variantID string) (Variant, bool) {
	for _, variant := range product.Variants {
		if variant.ID == variantID {
			return variant, true
		}
	}
	return Variant{}, false
}

func findItem(cart Cart, itemID string) int {
	for i, item := range cart.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}
