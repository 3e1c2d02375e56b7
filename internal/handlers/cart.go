package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current shopper.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService

	limiter     *keyedLimiter
	idempotency func(http.Handler) http.Handler
}

// CartOption customises CartHandlers.
type CartOption func(*CartHandlers)

// WithAddItemRateLimit limits add-to-cart calls per shopper.
func WithAddItemRateLimit(perMinute, burst int, now func() time.Time) CartOption {
	return func(h *CartHandlers) {
		h.limiter = newKeyedLimiter(perMinute, burst, now)
	}
}

// WithAddItemIdempotency guards add-to-cart with an idempotency middleware.
func WithAddItemIdempotency(mw func(http.Handler) http.Handler) CartOption {
	return func(h *CartHandlers) {
		h.idempotency = mw
	}
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, opts ...CartOption) *CartHandlers {
	h := &CartHandlers{authn: authn, carts: carts}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the cart endpoints. /cart:validate sits beside /cart, so the
// handlers register against the API root.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn.RequireShopper())
		}
		r.Get("/cart", h.getCart)

		addItem := []func(http.Handler) http.Handler{rateLimit(h.limiter, shopperKey)}
		if h.idempotency != nil {
			addItem = append(addItem, h.idempotency)
		}
		r.With(addItem...).Post("/cart/items", h.addItem)
		r.Patch("/cart/items/{itemID}", h.updateItem)
		r.Delete("/cart/items/{itemID}", h.removeItem)
		r.Post("/cart:validate", h.validate)
	})
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireShopper(ctx, w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, uid)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireShopper(ctx, w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := decodeBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    uid,
		ProductID: strings.TrimSpace(req.ProductID),
		VariantID: strings.TrimSpace(req.VariantID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireShopper(ctx, w, r)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := decodeBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, "quantity is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, services.UpdateCartItemCommand{
		UserID:   uid,
		ItemID:   strings.TrimSpace(chi.URLParam(r, "itemID")),
		Quantity: *req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireShopper(ctx, w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, uid, strings.TrimSpace(chi.URLParam(r, "itemID")))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireShopper(ctx, w, r)
	if !ok {
		return
	}

	result, err := h.carts.ValidateCheckout(ctx, uid)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	payload := checkoutValidationResponse{
		Ready:       result.Ready,
		CheckoutURL: result.CheckoutURL,
		Total:       buildMoney(result.Total),
		Lines:       make([]checkoutLinePayload, 0, len(result.Lines)),
		Cart:        buildCartPayload(result.Cart),
	}
	for _, line := range result.Lines {
		payload.Lines = append(payload.Lines, checkoutLinePayload{
			ItemID:            line.ItemID,
			VariantID:         line.VariantID,
			Quantity:          line.Quantity,
			QuantityAvailable: line.QuantityAvailable,
			Status:            string(line.Status),
		})
	}
	setNoStore(w)
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CartHandlers) requireShopper(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	uid := shopperUID(r)
	if uid == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthenticated, "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return uid, true
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	var limitErr *services.CartLimitError
	switch {
	case errors.As(err, &limitErr):
		httpx.WriteError(ctx, w, httpx.NewError("cart_limit_reached", services.CartLimitMessage, http.StatusConflict).
			With("variantId", limitErr.VariantID).
			With("inCart", limitErr.InCart).
			With("maxAddable", limitErr.MaxAddable))
	case errors.Is(err, services.ErrCartLimitReached):
		httpx.WriteError(ctx, w, httpx.NewError("cart_limit_reached", services.CartLimitMessage, http.StatusConflict))
	case errors.Is(err, services.ErrVariantSoldOut):
		httpx.WriteError(ctx, w, httpx.NewError("variant_sold_out", "this item is sold out", http.StatusConflict))
	case errors.Is(err, services.ErrVariantUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("variant_unavailable", "this item is no longer available", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to update cart", http.StatusInternalServerError))
	}
}

func writeCart(w http.ResponseWriter, status int, cart services.Cart) {
	setNoStore(w)
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID         string            `json:"id,omitempty"`
	Currency   string            `json:"currency"`
	ItemsCount int               `json:"itemsCount"`
	Quantity   int               `json:"quantity"`
	Items      []cartItemPayload `json:"items"`
	Subtotal   moneyPayload      `json:"subtotal"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ID           string       `json:"id"`
	ProductID    string       `json:"productId"`
	VariantID    string       `json:"variantId"`
	Title        string       `json:"title"`
	VariantTitle string       `json:"variantTitle,omitempty"`
	ImageRef     string       `json:"imageRef,omitempty"`
	Quantity     int          `json:"quantity"`
	UnitPrice    moneyPayload `json:"unitPrice"`
	LineTotal    moneyPayload `json:"lineTotal"`
}

type checkoutValidationResponse struct {
	Ready       bool                  `json:"ready"`
	CheckoutURL string                `json:"checkoutUrl,omitempty"`
	Total       moneyPayload          `json:"total"`
	Lines       []checkoutLinePayload `json:"lines"`
	Cart        cartPayload           `json:"cart"`
}

type checkoutLinePayload struct {
	ItemID            string `json:"itemId"`
	VariantID         string `json:"variantId"`
	Quantity          int    `json:"quantity"`
	QuantityAvailable int    `json:"quantityAvailable"`
	Status            string `json:"status"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:         strings.TrimSpace(cart.ID),
		Currency:   strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ItemsCount: len(cart.Items),
		Items:      make([]cartItemPayload, 0, len(cart.Items)),
		Subtotal:   buildMoney(cart.Subtotal()),
		UpdatedAt:  formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		line := item.UnitPrice
		line.Amount *= int64(item.Quantity)
		payload.Quantity += item.Quantity
		payload.Items = append(payload.Items, cartItemPayload{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Title:        item.Title,
			VariantTitle: item.VariantTitle,
			ImageRef:     item.ImageRef,
			Quantity:     item.Quantity,
			UnitPrice:    buildMoney(item.UnitPrice),
			LineTotal:    buildMoney(line),
		})
	}
	return payload
}

func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.ID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d", strings.TrimSpace(cart.ID), cart.UpdatedAt.UTC().UnixNano())
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}
