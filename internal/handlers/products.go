package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
	"github.com/hanko-field/storefront/internal/variants"
)

const maxSelectionBodySize = 8 * 1024

// ProductHandlers serves the product detail screen. Authentication is optional;
// a signed-in shopper's cart is taken into account when evaluating stock.
type ProductHandlers struct {
	authn    *auth.Authenticator
	products services.ProductDetailService
}

// NewProductHandlers constructs product detail handlers.
func NewProductHandlers(authn *auth.Authenticator, products services.ProductDetailService) *ProductHandlers {
	return &ProductHandlers{authn: authn, products: products}
}

// Routes registers /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/products", func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn.OptionalShopper())
		}
		r.Get("/by-handle/{handle}", h.getProductByHandle)
		r.Get("/{productID}", h.getProduct)
		r.Post("/{productID}/selection", h.selectVariant)
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	h.writeProductDetail(w, r, services.GetProductDetailCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		UserID:    shopperUID(r),
	})
}

func (h *ProductHandlers) getProductByHandle(w http.ResponseWriter, r *http.Request) {
	h.writeProductDetail(w, r, services.GetProductDetailCommand{
		Handle: strings.TrimSpace(chi.URLParam(r, "handle")),
		UserID: shopperUID(r),
	})
}

func (h *ProductHandlers) writeProductDetail(w http.ResponseWriter, r *http.Request, cmd services.GetProductDetailCommand) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service is unavailable", http.StatusServiceUnavailable))
		return
	}

	detail, err := h.products.GetProductDetail(ctx, cmd)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	payload := productDetailResponse{
		Product:   buildProductPayload(detail),
		Selection: buildSelectionPayload(detail.Selection),
	}
	if cmd.UserID != "" {
		setNoStore(w)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type selectVariantRequest struct {
	Selection map[string]string `json:"selection"`
	Axis      string            `json:"axis"`
	Value     string            `json:"value"`
	Quantity  int               `json:"quantity"`
}

func (h *ProductHandlers) selectVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req selectVariantRequest
	if err := decodeBody(r, maxSelectionBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	selection, err := h.products.SelectVariant(ctx, services.SelectVariantCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		UserID:    shopperUID(r),
		Selection: req.Selection,
		Axis:      strings.TrimSpace(req.Axis),
		Value:     req.Value,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	setNoStore(w)
	writeJSONResponse(w, http.StatusOK, selectVariantResponse{Selection: buildSelectionPayload(selection)})
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	}
}

func writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductVariantsInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("product_misconfigured", "product variants cannot be resolved", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("product_error", "failed to load product", http.StatusInternalServerError))
	}
}

type productDetailResponse struct {
	Product   productPayload   `json:"product"`
	Selection selectionPayload `json:"selection"`
}

type selectVariantResponse struct {
	Selection selectionPayload `json:"selection"`
}

type productPayload struct {
	ID              string              `json:"id"`
	Handle          string              `json:"handle"`
	Title           string              `json:"title"`
	Vendor          string              `json:"vendor,omitempty"`
	ProductType     string              `json:"productType,omitempty"`
	Tags            []string            `json:"tags,omitempty"`
	DescriptionHTML string              `json:"descriptionHtml"`
	PriceRange      priceRangePayload   `json:"priceRange"`
	PriceRangeText  string              `json:"priceRangeText"`
	Options         []optionAxisPayload `json:"options"`
	Variants        []variantPayload    `json:"variants"`
	Images          []imagePayload      `json:"images"`
	UpdatedAt       string              `json:"updatedAt,omitempty"`
}

type optionAxisPayload struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type variantPayload struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	SKU               string            `json:"sku,omitempty"`
	Selections        map[string]string `json:"selections"`
	Price             moneyPayload      `json:"price"`
	CompareAtPrice    *moneyPayload     `json:"compareAtPrice,omitempty"`
	AvailableForSale  bool              `json:"availableForSale"`
	QuantityAvailable *int              `json:"quantityAvailable,omitempty"`
}

type imagePayload struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

type selectionPayload struct {
	ProductID      string                           `json:"productId"`
	Selection      map[string]string                `json:"selection"`
	VariantID      string                           `json:"variantId,omitempty"`
	Complete       bool                             `json:"complete"`
	Unavailable    bool                             `json:"unavailable"`
	MissingAxes    []string                         `json:"missingAxes,omitempty"`
	Issues         []issuePayload                   `json:"issues,omitempty"`
	Availability   map[string][]availabilityPayload `json:"availability"`
	Button         string                           `json:"button"`
	Purchasable    bool                             `json:"purchasable"`
	MaxAddable     *int                             `json:"maxAddable,omitempty"`
	Reason         string                           `json:"reason,omitempty"`
	InCart         int                              `json:"inCart"`
	Quantity       int                              `json:"quantity"`
	Price          string                           `json:"price,omitempty"`
	CompareAtPrice string                           `json:"compareAtPrice,omitempty"`
	ImageURL       string                           `json:"imageUrl,omitempty"`
	Message        string                           `json:"message,omitempty"`
}

type issuePayload struct {
	Kind    string `json:"kind"`
	Axis    string `json:"axis,omitempty"`
	Message string `json:"message"`
}

type availabilityPayload struct {
	Value     string `json:"value"`
	Reachable bool   `json:"reachable"`
}

func buildProductPayload(detail services.ProductDetail) productPayload {
	product := detail.Product
	aware := detail.Selection.InventoryAware
	payload := productPayload{
		ID:              product.ID,
		Handle:          product.Handle,
		Title:           product.Title,
		Vendor:          product.Vendor,
		ProductType:     product.ProductType,
		Tags:            product.Tags,
		DescriptionHTML: detail.DescriptionHTML,
		PriceRange:      buildPriceRange(product.PriceRange),
		PriceRangeText:  detail.PriceRange,
		Options:         make([]optionAxisPayload, 0, len(product.Options)),
		Variants:        make([]variantPayload, 0, len(product.Variants)),
		Images:          make([]imagePayload, 0, len(detail.Images)),
		UpdatedAt:       formatTime(product.UpdatedAt),
	}
	for _, axis := range product.Options {
		payload.Options = append(payload.Options, optionAxisPayload{Name: axis.Name, Values: axis.Values})
	}
	for _, variant := range product.Variants {
		entry := variantPayload{
			ID:               variant.ID,
			Title:            variant.Title,
			SKU:              variant.SKU,
			Selections:       variant.Selections,
			Price:            buildMoney(variant.Price),
			AvailableForSale: variant.AvailableForSale,
		}
		if variant.CompareAtPrice != nil {
			compare := buildMoney(*variant.CompareAtPrice)
			entry.CompareAtPrice = &compare
		}
		if aware {
			qty := variant.QuantityAvailable
			entry.QuantityAvailable = &qty
		}
		payload.Variants = append(payload.Variants, entry)
	}
	for _, image := range detail.Images {
		payload.Images = append(payload.Images, imagePayload{
			URL:     image.URL,
			AltText: image.AltText,
			Width:   image.Width,
			Height:  image.Height,
		})
	}
	return payload
}

func buildSelectionPayload(sel services.VariantSelection) selectionPayload {
	res := sel.Resolution
	payload := selectionPayload{
		ProductID:      sel.ProductID,
		Selection:      map[string]string(res.Selection),
		Complete:       res.Complete(),
		Unavailable:    res.Unavailable,
		MissingAxes:    res.MissingAxes(),
		Availability:   make(map[string][]availabilityPayload, len(res.Availability)),
		Button:         string(sel.Button),
		Purchasable:    sel.Decision.Purchasable,
		Reason:         string(sel.Decision.Reason),
		InCart:         sel.Decision.InCart,
		Quantity:       sel.Quantity,
		Price:          sel.Price,
		CompareAtPrice: sel.CompareAtPrice,
		ImageURL:       sel.ImageURL,
		Message:        sel.Message,
	}
	if payload.Selection == nil {
		payload.Selection = map[string]string{}
	}
	if res.Variant != nil {
		payload.VariantID = res.Variant.ID
	}
	if sel.Decision.Bounded() {
		limit := sel.Decision.MaxAddable
		payload.MaxAddable = &limit
	}
	for _, issue := range res.Issues {
		payload.Issues = append(payload.Issues, buildIssue(issue))
	}
	for axis, values := range res.Availability {
		entries := make([]availabilityPayload, 0, len(values))
		for _, value := range values {
			entries = append(entries, availabilityPayload{Value: value.Value, Reachable: value.Reachable})
		}
		payload.Availability[axis] = entries
	}
	return payload
}

func buildIssue(issue variants.Issue) issuePayload {
	return issuePayload{Kind: string(issue.Kind), Axis: issue.Axis, Message: issue.Message()}
}
