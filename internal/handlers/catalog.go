package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/services"
)

// CatalogHandlers serves the browse endpoints: categories, category listings and home layouts.
type CatalogHandlers struct {
	catalog services.CatalogService
	paging  pagination.Options
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	sorts := make([]string, 0, len(services.ProductSorts))
	for _, sort := range services.ProductSorts {
		sorts = append(sorts, string(sort))
	}
	return &CatalogHandlers{
		catalog: catalog,
		paging: pagination.Options{
			DefaultPageSize: pagination.DefaultPageSize,
			MaxPageSize:     pagination.DefaultMaxPageSize,
			AllowedSorts:    sorts,
			DefaultSort:     string(domain.ProductSortBestSelling),
		},
	}
}

// Routes registers the catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{handle}/products", h.listCategoryProducts)
	r.Get("/home/layouts", h.homeLayouts)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandlers) listCategoryProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.Parse(r.URL.Query(), h.paging)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.catalog.ListCategoryProducts(ctx, services.CategoryProductsQuery{
		Handle: strings.TrimSpace(chi.URLParam(r, "handle")),
		Sort:   domain.ProductSort(params.Sort),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productSummaryPayload, 0, len(result.Page.Items))
	for _, summary := range result.Page.Items {
		items = append(items, buildProductSummary(summary))
	}
	writeJSONResponse(w, http.StatusOK, categoryProductsResponse{
		Category:      buildCategoryPayload(result.Category),
		Sort:          string(result.Sort),
		Items:         items,
		NextPageToken: result.Page.NextPageToken,
	})
}

func (h *CatalogHandlers) homeLayouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	layouts, err := h.catalog.HomeLayouts(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]homeLayoutPayload, 0, len(layouts))
	for _, layout := range layouts {
		entry := homeLayoutPayload{
			ID:       layout.ID,
			Kind:     string(layout.Kind),
			Name:     layout.Name,
			Position: layout.Position,
		}
		for _, banner := range layout.Banners {
			entry.Banners = append(entry.Banners, bannerPayload{ImagePath: banner.ImagePath, Title: banner.Title, Link: banner.Link})
		}
		if layout.Kind == domain.LayoutKindProductSlider {
			entry.Products = make([]productSummaryPayload, 0, len(layout.Products))
			for _, summary := range layout.Products {
				entry.Products = append(entry.Products, buildProductSummary(summary))
			}
		}
		items = append(items, entry)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load catalog", http.StatusInternalServerError))
	}
}

type categoryPayload struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Title     string `json:"title"`
	ImagePath string `json:"imagePath,omitempty"`
	Position  int    `json:"position"`
}

type productSummaryPayload struct {
	ID               string            `json:"id"`
	Handle           string            `json:"handle"`
	Title            string            `json:"title"`
	Vendor           string            `json:"vendor,omitempty"`
	FeaturedImage    string            `json:"featuredImage,omitempty"`
	PriceRange       priceRangePayload `json:"priceRange"`
	AvailableForSale bool              `json:"availableForSale"`
}

type categoryProductsResponse struct {
	Category      categoryPayload         `json:"category"`
	Sort          string                  `json:"sort"`
	Items         []productSummaryPayload `json:"items"`
	NextPageToken string                  `json:"nextPageToken,omitempty"`
}

type homeLayoutPayload struct {
	ID       string                  `json:"id"`
	Kind     string                  `json:"kind"`
	Name     string                  `json:"name,omitempty"`
	Position int                     `json:"position"`
	Banners  []bannerPayload         `json:"banners,omitempty"`
	Products []productSummaryPayload `json:"products,omitempty"`
}

type bannerPayload struct {
	ImagePath string `json:"imagePath"`
	Title     string `json:"title,omitempty"`
	Link      string `json:"link,omitempty"`
}

func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:        category.ID,
		Handle:    category.Handle,
		Title:     category.Title,
		ImagePath: category.ImagePath,
		Position:  category.Position,
	}
}

func buildProductSummary(summary domain.ProductSummary) productSummaryPayload {
	payload := productSummaryPayload{
		ID:               summary.ID,
		Handle:           summary.Handle,
		Title:            summary.Title,
		Vendor:           summary.Vendor,
		PriceRange:       buildPriceRange(summary.PriceRange),
		AvailableForSale: summary.AvailableForSale,
	}
	if summary.FeaturedImage != nil {
		payload.FeaturedImage = summary.FeaturedImage.ObjectPath
	}
	return payload
}
