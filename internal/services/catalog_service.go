package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid listing arguments.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the requested category does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogUnavailable indicates the catalog could not be read.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// ProductSorts lists the listing orders accepted by category endpoints.
var ProductSorts = []ProductSort{
	domain.ProductSortBestSelling,
	domain.ProductSortPriceAsc,
	domain.ProductSortPriceDesc,
	domain.ProductSortCreated,
	domain.ProductSortTitle,
}

// CatalogServiceDeps bundles the collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	Products   repositories.ProductRepository
	Categories repositories.CategoryRepository
	Layouts    repositories.LayoutRepository
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	layouts    repositories.LayoutRepository
	logger     func(context.Context, string, map[string]any)
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the browse service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	if deps.Layouts == nil {
		return nil, errors.New("catalog service: layout repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		layouts:    deps.Layouts,
		logger:     logger,
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return categories, nil
}

func (s *catalogService) ListCategoryProducts(ctx context.Context, query CategoryProductsQuery) (CategoryProducts, error) {
	handle := strings.TrimSpace(query.Handle)
	if handle == "" {
		return CategoryProducts{}, fmt.Errorf("%w: category handle is required", ErrCatalogInvalidInput)
	}
	sort := query.Sort
	if sort == "" {
		sort = domain.ProductSortBestSelling
	}
	if !knownSort(sort) {
		return CategoryProducts{}, fmt.Errorf("%w: unsupported sort %q", ErrCatalogInvalidInput, sort)
	}
	pageSize := query.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	cursor, err := pagination.DecodeToken(query.Pagination.PageToken)
	if err == nil {
		err = checkCursor(cursor, sort, "")
	}
	if err != nil {
		return CategoryProducts{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	category, err := s.categories.FindByHandle(ctx, handle)
	if err != nil {
		return CategoryProducts{}, translateCatalogError(err)
	}
	if err := checkCursor(cursor, sort, category.ID); err != nil {
		return CategoryProducts{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	after := cursor.After

	page, err := s.products.ListByCategory(ctx, repositories.ProductListQuery{
		CategoryID: category.ID,
		Sort:       sort,
		PageSize:   pageSize,
		After:      after,
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return CategoryProducts{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
		return CategoryProducts{}, translateCatalogError(err)
	}
	return CategoryProducts{Category: category, Sort: sort, Page: page}, nil
}

func checkCursor(cursor pagination.Cursor, sort domain.ProductSort, scope string) error {
	if cursor.Empty() {
		return nil
	}
	return cursor.Check(string(sort), scope)
}

// HomeLayouts loads the home blocks and fills product sliders with summaries
// fetched in one batch. Products that no longer exist or are not active are dropped.
func (s *catalogService) HomeLayouts(ctx context.Context) ([]HomeLayout, error) {
	layouts, err := s.layouts.ListHomeLayouts(ctx)
	if err != nil {
		return nil, translateCatalogError(err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, layout := range layouts {
		if layout.Kind != domain.LayoutKindProductSlider {
			continue
		}
		for _, id := range layout.ProductIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return layouts, nil
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	summaries := make(map[string]ProductSummary, len(products))
	for _, product := range products {
		if product.ID == "" || product.Status != domain.ProductStatusActive {
			continue
		}
		summaries[product.ID] = product.Summary()
	}

	for i := range layouts {
		if layouts[i].Kind != domain.LayoutKindProductSlider {
			continue
		}
		items := make([]ProductSummary, 0, len(layouts[i].ProductIDs))
		for _, id := range layouts[i].ProductIDs {
			if summary, ok := summaries[strings.TrimSpace(id)]; ok {
				items = append(items, summary)
			}
		}
		if dropped := len(layouts[i].ProductIDs) - len(items); dropped > 0 {
			s.logger(ctx, "catalog.layout_products_dropped", map[string]any{
				"layoutID": layouts[i].ID,
				"dropped":  dropped,
			})
		}
		layouts[i].Products = items
	}
	return layouts, nil
}

func knownSort(sort ProductSort) bool {
	for _, candidate := range ProductSorts {
		if candidate == sort {
			return true
		}
	}
	return false
}

func translateCatalogError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCatalogNotFound
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
