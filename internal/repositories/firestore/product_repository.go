package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	Handle          string            `firestore:"handle"`
	Title           string            `firestore:"title"`
	Description     string            `firestore:"description"`
	DescriptionHTML string            `firestore:"descriptionHtml"`
	Vendor          string            `firestore:"vendor"`
	ProductType     string            `firestore:"productType"`
	Tags            []string          `firestore:"tags"`
	Options         []optionDocument  `firestore:"options"`
	Variants        []variantDocument `firestore:"variants"`
	Images          []imageDocument   `firestore:"images"`
	Currency        string            `firestore:"currency"`
	PriceMin        int64             `firestore:"priceMin"`
	PriceMax        int64             `firestore:"priceMax"`
	Status          string            `firestore:"status"`
	CategoryIDs     []string          `firestore:"categoryIds"`
	SalesRank       int               `firestore:"salesRank"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
}

type optionDocument struct {
	Name   string   `firestore:"name"`
	Values []string `firestore:"values"`
}

type variantDocument struct {
	ID                string            `firestore:"id"`
	Title             string            `firestore:"title"`
	SKU               string            `firestore:"sku"`
	Selections        map[string]string `firestore:"selections"`
	Price             int64             `firestore:"price"`
	CompareAtPrice    *int64            `firestore:"compareAtPrice,omitempty"`
	QuantityAvailable int               `firestore:"quantityAvailable"`
	AvailableForSale  bool              `firestore:"availableForSale"`
	ImageRef          string            `firestore:"imageRef,omitempty"`
}

type imageDocument struct {
	Path    string `firestore:"path"`
	AltText string `firestore:"alt"`
	Width   int    `firestore:"width"`
	Height  int    `firestore:"height"`
}

// ProductRepository reads products from the products collection. Variants are
// embedded in the product document so a product and its stock change atomically.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection)}, nil
}

// FindByID loads one product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data), nil
}

// FindByHandle loads the product with the given URL handle.
func (r *ProductRepository) FindByHandle(ctx context.Context, handle string) (domain.Product, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("handle", "==", handle).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.NotFound("products.find_by_handle", handle)
	}
	return decodeProduct(docs[0].ID, docs[0].Data), nil
}

// FindByIDs batches lookups for home sliders and cart validation.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	docs, err := r.base.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, decodeProduct(doc.ID, doc.Data))
	}
	return products, nil
}

// ListByCategory pages through active products of a category in the requested order.
func (r *ProductRepository) ListByCategory(ctx context.Context, query repositories.ProductListQuery) (domain.CursorPage[domain.ProductSummary], error) {
	field, dir := sortField(query.Sort)
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	after, err := cursorValues(query.Sort, query.After)
	if err != nil {
		return domain.CursorPage[domain.ProductSummary]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("categoryIds", "array-contains", query.CategoryID).
			Where("status", "==", string(domain.ProductStatusActive)).
			OrderBy(field, dir).
			OrderBy(firestore.DocumentID, dir)
		if len(after) > 0 {
			q = q.StartAfter(after...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.ProductSummary]{}, err
	}

	page := domain.CursorPage[domain.ProductSummary]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				Sort:  string(query.Sort),
				Scope: query.CategoryID,
				After: []any{cursorValue(query.Sort, last.Data), last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.ProductSummary]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeProduct(doc.ID, doc.Data).Summary())
	}
	return page, nil
}

func sortField(sort domain.ProductSort) (string, firestore.Direction) {
	switch sort {
	case domain.ProductSortPriceAsc:
		return "priceMin", firestore.Asc
	case domain.ProductSortPriceDesc:
		return "priceMin", firestore.Desc
	case domain.ProductSortCreated:
		return "createdAt", firestore.Desc
	case domain.ProductSortTitle:
		return "title", firestore.Asc
	default:
		return "salesRank", firestore.Asc
	}
}

func cursorValue(sort domain.ProductSort, doc productDocument) any {
	switch sort {
	case domain.ProductSortPriceAsc, domain.ProductSortPriceDesc:
		return doc.PriceMin
	case domain.ProductSortCreated:
		return doc.CreatedAt.UTC().Format(time.RFC3339Nano)
	case domain.ProductSortTitle:
		return doc.Title
	default:
		return doc.SalesRank
	}
}

// cursorValues restores typed Firestore cursor values from a decoded page token.
func cursorValues(sort domain.ProductSort, after []any) ([]any, error) {
	if len(after) == 0 {
		return nil, nil
	}
	if len(after) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor length", pagination.ErrInvalidPageToken)
	}
	id, ok := after[1].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: cursor id", pagination.ErrInvalidPageToken)
	}
	value := after[0]
	switch sort {
	case domain.ProductSortCreated:
		raw, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: cursor time", pagination.ErrInvalidPageToken)
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: cursor time", pagination.ErrInvalidPageToken)
		}
		value = ts
	case domain.ProductSortTitle:
		if _, ok := value.(string); !ok {
			return nil, fmt.Errorf("%w: cursor title", pagination.ErrInvalidPageToken)
		}
	default:
		number, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: cursor number", pagination.ErrInvalidPageToken)
		}
		value = int64(number)
	}
	return []any{value, id}, nil
}

func decodeProduct(id string, doc productDocument) domain.Product {
	currency := strings.ToUpper(strings.TrimSpace(doc.Currency))
	product := domain.Product{
		ID:              id,
		Handle:          doc.Handle,
		Title:           doc.Title,
		Description:     doc.Description,
		DescriptionHTML: doc.DescriptionHTML,
		Vendor:          doc.Vendor,
		ProductType:     doc.ProductType,
		Tags:            append([]string(nil), doc.Tags...),
		PriceRange: domain.PriceRange{
			Min: domain.Money{Amount: doc.PriceMin, Currency: currency},
			Max: domain.Money{Amount: doc.PriceMax, Currency: currency},
		},
		Status:      domain.ProductStatus(doc.Status),
		CategoryIDs: append([]string(nil), doc.CategoryIDs...),
		SalesRank:   doc.SalesRank,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, option := range doc.Options {
		product.Options = append(product.Options, domain.OptionAxis{Name: option.Name, Values: append([]string(nil), option.Values...)})
	}
	for _, image := range doc.Images {
		product.Images = append(product.Images, domain.ProductImage{ObjectPath: image.Path, AltText: image.AltText, Width: image.Width, Height: image.Height})
	}
	for _, v := range doc.Variants {
		variant := domain.Variant{
			ID:                v.ID,
			Title:             v.Title,
			SKU:               v.SKU,
			Selections:        make(map[string]string, len(v.Selections)),
			Price:             domain.Money{Amount: v.Price, Currency: currency},
			QuantityAvailable: v.QuantityAvailable,
			AvailableForSale:  v.AvailableForSale,
			ImageRef:          v.ImageRef,
		}
		for axis, value := range v.Selections {
			variant.Selections[axis] = value
		}
		if v.CompareAtPrice != nil {
			variant.CompareAtPrice = &domain.Money{Amount: *v.CompareAtPrice, Currency: currency}
		}
		product.Variants = append(product.Variants, variant)
	}
	return product
}
