package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	categoriesCollection  = "categories"
	homeLayoutsCollection = "homeLayouts"
)

type categoryDocument struct {
	Handle     string    `firestore:"handle"`
	Title      string    `firestore:"title"`
	ImagePath  string    `firestore:"imagePath"`
	ProductIDs []string  `firestore:"productIds"`
	Position   int       `firestore:"position"`
	Hidden     bool      `firestore:"hidden"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type layoutDocument struct {
	Kind       string           `firestore:"kind"`
	Name       string           `firestore:"name"`
	Position   int              `firestore:"position"`
	Enabled    bool             `firestore:"enabled"`
	Banners    []bannerDocument `firestore:"banners"`
	ProductIDs []string         `firestore:"productIds"`
}

type bannerDocument struct {
	ImagePath string `firestore:"imagePath"`
	Title     string `firestore:"title"`
	Link      string `firestore:"link"`
}

// CategoryRepository reads browse categories.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[categoryDocument]
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	return &CategoryRepository{base: pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection)}, nil
}

// List returns visible categories ordered by position.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("hidden", "==", false).OrderBy("position", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, decodeCategory(doc.ID, doc.Data))
	}
	return categories, nil
}

// FindByHandle loads the category with handle.
func (r *CategoryRepository) FindByHandle(ctx context.Context, handle string) (domain.Category, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("handle", "==", handle).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 || docs[0].Data.Hidden {
		return domain.Category{}, pfirestore.NotFound("categories.find_by_handle", handle)
	}
	return decodeCategory(docs[0].ID, docs[0].Data), nil
}

func decodeCategory(id string, doc categoryDocument) domain.Category {
	return domain.Category{
		ID:         id,
		Handle:     doc.Handle,
		Title:      doc.Title,
		ImagePath:  doc.ImagePath,
		ProductIDs: append([]string(nil), doc.ProductIDs...),
		Position:   doc.Position,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// LayoutRepository reads the home screen blocks.
type LayoutRepository struct {
	base *pfirestore.BaseRepository[layoutDocument]
}

var _ repositories.LayoutRepository = (*LayoutRepository)(nil)

// NewLayoutRepository constructs a Firestore-backed layout repository.
func NewLayoutRepository(provider *pfirestore.Provider) (*LayoutRepository, error) {
	if provider == nil {
		return nil, errors.New("layout repository requires firestore provider")
	}
	return &LayoutRepository{base: pfirestore.NewBaseRepository[layoutDocument](provider, homeLayoutsCollection)}, nil
}

// ListHomeLayouts returns enabled blocks in display order.
func (r *LayoutRepository) ListHomeLayouts(ctx context.Context) ([]domain.HomeLayout, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("enabled", "==", true).OrderBy("position", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	layouts := make([]domain.HomeLayout, 0, len(docs))
	for _, doc := range docs {
		layout := domain.HomeLayout{
			ID:         doc.ID,
			Kind:       domain.LayoutKind(doc.Data.Kind),
			Name:       doc.Data.Name,
			Position:   doc.Data.Position,
			ProductIDs: append([]string(nil), doc.Data.ProductIDs...),
		}
		for _, banner := range doc.Data.Banners {
			layout.Banners = append(layout.Banners, domain.Banner{ImagePath: banner.ImagePath, Title: banner.Title, Link: banner.Link})
		}
		layouts = append(layouts, layout)
	}
	return layouts, nil
}
