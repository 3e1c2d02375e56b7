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

const cartCollection = "carts"

type cartDocument struct {
	Currency   string             `firestore:"currency"`
	Items      []cartItemDocument `firestore:"items"`
	ItemsCount int                `firestore:"itemsCount"`
	CreatedAt  time.Time          `firestore:"createdAt"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID           string    `firestore:"id"`
	ProductID    string    `firestore:"productId"`
	VariantID    string    `firestore:"variantId"`
	Title        string    `firestore:"title"`
	VariantTitle string    `firestore:"variantTitle"`
	ImageRef     string    `firestore:"imageRef,omitempty"`
	Quantity     int       `firestore:"quantity"`
	UnitPrice    int64     `firestore:"unitPrice"`
	Currency     string    `firestore:"currency"`
	AddedAt      time.Time `firestore:"addedAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CartRepository stores one cart document per user, keyed by user id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// Get loads the cart of userID.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:        doc.ID,
		UserID:    doc.ID,
		Currency:  doc.Data.Currency,
		Items:     make([]domain.CartItem, 0, len(doc.Data.Items)),
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.UpdateTime,
	}
	for _, item := range doc.Data.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Title:        item.Title,
			VariantTitle: item.VariantTitle,
			ImageRef:     item.ImageRef,
			Quantity:     item.Quantity,
			UnitPrice:    domain.Money{Amount: item.UnitPrice, Currency: item.Currency},
			AddedAt:      item.AddedAt,
			UpdatedAt:    item.UpdatedAt,
		})
	}
	return cart, nil
}

// Save writes the cart header and lines. A non-nil expectedUpdate guards
// against concurrent writers with a last-update-time precondition.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := cart.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	doc := cartDocument{
		Currency:   strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:      make([]cartItemDocument, 0, len(cart.Items)),
		ItemsCount: len(cart.Items),
		CreatedAt:  cart.CreatedAt.UTC(),
		UpdatedAt:  now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Title:        item.Title,
			VariantTitle: item.VariantTitle,
			ImageRef:     item.ImageRef,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice.Amount,
			Currency:     item.UnitPrice.Currency,
			AddedAt:      item.AddedAt.UTC(),
			UpdatedAt:    item.UpdatedAt.UTC(),
		})
	}

	var (
		result pfirestore.MutationResult
		err    error
	)
	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err = r.base.Set(ctx, uid, doc)
	} else {
		result, err = r.base.Update(ctx, uid, []firestore.Update{
			{Path: "currency", Value: doc.Currency},
			{Path: "items", Value: doc.Items},
			{Path: "itemsCount", Value: doc.ItemsCount},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}, firestore.LastUpdateTime(expectedUpdate.UTC()))
	}
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cart
	saved.ID = uid
	saved.Currency = doc.Currency
	saved.CreatedAt = doc.CreatedAt
	saved.UpdatedAt = now
	if !result.UpdateTime.IsZero() {
		saved.UpdatedAt = result.UpdateTime
	}
	return saved, nil
}
