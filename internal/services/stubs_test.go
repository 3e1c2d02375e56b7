package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/storage"
	"github.com/hanko-field/storefront/internal/repositories"
)

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}

type stubProductRepository struct {
	findByIDFunc       func(ctx context.Context, id string) (domain.Product, error)
	findByHandleFunc   func(ctx context.Context, handle string) (domain.Product, error)
	findByIDsFunc      func(ctx context.Context, ids []string) ([]domain.Product, error)
	listByCategoryFunc func(ctx context.Context, query repositories.ProductListQuery) (domain.CursorPage[domain.ProductSummary], error)
}

func (s *stubProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	if s.findByIDFunc == nil {
		return domain.Product{}, &repositoryErrorStub{notFound: true}
	}
	return s.findByIDFunc(ctx, id)
}

func (s *stubProductRepository) FindByHandle(ctx context.Context, handle string) (domain.Product, error) {
	if s.findByHandleFunc == nil {
		return domain.Product{}, &repositoryErrorStub{notFound: true}
	}
	return s.findByHandleFunc(ctx, handle)
}

func (s *stubProductRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if s.findByIDsFunc == nil {
		return nil, nil
	}
	return s.findByIDsFunc(ctx, ids)
}

func (s *stubProductRepository) ListByCategory(ctx context.Context, query repositories.ProductListQuery) (domain.CursorPage[domain.ProductSummary], error) {
	if s.listByCategoryFunc == nil {
		return domain.CursorPage[domain.ProductSummary]{}, nil
	}
	return s.listByCategoryFunc(ctx, query)
}

// productsByID serves products from a fixed map.
func productsByID(products ...domain.Product) *stubProductRepository {
	byID := make(map[string]domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}
	return &stubProductRepository{
		findByIDFunc: func(_ context.Context, id string) (domain.Product, error) {
			product, ok := byID[id]
			if !ok {
				return domain.Product{}, &repositoryErrorStub{notFound: true}
			}
			return product, nil
		},
		findByIDsFunc: func(_ context.Context, ids []string) ([]domain.Product, error) {
			var out []domain.Product
			for _, id := range ids {
				if product, ok := byID[id]; ok {
					out = append(out, product)
				}
			}
			return out, nil
		},
	}
}

type stubCartRepository struct {
	getFunc  func(ctx context.Context, userID string) (domain.Cart, error)
	saveFunc func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error)
}

func (s *stubCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc == nil {
		return domain.Cart{}, &repositoryErrorStub{notFound: true}
	}
	return s.getFunc(ctx, userID)
}

func (s *stubCartRepository) Save(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
	if s.saveFunc == nil {
		return cart, nil
	}
	return s.saveFunc(ctx, cart, expected)
}

// memoryCartRepository keeps carts in a map and records the expected update passed to Save.
type memoryCartRepository struct {
	carts        map[string]domain.Cart
	saves        int
	lastExpected *time.Time
}

func newMemoryCartRepository(carts ...domain.Cart) *memoryCartRepository {
	repo := &memoryCartRepository{carts: map[string]domain.Cart{}}
	for _, cart := range carts {
		repo.carts[cart.UserID] = cart
	}
	return repo
}

func (m *memoryCartRepository) Get(_ context.Context, userID string) (domain.Cart, error) {
	cart, ok := m.carts[userID]
	if !ok {
		return domain.Cart{}, &repositoryErrorStub{notFound: true}
	}
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	return cart, nil
}

func (m *memoryCartRepository) Save(_ context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
	m.saves++
	m.lastExpected = expected
	m.carts[cart.UserID] = cart
	return cart, nil
}

type stubCategoryRepository struct {
	listFunc         func(ctx context.Context) ([]domain.Category, error)
	findByHandleFunc func(ctx context.Context, handle string) (domain.Category, error)
}

func (s *stubCategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	if s.listFunc == nil {
		return nil, nil
	}
	return s.listFunc(ctx)
}

func (s *stubCategoryRepository) FindByHandle(ctx context.Context, handle string) (domain.Category, error) {
	if s.findByHandleFunc == nil {
		return domain.Category{}, &repositoryErrorStub{notFound: true}
	}
	return s.findByHandleFunc(ctx, handle)
}

type stubLayoutRepository struct {
	layouts []domain.HomeLayout
	err     error
}

func (s *stubLayoutRepository) ListHomeLayouts(context.Context) ([]domain.HomeLayout, error) {
	return s.layouts, s.err
}

type stubInventoryRepository struct {
	applyFunc func(ctx context.Context, levels []domain.InventoryLevel) ([]string, error)
}

func (s *stubInventoryRepository) ApplyLevels(ctx context.Context, levels []domain.InventoryLevel) ([]string, error) {
	if s.applyFunc == nil {
		return nil, nil
	}
	return s.applyFunc(ctx, levels)
}

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

type stubUnitOfWork struct {
	calls int
	err   error
}

func (u *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.calls++
	if u.err != nil {
		return u.err
	}
	return fn(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []AnalyticsEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event AnalyticsEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, event := range p.events {
		out[i] = event.Name
	}
	return out
}

type stubImageSigner struct {
	err   error
	calls []string
}

func (s *stubImageSigner) SignImageURL(_ context.Context, ref string) (storage.SignedURL, error) {
	s.calls = append(s.calls, ref)
	if s.err != nil {
		return storage.SignedURL{}, s.err
	}
	return storage.SignedURL{URL: "https://cdn.test/" + ref + "?sig=1"}, nil
}

type recordingMetrics struct {
	resolutions int
	unavailable int
	blocked     []string
}

func (m *recordingMetrics) RecordResolution(_ context.Context, _ string, unavailable bool) {
	m.resolutions++
	if unavailable {
		m.unavailable++
	}
}

func (m *recordingMetrics) RecordBlocked(_ context.Context, reason string) {
	m.blocked = append(m.blocked, reason)
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + strconv.Itoa(n)
	}
}

// teeProduct is a two-axis product: Red/Blue by S/M. Red-S has no stock and
// Blue-M does not exist.
func teeProduct() domain.Product {
	jpy := func(amount int64) domain.Money { return domain.Money{Amount: amount, Currency: "JPY"} }
	return domain.Product{
		ID:          "prod-tee",
		Handle:      "tee",
		Title:       "Tee",
		Description: "Soft cotton tee.",
		Status:      domain.ProductStatusActive,
		Options: []domain.OptionAxis{
			{Name: "Color", Values: []string{"Red", "Blue"}},
			{Name: "Size", Values: []string{"S", "M"}},
		},
		Variants: []domain.Variant{
			{ID: "v-red-s", Title: "Red / S", Selections: map[string]string{"Color": "Red", "Size": "S"}, Price: jpy(3000), QuantityAvailable: 0, AvailableForSale: true},
			{ID: "v-red-m", Title: "Red / M", Selections: map[string]string{"Color": "Red", "Size": "M"}, Price: jpy(3200), QuantityAvailable: 3, AvailableForSale: true, ImageRef: "products/tee/red.jpg"},
			{ID: "v-blue-s", Title: "Blue / S", Selections: map[string]string{"Color": "Blue", "Size": "S"}, Price: jpy(3000), QuantityAvailable: 5, AvailableForSale: true},
		},
		Images:     []domain.ProductImage{{ObjectPath: "products/tee/main.jpg", AltText: "Tee"}},
		PriceRange: domain.PriceRange{Min: jpy(3000), Max: jpy(3200)},
		UpdatedAt:  fixedNow.Add(-time.Hour),
	}
}
