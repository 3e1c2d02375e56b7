package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

type stubProductService struct {
	detailFunc func(ctx context.Context, cmd services.GetProductDetailCommand) (services.ProductDetail, error)
	selectFunc func(ctx context.Context, cmd services.SelectVariantCommand) (services.VariantSelection, error)
}

func (s *stubProductService) GetProductDetail(ctx context.Context, cmd services.GetProductDetailCommand) (services.ProductDetail, error) {
	return s.detailFunc(ctx, cmd)
}

func (s *stubProductService) SelectVariant(ctx context.Context, cmd services.SelectVariantCommand) (services.VariantSelection, error) {
	return s.selectFunc(ctx, cmd)
}

func (s *stubProductService) InvalidateProducts(...string) {}

type stubCatalogService struct {
	categories []services.Category
	products   services.CategoryProducts
	layouts    []services.HomeLayout
	err        error
	lastQuery  services.CategoryProductsQuery
}

func (s *stubCatalogService) ListCategories(context.Context) ([]services.Category, error) {
	return s.categories, s.err
}

func (s *stubCatalogService) ListCategoryProducts(_ context.Context, query services.CategoryProductsQuery) (services.CategoryProducts, error) {
	s.lastQuery = query
	return s.products, s.err
}

func (s *stubCatalogService) HomeLayouts(context.Context) ([]services.HomeLayout, error) {
	return s.layouts, s.err
}

type stubCartService struct {
	getFunc      func(ctx context.Context, userID string) (services.Cart, error)
	addFunc      func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateFunc   func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error)
	removeFunc   func(ctx context.Context, userID, itemID string) (services.Cart, error)
	validateFunc func(ctx context.Context, userID string) (services.CheckoutValidation, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	return s.getFunc(ctx, userID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	return s.updateFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, itemID string) (services.Cart, error) {
	return s.removeFunc(ctx, userID, itemID)
}

func (s *stubCartService) ValidateCheckout(ctx context.Context, userID string) (services.CheckoutValidation, error) {
	return s.validateFunc(ctx, userID)
}

type stubInventoryService struct {
	result services.InventoryUpdateResult
	err    error
	last   services.InventoryUpdateCommand
	calls  int
}

func (s *stubInventoryService) ApplyInventoryUpdate(_ context.Context, cmd services.InventoryUpdateCommand) (services.InventoryUpdateResult, error) {
	s.calls++
	s.last = cmd
	return s.result, s.err
}

type stubMaintenanceService struct {
	removed int
	err     error
	limit   int
}

func (s *stubMaintenanceService) CleanupIdempotency(_ context.Context, limit int) (int, error) {
	s.limit = limit
	return s.removed, s.err
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func withShopper(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithShopper(req.Context(), &auth.Shopper{UID: uid}))
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return body
}
