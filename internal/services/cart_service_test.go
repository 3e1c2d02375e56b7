package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type cartFixture struct {
	service   CartService
	carts     *memoryCartRepository
	uow       *stubUnitOfWork
	publisher *recordingPublisher
	metrics   *recordingMetrics
}

func newCartFixture(t *testing.T, inventoryAware bool, carts ...domain.Cart) cartFixture {
	t.Helper()
	fx := cartFixture{
		carts:     newMemoryCartRepository(carts...),
		uow:       &stubUnitOfWork{},
		publisher: &recordingPublisher{},
		metrics:   &recordingMetrics{},
	}
	service, err := NewCartService(CartServiceDeps{
		Carts:           fx.carts,
		Products:        productsByID(teeProduct()),
		UnitOfWork:      fx.uow,
		Analytics:       fx.publisher,
		Metrics:         fx.metrics,
		InventoryAware:  inventoryAware,
		DefaultCurrency: "jpy",
		CheckoutBaseURL: "https://shop.example.com/cart/",
		Clock:           fixedClock,
		IDGenerator:     sequentialIDs("id-"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}
	fx.service = service
	return fx
}

func existingCart(items ...domain.CartItem) domain.Cart {
	return domain.Cart{
		ID:        "user-1",
		UserID:    "user-1",
		Currency:  "JPY",
		Items:     items,
		CreatedAt: fixedNow.Add(-24 * time.Hour),
		UpdatedAt: fixedNow.Add(-time.Hour),
	}
}

func TestNewCartServiceValidatesDeps(t *testing.T) {
	if _, err := NewCartService(CartServiceDeps{}); err == nil {
		t.Fatalf("expected error without repositories")
	}
	_, err := NewCartService(CartServiceDeps{
		Carts:           newMemoryCartRepository(),
		Products:        productsByID(),
		CheckoutBaseURL: "not a url",
	})
	if err == nil {
		t.Fatalf("expected error for invalid checkout url")
	}
}

func TestCartServiceGetCartReturnsEmptyCart(t *testing.T) {
	fx := newCartFixture(t, true)

	cart, err := fx.service.GetCart(context.Background(), " user-9 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.UserID != "user-9" || cart.Currency != "JPY" || len(cart.Items) != 0 {
		t.Fatalf("unexpected empty cart %+v", cart)
	}
	if fx.carts.saves != 0 {
		t.Fatalf("reading a cart must not persist it")
	}
}

func TestCartServiceAddItemCreatesLine(t *testing.T) {
	fx := newCartFixture(t, true)

	cart, err := fx.service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-tee",
		VariantID: "v-red-m",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Items))
	}
	item := cart.Items[0]
	if item.ID != "id-1" || item.Quantity != 2 || item.UnitPrice.Amount != 3200 {
		t.Fatalf("unexpected line %+v", item)
	}
	if item.ImageRef != "products/tee/red.jpg" || item.VariantTitle != "Red / M" {
		t.Fatalf("expected variant details copied, got %+v", item)
	}
	if fx.uow.calls != 1 {
		t.Fatalf("expected mutation inside a transaction")
	}
	if fx.carts.lastExpected != nil {
		t.Fatalf("new cart must be written without precondition")
	}
	if names := fx.publisher.names(); len(names) != 1 || names[0] != EventAddToCart {
		t.Fatalf("expected add_to_cart event, got %v", names)
	}
}

func TestCartServiceAddItemMergesExistingLine(t *testing.T) {
	fx := newCartFixture(t, true, existingCart(domain.CartItem{
		ID: "line-1", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 1,
		UnitPrice: domain.Money{Amount: 3000, Currency: "JPY"},
	}))

	cart, err := fx.service.AddItem(context.Background(), AddCartItemCommand{
		UserID: "user-1", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ID != "line-1" || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line with quantity 3, got %+v", cart.Items)
	}
	if cart.Items[0].UnitPrice.Amount != 3200 {
		t.Fatalf("expected unit price refreshed, got %d", cart.Items[0].UnitPrice.Amount)
	}
	if fx.carts.lastExpected == nil || !fx.carts.lastExpected.Equal(fixedNow.Add(-time.Hour)) {
		t.Fatalf("expected optimistic precondition on stored update time, got %v", fx.carts.lastExpected)
	}
}

func TestCartServiceAddItemRejections(t *testing.T) {
	tests := []struct {
		name      string
		aware     bool
		cart      []domain.Cart
		cmd       AddCartItemCommand
		want      error
		wantLimit *CartLimitError
	}{
		{
			name:      "cart holds all stock",
			aware:     true,
			cart:      []domain.Cart{existingCart(domain.CartItem{ID: "line-1", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 3})},
			cmd:       AddCartItemCommand{UserID: "user-1", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 1},
			want:      ErrCartLimitReached,
			wantLimit: &CartLimitError{VariantID: "v-red-m", InCart: 3, MaxAddable: 0},
		},
		{
			name:      "request exceeds remaining",
			aware:     true,
			cmd:       AddCartItemCommand{UserID: "user-1", ProductID: "prod-tee", VariantID: "v-blue-s", Quantity: 6},
			want:      ErrCartLimitReached,
			wantLimit: &CartLimitError{VariantID: "v-blue-s", InCart: 0, MaxAddable: 5},
		},
		{
			name:  "out of stock",
			aware: true,
			cmd:   AddCartItemCommand{UserID: "user-1", ProductID: "prod-tee", VariantID: "v-red-s", Quantity: 1},
			want:  ErrVariantSoldOut,
		},
		{
			name:  "unknown variant",
			aware: true,
			cmd:   AddCartItemCommand{UserID: "user-1", ProductID: "prod-tee", VariantID: "v-blue-m", Quantity: 1},
			want:  ErrVariantUnavailable,
		},
		{
			name:  "unknown product",
			aware: true,
			cmd:   AddCartItemCommand{UserID: "user-1", ProductID: "prod-missing", VariantID: "v-1", Quantity: 1},
			want:  ErrVariantUnavailable,
		},
		{
			name: "invalid quantity",
			cmd:  AddCartItemCommand{UserID: "user-1", ProductID: "prod-tee", VariantID: "v-red-m"},
			want: ErrCartInvalidInput,
		},
		{
			name: "missing user",
			cmd:  AddCartItemCommand{ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 1},
			want: ErrCartInvalidInput,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := newCartFixture(t, tc.aware, tc.cart...)
			_, err := fx.service.AddItem(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.wantLimit != nil {
				var limitErr *CartLimitError
				if !errors.As(err, &limitErr) {
					t.Fatalf("expected CartLimitError, got %T", err)
				}
				if *limitErr != *tc.wantLimit {
					t.Fatalf("expected %+v, got %+v", *tc.wantLimit, *limitErr)
				}
			}
			if fx.carts.saves != 0 {
				t.Fatalf("rejected add must not write the cart")
			}
			if len(fx.publisher.events) != 0 {
				t.Fatalf("rejected add must not emit analytics")
			}
		})
	}
}

func TestCartServiceAddItemIgnoresStockWhenNotInventoryAware(t *testing.T) {
	fx := newCartFixture(t, false)

	cart, err := fx.service.AddItem(context.Background(), AddCartItemCommand{
		UserID: "user-1", ProductID: "prod-tee", VariantID: "v-red-s", Quantity: 4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Items[0].Quantity != 4 {
		t.Fatalf("unexpected quantity %d", cart.Items[0].Quantity)
	}
}

func TestCartServiceAddItemRecordsBlockedMetric(t *testing.T) {
	fx := newCartFixture(t, true)

	_, _ = fx.service.AddItem(context.Background(), AddCartItemCommand{
		UserID: "user-1", ProductID: "prod-tee", VariantID: "v-red-s", Quantity: 1,
	})
	if len(fx.metrics.blocked) != 1 || fx.metrics.blocked[0] != "out_of_stock" {
		t.Fatalf("expected blocked metric, got %v", fx.metrics.blocked)
	}
}

func TestCartServiceAddItemMapsConflict(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Carts: &stubCartRepository{
			saveFunc: func(context.Context, domain.Cart, *time.Time) (domain.Cart, error) {
				return domain.Cart{}, &repositoryErrorStub{conflict: true}
			},
		},
		Products: productsByID(teeProduct()),
		Clock:    fixedClock,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = service.AddItem(context.Background(), AddCartItemCommand{UserID: "u", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 1})
	if !errors.Is(err, ErrCartConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCartServiceUpdateQuantity(t *testing.T) {
	line := domain.CartItem{ID: "line-1", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 1}

	t.Run("increase within stock", func(t *testing.T) {
		fx := newCartFixture(t, true, existingCart(line))
		cart, err := fx.service.UpdateQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "line-1", Quantity: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cart.Items[0].Quantity != 3 {
			t.Fatalf("expected quantity 3, got %d", cart.Items[0].Quantity)
		}
		if names := fx.publisher.names(); len(names) != 1 || names[0] != EventUpdateCartItemQuantity {
			t.Fatalf("expected update event, got %v", names)
		}
	})

	t.Run("increase beyond stock", func(t *testing.T) {
		fx := newCartFixture(t, true, existingCart(line))
		_, err := fx.service.UpdateQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "line-1", Quantity: 4})
		var limitErr *CartLimitError
		if !errors.As(err, &limitErr) || limitErr.MaxAddable != 2 {
			t.Fatalf("expected cart limit with 2 addable, got %v", err)
		}
	})

	t.Run("increase ignored stock when not aware", func(t *testing.T) {
		fx := newCartFixture(t, false, existingCart(line))
		if _, err := fx.service.UpdateQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "line-1", Quantity: 10}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("decrease always allowed", func(t *testing.T) {
		over := line
		over.VariantID = "v-red-s"
		over.Quantity = 2
		fx := newCartFixture(t, true, existingCart(over))
		cart, err := fx.service.UpdateQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "line-1", Quantity: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cart.Items[0].Quantity != 1 {
			t.Fatalf("expected quantity 1, got %d", cart.Items[0].Quantity)
		}
	})

	t.Run("zero removes", func(t *testing.T) {
		fx := newCartFixture(t, true, existingCart(line))
		cart, err := fx.service.UpdateQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "line-1", Quantity: 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cart.Items) != 0 {
			t.Fatalf("expected line removed, got %+v", cart.Items)
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		fx := newCartFixture(t, true, existingCart(line))
		_, err := fx.service.UpdateQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "line-9", Quantity: 1})
		if !errors.Is(err, ErrCartItemNotFound) {
			t.Fatalf("expected item not found, got %v", err)
		}
	})

	t.Run("negative quantity", func(t *testing.T) {
		fx := newCartFixture(t, true, existingCart(line))
		_, err := fx.service.UpdateQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "line-1", Quantity: -1})
		if !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})
}

func TestCartServiceRemoveItem(t *testing.T) {
	fx := newCartFixture(t, true, existingCart(
		domain.CartItem{ID: "line-1", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 1},
		domain.CartItem{ID: "line-2", ProductID: "prod-tee", VariantID: "v-blue-s", Quantity: 1},
	))
	cart, err := fx.service.RemoveItem(context.Background(), "user-1", "line-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ID != "line-2" {
		t.Fatalf("unexpected items %+v", cart.Items)
	}
}

func TestCartServiceValidateCheckout(t *testing.T) {
	jpy := func(amount int64) domain.Money { return domain.Money{Amount: amount, Currency: "JPY"} }

	t.Run("all lines ok", func(t *testing.T) {
		fx := newCartFixture(t, true, existingCart(
			domain.CartItem{ID: "line-1", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 2, UnitPrice: jpy(3200)},
			domain.CartItem{ID: "line-2", ProductID: "prod-tee", VariantID: "v-blue-s", Quantity: 1, UnitPrice: jpy(3000)},
		))
		result, err := fx.service.ValidateCheckout(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Ready {
			t.Fatalf("expected ready checkout, got %+v", result.Lines)
		}
		if result.Total.Amount != 9400 {
			t.Fatalf("expected total 9400, got %d", result.Total.Amount)
		}
		if result.CheckoutURL != "https://shop.example.com/cart/v-red-m:2,v-blue-s:1" {
			t.Fatalf("unexpected checkout url %q", result.CheckoutURL)
		}
		if names := fx.publisher.names(); len(names) != 1 || names[0] != EventBeginCheckout {
			t.Fatalf("expected begin_checkout, got %v", names)
		}
	})

	t.Run("stock problems block checkout", func(t *testing.T) {
		fx := newCartFixture(t, true, existingCart(
			domain.CartItem{ID: "line-1", ProductID: "prod-tee", VariantID: "v-red-s", Quantity: 1},
			domain.CartItem{ID: "line-2", ProductID: "prod-tee", VariantID: "v-red-m", Quantity: 5},
			domain.CartItem{ID: "line-3", ProductID: "prod-gone", VariantID: "v-x", Quantity: 1},
			domain.CartItem{ID: "line-4", ProductID: "prod-tee", VariantID: "v-blue-s", Quantity: 1},
		))
		result, err := fx.service.ValidateCheckout(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []domain.CheckoutLineStatus{
			domain.CheckoutLineOutOfStock,
			domain.CheckoutLineLessQuantity,
			domain.CheckoutLineUnavailable,
			domain.CheckoutLineOK,
		}
		for i, line := range result.Lines {
			if line.Status != want[i] {
				t.Fatalf("line %d: expected %s, got %s", i, want[i], line.Status)
			}
		}
		if result.Ready || result.CheckoutURL != "" {
			t.Fatalf("expected checkout to be blocked")
		}
		if result.Lines[1].QuantityAvailable != 3 {
			t.Fatalf("expected available quantity reported, got %d", result.Lines[1].QuantityAvailable)
		}
		if len(fx.publisher.events) != 0 {
			t.Fatalf("blocked checkout must not emit begin_checkout")
		}
	})

	t.Run("stock ignored when not aware", func(t *testing.T) {
		fx := newCartFixture(t, false, existingCart(
			domain.CartItem{ID: "line-1", ProductID: "prod-tee", VariantID: "v-red-s", Quantity: 4},
		))
		result, err := fx.service.ValidateCheckout(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Ready {
			t.Fatalf("expected ready checkout when stock is ignored")
		}
	})

	t.Run("empty cart", func(t *testing.T) {
		fx := newCartFixture(t, true)
		if _, err := fx.service.ValidateCheckout(context.Background(), "user-1"); !errors.Is(err, ErrCartEmpty) {
			t.Fatalf("expected empty cart error, got %v", err)
		}
	})
}
