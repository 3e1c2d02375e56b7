package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxInventoryWebhookBodySize = 256 * 1024

// InventoryWebhookHandlers receives stock updates from the commerce platform.
// Signature verification is applied by the /webhooks group middleware.
type InventoryWebhookHandlers struct {
	inventory services.InventoryService
	limiter   *keyedLimiter
}

// WebhookOption customises InventoryWebhookHandlers.
type WebhookOption func(*InventoryWebhookHandlers)

// WithWebhookRateLimit limits deliveries per client address.
func WithWebhookRateLimit(perMinute, burst int, now func() time.Time) WebhookOption {
	return func(h *InventoryWebhookHandlers) {
		h.limiter = newKeyedLimiter(perMinute, burst, now)
	}
}

// NewInventoryWebhookHandlers constructs the inventory webhook handlers.
func NewInventoryWebhookHandlers(inventory services.InventoryService, opts ...WebhookOption) *InventoryWebhookHandlers {
	h := &InventoryWebhookHandlers{inventory: inventory}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the webhook endpoints under /webhooks.
func (h *InventoryWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(rateLimit(h.limiter, remoteKey)).Post("/inventory", h.applyInventory)
}

type inventoryWebhookRequest struct {
	Levels []inventoryLevelRequest `json:"levels"`
}

type inventoryLevelRequest struct {
	ProductID         string     `json:"productId"`
	VariantID         string     `json:"variantId"`
	QuantityAvailable int        `json:"quantityAvailable"`
	AvailableForSale  *bool      `json:"availableForSale,omitempty"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
}

type inventoryWebhookResponse struct {
	Applied         int      `json:"applied"`
	UpdatedProducts []string `json:"updatedProducts"`
	ProcessedAt     string   `json:"processedAt"`
}

func (h *InventoryWebhookHandlers) applyInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req inventoryWebhookRequest
	if err := decodeBody(r, maxInventoryWebhookBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	levels := make([]services.InventoryLevel, 0, len(req.Levels))
	for _, level := range req.Levels {
		entry := services.InventoryLevel{
			ProductID:         level.ProductID,
			VariantID:         level.VariantID,
			QuantityAvailable: level.QuantityAvailable,
			AvailableForSale:  level.AvailableForSale,
		}
		if level.UpdatedAt != nil {
			entry.UpdatedAt = level.UpdatedAt.UTC()
		}
		levels = append(levels, entry)
	}

	result, err := h.inventory.ApplyInventoryUpdate(ctx, services.InventoryUpdateCommand{Levels: levels})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	updated := result.UpdatedProducts
	if updated == nil {
		updated = []string{}
	}
	writeJSONResponse(w, http.StatusOK, inventoryWebhookResponse{
		Applied:         result.Applied,
		UpdatedProducts: updated,
		ProcessedAt:     formatTime(result.ProcessedAt),
	})
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryUnknownVariant):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unknown_variant", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInventoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory store is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to apply inventory update", http.StatusInternalServerError))
	}
}
