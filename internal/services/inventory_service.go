package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hanko-field/storefront/internal/repositories"
)

const maxInventoryLevelsPerUpdate = 250

var (
	// ErrInventoryInvalidInput signals the webhook payload failed validation.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryUnknownVariant indicates a level references a product or variant that does not exist.
	ErrInventoryUnknownVariant = errors.New("inventory: unknown variant")
	// ErrInventoryUnavailable indicates the stock store could not be updated.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	// Products is told which products changed so cached variant indexes are rebuilt.
	Products ProductDetailService
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo     repositories.InventoryRepository
	products ProductDetailService
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ InventoryService = (*inventoryService)(nil)

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:     deps.Inventory,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ApplyInventoryUpdate writes all levels in one transaction; an unknown variant
// rejects the whole update.
func (s *inventoryService) ApplyInventoryUpdate(ctx context.Context, cmd InventoryUpdateCommand) (InventoryUpdateResult, error) {
	levels, err := normaliseInventoryLevels(cmd.Levels, s.clock())
	if err != nil {
		return InventoryUpdateResult{}, err
	}

	changed, err := s.repo.ApplyLevels(ctx, levels)
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) {
			return InventoryUpdateResult{}, fmt.Errorf("%w: %s", ErrInventoryUnknownVariant, invErr.Error())
		}
		s.logger(ctx, "inventory.apply_failed", map[string]any{
			"levels": len(levels),
			"error":  err.Error(),
		})
		return InventoryUpdateResult{}, fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
	}

	if s.products != nil && len(changed) > 0 {
		s.products.InvalidateProducts(changed...)
	}
	s.logger(ctx, "inventory.applied", map[string]any{
		"levels":   len(levels),
		"products": changed,
	})

	return InventoryUpdateResult{
		Applied:         len(levels),
		UpdatedProducts: changed,
		ProcessedAt:     s.clock(),
	}, nil
}

// normaliseInventoryLevels trims ids, validates quantities and keeps the last
// level per variant when a payload repeats one.
func normaliseInventoryLevels(levels []InventoryLevel, now time.Time) ([]InventoryLevel, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: at least one level is required", ErrInventoryInvalidInput)
	}
	if len(levels) > maxInventoryLevelsPerUpdate {
		return nil, fmt.Errorf("%w: at most %d levels per update", ErrInventoryInvalidInput, maxInventoryLevelsPerUpdate)
	}

	positions := make(map[string]int, len(levels))
	out := make([]InventoryLevel, 0, len(levels))
	for i, level := range levels {
		level.ProductID = strings.TrimSpace(level.ProductID)
		level.VariantID = strings.TrimSpace(level.VariantID)
		if level.ProductID == "" || level.VariantID == "" {
			return nil, fmt.Errorf("%w: level %d requires product and variant ids", ErrInventoryInvalidInput, i)
		}
		if level.QuantityAvailable < 0 {
			return nil, fmt.Errorf("%w: level %d has negative quantity", ErrInventoryInvalidInput, i)
		}
		if level.UpdatedAt.IsZero() {
			level.UpdatedAt = now
		}
		key := level.ProductID + "/" + level.VariantID
		if pos, ok := positions[key]; ok {
			out[pos] = level
			continue
		}
		positions[key] = len(out)
		out = append(out, level)
	}
	return out, nil
}
