package services

import (
	"context"
	"errors"
	"time"
)

const (
	defaultCleanupLimit = 200
	maxCleanupLimit     = 450
)

// IdempotencyCleaner deletes expired idempotency records.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// MaintenanceServiceDeps bundles collaborators for scheduled housekeeping.
type MaintenanceServiceDeps struct {
	Idempotency IdempotencyCleaner
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type maintenanceService struct {
	idempotency IdempotencyCleaner
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

var _ MaintenanceService = (*maintenanceService)(nil)

// NewMaintenanceService constructs the housekeeping service.
func NewMaintenanceService(deps MaintenanceServiceDeps) (MaintenanceService, error) {
	if deps.Idempotency == nil {
		return nil, errors.New("maintenance service: idempotency store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &maintenanceService{idempotency: deps.Idempotency, clock: clock, logger: logger}, nil
}

// CleanupIdempotency removes up to limit expired keys. A non-positive limit uses the default batch.
func (s *maintenanceService) CleanupIdempotency(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	if limit > maxCleanupLimit {
		limit = maxCleanupLimit
	}
	start := s.clock().UTC()
	removed, err := s.idempotency.CleanupExpired(ctx, start, limit)
	if err != nil {
		s.logger(ctx, "maintenance.idempotency_cleanup_failed", map[string]any{"error": err.Error()})
		return removed, err
	}
	s.logger(ctx, "maintenance.idempotency_cleanup", map[string]any{
		"removed":  removed,
		"limit":    limit,
		"duration": s.clock().UTC().Sub(start).String(),
	})
	return removed, nil
}
