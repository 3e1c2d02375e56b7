package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// MaintenanceHandlers exposes housekeeping jobs to Cloud Scheduler under /internal.
type MaintenanceHandlers struct {
	maintenance services.MaintenanceService
}

// NewMaintenanceHandlers constructs the internal maintenance handlers.
func NewMaintenanceHandlers(maintenance services.MaintenanceService) *MaintenanceHandlers {
	return &MaintenanceHandlers{maintenance: maintenance}
}

// Routes registers the maintenance endpoints.
func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/idempotency-cleanup", h.cleanupIdempotency)
}

func (h *MaintenanceHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.maintenance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_unavailable", "maintenance service is unavailable", http.StatusServiceUnavailable))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		limit = value
	}

	removed, err := h.maintenance.CleanupIdempotency(ctx, limit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_failed", "idempotency cleanup failed", http.StatusInternalServerError).With("removed", removed))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"removed": removed})
}
