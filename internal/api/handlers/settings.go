package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wbpulse/internal/core"
	"wbpulse/internal/types"
)

// SettingsRepo is the data access contract for notification settings.
type SettingsRepo interface {
	GetOrCreate(ctx context.Context, cabinetID string) (types.NotificationSettings, error)
	Update(ctx context.Context, s *types.NotificationSettings) error
}

// CabinetChecker verifies a cabinet exists before touching its settings.
type CabinetChecker interface {
	Get(ctx context.Context, id string) (*types.Cabinet, error)
}

// UpdateSettingsRequest is the request body for PUT /v1/cabinets/{id}/settings.
// All fields are required so a PUT always states the full desired state.
type UpdateSettingsRequest struct {
	OrdersEnabled          *bool `json:"orders_enabled" validate:"required"`
	SalesEnabled           *bool `json:"sales_enabled" validate:"required"`
	ReviewsEnabled         *bool `json:"reviews_enabled" validate:"required"`
	StocksEnabled          *bool `json:"stocks_enabled" validate:"required"`
	CriticalStockThreshold int   `json:"critical_stock_threshold" validate:"gte=0,lte=1000"`
	NegativeRatingMax      int   `json:"negative_rating_max" validate:"gte=1,lte=5"`
}

// SettingsHandler serves the per-cabinet notification settings endpoints.
type SettingsHandler struct {
	server   *core.Server
	repo     SettingsRepo
	cabinets CabinetChecker
}

// NewSettingsHandler creates the handler.
func NewSettingsHandler(server *core.Server, repo SettingsRepo, cabinets CabinetChecker) *SettingsHandler {
	return &SettingsHandler{server: server, repo: repo, cabinets: cabinets}
}

// RegisterRoutes mounts settings routes on the provided router.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/v1/cabinets/{cabinetID}/settings", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
	})
}

// Get handles GET /v1/cabinets/{id}/settings. A cabinet without a stored
// row gets the defaults, persisted on first read.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	cabinetID := chi.URLParam(r, "cabinetID")
	if _, err := h.cabinets.Get(r.Context(), cabinetID); err != nil {
		core.Error(w, r, err)
		return
	}
	settings, err := h.repo.GetOrCreate(r.Context(), cabinetID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: settings})
}

// Update handles PUT /v1/cabinets/{id}/settings.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	cabinetID := chi.URLParam(r, "cabinetID")
	if _, err := h.cabinets.Get(r.Context(), cabinetID); err != nil {
		core.Error(w, r, err)
		return
	}

	var req UpdateSettingsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	settings := types.NotificationSettings{
		CabinetID:              cabinetID,
		OrdersEnabled:          *req.OrdersEnabled,
		SalesEnabled:           *req.SalesEnabled,
		ReviewsEnabled:         *req.ReviewsEnabled,
		StocksEnabled:          *req.StocksEnabled,
		CriticalStockThreshold: req.CriticalStockThreshold,
		NegativeRatingMax:      req.NegativeRatingMax,
	}
	if err := h.repo.Update(r.Context(), &settings); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: settings})
}
