// Package handlers contains the HTTP handler implementations for the
// management API: cabinet lifecycle, notification settings and delivery
// history.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"wbpulse/internal/core"
	"wbpulse/internal/types"
	"wbpulse/internal/webhook"
)

// CabinetRepo is the data access contract for cabinet operations.
type CabinetRepo interface {
	Create(ctx context.Context, c *types.Cabinet) error
	Get(ctx context.Context, id string) (*types.Cabinet, error)
	List(ctx context.Context) ([]types.Cabinet, error)
	Update(ctx context.Context, c *types.Cabinet) error
	Delete(ctx context.Context, id string) error
}

// StatusForgetter clears persisted order-status state when a cabinet is
// removed.
type StatusForgetter interface {
	Forget(cabinetID string) error
}

// WebhookTester fires a test delivery against a cabinet's endpoint.
type WebhookTester interface {
	Send(ctx context.Context, n types.Notification, url string, secret webhook.SecretConfig) (*webhook.Result, error)
}

// CreateCabinetRequest is the request body for POST /v1/cabinets.
type CreateCabinetRequest struct {
	UserID        int64  `json:"user_id" validate:"required,gt=0"`
	Name          string `json:"name" validate:"required,max=200"`
	APIKey        string `json:"api_key" validate:"required,min=16"`
	WebhookURL    string `json:"webhook_url" validate:"required,url"`
	WebhookSecret string `json:"webhook_secret" validate:"required,min=16"`
}

// UpdateCabinetRequest is the request body for PATCH /v1/cabinets/{id}.
type UpdateCabinetRequest struct {
	Name          *string              `json:"name,omitempty" validate:"omitempty,max=200"`
	APIKey        *string              `json:"api_key,omitempty" validate:"omitempty,min=16"`
	WebhookURL    *string              `json:"webhook_url,omitempty" validate:"omitempty,url"`
	WebhookSecret *string              `json:"webhook_secret,omitempty" validate:"omitempty,min=16"`
	Status        *types.CabinetStatus `json:"status,omitempty" validate:"omitempty,oneof=active paused"`
}

// CabinetHandler serves the cabinet management endpoints.
type CabinetHandler struct {
	server   *core.Server
	repo     CabinetRepo
	statuses StatusForgetter
	tester   WebhookTester
}

// NewCabinetHandler creates the handler.
func NewCabinetHandler(server *core.Server, repo CabinetRepo, statuses StatusForgetter, tester WebhookTester) *CabinetHandler {
	return &CabinetHandler{server: server, repo: repo, statuses: statuses, tester: tester}
}

// RegisterRoutes mounts cabinet routes on the provided router.
func (h *CabinetHandler) RegisterRoutes(r chi.Router) {
	r.Route("/v1/cabinets", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{cabinetID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/webhook/test", h.TestWebhook)
		})
	})
}

// Create handles POST /v1/cabinets.
func (h *CabinetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCabinetRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := webhook.ValidateURL(req.WebhookURL); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidWebhook, err.Error(), err))
		return
	}

	cab := &types.Cabinet{
		ID:            "cab_" + uuid.NewString(),
		UserID:        req.UserID,
		Name:          req.Name,
		Status:        types.CabinetActive,
		APIKey:        req.APIKey,
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
	}
	if err := h.repo.Create(r.Context(), cab); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: cab})
}

// List handles GET /v1/cabinets.
func (h *CabinetHandler) List(w http.ResponseWriter, r *http.Request) {
	cabinets, err := h.repo.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cabinets})
}

// Get handles GET /v1/cabinets/{id}.
func (h *CabinetHandler) Get(w http.ResponseWriter, r *http.Request) {
	cab, err := h.repo.Get(r.Context(), chi.URLParam(r, "cabinetID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cab})
}

// Update handles PATCH /v1/cabinets/{id}.
func (h *CabinetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateCabinetRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	cab, err := h.repo.Get(r.Context(), chi.URLParam(r, "cabinetID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		cab.Name = *req.Name
	}
	if req.APIKey != nil {
		cab.APIKey = *req.APIKey
	}
	if req.WebhookURL != nil {
		if err := webhook.ValidateURL(*req.WebhookURL); err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidWebhook, err.Error(), err))
			return
		}
		cab.WebhookURL = *req.WebhookURL
	}
	if req.WebhookSecret != nil {
		cab.WebhookSecret = *req.WebhookSecret
	}
	if req.Status != nil {
		cab.Status = *req.Status
	}

	if err := h.repo.Update(r.Context(), cab); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cab})
}

// Delete handles DELETE /v1/cabinets/{id}.
func (h *CabinetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cabinetID")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.statuses.Forget(id); err != nil {
		h.server.Logger.Error("failed to clear order statuses", "cabinet_id", id, "error", err.Error())
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestWebhook handles POST /v1/cabinets/{id}/webhook/test: it sends a
// synthetic notification to the cabinet's endpoint and reports the outcome
// without recording history.
func (h *CabinetHandler) TestWebhook(w http.ResponseWriter, r *http.Request) {
	cab, err := h.repo.Get(r.Context(), chi.URLParam(r, "cabinetID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if cab.WebhookURL == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidWebhook,
			"cabinet has no webhook URL", nil))
		return
	}

	now := time.Now().UTC()
	n := types.Notification{
		ID:         "notif_test_" + uuid.NewString(),
		CabinetID:  cab.ID,
		EventType:  types.EventWebhookTest,
		EntityType: types.EntityOrder,
		EntityID:   "test",
		Transition: "test",
		Priority:   types.PriorityLow,
		Title:      "Test notification",
		Body:       "If you can read this, webhook delivery is working.",
		Status:     types.DeliveryPending,
		CreatedAt:  now,
	}

	result, err := h.tester.Send(r.Context(), n, cab.WebhookURL, webhook.SecretConfig{Secret: cab.WebhookSecret})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}
