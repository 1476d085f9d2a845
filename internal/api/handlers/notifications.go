package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wbpulse/internal/core"
	"wbpulse/internal/types"
)

// NotificationRepo is the data access contract for delivery history.
type NotificationRepo interface {
	Get(ctx context.Context, id string) (*types.Notification, error)
	List(ctx context.Context, cabinetID string, limit, offset int) ([]types.Notification, error)
}

// QueueInspector exposes queue depth for the operational endpoint.
type QueueInspector interface {
	Depth() (map[types.Priority]int, error)
}

// NotificationHandler serves the delivery history endpoints.
type NotificationHandler struct {
	server *core.Server
	repo   NotificationRepo
	queue  QueueInspector
}

// NewNotificationHandler creates the handler.
func NewNotificationHandler(server *core.Server, repo NotificationRepo, queue QueueInspector) *NotificationHandler {
	return &NotificationHandler{server: server, repo: repo, queue: queue}
}

// RegisterRoutes mounts notification routes on the provided router.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/cabinets/{cabinetID}/notifications", h.List)
	r.Get("/v1/notifications/{notificationID}", h.Get)
	r.Get("/v1/queue/depth", h.QueueDepth)
}

// List handles GET /v1/cabinets/{id}/notifications with limit/offset paging.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	items, err := h.repo.List(r.Context(), chi.URLParam(r, "cabinetID"), limit, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: items})
}

// Get handles GET /v1/notifications/{id}.
func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.Get(r.Context(), chi.URLParam(r, "notificationID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: n})
}

// QueueDepth handles GET /v1/queue/depth.
func (h *NotificationHandler) QueueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.Depth()
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalQueue, "failed to read queue depth", err))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: depth})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
