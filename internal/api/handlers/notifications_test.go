package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbpulse/internal/types"
)

type fakeNotificationRepo struct {
	byID      map[string]*types.Notification
	byCabinet map[string][]types.Notification
	gotLimit  int
	gotOffset int
}

func newFakeNotificationRepo(items ...types.Notification) *fakeNotificationRepo {
	repo := &fakeNotificationRepo{
		byID:      make(map[string]*types.Notification),
		byCabinet: make(map[string][]types.Notification),
	}
	for i := range items {
		n := items[i]
		repo.byID[n.ID] = &n
		repo.byCabinet[n.CabinetID] = append(repo.byCabinet[n.CabinetID], n)
	}
	return repo
}

func (f *fakeNotificationRepo) Get(_ context.Context, id string) (*types.Notification, error) {
	n, ok := f.byID[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return n, nil
}

func (f *fakeNotificationRepo) List(_ context.Context, cabinetID string, limit, offset int) ([]types.Notification, error) {
	f.gotLimit = limit
	f.gotOffset = offset
	return f.byCabinet[cabinetID], nil
}

type fakeQueueInspector struct {
	depth map[types.Priority]int
	err   error
}

func (f *fakeQueueInspector) Depth() (map[types.Priority]int, error) {
	return f.depth, f.err
}

func mountNotifications(t *testing.T, repo *fakeNotificationRepo, q *fakeQueueInspector) http.Handler {
	t.Helper()
	h := NewNotificationHandler(newHandlerServer(t), repo, q)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func historyNotification(id, cabinetID string) types.Notification {
	return types.Notification{
		ID:        id,
		CabinetID: cabinetID,
		EventType: types.EventOrderBuyout,
		Priority:  types.PriorityMedium,
		Title:     "Order bought out",
		Status:    types.DeliverySent,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestListNotifications(t *testing.T) {
	repo := newFakeNotificationRepo(
		historyNotification("notif_1", "cab_1"),
		historyNotification("notif_2", "cab_1"),
		historyNotification("notif_3", "cab_other"),
	)
	router := mountNotifications(t, repo, &fakeQueueInspector{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cabinets/cab_1/notifications?limit=50&offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 50, repo.gotLimit)
	assert.Equal(t, 10, repo.gotOffset)

	var body struct {
		Data []types.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
}

func TestListNotifications_BadPagingFallsBack(t *testing.T) {
	repo := newFakeNotificationRepo()
	router := mountNotifications(t, repo, &fakeQueueInspector{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cabinets/cab_1/notifications?limit=abc&offset=-5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Zero(t, repo.gotLimit)
	assert.Zero(t, repo.gotOffset)
}

func TestGetNotification(t *testing.T) {
	repo := newFakeNotificationRepo(historyNotification("notif_1", "cab_1"))
	router := mountNotifications(t, repo, &fakeQueueInspector{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications/notif_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notif_1")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications/notif_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found_notification")
}

func TestQueueDepth(t *testing.T) {
	q := &fakeQueueInspector{depth: map[types.Priority]int{
		types.PriorityCritical: 1,
		types.PriorityHigh:     0,
		types.PriorityMedium:   7,
		types.PriorityLow:      2,
	}}
	router := mountNotifications(t, newFakeNotificationRepo(), q)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queue/depth", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 7, body.Data["medium"])
	assert.Equal(t, 1, body.Data["critical"])
}

func TestQueueDepth_Unavailable(t *testing.T) {
	q := &fakeQueueInspector{err: errors.New("store closed")}
	router := mountNotifications(t, newFakeNotificationRepo(), q)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queue/depth", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_queue_error")
	assert.NotContains(t, rec.Body.String(), "store closed")
}
