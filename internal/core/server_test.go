package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbpulse/internal/types"
)

type staticCheck struct {
	name string
	err  error
}

func (c staticCheck) Name() string                     { return c.name }
func (c staticCheck) Health(ctx context.Context) error { return c.err }

func TestHealthz_AllHealthy(t *testing.T) {
	s := newTestServer(t, "")
	s.AddHealthCheck(staticCheck{name: "postgres"})
	s.AddHealthCheck(staticCheck{name: "badger"})
	s.MountRoutes(func(r chi.Router) {})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "ok", body.Checks["badger"])
}

func TestHealthz_DegradedDependency(t *testing.T) {
	s := newTestServer(t, "")
	s.AddHealthCheck(staticCheck{name: "postgres"})
	s.AddHealthCheck(staticCheck{name: "badger", err: errors.New("disk full")})
	s.MountRoutes(func(r chi.Router) {})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "disk full", body.Checks["badger"])
	assert.Equal(t, "ok", body.Checks["postgres"])
}

func TestMountRoutes_HealthAndMetricsBypassAuth(t *testing.T) {
	s := newTestServer(t, "s3cret")
	s.MountRoutes(func(r chi.Router) {
		r.Get("/v1/cabinets", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// The registered route sits behind auth.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cabinets", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/cabinets", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidator_Struct(t *testing.T) {
	type createRequest struct {
		Name   string `validate:"required"`
		APIKey string `validate:"required,min=10"`
	}

	v := NewValidator()

	assert.NoError(t, v.Struct(createRequest{Name: "Main", APIKey: "0123456789abc"}))

	err := v.Struct(createRequest{APIKey: "short"})
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
	assert.Contains(t, appErr.Message, "name (required)")
	assert.Contains(t, appErr.Message, "apikey (min)")
}
