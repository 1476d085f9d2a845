package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbpulse/internal/types"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestJSON_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, req, http.StatusCreated, APIResponse{Data: map[string]string{"id": "cab_1"}})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"cab_1"}}`, rec.Body.String())
}

func TestError_AppErrorDrivesStatusAndCode(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			"not found",
			types.NewAppError(types.ErrCodeNotFoundCabinet, "cabinet not found", nil),
			http.StatusNotFound, "not_found_cabinet",
		},
		{
			"conflict",
			types.NewAppError(types.ErrCodeConflictCabinetExists, "cabinet already exists", nil),
			http.StatusConflict, "conflict_cabinet_exists",
		},
		{
			"validation",
			types.NewAppError(types.ErrCodeValidationInvalidBody, "bad body", nil),
			http.StatusBadRequest, "validation_invalid_body",
		},
		{
			"upstream rate limit",
			types.NewAppError(types.ErrCodeUpstreamRateLimit, "slow down", nil),
			http.StatusTooManyRequests, "upstream_rate_limited",
		},
		{
			"wrapped app error",
			errors.Join(errors.New("outer"), types.NewAppError(types.ErrCodeNotFoundNotification, "gone", nil)),
			http.StatusNotFound, "not_found_notification",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decodeErrorBody(t, rec).Code)
		})
	}
}

func TestError_UnknownErrorIsOpaque500(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), detail.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"name":"Main"}`, ""},
		{"empty body", ``, "must not be empty"},
		{"malformed", `{"name":`, "malformed JSON"},
		{"unknown field", `{"name":"Main","bogus":1}`, "unknown field"},
		{"wrong type", `{"name":42}`, "invalid value for field name"},
		{"trailing garbage", `{"name":"Main"}{"name":"Again"}`, "single JSON object"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			var dst payload
			err := DecodeJSON(rec, req, &dst)

			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "Main", dst.Name)
				return
			}
			require.Error(t, err)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeValidationInvalidBody, appErr.Code)
			assert.Contains(t, appErr.Message, tc.wantErr)
		})
	}
}

func TestDecodeJSON_OversizedBody(t *testing.T) {
	big := `{"name":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	rec := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(rec, req, &dst)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "1MB")
}
