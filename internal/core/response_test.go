package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"weatheringest/internal/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestJSON_WithMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, r, http.StatusOK, APIResponse{Data: []string{"a", "b"}, Meta: &ListMeta{Count: 2, Limit: 10}})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	want := `{"data":["a","b"],"meta":{"count":2,"limit":10}}`
	if rec.Body.String() != want {
		t.Errorf("expected %s, got %s", want, rec.Body.String())
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, r, http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected code %q", resp.Error.Code)
	}
}

func TestError_AppErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrCodeValidationInvalidParameter, http.StatusBadRequest},
		{types.ErrCodeNotFoundRoute, http.StatusNotFound},
		{types.ErrCodeUpstreamDatabase, http.StatusBadGateway},
		{types.ErrCodeInternalDB, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			Error(rec, r, types.NewAppError(tt.code, "msg", nil))

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
			if resp := decodeError(t, rec); resp.Error.Code != string(tt.code) {
				t.Errorf("expected code %q, got %q", tt.code, resp.Error.Code)
			}
		})
	}
}

func TestError_WrappedAppErrorKeepsDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))

	appErr := types.NewAppError(types.ErrCodeValidationInvalidParameter, "from is invalid", nil).
		WithDetails(map[string]any{"parameter": "from"})
	Error(rec, r, fmt.Errorf("handler: %w", appErr))

	resp := decodeError(t, rec)
	if resp.Error.Message != "from is invalid" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
	if resp.Error.Details["parameter"] != "from" {
		t.Errorf("expected parameter detail, got %v", resp.Error.Details)
	}
	if resp.Error.RequestID != "req-1" {
		t.Errorf("expected request id req-1, got %q", resp.Error.RequestID)
	}
}

func TestError_GenericErrorIsNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(rec, r, errors.New(`pq: relation "weather_data" does not exist`))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error.Message != "an unexpected error occurred" {
		t.Errorf("internal message leaked: %q", resp.Error.Message)
	}
}
