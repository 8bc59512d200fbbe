package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/modguard/moderation"
	"github.com/BaSui01/modguard/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"key": "value"})

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError_RequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/submit", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-42"))
	w := httptest.NewRecorder()

	WriteError(w, r, types.NewError(types.ErrRateLimited, "slow down"), zap.NewNop())

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "req-42", resp.RequestID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RATE_LIMITED", resp.Error.Code)
	assert.Equal(t, "slow down", resp.Error.Message)
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   types.ErrorCode
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        &moderation.ValidationError{Field: "text", Reason: moderation.MsgMissingText},
			wantCode:   types.ErrValidation,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Missing text for text submission",
		},
		{
			name:       "wrapped validation",
			err:        fmt.Errorf("parse: %w", &moderation.ValidationError{Reason: moderation.MsgUnsupportedPayload}),
			wantCode:   types.ErrValidation,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Unsupported or missing payload.",
		},
		{
			name:       "too large",
			err:        &http.MaxBytesError{Limit: 10},
			wantCode:   types.ErrPayloadTooLarge,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "typed error passthrough",
			err:        types.NewError(types.ErrUpstreamTimeout, "model timed out"),
			wantCode:   types.ErrUpstreamTimeout,
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantCode:   types.ErrInternalError,
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ToAPIError(tt.err)
			assert.Equal(t, tt.wantCode, apiErr.Code)

			w := httptest.NewRecorder()
			WriteError(w, nil, apiErr, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, apiErr.Message)
			}
		})
	}
}

func TestResponseWriter_CapturesStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, _ = rw.Write([]byte("hello"))
	rw.WriteHeader(http.StatusTeapot) // 已写出，忽略
	_, _ = rw.Write([]byte("!"))

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.Equal(t, 6, rw.BytesWritten)
	assert.Same(t, rec, rw.Unwrap())
}
