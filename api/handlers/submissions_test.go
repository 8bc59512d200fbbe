package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/modguard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	items   []store.SubmissionRecord
	total   int64
	err     error
	lastOpt store.ListOptions
}

func (f *fakeLister) List(_ context.Context, opts store.ListOptions) ([]store.SubmissionRecord, error) {
	f.lastOpt = opts
	return f.items, f.err
}

func (f *fakeLister) Count(context.Context, store.ListOptions) (int64, error) {
	return f.total, f.err
}

func TestSubmissionsHandler_List(t *testing.T) {
	lister := &fakeLister{
		items: []store.SubmissionRecord{{ID: 7, Type: "text", Analysis: "a", Classification: "flagged"}},
		total: 12,
	}
	h := NewSubmissionsHandler(lister, nil)

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/submissions?type=text&classification=flagged&limit=1&offset=3", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, store.ListOptions{Type: "text", Classification: "flagged", Limit: 1, Offset: 3}, lister.lastOpt)

	var resp struct {
		Success bool           `json:"success"`
		Data    SubmissionList `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(12), resp.Data.Total)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, uint64(7), resp.Data.Items[0].ID)
}

func TestSubmissionsHandler_EmptyListIsArray(t *testing.T) {
	h := NewSubmissionsHandler(&fakeLister{}, nil)
	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/submissions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestSubmissionsHandler_Errors(t *testing.T) {
	h := NewSubmissionsHandler(&fakeLister{}, nil)
	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/submissions?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/submissions?offset=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h = NewSubmissionsHandler(&fakeLister{err: errors.New("db gone")}, nil)
	w = httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/submissions", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "STORAGE_ERROR", decodeError(t, w).Code)
}
