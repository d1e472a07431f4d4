package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-session-keeper/types"
)

func TestRemoteStorePut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sessions/upload", r.URL.Path)
		require.Equal(t, "primary", r.URL.Query().Get("identity"))

		file, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "primary.session", hdr.Filename)

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "file_id": "abc123"})
	}))
	defer srv.Close()

	res, err := NewRemoteStore(srv.URL).Put(context.Background(), "primary", []byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.ID)
}

func TestRemoteStoreList(t *testing.T) {
	created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sessions", r.URL.Path)
		_ = json.NewEncoder(w).Encode(listResponse{
			Success: true,
			Sessions: []types.BlobInfo{
				{ID: "newer", Identity: "primary", Size: 10, CreatedAt: created.Add(time.Hour)},
				{ID: "older", Identity: "primary", Size: 8, CreatedAt: created},
			},
			Count: 2,
		})
	}))
	defer srv.Close()

	infos, err := NewRemoteStore(srv.URL).List(context.Background(), "primary")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "newer", infos[0].ID)
}

func TestRemoteStoreErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		code   int
		expect error
	}{
		{"service unavailable", http.StatusServiceUnavailable, types.ErrStoreUnavailable},
		{"internal error", http.StatusInternalServerError, types.ErrStoreUnavailable},
		{"not found", http.StatusNotFound, types.ErrNotFound},
		{"bad request", http.StatusBadRequest, types.ErrStoreRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
			}))
			defer srv.Close()

			_, err := NewRemoteStore(srv.URL).Get(context.Background(), "primary", "some-id")
			assert.ErrorIs(t, err, tc.expect)
		})
	}
}

func TestRemoteStoreUnreachable(t *testing.T) {
	s := NewRemoteStore("http://127.0.0.1:1")
	_, err := s.List(context.Background(), "primary")
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
}
