package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdminAuth(t *testing.T) {
	key := []byte("operator-secret")
	handler := AdminAuth(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	valid, err := NewAdminToken(key, "alice", time.Hour)
	require.NoError(t, err)
	expired, err := NewAdminToken(key, "alice", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAdminToken([]byte("other-secret"), "mallory", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "no token", header: "", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic " + valid, status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + foreign, status: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + valid, status: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/consumers", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestNewAdminToken_EmptyKey(t *testing.T) {
	_, err := NewAdminToken(nil, "alice", time.Hour)
	require.Error(t, err)
}
