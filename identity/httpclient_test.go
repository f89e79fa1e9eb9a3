package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRefreshForwardsCookiesAndReturnsIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/refresh", r.URL.Path)
		ck, err := r.Cookie("qb_session")
		require.NoError(t, err)
		require.Equal(t, "tok-1", ck.Value)

		http.SetCookie(w, &http.Cookie{Name: "qb_session", Value: "tok-2", Path: "/"})
		json.NewEncoder(w).Encode(map[string]any{
			"valid":    true,
			"identity": map[string]any{"user_id": "u1", "email": "u1@example.com"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	result, err := client.Refresh(context.Background(), []*http.Cookie{{Name: "qb_session", Value: "tok-1"}})
	require.NoError(t, err)
	assert.Equal(t, "u1", result.Identity.UserID)
	require.Len(t, result.SetCookies, 1)
	assert.Equal(t, "tok-2", result.SetCookies[0].Value)
}

func TestClientRefreshUnauthorizedIsInvalidSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Refresh(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestClientRefreshInvalidVerdictInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"valid": false})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Refresh(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestClientRefreshServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Refresh(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidSession)
}

func TestClientRefreshTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL, time.Second).Refresh(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
