package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/api"
	"github.com/quillbooks/quillbooks/identity"
	"github.com/quillbooks/quillbooks/ledger"
)

func csrfCookieFrom(resp *http.Response) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == "qb_csrf" {
			return ck
		}
	}
	return nil
}

func TestCSRFCookieMintedOnceWithFullEntropy(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)

	resp, err := client.Get(env.srv.URL + "/api/v1/me")
	require.NoError(t, err)
	resp.Body.Close()

	ck := csrfCookieFrom(resp)
	require.NotNil(t, ck, "first response must mint the token")
	// 32 random bytes hex-encoded, well past the 128-bit floor.
	assert.Len(t, ck.Value, 64)
	assert.False(t, ck.HttpOnly, "browser code must be able to read the token")
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)

	// The cookie rides back via the jar; no re-mint on later requests.
	resp2, err := client.Get(env.srv.URL + "/api/v1/me")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Nil(t, csrfCookieFrom(resp2), "token must not rotate per request")
}

func TestCSRFMismatchedHeaderRejected(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)
	login(t, env, client, &identity.Identity{UserID: "u1"})
	seedLedger(t, env, "u1", ledger.RoleAdmin)
	primeCSRF(t, env, client)

	resp := doJSON(t, client, http.MethodPost, env.srv.URL+"/api/v1/ledgers/ldg-1/entries", entryBody(),
		map[string]string{"X-CSRF-Token": "0000000000000000000000000000000000000000000000000000000000000000"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "csrf_mismatch", body.Error)
	assert.Empty(t, env.engine.calls())
}

func TestCSRFNotRequiredForReads(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)
	login(t, env, client, &identity.Identity{UserID: "u1"})

	// No CSRF header on a GET, and the request still succeeds.
	resp, err := client.Get(env.srv.URL + "/api/v1/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
