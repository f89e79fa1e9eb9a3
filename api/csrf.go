package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"
)

const (
	csrfCookieName = "qb_csrf"
	csrfHeaderName = "X-CSRF-Token"

	// csrfTokenBytes gives a 256-bit token, double the 128-bit floor.
	csrfTokenBytes = 32
	csrfLifetime   = 24 * time.Hour
)

// ensureCSRFCookie mints the double-submit cookie on the first response
// that lacks one. The token is minted once per browser and not rotated
// mid-life; two concurrent first visits may race, and last-write-wins is
// fine because the value is random and not bound to any transaction.
//
// The cookie is intentionally NOT HttpOnly: the browser-side app must read
// it to echo it back as a request header. SameSite=Strict keeps it from
// riding along on cross-site navigation.
func (a *API) ensureCSRFCookie(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(csrfCookieName); err == nil && ck.Value != "" {
		return
	}
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		// Leaving the cookie unminted fails closed: the next mutating
		// request will be rejected rather than accepted unprotected.
		a.logger.ErrorContext(r.Context(), "csrf token generation failed", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    hex.EncodeToString(buf),
		Path:     "/",
		HttpOnly: false,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(csrfLifetime),
	})
}

// validCSRF checks the double-submit pair under constant-time comparison.
func (a *API) validCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) == 1
}
