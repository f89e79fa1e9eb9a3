package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/quillbooks/quillbooks/identity"
)

// refreshSession asks the identity provider to validate and refresh the
// caller's session, forwarding any replacement cookies to the browser.
//
// Fail-safe rule: if the provider fails transiently the original response
// passes through unmodified — no Set-Cookie is emitted, so a provider
// hiccup can never clear sessions fleet-wide. Only the provider's explicit
// "invalid session" verdict yields an unauthenticated caller.
func (a *API) refreshSession(w http.ResponseWriter, r *http.Request) *identity.Identity {
	result, err := a.provider.Refresh(r.Context(), r.Cookies())
	if err != nil {
		if errors.Is(err, identity.ErrInvalidSession) {
			return nil
		}
		// Transient: passthrough. The failure is logged, never surfaced
		// as a distinguishable error to the caller.
		a.logger.WarnContext(r.Context(), "session refresh degraded to passthrough",
			"error", err, "request_id", requestIDFromContext(r.Context()))
		return nil
	}

	domain := cookieDomainForHost(r.Host, a.canonicalHost)
	for _, ck := range result.SetCookies {
		if domain != "" {
			ck.Domain = domain
		} else {
			ck.Domain = ""
		}
		http.SetCookie(w, ck)
	}
	return result.Identity
}

// cookieDomainForHost decides the Domain attribute for session cookies as a
// pure function of the request host. The canonical host and its www variant
// share the leading-dot parent domain so a session minted on one is visible
// on the other. Loopback and development hosts get no Domain attribute at
// all — browsers handle host-only cookies correctly there, and a Domain
// attribute on "localhost" is rejected by some of them.
func cookieDomainForHost(requestHost, canonicalHost string) string {
	host := requestHost
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	if isDevelopmentHost(host) {
		return ""
	}
	if host == canonicalHost || host == "www."+canonicalHost {
		return "." + canonicalHost
	}
	return ""
}

func isDevelopmentHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return false
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
