// Package identity defines the contract with the external identity provider
// that owns session creation, refresh, and destruction. This service never
// interprets session token contents; it forwards cookies and acts on the
// provider's verdict.
package identity

import (
	"context"
	"errors"
	"net/http"
)

// ErrInvalidSession is the provider's definitive verdict that the presented
// session is not valid. Unlike transient failures it is never swallowed.
var ErrInvalidSession = errors.New("invalid session")

// ErrUnavailable indicates the provider could not be reached or answered
// with a transient failure. Callers degrade to passthrough on this error.
var ErrUnavailable = errors.New("identity provider unavailable")

// Identity is the authenticated caller as reported by the provider.
type Identity struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	Demo     bool   `json:"demo,omitempty"`
	APIActor bool   `json:"api_actor,omitempty"`
}

// RefreshResult is the provider's answer for one request. SetCookies holds
// replacement session cookies (possibly a numeric-suffixed family when the
// session payload is large) to forward to the browser.
type RefreshResult struct {
	Identity   *Identity
	SetCookies []*http.Cookie
}

// Provider verifies and refreshes sessions.
//
// Error contract: a definitive invalidation is ErrInvalidSession; anything
// transient (network failure, provider 5xx, timeout) wraps ErrUnavailable.
// Callers rely on that split to decide between logging the user out and
// failing safe.
type Provider interface {
	Refresh(ctx context.Context, cookies []*http.Cookie) (*RefreshResult, error)
}
