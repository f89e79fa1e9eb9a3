package api

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/quillbooks/quillbooks/identity"
	"github.com/quillbooks/quillbooks/internal/uuid"
)

// RouteConfig declares, per route, every pipeline option explicitly. There
// are no implicit defaults: a zero-value field means that concern is off for
// the route, visibly so at the call site.
type RouteConfig struct {
	// RequireAuth rejects unauthenticated callers with 401.
	RequireAuth bool
	// RateLimit consults the limiter keyed by (identity|ip, RoutePath).
	RateLimit bool
	// CSRFProtection validates the double-submit token on mutating methods.
	CSRFProtection bool
	// ReadonlyExempt lets the route mutate even when the session is
	// readonly (used by the mode switch itself).
	ReadonlyExempt bool
	// RoutePath is the logical route pattern, used as the rate-limit key
	// component and exposed to render consumers via header.
	RoutePath string
}

// RequestContext is the request-scoped state handed to every handler.
type RequestContext struct {
	User      *identity.Identity
	RequestID string
	Mode      ModeContext
}

// HandlerFunc is a pipeline-wrapped handler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, rc *RequestContext)

type contextKey int

const (
	requestIDKey contextKey = iota
	routePathKey
)

const (
	requestIDHeader = "X-Request-Id"
	routePathHeader = "X-Route-Path"
)

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// detachedContext keeps the request's values but drops its cancellation,
// for background work (audit, notifications) that should outlive a client
// disconnect.
func detachedContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// mutatingMethod reports whether the method can change state. Per the
// double-submit contract only GET and HEAD are safe.
func mutatingMethod(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// pipeline composes the fixed-order request checks around a handler:
// session refresh, CSRF, rate limit, readonly gate, then the handler body.
// The order is not configurable per route.
func (a *API) pipeline(cfg RouteConfig, h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, routePathKey, cfg.RoutePath)
		r = r.WithContext(ctx)

		w.Header().Set(requestIDHeader, requestID)
		w.Header().Set(routePathHeader, cfg.RoutePath)

		// Mint the CSRF cookie on the first cookie-less response so the
		// token is already in place before the browser's first mutating
		// call.
		a.ensureCSRFCookie(w, r)

		// 1. Identity. Refresh is fail-safe: transient provider errors
		// leave the response untouched and yield a nil identity without
		// clearing anything.
		ident := a.refreshSession(w, r)
		if cfg.RequireAuth && ident == nil {
			writeError(w, ctx, http.StatusUnauthorized, codeUnauthenticated)
			return
		}

		// 2. CSRF for mutating methods on protected routes.
		if cfg.CSRFProtection && mutatingMethod(r.Method) {
			if !a.validCSRF(r) {
				a.security.logFailure(securityCSRFRejected, r, "missing or mismatched token")
				writeError(w, ctx, http.StatusForbidden, codeCSRFMismatch)
				return
			}
		}

		// 3. Rate limit keyed by caller identity (or IP) and route.
		if cfg.RateLimit {
			who := a.clientIPWithProxies(r)
			if ident != nil {
				who = ident.UserID
			}
			key := who + ":" + cfg.RoutePath
			if ok, retryAfter := a.limiter.Allow(key); !ok {
				a.security.logFailure(securityRateLimited, r, "over limit")
				w.Header().Set("Retry-After", retryAfterString(retryAfter))
				writeError(w, ctx, http.StatusTooManyRequests, codeRateLimited)
				return
			}
		}

		// 4. Readonly gate, independent of authn/authz outcome.
		mode := a.readModeContext(r, ident)
		if mode.Readonly && mutatingMethod(r.Method) && !cfg.ReadonlyExempt {
			writeError(w, ctx, http.StatusForbidden, codeReadOnly)
			return
		}

		// 5. Handler body. 6. Panics become a generic 500 carrying only
		// the request id; the cause stays in the log.
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.ErrorContext(ctx, "handler panic",
					"request_id", requestID,
					"route", cfg.RoutePath,
					"panic", rec,
					"stack", string(debug.Stack()))
				writeError(w, ctx, http.StatusInternalServerError, codeInternal)
			}
		}()

		h(w, r, &RequestContext{User: ident, RequestID: requestID, Mode: mode})
	}
}
