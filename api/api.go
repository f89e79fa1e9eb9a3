// Package api implements the HTTP surface of the service: the request
// authorization pipeline and the handlers it wraps.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/quillbooks/quillbooks/identity"
	"github.com/quillbooks/quillbooks/ledger"
	"github.com/quillbooks/quillbooks/notify"
	"github.com/quillbooks/quillbooks/storage"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	store          *ledger.Store
	resolver       *ledger.AccessResolver
	engine         ledger.Engine
	provider       identity.Provider
	limiter        RateLimiter
	audit          *auditRecorder
	security       *securityLogger
	notifier       notify.Sender
	logger         *slog.Logger
	canonicalHost  string
	trustedProxies []netip.Prefix

	webhookURL        string
	webhookAuthHeader string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithRateLimiter replaces the default in-process token bucket, e.g. with
// the Redis-backed limiter for multi-process deployments.
func WithRateLimiter(l RateLimiter) Option {
	return func(a *API) { a.limiter = l }
}

// WithNotifier sets the notification sender for lifecycle emails.
func WithNotifier(s notify.Sender) Option {
	return func(a *API) { a.notifier = s }
}

// WithCanonicalHost sets the public hostname used for the cookie-domain
// rewrite.
func WithCanonicalHost(host string) Option {
	return func(a *API) { a.canonicalHost = host }
}

// WithTrustedProxies sets the CIDR ranges whose proxy headers are honored
// when extracting the client IP.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.trustedProxies = prefixes }
}

// WithAuditWebhook mirrors audit records to an external sink.
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookURL = url
		a.webhookAuthHeader = authHeader
	}
}

// New creates a new API instance over the given repository and external
// collaborators.
func New(repo storage.Repository, provider identity.Provider, engine ledger.Engine, opts ...Option) *API {
	store := ledger.NewStore(repo)
	a := &API{
		store:    store,
		resolver: ledger.NewAccessResolver(store),
		engine:   engine,
		provider: provider,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.limiter == nil {
		a.limiter = NewTokenBucketLimiter(10, 20)
	}
	if a.notifier == nil {
		a.notifier = notify.NewLogSender(a.logger)
	}
	var webhook *auditWebhook
	if a.webhookURL != "" {
		webhook = newAuditWebhook(a.webhookURL, a.webhookAuthHeader)
	}
	a.audit = newAuditRecorder(store, a.logger, webhook)
	a.security = newSecurityLogger(a.logger)
	return a
}

// Close drains the audit queue and stops background workers.
func (a *API) Close() {
	a.audit.close()
}

// Store exposes the typed store for bootstrap tooling (seeding demo
// tenants); request handlers go through the resolver instead.
func (a *API) Store() *ledger.Store {
	return a.store
}

// Router returns a chi.Router with all API routes mounted. Every route
// names its full pipeline configuration at the mount site; nothing is
// defaulted implicitly.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/me", a.pipeline(RouteConfig{
		RequireAuth: true,
		RoutePath:   "/me",
	}, a.Me))

	r.Post("/mode", a.pipeline(RouteConfig{
		RequireAuth:    true,
		CSRFProtection: true,
		ReadonlyExempt: true,
		RoutePath:      "/mode",
	}, a.SetMode))

	r.Post("/organizations", a.pipeline(RouteConfig{
		RequireAuth:    true,
		CSRFProtection: true,
		RateLimit:      true,
		RoutePath:      "/organizations",
	}, a.CreateOrganization))

	r.Post("/organizations/{orgID}/ledgers", a.pipeline(RouteConfig{
		RequireAuth:    true,
		CSRFProtection: true,
		RoutePath:      "/organizations/{orgID}/ledgers",
	}, a.CreateLedger))

	r.Get("/organizations/{orgID}/ledgers", a.pipeline(RouteConfig{
		RequireAuth: true,
		RoutePath:   "/organizations/{orgID}/ledgers",
	}, a.ListLedgers))

	r.Post("/organizations/{orgID}/members", a.pipeline(RouteConfig{
		RequireAuth:    true,
		CSRFProtection: true,
		RoutePath:      "/organizations/{orgID}/members",
	}, a.AddMember))

	r.Post("/ledgers/{ledgerID}/entries", a.pipeline(RouteConfig{
		RequireAuth:    true,
		CSRFProtection: true,
		RateLimit:      true,
		RoutePath:      "/ledgers/{ledgerID}/entries",
	}, a.RecordEntry))

	r.Get("/ledgers/{ledgerID}/entries", a.pipeline(RouteConfig{
		RequireAuth: true,
		RoutePath:   "/ledgers/{ledgerID}/entries",
	}, a.ListEntries))

	r.Get("/ledgers/{ledgerID}/audit", a.pipeline(RouteConfig{
		RequireAuth: true,
		RoutePath:   "/ledgers/{ledgerID}/audit",
	}, a.ListAudit))

	r.Post("/ledgers/{ledgerID}/payouts", a.pipeline(RouteConfig{
		RequireAuth:    true,
		CSRFProtection: true,
		RateLimit:      true,
		RoutePath:      "/ledgers/{ledgerID}/payouts",
	}, a.IssuePayout))

	return r
}
