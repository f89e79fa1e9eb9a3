package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/api"
	"github.com/quillbooks/quillbooks/identity"
	"github.com/quillbooks/quillbooks/ledger"
	"github.com/quillbooks/quillbooks/storage/memory"
)

const sessionCookieName = "qb_session"

// stubProvider authenticates requests whose session cookie value appears in
// its identity table. Error modes simulate transient outages and definitive
// invalidation.
type stubProvider struct {
	mu         sync.Mutex
	identities map[string]*identity.Identity
	transient  bool
	setCookies []*http.Cookie
}

func newStubProvider() *stubProvider {
	return &stubProvider{identities: make(map[string]*identity.Identity)}
}

func (p *stubProvider) addSession(token string, ident *identity.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[token] = ident
}

func (p *stubProvider) setTransientFailure(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transient = on
}

func (p *stubProvider) Refresh(ctx context.Context, cookies []*http.Cookie) (*identity.RefreshResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transient {
		return nil, fmt.Errorf("%w: connection refused", identity.ErrUnavailable)
	}
	for _, ck := range cookies {
		if ck.Name == sessionCookieName {
			if ident, ok := p.identities[ck.Value]; ok {
				return &identity.RefreshResult{Identity: ident, SetCookies: p.setCookies}, nil
			}
		}
	}
	return nil, identity.ErrInvalidSession
}

// stubEngine records every action and returns canned results.
type stubEngine struct {
	mu      sync.Mutex
	actions []ledger.Action
	fail    error
}

func (e *stubEngine) Do(ctx context.Context, action ledger.Action) (*ledger.ActionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	e.actions = append(e.actions, action)
	return &ledger.ActionResult{
		EntityType: "entry",
		EntityID:   fmt.Sprintf("ent_%d", len(e.actions)),
	}, nil
}

func (e *stubEngine) calls() []ledger.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ledger.Action(nil), e.actions...)
}

type testEnv struct {
	srv      *httptest.Server
	api      *api.API
	provider *stubProvider
	engine   *stubEngine
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	return setupServerWithLimiter(t, nil)
}

func setupServerWithLimiter(t *testing.T, limiter api.RateLimiter) *testEnv {
	t.Helper()
	repo := memory.NewRepository()
	provider := newStubProvider()
	engine := &stubEngine{}
	var opts []api.Option
	if limiter != nil {
		opts = append(opts, api.WithRateLimiter(limiter))
	}
	a := api.New(repo, provider, engine, opts...)
	t.Cleanup(a.Close)

	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, api: a, provider: provider, engine: engine}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

// login registers a session with the stub provider and plants the session
// cookie in the client's jar.
func login(t *testing.T, env *testEnv, client *http.Client, ident *identity.Identity) {
	t.Helper()
	token := "sess-" + ident.UserID
	env.provider.addSession(token, ident)
	u, err := url.Parse(env.srv.URL)
	require.NoError(t, err)
	client.Jar.SetCookies(u, []*http.Cookie{{Name: sessionCookieName, Value: token}})
}

// primeCSRF makes one GET so the server mints the double-submit cookie,
// then returns its value for use as a header.
func primeCSRF(t *testing.T, env *testEnv, client *http.Client) string {
	t.Helper()
	resp, err := client.Get(env.srv.URL + "/api/v1/me")
	require.NoError(t, err)
	resp.Body.Close()

	u, err := url.Parse(env.srv.URL)
	require.NoError(t, err)
	for _, ck := range client.Jar.Cookies(u) {
		if ck.Name == "qb_csrf" {
			return ck.Value
		}
	}
	t.Fatal("csrf cookie was not minted")
	return ""
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// seedLedger creates an organization, an active membership for userID, and
// a ledger, directly through the store.
func seedLedger(t *testing.T, env *testEnv, userID string, role ledger.MemberRole) ledger.Ledger {
	t.Helper()
	store := env.api.Store()
	org := ledger.Organization{ID: "org-1", Name: "Acme", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.PutOrganization(org))
	if userID != "" {
		require.NoError(t, store.PutMembership(ledger.Membership{
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           role,
			Status:         ledger.StatusActive,
			AddedAt:        time.Now().UTC(),
		}))
	}
	l := ledger.Ledger{
		ID:             "ldg-1",
		OrganizationID: org.ID,
		Name:           "Main",
		Currency:       "USD",
		Livemode:       false,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.PutLedger(l))
	return l
}

func entryBody() map[string]any {
	return map[string]any{
		"reference":   "inv-2041",
		"description": "Invoice 2041",
		"lines": []map[string]any{
			{"account": "revenue", "credit_minor": 5000},
			{"account": "receivable", "debit_minor": 5000},
		},
	}
}

// Scenario A: unauthenticated GET to a requireAuth route.
func TestUnauthenticatedGetReturns401(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)

	resp, err := client.Get(env.srv.URL + "/api/v1/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "unauthenticated", body.Error)
	assert.NotEmpty(t, body.RequestID)
	assert.Empty(t, env.engine.calls(), "handler must not run")
}

// Scenario B: authenticated POST missing the CSRF header.
func TestMutatingPostWithoutCSRFHeaderReturns403(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)
	login(t, env, client, &identity.Identity{UserID: "u1"})
	seedLedger(t, env, "u1", ledger.RoleAdmin)
	primeCSRF(t, env, client)

	resp := doJSON(t, client, http.MethodPost, env.srv.URL+"/api/v1/ledgers/ldg-1/entries", entryBody(), nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "csrf_mismatch", body.Error)
	assert.Empty(t, env.engine.calls(), "handler must not run")
}

// Scenario C: fully authorized mutation runs the handler exactly once and
// leaves exactly one audit record on the ledger.
func TestAuthorizedEntryRecordsAuditExactlyOnce(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)
	login(t, env, client, &identity.Identity{UserID: "u1"})
	l := seedLedger(t, env, "u1", ledger.RoleAdmin)
	token := primeCSRF(t, env, client)

	resp := doJSON(t, client, http.MethodPost, env.srv.URL+"/api/v1/ledgers/"+l.ID+"/entries", entryBody(),
		map[string]string{"X-CSRF-Token": token})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[api.RecordEntryResponse](t, resp)
	assert.NotEmpty(t, created.EntryID)
	assert.NotEmpty(t, created.RequestID)
	require.Len(t, env.engine.calls(), 1)

	// The audit write is asynchronous; wait for the recorder to drain.
	require.Eventually(t, func() bool {
		entries, err := env.api.Store().ListAudit(l.ID)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := env.api.Store().ListAudit(l.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, l.ID, entries[0].LedgerID)
	assert.Equal(t, "entry_recorded", entries[0].Action)
	assert.Equal(t, "u1", entries[0].ActorID)
	assert.NotEmpty(t, entries[0].BodySnapshot)
}

// Scenario D: no membership on the ledger's organization. The resource is
// hidden, not admitted to exist.
func TestEntryWithoutMembershipIsHidden(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)
	login(t, env, client, &identity.Identity{UserID: "outsider"})
	l := seedLedger(t, env, "u1", ledger.RoleAdmin) // membership belongs to u1
	token := primeCSRF(t, env, client)

	resp := doJSON(t, client, http.MethodPost, env.srv.URL+"/api/v1/ledgers/"+l.ID+"/entries", entryBody(),
		map[string]string{"X-CSRF-Token": token})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "not_found", body.Error)
	assert.Empty(t, env.engine.calls())

	entries, _ := env.api.Store().ListAudit(l.ID)
	assert.Empty(t, entries, "denied requests must not leave audit records")
}

// Scenario E: readonly sessions get the distinct read_only code, not the
// generic authorization code.
func TestReadonlySessionBlocksMutations(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)
	login(t, env, client, &identity.Identity{UserID: "demo", Demo: true})
	l := seedLedger(t, env, "demo", ledger.RoleAdmin)
	token := primeCSRF(t, env, client)

	resp := doJSON(t, client, http.MethodPost, env.srv.URL+"/api/v1/ledgers/"+l.ID+"/entries", entryBody(),
		map[string]string{"X-CSRF-Token": token})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "read_only", body.Error)
	assert.Empty(t, env.engine.calls())
}

// The mode switch is readonly-exempt: demo sessions can still flip
// partitions.
func TestReadonlySessionMaySetMode(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)
	login(t, env, client, &identity.Identity{UserID: "demo", Demo: true})
	token := primeCSRF(t, env, client)

	resp := doJSON(t, client, http.MethodPost, env.srv.URL+"/api/v1/mode",
		map[string]any{"livemode": true}, map[string]string{"X-CSRF-Token": token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestEveryResponseCarriesRequestID(t *testing.T) {
	env := setupServer(t)
	client := newClient(t)

	resp, err := client.Get(env.srv.URL + "/api/v1/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "/me", resp.Header.Get("X-Route-Path"))
}
