package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillbooks/quillbooks/internal/uuid"
	"github.com/quillbooks/quillbooks/ledger"
	"github.com/quillbooks/quillbooks/notify"
	"github.com/quillbooks/quillbooks/storage"
)

// maxBodyBytes bounds request bodies; entry line sets are small.
const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, v any) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, err
	}
	return body, nil
}

// Me returns the caller's identity and mode context.
func (a *API) Me(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	writeJSON(w, http.StatusOK, MeResponse{
		UserID:   rc.User.UserID,
		Email:    rc.User.Email,
		Readonly: rc.Mode.Readonly,
		Livemode: rc.Mode.Livemode,
	})
}

// SetMode persists the live/test partition selection. The route is
// readonly-exempt: a demo session may still flip between partitions even
// though every other mutation is blocked.
func (a *API) SetMode(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req SetModeRequest
	if _, err := decodeJSON(r, &req); err != nil {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}

	a.writeModeCookies(w, r, req.Livemode, req.ActivePartitionID)

	resp := SetModeResponse{Livemode: req.Livemode}
	switch {
	case req.ActivePartitionID.Present && req.ActivePartitionID.Value != nil:
		resp.ActivePartitionID = *req.ActivePartitionID.Value
	case !req.ActivePartitionID.Present:
		resp.ActivePartitionID = rc.Mode.ActivePartitionID
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateOrganization creates a tenant root; the creator becomes its owner.
func (a *API) CreateOrganization(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req CreateOrganizationRequest
	if _, err := decodeJSON(r, &req); err != nil {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}
	if req.Name == "" || len(req.Name) > ledger.MaxNameLength {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}

	org := ledger.Organization{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.PutOrganization(org); err != nil {
		a.mapError(w, r, err)
		return
	}
	owner := ledger.Membership{
		OrganizationID: org.ID,
		UserID:         rc.User.UserID,
		Role:           ledger.RoleOwner,
		Status:         ledger.StatusActive,
		AddedAt:        time.Now().UTC(),
	}
	if err := a.store.PutMembership(owner); err != nil {
		a.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrganizationResponse{
		OrganizationID: org.ID,
		Name:           org.Name,
	})
}

// requireOrgRole loads the caller's membership on the organization and
// checks it against the allow-list. Both a missing organization and a
// missing membership answer not_found so organization IDs cannot be probed.
func (a *API) requireOrgRole(w http.ResponseWriter, r *http.Request, rc *RequestContext, orgID string, allowed ...ledger.MemberRole) *ledger.Membership {
	if _, err := a.store.GetOrganization(orgID); err != nil {
		a.mapError(w, r, err)
		return nil
	}
	m, err := a.store.GetMembership(orgID, rc.User.UserID)
	if err != nil || m.Status != ledger.StatusActive {
		writeError(w, r.Context(), http.StatusNotFound, codeNotFound)
		return nil
	}
	if !ledger.RoleAllowed(m.Role, allowed...) {
		writeError(w, r.Context(), http.StatusForbidden, codeAccessDenied)
		return nil
	}
	return m
}

// CreateLedger adds a ledger to an organization the caller administers.
func (a *API) CreateLedger(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	orgID := chi.URLParam(r, "orgID")
	if a.requireOrgRole(w, r, rc, orgID, ledger.RoleOwner, ledger.RoleAdmin) == nil {
		return
	}

	var req CreateLedgerRequest
	if _, err := decodeJSON(r, &req); err != nil {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}
	if req.Name == "" || len(req.Name) > ledger.MaxNameLength || req.Currency == "" {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}

	l := ledger.Ledger{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           req.Name,
		Currency:       req.Currency,
		Livemode:       req.Livemode,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.PutLedger(l); err != nil {
		a.mapError(w, r, err)
		return
	}

	a.audit.record(r, rc, ledger.AuditRecord{
		LedgerID:   l.ID,
		Action:     "ledger_created",
		EntityType: "ledger",
		EntityID:   l.ID,
	})

	writeJSON(w, http.StatusCreated, CreateLedgerResponse{
		LedgerID: l.ID,
		Name:     l.Name,
		Currency: l.Currency,
		Livemode: l.Livemode,
	})
}

// ListLedgers lists the organization's ledgers for any active member.
func (a *API) ListLedgers(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	orgID := chi.URLParam(r, "orgID")
	if a.requireOrgRole(w, r, rc, orgID, ledger.RoleOwner, ledger.RoleAdmin, ledger.RoleMember) == nil {
		return
	}

	ledgers, err := a.store.ListLedgers(orgID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	resp := ListLedgersResponse{Ledgers: make([]LedgerSummary, 0, len(ledgers))}
	for _, l := range ledgers {
		resp.Ledgers = append(resp.Ledgers, LedgerSummary{
			LedgerID: l.ID,
			Name:     l.Name,
			Currency: l.Currency,
			Livemode: l.Livemode,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddMember grants a user a role on the organization and sends the
// invitation email fire-and-forget.
func (a *API) AddMember(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	orgID := chi.URLParam(r, "orgID")
	if a.requireOrgRole(w, r, rc, orgID, ledger.RoleOwner, ledger.RoleAdmin) == nil {
		return
	}

	var req AddMemberRequest
	if _, err := decodeJSON(r, &req); err != nil {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}
	if req.UserID == "" || len(req.UserID) > ledger.MaxIDLength {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}
	switch req.Role {
	case ledger.RoleOwner, ledger.RoleAdmin, ledger.RoleMember:
	default:
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}

	m := ledger.Membership{
		OrganizationID: orgID,
		UserID:         req.UserID,
		Role:           req.Role,
		Status:         ledger.StatusActive,
		AddedAt:        time.Now().UTC(),
	}
	if err := a.store.PutMembership(m); err != nil {
		a.mapError(w, r, err)
		return
	}

	if req.Email != "" {
		go a.notifier.Send(detachedContext(r), notify.Message{
			To:      req.Email,
			Subject: "You have been added to an organization",
			Body:    fmt.Sprintf("You now have %s access.", req.Role),
		})
	}

	writeJSON(w, http.StatusCreated, AddMemberResponse{
		UserID: m.UserID,
		Role:   m.Role,
		Status: string(m.Status),
	})
}

// RecordEntry submits a double-entry record to the ledger engine on behalf
// of an authorized member, then appends the audit trail entry.
func (a *API) RecordEntry(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	ledgerID := chi.URLParam(r, "ledgerID")

	if _, err := a.resolver.ResolveAccess(r.Context(), rc.User.UserID, ledgerID); err != nil {
		a.mapError(w, r, err)
		return
	}
	l, err := a.store.GetLedger(ledgerID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	var req RecordEntryRequest
	body, err := decodeJSON(r, &req)
	if err != nil {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}
	if req.Reference == "" || len(req.Reference) > ledger.MaxIDLength || len(req.Lines) == 0 {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}

	params, err := json.Marshal(map[string]any{
		"description": req.Description,
		"lines":       json.RawMessage(req.Lines),
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	result, err := a.engine.Do(r.Context(), ledger.Action{
		Type:           "record_entry",
		LedgerID:       ledgerID,
		Livemode:       l.Livemode,
		IdempotencyKey: deriveIdempotencyKey("entry", ledgerID, req.Reference),
		Params:         params,
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	a.audit.record(r, rc, ledger.AuditRecord{
		LedgerID:     ledgerID,
		Action:       "entry_recorded",
		EntityType:   result.EntityType,
		EntityID:     result.EntityID,
		BodySnapshot: body,
	})

	writeJSON(w, http.StatusCreated, RecordEntryResponse{
		EntryID:   result.EntityID,
		RequestID: rc.RequestID,
	})
}

// ListEntries proxies an entry listing through the ledger engine.
func (a *API) ListEntries(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	ledgerID := chi.URLParam(r, "ledgerID")

	if _, err := a.resolver.ResolveAccess(r.Context(), rc.User.UserID, ledgerID); err != nil {
		a.mapError(w, r, err)
		return
	}
	l, err := a.store.GetLedger(ledgerID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	result, err := a.engine.Do(r.Context(), ledger.Action{
		Type:     "list_entries",
		LedgerID: ledgerID,
		Livemode: l.Livemode,
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(result.Result) > 0 {
		w.Write(result.Result)
	} else {
		w.Write([]byte(`{"entries":[]}`))
	}
}

// ListAudit returns the ledger's audit trail, newest first.
func (a *API) ListAudit(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	ledgerID := chi.URLParam(r, "ledgerID")

	if _, err := a.resolver.ResolveAccess(r.Context(), rc.User.UserID, ledgerID); err != nil {
		a.mapError(w, r, err)
		return
	}

	entries, err := a.store.ListAudit(ledgerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.mapError(w, r, err)
		return
	}
	resp := AuditListResponse{Records: make([]AuditRecordSummary, 0, len(entries))}
	for _, e := range entries {
		resp.Records = append(resp.Records, AuditRecordSummary{
			ID:         e.ID,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			ActorType:  string(e.ActorType),
			ActorID:    e.ActorID,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// IssuePayout moves money out, so it is gated beyond plain membership: the
// resolver supplies the role, and this handler's allow-list requires owner
// or admin. Payouts have no natural key, so the caller must supply an
// Idempotency-Key header rather than fall back to the timestamp key.
func (a *API) IssuePayout(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	ledgerID := chi.URLParam(r, "ledgerID")

	access, err := a.resolver.ResolveAccess(r.Context(), rc.User.UserID, ledgerID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if !ledger.RoleAllowed(access.Role, ledger.RoleOwner, ledger.RoleAdmin) {
		writeError(w, r.Context(), http.StatusForbidden, codeAccessDenied)
		return
	}
	l, err := a.store.GetLedger(ledgerID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	var req IssuePayoutRequest
	body, err := decodeJSON(r, &req)
	if err != nil {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}
	if req.AmountMinor <= 0 || req.Currency == "" || req.Destination == "" {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}
	if r.Header.Get(idempotencyKeyHeader) == "" {
		writeError(w, r.Context(), http.StatusBadRequest, codeValidation)
		return
	}

	result, err := a.engine.Do(r.Context(), ledger.Action{
		Type:           "issue_payout",
		LedgerID:       ledgerID,
		Livemode:       l.Livemode,
		IdempotencyKey: idempotencyKeyFromRequest(r, "payout", ledgerID, ""),
		Params:         body,
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	a.audit.record(r, rc, ledger.AuditRecord{
		LedgerID:     ledgerID,
		Action:       "payout_issued",
		EntityType:   result.EntityType,
		EntityID:     result.EntityID,
		BodySnapshot: body,
	})

	if req.NotifyEmail != "" {
		amount, ferr := notify.FormatAmount(req.AmountMinor, req.Currency)
		if ferr != nil {
			amount = fmt.Sprintf("%d %s (minor units)", req.AmountMinor, req.Currency)
		}
		go a.notifier.Send(detachedContext(r), notify.Message{
			To:      req.NotifyEmail,
			Subject: "Payout issued",
			Body:    fmt.Sprintf("A payout of %s was issued to %s.", amount, req.Destination),
		})
	}

	writeJSON(w, http.StatusCreated, IssuePayoutResponse{
		PayoutID:  result.EntityID,
		RequestID: rc.RequestID,
	})
}
