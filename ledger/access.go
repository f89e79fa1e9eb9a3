package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillbooks/quillbooks/storage"
)

// AccessResolver maps (user, ledger) to the caller's organization standing.
//
// Resolution is evaluated on every request with no caching: a revoked
// membership must take effect on the very next request. The resolver
// supplies the fact (org, role); handlers needing a stronger role apply
// their own allow-list on top.
type AccessResolver struct {
	store *Store
}

// NewAccessResolver returns a resolver over the given store.
func NewAccessResolver(store *Store) *AccessResolver {
	return &AccessResolver{store: store}
}

// ResolveAccess looks up the ledger's owning organization and the caller's
// membership row there. A missing ledger, a missing membership row, or any
// status other than active all yield ErrAccessDenied — authentication
// validity alone never grants access.
func (r *AccessResolver) ResolveAccess(ctx context.Context, userID, ledgerID string) (*Access, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" || ledgerID == "" {
		return nil, ErrAccessDenied
	}

	l, err := r.store.GetLedger(ledgerID)
	if err != nil {
		if errors.Is(err, ErrLedgerNotFound) {
			return nil, fmt.Errorf("ledger %s: %w", ledgerID, ErrAccessDenied)
		}
		return nil, err
	}

	m, err := r.store.GetMembership(l.OrganizationID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no membership for user on organization %s: %w", l.OrganizationID, ErrAccessDenied)
		}
		return nil, err
	}
	if m.Status != StatusActive {
		return nil, fmt.Errorf("membership status %s: %w", m.Status, ErrAccessDenied)
	}

	return &Access{OrganizationID: l.OrganizationID, Role: m.Role}, nil
}

// RoleAllowed reports whether role appears in the allow-list. Used by
// handlers that gate privileged operations (payout issuance) beyond plain
// membership.
func RoleAllowed(role MemberRole, allowed ...MemberRole) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
