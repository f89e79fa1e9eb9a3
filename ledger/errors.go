package ledger

import "errors"

var (
	// ErrAccessDenied indicates the caller has no active membership on the
	// ledger's owning organization.
	ErrAccessDenied = errors.New("access denied")
	// ErrLedgerNotFound indicates the ledger does not exist. Callers that
	// must not leak resource existence map both this and ErrAccessDenied
	// to the same not-found response.
	ErrLedgerNotFound = errors.New("ledger not found")
	// ErrOrganizationNotFound indicates the organization does not exist.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrEngineUnavailable indicates the external ledger engine could not
	// be reached or answered with a transient failure.
	ErrEngineUnavailable = errors.New("ledger engine unavailable")
	// ErrEngineRejected indicates the ledger engine definitively refused
	// the action.
	ErrEngineRejected = errors.New("ledger engine rejected action")
)
