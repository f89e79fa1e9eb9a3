// Package ledger provides the tenant domain model: organizations, their
// ledgers, organization-scoped memberships, and append-only audit records.
package ledger

import "time"

// MemberRole defines the access level of an organization member.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// MemberStatus represents the current status of an organization member.
type MemberStatus string

const (
	StatusActive  MemberStatus = "active"
	StatusInvited MemberStatus = "invited"
	StatusRevoked MemberStatus = "revoked"
)

// Organization is the tenant root. Every ledger belongs to exactly one
// organization, and memberships are keyed to it.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership grants a user a role within an organization. Access to any of
// the organization's ledgers requires StatusActive; revocation takes effect
// on the next request because memberships are re-read per request.
type Membership struct {
	OrganizationID string       `json:"organization_id"`
	UserID         string       `json:"user_id"`
	Role           MemberRole   `json:"role"`
	Status         MemberStatus `json:"status"`
	AddedAt        time.Time    `json:"added_at"`
	RevokedAt      time.Time    `json:"revoked_at,omitzero"`
}

// Ledger is a tenant resource. The double-entry bookkeeping itself lives in
// the external ledger engine; this record carries ownership and partition
// metadata only.
type Ledger struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Currency       string    `json:"currency"`
	Livemode       bool      `json:"livemode"`
	CreatedAt      time.Time `json:"created_at"`
}

// ActorType distinguishes who performed an audited action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAPIKey ActorType = "api_key"
	ActorSystem ActorType = "system"
)

// AuditRecord is an append-only trace of a successful mutation. Records are
// never mutated or deleted by this layer.
type AuditRecord struct {
	ID           string    `json:"id"`
	LedgerID     string    `json:"ledger_id"`
	Action       string    `json:"action"`
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	ActorType    ActorType `json:"actor_type"`
	ActorID      string    `json:"actor_id"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"user_agent"`
	BodySnapshot []byte    `json:"body_snapshot,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Access is the fact returned by the resolver: the caller's standing on the
// ledger's owning organization. Handlers layer their own role allow-lists on
// top; the resolver itself enforces no hierarchy.
type Access struct {
	OrganizationID string
	Role           MemberRole
}

// Validation constants.
const (
	MaxIDLength   = 256
	MaxNameLength = 200
)

// Record types for storage.
const (
	recordTypeOrg    = "ORG"
	recordTypeLedger = "LEDGER"
	recordTypeMember = "MEMBER"
	recordTypeAudit  = "AUDIT"
)

// scopeDirectory holds the globally addressable lookup records
// (organizations and ledgers); memberships live under the organization
// scope and audit records under the ledger scope.
const scopeDirectory = "directory"
