package api

import (
	"encoding/json"
	"time"

	"github.com/quillbooks/quillbooks/ledger"
)

type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

type CreateOrganizationResponse struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
}

type CreateLedgerRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Livemode bool   `json:"livemode"`
}

type CreateLedgerResponse struct {
	LedgerID string `json:"ledger_id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Livemode bool   `json:"livemode"`
}

type ListLedgersResponse struct {
	Ledgers []LedgerSummary `json:"ledgers"`
}

type LedgerSummary struct {
	LedgerID string `json:"ledger_id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Livemode bool   `json:"livemode"`
}

type AddMemberRequest struct {
	UserID string            `json:"user_id"`
	Email  string            `json:"email"`
	Role   ledger.MemberRole `json:"role"`
}

type AddMemberResponse struct {
	UserID string            `json:"user_id"`
	Role   ledger.MemberRole `json:"role"`
	Status string            `json:"status"`
}

type RecordEntryRequest struct {
	// Reference is the client's natural key for the entry; it anchors the
	// idempotency key so retries deduplicate.
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Lines       json.RawMessage `json:"lines"`
}

type RecordEntryResponse struct {
	EntryID   string `json:"entry_id"`
	RequestID string `json:"request_id"`
}

type IssuePayoutRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

type IssuePayoutResponse struct {
	PayoutID  string `json:"payout_id"`
	RequestID string `json:"request_id"`
}

type SetModeRequest struct {
	Livemode          bool           `json:"livemode"`
	ActivePartitionID OptionalString `json:"active_partition_id"`
}

type SetModeResponse struct {
	Livemode          bool   `json:"livemode"`
	ActivePartitionID string `json:"active_partition_id,omitempty"`
}

type MeResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	Readonly bool   `json:"readonly"`
	Livemode bool   `json:"livemode"`
}

type AuditListResponse struct {
	Records []AuditRecordSummary `json:"records"`
}

type AuditRecordSummary struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	ActorType  string    `json:"actor_type"`
	ActorID    string    `json:"actor_id"`
	CreatedAt  time.Time `json:"created_at"`
}
