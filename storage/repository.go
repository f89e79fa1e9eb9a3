// Package storage provides the storage abstraction layer for tenant-scoped
// JSON records: organizations, ledgers, memberships, and audit entries.
package storage

import (
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrScopeNotFound is returned when the scope (tenant partition) does not exist.
var ErrScopeNotFound = errors.New("scope not found")

// ErrCASFailed is returned when a compare-and-swap version check fails.
var ErrCASFailed = errors.New("CAS version mismatch")

// Record is a versioned JSON document. Version supports optimistic
// concurrency via PutCAS; 0 means "never written".
type Record struct {
	Ver     int             `json:"ver"`
	Data    json.RawMessage `json:"data"`
	Version uint64          `json:"version,omitempty"`
}

// NewRecord marshals v into a Record at the current schema version.
func NewRecord(v any) (*Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Record{Ver: 1, Data: data}, nil
}

// Decode unmarshals the record payload into v.
func (r *Record) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// BatchTx provides Put, PutCAS and Delete within an atomic transaction.
// The scope is fixed for the batch, so methods don't require it.
type BatchTx interface {
	Put(recordType string, recordID string, record *Record) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, record *Record) error
	Delete(recordType string, recordID string) error
}

// Repository defines the interface for scoped record storage. Scope is the
// partition key: an organization ID for membership records, a ledger ID for
// audit records, or the shared directory scope for lookup records.
type Repository interface {
	Put(scope string, recordType string, recordID string, record *Record) error
	Get(scope string, recordType string, recordID string) (*Record, error)
	List(scope string, recordType string) ([]string, error)
	Delete(scope string, recordType string, recordID string) error
	PutCAS(scope string, recordType string, recordID string, expectedVersion uint64, record *Record) error
	Batch(scope string, fn func(tx BatchTx) error) error
}
