// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"sync"

	"github.com/quillbooks/quillbooks/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Record
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Record)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func cloneRecord(rec *storage.Record) *storage.Record {
	if rec == nil {
		return nil
	}
	return &storage.Record{
		Ver:     rec.Ver,
		Data:    append([]byte(nil), rec.Data...),
		Version: rec.Version,
	}
}

func (r *Repository) Put(scope, recordType, recordID string, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(scope, recordType, recordID, record)
}

func (r *Repository) putLocked(scope, recordType, recordID string, record *storage.Record) error {
	if _, ok := r.data[scope]; !ok {
		r.data[scope] = make(map[string]*storage.Record)
	}
	r.data[scope][makeKey(recordType, recordID)] = cloneRecord(record)
	return nil
}

func (r *Repository) Get(scope, recordType, recordID string) (*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(scope, recordType, recordID)
}

func (r *Repository) getLocked(scope, recordType, recordID string) (*storage.Record, error) {
	k := makeKey(recordType, recordID)
	scopeData, ok := r.data[scope]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec, ok := scopeData[k]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *Repository) List(scope, recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	prefix := recordType + ":"
	for k := range r.data[scope] {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			ids = append(ids, k[len(prefix):])
		}
	}
	return ids, nil
}

func (r *Repository) Delete(scope, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(scope, recordType, recordID)
}

func (r *Repository) deleteLocked(scope, recordType, recordID string) error {
	k := makeKey(recordType, recordID)
	scopeData, ok := r.data[scope]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := scopeData[k]; !ok {
		return storage.ErrNotFound
	}
	delete(scopeData, k)
	return nil
}

func (r *Repository) PutCAS(scope, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putCASLocked(scope, recordType, recordID, expectedVersion, record)
}

func (r *Repository) putCASLocked(scope, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	existing, err := r.getLocked(scope, recordType, recordID)
	if err != nil {
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
		rec := cloneRecord(record)
		rec.Version = 1
		return r.putLocked(scope, recordType, recordID, rec)
	}
	if existing.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	rec := cloneRecord(record)
	rec.Version = expectedVersion + 1
	return r.putLocked(scope, recordType, recordID, rec)
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (r *Repository) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshotScope(scope)

	tx := &memoryBatchTx{repo: r, scope: scope}
	if err := fn(tx); err != nil {
		r.restoreScope(scope, snapshot)
		return err
	}
	return nil
}

func (r *Repository) snapshotScope(scope string) map[string]*storage.Record {
	original, ok := r.data[scope]
	if !ok {
		return nil
	}
	cp := make(map[string]*storage.Record, len(original))
	for k, v := range original {
		cp[k] = cloneRecord(v)
	}
	return cp
}

func (r *Repository) restoreScope(scope string, snapshot map[string]*storage.Record) {
	if snapshot == nil {
		delete(r.data, scope)
	} else {
		r.data[scope] = snapshot
	}
}

type memoryBatchTx struct {
	repo  *Repository
	scope string
}

func (tx *memoryBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	return tx.repo.putLocked(tx.scope, recordType, recordID, record)
}

func (tx *memoryBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return tx.repo.putCASLocked(tx.scope, recordType, recordID, expectedVersion, record)
}

func (tx *memoryBatchTx) Delete(recordType, recordID string) error {
	return tx.repo.deleteLocked(tx.scope, recordType, recordID)
}
