// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/quillbooks/quillbooks/storage"
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getBucket(tx *bbolt.Tx, scope string) (*bbolt.Bucket, error) {
	b, err := tx.CreateBucketIfNotExists([]byte(scope))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func makeKey(recordType, recordID string) []byte {
	return []byte(recordType + ":" + recordID)
}

func (s *Store) Put(scope, recordType, recordID string, record *storage.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.getBucket(tx, scope)
		if err != nil {
			return err
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(makeKey(recordType, recordID), data)
	})
}

func (s *Store) Get(scope, recordType, recordID string) (*storage.Record, error) {
	var record storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return fmt.Errorf("%s: %w", scope, storage.ErrNotFound)
		}
		data := b.Get(makeKey(recordType, recordID))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) List(scope, recordType string) ([]string, error) {
	var ids []string
	prefix := []byte(recordType + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

func (s *Store) Delete(scope, recordType, recordID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return fmt.Errorf("%s: %w", scope, storage.ErrNotFound)
		}
		key := makeKey(recordType, recordID)
		if b.Get(key) == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
		}
		return b.Delete(key)
	})
}

func putCASInBucket(b *bbolt.Bucket, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	key := makeKey(recordType, recordID)
	existingData := b.Get(key)

	if existingData == nil {
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
	} else {
		var existing storage.Record
		if err := json.Unmarshal(existingData, &existing); err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return storage.ErrCASFailed
		}
	}

	next := *record
	next.Version = expectedVersion + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (s *Store) PutCAS(scope, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.getBucket(tx, scope)
		if err != nil {
			return err
		}
		return putCASInBucket(b, recordType, recordID, expectedVersion, record)
	})
}

// Batch executes fn within a single BBolt update transaction; BBolt rolls the
// whole transaction back if fn returns an error.
func (s *Store) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.getBucket(tx, scope)
		if err != nil {
			return err
		}
		return fn(&bboltBatchTx{bucket: b})
	})
}

type bboltBatchTx struct {
	bucket *bbolt.Bucket
}

func (tx *bboltBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return tx.bucket.Put(makeKey(recordType, recordID), data)
}

func (tx *bboltBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return putCASInBucket(tx.bucket, recordType, recordID, expectedVersion, record)
}

func (tx *bboltBatchTx) Delete(recordType, recordID string) error {
	key := makeKey(recordType, recordID)
	if tx.bucket.Get(key) == nil {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return tx.bucket.Delete(key)
}
