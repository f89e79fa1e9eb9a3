// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The records table uses a composite primary key (scope, record_type,
// record_id) that mirrors the key space used by the BBolt and in-memory
// backends. The payload is stored as JSONB so operational tooling can
// inspect membership and audit rows directly.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillbooks/quillbooks/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Put(scope, recordType, recordID string, record *storage.Record) error {
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO records (scope, record_type, record_id, ver, data, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, record_type, record_id)
		DO UPDATE SET ver = EXCLUDED.ver, data = EXCLUDED.data, version = EXCLUDED.version`,
		scope, recordType, recordID, record.Ver, []byte(record.Data), record.Version)
	return err
}

func (s *Store) Get(scope, recordType, recordID string) (*storage.Record, error) {
	var rec storage.Record
	var data []byte
	err := s.pool.QueryRow(context.Background(), `
		SELECT ver, data, version FROM records
		WHERE scope = $1 AND record_type = $2 AND record_id = $3`,
		scope, recordType, recordID).Scan(&rec.Ver, &data, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.Data = data
	return &rec, nil
}

func (s *Store) List(scope, recordType string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(), `
		SELECT record_id FROM records
		WHERE scope = $1 AND record_type = $2
		ORDER BY record_id`,
		scope, recordType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Delete(scope, recordType, recordID string) error {
	tag, err := s.pool.Exec(context.Background(), `
		DELETE FROM records
		WHERE scope = $1 AND record_type = $2 AND record_id = $3`,
		scope, recordType, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) PutCAS(scope, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := putCASInTx(ctx, tx, scope, recordType, recordID, expectedVersion, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func putCASInTx(ctx context.Context, tx pgx.Tx, scope, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	var current uint64
	err := tx.QueryRow(ctx, `
		SELECT version FROM records
		WHERE scope = $1 AND record_type = $2 AND record_id = $3
		FOR UPDATE`,
		scope, recordType, recordID).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if expectedVersion != 0 {
			return storage.ErrCASFailed
		}
	case err != nil:
		return err
	default:
		if current != expectedVersion {
			return storage.ErrCASFailed
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO records (scope, record_type, record_id, ver, data, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, record_type, record_id)
		DO UPDATE SET ver = EXCLUDED.ver, data = EXCLUDED.data, version = EXCLUDED.version`,
		scope, recordType, recordID, record.Ver, []byte(record.Data), expectedVersion+1)
	return err
}

// Batch executes fn inside a single database transaction.
func (s *Store) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgBatchTx{ctx: ctx, tx: tx, scope: scope}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgBatchTx struct {
	ctx   context.Context
	tx    pgx.Tx
	scope string
}

func (b *pgBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	_, err := b.tx.Exec(b.ctx, `
		INSERT INTO records (scope, record_type, record_id, ver, data, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, record_type, record_id)
		DO UPDATE SET ver = EXCLUDED.ver, data = EXCLUDED.data, version = EXCLUDED.version`,
		b.scope, recordType, recordID, record.Ver, []byte(record.Data), record.Version)
	return err
}

func (b *pgBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return putCASInTx(b.ctx, b.tx, b.scope, recordType, recordID, expectedVersion, record)
}

func (b *pgBatchTx) Delete(recordType, recordID string) error {
	tag, err := b.tx.Exec(b.ctx, `
		DELETE FROM records
		WHERE scope = $1 AND record_type = $2 AND record_id = $3`,
		b.scope, recordType, recordID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}
