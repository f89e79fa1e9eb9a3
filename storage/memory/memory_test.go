package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/storage"
)

func mustRecord(t *testing.T, v any) *storage.Record {
	t.Helper()
	rec, err := storage.NewRecord(v)
	require.NoError(t, err)
	return rec
}

func TestPutGetDelete(t *testing.T) {
	repo := NewRepository()
	rec := mustRecord(t, map[string]string{"name": "Acme"})

	require.NoError(t, repo.Put("org-1", "MEMBER", "u1", rec))

	got, err := repo.Get("org-1", "MEMBER", "u1")
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, "Acme", payload["name"])

	_, err = repo.Get("org-1", "MEMBER", "u2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.Get("org-2", "MEMBER", "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.Delete("org-1", "MEMBER", "u1"))
	_, err = repo.Get("org-1", "MEMBER", "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, repo.Delete("org-1", "MEMBER", "u1"), storage.ErrNotFound)
}

func TestListFiltersByRecordType(t *testing.T) {
	repo := NewRepository()
	require.NoError(t, repo.Put("ldg-1", "AUDIT", "a1", mustRecord(t, 1)))
	require.NoError(t, repo.Put("ldg-1", "AUDIT", "a2", mustRecord(t, 2)))
	require.NoError(t, repo.Put("ldg-1", "OTHER", "x1", mustRecord(t, 3)))

	ids, err := repo.List("ldg-1", "AUDIT")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids)

	ids, err = repo.List("ldg-missing", "AUDIT")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetReturnsCopy(t *testing.T) {
	repo := NewRepository()
	require.NoError(t, repo.Put("s", "T", "id", mustRecord(t, map[string]string{"k": "v"})))

	got, err := repo.Get("s", "T", "id")
	require.NoError(t, err)
	got.Data[0] = 'X'

	again, err := repo.Get("s", "T", "id")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again.Data[0], "mutating a returned record must not corrupt the store")
}

func TestPutCAS(t *testing.T) {
	repo := NewRepository()
	rec := mustRecord(t, "v1")

	require.NoError(t, repo.PutCAS("s", "T", "id", 0, rec))
	got, err := repo.Get("s", "T", "id")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)

	require.NoError(t, repo.PutCAS("s", "T", "id", 1, mustRecord(t, "v2")))
	got, err = repo.Get("s", "T", "id")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)

	assert.ErrorIs(t, repo.PutCAS("s", "T", "id", 1, mustRecord(t, "v3")), storage.ErrCASFailed)
	assert.ErrorIs(t, repo.PutCAS("s", "T", "new", 5, mustRecord(t, "v1")), storage.ErrCASFailed)
}

func TestBatchRollsBackOnError(t *testing.T) {
	repo := NewRepository()
	require.NoError(t, repo.Put("s", "T", "keep", mustRecord(t, "original")))

	err := repo.Batch("s", func(tx storage.BatchTx) error {
		if err := tx.Put("T", "new", mustRecord(t, "added")); err != nil {
			return err
		}
		if err := tx.Delete("T", "keep"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = repo.Get("s", "T", "new")
	assert.ErrorIs(t, err, storage.ErrNotFound, "batch writes must roll back")
	_, err = repo.Get("s", "T", "keep")
	assert.NoError(t, err, "batch deletes must roll back")
}

func TestBatchCommits(t *testing.T) {
	repo := NewRepository()
	err := repo.Batch("s", func(tx storage.BatchTx) error {
		if err := tx.Put("T", "a", mustRecord(t, 1)); err != nil {
			return err
		}
		return tx.Put("T", "b", mustRecord(t, 2))
	})
	require.NoError(t, err)

	ids, err := repo.List("s", "T")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
