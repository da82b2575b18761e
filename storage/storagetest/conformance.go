// Package storagetest runs one behavioral conformance suite against any
// storage.RawStore implementation, grounded on the teacher's db/test
// generic-backend-suite idea (db/test/test.go), so every backend (memory,
// bbolt, pebble, leveldb, sql) is held to identical semantics.
package storagetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/storage"
)

// RunConformance exercises Get/Put/Delete/Batch/Iterator/Tx semantics
// against a freshly constructed store.
func RunConformance(t *testing.T, newStore func(t *testing.T) storage.RawStore) {
	t.Run("GetMissingReturnsNotFound", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.RawGet([]byte("missing"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutThenGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.RawPut([]byte("k1"), []byte("v1")))
		v, ok, err := s.RawGet([]byte("k1"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v1"), v)
	})

	t.Run("DeleteRemovesKey", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.RawPut([]byte("k1"), []byte("v1")))
		require.NoError(t, s.RawDelete([]byte("k1")))
		_, ok, err := s.RawGet([]byte("k1"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("BatchAppliesAllOps", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.RawPut([]byte("a"), []byte("1")))
		err := s.RawBatch([]storage.RawOp{
			{Key: []byte("a"), Value: nil},
			{Key: []byte("b"), Value: []byte("2")},
			{Key: []byte("c"), Value: []byte("3")},
		})
		require.NoError(t, err)
		_, ok, _ := s.RawGet([]byte("a"))
		assert.False(t, ok)
		v, ok, _ := s.RawGet([]byte("b"))
		assert.True(t, ok)
		assert.Equal(t, []byte("2"), v)
	})

	t.Run("IteratorOrdersLexicographicallyWithinPrefix", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.RawPut([]byte("p\x00b"), []byte("2")))
		require.NoError(t, s.RawPut([]byte("p\x00a"), []byte("1")))
		require.NoError(t, s.RawPut([]byte("p\x00c"), []byte("3")))
		require.NoError(t, s.RawPut([]byte("q\x00z"), []byte("zzz")))

		it := s.RawIterator([]byte("p\x00"))
		defer it.Close()
		var got []string
		for it.SeekToFirst(); it.Valid(); it.Next() {
			got = append(got, string(it.Value()))
		}
		assert.Equal(t, []string{"1", "2", "3"}, got)
	})

	t.Run("TransactionIsolatesUntilCommit", func(t *testing.T) {
		s := newStore(t)
		tx, err := s.BeginTx()
		if err == storage.ErrTransactionsNotSupported {
			t.Skip("backend does not support transactions")
		}
		require.NoError(t, err)
		require.NoError(t, tx.RawPut([]byte("tx-key"), []byte("v")))

		_, ok, _ := s.RawGet([]byte("tx-key"))
		assert.False(t, ok, "uncommitted write must not be visible outside the transaction")

		require.NoError(t, tx.Commit())
		v, ok, _ := s.RawGet([]byte("tx-key"))
		require.True(t, ok)
		assert.Equal(t, []byte("v"), v)
	})

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		s := newStore(t)
		tx, err := s.BeginTx()
		if err == storage.ErrTransactionsNotSupported {
			t.Skip("backend does not support transactions")
		}
		require.NoError(t, err)
		require.NoError(t, tx.RawPut([]byte("rollback-key"), []byte("v")))
		require.NoError(t, tx.Rollback())

		_, ok, _ := s.RawGet([]byte("rollback-key"))
		assert.False(t, ok)
	})
}
