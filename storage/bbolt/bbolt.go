// Package bbolt implements the primary embedded storage.RawStore backend for
// GroveDB, built on go.etcd.io/bbolt. Bolt's single-writer ACID transactions
// and byte-ordered B+tree give the ordered, serializable semantics spec.md 5
// requires from the underlying KV engine "out of scope" collaborator,
// without requiring an external server.
package bbolt

import (
	bolt "go.etcd.io/bbolt"

	"github.com/dashpay/grovedb-sub006/storage"
)

// bucketName is the single bucket grovedb-sub006 stores every
// namespace-qualified key in. Namespace separation is already encoded into
// the byte key by storage.Context, so one bucket preserves a single global
// lexicographic order across namespaces within a subtree prefix, which is
// what RawIterator callers expect.
var bucketName = []byte("grove")

// Store wraps a *bolt.DB.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt-backed store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RawGet(key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *Store) RawPut(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

func (s *Store) RawDelete(key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
}

func (s *Store) RawBatch(ops []storage.RawOp) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, op := range ops {
			if op.Value == nil {
				if err := b.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) RawIterator(prefix []byte) storage.RawIterator {
	tx, err := s.db.Begin(false)
	if err != nil {
		return &errIterator{err: err}
	}
	c := tx.Bucket(bucketName).Cursor()
	return &iterator{tx: tx, cursor: c, prefix: prefix}
}

func (s *Store) BeginTx() (storage.RawTx, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &txWrapper{tx: tx}, nil
}

type iterator struct {
	tx     *bolt.Tx
	cursor *bolt.Cursor
	prefix []byte
	k, v   []byte
}

func (it *iterator) SeekToFirst() { it.k, it.v = it.cursor.Seek(it.prefix) }
func (it *iterator) SeekToLast() {
	// bbolt has no native "last key with prefix"; walk from the end of
	// the keyspace immediately following the prefix range.
	upper := append(append([]byte(nil), it.prefix...), 0xff)
	k, v := it.cursor.Seek(upper)
	if k == nil {
		it.k, it.v = it.cursor.Last()
	} else {
		it.k, it.v = it.cursor.Prev()
	}
}
func (it *iterator) Seek(key []byte)         { it.k, it.v = it.cursor.Seek(key) }
func (it *iterator) SeekForPrev(key []byte) {
	k, v := it.cursor.Seek(key)
	if k != nil && string(k) == string(key) {
		it.k, it.v = k, v
		return
	}
	it.k, it.v = it.cursor.Prev()
}
func (it *iterator) Next() { it.k, it.v = it.cursor.Next() }
func (it *iterator) Prev() { it.k, it.v = it.cursor.Prev() }
func (it *iterator) Valid() bool {
	return it.k != nil && storage.HasPrefix(it.k, it.prefix)
}
func (it *iterator) Key() []byte   { return it.k }
func (it *iterator) Value() []byte { return it.v }
func (it *iterator) Close()        { it.tx.Rollback() }

type errIterator struct{ err error }

func (e *errIterator) SeekToFirst()        {}
func (e *errIterator) SeekToLast()         {}
func (e *errIterator) Seek(key []byte)     {}
func (e *errIterator) SeekForPrev([]byte)  {}
func (e *errIterator) Next()               {}
func (e *errIterator) Prev()               {}
func (e *errIterator) Valid() bool         { return false }
func (e *errIterator) Key() []byte         { return nil }
func (e *errIterator) Value() []byte       { return nil }
func (e *errIterator) Close()              {}

type txWrapper struct {
	tx *bolt.Tx
}

func (t *txWrapper) RawGet(key []byte) ([]byte, bool, error) {
	v := t.tx.Bucket(bucketName).Get(key)
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (t *txWrapper) RawPut(key, value []byte) error {
	return t.tx.Bucket(bucketName).Put(key, value)
}

func (t *txWrapper) RawDelete(key []byte) error {
	return t.tx.Bucket(bucketName).Delete(key)
}

func (t *txWrapper) RawIterator(prefix []byte) storage.RawIterator {
	c := t.tx.Bucket(bucketName).Cursor()
	return &cursorOnlyIterator{cursor: c, prefix: prefix}
}

func (t *txWrapper) Commit() error   { return t.tx.Commit() }
func (t *txWrapper) Rollback() error { return t.tx.Rollback() }

// cursorOnlyIterator is used for iterators derived from an already-open
// transaction (no separate rollback-on-close needed).
type cursorOnlyIterator struct {
	cursor *bolt.Cursor
	prefix []byte
	k, v   []byte
}

func (it *cursorOnlyIterator) SeekToFirst() { it.k, it.v = it.cursor.Seek(it.prefix) }
func (it *cursorOnlyIterator) SeekToLast() {
	upper := append(append([]byte(nil), it.prefix...), 0xff)
	k, v := it.cursor.Seek(upper)
	if k == nil {
		it.k, it.v = it.cursor.Last()
	} else {
		it.k, it.v = it.cursor.Prev()
	}
}
func (it *cursorOnlyIterator) Seek(key []byte) { it.k, it.v = it.cursor.Seek(key) }
func (it *cursorOnlyIterator) SeekForPrev(key []byte) {
	k, v := it.cursor.Seek(key)
	if k != nil && string(k) == string(key) {
		it.k, it.v = k, v
		return
	}
	it.k, it.v = it.cursor.Prev()
}
func (it *cursorOnlyIterator) Next() { it.k, it.v = it.cursor.Next() }
func (it *cursorOnlyIterator) Prev() { it.k, it.v = it.cursor.Prev() }
func (it *cursorOnlyIterator) Valid() bool {
	return it.k != nil && storage.HasPrefix(it.k, it.prefix)
}
func (it *cursorOnlyIterator) Key() []byte   { return it.k }
func (it *cursorOnlyIterator) Value() []byte { return it.v }
func (it *cursorOnlyIterator) Close()        {}
