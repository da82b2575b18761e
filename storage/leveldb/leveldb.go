// Package leveldb implements an alternate embedded storage.RawStore backend
// on top of github.com/syndtr/goleveldb, grounded on the teacher's
// db/leveldb/leveldb.go.
package leveldb

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dashpay/grovedb-sub006/storage"
)

// Store wraps a *leveldb.DB.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a leveldb-backed store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RawGet(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) RawPut(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *Store) RawDelete(key []byte) error {
	return s.db.Delete(key, nil)
}

func (s *Store) RawBatch(ops []storage.RawOp) error {
	b := new(leveldb.Batch)
	for _, op := range ops {
		if op.Value == nil {
			b.Delete(op.Key)
			continue
		}
		b.Put(op.Key, op.Value)
	}
	return s.db.Write(b, nil)
}

func (s *Store) RawIterator(prefix []byte) storage.RawIterator {
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	return &iter{it: it, prefix: prefix}
}

// BeginTx uses goleveldb's native *leveldb.Transaction, which already gives
// isolated reads/writes until Commit/Discard — no overlay needed here.
func (s *Store) BeginTx() (storage.RawTx, error) {
	t, err := s.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &tx{t: t}, nil
}

type iter struct {
	it     iterator.Iterator
	prefix []byte
}

func (i *iter) SeekToFirst() { i.it.First() }
func (i *iter) SeekToLast()  { i.it.Last() }
func (i *iter) Seek(key []byte) { i.it.Seek(key) }
func (i *iter) SeekForPrev(key []byte) {
	if i.it.Seek(key) && bytes.Equal(i.it.Key(), key) {
		return
	}
	i.it.Prev()
}
func (i *iter) Next()       { i.it.Next() }
func (i *iter) Prev()       { i.it.Prev() }
func (i *iter) Valid() bool { return i.it.Valid() }
func (i *iter) Key() []byte {
	return append([]byte(nil), i.it.Key()...)
}
func (i *iter) Value() []byte {
	return append([]byte(nil), i.it.Value()...)
}
func (i *iter) Close() { i.it.Release() }

type tx struct {
	t *leveldb.Transaction
}

func (t *tx) RawGet(key []byte) ([]byte, bool, error) {
	v, err := t.t.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (t *tx) RawPut(key, value []byte) error    { return t.t.Put(key, value, nil) }
func (t *tx) RawDelete(key []byte) error        { return t.t.Delete(key, nil) }

func (t *tx) RawIterator(prefix []byte) storage.RawIterator {
	it := t.t.NewIterator(util.BytesPrefix(prefix), nil)
	return &iter{it: it, prefix: prefix}
}

func (t *tx) Commit() error   { return t.t.Commit() }
func (t *tx) Rollback() error { t.t.Discard(); return nil }
