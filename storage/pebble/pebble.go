// Package pebble implements an alternate embedded storage.RawStore backend
// on top of github.com/cockroachdb/pebble, grounded on the teacher's
// db/pebble/pebble.go.
package pebble

import (
	"bytes"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"

	"github.com/dashpay/grovedb-sub006/storage"
)

// Store wraps a *pebble.DB.
type Store struct {
	db  *pebble.DB
	log *logrus.Logger
}

// Open opens (creating if absent) a pebble-backed store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: logrus.StandardLogger()}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RawGet(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

func (s *Store) RawPut(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

func (s *Store) RawDelete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

func (s *Store) RawBatch(ops []storage.RawOp) error {
	b := s.db.NewBatch()
	for _, op := range ops {
		var err error
		if op.Value == nil {
			err = b.Delete(op.Key, nil)
		} else {
			err = b.Set(op.Key, op.Value, nil)
		}
		if err != nil {
			s.log.WithError(err).Warn("pebble batch op failed")
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (s *Store) RawIterator(prefix []byte) storage.RawIterator {
	upper := append(append([]byte(nil), prefix...), 0xff)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return &errIterator{err: err}
	}
	return &iterator{it: it, prefix: prefix}
}

// BeginTx implements an isolated write overlay on top of a point-in-time
// snapshot: pebble has no multi-key ACID transaction primitive, so reads
// inside the transaction are served from (overlay, else snapshot) and writes
// are buffered until Commit flushes them as one pebble.Batch.
func (s *Store) BeginTx() (storage.RawTx, error) {
	snap := s.db.NewSnapshot()
	return &tx{
		db:      s.db,
		snap:    snap,
		overlay: make(map[string][]byte),
		deleted: make(map[string]bool),
	}, nil
}

type iterator struct {
	it     *pebble.Iterator
	prefix []byte
	valid  bool
	first  bool
}

func (i *iterator) SeekToFirst() { i.valid = i.it.First(); i.first = true }
func (i *iterator) SeekToLast()  { i.valid = i.it.Last() }
func (i *iterator) Seek(key []byte) { i.valid = i.it.SeekGE(key) }
func (i *iterator) SeekForPrev(key []byte) {
	i.valid = i.it.SeekLT(append(append([]byte(nil), key...), 0x00))
	if i.it.Valid() && bytes.Equal(i.it.Key(), key) {
		return
	}
}
func (i *iterator) Next() { i.valid = i.it.Next() }
func (i *iterator) Prev() { i.valid = i.it.Prev() }
func (i *iterator) Valid() bool {
	return i.valid && i.it.Valid() && bytes.HasPrefix(i.it.Key(), i.prefix)
}
func (i *iterator) Key() []byte   { return append([]byte(nil), i.it.Key()...) }
func (i *iterator) Value() []byte { return append([]byte(nil), i.it.Value()...) }
func (i *iterator) Close()        { _ = i.it.Close() }

type errIterator struct{ err error }

func (e *errIterator) SeekToFirst()       {}
func (e *errIterator) SeekToLast()        {}
func (e *errIterator) Seek(key []byte)    {}
func (e *errIterator) SeekForPrev([]byte) {}
func (e *errIterator) Next()              {}
func (e *errIterator) Prev()              {}
func (e *errIterator) Valid() bool        { return false }
func (e *errIterator) Key() []byte        { return nil }
func (e *errIterator) Value() []byte      { return nil }
func (e *errIterator) Close()             {}

type tx struct {
	db      *pebble.DB
	snap    *pebble.Snapshot
	overlay map[string][]byte
	deleted map[string]bool
}

func (t *tx) RawGet(key []byte) ([]byte, bool, error) {
	k := string(key)
	if t.deleted[k] {
		return nil, false, nil
	}
	if v, ok := t.overlay[k]; ok {
		return v, true, nil
	}
	v, closer, err := t.snap.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

func (t *tx) RawPut(key, value []byte) error {
	k := string(key)
	delete(t.deleted, k)
	t.overlay[k] = append([]byte(nil), value...)
	return nil
}

func (t *tx) RawDelete(key []byte) error {
	k := string(key)
	delete(t.overlay, k)
	t.deleted[k] = true
	return nil
}

func (t *tx) RawIterator(prefix []byte) storage.RawIterator {
	upper := append(append([]byte(nil), prefix...), 0xff)
	base, _ := t.snap.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	merged := map[string][]byte{}
	for base.First(); base.Valid(); base.Next() {
		merged[string(base.Key())] = append([]byte(nil), base.Value()...)
	}
	_ = base.Close()
	for k, v := range t.overlay {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	for k := range t.deleted {
		delete(merged, k)
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return &memIterator{keys: keys, values: merged, pos: -1, prefix: prefix}
}

func (t *tx) Commit() error {
	b := t.db.NewBatch()
	for k := range t.deleted {
		_ = b.Delete([]byte(k), nil)
	}
	for k, v := range t.overlay {
		_ = b.Set([]byte(k), v, nil)
	}
	defer t.snap.Close()
	return b.Commit(pebble.Sync)
}

func (t *tx) Rollback() error {
	return t.snap.Close()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

type memIterator struct {
	keys   []string
	values map[string][]byte
	pos    int
	prefix []byte
}

func (it *memIterator) SeekToFirst() { it.pos = 0 }
func (it *memIterator) SeekToLast()  { it.pos = len(it.keys) - 1 }
func (it *memIterator) Seek(key []byte) {
	for i, k := range it.keys {
		if k >= string(key) {
			it.pos = i
			return
		}
	}
	it.pos = len(it.keys)
}
func (it *memIterator) SeekForPrev(key []byte) {
	it.Seek(key)
	if it.pos >= len(it.keys) || it.keys[it.pos] != string(key) {
		it.pos--
	}
}
func (it *memIterator) Next() { it.pos++ }
func (it *memIterator) Prev() { it.pos-- }
func (it *memIterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys)
}
func (it *memIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIterator) Value() []byte { return it.values[it.keys[it.pos]] }
func (it *memIterator) Close()        {}
