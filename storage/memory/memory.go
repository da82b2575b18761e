// Package memory implements an in-memory storage.RawStore, the default
// backend for tests and examples. Grounded on the teacher's
// db/memory/memory.go KvMap-backed Storage.
package memory

import (
	"bytes"
	"sort"
	"sync"

	"github.com/dashpay/grovedb-sub006/storage"
)

// Store is a sorted in-memory key-value store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) RawGet(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) RawPut(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.data[string(key)] = v
	return nil
}

func (s *Store) RawDelete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

func (s *Store) RawBatch(ops []storage.RawOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Value == nil {
			delete(s.data, string(op.Key))
			continue
		}
		v := make([]byte, len(op.Value))
		copy(v, op.Value)
		s.data[string(op.Key)] = v
	}
	return nil
}

func (s *Store) RawIterator(prefix []byte) storage.RawIterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = s.data[k]
	}
	return &iterator{keys: keys, values: snapshot, pos: -1}
}

// BeginTx returns a simple copy-on-write transaction: writes are buffered in
// the transaction and only merged into the store on Commit. This gives the
// single-writer serializable semantics spec.md 5 expects without requiring
// an external engine.
func (s *Store) BeginTx() (storage.RawTx, error) {
	s.mu.RLock()
	base := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		base[k] = v
	}
	s.mu.RUnlock()
	return &tx{store: s, base: base, overlay: make(map[string][]byte), deleted: make(map[string]bool)}, nil
}

func (s *Store) Close() error { return nil }

type iterator struct {
	keys   []string
	values map[string][]byte
	pos    int
}

func (it *iterator) SeekToFirst() { it.pos = 0 }
func (it *iterator) SeekToLast()  { it.pos = len(it.keys) - 1 }

func (it *iterator) Seek(key []byte) {
	it.pos = sort.SearchStrings(it.keys, string(key))
}

func (it *iterator) SeekForPrev(key []byte) {
	i := sort.SearchStrings(it.keys, string(key))
	if i < len(it.keys) && it.keys[i] == string(key) {
		it.pos = i
		return
	}
	it.pos = i - 1
}

func (it *iterator) Next() { it.pos++ }
func (it *iterator) Prev() { it.pos-- }

func (it *iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys)
}

func (it *iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return []byte(it.keys[it.pos])
}

func (it *iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.values[it.keys[it.pos]]
}

func (it *iterator) Close() {}

type tx struct {
	store   *Store
	base    map[string][]byte
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
	if v, ok := t.base[k]; ok {
		return v, true, nil
	}
	return nil, false, nil
}

func (t *tx) RawPut(key, value []byte) error {
	k := string(key)
	delete(t.deleted, k)
	v := make([]byte, len(value))
	copy(v, value)
	t.overlay[k] = v
	return nil
}

func (t *tx) RawDelete(key []byte) error {
	k := string(key)
	delete(t.overlay, k)
	t.deleted[k] = true
	return nil
}

func (t *tx) RawIterator(prefix []byte) storage.RawIterator {
	merged := make(map[string][]byte, len(t.base)+len(t.overlay))
	for k, v := range t.base {
		merged[k] = v
	}
	for k, v := range t.overlay {
		merged[k] = v
	}
	for k := range t.deleted {
		delete(merged, k)
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &iterator{keys: keys, values: merged, pos: -1}
}

func (t *tx) Commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for k := range t.deleted {
		delete(t.store.data, k)
	}
	for k, v := range t.overlay {
		t.store.data[k] = v
	}
	return nil
}

func (t *tx) Rollback() error { return nil }
