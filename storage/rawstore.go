package storage

import "errors"

// ErrNotFound is returned by RawStore.RawGet when the key is absent,
// matching the teacher's db.ErrNotFound sentinel.
var ErrNotFound = errors.New("storage: key not found")

// ErrTransactionsNotSupported is the error a backend that does not implement
// BeginTx returns from it.
var ErrTransactionsNotSupported = errors.New("storage: transactions not supported by this backend")

// RawOp is one mutation in a batch handed to a backend for atomic commit. A
// nil Value means delete.
type RawOp struct {
	Key   []byte
	Value []byte
}

// RawIterator walks a backend's keys in lexicographic order, restricted to
// keys sharing a fixed prefix. Implementations return keys/values with the
// prefix stripped already handled by the Context wrapper, not the raw
// backend — RawIterator deals in fully-qualified keys.
type RawIterator interface {
	SeekToFirst()
	SeekToLast()
	Seek(key []byte)
	SeekForPrev(key []byte)
	Next()
	Prev()
	Valid() bool
	Key() []byte
	Value() []byte
	Close()
}

// RawTx is a single backend transaction. Contexts built against a RawTx see
// their own writes; nothing is visible to other transactions until Commit.
type RawTx interface {
	RawGet(key []byte) ([]byte, bool, error)
	RawPut(key, value []byte) error
	RawDelete(key []byte) error
	RawIterator(prefix []byte) RawIterator
	Commit() error
	Rollback() error
}

// RawStore is the minimal interface a concrete engine (bbolt, pebble,
// leveldb, sqlite, in-memory map) must satisfy to back a storage.Context.
// All key-space namespacing and StorageBatch bookkeeping is handled once, in
// this package, on top of RawStore — backends never see Namespace or
// subtree prefixes, only fully-qualified byte keys.
type RawStore interface {
	RawGet(key []byte) ([]byte, bool, error)
	RawPut(key, value []byte) error
	RawDelete(key []byte) error
	// RawBatch applies ops atomically; a failure leaves the store
	// unchanged.
	RawBatch(ops []RawOp) error
	RawIterator(prefix []byte) RawIterator
	BeginTx() (RawTx, error)
	Close() error
}
