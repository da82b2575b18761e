package storage

import (
	"bytes"

	"github.com/dashpay/grovedb-sub006/cost"
)

// PutOptions carries the optional hints spec.md 4.2 allows on a put: a
// children-sizes hint (used by cost estimation to price a subtree marker
// without loading the child) and a caller-supplied cost override (used by
// Merk's apply_with_specialized_costs).
type PutOptions struct {
	ChildSizesHint *ChildSizesHint
	CostOverride   *cost.OperationCost
}

// ChildSizesHint lets a caller price a Put without this package needing to
// understand Element internals.
type ChildSizesHint struct {
	KeySize   uint32
	ValueSize uint32
}

// DeleteOptions carries the optional per-KV cost override spec.md 4.2 allows
// on a delete, plus the epoch-sectioning callback (spec.md 4.3 step 7).
type DeleteOptions struct {
	CostOverride        *cost.OperationCost
	SectionRemovalBytes func(key []byte, totalRemoved uint32) cost.RemovedBytes
}

// Context is a prefixed, namespace-aware view over a RawStore: exactly the
// four-namespace key-value surface spec.md 4.2 specifies. Every Context
// shares an underlying RawStore (and, when transactional, a RawTx) with
// every other Context opened at a different prefix, so writes from many
// subtrees can be collected into one StorageBatch and committed once.
type Context struct {
	store  RawStore
	tx     RawTx // nil for non-transactional contexts
	prefix []byte
}

// NewContext builds a non-transactional Context rooted at prefix.
func NewContext(store RawStore, prefix []byte) *Context {
	return &Context{store: store, prefix: append([]byte(nil), prefix...)}
}

// NewTransactionalContext builds a Context whose reads/writes go through tx.
func NewTransactionalContext(store RawStore, tx RawTx, prefix []byte) *Context {
	return &Context{store: store, tx: tx, prefix: append([]byte(nil), prefix...)}
}

// IsTransactional reports whether this context is bound to a transaction.
func (c *Context) IsTransactional() bool { return c.tx != nil }

// Prefix returns the subtree prefix this context is rooted at.
func (c *Context) Prefix() []byte { return c.prefix }

func (c *Context) fullKey(ns Namespace, key []byte) []byte {
	out := make([]byte, 0, len(c.prefix)+1+len(key))
	out = append(out, c.prefix...)
	out = append(out, byte(ns))
	out = append(out, key...)
	return out
}

func (c *Context) rawGet(key []byte) ([]byte, bool, error) {
	if c.tx != nil {
		return c.tx.RawGet(key)
	}
	return c.store.RawGet(key)
}

func (c *Context) rawPut(key, value []byte) error {
	if c.tx != nil {
		return c.tx.RawPut(key, value)
	}
	return c.store.RawPut(key, value)
}

func (c *Context) rawDelete(key []byte) error {
	if c.tx != nil {
		return c.tx.RawDelete(key)
	}
	return c.store.RawDelete(key)
}

// Get retrieves a value, returning (nil, false) via ErrNotFound semantics
// folded into the cost.Result — callers check Result.Err == storage.ErrNotFound.
func (c *Context) Get(ns Namespace, key []byte) cost.Result[[]byte] {
	fk := c.fullKey(ns, key)
	v, ok, err := c.rawGet(fk)
	opCost := cost.OperationCost{SeekCount: 1}
	if err != nil {
		return cost.ErrResult[[]byte](err, opCost)
	}
	if !ok {
		return cost.ErrResult[[]byte](ErrNotFound, opCost)
	}
	opCost.StorageLoadedBytes = uint64(len(v))
	return cost.Ok(v, opCost)
}

// Put writes key/value, pricing the write as added bytes (new key) or
// replaced bytes (existing key, tracked via an extra seek), matching the
// storage-cost pricer contract of spec.md 4.3.
func (c *Context) Put(ns Namespace, key, value []byte, opts *PutOptions) cost.Result[struct{}] {
	if opts != nil && opts.CostOverride != nil {
		fk := c.fullKey(ns, key)
		if err := c.rawPut(fk, value); err != nil {
			return cost.ErrResult[struct{}](err, *opts.CostOverride)
		}
		return cost.Ok(struct{}{}, *opts.CostOverride)
	}

	fk := c.fullKey(ns, key)
	existing, existed, err := c.rawGet(fk)
	opCost := cost.OperationCost{SeekCount: 1}
	if err != nil {
		return cost.ErrResult[struct{}](err, opCost)
	}
	if existed {
		opCost.StorageLoadedBytes = uint64(len(existing))
	}
	if err := c.rawPut(fk, value); err != nil {
		return cost.ErrResult[struct{}](err, opCost)
	}
	written := uint32(len(key) + len(value))
	if existed {
		opCost.StorageCost.ReplacedBytes = written
	} else {
		opCost.StorageCost.AddedBytes = written
	}
	return cost.Ok(struct{}{}, opCost)
}

// Delete removes key, pricing the removed bytes via opts.SectionRemovalBytes
// if supplied (spec.md 4.3 step 7), otherwise as a flat BasicStorageRemoval.
func (c *Context) Delete(ns Namespace, key []byte, opts *DeleteOptions) cost.Result[struct{}] {
	fk := c.fullKey(ns, key)
	if opts != nil && opts.CostOverride != nil {
		if err := c.rawDelete(fk); err != nil {
			return cost.ErrResult[struct{}](err, *opts.CostOverride)
		}
		return cost.Ok(struct{}{}, *opts.CostOverride)
	}

	existing, existed, err := c.rawGet(fk)
	opCost := cost.OperationCost{SeekCount: 1}
	if err != nil {
		return cost.ErrResult[struct{}](err, opCost)
	}
	if !existed {
		return cost.Ok(struct{}{}, opCost)
	}
	if err := c.rawDelete(fk); err != nil {
		return cost.ErrResult[struct{}](err, opCost)
	}
	removed := uint32(len(key) + len(existing))
	if opts != nil && opts.SectionRemovalBytes != nil {
		opCost.StorageCost.RemovedBytes = opts.SectionRemovalBytes(key, removed)
	} else {
		opCost.StorageCost.RemovedBytes = cost.BasicStorageRemoval(removed)
	}
	return cost.Ok(struct{}{}, opCost)
}

// RawIterator returns a lexicographic iterator over this context's ns
// namespace, already scoped to the subtree's prefix.
func (c *Context) RawIterator(ns Namespace) RawIterator {
	nsPrefix := append(append([]byte(nil), c.prefix...), byte(ns))
	var it RawIterator
	if c.tx != nil {
		it = c.tx.RawIterator(nsPrefix)
	} else {
		it = c.store.RawIterator(nsPrefix)
	}
	return &strippingIterator{inner: it, prefixLen: len(nsPrefix)}
}

// strippingIterator re-exposes Key() with the namespace-qualified prefix
// stripped back off, so callers only ever see the caller-supplied key.
type strippingIterator struct {
	inner     RawIterator
	prefixLen int
}

func (s *strippingIterator) SeekToFirst()        { s.inner.SeekToFirst() }
func (s *strippingIterator) SeekToLast()         { s.inner.SeekToLast() }
func (s *strippingIterator) Seek(key []byte)     { s.inner.Seek(key) }
func (s *strippingIterator) SeekForPrev(k []byte) { s.inner.SeekForPrev(k) }
func (s *strippingIterator) Next()               { s.inner.Next() }
func (s *strippingIterator) Prev()               { s.inner.Prev() }
func (s *strippingIterator) Valid() bool         { return s.inner.Valid() }
func (s *strippingIterator) Value() []byte       { return s.inner.Value() }
func (s *strippingIterator) Close()              { s.inner.Close() }
func (s *strippingIterator) Key() []byte {
	k := s.inner.Key()
	if len(k) < s.prefixLen {
		return nil
	}
	return k[s.prefixLen:]
}

// HasPrefix is a small helper backends can use when implementing
// RawIterator over a flat keyspace.
func HasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
