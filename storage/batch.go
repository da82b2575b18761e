package storage

import "github.com/dashpay/grovedb-sub006/cost"

// StorageBatch is the cross-subtree write buffer of spec.md 4.2: mutations
// from many prefix-scoped Contexts accumulate here, in submission order, and
// are handed to the underlying RawStore once, giving atomicity across
// subtrees. A StorageBatch is not thread-safe, matching spec.md 5's "shared
// resource policy" (one StorageBatch per top-level call, never shared across
// goroutines).
type StorageBatch struct {
	ops []RawOp
}

// NewStorageBatch returns an empty batch.
func NewStorageBatch() *StorageBatch { return &StorageBatch{} }

// Len reports how many operations are queued.
func (b *StorageBatch) Len() int { return len(b.ops) }

// Commit flushes every queued operation to store atomically.
func (b *StorageBatch) Commit(store RawStore) error {
	if len(b.ops) == 0 {
		return nil
	}
	return store.RawBatch(b.ops)
}

// CommitTx flushes every queued operation into an open transaction, letting
// the transaction's own commit/rollback govern atomicity instead of the
// store's.
func (b *StorageBatch) CommitTx(tx RawTx) error {
	for _, op := range b.ops {
		if op.Value == nil {
			if err := tx.RawDelete(op.Key); err != nil {
				return err
			}
			continue
		}
		if err := tx.RawPut(op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}

// BatchPut prices a put exactly as Context.Put does (Get-before-write to
// distinguish added vs. replaced bytes) but enqueues the write into batch
// instead of writing immediately.
func (c *Context) BatchPut(batch *StorageBatch, ns Namespace, key, value []byte, opts *PutOptions) cost.Result[struct{}] {
	fk := c.fullKey(ns, key)
	if opts != nil && opts.CostOverride != nil {
		batch.ops = append(batch.ops, RawOp{Key: fk, Value: value})
		return cost.Ok(struct{}{}, *opts.CostOverride)
	}

	existing, existed, err := c.rawGet(fk)
	opCost := cost.OperationCost{SeekCount: 1}
	if err != nil {
		return cost.ErrResult[struct{}](err, opCost)
	}
	if existed {
		opCost.StorageLoadedBytes = uint64(len(existing))
	}
	batch.ops = append(batch.ops, RawOp{Key: fk, Value: value})
	written := uint32(len(key) + len(value))
	if existed {
		opCost.StorageCost.ReplacedBytes = written
	} else {
		opCost.StorageCost.AddedBytes = written
	}
	return cost.Ok(struct{}{}, opCost)
}

// BatchDelete prices a delete exactly as Context.Delete does, enqueueing a
// tombstone into batch instead of deleting immediately.
func (c *Context) BatchDelete(batch *StorageBatch, ns Namespace, key []byte, opts *DeleteOptions) cost.Result[struct{}] {
	fk := c.fullKey(ns, key)
	existing, existed, err := c.rawGet(fk)
	opCost := cost.OperationCost{SeekCount: 1}
	if err != nil {
		return cost.ErrResult[struct{}](err, opCost)
	}
	if !existed {
		return cost.Ok(struct{}{}, opCost)
	}
	batch.ops = append(batch.ops, RawOp{Key: fk, Value: nil})
	removed := uint32(len(key) + len(existing))
	if opts != nil && opts.SectionRemovalBytes != nil {
		opCost.StorageCost.RemovedBytes = opts.SectionRemovalBytes(key, removed)
	} else {
		opCost.StorageCost.RemovedBytes = cost.BasicStorageRemoval(removed)
	}
	return cost.Ok(struct{}{}, opCost)
}
