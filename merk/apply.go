package merk

import (
	"bytes"
	"sort"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/storage"
)

// OpKind identifies one of the mutation kinds spec.md 4.3 accepts in an
// apply batch.
type OpKind int

const (
	OpPut OpKind = iota
	OpPutWithSpecializedCost
	OpDelete
	OpDeleteLayered
	OpDeleteLayeredMaybeSpecialized
	OpDeleteMaybeSpecialized
	OpReplace
	// OpRefreshReference forces a re-hash of a layered element while
	// preserving flags and aggregate (spec.md 4.3).
	OpRefreshReference
)

// Op is one batch entry.
type Op struct {
	Key          []byte
	Kind         OpKind
	Value        element.Element
	FeatureType  FeatureType
	CostOverride *cost.OperationCost
	// ChildRootHash is the child subtree's current root hash, folded into
	// Value's value_hash when Value is a subtree-marker element (spec.md 3
	// invariant 6, "Layered"). Nil for non-subtree values.
	ChildRootHash *Hash
}

// ApplyOptions configures an Apply call.
type ApplyOptions struct {
	// ValueMutationCallback implements spec.md 4.3 step 6: given the
	// realized per-KV storage cost, it may rewrite an element's flags.
	// Returning changed=false (or a nil callback) skips the fixed-point
	// loop for that key.
	ValueMutationCallback func(key []byte, realized cost.OperationCost, val element.Element) (newVal element.Element, changed bool)
	// SectionRemovalBytes splits removed bytes across epochs
	// (spec.md 4.3 step 7); nil means BasicStorageRemoval.
	SectionRemovalBytes func(key []byte, totalRemoved uint32) cost.RemovedBytes
}

// maxCostFeedbackIterations bounds the fixed-point loop of spec.md 4.3 step
// 6; exceeding it is ErrCyclicCostFeedback.
const maxCostFeedbackIterations = 8

// ApplyResult summarizes the tree state after Apply/Commit.
type ApplyResult struct {
	RootHash  Hash
	RootKey   []byte
	Aggregate element.AggregateData
}

// Apply applies a batch of ops to the tree in key order, rebalances, and
// commits dirty nodes into batch. Duplicate keys within ops are rejected.
func (m *Merk) Apply(ops []Op, batch *storage.StorageBatch, opts *ApplyOptions) cost.Result[ApplyResult] {
	var acc cost.OperationCost

	sorted := append([]Op(nil), ops...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })
	for i := 1; i < len(sorted); i++ {
		if bytes.Equal(sorted[i].Key, sorted[i-1].Key) {
			return cost.ErrResult[ApplyResult](ErrDuplicateKey, acc)
		}
	}

	for _, op := range sorted {
		if err := m.applyOne(op, &acc); err != nil {
			return cost.ErrResult[ApplyResult](err, acc)
		}
	}

	if err := m.commit(batch, opts, &acc); err != nil {
		return cost.ErrResult[ApplyResult](err, acc)
	}

	return cost.Ok(ApplyResult{
		RootHash:  m.RootHash(),
		RootKey:   m.RootKey(),
		Aggregate: m.AggregateData(),
	}, acc)
}

func (m *Merk) applyOne(op Op, acc *cost.OperationCost) error {
	switch op.Kind {
	case OpPut, OpPutWithSpecializedCost, OpReplace:
		if op.FeatureType == FeatureSummed || op.FeatureType == FeatureCountedSummed || op.FeatureType == FeatureProvableCountedSummed {
			if !m.treeFeature.IsProvable() && m.treeFeature != FeatureSummed && m.treeFeature != FeatureCountedSummed {
				// A SumItem-bearing op under a non-sum-capable tree is
				// rejected (spec.md 4.4).
				if _, ok := op.Value.(element.SumItem); ok && !m.treeFeatureIsSumCapable() {
					return ErrNotSumCapable
				}
			}
		}
		if _, ok := op.Value.(element.SumItem); ok && !m.treeFeatureIsSumCapable() {
			return ErrNotSumCapable
		}
		newRoot, err := m.put(m.root, op.Key, op.Value, op.FeatureType, op.ChildRootHash, acc)
		if err != nil {
			return err
		}
		m.root = newRoot
		return nil
	case OpRefreshReference:
		newRoot, err := m.put(m.root, op.Key, op.Value, op.FeatureType, op.ChildRootHash, acc)
		if err != nil {
			return err
		}
		m.root = newRoot
		return nil
	case OpDelete, OpDeleteLayered, OpDeleteLayeredMaybeSpecialized, OpDeleteMaybeSpecialized:
		newRoot, _, err := m.remove(m.root, op.Key, acc)
		if err != nil {
			return err
		}
		m.root = newRoot
		return nil
	default:
		return ErrInvalidBatchOperation
	}
}

// EstimateApplyCost reports the cost.OperationCost that Apply(ops) would
// incur without persisting any writes or mutating the tree's own committed
// state (spec.md 4.1 cost model, SPEC_FULL.md's average/worst-case
// cost-estimation supplemented feature). It runs the identical
// apply/rebalance/commit path against a deep copy of the current root, into
// a throwaway StorageBatch that is never flushed to the backing store —
// reads against the real storage.Context still happen (so the estimate
// reflects real existing-byte sizes), only writes are discarded.
func (m *Merk) EstimateApplyCost(ops []Op, opts *ApplyOptions) cost.Result[ApplyResult] {
	scratch := &Merk{ctx: m.ctx, treeFeature: m.treeFeature, isBase: m.isBase, root: cloneNode(m.root), log: m.log}
	return scratch.Apply(ops, storage.NewStorageBatch(), opts)
}

// cloneLink deep-copies a Link and its child subtree so a scratch Merk
// built for cost estimation never mutates the original tree's in-memory
// nodes when Apply rebalances/rehashes it.
func cloneLink(l *Link) *Link {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Child = cloneNode(l.Child)
	return &clone
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	clone := *n
	clone.Key = append([]byte(nil), n.Key...)
	clone.ValueBytes = append([]byte(nil), n.ValueBytes...)
	clone.Left = cloneLink(n.Left)
	clone.Right = cloneLink(n.Right)
	return &clone
}

func (m *Merk) treeFeatureIsSumCapable() bool {
	switch m.treeFeature {
	case FeatureSummed, FeatureCountedSummed, FeatureProvableCountedSummed:
		return true
	default:
		return false
	}
}

// commit walks every dirty node bottom-up, recomputing value_hash/kv_hash,
// writing its encoded bytes into batch, and updating its parent's link with
// the freshly computed hash/heights (spec.md 4.3 step 5). Dirty nodes are
// discovered by a post-order walk starting at the root, since dirtiness is
// confined to the path touched by this Apply call.
func (m *Merk) commit(batch *storage.StorageBatch, opts *ApplyOptions, acc *cost.OperationCost) error {
	if m.root != nil {
		if err := m.commitNode(m.root, batch, opts, acc); err != nil {
			return err
		}
	}
	if m.isBase {
		r := m.ctx.BatchPut(batch, storage.Meta, baseRootKeyMetaKey, m.RootKey(), nil)
		if r.Err != nil {
			return r.Err
		}
		acc.AddInPlace(r.Cost)
	}
	return nil
}

func (m *Merk) commitNode(node *Node, batch *storage.StorageBatch, opts *ApplyOptions, acc *cost.OperationCost) error {
	if node.Left != nil && node.Left.State != LinkNone && node.Left.Child != nil && (node.Left.State == LinkUncommitted || node.Left.State == LinkModified) {
		if err := m.commitNode(node.Left.Child, batch, opts, acc); err != nil {
			return err
		}
		node.Left.Hash = node.Left.Child.hash()
		node.Left.LeftChildHeight = node.Left.Child.Left.Height()
		node.Left.RightChildHeight = node.Left.Child.Right.Height()
		node.Left.State = LinkLoaded
	}
	if node.Right != nil && node.Right.State != LinkNone && node.Right.Child != nil && (node.Right.State == LinkUncommitted || node.Right.State == LinkModified) {
		if err := m.commitNode(node.Right.Child, batch, opts, acc); err != nil {
			return err
		}
		node.Right.Hash = node.Right.Child.hash()
		node.Right.LeftChildHeight = node.Right.Child.Left.Height()
		node.Right.RightChildHeight = node.Right.Child.Right.Height()
		node.Right.State = LinkLoaded
	}

	if !node.dirty {
		return nil
	}

	if opts != nil && opts.ValueMutationCallback != nil {
		if err := m.runCostFeedback(node, opts); err != nil {
			return err
		}
	}

	encoded := node.encode()
	r := m.ctx.BatchPut(batch, storage.Data, node.Key, encoded, nil)
	if r.Err != nil {
		return r.Err
	}
	acc.AddInPlace(r.Cost)
	acc.HashNodeCalls++
	node.dirty = false
	return nil
}

// runCostFeedback implements spec.md 4.3 step 6: the realized storage cost
// of writing node is fed back to the caller's callback, which may rewrite
// the element's flags; the loop terminates once the callback reports no
// further change, or fails with ErrCyclicCostFeedback past the bound.
func (m *Merk) runCostFeedback(node *Node, opts *ApplyOptions) error {
	for i := 0; i < maxCostFeedbackIterations; i++ {
		encoded := node.encode()
		realized := cost.OperationCost{
			StorageCost: cost.StorageCost{AddedBytes: uint32(len(node.Key) + len(encoded))},
		}
		newVal, changed := opts.ValueMutationCallback(node.Key, realized, node.Value)
		if !changed {
			return nil
		}
		node.Value = newVal
		node.refreshValue()
	}
	return ErrCyclicCostFeedback
}
