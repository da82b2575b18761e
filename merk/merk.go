package merk

import (
	"bytes"

	"github.com/sirupsen/logrus"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/storage"
)

// baseRootKeyMetaKey is the fixed meta-namespace key under which a base
// Merk's persistent root key marker is written (spec.md 4.6 step 5,
// "update_base_merk_root_key").
var baseRootKeyMetaKey = []byte("base_root_key")

// Merk is the in-memory AVL-balanced authenticated tree for one subtree,
// backed by a storage.Context rooted at that subtree's prefix.
type Merk struct {
	ctx         *storage.Context
	root        *Node
	treeFeature FeatureType
	isBase      bool
	log         *logrus.Logger
}

// Option configures a Merk at open time.
type Option func(*Merk)

// WithLogger overrides the default standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(m *Merk) { m.log = l }
}

func newMerk(ctx *storage.Context, ft FeatureType, opts ...Option) *Merk {
	m := &Merk{ctx: ctx, treeFeature: ft, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// OpenBase opens the base Merk of a GroveDB tree: the root key is read from
// a persistent marker in meta storage; if absent, the tree starts empty
// (spec.md 4.3 open_base).
func OpenBase(ctx *storage.Context, ft FeatureType, opts ...Option) cost.Result[*Merk] {
	m := newMerk(ctx, ft, opts...)
	m.isBase = true

	r := ctx.Get(storage.Meta, baseRootKeyMetaKey)
	if r.Err == storage.ErrNotFound {
		return cost.Ok(m, r.Cost)
	}
	if r.Err != nil {
		return cost.ErrResult[*Merk](r.Err, r.Cost)
	}
	node, loadCost, err := m.loadNode(r.Value)
	totalCost := r.Cost.Add(loadCost)
	if err != nil {
		return cost.ErrResult[*Merk](err, totalCost)
	}
	m.root = node
	return cost.Ok(m, totalCost)
}

// OpenLayeredWithRootKey opens a Merk whose root key is already known
// (recorded by the parent subtree's element), per spec.md 4.3
// open_layered_with_root_key.
func OpenLayeredWithRootKey(ctx *storage.Context, rootKey []byte, ft FeatureType, opts ...Option) cost.Result[*Merk] {
	m := newMerk(ctx, ft, opts...)
	if rootKey == nil {
		return cost.Ok(m, cost.OperationCost{})
	}
	node, loadCost, err := m.loadNode(rootKey)
	if err != nil {
		return cost.ErrResult[*Merk](err, loadCost)
	}
	m.root = node
	return cost.Ok(m, loadCost)
}

// OpenStandalone opens an always-empty, freshly constructed Merk bound to
// ctx, ignoring any persisted base-root marker (spec.md 4.3
// open_standalone) — used for scratch trees built up entirely in one call.
func OpenStandalone(ctx *storage.Context, ft FeatureType, opts ...Option) *Merk {
	return newMerk(ctx, ft, opts...)
}

// loadNode fetches and decodes the node stored at key.
func (m *Merk) loadNode(key []byte) (*Node, cost.OperationCost, error) {
	r := m.ctx.Get(storage.Data, key)
	if r.Err != nil {
		return nil, r.Cost, r.Err
	}
	node, err := decodeNode(key, r.Value)
	if err != nil {
		m.log.WithError(err).WithField("key", key).Error("merk: corrupted node decode")
		return nil, r.Cost, err
	}
	r.Cost.HashNodeCalls++ // decoding a node implies re-deriving its identity for the caller
	return node, r.Cost, nil
}

// loadLinkChild ensures l's Child is populated, loading it from storage if
// it is only a Reference so far. No-op for LinkNone.
func (m *Merk) loadLinkChild(l *Link, acc *cost.OperationCost) error {
	if l == nil || l.State == LinkNone || l.Child != nil {
		return nil
	}
	node, c, err := m.loadNode(l.Key)
	acc.AddInPlace(c)
	if err != nil {
		return err
	}
	l.Child = node
	l.State = LinkLoaded
	return nil
}

// RootHash returns the root hash of the tree: spec.md 4.3, the all-zero hash
// for an empty tree.
func (m *Merk) RootHash() Hash {
	if m.root == nil {
		return ZeroHash
	}
	return m.root.hash()
}

// RootKey returns the storage key of the root node, or nil for an empty
// tree.
func (m *Merk) RootKey() []byte {
	if m.root == nil {
		return nil
	}
	return m.root.Key
}

// AggregateData returns the top-level aggregate of the tree, translated into
// an element.AggregateData shaped by the Merk's tree feature type.
func (m *Merk) AggregateData() element.AggregateData {
	if m.root == nil {
		return element.AggregateData{}
	}
	agg := m.root.aggregate()
	switch m.treeFeature {
	case FeatureSummed:
		return element.AggregateData{Kind: element.AggregateSum, Sum: agg.Sum}
	case FeatureCounted, FeatureProvableCounted:
		return element.AggregateData{Kind: element.AggregateCount, Count: agg.Count}
	case FeatureCountedSummed, FeatureProvableCountedSummed:
		return element.AggregateData{Kind: element.AggregateCountSum, Sum: agg.Sum, Count: agg.Count}
	default:
		return element.AggregateData{}
	}
}

// Get retrieves the Element stored at key, following the in-memory/on-disk
// tree structure, loading nodes from storage on demand.
func (m *Merk) Get(key []byte) cost.Result[element.Element] {
	var acc cost.OperationCost
	node := m.root
	for node != nil {
		acc.SeekCount++
		switch bytes.Compare(key, node.Key) {
		case 0:
			return cost.Ok(node.Value, acc)
		case -1:
			if err := m.loadLinkChild(node.Left, &acc); err != nil {
				return cost.ErrResult[element.Element](err, acc)
			}
			if node.Left == nil {
				node = nil
			} else {
				node = node.Left.Child
			}
		default:
			if err := m.loadLinkChild(node.Right, &acc); err != nil {
				return cost.ErrResult[element.Element](err, acc)
			}
			if node.Right == nil {
				node = nil
			} else {
				node = node.Right.Child
			}
		}
	}
	return cost.ErrResult[element.Element](ErrKeyNotFound, acc)
}

// metaKey namespaces a caller metadata key so it can't collide with the
// backward-reference bitvec/slot keys of spec.md 4.6.
func metaKey(key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, 'u') // "user" metadata, vs. 'r' used by refs bitvec/slots
	out = append(out, key...)
	return out
}

// GetMeta reads caller-supplied metadata, a side-channel that is never
// hashed into the tree's root (spec.md 4.3 get_meta/put_meta/delete_meta).
func (m *Merk) GetMeta(key []byte) cost.Result[[]byte] {
	return m.ctx.Get(storage.Meta, metaKey(key))
}

// PutMeta writes caller-supplied metadata.
func (m *Merk) PutMeta(key, value []byte) cost.Result[struct{}] {
	return m.ctx.Put(storage.Meta, metaKey(key), value, nil)
}

// DeleteMeta removes caller-supplied metadata.
func (m *Merk) DeleteMeta(key []byte) cost.Result[struct{}] {
	return m.ctx.Delete(storage.Meta, metaKey(key), nil)
}
