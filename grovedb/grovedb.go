// Package grovedb implements the recursive tree of AVL-balanced Merk
// subtrees described by spec.md: subtrees are addressed by path, each one a
// merk.Merk rooted at a storage.Context whose prefix is derived from that
// path, and a subtree's own entry in its parent records the child's current
// root key and aggregate (spec.md 4.6).
package grovedb

import (
	"github.com/sirupsen/logrus"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/path"
	"github.com/dashpay/grovedb-sub006/storage"
)

// defaultMaxReferenceHops bounds reference-following when a Reference
// element doesn't carry its own MaxHops (spec.md 4.6 "Reference following").
const defaultMaxReferenceHops = 10

// GroveDb is the top-level handle over a single storage.RawStore backend.
type GroveDb struct {
	store       storage.RawStore
	rootFeature merk.FeatureType
	log         *logrus.Logger
	txReg       *txRegistry
}

// Option configures a GroveDb at open time.
type Option func(*GroveDb)

// WithLogger overrides the default standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(g *GroveDb) { g.log = l }
}

// WithRootFeature sets the feature type of the base Merk (default
// FeatureBasic); a caller wanting the root subtree itself to be sum-capable
// passes e.g. merk.FeatureSummed.
func WithRootFeature(ft merk.FeatureType) Option {
	return func(g *GroveDb) { g.rootFeature = ft }
}

// Open returns a GroveDb bound to store (spec.md 4.6 "open").
func Open(store storage.RawStore, opts ...Option) *GroveDb {
	g := &GroveDb{store: store, rootFeature: merk.FeatureBasic, log: logrus.StandardLogger(), txReg: &txRegistry{}}
	for _, o := range opts {
		o(g)
	}
	return g
}

// prefixFor derives a subtree's storage-context prefix from its path: the
// Blake3 digest of the path's canonical Key() encoding, reusing merk's own
// hash primitive rather than inventing a second one (spec.md 4.5/4.2).
func prefixFor(p path.Path) []byte {
	h := merk.ValueHash([]byte(p.Key()))
	return h[:]
}

func (g *GroveDb) contextFor(p path.Path, tx storage.RawTx) *storage.Context {
	prefix := prefixFor(p)
	if tx != nil {
		return storage.NewTransactionalContext(g.store, tx, prefix)
	}
	return storage.NewContext(g.store, prefix)
}

// featureTypeForElement maps a subtree element's Kind to the merk.FeatureType
// that must govern the Merk opened at its root key (spec.md 4.4/4.3).
func featureTypeForElement(e element.Element) merk.FeatureType {
	switch e.(type) {
	case element.SumTree:
		return merk.FeatureSummed
	case element.BigSumTree:
		return merk.FeatureBigSummed
	case element.CountTree:
		return merk.FeatureCounted
	case element.CountSumTree:
		return merk.FeatureCountedSummed
	case element.ProvableCountTree:
		return merk.FeatureProvableCounted
	case element.ProvableCountSumTree:
		return merk.FeatureProvableCountedSummed
	default:
		return merk.FeatureBasic
	}
}

// openMerkChain opens the Merk addressed by p, recursively resolving every
// ancestor's element to learn the child's root key and feature type
// (spec.md 4.3 open_base/open_layered_with_root_key, 4.6 "Consistency
// check"/"Corrupted path").
func (g *GroveDb) openMerkChain(p path.Path, tx storage.RawTx) (*merk.Merk, *storage.Context, error) {
	ctx := g.contextFor(p, tx)
	if p.IsEmpty() {
		res := merk.OpenBase(ctx, g.rootFeature)
		if res.Err != nil {
			return nil, nil, res.Err
		}
		return res.Value, ctx, nil
	}

	parent, lastKey, _ := p.DeriveParent()
	parentMerk, _, err := g.openMerkChain(parent, tx)
	if err != nil {
		return nil, nil, err
	}

	elRes := parentMerk.Get(lastKey)
	if elRes.Err == merk.ErrKeyNotFound {
		return nil, nil, ErrPathNotFound
	}
	if elRes.Err != nil {
		return nil, nil, elRes.Err
	}
	el := elRes.Value
	if !el.Kind().IsSubtree() {
		return nil, nil, ErrCorruptedPath
	}
	if el.Kind() == element.KindSealedTree {
		return nil, nil, ErrCorruptedPath
	}
	rootKey, _ := element.RootKey(el)
	ft := featureTypeForElement(el)
	res := merk.OpenLayeredWithRootKey(ctx, rootKey, ft)
	if res.Err != nil {
		return nil, nil, res.Err
	}
	return res.Value, ctx, nil
}

// GetRaw retrieves the Element at (p, key) without following references
// (spec.md 4.6 "get_raw").
func (g *GroveDb) GetRaw(p path.Path, key []byte, tx storage.RawTx) (element.Element, error) {
	m, _, err := g.openMerkChain(p, tx)
	if err != nil {
		return nil, err
	}
	res := m.Get(key)
	if res.Err == merk.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value, nil
}

// Get retrieves the Element at (p, key), transparently following Reference
// elements until a non-reference element is reached (spec.md 4.6 "get").
func (g *GroveDb) Get(p path.Path, key []byte, tx storage.RawTx) (element.Element, error) {
	visited := make(map[string]struct{})
	return g.getFollowingRefs(p, key, tx, visited, 0)
}

// RootHash returns the root hash of the base Merk.
func (g *GroveDb) RootHash(tx storage.RawTx) (merk.Hash, error) {
	m, _, err := g.openMerkChain(path.Empty(), tx)
	if err != nil {
		return merk.Hash{}, err
	}
	return m.RootHash(), nil
}

// Insert writes element e at (p, key), propagating the subtree's new root
// key/aggregate up to the base Merk (spec.md 4.6 "insert").
func (g *GroveDb) Insert(p path.Path, key []byte, e element.Element, tx storage.RawTx) error {
	return g.ApplyBatch([]QualifiedGroveDbOp{{Path: p, Key: key, Kind: OpInsert, Element: e}}, tx)
}

// InsertIfNotExists inserts e at (p, key) only if no element is already
// present there (spec.md 4.6 "insert_if_not_exists").
func (g *GroveDb) InsertIfNotExists(p path.Path, key []byte, e element.Element, tx storage.RawTx) (bool, error) {
	if _, err := g.GetRaw(p, key, tx); err == nil {
		return false, nil
	} else if err != ErrKeyNotFound {
		return false, err
	}
	if err := g.ApplyBatch([]QualifiedGroveDbOp{{Path: p, Key: key, Kind: OpInsertIfNotExists, Element: e}}, tx); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes (p, key) (spec.md 4.6 "delete").
func (g *GroveDb) Delete(p path.Path, key []byte, tx storage.RawTx) error {
	return g.ApplyBatch([]QualifiedGroveDbOp{{Path: p, Key: key, Kind: OpDelete}}, tx)
}

// DeleteUpTreeWhileEmpty deletes (p, key), and then walks back up p deleting
// each ancestor subtree's own entry in its parent for as long as the
// subtree just emptied out (spec.md 4.6 "delete_up_tree_while_empty").
func (g *GroveDb) DeleteUpTreeWhileEmpty(p path.Path, key []byte, tx storage.RawTx) error {
	if err := g.Delete(p, key, tx); err != nil {
		return err
	}
	cur := p
	curKey := key
	for {
		m, _, err := g.openMerkChain(cur, tx)
		if err != nil {
			return err
		}
		if m.RootKey() != nil {
			return nil
		}
		parent, lastKey, ok := cur.DeriveParent()
		if !ok {
			return nil
		}
		if err := g.Delete(parent, lastKey, tx); err != nil {
			return err
		}
		cur, curKey = parent, lastKey
		_ = curKey
	}
}
