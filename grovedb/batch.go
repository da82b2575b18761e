package grovedb

import (
	"sort"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/path"
	"github.com/dashpay/grovedb-sub006/storage"
)

// OpKind identifies one batch mutation kind (spec.md 4.6 "Batch engine").
type OpKind int

const (
	OpInsert OpKind = iota
	OpInsertIfNotExists
	OpReplace
	OpDelete
	OpDeleteTree
	OpDeleteSumTree
	OpRefreshReference

	// The following three are synthesized internally by the batch engine's
	// own propagation step and must never be submitted by a caller
	// (spec.md 4.6 "three rejected-internal ops").
	opReplaceTreeRootKey
	opInsertTreeWithRootHash
	opInsertNonMerkTree
)

// QualifiedGroveDbOp is one entry of a caller-submitted batch (spec.md 4.6
// QualifiedGroveDbOp{path, key, op}).
type QualifiedGroveDbOp struct {
	Path    path.Path
	Key     []byte
	Kind    OpKind
	Element element.Element
	// ChildRootHash is set only by the batch engine's own internal
	// opInsertTreeWithRootHash propagation step; callers never set it.
	ChildRootHash *merk.Hash
	// CascadeOnUpdate marks a Reference-element insert as one whose
	// BackwardReference record should ask the target to refresh this
	// reference's own value_hash whenever the target changes (spec.md 4.6
	// C8, "cascade_on_update"). Ignored for non-Reference elements.
	CascadeOnUpdate bool
}

// pendingChildUpdate is the synthesized parent-level element update a
// child subtree's Apply leaves behind, carried alongside the child's own
// freshly computed root hash so the parent entry's value_hash can fold it
// in (spec.md 3 invariant 6, "Layered").
type pendingChildUpdate struct {
	Element  element.Element
	RootHash merk.Hash
}

// pathGroup collects every op submitted against one subtree path.
type pathGroup struct {
	path path.Path
	ops  map[string]*QualifiedGroveDbOp
}

// backwardRefUpdate stages one addBackwardReference/removeBackwardReference
// call discovered while resolving a path group's ops (spec.md 4.6 C8).
type backwardRefUpdate struct {
	targetPath path.Path
	targetKey  []byte
	sourceKey  []byte
	cascade    bool
}

// ApplyBatch executes ops as one atomic multi-subtree write (spec.md 4.6
// "Execution", steps 1-6): validates the batch, indexes it by depth, then
// applies depth-descending so every subtree's own root-key/aggregate update
// propagates into its parent before the parent itself is committed, finally
// flushing one shared StorageBatch.
func (g *GroveDb) ApplyBatch(ops []QualifiedGroveDbOp, tx storage.RawTx) error {
	_, err := g.runBatch(ops, tx, true)
	return err
}

// EstimateCost reports the cost.OperationCost that ApplyBatch(ops, tx) would
// incur without writing anything to the backing store (SPEC_FULL.md
// "Average-case and worst-case cost estimation"). It runs the identical
// validate/depth-descend/fold path as ApplyBatch — each path group's cost is
// realized through merk.EstimateApplyCost rather than merk.Merk.Apply, so no
// subtree's committed root key or on-disk bytes are ever touched — and
// simply discards the resulting globalBatch instead of committing it.
func (g *GroveDb) EstimateCost(ops []QualifiedGroveDbOp, tx storage.RawTx) (cost.OperationCost, error) {
	return g.runBatch(ops, tx, false)
}

// runBatch is the shared depth-descent engine behind ApplyBatch and
// EstimateCost; commit selects whether each path group's changes are
// realized via merk.Merk.Apply (persisted into globalBatch, which is then
// flushed) or merk.Merk.EstimateApplyCost (costed but discarded).
func (g *GroveDb) runBatch(ops []QualifiedGroveDbOp, tx storage.RawTx, commit bool) (cost.OperationCost, error) {
	var total cost.OperationCost
	if err := validateOps(ops); err != nil {
		return total, err
	}

	byLevel := make(map[int]map[string]*pathGroup)
	maxDepth := 0
	for i := range ops {
		op := &ops[i]
		depth := op.Path.Len()
		if depth > maxDepth {
			maxDepth = depth
		}
		levelGroups, ok := byLevel[depth]
		if !ok {
			levelGroups = make(map[string]*pathGroup)
			byLevel[depth] = levelGroups
		}
		pk := op.Path.Key()
		grp, ok := levelGroups[pk]
		if !ok {
			grp = &pathGroup{path: op.Path, ops: make(map[string]*QualifiedGroveDbOp)}
			levelGroups[pk] = grp
		}
		grp.ops[string(op.Key)] = op
	}

	// pendingParentUpdates[parentPathKey][childKey] is the synthesized
	// element update a child subtree's Apply leaves for its parent, applied
	// once the engine descends to the parent's own depth.
	pendingParentUpdates := make(map[string]map[string]pendingChildUpdate)
	pendingParentPaths := make(map[string]path.Path)

	globalBatch := storage.NewStorageBatch()

	for depth := maxDepth; depth >= 0; depth-- {
		levelGroups := byLevel[depth]
		// Fold in any pending parent updates targeting this depth, whether
		// or not the caller also submitted ops at this path.
		for pk, updates := range pendingParentUpdates {
			if pathDepthOf(pendingParentPaths[pk]) != depth {
				continue
			}
			if levelGroups == nil {
				levelGroups = make(map[string]*pathGroup)
				byLevel[depth] = levelGroups
			}
			grp, ok := levelGroups[pk]
			if !ok {
				grp = &pathGroup{path: pendingParentPaths[pk], ops: make(map[string]*QualifiedGroveDbOp)}
				levelGroups[pk] = grp
			}
			for key, u := range updates {
				rootHash := u.RootHash
				grp.ops[key] = &QualifiedGroveDbOp{Path: grp.path, Key: []byte(key), Kind: opInsertTreeWithRootHash, Element: u.Element, ChildRootHash: &rootHash}
			}
			delete(pendingParentUpdates, pk)
		}

		if levelGroups == nil {
			continue
		}
		// Deterministic processing order within a depth.
		pathKeys := make([]string, 0, len(levelGroups))
		for pk := range levelGroups {
			pathKeys = append(pathKeys, pk)
		}
		sort.Strings(pathKeys)

		for _, pk := range pathKeys {
			grp := levelGroups[pk]
			c, err := g.applyPathGroup(grp, tx, globalBatch, pendingParentUpdates, pendingParentPaths, commit)
			if err != nil {
				return total, err
			}
			total.AddInPlace(c)
		}
	}

	if !commit {
		return total, nil
	}
	var commitErr error
	if tx != nil {
		commitErr = globalBatch.CommitTx(tx)
	} else {
		commitErr = globalBatch.Commit(g.store)
	}
	if commitErr != nil {
		g.log.WithError(commitErr).Error("grovedb: batch commit failed")
	}
	return total, commitErr
}

func pathDepthOf(p path.Path) int { return p.Len() }

func validateOps(ops []QualifiedGroveDbOp) error {
	seen := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case opReplaceTreeRootKey, opInsertTreeWithRootHash, opInsertNonMerkTree:
			return ErrInternalOpNotAllowed
		}
		id := op.Path.Key() + "\x00" + string(op.Key)
		if _, dup := seen[id]; dup {
			return ErrDuplicatePathKey
		}
		seen[id] = struct{}{}
	}
	return nil
}

// applyPathGroup opens the Merk at grp.path, applies every op in the group,
// and — unless grp.path is the base — records the resulting root
// key/aggregate as a pending update for the parent. When commit is true, the
// group's changes are realized via merk.Merk.Apply and persisted into
// globalBatch (flushed by the caller); when false, they are realized via
// merk.Merk.EstimateApplyCost, which touches neither globalBatch nor the
// Merk's own committed root key, so the returned cost.OperationCost is pure
// estimate (SPEC_FULL.md "Average-case and worst-case cost estimation").
func (g *GroveDb) applyPathGroup(grp *pathGroup, tx storage.RawTx, globalBatch *storage.StorageBatch, pendingParentUpdates map[string]map[string]pendingChildUpdate, pendingParentPaths map[string]path.Path, commit bool) (cost.OperationCost, error) {
	var zero cost.OperationCost
	m, _, err := g.openMerkChain(grp.path, tx)
	if err == ErrPathNotFound {
		return zero, ErrPathParentLayerNotFound
	}
	if err != nil {
		return zero, err
	}

	// Every node written into this Merk carries the feature type of the tree
	// it lives in: the base Merk's root feature, or the one implied by the
	// subtree element that grp.path names in its parent.
	treeFeature := g.rootFeature
	if parent, lastKey, ok := grp.path.DeriveParent(); ok {
		if parentEl, perr := g.GetRaw(parent, lastKey, tx); perr == nil {
			treeFeature = featureTypeForElement(parentEl)
		}
	}

	// refAdds/refRemoves/cascadeKeys stage the bidirectional-reference
	// bookkeeping (spec.md 4.6 C8) this group's ops imply: inserting a
	// Reference records a BackwardReference at its target, deleting one
	// frees that slot back, and writing a non-reference value walks its own
	// recorded backward references to refresh any cascade_on_update
	// referrers. Staged rather than applied inline so they only run once
	// the group's merk.Op batch has actually committed — never during an
	// EstimateCost dry run, which must touch no durable state at all.
	var refAdds []backwardRefUpdate
	var refRemoves []backwardRefUpdate
	var cascadeKeys [][]byte

	var merkOps []merk.Op
	for keyStr, op := range grp.ops {
		key := []byte(keyStr)
		mop, skip, err := g.resolveOp(grp.path, m, key, op, tx)
		if err != nil {
			return zero, err
		}
		if skip {
			continue
		}
		mop.FeatureType = treeFeature
		merkOps = append(merkOps, mop)

		if !commit {
			continue
		}
		switch op.Kind {
		case OpInsert, OpReplace, OpInsertIfNotExists:
			if ref, ok := op.Element.(element.Reference); ok {
				if targetPath, targetKey, rerr := resolveReferencePath(grp.path, key, ref.Path); rerr == nil {
					refAdds = append(refAdds, backwardRefUpdate{targetPath: targetPath, targetKey: targetKey, sourceKey: key, cascade: op.CascadeOnUpdate})
				}
			} else if op.Element != nil && !op.Element.Kind().IsSubtree() {
				cascadeKeys = append(cascadeKeys, key)
			}
		case OpDelete, OpDeleteTree, OpDeleteSumTree:
			if existing := m.Get(key); existing.Err == nil {
				if ref, ok := existing.Value.(element.Reference); ok {
					if targetPath, targetKey, rerr := resolveReferencePath(grp.path, key, ref.Path); rerr == nil {
						refRemoves = append(refRemoves, backwardRefUpdate{targetPath: targetPath, targetKey: targetKey, sourceKey: key})
					}
				}
			}
		}
	}

	var res cost.Result[merk.ApplyResult]
	if commit {
		res = m.Apply(merkOps, globalBatch, nil)
	} else {
		res = m.EstimateApplyCost(merkOps, nil)
	}
	if res.Err != nil {
		return res.Cost, res.Err
	}

	for _, ra := range refAdds {
		if err := g.addBackwardReference(ra.targetPath, ra.targetKey, grp.path, ra.sourceKey, ra.cascade, tx); err != nil {
			return res.Cost, err
		}
	}
	for _, rr := range refRemoves {
		if err := g.removeBackwardReference(rr.targetPath, rr.targetKey, grp.path, rr.sourceKey, tx); err != nil {
			return res.Cost, err
		}
	}
	for _, key := range cascadeKeys {
		if err := g.cascadeRefresh(grp.path, key, tx); err != nil {
			return res.Cost, err
		}
	}

	parent, lastKey, ok := grp.path.DeriveParent()
	if !ok {
		return res.Cost, nil // base Merk: merk.Apply already persisted the root marker.
	}
	parentKey := parent.Key()
	updates, ok := pendingParentUpdates[parentKey]
	if !ok {
		updates = make(map[string]pendingChildUpdate)
		pendingParentUpdates[parentKey] = updates
		pendingParentPaths[parentKey] = parent
	}
	existing, err := g.GetRaw(parent, lastKey, tx)
	if err != nil && err != ErrKeyNotFound {
		return res.Cost, err
	}
	newEl, err := reconstructParentElement(existing, res.Value)
	if err != nil {
		return res.Cost, err
	}
	updates[string(lastKey)] = pendingChildUpdate{Element: newEl, RootHash: res.Value.RootHash}
	return res.Cost, nil
}

// firstSubtreeElementHint returns the first explicit subtree element among
// grp's ops, or an empty Item when the group holds only item/reference ops.
func firstSubtreeElementHint(grp *pathGroup) element.Element {
	for _, op := range grp.ops {
		if op.Element != nil && op.Element.Kind().IsSubtree() {
			return op.Element
		}
	}
	return element.Item{}
}

// reconstructParentElement rebuilds the parent-level entry for a subtree
// whose Apply just produced res, preserving the existing element's flags
// (spec.md 4.4 reconstruct_with_root_key). A brand-new subtree (no existing
// parent entry yet) gets a plain Tree/SumTree/... marker matching whatever
// kind the caller's batch ops implied.
func reconstructParentElement(existing element.Element, res merk.ApplyResult) (element.Element, error) {
	if existing != nil && existing.Kind().IsSubtree() {
		return element.ReconstructWithRootKey(existing, res.RootKey, res.Aggregate)
	}
	switch res.Aggregate.Kind {
	case element.AggregateSum:
		return element.SumTree{RootKey: res.RootKey, Sum: res.Aggregate.Sum}, nil
	case element.AggregateBigSum:
		return element.BigSumTree{RootKey: res.RootKey, Sum: res.Aggregate.BigSum}, nil
	case element.AggregateCount:
		return element.CountTree{RootKey: res.RootKey, Count: res.Aggregate.Count}, nil
	case element.AggregateCountSum:
		return element.CountSumTree{RootKey: res.RootKey, Count: res.Aggregate.Count, Sum: res.Aggregate.Sum}, nil
	default:
		return element.Tree{RootKey: res.RootKey}, nil
	}
}

// resolveOp converts one caller op into the primitive merk.Op that realizes
// it, consulting the current tree when the semantics require knowing
// whether a key already exists (spec.md 4.6). The bool return reports
// whether the op resolved to a genuine no-op that should be dropped from
// the batch entirely (OpInsertIfNotExists on an already-present key) rather
// than rewritten with its own unchanged value, which would otherwise force
// a needless re-hash of that entry.
func (g *GroveDb) resolveOp(parentPath path.Path, m *merk.Merk, key []byte, op *QualifiedGroveDbOp, tx storage.RawTx) (merk.Op, bool, error) {
	switch op.Kind {
	case OpInsert, OpReplace:
		crh, err := g.childRootHashForValue(parentPath, key, op.Element, tx)
		if err != nil {
			return merk.Op{}, false, err
		}
		return merk.Op{Key: key, Kind: merk.OpPut, Value: op.Element, ChildRootHash: crh}, false, nil
	case OpInsertIfNotExists:
		if res := m.Get(key); res.Err == nil {
			return merk.Op{}, true, nil // key already present: skip, nothing to write
		}
		crh, err := g.childRootHashForValue(parentPath, key, op.Element, tx)
		if err != nil {
			return merk.Op{}, false, err
		}
		return merk.Op{Key: key, Kind: merk.OpPut, Value: op.Element, ChildRootHash: crh}, false, nil
	case OpDelete, OpDeleteTree, OpDeleteSumTree:
		return merk.Op{Key: key, Kind: merk.OpDeleteLayered}, false, nil
	case OpRefreshReference:
		return merk.Op{Key: key, Kind: merk.OpRefreshReference, Value: op.Element}, false, nil
	case opInsertTreeWithRootHash:
		return merk.Op{Key: key, Kind: merk.OpReplace, Value: op.Element, ChildRootHash: op.ChildRootHash}, false, nil
	default:
		return merk.Op{}, false, ErrInvalidInput
	}
}

// childRootHashForValue resolves the child-subtree root hash to fold into a
// subtree-marker element's value_hash (spec.md 3 invariant 6, "Layered").
// A brand-new empty subtree (nil root key) folds in merk.ZeroHash. A
// SealedTree carries its opaque root hash directly. A caller-supplied
// element that already names a non-empty root key is an unusual path
// (normal subtree growth flows through the internal
// opInsertTreeWithRootHash op, which already carries the freshly computed
// hash from the child's own Apply) — this falls back to opening the child
// chain to read its current hash, logging a warning if that fails rather
// than silently leaving the entry unfolded.
func (g *GroveDb) childRootHashForValue(parentPath path.Path, key []byte, val element.Element, tx storage.RawTx) (*merk.Hash, error) {
	if val == nil || !val.Kind().IsSubtree() {
		return nil, nil
	}
	if st, ok := val.(element.SealedTree); ok {
		h := merk.Hash(st.RootHash)
		return &h, nil
	}
	rootKey, _ := element.RootKey(val)
	if rootKey == nil {
		h := merk.ZeroHash
		return &h, nil
	}
	childM, _, err := g.openMerkChain(parentPath.PushSegment(key), tx)
	if err != nil {
		g.log.WithError(err).Warn("grovedb: could not resolve child subtree root hash for pre-rooted insert; value_hash will not fold child state")
		return nil, nil
	}
	h := childM.RootHash()
	return &h, nil
}
