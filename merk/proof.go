package merk

import (
	"bytes"

	"github.com/dashpay/grovedb-sub006/cost"
)

// Range describes one ordered key interval a proof query covers. A nil
// Start/End means "unbounded on this side" (spec.md 4.7's RangeFrom/RangeTo/
// RangeFull); StartExcluded/EndExcluded distinguish the After/Inclusive
// variants. The richer QueryItem/Query/SubqueryBranch language of spec.md
// 4.7 is built one layer up, in terms of these primitive ranges.
type Range struct {
	Start         []byte
	StartExcluded bool
	End           []byte
	EndExcluded   bool
}

// KeyRange builds the single-key range used for QueryItem::Key.
func KeyRange(key []byte) Range { return Range{Start: key, End: key} }

func (r Range) containsLow(key []byte) bool {
	if r.Start == nil {
		return true
	}
	c := bytes.Compare(key, r.Start)
	if r.StartExcluded {
		return c > 0
	}
	return c >= 0
}

func (r Range) containsHigh(key []byte) bool {
	if r.End == nil {
		return true
	}
	c := bytes.Compare(key, r.End)
	if r.EndExcluded {
		return c < 0
	}
	return c <= 0
}

func (r Range) contains(key []byte) bool {
	return r.containsLow(key) && r.containsHigh(key)
}

// belowRange reports whether every key <= the given one is still too low to
// ever satisfy r, letting traversal skip a whole left subtree.
func (r Range) belowRange(key []byte) bool {
	return !r.containsLow(key)
}

// aboveRange reports the symmetric case for skipping a right subtree.
func (r Range) aboveRange(key []byte) bool {
	return !r.containsHigh(key)
}

func anyContains(ranges []Range, key []byte) bool {
	for _, r := range ranges {
		if r.contains(key) {
			return true
		}
	}
	return false
}

func allBelow(ranges []Range, key []byte) bool {
	for _, r := range ranges {
		if !r.belowRange(key) {
			return false
		}
	}
	return true
}

func allAbove(ranges []Range, key []byte) bool {
	for _, r := range ranges {
		if !r.aboveRange(key) {
			return false
		}
	}
	return true
}

// nodeKind discriminates the proof node variants of spec.md 4.7 step 3. Every
// non-opaque variant carries its node's feature type and own aggregate
// contribution (descendants excluded; the verifier adds each child's
// aggregate as it attaches it) alongside its kv_hash, so the verifier
// can recompute node_hash/node_hash_with_count/sum uniformly whether or not
// the underlying tree is provable-count; this merges spec.md's separate
// "KVHash" and "provable-count variant" entries into one payload shape.
type nodeKind byte

const (
	// nodeHash is an opaque, already-final subtree hash: an unvisited
	// sibling, pruned once limit is reached or a range excludes it entirely.
	nodeHash nodeKind = iota
	// nodeKVHash is an on-path node outside every query range: enough to
	// recompute its contribution to an ancestor's hash, but no KV payload.
	nodeKVHash
	// nodeKV is a matched leaf/node: carries the raw key/value so the
	// verifier can recompute value_hash and kv_hash from scratch.
	nodeKV
)

// proofNode is one operand pushed onto the verifier's stack.
type proofNode struct {
	Kind        nodeKind
	Hash        Hash // nodeHash only
	KVHash      Hash // nodeKVHash only
	Key         []byte
	Value       []byte
	FeatureType FeatureType
	Aggregate   Aggregate
	// ChildRootHash carries a nodeKV's recorded childRootHash (spec.md 3
	// invariant 6, "Layered"), nil unless the matched node is a subtree
	// marker. Needed so a verifier can recompute the same value_hash the
	// original node committed, rather than just hashing Value's raw bytes.
	ChildRootHash *Hash
}

// opCode discriminates the stack-machine combinators of spec.md 4.3 ("Push
// ops ... interleaved with Parent/Child combinators"). Convention: Push(node)
// places an accumulator on the stack; Parent pops the top item and attaches
// it as the LEFT child of the (new) top item; Child pops the top item and
// attaches it as the RIGHT child of the (new) top item. Construction emits,
// for a node with both children, Push(self) followed by each child's ops in
// visit order, each closed by Parent (left child) or Child (right child):
// Push(self) [left ops] Parent [right ops] Child when traversing left to
// right, Push(self) [right ops] Child [left ops] Parent otherwise. Since the
// combinator names the side, both orders rebuild the same
// node_hash(kv_hash, left_hash, right_hash).
type opCode byte

const (
	opPush opCode = iota
	opParent
	opChild
)

// ProofOp is a single instruction in a proof's op sequence.
type ProofOp struct {
	Code opCode
	Node *proofNode // non-nil only when Code == opPush
}

// KVPair is one terminal result surfaced by a proved query.
type KVPair struct {
	Key   []byte
	Value []byte
}

// ChildRootHashResolver supplies the current root hash of the child subtree
// addressed by a subtree-marker node, so a proof can recompute that node's
// real (folded) value_hash rather than just hashing its raw element bytes
// (spec.md 3 invariant 6, "Layered"). A nil resolver (or one returning nil)
// leaves such a node's ChildRootHash unset, which only verifies correctly
// against an unfolded single-subtree hash — callers proving a GroveDB path
// that may contain nested subtrees must supply one; grovedb/proof.go does,
// backed by the same resolution childRootHashForValue uses at insert time.
type ChildRootHashResolver func(n *Node) *Hash

// proveState accumulates the op sequence and matched results across the
// recursive walk, and tracks the caller's remaining limit (-1 = unbounded).
type proveState struct {
	ops       []ProofOp
	results   []KVPair
	remaining int
	cost      cost.OperationCost
	resolver  ChildRootHashResolver
}

func (s *proveState) limitReached() bool { return s.remaining == 0 }

// Prove walks the tree guided by an ordered, disjoint list of ranges and an
// optional limit (<0 means unbounded), producing a proof op sequence (spec.md
// 4.3 "Proof construction"). resolver supplies child-subtree root hashes for
// matched subtree-marker nodes; nil is valid for single-subtree-only proofs.
func (m *Merk) Prove(ranges []Range, limit int, leftToRight bool, resolver ChildRootHashResolver) cost.Result[[]ProofOp] {
	st := &proveState{remaining: limit, resolver: resolver}
	if m.root == nil {
		return cost.Ok(st.ops, st.cost)
	}
	if err := m.proveNode(m.root, ranges, leftToRight, st); err != nil {
		return cost.ErrResult[[]ProofOp](err, st.cost)
	}
	return cost.Ok(st.ops, st.cost)
}

// ProveResults is a convenience wrapper over Prove that also returns the
// matched (key,value) pairs, for callers that don't need to keep the op
// sequence and results as two separate round trips.
func (m *Merk) ProveResults(ranges []Range, limit int, leftToRight bool, resolver ChildRootHashResolver) ([]ProofOp, []KVPair, cost.OperationCost, error) {
	st := &proveState{remaining: limit, resolver: resolver}
	if m.root == nil {
		return st.ops, st.results, st.cost, nil
	}
	if err := m.proveNode(m.root, ranges, leftToRight, st); err != nil {
		return nil, nil, st.cost, err
	}
	return st.ops, st.results, st.cost, nil
}

// proveNode appends node's ops (and its subtrees') to st.ops: Push(self),
// then each visited child's ops closed by Parent (left) or Child (right).
func (m *Merk) proveNode(node *Node, ranges []Range, leftToRight bool, st *proveState) error {
	if anyContains(ranges, node.Key) && !st.limitReached() {
		pushMatchedNode(node, st)
		if st.remaining > 0 {
			st.remaining--
		}
	} else {
		st.ops = append(st.ops, ProofOp{Code: opPush, Node: &proofNode{
			Kind:        nodeKVHash,
			KVHash:      node.KVHash,
			FeatureType: node.FeatureType,
			Aggregate:   node.ownAggregate(),
		}})
	}

	// Visit order (affecting limit consumption / result order) follows
	// leftToRight, and so does emission order; the combinator emitted after
	// each child (Parent or Child) fixes which side it is attached to.
	first, second := node.Left, node.Right
	firstIsLeft := true
	if !leftToRight {
		first, second = node.Right, node.Left
		firstIsLeft = false
	}
	if err := m.attachChild(node, first, ranges, leftToRight, firstIsLeft, st); err != nil {
		return err
	}
	if err := m.attachChild(node, second, ranges, leftToRight, !firstIsLeft, st); err != nil {
		return err
	}
	return nil
}

// attachChild recurses into link's child when it might still contain a
// matching key and the limit isn't exhausted, pruning whole subtrees
// entirely outside every range (spec.md 4.3 steps 4-5). It always appends
// the trailing Parent (isLeft) or Child (!isLeft) combinator when link is
// non-nil, since a node's structural children are always rebuilt on proof
// replay whether or not their contents were visited.
func (m *Merk) attachChild(parent *Node, link *Link, ranges []Range, leftToRight, isLeft bool, st *proveState) error {
	if link == nil {
		return nil
	}
	visited := false
	if !st.limitReached() {
		prune := false
		if isLeft && allBelow(ranges, parent.Key) {
			prune = true
		}
		if !isLeft && allAbove(ranges, parent.Key) {
			prune = true
		}
		if !prune {
			if err := m.loadLinkChild(link, &st.cost); err != nil {
				return err
			}
			if link.Child != nil {
				if err := m.proveNode(link.Child, ranges, leftToRight, st); err != nil {
					return err
				}
				visited = true
			}
		}
	}
	if !visited {
		st.ops = append(st.ops, ProofOp{Code: opPush, Node: &proofNode{Kind: nodeHash, Hash: link.Hash}})
	}
	if isLeft {
		st.ops = append(st.ops, ProofOp{Code: opParent})
	} else {
		st.ops = append(st.ops, ProofOp{Code: opChild})
	}
	return nil
}

func pushMatchedNode(node *Node, st *proveState) {
	childRootHash := node.childRootHash
	if node.Value != nil && node.Value.Kind().IsSubtree() && st.resolver != nil {
		if resolved := st.resolver(node); resolved != nil {
			childRootHash = resolved
		}
	}
	st.ops = append(st.ops, ProofOp{Code: opPush, Node: &proofNode{
		Kind:          nodeKV,
		Key:           append([]byte(nil), node.Key...),
		Value:         append([]byte(nil), node.ValueBytes...),
		FeatureType:   node.FeatureType,
		Aggregate:     node.ownAggregate(),
		ChildRootHash: childRootHash,
	}})
	st.results = append(st.results, KVPair{Key: append([]byte(nil), node.Key...), Value: append([]byte(nil), node.ValueBytes...)})
}
