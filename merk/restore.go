package merk

import (
	"errors"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/storage"
)

// Chunk-level restoration errors (spec.md 4.8).
var (
	ErrUnexpectedChunk       = errors.New("merk: unexpected chunk")
	ErrInvalidChunkProof     = errors.New("merk: chunk hash does not match expected root hash")
	ErrRestorationNotComplete = errors.New("merk: restoration not complete")
)

// ChunkID names a traversal instruction (a sequence of left/right
// descending bits) identifying which subtree chunk follows (spec.md 4.8
// step 1). false = left, true = right.
type ChunkID []bool

func (id ChunkID) key() string {
	b := make([]byte, len(id))
	for i, bit := range id {
		if bit {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

// ChunkProducer is the source-side counterpart to Restorer: it serves the
// full node set of one subtree as a single proof-op chunk addressed by the
// root ChunkID (spec.md 4.8 step 1). Splitting one large subtree across
// multiple ChunkIDs is not implemented — every subtree is currently produced
// (and consumed by Restorer) as one chunk.
type ChunkProducer struct {
	m *Merk
}

// NewChunkProducer wraps m for chunked replication reads.
func NewChunkProducer(m *Merk) *ChunkProducer {
	return &ChunkProducer{m: m}
}

// Chunk produces the ops for id, resolving subtree-marker child root hashes
// through resolver so a consuming Restorer can verify the Layered fold
// (spec.md 3 invariant 6) rather than just each leaf's raw bytes-hash.
func (c *ChunkProducer) Chunk(id ChunkID, resolver ChildRootHashResolver) ([]ProofOp, error) {
	if len(id) != 0 {
		return nil, ErrUnexpectedChunk
	}
	res := c.m.Prove([]Range{{}}, -1, true, resolver)
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value, nil
}

// ChunkChildPath records, for one restored subtree-marker leaf, the derived
// child path a caller one layer up (GroveDB) should use to seed a nested
// Restorer once this chunk stream is exhausted.
type ChunkChildPath struct {
	ParentKey []byte
	RootKey   []byte
	RootHash  Hash
}

// Restorer reconstructs a replica Merk from a stream of chunks, verifying
// each against an expected root hash it learned from a previously verified
// parent chunk (spec.md 4.8). One Restorer handles exactly one subtree;
// GroveDB-level replication drives one Restorer per path, seeding each
// child's expected hash from ChunkChildPath entries surfaced here.
type Restorer struct {
	ctx                *storage.Context
	expectedRootHashes map[string]Hash
	pendingChildren    []ChunkChildPath
}

// NewRestorer seeds a Restorer for one subtree with the root hash it must
// ultimately match.
func NewRestorer(ctx *storage.Context, expectedRootHash Hash) *Restorer {
	return &Restorer{
		ctx:                ctx,
		expectedRootHashes: map[string]Hash{"": expectedRootHash},
	}
}

// ProcessChunk verifies one (ChunkID, ops) pair against its expected hash,
// persists the chunk's KV nodes into replica storage, and records any
// nested subtree markers it finds for later verification.
func (r *Restorer) ProcessChunk(id ChunkID, ops []ProofOp) error {
	key := id.key()
	expected, ok := r.expectedRootHashes[key]
	if !ok {
		return ErrUnexpectedChunk
	}

	root, nodes, err := decodeChunkTree(ops)
	if err != nil {
		return ErrInvalidChunkProof
	}
	if root.hash() != expected {
		return ErrInvalidChunkProof
	}

	for _, n := range nodes {
		if err := r.persistNode(n); err != nil {
			return err
		}
		el, err := element.Decode(n.value)
		if err == nil {
			if rootKey, ok := element.RootKey(el); ok && rootKey != nil {
				var childRootHash Hash
				if n.childRootHash != nil {
					childRootHash = *n.childRootHash
				}
				r.pendingChildren = append(r.pendingChildren, ChunkChildPath{
					ParentKey: append([]byte(nil), n.key...),
					RootKey:   rootKey,
					RootHash:  childRootHash,
				})
			}
		}
	}

	delete(r.expectedRootHashes, key)
	return nil
}

// PendingChildren drains and returns the subtree markers discovered since
// the last call, for the caller to seed nested Restorers.
func (r *Restorer) PendingChildren() []ChunkChildPath {
	out := r.pendingChildren
	r.pendingChildren = nil
	return out
}

// Finalize reports whether every expected hash has been satisfied.
func (r *Restorer) Finalize() error {
	if len(r.expectedRootHashes) != 0 {
		return ErrRestorationNotComplete
	}
	return nil
}

func (r *Restorer) persistNode(n *chunkNode) error {
	res := r.ctx.Put(storage.Data, n.key, n.encoded, nil)
	return res.Err
}

// chunkNode is a flattened, verified (key, value, encoded) triple extracted
// while replaying a chunk's ops.
type chunkNode struct {
	key           []byte
	value         []byte
	encoded       []byte
	childRootHash *Hash
}

// chunkTreeNode is the stack accumulator used to reconstruct a Tree (and its
// hash) from a chunk's ops, mirroring stackItem but additionally retaining
// everything needed to re-derive each visited node's storage encoding.
type chunkTreeNode struct {
	*stackItem
	valueBytes []byte
}

// decodeChunkTree replays ops exactly as VerifyQuery does, but additionally
// emits the flattened KV nodes visited (spec.md 4.8 step 3/4): a chunk,
// unlike a query proof, is expected to carry every node as a nodeKV (a
// restoration chunk proves inclusion of entire subtrees, not selected keys).
func decodeChunkTree(ops []ProofOp) (*stackItem, []*chunkNode, error) {
	var stack []*chunkTreeNode
	var nodes []*chunkNode

	pop := func() (*chunkTreeNode, error) {
		if len(stack) == 0 {
			return nil, ErrInvalidChunkProof
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top, nil
	}

	for _, op := range ops {
		switch op.Code {
		case opPush:
			item, err := nodeToStackItem(op.Node)
			if err != nil {
				return nil, nil, err
			}
			ct := &chunkTreeNode{stackItem: item}
			if op.Node.Kind == nodeKV {
				encoded := reencodeChunkNode(op.Node)
				ct.valueBytes = op.Node.Value
				nodes = append(nodes, &chunkNode{key: op.Node.Key, value: op.Node.Value, encoded: encoded, childRootHash: op.Node.ChildRootHash})
			}
			stack = append(stack, ct)
		case opParent:
			child, err := pop()
			if err != nil {
				return nil, nil, err
			}
			top, err := pop()
			if err != nil {
				return nil, nil, err
			}
			top.leftHash = child.hash()
			top.leftAgg = child.aggregate()
			stack = append(stack, top)
		case opChild:
			child, err := pop()
			if err != nil {
				return nil, nil, err
			}
			top, err := pop()
			if err != nil {
				return nil, nil, err
			}
			top.rightHash = child.hash()
			top.rightAgg = child.aggregate()
			stack = append(stack, top)
		default:
			return nil, nil, ErrInvalidChunkProof
		}
	}

	if len(stack) != 1 {
		return nil, nil, ErrInvalidChunkProof
	}
	return stack[0].stackItem, nodes, nil
}

// reencodeChunkNode rebuilds the on-disk node encoding for a leaf chunk
// node. Chunks carry no link information of their own (links are rebuilt as
// the replica's own tree is assembled top-down from successive chunks), so a
// restored node is persisted as a linkless leaf; subsequent chunks covering
// its descendants attach their own links when persisted, and a follow-up
// rebalance pass (run by the GroveDB-level restorer once a subtree is fully
// received) restores the AVL structure proper.
func reencodeChunkNode(n *proofNode) []byte {
	leaf := newLeaf(n.Key, mustDecodeElement(n.Value), n.FeatureType, n.ChildRootHash)
	return leaf.encode()
}

func mustDecodeElement(b []byte) element.Element {
	el, err := element.Decode(b)
	if err != nil {
		return element.Item{Value: b}
	}
	return el
}
