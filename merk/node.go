package merk

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/dashpay/grovedb-sub006/element"
)

// ErrCorruptedNode is returned when a persisted node's bytes cannot be
// decoded — a fatal, non-recoverable condition per spec.md 7.
var ErrCorruptedNode = errors.New("merk: corrupted node encoding")

const (
	linkFlagLeft  = 1 << 0
	linkFlagRight = 1 << 1
)

// Node is a single Merk tree node: an Element wrapped with the hashes and
// child links spec.md 3 describes.
type Node struct {
	Key         []byte
	Value       element.Element
	ValueBytes  []byte
	ValueHash   Hash
	KVHash      Hash
	Left        *Link
	Right       *Link
	FeatureType FeatureType
	dirty       bool

	// childRootHash is the child subtree's own Merk root hash when Value is
	// a subtree-marker element, folded into ValueHash below (spec.md 3
	// invariant 6, "Layered"). Nil for non-subtree values. Not persisted —
	// a decoded node's ValueHash already has it baked in from whenever the
	// node was last committed.
	childRootHash *Hash
}

// height returns this node's own height: 1 + max(left height, right
// height), or 1 if it has no children.
func (n *Node) height() uint8 {
	lh := n.Left.Height()
	rh := n.Right.Height()
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

// balanceFactor is right height minus left height; the AVL invariant
// (spec.md 3 invariant 2) requires it stay within [-1, 1].
func (n *Node) balanceFactor() int {
	return int(n.Right.Height()) - int(n.Left.Height())
}

// newLeaf builds a freshly constructed, uncommitted leaf node from an
// element, computing its value hash and kv hash. childRootHash is the
// child subtree's current root hash when val is a subtree marker (nil
// otherwise); see valueHashForElement.
func newLeaf(key []byte, val element.Element, ft FeatureType, childRootHash *Hash) *Node {
	vb := element.Encode(val)
	vh := valueHashForElement(val, vb, childRootHash)
	return &Node{
		Key:           append([]byte(nil), key...),
		Value:         val,
		ValueBytes:    vb,
		ValueHash:     vh,
		KVHash:        KVDigestToKVHash(key, vh),
		FeatureType:   ft,
		childRootHash: childRootHash,
		dirty:         true,
	}
}

// refreshValue recomputes ValueBytes/ValueHash/KVHash after Value changes
// (used by Put-on-existing-key, RefreshReference, and cost-feedback flag
// rewrites), folding in whatever childRootHash is already recorded on n.
func (n *Node) refreshValue() {
	n.ValueBytes = element.Encode(n.Value)
	n.ValueHash = valueHashForElement(n.Value, n.ValueBytes, n.childRootHash)
	n.KVHash = KVDigestToKVHash(n.Key, n.ValueHash)
}

// ownAggregate returns just this node's own contribution to the aggregate,
// excluding both children — the piece a proof's KVHash/KV node carries so a
// verifier can fold in children's aggregates incrementally as it replays
// Parent/Child ops, ending at the same total aggregate() would compute.
func (n *Node) ownAggregate() Aggregate {
	own := Aggregate{}
	switch n.FeatureType {
	case FeatureSummed, FeatureCountedSummed, FeatureProvableCountedSummed:
		own.Sum = element.OwnContribution(n.Value)
		if agg := element.Aggregate(n.Value); agg.Kind == element.AggregateSum || agg.Kind == element.AggregateCountSum {
			own.Sum += agg.Sum
		}
	}
	switch n.FeatureType {
	case FeatureCounted, FeatureCountedSummed, FeatureProvableCounted, FeatureProvableCountedSummed:
		own.Count = 1
		if agg := element.Aggregate(n.Value); agg.Kind == element.AggregateCount || agg.Kind == element.AggregateCountSum {
			own.Count += agg.Count
		}
	}
	return own
}

// aggregate returns this node's full Aggregate value: its own contribution
// plus both children's aggregates (spec.md 3 invariant 4). Children's
// aggregates are only available while loaded; a Reference-state link
// contributes its last-known subtree aggregate, which is folded into
// ValueHash at commit time for non-provable types and is otherwise exact.
func (n *Node) aggregate() Aggregate {
	own := n.ownAggregate()
	var childAgg Aggregate
	if n.Left != nil && n.Left.Child != nil {
		childAgg = childAgg.Add(n.Left.Child.aggregate())
	}
	if n.Right != nil && n.Right.Child != nil {
		childAgg = childAgg.Add(n.Right.Child.aggregate())
	}
	return own.Add(childAgg)
}

// hash computes the hash a parent should record for this node, per
// spec.md 4.3's "Hash-for-link" invariant.
func (n *Node) hash() Hash {
	leftHash := Hash{}
	if n.Left != nil {
		leftHash = n.Left.Hash
	}
	rightHash := Hash{}
	if n.Right != nil {
		rightHash = n.Right.Hash
	}
	return computeNodeHash(n.FeatureType, n.KVHash, leftHash, rightHash, n.aggregate())
}

// encode serializes n per spec.md 6's data-namespace node layout:
// link-present flags + feature type byte, optional left link, optional
// right link, then the KV block (kv_hash || value_hash || varint-len value).
func (n *Node) encode() []byte {
	var buf bytes.Buffer
	var flags byte
	if n.Left != nil && n.Left.State != LinkNone {
		flags |= linkFlagLeft
	}
	if n.Right != nil && n.Right.State != LinkNone {
		flags |= linkFlagRight
	}
	buf.WriteByte(flags)
	buf.WriteByte(byte(n.FeatureType))

	encodeLink(&buf, n.Left)
	encodeLink(&buf, n.Right)

	buf.Write(n.KVHash[:])
	buf.Write(n.ValueHash[:])
	var lenBuf [binary.MaxVarintLen64]byte
	ln := binary.PutUvarint(lenBuf[:], uint64(len(n.ValueBytes)))
	buf.Write(lenBuf[:ln])
	buf.Write(n.ValueBytes)
	return buf.Bytes()
}

// decodeNode parses bytes produced by encode, given the node's storage key
// (implicit in storage, not encoded inline).
func decodeNode(key, data []byte) (*Node, error) {
	r := &byteReader{buf: data}
	flags, err := r.readByte()
	if err != nil {
		return nil, ErrCorruptedNode
	}
	ftByte, err := r.readByte()
	if err != nil {
		return nil, ErrCorruptedNode
	}

	n := &Node{Key: append([]byte(nil), key...), FeatureType: FeatureType(ftByte)}

	if flags&linkFlagLeft != 0 {
		l, err := decodeLink(r)
		if err != nil {
			return nil, ErrCorruptedNode
		}
		n.Left = l
	}
	if flags&linkFlagRight != 0 {
		l, err := decodeLink(r)
		if err != nil {
			return nil, ErrCorruptedNode
		}
		n.Right = l
	}

	if err := r.readFixed(n.KVHash[:]); err != nil {
		return nil, ErrCorruptedNode
	}
	if err := r.readFixed(n.ValueHash[:]); err != nil {
		return nil, ErrCorruptedNode
	}
	valLen, err := r.readUvarint()
	if err != nil {
		return nil, ErrCorruptedNode
	}
	valueBytes, err := r.readN(int(valLen))
	if err != nil {
		return nil, ErrCorruptedNode
	}
	if !r.atEOF() {
		return nil, ErrCorruptedNode
	}

	val, err := element.Decode(valueBytes)
	if err != nil {
		return nil, ErrCorruptedNode
	}
	n.Value = val
	n.ValueBytes = valueBytes
	return n, nil
}

// byteReader is a tiny cursor used by node/link decoding.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) atEOF() bool { return r.pos >= len(r.buf) }

func (r *byteReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errTruncatedLink
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) readFixed(dst []byte) error {
	if r.pos+len(dst) > len(r.buf) {
		return errTruncatedLink
	}
	copy(dst, r.buf[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
	return nil
}

func (r *byteReader) readN(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, errTruncatedLink
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *byteReader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errTruncatedLink
	}
	r.pos += n
	return v, nil
}
