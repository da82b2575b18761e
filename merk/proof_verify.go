package merk

import (
	"encoding/binary"
	"errors"
)

// ErrInvalidProof covers every stack-machine execution failure: malformed
// op sequences, unexpected node variants, and hash mismatches (spec.md 4.3
// "Proof verification").
var ErrInvalidProof = errors.New("merk: invalid proof")

// maxProofOps bounds a single proof's op count, guarding the verifier against
// unbounded recursion on a hostile proof (spec.md 4.3 "recursion bound").
const maxProofOps = 1 << 20

const proofVersion byte = 1

// EncodeProof serializes an op sequence: version byte, uvarint op count,
// then each op as a tag byte plus its node payload (absent for
// Parent/Child).
func EncodeProof(ops []ProofOp) []byte {
	buf := make([]byte, 0, 64+len(ops)*40)
	buf = append(buf, proofVersion)
	buf = appendUvarint(buf, uint64(len(ops)))
	for _, op := range ops {
		buf = append(buf, byte(op.Code))
		if op.Code == opPush {
			buf = encodeProofNode(buf, op.Node)
		}
	}
	return buf
}

// DecodeProof parses bytes produced by EncodeProof.
func DecodeProof(data []byte) ([]ProofOp, error) {
	if len(data) == 0 || data[0] != proofVersion {
		return nil, ErrInvalidProof
	}
	r := &byteReader{buf: data, pos: 1}
	count, err := r.readUvarint()
	if err != nil || count > maxProofOps {
		return nil, ErrInvalidProof
	}
	ops := make([]ProofOp, 0, count)
	for i := uint64(0); i < count; i++ {
		tag, err := r.readByte()
		if err != nil {
			return nil, ErrInvalidProof
		}
		op := ProofOp{Code: opCode(tag)}
		switch op.Code {
		case opPush:
			node, err := decodeProofNode(r)
			if err != nil {
				return nil, ErrInvalidProof
			}
			op.Node = node
		case opParent, opChild:
		default:
			return nil, ErrInvalidProof
		}
		ops = append(ops, op)
	}
	if !r.atEOF() {
		return nil, ErrInvalidProof
	}
	return ops, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendAggregate(buf []byte, ft FeatureType, agg Aggregate) []byte {
	buf = append(buf, byte(ft))
	var sumBuf [8]byte
	binary.BigEndian.PutUint64(sumBuf[:], uint64(agg.Sum))
	buf = append(buf, sumBuf[:]...)
	buf = appendUvarint(buf, agg.Count)
	return buf
}

func readAggregate(r *byteReader) (FeatureType, Aggregate, error) {
	ftByte, err := r.readByte()
	if err != nil {
		return 0, Aggregate{}, err
	}
	var sumBuf [8]byte
	if err := r.readFixed(sumBuf[:]); err != nil {
		return 0, Aggregate{}, err
	}
	count, err := r.readUvarint()
	if err != nil {
		return 0, Aggregate{}, err
	}
	return FeatureType(ftByte), Aggregate{Sum: int64(binary.BigEndian.Uint64(sumBuf[:])), Count: count}, nil
}

func encodeProofNode(buf []byte, n *proofNode) []byte {
	buf = append(buf, byte(n.Kind))
	switch n.Kind {
	case nodeHash:
		buf = append(buf, n.Hash[:]...)
	case nodeKVHash:
		buf = append(buf, n.KVHash[:]...)
		buf = appendAggregate(buf, n.FeatureType, n.Aggregate)
	case nodeKV:
		buf = appendUvarint(buf, uint64(len(n.Key)))
		buf = append(buf, n.Key...)
		buf = appendUvarint(buf, uint64(len(n.Value)))
		buf = append(buf, n.Value...)
		buf = appendAggregate(buf, n.FeatureType, n.Aggregate)
		if n.ChildRootHash != nil {
			buf = append(buf, 1)
			buf = append(buf, n.ChildRootHash[:]...)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func decodeProofNode(r *byteReader) (*proofNode, error) {
	kindByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	n := &proofNode{Kind: nodeKind(kindByte)}
	switch n.Kind {
	case nodeHash:
		var h Hash
		if err := r.readFixed(h[:]); err != nil {
			return nil, err
		}
		n.Hash = h
	case nodeKVHash:
		var h Hash
		if err := r.readFixed(h[:]); err != nil {
			return nil, err
		}
		n.KVHash = h
		ft, agg, err := readAggregate(r)
		if err != nil {
			return nil, err
		}
		n.FeatureType, n.Aggregate = ft, agg
	case nodeKV:
		kl, err := r.readUvarint()
		if err != nil {
			return nil, err
		}
		key, err := r.readN(int(kl))
		if err != nil {
			return nil, err
		}
		n.Key = key
		vl, err := r.readUvarint()
		if err != nil {
			return nil, err
		}
		val, err := r.readN(int(vl))
		if err != nil {
			return nil, err
		}
		n.Value = val
		ft, agg, err := readAggregate(r)
		if err != nil {
			return nil, err
		}
		n.FeatureType, n.Aggregate = ft, agg
		hasChildRoot, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if hasChildRoot != 0 {
			var h Hash
			if err := r.readFixed(h[:]); err != nil {
				return nil, err
			}
			n.ChildRootHash = &h
		}
	default:
		return nil, ErrInvalidProof
	}
	return n, nil
}

// stackItem is the verifier's per-stack-slot accumulator. isOpaque items
// (from a nodeHash push) carry only their already-final hash. Non-opaque
// items carry enough to recompute their own combined hash once their left
// and right children (if any) are attached via opParent/opChild.
type stackItem struct {
	isOpaque   bool
	opaqueHash Hash

	kvHash Hash
	ft     FeatureType
	ownAgg Aggregate // this node's own contribution, as pushed; children's aggregates are kept in leftAgg/rightAgg

	leftHash  Hash
	leftAgg   Aggregate
	rightHash Hash
	rightAgg  Aggregate

	hasKV bool
	key   []byte
	value []byte
}

// hash computes this item's contribution when read as a child value or as
// the final root.
func (t *stackItem) hash() Hash {
	if t.isOpaque {
		return t.opaqueHash
	}
	agg := t.ownAgg.Add(t.leftAgg).Add(t.rightAgg)
	return computeNodeHash(t.ft, t.kvHash, t.leftHash, t.rightHash, agg)
}

// aggregate returns the full aggregate folded into this item so far (own
// contribution plus whichever children have already been attached).
func (t *stackItem) aggregate() Aggregate {
	return t.ownAgg.Add(t.leftAgg).Add(t.rightAgg)
}

// VerifyQuery executes a decoded op sequence as a stack machine (spec.md 4.3
// "Proof verification"), returning the matched (key,value) pairs in
// encounter order, or an error when the reconstructed root hash differs from
// expectedRootHash. It is stateless: it neither
// reads storage nor trusts anything but the bytes in ops.
func VerifyQuery(ops []ProofOp, expectedRootHash Hash) ([]KVPair, error) {
	if len(ops) == 0 {
		if expectedRootHash != ZeroHash {
			return nil, ErrInvalidProof
		}
		return nil, nil
	}

	var stack []*stackItem
	var results []KVPair

	pop := func() (*stackItem, error) {
		if len(stack) == 0 {
			return nil, ErrInvalidProof
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
				return nil, err
			}
			if item.hasKV {
				results = append(results, KVPair{Key: item.key, Value: item.value})
			}
			stack = append(stack, item)
		case opParent:
			child, err := pop()
			if err != nil {
				return nil, err
			}
			top, err := pop()
			if err != nil {
				return nil, err
			}
			if top.isOpaque {
				return nil, ErrInvalidProof
			}
			top.leftHash = child.hash()
			top.leftAgg = child.aggregate()
			stack = append(stack, top)
		case opChild:
			child, err := pop()
			if err != nil {
				return nil, err
			}
			top, err := pop()
			if err != nil {
				return nil, err
			}
			if top.isOpaque {
				return nil, ErrInvalidProof
			}
			top.rightHash = child.hash()
			top.rightAgg = child.aggregate()
			stack = append(stack, top)
		default:
			return nil, ErrInvalidProof
		}
	}

	if len(stack) != 1 {
		return nil, ErrInvalidProof
	}
	if stack[0].hash() != expectedRootHash {
		return nil, ErrInvalidProof
	}
	return results, nil
}

// nodeToStackItem converts a freshly-pushed proofNode into its stackItem
// representation.
func nodeToStackItem(n *proofNode) (*stackItem, error) {
	switch n.Kind {
	case nodeHash:
		return &stackItem{isOpaque: true, opaqueHash: n.Hash}, nil
	case nodeKVHash:
		return &stackItem{kvHash: n.KVHash, ft: n.FeatureType, ownAgg: n.Aggregate}, nil
	case nodeKV:
		vh := foldChildRootHash(ValueHash(n.Value), n.ChildRootHash)
		kv := KVDigestToKVHash(n.Key, vh)
		return &stackItem{kvHash: kv, ft: n.FeatureType, ownAgg: n.Aggregate, hasKV: true, key: n.Key, value: n.Value}, nil
	default:
		return nil, ErrInvalidProof
	}
}
