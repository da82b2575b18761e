// Package merk implements the single-subtree authenticated AVL-Merkle
// structure of spec.md 4.3: node encoding, the Blake3-256 hashing scheme,
// the apply/rotation algorithm, proof construction/verification, and
// chunked restoration primitives.
package merk

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/dashpay/grovedb-sub006/element"
)

// HashLength is the digest size of the canonical hash primitive (spec.md 6).
const HashLength = 32

// Hash is a 32-byte Blake3-256 digest.
type Hash [HashLength]byte

// ZeroHash is the canonical "no child" / "empty tree" placeholder
// (spec.md 4.3).
var ZeroHash Hash

func sum(parts ...[]byte) Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ValueHash computes H(value_bytes).
func ValueHash(valueBytes []byte) Hash {
	return sum(valueBytes)
}

// valueHashForElement computes the value_hash a node records for val,
// folding in the child subtree's root hash when val is a subtree-marker
// element (spec.md 3 invariant 6, "Layered": "its value_hash is replaced by
// the subtree's root hash combined with the element's own bytes-hash").
// childRootHash is nil for non-subtree elements, or when the caller has no
// child hash to fold (in which case the plain bytes-hash is used as-is).
func valueHashForElement(val element.Element, valueBytes []byte, childRootHash *Hash) Hash {
	base := ValueHash(valueBytes)
	if val == nil || !val.Kind().IsSubtree() {
		return base
	}
	return foldChildRootHash(base, childRootHash)
}

// foldChildRootHash applies the same "Layered" fold as valueHashForElement,
// but against an already-computed base hash rather than a decoded element —
// used by proof verification and chunk replay, which only ever see a
// proofNode's raw bytes plus whatever ChildRootHash its producer attached
// (nil for non-subtree nodes).
func foldChildRootHash(base Hash, childRootHash *Hash) Hash {
	if childRootHash == nil {
		return base
	}
	return sum(childRootHash[:], base[:])
}

// KVDigestToKVHash computes H(varint(|key|) || key || value_hash), the
// kv_hash of spec.md 4.3.
func KVDigestToKVHash(key []byte, valueHash Hash) Hash {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
	return sum(lenBuf[:n], key, valueHash[:])
}

// NodeHash computes H(kv_hash || left_hash || right_hash), used for
// Basic/Normal feature types (spec.md 4.3).
func NodeHash(kvHash, leftHash, rightHash Hash) Hash {
	return sum(kvHash[:], leftHash[:], rightHash[:])
}

// NodeHashWithAggregate computes H(kv_hash || left_hash || right_hash ||
// encode(aggregate)), used for provable aggregate feature types whose
// aggregate must be folded directly into every ancestor's hash (spec.md 4.3
// invariant 5).
func NodeHashWithAggregate(kvHash, leftHash, rightHash Hash, encodedAggregate []byte) Hash {
	return sum(kvHash[:], leftHash[:], rightHash[:], encodedAggregate)
}

// encodeCount encodes a uint64 count for folding into a provable-count node
// hash.
func encodeCount(count uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], count)
	return b[:]
}

// encodeCountSum encodes a (count, sum) pair for folding into a
// provable-count-sum node hash.
func encodeCountSum(count uint64, sum int64) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], count)
	binary.BigEndian.PutUint64(b[8:], uint64(sum))
	return b[:]
}
