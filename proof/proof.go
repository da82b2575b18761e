// Package proof implements the multi-layer proof envelope of spec.md 4.7:
// a versioned, self-describing wrapper around a root-layer Merk proof plus a
// recursive map of lower-layer proofs for every key that fanned out into a
// subquery.
package proof

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"

	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/query"
)

// Proof subsystem errors (spec.md 4.7 "Errors").
var (
	ErrInvalidProof         = errors.New("proof: invalid proof")
	ErrRequestAmountExceeded = errors.New("proof: result limit exceeded")
	ErrNotSupported         = errors.New("proof: unbounded query item where bounded terminal keys are required")
)

// maxConditionalBranches bounds how many QueryItem encodings a single layer
// may carry, guarding the verifier against a hostile proof (spec.md 4.7
// "bound the number of conditional branches (cap 1024)").
const maxConditionalBranches = 1024

const envelopeVersion byte = 1

// LayerProof is one subtree's contribution to a multi-layer proof: the
// query items that were evaluated at this level (so the envelope is
// self-describing), this level's Merk proof bytes, and a recursive map of
// lower layers keyed by the parent-level key that fanned out into them.
type LayerProof struct {
	Items       []query.QueryItem
	MerkProof   []byte
	LowerLayers map[string]*LayerProof
}

// Envelope is the full versioned proof produced by ProveQuery.
type Envelope struct {
	Root *LayerProof
}

// Encode serializes an Envelope: version byte, then the recursive layer
// encoding.
func Encode(e *Envelope) []byte {
	var buf bytes.Buffer
	buf.WriteByte(envelopeVersion)
	encodeLayer(&buf, e.Root)
	return buf.Bytes()
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 || data[0] != envelopeVersion {
		return nil, ErrInvalidProof
	}
	r := &reader{buf: data, pos: 1}
	layer, err := decodeLayer(r)
	if err != nil {
		return nil, err
	}
	if !r.atEOF() {
		return nil, ErrInvalidProof
	}
	return &Envelope{Root: layer}, nil
}

func encodeLayer(buf *bytes.Buffer, l *LayerProof) {
	appendUvarint(buf, uint64(len(l.Items)))
	for _, it := range l.Items {
		encodeQueryItem(buf, it)
	}
	appendUvarint(buf, uint64(len(l.MerkProof)))
	buf.Write(l.MerkProof)
	appendUvarint(buf, uint64(len(l.LowerLayers)))
	// Deterministic order: sort keys lexicographically.
	keys := make([]string, 0, len(l.LowerLayers))
	for k := range l.LowerLayers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		appendUvarint(buf, uint64(len(k)))
		buf.WriteString(k)
		encodeLayer(buf, l.LowerLayers[k])
	}
}

func decodeLayer(r *reader) (*LayerProof, error) {
	itemCount, err := r.readUvarint()
	if err != nil || itemCount > maxConditionalBranches {
		return nil, ErrInvalidProof
	}
	l := &LayerProof{}
	for i := uint64(0); i < itemCount; i++ {
		item, err := decodeQueryItem(r)
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, item)
	}
	proofLen, err := r.readUvarint()
	if err != nil {
		return nil, ErrInvalidProof
	}
	mp, err := r.readN(int(proofLen))
	if err != nil {
		return nil, ErrInvalidProof
	}
	l.MerkProof = mp

	lowerCount, err := r.readUvarint()
	if err != nil || lowerCount > maxConditionalBranches {
		return nil, ErrInvalidProof
	}
	if lowerCount > 0 {
		l.LowerLayers = make(map[string]*LayerProof, lowerCount)
	}
	for i := uint64(0); i < lowerCount; i++ {
		klen, err := r.readUvarint()
		if err != nil {
			return nil, ErrInvalidProof
		}
		kbytes, err := r.readN(int(klen))
		if err != nil {
			return nil, ErrInvalidProof
		}
		child, err := decodeLayer(r)
		if err != nil {
			return nil, err
		}
		l.LowerLayers[string(kbytes)] = child
	}
	return l, nil
}

func encodeQueryItem(buf *bytes.Buffer, it query.QueryItem) {
	var flags byte
	if it.LowUnbounded {
		flags |= 1 << 0
	}
	if it.LowExcluded {
		flags |= 1 << 1
	}
	if it.HighUnbounded {
		flags |= 1 << 2
	}
	if it.HighExcluded {
		flags |= 1 << 3
	}
	buf.WriteByte(flags)
	if !it.LowUnbounded {
		appendUvarint(buf, uint64(len(it.Low)))
		buf.Write(it.Low)
	}
	if !it.HighUnbounded {
		appendUvarint(buf, uint64(len(it.High)))
		buf.Write(it.High)
	}
}

func decodeQueryItem(r *reader) (query.QueryItem, error) {
	flags, err := r.readByte()
	if err != nil {
		return query.QueryItem{}, ErrInvalidProof
	}
	it := query.QueryItem{
		LowUnbounded:  flags&(1<<0) != 0,
		LowExcluded:   flags&(1<<1) != 0,
		HighUnbounded: flags&(1<<2) != 0,
		HighExcluded:  flags&(1<<3) != 0,
	}
	if !it.LowUnbounded {
		n, err := r.readUvarint()
		if err != nil {
			return query.QueryItem{}, ErrInvalidProof
		}
		v, err := r.readN(int(n))
		if err != nil {
			return query.QueryItem{}, ErrInvalidProof
		}
		it.Low = v
	}
	if !it.HighUnbounded {
		n, err := r.readUvarint()
		if err != nil {
			return query.QueryItem{}, ErrInvalidProof
		}
		v, err := r.readN(int(n))
		if err != nil {
			return query.QueryItem{}, ErrInvalidProof
		}
		it.High = v
	}
	return it, nil
}

// Verify walks an Envelope layer by layer (spec.md 4.7 "Verification"),
// deriving each lower layer's expected root hash from its parent's matched
// value, and returns the outermost root hash plus every terminal
// (key, value) pair encountered, in query order.
//
// deriveChildHash computes the expected hash of the subtree a parent's
// matched value names, given that value's raw bytes — callers supply this since only grovedb knows how to decode
// an Element and fold its aggregate per spec.md 4.3 invariant 5.
func Verify(env *Envelope, expectedRootHash merk.Hash, deriveChildHash func(value []byte) (merk.Hash, error)) (merk.Hash, []merk.KVPair, error) {
	results, err := verifyLayer(env.Root, expectedRootHash, deriveChildHash)
	if err != nil {
		return merk.Hash{}, nil, err
	}
	return expectedRootHash, results, nil
}

func verifyLayer(l *LayerProof, expectedHash merk.Hash, deriveChildHash func(value []byte) (merk.Hash, error)) ([]merk.KVPair, error) {
	ops, err := merk.DecodeProof(l.MerkProof)
	if err != nil {
		return nil, err
	}
	kvs, err := merk.VerifyQuery(ops, expectedHash)
	if err != nil {
		return nil, err
	}

	var results []merk.KVPair
	for _, kv := range kvs {
		lower, ok := l.LowerLayers[string(kv.Key)]
		if !ok {
			results = append(results, kv)
			continue
		}
		childHash, err := deriveChildHash(kv.Value)
		if err != nil {
			return nil, err
		}
		childResults, err := verifyLayer(lower, childHash, deriveChildHash)
		if err != nil {
			return nil, err
		}
		results = append(results, childResults...)
	}
	return results, nil
}

func appendUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// reader is a tiny cursor mirroring merk's byteReader, duplicated here since
// merk's is unexported.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) atEOF() bool { return r.pos >= len(r.buf) }

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrInvalidProof
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrInvalidProof
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *reader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrInvalidProof
	}
	r.pos += n
	return v, nil
}
