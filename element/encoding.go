package element

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the current wire version of Element encoding (spec.md 4.4,
// "version-prefixed").
const Version byte = 1

var (
	// ErrUnknownDiscriminant is returned when decoding a byte string whose
	// discriminant byte does not match any known Kind.
	ErrUnknownDiscriminant = errors.New("element: unknown discriminant byte")
	// ErrTrailingBytes is returned when decoding leaves unconsumed bytes.
	ErrTrailingBytes = errors.New("element: trailing bytes after decode")
	// ErrVersionMismatch is returned when the leading version byte does not
	// match Version.
	ErrVersionMismatch = errors.New("element: version mismatch")
	// ErrUnexpectedEOF is returned when the byte string is truncated
	// mid-field.
	ErrUnexpectedEOF = errors.New("element: unexpected end of input")
)

// Encode serializes e as: version byte, discriminant byte, variant payload.
func Encode(e Element) []byte {
	var buf bytes.Buffer
	buf.WriteByte(Version)
	buf.WriteByte(byte(e.Kind()))

	switch v := e.(type) {
	case Item:
		writeBytes(&buf, v.Value)
		writeOptBytes(&buf, v.ElementFlags)
	case SumItem:
		writeInt64(&buf, v.Value)
		writeOptBytes(&buf, v.ElementFlags)
	case Reference:
		encodeReferencePath(&buf, v.Path)
		writeOptUint8(&buf, v.MaxHops)
		writeOptBytes(&buf, v.ElementFlags)
	case Tree:
		writeOptBytes(&buf, v.RootKey)
		writeOptBytes(&buf, v.ElementFlags)
	case SumTree:
		writeOptBytes(&buf, v.RootKey)
		writeInt64(&buf, v.Sum)
		writeOptBytes(&buf, v.ElementFlags)
	case BigSumTree:
		writeOptBytes(&buf, v.RootKey)
		buf.Write(v.Sum[:])
		writeOptBytes(&buf, v.ElementFlags)
	case CountTree:
		writeOptBytes(&buf, v.RootKey)
		writeUint64(&buf, v.Count)
		writeOptBytes(&buf, v.ElementFlags)
	case CountSumTree:
		writeOptBytes(&buf, v.RootKey)
		writeUint64(&buf, v.Count)
		writeInt64(&buf, v.Sum)
		writeOptBytes(&buf, v.ElementFlags)
	case ProvableCountTree:
		writeOptBytes(&buf, v.RootKey)
		writeUint64(&buf, v.Count)
		writeOptBytes(&buf, v.ElementFlags)
	case ProvableCountSumTree:
		writeOptBytes(&buf, v.RootKey)
		writeUint64(&buf, v.Count)
		writeInt64(&buf, v.Sum)
		writeOptBytes(&buf, v.ElementFlags)
	case SealedTree:
		buf.WriteByte(byte(v.SealedKind))
		buf.Write(v.RootHash[:])
		writeOptBytes(&buf, v.ElementFlags)
	default:
		panic(fmt.Sprintf("element: unhandled kind in Encode: %T", e))
	}
	return buf.Bytes()
}

// Decode parses data produced by Encode, rejecting unknown discriminants,
// version mismatches, truncated input, and trailing bytes.
func Decode(data []byte) (Element, error) {
	r := &reader{buf: data}
	version, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, ErrVersionMismatch
	}
	kindByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	kind := Kind(kindByte)

	var e Element
	switch kind {
	case KindItem:
		value, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = Item{Value: value, ElementFlags: flags}
	case KindSumItem:
		value, err := r.readInt64()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = SumItem{Value: value, ElementFlags: flags}
	case KindReference:
		path, err := decodeReferencePath(r)
		if err != nil {
			return nil, err
		}
		maxHops, err := r.readOptUint8()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = Reference{Path: path, MaxHops: maxHops, ElementFlags: flags}
	case KindTree:
		rootKey, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = Tree{RootKey: rootKey, ElementFlags: flags}
	case KindSumTree:
		rootKey, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		sum, err := r.readInt64()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = SumTree{RootKey: rootKey, Sum: sum, ElementFlags: flags}
	case KindBigSumTree:
		rootKey, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		var sum [16]byte
		if err := r.readFixed(sum[:]); err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = BigSumTree{RootKey: rootKey, Sum: sum, ElementFlags: flags}
	case KindCountTree:
		rootKey, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		count, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = CountTree{RootKey: rootKey, Count: count, ElementFlags: flags}
	case KindCountSumTree:
		rootKey, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		count, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		sum, err := r.readInt64()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = CountSumTree{RootKey: rootKey, Count: count, Sum: sum, ElementFlags: flags}
	case KindProvableCountTree:
		rootKey, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		count, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = ProvableCountTree{RootKey: rootKey, Count: count, ElementFlags: flags}
	case KindProvableCountSumTree:
		rootKey, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		count, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		sum, err := r.readInt64()
		if err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = ProvableCountSumTree{RootKey: rootKey, Count: count, Sum: sum, ElementFlags: flags}
	case KindSealedTree:
		sealedKind, err := r.readByte()
		if err != nil {
			return nil, err
		}
		var hash [32]byte
		if err := r.readFixed(hash[:]); err != nil {
			return nil, err
		}
		flags, err := r.readOptBytes()
		if err != nil {
			return nil, err
		}
		e = SealedTree{SealedKind: SealedKind(sealedKind), RootHash: hash, ElementFlags: flags}
	default:
		return nil, ErrUnknownDiscriminant
	}

	if !r.atEOF() {
		return nil, ErrTrailingBytes
	}
	return e, nil
}

// referencePathKind tags the wire discriminant for a ReferencePathType.
type referencePathKind byte

const (
	refKindAbsolute referencePathKind = iota + 1
	refKindUpstreamRootHeight
	refKindUpstreamHeightWithAddition
	refKindUpstreamFromElementHeight
	refKindCousin
	refKindRemovedCousin
	refKindSibling
)

func encodeReferencePath(buf *bytes.Buffer, p ReferencePathType) {
	switch v := p.(type) {
	case AbsolutePath:
		buf.WriteByte(byte(refKindAbsolute))
		writePathSegments(buf, v.Path)
	case UpstreamRootHeightPath:
		buf.WriteByte(byte(refKindUpstreamRootHeight))
		buf.WriteByte(v.Height)
		writePathSegments(buf, v.Path)
	case UpstreamHeightWithAdditionPath:
		buf.WriteByte(byte(refKindUpstreamHeightWithAddition))
		buf.WriteByte(v.Height)
		writePathSegments(buf, v.Path)
	case UpstreamFromElementHeightPath:
		buf.WriteByte(byte(refKindUpstreamFromElementHeight))
		buf.WriteByte(v.Height)
		writePathSegments(buf, v.Path)
	case CousinPath:
		buf.WriteByte(byte(refKindCousin))
		writeBytes(buf, v.Key)
	case RemovedCousinPath:
		buf.WriteByte(byte(refKindRemovedCousin))
		writeBytes(buf, v.Key)
	case SiblingPath:
		buf.WriteByte(byte(refKindSibling))
		writeBytes(buf, v.Key)
	default:
		panic(fmt.Sprintf("element: unhandled ReferencePathType in encode: %T", p))
	}
}

func decodeReferencePath(r *reader) (ReferencePathType, error) {
	kindByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch referencePathKind(kindByte) {
	case refKindAbsolute:
		segs, err := readPathSegments(r)
		if err != nil {
			return nil, err
		}
		return AbsolutePath{Path: segs}, nil
	case refKindUpstreamRootHeight:
		height, err := r.readByte()
		if err != nil {
			return nil, err
		}
		segs, err := readPathSegments(r)
		if err != nil {
			return nil, err
		}
		return UpstreamRootHeightPath{Height: height, Path: segs}, nil
	case refKindUpstreamHeightWithAddition:
		height, err := r.readByte()
		if err != nil {
			return nil, err
		}
		segs, err := readPathSegments(r)
		if err != nil {
			return nil, err
		}
		return UpstreamHeightWithAdditionPath{Height: height, Path: segs}, nil
	case refKindUpstreamFromElementHeight:
		height, err := r.readByte()
		if err != nil {
			return nil, err
		}
		segs, err := readPathSegments(r)
		if err != nil {
			return nil, err
		}
		return UpstreamFromElementHeightPath{Height: height, Path: segs}, nil
	case refKindCousin:
		key, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		return CousinPath{Key: key}, nil
	case refKindRemovedCousin:
		key, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		return RemovedCousinPath{Key: key}, nil
	case refKindSibling:
		key, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		return SiblingPath{Key: key}, nil
	default:
		return nil, ErrUnknownDiscriminant
	}
}

func writePathSegments(buf *bytes.Buffer, segs [][]byte) {
	writeUint32(buf, uint32(len(segs)))
	for _, s := range segs {
		writeBytes(buf, s)
	}
}

func readPathSegments(r *reader) ([][]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	segs := make([][]byte, n)
	for i := range segs {
		s, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		segs[i] = s
	}
	return segs, nil
}

// --- primitive field helpers -----------------------------------------------

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	writeUint64(buf, uint64(v))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func writeOptBytes(buf *bytes.Buffer, b []byte) {
	if b == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeBytes(buf, b)
}

func writeOptUint8(buf *bytes.Buffer, v *uint8) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.WriteByte(*v)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) atEOF() bool { return r.pos >= len(r.buf) }

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readFixed(dst []byte) error {
	if r.pos+len(dst) > len(r.buf) {
		return ErrUnexpectedEOF
	}
	copy(dst, r.buf[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
	return nil
}

func (r *reader) readUint32() (uint32, error) {
	var b [4]byte
	if err := r.readFixed(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (r *reader) readUint64() (uint64, error) {
	var b [8]byte
	if err := r.readFixed(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (r *reader) readInt64() (int64, error) {
	v, err := r.readUint64()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, ErrUnexpectedEOF
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

func (r *reader) readOptBytes() ([]byte, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	return r.readBytes()
}

func (r *reader) readOptUint8() (*uint8, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := r.readByte()
	if err != nil {
		return nil, err
	}
	return &v, nil
}
