// Package path implements the cheap, shareable path representation used to
// address subtrees inside a GroveDB hierarchy, per spec.md 4.5.
package path

import "bytes"

// Path is an ordered sequence of key segments identifying a subtree. The
// empty Path identifies the base Merk. Segments are stored as a slice of
// byte slices; callers must not mutate a segment after it has been placed
// into a Path (the same discipline the teacher's Node applies to its cached
// key).
type Path struct {
	segments [][]byte
}

// New builds a Path from the given segments, copying none of them — callers
// hand over ownership, matching the teacher's NewNodeLeaf(k, v) convention
// of taking pointers without defensive copies.
func New(segments ...[]byte) Path {
	return Path{segments: segments}
}

// Empty is the path identifying the base Merk.
func Empty() Path { return Path{} }

// Len returns the number of segments in the path.
func (p Path) Len() int { return len(p.segments) }

// IsEmpty reports whether this is the base path.
func (p Path) IsEmpty() bool { return len(p.segments) == 0 }

// Segments returns the path's segments, deepest-last. The returned slice
// shares storage with p; callers must treat it as read-only.
func (p Path) Segments() [][]byte { return p.segments }

// Segment returns the i-th segment.
func (p Path) Segment(i int) []byte { return p.segments[i] }

// Last returns the final segment (the subtree's key in its parent) and
// reports whether the path is non-empty.
func (p Path) Last() ([]byte, bool) {
	if len(p.segments) == 0 {
		return nil, false
	}
	return p.segments[len(p.segments)-1], true
}

// PushSegment derives a new Path with seg appended. It copies p's slice of
// segment headers into a new backing array, so it runs in O(p.Len()), not
// O(1); the segment byte slices themselves are shared, never copied.
func (p Path) PushSegment(seg []byte) Path {
	out := make([][]byte, len(p.segments)+1)
	copy(out, p.segments)
	out[len(p.segments)] = seg
	return Path{segments: out}
}

// DeriveParent splits the path into its parent path and its final segment.
// Returns ok=false if p is already empty (the base Merk has no parent).
func (p Path) DeriveParent() (parent Path, lastKey []byte, ok bool) {
	if len(p.segments) == 0 {
		return Path{}, nil, false
	}
	lastKey = p.segments[len(p.segments)-1]
	parent = Path{segments: p.segments[:len(p.segments)-1]}
	return parent, lastKey, true
}

// ReverseIter calls f with each segment from deepest to shallowest,
// matching spec.md 4.5's "reverse-first" iteration used by propagation.
// Iteration stops early if f returns false.
func (p Path) ReverseIter(f func(segment []byte) bool) {
	for i := len(p.segments) - 1; i >= 0; i-- {
		if !f(p.segments[i]) {
			return
		}
	}
}

// Equal reports whether two paths have identical segment sequences.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if !bytes.Equal(p.segments[i], other.segments[i]) {
			return false
		}
	}
	return true
}

// Key returns a canonical, collision-free byte-string encoding of the path
// suitable for use as a map key (length-prefixed segments), used by the
// batch engine's ops_by_level_paths / ops_by_qualified_paths indices
// (spec.md 4.6 step 2).
func (p Path) Key() string {
	var buf bytes.Buffer
	for _, seg := range p.segments {
		var lenBuf [4]byte
		l := len(seg)
		lenBuf[0] = byte(l >> 24)
		lenBuf[1] = byte(l >> 16)
		lenBuf[2] = byte(l >> 8)
		lenBuf[3] = byte(l)
		buf.Write(lenBuf[:])
		buf.Write(seg)
	}
	return buf.String()
}

// Clone returns a Path whose segment slice is independent of p's (segments
// themselves, being treated as immutable, are not deep-copied).
func (p Path) Clone() Path {
	out := make([][]byte, len(p.segments))
	copy(out, p.segments)
	return Path{segments: out}
}

// String renders the path as a "/"-joined sequence for debugging and error
// context, matching the ASCII-path convention used in spec.md 8's scenarios.
func (p Path) String() string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, seg := range p.segments {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.Write(seg)
	}
	buf.WriteByte(']')
	return buf.String()
}
