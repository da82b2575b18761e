package element

// ReferencePathType is the tagged union of ways a Reference element may name
// its target path, per spec.md 3 and 4.6.
type ReferencePathType interface {
	isReferencePathType()
}

// AbsolutePath names the target by a fully qualified path from the base
// Merk.
type AbsolutePath struct {
	Path [][]byte
}

func (AbsolutePath) isReferencePathType() {}

// UpstreamRootHeightPath climbs Height segments up from the reference's own
// path toward the root, then descends through Path.
type UpstreamRootHeightPath struct {
	Height uint8
	Path   [][]byte
}

func (UpstreamRootHeightPath) isReferencePathType() {}

// UpstreamHeightWithAdditionPath is like UpstreamRootHeightPath but Path is
// appended onto the truncated upstream path rather than replacing the
// remainder, matching the "with-addition" variant named in spec.md 3.
type UpstreamHeightWithAdditionPath struct {
	Height uint8
	Path   [][]byte
}

func (UpstreamHeightWithAdditionPath) isReferencePathType() {}

// UpstreamFromElementHeightPath climbs Height segments up from the element's
// own containing path (as opposed to the reference's path) before descending
// through Path.
type UpstreamFromElementHeightPath struct {
	Height uint8
	Path   [][]byte
}

func (UpstreamFromElementHeightPath) isReferencePathType() {}

// CousinPath swaps the reference's own last path segment for Key, staying at
// the same depth under the same grandparent.
type CousinPath struct {
	Key []byte
}

func (CousinPath) isReferencePathType() {}

// RemovedCousinPath is like CousinPath but the reference itself is removed
// from its own subtree's backward-reference bookkeeping once resolved (used
// by bidirectional-reference cleanup, spec.md 4.6 C8).
type RemovedCousinPath struct {
	Key []byte
}

func (RemovedCousinPath) isReferencePathType() {}

// SiblingPath swaps the reference's own key for Key within the same parent
// subtree.
type SiblingPath struct {
	Key []byte
}

func (SiblingPath) isReferencePathType() {}
