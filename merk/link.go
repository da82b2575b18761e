package merk

import (
	"bytes"
	"errors"
)

// LinkState distinguishes what a Link currently holds in memory, mirroring
// spec.md 3's {Reference, Loaded, Uncommitted, Modified} child states. All
// four states serialize identically on disk (spec.md 6) — the state only
// matters in memory, to decide whether a child must be (re)loaded or
// (re)written on commit.
type LinkState int

const (
	// LinkNone means there is no child on this side.
	LinkNone LinkState = iota
	// LinkReference means the child is known only by its persisted
	// key/hash/heights; its Node has not been loaded.
	LinkReference
	// LinkLoaded means the child Node has been loaded into memory but not
	// modified since.
	LinkLoaded
	// LinkUncommitted means the child Node is newly created and has never
	// been persisted.
	LinkUncommitted
	// LinkModified means the child Node was loaded and then mutated; it
	// must be re-hashed and re-persisted on commit.
	LinkModified
)

// linkDiskTag is the single tag byte every persisted Link carries
// (spec.md 6: "tag byte (1 = Reference/Loaded/Uncommitted/Modified —
// serialized identically as reference-on-disk)").
const linkDiskTag = 1

// Link describes one child edge of a Merk node.
type Link struct {
	State  LinkState
	Key    []byte
	Hash   Hash
	// LeftChildHeight / RightChildHeight are the heights of the child
	// node's own left/right subtrees, persisted so a node's own height can
	// be recomputed without loading the child (spec.md 6).
	LeftChildHeight  uint8
	RightChildHeight uint8
	// Child is non-nil when State is Loaded, Uncommitted, or Modified.
	Child *Node
}

// Height returns the height of the subtree rooted at this link's child: 0
// if there is no child. When the child is loaded in memory its exact height
// is computed directly; otherwise the persisted left/right child heights
// (spec.md 6) let the height be known without loading the child.
func (l *Link) Height() uint8 {
	if l == nil || l.State == LinkNone {
		return 0
	}
	if l.Child != nil {
		return l.Child.height()
	}
	h := l.LeftChildHeight
	if l.RightChildHeight > h {
		h = l.RightChildHeight
	}
	return h + 1
}

var errTruncatedLink = errors.New("merk: truncated link encoding")

// encodeLink writes l's on-disk representation: tag, key-length byte, key,
// 32-byte child hash, two height bytes, one loaded-flag byte (always 0 for
// a link as persisted, since a Reference link is what's read back).
func encodeLink(buf *bytes.Buffer, l *Link) {
	if l == nil || l.State == LinkNone {
		return
	}
	buf.WriteByte(linkDiskTag)
	buf.WriteByte(byte(len(l.Key)))
	buf.Write(l.Key)
	buf.Write(l.Hash[:])
	buf.WriteByte(l.LeftChildHeight)
	buf.WriteByte(l.RightChildHeight)
	buf.WriteByte(0) // loaded flag: always false for a freshly decoded link
}

func decodeLink(r *byteReader) (*Link, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if tag != linkDiskTag {
		return nil, errTruncatedLink
	}
	keyLen, err := r.readByte()
	if err != nil {
		return nil, err
	}
	key, err := r.readN(int(keyLen))
	if err != nil {
		return nil, err
	}
	var hash Hash
	if err := r.readFixed(hash[:]); err != nil {
		return nil, err
	}
	leftHeight, err := r.readByte()
	if err != nil {
		return nil, err
	}
	rightHeight, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if _, err := r.readByte(); err != nil { // loaded flag, unused on decode
		return nil, err
	}
	return &Link{
		State:            LinkReference,
		Key:              key,
		Hash:             hash,
		LeftChildHeight:  leftHeight,
		RightChildHeight: rightHeight,
	}, nil
}
