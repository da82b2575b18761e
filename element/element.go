// Package element implements the tagged Element union stored inside a Merk
// leaf, per spec.md 4.4: an ordinary item, a sum item, a symbolic reference,
// or one of several subtree-kind markers carrying a (root_key, aggregate)
// pair. Sealed tree kinds (commitment trees, MMRs, append-only/dense trees)
// are kept as opaque root-hash containers — their internal algorithms are
// out of scope and are never implemented here.
package element

// Kind is the wire discriminant identifying an Element variant.
type Kind byte

const (
	KindItem Kind = iota + 1
	KindSumItem
	KindReference
	KindTree
	KindSumTree
	KindBigSumTree
	KindCountTree
	KindCountSumTree
	KindProvableCountTree
	KindProvableCountSumTree
	KindSealedTree
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "Item"
	case KindSumItem:
		return "SumItem"
	case KindReference:
		return "Reference"
	case KindTree:
		return "Tree"
	case KindSumTree:
		return "SumTree"
	case KindBigSumTree:
		return "BigSumTree"
	case KindCountTree:
		return "CountTree"
	case KindCountSumTree:
		return "CountSumTree"
	case KindProvableCountTree:
		return "ProvableCountTree"
	case KindProvableCountSumTree:
		return "ProvableCountSumTree"
	case KindSealedTree:
		return "SealedTree"
	default:
		return "Unknown"
	}
}

// IsSubtree reports whether k is one of the subtree-kind markers (normal or
// aggregate-carrying, including sealed kinds).
func (k Kind) IsSubtree() bool {
	switch k {
	case KindTree, KindSumTree, KindBigSumTree, KindCountTree, KindCountSumTree,
		KindProvableCountTree, KindProvableCountSumTree, KindSealedTree:
		return true
	default:
		return false
	}
}

// IsSumCapable reports whether a node of this kind may carry SumItem
// children directly in the invariant sense of spec.md 4.4 ("SumItem fails
// insertion if parent tree is not sum-capable").
func (k Kind) IsSumCapable() bool {
	switch k {
	case KindSumTree, KindBigSumTree, KindCountSumTree, KindProvableCountSumTree:
		return true
	default:
		return false
	}
}

// Element is the tagged value stored inside a Merk leaf.
type Element interface {
	Kind() Kind
	Flags() []byte
}

// Item is an ordinary value.
type Item struct {
	Value        []byte
	ElementFlags []byte
}

func (Item) Kind() Kind         { return KindItem }
func (i Item) Flags() []byte    { return i.ElementFlags }

// SumItem is legal only inside a sum-capable parent (spec.md 4.4).
type SumItem struct {
	Value        int64
	ElementFlags []byte
}

func (SumItem) Kind() Kind       { return KindSumItem }
func (s SumItem) Flags() []byte  { return s.ElementFlags }

// Reference is a symbolic link to another path, transparently followed by a
// non-raw get.
type Reference struct {
	Path         ReferencePathType
	MaxHops      *uint8
	ElementFlags []byte
}

func (Reference) Kind() Kind        { return KindReference }
func (r Reference) Flags() []byte   { return r.ElementFlags }

// Tree is a normal subtree marker.
type Tree struct {
	RootKey      []byte // nil means empty subtree
	ElementFlags []byte
}

func (Tree) Kind() Kind       { return KindTree }
func (t Tree) Flags() []byte  { return t.ElementFlags }

// SumTree carries a running signed 64-bit aggregate.
type SumTree struct {
	RootKey      []byte
	Sum          int64
	ElementFlags []byte
}

func (SumTree) Kind() Kind      { return KindSumTree }
func (s SumTree) Flags() []byte { return s.ElementFlags }

// BigSumTree carries a signed 128-bit aggregate, represented as a two's
// complement big-endian 16-byte value.
type BigSumTree struct {
	RootKey      []byte
	Sum          [16]byte
	ElementFlags []byte
}

func (BigSumTree) Kind() Kind      { return KindBigSumTree }
func (b BigSumTree) Flags() []byte { return b.ElementFlags }

// CountTree carries an unsigned 64-bit node count.
type CountTree struct {
	RootKey      []byte
	Count        uint64
	ElementFlags []byte
}

func (CountTree) Kind() Kind      { return KindCountTree }
func (c CountTree) Flags() []byte { return c.ElementFlags }

// CountSumTree carries both a count and a sum.
type CountSumTree struct {
	RootKey      []byte
	Count        uint64
	Sum          int64
	ElementFlags []byte
}

func (CountSumTree) Kind() Kind      { return KindCountSumTree }
func (c CountSumTree) Flags() []byte { return c.ElementFlags }

// ProvableCountTree is a CountTree whose count is additionally folded into
// the node-hash chain (spec.md 4.3 node_hash_with_count), making the count
// itself provable rather than only the value-hash that contains it.
type ProvableCountTree struct {
	RootKey      []byte
	Count        uint64
	ElementFlags []byte
}

func (ProvableCountTree) Kind() Kind      { return KindProvableCountTree }
func (p ProvableCountTree) Flags() []byte { return p.ElementFlags }

// ProvableCountSumTree is the provable analogue of CountSumTree.
type ProvableCountSumTree struct {
	RootKey      []byte
	Count        uint64
	Sum          int64
	ElementFlags []byte
}

func (ProvableCountSumTree) Kind() Kind      { return KindProvableCountSumTree }
func (p ProvableCountSumTree) Flags() []byte { return p.ElementFlags }

// SealedKind identifies which opaque sub-engine a SealedTree stands in for.
type SealedKind byte

const (
	SealedCommitmentTree SealedKind = iota + 1
	SealedMmrTree
	SealedBulkAppendTree
	SealedDenseAppendOnlyFixedSizeTree
)

// SealedTree is an opaque root-hash container for a subtree kind whose
// internal algorithm is not part of this implementation (commitment trees,
// MMRs, append-only and dense fixed-size Merkle trees). The engine only ever
// needs its root hash to fold into the parent's hash chain.
type SealedTree struct {
	SealedKind   SealedKind
	RootHash     [32]byte
	ElementFlags []byte
}

func (SealedTree) Kind() Kind      { return KindSealedTree }
func (s SealedTree) Flags() []byte { return s.ElementFlags }

// RootKey returns the subtree's root key and whether e is a subtree variant
// that carries one (SealedTree has no root key in this scheme; it only
// carries a root hash).
func RootKey(e Element) ([]byte, bool) {
	switch v := e.(type) {
	case Tree:
		return v.RootKey, true
	case SumTree:
		return v.RootKey, true
	case BigSumTree:
		return v.RootKey, true
	case CountTree:
		return v.RootKey, true
	case CountSumTree:
		return v.RootKey, true
	case ProvableCountTree:
		return v.RootKey, true
	case ProvableCountSumTree:
		return v.RootKey, true
	default:
		return nil, false
	}
}
