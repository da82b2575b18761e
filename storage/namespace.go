// Package storage implements the prefixed, column-family-aware key-value
// abstraction described in spec.md 4.2: four namespaces (data, aux, roots,
// meta) over a pluggable raw backend, with a cross-subtree StorageBatch
// committed atomically.
package storage

// Namespace selects one of the four column families every subtree context
// exposes, per spec.md 4.2.
type Namespace byte

const (
	// Data holds Merk node encodings — the hashed, hierarchy-participating
	// namespace.
	Data Namespace = iota
	// Aux holds caller-owned auxiliary data; the core never reads it.
	Aux
	// Roots is reserved for the legacy root-index scheme; modern callers
	// may leave it empty (spec.md 9, Open Questions).
	Roots
	// Meta holds per-subtree metadata not covered by the hash scheme:
	// backward-reference bitvecs/slots, the base-root-key marker, cached
	// root keys.
	Meta
)

func (n Namespace) String() string {
	switch n {
	case Data:
		return "data"
	case Aux:
		return "aux"
	case Roots:
		return "roots"
	case Meta:
		return "meta"
	default:
		return "unknown"
	}
}
