package merk

// FeatureType identifies which aggregate discipline a node's subtree
// follows, per spec.md 3's Merk node field `feature_type`.
type FeatureType int

const (
	FeatureBasic FeatureType = iota
	FeatureSummed
	FeatureBigSummed
	FeatureCounted
	FeatureCountedSummed
	FeatureProvableCounted
	FeatureProvableCountedSummed
)

// IsProvable reports whether this feature type folds its aggregate directly
// into the node-hash chain (spec.md 4.3 invariant 5), as opposed to only
// exposing it through the parent element's value-hash.
func (f FeatureType) IsProvable() bool {
	return f == FeatureProvableCounted || f == FeatureProvableCountedSummed
}

// Aggregate is a node's own running aggregate in its subtree, combining its
// own contribution with both children's aggregates (spec.md 3 invariant 4).
type Aggregate struct {
	Sum   int64
	Count uint64
}

// Add returns the sum of two Aggregates.
func (a Aggregate) Add(other Aggregate) Aggregate {
	return Aggregate{Sum: a.Sum + other.Sum, Count: a.Count + other.Count}
}

// computeNodeHash computes the hash a parent records for a child node with
// feature type f, combining the structural hash with the aggregate encoding
// when f is provable (spec.md 4.3 invariant 5 / "Hashing" algorithm).
func computeNodeHash(f FeatureType, kvHash, leftHash, rightHash Hash, agg Aggregate) Hash {
	switch f {
	case FeatureProvableCounted:
		return NodeHashWithAggregate(kvHash, leftHash, rightHash, encodeCount(agg.Count))
	case FeatureProvableCountedSummed:
		return NodeHashWithAggregate(kvHash, leftHash, rightHash, encodeCountSum(agg.Count, agg.Sum))
	default:
		return NodeHash(kvHash, leftHash, rightHash)
	}
}
