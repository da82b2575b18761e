package element

// AggregateKind tags which aggregate a subtree element carries, if any.
type AggregateKind byte

const (
	AggregateNone AggregateKind = iota
	AggregateSum
	AggregateBigSum
	AggregateCount
	AggregateCountSum
)

// AggregateData is the own-contribution-plus-children aggregate value
// carried by a subtree element, per spec.md 3 invariant 4. Exactly the
// fields relevant to Kind are meaningful.
type AggregateData struct {
	Kind   AggregateKind
	Sum    int64
	BigSum [16]byte
	Count  uint64
}

// Aggregate returns the AggregateData carried by e, or AggregateNone for
// non-aggregate-carrying elements.
func Aggregate(e Element) AggregateData {
	switch v := e.(type) {
	case SumTree:
		return AggregateData{Kind: AggregateSum, Sum: v.Sum}
	case BigSumTree:
		return AggregateData{Kind: AggregateBigSum, BigSum: v.Sum}
	case CountTree:
		return AggregateData{Kind: AggregateCount, Count: v.Count}
	case CountSumTree:
		return AggregateData{Kind: AggregateCountSum, Sum: v.Sum, Count: v.Count}
	case ProvableCountTree:
		return AggregateData{Kind: AggregateCount, Count: v.Count}
	case ProvableCountSumTree:
		return AggregateData{Kind: AggregateCountSum, Sum: v.Sum, Count: v.Count}
	default:
		return AggregateData{Kind: AggregateNone}
	}
}

// OwnContribution returns the amount e itself contributes to an ancestor sum
// aggregate: a SumItem's own value, and 0 for every other element. The
// per-node count and a nested subtree's own aggregate are added by merk's
// Node.ownAggregate, not here.
func OwnContribution(e Element) int64 {
	switch v := e.(type) {
	case SumItem:
		return v.Value
	default:
		return 0
	}
}
