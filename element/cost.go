package element

import "fmt"

// SpecializedValueByteCost returns the fixed specialized byte cost spec.md
// 4.4 assigns to a subtree element's serialized value, used by the
// storage-cost pricer instead of measuring an actual encoded length (the
// value stored in the parent is small and roughly fixed-size per kind).
func SpecializedValueByteCost(k Kind) (uint32, bool) {
	switch k {
	case KindSumItem:
		return 11, true
	case KindTree:
		return 3, true
	case KindSumTree:
		return 12, true
	case KindBigSumTree:
		return 19, true
	case KindCountTree:
		return 12, true
	case KindCountSumTree:
		return 21, true
	default:
		return 0, false
	}
}

// ReconstructWithRootKey rebuilds e as the same subtree-kind variant with a
// new root key and aggregate, preserving flags and any type-specific fixed
// fields untouched by the aggregate update. This is how the engine updates a
// parent entry after a child subtree write without disturbing caller flags
// (spec.md 4.4).
func ReconstructWithRootKey(e Element, newRootKey []byte, aggregate AggregateData) (Element, error) {
	switch v := e.(type) {
	case Tree:
		return Tree{RootKey: newRootKey, ElementFlags: v.ElementFlags}, nil
	case SumTree:
		return SumTree{RootKey: newRootKey, Sum: aggregate.Sum, ElementFlags: v.ElementFlags}, nil
	case BigSumTree:
		return BigSumTree{RootKey: newRootKey, Sum: aggregate.BigSum, ElementFlags: v.ElementFlags}, nil
	case CountTree:
		return CountTree{RootKey: newRootKey, Count: aggregate.Count, ElementFlags: v.ElementFlags}, nil
	case CountSumTree:
		return CountSumTree{RootKey: newRootKey, Count: aggregate.Count, Sum: aggregate.Sum, ElementFlags: v.ElementFlags}, nil
	case ProvableCountTree:
		return ProvableCountTree{RootKey: newRootKey, Count: aggregate.Count, ElementFlags: v.ElementFlags}, nil
	case ProvableCountSumTree:
		return ProvableCountSumTree{RootKey: newRootKey, Count: aggregate.Count, Sum: aggregate.Sum, ElementFlags: v.ElementFlags}, nil
	default:
		return nil, fmt.Errorf("element: %T is not a subtree element, cannot reconstruct with root key", e)
	}
}
