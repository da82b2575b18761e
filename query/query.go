// Package query implements the QueryItem/Query/PathQuery language of
// spec.md 4.7: an ordered, pairwise-disjoint set of key ranges per subtree
// level, optionally fanning out into a subquery at the next level down.
package query

import (
	"bytes"
	"sort"

	"github.com/dashpay/grovedb-sub006/merk"
)

// QueryItem names one of the ten range shapes spec.md 4.7 lists (Key, Range,
// RangeInclusive, RangeFull, RangeFrom, RangeTo, RangeToInclusive,
// RangeAfter, RangeAfterTo, RangeAfterToInclusive). Rather than a ten-case
// interface, every variant collapses to the same (low, high, exclusivity)
// shape a merk.Range already captures — the ten constructors below are
// sugar over that one representation, so "equality collapses to collides
// with" (spec.md 4.7) becomes a single bounds-overlap check instead of a
// type switch (see DESIGN.md).
type QueryItem struct {
	Low          []byte
	LowExcluded  bool
	LowUnbounded bool

	High          []byte
	HighExcluded  bool
	HighUnbounded bool
}

// Key builds the single-key variant.
func Key(k []byte) QueryItem { return QueryItem{Low: k, High: k} }

// Range builds a..b (inclusive low, exclusive high).
func Range(a, b []byte) QueryItem { return QueryItem{Low: a, High: b, HighExcluded: true} }

// RangeInclusive builds a..=b (both bounds inclusive).
func RangeInclusive(a, b []byte) QueryItem { return QueryItem{Low: a, High: b} }

// RangeFull builds an unbounded-both-sides range.
func RangeFull() QueryItem { return QueryItem{LowUnbounded: true, HighUnbounded: true} }

// RangeFrom builds a.. (inclusive low, unbounded high).
func RangeFrom(a []byte) QueryItem { return QueryItem{Low: a, HighUnbounded: true} }

// RangeTo builds ..b (unbounded low, exclusive high).
func RangeTo(b []byte) QueryItem { return QueryItem{LowUnbounded: true, High: b, HighExcluded: true} }

// RangeToInclusive builds ..=b (unbounded low, inclusive high).
func RangeToInclusive(b []byte) QueryItem { return QueryItem{LowUnbounded: true, High: b} }

// RangeAfter builds a.. with a itself excluded.
func RangeAfter(a []byte) QueryItem { return QueryItem{Low: a, LowExcluded: true, HighUnbounded: true} }

// RangeAfterTo builds a..b with a excluded, b excluded.
func RangeAfterTo(a, b []byte) QueryItem {
	return QueryItem{Low: a, LowExcluded: true, High: b, HighExcluded: true}
}

// RangeAfterToInclusive builds a..=b with a excluded, b included.
func RangeAfterToInclusive(a, b []byte) QueryItem {
	return QueryItem{Low: a, LowExcluded: true, High: b}
}

// ToMerkRange converts this QueryItem into the primitive merk.Range the Merk
// proof machinery operates on.
func (q QueryItem) ToMerkRange() merk.Range {
	r := merk.Range{StartExcluded: q.LowExcluded, EndExcluded: q.HighExcluded}
	if !q.LowUnbounded {
		r.Start = q.Low
	}
	if !q.HighUnbounded {
		r.End = q.High
	}
	return r
}

// Contains reports whether key falls inside this item's bounds.
func (q QueryItem) Contains(key []byte) bool {
	if !q.LowUnbounded {
		c := bytes.Compare(key, q.Low)
		if q.LowExcluded {
			if c <= 0 {
				return false
			}
		} else if c < 0 {
			return false
		}
	}
	if !q.HighUnbounded {
		c := bytes.Compare(key, q.High)
		if q.HighExcluded {
			if c >= 0 {
				return false
			}
		} else if c > 0 {
			return false
		}
	}
	return true
}

// collides reports whether q and other overlap or touch with no gap between
// them (spec.md 4.7: "insertion into a query merges overlapping items").
func (q QueryItem) collides(other QueryItem) bool {
	// Below other entirely?
	if !q.HighUnbounded && !other.LowUnbounded {
		c := bytes.Compare(q.High, other.Low)
		if c < 0 {
			return false
		}
		if c == 0 && q.HighExcluded && other.LowExcluded {
			return false
		}
	}
	// Above other entirely?
	if !q.LowUnbounded && !other.HighUnbounded {
		c := bytes.Compare(q.Low, other.High)
		if c > 0 {
			return false
		}
		if c == 0 && q.LowExcluded && other.HighExcluded {
			return false
		}
	}
	return true
}

// merge folds other into q, producing the covering range of both. Only
// meaningful once collides(q, other) holds.
func (q QueryItem) merge(other QueryItem) QueryItem {
	out := q
	if q.LowUnbounded || other.LowUnbounded {
		out.LowUnbounded = q.LowUnbounded || other.LowUnbounded
		out.Low = nil
		out.LowExcluded = false
	} else {
		c := bytes.Compare(q.Low, other.Low)
		switch {
		case c < 0:
			out.Low, out.LowExcluded = q.Low, q.LowExcluded
		case c > 0:
			out.Low, out.LowExcluded = other.Low, other.LowExcluded
		default:
			out.Low = q.Low
			out.LowExcluded = q.LowExcluded && other.LowExcluded
		}
	}
	if q.HighUnbounded || other.HighUnbounded {
		out.HighUnbounded = q.HighUnbounded || other.HighUnbounded
		out.High = nil
		out.HighExcluded = false
	} else {
		c := bytes.Compare(q.High, other.High)
		switch {
		case c > 0:
			out.High, out.HighExcluded = q.High, q.HighExcluded
		case c < 0:
			out.High, out.HighExcluded = other.High, other.HighExcluded
		default:
			out.High = q.High
			out.HighExcluded = q.HighExcluded && other.HighExcluded
		}
	}
	return out
}

// lowSortsBefore orders items by their low end; unbounded-low items sort
// before everything else.
func (q QueryItem) lowSortsBefore(other QueryItem) bool {
	if q.LowUnbounded != other.LowUnbounded {
		return q.LowUnbounded
	}
	if q.LowUnbounded {
		return false
	}
	return bytes.Compare(q.Low, other.Low) < 0
}

// SubqueryBranch names what happens one level deeper for keys matched by a
// particular item (spec.md 4.7): an optional path segment to descend
// through first, and/or a further Query to apply there.
type SubqueryBranch struct {
	SubqueryPath [][]byte
	Subquery     *Query
}

// conditionalBranch pairs one QueryItem with the branch taken when a match
// falls inside it; order matters (first match wins, spec.md 4.7).
type conditionalBranch struct {
	item   QueryItem
	branch *SubqueryBranch
}

// Query is the sorted, pairwise-disjoint set of key ranges matched at one
// subtree level, plus how to recurse into matches (spec.md 4.7).
type Query struct {
	items                []QueryItem
	defaultSubqueryBranch *SubqueryBranch
	conditionalBranches   []conditionalBranch
	LeftToRight           bool
	AddParentTreeOnSubquery bool
}

// New builds an empty, left-to-right Query.
func New() *Query {
	return &Query{LeftToRight: true}
}

// Items returns the current sorted, disjoint item set. Callers must treat
// the returned slice as read-only.
func (q *Query) Items() []QueryItem { return q.items }

// Insert adds item to the query, merging it with any existing item it
// collides with (spec.md 4.7) and re-sorting to keep the set disjoint.
func (q *Query) Insert(item QueryItem) {
	merged := item
	kept := q.items[:0]
	for _, existing := range q.items {
		if merged.collides(existing) {
			merged = merged.merge(existing)
		} else {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, merged)
	sort.Slice(kept, func(i, j int) bool { return kept[i].lowSortsBefore(kept[j]) })
	q.items = kept
}

// SetDefaultSubquery sets the branch applied to every matched key that no
// conditional branch covers.
func (q *Query) SetDefaultSubquery(branch *SubqueryBranch) {
	q.defaultSubqueryBranch = branch
}

// DefaultSubquery returns the default branch, or nil if unset.
func (q *Query) DefaultSubquery() *SubqueryBranch { return q.defaultSubqueryBranch }

// AddConditionalSubquery registers a branch taken only for matches falling
// inside item; branches are tried in the order they were added.
func (q *Query) AddConditionalSubquery(item QueryItem, branch *SubqueryBranch) {
	q.conditionalBranches = append(q.conditionalBranches, conditionalBranch{item: item, branch: branch})
}

// BranchFor returns the subquery branch that applies to key, or nil if the
// match is terminal at this level (spec.md 4.7: conditional branches first,
// then default, then "emit as terminal").
func (q *Query) BranchFor(key []byte) *SubqueryBranch {
	for _, cb := range q.conditionalBranches {
		if cb.item.Contains(key) {
			return cb.branch
		}
	}
	return q.defaultSubqueryBranch
}

// MerkRanges converts every item to its merk.Range form, in the query's
// traversal order (respecting LeftToRight), for handing to merk.Prove /
// merk-level range scans.
func (q *Query) MerkRanges() []merk.Range {
	ranges := make([]merk.Range, len(q.items))
	if q.LeftToRight {
		for i, it := range q.items {
			ranges[i] = it.ToMerkRange()
		}
	} else {
		for i, it := range q.items {
			ranges[len(q.items)-1-i] = it.ToMerkRange()
		}
	}
	return ranges
}

// SizedQuery pairs a Query with an optional limit/offset (spec.md 4.7).
type SizedQuery struct {
	Query  *Query
	Limit  *int
	Offset *int
}

// PathQuery names the subtree the top-level Query starts at (spec.md 4.7).
type PathQuery struct {
	Path  [][]byte
	Query SizedQuery
}

// AggregateSumPathQuery is the supplemented variant that accumulates a
// running sum across matched SumItem/SumTree values, stopping once the
// accumulated sum exceeds SumLimit or MaxNodesToInspect nodes have been
// visited (SPEC_FULL.md 4, "Aggregate sum path queries with early
// termination").
type AggregateSumPathQuery struct {
	PathQuery         PathQuery
	SumLimit          int64
	MaxNodesToInspect *int
}
