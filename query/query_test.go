package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertMergesOverlappingRanges(t *testing.T) {
	q := New()
	q.Insert(Range([]byte("a"), []byte("d")))
	q.Insert(Range([]byte("c"), []byte("f")))

	items := q.Items()
	if assert.Len(t, items, 1) {
		assert.Equal(t, []byte("a"), items[0].Low)
		assert.Equal(t, []byte("f"), items[0].High)
	}
}

func TestInsertMergesAdjacentInclusiveExclusiveTouch(t *testing.T) {
	q := New()
	q.Insert(Range([]byte("a"), []byte("c"))) // [a, c)
	q.Insert(RangeFrom([]byte("c")))           // [c, inf)

	items := q.Items()
	if assert.Len(t, items, 1) {
		assert.Equal(t, []byte("a"), items[0].Low)
		assert.True(t, items[0].HighUnbounded)
	}
}

func TestInsertKeepsDisjointRangesSeparate(t *testing.T) {
	q := New()
	q.Insert(Key([]byte("a")))
	q.Insert(Key([]byte("z")))

	items := q.Items()
	assert.Len(t, items, 2)
	assert.Equal(t, []byte("a"), items[0].Low)
	assert.Equal(t, []byte("z"), items[1].Low)
}

func TestInsertDedupesEqualItems(t *testing.T) {
	q := New()
	q.Insert(Key([]byte("a")))
	q.Insert(Key([]byte("a")))

	assert.Len(t, q.Items(), 1)
}

func TestQueryItemContains(t *testing.T) {
	r := Range([]byte("b"), []byte("d"))
	assert.False(t, r.Contains([]byte("a")))
	assert.True(t, r.Contains([]byte("b")))
	assert.True(t, r.Contains([]byte("c")))
	assert.False(t, r.Contains([]byte("d")))

	ri := RangeInclusive([]byte("b"), []byte("d"))
	assert.True(t, ri.Contains([]byte("d")))

	after := RangeAfter([]byte("b"))
	assert.False(t, after.Contains([]byte("b")))
	assert.True(t, after.Contains([]byte("c")))

	full := RangeFull()
	assert.True(t, full.Contains([]byte{}))
	assert.True(t, full.Contains([]byte{0xFF}))
}

func TestBranchForPrefersConditionalOverDefault(t *testing.T) {
	q := New()
	q.Insert(RangeFull())
	defaultBranch := &SubqueryBranch{}
	condBranch := &SubqueryBranch{}
	q.SetDefaultSubquery(defaultBranch)
	q.AddConditionalSubquery(Key([]byte("special")), condBranch)

	assert.Same(t, condBranch, q.BranchFor([]byte("special")))
	assert.Same(t, defaultBranch, q.BranchFor([]byte("other")))
}

func TestBranchForReturnsNilWhenNoBranchSet(t *testing.T) {
	q := New()
	q.Insert(RangeFull())
	assert.Nil(t, q.BranchFor([]byte("anything")))
}

func TestMerkRangesRespectsLeftToRightOrder(t *testing.T) {
	q := New()
	q.Insert(Key([]byte("a")))
	q.Insert(Key([]byte("z")))

	q.LeftToRight = true
	ranges := q.MerkRanges()
	assert.Equal(t, []byte("a"), ranges[0].Start)

	q.LeftToRight = false
	ranges = q.MerkRanges()
	assert.Equal(t, []byte("z"), ranges[0].Start)
}
