package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushSegmentAndDeriveParent(t *testing.T) {
	base := Empty()
	a := base.PushSegment([]byte("a"))
	ab := a.PushSegment([]byte("b"))

	assert.Equal(t, 2, ab.Len())

	parent, last, ok := ab.DeriveParent()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), last)
	assert.True(t, parent.Equal(a))

	_, _, ok = Empty().DeriveParent()
	assert.False(t, ok)
}

func TestReverseIter(t *testing.T) {
	p := New([]byte("a"), []byte("b"), []byte("c"))
	var got [][]byte
	p.ReverseIter(func(seg []byte) bool {
		got = append(got, seg)
		return true
	})
	require.Len(t, got, 3)
	assert.Equal(t, []byte("c"), got[0])
	assert.Equal(t, []byte("b"), got[1])
	assert.Equal(t, []byte("a"), got[2])
}

func TestEqualAndKey(t *testing.T) {
	p1 := New([]byte("a"), []byte("bb"))
	p2 := New([]byte("a"), []byte("bb"))
	p3 := New([]byte("ab"), []byte("b"))

	assert.True(t, p1.Equal(p2))
	assert.Equal(t, p1.Key(), p2.Key())
	assert.NotEqual(t, p1.Key(), p3.Key())
	assert.False(t, p1.Equal(p3))
}
