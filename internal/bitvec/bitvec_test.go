package bitvec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetClearIsSetRoundTrip(t *testing.T) {
	var v BitVec32
	assert.False(t, v.IsSet(3))
	v = v.Set(3)
	assert.True(t, v.IsSet(3))
	v = v.Clear(3)
	assert.False(t, v.IsSet(3))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := BitVec32(0).Set(0).Set(5).Set(31)
	decoded := Decode(v.Encode())
	assert.Equal(t, v, decoded)
}

func TestDecodeEmptyIsZero(t *testing.T) {
	assert.Equal(t, BitVec32(0), Decode(nil))
}

func TestFirstFreeFindsLowestUnoccupied(t *testing.T) {
	v := BitVec32(0).Set(0).Set(1)
	assert.Equal(t, 2, v.FirstFree())
}

func TestFirstFreeReturnsNegativeWhenFull(t *testing.T) {
	var v BitVec32
	for i := 0; i < Width; i++ {
		v = v.Set(i)
	}
	assert.Equal(t, -1, v.FirstFree())
}

func TestOccupiedListsSetSlotsAscending(t *testing.T) {
	v := BitVec32(0).Set(5).Set(1).Set(9)
	assert.Equal(t, []int{1, 5, 9}, v.Occupied())
}
