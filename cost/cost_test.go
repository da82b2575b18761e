package cost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemovedBytesAdd(t *testing.T) {
	basic := BasicStorageRemoval(5)
	sectioned := SectionedStorageRemoval(map[EpochID]uint32{1: 3})

	got := basic.Add(sectioned)
	require.Equal(t, SectionedRemoval, got.Kind)
	assert.Equal(t, uint32(3), got.Sectioned[1])
	assert.Equal(t, uint32(5), got.Sectioned[EpochCurrent])
	assert.Equal(t, uint32(8), got.Total())

	sum := NoStorageRemoval().Add(basic).Add(basic)
	assert.Equal(t, uint32(10), sum.Total())
	assert.True(t, sum.HasRemoval())
}

func TestOperationCostAdditivity(t *testing.T) {
	a := OperationCost{SeekCount: 1, HashNodeCalls: 2, StorageCost: StorageCost{AddedBytes: 10}}
	b := OperationCost{SeekCount: 3, HashNodeCalls: 1, StorageCost: StorageCost{ReplacedBytes: 4}}
	got := a.Add(b)
	assert.Equal(t, uint32(4), got.SeekCount)
	assert.Equal(t, uint32(3), got.HashNodeCalls)
	assert.Equal(t, uint32(10), got.StorageCost.AddedBytes)
	assert.Equal(t, uint32(4), got.StorageCost.ReplacedBytes)
	assert.True(t, OperationCost{}.IsZero())
	assert.False(t, got.IsZero())
}

func TestResultPreservesCostOnError(t *testing.T) {
	partial := OperationCost{SeekCount: 7}
	r := ErrResult[int](errors.New("boom"), partial)

	var acc OperationCost
	_, err := r.Unwrap(&acc)
	require.Error(t, err)
	assert.Equal(t, partial, acc)
}

func TestFlatMapOkSumsCost(t *testing.T) {
	r := Ok(2, OperationCost{SeekCount: 1})
	chained := FlatMapOk(r, func(v int) Result[int] {
		return Ok(v*2, OperationCost{SeekCount: 1})
	})
	assert.Equal(t, 4, chained.Value)
	assert.Equal(t, uint32(2), chained.Cost.SeekCount)
}
