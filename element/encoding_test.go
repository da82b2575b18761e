package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	hop := uint8(4)
	cases := []Element{
		Item{Value: []byte("hello"), ElementFlags: []byte{0xaa}},
		Item{Value: []byte("no-flags")},
		SumItem{Value: -42, ElementFlags: []byte{0x01}},
		Reference{Path: AbsolutePath{Path: [][]byte{[]byte("a"), []byte("b")}}, MaxHops: &hop},
		Reference{Path: CousinPath{Key: []byte("k")}},
		Reference{Path: UpstreamRootHeightPath{Height: 2, Path: [][]byte{[]byte("x")}}},
		Tree{RootKey: []byte("root")},
		Tree{},
		SumTree{RootKey: []byte("root"), Sum: 99},
		BigSumTree{RootKey: []byte("root"), Sum: [16]byte{0: 1, 15: 2}},
		CountTree{RootKey: []byte("root"), Count: 7},
		CountSumTree{RootKey: []byte("root"), Count: 7, Sum: -3},
		ProvableCountTree{RootKey: []byte("root"), Count: 7},
		ProvableCountSumTree{RootKey: []byte("root"), Count: 7, Sum: -3},
		SealedTree{SealedKind: SealedMmrTree, RootHash: [32]byte{1, 2, 3}},
	}

	for _, want := range cases {
		encoded := Encode(want)
		got, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeRejectsUnknownDiscriminant(t *testing.T) {
	_, err := Decode([]byte{Version, 0xff})
	assert.ErrorIs(t, err, ErrUnknownDiscriminant)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	encoded := Encode(Item{Value: []byte("v")})
	encoded = append(encoded, 0x00)
	_, err := Decode(encoded)
	assert.ErrorIs(t, err, ErrTrailingBytes)
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	encoded := Encode(Item{Value: []byte("v")})
	encoded[0] = Version + 1
	_, err := Decode(encoded)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	encoded := Encode(Item{Value: []byte("hello")})
	_, err := Decode(encoded[:len(encoded)-2])
	assert.Error(t, err)
}

func TestReconstructWithRootKeyPreservesFlags(t *testing.T) {
	orig := SumTree{RootKey: []byte("old"), Sum: 5, ElementFlags: []byte{0x9}}
	rebuilt, err := ReconstructWithRootKey(orig, []byte("new"), AggregateData{Kind: AggregateSum, Sum: 12})
	require.NoError(t, err)
	assert.Equal(t, SumTree{RootKey: []byte("new"), Sum: 12, ElementFlags: []byte{0x9}}, rebuilt)
}

func TestReconstructWithRootKeyRejectsNonSubtree(t *testing.T) {
	_, err := ReconstructWithRootKey(Item{Value: []byte("x")}, []byte("new"), AggregateData{})
	assert.Error(t, err)
}

func TestSpecializedValueByteCost(t *testing.T) {
	n, ok := SpecializedValueByteCost(KindSumTree)
	require.True(t, ok)
	assert.Equal(t, uint32(12), n)

	_, ok = SpecializedValueByteCost(KindItem)
	assert.False(t, ok)
}

func TestIsSumCapable(t *testing.T) {
	assert.True(t, KindSumTree.IsSumCapable())
	assert.False(t, KindTree.IsSumCapable())
}
