package merk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/element"
)

func TestNodeEncodeDecodeRoundTripLeaf(t *testing.T) {
	n := newLeaf([]byte("key"), element.Item{Value: []byte("value")}, FeatureBasic, nil)

	decoded, err := decodeNode(n.Key, n.encode())
	require.NoError(t, err)

	assert.Equal(t, n.Key, decoded.Key)
	assert.Equal(t, n.ValueBytes, decoded.ValueBytes)
	assert.Equal(t, n.ValueHash, decoded.ValueHash)
	assert.Equal(t, n.KVHash, decoded.KVHash)
	assert.Equal(t, n.FeatureType, decoded.FeatureType)
	assert.Nil(t, decoded.Left)
	assert.Nil(t, decoded.Right)
}

func TestNodeEncodeDecodeRoundTripWithLinks(t *testing.T) {
	n := newLeaf([]byte("key"), element.Item{Value: []byte("value")}, FeatureBasic, nil)
	n.Left = &Link{State: LinkReference, Key: []byte("left-key"), Hash: Hash{1, 2, 3}, LeftChildHeight: 1, RightChildHeight: 0}
	n.Right = &Link{State: LinkReference, Key: []byte("right-key"), Hash: Hash{4, 5, 6}, LeftChildHeight: 0, RightChildHeight: 2}

	decoded, err := decodeNode(n.Key, n.encode())
	require.NoError(t, err)

	require.NotNil(t, decoded.Left)
	assert.Equal(t, n.Left.Key, decoded.Left.Key)
	assert.Equal(t, n.Left.Hash, decoded.Left.Hash)
	assert.Equal(t, n.Left.LeftChildHeight, decoded.Left.LeftChildHeight)
	assert.Equal(t, n.Left.RightChildHeight, decoded.Left.RightChildHeight)
	assert.Equal(t, LinkReference, decoded.Left.State)

	require.NotNil(t, decoded.Right)
	assert.Equal(t, n.Right.Key, decoded.Right.Key)
	assert.Equal(t, n.Right.Hash, decoded.Right.Hash)
}

func TestNodeDecodeRejectsTruncatedBytes(t *testing.T) {
	n := newLeaf([]byte("key"), element.Item{Value: []byte("value")}, FeatureBasic, nil)
	encoded := n.encode()

	_, err := decodeNode(n.Key, encoded[:len(encoded)-3])
	assert.ErrorIs(t, err, ErrCorruptedNode)
}

func TestNodeDecodeRejectsTrailingGarbage(t *testing.T) {
	n := newLeaf([]byte("key"), element.Item{Value: []byte("value")}, FeatureBasic, nil)
	encoded := append(n.encode(), 0xFF, 0xFF)

	_, err := decodeNode(n.Key, encoded)
	assert.ErrorIs(t, err, ErrCorruptedNode)
}

func TestSubtreeMarkerValueHashFoldsChildRootHash(t *testing.T) {
	treeEl := element.Tree{RootKey: []byte("x")}

	hashA := Hash{1, 1, 1}
	hashB := Hash{2, 2, 2}

	withA := newLeaf([]byte("y"), treeEl, FeatureBasic, &hashA)
	withB := newLeaf([]byte("y"), treeEl, FeatureBasic, &hashB)

	assert.NotEqual(t, withA.ValueHash, withB.ValueHash,
		"identical subtree-marker bytes with different child root hashes must hash differently")
	assert.NotEqual(t, withA.KVHash, withB.KVHash)

	plain := newLeaf([]byte("item"), element.Item{Value: []byte("v")}, FeatureBasic, &hashA)
	assert.Equal(t, ValueHash(plain.ValueBytes), plain.ValueHash,
		"non-subtree elements never fold in a child root hash")
}

func TestNodeOwnAggregateExcludesChildren(t *testing.T) {
	n := newLeaf([]byte("key"), element.SumItem{Value: 10}, FeatureSummed, nil)
	n.Left = &Link{State: LinkUncommitted, Child: newLeaf([]byte("a"), element.SumItem{Value: 3}, FeatureSummed, nil)}
	n.Right = &Link{State: LinkUncommitted, Child: newLeaf([]byte("z"), element.SumItem{Value: 4}, FeatureSummed, nil)}

	assert.Equal(t, int64(10), n.ownAggregate().Sum)
	assert.Equal(t, int64(17), n.aggregate().Sum)
}
