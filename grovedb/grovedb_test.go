package grovedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/path"
	"github.com/dashpay/grovedb-sub006/storage/memory"
)

func newTestDb(t *testing.T) *GroveDb {
	t.Helper()
	return Open(memory.New())
}

func TestSingleInsertThenGetRoundTrip(t *testing.T) {
	g := newTestDb(t)

	require.NoError(t, g.Insert(path.Empty(), []byte("leaf1"), element.Tree{}, nil))
	require.NoError(t, g.Insert(path.New([]byte("leaf1")), []byte("key"), element.Item{Value: []byte("value")}, nil))

	el, err := g.Get(path.New([]byte("leaf1")), []byte("key"), nil)
	require.NoError(t, err)
	assert.Equal(t, element.Item{Value: []byte("value")}, el)

	rootHash, err := g.RootHash(nil)
	require.NoError(t, err)
	assert.NotEqual(t, merk.ZeroHash, rootHash)
}

func TestDeepNestingPropagatesRootKeyUpward(t *testing.T) {
	g := newTestDb(t)

	require.NoError(t, g.Insert(path.Empty(), []byte("a"), element.Tree{}, nil))
	require.NoError(t, g.Insert(path.New([]byte("a")), []byte("b"), element.Tree{}, nil))
	require.NoError(t, g.Insert(path.New([]byte("a"), []byte("b")), []byte("c"), element.Tree{}, nil))

	before, err := g.RootHash(nil)
	require.NoError(t, err)

	require.NoError(t, g.Insert(path.New([]byte("a"), []byte("b"), []byte("c")), []byte("k"), element.Item{Value: []byte("v")}, nil))

	el, err := g.GetRaw(path.New([]byte("a"), []byte("b")), []byte("c"), nil)
	require.NoError(t, err)
	tree, ok := el.(element.Tree)
	require.True(t, ok)
	assert.NotNil(t, tree.RootKey)

	after, err := g.RootHash(nil)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestGetMissingPathReturnsPathNotFound(t *testing.T) {
	g := newTestDb(t)
	_, err := g.Get(path.New([]byte("nope")), []byte("k"), nil)
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestGetMissingKeyReturnsKeyNotFound(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("a"), element.Item{Value: []byte("x")}, nil))
	_, err := g.Get(path.Empty(), []byte("missing"), nil)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestInsertIntoNonSubtreeParentIsCorruptedPath(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("item"), element.Item{Value: []byte("x")}, nil))

	err := g.Insert(path.New([]byte("item")), []byte("k"), element.Item{Value: []byte("v")}, nil)
	assert.ErrorIs(t, err, ErrCorruptedPath)
}

func TestInsertIfNotExistsSkipsWhenPresent(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("k"), element.Item{Value: []byte("first")}, nil))

	inserted, err := g.InsertIfNotExists(path.Empty(), []byte("k"), element.Item{Value: []byte("second")}, nil)
	require.NoError(t, err)
	assert.False(t, inserted)

	el, err := g.Get(path.Empty(), []byte("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, element.Item{Value: []byte("first")}, el)
}

func TestDeleteRemovesKey(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("k"), element.Item{Value: []byte("v")}, nil))
	require.NoError(t, g.Delete(path.Empty(), []byte("k"), nil))

	_, err := g.Get(path.Empty(), []byte("k"), nil)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSumTreeAggregateAtParentElement(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("s"), element.SumTree{}, nil))
	require.NoError(t, g.Insert(path.New([]byte("s")), []byte("k1"), element.SumItem{Value: 3}, nil))
	require.NoError(t, g.Insert(path.New([]byte("s")), []byte("k2"), element.SumItem{Value: 5}, nil))
	require.NoError(t, g.Insert(path.New([]byte("s")), []byte("k3"), element.SumItem{Value: -2}, nil))

	el, err := g.GetRaw(path.Empty(), []byte("s"), nil)
	require.NoError(t, err)
	sumTree, ok := el.(element.SumTree)
	require.True(t, ok)
	assert.Equal(t, int64(6), sumTree.Sum)
}

func TestBatchRejectsDuplicatePathKey(t *testing.T) {
	g := newTestDb(t)
	err := g.ApplyBatch([]QualifiedGroveDbOp{
		{Path: path.Empty(), Key: []byte("k"), Kind: OpInsert, Element: element.Item{Value: []byte("1")}},
		{Path: path.Empty(), Key: []byte("k"), Kind: OpInsert, Element: element.Item{Value: []byte("2")}},
	}, nil)
	assert.ErrorIs(t, err, ErrDuplicatePathKey)
}

func TestBatchRejectsInternalOpSubmittedDirectly(t *testing.T) {
	g := newTestDb(t)
	err := g.ApplyBatch([]QualifiedGroveDbOp{
		{Path: path.Empty(), Key: []byte("k"), Kind: opInsertTreeWithRootHash},
	}, nil)
	assert.ErrorIs(t, err, ErrInternalOpNotAllowed)
}

func TestGetFollowsAbsolutePathReference(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("target"), element.Item{Value: []byte("real value")}, nil))
	require.NoError(t, g.Insert(path.Empty(), []byte("alias"), element.Reference{
		Path: element.AbsolutePath{Path: [][]byte{[]byte("target")}},
	}, nil))

	el, err := g.Get(path.Empty(), []byte("alias"), nil)
	require.NoError(t, err)
	assert.Equal(t, element.Item{Value: []byte("real value")}, el)
}

func TestGetDetectsCyclicReference(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("a"), element.Reference{
		Path: element.AbsolutePath{Path: [][]byte{[]byte("b")}},
	}, nil))
	require.NoError(t, g.Insert(path.Empty(), []byte("b"), element.Reference{
		Path: element.AbsolutePath{Path: [][]byte{[]byte("a")}},
	}, nil))

	_, err := g.Get(path.Empty(), []byte("a"), nil)
	assert.ErrorIs(t, err, ErrCyclicReference)
}

func TestGetMissingReferenceTargetFails(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("a"), element.Reference{
		Path: element.AbsolutePath{Path: [][]byte{[]byte("nowhere")}},
	}, nil))

	_, err := g.Get(path.Empty(), []byte("a"), nil)
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestTransactionIsolatesWritesUntilCommit(t *testing.T) {
	g := newTestDb(t)
	ref, err := g.StartTransaction()
	require.NoError(t, err)

	require.NoError(t, g.Insert(path.Empty(), []byte("k"), element.Item{Value: []byte("v")}, ref.RawTx()))

	_, err = g.Get(path.Empty(), []byte("k"), nil)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, g.CommitTransaction(ref))

	el, err := g.Get(path.Empty(), []byte("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, element.Item{Value: []byte("v")}, el)
}

func TestOnlyOneActiveTransactionAtATime(t *testing.T) {
	g := newTestDb(t)
	ref, err := g.StartTransaction()
	require.NoError(t, err)
	defer g.RollbackTransaction(ref)

	_, err = g.StartTransaction()
	assert.ErrorIs(t, err, ErrAlreadyInTransaction)
}
