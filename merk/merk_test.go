package merk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/memory"
)

// testMerk bundles a Merk with the raw store backing it, so tests can flush
// a StorageBatch and reopen a fresh Merk against the same bytes.
type testMerk struct {
	store storage.RawStore
	ctx   *storage.Context
	m     *Merk
}

func newTestMerk(t *testing.T, ft FeatureType) *testMerk {
	t.Helper()
	store := memory.New()
	ctx := storage.NewContext(store, []byte("test-subtree"))
	return &testMerk{store: store, ctx: ctx, m: OpenStandalone(ctx, ft)}
}

func itemOp(key, value string) Op {
	return Op{Key: []byte(key), Kind: OpPut, Value: element.Item{Value: []byte(value)}, FeatureType: FeatureBasic}
}

func deleteOp(key string) Op {
	return Op{Key: []byte(key), Kind: OpDelete}
}

// commit applies ops to tm.m and flushes the resulting batch into tm.store.
func (tm *testMerk) commit(t *testing.T, ops []Op) ApplyResult {
	t.Helper()
	batch := storage.NewStorageBatch()
	res := tm.m.Apply(ops, batch, nil)
	require.NoError(t, res.Err)
	require.NoError(t, batch.Commit(tm.store))
	return res.Value
}

func TestPutThenGetRoundTrip(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	tm.commit(t, []Op{itemOp("b", "2"), itemOp("a", "1"), itemOp("c", "3")})

	r := tm.m.Get([]byte("a"))
	require.NoError(t, r.Err)
	assert.Equal(t, element.Item{Value: []byte("1")}, r.Value)

	r = tm.m.Get([]byte("missing"))
	assert.ErrorIs(t, r.Err, ErrKeyNotFound)
}

func TestApplyRejectsDuplicateKeysInOneBatch(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	batch := storage.NewStorageBatch()
	res := tm.m.Apply([]Op{itemOp("a", "1"), itemOp("a", "2")}, batch, nil)
	assert.ErrorIs(t, res.Err, ErrDuplicateKey)
}

func TestTreeStaysBalancedUnderSequentialInsert(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	var ops []Op
	for i := 0; i < 100; i++ {
		ops = append(ops, itemOp(fmt.Sprintf("key-%04d", i), fmt.Sprintf("v%d", i)))
	}
	// Insert in several batches so rebalancing is exercised incrementally,
	// the way a real apply_batch sequence would touch the tree over time.
	for i := 0; i < len(ops); i += 10 {
		end := i + 10
		if end > len(ops) {
			end = len(ops)
		}
		tm.commit(t, ops[i:end])
	}

	require.NotNil(t, tm.m.root)
	h := tm.m.root.height()
	// A balanced AVL tree over 100 keys has height close to log2(100) ~= 7;
	// an unbalanced linked list would reach height 100.
	assert.Less(t, int(h), 20)

	for i := 0; i < 100; i++ {
		r := tm.m.Get([]byte(fmt.Sprintf("key-%04d", i)))
		require.NoError(t, r.Err)
	}
}

func TestDeletePromotesTallerSubtreeExtremum(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	var ops []Op
	for _, k := range []string{"d", "b", "f", "a", "c", "e", "g"} {
		ops = append(ops, itemOp(k, k))
	}
	tm.commit(t, ops)

	tm.commit(t, []Op{deleteOp("d")})

	assert.ErrorIs(t, tm.m.Get([]byte("d")).Err, ErrKeyNotFound)
	for _, k := range []string{"a", "b", "c", "e", "f", "g"} {
		r := tm.m.Get([]byte(k))
		require.NoError(t, r.Err, "key %s should survive deletion of d", k)
	}
}

func TestDeleteLeafAndSingleChildCases(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	tm.commit(t, []Op{itemOp("b", "2"), itemOp("a", "1"), itemOp("c", "3")})

	// "a" is a leaf.
	tm.commit(t, []Op{deleteOp("a")})
	assert.ErrorIs(t, tm.m.Get([]byte("a")).Err, ErrKeyNotFound)

	// "b" (root) now has a single child "c".
	tm.commit(t, []Op{deleteOp("b")})
	assert.ErrorIs(t, tm.m.Get([]byte("b")).Err, ErrKeyNotFound)
	require.NoError(t, tm.m.Get([]byte("c")).Err)
}

func TestRootHashChangesAcrossMutationsAndEmptyTreeIsZero(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	assert.Equal(t, ZeroHash, tm.m.RootHash())

	tm.commit(t, []Op{itemOp("a", "1")})
	h1 := tm.m.RootHash()
	assert.NotEqual(t, ZeroHash, h1)

	tm.commit(t, []Op{itemOp("b", "2")})
	h2 := tm.m.RootHash()
	assert.NotEqual(t, h1, h2)
}

func TestPersistedNodeSurvivesReloadFromStorage(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	result := tm.commit(t, []Op{itemOp("a", "1"), itemOp("b", "2"), itemOp("c", "3")})

	ctx2 := storage.NewContext(tm.store, []byte("test-subtree"))
	reopened := OpenLayeredWithRootKey(ctx2, result.RootKey, FeatureBasic)
	require.NoError(t, reopened.Err)
	m2 := reopened.Value
	assert.Equal(t, result.RootHash, m2.RootHash())

	r := m2.Get([]byte("b"))
	require.NoError(t, r.Err)
	assert.Equal(t, element.Item{Value: []byte("2")}, r.Value)
}

func TestSumTreeAggregatesAcrossInserts(t *testing.T) {
	tm := newTestMerk(t, FeatureSummed)
	ops := []Op{
		{Key: []byte("a"), Kind: OpPut, Value: element.SumItem{Value: 5}, FeatureType: FeatureSummed},
		{Key: []byte("b"), Kind: OpPut, Value: element.SumItem{Value: 7}, FeatureType: FeatureSummed},
		{Key: []byte("c"), Kind: OpPut, Value: element.Item{Value: []byte("x")}, FeatureType: FeatureBasic},
	}
	result := tm.commit(t, ops)
	assert.Equal(t, int64(12), result.Aggregate.Sum)
}

func TestNonSumCapableTreeRejectsSumItem(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	batch := storage.NewStorageBatch()
	res := tm.m.Apply([]Op{{Key: []byte("a"), Kind: OpPut, Value: element.SumItem{Value: 1}, FeatureType: FeatureSummed}}, batch, nil)
	assert.ErrorIs(t, res.Err, ErrNotSumCapable)
}

func TestMetaSideChannelDoesNotAffectRootHash(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	tm.commit(t, []Op{itemOp("a", "1")})
	before := tm.m.RootHash()

	res := tm.m.PutMeta([]byte("scratch"), []byte("anything"))
	require.NoError(t, res.Err)

	assert.Equal(t, before, tm.m.RootHash())
	got := tm.m.GetMeta([]byte("scratch"))
	require.NoError(t, got.Err)
	assert.Equal(t, []byte("anything"), got.Value)
}

func TestCostFeedbackLoopConverges(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	calls := 0
	opts := &ApplyOptions{
		ValueMutationCallback: func(key []byte, realized cost.OperationCost, val element.Element) (element.Element, bool) {
			calls++
			return val, false
		},
	}
	batch := storage.NewStorageBatch()
	res := tm.m.Apply([]Op{itemOp("a", "1")}, batch, opts)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, calls)
}

func TestCostFeedbackLoopDivergesFailsWithCyclicError(t *testing.T) {
	tm := newTestMerk(t, FeatureBasic)
	toggle := false
	opts := &ApplyOptions{
		ValueMutationCallback: func(key []byte, realized cost.OperationCost, val element.Element) (element.Element, bool) {
			toggle = !toggle
			if toggle {
				return element.Item{Value: []byte("x")}, true
			}
			return element.Item{Value: []byte("y")}, true
		},
	}
	batch := storage.NewStorageBatch()
	res := tm.m.Apply([]Op{itemOp("a", "1")}, batch, opts)
	assert.ErrorIs(t, res.Err, ErrCyclicCostFeedback)
}
