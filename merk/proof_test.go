package merk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/element"
)

func buildProvenTestTree(t *testing.T) *testMerk {
	t.Helper()
	tm := newTestMerk(t, FeatureBasic)
	var ops []Op
	for _, k := range []string{"d", "b", "f", "a", "c", "e", "g"} {
		ops = append(ops, itemOp(k, "v-"+k))
	}
	tm.commit(t, ops)
	return tm
}

func TestProveAndVerifyFullRangeRoundTrip(t *testing.T) {
	tm := buildProvenTestTree(t)

	res := tm.m.Prove([]Range{{}}, -1, true, nil)
	require.NoError(t, res.Err)

	results, err := VerifyQuery(res.Value, tm.m.RootHash())
	require.NoError(t, err)

	keys := make([]string, len(results))
	for i, kv := range results {
		keys[i] = string(kv.Key)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, keys)
}

func TestProveAndVerifySingleKeyRange(t *testing.T) {
	tm := buildProvenTestTree(t)

	res := tm.m.Prove([]Range{KeyRange([]byte("c"))}, -1, true, nil)
	require.NoError(t, res.Err)

	results, err := VerifyQuery(res.Value, tm.m.RootHash())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", string(results[0].Key))
	assert.Equal(t, "v-c", string(results[0].Value))
}

func TestProveAndVerifyBoundedRangeExcludesEndpoints(t *testing.T) {
	tm := buildProvenTestTree(t)

	r := Range{Start: []byte("b"), StartExcluded: true, End: []byte("e"), EndExcluded: true}
	res := tm.m.Prove([]Range{r}, -1, true, nil)
	require.NoError(t, res.Err)

	results, err := VerifyQuery(res.Value, tm.m.RootHash())
	require.NoError(t, err)
	keys := make([]string, len(results))
	for i, kv := range results {
		keys[i] = string(kv.Key)
	}
	assert.Equal(t, []string{"c", "d"}, keys)
}

func TestProveAndVerifyRespectsLimit(t *testing.T) {
	tm := buildProvenTestTree(t)

	res := tm.m.Prove([]Range{{}}, 2, true, nil)
	require.NoError(t, res.Err)

	results, err := VerifyQuery(res.Value, tm.m.RootHash())
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestProveAndVerifyRightToLeft(t *testing.T) {
	tm := buildProvenTestTree(t)

	res := tm.m.Prove([]Range{{}}, -1, false, nil)
	require.NoError(t, res.Err)

	results, err := VerifyQuery(res.Value, tm.m.RootHash())
	require.NoError(t, err)
	keys := make([]string, len(results))
	for i, kv := range results {
		keys[i] = string(kv.Key)
	}
	assert.Equal(t, []string{"g", "f", "e", "d", "c", "b", "a"}, keys)
}

func TestVerifyQueryRejectsTamperedRootHash(t *testing.T) {
	tm := buildProvenTestTree(t)

	res := tm.m.Prove([]Range{{}}, -1, true, nil)
	require.NoError(t, res.Err)

	tampered := tm.m.RootHash()
	tampered[0] ^= 0xFF

	_, err := VerifyQuery(res.Value, tampered)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestVerifyQueryRejectsTamperedOps(t *testing.T) {
	tm := buildProvenTestTree(t)

	res := tm.m.Prove([]Range{{}}, -1, true, nil)
	require.NoError(t, res.Err)
	ops := res.Value

	for i := range ops {
		if ops[i].Code == opPush && ops[i].Node.Kind == nodeKV {
			ops[i].Node.Value = append([]byte(nil), ops[i].Node.Value...)
			ops[i].Node.Value[0] ^= 0xFF
			break
		}
	}

	_, err := VerifyQuery(ops, tm.m.RootHash())
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestEncodeDecodeProofRoundTrip(t *testing.T) {
	tm := buildProvenTestTree(t)

	res := tm.m.Prove([]Range{{}}, -1, true, nil)
	require.NoError(t, res.Err)

	encoded := EncodeProof(res.Value)
	decoded, err := DecodeProof(encoded)
	require.NoError(t, err)

	results, err := VerifyQuery(decoded, tm.m.RootHash())
	require.NoError(t, err)
	assert.Len(t, results, 7)
}

func TestDecodeProofRejectsGarbage(t *testing.T) {
	_, err := DecodeProof([]byte{0xFF, 0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestProveSumTreeAggregateSurvivesProof(t *testing.T) {
	tm := newTestMerk(t, FeatureSummed)
	tm.commit(t, []Op{
		{Key: []byte("a"), Kind: OpPut, Value: element.SumItem{Value: 5}, FeatureType: FeatureSummed},
		{Key: []byte("b"), Kind: OpPut, Value: element.SumItem{Value: 7}, FeatureType: FeatureSummed},
		{Key: []byte("c"), Kind: OpPut, Value: element.SumItem{Value: 3}, FeatureType: FeatureSummed},
	})

	res := tm.m.Prove([]Range{{}}, -1, true, nil)
	require.NoError(t, res.Err)

	results, err := VerifyQuery(res.Value, tm.m.RootHash())
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRestorerSingleChunkRoundTrip(t *testing.T) {
	tm := buildProvenTestTree(t)

	res := tm.m.Prove([]Range{{}}, -1, true, nil)
	require.NoError(t, res.Err)

	restorer := NewRestorer(tm.ctx, tm.m.RootHash())
	require.NoError(t, restorer.ProcessChunk(ChunkID{}, res.Value))
	require.NoError(t, restorer.Finalize())
	assert.Empty(t, restorer.PendingChildren())
}

func TestRestorerRejectsUnexpectedChunkID(t *testing.T) {
	tm := buildProvenTestTree(t)
	res := tm.m.Prove([]Range{{}}, -1, true, nil)
	require.NoError(t, res.Err)

	restorer := NewRestorer(tm.ctx, tm.m.RootHash())
	err := restorer.ProcessChunk(ChunkID{true, false}, res.Value)
	assert.ErrorIs(t, err, ErrUnexpectedChunk)
}

func TestRestorerRejectsMismatchedRootHash(t *testing.T) {
	tm := buildProvenTestTree(t)
	res := tm.m.Prove([]Range{{}}, -1, true, nil)
	require.NoError(t, res.Err)

	var wrongHash Hash
	wrongHash[0] = 1
	restorer := NewRestorer(tm.ctx, wrongHash)
	err := restorer.ProcessChunk(ChunkID{}, res.Value)
	assert.ErrorIs(t, err, ErrInvalidChunkProof)
}

func TestRestorerFinalizeFailsBeforeAllChunksProcessed(t *testing.T) {
	tm := buildProvenTestTree(t)
	restorer := NewRestorer(tm.ctx, tm.m.RootHash())
	assert.ErrorIs(t, restorer.Finalize(), ErrRestorationNotComplete)
}
