package proof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/query"
	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/memory"
)

func buildSingleLayerEnvelope(t *testing.T) (*Envelope, merk.Hash) {
	t.Helper()
	store := memory.New()
	ctx := storage.NewContext(store, []byte("root"))
	m := merk.OpenStandalone(ctx, merk.FeatureBasic)

	batch := storage.NewStorageBatch()
	ops := []merk.Op{}
	for _, k := range []string{"a", "b", "c"} {
		ops = append(ops, merk.Op{Key: []byte(k), Kind: merk.OpPut, Value: element.Item{Value: []byte("v-" + k)}, FeatureType: merk.FeatureBasic})
	}
	res := m.Apply(ops, batch, nil)
	require.NoError(t, res.Err)
	require.NoError(t, batch.Commit(store))

	proveRes := m.Prove([]merk.Range{{}}, -1, true, nil)
	require.NoError(t, proveRes.Err)

	layer := &LayerProof{
		Items:     []query.QueryItem{query.RangeFull()},
		MerkProof: merk.EncodeProof(proveRes.Value),
	}
	return &Envelope{Root: layer}, m.RootHash()
}

func TestEnvelopeEncodeDecodeRoundTrip(t *testing.T) {
	env, rootHash := buildSingleLayerEnvelope(t)

	encoded := Encode(env)
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	_, results, err := Verify(decoded, rootHash, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestVerifySingleLayerRejectsWrongRootHash(t *testing.T) {
	env, _ := buildSingleLayerEnvelope(t)
	var wrong merk.Hash
	wrong[0] = 0xAB

	_, _, err := Verify(env, wrong, nil)
	assert.Error(t, err)
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestVerifyRecursesIntoLowerLayer(t *testing.T) {
	// Root layer: one key "sub" whose value names a child subtree's root
	// hash via a trivial deriveChildHash (identity over the stored bytes).
	rootStore := memory.New()
	rootCtx := storage.NewContext(rootStore, []byte("root"))
	rootM := merk.OpenStandalone(rootCtx, merk.FeatureBasic)

	childStore := memory.New()
	childCtx := storage.NewContext(childStore, []byte("child"))
	childM := merk.OpenStandalone(childCtx, merk.FeatureBasic)

	childBatch := storage.NewStorageBatch()
	childRes := childM.Apply([]merk.Op{
		{Key: []byte("x"), Kind: merk.OpPut, Value: element.Item{Value: []byte("1")}, FeatureType: merk.FeatureBasic},
	}, childBatch, nil)
	require.NoError(t, childRes.Err)
	require.NoError(t, childBatch.Commit(childStore))
	childHash := childM.RootHash()

	rootBatch := storage.NewStorageBatch()
	rootRes := rootM.Apply([]merk.Op{
		{Key: []byte("sub"), Kind: merk.OpPut, Value: element.Item{Value: childHash[:]}, FeatureType: merk.FeatureBasic},
	}, rootBatch, nil)
	require.NoError(t, rootRes.Err)
	require.NoError(t, rootBatch.Commit(rootStore))

	rootProve := rootM.Prove([]merk.Range{{}}, -1, true, nil)
	require.NoError(t, rootProve.Err)
	childProve := childM.Prove([]merk.Range{{}}, -1, true, nil)
	require.NoError(t, childProve.Err)

	env := &Envelope{Root: &LayerProof{
		MerkProof: merk.EncodeProof(rootProve.Value),
		LowerLayers: map[string]*LayerProof{
			"sub": {MerkProof: merk.EncodeProof(childProve.Value)},
		},
	}}

	deriveChildHash := func(value []byte) (merk.Hash, error) {
		var h merk.Hash
		copy(h[:], value)
		return h, nil
	}

	_, results, err := Verify(env, rootM.RootHash(), deriveChildHash)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", string(results[0].Key))
}
