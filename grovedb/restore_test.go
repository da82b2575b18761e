package grovedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/path"
)

func TestRestorerRebuildsNestedTreeFromSourceChunks(t *testing.T) {
	source := newTestDb(t)
	require.NoError(t, source.Insert(path.Empty(), []byte("a"), element.Tree{}, nil))
	require.NoError(t, source.Insert(path.New([]byte("a")), []byte("k"), element.Item{Value: []byte("v")}, nil))

	rootHash, err := source.RootHash(nil)
	require.NoError(t, err)

	replica := newTestDb(t)
	r := replica.NewRestorer(rootHash, nil)
	producer := source.NewChunkProducer(nil)

	rootOps, err := producer.Chunk(path.Empty(), merk.ChunkID{})
	require.NoError(t, err)
	require.NoError(t, r.ProcessChunk(path.Empty(), merk.ChunkID{}, rootOps))

	var childPath path.Path
	for _, pr := range r.pending {
		if !pr.path.IsEmpty() {
			childPath = pr.path
		}
	}
	require.Equal(t, 1, childPath.Len())

	childOps, err := producer.Chunk(childPath, merk.ChunkID{})
	require.NoError(t, err)
	require.NoError(t, r.ProcessChunk(childPath, merk.ChunkID{}, childOps))

	require.NoError(t, r.Finalize())

	el, err := replica.GetRaw(path.New([]byte("a")), []byte("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, element.Item{Value: []byte("v")}, el)
}

func TestRestorerFinalizeFailsWhenChildStillPending(t *testing.T) {
	source := newTestDb(t)
	require.NoError(t, source.Insert(path.Empty(), []byte("a"), element.Tree{}, nil))
	require.NoError(t, source.Insert(path.New([]byte("a")), []byte("k"), element.Item{Value: []byte("v")}, nil))

	rootHash, err := source.RootHash(nil)
	require.NoError(t, err)

	replica := newTestDb(t)
	r := replica.NewRestorer(rootHash, nil)
	producer := source.NewChunkProducer(nil)

	rootOps, err := producer.Chunk(path.Empty(), merk.ChunkID{})
	require.NoError(t, err)
	require.NoError(t, r.ProcessChunk(path.Empty(), merk.ChunkID{}, rootOps))

	assert.ErrorIs(t, r.Finalize(), ErrRestorationNotComplete)
}
