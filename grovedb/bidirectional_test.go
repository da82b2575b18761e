package grovedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/path"
	"github.com/dashpay/grovedb-sub006/storage"
)

func TestAddAndRemoveBackwardReferenceRoundTrip(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("target"), element.Item{Value: []byte("v")}, nil))
	require.NoError(t, g.Insert(path.Empty(), []byte("source"), element.Reference{
		Path: element.AbsolutePath{Path: [][]byte{[]byte("target")}},
	}, nil))

	require.NoError(t, g.addBackwardReference(path.Empty(), []byte("target"), path.Empty(), []byte("source"), true, nil))

	_, ctx, err := g.openMerkChain(path.Empty(), nil)
	require.NoError(t, err)
	res := ctx.Get(storage.Meta, bitvecKey([]byte("target")))
	require.NoError(t, res.Err)

	require.NoError(t, g.removeBackwardReference(path.Empty(), []byte("target"), path.Empty(), []byte("source"), nil))
}

func TestCascadeRefreshRewritesReferencingElements(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("target"), element.Item{Value: []byte("v1")}, nil))
	require.NoError(t, g.Insert(path.Empty(), []byte("source"), element.Reference{
		Path: element.AbsolutePath{Path: [][]byte{[]byte("target")}},
	}, nil))
	require.NoError(t, g.addBackwardReference(path.Empty(), []byte("target"), path.Empty(), []byte("source"), true, nil))

	require.NoError(t, g.cascadeRefresh(path.Empty(), []byte("target"), nil))

	el, err := g.Get(path.Empty(), []byte("source"), nil)
	require.NoError(t, err)
	assert.Equal(t, element.Item{Value: []byte("v1")}, el)
}
