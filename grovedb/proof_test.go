package grovedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/path"
	"github.com/dashpay/grovedb-sub006/query"
)

func TestProveAndVerifySingleLayerRoundTrip(t *testing.T) {
	g := newTestDb(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, g.Insert(path.Empty(), []byte(k), element.Item{Value: []byte("v-" + k)}, nil))
	}

	q := query.New()
	q.Insert(query.RangeFull())
	pq := query.PathQuery{Path: nil, Query: query.SizedQuery{Query: q}}

	proofBytes, err := g.ProveQuery(pq, nil)
	require.NoError(t, err)

	rootHash, err := g.RootHash(nil)
	require.NoError(t, err)

	verifiedHash, results, err := g.VerifyQuery(proofBytes, pq, nil)
	require.NoError(t, err)
	assert.Equal(t, rootHash, verifiedHash)
	assert.Len(t, results, 4)
}

func TestProveAndVerifyRecursesIntoSubtree(t *testing.T) {
	g := newTestDb(t)
	require.NoError(t, g.Insert(path.Empty(), []byte("sub"), element.Tree{}, nil))
	require.NoError(t, g.Insert(path.New([]byte("sub")), []byte("x"), element.Item{Value: []byte("1")}, nil))
	require.NoError(t, g.Insert(path.New([]byte("sub")), []byte("y"), element.Item{Value: []byte("2")}, nil))

	q := query.New()
	q.Insert(query.Key([]byte("sub")))
	subQuery := query.New()
	subQuery.Insert(query.RangeFull())
	q.SetDefaultSubquery(&query.SubqueryBranch{Subquery: subQuery})

	pq := query.PathQuery{Path: nil, Query: query.SizedQuery{Query: q}}

	proofBytes, err := g.ProveQuery(pq, nil)
	require.NoError(t, err)

	_, results, err := g.VerifyQuery(proofBytes, pq, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
