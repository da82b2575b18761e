package grovedb

import (
	"github.com/dashpay/grovedb-sub006/merk"
	"github.com/dashpay/grovedb-sub006/path"
	"github.com/dashpay/grovedb-sub006/storage"
)

// ChunkProducer is the source side of replication (spec.md 4.8): it opens
// whichever subtree a caller names and serves its full node set as one
// chunk, folding in each subtree-marker leaf's real child root hash the same
// way ApplyBatch does at insert time, so the paired Restorer can verify the
// Layered hash fold rather than trusting an unfolded leaf hash.
type ChunkProducer struct {
	g  *GroveDb
	tx storage.RawTx
}

// NewChunkProducer starts a chunk producer reading through tx (nil for the
// latest committed state).
func (g *GroveDb) NewChunkProducer(tx storage.RawTx) *ChunkProducer {
	return &ChunkProducer{g: g, tx: tx}
}

// Chunk produces the ops for the subtree at p, addressed by id (spec.md 4.8
// step 1; only the root chunk id is currently supported per subtree — see
// merk.ChunkProducer).
func (c *ChunkProducer) Chunk(p path.Path, id merk.ChunkID) ([]merk.ProofOp, error) {
	m, _, err := c.g.openMerkChain(p, c.tx)
	if err != nil {
		return nil, err
	}
	resolver := c.g.proofChildRootHashResolver(p, c.tx)
	return merk.NewChunkProducer(m).Chunk(id, resolver)
}

// pathRestorer pairs a merk.Restorer with the path it reconstructs.
type pathRestorer struct {
	path     path.Path
	restorer *merk.Restorer
}

// Restorer drives one replica rebuild across every subtree named by the
// source's chunk stream (spec.md 4.8): a merk.Restorer per path, seeded
// recursively as each parent's chunks reveal a nested subtree marker.
type Restorer struct {
	g       *GroveDb
	tx      storage.RawTx
	pending map[string]*pathRestorer // keyed by path.Key()
	done    []*pathRestorer
}

// NewRestorer starts a restoration rooted at the base Merk, which must match
// rootHash once fully rebuilt.
func (g *GroveDb) NewRestorer(rootHash merk.Hash, tx storage.RawTx) *Restorer {
	ctx := g.contextFor(path.Empty(), tx)
	pr := &pathRestorer{path: path.Empty(), restorer: merk.NewRestorer(ctx, rootHash)}
	return &Restorer{
		g:       g,
		tx:      tx,
		pending: map[string]*pathRestorer{"": pr},
	}
}

// ProcessChunk feeds one chunk addressed to the subtree at p into its
// restorer, discovering any nested subtree markers and seeding a nested
// restorer for each (spec.md 4.8 steps 2-5).
func (r *Restorer) ProcessChunk(p path.Path, id merk.ChunkID, ops []merk.ProofOp) error {
	pr, ok := r.pending[p.Key()]
	if !ok {
		r.g.log.WithField("path", p.Key()).Warn("grovedb: restorer rejected chunk for unknown/already-finished path")
		return ErrRestorationNotComplete
	}
	if err := pr.restorer.ProcessChunk(id, ops); err != nil {
		r.g.log.WithError(err).WithField("path", p.Key()).Warn("grovedb: restorer rejected chunk")
		return err
	}
	for _, child := range pr.restorer.PendingChildren() {
		childPath := p.PushSegment(child.ParentKey)
		ctx := r.g.contextFor(childPath, r.tx)
		r.pending[childPath.Key()] = &pathRestorer{
			path:     childPath,
			restorer: merk.NewRestorer(ctx, child.RootHash),
		}
	}
	return nil
}

// Finalize reports whether every subtree restorer — root and every nested
// one discovered along the way — has satisfied its expected root hash.
func (r *Restorer) Finalize() error {
	for _, pr := range r.pending {
		if err := pr.restorer.Finalize(); err != nil {
			r.g.log.WithField("path", pr.path.Key()).Warn("grovedb: restoration incomplete at finalize")
			return ErrRestorationNotComplete
		}
	}
	return nil
}
