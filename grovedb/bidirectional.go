package grovedb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/internal/bitvec"
	"github.com/dashpay/grovedb-sub006/path"
	"github.com/dashpay/grovedb-sub006/storage"
)

// BackwardReference records, in a reference target's own meta storage, that
// some other element points at it (spec.md 4.6 C8): the absolute
// (path, key) of the referencing Reference element, and whether a change to
// the target should cascade into re-hashing that reference.
type BackwardReference struct {
	SourcePath      [][]byte
	SourceKey       []byte
	CascadeOnUpdate bool
}

const refsKeyPrefix = "refs"

// bitvecKey is the meta-storage key for the occupied-slot bitvec tracking
// backward references to key (spec.md 4.6: "refs" ∥ be(len(key)) ∥ key).
func bitvecKey(key []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(refsKeyPrefix)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(key)))
	buf.Write(lenBuf[:])
	buf.Write(key)
	return buf.Bytes()
}

// slotKey is the meta-storage key for backward-reference slot i of key
// (spec.md 4.6: "refs" ∥ ... ∥ key ∥ ascii(i)).
func slotKey(key []byte, i int) []byte {
	return append(bitvecKey(key), []byte(fmt.Sprintf("%02d", i))...)
}

func encodeBackwardReference(br BackwardReference) []byte {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(br.SourcePath)))
	buf.Write(tmp[:n])
	for _, seg := range br.SourcePath {
		n := binary.PutUvarint(tmp[:], uint64(len(seg)))
		buf.Write(tmp[:n])
		buf.Write(seg)
	}
	n = binary.PutUvarint(tmp[:], uint64(len(br.SourceKey)))
	buf.Write(tmp[:n])
	buf.Write(br.SourceKey)
	if br.CascadeOnUpdate {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodeBackwardReference(data []byte) (BackwardReference, error) {
	r := bytes.NewReader(data)
	readUvarint := func() (uint64, error) { return binary.ReadUvarint(r) }
	readBytes := func() ([]byte, error) {
		n, err := readUvarint()
		if err != nil {
			return nil, err
		}
		out := make([]byte, n)
		if _, err := r.Read(out); err != nil && n > 0 {
			return nil, err
		}
		return out, nil
	}

	segCount, err := readUvarint()
	if err != nil {
		return BackwardReference{}, ErrCorruptedData
	}
	br := BackwardReference{}
	for i := uint64(0); i < segCount; i++ {
		seg, err := readBytes()
		if err != nil {
			return BackwardReference{}, ErrCorruptedData
		}
		br.SourcePath = append(br.SourcePath, seg)
	}
	key, err := readBytes()
	if err != nil {
		return BackwardReference{}, ErrCorruptedData
	}
	br.SourceKey = key
	flag, err := r.ReadByte()
	if err != nil {
		return BackwardReference{}, ErrCorruptedData
	}
	br.CascadeOnUpdate = flag == 1
	return br, nil
}

// addBackwardReference records that (sourcePath, sourceKey) references
// (targetPath, targetKey), in the target's own meta storage.
func (g *GroveDb) addBackwardReference(targetPath path.Path, targetKey []byte, sourcePath path.Path, sourceKey []byte, cascade bool, tx storage.RawTx) error {
	_, ctx, err := g.openMerkChain(targetPath, tx)
	if err != nil {
		return err
	}
	res := ctx.Get(storage.Meta, bitvecKey(targetKey))
	var v bitvec.BitVec32
	if res.Err == nil {
		v = bitvec.Decode(res.Value)
	} else if res.Err != storage.ErrNotFound {
		return res.Err
	}
	slot := v.FirstFree()
	if slot < 0 {
		return ErrReferenceLimit
	}
	v = v.Set(slot)

	br := BackwardReference{SourcePath: sourcePath.Segments(), SourceKey: sourceKey, CascadeOnUpdate: cascade}
	if r := ctx.Put(storage.Meta, slotKey(targetKey, slot), encodeBackwardReference(br), nil); r.Err != nil {
		return r.Err
	}
	if r := ctx.Put(storage.Meta, bitvecKey(targetKey), v.Encode(), nil); r.Err != nil {
		return r.Err
	}
	return nil
}

// removeBackwardReference frees the first slot at (targetPath, targetKey)
// whose recorded source matches (sourcePath, sourceKey); applyPathGroup
// calls it when a Reference element is deleted (spec.md 4.6 C8).
func (g *GroveDb) removeBackwardReference(targetPath path.Path, targetKey []byte, sourcePath path.Path, sourceKey []byte, tx storage.RawTx) error {
	_, ctx, err := g.openMerkChain(targetPath, tx)
	if err != nil {
		return err
	}
	res := ctx.Get(storage.Meta, bitvecKey(targetKey))
	if res.Err == storage.ErrNotFound {
		return nil
	}
	if res.Err != nil {
		return res.Err
	}
	v := bitvec.Decode(res.Value)
	for _, slot := range v.Occupied() {
		sres := ctx.Get(storage.Meta, slotKey(targetKey, slot))
		if sres.Err != nil {
			continue
		}
		br, err := decodeBackwardReference(sres.Value)
		if err != nil {
			continue
		}
		if path.New(br.SourcePath...).Equal(sourcePath) && bytes.Equal(br.SourceKey, sourceKey) {
			v = v.Clear(slot)
			if r := ctx.Delete(storage.Meta, slotKey(targetKey, slot), nil); r.Err != nil {
				return r.Err
			}
			if r := ctx.Put(storage.Meta, bitvecKey(targetKey), v.Encode(), nil); r.Err != nil {
				return r.Err
			}
			return nil
		}
	}
	return nil
}

// cascadeRefresh walks every backward reference recorded at
// (targetPath, targetKey) with CascadeOnUpdate set and re-applies each
// referencing element as an OpRefreshReference, so a target's change
// propagates forward into every reference that asked to track it
// (spec.md 4.6 C8 "cascade_on_update").
func (g *GroveDb) cascadeRefresh(targetPath path.Path, targetKey []byte, tx storage.RawTx) error {
	_, ctx, err := g.openMerkChain(targetPath, tx)
	if err != nil {
		return err
	}
	res := ctx.Get(storage.Meta, bitvecKey(targetKey))
	if res.Err == storage.ErrNotFound {
		return nil
	}
	if res.Err != nil {
		return res.Err
	}
	v := bitvec.Decode(res.Value)

	var ops []QualifiedGroveDbOp
	for _, slot := range v.Occupied() {
		sres := ctx.Get(storage.Meta, slotKey(targetKey, slot))
		if sres.Err != nil {
			continue
		}
		br, err := decodeBackwardReference(sres.Value)
		if err != nil || !br.CascadeOnUpdate {
			continue
		}
		sourcePath := path.New(br.SourcePath...)
		existing, err := g.GetRaw(sourcePath, br.SourceKey, tx)
		if err != nil {
			continue
		}
		ref, ok := existing.(element.Reference)
		if !ok {
			continue
		}
		ops = append(ops, QualifiedGroveDbOp{Path: sourcePath, Key: br.SourceKey, Kind: OpRefreshReference, Element: ref})
	}
	if len(ops) == 0 {
		return nil
	}
	return g.ApplyBatch(ops, tx)
}
