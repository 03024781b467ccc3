package receipt

import (
	"fmt"

	"github.com/macpkg/bom/pkg/blockstore"
	"github.com/macpkg/bom/pkg/tree"
	"github.com/macpkg/bom/pkg/types"
)

// vIndex is the packed VIndex named block: a version, a pointer to a Tree
// of regex lists keyed by XML path (the VirtualPaths feature), and two
// fields of unknown purpose. No Receipt in this implementation populates
// virtual paths (nothing in this library's builder produces them), so the
// tree is always written empty; the block still exists so readers of
// receipts built by this library see the same five-named-block shape a
// real BOM file has.
type vIndex struct {
	Tree     uint32
	Unknown1 uint32
	Unknown2 uint32
}

func writeVIndex(bs *blockstore.BlockStore) (uint32, error) {
	emptyTreeIdx, err := tree.Write(bs, nil, 128)
	if err != nil {
		return 0, fmt.Errorf("receipt: write VIndex tree: %w", err)
	}
	w := types.NewBinaryWriter()
	w.WriteUint32(types.StoreVersion)
	w.WriteUint32(emptyTreeIdx)
	w.WriteUint32(0)
	w.WriteUint32(0)
	return bs.Allocate(w.Bytes()), nil
}

// readVIndex decodes the VIndex named block and reads its inner tree's
// header to report how many virtual-path entries it declares. No builder
// in this package populates virtual paths, so this is 0 for every receipt
// ReceiptBuilder produces; a real mkbom-produced file may report a nonzero
// count, which this exposes without modelling the regex-list payload
// itself.
func readVIndex(bs *blockstore.BlockStore) (uint32, error) {
	idx, ok := bs.Named("VIndex")
	if !ok {
		return 0, fmt.Errorf("receipt: no VIndex named block")
	}
	raw, err := bs.Read(idx)
	if err != nil {
		return 0, fmt.Errorf("receipt: read VIndex block: %w", err)
	}
	vidx, err := decodeVIndex(raw)
	if err != nil {
		return 0, err
	}
	h, err := tree.ReadHeader(bs, vidx.Tree)
	if err != nil {
		return 0, fmt.Errorf("receipt: read VIndex tree header: %w", err)
	}
	return h.NumEntries, nil
}

func decodeVIndex(raw []byte) (vIndex, error) {
	r := types.NewBinaryReader(raw)
	version, err := r.ReadUint32()
	if err != nil {
		return vIndex{}, fmt.Errorf("receipt: read VIndex version: %w", err)
	}
	if version != types.StoreVersion {
		return vIndex{}, fmt.Errorf("receipt: VIndex version %d: %w", version, types.ErrBadVersion)
	}
	treeIdx, err := r.ReadUint32()
	if err != nil {
		return vIndex{}, fmt.Errorf("receipt: read VIndex tree: %w", err)
	}
	u1, err := r.ReadUint32()
	if err != nil {
		return vIndex{}, fmt.Errorf("receipt: read VIndex unknown1: %w", err)
	}
	u2, err := r.ReadUint32()
	if err != nil {
		return vIndex{}, fmt.Errorf("receipt: read VIndex unknown2: %w", err)
	}
	return vIndex{Tree: treeIdx, Unknown1: u1, Unknown2: u2}, nil
}
