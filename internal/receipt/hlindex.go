package receipt

import (
	"fmt"
	"sort"

	"github.com/macpkg/bom/pkg/blockstore"
	"github.com/macpkg/bom/pkg/tree"
	"github.com/macpkg/bom/pkg/types"
)

// hardLinkGroup is one inode with two or more names sharing it.
type hardLinkGroup struct {
	Paths          []string // every name referring to this inode, in walk order; writeHLIndex sorts them
	MetadataBlock  uint32   // the shared metadata record's block index
}

// writeHLIndex builds the HLIndex named tree. For each group, an inner Tree
// of file-path-string blocks is written (block_size=128), then a single
// "pointer" block holding that inner tree's header index is allocated and
// used as the outer tree's key; the group's shared metadata block index is
// the outer tree's value. The reason for this extra layer of indirection
// over pointing at the inner tree directly isn't documented anywhere this
// implementation could find; it's reproduced here because real BOM files
// are laid out this way.
func writeHLIndex(bs *blockstore.BlockStore, groups []hardLinkGroup) (uint32, error) {
	var entries []tree.Entry
	for _, g := range groups {
		innerEntries := make([]tree.Entry, 0, len(g.Paths))
		paths := append([]string(nil), g.Paths...)
		sort.Strings(paths)
		for _, p := range paths {
			pathBlock := bs.Allocate([]byte(p + "\x00"))
			innerEntries = append(innerEntries, tree.Entry{Key: pathBlock, Value: 0})
		}
		sort.Slice(innerEntries, func(i, j int) bool { return innerEntries[i].Key < innerEntries[j].Key })
		innerTreeIdx, err := tree.Write(bs, innerEntries, 128)
		if err != nil {
			return 0, fmt.Errorf("receipt: write HLIndex inner tree: %w", err)
		}

		pointer := types.NewBinaryWriter()
		pointer.WriteUint32(innerTreeIdx)
		pointerBlock := bs.Allocate(pointer.Bytes())

		if pointerBlock == types.NullBlockIndex {
			return 0, fmt.Errorf("receipt: HLIndex pointer resolved to the null block: %w", types.ErrTreeInvariant)
		}
		entries = append(entries, tree.Entry{Key: pointerBlock, Value: g.MetadataBlock})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return tree.Write(bs, entries, 4096)
}

// hardLinkGroupView is a decoded HLIndex entry.
type hardLinkGroupView struct {
	Paths         []string
	MetadataBlock uint32
}

// readHLIndex decodes every group in the HLIndex tree rooted at headerIdx.
func readHLIndex(bs *blockstore.BlockStore, headerIdx uint32) ([]hardLinkGroupView, error) {
	entries, err := tree.Entries(bs, headerIdx)
	if err != nil {
		return nil, fmt.Errorf("receipt: read HLIndex: %w", err)
	}
	out := make([]hardLinkGroupView, 0, len(entries))
	for _, e := range entries {
		pointerRaw, err := bs.Read(e.Key)
		if err != nil {
			return nil, fmt.Errorf("receipt: read HLIndex pointer block %d: %w", e.Key, err)
		}
		if len(pointerRaw) == 0 {
			return nil, fmt.Errorf("receipt: HLIndex pointer block %d is zero-sized: %w", e.Key, types.ErrTreeInvariant)
		}
		pr := types.NewBinaryReader(pointerRaw)
		innerTreeIdx, err := pr.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("receipt: read HLIndex pointer value: %w", err)
		}
		if innerTreeIdx == types.NullBlockIndex {
			return nil, fmt.Errorf("receipt: HLIndex pointer references the null block: %w", types.ErrTreeInvariant)
		}

		innerEntries, err := tree.Entries(bs, innerTreeIdx)
		if err != nil {
			return nil, fmt.Errorf("receipt: read HLIndex inner tree: %w", err)
		}
		paths := make([]string, len(innerEntries))
		for i, ie := range innerEntries {
			raw, err := bs.Read(ie.Key)
			if err != nil {
				return nil, fmt.Errorf("receipt: read HLIndex path block %d: %w", ie.Key, err)
			}
			r := types.NewBinaryReader(raw)
			s, err := r.ReadCString()
			if err != nil {
				return nil, fmt.Errorf("receipt: decode HLIndex path block %d: %w", ie.Key, err)
			}
			paths[i] = s
		}
		out = append(out, hardLinkGroupView{Paths: paths, MetadataBlock: e.Value})
	}
	return out, nil
}
