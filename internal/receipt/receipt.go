// Package receipt assembles and reads the BOM "receipt" payload: the five
// named blocks (Paths, HLIndex, Size64, BomInfo, VIndex) that together
// record a package's installed path tree, built on top of pkg/blockstore
// and pkg/tree and the sibling internal/metadata and internal/pathtree
// packages.
//
// Grounded on the teacher's internal/services/container_reader.go: a
// read-side type that eagerly decodes everything it needs at construction
// time (there, the NX/APFS superblocks; here, every named block) so later
// accessors never touch the underlying bytes again.
package receipt

import (
	"fmt"
	"io"

	"github.com/macpkg/bom/internal/metadata"
	"github.com/macpkg/bom/internal/pathtree"
	"github.com/macpkg/bom/pkg/blockstore"
	"github.com/macpkg/bom/pkg/tree"
)

// PathEntry pairs a reconstructed rooted path with its decoded metadata
// record, in Paths-tree key order.
type PathEntry struct {
	SeqNo    uint32
	Path     string
	Metadata metadata.Record
}

// Receipt is the immutable, fully decoded in-memory view of a BOM file's
// receipt payload. Once built or read, a Receipt never touches its
// BlockStore's bytes again, so it may be shared across threads freely.
type Receipt struct {
	bs              *blockstore.BlockStore
	entries         []PathEntry
	size64          map[uint32]uint64 // metadata block index -> true size
	hardLinks       []hardLinkGroupView
	info            bomInfo
	numVirtualPaths uint32
}

// Entries returns every (path, metadata) pair in Paths-tree key order,
// the same dense order entries were assigned during the build.
func (r *Receipt) Entries() []PathEntry { return r.entries }

// TrueSize returns the full 64-bit size registered in Size64 for a file
// whose metadata lives at metadataBlock, and whether one was registered at
// all (only files whose size exceeds 2^32-1 get an entry).
func (r *Receipt) TrueSize(metadataBlock uint32) (uint64, bool) {
	v, ok := r.size64[metadataBlock]
	return v, ok
}

// HardLinkGroups returns every HLIndex group, one group per inode with two
// or more names.
func (r *Receipt) HardLinkGroups() []hardLinkGroupView { return r.hardLinks }

// NumPaths and NumBomInfoEntries expose the BomInfo packed record's counts.
func (r *Receipt) NumPaths() uint32          { return r.info.NumPaths }
func (r *Receipt) NumBomInfoEntries() uint32 { return r.info.NumEntries }

// NumVirtualPaths returns the entry count declared by VIndex's inner regex
// tree. Always 0 for a receipt ReceiptBuilder built, since no operation
// here populates virtual paths.
func (r *Receipt) NumVirtualPaths() uint32 { return r.numVirtualPaths }

// Write serialises the receipt's underlying BlockStore to w. The file is
// assembled fully in memory and emitted as a whole, never incrementally.
func (r *Receipt) Write(w io.Writer) (int64, error) {
	return r.bs.WriteTo(w)
}

// Read parses a complete BOM file into a Receipt. Readers are tolerant of
// any named-block ordering, even though this package's own writer always
// uses the canonical one.
func Read(raw []byte) (*Receipt, error) {
	bs, err := blockstore.Read(raw)
	if err != nil {
		return nil, fmt.Errorf("receipt: %w", err)
	}

	size64, err := readSize64(bs)
	if err != nil {
		return nil, err
	}

	entries, err := readPathEntries(bs, size64)
	if err != nil {
		return nil, err
	}

	hardLinks, err := readHardLinks(bs)
	if err != nil {
		return nil, err
	}

	info, err := readBomInfo(bs)
	if err != nil {
		return nil, err
	}

	numVirtualPaths, err := readVIndex(bs)
	if err != nil {
		return nil, err
	}

	return &Receipt{bs: bs, entries: entries, size64: size64, hardLinks: hardLinks, info: info, numVirtualPaths: numVirtualPaths}, nil
}

func readPathEntries(bs *blockstore.BlockStore, size64 map[uint32]uint64) ([]PathEntry, error) {
	pathsIdx, ok := bs.Named("Paths")
	if !ok {
		return nil, fmt.Errorf("receipt: no Paths named block")
	}
	rawEntries, err := tree.Entries(bs, pathsIdx)
	if err != nil {
		return nil, fmt.Errorf("receipt: read Paths tree: %w", err)
	}

	seqNos := make([]uint32, len(rawEntries))
	metadataBlocks := make([]uint32, len(rawEntries))
	parents := make([]uint32, len(rawEntries))
	names := make([]string, len(rawEntries))
	order := make([]uint32, len(rawEntries)) // seq_no in Paths-tree key order

	for i, e := range rawEntries {
		keyRaw, err := bs.Read(e.Key)
		if err != nil {
			return nil, fmt.Errorf("receipt: read paths-key block %d: %w", e.Key, err)
		}
		key, err := decodePathsKey(keyRaw)
		if err != nil {
			return nil, err
		}
		valRaw, err := bs.Read(e.Value)
		if err != nil {
			return nil, fmt.Errorf("receipt: read paths-value block %d: %w", e.Value, err)
		}
		val, err := decodePathsValue(valRaw)
		if err != nil {
			return nil, err
		}
		seqNos[i] = key.SeqNo
		metadataBlocks[i] = key.Metadata
		parents[i] = val.Parent
		names[i] = val.Name
		order[i] = key.SeqNo
	}

	reconstructed, err := pathtree.Reconstruct(seqNos, metadataBlocks, parents, names)
	if err != nil {
		return nil, fmt.Errorf("receipt: %w", err)
	}

	bySeqNo := make(map[uint32]pathtree.Entry, len(reconstructed))
	for _, e := range reconstructed {
		bySeqNo[e.SeqNo] = e
	}

	out := make([]PathEntry, len(order))
	for i, seqNo := range order {
		pe := bySeqNo[seqNo]
		metaRaw, err := bs.Read(pe.Metadata)
		if err != nil {
			return nil, fmt.Errorf("receipt: read metadata block %d: %w", pe.Metadata, err)
		}
		rec, err := metadata.Decode(metaRaw)
		if err != nil {
			return nil, fmt.Errorf("receipt: decode metadata for seq_no %d: %w", seqNo, err)
		}
		if trueSize, ok := size64[pe.Metadata]; ok {
			rec.TrueSize = trueSize
		}
		out[i] = PathEntry{SeqNo: seqNo, Path: pe.Path, Metadata: rec}
	}
	return out, nil
}

func readSize64(bs *blockstore.BlockStore) (map[uint32]uint64, error) {
	idx, ok := bs.Named("Size64")
	if !ok {
		return map[uint32]uint64{}, nil
	}
	entries, err := tree.Entries(bs, idx)
	if err != nil {
		return nil, fmt.Errorf("receipt: read Size64 tree: %w", err)
	}
	out := make(map[uint32]uint64, len(entries))
	for _, e := range entries {
		raw, err := bs.Read(e.Key)
		if err != nil {
			return nil, fmt.Errorf("receipt: read Size64 key block %d: %w", e.Key, err)
		}
		size, err := decodeSize64Key(raw)
		if err != nil {
			return nil, err
		}
		out[e.Value] = size
	}
	return out, nil
}

func readHardLinks(bs *blockstore.BlockStore) ([]hardLinkGroupView, error) {
	idx, ok := bs.Named("HLIndex")
	if !ok {
		return nil, nil
	}
	return readHLIndex(bs, idx)
}

func readBomInfo(bs *blockstore.BlockStore) (bomInfo, error) {
	idx, ok := bs.Named("BomInfo")
	if !ok {
		return bomInfo{}, fmt.Errorf("receipt: no BomInfo named block")
	}
	raw, err := bs.Read(idx)
	if err != nil {
		return bomInfo{}, fmt.Errorf("receipt: read BomInfo block: %w", err)
	}
	return decodeBomInfo(raw)
}
