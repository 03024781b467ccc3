// Package blockstore implements the BOM container's flat block heap: a
// self-describing file format with a fixed header, a table of occupied and
// free block slots, and a separate named-slot table. It is the lowest layer
// of the BOM codec stack; the Tree codec and the receipt's named blocks are
// all just indices into one of these.
//
// The read/write shape here is grounded on the teacher's
// apfs/pkg/container/nxsuperblock.go: a fixed-size header decoded field by
// field with explicit byte offsets, magic/version validation up front, and
// a symmetrical Write function that lays the same fields back out.
package blockstore

import (
	"fmt"
	"io"
	"sort"

	"github.com/macpkg/bom/pkg/types"
)

// BlockStore owns every block's bytes plus the named-slot mapping. It does
// not interpret block contents; that is left to the Tree and metadata
// codecs layered on top. Keys, values, and pointers are all just block
// indices at this layer.
type BlockStore struct {
	blocks []types.Block // occupied slots, index 0 is the null block {0,0}
	data   [][]byte      // data[i] is the payload for blocks[i]
	free   []types.Block // free-slot descriptors preserved for read fidelity
	names  map[string]uint32
}

// New returns an empty BlockStore with the null block preallocated at index
// 0. Index 0 is reserved throughout the format to mean "absent" wherever an
// index-valued field appears, so every store must allocate it first.
func New() *BlockStore {
	bs := &BlockStore{
		blocks: make([]types.Block, 1, 16),
		data:   make([][]byte, 1, 16),
		names:  make(map[string]uint32),
	}
	bs.blocks[0] = types.Block{Offset: 0, Size: 0}
	bs.data[0] = nil
	return bs
}

// Allocate appends a new block holding a copy of bytes and returns its
// 1-based index.
func (bs *BlockStore) Allocate(payload []byte) uint32 {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	bs.blocks = append(bs.blocks, types.Block{Size: uint32(len(buf))})
	bs.data = append(bs.data, buf)
	return uint32(len(bs.blocks) - 1)
}

// AllocateNamed allocates a block and registers it under name. It fails if
// name is already present; the named-slot mapping must stay unique by name.
func (bs *BlockStore) AllocateNamed(name string, payload []byte) (uint32, error) {
	if _, exists := bs.names[name]; exists {
		return 0, fmt.Errorf("blockstore: name %q already registered", name)
	}
	idx := bs.Allocate(payload)
	bs.names[name] = idx
	return idx, nil
}

// Name registers an already-allocated block under name, without allocating
// a new one. Used by callers (the Receipt builder) that must first write a
// Tree and learn its header block index before they can name it, unlike
// AllocateNamed's allocate-and-name-in-one-step shape.
func (bs *BlockStore) Name(name string, index uint32) error {
	if _, exists := bs.names[name]; exists {
		return fmt.Errorf("blockstore: name %q already registered", name)
	}
	if int(index) >= len(bs.blocks) {
		return fmt.Errorf("blockstore: name %q references block %d: %w", name, index, types.ErrBlockOutOfRange)
	}
	bs.names[name] = index
	return nil
}

// Overwrite replaces the payload of an already-allocated block, keeping its
// size fixed. It exists solely so the Tree codec can reserve a run of
// same-sized blocks up front (to learn their indices for next/prev links)
// and then fill each one in; it has no effect once WriteTo has run, and must
// never be used to mutate a block a reader may already have observed.
func (bs *BlockStore) Overwrite(index uint32, payload []byte) error {
	if int(index) >= len(bs.blocks) {
		return fmt.Errorf("blockstore: overwrite block %d: %w", index, types.ErrBlockOutOfRange)
	}
	if len(payload) != len(bs.data[index]) {
		return fmt.Errorf("blockstore: overwrite block %d changes size %d -> %d", index, len(bs.data[index]), len(payload))
	}
	copy(bs.data[index], payload)
	return nil
}

// Read returns the payload for index. Index 0 always yields an empty slice.
func (bs *BlockStore) Read(index uint32) ([]byte, error) {
	if int(index) >= len(bs.blocks) {
		return nil, fmt.Errorf("blockstore: read block %d: %w", index, types.ErrBlockOutOfRange)
	}
	return bs.data[index], nil
}

// Named looks up a block index by name; ok is false if name is unregistered.
func (bs *BlockStore) Named(name string) (uint32, bool) {
	idx, ok := bs.names[name]
	return idx, ok
}

// NumBlocks returns the occupied slot count, including the null slot at 0.
func (bs *BlockStore) NumBlocks() int { return len(bs.blocks) }

// WriteTo serialises the store to w in the BOM file's on-disk layout: a
// 512-byte header, the concatenated block payloads, the regular-blocks
// table, then the named-blocks table. Block layout is strictly append-only
// in allocation order; a block's offset in the file is fixed the moment
// it's allocated.
func (bs *BlockStore) WriteTo(w io.Writer) (int64, error) {
	// Lay out payload offsets first: they start immediately after the header.
	offset := uint32(types.HeaderSize)
	laidOut := make([]types.Block, len(bs.blocks))
	laidOut[0] = types.Block{Offset: 0, Size: 0}
	for i := 1; i < len(bs.blocks); i++ {
		size := uint32(len(bs.data[i]))
		laidOut[i] = types.Block{Offset: offset, Size: size}
		offset += size
	}

	numNonNull := 0
	for i := 1; i < len(laidOut); i++ {
		if laidOut[i].Size > 0 {
			numNonNull++
		}
	}

	regularTable := types.NewBinaryWriter()
	regularTable.WriteUint32(uint32(len(laidOut)))
	for _, b := range laidOut {
		regularTable.WriteBlock(b)
	}
	// Writers always emit an empty free list, even when bs.free was
	// populated by a prior Read; the free list is preserved on read for
	// fidelity only, never replayed on write. This library only ever
	// produces fresh files, so there is never anything to reclaim.
	regularTable.WriteUint32(0)

	namedTable := types.NewBinaryWriter()
	namedTable.WriteUint32(uint32(len(bs.names)))
	for _, name := range sortedNames(bs.names) {
		namedTable.WriteCString(name)
		namedTable.WriteUint32(bs.names[name])
	}

	regularTableBlock := types.Block{Offset: offset, Size: uint32(regularTable.Len())}
	namedTableBlock := types.Block{Offset: offset + uint32(regularTable.Len()), Size: uint32(namedTable.Len())}

	header := types.NewBinaryWriter()
	header.WriteBytes([]byte(types.StoreMagic))
	header.WriteUint32(types.StoreVersion)
	header.WriteUint32(uint32(numNonNull))
	header.WriteBlock(regularTableBlock)
	header.WriteBlock(namedTableBlock)
	header.WriteZeros(types.HeaderSize - header.Len())

	var written int64
	for _, chunk := range [][]byte{header.Bytes()} {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("blockstore: write header: %w", err)
		}
	}
	for i := 1; i < len(bs.data); i++ {
		n, err := w.Write(bs.data[i])
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("blockstore: write block %d: %w", i, err)
		}
	}
	n, err := w.Write(regularTable.Bytes())
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("blockstore: write regular table: %w", err)
	}
	n, err = w.Write(namedTable.Bytes())
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("blockstore: write named table: %w", err)
	}
	return written, nil
}

// sortedNames returns the named-slot keys in a deterministic order so two
// writes of the same logical store produce byte-identical output.
func sortedNames(names map[string]uint32) []string {
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	// Canonical writer order matching mkbom's own named-block layout: Paths,
	// HLIndex, Size64, BomInfo, VIndex. Any name outside that set sorts
	// after, alphabetically, so the output stays deterministic even for
	// synthetic test stores.
	canonical := []string{"Paths", "HLIndex", "Size64", "BomInfo", "VIndex"}
	rank := make(map[string]int, len(canonical))
	for i, n := range canonical {
		rank[n] = i
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ra, aok := rank[a]
		rb, bok := rank[b]
		switch {
		case aok && bok:
			return ra < rb
		case aok:
			return true
		case bok:
			return false
		default:
			return a < b
		}
	})
	return out
}

// Read parses a complete BOM file from raw. The whole file is decoded into
// an in-memory BlockStore before any logical access; there is no lazy or
// partial decode path.
func Read(raw []byte) (*BlockStore, error) {
	if len(raw) < types.HeaderSize {
		return nil, fmt.Errorf("blockstore: file too short for header (%d bytes): %w", len(raw), types.ErrIO)
	}

	header := types.NewBinaryReader(raw[:types.HeaderSize])
	magic, err := header.ReadBytes(len(types.StoreMagic))
	if err != nil {
		return nil, fmt.Errorf("blockstore: read magic: %w", err)
	}
	if string(magic) != types.StoreMagic {
		return nil, fmt.Errorf("blockstore: magic %q: %w", magic, types.ErrBadMagic)
	}
	version, err := header.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("blockstore: read version: %w", err)
	}
	if version != types.StoreVersion {
		return nil, fmt.Errorf("blockstore: version %d: %w", version, types.ErrBadVersion)
	}
	if _, err := header.ReadUint32(); err != nil { // num_non_null_blocks, recomputed below
		return nil, fmt.Errorf("blockstore: read num_non_null_blocks: %w", err)
	}
	regularTableBlock, err := header.ReadBlock()
	if err != nil {
		return nil, fmt.Errorf("blockstore: read regular table descriptor: %w", err)
	}
	namedTableBlock, err := header.ReadBlock()
	if err != nil {
		return nil, fmt.Errorf("blockstore: read named table descriptor: %w", err)
	}

	regularBytes, err := sliceBlock(raw, regularTableBlock, "regular table")
	if err != nil {
		return nil, err
	}
	regularReader := types.NewBinaryReader(regularBytes)

	numOccupied, err := regularReader.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("blockstore: read num_occupied_blocks: %w", err)
	}
	occupied := make([]types.Block, numOccupied)
	for i := range occupied {
		b, err := regularReader.ReadBlock()
		if err != nil {
			return nil, fmt.Errorf("blockstore: read occupied block %d: %w", i, err)
		}
		if int64(b.Offset)+int64(b.Size) > int64(len(raw)) {
			return nil, fmt.Errorf("blockstore: occupied block %d extends past end of file: %w", i, types.ErrBlockOutOfRange)
		}
		occupied[i] = b
	}

	numFree, err := regularReader.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("blockstore: read num_free_blocks: %w", err)
	}
	free := make([]types.Block, numFree)
	for i := range free {
		b, err := regularReader.ReadBlock()
		if err != nil {
			return nil, fmt.Errorf("blockstore: read free block %d: %w", i, err)
		}
		free[i] = b
	}

	namedBytes, err := sliceBlock(raw, namedTableBlock, "named table")
	if err != nil {
		return nil, err
	}
	namedReader := types.NewBinaryReader(namedBytes)
	numNamed, err := namedReader.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("blockstore: read num_named_blocks: %w", err)
	}
	names := make(map[string]uint32, numNamed)
	for i := uint32(0); i < numNamed; i++ {
		name, err := namedReader.ReadCString()
		if err != nil {
			return nil, fmt.Errorf("blockstore: read named entry %d name: %w", i, err)
		}
		if name == "" {
			return nil, fmt.Errorf("blockstore: named entry %d has empty name: %w", i, types.ErrIO)
		}
		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("blockstore: duplicate name %q: %w", name, types.ErrIO)
		}
		idx, err := namedReader.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("blockstore: read named entry %d index: %w", i, err)
		}
		if int(idx) >= len(occupied) {
			return nil, fmt.Errorf("blockstore: named entry %q index %d: %w", name, idx, types.ErrBlockOutOfRange)
		}
		names[name] = idx
	}

	bs := &BlockStore{
		blocks: occupied,
		data:   make([][]byte, len(occupied)),
		free:   free,
		names:  names,
	}
	for i, b := range occupied {
		payload, err := sliceBlock(raw, b, fmt.Sprintf("block %d", i))
		if err != nil {
			return nil, err
		}
		bs.data[i] = payload
	}
	return bs, nil
}

func sliceBlock(raw []byte, b types.Block, what string) ([]byte, error) {
	end := int64(b.Offset) + int64(b.Size)
	if int64(b.Offset) < 0 || end > int64(len(raw)) {
		return nil, fmt.Errorf("blockstore: %s out of range (offset=%d size=%d file=%d): %w", what, b.Offset, b.Size, len(raw), types.ErrBlockOutOfRange)
	}
	return raw[b.Offset:end], nil
}
