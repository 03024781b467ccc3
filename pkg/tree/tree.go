// Package tree implements the paged B-link-tree codec that sits on top of
// a BlockStore. Keys and values are themselves block indices; this package
// never interprets what those indices point to, leaving the meaning of a
// given tree's keys and values to its caller, such as internal/receipt.
//
// The node layout (fixed header, field-by-field big-endian encode/decode,
// magic+version validation on read) follows the same shape the teacher uses
// for its own B-tree nodes in apfs/pkg/container/btree.go, adapted from
// little-endian Fletcher64-checksummed APFS nodes to the BOM format's
// big-endian, unchecksummed, doubly-linked data-node chain.
package tree

import (
	"fmt"

	"github.com/macpkg/bom/pkg/blockstore"
	"github.com/macpkg/bom/pkg/types"
)

// nodeHeaderSize is the fixed 12-byte header every data/meta node carries:
// flags(u16) num_entries(u16) next(u32) prev(u32).
const nodeHeaderSize = 12

// entrySize is the width of one key/value pair: two block indices.
const entrySize = 8

// dataFlag and metaFlag distinguish leaf from internal nodes via the node
// header's flags field.
const (
	dataFlag uint16 = 1
	metaFlag uint16 = 0
)

// Entry is one key/value pair of block indices.
type Entry struct {
	Key   uint32
	Value uint32
}

// Write lays out entries (already sorted by ascending key, as every tree in
// this format requires) as a chain of data nodes sized to blockSize,
// synthesising a meta-node spine if more than one data node is needed. It
// returns the block index of the tree header.
func Write(bs *blockstore.BlockStore, entries []Entry, blockSize uint32) (uint32, error) {
	if blockSize < 128 || blockSize&(blockSize-1) != 0 {
		return 0, fmt.Errorf("tree: block_size %d must be a power of two >= 128", blockSize)
	}
	entriesPerNode := int(blockSize-nodeHeaderSize) / entrySize
	if entriesPerNode <= 0 {
		return 0, fmt.Errorf("tree: block_size %d too small to hold any entries", blockSize)
	}

	// Chunk the sorted entries into pages of at most entriesPerNode each.
	var chunks [][]Entry
	if len(entries) == 0 {
		chunks = [][]Entry{nil}
	} else {
		for start := 0; start < len(entries); start += entriesPerNode {
			end := start + entriesPerNode
			if end > len(entries) {
				end = len(entries)
			}
			chunks = append(chunks, entries[start:end])
		}
	}

	// Reserve one block per chunk up front so next/prev pointers can be
	// resolved, then fill each node in a second pass.
	dataNodeIndices := make([]uint32, len(chunks))
	for i := range chunks {
		dataNodeIndices[i] = bs.Allocate(make([]byte, blockSize))
	}
	firstKeys := make([]uint32, len(chunks))
	lastValues := make([]uint32, len(chunks))
	for i, chunk := range chunks {
		next, prev := uint32(0), uint32(0)
		if i+1 < len(dataNodeIndices) {
			next = dataNodeIndices[i+1]
		}
		if i > 0 {
			prev = dataNodeIndices[i-1]
		}
		if err := rewriteDataNode(bs, dataNodeIndices[i], chunk, blockSize, next, prev); err != nil {
			return 0, err
		}
		if len(chunk) > 0 {
			firstKeys[i] = chunk[0].Key
			lastValues[i] = chunk[len(chunk)-1].Value
		}
	}

	numEntries := uint32(len(entries))

	var root uint32
	if len(dataNodeIndices) == 1 {
		root = dataNodeIndices[0]
	} else {
		metaEntries := make([]Entry, len(dataNodeIndices))
		for i := range dataNodeIndices {
			metaEntries[i] = Entry{Key: firstKeys[i], Value: lastValues[i]}
		}
		metaEntriesPerNode := entriesPerNode
		if len(metaEntries) > metaEntriesPerNode {
			return 0, fmt.Errorf("tree: meta spine exceeds a single page (%d entries, capacity %d); meta-of-meta is not implemented", len(metaEntries), metaEntriesPerNode)
		}
		metaIdx, err := writeMetaNode(bs, metaEntries, blockSize)
		if err != nil {
			return 0, err
		}
		root = metaIdx
	}

	header := types.NewBinaryWriter()
	header.WriteBytes([]byte(types.TreeMagic))
	header.WriteUint32(types.TreeVersion)
	header.WriteUint32(root)
	header.WriteUint32(blockSize)
	header.WriteUint32(numEntries)
	header.WriteUint8(0) // unknown
	return bs.Allocate(header.Bytes()), nil
}

// rewriteDataNode overwrites the reserved block at idx with its final
// contents. BlockStore blocks are conceptually immutable once observed by a
// reader, but within a single write session (before WriteTo is called) we
// are still assembling the store, so this package owns that narrow window.
func rewriteDataNode(bs *blockstore.BlockStore, idx uint32, entries []Entry, blockSize, next, prev uint32) error {
	w := types.NewBinaryWriter()
	w.WriteUint16(dataFlag)
	w.WriteUint16(uint16(len(entries)))
	w.WriteUint32(next)
	w.WriteUint32(prev)
	for _, e := range entries {
		w.WriteUint32(e.Key)
		w.WriteUint32(e.Value)
	}
	w.WriteZeros(int(blockSize) - w.Len())
	if w.Len() != int(blockSize) {
		return fmt.Errorf("tree: data node overflowed block_size %d (wrote %d)", blockSize, w.Len())
	}
	return bs.Overwrite(idx, w.Bytes())
}

func writeMetaNode(bs *blockstore.BlockStore, entries []Entry, blockSize uint32) (uint32, error) {
	w := types.NewBinaryWriter()
	w.WriteUint16(metaFlag)
	w.WriteUint16(uint16(len(entries)))
	w.WriteUint32(0) // next
	w.WriteUint32(0) // prev
	for _, e := range entries {
		w.WriteUint32(e.Key)
		w.WriteUint32(e.Value)
	}
	w.WriteZeros(int(blockSize) - w.Len())
	if w.Len() != int(blockSize) {
		return 0, fmt.Errorf("tree: meta node overflowed block_size %d (wrote %d)", blockSize, w.Len())
	}
	return bs.Allocate(w.Bytes()), nil
}

// node is a decoded data or meta node.
type node struct {
	flags      uint16
	numEntries uint16
	next       uint32
	prev       uint32
	entries    []Entry
}

func readNode(bs *blockstore.BlockStore, idx, blockSize uint32) (*node, error) {
	raw, err := bs.Read(idx)
	if err != nil {
		return nil, fmt.Errorf("tree: read node %d: %w", idx, err)
	}
	if uint32(len(raw)) != blockSize {
		return nil, fmt.Errorf("tree: node %d size %d != block_size %d: %w", idx, len(raw), blockSize, types.ErrTreeInvariant)
	}
	r := types.NewBinaryReader(raw)
	flags, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	numEntries, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	next, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	prev, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, numEntries)
	for i := range entries {
		key, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("tree: node %d entry %d key: %w", idx, i, err)
		}
		val, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("tree: node %d entry %d value: %w", idx, i, err)
		}
		entries[i] = Entry{Key: key, Value: val}
	}
	return &node{flags: flags, numEntries: numEntries, next: next, prev: prev, entries: entries}, nil
}

// Header is the decoded tree-header record.
type Header struct {
	Root       uint32
	BlockSize  uint32
	NumEntries uint32
}

// ReadHeader decodes the tree header stored at idx.
func ReadHeader(bs *blockstore.BlockStore, idx uint32) (Header, error) {
	raw, err := bs.Read(idx)
	if err != nil {
		return Header{}, fmt.Errorf("tree: read header block %d: %w", idx, err)
	}
	r := types.NewBinaryReader(raw)
	magic, err := r.ReadBytes(len(types.TreeMagic))
	if err != nil {
		return Header{}, err
	}
	if string(magic) != types.TreeMagic {
		return Header{}, fmt.Errorf("tree: header %d magic %q: %w", idx, magic, types.ErrBadMagic)
	}
	version, err := r.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	if version != types.TreeVersion {
		return Header{}, fmt.Errorf("tree: header %d version %d: %w", idx, version, types.ErrBadVersion)
	}
	root, err := r.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	blockSize, err := r.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	numEntries, err := r.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	return Header{Root: root, BlockSize: blockSize, NumEntries: numEntries}, nil
}

// Entries enumerates every key/value pair in the tree rooted at headerIdx,
// in ascending key order, by finding the leftmost data node and following
// its next pointers to the end of the chain.
func Entries(bs *blockstore.BlockStore, headerIdx uint32) ([]Entry, error) {
	h, err := ReadHeader(bs, headerIdx)
	if err != nil {
		return nil, err
	}

	root, err := readNode(bs, h.Root, h.BlockSize)
	if err != nil {
		return nil, err
	}

	var leftmost *node
	var leftmostIdx uint32
	if root.flags == dataFlag {
		leftmostIdx, leftmost = h.Root, root
	} else if root.flags == metaFlag {
		if len(root.entries) == 0 {
			return nil, fmt.Errorf("tree: meta root %d has no entries: %w", h.Root, types.ErrTreeInvariant)
		}
		// Any one meta entry leads into a data node; walking prev from there
		// to 0 finds the true leftmost one.
		firstDataIdx := root.entries[0].Key
		firstData, err := readNode(bs, firstDataIdx, h.BlockSize)
		if err != nil {
			return nil, err
		}
		leftmostIdx, leftmost = firstDataIdx, firstData
	} else {
		return nil, fmt.Errorf("tree: node %d has unrecognised flags %d: %w", h.Root, root.flags, types.ErrUnsupported)
	}

	// Walk prev until 0 to find the true leftmost data node.
	cur := leftmost
	curIdx := leftmostIdx
	for cur.prev != 0 {
		prevNode, err := readNode(bs, cur.prev, h.BlockSize)
		if err != nil {
			return nil, err
		}
		curIdx, cur = cur.prev, prevNode
	}

	var out []Entry
	visited := make(map[uint32]bool)
	for {
		if visited[curIdx] {
			return nil, fmt.Errorf("tree: cycle detected at node %d: %w", curIdx, types.ErrTreeInvariant)
		}
		visited[curIdx] = true
		out = append(out, cur.entries...)
		if cur.next == 0 {
			break
		}
		if uint32(len(out)) > h.NumEntries {
			return nil, fmt.Errorf("tree: walked past declared num_entries %d: %w", h.NumEntries, types.ErrTreeInvariant)
		}
		nextNode, err := readNode(bs, cur.next, h.BlockSize)
		if err != nil {
			return nil, err
		}
		curIdx, cur = cur.next, nextNode
	}

	if uint32(len(out)) != h.NumEntries {
		return nil, fmt.Errorf("tree: collected %d entries, header declares %d: %w", len(out), h.NumEntries, types.ErrTreeInvariant)
	}
	return out, nil
}
