package blockstore

import (
	"bytes"
	"testing"

	"github.com/macpkg/bom/pkg/types"
)

func TestRoundTripEmptyStore(t *testing.T) {
	bs := New()
	var buf bytes.Buffer
	if _, err := bs.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	got, err := Read(buf.Bytes())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.NumBlocks() != 1 {
		t.Errorf("expected 1 occupied slot (null only), got %d", got.NumBlocks())
	}
	payload, err := got.Read(0)
	if err != nil {
		t.Fatalf("Read(0) failed: %v", err)
	}
	if len(payload) != 0 {
		t.Errorf("expected empty payload for null block, got %d bytes", len(payload))
	}
}

func TestRoundTripNamedBlocks(t *testing.T) {
	bs := New()
	idx, err := bs.AllocateNamed("Paths", []byte("hello"))
	if err != nil {
		t.Fatalf("AllocateNamed failed: %v", err)
	}
	other := bs.Allocate([]byte("world!!"))

	var buf bytes.Buffer
	if _, err := bs.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	got, err := Read(buf.Bytes())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	namedIdx, ok := got.Named("Paths")
	if !ok || namedIdx != idx {
		t.Fatalf("expected Named(Paths)=%d, got %d ok=%v", idx, namedIdx, ok)
	}
	payload, err := got.Read(idx)
	if err != nil || string(payload) != "hello" {
		t.Errorf("Read(%d) = %q, %v; want hello", idx, payload, err)
	}
	payload, err = got.Read(other)
	if err != nil || string(payload) != "world!!" {
		t.Errorf("Read(%d) = %q, %v; want world!!", other, payload, err)
	}
}

func TestAllocateNamedDuplicateRejected(t *testing.T) {
	bs := New()
	if _, err := bs.AllocateNamed("Paths", []byte("a")); err != nil {
		t.Fatalf("first AllocateNamed failed: %v", err)
	}
	if _, err := bs.AllocateNamed("Paths", []byte("b")); err == nil {
		t.Fatalf("expected error for duplicate name, got nil")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	raw := make([]byte, types.HeaderSize)
	copy(raw, []byte("NOTBOM!!"))
	if _, err := Read(raw); err == nil {
		t.Fatalf("expected error for bad magic, got nil")
	}
}

func TestReadRejectsTruncatedFile(t *testing.T) {
	if _, err := Read([]byte("too short")); err == nil {
		t.Fatalf("expected error for truncated file, got nil")
	}
}

func TestReadRejectsOutOfRangeBlock(t *testing.T) {
	bs := New()
	bs.Allocate([]byte("x"))
	var buf bytes.Buffer
	if _, err := bs.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	raw := buf.Bytes()
	// Corrupt the regular-table block descriptor for block 1's size so that
	// it claims more bytes than the file actually has.
	regularOffset := int(raw[16])<<24 | int(raw[17])<<16 | int(raw[18])<<8 | int(raw[19])
	entryOffset := regularOffset + 4 /*num_occupied*/ + 8 /*null block*/ + 4 /*offset field of block 1*/
	raw[entryOffset] = 0x7f
	raw[entryOffset+1] = 0xff
	raw[entryOffset+2] = 0xff
	raw[entryOffset+3] = 0xff
	if _, err := Read(raw); err == nil {
		t.Fatalf("expected error for out-of-range block, got nil")
	}
}

// TestWriteAlwaysEmitsEmptyFreeList hand-crafts a file whose regular-blocks
// table carries a non-empty free list (as a real mkbom-produced file with
// prior deletions might), reads it, and checks that writing it back out
// always emits num_free_blocks=0 regardless of what was read in: this
// library only ever produces fresh files, never in-place updates.
func TestWriteAlwaysEmitsEmptyFreeList(t *testing.T) {
	const blockPayload = "x"

	regularTable := types.NewBinaryWriter()
	regularTable.WriteUint32(2) // num_occupied_blocks (null + 1)
	regularTable.WriteBlock(types.Block{Offset: 0, Size: 0})
	regularTable.WriteBlock(types.Block{Offset: types.HeaderSize, Size: uint32(len(blockPayload))})
	regularTable.WriteUint32(1) // num_free_blocks
	regularTable.WriteBlock(types.Block{Offset: 999, Size: 5})

	namedTable := types.NewBinaryWriter()
	namedTable.WriteUint32(0) // num_named_blocks

	regularTableOffset := uint32(types.HeaderSize) + uint32(len(blockPayload))
	namedTableOffset := regularTableOffset + uint32(regularTable.Len())

	header := types.NewBinaryWriter()
	header.WriteBytes([]byte(types.StoreMagic))
	header.WriteUint32(types.StoreVersion)
	header.WriteUint32(1) // num_non_null_blocks
	header.WriteBlock(types.Block{Offset: regularTableOffset, Size: uint32(regularTable.Len())})
	header.WriteBlock(types.Block{Offset: namedTableOffset, Size: uint32(namedTable.Len())})
	header.WriteZeros(types.HeaderSize - header.Len())

	raw := append(append(append([]byte{}, header.Bytes()...), []byte(blockPayload)...), regularTable.Bytes()...)
	raw = append(raw, namedTable.Bytes()...)

	bs, err := Read(raw)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(bs.free) != 1 {
		t.Fatalf("expected Read to preserve 1 free block descriptor, got %d", len(bs.free))
	}

	var buf bytes.Buffer
	if _, err := bs.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	reread, err := Read(buf.Bytes())
	if err != nil {
		t.Fatalf("re-Read failed: %v", err)
	}
	if len(reread.free) != 0 {
		t.Errorf("expected WriteTo to emit zero free blocks, got %d", len(reread.free))
	}
}
