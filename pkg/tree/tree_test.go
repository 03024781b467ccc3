package tree

import (
	"testing"

	"github.com/macpkg/bom/pkg/blockstore"
)

func TestWriteReadSingleNode(t *testing.T) {
	bs := blockstore.New()
	entries := []Entry{{Key: 1, Value: 10}, {Key: 2, Value: 20}, {Key: 3, Value: 30}}
	headerIdx, err := Write(bs, entries, 128)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	h, err := ReadHeader(bs, headerIdx)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.NumEntries != 3 {
		t.Errorf("expected NumEntries=3, got %d", h.NumEntries)
	}
	if h.Root == headerIdx {
		t.Errorf("root must not be the header block itself")
	}

	got, err := Entries(bs, headerIdx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i, e := range entries {
		if got[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], e)
		}
	}
}

func TestWriteReadEmptyTree(t *testing.T) {
	bs := blockstore.New()
	headerIdx, err := Write(bs, nil, 128)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := Entries(bs, headerIdx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected 0 entries, got %d", len(got))
	}
}

func TestWriteReadMultiNodeWithMetaSpine(t *testing.T) {
	bs := blockstore.New()
	// block_size=128 gives entriesPerNode = (128-12)/8 = 14; use enough
	// entries to force more than one data node plus a meta spine.
	var entries []Entry
	for i := uint32(1); i <= 40; i++ {
		entries = append(entries, Entry{Key: i, Value: i * 100})
	}
	headerIdx, err := Write(bs, entries, 128)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	h, err := ReadHeader(bs, headerIdx)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	root, err := readNode(bs, h.Root, h.BlockSize)
	if err != nil {
		t.Fatalf("readNode(root) failed: %v", err)
	}
	if root.flags != metaFlag {
		t.Fatalf("expected a meta-node spine for 40 entries at block_size=128, got flags=%d", root.flags)
	}

	got, err := Entries(bs, headerIdx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Key <= got[i-1].Key {
			t.Fatalf("entries not in strictly ascending key order at %d: %d <= %d", i, got[i].Key, got[i-1].Key)
		}
	}
}

func TestEntriesDetectsSizeMismatch(t *testing.T) {
	bs := blockstore.New()
	headerIdx, err := Write(bs, []Entry{{Key: 1, Value: 2}}, 128)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	h, err := ReadHeader(bs, headerIdx)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	// Corrupt the node's num_entries field to disagree with the header.
	raw, _ := bs.Read(h.Root)
	raw[3] = 5
	if _, err := Entries(bs, headerIdx); err == nil {
		t.Fatalf("expected TreeInvariant error for entries mismatch, got nil")
	}
}

func TestInvalidBlockSizeRejected(t *testing.T) {
	bs := blockstore.New()
	if _, err := Write(bs, nil, 100); err == nil {
		t.Fatalf("expected error for non-power-of-two block_size, got nil")
	}
}
