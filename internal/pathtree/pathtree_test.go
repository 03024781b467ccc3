package pathtree

import (
	"errors"
	"testing"

	"github.com/macpkg/bom/pkg/types"
)

func TestReconstructEmptyRoot(t *testing.T) {
	entries, err := Reconstruct([]uint32{1}, []uint32{10}, []uint32{0}, []string{"."})
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "." {
		t.Fatalf("expected single root entry '.', got %+v", entries)
	}
}

func TestReconstructNestedPath(t *testing.T) {
	seqNo := []uint32{1, 2}
	metadata := []uint32{10, 11}
	parent := []uint32{0, 1}
	name := []string{"a", "hello.txt"}

	entries, err := Reconstruct(seqNo, metadata, parent, name)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if entries[0].Path != "a" {
		t.Errorf("entry 0 path = %q, want %q", entries[0].Path, "a")
	}
	if entries[1].Path != "a/hello.txt" {
		t.Errorf("entry 1 path = %q, want %q", entries[1].Path, "a/hello.txt")
	}
}

func TestReconstructDetectsCycle(t *testing.T) {
	// seq_no 1's parent is 2, seq_no 2's parent is 1: a two-node cycle.
	seqNo := []uint32{1, 2}
	metadata := []uint32{10, 11}
	parent := []uint32{2, 1}
	name := []string{"x", "y"}

	_, err := Reconstruct(seqNo, metadata, parent, name)
	if !errors.Is(err, types.ErrPathInvariant) {
		t.Fatalf("expected ErrPathInvariant for cycle, got %v", err)
	}
}

func TestReconstructRejectsSlashInComponent(t *testing.T) {
	_, err := Reconstruct([]uint32{1}, []uint32{10}, []uint32{0}, []string{"a/b"})
	if !errors.Is(err, types.ErrPathInvariant) {
		t.Fatalf("expected ErrPathInvariant for slash in component, got %v", err)
	}
}

func TestReconstructRejectsDanglingParent(t *testing.T) {
	_, err := Reconstruct([]uint32{2}, []uint32{10}, []uint32{99}, []string{"orphan"})
	if !errors.Is(err, types.ErrPathInvariant) {
		t.Fatalf("expected ErrPathInvariant for dangling parent, got %v", err)
	}
}
