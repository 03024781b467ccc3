// Package pathtree reconstructs rooted filesystem paths from the flat
// parent/name records the Paths tree yields.
//
// The Paths tree represents a rooted forest purely through parent seq_no
// references, so this package stores the (parent, name) mapping in a flat
// table indexed by seq_no rather than an owned-pointer graph — the same
// flat-table style the teacher uses for its object maps in
// internal/services/object_map_btree_cache.go (index by OID, not by pointer
// chasing).
package pathtree

import (
	"fmt"
	"strings"

	"github.com/macpkg/bom/pkg/types"
)

// Entry is one reconstructed path record: its dense seq_no, the block index
// of its Metadata record, and its rooted path.
type Entry struct {
	SeqNo    uint32
	Metadata uint32
	Path     string
}

// node is the flat per-seq_no record the Paths tree yields before paths are
// joined.
type node struct {
	parent   uint32
	name     string
	metadata uint32
}

// Reconstruct takes the (seq_no, metadata_index, parent_seq_no, name) tuples
// decoded from the Paths tree and returns one Entry per seq_no with its full
// rooted path, in the same order as the input slices.
func Reconstruct(seqNo, metadata, parent []uint32, name []string) ([]Entry, error) {
	if len(seqNo) != len(metadata) || len(seqNo) != len(parent) || len(seqNo) != len(name) {
		return nil, fmt.Errorf("pathtree: mismatched input slice lengths")
	}

	nodes := make(map[uint32]node, len(seqNo))
	for i, s := range seqNo {
		if err := validateComponent(name[i]); err != nil {
			return nil, err
		}
		nodes[s] = node{parent: parent[i], name: name[i], metadata: metadata[i]}
	}

	out := make([]Entry, len(seqNo))
	for i, s := range seqNo {
		path, err := resolvePath(nodes, s)
		if err != nil {
			return nil, err
		}
		out[i] = Entry{SeqNo: s, Metadata: metadata[i], Path: path}
	}
	return out, nil
}

// resolvePath walks the parent chain from s up to a root (parent == 0),
// detecting cycles: a corrupt file could otherwise send this into an
// infinite loop instead of failing.
func resolvePath(nodes map[uint32]node, s uint32) (string, error) {
	var components []string
	visited := make(map[uint32]bool)
	cur := s
	for {
		if visited[cur] {
			return "", fmt.Errorf("pathtree: cycle detected reconstructing seq_no %d: %w", s, types.ErrPathInvariant)
		}
		visited[cur] = true

		n, ok := nodes[cur]
		if !ok {
			return "", fmt.Errorf("pathtree: seq_no %d has no entry (dangling parent from seq_no %d): %w", cur, s, types.ErrPathInvariant)
		}
		components = append(components, n.name)
		if n.parent == 0 {
			break
		}
		cur = n.parent
	}

	// components were collected leaf-to-root; reverse for root-to-leaf.
	for i, j := 0, len(components)-1; i < j; i, j = i+1, j-1 {
		components[i], components[j] = components[j], components[i]
	}
	return strings.Join(components, "/"), nil
}

// validateComponent rejects NUL and '/' bytes in a path component: NUL
// would corrupt the null-terminated on-disk string, and '/' would be
// indistinguishable from a path separator once components are joined.
func validateComponent(name string) error {
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case 0:
			return fmt.Errorf("pathtree: component %q contains NUL: %w", name, types.ErrPathInvariant)
		case '/':
			return fmt.Errorf("pathtree: component %q contains '/': %w", name, types.ErrPathInvariant)
		}
	}
	return nil
}
