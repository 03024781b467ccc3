package receipt

import (
	"fmt"

	"github.com/macpkg/bom/pkg/types"
)

// pathsKeyRecord is the tree-key-block payload for the Paths tree: the
// entry's dense sequence number paired with the block index of its
// Metadata record.
type pathsKeyRecord struct {
	SeqNo    uint32
	Metadata uint32
}

func encodePathsKey(r pathsKeyRecord) []byte {
	w := types.NewBinaryWriter()
	w.WriteUint32(r.SeqNo)
	w.WriteUint32(r.Metadata)
	return w.Bytes()
}

func decodePathsKey(raw []byte) (pathsKeyRecord, error) {
	r := types.NewBinaryReader(raw)
	seqNo, err := r.ReadUint32()
	if err != nil {
		return pathsKeyRecord{}, fmt.Errorf("receipt: read paths-key seq_no: %w", err)
	}
	meta, err := r.ReadUint32()
	if err != nil {
		return pathsKeyRecord{}, fmt.Errorf("receipt: read paths-key metadata: %w", err)
	}
	return pathsKeyRecord{SeqNo: seqNo, Metadata: meta}, nil
}

// pathsValueRecord is the tree-value-block payload: the entry's parent seq_no
// (0 for a root) and its own path component name.
type pathsValueRecord struct {
	Parent uint32
	Name   string
}

func encodePathsValue(r pathsValueRecord) []byte {
	w := types.NewBinaryWriter()
	w.WriteUint32(r.Parent)
	w.WriteCString(r.Name)
	return w.Bytes()
}

func decodePathsValue(raw []byte) (pathsValueRecord, error) {
	r := types.NewBinaryReader(raw)
	parent, err := r.ReadUint32()
	if err != nil {
		return pathsValueRecord{}, fmt.Errorf("receipt: read paths-value parent: %w", err)
	}
	name, err := r.ReadCString()
	if err != nil {
		return pathsValueRecord{}, fmt.Errorf("receipt: read paths-value name: %w", err)
	}
	return pathsValueRecord{Parent: parent, Name: name}, nil
}
