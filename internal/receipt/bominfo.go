package receipt

import (
	"fmt"

	"github.com/macpkg/bom/pkg/types"
)

// bomInfoEntry is the fixed 16-byte per-cpu-type slice record: one entry
// per Mach-O cpu_type encountered, plus one for cpu_type=0 covering
// non-executable content and whole-file totals.
type bomInfoEntry struct {
	CPUType   uint32
	TotalSize uint32
}

// bomInfo is the packed BomInfo named block: a version, the receipt's path
// and entry counts, and the per-cpu-type size table.
type bomInfo struct {
	NumPaths   uint32
	NumEntries uint32
	Entries    []bomInfoEntry
}

func encodeBomInfo(b bomInfo) []byte {
	w := types.NewBinaryWriter()
	w.WriteUint32(types.StoreVersion) // version = 1
	w.WriteUint32(b.NumPaths)
	w.WriteUint32(uint32(len(b.Entries)))
	for _, e := range b.Entries {
		w.WriteUint32(e.CPUType)
		w.WriteUint32(0) // unknown = 0
		w.WriteUint32(e.TotalSize)
		w.WriteUint32(0) // unknown = 0
	}
	return w.Bytes()
}

func decodeBomInfo(raw []byte) (bomInfo, error) {
	r := types.NewBinaryReader(raw)
	version, err := r.ReadUint32()
	if err != nil {
		return bomInfo{}, fmt.Errorf("receipt: read BomInfo version: %w", err)
	}
	if version != types.StoreVersion {
		return bomInfo{}, fmt.Errorf("receipt: BomInfo version %d: %w", version, types.ErrBadVersion)
	}
	numPaths, err := r.ReadUint32()
	if err != nil {
		return bomInfo{}, fmt.Errorf("receipt: read BomInfo num_paths: %w", err)
	}
	numEntries, err := r.ReadUint32()
	if err != nil {
		return bomInfo{}, fmt.Errorf("receipt: read BomInfo num_entries: %w", err)
	}
	entries := make([]bomInfoEntry, numEntries)
	for i := range entries {
		cpuType, err := r.ReadUint32()
		if err != nil {
			return bomInfo{}, fmt.Errorf("receipt: read BomInfoEntry %d cpu_type: %w", i, err)
		}
		if _, err := r.ReadUint32(); err != nil { // unknown
			return bomInfo{}, fmt.Errorf("receipt: read BomInfoEntry %d unknown: %w", i, err)
		}
		totalSize, err := r.ReadUint32()
		if err != nil {
			return bomInfo{}, fmt.Errorf("receipt: read BomInfoEntry %d total_size: %w", i, err)
		}
		if _, err := r.ReadUint32(); err != nil { // unknown
			return bomInfo{}, fmt.Errorf("receipt: read BomInfoEntry %d trailing unknown: %w", i, err)
		}
		entries[i] = bomInfoEntry{CPUType: cpuType, TotalSize: totalSize}
	}
	return bomInfo{NumPaths: numPaths, NumEntries: numEntries, Entries: entries}, nil
}
