// Package metadata implements the variant-typed per-entry metadata record
// BOM files carry for every path: a common prefix followed by an optional
// body whose tail shape depends on entry_type.
//
// The variant is decoded the way the teacher resolves its own tagged
// on-disk enums in internal/parsers/file_system_objects — a small
// exhaustive switch over the tag, cross-checked against a second field
// (there, JObjKinds; here, the mode's file-type bits) rather than trusting
// the tag alone.
package metadata

import (
	"fmt"

	"github.com/macpkg/bom/pkg/types"
)

// EntryType is the `entry_type` tag of a metadata record.
type EntryType uint8

const (
	File      EntryType = 1
	Directory EntryType = 2
	Link      EntryType = 3
	Device    EntryType = 4
)

func (t EntryType) String() string {
	switch t {
	case File:
		return "File"
	case Directory:
		return "Directory"
	case Link:
		return "Link"
	case Device:
		return "Device"
	default:
		return fmt.Sprintf("EntryType(%d)", uint8(t))
	}
}

// BinaryClass is the lower nibble of the common `flags` field.
type BinaryClass uint8

const (
	Regular    BinaryClass = 0
	Executable BinaryClass = 1
	Universal  BinaryClass = 2
)

// flagsPathOnlyNibble and flagsHasBodyNibble are the two upper-nibble values the format
// defines for the common `flags` field; any other upper nibble is
// Unsupported.
const (
	flagsPathOnlyNibble uint16 = 0x0
	flagsHasBodyNibble  uint16 = 0xF
)

// fileTypeBits are the mode_t file-type bits (the high nibble of the
// standard POSIX mode word, st_mode & S_IFMT >> 12) that entry_type must
// agree with on decode.
const (
	modeTypeRegular   = 1
	modeTypeDirectory = 2
	modeTypeSymlink   = 3
	modeTypeDevice    = 4
)

// Record is the decoded common prefix plus whichever variant body applies.
// PathOnly records leave every body field at its zero value.
type Record struct {
	EntryType   EntryType
	BinaryClass BinaryClass
	PathOnly    bool

	Mode  uint16
	UID   uint32
	GID   uint32
	MTime uint32
	Size  uint32 // truncated to 32 bits; true size for >2^32-1 files lives in Size64

	Checksum   uint32 // File, Link
	TargetLen  uint32 // Link: length including the terminating NUL
	Target     string // Link
	DeviceNr   uint32 // Device

	// TrueSize is the full 64-bit size when it would not fit in Size, i.e.
	// when Size64 > 2^32-1. Zero when the record is path-only or not a File.
	TrueSize uint64
}

// Encode serialises rec as the common prefix plus its variant tail. Callers
// holding a File record whose true size exceeds 32 bits are responsible for
// registering the full-precision value in the Size64 tree themselves; this
// package only ever writes the truncated Size field.
func Encode(rec Record) ([]byte, error) {
	w := types.NewBinaryWriter()
	w.WriteUint8(uint8(rec.EntryType))
	w.WriteUint8(1) // unknown, observed constant

	if rec.PathOnly {
		w.WriteUint16(flagsPathOnlyNibble<<4 | uint16(rec.BinaryClass))
		return w.Bytes(), nil
	}

	if err := validateModeAgreesWithType(rec.EntryType, rec.Mode); err != nil {
		return nil, err
	}

	w.WriteUint16(flagsHasBodyNibble<<4 | uint16(rec.BinaryClass))
	w.WriteUint16(rec.Mode)
	w.WriteUint32(rec.UID)
	w.WriteUint32(rec.GID)
	w.WriteUint32(rec.MTime)
	w.WriteUint32(rec.Size)
	w.WriteUint8(1) // unknown, observed constant

	switch rec.EntryType {
	case File:
		w.WriteUint32(rec.Checksum)
	case Directory:
		// no extension
	case Link:
		w.WriteUint32(rec.Checksum)
		w.WriteUint32(rec.TargetLen)
		w.WriteCString(rec.Target)
	case Device:
		w.WriteUint32(rec.DeviceNr)
	default:
		return nil, fmt.Errorf("metadata: encode entry_type %d: %w", rec.EntryType, types.ErrUnsupported)
	}

	return w.Bytes(), nil
}

// Decode parses a metadata record from raw. raw may be padded beyond the
// record's logical end (e.g. when the block holding it is a fixed page
// size); trailing bytes are ignored.
func Decode(raw []byte) (Record, error) {
	r := types.NewBinaryReader(raw)

	entryTypeRaw, err := r.ReadUint8()
	if err != nil {
		return Record{}, fmt.Errorf("metadata: read entry_type: %w", err)
	}
	entryType := EntryType(entryTypeRaw)
	if entryType < File || entryType > Device {
		return Record{}, fmt.Errorf("metadata: entry_type %d: %w", entryTypeRaw, types.ErrMetadataInvariant)
	}

	if _, err := r.ReadUint8(); err != nil { // unknown
		return Record{}, fmt.Errorf("metadata: read unknown prefix byte: %w", err)
	}

	flags, err := r.ReadUint16()
	if err != nil {
		return Record{}, fmt.Errorf("metadata: read flags: %w", err)
	}
	upper := flags >> 4
	binClass := BinaryClass(flags & 0x0F)

	rec := Record{EntryType: entryType, BinaryClass: binClass}

	switch upper {
	case flagsPathOnlyNibble:
		rec.PathOnly = true
		return rec, nil
	case flagsHasBodyNibble:
		// fall through to body decode below
	default:
		return Record{}, fmt.Errorf("metadata: flags upper nibble 0x%x: %w", upper, types.ErrUnsupported)
	}

	mode, err := r.ReadUint16()
	if err != nil {
		return Record{}, fmt.Errorf("metadata: read mode: %w", err)
	}
	if err := validateModeAgreesWithType(entryType, mode); err != nil {
		return Record{}, err
	}
	rec.Mode = mode

	if rec.UID, err = r.ReadUint32(); err != nil {
		return Record{}, fmt.Errorf("metadata: read uid: %w", err)
	}
	if rec.GID, err = r.ReadUint32(); err != nil {
		return Record{}, fmt.Errorf("metadata: read gid: %w", err)
	}
	if rec.MTime, err = r.ReadUint32(); err != nil {
		return Record{}, fmt.Errorf("metadata: read mtime: %w", err)
	}
	if rec.Size, err = r.ReadUint32(); err != nil {
		return Record{}, fmt.Errorf("metadata: read size: %w", err)
	}
	if _, err := r.ReadUint8(); err != nil { // unknown
		return Record{}, fmt.Errorf("metadata: read unknown body byte: %w", err)
	}

	switch entryType {
	case File:
		if rec.Checksum, err = r.ReadUint32(); err != nil {
			return Record{}, fmt.Errorf("metadata: read file checksum: %w", err)
		}
	case Directory:
		// no extension
	case Link:
		if rec.Checksum, err = r.ReadUint32(); err != nil {
			return Record{}, fmt.Errorf("metadata: read link checksum: %w", err)
		}
		if rec.TargetLen, err = r.ReadUint32(); err != nil {
			return Record{}, fmt.Errorf("metadata: read target_len: %w", err)
		}
		target, err := r.ReadCString()
		if err != nil {
			return Record{}, fmt.Errorf("metadata: read target: %w", err)
		}
		if uint32(len(target))+1 != rec.TargetLen {
			return Record{}, fmt.Errorf("metadata: target_len %d disagrees with %d-byte target incl. NUL: %w", rec.TargetLen, len(target)+1, types.ErrMetadataInvariant)
		}
		rec.Target = target
	case Device:
		if rec.DeviceNr, err = r.ReadUint32(); err != nil {
			return Record{}, fmt.Errorf("metadata: read dev: %w", err)
		}
	}

	return rec, nil
}

// validateModeAgreesWithType cross-checks the common body's mode file-type
// bits against the variant tag: regular->1, directory->2, symlink->3,
// character/block device->4. A mismatch means the record is corrupt.
func validateModeAgreesWithType(entryType EntryType, mode uint16) error {
	bits := (mode >> 12) & 0xF
	var want uint16
	switch entryType {
	case File:
		want = modeTypeRegular
	case Directory:
		want = modeTypeDirectory
	case Link:
		want = modeTypeSymlink
	case Device:
		want = modeTypeDevice
	default:
		return fmt.Errorf("metadata: entry_type %d: %w", entryType, types.ErrUnsupported)
	}
	if bits != want {
		return fmt.Errorf("metadata: mode 0%o file-type bits 0x%x disagree with entry_type %s (want 0x%x): %w", mode, bits, entryType, want, types.ErrMetadataInvariant)
	}
	return nil
}
