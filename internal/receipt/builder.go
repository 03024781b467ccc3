package receipt

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/macpkg/bom/internal/metadata"
	"github.com/macpkg/bom/internal/walkfs"
	"github.com/macpkg/bom/pkg/blockstore"
	"github.com/macpkg/bom/pkg/cksum"
	"github.com/macpkg/bom/pkg/tree"
	"github.com/macpkg/bom/pkg/types"
)

// Filter decides whether a walked item is included in the built Receipt.
// A nil Filter (the default) includes everything.
type Filter func(walkfs.Item) bool

// Options configures a ReceiptBuilder. Its zero value is NOT the default;
// use DefaultOptions for mkbom's own behavior: checksums on, symlinks
// recorded rather than followed, every walked item included.
type Options struct {
	CRC            bool
	FollowSymlinks bool
	PathOnly       bool
	Filter         Filter
}

// DefaultOptions returns mkbom's documented builder defaults.
func DefaultOptions() Options {
	return Options{CRC: true, FollowSymlinks: false, PathOnly: false}
}

// ReceiptBuilder accumulates a Receipt from a directory walk. It holds
// in-progress state across one Create call and is not safe to reuse
// concurrently from multiple goroutines.
type ReceiptBuilder struct {
	opts    Options
	buildID uuid.UUID
}

// NewReceiptBuilder returns a builder configured with opts.
func NewReceiptBuilder(opts Options) *ReceiptBuilder {
	return &ReceiptBuilder{opts: opts, buildID: uuid.New()}
}

type hardLinkKey struct {
	dev uint64
	ino uint64
}

type hardLinkAccum struct {
	paths         []string
	metadataBlock uint32
}

// Create traverses root via internal/walkfs and assembles a Receipt from
// the walked items. Any error aborts the build; a partial Receipt is never
// returned to the caller.
func (b *ReceiptBuilder) Create(root string) (*Receipt, error) {
	bs := blockstore.New()

	var pathEntries []tree.Entry
	var size64Entries []tree.Entry
	seqByRelPath := make(map[string]uint32)
	hardLinks := make(map[hardLinkKey]*hardLinkAccum)
	bomTotals := map[uint32]uint64{0: 0}
	nextSeqNo := uint32(1)

	walkOpts := walkfs.Options{FollowSymlinks: b.opts.FollowSymlinks}
	err := walkfs.Walk(root, walkOpts, func(item walkfs.Item) error {
		if b.opts.Filter != nil && !b.opts.Filter(item) {
			return nil
		}

		seqNo := nextSeqNo
		nextSeqNo++
		seqByRelPath[item.RelPath] = seqNo

		var parentSeqNo uint32
		if item.RelPath != "." {
			parentRel := filepath.Dir(item.RelPath)
			ps, ok := seqByRelPath[parentRel]
			if !ok {
				return fmt.Errorf("receipt: build %s: item %q has no visited parent %q (build %s): %w", root, item.RelPath, parentRel, b.buildID, types.ErrPathInvariant)
			}
			parentSeqNo = ps
		}
		name := item.RelPath
		if item.RelPath != "." {
			name = filepath.Base(item.RelPath)
		}

		rec, trueSize, err := b.buildMetadataRecord(item)
		if err != nil {
			return fmt.Errorf("receipt: build %s: item %q (build %s): %w", root, item.RelPath, b.buildID, err)
		}

		metaBytes, err := metadata.Encode(rec)
		if err != nil {
			return fmt.Errorf("receipt: encode metadata for %q (build %s): %w", item.RelPath, b.buildID, err)
		}
		metaBlock := bs.Allocate(metaBytes)

		keyBlock := bs.Allocate(encodePathsKey(pathsKeyRecord{SeqNo: seqNo, Metadata: metaBlock}))
		valBlock := bs.Allocate(encodePathsValue(pathsValueRecord{Parent: parentSeqNo, Name: name}))
		pathEntries = append(pathEntries, tree.Entry{Key: keyBlock, Value: valBlock})

		if trueSize > math.MaxUint32 {
			sizeBlock := bs.Allocate(encodeSize64Key(trueSize))
			size64Entries = append(size64Entries, tree.Entry{Key: sizeBlock, Value: metaBlock})
		}

		if item.Type == walkfs.TypeFile {
			key := hardLinkKey{dev: item.Dev, ino: item.Ino}
			acc, ok := hardLinks[key]
			if !ok {
				acc = &hardLinkAccum{metadataBlock: metaBlock}
				hardLinks[key] = acc
			}
			acc.paths = append(acc.paths, pathFromRoot(root, item.AbsPath))
			bomTotals[0] += trueSize
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	var groups []hardLinkGroup
	for _, acc := range hardLinks {
		if len(acc.paths) < 2 {
			continue
		}
		groups = append(groups, hardLinkGroup{Paths: acc.paths, MetadataBlock: acc.metadataBlock})
	}

	sort.Slice(pathEntries, func(i, j int) bool { return pathEntries[i].Key < pathEntries[j].Key })
	sort.Slice(size64Entries, func(i, j int) bool { return size64Entries[i].Key < size64Entries[j].Key })

	pathsIdx, err := tree.Write(bs, pathEntries, 4096)
	if err != nil {
		return nil, fmt.Errorf("receipt: write Paths tree (build %s): %w", b.buildID, err)
	}
	if err := bs.Name("Paths", pathsIdx); err != nil {
		return nil, fmt.Errorf("receipt: name Paths (build %s): %w", b.buildID, err)
	}

	hlIdx, err := writeHLIndex(bs, groups)
	if err != nil {
		return nil, fmt.Errorf("receipt: write HLIndex (build %s): %w", b.buildID, err)
	}
	if err := bs.Name("HLIndex", hlIdx); err != nil {
		return nil, fmt.Errorf("receipt: name HLIndex (build %s): %w", b.buildID, err)
	}

	size64Idx, err := tree.Write(bs, size64Entries, 128)
	if err != nil {
		return nil, fmt.Errorf("receipt: write Size64 tree (build %s): %w", b.buildID, err)
	}
	if err := bs.Name("Size64", size64Idx); err != nil {
		return nil, fmt.Errorf("receipt: name Size64 (build %s): %w", b.buildID, err)
	}

	info := bomInfo{
		NumPaths:   uint32(len(pathEntries)),
		NumEntries: 1,
		Entries:    []bomInfoEntry{{CPUType: 0, TotalSize: uint32(bomTotals[0])}},
	}
	bomInfoBlock := bs.Allocate(encodeBomInfo(info))
	if err := bs.Name("BomInfo", bomInfoBlock); err != nil {
		return nil, fmt.Errorf("receipt: name BomInfo (build %s): %w", b.buildID, err)
	}

	vIdx, err := writeVIndex(bs)
	if err != nil {
		return nil, fmt.Errorf("receipt: write VIndex (build %s): %w", b.buildID, err)
	}
	if err := bs.Name("VIndex", vIdx); err != nil {
		return nil, fmt.Errorf("receipt: name VIndex (build %s): %w", b.buildID, err)
	}

	size64Map, err := readSize64(bs)
	if err != nil {
		return nil, fmt.Errorf("receipt: finalise %s (build %s): %w", root, b.buildID, err)
	}
	entries, err := readPathEntries(bs, size64Map)
	if err != nil {
		return nil, fmt.Errorf("receipt: finalise %s (build %s): %w", root, b.buildID, err)
	}
	hardLinkViews, err := readHLIndex(bs, hlIdx)
	if err != nil {
		return nil, fmt.Errorf("receipt: finalise %s (build %s): %w", root, b.buildID, err)
	}
	numVirtualPaths, err := readVIndex(bs)
	if err != nil {
		return nil, fmt.Errorf("receipt: finalise %s (build %s): %w", root, b.buildID, err)
	}

	return &Receipt{bs: bs, entries: entries, size64: size64Map, hardLinks: hardLinkViews, info: info, numVirtualPaths: numVirtualPaths}, nil
}

// buildMetadataRecord turns a walked item into its metadata record and the
// item's full-precision size (0 for non-files), computing the POSIX cksum
// of file contents or link targets when b.opts.CRC is set.
func (b *ReceiptBuilder) buildMetadataRecord(item walkfs.Item) (metadata.Record, uint64, error) {
	if b.opts.PathOnly {
		// Path-only mode (mkbom -s) only omits the metadata body; the
		// walked item's true size is still real and still feeds Size64/
		// HLIndex/BomInfo accounting below, which path-only does not gate.
		var trueSize uint64
		if item.Type == walkfs.TypeFile {
			trueSize = item.Size
		}
		return metadata.Record{EntryType: walkEntryType(item.Type), PathOnly: true}, trueSize, nil
	}

	rec := metadata.Record{
		EntryType: walkEntryType(item.Type),
		Mode:      uint16(item.Mode),
		UID:       item.UID,
		GID:       item.GID,
		MTime:     item.MTime,
	}

	switch item.Type {
	case walkfs.TypeFile:
		rec.Size = uint32(item.Size)
		if b.opts.CRC {
			content, err := os.ReadFile(item.AbsPath)
			if err != nil {
				return metadata.Record{}, 0, fmt.Errorf("read %q for checksum: %w", item.AbsPath, err)
			}
			crc, length := cksum.Sum(content)
			if length != item.Size {
				return metadata.Record{}, 0, fmt.Errorf("file %q changed size during walk (%d vs %d)", item.AbsPath, length, item.Size)
			}
			rec.Checksum = crc
		}
		return rec, item.Size, nil
	case walkfs.TypeDirectory:
		return rec, 0, nil
	case walkfs.TypeLink:
		rec.TargetLen = uint32(len(item.LinkTarget)) + 1
		rec.Target = item.LinkTarget
		if b.opts.CRC {
			crc, _ := cksum.Sum([]byte(item.LinkTarget))
			rec.Checksum = crc
		}
		return rec, 0, nil
	case walkfs.TypeDevice:
		rec.DeviceNr = item.DeviceNr
		return rec, 0, nil
	default:
		return metadata.Record{}, 0, fmt.Errorf("unrecognised walk item type %d", item.Type)
	}
}

func walkEntryType(t walkfs.Type) metadata.EntryType {
	switch t {
	case walkfs.TypeFile:
		return metadata.File
	case walkfs.TypeDirectory:
		return metadata.Directory
	case walkfs.TypeLink:
		return metadata.Link
	case walkfs.TypeDevice:
		return metadata.Device
	default:
		return metadata.EntryType(0)
	}
}

// pathFromRoot renders absPath relative to root for HLIndex's path strings,
// falling back to absPath if it cannot be made relative (it always can in
// practice, since walkfs derives absPath from root).
func pathFromRoot(root, absPath string) string {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return absPath
	}
	return rel
}
