package receipt

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macpkg/bom/internal/metadata"
	"github.com/macpkg/bom/pkg/blockstore"
	"github.com/macpkg/bom/pkg/tree"
)

func TestReadWriteRoundTripsBuiltReceipt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "hello.txt"), []byte("Hello, BOM!\n"), 0o644))

	built, err := NewReceiptBuilder(DefaultOptions()).Create(dir)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = built.Write(&buf)
	require.NoError(t, err)

	reread, err := Read(buf.Bytes())
	require.NoError(t, err)

	require.Equal(t, built.Entries(), reread.Entries())
	require.Equal(t, built.NumPaths(), reread.NumPaths())
}

// TestSize64RegistrationSurvivesRoundTrip exercises the large-file case
// directly at the block level, without materialising a multi-gigabyte file
// on disk: a file's metadata Size field holds the size truncated mod 2^32
// while the full precision value lives in Size64, keyed by the metadata
// record's own block index.
func TestSize64RegistrationSurvivesRoundTrip(t *testing.T) {
	bs := blockstore.New()

	const trueSize = uint64(5) << 30 // 5 GiB
	rec := metadata.Record{
		EntryType: metadata.File,
		Mode:      0o644 | 1<<12,
		Size:      uint32(trueSize), // truncates mod 2^32, matching the encoder
	}
	metaBytes, err := metadata.Encode(rec)
	require.NoError(t, err)
	metaBlock := bs.Allocate(metaBytes)

	rootKey := bs.Allocate(encodePathsKey(pathsKeyRecord{SeqNo: 1, Metadata: bs.Allocate(mustEncodeDir(t))}))
	rootVal := bs.Allocate(encodePathsValue(pathsValueRecord{Parent: 0, Name: "."}))
	fileKey := bs.Allocate(encodePathsKey(pathsKeyRecord{SeqNo: 2, Metadata: metaBlock}))
	fileVal := bs.Allocate(encodePathsValue(pathsValueRecord{Parent: 1, Name: "big.bin"}))

	pathsIdx, err := tree.Write(bs, []tree.Entry{{Key: rootKey, Value: rootVal}, {Key: fileKey, Value: fileVal}}, 4096)
	require.NoError(t, err)
	require.NoError(t, bs.Name("Paths", pathsIdx))

	sizeKeyBlock := bs.Allocate(encodeSize64Key(trueSize))
	size64Idx, err := tree.Write(bs, []tree.Entry{{Key: sizeKeyBlock, Value: metaBlock}}, 128)
	require.NoError(t, err)
	require.NoError(t, bs.Name("Size64", size64Idx))

	hlIdx, err := writeHLIndex(bs, nil)
	require.NoError(t, err)
	require.NoError(t, bs.Name("HLIndex", hlIdx))

	bomInfoBlock := bs.Allocate(encodeBomInfo(bomInfo{NumPaths: 2, NumEntries: 1, Entries: []bomInfoEntry{{CPUType: 0, TotalSize: uint32(trueSize)}}}))
	require.NoError(t, bs.Name("BomInfo", bomInfoBlock))

	vIdx, err := writeVIndex(bs)
	require.NoError(t, err)
	require.NoError(t, bs.Name("VIndex", vIdx))

	var buf bytes.Buffer
	_, err = bs.WriteTo(&buf)
	require.NoError(t, err)

	r, err := Read(buf.Bytes())
	require.NoError(t, err)

	var fileEntry *PathEntry
	entries := r.Entries()
	for i := range entries {
		if entries[i].Path == "big.bin" {
			fileEntry = &entries[i]
		}
	}
	require.NotNil(t, fileEntry)
	require.Equal(t, uint32(trueSize), fileEntry.Metadata.Size)
	require.Equal(t, trueSize, fileEntry.Metadata.TrueSize)

	got, ok := r.TrueSize(metaBlock)
	require.True(t, ok)
	require.Equal(t, trueSize, got)

	require.Zero(t, r.NumVirtualPaths())
}

func mustEncodeDir(t *testing.T) []byte {
	t.Helper()
	b, err := metadata.Encode(metadata.Record{EntryType: metadata.Directory, Mode: 0o755 | 2<<12})
	require.NoError(t, err)
	return b
}
