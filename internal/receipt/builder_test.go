package receipt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macpkg/bom/internal/metadata"
	"github.com/macpkg/bom/pkg/cksum"
)

func TestCreateEmptyRoot(t *testing.T) {
	dir := t.TempDir()

	r, err := NewReceiptBuilder(DefaultOptions()).Create(dir)
	require.NoError(t, err)

	entries := r.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, uint32(1), entries[0].SeqNo)
	require.Equal(t, ".", entries[0].Path)
	require.Equal(t, metadata.Directory, entries[0].Metadata.EntryType)
	require.Equal(t, uint32(1), r.NumPaths())
	require.Empty(t, r.HardLinkGroups())
}

func TestCreateSingleSmallFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0o755))
	content := []byte("Hello, BOM!\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "hello.txt"), content, 0o644))

	r, err := NewReceiptBuilder(DefaultOptions()).Create(dir)
	require.NoError(t, err)

	byPath := map[string]PathEntry{}
	for _, e := range r.Entries() {
		byPath[e.Path] = e
	}

	a, ok := byPath["a"]
	require.True(t, ok)
	require.Equal(t, metadata.Directory, a.Metadata.EntryType)

	file, ok := byPath[filepath.Join("a", "hello.txt")]
	require.True(t, ok)
	require.Equal(t, metadata.File, file.Metadata.EntryType)
	require.Equal(t, uint32(len(content)), file.Metadata.Size)

	wantCRC, _ := cksum.Sum(content)
	require.Equal(t, wantCRC, file.Metadata.Checksum)
}

func TestCreateSymlink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("b", filepath.Join(dir, "a")))

	r, err := NewReceiptBuilder(DefaultOptions()).Create(dir)
	require.NoError(t, err)

	var link *PathEntry
	entries := r.Entries()
	for i := range entries {
		if entries[i].Path == "a" {
			link = &entries[i]
		}
	}
	require.NotNil(t, link)
	require.Equal(t, metadata.Link, link.Metadata.EntryType)
	require.Equal(t, "b", link.Metadata.Target)
	require.Equal(t, uint32(2), link.Metadata.TargetLen)

	wantCRC, _ := cksum.Sum([]byte("b"))
	require.Equal(t, wantCRC, link.Metadata.Checksum)
}

func TestCreateHardLinkPair(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one"), []byte("shared"), 0o644))
	require.NoError(t, os.Link(filepath.Join(dir, "one"), filepath.Join(dir, "two")))

	r, err := NewReceiptBuilder(DefaultOptions()).Create(dir)
	require.NoError(t, err)

	groups := r.HardLinkGroups()
	require.Len(t, groups, 1)
	require.ElementsMatch(t, []string{"one", "two"}, groups[0].Paths)
}

func TestCreatePathOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one"), []byte("shared content"), 0o644))
	require.NoError(t, os.Link(filepath.Join(dir, "one"), filepath.Join(dir, "two")))

	opts := DefaultOptions()
	opts.PathOnly = true
	r, err := NewReceiptBuilder(opts).Create(dir)
	require.NoError(t, err)

	for _, e := range r.Entries() {
		require.True(t, e.Metadata.PathOnly)
		require.Zero(t, e.Metadata.Size)
	}

	// Path-only mode (mkbom -s) only omits the metadata body; hard-link
	// grouping and BomInfo accounting are unconditional and still run over
	// every file entry.
	groups := r.HardLinkGroups()
	require.Len(t, groups, 1)
	require.ElementsMatch(t, []string{"one", "two"}, groups[0].Paths)
}
