package receipt

import (
	"fmt"

	"github.com/macpkg/bom/pkg/types"
)

// encodeSize64Key packs the true 64-bit size of a file whose u32 Size
// field in its metadata record overflowed. Files larger than 2^32-1 bytes
// are additionally registered in Size64, keyed by a block holding the full
// size and valued by the file's metadata block index.
func encodeSize64Key(size uint64) []byte {
	w := types.NewBinaryWriter()
	w.WriteUint64(size)
	return w.Bytes()
}

func decodeSize64Key(raw []byte) (uint64, error) {
	r := types.NewBinaryReader(raw)
	size, err := r.ReadUint64()
	if err != nil {
		return 0, fmt.Errorf("receipt: read Size64 key: %w", err)
	}
	return size, nil
}
