// Package cksum implements the POSIX cksum(1) CRC-32, used to checksum file
// contents and symbolic-link targets recorded in a receipt. It has no
// dependency on any other package in this module.
//
// Grounded on the teacher's checksum-verifier texture in
// internal/apfs/objects/object_checksum_verifier.go: a small, self-contained
// accumulator with a table-driven core, no external crc packages pulled in
// because the polynomial and the length-extension step are specific enough
// that the standard hash/crc32 package's IEEE table does not apply here
// (POSIX cksum uses a different, non-reflected CRC-32/BZIP2-style table and
// folds the stream length into the checksum itself).
package cksum

// table is the POSIX cksum CRC-32 table: the non-reflected variant of
// polynomial 0x04C11DB7, indexed by the top byte of the running 32-bit sum.
var table = buildTable()

func buildTable() [256]uint32 {
	const poly = uint32(0x04C11DB7)
	var t [256]uint32
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// update folds one byte into the running CRC using the non-reflected table.
func update(crc uint32, b byte) uint32 {
	return (crc << 8) ^ table[byte(crc>>24)^b]
}

// Sum computes the POSIX cksum(1) CRC-32 over data: the CRC of the byte
// stream is extended with the stream's byte count, least-significant byte
// first, using only as many bytes as the count needs (none for an empty
// stream), then the result is inverted.
// It returns the checksum and the original length, the same pair
// cksum(1) prints on its stdout line.
func Sum(data []byte) (uint32, uint64) {
	var crc uint32
	for _, b := range data {
		crc = update(crc, b)
	}

	length := uint64(len(data))
	if length > 0 {
		lenBytes := make([]byte, 0, 8)
		n := length
		for n > 0 {
			lenBytes = append(lenBytes, byte(n&0xff))
			n >>= 8
		}
		// POSIX cksum folds in the length least-significant-byte-first,
		// stopping once the remaining bytes would all be zero.
		for _, b := range lenBytes {
			crc = update(crc, b)
		}
	}

	return ^crc, length
}
