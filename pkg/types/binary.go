package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// BinaryReader wraps a byte slice with cursor-based big-endian reads. The
// BOM format is big-endian throughout, unlike APFS's little-endian layout
// that this package's conventions were borrowed from, so this reader
// hard-codes binary.BigEndian rather than taking a byte order parameter.
type BinaryReader struct {
	buf *bytes.Reader
}

// NewBinaryReader creates a reader positioned at the start of data.
func NewBinaryReader(data []byte) *BinaryReader {
	return &BinaryReader{buf: bytes.NewReader(data)}
}

// Pos returns the current read offset.
func (br *BinaryReader) Pos() int64 {
	pos, _ := br.buf.Seek(0, io.SeekCurrent)
	return pos
}

// Seek repositions the cursor to an absolute offset.
func (br *BinaryReader) Seek(offset int64) error {
	_, err := br.buf.Seek(offset, io.SeekStart)
	return err
}

func (br *BinaryReader) ReadUint8() (uint8, error) {
	var val uint8
	err := binary.Read(br.buf, binary.BigEndian, &val)
	return val, err
}

func (br *BinaryReader) ReadUint16() (uint16, error) {
	var val uint16
	err := binary.Read(br.buf, binary.BigEndian, &val)
	return val, err
}

func (br *BinaryReader) ReadUint32() (uint32, error) {
	var val uint32
	err := binary.Read(br.buf, binary.BigEndian, &val)
	return val, err
}

func (br *BinaryReader) ReadUint64() (uint64, error) {
	var val uint64
	err := binary.Read(br.buf, binary.BigEndian, &val)
	return val, err
}

// ReadBytes reads exactly length bytes.
func (br *BinaryReader) ReadBytes(length int) ([]byte, error) {
	out := make([]byte, length)
	_, err := io.ReadFull(br.buf, out)
	return out, err
}

// ReadCString reads a NUL-terminated byte string, consuming the terminator.
func (br *BinaryReader) ReadCString() (string, error) {
	var out []byte
	for {
		b, err := br.ReadUint8()
		if err != nil {
			return "", fmt.Errorf("unterminated string: %w", err)
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
}

// ReadBlock decodes a Block{offset,size} descriptor: two big-endian uint32s.
func (br *BinaryReader) ReadBlock() (Block, error) {
	offset, err := br.ReadUint32()
	if err != nil {
		return Block{}, err
	}
	size, err := br.ReadUint32()
	if err != nil {
		return Block{}, err
	}
	return Block{Offset: offset, Size: size}, nil
}

// BinaryWriter accumulates big-endian encoded fields into a growing buffer.
type BinaryWriter struct {
	buf bytes.Buffer
}

// NewBinaryWriter returns an empty writer.
func NewBinaryWriter() *BinaryWriter {
	return &BinaryWriter{}
}

func (bw *BinaryWriter) WriteUint8(val uint8) {
	bw.buf.WriteByte(val)
}

func (bw *BinaryWriter) WriteUint16(val uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], val)
	bw.buf.Write(tmp[:])
}

func (bw *BinaryWriter) WriteUint32(val uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], val)
	bw.buf.Write(tmp[:])
}

func (bw *BinaryWriter) WriteUint64(val uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], val)
	bw.buf.Write(tmp[:])
}

func (bw *BinaryWriter) WriteBytes(data []byte) {
	bw.buf.Write(data)
}

// WriteCString writes s followed by a single NUL terminator.
func (bw *BinaryWriter) WriteCString(s string) {
	bw.buf.WriteString(s)
	bw.buf.WriteByte(0)
}

// WriteBlock encodes a Block{offset,size} descriptor.
func (bw *BinaryWriter) WriteBlock(b Block) {
	bw.WriteUint32(b.Offset)
	bw.WriteUint32(b.Size)
}

// WriteZeros appends n zero bytes, used for header padding and node padding.
func (bw *BinaryWriter) WriteZeros(n int) {
	if n <= 0 {
		return
	}
	bw.buf.Write(make([]byte, n))
}

// Len returns the number of bytes written so far.
func (bw *BinaryWriter) Len() int { return bw.buf.Len() }

// Bytes returns the accumulated buffer. The returned slice aliases the
// writer's internal storage and must not be mutated by the caller.
func (bw *BinaryWriter) Bytes() []byte { return bw.buf.Bytes() }
