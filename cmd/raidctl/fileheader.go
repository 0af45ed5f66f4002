package main

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

// fileHeaderSize is the encoded size of fileHeader: two int64 fields
// and one uint32 field, each written in a fixed little-endian layout.
const fileHeaderSize = 8 + 4 + 8

// fileHeader is the fixed-layout record store/get prefix file payload
// with: a file's size, its CRC32 checksum, and a header checksum
// (size XOR CRC32) that lets get detect a header that was never
// written (or was read from the wrong offset) before trusting Size.
type fileHeader struct {
	Size     int64
	CRC32    uint32
	Checksum int64
}

func newFileHeader(data []byte) fileHeader {
	sum := crc32.ChecksumIEEE(data)
	return fileHeader{
		Size:     int64(len(data)),
		CRC32:    sum,
		Checksum: int64(len(data)) ^ int64(sum),
	}
}

func (h fileHeader) valid() bool {
	return (h.Size ^ int64(h.CRC32)) == h.Checksum
}

func (h fileHeader) encode() []byte {
	buf := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.Size))
	binary.LittleEndian.PutUint32(buf[8:12], h.CRC32)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.Checksum))
	return buf
}

func decodeFileHeader(buf []byte) (fileHeader, error) {
	if len(buf) != fileHeaderSize {
		return fileHeader{}, errors.Errorf("raidctl: file header must be %d bytes, got %d", fileHeaderSize, len(buf))
	}
	return fileHeader{
		Size:     int64(binary.LittleEndian.Uint64(buf[0:8])),
		CRC32:    binary.LittleEndian.Uint32(buf[8:12]),
		Checksum: int64(binary.LittleEndian.Uint64(buf[12:20])),
	}, nil
}
