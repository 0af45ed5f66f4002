package disk

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// magic identifies a disk file belonging to this array format.
const magic uint32 = 0x600DF00D

// headerVersion is the on-disk header layout version.
const headerVersion uint32 = 1

// headerSize is the fixed, binary.Write-encoded size of header in bytes.
const headerSize = 4 + 4 + 4 + 4 + 8 + 4 + 1 + 8

// header is the fixed-layout record written at the start of every disk
// file: magic/version identification, the disk's position in the array,
// its geometry, the size of the trailing array-configuration blob, a
// validity flag and the timestamp of its last clean unmount.
type header struct {
	Magic        uint32
	Version      uint32
	DiskID       uint32
	BlockSize    uint32
	NumBlocks    uint64
	ArrayCfgSize uint32
	Valid        uint8
	LastUnmount  int64
}

func (h header) encode() []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

func decodeHeader(b []byte) (header, error) {
	var h header
	if len(b) < headerSize {
		return h, errors.New("disk: short header")
	}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &h); err != nil {
		return h, errors.Wrap(err, "disk: decode header")
	}
	if h.Magic != magic {
		return h, errors.Errorf("disk: bad magic %#x", h.Magic)
	}
	if h.Version != headerVersion {
		return h, errors.Errorf("disk: unsupported header version %d", h.Version)
	}
	return h, nil
}

// payloadOffset returns the byte offset of the first payload block,
// rounded up to a block-size boundary past the header and array config.
func payloadOffset(blockSize uint32, arrayCfgSize uint32) int64 {
	raw := int64(headerSize) + int64(arrayCfgSize)
	bs := int64(blockSize)
	if rem := raw % bs; rem != 0 {
		raw += bs - rem
	}
	return raw
}
