package persistence

import "errors"

// Magic identifies snapshot files.
var Magic = [8]byte{'H', 'N', 'S', 'W', 'F', 'L', 'D', '1'}

// Version is the current snapshot format version.
const Version uint32 = 1

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrCorrupt        = errors.New("corrupt snapshot")
)

// FileHeader is the 40-byte header at the start of every snapshot.
type FileHeader struct {
	Magic       [8]byte
	Version     uint32
	Compression Compression
	Padding1    [3]byte
	RawSize     uint64
	StoredSize  uint64
	Checksum    uint32 // CRC32 of the uncompressed body
	Padding2    [4]byte
}

const headerSize = 40
