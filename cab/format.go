// Package cab implements the cabinet-style archive engine.
//
// A cabinet set is a sequence of volumes. Each volume holds a header, the
// encoded data of one or more file segments, a directory describing those
// segments and a fixed-size footer:
//
//	header    "SCAB" | version u8 | flags u8 | setID u16 | volume u16
//	data      block-framed segments (see codec.BlockWriter)
//	directory one record per segment
//	footer    dirOffset u32 | dirLength u32 | dirCount u16 | flags u8 | pad u8 | "BACS"
//
// All integers are little-endian. A file whose data does not fit the
// volume continues in the next one; its records carry continuation flags.
package cab

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/codec"
	"github.com/pithecene-io/strata/types"
)

// Format name.
const Format = "cab"

// Classic cabinet limits. The format has no extended mode.
const (
	MaxFiles       = 0xFFFF
	MaxFileSize    = 0x7FFF8000
	MaxCabinetSize = 0xFFFFFFFF
	MaxVolumes     = 0xFFFF
)

const (
	version    = 1
	headerSize = 10
	footerSize = 16
	// recordFixedSize is a directory record without its name.
	recordFixedSize = 27

	headerFlagPrev = 0x01
	footerFlagNext = 0x01

	recordFromPrev = 0x01
	recordToNext   = 0x02
)

var (
	signature   = []byte("SCAB")
	footerMagic = []byte("BACS")
)

type header struct {
	prev   bool
	setID  uint16
	volume uint16
}

func (h header) marshal() []byte {
	b := make([]byte, headerSize)
	copy(b, signature)
	b[4] = version
	if h.prev {
		b[5] = headerFlagPrev
	}
	binary.LittleEndian.PutUint16(b[6:8], h.setID)
	binary.LittleEndian.PutUint16(b[8:10], h.volume)
	return b
}

func parseHeader(b []byte) (header, error) {
	if len(b) < headerSize || !bytes.Equal(b[:4], signature) {
		return header{}, fmt.Errorf("missing %q signature", signature)
	}
	if b[4] != version {
		return header{}, fmt.Errorf("unsupported version %d", b[4])
	}
	return header{
		prev:   b[5]&headerFlagPrev != 0,
		setID:  binary.LittleEndian.Uint16(b[6:8]),
		volume: binary.LittleEndian.Uint16(b[8:10]),
	}, nil
}

type footer struct {
	dirOffset uint32
	dirLength uint32
	dirCount  uint16
	next      bool
}

func (f footer) marshal() []byte {
	b := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(b[0:4], f.dirOffset)
	binary.LittleEndian.PutUint32(b[4:8], f.dirLength)
	binary.LittleEndian.PutUint16(b[8:10], f.dirCount)
	if f.next {
		b[10] = footerFlagNext
	}
	copy(b[12:], footerMagic)
	return b
}

func parseFooter(b []byte) (footer, bool) {
	if len(b) != footerSize || !bytes.Equal(b[12:], footerMagic) {
		return footer{}, false
	}
	return footer{
		dirOffset: binary.LittleEndian.Uint32(b[0:4]),
		dirLength: binary.LittleEndian.Uint32(b[4:8]),
		dirCount:  binary.LittleEndian.Uint16(b[8:10]),
		next:      b[10]&footerFlagNext != 0,
	}, true
}

// record is the directory entry of one segment.
type record struct {
	flags      uint8
	fileNumber uint32
	attrs      types.FileAttributes
	date       uint16
	clock      uint16
	length     uint32
	method     codec.Method
	offset     uint32
	size       uint32
	name       string
}

func (r record) fromPrev() bool { return r.flags&recordFromPrev != 0 }
func (r record) toNext() bool   { return r.flags&recordToNext != 0 }

func (r record) modTime() time.Time { return archive.FromDOSTime(r.date, r.clock) }

func recordLen(name string) int64 { return recordFixedSize + int64(len(name)) }

func appendRecord(dst []byte, r record) []byte {
	var b [recordFixedSize]byte
	b[0] = r.flags
	binary.LittleEndian.PutUint32(b[1:5], r.fileNumber)
	binary.LittleEndian.PutUint16(b[5:7], uint16(r.attrs))
	binary.LittleEndian.PutUint16(b[7:9], r.date)
	binary.LittleEndian.PutUint16(b[9:11], r.clock)
	binary.LittleEndian.PutUint32(b[11:15], r.length)
	binary.LittleEndian.PutUint16(b[15:17], uint16(r.method))
	binary.LittleEndian.PutUint32(b[17:21], r.offset)
	binary.LittleEndian.PutUint32(b[21:25], r.size)
	binary.LittleEndian.PutUint16(b[25:27], uint16(len(r.name)))
	dst = append(dst, b[:]...)
	return append(dst, r.name...)
}

func parseDirectory(b []byte, count int) ([]record, error) {
	recs := make([]record, 0, count)
	for i := 0; i < count; i++ {
		if len(b) < recordFixedSize {
			return nil, fmt.Errorf("directory record %d: short by %d bytes", i, recordFixedSize-len(b))
		}
		r := record{
			flags:      b[0],
			fileNumber: binary.LittleEndian.Uint32(b[1:5]),
			attrs:      types.FileAttributes(binary.LittleEndian.Uint16(b[5:7])),
			date:       binary.LittleEndian.Uint16(b[7:9]),
			clock:      binary.LittleEndian.Uint16(b[9:11]),
			length:     binary.LittleEndian.Uint32(b[11:15]),
			method:     codec.Method(binary.LittleEndian.Uint16(b[15:17])),
			offset:     binary.LittleEndian.Uint32(b[17:21]),
			size:       binary.LittleEndian.Uint32(b[21:25]),
		}
		n := int(binary.LittleEndian.Uint16(b[25:27]))
		b = b[recordFixedSize:]
		if len(b) < n {
			return nil, fmt.Errorf("directory record %d: name short by %d bytes", i, n-len(b))
		}
		r.name = string(b[:n])
		b = b[n:]
		recs = append(recs, r)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("directory has %d trailing bytes", len(b))
	}
	return recs, nil
}

// formatCodec reports the classic cabinet limits.
type formatCodec struct{}

var _ archive.FormatCodec = formatCodec{}

func (formatCodec) Format() string { return Format }

func (formatCodec) Signature() []byte { return signature }

func (formatCodec) NeedsExtendedMode(totalFiles int, maxFileSize, maxArchiveSize int64) bool {
	return totalFiles > MaxFiles || maxFileSize > MaxFileSize || maxArchiveSize > MaxCabinetSize
}

func (formatCodec) SupportsExtendedMode() bool { return false }

// methodFor maps a compression level to a method and its native level.
func methodFor(l types.CompressionLevel) (codec.Method, int) {
	switch l.Clamp() {
	case types.LevelNone:
		return codec.Store, 0
	case types.LevelLow:
		return codec.LZ4, 0
	case types.LevelNormal:
		return codec.Deflate, 6
	default:
		return codec.Deflate, 9
	}
}
