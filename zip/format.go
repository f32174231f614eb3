// Package zip implements the zip-style archive engine.
//
// Archives follow the PKWARE APPNOTE layout. Every entry is written as a
// local header with sizes deferred to a data descriptor, so entries stream
// without seeking back. A split archive is a sequence of disks; disk n is
// volume n and offsets in headers are relative to the start of their disk:
//
//	disk 0     split signature | local header | data | descriptor | ...
//	disk 1..k  ... data continued | descriptor | local header | ...
//	disk k     ... central directory | [zip64 end | zip64 locator] | end
//
// Central directory records are never split across disks. The end records
// always share the last disk.
package zip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/codec"
	"github.com/pithecene-io/strata/types"
)

// Format name.
const Format = "zip"

// MaxFiles is the classic entry limit. Archives with more entries are
// written with zip64 end records.
const MaxFiles = 0xFFFF

const (
	localSig        = 0x04034b50
	splitSig        = 0x08074b50
	descriptorSig   = 0x08074b50
	centralSig      = 0x02014b50
	endSig          = 0x06054b50
	zip64EndSig     = 0x06064b50
	zip64LocatorSig = 0x07064b50
	// singleSig marks a split archive that ended up in one segment.
	singleSig = 0x30304b50

	localHeaderLen   = 30
	centralHeaderLen = 46
	endLen           = 22
	zip64EndLen      = 56
	zip64LocatorLen  = 20
	descriptorLen    = 16
	descriptor64Len  = 24

	zip64ExtraID   = 0x0001
	extTimeExtraID = 0x5455

	flagEncrypted  = 0x0001
	flagDescriptor = 0x0008
	flagUTF8       = 0x0800

	creatorUnix  = 3
	versionMade  = creatorUnix<<8 | 63
	version20    = 20
	version45    = 45
	version63    = 63
	dosAttrMask  = 0x27
	unixRegular  = 0o100000
	uint16max    = 0xFFFF
	uint32max    = 0xFFFFFFFF
	extTimeMtime = 0x01
)

// zip64Threshold is the largest entry written with classic local fields.
// The margin leaves room for compressed output slightly larger than its
// input.
const zip64Threshold = uint32max - 1<<24

var (
	localSigBytes = le32(localSig)
	splitSigBytes = le32(splitSig)
)

var errFormat = errors.New("zip: not a valid zip structure")

func le32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// readBuf consumes little-endian fields from a byte slice.
type readBuf []byte

func (b *readBuf) uint8() uint8 {
	v := (*b)[0]
	*b = (*b)[1:]
	return v
}

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

func (b *readBuf) sub(n int) readBuf {
	b2 := (*b)[:n]
	*b = (*b)[n:]
	return b2
}

// versionNeeded returns the APPNOTE version an entry requires.
func versionNeeded(m codec.Method, zip64 bool) uint16 {
	switch {
	case m == codec.Zstd:
		return version63
	case zip64:
		return version45
	default:
		return version20
	}
}

// externalAttrs packs attributes as DOS bits in the low byte and a Unix
// mode in the high 16 bits.
func externalAttrs(a types.FileAttributes) uint32 {
	mode := uint32(unixRegular | 0o644)
	if a.Has(types.AttrExec) {
		mode |= 0o111
	}
	if a.Has(types.AttrReadOnly) {
		mode &^= 0o222
	}
	return mode<<16 | uint32(a)&dosAttrMask
}

// attrsFrom reverses externalAttrs. The Unix mode is only trusted when the
// creator is Unix.
func attrsFrom(made uint16, ext uint32) types.FileAttributes {
	a := types.FileAttributes(ext & dosAttrMask)
	if made>>8 != creatorUnix {
		return a
	}
	mode := ext >> 16
	if mode&0o111 != 0 {
		a |= types.AttrExec
	}
	if mode != 0 && mode&0o222 == 0 {
		a |= types.AttrReadOnly
	}
	return a
}

// stamp is an entry modification time in both zip encodings.
type stamp struct {
	date, clock uint16
	unix        int64
	hasUnix     bool
}

func newStamp(t time.Time) stamp {
	s := stamp{unix: t.Unix()}
	s.date, s.clock = archive.DOSTime(t)
	s.hasUnix = s.unix >= 0 && s.unix <= uint32max
	return s
}

// time returns the recorded time, preferring the extended timestamp.
func (s stamp) time() time.Time {
	if s.hasUnix {
		return time.Unix(s.unix, 0).UTC()
	}
	return archive.FromDOSTime(s.date, s.clock)
}

func appendExtTime(b []byte, s stamp) []byte {
	if !s.hasUnix {
		return b
	}
	b = binary.LittleEndian.AppendUint16(b, extTimeExtraID)
	b = binary.LittleEndian.AppendUint16(b, 5)
	b = append(b, extTimeMtime)
	return binary.LittleEndian.AppendUint32(b, uint32(s.unix))
}

// appendLocal appends a local file header. Sizes and CRC are deferred to
// the data descriptor; a zip64 entry carries a zip64 extra with zero sizes.
func appendLocal(b []byte, name string, m codec.Method, s stamp, zip64 bool) []byte {
	var extra []byte
	if zip64 {
		extra = binary.LittleEndian.AppendUint16(extra, zip64ExtraID)
		extra = binary.LittleEndian.AppendUint16(extra, 16)
		extra = binary.LittleEndian.AppendUint64(extra, 0)
		extra = binary.LittleEndian.AppendUint64(extra, 0)
	}
	extra = appendExtTime(extra, s)

	var size uint32
	if zip64 {
		size = uint32max
	}
	b = binary.LittleEndian.AppendUint32(b, localSig)
	b = binary.LittleEndian.AppendUint16(b, versionNeeded(m, zip64))
	b = binary.LittleEndian.AppendUint16(b, flagDescriptor|flagUTF8)
	b = binary.LittleEndian.AppendUint16(b, uint16(m))
	b = binary.LittleEndian.AppendUint16(b, s.clock)
	b = binary.LittleEndian.AppendUint16(b, s.date)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = binary.LittleEndian.AppendUint32(b, size)
	b = binary.LittleEndian.AppendUint32(b, size)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(name)))
	b = binary.LittleEndian.AppendUint16(b, uint16(len(extra)))
	b = append(b, name...)
	return append(b, extra...)
}

// localDataOffset returns the length of the local header in b, which must
// hold at least its fixed part.
func localDataOffset(b []byte) (int64, error) {
	if len(b) < localHeaderLen || binary.LittleEndian.Uint32(b) != localSig {
		return 0, fmt.Errorf("%w: missing local header signature", errFormat)
	}
	nameLen := binary.LittleEndian.Uint16(b[26:])
	extraLen := binary.LittleEndian.Uint16(b[28:])
	return localHeaderLen + int64(nameLen) + int64(extraLen), nil
}

func appendDescriptor(b []byte, crc uint32, compressed, uncompressed uint64, zip64 bool) []byte {
	b = binary.LittleEndian.AppendUint32(b, descriptorSig)
	b = binary.LittleEndian.AppendUint32(b, crc)
	if zip64 {
		b = binary.LittleEndian.AppendUint64(b, compressed)
		return binary.LittleEndian.AppendUint64(b, uncompressed)
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(compressed))
	return binary.LittleEndian.AppendUint32(b, uint32(uncompressed))
}

// centralRecord is one central directory entry.
type centralRecord struct {
	creator      uint16
	needed       uint16
	flags        uint16
	method       codec.Method
	stamp        stamp
	crc32        uint32
	compressed   uint64
	uncompressed uint64
	disk         uint32
	offset       uint64
	external     uint32
	name         string
	// zip64 forces zip64 fields even when every value fits.
	zip64 bool
}

func (r *centralRecord) needsZip64() bool {
	return r.zip64 ||
		r.compressed >= uint32max ||
		r.uncompressed >= uint32max ||
		r.offset >= uint32max ||
		r.disk >= uint16max
}

func appendCentral(b []byte, r *centralRecord) []byte {
	zip64 := r.needsZip64()
	var extra []byte
	compressed, uncompressed, offset := uint32(r.compressed), uint32(r.uncompressed), uint32(r.offset)
	disk := uint16(r.disk)
	if zip64 {
		compressed, uncompressed, offset, disk = uint32max, uint32max, uint32max, uint16max
		extra = binary.LittleEndian.AppendUint16(extra, zip64ExtraID)
		extra = binary.LittleEndian.AppendUint16(extra, 28)
		extra = binary.LittleEndian.AppendUint64(extra, r.uncompressed)
		extra = binary.LittleEndian.AppendUint64(extra, r.compressed)
		extra = binary.LittleEndian.AppendUint64(extra, r.offset)
		extra = binary.LittleEndian.AppendUint32(extra, r.disk)
	}
	extra = appendExtTime(extra, r.stamp)
	needed := r.needed
	if zip64 && needed < version45 {
		needed = version45
	}

	b = binary.LittleEndian.AppendUint32(b, centralSig)
	b = binary.LittleEndian.AppendUint16(b, r.creator)
	b = binary.LittleEndian.AppendUint16(b, needed)
	b = binary.LittleEndian.AppendUint16(b, r.flags)
	b = binary.LittleEndian.AppendUint16(b, uint16(r.method))
	b = binary.LittleEndian.AppendUint16(b, r.stamp.clock)
	b = binary.LittleEndian.AppendUint16(b, r.stamp.date)
	b = binary.LittleEndian.AppendUint32(b, r.crc32)
	b = binary.LittleEndian.AppendUint32(b, compressed)
	b = binary.LittleEndian.AppendUint32(b, uncompressed)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(r.name)))
	b = binary.LittleEndian.AppendUint16(b, uint16(len(extra)))
	b = binary.LittleEndian.AppendUint16(b, 0)
	b = binary.LittleEndian.AppendUint16(b, disk)
	b = binary.LittleEndian.AppendUint16(b, 0)
	b = binary.LittleEndian.AppendUint32(b, r.external)
	b = binary.LittleEndian.AppendUint32(b, offset)
	b = append(b, r.name...)
	return append(b, extra...)
}

// parseCentral decodes the record at the start of b and returns the number
// of bytes it occupies.
func parseCentral(b []byte) (centralRecord, int, error) {
	var r centralRecord
	if len(b) < centralHeaderLen {
		return r, 0, fmt.Errorf("%w: central record needs %d bytes, have %d", errFormat, centralHeaderLen, len(b))
	}
	buf := readBuf(b[:centralHeaderLen])
	if buf.uint32() != centralSig {
		return r, 0, fmt.Errorf("%w: missing central record signature", errFormat)
	}
	r.creator = buf.uint16()
	r.needed = buf.uint16()
	r.flags = buf.uint16()
	r.method = codec.Method(buf.uint16())
	r.stamp.clock = buf.uint16()
	r.stamp.date = buf.uint16()
	r.crc32 = buf.uint32()
	compressed := buf.uint32()
	uncompressed := buf.uint32()
	nameLen := int(buf.uint16())
	extraLen := int(buf.uint16())
	commentLen := int(buf.uint16())
	disk := buf.uint16()
	buf.uint16()
	r.external = buf.uint32()
	offset := buf.uint32()

	n := centralHeaderLen + nameLen + extraLen + commentLen
	if len(b) < n {
		return r, 0, fmt.Errorf("%w: central record needs %d bytes, have %d", errFormat, n, len(b))
	}
	r.name = string(b[centralHeaderLen : centralHeaderLen+nameLen])
	r.compressed, r.uncompressed = uint64(compressed), uint64(uncompressed)
	r.offset, r.disk = uint64(offset), uint32(disk)

	extra := readBuf(b[centralHeaderLen+nameLen : centralHeaderLen+nameLen+extraLen])
	for len(extra) >= 4 {
		id := extra.uint16()
		size := int(extra.uint16())
		if size > len(extra) {
			return r, 0, fmt.Errorf("%w: extra field %#04x overruns record %q", errFormat, id, r.name)
		}
		field := extra.sub(size)
		switch id {
		case zip64ExtraID:
			r.zip64 = true
			if uncompressed == uint32max && len(field) >= 8 {
				r.uncompressed = field.uint64()
			}
			if compressed == uint32max && len(field) >= 8 {
				r.compressed = field.uint64()
			}
			if offset == uint32max && len(field) >= 8 {
				r.offset = field.uint64()
			}
			if disk == uint16max && len(field) >= 4 {
				r.disk = field.uint32()
			}
		case extTimeExtraID:
			if len(field) >= 5 && field.uint8()&extTimeMtime != 0 {
				r.stamp.unix = int64(field.uint32())
				r.stamp.hasUnix = true
			}
		}
	}
	return r, n, nil
}

// endRecord holds the end of central directory values, zip64 or classic.
type endRecord struct {
	disk        uint32
	cdDisk      uint32
	diskEntries uint64
	entries     uint64
	cdSize      uint64
	cdOffset    uint64
}

func (e endRecord) needsZip64() bool {
	return e.entries > MaxFiles ||
		e.cdSize >= uint32max ||
		e.cdOffset >= uint32max ||
		e.disk >= uint16max ||
		e.cdDisk >= uint16max
}

func clamp16(v uint64) uint16 {
	if v >= uint16max {
		return uint16max
	}
	return uint16(v)
}

func clamp32(v uint64) uint32 {
	if v >= uint32max {
		return uint32max
	}
	return uint32(v)
}

// endLength returns the size of the end records.
func endLength(zip64 bool) int64 {
	if zip64 {
		return zip64EndLen + zip64LocatorLen + endLen
	}
	return endLen
}

// appendEnd appends the end records. off is the disk offset at which they
// start; the zip64 end record, when present, is the first of them.
func appendEnd(b []byte, e endRecord, zip64 bool, off int64) []byte {
	if zip64 {
		b = binary.LittleEndian.AppendUint32(b, zip64EndSig)
		b = binary.LittleEndian.AppendUint64(b, zip64EndLen-12)
		b = binary.LittleEndian.AppendUint16(b, versionMade)
		b = binary.LittleEndian.AppendUint16(b, version45)
		b = binary.LittleEndian.AppendUint32(b, e.disk)
		b = binary.LittleEndian.AppendUint32(b, e.cdDisk)
		b = binary.LittleEndian.AppendUint64(b, e.diskEntries)
		b = binary.LittleEndian.AppendUint64(b, e.entries)
		b = binary.LittleEndian.AppendUint64(b, e.cdSize)
		b = binary.LittleEndian.AppendUint64(b, e.cdOffset)

		b = binary.LittleEndian.AppendUint32(b, zip64LocatorSig)
		b = binary.LittleEndian.AppendUint32(b, e.disk)
		b = binary.LittleEndian.AppendUint64(b, uint64(off))
		b = binary.LittleEndian.AppendUint32(b, e.disk+1)
	}
	b = binary.LittleEndian.AppendUint32(b, endSig)
	b = binary.LittleEndian.AppendUint16(b, clamp16(uint64(e.disk)))
	b = binary.LittleEndian.AppendUint16(b, clamp16(uint64(e.cdDisk)))
	b = binary.LittleEndian.AppendUint16(b, clamp16(e.diskEntries))
	b = binary.LittleEndian.AppendUint16(b, clamp16(e.entries))
	b = binary.LittleEndian.AppendUint32(b, clamp32(e.cdSize))
	b = binary.LittleEndian.AppendUint32(b, clamp32(e.cdOffset))
	return binary.LittleEndian.AppendUint16(b, 0)
}

// findEnd locates the classic end record in tail, the last bytes of a
// disk. It returns the record's index in tail, or -1.
func findEnd(tail []byte) int {
	for i := len(tail) - endLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:]) != endSig {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(tail[i+20:]))
		if i+endLen+commentLen == len(tail) {
			return i
		}
	}
	return -1
}

func parseEnd(b []byte) endRecord {
	buf := readBuf(b[4:endLen])
	var e endRecord
	e.disk = uint32(buf.uint16())
	e.cdDisk = uint32(buf.uint16())
	e.diskEntries = uint64(buf.uint16())
	e.entries = uint64(buf.uint16())
	e.cdSize = uint64(buf.uint32())
	e.cdOffset = uint64(buf.uint32())
	return e
}

// parseLocator returns the disk and offset of the zip64 end record.
func parseLocator(b []byte) (disk uint32, off uint64, ok bool) {
	if len(b) < zip64LocatorLen {
		return 0, 0, false
	}
	buf := readBuf(b[:zip64LocatorLen])
	if buf.uint32() != zip64LocatorSig {
		return 0, 0, false
	}
	disk = buf.uint32()
	off = buf.uint64()
	return disk, off, true
}

func parseZip64End(b []byte) (endRecord, error) {
	var e endRecord
	if len(b) < zip64EndLen {
		return e, fmt.Errorf("%w: short zip64 end record", errFormat)
	}
	buf := readBuf(b[:zip64EndLen])
	if buf.uint32() != zip64EndSig {
		return e, fmt.Errorf("%w: missing zip64 end record signature", errFormat)
	}
	buf.uint64()
	buf.uint16()
	buf.uint16()
	e.disk = buf.uint32()
	e.cdDisk = buf.uint32()
	e.diskEntries = buf.uint64()
	e.entries = buf.uint64()
	e.cdSize = buf.uint64()
	e.cdOffset = buf.uint64()
	return e, nil
}

// formatCodec reports the zip limits. Extended mode is zip64.
type formatCodec struct{}

var _ archive.FormatCodec = formatCodec{}

func (formatCodec) Format() string { return Format }

func (formatCodec) Signature() []byte { return localSigBytes }

func (formatCodec) NeedsExtendedMode(totalFiles int, maxFileSize, maxArchiveSize int64) bool {
	return totalFiles > MaxFiles || maxFileSize > zip64Threshold || maxArchiveSize >= uint32max
}

func (formatCodec) SupportsExtendedMode() bool { return true }

// methodFor maps a compression level to a method and its native level.
func methodFor(l types.CompressionLevel) (codec.Method, int) {
	switch l.Clamp() {
	case types.LevelNone:
		return codec.Store, 0
	case types.LevelLow:
		return codec.Deflate, 1
	case types.LevelNormal:
		return codec.Deflate, 6
	default:
		return codec.Zstd, 19
	}
}
