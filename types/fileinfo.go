package types

import (
	"path"
	"strings"
	"time"
)

// FileAttributes is a platform-neutral file attribute bitmask.
// Bit values follow the cabinet attribute byte.
type FileAttributes uint16

// Attribute bits.
const (
	AttrReadOnly FileAttributes = 0x01
	AttrHidden   FileAttributes = 0x02
	AttrSystem   FileAttributes = 0x04
	AttrArchive  FileAttributes = 0x20
	AttrExec     FileAttributes = 0x40
)

// Has reports whether all bits of flag are set.
func (a FileAttributes) Has(flag FileAttributes) bool {
	return a&flag == flag
}

// String renders the attributes as a fixed-width flag string, e.g. "r-s-x".
func (a FileAttributes) String() string {
	flags := []struct {
		bit FileAttributes
		c   byte
	}{
		{AttrReadOnly, 'r'},
		{AttrHidden, 'h'},
		{AttrSystem, 's'},
		{AttrArchive, 'a'},
		{AttrExec, 'x'},
	}
	b := make([]byte, len(flags))
	for i, f := range flags {
		b[i] = '-'
		if a.Has(f.bit) {
			b[i] = f.c
		}
	}
	return string(b)
}

// SourceInfo describes a source file opened for packing.
type SourceInfo struct {
	Length        int64
	Attributes    FileAttributes
	LastWriteTime time.Time
}

// ArchiveFileInfo describes one file stored in an archive.
// Values are immutable once returned by an engine.
type ArchiveFileInfo struct {
	// Name is the archive-relative path, '/'-separated.
	Name string `json:"name" yaml:"name"`
	// FileNumber is the 0-based index of the entry within the archive.
	FileNumber int `json:"file_number" yaml:"file_number"`
	// Length is the uncompressed size in bytes.
	Length int64 `json:"length" yaml:"length"`
	// CompressedSize is the encoded size summed over all volumes.
	CompressedSize int64 `json:"compressed_size" yaml:"compressed_size"`
	// LastWriteTime is the modification time as recorded by the format.
	LastWriteTime time.Time `json:"last_write_time" yaml:"last_write_time"`
	// Attributes is the recorded attribute bitmask.
	Attributes FileAttributes `json:"attributes" yaml:"attributes"`
	// ArchiveNumber is the volume holding the entry's directory record.
	// The entry's data may continue into later volumes.
	ArchiveNumber int `json:"archive_number" yaml:"archive_number"`
	// ArchiveName is the resolved name of volume ArchiveNumber.
	ArchiveName string `json:"archive_name" yaml:"archive_name"`
	// Method is the codec method name used for the entry.
	Method string `json:"method" yaml:"method"`
}

// Dir returns the directory part of Name, or "" for top-level entries.
func (f ArchiveFileInfo) Dir() string {
	i := strings.LastIndexByte(f.Name, '/')
	if i < 0 {
		return ""
	}
	return f.Name[:i]
}

// Base returns the last element of Name.
func (f ArchiveFileInfo) Base() string {
	return path.Base(f.Name)
}

// CompressionRatio returns CompressedSize/Length, or 1 for empty entries.
func (f ArchiveFileInfo) CompressionRatio() float64 {
	if f.Length == 0 {
		return 1
	}
	return float64(f.CompressedSize) / float64(f.Length)
}
