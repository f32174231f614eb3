package archive

import (
	"io"
	"time"

	"github.com/pithecene-io/strata/types"
)

// StreamContext supplies every stream an engine reads or writes.
// The engine never touches storage directly; it calls the context in a fixed,
// synchronous order and hands each returned stream back to the matching
// close method exactly once.
type StreamContext interface {
	// ArchiveName resolves the name of volume archiveNumber.
	// It must be deterministic for the duration of one operation.
	ArchiveName(archiveNumber int) string

	// OpenArchiveWriteStream opens volume archiveNumber for writing.
	// A nil stream with a nil error refuses further volumes; the engine then
	// fails with ErrOutOfVolumes.
	OpenArchiveWriteStream(archiveNumber int, proposedName string, truncate bool) (io.WriteCloser, error)

	// CloseArchiveWriteStream releases a stream from OpenArchiveWriteStream.
	CloseArchiveWriteStream(archiveNumber int, name string, stream io.WriteCloser) error

	// OpenArchiveReadStream opens volume archiveNumber for reading.
	// A nil stream with a nil error marks the volume unavailable; the engine
	// then fails with ErrArchiveNotFound naming proposedName.
	OpenArchiveReadStream(archiveNumber int, proposedName string, engine Engine) (io.ReadSeekCloser, error)

	// CloseArchiveReadStream releases a stream from OpenArchiveReadStream.
	CloseArchiveReadStream(archiveNumber int, name string, stream io.ReadSeekCloser) error

	// OpenFileReadStream opens a source file during Pack.
	// Implementations return an error matching ErrSourceNotFound when path
	// does not resolve.
	OpenFileReadStream(path string) (io.ReadCloser, types.SourceInfo, error)

	// CloseFileReadStream releases a stream from OpenFileReadStream.
	CloseFileReadStream(path string, stream io.ReadCloser) error

	// OpenFileWriteStream opens a destination during Unpack.
	// A nil stream with a nil error skips the entry.
	OpenFileWriteStream(path string, length int64, attrs types.FileAttributes, lastWriteTime time.Time) (io.WriteCloser, error)

	// CloseFileWriteStream applies attrs and lastWriteTime and releases the stream.
	CloseFileWriteStream(path string, stream io.WriteCloser, attrs types.FileAttributes, lastWriteTime time.Time) error
}

// Option names understood by ResolveOption.
const (
	// OptionForceExtendedMode asks for the extended representation of one
	// entry. The value is a bool.
	OptionForceExtendedMode = "forceExtendedMode"

	// OptionCompressionLevel overrides the engine level for one entry.
	// The value is a types.CompressionLevel.
	OptionCompressionLevel = "compressionLevel"
)

// OptionParams identifies what an option is being resolved for.
type OptionParams struct {
	// Path is the source path of the entry.
	Path string
	// Name is the normalized archive name of the entry.
	Name string
	// Format is the engine format ("cab" or "zip").
	Format string
}

// OptionResolver is an optional StreamContext extension that lets a caller
// steer format choices per entry. Unknown names must return (nil, false).
type OptionResolver interface {
	ResolveOption(name string, params OptionParams) (any, bool)
}

// VolumeRemover is an optional StreamContext extension used by the cancel
// policy to discard a partially written volume.
type VolumeRemover interface {
	RemoveArchive(archiveNumber int, name string) error
}

// ResolveBool resolves a bool option, returning def when absent or mistyped.
func ResolveBool(sc StreamContext, name string, params OptionParams, def bool) bool {
	r, ok := sc.(OptionResolver)
	if !ok {
		return def
	}
	v, ok := r.ResolveOption(name, params)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// ResolveLevel resolves a per-entry compression level override.
// The returned level is clamped.
func ResolveLevel(sc StreamContext, params OptionParams, def types.CompressionLevel) types.CompressionLevel {
	r, ok := sc.(OptionResolver)
	if !ok {
		return def.Clamp()
	}
	v, ok := r.ResolveOption(OptionCompressionLevel, params)
	if !ok {
		return def.Clamp()
	}
	switch lv := v.(type) {
	case types.CompressionLevel:
		return lv.Clamp()
	case int:
		return types.CompressionLevel(lv).Clamp()
	default:
		return def.Clamp()
	}
}
