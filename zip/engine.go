package zip

import (
	"errors"
	"io"

	"github.com/pithecene-io/strata/archive"
)

// Engine packs and unpacks zip archives, split across disks when a volume
// limit is given.
type Engine struct {
	opts  archive.Options
	guard archive.Guard
}

var _ archive.Engine = (*Engine)(nil)

// New creates a zip engine.
func New(opts ...archive.Option) *Engine {
	return &Engine{opts: archive.NewOptions(opts...)}
}

// Codec returns the format description of the engine.
func (e *Engine) Codec() archive.FormatCodec { return formatCodec{} }

// IsArchive implements archive.Engine. Both a plain archive and the first
// disk of a split archive are recognized.
func (e *Engine) IsArchive(r io.ReadSeeker) (bool, error) {
	return archive.MatchSignature(r, localSigBytes, splitSigBytes)
}

// FindArchiveOffset implements archive.Engine.
func (e *Engine) FindArchiveOffset(r io.ReadSeeker) (int64, error) {
	return archive.FindSignature(r, localSigBytes, splitSigBytes)
}

// Close implements archive.Engine.
func (e *Engine) Close() error {
	if err := e.guard.Close(); err != nil && !errors.Is(err, archive.ErrClosed) {
		return err
	}
	return nil
}
