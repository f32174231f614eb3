package cab

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/pithecene-io/strata/archive"
)

// Engine packs and unpacks cabinet sets.
type Engine struct {
	opts  archive.Options
	guard archive.Guard
	// setID returns the set id of a new archive.
	setID func() uint16
}

var _ archive.Engine = (*Engine)(nil)

// New creates a cabinet engine.
func New(opts ...archive.Option) *Engine {
	return &Engine{opts: archive.NewOptions(opts...), setID: randomSetID}
}

func randomSetID() uint16 {
	id := uuid.New()
	return binary.LittleEndian.Uint16(id[:2])
}

// Codec returns the format description of the engine.
func (e *Engine) Codec() archive.FormatCodec { return formatCodec{} }

// IsArchive implements archive.Engine.
func (e *Engine) IsArchive(r io.ReadSeeker) (bool, error) {
	return archive.MatchSignature(r, signature)
}

// FindArchiveOffset implements archive.Engine.
func (e *Engine) FindArchiveOffset(r io.ReadSeeker) (int64, error) {
	return archive.FindSignature(r, signature)
}

// Close implements archive.Engine.
func (e *Engine) Close() error {
	if err := e.guard.Close(); err != nil && !errors.Is(err, archive.ErrClosed) {
		return err
	}
	return nil
}
