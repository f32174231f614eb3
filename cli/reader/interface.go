package reader

import (
	"context"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/types"
)

// Reader abstracts an archive listing for CLI commands.
// Implementations must not write to the archive.
type Reader interface {
	Files(ctx context.Context, filter archive.Filter) ([]types.ArchiveFileInfo, error)
}

// ArchiveReader lists an archive through an engine and its stream context.
type ArchiveReader struct {
	Engine  archive.Engine
	Context archive.StreamContext
}

// Files implements Reader.
func (r *ArchiveReader) Files(ctx context.Context, filter archive.Filter) ([]types.ArchiveFileInfo, error) {
	return r.Engine.GetFileInfo(ctx, r.Context, filter)
}

var _ Reader = (*ArchiveReader)(nil)
