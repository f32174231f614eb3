package reader

import (
	"context"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/types"
)

// StaticReader serves a fixed listing, e.g. one returned by Pack.
type StaticReader []types.ArchiveFileInfo

// Files implements Reader.
func (s StaticReader) Files(ctx context.Context, filter archive.Filter) ([]types.ArchiveFileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]types.ArchiveFileInfo, 0, len(s))
	for _, fi := range s {
		if filter.Accept(fi.Name) {
			out = append(out, fi)
		}
	}
	return out, nil
}

var _ Reader = StaticReader(nil)
