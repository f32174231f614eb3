package zip

import (
	"io"

	"github.com/pithecene-io/strata/volume"
)

// layout opens the first disk of a split archive with the split
// signature. Disks carry no trailer of their own; the end records are
// written as atomic records on the last disk.
type layout struct{}

var _ volume.Layout = layout{}

func (layout) Header(v *volume.Volume) []byte {
	if v.Number == 0 && v.Bounded() {
		return splitSigBytes
	}
	return nil
}

func (layout) Reserve(*volume.Volume) int64 { return 0 }

func (layout) Finalize(io.Writer, *volume.Volume, bool) error { return nil }
