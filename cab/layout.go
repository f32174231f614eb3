package cab

import (
	"io"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/codec"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/volume"
)

// entry is what the directory records of one packed file carry.
type entry struct {
	name   string
	attrs  types.FileAttributes
	date   uint16
	clock  uint16
	length int64
	method codec.Method
}

// layout frames cabinet volumes for the splitter. entries is indexed by
// file number and filled before each file begins.
type layout struct {
	setID   uint16
	entries []*entry

	// Directory size of the segments counted so far in cacheVol.
	cacheVol   int
	cacheSegs  int
	cacheLast  int
	cacheBytes int64
}

var _ volume.Layout = (*layout)(nil)

func newLayout(setID uint16, files int) *layout {
	return &layout{setID: setID, entries: make([]*entry, files), cacheVol: -1}
}

func (l *layout) Header(v *volume.Volume) []byte {
	return header{prev: v.Continued, setID: l.setID, volume: uint16(v.Number)}.marshal()
}

// Reserve returns the directory and footer size for the segments of v.
func (l *layout) Reserve(v *volume.Volume) int64 {
	n := len(v.Segments)
	if v.Number != l.cacheVol || n < l.cacheSegs ||
		(l.cacheSegs > 0 && v.Segments[l.cacheSegs-1].File != l.cacheLast) {
		l.cacheVol, l.cacheSegs, l.cacheBytes = v.Number, 0, 0
	}
	for _, s := range v.Segments[l.cacheSegs:] {
		l.cacheBytes += recordLen(l.entries[s.File].name)
	}
	l.cacheSegs = n
	if n > 0 {
		l.cacheLast = v.Segments[n-1].File
	}
	return footerSize + l.cacheBytes
}

// Finalize writes the directory and footer of v.
func (l *layout) Finalize(w io.Writer, v *volume.Volume, last bool) error {
	if v.Number > MaxVolumes {
		return archive.Errorf(archive.ErrUnsupportedArchiveConstraint, "pack", v.Name,
			"cabinet sets hold at most %d volumes", MaxVolumes+1)
	}
	if len(v.Segments) > MaxFiles {
		return archive.Errorf(archive.ErrUnsupportedArchiveConstraint, "pack", v.Name,
			"%d segments exceed the %d record directory", len(v.Segments), MaxFiles)
	}
	var dir []byte
	for _, s := range v.Segments {
		e := l.entries[s.File]
		var flags uint8
		if s.ContinuedFromPrev {
			flags |= recordFromPrev
		}
		if s.ContinuedToNext {
			flags |= recordToNext
		}
		dir = appendRecord(dir, record{
			flags:      flags,
			fileNumber: uint32(s.File),
			attrs:      e.attrs,
			date:       e.date,
			clock:      e.clock,
			length:     uint32(e.length),
			method:     e.method,
			offset:     uint32(s.Offset),
			size:       uint32(s.Length),
			name:       e.name,
		})
	}
	if end := v.BytesWritten + int64(len(dir)) + footerSize; end > MaxCabinetSize {
		return archive.Errorf(archive.ErrUnsupportedArchiveConstraint, "pack", v.Name,
			"volume of %d bytes exceeds the %d byte cabinet limit", end, int64(MaxCabinetSize))
	}
	f := footer{
		dirOffset: uint32(v.BytesWritten),
		dirLength: uint32(len(dir)),
		dirCount:  uint16(len(v.Segments)),
		next:      !last,
	}
	if _, err := w.Write(dir); err != nil {
		return err
	}
	_, err := w.Write(f.marshal())
	return err
}
