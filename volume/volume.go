// Package volume implements multi-volume spanning: a Splitter that writes
// one archive across numbered volumes, rolling to the next volume when the
// current one is full, and a Source that walks existing volumes in order.
package volume

import "io"

// Segment is the contiguous run of one file's encoded bytes in one volume.
type Segment struct {
	// File is the 0-based index of the file in the archive.
	File int
	// Offset is the position of the first payload byte in the volume.
	Offset int64
	// Length is the number of payload bytes in this volume.
	Length int64
	// ContinuedFromPrev marks a segment that resumes a file begun earlier.
	ContinuedFromPrev bool
	// ContinuedToNext marks a segment whose file resumes in the next volume.
	ContinuedToNext bool
}

// Primary reports whether s is the file's first segment.
func (s Segment) Primary() bool { return !s.ContinuedFromPrev }

// Volume describes one volume being written or already written.
type Volume struct {
	// Number is the 0-based volume index.
	Number int
	// Name is the resolved volume name.
	Name string
	// BytesWritten counts every byte written, header and trailer included.
	BytesWritten int64
	// MaxBytes is the size cap; <= 0 means unbounded.
	MaxBytes int64
	// Continued reports whether the volume opens mid-file.
	Continued bool
	// Segments lists the file segments in volume order.
	Segments []Segment
}

// Bounded reports whether the volume has a size cap.
func (v *Volume) Bounded() bool { return v.MaxBytes > 0 }

// Layout supplies the format-specific parts of a volume.
type Layout interface {
	// Header returns the bytes that open v. v.Continued is already set.
	Header(v *Volume) []byte
	// Reserve returns how many trailer bytes v needs if it were finalized
	// with its current segments.
	Reserve(v *Volume) int64
	// Finalize writes the trailer of v. last reports whether v ends the archive.
	Finalize(w io.Writer, v *Volume, last bool) error
}
