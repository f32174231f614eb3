package archive

import (
	"bytes"
	"errors"
	"io"
)

// MatchSignature reports whether r starts with one of sigs. It reads at
// most the longest signature and restores the position of r.
func MatchSignature(r io.ReadSeeker, sigs ...[]byte) (bool, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, err
	}
	defer func() { _, _ = r.Seek(pos, io.SeekStart) }()

	longest := 0
	for _, s := range sigs {
		longest = max(longest, len(s))
	}
	buf := make([]byte, longest)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	for _, s := range sigs {
		if len(s) > 0 && n >= len(s) && bytes.Equal(buf[:len(s)], s) {
			return true, nil
		}
	}
	return false, nil
}

const scanChunk = 64 * 1024

// FindSignature scans r from its current position for one of sigs starting
// on a 4-byte boundary relative to that position. It returns the offset of
// the match from the position, or -1, and restores the position of r.
func FindSignature(r io.ReadSeeker, sigs ...[]byte) (int64, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1, err
	}
	defer func() { _, _ = r.Seek(pos, io.SeekStart) }()

	longest := 0
	for _, s := range sigs {
		longest = max(longest, len(s))
	}
	if longest == 0 {
		return -1, nil
	}
	// Each round keeps a tail so signatures straddling a chunk are found.
	tail := (longest + 3) &^ 3
	buf := make([]byte, 0, scanChunk+tail)
	var base int64
	chunk := make([]byte, scanChunk)
	for {
		n, rerr := io.ReadFull(r, chunk)
		buf = append(buf, chunk[:n]...)
		eof := rerr != nil
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return -1, rerr
		}
		limit := len(buf)
		if !eof {
			limit -= tail
		}
		for off := 0; off < limit; off += 4 {
			for _, s := range sigs {
				if len(s) > 0 && off+len(s) <= len(buf) && bytes.Equal(buf[off:off+len(s)], s) {
					return base + int64(off), nil
				}
			}
		}
		if eof {
			return -1, nil
		}
		keep := len(buf) - limit
		copy(buf, buf[limit:])
		buf = buf[:keep]
		base += int64(limit)
	}
}
