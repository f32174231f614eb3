// Package streamctx provides archive.StreamContext implementations:
// FileContext for local directories, MemoryContext for in-process use, and
// StoreContext for volumes kept in a lode object store (filesystem, memory
// or S3).
package streamctx

import (
	"path"
	"strconv"
)

// VolumeNamer names volume n of an archive whose first volume is base.
type VolumeNamer func(base string, n int) string

// DefaultNamer names volumes base, base.1, base.2, ...
func DefaultNamer(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + "." + strconv.Itoa(n)
}

// NumberedNamer names volumes stem.001.ext, stem.002.ext, ... keeping the
// extension of base last.
func NumberedNamer(base string, n int) string {
	ext := path.Ext(base)
	stem := base[:len(base)-len(ext)]
	return stem + "." + pad3(n+1) + ext
}

func pad3(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
