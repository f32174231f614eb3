// Package codec provides the compression methods used by the archive
// formats, in a streaming face and a block face.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Method identifies a compression method. Store, Deflate and Zstd use their
// APPNOTE method ids; LZ4 has no registered zip id and is only recorded by
// the cabinet format.
type Method uint16

// Methods.
const (
	Store   Method = 0
	Deflate Method = 8
	Zstd    Method = 93
	LZ4     Method = 0x4C34
)

// Sentinel errors.
var (
	// ErrUnknownMethod indicates a method id outside the supported set.
	ErrUnknownMethod = errors.New("unknown compression method")
	// ErrChecksum indicates a block whose checksum does not match its data.
	ErrChecksum = errors.New("block checksum mismatch")
	// ErrCorruptBlock indicates a block that fails to decode.
	ErrCorruptBlock = errors.New("corrupt block")
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// Valid reports whether m is supported.
func (m Method) Valid() bool {
	switch m {
	case Store, Deflate, Zstd, LZ4:
		return true
	}
	return false
}

// ParseMethod maps a method name to a Method.
func ParseMethod(s string) (Method, error) {
	for _, m := range []Method{Store, Deflate, Zstd, LZ4} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NewWriter returns a streaming compressor writing to w. level is the
// method's native level (deflate 1-9, zstd 1-4 speed tiers, lz4 0 fast).
// Close flushes the stream but does not close w.
func NewWriter(m Method, w io.Writer, level int) (io.WriteCloser, error) {
	switch m {
	case Store:
		return nopCloser{w}, nil
	case Deflate:
		return flate.NewWriter(w, level)
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)), zstd.WithEncoderConcurrency(1))
	case LZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
			return nil, err
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, uint16(m))
	}
}

// NewReader returns a streaming decompressor reading from r.
// Close releases decoder state but does not close r.
func NewReader(m Method, r io.Reader) (io.ReadCloser, error) {
	switch m {
	case Store:
		return io.NopCloser(r), nil
	case Deflate:
		return flate.NewReader(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, uint16(m))
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func zstdLevel(level int) zstd.EncoderLevel {
	if level <= 0 {
		return zstd.SpeedDefault
	}
	return zstd.EncoderLevelFromZstd(level)
}

func lz4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= 0:
		return lz4.Fast
	case level >= 9:
		return lz4.Level9
	default:
		return lz4.CompressionLevel(1 << (8 + level))
	}
}

var (
	zstdMu      sync.Mutex
	zstdEncoder = map[int]*zstd.Encoder{}
	zstdDecoder *zstd.Decoder
)

func blockEncoder(level int) (*zstd.Encoder, error) {
	zstdMu.Lock()
	defer zstdMu.Unlock()
	if enc, ok := zstdEncoder[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	zstdEncoder[level] = enc
	return enc, nil
}

func blockDecoder() (*zstd.Decoder, error) {
	zstdMu.Lock()
	defer zstdMu.Unlock()
	if zstdDecoder != nil {
		return zstdDecoder, nil
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	zstdDecoder = dec
	return dec, nil
}

// CompressBlock compresses src as one independent block, appending to dst.
// It returns (dst, false) unchanged when compression does not shrink src.
func CompressBlock(m Method, level int, dst, src []byte) ([]byte, bool, error) {
	switch m {
	case Store:
		return dst, false, nil
	case Deflate:
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, level)
		if err != nil {
			return dst, false, err
		}
		if _, err := fw.Write(src); err != nil {
			return dst, false, err
		}
		if err := fw.Close(); err != nil {
			return dst, false, err
		}
		if buf.Len() >= len(src) {
			return dst, false, nil
		}
		return append(dst, buf.Bytes()...), true, nil
	case Zstd:
		enc, err := blockEncoder(level)
		if err != nil {
			return dst, false, err
		}
		out := enc.EncodeAll(src, nil)
		if len(out) >= len(src) {
			return dst, false, nil
		}
		return append(dst, out...), true, nil
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, buf, nil)
		if err != nil {
			return dst, false, err
		}
		if n == 0 || n >= len(src) {
			return dst, false, nil
		}
		return append(dst, buf[:n]...), true, nil
	default:
		return dst, false, fmt.Errorf("%w: %d", ErrUnknownMethod, uint16(m))
	}
}

// DecompressBlock decodes a block produced by CompressBlock into exactly
// size bytes appended to dst.
func DecompressBlock(m Method, dst, src []byte, size int) ([]byte, error) {
	switch m {
	case Store:
		if len(src) != size {
			return dst, fmt.Errorf("%w: stored block is %d bytes, want %d", ErrCorruptBlock, len(src), size)
		}
		return append(dst, src...), nil
	case Deflate:
		fr := flate.NewReader(bytes.NewReader(src))
		defer fr.Close()
		out := make([]byte, size)
		if _, err := io.ReadFull(fr, out); err != nil {
			return dst, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
		}
		return append(dst, out...), nil
	case Zstd:
		dec, err := blockDecoder()
		if err != nil {
			return dst, err
		}
		out, err := dec.DecodeAll(src, make([]byte, 0, size))
		if err != nil {
			return dst, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
		}
		if len(out) != size {
			return dst, fmt.Errorf("%w: decoded %d bytes, want %d", ErrCorruptBlock, len(out), size)
		}
		return append(dst, out...), nil
	case LZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(src, out)
		if err != nil {
			return dst, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
		}
		if n != size {
			return dst, fmt.Errorf("%w: decoded %d bytes, want %d", ErrCorruptBlock, n, size)
		}
		return append(dst, out...), nil
	default:
		return dst, fmt.Errorf("%w: %d", ErrUnknownMethod, uint16(m))
	}
}
