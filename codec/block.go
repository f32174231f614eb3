package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Block framing constants.
const (
	// MaxBlockSize is the largest uncompressed block.
	MaxBlockSize = 32 * 1024
	// BlockHeaderSize is the size of a block header in bytes.
	BlockHeaderSize = 8
)

// Block header layout (little-endian):
//
//	checksum     u32  low 32 bits of xxhash64 over the uncompressed data
//	compressed   u16  encoded length; 0 marks a block stored raw
//	uncompressed u16  decoded length, 1..MaxBlockSize
func putHeader(dst []byte, sum uint32, compressed, uncompressed int) {
	binary.LittleEndian.PutUint32(dst[0:4], sum)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(compressed))
	binary.LittleEndian.PutUint16(dst[6:8], uint16(uncompressed))
}

// Checksum returns the block checksum of p.
func Checksum(p []byte) uint32 {
	return uint32(xxhash.Sum64(p))
}

// FramedSize returns the framed size of n uncompressed bytes when every
// block is stored raw.
func FramedSize(n int64, blockSize int) int64 {
	if n <= 0 {
		return 0
	}
	blocks := (n + int64(blockSize) - 1) / int64(blockSize)
	return n + blocks*BlockHeaderSize
}

// BlockWriter splits a stream into independently compressed blocks.
// Close flushes the final block; it does not close the underlying writer.
type BlockWriter struct {
	w         io.Writer
	method    Method
	level     int
	blockSize int
	buf       []byte
	out       []byte
	written   int64
}

// NewBlockWriter creates a block writer. blockSize outside (0, MaxBlockSize]
// falls back to MaxBlockSize.
func NewBlockWriter(w io.Writer, m Method, level, blockSize int) *BlockWriter {
	if blockSize <= 0 || blockSize > MaxBlockSize {
		blockSize = MaxBlockSize
	}
	return &BlockWriter{
		w:         w,
		method:    m,
		level:     level,
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
	}
}

// Write buffers p, emitting a block each time blockSize bytes accumulate.
func (b *BlockWriter) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		room := b.blockSize - len(b.buf)
		if room > len(p) {
			room = len(p)
		}
		b.buf = append(b.buf, p[:room]...)
		p = p[room:]
		n += room
		if len(b.buf) == b.blockSize {
			if err := b.flush(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Close emits any buffered bytes as a final block.
func (b *BlockWriter) Close() error {
	if len(b.buf) == 0 {
		return nil
	}
	return b.flush()
}

// Written returns the framed bytes emitted so far.
func (b *BlockWriter) Written() int64 { return b.written }

func (b *BlockWriter) flush() error {
	src := b.buf
	b.out = append(b.out[:0], make([]byte, BlockHeaderSize)...)
	out, ok, err := CompressBlock(b.method, b.level, b.out, src)
	if err != nil {
		return fmt.Errorf("compress block: %w", err)
	}
	compressed := 0
	if ok {
		b.out = out
		compressed = len(out) - BlockHeaderSize
	} else {
		b.out = append(b.out, src...)
	}
	putHeader(b.out, Checksum(src), compressed, len(src))
	if _, err := b.w.Write(b.out); err != nil {
		return err
	}
	b.written += int64(len(b.out))
	b.buf = b.buf[:0]
	return nil
}

// BlockReader decodes a stream produced by BlockWriter.
type BlockReader struct {
	r      io.Reader
	method Method
	block  []byte
	pos    int
	hdr    [BlockHeaderSize]byte
	data   []byte
}

// NewBlockReader creates a block reader. The stream must end exactly at a
// block boundary.
func NewBlockReader(r io.Reader, m Method) *BlockReader {
	return &BlockReader{r: r, method: m}
}

// Read implements io.Reader. Checksum failures return an error wrapping
// ErrChecksum; truncated blocks return io.ErrUnexpectedEOF.
func (b *BlockReader) Read(p []byte) (int, error) {
	for b.pos >= len(b.block) {
		if err := b.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.block[b.pos:])
	b.pos += n
	return n, nil
}

func (b *BlockReader) next() error {
	if _, err := io.ReadFull(b.r, b.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}
	sum := binary.LittleEndian.Uint32(b.hdr[0:4])
	compressed := int(binary.LittleEndian.Uint16(b.hdr[4:6]))
	size := int(binary.LittleEndian.Uint16(b.hdr[6:8]))
	if size == 0 || size > MaxBlockSize {
		return fmt.Errorf("%w: block size %d", ErrCorruptBlock, size)
	}
	raw := compressed == 0
	if raw {
		compressed = size
	}
	if cap(b.data) < compressed {
		b.data = make([]byte, compressed)
	}
	b.data = b.data[:compressed]
	if _, err := io.ReadFull(b.r, b.data); err != nil {
		return io.ErrUnexpectedEOF
	}
	var err error
	if raw {
		b.block = append(b.block[:0], b.data...)
	} else {
		b.block, err = DecompressBlock(b.method, b.block[:0], b.data, size)
		if err != nil {
			return err
		}
	}
	if Checksum(b.block) != sum {
		return ErrChecksum
	}
	b.pos = 0
	return nil
}
