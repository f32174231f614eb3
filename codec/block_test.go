package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func blockEncode(t *testing.T, m Method, blockSize int, src []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	bw := NewBlockWriter(&buf, m, 6, blockSize)
	// Uneven writes exercise buffering across block boundaries.
	for off := 0; off < len(src); {
		n := 1000
		if off+n > len(src) {
			n = len(src) - off
		}
		if _, err := bw.Write(src[off : off+n]); err != nil {
			t.Fatal(err)
		}
		off += n
	}
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}
	if bw.Written() != int64(buf.Len()) {
		t.Errorf("Written = %d, buffer holds %d", bw.Written(), buf.Len())
	}
	return buf.Bytes()
}

func TestBlockStream_RoundTrip(t *testing.T) {
	for _, m := range allMethods {
		for _, size := range []int{0, 1, MaxBlockSize - 1, MaxBlockSize, 3*MaxBlockSize + 17} {
			src := compressible(size)
			enc := blockEncode(t, m, MaxBlockSize, src)
			got, err := io.ReadAll(NewBlockReader(bytes.NewReader(enc), m))
			if err != nil {
				t.Fatalf("%s/%d: %v", m, size, err)
			}
			if !bytes.Equal(got, src) {
				t.Fatalf("%s/%d: mismatch", m, size)
			}
		}
	}
}

func TestBlockWriter_StoreFramedSize(t *testing.T) {
	src := random(20 * 1024)
	enc := blockEncode(t, Store, MaxBlockSize, src)
	if want := FramedSize(int64(len(src)), MaxBlockSize); int64(len(enc)) != want {
		t.Errorf("framed size = %d, want %d", len(enc), want)
	}
	if FramedSize(0, MaxBlockSize) != 0 {
		t.Error("empty input should frame to 0 bytes")
	}
	if FramedSize(MaxBlockSize+1, MaxBlockSize) != MaxBlockSize+1+2*BlockHeaderSize {
		t.Error("two blocks expected")
	}
}

func TestBlockWriter_SmallBlockSize(t *testing.T) {
	src := compressible(10_000)
	enc := blockEncode(t, LZ4, 512, src)
	got, err := io.ReadAll(NewBlockReader(bytes.NewReader(enc), LZ4))
	if err != nil || !bytes.Equal(got, src) {
		t.Fatalf("err=%v equal=%v", err, bytes.Equal(got, src))
	}
}

func TestBlockReader_Checksum(t *testing.T) {
	enc := blockEncode(t, Store, MaxBlockSize, random(100))
	enc[BlockHeaderSize+10] ^= 0xFF
	_, err := io.ReadAll(NewBlockReader(bytes.NewReader(enc), Store))
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}
}

func TestBlockReader_Truncated(t *testing.T) {
	enc := blockEncode(t, Deflate, MaxBlockSize, compressible(5000))
	for _, cut := range []int{3, BlockHeaderSize, len(enc) - 1} {
		_, err := io.ReadAll(NewBlockReader(bytes.NewReader(enc[:cut]), Deflate))
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("cut %d: err = %v, want io.ErrUnexpectedEOF", cut, err)
		}
	}
}
