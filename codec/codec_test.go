package codec

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
)

func compressible(n int) []byte {
	return []byte(strings.Repeat("strata volume payload ", n/22+1))[:n]
}

func random(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(7)).Read(b)
	return b
}

var allMethods = []Method{Store, Deflate, Zstd, LZ4}

func TestStreaming_RoundTrip(t *testing.T) {
	src := compressible(100_000)
	for _, m := range allMethods {
		t.Run(m.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(m, &buf, 6)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := w.Write(src); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			if m != Store && buf.Len() >= len(src) {
				t.Errorf("%s did not compress: %d >= %d", m, buf.Len(), len(src))
			}

			r, err := NewReader(m, &buf)
			if err != nil {
				t.Fatal(err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			_ = r.Close()
			if !bytes.Equal(got, src) {
				t.Fatalf("round trip mismatch: got %d bytes", len(got))
			}
		})
	}
}

func TestBlock_RoundTrip(t *testing.T) {
	for _, m := range allMethods {
		t.Run(m.String(), func(t *testing.T) {
			src := compressible(MaxBlockSize)
			out, ok, err := CompressBlock(m, 6, nil, src)
			if err != nil {
				t.Fatal(err)
			}
			if m == Store {
				if ok {
					t.Fatal("store should never report compression")
				}
				out = src
			} else if !ok {
				t.Fatalf("%s block did not compress", m)
			}
			got, err := DecompressBlock(m, nil, out, len(src))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, src) {
				t.Fatal("block mismatch")
			}
		})
	}
}

func TestCompressBlock_Incompressible(t *testing.T) {
	src := random(4096)
	for _, m := range []Method{Deflate, Zstd, LZ4} {
		if _, ok, err := CompressBlock(m, 9, nil, src); err != nil || ok {
			t.Errorf("%s: ok=%v err=%v, want raw fallback", m, ok, err)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	if _, err := NewWriter(Method(77), io.Discard, 0); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("NewWriter err = %v", err)
	}
	if _, err := NewReader(Method(77), nil); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("NewReader err = %v", err)
	}
	if _, err := ParseMethod("brotli"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("ParseMethod err = %v", err)
	}
	if m, err := ParseMethod("zstd"); err != nil || m != Zstd {
		t.Errorf("ParseMethod(zstd) = %v, %v", m, err)
	}
}
