package iox

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := &CountingWriter{W: &buf}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("de"))
	if cw.N != 5 || buf.String() != "abcde" {
		t.Fatalf("N = %d, buf = %q", cw.N, buf.String())
	}
}

func TestNopClosers(t *testing.T) {
	if err := NopWriteCloser(&bytes.Buffer{}).Close(); err != nil {
		t.Fatalf("NopWriteCloser.Close: %v", err)
	}
	if err := NopReadSeekCloser(bytes.NewReader(nil)).Close(); err != nil {
		t.Fatalf("NopReadSeekCloser.Close: %v", err)
	}
}

func TestSize_RestoresPosition(t *testing.T) {
	r := bytes.NewReader([]byte("0123456789"))
	if _, err := r.Seek(3, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	n, err := Size(r)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("Size = %d, want 10", n)
	}
	pos, _ := r.Seek(0, io.SeekCurrent)
	if pos != 3 {
		t.Errorf("position = %d, want 3", pos)
	}
}
