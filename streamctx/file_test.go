package streamctx

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/types"
)

func newTestFileContext(t *testing.T) *FileContext {
	t.Helper()
	root := t.TempDir()
	c := NewFileContext(filepath.Join(root, "vols"), "data.cab")
	c.SourceDir = filepath.Join(root, "src")
	c.TargetDir = filepath.Join(root, "out")
	if err := os.MkdirAll(c.SourceDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFileContext_VolumeRoundTrip(t *testing.T) {
	c := newTestFileContext(t)

	w, err := c.OpenArchiveWriteStream(1, c.ArchiveName(1), true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("volume-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := c.CloseArchiveWriteStream(1, c.ArchiveName(1), w); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(c.ArchiveDir, "data.cab.1")); err != nil {
		t.Fatalf("volume not on disk: %v", err)
	}

	r, err := c.OpenArchiveReadStream(1, c.ArchiveName(1), nil)
	if err != nil || r == nil {
		t.Fatalf("OpenArchiveReadStream = %v, %v", r, err)
	}
	got, _ := io.ReadAll(r)
	if err := c.CloseArchiveReadStream(1, c.ArchiveName(1), r); err != nil {
		t.Fatal(err)
	}
	if string(got) != "volume-bytes" {
		t.Errorf("read back %q", got)
	}

	missing, err := c.OpenArchiveReadStream(5, c.ArchiveName(5), nil)
	if err != nil || missing != nil {
		t.Errorf("missing volume = %v, %v; want nil, nil", missing, err)
	}

	if err := c.RemoveArchive(1, c.ArchiveName(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(c.ArchiveDir, "data.cab.1")); !os.IsNotExist(err) {
		t.Errorf("volume still present after RemoveArchive: %v", err)
	}
}

func TestFileContext_SourceInfo(t *testing.T) {
	c := newTestFileContext(t)
	p := filepath.Join(c.SourceDir, "bin", "tool")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0o555); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	rc, info, err := c.OpenFileReadStream("bin/tool")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.CloseFileReadStream("bin/tool", rc) }()

	if info.Length != 10 {
		t.Errorf("Length = %d, want 10", info.Length)
	}
	if !info.Attributes.Has(types.AttrExec) || !info.Attributes.Has(types.AttrReadOnly) {
		t.Errorf("Attributes = %v, want exec and readonly", info.Attributes)
	}
	if !info.LastWriteTime.Equal(mtime) {
		t.Errorf("LastWriteTime = %v, want %v", info.LastWriteTime, mtime)
	}
}

func TestFileContext_SourceNotFound(t *testing.T) {
	c := newTestFileContext(t)
	_, _, err := c.OpenFileReadStream("nope.txt")
	if !errors.Is(err, archive.ErrSourceNotFound) {
		t.Fatalf("err = %v, want ErrSourceNotFound", err)
	}
	var ae *archive.Error
	if !errors.As(err, &ae) || ae.Name != "nope.txt" {
		t.Errorf("error should name the path: %v", err)
	}
}

func TestFileContext_ExtractAppliesAttributes(t *testing.T) {
	c := newTestFileContext(t)
	mtime := time.Date(2023, 7, 4, 8, 30, 0, 0, time.UTC)
	attrs := types.AttrReadOnly | types.AttrExec

	w, err := c.OpenFileWriteStream("deep/dir/run.sh", 4, attrs, mtime)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("echo"))
	if err := c.CloseFileWriteStream("deep/dir/run.sh", w, attrs, mtime); err != nil {
		t.Fatal(err)
	}

	st, err := os.Stat(filepath.Join(c.TargetDir, "deep", "dir", "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o555 {
		t.Errorf("mode = %v, want 0555", st.Mode().Perm())
	}
	if !st.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", st.ModTime(), mtime)
	}

	// Re-extracting over a read-only file succeeds.
	w, err = c.OpenFileWriteStream("deep/dir/run.sh", 4, 0, mtime)
	if err != nil {
		t.Fatalf("reopen read-only target: %v", err)
	}
	_ = c.CloseFileWriteStream("deep/dir/run.sh", w, 0, mtime)
}

func TestFileContext_RejectsEscape(t *testing.T) {
	c := newTestFileContext(t)
	_, err := c.OpenFileWriteStream("../outside", 0, 0, time.Time{})
	if !errors.Is(err, archive.ErrIllegalArchiveName) {
		t.Fatalf("err = %v, want ErrIllegalArchiveName", err)
	}
}

func TestFileContext_RetryThenFileInUse(t *testing.T) {
	c := newTestFileContext(t)
	m := metrics.NewCollector("pack", "cab", "fs", "")
	c.Metrics = m

	attempts := 0
	var waited time.Duration
	c.openFile = func(name string, _ int, _ os.FileMode) (*os.File, error) {
		attempts++
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EBUSY}
	}
	c.sleep = func(d time.Duration) { waited += d }

	_, err := c.OpenArchiveWriteStream(0, c.ArchiveName(0), true)
	if !errors.Is(err, archive.ErrFileInUse) {
		t.Fatalf("err = %v, want ErrFileInUse", err)
	}
	if attempts != DefaultRetryPolicy.Attempts {
		t.Errorf("attempts = %d, want %d", attempts, DefaultRetryPolicy.Attempts)
	}
	if waited > time.Second || waited != DefaultRetryPolicy.MaxWait() {
		t.Errorf("waited %v, want %v (<= 1s)", waited, DefaultRetryPolicy.MaxWait())
	}
	if got := m.Snapshot().OpenRetries; got != int64(attempts-1) {
		t.Errorf("OpenRetries = %d, want %d", got, attempts-1)
	}
}

func TestFileContext_RetryRecovers(t *testing.T) {
	c := newTestFileContext(t)
	attempts := 0
	c.openFile = func(name string, flag int, perm os.FileMode) (*os.File, error) {
		attempts++
		if attempts < 3 {
			return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EBUSY}
		}
		return os.OpenFile(name, flag, perm)
	}
	c.sleep = func(time.Duration) {}

	w, err := c.OpenArchiveWriteStream(0, c.ArchiveName(0), true)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	_ = c.CloseArchiveWriteStream(0, c.ArchiveName(0), w)
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestFileContext_NonBusyErrorNotRetried(t *testing.T) {
	c := newTestFileContext(t)
	attempts := 0
	c.openFile = func(name string, _ int, _ os.FileMode) (*os.File, error) {
		attempts++
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EACCES}
	}
	_, err := c.OpenArchiveWriteStream(0, c.ArchiveName(0), true)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestMemoryContext_Basics(t *testing.T) {
	m := NewMemoryContext("a.zip")
	m.AddSource("x", []byte("hello"), types.AttrHidden, time.Unix(100, 0))
	m.MaxVolumes = 1

	rc, info, err := m.OpenFileReadStream("x")
	if err != nil || info.Length != 5 || info.Attributes != types.AttrHidden {
		t.Fatalf("OpenFileReadStream = %+v, %v", info, err)
	}
	_ = m.CloseFileReadStream("x", rc)

	w, _ := m.OpenArchiveWriteStream(0, m.ArchiveName(0), true)
	_, _ = w.Write([]byte("vol"))
	_ = m.CloseArchiveWriteStream(0, m.ArchiveName(0), w)
	if b, ok := m.Volume(0); !ok || !bytes.Equal(b, []byte("vol")) {
		t.Errorf("Volume(0) = %q, %v", b, ok)
	}
	if w, err := m.OpenArchiveWriteStream(1, m.ArchiveName(1), true); w != nil || err != nil {
		t.Errorf("volume beyond MaxVolumes = %v, %v", w, err)
	}
	if m.OpenStreams() != 0 {
		t.Errorf("OpenStreams = %d, want 0", m.OpenStreams())
	}
	if _, _, err := m.OpenFileReadStream("missing"); !errors.Is(err, archive.ErrSourceNotFound) {
		t.Errorf("missing source err = %v", err)
	}
}
