package streamctx

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/types"
)

func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

// failingStore is a lode.Store whose calls fail with configured errors.
type failingStore struct {
	putErr    error
	existsErr error
	putCalls  int
}

func (s *failingStore) Put(_ context.Context, _ string, _ io.Reader) error {
	s.putCalls++
	return s.putErr
}

func (s *failingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *failingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, s.existsErr
}

func (s *failingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (s *failingStore) Delete(_ context.Context, _ string) error { return nil }

func (s *failingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *failingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*failingStore)(nil)

func writeVolume(t *testing.T, c *StoreContext, n int, data string, truncate bool) error {
	t.Helper()
	w, err := c.OpenArchiveWriteStream(n, c.ArchiveName(n), truncate)
	if err != nil {
		t.Fatalf("OpenArchiveWriteStream: %v", err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatal(err)
	}
	return c.CloseArchiveWriteStream(n, c.ArchiveName(n), w)
}

func TestStoreContext_RoundTrip(t *testing.T) {
	store := lode.NewMemory()
	c := NewStoreContext(t.Context(), sharedFactory(store), "set.cab", nil)
	c.Prefix = "vols"

	if err := writeVolume(t, c, 0, "first", true); err != nil {
		t.Fatal(err)
	}
	if err := writeVolume(t, c, 1, "second", true); err != nil {
		t.Fatal(err)
	}
	// Truncating rewrite replaces the object.
	if err := writeVolume(t, c, 0, "first-again", true); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	r, err := c.OpenArchiveReadStream(0, c.ArchiveName(0), nil)
	if err != nil || r == nil {
		t.Fatalf("OpenArchiveReadStream = %v, %v", r, err)
	}
	got, _ := io.ReadAll(r)
	_ = c.CloseArchiveReadStream(0, c.ArchiveName(0), r)
	if string(got) != "first-again" {
		t.Errorf("volume 0 = %q, want %q", got, "first-again")
	}

	keys, err := c.Volumes()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(keys, "vols/set.cab") || !slices.Contains(keys, "vols/set.cab.1") {
		t.Errorf("Volumes() = %v", keys)
	}

	if err := c.RemoveArchive(1, c.ArchiveName(1)); err != nil {
		t.Fatal(err)
	}
	r, err = c.OpenArchiveReadStream(1, c.ArchiveName(1), nil)
	if err != nil || r != nil {
		t.Errorf("removed volume = %v, %v; want nil, nil", r, err)
	}
	if err := c.RemoveArchive(7, c.ArchiveName(7)); err != nil {
		t.Errorf("removing a missing volume: %v", err)
	}
}

func TestStoreContext_NoTruncateRefusesOverwrite(t *testing.T) {
	c := NewStoreContext(t.Context(), sharedFactory(lode.NewMemory()), "a.zip", nil)
	if err := writeVolume(t, c, 0, "x", true); err != nil {
		t.Fatal(err)
	}
	err := writeVolume(t, c, 0, "y", false)
	if !errors.Is(err, archive.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
}

func TestStoreContext_ClassifiesStoreErrors(t *testing.T) {
	fs := &failingStore{putErr: errors.New("SlowDown: please reduce your request rate")}
	c := NewStoreContext(t.Context(), sharedFactory(fs), "a.zip", nil)

	err := writeVolume(t, c, 0, "x", true)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v, want ErrThrottled", err)
	}
	if fs.putCalls != 1 {
		t.Errorf("putCalls = %d, want 1", fs.putCalls)
	}

	fs.existsErr = errors.New("AccessDenied")
	if _, err := c.OpenArchiveReadStream(0, "a.zip", nil); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("read err = %v, want ErrAccessDenied", err)
	}
}

func TestStoreContext_FactoryFailure(t *testing.T) {
	factory := func() (lode.Store, error) { return nil, errors.New("dial tcp: connection refused") }
	c := NewStoreContext(t.Context(), factory, "a.zip", nil)
	_, err := c.OpenArchiveWriteStream(0, "a.zip", true)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestStoreContext_DelegatesFiles(t *testing.T) {
	files := NewMemoryContext("unused")
	files.AddSource("a.txt", []byte("abc"), 0, time.Unix(1, 0))
	files.Resolve = func(name string, _ archive.OptionParams) (any, bool) {
		return name == archive.OptionForceExtendedMode, true
	}
	c := NewStoreContext(t.Context(), sharedFactory(lode.NewMemory()), "a.zip", files)

	rc, info, err := c.OpenFileReadStream("a.txt")
	if err != nil || info.Length != 3 {
		t.Fatalf("OpenFileReadStream = %+v, %v", info, err)
	}
	_ = c.CloseFileReadStream("a.txt", rc)

	w, err := c.OpenFileWriteStream("out.txt", 3, types.AttrArchive, time.Unix(2, 0))
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("abc"))
	if err := c.CloseFileWriteStream("out.txt", w, types.AttrArchive, time.Unix(2, 0)); err != nil {
		t.Fatal(err)
	}
	if _, ok := files.Output("out.txt"); !ok {
		t.Error("write not delegated to Files")
	}
	if v, ok := c.ResolveOption(archive.OptionForceExtendedMode, archive.OptionParams{}); !ok || v != true {
		t.Errorf("ResolveOption = %v, %v", v, ok)
	}

	noFiles := NewStoreContext(t.Context(), sharedFactory(lode.NewMemory()), "a.zip", nil)
	if _, _, err := noFiles.OpenFileReadStream("a.txt"); !errors.Is(err, archive.ErrSourceNotFound) {
		t.Errorf("err = %v, want ErrSourceNotFound", err)
	}
}
