package streamctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/types"
)

// StoreContext keeps volumes as objects in a lode.Store and delegates file
// sources and destinations to Files.
//
// Objects are whole-object immutable: a write stream buffers the volume and
// Puts it on close, replacing any existing object of the same key.
type StoreContext struct {
	// Files handles OpenFile*/CloseFile* calls. Typically a FileContext.
	Files archive.StreamContext
	// Prefix is prepended to every object key.
	Prefix string
	// BaseName is the name of volume 0.
	BaseName string
	// Namer names later volumes. Defaults to DefaultNamer.
	Namer  VolumeNamer
	Logger *log.Logger

	ctx     context.Context
	factory lode.StoreFactory
	store   lode.Store
}

var (
	_ archive.StreamContext  = (*StoreContext)(nil)
	_ archive.OptionResolver = (*StoreContext)(nil)
	_ archive.VolumeRemover  = (*StoreContext)(nil)
)

// NewStoreContext creates a store context. The store is created lazily from
// factory on first use.
func NewStoreContext(ctx context.Context, factory lode.StoreFactory, baseName string, files archive.StreamContext) *StoreContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &StoreContext{
		Files:    files,
		BaseName: baseName,
		ctx:      ctx,
		factory:  factory,
	}
}

// NewFSStoreContext stores volumes below root on the local filesystem.
func NewFSStoreContext(ctx context.Context, root, baseName string, files archive.StreamContext) *StoreContext {
	return NewStoreContext(ctx, lode.NewFSFactory(root), baseName, files)
}

func (c *StoreContext) getStore() (lode.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	if c.factory == nil {
		return nil, errors.New("store context has no store factory")
	}
	s, err := c.factory()
	if err != nil {
		return nil, WrapStorageError(err, "init", c.Prefix)
	}
	c.store = s
	return s, nil
}

func (c *StoreContext) key(name string) string {
	if c.Prefix == "" {
		return name
	}
	return path.Join(c.Prefix, name)
}

// ArchiveName implements archive.StreamContext.
func (c *StoreContext) ArchiveName(n int) string {
	namer := c.Namer
	if namer == nil {
		namer = DefaultNamer
	}
	return namer(c.BaseName, n)
}

// objectWriter buffers a volume until CloseArchiveWriteStream uploads it.
type objectWriter struct {
	bytes.Buffer
	truncate bool
	closed   bool
}

func (w *objectWriter) Close() error {
	w.closed = true
	return nil
}

// OpenArchiveWriteStream implements archive.StreamContext.
func (c *StoreContext) OpenArchiveWriteStream(_ int, _ string, truncate bool) (io.WriteCloser, error) {
	if _, err := c.getStore(); err != nil {
		return nil, err
	}
	return &objectWriter{truncate: truncate}, nil
}

// CloseArchiveWriteStream implements archive.StreamContext.
func (c *StoreContext) CloseArchiveWriteStream(_ int, name string, stream io.WriteCloser) error {
	w, ok := stream.(*objectWriter)
	if !ok {
		return archive.Errorf(archive.ErrStorage, "close", name, "foreign stream %T", stream)
	}
	_ = w.Close()
	store, err := c.getStore()
	if err != nil {
		return err
	}
	key := c.key(name)
	exists, err := store.Exists(c.ctx, key)
	if err != nil {
		return WrapStorageError(err, "exists", key)
	}
	if exists {
		if !w.truncate {
			return archive.Errorf(archive.ErrStorage, "put", key, "object exists and truncate was not requested")
		}
		if err := store.Delete(c.ctx, key); err != nil {
			return WrapStorageError(err, "delete", key)
		}
	}
	start := time.Now()
	if err := store.Put(c.ctx, key, bytes.NewReader(w.Bytes())); err != nil {
		return WrapStorageError(err, "put", key)
	}
	c.Logger.Debug("uploaded volume", map[string]any{
		"key":         key,
		"bytes":       w.Len(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// OpenArchiveReadStream implements archive.StreamContext.
// A missing object yields a nil stream.
func (c *StoreContext) OpenArchiveReadStream(_ int, name string, _ archive.Engine) (io.ReadSeekCloser, error) {
	store, err := c.getStore()
	if err != nil {
		return nil, err
	}
	key := c.key(name)
	exists, err := store.Exists(c.ctx, key)
	if err != nil {
		return nil, WrapStorageError(err, "exists", key)
	}
	if !exists {
		return nil, nil
	}
	rc, err := store.Get(c.ctx, key)
	if err != nil {
		return nil, WrapStorageError(err, "get", key)
	}
	defer iox.DiscardClose(rc)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, WrapStorageError(err, "read", key)
	}
	return iox.NopReadSeekCloser(bytes.NewReader(data)), nil
}

// CloseArchiveReadStream implements archive.StreamContext.
func (c *StoreContext) CloseArchiveReadStream(_ int, _ string, stream io.ReadSeekCloser) error {
	return stream.Close()
}

// RemoveArchive implements archive.VolumeRemover.
// A volume that was never uploaded is not an error.
func (c *StoreContext) RemoveArchive(_ int, name string) error {
	store, err := c.getStore()
	if err != nil {
		return err
	}
	key := c.key(name)
	exists, err := store.Exists(c.ctx, key)
	if err != nil {
		return WrapStorageError(err, "exists", key)
	}
	if !exists {
		return nil
	}
	if err := store.Delete(c.ctx, key); err != nil {
		return WrapStorageError(err, "delete", key)
	}
	return nil
}

// Volumes lists stored object keys below Prefix.
func (c *StoreContext) Volumes() ([]string, error) {
	store, err := c.getStore()
	if err != nil {
		return nil, err
	}
	keys, err := store.List(c.ctx, c.Prefix)
	if err != nil {
		return nil, WrapStorageError(err, "list", c.Prefix)
	}
	return keys, nil
}

func (c *StoreContext) files() (archive.StreamContext, error) {
	if c.Files == nil {
		return nil, fmt.Errorf("store context %q has no file context", c.BaseName)
	}
	return c.Files, nil
}

// OpenFileReadStream implements archive.StreamContext.
func (c *StoreContext) OpenFileReadStream(p string) (io.ReadCloser, types.SourceInfo, error) {
	f, err := c.files()
	if err != nil {
		return nil, types.SourceInfo{}, archive.NewError(archive.ErrSourceNotFound, "open", p, err)
	}
	return f.OpenFileReadStream(p)
}

// CloseFileReadStream implements archive.StreamContext.
func (c *StoreContext) CloseFileReadStream(p string, stream io.ReadCloser) error {
	f, err := c.files()
	if err != nil {
		return err
	}
	return f.CloseFileReadStream(p, stream)
}

// OpenFileWriteStream implements archive.StreamContext.
func (c *StoreContext) OpenFileWriteStream(p string, length int64, attrs types.FileAttributes, mtime time.Time) (io.WriteCloser, error) {
	f, err := c.files()
	if err != nil {
		return nil, err
	}
	return f.OpenFileWriteStream(p, length, attrs, mtime)
}

// CloseFileWriteStream implements archive.StreamContext.
func (c *StoreContext) CloseFileWriteStream(p string, stream io.WriteCloser, attrs types.FileAttributes, mtime time.Time) error {
	f, err := c.files()
	if err != nil {
		return err
	}
	return f.CloseFileWriteStream(p, stream, attrs, mtime)
}

// ResolveOption implements archive.OptionResolver by delegating to Files.
func (c *StoreContext) ResolveOption(name string, params archive.OptionParams) (any, bool) {
	if r, ok := c.Files.(archive.OptionResolver); ok {
		return r.ResolveOption(name, params)
	}
	return nil, false
}
