package streamctx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/types"
)

// FileContext is the default filesystem-backed stream context.
//
// Sources resolve relative to SourceDir, extracted files relative to
// TargetDir, and volumes live in ArchiveDir named by Namer from BaseName.
// Volume opens that fail on a transient lock are retried per Retry before
// surfacing archive.ErrFileInUse.
type FileContext struct {
	SourceDir  string
	TargetDir  string
	ArchiveDir string
	BaseName   string
	Namer      VolumeNamer
	Retry      RetryPolicy
	Logger     *log.Logger
	Metrics    *metrics.Collector

	// Resolve answers ResolveOption when set.
	Resolve func(name string, params archive.OptionParams) (any, bool)

	openFile func(name string, flag int, perm os.FileMode) (*os.File, error)
	sleep    func(time.Duration)
}

var (
	_ archive.StreamContext  = (*FileContext)(nil)
	_ archive.OptionResolver = (*FileContext)(nil)
	_ archive.VolumeRemover  = (*FileContext)(nil)
)

// NewFileContext creates a filesystem context with the default retry policy.
func NewFileContext(archiveDir, baseName string) *FileContext {
	return &FileContext{
		ArchiveDir: archiveDir,
		BaseName:   baseName,
		Retry:      DefaultRetryPolicy,
	}
}

func (c *FileContext) retrier() *retrier {
	return &retrier{policy: c.Retry, sleep: c.sleep, logger: c.Logger, metrics: c.Metrics}
}

func (c *FileContext) open(name string, flag int, perm os.FileMode) (*os.File, error) {
	if c.openFile != nil {
		return c.openFile(name, flag, perm)
	}
	return os.OpenFile(name, flag, perm)
}

func (c *FileContext) volumePath(name string) string {
	return filepath.Join(c.ArchiveDir, filepath.FromSlash(name))
}

// ArchiveName implements archive.StreamContext.
func (c *FileContext) ArchiveName(n int) string {
	namer := c.Namer
	if namer == nil {
		namer = DefaultNamer
	}
	return namer(c.BaseName, n)
}

// OpenArchiveWriteStream implements archive.StreamContext.
func (c *FileContext) OpenArchiveWriteStream(_ int, name string, truncate bool) (io.WriteCloser, error) {
	p := c.volumePath(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, WrapStorageError(err, "mkdir", filepath.Dir(p))
	}
	flag := os.O_CREATE | os.O_WRONLY
	if truncate {
		flag |= os.O_TRUNC
	} else {
		flag |= os.O_APPEND
	}
	var f *os.File
	err := c.retrier().do("open", p, func() error {
		var err error
		f, err = c.open(p, flag, 0o644)
		return err
	})
	if err != nil {
		return nil, c.classify(err, "open", p)
	}
	return f, nil
}

// CloseArchiveWriteStream implements archive.StreamContext.
func (c *FileContext) CloseArchiveWriteStream(_ int, name string, stream io.WriteCloser) error {
	if f, ok := stream.(*os.File); ok {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return WrapStorageError(err, "sync", c.volumePath(name))
		}
	}
	if err := stream.Close(); err != nil {
		return WrapStorageError(err, "close", c.volumePath(name))
	}
	return nil
}

// OpenArchiveReadStream implements archive.StreamContext.
// A missing volume yields a nil stream.
func (c *FileContext) OpenArchiveReadStream(_ int, name string, _ archive.Engine) (io.ReadSeekCloser, error) {
	p := c.volumePath(name)
	var f *os.File
	err := c.retrier().do("open", p, func() error {
		var err error
		f, err = c.open(p, os.O_RDONLY, 0)
		return err
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, c.classify(err, "open", p)
	}
	return f, nil
}

// CloseArchiveReadStream implements archive.StreamContext.
func (c *FileContext) CloseArchiveReadStream(_ int, name string, stream io.ReadSeekCloser) error {
	if err := stream.Close(); err != nil {
		return WrapStorageError(err, "close", c.volumePath(name))
	}
	return nil
}

// sourcePath resolves a source path. Absolute paths are used as given.
func (c *FileContext) sourcePath(path string) string {
	p := filepath.FromSlash(path)
	if filepath.IsAbs(p) || c.SourceDir == "" {
		return p
	}
	return filepath.Join(c.SourceDir, p)
}

// OpenFileReadStream implements archive.StreamContext.
func (c *FileContext) OpenFileReadStream(path string) (io.ReadCloser, types.SourceInfo, error) {
	p := c.sourcePath(path)
	var f *os.File
	err := c.retrier().do("open", p, func() error {
		var err error
		f, err = c.open(p, os.O_RDONLY, 0)
		return err
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.SourceInfo{}, archive.NewError(archive.ErrSourceNotFound, "open", path, err)
	}
	if err != nil {
		return nil, types.SourceInfo{}, c.classify(err, "open", p)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, types.SourceInfo{}, WrapStorageError(err, "stat", p)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, types.SourceInfo{}, archive.Errorf(archive.ErrSourceNotFound, "open", path, "is a directory")
	}
	return f, types.SourceInfo{
		Length:        st.Size(),
		Attributes:    attributesFromMode(st.Mode(), filepath.Base(p)),
		LastWriteTime: st.ModTime(),
	}, nil
}

// CloseFileReadStream implements archive.StreamContext.
func (c *FileContext) CloseFileReadStream(path string, stream io.ReadCloser) error {
	if err := stream.Close(); err != nil {
		return WrapStorageError(err, "close", c.sourcePath(path))
	}
	return nil
}

// targetPath maps an archive name below TargetDir, refusing names that
// would escape it.
func (c *FileContext) targetPath(name string) (string, error) {
	root := c.TargetDir
	if root == "" {
		root = "."
	}
	p := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", archive.Errorf(archive.ErrIllegalArchiveName, "extract", name, "escapes target directory")
	}
	return p, nil
}

// OpenFileWriteStream implements archive.StreamContext.
func (c *FileContext) OpenFileWriteStream(path string, _ int64, _ types.FileAttributes, _ time.Time) (io.WriteCloser, error) {
	p, err := c.targetPath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, WrapStorageError(err, "mkdir", filepath.Dir(p))
	}
	// A read-only file from an earlier extraction blocks O_TRUNC.
	if st, err := os.Stat(p); err == nil && st.Mode().Perm()&0o200 == 0 {
		_ = os.Chmod(p, st.Mode().Perm()|0o200)
	}
	var f *os.File
	err = c.retrier().do("create", p, func() error {
		var err error
		f, err = c.open(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		return err
	})
	if err != nil {
		return nil, c.classify(err, "create", p)
	}
	return f, nil
}

// CloseFileWriteStream implements archive.StreamContext. It applies the
// read-only and executable attributes and the modification time.
func (c *FileContext) CloseFileWriteStream(path string, stream io.WriteCloser, attrs types.FileAttributes, mtime time.Time) error {
	p, err := c.targetPath(path)
	if err != nil {
		_ = stream.Close()
		return err
	}
	if err := stream.Close(); err != nil {
		return WrapStorageError(err, "close", p)
	}
	mode := os.FileMode(0o644)
	if attrs.Has(types.AttrExec) {
		mode |= 0o111
	}
	if attrs.Has(types.AttrReadOnly) {
		mode &^= 0o222
	}
	if err := os.Chmod(p, mode); err != nil {
		return WrapStorageError(err, "chmod", p)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			return WrapStorageError(err, "chtimes", p)
		}
	}
	return nil
}

// ResolveOption implements archive.OptionResolver.
func (c *FileContext) ResolveOption(name string, params archive.OptionParams) (any, bool) {
	if c.Resolve == nil {
		return nil, false
	}
	return c.Resolve(name, params)
}

// RemoveArchive implements archive.VolumeRemover.
func (c *FileContext) RemoveArchive(_ int, name string) error {
	p := c.volumePath(name)
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return WrapStorageError(err, "remove", p)
	}
	return nil
}

// classify keeps archive classifications and wraps everything else as a
// StorageError.
func (c *FileContext) classify(err error, op, path string) error {
	var ae *archive.Error
	if errors.As(err, &ae) {
		return err
	}
	return WrapStorageError(err, op, path)
}

func attributesFromMode(mode fs.FileMode, base string) types.FileAttributes {
	var a types.FileAttributes
	if mode.Perm()&0o200 == 0 {
		a |= types.AttrReadOnly
	}
	if mode.Perm()&0o111 != 0 {
		a |= types.AttrExec
	}
	if strings.HasPrefix(base, ".") {
		a |= types.AttrHidden
	}
	return a | types.AttrArchive
}

// String describes the context for logs.
func (c *FileContext) String() string {
	return fmt.Sprintf("file:%s", c.volumePath(c.BaseName))
}
