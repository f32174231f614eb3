package volume

import (
	"fmt"
	"io"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/progress"
)

// SourceConfig configures a Source.
type SourceConfig struct {
	Context archive.StreamContext
	Engine  archive.Engine
	// Emitter receives StartArchive/FinishArchive events. Nil suppresses them.
	Emitter *progress.Emitter
	Op      string
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Source reads existing volumes one at a time, in order.
type Source struct {
	cfg  SourceConfig
	num  int
	name string
	r    io.ReadSeekCloser
	size int64
}

// NewSource creates a source with no volume open.
func NewSource(cfg SourceConfig) *Source {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Source{cfg: cfg, num: -1}
}

// Open closes the current volume, if any, and opens volume n.
// An unavailable volume fails with archive.ErrArchiveNotFound.
func (s *Source) Open(n int) error {
	if err := s.Close(); err != nil {
		return err
	}
	name := s.cfg.Context.ArchiveName(n)
	r, err := s.cfg.Context.OpenArchiveReadStream(n, name, s.cfg.Engine)
	if err != nil {
		return archive.Wrap(s.cfg.Op, name, err)
	}
	if r == nil {
		return archive.NewError(archive.ErrArchiveNotFound, s.cfg.Op, name, nil)
	}
	size, err := iox.Size(r)
	if err != nil {
		_ = s.cfg.Context.CloseArchiveReadStream(n, name, r)
		return archive.Wrap(s.cfg.Op, name, err)
	}
	s.cfg.Metrics.IncVolumeOpened()
	s.num, s.name, s.r, s.size = n, name, r, size
	s.cfg.Logger.Debug("opened volume", map[string]any{"volume": n, "name": name, "bytes": size})
	if s.cfg.Emitter != nil {
		if err := s.cfg.Emitter.StartArchive(n, name, size); err != nil {
			return archive.Canceled(s.cfg.Op, name, err)
		}
	}
	return nil
}

// Advance moves to the next volume.
func (s *Source) Advance() error {
	return s.Open(s.num + 1)
}

// Close closes the current volume, emitting FinishArchive.
func (s *Source) Close() error {
	if s.r == nil {
		return nil
	}
	n, name, r := s.num, s.name, s.r
	s.r = nil
	err := s.cfg.Context.CloseArchiveReadStream(n, name, r)
	s.cfg.Metrics.IncVolumeClosed()
	if err != nil {
		return archive.Wrap(s.cfg.Op, name, err)
	}
	if s.cfg.Emitter != nil {
		if err := s.cfg.Emitter.FinishArchive(); err != nil {
			return archive.Canceled(s.cfg.Op, name, err)
		}
	}
	return nil
}

// Release closes the current volume without emitting an event. Use on
// error paths where the operation is already failing.
func (s *Source) Release() {
	if s.r == nil {
		return
	}
	_ = s.cfg.Context.CloseArchiveReadStream(s.num, s.name, s.r)
	s.cfg.Metrics.IncVolumeClosed()
	s.r = nil
}

// Number returns the index of the open volume, or -1.
func (s *Source) Number() int { return s.num }

// Name returns the name of the open volume.
func (s *Source) Name() string { return s.name }

// Size returns the length of the open volume.
func (s *Source) Size() int64 { return s.size }

// ReadAt reads len(p) bytes at off in the open volume. Reading past the
// end fails with archive.ErrTruncatedArchive.
func (s *Source) ReadAt(p []byte, off int64) error {
	if s.r == nil {
		return fmt.Errorf("%s: no volume open", s.cfg.Op)
	}
	if off < 0 || off+int64(len(p)) > s.size {
		return archive.Errorf(archive.ErrTruncatedArchive, s.cfg.Op, s.name,
			"need %d bytes at offset %d, volume holds %d", len(p), off, s.size)
	}
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return archive.Wrap(s.cfg.Op, s.name, err)
	}
	if _, err := io.ReadFull(s.r, p); err != nil {
		return archive.NewError(archive.ErrTruncatedArchive, s.cfg.Op, s.name, err)
	}
	s.cfg.Metrics.AddBytesRead(int64(len(p)))
	return nil
}

// Section returns a reader over n bytes at off in the open volume.
// The reader is only valid until the volume changes.
func (s *Source) Section(off, n int64) (io.Reader, error) {
	if s.r == nil {
		return nil, fmt.Errorf("%s: no volume open", s.cfg.Op)
	}
	if off < 0 || n < 0 || off+n > s.size {
		return nil, archive.Errorf(archive.ErrTruncatedArchive, s.cfg.Op, s.name,
			"need %d bytes at offset %d, volume holds %d", n, off, s.size)
	}
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return nil, archive.Wrap(s.cfg.Op, s.name, err)
	}
	return &countingReader{r: io.LimitReader(s.r, n), s: s}, nil
}

type countingReader struct {
	r io.Reader
	s *Source
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.s.cfg.Metrics.AddBytesRead(int64(n))
	if c.s.cfg.Emitter != nil {
		c.s.cfg.Emitter.ArchiveBytes(int64(n))
	}
	return n, err
}
