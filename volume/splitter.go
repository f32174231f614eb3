package volume

import (
	"errors"
	"io"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/progress"
)

// State is the splitter state.
type State int

// Splitter states.
const (
	StateIdle State = iota
	StateWriting
	StateRolling
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateRolling:
		return "rolling"
	case StateDone:
		return "done"
	default:
		return "aborted"
	}
}

// Config configures a Splitter.
type Config struct {
	Context  archive.StreamContext
	Layout   Layout
	MaxBytes int64
	Emitter  *progress.Emitter
	Op       string
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

// Splitter writes an archive's bytes across volumes.
//
// The engine drives it with BeginFile, Write, WriteAtomic and EndFile, then
// Close. When a payload write does not fit, the splitter writes the prefix
// that fits, finalizes the volume, opens the next one and resumes the same
// file there as a continuation segment. Atomic records are never split:
// the splitter rolls before writing them.
type Splitter struct {
	cfg      Config
	state    State
	cur      *Volume
	w        io.WriteCloser
	headLen  int64
	fileOpen bool
	file     int
	done     []Volume
}

// NewSplitter creates a splitter. Call Open before writing.
func NewSplitter(cfg Config) *Splitter {
	if cfg.MaxBytes < 0 {
		cfg.MaxBytes = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Splitter{cfg: cfg, file: -1}
}

// State returns the current state.
func (s *Splitter) State() State { return s.state }

// Current returns the volume being written, or nil.
func (s *Splitter) Current() *Volume { return s.cur }

// Volumes returns the descriptors of every finalized volume.
func (s *Splitter) Volumes() []Volume {
	out := make([]Volume, len(s.done))
	copy(out, s.done)
	return out
}

// Position returns the current volume number and write offset.
func (s *Splitter) Position() (int, int64) {
	if s.cur == nil {
		return len(s.done), 0
	}
	return s.cur.Number, s.cur.BytesWritten
}

// Open opens volume 0.
func (s *Splitter) Open() error {
	if s.state != StateIdle {
		return errors.New("splitter already opened")
	}
	s.state = StateWriting
	return s.open(0, false)
}

func (s *Splitter) avail() int64 {
	return s.cur.MaxBytes - s.cur.BytesWritten - s.cfg.Layout.Reserve(s.cur)
}

// fresh reports whether the current volume holds nothing but its header.
func (s *Splitter) fresh() bool {
	return s.cur.BytesWritten == s.headLen && len(s.cur.Segments) == 0
}

func (s *Splitter) tooSmall(need int64) error {
	return archive.Errorf(archive.ErrVolumeTooSmall, s.cfg.Op, s.cur.Name,
		"limit %d bytes cannot hold %d bytes of format overhead plus %d bytes of content",
		s.cur.MaxBytes, s.headLen+s.cfg.Layout.Reserve(s.cur), need)
}

// BeginFile starts file index, writing prefix atomically before its payload.
// payload is the number of encoded bytes that will follow; when the current
// volume cannot hold prefix plus one payload byte the splitter rolls first.
// It returns the volume and offset where prefix starts.
func (s *Splitter) BeginFile(index int, prefix []byte, payload int64) (int, int64, error) {
	if err := s.writable(); err != nil {
		return 0, 0, err
	}
	need := int64(len(prefix))
	if payload > 0 {
		need++
	}
	s.addSegment(index, false)
	if s.cur.Bounded() && s.avail() < need {
		s.dropSegment()
		if s.fresh() {
			return 0, 0, s.tooSmall(need)
		}
		if err := s.roll(false); err != nil {
			return 0, 0, err
		}
		s.addSegment(index, false)
		if s.avail() < need {
			return 0, 0, s.tooSmall(need)
		}
	}
	vol, off := s.cur.Number, s.cur.BytesWritten
	if err := s.write(prefix); err != nil {
		return 0, 0, err
	}
	s.segment().Offset = s.cur.BytesWritten
	s.fileOpen = true
	s.file = index
	return vol, off, nil
}

// Write appends payload bytes of the open file, rolling as needed.
func (s *Splitter) Write(p []byte) (int, error) {
	if err := s.writable(); err != nil {
		return 0, err
	}
	if !s.fileOpen {
		return 0, errors.New("splitter: write outside a file")
	}
	written := 0
	for len(p) > 0 {
		chunk := p
		if s.cur.Bounded() {
			avail := s.avail()
			if avail <= 0 {
				if err := s.roll(true); err != nil {
					return written, err
				}
				if avail = s.avail(); avail <= 0 {
					return written, s.tooSmall(1)
				}
			}
			if int64(len(chunk)) > avail {
				chunk = chunk[:avail]
			}
		}
		if err := s.write(chunk); err != nil {
			return written, err
		}
		s.segment().Length += int64(len(chunk))
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

// Fit ensures the current volume has room for n bytes beyond its reserve,
// rolling if it does not.
func (s *Splitter) Fit(n int64) error {
	if err := s.writable(); err != nil {
		return err
	}
	if !s.cur.Bounded() || s.avail() >= n {
		return nil
	}
	if s.fresh() {
		return s.tooSmall(n)
	}
	if err := s.roll(s.fileOpen); err != nil {
		return err
	}
	if s.avail() < n {
		return s.tooSmall(n)
	}
	return nil
}

// WriteAtomic writes p without splitting it across volumes.
func (s *Splitter) WriteAtomic(p []byte) error {
	if err := s.Fit(int64(len(p))); err != nil {
		return err
	}
	return s.write(p)
}

// EndFile closes the open file.
func (s *Splitter) EndFile() error {
	if !s.fileOpen {
		return errors.New("splitter: no open file")
	}
	s.fileOpen = false
	s.file = -1
	return nil
}

// Close finalizes the last volume.
func (s *Splitter) Close() error {
	if err := s.writable(); err != nil {
		return err
	}
	if s.fileOpen {
		return errors.New("splitter: close with open file")
	}
	if err := s.finish(true); err != nil {
		return err
	}
	s.state = StateDone
	return nil
}

// Abort closes the current volume without a trailer. With
// archive.CancelRemovePartial the volume is removed when the context
// implements archive.VolumeRemover. Finalized volumes are left in place.
func (s *Splitter) Abort(policy archive.CancelPolicy) error {
	if s.state == StateDone || s.state == StateAborted {
		return nil
	}
	s.state = StateAborted
	if s.cur == nil || s.w == nil {
		return nil
	}
	num, name := s.cur.Number, s.cur.Name
	err := s.cfg.Context.CloseArchiveWriteStream(num, name, s.w)
	s.cfg.Metrics.IncVolumeClosed()
	s.w = nil
	s.cur = nil
	if policy == archive.CancelRemovePartial {
		if rm, ok := s.cfg.Context.(archive.VolumeRemover); ok {
			if rerr := rm.RemoveArchive(num, name); rerr != nil && err == nil {
				err = rerr
			}
			s.cfg.Logger.Debug("removed partial volume", map[string]any{"volume": num, "name": name})
		}
	}
	return err
}

func (s *Splitter) writable() error {
	switch s.state {
	case StateWriting:
		if s.cur == nil {
			return errors.New("splitter: no open volume")
		}
		return nil
	case StateIdle:
		return errors.New("splitter: not opened")
	default:
		return errors.New("splitter: " + s.state.String())
	}
}

func (s *Splitter) segment() *Segment {
	return &s.cur.Segments[len(s.cur.Segments)-1]
}

func (s *Splitter) addSegment(file int, continued bool) {
	s.cur.Segments = append(s.cur.Segments, Segment{
		File:              file,
		Offset:            s.cur.BytesWritten,
		ContinuedFromPrev: continued,
	})
}

func (s *Splitter) dropSegment() {
	s.cur.Segments = s.cur.Segments[:len(s.cur.Segments)-1]
}

func (s *Splitter) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := s.w.Write(p)
	s.cur.BytesWritten += int64(n)
	if s.cfg.Emitter != nil {
		s.cfg.Emitter.ArchiveBytes(int64(n))
	}
	s.cfg.Metrics.AddBytesWritten(int64(n))
	if err != nil {
		return archive.Wrap(s.cfg.Op, s.cur.Name, err)
	}
	return nil
}

// roll finalizes the current volume and opens the next. continuing carries
// the open file into the new volume as a continuation segment.
func (s *Splitter) roll(continuing bool) error {
	s.state = StateRolling
	next := s.cur.Number + 1
	if continuing {
		s.segment().ContinuedToNext = true
		s.cfg.Metrics.IncSpan()
	}
	s.cfg.Logger.Debug("rolling volume", map[string]any{
		"volume":    s.cur.Number,
		"bytes":     s.cur.BytesWritten,
		"max_bytes": s.cur.MaxBytes,
		"spanning":  continuing,
	})
	if err := s.finish(false); err != nil {
		return err
	}
	if err := s.open(next, continuing); err != nil {
		return err
	}
	if continuing {
		s.addSegment(s.file, true)
	}
	s.state = StateWriting
	return nil
}

func (s *Splitter) finish(last bool) error {
	v := s.cur
	if err := s.cfg.Layout.Finalize(&volumeWriter{s: s}, v, last); err != nil {
		return archive.Wrap(s.cfg.Op, v.Name, err)
	}
	err := s.cfg.Context.CloseArchiveWriteStream(v.Number, v.Name, s.w)
	s.cfg.Metrics.IncVolumeClosed()
	s.w = nil
	s.done = append(s.done, *v)
	s.cur = nil
	if err != nil {
		return archive.Wrap(s.cfg.Op, v.Name, err)
	}
	s.cfg.Logger.Debug("closed volume", map[string]any{"volume": v.Number, "name": v.Name, "bytes": v.BytesWritten, "last": last})
	if s.cfg.Emitter != nil {
		if err := s.cfg.Emitter.FinishArchive(); err != nil {
			return archive.Canceled(s.cfg.Op, v.Name, err)
		}
	}
	return nil
}

func (s *Splitter) open(n int, continued bool) error {
	name := s.cfg.Context.ArchiveName(n)
	w, err := s.cfg.Context.OpenArchiveWriteStream(n, name, true)
	if err != nil {
		return archive.Wrap(s.cfg.Op, name, err)
	}
	if w == nil {
		return archive.NewError(archive.ErrOutOfVolumes, s.cfg.Op, name, nil)
	}
	s.cfg.Metrics.IncVolumeOpened()
	s.w = w
	s.cur = &Volume{Number: n, Name: name, MaxBytes: s.cfg.MaxBytes, Continued: continued}
	s.cfg.Logger.Debug("opened volume", map[string]any{"volume": n, "name": name, "continued": continued})

	header := s.cfg.Layout.Header(s.cur)
	s.headLen = int64(len(header))
	if s.cur.Bounded() && s.avail() < s.headLen+1 {
		return archive.Errorf(archive.ErrVolumeTooSmall, s.cfg.Op, name,
			"limit %d bytes cannot hold the %d byte volume header and %d byte trailer",
			s.cur.MaxBytes, s.headLen, s.cfg.Layout.Reserve(s.cur))
	}
	if err := s.write(header); err != nil {
		return err
	}
	if s.cfg.Emitter != nil {
		if err := s.cfg.Emitter.StartArchive(n, name, 0); err != nil {
			return archive.Canceled(s.cfg.Op, name, err)
		}
	}
	return nil
}

// volumeWriter routes trailer bytes through the splitter accounting.
type volumeWriter struct{ s *Splitter }

func (vw *volumeWriter) Write(p []byte) (int, error) {
	n, err := vw.s.w.Write(p)
	vw.s.cur.BytesWritten += int64(n)
	if vw.s.cfg.Emitter != nil {
		vw.s.cfg.Emitter.ArchiveBytes(int64(n))
	}
	vw.s.cfg.Metrics.AddBytesWritten(int64(n))
	return n, err
}
