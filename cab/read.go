package cab

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/codec"
	"github.com/pithecene-io/strata/progress"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/volume"
)

// segment locates one run of a file's encoded bytes.
type segment struct {
	volume int
	offset int64
	length int64
}

// catalogEntry is one file of a cabinet set.
type catalogEntry struct {
	rec  record
	info types.ArchiveFileInfo
	segs []segment
}

// GetFileInfo implements archive.Engine. Only StartArchive and
// FinishArchive events are emitted.
func (e *Engine) GetFileInfo(ctx context.Context, sc archive.StreamContext, filter archive.Filter) ([]types.ArchiveFileInfo, error) {
	const op = "list"
	release, err := e.guard.Acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	em := progress.NewEmitter(ctx, e.opts.Progress, 0, 0)
	entries, err := e.scan(ctx, sc, op, em)
	if err != nil {
		return nil, err
	}
	out := make([]types.ArchiveFileInfo, 0, len(entries))
	for _, ce := range entries {
		if filter.Accept(ce.info.Name) {
			out = append(out, ce.info)
		}
	}
	return out, nil
}

// Unpack implements archive.Engine.
func (e *Engine) Unpack(ctx context.Context, sc archive.StreamContext, filter archive.Filter) error {
	const op = "unpack"
	release, err := e.guard.Acquire(op)
	if err != nil {
		return err
	}
	defer release()

	entries, err := e.scan(ctx, sc, op, nil)
	if err != nil {
		return err
	}
	var (
		selected []*catalogEntry
		total    int64
	)
	for _, ce := range entries {
		if filter.Accept(ce.info.Name) {
			selected = append(selected, ce)
			total += ce.info.Length
		}
	}

	em := progress.NewEmitter(ctx, e.opts.Progress, len(selected), total)
	u := &unpacker{
		e:  e,
		sc: sc,
		em: em,
		src: volume.NewSource(volume.SourceConfig{
			Context: sc,
			Engine:  e,
			Emitter: em,
			Op:      op,
			Logger:  e.opts.Logger,
			Metrics: e.opts.Metrics,
		}),
		buf: make([]byte, codec.MaxBlockSize),
	}
	for i, ce := range selected {
		err := u.extract(i, ce)
		if err == nil {
			continue
		}
		if e.opts.BestEffort && errors.Is(err, archive.ErrCorruptEntry) {
			e.opts.Logger.Warn("skipping corrupt entry", map[string]any{
				"name":  ce.info.Name,
				"error": err.Error(),
			})
			e.opts.Metrics.IncFileCorrupt()
			if ferr := em.FinishFile(); ferr != nil {
				u.src.Release()
				return archive.Canceled(op, ce.info.Name, ferr)
			}
			continue
		}
		u.src.Release()
		if errors.Is(err, archive.ErrCanceled) {
			e.opts.Metrics.IncCancellation()
		}
		return err
	}
	if err := u.src.Close(); err != nil {
		return err
	}
	e.opts.Logger.Info("unpacked archive", map[string]any{
		"format": Format,
		"files":  len(selected),
		"bytes":  total,
	})
	return nil
}

// unpacker holds the state of one Unpack call.
type unpacker struct {
	e   *Engine
	sc  archive.StreamContext
	em  *progress.Emitter
	src *volume.Source
	buf []byte
}

// seek advances the source, volume by volume, until volume n is open.
func (u *unpacker) seek(n int) error {
	if u.src.Number() < 0 {
		if err := u.src.Open(0); err != nil {
			return err
		}
	}
	for u.src.Number() < n {
		if err := u.src.Advance(); err != nil {
			return err
		}
	}
	return nil
}

func (u *unpacker) extract(i int, ce *catalogEntry) error {
	const op = "unpack"
	fi := ce.info
	if err := u.seek(ce.segs[0].volume); err != nil {
		return err
	}
	if err := u.em.StartFile(i, fi.Name, fi.Length); err != nil {
		return archive.Canceled(op, fi.Name, err)
	}
	w, err := u.sc.OpenFileWriteStream(fi.Name, fi.Length, fi.Attributes, fi.LastWriteTime)
	if err != nil {
		return archive.Wrap(op, fi.Name, err)
	}
	if w == nil {
		u.e.opts.Metrics.IncFileSkipped()
		u.e.opts.Logger.Debug("skipped entry", map[string]any{"name": fi.Name})
		if err := u.em.FinishFile(); err != nil {
			return archive.Canceled(op, fi.Name, err)
		}
		return nil
	}
	cerr := u.copy(w, ce)
	if err := u.sc.CloseFileWriteStream(fi.Name, w, fi.Attributes, fi.LastWriteTime); err != nil && cerr == nil {
		cerr = archive.Wrap(op, fi.Name, err)
	}
	if cerr != nil {
		return cerr
	}
	u.e.opts.Metrics.IncFileExtracted()
	if err := u.em.FinishFile(); err != nil {
		return archive.Canceled(op, fi.Name, err)
	}
	return nil
}

func (u *unpacker) copy(w io.Writer, ce *catalogEntry) error {
	const op = "unpack"
	name := ce.info.Name
	if !ce.rec.method.Valid() {
		return archive.Errorf(archive.ErrCorruptEntry, op, name, "unknown method %d", uint16(ce.rec.method))
	}
	br := codec.NewBlockReader(&spanReader{u: u, segs: ce.segs}, ce.rec.method)
	var n int64
	for {
		r, rerr := br.Read(u.buf)
		if r > 0 {
			if n+int64(r) > ce.info.Length {
				return archive.Errorf(archive.ErrCorruptEntry, op, name,
					"data exceeds the recorded %d bytes", ce.info.Length)
			}
			if _, err := w.Write(u.buf[:r]); err != nil {
				return archive.Wrap(op, name, err)
			}
			n += int64(r)
			if err := u.em.PartialFile(int64(r)); err != nil {
				return archive.Canceled(op, name, err)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			var ae *archive.Error
			if errors.As(rerr, &ae) {
				return rerr
			}
			return archive.NewError(archive.ErrCorruptEntry, op, name, rerr)
		}
	}
	if n != ce.info.Length {
		return archive.Errorf(archive.ErrCorruptEntry, op, name,
			"decoded %d bytes, recorded %d", n, ce.info.Length)
	}
	return nil
}

// spanReader reads a file's segments in order, advancing the source across
// volume boundaries.
type spanReader struct {
	u    *unpacker
	segs []segment
	cur  io.Reader
}

func (r *spanReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if len(r.segs) == 0 {
				return 0, io.EOF
			}
			s := r.segs[0]
			r.segs = r.segs[1:]
			if err := r.u.seek(s.volume); err != nil {
				return 0, err
			}
			sec, err := r.u.src.Section(s.offset, s.length)
			if err != nil {
				return 0, err
			}
			r.cur = sec
		}
		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			r.cur = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

// scan reads the directory of every volume, following continuation flags
// until a volume without a successor. em may be nil.
func (e *Engine) scan(ctx context.Context, sc archive.StreamContext, op string, em *progress.Emitter) ([]*catalogEntry, error) {
	src := volume.NewSource(volume.SourceConfig{
		Context: sc,
		Engine:  e,
		Emitter: em,
		Op:      op,
		Logger:  e.opts.Logger,
		Metrics: e.opts.Metrics,
	})
	entries, err := e.readSet(ctx, sc, op, src)
	if err != nil {
		src.Release()
		if errors.Is(err, archive.ErrCanceled) {
			e.opts.Metrics.IncCancellation()
		}
		return nil, err
	}
	if err := src.Close(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (e *Engine) readSet(ctx context.Context, sc archive.StreamContext, op string, src *volume.Source) ([]*catalogEntry, error) {
	var (
		entries []*catalogEntry
		pending *catalogEntry
		setID   uint16
	)
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, archive.Canceled(op, sc.ArchiveName(n), err)
		}
		if err := src.Open(n); err != nil {
			return nil, err
		}
		name := src.Name()
		h, f, recs, err := readVolume(src, op)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			setID = h.setID
		} else if h.setID != setID {
			return nil, archive.Errorf(archive.ErrNotAnArchive, op, name,
				"volume belongs to set %04x, want %04x", h.setID, setID)
		}
		if int(h.volume) != n {
			return nil, archive.Errorf(archive.ErrNotAnArchive, op, name,
				"volume header says %d, want %d", h.volume, n)
		}
		if h.prev != (pending != nil) {
			return nil, archive.Errorf(archive.ErrCorruptEntry, op, name,
				"continuation flag %v does not match the previous volume", h.prev)
		}
		for j, r := range recs {
			seg := segment{volume: n, offset: int64(r.offset), length: int64(r.size)}
			if r.fromPrev() {
				if j != 0 || pending == nil || r.fileNumber != pending.rec.fileNumber {
					return nil, archive.Errorf(archive.ErrCorruptEntry, op, name,
						"unexpected continuation of file %d", r.fileNumber)
				}
				pending.segs = append(pending.segs, seg)
				pending.info.CompressedSize += seg.length
				if !r.toNext() {
					pending = nil
				}
			} else {
				if pending != nil {
					return nil, archive.Errorf(archive.ErrTruncatedArchive, op, name,
						"%q is missing its continuation", pending.info.Name)
				}
				ce := &catalogEntry{
					rec:  r,
					segs: []segment{seg},
					info: types.ArchiveFileInfo{
						Name:           r.name,
						FileNumber:     int(r.fileNumber),
						Length:         int64(r.length),
						CompressedSize: seg.length,
						LastWriteTime:  r.modTime(),
						Attributes:     r.attrs,
						ArchiveNumber:  n,
						ArchiveName:    name,
						Method:         r.method.String(),
					},
				}
				entries = append(entries, ce)
				if r.toNext() {
					pending = ce
				}
			}
			if r.toNext() && j != len(recs)-1 {
				return nil, archive.Errorf(archive.ErrCorruptEntry, op, name,
					"record %d continues but is not the last in the volume", j)
			}
		}
		if !f.next {
			if pending != nil {
				return nil, archive.Errorf(archive.ErrTruncatedArchive, op, name,
					"%q continues past the last volume", pending.info.Name)
			}
			return entries, nil
		}
	}
}

// readVolume validates the open volume and parses its directory.
func readVolume(src *volume.Source, op string) (header, footer, []record, error) {
	name, size := src.Name(), src.Size()
	probe := make([]byte, min(size, headerSize))
	if err := src.ReadAt(probe, 0); err != nil {
		return header{}, footer{}, nil, err
	}
	if !bytes.HasPrefix(signature, probe[:min(len(probe), len(signature))]) {
		return header{}, footer{}, nil, archive.Errorf(archive.ErrNotAnArchive, op, name, "missing %q signature", signature)
	}
	if size < headerSize+footerSize {
		return header{}, footer{}, nil, archive.Errorf(archive.ErrTruncatedArchive, op, name,
			"volume is %d bytes, shorter than its header and footer", size)
	}
	h, err := parseHeader(probe)
	if err != nil {
		return header{}, footer{}, nil, archive.NewError(archive.ErrNotAnArchive, op, name, err)
	}

	fb := make([]byte, footerSize)
	if err := src.ReadAt(fb, size-footerSize); err != nil {
		return header{}, footer{}, nil, err
	}
	f, ok := parseFooter(fb)
	if !ok {
		return header{}, footer{}, nil, archive.Errorf(archive.ErrTruncatedArchive, op, name, "volume footer is missing")
	}
	dirOffset, dirEnd := int64(f.dirOffset), int64(f.dirOffset)+int64(f.dirLength)
	if dirOffset < headerSize || dirEnd != size-footerSize {
		return header{}, footer{}, nil, archive.Errorf(archive.ErrTruncatedArchive, op, name,
			"directory at %d+%d does not end at the footer (volume is %d bytes)", f.dirOffset, f.dirLength, size)
	}
	dir := make([]byte, f.dirLength)
	if err := src.ReadAt(dir, dirOffset); err != nil {
		return header{}, footer{}, nil, err
	}
	recs, err := parseDirectory(dir, int(f.dirCount))
	if err != nil {
		return header{}, footer{}, nil, archive.NewError(archive.ErrCorruptEntry, op, name, err)
	}
	for _, r := range recs {
		if int64(r.offset) < headerSize || int64(r.offset)+int64(r.size) > dirOffset {
			return header{}, footer{}, nil, archive.Errorf(archive.ErrTruncatedArchive, op, name,
				"segment of %q at %d+%d lies outside the data region", r.name, r.offset, r.size)
		}
	}
	return h, f, recs, nil
}
