package zip

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"strings"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/codec"
	"github.com/pithecene-io/strata/progress"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/volume"
)

// catalogEntry is one file of an archive.
type catalogEntry struct {
	rec  centralRecord
	info types.ArchiveFileInfo
}

// directory is the parsed central directory of an archive.
type directory struct {
	// last is the disk holding the end records.
	last    int
	entries []*catalogEntry
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

	dir, err := e.scan(ctx, sc, op, progress.NewEmitter(ctx, e.opts.Progress, 0, 0))
	if err != nil {
		return nil, err
	}
	out := make([]types.ArchiveFileInfo, 0, len(dir.entries))
	for _, ce := range dir.entries {
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

	dir, err := e.scan(ctx, sc, op, nil)
	if err != nil {
		return err
	}
	var (
		selected []*catalogEntry
		total    int64
	)
	for _, ce := range dir.entries {
		if filter.Accept(ce.info.Name) {
			selected = append(selected, ce)
			total += ce.info.Length
		}
	}

	em := progress.NewEmitter(ctx, e.opts.Progress, len(selected), total)
	u := &unpacker{
		e:    e,
		sc:   sc,
		em:   em,
		last: dir.last,
		src: volume.NewSource(volume.SourceConfig{
			Context: sc,
			Engine:  e,
			Emitter: em,
			Op:      op,
			Logger:  e.opts.Logger,
			Metrics: e.opts.Metrics,
		}),
		buf: make([]byte, e.opts.BlockSize),
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
	e    *Engine
	sc   archive.StreamContext
	em   *progress.Emitter
	src  *volume.Source
	last int
	buf  []byte
}

// seek opens disk n, advancing volume by volume when n lies ahead.
func (u *unpacker) seek(n int) error {
	if u.src.Number() < 0 || u.src.Number() > n {
		if err := u.src.Open(n); err != nil {
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
	if err := u.seek(fi.ArchiveNumber); err != nil {
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
	rec := &ce.rec
	if rec.flags&flagEncrypted != 0 {
		return archive.Errorf(archive.ErrCorruptEntry, op, name, "encrypted entries are not supported")
	}
	if !rec.method.Valid() {
		return archive.Errorf(archive.ErrCorruptEntry, op, name, "unknown method %d", uint16(rec.method))
	}

	head := make([]byte, localHeaderLen)
	if err := u.src.ReadAt(head, int64(rec.offset)); err != nil {
		return err
	}
	dataOff, err := localDataOffset(head)
	if err != nil {
		return archive.NewError(archive.ErrCorruptEntry, op, name, err)
	}
	sr := &spanReader{u: u, off: int64(rec.offset) + dataOff, left: int64(rec.compressed)}
	zr, err := codec.NewReader(rec.method, sr)
	if err != nil {
		return archive.NewError(archive.ErrCorruptEntry, op, name, err)
	}
	defer zr.Close()

	crc := crc32.NewIEEE()
	var n int64
	for {
		r, rerr := zr.Read(u.buf)
		if r > 0 {
			if n+int64(r) > ce.info.Length {
				return archive.Errorf(archive.ErrCorruptEntry, op, name,
					"data exceeds the recorded %d bytes", ce.info.Length)
			}
			crc.Write(u.buf[:r])
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
	if sum := crc.Sum32(); sum != rec.crc32 {
		return archive.Errorf(archive.ErrCorruptEntry, op, name,
			"crc32 %08x, recorded %08x", sum, rec.crc32)
	}
	return nil
}

// spanReader reads an entry's compressed bytes, continuing at the start of
// the next disk when the current one ends.
type spanReader struct {
	u    *unpacker
	off  int64
	left int64
	cur  io.Reader
}

func (r *spanReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if r.left == 0 {
				return 0, io.EOF
			}
			src := r.u.src
			avail := src.Size() - r.off
			if avail <= 0 {
				if src.Number() >= r.u.last {
					return 0, archive.Errorf(archive.ErrTruncatedArchive, "unpack", src.Name(),
						"entry data needs %d more bytes past the last disk", r.left)
				}
				if err := src.Advance(); err != nil {
					return 0, err
				}
				r.off = 0
				continue
			}
			n := min(avail, r.left)
			sec, err := src.Section(r.off, n)
			if err != nil {
				return 0, err
			}
			r.cur, r.off, r.left = sec, r.off+n, r.left-n
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

// scan finds the last disk and reads the central directory. em may be nil;
// it sees each disk once, in order.
func (e *Engine) scan(ctx context.Context, sc archive.StreamContext, op string, em *progress.Emitter) (*directory, error) {
	src := volume.NewSource(volume.SourceConfig{
		Context: sc,
		Engine:  e,
		Emitter: em,
		Op:      op,
		Logger:  e.opts.Logger,
		Metrics: e.opts.Metrics,
	})
	end, endOff, err := e.locate(ctx, sc, op, src)
	if err != nil {
		src.Release()
		if errors.Is(err, archive.ErrCanceled) {
			e.opts.Metrics.IncCancellation()
		}
		return nil, err
	}
	last := src.Number()
	if err := src.Close(); err != nil {
		return nil, err
	}

	quiet := volume.NewSource(volume.SourceConfig{
		Context: sc,
		Engine:  e,
		Op:      op,
		Logger:  e.opts.Logger,
		Metrics: e.opts.Metrics,
	})
	defer quiet.Release()
	entries, err := e.readDirectory(sc, op, quiet, end, last, endOff)
	if err != nil {
		return nil, err
	}
	return &directory{last: last, entries: entries}, nil
}

// locate walks disks from 0 until one ends with an end record naming it
// as the last disk. It leaves that disk open and returns the record and
// its offset.
func (e *Engine) locate(ctx context.Context, sc archive.StreamContext, op string, src *volume.Source) (endRecord, int64, error) {
	var split bool
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return endRecord{}, 0, archive.Canceled(op, sc.ArchiveName(n), err)
		}
		if err := src.Open(n); err != nil {
			return endRecord{}, 0, err
		}
		name, size := src.Name(), src.Size()
		if n == 0 {
			probe := make([]byte, min(size, 4))
			if err := src.ReadAt(probe, 0); err != nil {
				return endRecord{}, 0, err
			}
			sig, ok := firstSignature(probe)
			if !ok {
				return endRecord{}, 0, archive.Errorf(archive.ErrNotAnArchive, op, name, "missing zip signature")
			}
			if len(probe) < 4 {
				return endRecord{}, 0, archive.Errorf(archive.ErrTruncatedArchive, op, name, "volume holds %d bytes", size)
			}
			split = sig == splitSig
		}
		end, off, found, err := e.readEnd(op, src)
		if err != nil {
			return endRecord{}, 0, err
		}
		if found && int(end.disk) == n {
			return end, off, nil
		}
		if !split || (n == 0 && size < 4+localHeaderLen) {
			return endRecord{}, 0, archive.Errorf(archive.ErrTruncatedArchive, op, name, "no end of central directory record")
		}
		if found && int(end.disk) < n {
			return endRecord{}, 0, archive.Errorf(archive.ErrNotAnArchive, op, name,
				"end record names disk %d", end.disk)
		}
	}
}

// firstSignature matches the opening bytes of disk 0. A prefix of a known
// signature is accepted so short volumes report truncation.
func firstSignature(probe []byte) (uint32, bool) {
	for _, sig := range []uint32{localSig, splitSig, singleSig, endSig} {
		want := le32(sig)
		if string(probe) == string(want[:len(probe)]) {
			return sig, true
		}
	}
	return 0, false
}

// readEnd looks for end records at the tail of the open disk.
func (e *Engine) readEnd(op string, src *volume.Source) (endRecord, int64, bool, error) {
	size := src.Size()
	tailLen := min(size, endLen+uint16max)
	if tailLen < endLen {
		return endRecord{}, 0, false, nil
	}
	tail := make([]byte, tailLen)
	base := size - tailLen
	if err := src.ReadAt(tail, base); err != nil {
		return endRecord{}, 0, false, err
	}
	i := findEnd(tail)
	if i < 0 {
		return endRecord{}, 0, false, nil
	}
	end := parseEnd(tail[i:])
	off := base + int64(i)
	if i < zip64LocatorLen {
		return end, off, true, nil
	}
	disk, z64Off, ok := parseLocator(tail[i-zip64LocatorLen:])
	if !ok {
		return end, off, true, nil
	}
	if int64(z64Off)+zip64EndLen > size || int(disk) != int(end.disk) && end.disk != uint16max {
		return endRecord{}, 0, false, archive.Errorf(archive.ErrCorruptEntry, op, src.Name(),
			"zip64 end record at disk %d offset %d is not on this disk", disk, z64Off)
	}
	b := make([]byte, zip64EndLen)
	if err := src.ReadAt(b, int64(z64Off)); err != nil {
		return endRecord{}, 0, false, err
	}
	end, err := parseZip64End(b)
	if err != nil {
		return endRecord{}, 0, false, archive.NewError(archive.ErrCorruptEntry, op, src.Name(), err)
	}
	return end, int64(z64Off), true, nil
}

// readDirectory reads the central directory from its first disk through
// the last. On the last disk it ends where the end records begin.
func (e *Engine) readDirectory(sc archive.StreamContext, op string, src *volume.Source, end endRecord, last int, endOff int64) ([]*catalogEntry, error) {
	if end.entries > 1<<31 {
		return nil, archive.Errorf(archive.ErrCorruptEntry, op, sc.ArchiveName(last), "%d entries", end.entries)
	}
	entries := make([]*catalogEntry, 0, int(end.entries))
	var (
		read  uint64
		count uint64
		off   = int64(end.cdOffset)
	)
	for disk := int(end.cdDisk); disk <= last && count < end.entries; disk++ {
		if err := src.Open(disk); err != nil {
			return nil, err
		}
		limit := src.Size()
		if disk == last {
			limit = endOff
		}
		if off > limit {
			return nil, archive.Errorf(archive.ErrTruncatedArchive, op, src.Name(),
				"central directory at %d past disk end %d", off, limit)
		}
		b := make([]byte, limit-off)
		if err := src.ReadAt(b, off); err != nil {
			return nil, err
		}
		for len(b) > 0 && count < end.entries {
			if len(b) >= 4 && binary.LittleEndian.Uint32(b) != centralSig {
				break
			}
			rec, n, err := parseCentral(b)
			if err != nil {
				return nil, archive.NewError(archive.ErrCorruptEntry, op, src.Name(), err)
			}
			b = b[n:]
			read += uint64(n)
			if ce := e.catalog(sc, rec, len(entries)); ce != nil {
				entries = append(entries, ce)
			}
			count++
		}
		off = 0
	}
	if count != end.entries {
		return nil, archive.Errorf(archive.ErrTruncatedArchive, op, sc.ArchiveName(last),
			"central directory holds %d of %d entries", count, end.entries)
	}
	if read != end.cdSize {
		return nil, archive.Errorf(archive.ErrCorruptEntry, op, sc.ArchiveName(last),
			"central directory is %d bytes, end record says %d", read, end.cdSize)
	}
	return entries, nil
}

// catalog converts a central record to an entry. Directory entries are not
// listed and yield nil.
func (e *Engine) catalog(sc archive.StreamContext, rec centralRecord, number int) *catalogEntry {
	if strings.HasSuffix(rec.name, "/") {
		return nil
	}
	disk := int(rec.disk)
	return &catalogEntry{
		rec: rec,
		info: types.ArchiveFileInfo{
			Name:           rec.name,
			FileNumber:     number,
			Length:         int64(rec.uncompressed),
			CompressedSize: int64(rec.compressed),
			LastWriteTime:  rec.stamp.time(),
			Attributes:     attrsFrom(rec.creator, rec.external),
			ArchiveNumber:  disk,
			ArchiveName:    sc.ArchiveName(disk),
			Method:         rec.method.String(),
		},
	}
}
