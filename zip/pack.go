package zip

import (
	"context"
	"errors"
	"hash/crc32"
	"io"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/codec"
	"github.com/pithecene-io/strata/progress"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/volume"
)

// Pack implements archive.Engine.
func (e *Engine) Pack(ctx context.Context, sc archive.StreamContext, files []string, maxVolumeBytes int64) ([]types.ArchiveFileInfo, error) {
	const op = "pack"
	release, err := e.guard.Acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	names, err := archive.PrepareNames(op, files)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []types.ArchiveFileInfo{}, nil
	}
	set, err := archive.StatSources(sc, op, files)
	if err != nil {
		return nil, err
	}
	extended, err := archive.CheckConstraints(formatCodec{}, op, len(files), set.MaxLength, max(maxVolumeBytes, 0))
	if err != nil {
		return nil, err
	}
	if extended {
		e.opts.Logger.Debug("using zip64", map[string]any{
			"files":      len(files),
			"max_length": set.MaxLength,
		})
	}

	em := progress.NewEmitter(ctx, e.opts.Progress, len(files), set.TotalBytes)
	p := &packer{
		e:        e,
		sc:       sc,
		em:       em,
		extended: extended,
		sp: volume.NewSplitter(volume.Config{
			Context:  sc,
			Layout:   layout{},
			MaxBytes: maxVolumeBytes,
			Emitter:  em,
			Op:       op,
			Logger:   e.opts.Logger,
			Metrics:  e.opts.Metrics,
		}),
		buf:     make([]byte, e.opts.BlockSize),
		records: make([]*centralRecord, 0, len(files)),
	}
	if err := p.sp.Open(); err != nil {
		return nil, p.abort(err)
	}
	out := make([]types.ArchiveFileInfo, 0, len(files))
	for i, path := range files {
		fi, err := p.packFile(i, path, names[i], set.Infos[i])
		if err != nil {
			return nil, p.abort(err)
		}
		out = append(out, fi)
	}
	if err := p.writeDirectory(); err != nil {
		return nil, p.abort(err)
	}
	if err := p.sp.Close(); err != nil {
		return nil, p.abort(err)
	}
	e.opts.Logger.Info("packed archive", map[string]any{
		"format":  Format,
		"files":   len(out),
		"volumes": len(p.sp.Volumes()),
		"bytes":   set.TotalBytes,
		"zip64":   p.extended,
	})
	return out, nil
}

// packer holds the state of one Pack call.
type packer struct {
	e        *Engine
	sc       archive.StreamContext
	em       *progress.Emitter
	sp       *volume.Splitter
	extended bool
	buf      []byte
	scratch  []byte
	records  []*centralRecord
}

func (p *packer) packFile(i int, path, name string, want types.SourceInfo) (types.ArchiveFileInfo, error) {
	const op = "pack"
	rc, info, err := p.sc.OpenFileReadStream(path)
	if err != nil {
		return types.ArchiveFileInfo{}, archive.SourceError(op, path, err)
	}
	if rc == nil {
		return types.ArchiveFileInfo{}, archive.NewError(archive.ErrSourceNotFound, op, path, nil)
	}
	fi, err := p.writeFile(i, path, name, rc, info, want)
	if cerr := p.sc.CloseFileReadStream(path, rc); cerr != nil && err == nil {
		err = archive.Wrap(op, path, cerr)
	}
	if err != nil {
		return types.ArchiveFileInfo{}, err
	}
	p.e.opts.Metrics.IncFilePacked()
	if err := p.em.FinishFile(); err != nil {
		return types.ArchiveFileInfo{}, archive.Canceled(op, name, err)
	}
	return fi, nil
}

func (p *packer) writeFile(i int, path, name string, rc io.Reader, info, want types.SourceInfo) (types.ArchiveFileInfo, error) {
	const op = "pack"
	if info.Length != want.Length {
		return types.ArchiveFileInfo{}, archive.Errorf(archive.ErrCorruptEntry, op, path,
			"source changed size from %d to %d bytes", want.Length, info.Length)
	}
	params := archive.OptionParams{Path: path, Name: name, Format: Format}
	method, native := methodFor(archive.ResolveLevel(p.sc, params, p.e.opts.Level))
	if info.Length == 0 {
		method, native = codec.Store, 0
	}
	zip64 := info.Length > zip64Threshold || archive.ResolveBool(p.sc, archive.OptionForceExtendedMode, params, false)
	st := newStamp(info.LastWriteTime)

	p.scratch = appendLocal(p.scratch[:0], name, method, st, zip64)
	vol, off, err := p.sp.BeginFile(i, p.scratch, info.Length)
	if err != nil {
		return types.ArchiveFileInfo{}, err
	}
	if err := p.em.StartFile(i, name, info.Length); err != nil {
		return types.ArchiveFileInfo{}, archive.Canceled(op, name, err)
	}

	cw := &countingWriter{w: p.sp}
	zw, err := codec.NewWriter(method, cw, native)
	if err != nil {
		return types.ArchiveFileInfo{}, archive.Wrap(op, name, err)
	}
	crc := crc32.NewIEEE()
	var n int64
	for {
		r, rerr := rc.Read(p.buf)
		if r > 0 {
			crc.Write(p.buf[:r])
			if _, err := zw.Write(p.buf[:r]); err != nil {
				return types.ArchiveFileInfo{}, archive.Wrap(op, name, err)
			}
			n += int64(r)
			p.e.opts.Metrics.AddBytesRead(int64(r))
			if err := p.em.PartialFile(int64(r)); err != nil {
				return types.ArchiveFileInfo{}, archive.Canceled(op, name, err)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return types.ArchiveFileInfo{}, archive.Wrap(op, path, rerr)
		}
	}
	if err := zw.Close(); err != nil {
		return types.ArchiveFileInfo{}, archive.Wrap(op, name, err)
	}
	if n != info.Length {
		return types.ArchiveFileInfo{}, archive.Errorf(archive.ErrCorruptEntry, op, path,
			"read %d bytes, source reported %d", n, info.Length)
	}
	if !zip64 && cw.n >= uint32max {
		return types.ArchiveFileInfo{}, archive.Errorf(archive.ErrUnsupportedArchiveConstraint, op, name,
			"compressed size %d does not fit a classic entry", cw.n)
	}

	rec := &centralRecord{
		creator:      versionMade,
		needed:       versionNeeded(method, zip64),
		flags:        flagDescriptor | flagUTF8,
		method:       method,
		stamp:        st,
		crc32:        crc.Sum32(),
		compressed:   uint64(cw.n),
		uncompressed: uint64(n),
		disk:         uint32(vol),
		offset:       uint64(off),
		external:     externalAttrs(info.Attributes),
		name:         name,
		zip64:        zip64,
	}
	p.scratch = appendDescriptor(p.scratch[:0], rec.crc32, rec.compressed, rec.uncompressed, zip64)
	if err := p.sp.WriteAtomic(p.scratch); err != nil {
		return types.ArchiveFileInfo{}, err
	}
	if err := p.sp.EndFile(); err != nil {
		return types.ArchiveFileInfo{}, archive.Wrap(op, name, err)
	}
	p.records = append(p.records, rec)

	return types.ArchiveFileInfo{
		Name:           name,
		FileNumber:     i,
		Length:         n,
		CompressedSize: cw.n,
		LastWriteTime:  st.time(),
		Attributes:     attrsFrom(rec.creator, rec.external),
		ArchiveNumber:  vol,
		ArchiveName:    p.sc.ArchiveName(vol),
		Method:         method.String(),
	}, nil
}

// writeDirectory writes the central directory and the end records.
func (p *packer) writeDirectory() error {
	var (
		end      endRecord
		lastDisk = -1
	)
	for i, rec := range p.records {
		p.scratch = appendCentral(p.scratch[:0], rec)
		if err := p.sp.Fit(int64(len(p.scratch))); err != nil {
			return err
		}
		disk, off := p.sp.Position()
		if i == 0 {
			end.cdDisk, end.cdOffset = uint32(disk), uint64(off)
		}
		if disk != lastDisk {
			end.diskEntries, lastDisk = 0, disk
		}
		if err := p.sp.WriteAtomic(p.scratch); err != nil {
			return err
		}
		end.diskEntries++
		end.cdSize += uint64(len(p.scratch))
	}
	end.entries = uint64(len(p.records))

	// The end records may still roll to a fresh disk, so size them for the
	// worst case before their position is known.
	end.disk = uint32(lastDisk + 1)
	zip64 := p.extended || end.needsZip64()
	if err := p.sp.Fit(endLength(zip64)); err != nil {
		return err
	}
	disk, off := p.sp.Position()
	if disk != lastDisk {
		end.diskEntries = 0
	}
	end.disk = uint32(disk)
	p.scratch = appendEnd(p.scratch[:0], end, zip64, off)
	if err := p.sp.WriteAtomic(p.scratch); err != nil {
		return err
	}
	p.e.opts.Logger.Debug("wrote central directory", map[string]any{
		"entries": end.entries,
		"cd_disk": end.cdDisk,
		"cd_size": end.cdSize,
		"disk":    end.disk,
		"zip64":   zip64,
	})
	return nil
}

// abort closes the current volume under the cancel policy and returns err.
func (p *packer) abort(err error) error {
	opts := p.e.opts
	if errors.Is(err, archive.ErrCanceled) {
		opts.Metrics.IncCancellation()
	}
	if aerr := p.sp.Abort(opts.CancelPolicy); aerr != nil {
		opts.Logger.Warn("abort pack", map[string]any{"error": aerr.Error()})
	}
	opts.Logger.Error("pack failed", map[string]any{
		"format": Format,
		"policy": opts.CancelPolicy.String(),
		"error":  err.Error(),
	})
	return err
}

// countingWriter counts encoded bytes on their way to the splitter.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
