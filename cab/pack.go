package cab

import (
	"context"
	"errors"
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
	if _, err := archive.CheckConstraints(formatCodec{}, op, len(files), set.MaxLength, max(maxVolumeBytes, 0)); err != nil {
		return nil, err
	}

	em := progress.NewEmitter(ctx, e.opts.Progress, len(files), set.TotalBytes)
	lay := newLayout(e.setID(), len(files))
	p := &packer{
		e:   e,
		sc:  sc,
		em:  em,
		lay: lay,
		sp: volume.NewSplitter(volume.Config{
			Context:  sc,
			Layout:   lay,
			MaxBytes: maxVolumeBytes,
			Emitter:  em,
			Op:       op,
			Logger:   e.opts.Logger,
			Metrics:  e.opts.Metrics,
		}),
		buf: make([]byte, e.opts.BlockSize),
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
	if err := p.sp.Close(); err != nil {
		return nil, p.abort(err)
	}
	e.opts.Logger.Info("packed archive", map[string]any{
		"format":  Format,
		"files":   len(out),
		"volumes": len(p.sp.Volumes()),
		"bytes":   set.TotalBytes,
	})
	return out, nil
}

// packer holds the state of one Pack call.
type packer struct {
	e   *Engine
	sc  archive.StreamContext
	em  *progress.Emitter
	lay *layout
	sp  *volume.Splitter
	buf []byte
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
	level := archive.ResolveLevel(p.sc, archive.OptionParams{Path: path, Name: name, Format: Format}, p.e.opts.Level)
	method, native := methodFor(level)
	date, clock := archive.DOSTime(info.LastWriteTime)
	p.lay.entries[i] = &entry{
		name:   name,
		attrs:  info.Attributes,
		date:   date,
		clock:  clock,
		length: info.Length,
		method: method,
	}

	vol, _, err := p.sp.BeginFile(i, nil, info.Length)
	if err != nil {
		return types.ArchiveFileInfo{}, err
	}
	if err := p.em.StartFile(i, name, info.Length); err != nil {
		return types.ArchiveFileInfo{}, archive.Canceled(op, name, err)
	}

	bw := codec.NewBlockWriter(p.sp, method, native, p.e.opts.BlockSize)
	var n int64
	for {
		r, rerr := rc.Read(p.buf)
		if r > 0 {
			if _, err := bw.Write(p.buf[:r]); err != nil {
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
	if err := bw.Close(); err != nil {
		return types.ArchiveFileInfo{}, archive.Wrap(op, name, err)
	}
	if n != info.Length {
		return types.ArchiveFileInfo{}, archive.Errorf(archive.ErrCorruptEntry, op, path,
			"read %d bytes, source reported %d", n, info.Length)
	}
	if err := p.sp.EndFile(); err != nil {
		return types.ArchiveFileInfo{}, archive.Wrap(op, name, err)
	}
	return types.ArchiveFileInfo{
		Name:           name,
		FileNumber:     i,
		Length:         info.Length,
		CompressedSize: bw.Written(),
		LastWriteTime:  archive.FromDOSTime(date, clock),
		Attributes:     info.Attributes,
		ArchiveNumber:  vol,
		ArchiveName:    p.sc.ArchiveName(vol),
		Method:         method.String(),
	}, nil
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
