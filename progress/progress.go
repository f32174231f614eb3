// Package progress implements the progress event model: a per-operation
// Emitter that computes every counter, handler combinators, and a
// length-prefixed msgpack journal that can be replayed later.
package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/strata/types"
)

// Handler receives progress events synchronously on the operation's
// goroutine. A non-nil return asks the engine to stop.
type Handler func(types.ProgressEvent) error

// ErrCanceled matches every stop requested through a Handler or a context.
var ErrCanceled = errors.New("operation canceled")

// StopError records which event triggered a stop.
type StopError struct {
	Kind types.ProgressKind
	Err  error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("stopped at %s: %v", e.Kind, e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }

// Is matches ErrCanceled.
func (e *StopError) Is(target error) bool { return target == ErrCanceled }

// Tee delivers each event to every handler in order. The first error stops
// delivery and is returned.
func Tee(handlers ...Handler) Handler {
	return func(ev types.ProgressEvent) error {
		for _, h := range handlers {
			if h == nil {
				continue
			}
			if err := h(ev); err != nil {
				return err
			}
		}
		return nil
	}
}

// Collect appends every event to dst.
func Collect(dst *[]types.ProgressEvent) Handler {
	return func(ev types.ProgressEvent) error {
		*dst = append(*dst, ev)
		return nil
	}
}

// Emitter computes progress counters for one operation and delivers events.
// It is not safe for concurrent use; an operation owns exactly one.
type Emitter struct {
	ctx     context.Context
	handler Handler
	cur     types.ProgressEvent
}

// NewEmitter creates an emitter for an operation over totalFiles files
// holding totalBytes uncompressed bytes. h may be nil.
func NewEmitter(ctx context.Context, h Handler, totalFiles int, totalBytes int64) *Emitter {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Emitter{
		ctx:     ctx,
		handler: h,
		cur: types.ProgressEvent{
			TotalFiles:     totalFiles,
			TotalFileBytes: totalBytes,
		},
	}
}

// SetTotals updates the operation totals. Unpack learns them only after
// reading the directory.
func (e *Emitter) SetTotals(totalFiles int, totalBytes int64) {
	e.cur.TotalFiles = totalFiles
	e.cur.TotalFileBytes = totalBytes
}

// Current returns the state the next event would carry.
func (e *Emitter) Current() types.ProgressEvent { return e.cur }

func (e *Emitter) emit(kind types.ProgressKind) error {
	e.cur.Kind = kind
	if e.handler != nil {
		if err := e.handler(e.cur); err != nil {
			return &StopError{Kind: kind, Err: err}
		}
	}
	if err := e.ctx.Err(); err != nil {
		return &StopError{Kind: kind, Err: err}
	}
	return nil
}

// StartArchive opens volume number. totalBytes may be 0 when unknown.
func (e *Emitter) StartArchive(number int, name string, totalBytes int64) error {
	e.cur.CurrentArchiveNumber = number
	e.cur.CurrentArchiveName = name
	e.cur.CurrentFolderNumber = number
	e.cur.CurrentArchiveBytesProcessed = 0
	e.cur.CurrentArchiveTotalBytes = totalBytes
	if number+1 > e.cur.TotalArchives {
		e.cur.TotalArchives = number + 1
	}
	return e.emit(types.ProgressStartArchive)
}

// FinishArchive closes the current volume. On pack the final size becomes
// the archive total.
func (e *Emitter) FinishArchive() error {
	if e.cur.CurrentArchiveTotalBytes < e.cur.CurrentArchiveBytesProcessed {
		e.cur.CurrentArchiveTotalBytes = e.cur.CurrentArchiveBytesProcessed
	}
	return e.emit(types.ProgressFinishArchive)
}

// ArchiveBytes advances the current volume byte counter without an event.
func (e *Emitter) ArchiveBytes(n int64) {
	e.cur.CurrentArchiveBytesProcessed += n
}

// StartFile begins file number with total uncompressed bytes.
func (e *Emitter) StartFile(number int, name string, total int64) error {
	e.cur.CurrentFileNumber = number
	e.cur.CurrentFileName = name
	e.cur.CurrentFileBytesProcessed = 0
	e.cur.CurrentFileTotalBytes = total
	return e.emit(types.ProgressStartFile)
}

// PartialFile reports n more uncompressed bytes of the current file.
func (e *Emitter) PartialFile(n int64) error {
	e.advance(n)
	return e.emit(types.ProgressPartialFile)
}

// FinishFile completes the current file. Any bytes not yet reported are
// counted so skipped entries still advance the operation totals.
func (e *Emitter) FinishFile() error {
	if rest := e.cur.CurrentFileTotalBytes - e.cur.CurrentFileBytesProcessed; rest > 0 {
		e.advance(rest)
	}
	return e.emit(types.ProgressFinishFile)
}

func (e *Emitter) advance(n int64) {
	e.cur.CurrentFileBytesProcessed += n
	e.cur.FileBytesProcessed += n
}
