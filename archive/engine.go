package archive

import (
	"context"
	"io"

	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/progress"
	"github.com/pithecene-io/strata/types"
)

// Engine packs, unpacks and lists archives of one container format.
//
// An Engine admits one in-flight operation at a time; concurrent calls fail
// with ErrOperationInProgress. All progress events are delivered on the
// calling goroutine.
type Engine interface {
	// Pack writes files, in order, into a new archive. maxVolumeBytes <= 0
	// means a single unbounded volume. The returned list is in pack order.
	Pack(ctx context.Context, sc StreamContext, files []string, maxVolumeBytes int64) ([]types.ArchiveFileInfo, error)

	// Unpack extracts every entry accepted by filter (nil accepts all).
	Unpack(ctx context.Context, sc StreamContext, filter Filter) error

	// GetFileInfo lists entries accepted by filter without extracting them.
	GetFileInfo(ctx context.Context, sc StreamContext, filter Filter) ([]types.ArchiveFileInfo, error)

	// IsArchive reports whether r starts with this format's signature.
	// It reads at most len(Signature()) bytes and restores the position of r.
	IsArchive(r io.ReadSeeker) (bool, error)

	// FindArchiveOffset returns the offset of the first signature in r
	// found on a 4-byte boundary, or -1. The position of r is restored.
	FindArchiveOffset(r io.ReadSeeker) (int64, error)

	// Close releases held resources. It is idempotent; later operations
	// fail with ErrClosed.
	Close() error
}

// FormatCodec describes the container format behind an Engine.
type FormatCodec interface {
	// Format returns the short format name ("cab", "zip").
	Format() string
	// Signature returns the magic bytes at the start of volume 0.
	Signature() []byte
	// NeedsExtendedMode reports whether the given totals exceed the classic
	// representation of the format.
	NeedsExtendedMode(totalFiles int, maxFileSize, maxArchiveSize int64) bool
	// SupportsExtendedMode reports whether the format has an extended mode.
	SupportsExtendedMode() bool
}

// CheckConstraints asks fc whether extended mode is required for the given
// totals. It fails with ErrUnsupportedArchiveConstraint when extended mode
// is required but fc has none.
func CheckConstraints(fc FormatCodec, op string, totalFiles int, maxFileSize, maxArchiveSize int64) (bool, error) {
	if !fc.NeedsExtendedMode(totalFiles, maxFileSize, maxArchiveSize) {
		return false, nil
	}
	if !fc.SupportsExtendedMode() {
		return false, Errorf(ErrUnsupportedArchiveConstraint, op, fc.Format(),
			"%d files, largest %d bytes exceeds classic %s limits", totalFiles, maxFileSize, fc.Format())
	}
	return true, nil
}

// CancelPolicy selects what happens to the volume being written when a
// Pack is canceled.
type CancelPolicy int

const (
	// CancelRemovePartial closes the current volume and removes it through
	// the context when the context implements VolumeRemover.
	// Volumes finished before the cancellation are left in place.
	CancelRemovePartial CancelPolicy = iota
	// CancelKeepPartial closes the current volume and leaves it as written.
	CancelKeepPartial
)

// String returns the config name of the policy.
func (p CancelPolicy) String() string {
	switch p {
	case CancelKeepPartial:
		return "keep"
	default:
		return "remove"
	}
}

// ParseCancelPolicy maps a config name to a CancelPolicy.
func ParseCancelPolicy(s string) (CancelPolicy, bool) {
	switch s {
	case "", "remove":
		return CancelRemovePartial, true
	case "keep":
		return CancelKeepPartial, true
	default:
		return CancelRemovePartial, false
	}
}

// DefaultBlockSize is the largest uncompressed block a block codec emits.
const DefaultBlockSize = 32 * 1024

// Options configures an Engine. Build with NewOptions.
type Options struct {
	Level        types.CompressionLevel
	Progress     progress.Handler
	Logger       *log.Logger
	Metrics      *metrics.Collector
	BestEffort   bool
	CancelPolicy CancelPolicy
	BlockSize    int
}

// Option mutates Options.
type Option func(*Options)

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{
		Level:        types.LevelNormal,
		CancelPolicy: CancelRemovePartial,
		BlockSize:    DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.Level = o.Level.Clamp()
	if o.BlockSize <= 0 || o.BlockSize > DefaultBlockSize {
		o.BlockSize = DefaultBlockSize
	}
	if o.Logger == nil {
		o.Logger = log.NewNop()
	}
	return o
}

// WithLevel sets the compression level. Out-of-range levels are clamped.
func WithLevel(l types.CompressionLevel) Option {
	return func(o *Options) { o.Level = l }
}

// WithProgress sets the progress handler.
func WithProgress(h progress.Handler) Option {
	return func(o *Options) { o.Progress = h }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Options) { o.Metrics = c }
}

// WithBestEffort makes Unpack skip a corrupt entry instead of failing.
func WithBestEffort(v bool) Option {
	return func(o *Options) { o.BestEffort = v }
}

// WithCancelPolicy sets the cancel policy.
func WithCancelPolicy(p CancelPolicy) Option {
	return func(o *Options) { o.CancelPolicy = p }
}

// WithBlockSize sets the block size. Values outside (0, 32 KiB] fall back
// to DefaultBlockSize.
func WithBlockSize(n int) Option {
	return func(o *Options) { o.BlockSize = n }
}
