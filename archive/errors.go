package archive

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/strata/progress"
)

// Sentinel errors for archive failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrSourceNotFound indicates a source file could not be resolved during Pack.
	ErrSourceNotFound = errors.New("source not found")

	// ErrDuplicateEntry indicates two input paths normalize to the same name.
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrIllegalArchiveName indicates a name that cannot be stored.
	ErrIllegalArchiveName = errors.New("illegal archive name")

	// ErrNotAnArchive indicates a signature mismatch.
	ErrNotAnArchive = errors.New("not an archive")

	// ErrTruncatedArchive indicates fewer bytes than the directory promises,
	// or a missing terminating volume.
	ErrTruncatedArchive = errors.New("truncated archive")

	// ErrCorruptEntry indicates an entry whose data fails verification.
	ErrCorruptEntry = errors.New("corrupt entry")

	// ErrArchiveNotFound indicates an expected volume is unavailable.
	ErrArchiveNotFound = errors.New("archive volume not found")

	// ErrOutOfVolumes indicates the stream context refused to create a volume.
	ErrOutOfVolumes = errors.New("out of volumes")

	// ErrVolumeTooSmall indicates a volume cannot hold its own format overhead.
	ErrVolumeTooSmall = errors.New("volume too small")

	// ErrFileInUse indicates a stream stayed locked after bounded retries.
	ErrFileInUse = errors.New("file in use")

	// ErrUnsupportedArchiveConstraint indicates the format cannot represent
	// the requested scale.
	ErrUnsupportedArchiveConstraint = errors.New("unsupported archive constraint")

	// ErrOperationInProgress indicates a concurrent call on a busy engine.
	ErrOperationInProgress = errors.New("operation in progress")

	// ErrCanceled indicates the progress handler or context stopped the operation.
	// It is the same sentinel progress.StopError matches.
	ErrCanceled = progress.ErrCanceled

	// ErrClosed indicates use of an engine after Close.
	ErrClosed = errors.New("engine closed")

	// ErrStorage indicates a stream operation failed for a reason the
	// stream context did not classify.
	ErrStorage = errors.New("storage failure")
)

// Error wraps an underlying error with archive classification.
// It preserves the original error in the chain for inspection via errors.As.
type Error struct {
	// Kind is the sentinel error for classification (e.g., ErrTruncatedArchive).
	Kind error
	// Op is the operation that failed (e.g., "pack", "unpack", "list").
	Op string
	// Name is the file or volume involved, if any.
	Name string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Name != "" {
		msg += " " + e.Name
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewError creates a classified archive error.
func NewError(kind error, op, name string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Name: name,
		Err:  err,
	}
}

// Errorf creates a classified archive error with a formatted cause.
func Errorf(kind error, op, name, format string, args ...any) *Error {
	return NewError(kind, op, name, fmt.Errorf(format, args...))
}

// KindOf returns the sentinel classifying err, or nil if err is unclassified.
func KindOf(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return nil
}

// Canceled classifies a stop requested by a progress handler or by ctx.
// Errors already wrapped by an *Error of that kind are returned unchanged.
func Canceled(op, name string, err error) error {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind == ErrCanceled {
		return err
	}
	return NewError(ErrCanceled, op, name, err)
}

// Wrap classifies err for op on name. An error that already carries an
// *Error is returned unchanged; anything else is classified as ErrStorage.
func Wrap(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return NewError(ErrStorage, op, name, err)
}
