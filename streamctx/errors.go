package streamctx

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// Sentinel errors for storage failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrPermissionDenied indicates a permission/access failure (EACCES, 403).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the target path/object does not exist (ENOENT, 404).
	ErrNotFound = errors.New("not found")

	// ErrDiskFull indicates storage is out of space (ENOSPC).
	ErrDiskFull = errors.New("no space left on device")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrAuth indicates authentication failure (no credentials, expired token).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates authorization failure (valid creds but no permission).
	ErrAccessDenied = errors.New("access denied")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")

	// ErrBusy indicates a transient lock held by another process.
	ErrBusy = errors.New("resource busy")

	// ErrUnclassified marks storage errors matching no other kind.
	ErrUnclassified = errors.New("storage error")
)

// StorageError wraps an underlying error with storage classification.
// It preserves the original error in the chain for inspection via errors.As.
type StorageError struct {
	// Kind is the sentinel error for classification (e.g., ErrPermissionDenied).
	Kind error
	// Op is the operation that failed (e.g., "put", "get", "open").
	Op string
	// Path is the object key or file path involved.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewStorageError creates a classified storage error.
func NewStorageError(kind error, op, path string, err error) *StorageError {
	return &StorageError{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// WrapStorageError classifies err and wraps it for op on path.
// Returns nil if err is nil.
func WrapStorageError(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return NewStorageError(classifyError(err), op, path, err)
}

// IsBusy reports whether err is a transient lock failure worth retrying.
func IsBusy(err error) bool {
	return err != nil && classifyError(err) == ErrBusy
}

// classifyError determines the appropriate sentinel error for the given error.
// Typed errors are checked first, then message patterns.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY):
		return ErrBusy
	case errors.Is(err, syscall.ENOSPC):
		return ErrDiskFull
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	errStr := err.Error()
	switch {
	case containsAny(errStr, "resource busy", "text file busy", "being used by another process", "sharing violation"):
		return ErrBusy

	case containsAny(errStr, "permission denied", "EACCES", "access denied"):
		if containsAny(errStr, "AccessDenied", "Forbidden", "403") {
			return ErrAccessDenied
		}
		return ErrPermissionDenied

	case containsAny(errStr, "no such file", "does not exist", "not found", "ENOENT", "404", "NoSuchKey"):
		return ErrNotFound

	case containsAny(errStr, "no space left", "disk full", "ENOSPC", "quota exceeded"):
		return ErrDiskFull

	case containsAny(errStr, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout

	case containsAny(errStr, "SlowDown", "rate exceeded", "throttl", "429", "TooManyRequests"):
		return ErrThrottled

	case containsAny(errStr, "NoCredentialProviders", "credentials", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "ExpiredToken", "401", "Unauthorized"):
		return ErrAuth

	case containsAny(errStr, "AccessDenied", "Forbidden", "403"):
		return ErrAccessDenied

	case containsAny(errStr, "connection refused", "no route to host", "network unreachable",
		"DNS", "dial tcp", "i/o timeout"):
		return ErrNetwork

	default:
		return ErrUnclassified
	}
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
