package streamctx

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{"deadline", errors.New("context deadline exceeded"), ErrTimeout},
		{"access denied", errors.New("AccessDenied: you do not have access"), ErrAccessDenied},
		{"forbidden", errors.New("received status 403"), ErrAccessDenied},
		{"permission", errors.New("permission denied for /data/output"), ErrPermissionDenied},
		{"not found", errors.New("NoSuchKey: key does not exist"), ErrNotFound},
		{"disk full", errors.New("write: no space left on device"), ErrDiskFull},
		{"throttled", errors.New("SlowDown: reduce your request rate"), ErrThrottled},
		{"auth", errors.New("ExpiredToken: token expired"), ErrAuth},
		{"network", errors.New("dial tcp 10.0.0.1:443: connection refused"), ErrNetwork},
		{"busy errno", &os.PathError{Op: "open", Path: "v", Err: syscall.EBUSY}, ErrBusy},
		{"busy text", errors.New("The process cannot access the file because it is being used by another process"), ErrBusy},
		{"unknown", errors.New("something odd"), ErrUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.wantKind {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.wantKind)
			}
		})
	}
}

func TestWrapStorageError(t *testing.T) {
	if WrapStorageError(nil, "put", "k") != nil {
		t.Fatal("nil error should stay nil")
	}
	cause := &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}
	err := WrapStorageError(cause, "get", "vols/a.cab")

	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = false")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("cause lost through Unwrap")
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "get" || se.Path != "vols/a.cab" {
		t.Errorf("StorageError = %+v", se)
	}
	if !IsBusy(&os.PathError{Op: "open", Path: "v", Err: syscall.ETXTBSY}) {
		t.Error("ETXTBSY should be busy")
	}
}
