// Package adapter defines the interface for notifying downstream systems
// when an archive operation completes.
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/types"
)

// EventOperationCompleted is the event type carried by OperationCompletedEvent.
const EventOperationCompleted = "operation_completed"

// Outcome values reported in OperationCompletedEvent.Outcome.
const (
	OutcomeSuccess  = "success"
	OutcomeCanceled = "canceled"
	OutcomeFailure  = "failure"
)

// OperationCompletedEvent is the payload published after a pack, unpack or
// list finishes.
type OperationCompletedEvent struct {
	ContractVersion string    `json:"contract_version"`
	EventType       string    `json:"event_type"`
	OpID            string    `json:"op_id"`
	Operation       string    `json:"operation"`
	Format          string    `json:"format"`
	Archive         string    `json:"archive"`
	StorageBackend  string    `json:"storage_backend"`
	StoragePath     string    `json:"storage_path,omitempty"`
	Outcome         string    `json:"outcome"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	Error           string    `json:"error,omitempty"`
	Files           int64     `json:"files"`
	Volumes         int64     `json:"volumes"`
	BytesRead       int64     `json:"bytes_read"`
	BytesWritten    int64     `json:"bytes_written"`
	Timestamp       time.Time `json:"timestamp"`
	DurationMs      int64     `json:"duration_ms"`
}

// NewOperationCompletedEvent builds an event from an operation's metrics
// snapshot and its terminal error.
func NewOperationCompletedEvent(snap metrics.Snapshot, archiveName, storagePath string, err error, d time.Duration) *OperationCompletedEvent {
	ev := &OperationCompletedEvent{
		ContractVersion: types.Version,
		EventType:       EventOperationCompleted,
		OpID:            snap.OpID,
		Operation:       snap.Operation,
		Format:          snap.Format,
		Archive:         archiveName,
		StorageBackend:  snap.StorageBackend,
		StoragePath:     storagePath,
		Outcome:         OutcomeSuccess,
		Files:           snap.FilesPacked + snap.FilesExtracted,
		Volumes:         snap.VolumesClosed,
		BytesRead:       snap.BytesRead,
		BytesWritten:    snap.BytesWritten,
		Timestamp:       time.Now().UTC(),
		DurationMs:      d.Milliseconds(),
	}
	if err != nil {
		ev.Outcome = OutcomeFailure
		if errors.Is(err, archive.ErrCanceled) {
			ev.Outcome = OutcomeCanceled
		}
		if kind := archive.KindOf(err); kind != nil {
			ev.ErrorKind = kind.Error()
		}
		ev.Error = err.Error()
	}
	return ev
}

// Adapter publishes operation completion events to a downstream system.
type Adapter interface {
	// Publish sends the event. Implementations retry transient failures
	// and honor ctx cancellation.
	Publish(ctx context.Context, event *OperationCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Retry calls fn up to 1+retries times with exponential backoff starting at
// base. It stops early when fn succeeds, returns a Permanent error, or ctx
// is done. The last error is returned unwrapped from Permanent.
func Retry(ctx context.Context, retries int, base time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := range 1 + retries {
		if attempt > 0 {
			backoff := base * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
