package progress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/strata/types"
)

// Journal frame size constants.
const (
	// MaxFrameSize is the maximum frame size (1 MiB), including length prefix.
	MaxFrameSize = 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a journal frame error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true for partial and oversized frames; the journal
// cannot be resynchronized past them.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// EncodeFrame encodes an event as a length-prefixed msgpack frame.
func EncodeFrame(ev types.ProgressEvent) ([]byte, error) {
	payload, err := msgpack.Marshal(&ev)
	if err != nil {
		return nil, fmt.Errorf("encode progress event: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}

// Recorder writes every event it receives to a journal.
type Recorder struct {
	w     io.Writer
	count int
}

// NewRecorder creates a recorder writing frames to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Record writes a single event.
func (r *Recorder) Record(ev types.ProgressEvent) error {
	frame, err := EncodeFrame(ev)
	if err != nil {
		return err
	}
	if _, err := r.w.Write(frame); err != nil {
		return fmt.Errorf("write journal frame: %w", err)
	}
	r.count++
	return nil
}

// Handler returns a Handler that records each event.
// A write failure stops the operation.
func (r *Recorder) Handler() Handler {
	return r.Record
}

// Count returns the number of frames written.
func (r *Recorder) Count() int { return r.count }

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// DecodeEvent decodes a payload as a ProgressEvent.
func DecodeEvent(payload []byte) (types.ProgressEvent, error) {
	var ev types.ProgressEvent
	if err := msgpack.Unmarshal(payload, &ev); err != nil {
		return ev, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode progress event",
			Err:  err,
		}
	}
	if !ev.Kind.Valid() {
		return ev, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unknown event kind %q", ev.Kind),
		}
	}
	return ev, nil
}

// Replay decodes every frame in r and delivers it to h. It returns the
// number of events delivered. A handler error stops replay and is returned.
func Replay(r io.Reader, h Handler) (int, error) {
	dec := NewFrameDecoder(r)
	n := 0
	for {
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		ev, err := DecodeEvent(payload)
		if err != nil {
			return n, err
		}
		if h != nil {
			if err := h(ev); err != nil {
				return n, err
			}
		}
		n++
	}
}
