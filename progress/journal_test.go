package progress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/strata/types"
)

func sampleEvents() []types.ProgressEvent {
	return []types.ProgressEvent{
		{Kind: types.ProgressStartArchive, CurrentArchiveName: "a.cab", TotalArchives: 1, TotalFiles: 1, TotalFileBytes: 5},
		{Kind: types.ProgressStartFile, CurrentFileName: "dir/x.txt", CurrentFileTotalBytes: 5, TotalFiles: 1, TotalArchives: 1, TotalFileBytes: 5},
		{Kind: types.ProgressFinishFile, CurrentFileName: "dir/x.txt", CurrentFileBytesProcessed: 5, CurrentFileTotalBytes: 5, FileBytesProcessed: 5, TotalFiles: 1, TotalArchives: 1, TotalFileBytes: 5},
		{Kind: types.ProgressFinishArchive, CurrentArchiveName: "a.cab", CurrentArchiveBytesProcessed: 40, CurrentArchiveTotalBytes: 40, TotalArchives: 1, TotalFiles: 1, FileBytesProcessed: 5, TotalFileBytes: 5},
	}
}

func TestRecorder_ReplayRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	h := rec.Handler()
	for _, ev := range sampleEvents() {
		if err := h(ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if rec.Count() != 4 {
		t.Errorf("Count = %d, want 4", rec.Count())
	}

	var replayed []types.ProgressEvent
	n, err := Replay(&buf, Collect(&replayed))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 4 {
		t.Fatalf("Replay delivered %d events, want 4", n)
	}
	for i, want := range sampleEvents() {
		if replayed[i] != want {
			t.Errorf("event %d = %+v, want %+v", i, replayed[i], want)
		}
	}
}

func TestReplay_Empty(t *testing.T) {
	n, err := Replay(bytes.NewReader(nil), nil)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestReplay_PartialFrame(t *testing.T) {
	frame, err := EncodeFrame(sampleEvents()[0])
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"partial prefix", frame[:2]},
		{"partial payload", frame[:len(frame)-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Replay(bytes.NewReader(tt.data), nil)
			var fe *FrameError
			if !errors.As(err, &fe) || fe.Kind != FrameErrorPartial {
				t.Fatalf("err = %v, want partial frame error", err)
			}
			if !IsFatalFrameError(err) {
				t.Error("partial frame should be fatal")
			}
			if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
				t.Errorf("cause = %v", fe.Err)
			}
		})
	}
}

func TestReplay_TooLarge(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)
	_, err := Replay(bytes.NewReader(prefix[:]), nil)
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorTooLarge {
		t.Fatalf("err = %v, want too-large frame error", err)
	}
}

func TestReplay_DecodeError(t *testing.T) {
	payload := []byte{0xc1} // reserved msgpack byte
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	_, err := Replay(bytes.NewReader(buf), nil)
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorDecode {
		t.Fatalf("err = %v, want decode error", err)
	}
	if IsFatalFrameError(err) {
		t.Error("decode errors are not fatal")
	}
}

func TestReplay_HandlerStops(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	for _, ev := range sampleEvents() {
		_ = rec.Record(ev)
	}
	stop := errors.New("enough")
	calls := 0
	n, err := Replay(&buf, func(types.ProgressEvent) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
