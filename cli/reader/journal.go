package reader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/pithecene-io/strata/progress"
	"github.com/pithecene-io/strata/types"
)

// lz4Magic opens every LZ4 frame.
var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

// CompressedJournalSuffix selects LZ4 framing in CreateJournal.
const CompressedJournalSuffix = ".lz4"

type journalWriter struct {
	zw *lz4.Writer
	f  *os.File
}

func (j *journalWriter) Write(p []byte) (int, error) { return j.zw.Write(p) }

func (j *journalWriter) Close() error {
	return errors.Join(j.zw.Close(), j.f.Close())
}

// CreateJournal creates a journal file at path. Paths ending in ".lz4" are
// written as an LZ4 frame.
func CreateJournal(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}
	if !strings.HasSuffix(path, CompressedJournalSuffix) {
		return f, nil
	}
	return &journalWriter{zw: lz4.NewWriter(f), f: f}, nil
}

type journalReader struct {
	io.Reader
	f *os.File
}

func (j *journalReader) Close() error { return j.f.Close() }

// OpenJournal opens a journal written by CreateJournal. LZ4 framing is
// detected from the content, not the file name.
func OpenJournal(path string) (io.ReadCloser, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open journal: %w", err)
	}
	br := bufio.NewReader(f)
	head, _ := br.Peek(len(lz4Magic))
	if bytes.Equal(head, lz4Magic) {
		return &journalReader{Reader: lz4.NewReader(br), f: f}, true, nil
	}
	return &journalReader{Reader: br, f: f}, false, nil
}

// ReadJournal replays r into h and summarizes what it saw. h may be nil.
func ReadJournal(r io.Reader, h progress.Handler) (*JournalSummary, error) {
	sum := &JournalSummary{ByKind: map[types.ProgressKind]int{}}
	files := map[int]struct{}{}
	n, err := progress.Replay(r, func(ev types.ProgressEvent) error {
		sum.ByKind[ev.Kind]++
		switch ev.Kind {
		case types.ProgressFinishFile:
			files[ev.CurrentFileNumber] = struct{}{}
		case types.ProgressFinishArchive:
			sum.Complete = len(files) == ev.TotalFiles
		default:
			sum.Complete = false
		}
		sum.Archives = max(sum.Archives, ev.TotalArchives)
		sum.TotalBytes = ev.TotalFileBytes
		sum.Processed = ev.FileBytesProcessed
		if h != nil {
			return h(ev)
		}
		return nil
	})
	sum.Events = n
	sum.Files = len(files)
	if err != nil {
		return sum, fmt.Errorf("replay journal after %d events: %w", n, err)
	}
	return sum, nil
}
