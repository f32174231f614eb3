package cmd

import (
	"fmt"
	"io"

	"github.com/pithecene-io/strata/cli/reader"
	"github.com/pithecene-io/strata/cli/tui"
	"github.com/pithecene-io/strata/progress"
	"github.com/pithecene-io/strata/types"
)

// progressPrinter writes one line per finished file and per volume opened.
func progressPrinter(w io.Writer) progress.Handler {
	return func(ev types.ProgressEvent) error {
		switch ev.Kind {
		case types.ProgressStartArchive:
			_, _ = fmt.Fprintf(w, "volume %d: %s\n", ev.CurrentArchiveNumber, ev.CurrentArchiveName)
		case types.ProgressFinishFile:
			_, _ = fmt.Fprintf(w, "[%d/%d] %s %s (%s / %s)\n",
				ev.CurrentFileNumber+1, ev.TotalFiles, ev.CurrentFileName,
				tui.FormatBytes(ev.CurrentFileTotalBytes),
				tui.FormatBytes(ev.FileBytesProcessed), tui.FormatBytes(ev.TotalFileBytes))
		}
		return nil
	}
}

// progressSink is the set of handlers requested by --journal and
// --progress.
type progressSink struct {
	handler progress.Handler
	journal io.WriteCloser
}

// openProgress builds the handler chain. The journal, when requested, must
// be closed by the caller through close.
func openProgress(journalPath string, printTo io.Writer) (*progressSink, error) {
	var handlers []progress.Handler
	ps := &progressSink{}
	if journalPath != "" {
		w, err := reader.CreateJournal(journalPath)
		if err != nil {
			return nil, err
		}
		ps.journal = w
		handlers = append(handlers, progress.NewRecorder(w).Handler())
	}
	if printTo != nil {
		handlers = append(handlers, progressPrinter(printTo))
	}
	if len(handlers) > 0 {
		ps.handler = progress.Tee(handlers...)
	}
	return ps, nil
}

func (ps *progressSink) close() error {
	if ps.journal == nil {
		return nil
	}
	err := ps.journal.Close()
	ps.journal = nil
	return err
}
