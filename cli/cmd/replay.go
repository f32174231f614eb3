package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/reader"
	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/progress"
	"github.com/pithecene-io/strata/types"
)

// ReplayCommand returns the replay command.
// Replay reads a journal recorded with --journal and renders its events or
// a summary. It never touches the archive.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Replay a recorded progress journal",
		ArgsUsage: "<journal>",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "events",
				Usage: "Render every event instead of the summary",
			},
		),
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("journal path required")
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError(err.Error())
	}

	// TUI not supported for replay
	if c.Bool("tui") {
		return usageError("--tui is not supported for replay command")
	}

	f, compressed, err := reader.OpenJournal(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer iox.DiscardClose(f)

	var events []types.ProgressEvent
	var h progress.Handler
	if c.Bool("events") {
		h = progress.Collect(&events)
	}
	sum, err := reader.ReadJournal(f, h)
	if err != nil {
		if !progress.IsFatalFrameError(err) || sum.Events == 0 {
			return cli.Exit(err.Error(), exitArchive)
		}
		// A journal cut short by a crash still replays up to the damage.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	sum.Compressed = compressed

	if c.Bool("events") {
		if events == nil {
			events = []types.ProgressEvent{}
		}
		return r.Render(events)
	}
	return r.Render(sum)
}
