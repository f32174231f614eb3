package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/reader"
	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/cli/tui"
	"github.com/pithecene-io/strata/types"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// readFlags are the flags of the commands that list an archive.
func readFlags() []cli.Flag {
	return withFlags(ArchiveFlags(), TUIReadOnlyFlags(), []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "only",
			Usage: "Only entries matching this glob (repeatable)",
		},
	})
}

// readArchive lists the archive named by the first argument.
func readArchive(c *cli.Context, op string) ([]types.ArchiveFileInfo, error) {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, c, op)
	if err != nil {
		return nil, err
	}
	defer s.close()

	eng, err := s.engine(c)
	if err != nil {
		return nil, err
	}
	defer func() { _ = eng.Close() }()

	var rd reader.Reader = &reader.ArchiveReader{Engine: eng, Context: s.sc}
	files, err := rd.Files(ctx, patternFilter(c.StringSlice("only")))
	s.finish(ctx, err)
	if err != nil {
		return nil, exitError(err)
	}
	return files, nil
}

// ListCommand returns the list command.
// List returns one flat row per entry.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List the entries of an archive",
		ArgsUsage: "<archive>",
		Flags: append(readFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("exactly one archive required")
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError(err.Error())
	}

	files, err := readArchive(c, "list")
	if err != nil {
		return err
	}
	rows := reader.Rows(files)

	limit := c.Int("limit")
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(rows) > listWarningThreshold && limit == 0 && !c.Bool("tui") && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d entries. Consider using --limit or --only to reduce output.\n\n", len(rows))
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewListFiles, rows)
	}
	return r.Render(rows)
}
