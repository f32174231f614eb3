package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/cli/render"
)

// UnpackResult is the summary printed after an unpack.
type UnpackResult struct {
	Archive   string `json:"archive" yaml:"archive"`
	Target    string `json:"target" yaml:"target"`
	Extracted int64  `json:"extracted" yaml:"extracted"`
	Skipped   int64  `json:"skipped" yaml:"skipped"`
	Corrupt   int64  `json:"corrupt" yaml:"corrupt"`
	Bytes     int64  `json:"bytes" yaml:"bytes"`
}

// UnpackCommand returns the unpack command.
func UnpackCommand() *cli.Command {
	return &cli.Command{
		Name:      "unpack",
		Usage:     "Extract files from an archive",
		ArgsUsage: "<archive>",
		Flags: withFlags(ArchiveFlags(), progressFlags(), []cli.Flag{
			OutputFlag,
			NoColorFlag,
			&cli.StringFlag{
				Name:    "target-dir",
				Aliases: []string{"d"},
				Usage:   "Extract below this directory",
				Value:   ".",
			},
			&cli.StringSliceFlag{
				Name:  "only",
				Usage: "Extract only entries matching this glob (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "best-effort",
				Usage: "Skip corrupt entries instead of failing",
			},
		}),
		Action: unpackAction,
	}
}

func unpackAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("exactly one archive required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, c, "unpack")
	if err != nil {
		return err
	}
	defer s.close()
	s.files.TargetDir = c.String("target-dir")

	var r *render.Renderer
	if !c.Bool("quiet") {
		if r, err = render.NewRenderer(c); err != nil {
			return usageError(err.Error())
		}
	}

	ps, err := openProgress(c.String("journal"), progressOutput(c))
	if err != nil {
		return exitError(err)
	}
	defer func() { _ = ps.close() }()

	eng, err := s.engine(c, archive.WithProgress(ps.handler))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	err = eng.Unpack(ctx, s.sc, patternFilter(c.StringSlice("only")))
	if cerr := ps.close(); err == nil && cerr != nil {
		err = cerr
	}
	s.finish(ctx, err)
	if err != nil {
		return exitError(err)
	}

	if r == nil {
		return nil
	}
	snap := s.metrics.Snapshot()
	return r.Render(UnpackResult{
		Archive:   s.archiveName,
		Target:    s.files.TargetDir,
		Extracted: snap.FilesExtracted,
		Skipped:   snap.FilesSkipped,
		Corrupt:   snap.FilesCorrupt,
		Bytes:     snap.BytesWritten,
	})
}

// patternFilter accepts entries matching any pattern. No patterns accepts
// everything.
func patternFilter(patterns []string) archive.Filter {
	if len(patterns) == 0 {
		return nil
	}
	filters := make([]archive.Filter, len(patterns))
	for i, p := range patterns {
		filters[i] = archive.MatchPattern(p)
	}
	return func(name string) bool {
		for _, f := range filters {
			if f(name) {
				return true
			}
		}
		return false
	}
}
