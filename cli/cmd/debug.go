package cmd

import (
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/cab"
	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/zip"
)

// DetectResult reports whether a file carries one format's signature.
type DetectResult struct {
	Format  string `json:"format" yaml:"format"`
	AtStart bool   `json:"at_start" yaml:"at_start"`
	Offset  int64  `json:"offset" yaml:"offset"`
}

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools. They never write.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (detect)",
		Subcommands: []*cli.Command{
			debugDetectCommand(),
		},
	}
}

func debugDetectCommand() *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Look for archive signatures in a file (self-extractors, concatenations)",
		ArgsUsage: "<file>",
		Flags:     ReadOnlyFlags(),
		Action:    debugDetectAction,
	}
}

func debugDetectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("file required")
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError(err.Error())
	}
	if c.Bool("tui") {
		return usageError("--tui is not supported for debug commands")
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer iox.DiscardClose(f)

	results, err := detect(f, cab.New(), zip.New())
	if err != nil {
		return exitError(err)
	}
	return r.Render(results)
}

// codecEngine is an engine that describes its format.
type codecEngine interface {
	archive.Engine
	Codec() archive.FormatCodec
}

// detect probes f with each engine. Offset is -1 when the signature is
// absent.
func detect(f io.ReadSeeker, engines ...codecEngine) ([]DetectResult, error) {
	out := make([]DetectResult, 0, len(engines))
	for _, e := range engines {
		at, err := e.IsArchive(f)
		if err != nil {
			return nil, err
		}
		off, err := e.FindArchiveOffset(f)
		if err != nil {
			return nil, err
		}
		out = append(out, DetectResult{Format: e.Codec().Format(), AtStart: at, Offset: off})
		_ = e.Close()
	}
	return out, nil
}
