package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/cli/reader"
	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/cli/tui"
)

// InspectCommand returns the inspect command.
// Inspect returns a deep view of a single entry.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a single archive entry",
		ArgsUsage: "<archive> <entry>",
		Flags:     withFlags(ArchiveFlags(), TUIReadOnlyFlags()),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return usageError("archive and entry name required")
	}
	name := c.Args().Get(1)
	nn, err := archive.NormalizeName(name)
	if err != nil {
		return usageError(err.Error())
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError(err.Error())
	}

	files, err := readArchive(c, "list")
	if err != nil {
		return err
	}
	detail, err := reader.Inspect(files, nn)
	if err != nil {
		return exitError(err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectEntry, detail)
	}
	return r.Render(detail)
}
