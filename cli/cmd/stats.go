package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/reader"
	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/cli/tui"
)

// StatsCommand returns the stats command.
// Stats aggregates an archive listing per volume and per codec method.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Summarize an archive (sizes, ratio, volumes, methods)",
		ArgsUsage: "<archive>",
		Flags:     readFlags(),
		Action:    statsAction,
	}
}

func statsAction(c *cli.Context) error {
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
	stats := reader.Summarize(files)

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsArchive, stats)
	}
	return r.Render(stats)
}
