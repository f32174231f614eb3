// Package main provides the strata CLI entrypoint.
//
// pack and unpack write; every other command is read-only.
//
// Usage:
//
//	strata <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: storage or unexpected failure
//   - 2: bad invocation, config, or input files
//   - 3: missing, truncated or corrupt archive
//   - 130: canceled (SIGINT/SIGTERM)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/cmd"
	"github.com/pithecene-io/strata/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func newApp() *cli.App {
	return &cli.App{
		Name:           "strata",
		Usage:          "Multi-volume cab and zip archiver",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.PackCommand(),
			cmd.UnpackCommand(),
			cmd.ListCommand(),
			cmd.StatsCommand(),
			cmd.InspectCommand(),
			cmd.ReplayCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand("", commit),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// Only print if there's a real message (not just "exit status N")
		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
