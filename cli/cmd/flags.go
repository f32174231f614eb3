// Package cmd provides CLI commands for the strata binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only output.
var (
	// OutputFlag selects output format: json, table, yaml.
	OutputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for list, stats and inspect.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (list, stats, inspect only)",
	}
)

// ReadOnlyFlags returns the shared output flags.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		OutputFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// ArchiveFlags returns the flags locating an archive and configuring the
// engine that opens it. They are shared by every archive command.
func ArchiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Archive format: cab or zip (default: config, then archive extension)",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to config file (default: ./strata.yaml when present)",
		},
		&cli.StringFlag{
			Name:  "storage",
			Usage: "Volume storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage root (fs) or bucket/prefix (s3)",
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "AWS region for the s3 backend",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "Custom S3 endpoint URL (R2, MinIO)",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "warn",
		},
	}
}

// progressFlags are shared by pack and unpack.
func progressFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "journal",
			Usage: "Record progress events to this file (.lz4 compresses it)",
		},
		&cli.BoolFlag{
			Name:  "progress",
			Usage: "Print per-file progress to stderr",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Suppress result output",
		},
		&cli.StringFlag{
			Name:  "cancel-policy",
			Usage: "Volumes left after a cancel: remove or keep",
		},
	}
}

func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
