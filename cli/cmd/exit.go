package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/archive"
)

// Exit codes.
const (
	exitSuccess  = 0
	exitFailure  = 1
	exitUsage    = 2
	exitArchive  = 3
	exitCanceled = 130
)

// exitCode maps an operation error to a process exit code by its archive
// error kind.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	switch archive.KindOf(err) {
	case archive.ErrCanceled:
		return exitCanceled
	case archive.ErrNotAnArchive, archive.ErrTruncatedArchive, archive.ErrCorruptEntry,
		archive.ErrArchiveNotFound, archive.ErrOutOfVolumes:
		return exitArchive
	case archive.ErrSourceNotFound, archive.ErrIllegalArchiveName, archive.ErrDuplicateEntry,
		archive.ErrVolumeTooSmall, archive.ErrUnsupportedArchiveConstraint:
		return exitUsage
	}
	if errors.Is(err, archive.ErrCanceled) {
		return exitCanceled
	}
	return exitFailure
}

// exitError converts err into a cli.ExitCoder carrying its exit code.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return err
	}
	return cli.Exit(err.Error(), exitCode(err))
}

// usageError reports a bad invocation.
func usageError(msg string) error {
	return cli.Exit(msg, exitUsage)
}
