package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/cli/config"
	"github.com/pithecene-io/strata/cli/reader"
	"github.com/pithecene-io/strata/cli/render"
)

// PackCommand returns the pack command.
func PackCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Pack files into a single or multi-volume archive",
		ArgsUsage: "<archive> <path>...",
		Flags: withFlags(ArchiveFlags(), progressFlags(), []cli.Flag{
			OutputFlag,
			NoColorFlag,
			&cli.StringFlag{
				Name:    "level",
				Aliases: []string{"l"},
				Usage:   "Compression level: none, low, normal, high",
			},
			&cli.StringFlag{
				Name:    "max-volume-bytes",
				Aliases: []string{"s"},
				Usage:   "Split into volumes of at most this size (e.g. 100MiB; 0 = one volume)",
			},
			&cli.StringFlag{
				Name:    "source-dir",
				Aliases: []string{"C"},
				Usage:   "Resolve paths relative to this directory",
			},
		}),
		Action: packAction,
	}
}

func packAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return usageError("archive and at least one path required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, c, "pack")
	if err != nil {
		return err
	}
	defer s.close()

	maxBytes := int64(s.cfg.MaxVolumeBytes)
	if v := c.String("max-volume-bytes"); v != "" {
		if maxBytes, err = config.ParseByteSize(v); err != nil {
			return usageError(fmt.Sprintf("invalid --max-volume-bytes: %v", err))
		}
	}

	sourceDir := c.String("source-dir")
	s.files.SourceDir = sourceDir
	files, err := collectSources(sourceDir, c.Args().Tail())
	if err != nil {
		return exitError(err)
	}
	if len(files) == 0 {
		return usageError("no files to pack")
	}

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

	infos, err := eng.Pack(ctx, s.sc, files, maxBytes)
	if cerr := ps.close(); err == nil && cerr != nil {
		err = cerr
	}
	s.finish(ctx, err)
	if err != nil {
		return exitError(err)
	}

	if r != nil {
		return r.Render(reader.Rows(infos))
	}
	return nil
}

// progressOutput returns stderr when --progress is set.
func progressOutput(c *cli.Context) io.Writer {
	if c.Bool("progress") {
		return os.Stderr
	}
	return nil
}

// collectSources expands the command line paths into the files to pack.
// Directories are walked in lexical order. Names are relative to
// sourceDir; missing paths are passed through so the engine reports them.
func collectSources(sourceDir string, paths []string) ([]string, error) {
	root := sourceDir
	if root == "" {
		root = "."
	}
	var files []string
	for _, p := range paths {
		full := p
		if !filepath.IsAbs(p) {
			full = filepath.Join(root, p)
		}
		st, err := os.Stat(full)
		if err != nil || !st.IsDir() {
			files = append(files, filepath.ToSlash(p))
			continue
		}
		err = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			files = append(files, relativeName(root, path))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	return files, nil
}

// relativeName names path relative to root, or by its own path when it
// lies outside root.
func relativeName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
