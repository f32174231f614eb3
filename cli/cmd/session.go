package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/adapter"
	"github.com/pithecene-io/strata/adapter/redis"
	"github.com/pithecene-io/strata/adapter/webhook"
	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/cab"
	"github.com/pithecene-io/strata/cli/config"
	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/streamctx"
	"github.com/pithecene-io/strata/types"
	"github.com/pithecene-io/strata/zip"
)

// publishTimeout bounds the completion notification after an operation.
const publishTimeout = 30 * time.Second

// session is the resolved state of one archive command: flags merged over
// config, the stream context the engine works through, and the optional
// completion adapter.
type session struct {
	op          string
	opID        string
	cfg         *config.Config
	format      string
	archiveName string
	backend     string
	storagePath string

	logger  *log.Logger
	metrics *metrics.Collector
	files   *streamctx.FileContext
	sc      archive.StreamContext
	notify  adapter.Adapter
	start   time.Time
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// newSession resolves the archive named by the first argument of c.
func newSession(ctx context.Context, c *cli.Context, op string) (*session, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, usageError(err.Error())
	}
	target := c.Args().First()
	if target == "" {
		return nil, usageError("archive required")
	}

	s := &session{
		op:          op,
		opID:        uuid.NewString(),
		cfg:         cfg,
		backend:     firstNonEmpty(c.String("storage"), cfg.Storage.Backend, "fs"),
		storagePath: firstNonEmpty(c.String("storage-path"), cfg.Storage.Path),
		start:       time.Now(),
	}
	if s.backend != "fs" && s.backend != "s3" {
		return nil, usageError(fmt.Sprintf("unknown storage backend %q (must be fs or s3)", s.backend))
	}

	archiveDir := ""
	s.archiveName = filepath.ToSlash(target)
	if s.backend == "fs" && s.storagePath == "" {
		archiveDir, s.archiveName = filepath.Split(target)
		if s.archiveName == "" {
			return nil, usageError(fmt.Sprintf("archive %q names a directory", target))
		}
	}

	s.format, err = resolveFormat(c.String("format"), cfg.Format, s.archiveName)
	if err != nil {
		return nil, usageError(err.Error())
	}

	s.logger, err = log.NewLoggerAt(log.OpMeta{OpID: s.opID, Op: op, Format: s.format}, os.Stderr, c.String("log-level"))
	if err != nil {
		return nil, usageError(fmt.Sprintf("invalid log level: %v", err))
	}
	s.metrics = metrics.NewCollector(op, s.format, s.backend, s.opID)

	s.files = streamctx.NewFileContext(archiveDir, s.archiveName)
	s.files.Logger = s.logger
	s.files.Metrics = s.metrics
	if cfg.Retry.Attempts > 0 {
		s.files.Retry = streamctx.RetryPolicy{Attempts: cfg.Retry.Attempts, Wait: cfg.Retry.Wait.Duration}
	}

	if err := s.openStorage(ctx, c); err != nil {
		return nil, err
	}
	if err := s.openAdapter(); err != nil {
		return nil, usageError(err.Error())
	}
	return s, nil
}

func (s *session) openStorage(ctx context.Context, c *cli.Context) error {
	switch {
	case s.backend == "s3":
		if s.storagePath == "" {
			return usageError("--storage-path is required for the s3 backend (bucket/prefix)")
		}
		bucket, prefix := streamctx.ParseS3Path(s.storagePath)
		sc, err := streamctx.NewS3StoreContext(ctx, streamctx.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       firstNonEmpty(c.String("s3-region"), s.cfg.Storage.Region),
			Endpoint:     firstNonEmpty(c.String("s3-endpoint"), s.cfg.Storage.Endpoint),
			UsePathStyle: c.Bool("s3-path-style") || s.cfg.Storage.S3PathStyle,
		}, s.archiveName, s.files)
		if err != nil {
			return fmt.Errorf("open s3 storage: %w", err)
		}
		sc.Logger = s.logger
		s.sc = sc
	case s.storagePath != "":
		sc := streamctx.NewFSStoreContext(ctx, s.storagePath, s.archiveName, s.files)
		sc.Logger = s.logger
		s.sc = sc
	default:
		s.storagePath = s.files.ArchiveDir
		s.sc = s.files
	}
	return nil
}

func (s *session) openAdapter() error {
	ac := s.cfg.Adapter
	retries := func(def int) int {
		if ac.Retries != nil {
			return *ac.Retries
		}
		return def
	}
	switch ac.Type {
	case "":
		return nil
	case "webhook":
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries(webhook.DefaultRetries),
		})
		if err != nil {
			return err
		}
		s.notify = a
	case "redis":
		a, err := redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: retries(redis.DefaultRetries),
		})
		if err != nil {
			return err
		}
		s.notify = a
	default:
		return fmt.Errorf("unknown adapter type %q", ac.Type)
	}
	return nil
}

// resolveFormat picks the archive format from the flag, then config, then
// the archive extension. cab is the default.
func resolveFormat(flag, cfg, name string) (string, error) {
	f := strings.ToLower(firstNonEmpty(flag, cfg))
	switch f {
	case cab.Format, zip.Format:
		return f, nil
	case "":
	default:
		return "", fmt.Errorf("unknown format %q (must be cab or zip)", f)
	}
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".zip") {
		return zip.Format, nil
	}
	return cab.Format, nil
}

// engineOptions builds engine options from flags and config. Flags win.
func (s *session) engineOptions(c *cli.Context, extra ...archive.Option) ([]archive.Option, error) {
	opts := []archive.Option{
		archive.WithLogger(s.logger),
		archive.WithMetrics(s.metrics),
	}
	if lvl := firstNonEmpty(c.String("level"), s.cfg.Level); lvl != "" {
		l, err := types.ParseLevel(lvl)
		if err != nil {
			return nil, usageError(err.Error())
		}
		opts = append(opts, archive.WithLevel(l))
	}
	if s.cfg.BlockSize > 0 {
		opts = append(opts, archive.WithBlockSize(int(s.cfg.BlockSize)))
	}
	policy, ok := archive.ParseCancelPolicy(firstNonEmpty(c.String("cancel-policy"), s.cfg.CancelPolicy))
	if !ok {
		return nil, usageError(fmt.Sprintf("unknown cancel policy %q (must be remove or keep)", c.String("cancel-policy")))
	}
	opts = append(opts, archive.WithCancelPolicy(policy))
	if c.Bool("best-effort") || s.cfg.BestEffort {
		opts = append(opts, archive.WithBestEffort(true))
	}
	return append(opts, extra...), nil
}

// engine creates the engine for the session format.
func (s *session) engine(c *cli.Context, extra ...archive.Option) (archive.Engine, error) {
	opts, err := s.engineOptions(c, extra...)
	if err != nil {
		return nil, err
	}
	if s.format == zip.Format {
		return zip.New(opts...), nil
	}
	return cab.New(opts...), nil
}

// finish logs the outcome and publishes the completion event, if an
// adapter is configured. A publish failure is logged, never returned.
func (s *session) finish(ctx context.Context, opErr error) {
	d := time.Since(s.start)
	fields := map[string]any{"archive": s.archiveName, "duration_ms": d.Milliseconds()}
	switch {
	case opErr == nil:
		s.logger.Info("operation complete", fields)
	case errors.Is(opErr, archive.ErrCanceled):
		s.logger.Warn("operation canceled", fields)
	default:
		fields["error"] = opErr.Error()
		s.logger.Error("operation failed", fields)
	}
	n := s.notify
	if n == nil {
		return
	}
	s.notify = nil
	defer iox.DiscardClose(n)
	ev := adapter.NewOperationCompletedEvent(s.metrics.Snapshot(), s.archiveName, s.storagePath, opErr, d)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.Publish(pctx, ev); err != nil {
		s.logger.Warn("publish completion event failed", map[string]any{"error": err.Error()})
	}
}

// close releases the adapter when finish was never reached.
func (s *session) close() {
	if s.notify != nil {
		iox.DiscardClose(s.notify)
		s.notify = nil
	}
}
