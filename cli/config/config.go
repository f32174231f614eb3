package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/types"
)

// Config represents a strata.yaml file.
// All values are optional defaults for the pack, unpack and list commands.
// CLI flags always override config values.
type Config struct {
	Format         string        `yaml:"format"`
	Level          string        `yaml:"level"`
	MaxVolumeBytes ByteSize      `yaml:"max_volume_bytes"`
	BlockSize      ByteSize      `yaml:"block_size"`
	BestEffort     bool          `yaml:"best_effort"`
	CancelPolicy   string        `yaml:"cancel_policy"`
	Storage        StorageConfig `yaml:"storage"`
	Retry          RetryConfig   `yaml:"retry"`
	Adapter        AdapterConfig `yaml:"adapter"`
}

// StorageConfig selects where volumes are read and written.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// RetryConfig bounds retries of volume opens that fail with a busy file.
type RetryConfig struct {
	Attempts int      `yaml:"attempts"`
	Wait     Duration `yaml:"wait"`
}

// AdapterConfig configures the completion notification adapter.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Validate checks enumerated values. Empty values are accepted and fall
// back to the command defaults.
func (c *Config) Validate() error {
	var errs []error
	switch c.Format {
	case "", "cab", "zip":
	default:
		errs = append(errs, fmt.Errorf("format: unknown %q (must be cab or zip)", c.Format))
	}
	if c.Level != "" {
		if _, err := types.ParseLevel(c.Level); err != nil {
			errs = append(errs, fmt.Errorf("level: %w", err))
		}
	}
	if _, ok := archive.ParseCancelPolicy(c.CancelPolicy); !ok {
		errs = append(errs, fmt.Errorf("cancel_policy: unknown %q (must be remove or keep)", c.CancelPolicy))
	}
	if c.BlockSize < 0 || c.BlockSize > archive.DefaultBlockSize {
		errs = append(errs, fmt.Errorf("block_size: %d outside (0, %d]", c.BlockSize, archive.DefaultBlockSize))
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown %q (must be fs or s3)", c.Storage.Backend))
	}
	if c.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("retry.attempts: must be >= 0, got %d", c.Retry.Attempts))
	}
	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url: required for %s adapter", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type: unknown %q (must be webhook or redis)", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries: must be >= 0, got %d", *c.Adapter.Retries))
	}
	return errors.Join(errs...)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ByteSize is a byte count written as a plain integer or with a binary
// suffix ("64KiB", "100MiB", "4GiB"; "K", "M", "G" are accepted too).
type ByteSize int64

// UnmarshalYAML parses an integer or suffixed byte count.
func (b *ByteSize) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	n, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}
