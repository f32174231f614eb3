package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `format: zip
level: high
max_volume_bytes: 100MiB
block_size: 16384
best_effort: true
cancel_policy: keep

storage:
  backend: s3
  path: my-bucket/archives
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

retry:
  attempts: 5
  wait: 200ms

adapter:
  type: webhook
  url: https://hooks.example.com/strata
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "format", cfg.Format, "zip")
	assertEqual(t, "level", cfg.Level, "high")
	assertEqual(t, "cancel_policy", cfg.CancelPolicy, "keep")
	if cfg.MaxVolumeBytes != 100<<20 {
		t.Errorf("max_volume_bytes = %d, want %d", cfg.MaxVolumeBytes, 100<<20)
	}
	if cfg.BlockSize != 16384 {
		t.Errorf("block_size = %d, want 16384", cfg.BlockSize)
	}
	if !cfg.BestEffort {
		t.Error("expected best_effort=true")
	}

	assertEqual(t, "storage.backend", cfg.Storage.Backend, "s3")
	assertEqual(t, "storage.path", cfg.Storage.Path, "my-bucket/archives")
	assertEqual(t, "storage.region", cfg.Storage.Region, "us-east-1")
	assertEqual(t, "storage.endpoint", cfg.Storage.Endpoint, "https://example.com")
	if !cfg.Storage.S3PathStyle {
		t.Error("expected storage.s3_path_style=true")
	}

	if cfg.Retry.Attempts != 5 || cfg.Retry.Wait.Duration != 200*time.Millisecond {
		t.Errorf("retry = %d/%v, want 5/200ms", cfg.Retry.Attempts, cfg.Retry.Wait.Duration)
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/strata")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}
}

func TestLoad_EmptyInputs(t *testing.T) {
	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": "   \n  \n  \n",
		"comments":   "# only a comment\n# and another\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Format != "" || cfg.MaxVolumeBytes != 0 {
				t.Errorf("expected zero config, got %+v", cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/strata.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("STRATA_TEST_BUCKET", "expanded-bucket")

	cfg, err := Load(writeTemp(t, "storage:\n  backend: s3\n  path: ${STRATA_TEST_BUCKET}/x\n  region: ${STRATA_TEST_REGION:-eu-west-1}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "storage.path", cfg.Storage.Path, "expanded-bucket/x")
	assertEqual(t, "storage.region", cfg.Storage.Region, "eu-west-1")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := []struct {
		name, yaml, key string
	}{
		{"top level", "format: cab\nbogus_key: should_fail\n", "bogus_key"},
		{"nested", "storage:\n  backend: fs\n  unknown_field: bad\n", "unknown_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention %s, got: %v", tt.key, err)
			}
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name, yaml, want string
	}{
		{"format", "format: rar\n", "format"},
		{"level", "level: extreme\n", "level"},
		{"cancel policy", "cancel_policy: shred\n", "cancel_policy"},
		{"block size", "block_size: 64KiB\n", "block_size"},
		{"backend", "storage:\n  backend: ftp\n", "storage.backend"},
		{"retry attempts", "retry:\n  attempts: -1\n", "retry.attempts"},
		{"adapter type", "adapter:\n  type: kafka\n", "adapter.type"},
		{"adapter url", "adapter:\n  type: redis\n", "adapter.url"},
		{"adapter retries", "adapter:\n  type: webhook\n  url: https://x\n  retries: -2\n", "adapter.retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %s, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Fatal("expected retries to be *int(0)")
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected retries to be nil, got %d", *cfg.Adapter.Retries)
	}
}

func TestLoad_RedisAdapterConfig(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: strata:operation_completed
  timeout: 5s
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "redis")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "strata:operation_completed")
	if cfg.Adapter.Timeout.Duration != 5*time.Second {
		t.Errorf("expected adapter.timeout=5s, got %v", cfg.Adapter.Timeout.Duration)
	}
}

func TestDuration_Parsing(t *testing.T) {
	cfg, err := Load(writeTemp(t, "retry:\n  wait: \"\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retry.Wait.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.Retry.Wait.Duration)
	}

	_, err = Load(writeTemp(t, "retry:\n  wait: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected invalid duration error, got %v", err)
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"-1", -1, false},
		{"133120", 133120, false},
		{"130KiB", 130 << 10, false},
		{"64k", 64 << 10, false},
		{"100 MiB", 100 << 20, false},
		{"4G", 4 << 30, false},
		{"1TiB", 1 << 40, false},
		{"512b", 512, false},
		{"lots", 0, true},
		{"1.5M", 0, true},
		{"9000000000T", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadOptional("")
	if err != nil {
		t.Fatalf("LoadOptional without file: %v", err)
	}
	if cfg.Format != "" {
		t.Errorf("expected empty config, got %+v", cfg)
	}

	if err := os.WriteFile(DefaultPath, []byte("format: cab\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional("")
	if err != nil {
		t.Fatalf("LoadOptional with default file: %v", err)
	}
	assertEqual(t, "format", cfg.Format, "cab")

	if _, err := LoadOptional("missing.yaml"); err == nil {
		t.Error("expected error for explicit missing path")
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strata.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
